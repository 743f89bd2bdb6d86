package tsnlat

// topo.go contains code and data structures giving a topology description
// its runtime form: nodes, ports, edges, and streams as flat records with
// dense integer ids, cross-linked and filled in with defaults.  Everything
// here is immutable once BuildTopology returns, so concurrent evaluation
// needs no locking.

import (
	"fmt"
	"strings"

	"golang.org/x/exp/slices"
)

// PrioSet is a set of the eight frame priorities 0-7, one bit per priority.
type PrioSet uint8

// allPrios has every priority admitted.
const allPrios = PrioSet(0xff)

// PrioSetOf builds a set from a priority list.  Values outside 0-7 are
// ignored; the description validator rejects them before this runs.
func PrioSetOf(prios []int) PrioSet {
	var ps PrioSet
	for _, p := range prios {
		if p >= 0 && p <= 7 {
			ps |= 1 << uint(p)
		}
	}
	return ps
}

// Has reports whether priority p is a member.
func (ps PrioSet) Has(p int) bool {
	if p < 0 || p > 7 {
		return false
	}
	return ps&(1<<uint(p)) != 0
}

// AnyBelow reports whether the set admits any priority strictly less than p.
func (ps PrioSet) AnyBelow(p int) bool {
	for q := 0; q < p && q < 8; q++ {
		if ps.Has(q) {
			return true
		}
	}
	return false
}

// Members lists the admitted priorities in ascending order.
func (ps PrioSet) Members() []int {
	mbrs := make([]int, 0, 8)
	for p := 0; p < 8; p++ {
		if ps.Has(p) {
			mbrs = append(mbrs, p)
		}
	}
	return mbrs
}

func (ps PrioSet) String() string {
	mbrs := ps.Members()
	strs := make([]string, len(mbrs))
	for idx, p := range mbrs {
		strs[idx] = fmt.Sprintf("%d", p)
	}
	return "{" + strings.Join(strs, ",") + "}"
}

// topoNode is the runtime form of a NodeDesc
type topoNode struct {
	name             string // unique name from the description
	number           int    // dense index into Topology.nodes
	processingDelay  int64  // fixed forwarding time through the node
	processingJitter int64  // uncertainty on the forwarding time
	syncDomain       string // clock sync domain, empty when unsynchronized
	syncJitter       int64  // residual clock uncertainty within the domain
	ports            []int  // indices into Topology.ports, description order
}

// synced reports whether the node participates in clock synchronization.
func (tn *topoNode) synced() bool {
	return len(tn.syncDomain) > 0
}

// topoPort is the runtime form of a PortDesc
type topoPort struct {
	name            string  // name from the description, unique within the node
	number          int     // dense index into Topology.ports
	node            int     // index of the owning node
	edge            int     // index of the edge attached here, -1 while unattached
	framePreemption bool    // express frames may interrupt others on egress
	express         PrioSet // priorities eligible for preemption bypass
	gcl             bool    // gate control (time-aware shaping) active on egress
	gclCycle        int64   // length of the repeating gate cycle
	gclOpen         int64   // duration the gate stays open each cycle
	gclOffset       int64   // gate-open instant relative to cycle start
	gclPrios        PrioSet // priorities admitted while the gate is open
}

// admitted gives the priorities that can leave the port at all: the gate
// set under time-aware shaping, every priority otherwise.
func (tp *topoPort) admitted() PrioSet {
	if tp.gcl {
		return tp.gclPrios
	}
	return allPrios
}

// topoEdge is the runtime form of an EdgeDesc
type topoEdge struct {
	number             int   // dense index into Topology.edges
	port1              int   // index of one attached port
	port2              int   // index of the other attached port
	linkSpeed          int64 // Mbit/s
	maxFrameSize       int64 // largest frame the link carries, bytes
	propagationDelay   int64 // signal travel time across the link
	transmissionJitter int64 // timing uncertainty of transmissions entering the link
}

// topoStream is the runtime form of a StreamDesc
type topoStream struct {
	name               string // unique name from the description
	number             int    // dense index into Topology.streams
	cycleTime          int64  // period of the transmission cycle
	offset             int64  // earliest transmission instant within the cycle
	transmissionWindow int64  // latest transmission lags the offset by at most this
	frameSize          int64  // payload bytes per frame, wire overhead excluded
	sender             int    // index of the sending node
	receiver           int    // index of the receiving node
	priority           int    // priority class as given, range-checked at evaluation
}

// Topology is the runtime form of one TopoDesc: flat record arenas plus the
// lookup maps evaluation needs.  A Topology is built once and never mutated.
type Topology struct {
	name    string
	nodes   []topoNode
	ports   []topoPort
	edges   []topoEdge
	streams []topoStream

	nodeByName   map[string]int // node name to index
	portByName   map[string]int // "node-port" key to index
	streamByName map[string]int // stream name to index
}

// Name gives the topology's name from the description.
func (topo *Topology) Name() string {
	return topo.name
}

// NumNodes gives the number of nodes in the topology.
func (topo *Topology) NumNodes() int {
	return len(topo.nodes)
}

// NumStreams gives the number of streams riding the topology.
func (topo *Topology) NumStreams() int {
	return len(topo.streams)
}

// StreamNames lists the stream names in description order.
func (topo *Topology) StreamNames() []string {
	names := make([]string, len(topo.streams))
	for idx := range topo.streams {
		names[idx] = topo.streams[idx].name
	}
	return names
}

// NodeName gives the name of the node with the argument index.
func (topo *Topology) NodeName(node int) string {
	return topo.nodes[node].name
}

// PortName gives the name of the port with the argument index.
func (topo *Topology) PortName(port int) string {
	return topo.ports[port].name
}

// portKey builds the lookup key of a port from its owning node's name,
// using the reserved separator the description validator keeps out of names.
func portKey(nodeName, portName string) string {
	return nodeName + NameSeparator + portName
}

// edgePortAt gives the index of the edge's port owned by the argument node,
// and -1 when the edge does not touch the node.
func (topo *Topology) edgePortAt(edge, node int) int {
	te := &topo.edges[edge]
	if topo.ports[te.port1].node == node {
		return te.port1
	}
	if topo.ports[te.port2].node == node {
		return te.port2
	}
	return -1
}

// edgePeer gives the node index on the far side of the edge from the
// argument node.
func (topo *Topology) edgePeer(edge, node int) int {
	te := &topo.edges[edge]
	if topo.ports[te.port1].node == node {
		return topo.ports[te.port2].node
	}
	return topo.ports[te.port1].node
}

// createTopoNode builds the runtime form of one node, substituting defaults
// for omitted optional fields.  Port records are created by the caller so
// the arena indices stay dense.
func createTopoNode(nd *NodeDesc, number int) topoNode {
	tn := topoNode{
		name:             nd.Name,
		number:           number,
		processingDelay:  valueOr(nd.ProcessingDelay, DefaultProcessingDelay),
		processingJitter: valueOr(nd.ProcessingJitter, DefaultProcessingJitter),
		syncDomain:       nd.SyncDomain,
		syncJitter:       valueOr(nd.SyncJitter, DefaultSyncJitter),
	}
	tn.ports = make([]int, 0, len(nd.Ports))
	return tn
}

// createTopoPort builds the runtime form of one port.  The edge back-link
// is wired later when edges are resolved.
func createTopoPort(pd *PortDesc, number, node int) topoPort {
	tp := topoPort{
		name:            pd.Name,
		number:          number,
		node:            node,
		edge:            -1,
		framePreemption: pd.FramePreemption,
		express:         PrioSetOf(pd.ExpressPriorities),
		gcl:             pd.Gcl,
		gclCycle:        intOr(pd.GclCycle, DefaultGclCycle),
		gclOpen:         intOr(pd.GclOpen, DefaultGclOpen),
		gclOffset:       valueOr(pd.GclOffset, DefaultGclOffset),
	}

	// an omitted or empty admission list admits every priority
	if len(pd.GclPriorities) == 0 {
		tp.gclPrios = allPrios
	} else {
		tp.gclPrios = PrioSetOf(pd.GclPriorities)
	}
	return tp
}

// createTopoEdge builds the runtime form of one edge between two already
// resolved ports, substituting defaults for omitted fields.
func createTopoEdge(ed *EdgeDesc, number, port1, port2 int) topoEdge {
	return topoEdge{
		number:             number,
		port1:              port1,
		port2:              port2,
		linkSpeed:          intOr(ed.LinkSpeed, DefaultLinkSpeed),
		maxFrameSize:       intOr(ed.MaxFrameSize, DefaultMaxFrameSize),
		propagationDelay:   ed.PropagationDelay,
		transmissionJitter: ed.TransmissionJitter,
	}
}

// createTopoStream builds the runtime form of one stream whose sender and
// receiver have been resolved to node indices.
func createTopoStream(sd *StreamDesc, number, sender, receiver int) topoStream {
	return topoStream{
		name:               sd.Name,
		number:             number,
		cycleTime:          sd.CycleTime,
		offset:             sd.Offset,
		transmissionWindow: sd.TransmissionWindow,
		frameSize:          sd.FrameSize,
		sender:             sender,
		receiver:           receiver,
		priority:           sd.Priority,
	}
}

// checkName screens an entity name for the reserved separator, appending a
// complaint to msgs when it appears.
func checkName(msgs []string, entity, name string) []string {
	if strings.Contains(name, NameSeparator) {
		msgs = append(msgs, fmt.Sprintf("%s name %q contains reserved separator %q", entity, name, NameSeparator))
	}
	return msgs
}

// BuildTopology validates a topology description and transforms it into its
// runtime form.  Every structural problem found is reported together in one
// InvalidTopology error: duplicate or reserved names, edges whose endpoints
// do not resolve, a port claimed by two edges, gate schedules that cannot
// repeat, and streams naming unknown endpoints.  No partial topology escapes
// a failed build.
func BuildTopology(td *TopoDesc) (*Topology, error) {
	if err := td.Validate(); err != nil {
		return nil, err
	}

	topo := &Topology{
		name:         td.Name,
		nodeByName:   make(map[string]int),
		portByName:   make(map[string]int),
		streamByName: make(map[string]int),
	}
	msgs := make([]string, 0)

	// nodes and their ports, in description order so indices are stable
	for idx := range td.Nodes {
		nd := &td.Nodes[idx]
		msgs = checkName(msgs, "node", nd.Name)
		if _, dup := topo.nodeByName[nd.Name]; dup {
			msgs = append(msgs, fmt.Sprintf("duplicate node name %q", nd.Name))
			continue
		}

		nodeNum := len(topo.nodes)
		topo.nodeByName[nd.Name] = nodeNum
		tn := createTopoNode(nd, nodeNum)

		for pidx := range nd.Ports {
			pd := &nd.Ports[pidx]
			msgs = checkName(msgs, "port", pd.Name)
			key := portKey(nd.Name, pd.Name)
			if _, dup := topo.portByName[key]; dup {
				msgs = append(msgs, fmt.Sprintf("node %q declares port %q twice", nd.Name, pd.Name))
				continue
			}

			portNum := len(topo.ports)
			topo.portByName[key] = portNum
			tp := createTopoPort(pd, portNum, nodeNum)

			// a gate that closes before it opens, or opens past the end of
			// its cycle, can never admit a frame
			if tp.gcl {
				if tp.gclOpen > tp.gclCycle {
					msgs = append(msgs, fmt.Sprintf("port %q gate open %d exceeds cycle %d", key, tp.gclOpen, tp.gclCycle))
				}
				if tp.gclOffset >= tp.gclCycle {
					msgs = append(msgs, fmt.Sprintf("port %q gate offset %d outside cycle %d", key, tp.gclOffset, tp.gclCycle))
				}
			}

			topo.ports = append(topo.ports, tp)
			tn.ports = append(tn.ports, portNum)
		}
		topo.nodes = append(topo.nodes, tn)
	}

	// edges, each claiming two so far unclaimed ports
	for idx := range td.Edges {
		ed := &td.Edges[idx]
		endpts := [2]int{}
		ok := true

		for side, ref := range [][2]string{ed.Port1, ed.Port2} {
			port, present := topo.portByName[portKey(ref[0], ref[1])]
			if !present {
				msgs = append(msgs, fmt.Sprintf("edge %d references unknown port %q on node %q", idx, ref[1], ref[0]))
				ok = false
				continue
			}
			endpts[side] = port
		}
		if !ok {
			continue
		}
		if endpts[0] == endpts[1] {
			msgs = append(msgs, fmt.Sprintf("edge %d joins port %q to itself", idx, topo.ports[endpts[0]].name))
			continue
		}
		if topo.ports[endpts[0]].node == topo.ports[endpts[1]].node {
			msgs = append(msgs, fmt.Sprintf("edge %d joins two ports of node %q", idx, topo.nodes[topo.ports[endpts[0]].node].name))
			continue
		}

		edgeNum := len(topo.edges)
		for _, port := range endpts {
			if topo.ports[port].edge >= 0 {
				msgs = append(msgs, fmt.Sprintf("port %q on node %q attached to two edges",
					topo.ports[port].name, topo.nodes[topo.ports[port].node].name))
				ok = false
			}
		}
		if !ok {
			continue
		}

		topo.ports[endpts[0]].edge = edgeNum
		topo.ports[endpts[1]].edge = edgeNum
		topo.edges = append(topo.edges, createTopoEdge(ed, edgeNum, endpts[0], endpts[1]))
	}

	// streams, with endpoints resolved to node indices
	for idx := range td.Streams {
		sd := &td.Streams[idx]
		msgs = checkName(msgs, "stream", sd.Name)
		if _, dup := topo.streamByName[sd.Name]; dup {
			msgs = append(msgs, fmt.Sprintf("duplicate stream name %q", sd.Name))
			continue
		}

		sender, haveSender := topo.nodeByName[sd.Sender]
		receiver, haveReceiver := topo.nodeByName[sd.Receiver]
		if !haveSender {
			msgs = append(msgs, fmt.Sprintf("stream %q names unknown sender %q", sd.Name, sd.Sender))
		}
		if !haveReceiver {
			msgs = append(msgs, fmt.Sprintf("stream %q names unknown receiver %q", sd.Name, sd.Receiver))
		}
		if !haveSender || !haveReceiver {
			continue
		}

		strmNum := len(topo.streams)
		topo.streamByName[sd.Name] = strmNum
		topo.streams = append(topo.streams, createTopoStream(sd, strmNum, sender, receiver))
	}

	if len(msgs) > 0 {
		slices.Sort(msgs)
		return nil, topoError("%s", strings.Join(msgs, ", "))
	}
	return topo, nil
}
