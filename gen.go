package tsnlat

// gen.go constructs topology descriptions in code rather than reading them
// from a file: the documented eight node example, a parameterizable bench
// for profiling contention, and seeded random line topologies used by
// property tests and by dataset synthesis.

import (
	"fmt"
	"strconv"

	"github.com/iti/rngstream"
)

// gate-open duration shared by every scheduled port of the sample topology
const sampleGateOpen = 30000

// gatedNode builds a sample node whose ports all carry the same staggered
// gate schedule.  Port names are "0", "1", ... in order.
func gatedNode(name string, ports int, gclOffset int64) NodeDesc {
	nd := NodeDesc{Name: name, SyncDomain: "1"}
	nd.Ports = make([]PortDesc, 0, ports)

	for idx := 0; idx < ports; idx += 1 {
		nd.Ports = append(nd.Ports, PortDesc{
			Name:      strconv.Itoa(idx),
			Gcl:       true,
			GclOpen:   sampleGateOpen,
			GclOffset: nsPtr(gclOffset),
		})
	}

	return nd
}

// plainNode builds a sample end node with a single unscheduled port.
func plainNode(name string) NodeDesc {
	return NodeDesc{
		Name:       name,
		SyncDomain: "1",
		Ports:      []PortDesc{{Name: "0"}},
	}
}

// joinPorts builds an all-default edge between two named ports.
func joinPorts(node1, port1, node2, port2 string) EdgeDesc {
	return EdgeDesc{
		Port1: [2]string{node1, port1},
		Port2: [2]string{node2, port2},
	}
}

// BuildSampleTopo returns the built-in eight node example topology: a line
// of three switches (node 1 to node 3) between sender node 0 and receiver
// node 7, with cross traffic sources node 4 and node 5 joining at node 2
// and node 3 and a second receiver node 6.  Gate windows are staggered
// 40000 ns per hop along the line so each window opens after the upstream
// one closes.  All nodes share one synchronization domain.
func BuildSampleTopo() *TopoDesc {
	td := new(TopoDesc)
	td.Name = "a1"

	td.Nodes = []NodeDesc{
		gatedNode("node 0", 1, 0),
		gatedNode("node 1", 2, 40000),
		gatedNode("node 2", 3, 80000),
		gatedNode("node 3", 4, 120000),
		gatedNode("node 4", 1, 40000),
		gatedNode("node 5", 1, 80000),
		plainNode("node 6"),
		plainNode("node 7"),
	}

	td.Edges = []EdgeDesc{
		joinPorts("node 0", "0", "node 1", "0"),
		joinPorts("node 1", "1", "node 2", "0"),
		joinPorts("node 4", "0", "node 2", "2"),
		joinPorts("node 2", "1", "node 3", "0"),
		joinPorts("node 5", "0", "node 3", "3"),
		joinPorts("node 3", "1", "node 6", "0"),
		joinPorts("node 3", "2", "node 7", "0"),
	}

	td.Streams = []StreamDesc{
		{Name: "Stream 1", CycleTime: 1000000, FrameSize: 500, Sender: "node 0", Receiver: "node 7", Priority: 6},
		{Name: "Stream 2", CycleTime: 1000000, FrameSize: 64, Sender: "node 4", Receiver: "node 6", Priority: 6},
		{Name: "Stream 3", CycleTime: 1000000, FrameSize: 570, Sender: "node 4", Receiver: "node 6", Priority: 6},
		{Name: "Stream 4", CycleTime: 1000000, FrameSize: 1518, Sender: "node 4", Receiver: "node 6", Priority: 6},
		{Name: "Stream 5", CycleTime: 1000000, FrameSize: 64, Sender: "node 5", Receiver: "node 7", Priority: 7},
		{Name: "Stream 6", CycleTime: 1000000, FrameSize: 570, Sender: "node 5", Receiver: "node 7", Priority: 7},
		{Name: "Stream 7", CycleTime: 1000000, FrameSize: 1518, Sender: "node 5", Receiver: "node 7", Priority: 7},
	}

	return td
}

// BenchCfg parameterizes BuildBenchTopo.  Zero values select a small
// default bench; CrossStreams is honored literally so an uncontended bench
// is expressible.
type BenchCfg struct {
	// switches between talker and listener, minimum 1
	Switches int

	// competing streams injected at every switch
	CrossStreams int

	// cycle shared by every generated stream, 0 means DefaultGclCycle
	CycleTime int64

	// frame size of the observed stream, 0 means 500
	FrameSize int64

	// frame size of the competing streams, 0 means 1518
	CrossFrameSize int64

	// priority of the observed stream
	Priority int

	// priority of the competing streams, 0 means 7
	CrossPriority int

	// give every non-listener port a staggered gate schedule
	Gated bool

	// enable frame preemption with the observed priority express
	Preemption bool
}

// BuildBenchTopo builds a talker / switch chain / listener topology where
// every switch also attaches a source node injecting competing streams
// toward the listener, so contention on the observed stream grows with
// every hop.
func BuildBenchTopo(cfg BenchCfg) *TopoDesc {
	switches := cfg.Switches
	if switches < 1 {
		switches = 1
	}
	cycle := intOr(cfg.CycleTime, DefaultGclCycle)
	frameSize := intOr(cfg.FrameSize, 500)
	crossFrame := intOr(cfg.CrossFrameSize, 1518)
	crossPrio := cfg.CrossPriority
	if crossPrio == 0 {
		crossPrio = 7
	}

	benchPort := func(name string, hop int) PortDesc {
		pd := PortDesc{Name: name}
		if cfg.Gated {
			pd.Gcl = true
			pd.GclOpen = sampleGateOpen
			pd.GclOffset = nsPtr((int64(hop) * 40000) % DefaultGclCycle)
		}
		if cfg.Preemption {
			pd.FramePreemption = true
			pd.ExpressPriorities = []int{cfg.Priority}
		}
		return pd
	}

	td := new(TopoDesc)
	td.Name = fmt.Sprintf("bench %d", switches)
	td.Nodes = make([]NodeDesc, 0, switches*2+2)
	td.Edges = make([]EdgeDesc, 0, switches*2+1)
	td.Streams = make([]StreamDesc, 0, switches*cfg.CrossStreams+1)

	td.Nodes = append(td.Nodes, NodeDesc{
		Name:       "talker",
		SyncDomain: "1",
		Ports:      []PortDesc{benchPort("0", 0)},
	})

	// switch idx: port "0" faces upstream, "1" downstream, "2" its source
	for idx := 0; idx < switches; idx += 1 {
		td.Nodes = append(td.Nodes, NodeDesc{
			Name:       fmt.Sprintf("sw %d", idx),
			SyncDomain: "1",
			Ports: []PortDesc{
				benchPort("0", idx+1),
				benchPort("1", idx+1),
				benchPort("2", idx+1),
			},
		})
		td.Nodes = append(td.Nodes, NodeDesc{
			Name:       fmt.Sprintf("src %d", idx),
			SyncDomain: "1",
			Ports:      []PortDesc{benchPort("0", idx+1)},
		})

		upstream := "talker"
		if idx > 0 {
			upstream = fmt.Sprintf("sw %d", idx-1)
		}
		upPort := "0"
		if idx > 0 {
			upPort = "1"
		}
		td.Edges = append(td.Edges, joinPorts(upstream, upPort, fmt.Sprintf("sw %d", idx), "0"))
		td.Edges = append(td.Edges, joinPorts(fmt.Sprintf("src %d", idx), "0", fmt.Sprintf("sw %d", idx), "2"))

		for strm := 0; strm < cfg.CrossStreams; strm += 1 {
			td.Streams = append(td.Streams, StreamDesc{
				Name:      fmt.Sprintf("cross %d %d", idx, strm),
				CycleTime: cycle,
				FrameSize: crossFrame,
				Sender:    fmt.Sprintf("src %d", idx),
				Receiver:  "listener",
				Priority:  crossPrio,
			})
		}
	}

	td.Nodes = append(td.Nodes, NodeDesc{
		Name:       "listener",
		SyncDomain: "1",
		Ports:      []PortDesc{{Name: "0"}},
	})
	td.Edges = append(td.Edges, joinPorts(fmt.Sprintf("sw %d", switches-1), "1", "listener", "0"))

	td.Streams = append(td.Streams, StreamDesc{
		Name:      "bench",
		CycleTime: cycle,
		FrameSize: frameSize,
		Sender:    "talker",
		Receiver:  "listener",
		Priority:  cfg.Priority,
	})

	return td
}

// RandomTopoDesc draws a line topology of nodeCount nodes with streamCount
// streams between random distinct endpoints from the given stream of
// pseudo-random numbers.  The same sequence of draws yields the same
// topology, so results are reproducible for a reproducibly seeded rng.
// Gate schedules, preemption, link parameters, and stream shapes vary, and
// nothing guarantees every stream is schedulable; callers must be prepared
// for per-stream evaluation errors.
func RandomTopoDesc(rng *rngstream.RngStream, nodeCount, streamCount int) *TopoDesc {
	if nodeCount < 2 {
		nodeCount = 2
	}
	if streamCount < 0 {
		streamCount = 0
	}

	linkSpeeds := []int64{100, 1000, 10000}
	cycles := []int64{250000, 500000, 1000000, 2000000}

	randomPort := func(name string) PortDesc {
		pd := PortDesc{Name: name}
		if rng.RandU01() < 0.4 {
			pd.Gcl = true
			pd.GclOpen = int64(rng.RandInt(10000, 100000))
			pd.GclOffset = nsPtr(int64(rng.RandInt(0, 800000)))
		}
		if rng.RandU01() < 0.3 {
			pd.FramePreemption = true
			pd.ExpressPriorities = []int{6, 7}
		}
		return pd
	}

	td := new(TopoDesc)
	td.Name = fmt.Sprintf("random %d %d", nodeCount, streamCount)
	td.Nodes = make([]NodeDesc, 0, nodeCount)
	td.Edges = make([]EdgeDesc, 0, nodeCount-1)
	td.Streams = make([]StreamDesc, 0, streamCount)

	for idx := 0; idx < nodeCount; idx += 1 {
		nd := NodeDesc{Name: fmt.Sprintf("node %d", idx)}
		if rng.RandU01() < 0.5 {
			nd.SyncDomain = "1"
		}
		if rng.RandU01() < 0.25 {
			nd.ProcessingDelay = nsPtr(int64(rng.RandInt(200, 2000)))
		}
		nd.Ports = []PortDesc{randomPort("0"), randomPort("1")}
		td.Nodes = append(td.Nodes, nd)
	}

	for idx := 0; idx < nodeCount-1; idx += 1 {
		td.Edges = append(td.Edges, EdgeDesc{
			Port1:              [2]string{fmt.Sprintf("node %d", idx), "1"},
			Port2:              [2]string{fmt.Sprintf("node %d", idx+1), "0"},
			LinkSpeed:          linkSpeeds[rng.RandInt(0, len(linkSpeeds)-1)],
			PropagationDelay:   int64(rng.RandInt(0, 500)),
			TransmissionJitter: int64(rng.RandInt(0, 100)),
		})
	}

	for idx := 0; idx < streamCount; idx += 1 {
		sender := rng.RandInt(0, nodeCount-1)
		receiver := rng.RandInt(0, nodeCount-2)
		if receiver >= sender {
			receiver += 1
		}
		td.Streams = append(td.Streams, StreamDesc{
			Name:               fmt.Sprintf("stream %d", idx),
			CycleTime:          cycles[rng.RandInt(0, len(cycles)-1)],
			Offset:             int64(rng.RandInt(0, 10000)),
			TransmissionWindow: int64(rng.RandInt(0, 10000)),
			FrameSize:          int64(rng.RandInt(64, 1500)),
			Sender:             fmt.Sprintf("node %d", sender),
			Receiver:           fmt.Sprintf("node %d", receiver),
			Priority:           rng.RandInt(0, 7),
		})
	}

	return td
}
