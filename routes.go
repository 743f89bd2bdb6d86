package tsnlat

// routes.go provides functions to resolve the port-level path a stream
// follows from its sender to its receiver.

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
)

// The approach is to convert the node-to-node connectivity of a Topology
// into the data structures used by a graph package that has built-in path
// discovery algorithms.  Weighting each edge by 1, a shortest path minimizes
// the number of traversed links.  The Dijkstra algorithm computes a tree of
// shortest paths from a source node; trees are cached per resolver so the
// streams of one evaluation sharing a sender share the computation.  A tree
// only gives distances, so the path itself is recovered by walking back from
// the receiver, at every step taking the neighbor that lies one link closer
// to the sender.  When several neighbors qualify (equal-length alternatives)
// the one whose transmitting (node name, port name) pair sorts lowest wins,
// which keeps the choice stable across runs and processes.  Once the node
// sequence is known the edge used by each step identifies the two ports
// involved: the path is reported as alternating egress and ingress hops.

// Hop is one port traversal on a stream's path: leaving a node through a
// port (egress) or entering one (ingress).  Node and Port index into the
// topology's arenas.
type Hop struct {
	Node int
	Port int
	Dir  HopDir
}

// HopDir distinguishes the receiving and transmitting side of a link.
type HopDir int

const (
	// Ingress is the receiving side of a link
	Ingress HopDir = iota

	// Egress is the transmitting side of a link
	Egress
)

// String renders the direction the way result documents spell it.
func (hd HopDir) String() string {
	if hd == Egress {
		return "tx"
	}
	return "rx"
}

type intPair struct {
	i, j int
}

// adjStep records one link leaving a node: the neighbor it reaches and the
// edge that carries it.
type adjStep struct {
	nbr  int
	edge int
}

// pathResolver owns the graph form of one topology and the caches of
// shortest-path trees and resolved routes.  A resolver belongs to a single
// evaluation, so nothing here outlives or leaks between runs.
type pathResolver struct {
	topo      *Topology
	gNodes    map[int]simple.Node
	connGraph *simple.WeightedUndirectedGraph

	// adjacency lists sorted by the tie-break order, one per node
	adj [][]adjStep

	// cachedSP saves computed shortest-path trees keyed by their root node
	cachedSP map[int]path.Shortest

	// routeCache saves resolved edge sequences keyed by endpoint pair
	routeCache map[intPair][]int
}

// createPathResolver builds the graph representation of the topology and
// primes the caches.
func createPathResolver(topo *Topology) *pathResolver {
	rtr := &pathResolver{
		topo:       topo,
		gNodes:     make(map[int]simple.Node),
		connGraph:  simple.NewWeightedUndirectedGraph(0, math.Inf(1)),
		adj:        make([][]adjStep, len(topo.nodes)),
		cachedSP:   make(map[int]path.Shortest),
		routeCache: make(map[intPair][]int),
	}

	for idx := range topo.nodes {
		rtr.gNodes[idx] = simple.Node(idx)
	}

	// every edge contributes one weight-1 graph edge and two adjacency steps
	for idx := range topo.edges {
		te := &topo.edges[idx]
		n1 := topo.ports[te.port1].node
		n2 := topo.ports[te.port2].node
		rtr.connGraph.SetWeightedEdge(simple.WeightedEdge{F: rtr.gNodes[n1], T: rtr.gNodes[n2], W: 1.0})
		rtr.adj[n1] = append(rtr.adj[n1], adjStep{nbr: n2, edge: idx})
		rtr.adj[n2] = append(rtr.adj[n2], adjStep{nbr: n1, edge: idx})
	}

	// order each adjacency list by (neighbor name, neighbor-side port name)
	// so route reconstruction breaks ties the same way every time
	for node := range rtr.adj {
		slices.SortFunc(rtr.adj[node], func(a, b adjStep) int {
			cmp := strings.Compare(topo.nodes[a.nbr].name, topo.nodes[b.nbr].name)
			if cmp != 0 {
				return cmp
			}
			aPort := topo.edgePortAt(a.edge, a.nbr)
			bPort := topo.edgePortAt(b.edge, b.nbr)
			return strings.Compare(topo.ports[aPort].name, topo.ports[bPort].name)
		})
	}

	return rtr
}

// getSPTree returns the shortest path tree rooted in input argument 'from'.
// If the tree is found in the cache it is returned, if not it is computed,
// saved, and returned.
func (rtr *pathResolver) getSPTree(from int) path.Shortest {
	spTree, present := rtr.cachedSP[from]
	if present {
		return spTree
	}

	spTree = path.DijkstraFrom(rtr.gNodes[from], rtr.connGraph)
	rtr.cachedSP[from] = spTree

	return spTree
}

// nodeRoute resolves the sequence of edges a frame crosses from src to dst,
// reporting failure when the graph does not connect them.  Successes are
// cached; failures are cheap enough to rediscover.
func (rtr *pathResolver) nodeRoute(src, dst int) ([]int, bool) {
	pr := intPair{i: src, j: dst}
	steps, present := rtr.routeCache[pr]
	if present {
		return steps, true
	}

	spTree := rtr.getSPTree(src)
	if math.IsInf(spTree.WeightTo(int64(dst)), 1) {
		return nil, false
	}

	// walk back from dst; edge weights are whole numbers so the float
	// comparison below is exact
	steps = make([]int, 0)
	here := dst
	for here != src {
		distHere := spTree.WeightTo(int64(here))
		advanced := false
		for _, stp := range rtr.adj[here] {
			if spTree.WeightTo(int64(stp.nbr)) == distHere-1.0 {
				steps = append(steps, stp.edge)
				here = stp.nbr
				advanced = true
				break
			}
		}
		if !advanced {
			// unreachable on a consistent tree, treated as no path
			return nil, false
		}
	}
	slices.Reverse(steps)

	rtr.routeCache[pr] = steps
	return steps, true
}

// streamHops resolves the full port-level path of one stream.  Each edge on
// the node route becomes two hops, the egress port on the transmitting side
// followed by the ingress port on the receiving side.
func (rtr *pathResolver) streamHops(strm int) ([]Hop, error) {
	topo := rtr.topo
	ts := &topo.streams[strm]

	if ts.sender == ts.receiver {
		return nil, &EvalError{
			Kind:   PathNotFound,
			Stream: ts.name,
			Detail: fmt.Sprintf("sender and receiver are both %q", topo.nodes[ts.sender].name),
		}
	}

	steps, connected := rtr.nodeRoute(ts.sender, ts.receiver)
	if !connected {
		return nil, &EvalError{
			Kind:   PathNotFound,
			Stream: ts.name,
			Detail: fmt.Sprintf("no path from %q to %q", topo.nodes[ts.sender].name, topo.nodes[ts.receiver].name),
		}
	}

	hops := make([]Hop, 0, 2*len(steps))
	here := ts.sender
	for _, edge := range steps {
		peer := topo.edgePeer(edge, here)
		hops = append(hops, Hop{Node: here, Port: topo.edgePortAt(edge, here), Dir: Egress})
		hops = append(hops, Hop{Node: peer, Port: topo.edgePortAt(edge, peer), Dir: Ingress})
		here = peer
	}

	return hops, nil
}
