package tsnlat

import (
	"reflect"
	"strings"
	"testing"
)

// containsAll reports whether s contains every one of the argument substrings.
func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}

// buildSampleTopology builds the runtime form of the built-in example,
// failing the test on any construction error.
func buildSampleTopology(t *testing.T) *Topology {
	t.Helper()

	topo, err := BuildTopology(BuildSampleTopo())
	if err != nil {
		t.Fatalf("sample topology does not build: %v", err)
	}
	return topo
}

func TestPrioSet(t *testing.T) {
	ps := PrioSetOf([]int{6, 7})
	if !ps.Has(6) || !ps.Has(7) || ps.Has(5) {
		t.Errorf("membership of %s is wrong", ps)
	}
	if ps.Has(-1) || ps.Has(8) {
		t.Error("out-of-range priorities can never be members")
	}
	if ps.String() != "{6,7}" {
		t.Errorf("String() = %q, want {6,7}", ps.String())
	}
	if !reflect.DeepEqual(ps.Members(), []int{6, 7}) {
		t.Errorf("Members() = %v, want [6 7]", ps.Members())
	}

	if ps.AnyBelow(6) {
		t.Error("{6,7} admits nothing below 6")
	}
	if !ps.AnyBelow(7) {
		t.Error("{6,7} admits 6, which is below 7")
	}
	if PrioSetOf(nil).AnyBelow(7) {
		t.Error("the empty set admits nothing at all")
	}
	if allPrios.AnyBelow(0) {
		t.Error("nothing is below priority 0")
	}
	if !allPrios.AnyBelow(1) {
		t.Error("the full set admits 0, which is below 1")
	}
	if len(allPrios.Members()) != 8 {
		t.Errorf("the full set has %d members, want 8", len(allPrios.Members()))
	}

	// out-of-range inputs are dropped, not wrapped around
	if got := PrioSetOf([]int{9, -3, 2}); !reflect.DeepEqual(got.Members(), []int{2}) {
		t.Errorf("PrioSetOf with out-of-range input = %v, want [2]", got.Members())
	}
}

func TestBuildTopologySample(t *testing.T) {
	topo := buildSampleTopology(t)

	if topo.Name() != "a1" {
		t.Errorf("Name() = %q, want a1", topo.Name())
	}
	if topo.NumNodes() != 8 || len(topo.ports) != 14 || len(topo.edges) != 7 || topo.NumStreams() != 7 {
		t.Fatalf("arena sizes = %d nodes, %d ports, %d edges, %d streams; want 8, 14, 7, 7",
			topo.NumNodes(), len(topo.ports), len(topo.edges), topo.NumStreams())
	}

	node0 := &topo.nodes[topo.nodeByName["node 0"]]
	if node0.processingDelay != DefaultProcessingDelay || node0.processingJitter != DefaultProcessingJitter {
		t.Errorf("node 0 processing = %d/%d, want defaults", node0.processingDelay, node0.processingJitter)
	}
	if !node0.synced() || node0.syncJitter != DefaultSyncJitter {
		t.Error("node 0 belongs to a sync domain with the default jitter")
	}

	// the first port's gate offset is an explicit zero, not the default
	p00 := &topo.ports[topo.portByName[portKey("node 0", "0")]]
	if !p00.gcl || p00.gclOffset != 0 {
		t.Errorf("node 0 port 0 gate = %v offset %d, want enabled at explicit offset 0", p00.gcl, p00.gclOffset)
	}
	if p00.gclCycle != DefaultGclCycle || p00.gclOpen != sampleGateOpen {
		t.Errorf("node 0 port 0 schedule = %d/%d, want default cycle with %d open", p00.gclCycle, p00.gclOpen, sampleGateOpen)
	}
	if p00.gclPrios != allPrios {
		t.Errorf("an omitted admission list admits all priorities, got %s", p00.gclPrios)
	}

	p10 := &topo.ports[topo.portByName[portKey("node 1", "0")]]
	if p10.gclOffset != 40000 {
		t.Errorf("node 1 port 0 gate offset = %d, want 40000", p10.gclOffset)
	}

	p60 := &topo.ports[topo.portByName[portKey("node 6", "0")]]
	if p60.gcl {
		t.Error("node 6 port 0 carries no gate schedule")
	}
	if p60.admitted() != allPrios {
		t.Error("an ungated port admits every priority")
	}

	e0 := &topo.edges[0]
	if e0.linkSpeed != DefaultLinkSpeed || e0.maxFrameSize != DefaultMaxFrameSize {
		t.Errorf("edge 0 link = %d Mbit/s max %d bytes, want defaults", e0.linkSpeed, e0.maxFrameSize)
	}
	if e0.propagationDelay != 0 || e0.transmissionJitter != 0 {
		t.Error("edge 0 carries no propagation delay or jitter")
	}

	s1 := &topo.streams[topo.streamByName["Stream 1"]]
	if s1.frameSize != 500 || s1.priority != 6 || s1.cycleTime != 1000000 {
		t.Errorf("Stream 1 = %d bytes prio %d cycle %d", s1.frameSize, s1.priority, s1.cycleTime)
	}
	if s1.sender != topo.nodeByName["node 0"] || s1.receiver != topo.nodeByName["node 7"] {
		t.Error("Stream 1 endpoints resolve to the wrong nodes")
	}

	wantNames := []string{"Stream 1", "Stream 2", "Stream 3", "Stream 4", "Stream 5", "Stream 6", "Stream 7"}
	if !reflect.DeepEqual(topo.StreamNames(), wantNames) {
		t.Errorf("StreamNames() = %v", topo.StreamNames())
	}
}

func TestBuildTopologyExplicitValues(t *testing.T) {
	td := &TopoDesc{
		Name: "explicit",
		Nodes: []NodeDesc{
			{
				Name:             "a",
				ProcessingDelay:  nsPtr(0),
				ProcessingJitter: nsPtr(0),
				SyncJitter:       nsPtr(0),
				Ports: []PortDesc{{
					Name:              "p",
					FramePreemption:   true,
					ExpressPriorities: []int{7},
					Gcl:               true,
					GclCycle:          200000,
					GclOpen:           50000,
					GclOffset:         nsPtr(0),
					GclPriorities:     []int{5, 6, 7},
				}},
			},
			{Name: "b", Ports: []PortDesc{{Name: "p"}}},
		},
		Edges: []EdgeDesc{{
			Port1:              [2]string{"a", "p"},
			Port2:              [2]string{"b", "p"},
			LinkSpeed:          100,
			MaxFrameSize:       800,
			PropagationDelay:   250,
			TransmissionJitter: 40,
		}},
	}

	topo, err := BuildTopology(td)
	if err != nil {
		t.Fatalf("BuildTopology: %v", err)
	}

	a := &topo.nodes[topo.nodeByName["a"]]
	if a.processingDelay != 0 || a.processingJitter != 0 || a.syncJitter != 0 {
		t.Error("explicit zeros must not be replaced by defaults")
	}
	if a.synced() {
		t.Error("a node without a sync domain is unsynchronized")
	}

	p := &topo.ports[topo.portByName[portKey("a", "p")]]
	if !p.framePreemption || !p.express.Has(7) || p.express.Has(6) {
		t.Error("preemption setup lost in translation")
	}
	if p.gclCycle != 200000 || p.gclOpen != 50000 || p.gclOffset != 0 {
		t.Errorf("gate schedule = %d/%d/%d", p.gclCycle, p.gclOpen, p.gclOffset)
	}
	if p.gclPrios.Has(4) || !p.gclPrios.Has(5) {
		t.Errorf("gate admission = %s, want {5,6,7}", p.gclPrios)
	}
	if p.admitted() != p.gclPrios {
		t.Error("a gated port admits exactly its gate set")
	}

	e := &topo.edges[0]
	if e.linkSpeed != 100 || e.maxFrameSize != 800 || e.propagationDelay != 250 || e.transmissionJitter != 40 {
		t.Errorf("edge attributes lost: %+v", e)
	}
}

// twoNodeDoc gives a minimal valid document for corruption by the rejection
// table below.
func twoNodeDoc() *TopoDesc {
	return &TopoDesc{
		Name: "pair",
		Nodes: []NodeDesc{
			{Name: "a", Ports: []PortDesc{{Name: "p"}, {Name: "q"}}},
			{Name: "b", Ports: []PortDesc{{Name: "p"}}},
		},
		Edges: []EdgeDesc{{Port1: [2]string{"a", "p"}, Port2: [2]string{"b", "p"}}},
		Streams: []StreamDesc{
			{Name: "s", CycleTime: 1000000, FrameSize: 64, Sender: "a", Receiver: "b"},
		},
	}
}

func TestBuildTopologyRejects(t *testing.T) {
	if _, err := BuildTopology(twoNodeDoc()); err != nil {
		t.Fatalf("the base document must build: %v", err)
	}

	cases := []struct {
		label  string
		mangle func(td *TopoDesc)
	}{
		{"duplicate node name", func(td *TopoDesc) {
			td.Nodes = append(td.Nodes, NodeDesc{Name: "a"})
		}},
		{"duplicate port name", func(td *TopoDesc) {
			td.Nodes[1].Ports = append(td.Nodes[1].Ports, PortDesc{Name: "p"})
		}},
		{"duplicate stream name", func(td *TopoDesc) {
			td.Streams = append(td.Streams, StreamDesc{Name: "s", CycleTime: 1, FrameSize: 1, Sender: "a", Receiver: "b"})
		}},
		{"node name with reserved separator", func(td *TopoDesc) {
			td.Nodes[0].Name = "a-1"
		}},
		{"port name with reserved separator", func(td *TopoDesc) {
			td.Nodes[0].Ports[0].Name = "p-1"
		}},
		{"stream name with reserved separator", func(td *TopoDesc) {
			td.Streams[0].Name = "s-1"
		}},
		{"edge endpoint on unknown node", func(td *TopoDesc) {
			td.Edges[0].Port2 = [2]string{"zz", "p"}
		}},
		{"edge endpoint on unknown port", func(td *TopoDesc) {
			td.Edges[0].Port2 = [2]string{"b", "zz"}
		}},
		{"edge joining a port to itself", func(td *TopoDesc) {
			td.Edges[0].Port2 = td.Edges[0].Port1
		}},
		{"edge joining two ports of one node", func(td *TopoDesc) {
			td.Edges[0].Port2 = [2]string{"a", "q"}
		}},
		{"port attached to two edges", func(td *TopoDesc) {
			td.Nodes = append(td.Nodes, NodeDesc{Name: "c", Ports: []PortDesc{{Name: "p"}}})
			td.Edges = append(td.Edges, EdgeDesc{Port1: [2]string{"a", "p"}, Port2: [2]string{"c", "p"}})
		}},
		{"gate open exceeds cycle", func(td *TopoDesc) {
			td.Nodes[0].Ports[0].Gcl = true
			td.Nodes[0].Ports[0].GclCycle = 1000
			td.Nodes[0].Ports[0].GclOpen = 2000
			td.Nodes[0].Ports[0].GclOffset = nsPtr(0)
		}},
		{"gate offset outside cycle", func(td *TopoDesc) {
			td.Nodes[0].Ports[0].Gcl = true
			td.Nodes[0].Ports[0].GclOffset = nsPtr(DefaultGclCycle)
		}},
		{"unknown sender", func(td *TopoDesc) {
			td.Streams[0].Sender = "zz"
		}},
		{"unknown receiver", func(td *TopoDesc) {
			td.Streams[0].Receiver = "zz"
		}},
	}

	for _, cs := range cases {
		td := twoNodeDoc()
		cs.mangle(td)

		topo, err := BuildTopology(td)
		if err == nil {
			t.Errorf("%s: not rejected", cs.label)
			continue
		}
		if topo != nil {
			t.Errorf("%s: a failed build must not return a partial topology", cs.label)
		}
		if kind, ok := KindOf(err); !ok || kind != InvalidTopology {
			t.Errorf("%s: kind = %v, want InvalidTopology", cs.label, err)
		}
	}
}

func TestBuildTopologyAggregatesProblems(t *testing.T) {
	td := twoNodeDoc()
	td.Streams[0].Sender = "zz"
	td.Streams[0].Receiver = "yy"

	_, err := BuildTopology(td)
	if err == nil {
		t.Fatal("two dangling endpoints must be rejected")
	}
	ee, ok := err.(*EvalError)
	if !ok {
		t.Fatalf("error type %T, want *EvalError", err)
	}
	if !containsAll(ee.Detail, `"zz"`, `"yy"`) {
		t.Errorf("both problems belong in one report, got %q", ee.Detail)
	}
}
