package tsnlat

import (
	"testing"

	"github.com/iti/rngstream"
)

func TestBuildSampleTopoDoc(t *testing.T) {
	td := BuildSampleTopo()

	if err := td.Validate(); err != nil {
		t.Fatalf("the sample document must validate: %v", err)
	}
	if len(td.Nodes) != 8 || len(td.Edges) != 7 || len(td.Streams) != 7 {
		t.Errorf("sample holds %d nodes, %d edges, %d streams", len(td.Nodes), len(td.Edges), len(td.Streams))
	}

	// the first sender's gate opens at cycle start, spelled out rather
	// than defaulted
	off := td.Nodes[0].Ports[0].GclOffset
	if off == nil || *off != 0 {
		t.Error("node 0 carries an explicit zero gate offset")
	}
	if got := td.Nodes[1].Ports[0].GclOffset; got == nil || *got != 40000 {
		t.Error("node 1 staggers its gate by 40000")
	}

	for _, nd := range td.Nodes[6:] {
		for _, pd := range nd.Ports {
			if pd.Gcl {
				t.Errorf("end node %s must stay unscheduled", nd.Name)
			}
		}
	}
	for _, sd := range td.Streams {
		if sd.CycleTime != 1000000 {
			t.Errorf("%s: cycle %d", sd.Name, sd.CycleTime)
		}
	}
}

func TestBuildBenchTopoDefaults(t *testing.T) {
	td := BuildBenchTopo(BenchCfg{})

	if len(td.Nodes) != 4 || len(td.Edges) != 3 || len(td.Streams) != 1 {
		t.Fatalf("default bench holds %d nodes, %d edges, %d streams", len(td.Nodes), len(td.Edges), len(td.Streams))
	}

	topo, err := BuildTopology(td)
	if err != nil {
		t.Fatal(err)
	}
	rslt := findResult(t, CreateModel(topo, nil).Evaluate(), "bench")
	if rslt.Err != nil {
		t.Fatal(rslt.Err)
	}

	// two uncontended priority 0 egresses plus two synchronized ingresses
	if rslt.SummarizedBest != 10420 || rslt.SummarizedWorst != 10580 {
		t.Errorf("summary %d/%d, want 10420/10580", rslt.SummarizedBest, rslt.SummarizedWorst)
	}
}

func TestBuildBenchTopoCrossTraffic(t *testing.T) {
	cfg := BenchCfg{
		Switches:     2,
		CrossStreams: 2,
		Priority:     6,
		Gated:        true,
		Preemption:   true,
	}
	td := BuildBenchTopo(cfg)

	// talker, two switches with their sources, listener
	if len(td.Nodes) != 6 || len(td.Streams) != 5 {
		t.Fatalf("bench holds %d nodes, %d streams", len(td.Nodes), len(td.Streams))
	}

	crosses := 0
	for _, sd := range td.Streams {
		if sd.Name != "bench" {
			crosses++
			if sd.Priority != 7 || sd.FrameSize != 1518 || sd.Receiver != "listener" {
				t.Errorf("cross stream %s: prio %d size %d to %s", sd.Name, sd.Priority, sd.FrameSize, sd.Receiver)
			}
		}
	}
	if crosses != 4 {
		t.Errorf("%d cross streams, want 4", crosses)
	}

	topo, err := BuildTopology(td)
	if err != nil {
		t.Fatal(err)
	}
	rslt := findResult(t, CreateModel(topo, nil).Evaluate(), "bench")
	if rslt.Err != nil {
		t.Fatal(rslt.Err)
	}
	if rslt.SummarizedBest <= 0 || rslt.SummarizedWorst < rslt.SummarizedBest {
		t.Errorf("summary %d/%d out of order", rslt.SummarizedBest, rslt.SummarizedWorst)
	}
}

func benchWorst(t *testing.T, cfg BenchCfg) int64 {
	t.Helper()

	topo, err := BuildTopology(BuildBenchTopo(cfg))
	if err != nil {
		t.Fatal(err)
	}
	rslt := findResult(t, CreateModel(topo, nil).Evaluate(), "bench")
	if rslt.Err != nil {
		t.Fatal(rslt.Err)
	}
	return rslt.SummarizedWorst
}

func TestBuildBenchTopoContentionGrows(t *testing.T) {
	short := benchWorst(t, BenchCfg{Switches: 2, CrossStreams: 2})
	long := benchWorst(t, BenchCfg{Switches: 4, CrossStreams: 2})
	if long <= short {
		t.Errorf("four switches bound %d, two switches bound %d", long, short)
	}
}

func TestRandomTopoDesc(t *testing.T) {
	rng := rngstream.New("topo gen test")
	td := RandomTopoDesc(rng, 6, 4)

	if err := td.Validate(); err != nil {
		t.Fatalf("a generated document must validate: %v", err)
	}
	if len(td.Nodes) != 6 || len(td.Edges) != 5 || len(td.Streams) != 4 {
		t.Fatalf("generated %d nodes, %d edges, %d streams", len(td.Nodes), len(td.Edges), len(td.Streams))
	}

	for _, sd := range td.Streams {
		if sd.Sender == sd.Receiver {
			t.Errorf("%s: sender and receiver coincide", sd.Name)
		}
		if sd.Priority < 0 || sd.Priority > 7 {
			t.Errorf("%s: priority %d", sd.Name, sd.Priority)
		}
		if sd.FrameSize < 64 || sd.FrameSize > 1500 {
			t.Errorf("%s: frame size %d", sd.Name, sd.FrameSize)
		}
	}

	topo, err := BuildTopology(td)
	if err != nil {
		t.Fatal(err)
	}
	results := CreateModel(topo, nil).Evaluate()
	if len(results) != 4 {
		t.Fatalf("%d results", len(results))
	}
	// a line topology always connects, but tight gates may still reject a
	// stream; anything else is a generator defect
	for _, rslt := range results {
		if rslt.Err == nil {
			continue
		}
		if kind, ok := KindOf(rslt.Err); !ok || kind == PathNotFound || kind == InvalidTopology {
			t.Errorf("%s: %v", rslt.Stream, rslt.Err)
		}
	}
}

func TestRandomTopoDescClamps(t *testing.T) {
	rng := rngstream.New("topo gen clamp test")
	td := RandomTopoDesc(rng, 0, -5)

	if len(td.Nodes) != 2 || len(td.Edges) != 1 || len(td.Streams) != 0 {
		t.Errorf("clamped document holds %d nodes, %d edges, %d streams",
			len(td.Nodes), len(td.Edges), len(td.Streams))
	}
	if _, err := BuildTopology(td); err != nil {
		t.Error(err)
	}
}
