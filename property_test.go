package tsnlat

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/iti/rngstream"
)

// TestDelayModelProperties verifies invariants of the delay model that must
// hold on any topology, using randomized inputs rather than worked examples.
func TestDelayModelProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20

	properties := gopter.NewProperties(parameters)

	// Property 1: bounds are ordered and paths alternate on any topology
	// the generator can draw
	properties.Property("bounds stay ordered on random topologies", prop.ForAll(
		func(seed int64, nodeCount, streamCount int) bool {
			rng := rngstream.New(fmt.Sprintf("prop %d", seed))
			td := RandomTopoDesc(rng, nodeCount, streamCount)

			topo, err := BuildTopology(td)
			if err != nil {
				return false
			}

			for _, rslt := range CreateModel(topo, nil).Evaluate() {
				if rslt.Err != nil {
					// tight gates may reject a stream, which is a
					// result, not a model defect
					continue
				}
				if rslt.SummarizedBest < 0 || rslt.SummarizedWorst < rslt.SummarizedBest {
					return false
				}
				if len(rslt.DelaysPerPort)%2 != 0 {
					return false
				}
				for idx, hd := range rslt.DelaysPerPort {
					if (idx%2 == 0) != (hd.Hop.Dir == Egress) {
						return false
					}
					if hd.Bound.Best < 0 || hd.Bound.Worst < hd.Bound.Best {
						return false
					}
				}
			}
			return true
		},
		gen.Int64(),
		gen.IntRange(2, 8),
		gen.IntRange(0, 6),
	))

	// Property 2: granting the observed stream express treatment never
	// worsens its worst-case bound
	properties.Property("preemption never worsens the express stream", prop.ForAll(
		func(priority, crossStreams, switches int) bool {
			base := BenchCfg{
				Switches:     switches,
				CrossStreams: crossStreams,
				Priority:     priority,
			}
			express := base
			express.Preemption = true

			return benchWorst(t, express) <= benchWorst(t, base)
		},
		gen.IntRange(0, 7),
		gen.IntRange(1, 4),
		gen.IntRange(1, 3),
	))

	// Property 3: adding a competitor never lowers the busiest occupancy
	// on the observed path
	properties.Property("competition only raises occupancy", prop.ForAll(
		func(crossStreams int) bool {
			return benchMaxUtil(t, crossStreams) <= benchMaxUtil(t, crossStreams+1)
		},
		gen.IntRange(0, 5),
	))

	// Property 4: the transmission duration is the exact ceiling of the
	// wire time
	properties.Property("transmission time is a tight ceiling", prop.ForAll(
		func(sizeBytes, speedMbps int64) bool {
			d := txDuration(sizeBytes, speedMbps)
			return d*speedMbps >= sizeBytes*8000 && (d-1)*speedMbps < sizeBytes*8000
		},
		gen.Int64Range(1, 10000),
		gen.OneConstOf(int64(3), int64(7), int64(10), int64(100), int64(1000), int64(2500), int64(10000)),
	))

	properties.TestingRun(t)
}

// benchMaxUtil evaluates a bench with the given number of competitors per
// switch and reports the busiest egress occupancy on the observed path.
func benchMaxUtil(t *testing.T, crossStreams int) float64 {
	t.Helper()

	topo, err := BuildTopology(BuildBenchTopo(BenchCfg{Switches: 2, CrossStreams: crossStreams}))
	if err != nil {
		t.Fatal(err)
	}
	rslt := findResult(t, CreateModel(topo, nil).Evaluate(), "bench")
	if rslt.Err != nil {
		t.Fatal(rslt.Err)
	}

	maxUtil := 0.0
	for _, hd := range rslt.DelaysPerPort {
		if hd.Hop.Dir == Egress && hd.Bound.Utilization > maxUtil {
			maxUtil = hd.Bound.Utilization
		}
	}
	return maxUtil
}
