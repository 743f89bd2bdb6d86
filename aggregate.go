package tsnlat

// aggregate.go composes the per-hop delay bounds along each stream's
// resolved path into end-to-end results, and derives the arrival windows a
// receiver can expect.

import (
	"fmt"
	"sync"
)

// portDir keys the sharer registry: one direction of one port.
type portDir struct {
	port int
	dir  HopDir
}

// HopDelay pairs a hop with its computed bounds.
type HopDelay struct {
	Hop   Hop
	Bound DelayBound
}

// StreamResult is the evaluation outcome of one stream: summarized
// end-to-end bounds and the bounds of every hop in path order.  Err is set
// when the stream could not be evaluated, and the other fields are then
// empty.
type StreamResult struct {
	Stream          string
	SummarizedBest  int64
	SummarizedWorst int64
	DelaysPerPort   []HopDelay
	Err             error
}

// ArrivalWindow bounds the instants, relative to the start of a stream's
// transmission cycle, at which its frame can appear at one hop of the path.
type ArrivalWindow struct {
	Hop          Hop
	BestInstant  int64
	WorstInstant int64
}

// Model ties a topology to the resolved paths of its streams and computes
// delay bounds over them.  Construction resolves every path and registers
// which streams share each port, so bounds computed afterwards see the
// complete contention picture.  A Model is built per evaluation and shares
// no mutable state with any other, keeping runs reproducible.
type Model struct {
	topo *Topology
	rtr  *pathResolver
	tm   *EvalTraceManager

	// resolved path per stream, nil where resolution failed
	hops [][]Hop

	// resolution failure per stream
	resErr []error

	// stream indices whose paths traverse each port direction
	sharers map[portDir][]int
}

// CreateModel is a constructor.  It resolves the path of every stream of
// the topology, sequentially so the shortest-path tree cache fills
// deterministically, and indexes port sharing for the contention terms.  A
// nil trace manager disables term gathering.
func CreateModel(topo *Topology, tm *EvalTraceManager) *Model {
	mdl := &Model{
		topo:    topo,
		rtr:     createPathResolver(topo),
		tm:      tm,
		hops:    make([][]Hop, len(topo.streams)),
		resErr:  make([]error, len(topo.streams)),
		sharers: make(map[portDir][]int),
	}

	for strm := range topo.streams {
		hops, err := mdl.rtr.streamHops(strm)
		if err != nil {
			mdl.resErr[strm] = err
			continue
		}
		mdl.hops[strm] = hops
		for _, hop := range hops {
			key := portDir{port: hop.Port, dir: hop.Dir}
			mdl.sharers[key] = append(mdl.sharers[key], strm)
		}
	}

	return mdl
}

// Topology gives the runtime topology the model evaluates.
func (mdl *Model) Topology() *Topology {
	return mdl.topo
}

// evalStream walks one stream's path accumulating hop bounds into a
// result.  A hop error makes the whole stream's result an error; summaries
// of a partial path would be misleading.
func (mdl *Model) evalStream(strm int, tm *EvalTraceManager) StreamResult {
	topo := mdl.topo
	rslt := StreamResult{Stream: topo.streams[strm].name}

	if mdl.resErr[strm] != nil {
		rslt.Err = mdl.resErr[strm]
		return rslt
	}

	hops := mdl.hops[strm]
	rslt.DelaysPerPort = make([]HopDelay, 0, len(hops))
	for _, hop := range hops {
		var db DelayBound
		if hop.Dir == Egress {
			var err error
			db, err = egressBound(topo, strm, hop, mdl.sharers[portDir{port: hop.Port, dir: Egress}], tm)
			if err != nil {
				return StreamResult{Stream: rslt.Stream, Err: err}
			}
		} else {
			db = ingressBound(topo, strm, hop, tm)
		}
		rslt.SummarizedBest += db.Best
		rslt.SummarizedWorst += db.Worst
		rslt.DelaysPerPort = append(rslt.DelaysPerPort, HopDelay{Hop: hop, Bound: db})
	}

	return rslt
}

// Evaluate computes the bounds of every stream, one goroutine per stream
// writing into its own slot.  Results come back in stream description
// order; a stream that fails carries its error without affecting the
// others.
func (mdl *Model) Evaluate() []StreamResult {
	results := make([]StreamResult, len(mdl.topo.streams))

	var wg sync.WaitGroup
	for strm := range mdl.topo.streams {
		wg.Add(1)
		go func(strm int) {
			defer wg.Done()
			results[strm] = mdl.evalStream(strm, mdl.tm)
		}(strm)
	}
	wg.Wait()

	return results
}

// StreamHops gives the resolved path of the named stream.
func (mdl *Model) StreamHops(name string) ([]Hop, error) {
	strm, present := mdl.topo.streamByName[name]
	if !present {
		return nil, fmt.Errorf("unknown stream %q", name)
	}
	if mdl.resErr[strm] != nil {
		return nil, mdl.resErr[strm]
	}

	return mdl.hops[strm], nil
}

// ArrivalWindows computes, hop by hop, the earliest and latest instants at
// which the named stream's frame can appear there, relative to the start of
// the stream's cycle.  The earliest chain starts at the stream's offset;
// the latest additionally inherits the transmission window.  Terms are not
// traced here even on a tracing model, so a window query after Evaluate
// does not duplicate records.
func (mdl *Model) ArrivalWindows(name string) ([]ArrivalWindow, error) {
	strm, present := mdl.topo.streamByName[name]
	if !present {
		return nil, fmt.Errorf("unknown stream %q", name)
	}

	rslt := mdl.evalStream(strm, nil)
	if rslt.Err != nil {
		return nil, rslt.Err
	}

	ts := &mdl.topo.streams[strm]
	best := ts.offset
	worst := ts.offset + ts.transmissionWindow
	windows := make([]ArrivalWindow, 0, len(rslt.DelaysPerPort))
	for _, hd := range rslt.DelaysPerPort {
		best += hd.Bound.Best
		worst += hd.Bound.Worst
		windows = append(windows, ArrivalWindow{Hop: hd.Hop, BestInstant: best, WorstInstant: worst})
	}

	return windows, nil
}
