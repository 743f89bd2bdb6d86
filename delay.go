package tsnlat

// delay.go computes the delay bounds of single hops: the time a frame needs
// to enter a node from a link (ingress) and the time it needs to win and
// cross the link leaving one (egress).  All results are nanoseconds.

import (
	"fmt"
	"math"
)

// Wire overhead added to every frame: preamble (7), start frame delimiter
// (1), interframe gap (12).
const frameOverheadBytes = 20

// Smallest trailing fragment an interrupted preemptable frame can leave on
// the wire before an express frame proceeds.
const preemptFragmentBytes = 123

// DelayBound carries the best-case and worst-case delay of one hop, plus
// the port's resource utilization when the hop is an egress.
type DelayBound struct {
	Best        int64
	Worst       int64
	Utilization float64
}

// txDuration gives the time a frame of sizeBytes occupies a link running at
// speedMbps, rounded up to a whole nanosecond.  sizeBytes carries 8000
// link-speed-units per byte when the speed is in Mbit/s and the result in ns.
func txDuration(sizeBytes, speedMbps int64) int64 {
	return (sizeBytes*8000 + speedMbps - 1) / speedMbps
}

// wireBytes gives the on-wire size of a frame including framing overhead.
func wireBytes(frameSize int64) int64 {
	return frameSize + frameOverheadBytes
}

// ingressBound computes the delay of entering a node through a port: the
// link's propagation time plus the node's forwarding time in the best case,
// widened by transmission, processing, and clock uncertainties in the worst.
// Clock uncertainty applies only to nodes inside a synchronization domain.
func ingressBound(topo *Topology, strm int, hop Hop, tm *EvalTraceManager) DelayBound {
	tn := &topo.nodes[hop.Node]
	tp := &topo.ports[hop.Port]
	te := &topo.edges[tp.edge]

	db := DelayBound{
		Best:  te.propagationDelay + tn.processingDelay,
		Worst: te.propagationDelay + te.transmissionJitter + tn.processingDelay + tn.processingJitter,
	}
	if tn.synced() {
		db.Worst += tn.syncJitter
	}

	if tm.Active() {
		strmName := topo.streams[strm].name
		tm.AddTerm(strmName, tn.name, tp.name, hop.Dir, "propagation", te.propagationDelay, te.propagationDelay)
		tm.AddTerm(strmName, tn.name, tp.name, hop.Dir, "processing", tn.processingDelay, tn.processingDelay+tn.processingJitter)
		tm.AddTerm(strmName, tn.name, tp.name, hop.Dir, "transmissionJitter", 0, te.transmissionJitter)
		if tn.synced() {
			tm.AddTerm(strmName, tn.name, tp.name, hop.Dir, "syncJitter", 0, tn.syncJitter)
		}
	}

	return db
}

// egressBound computes the delay of winning and crossing the link leaving a
// node through a port.  The best case is the bare transmission time; the
// worst case adds head-of-line blocking by a frame already on the wire,
// interference from every rival stream that can hold the port first, and
// for gated ports the remainder of the gate cycle.  competitors lists the
// streams whose resolved paths also egress this port; filtering down to the
// rivals that can actually delay strm happens here.
func egressBound(topo *Topology, strm int, hop Hop, competitors []int, tm *EvalTraceManager) (DelayBound, error) {
	ts := &topo.streams[strm]
	tn := &topo.nodes[hop.Node]
	tp := &topo.ports[hop.Port]
	te := &topo.edges[tp.edge]

	evalErr := func(kind ErrorKind, format string, args ...any) error {
		return &EvalError{
			Kind:   kind,
			Stream: ts.name,
			Node:   tn.name,
			Port:   tp.name,
			Detail: fmt.Sprintf(format, args...),
		}
	}

	if ts.priority < 0 || ts.priority > 7 {
		return DelayBound{}, evalErr(InvalidPriority, "priority %d outside 0-7", ts.priority)
	}
	if tp.gcl && !tp.gclPrios.Has(ts.priority) {
		return DelayBound{}, evalErr(InvalidPriority, "priority %d never admitted by gate set %s", ts.priority, tp.gclPrios)
	}
	if ts.frameSize > te.maxFrameSize {
		return DelayBound{}, evalErr(PortOverflow, "frame of %d bytes exceeds link maximum %d", ts.frameSize, te.maxFrameSize)
	}

	tx := txDuration(wireBytes(ts.frameSize), te.linkSpeed)
	if tp.gcl && tx > tp.gclOpen {
		return DelayBound{}, evalErr(PortOverflow, "transmission needs %d ns but the gate opens for %d ns", tx, tp.gclOpen)
	}

	express := tp.framePreemption && tp.express.Has(ts.priority)

	// a lower-priority frame that has already seized the wire cannot be
	// displaced, only preempted down to its minimum fragment
	var blocking int64
	if tp.admitted().AnyBelow(ts.priority) {
		if express {
			blocking = txDuration(wireBytes(preemptFragmentBytes), te.linkSpeed)
		} else {
			blocking = txDuration(wireBytes(te.maxFrameSize), te.linkSpeed)
		}
	}

	rivals := egressRivals(topo, strm, tp, competitors)
	var interference int64
	for _, rival := range rivals {
		interference += txDuration(wireBytes(topo.streams[rival].frameSize), te.linkSpeed) + te.transmissionJitter
	}

	// the frame can arrive just as the gate shuts and sit out the rest of
	// the cycle
	var gateWait int64
	if tp.gcl {
		gateWait = tp.gclCycle - tp.gclOpen
	}

	db := DelayBound{
		Best:        tx,
		Worst:       tx + blocking + interference + gateWait,
		Utilization: egressUtilization(topo, strm, tp, te, rivals),
	}

	if tm.Active() {
		tm.AddTerm(ts.name, tn.name, tp.name, hop.Dir, "transmission", tx, tx)
		tm.AddTerm(ts.name, tn.name, tp.name, hop.Dir, "blocking", 0, blocking)
		tm.AddTerm(ts.name, tn.name, tp.name, hop.Dir, "interference", 0, interference)
		if tp.gcl {
			tm.AddTerm(ts.name, tn.name, tp.name, hop.Dir, "gateWait", 0, gateWait)
		}
	}

	return db, nil
}

// egressRivals filters the streams sharing an egress port down to the ones
// able to delay the argument stream: priority at least as high, admitted by
// the gate when one runs, and express members when the stream itself rides
// the preemption bypass.
func egressRivals(topo *Topology, strm int, tp *topoPort, competitors []int) []int {
	ts := &topo.streams[strm]
	express := tp.framePreemption && tp.express.Has(ts.priority)

	rivals := make([]int, 0, len(competitors))
	for _, other := range competitors {
		if other == strm {
			continue
		}
		os := &topo.streams[other]
		if os.priority < ts.priority {
			continue
		}
		if tp.gcl && !tp.gclPrios.Has(os.priority) {
			continue
		}
		if express && !tp.express.Has(os.priority) {
			continue
		}
		rivals = append(rivals, other)
	}

	return rivals
}

// egressUtilization computes the fraction of the port's usable transmission
// capacity consumed by the stream and its rivals.  The accounting window is
// the least common multiple of the class's cycle times, folded with the
// gate cycle under time-aware shaping, so every member contributes a whole
// number of frames.  Should that window overflow an int64 the per-cycle
// rates are summed directly, computing the same ratio.  The result is not
// clamped: values at or above 1 report over-subscription.
func egressUtilization(topo *Topology, strm int, tp *topoPort, te *topoEdge, rivals []int) float64 {
	class := make([]int, 0, len(rivals)+1)
	class = append(class, strm)
	class = append(class, rivals...)

	window := int64(1)
	exact := true
	for _, member := range class {
		window, exact = lcm64(window, topo.streams[member].cycleTime)
		if !exact {
			break
		}
	}
	if exact && tp.gcl {
		window, exact = lcm64(window, tp.gclCycle)
	}

	if !exact {
		rate := 0.0
		for _, member := range class {
			ms := &topo.streams[member]
			cost := float64(txDuration(wireBytes(ms.frameSize), te.linkSpeed) + te.transmissionJitter)
			rate += cost / float64(ms.cycleTime)
		}
		if tp.gcl {
			return rate * float64(tp.gclCycle) / float64(tp.gclOpen)
		}
		return rate
	}

	occupancy := 0.0
	for _, member := range class {
		ms := &topo.streams[member]
		frames := float64(window / ms.cycleTime)
		occupancy += frames * float64(txDuration(wireBytes(ms.frameSize), te.linkSpeed)+te.transmissionJitter)
	}

	available := float64(window)
	if tp.gcl {
		available = float64(window/tp.gclCycle) * float64(tp.gclOpen)
	}

	return occupancy / available
}

// gcd64 is Euclid's algorithm on positive arguments.
func gcd64(a, b int64) int64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// lcm64 gives the least common multiple of two positive numbers and reports
// whether it fit an int64.
func lcm64(a, b int64) (int64, bool) {
	quot := a / gcd64(a, b)
	if quot > math.MaxInt64/b {
		return 0, false
	}
	return quot * b, true
}
