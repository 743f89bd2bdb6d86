package tsnlat

// report.go carries evaluation results in their serializable form and
// renders the analysis views built on top of them.

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"

	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"
)

// PortDelayDesc is the serializable delay bound of one hop.
// ResourceUtilization is meaningful on tx rows only and is omitted on rx
// rows.
type PortDelayDesc struct {
	Node                string  `json:"node" yaml:"node"`
	Port                string  `json:"port" yaml:"port"`
	Direction           string  `json:"direction" yaml:"direction"`
	BestCaseDelay       int64   `json:"bestCaseDelay" yaml:"bestCaseDelay"`
	WorstCaseDelay      int64   `json:"worstCaseDelay" yaml:"worstCaseDelay"`
	ResourceUtilization float64 `json:"resourceUtilization,omitempty" yaml:"resourceUtilization,omitempty"`
}

// StreamResultDesc is the serializable evaluation outcome of one stream.
// Error carries the failure text of a stream that could not be evaluated;
// its bounds are then absent.
type StreamResultDesc struct {
	Name                     string          `json:"name" yaml:"name"`
	SummarizedBestCaseDelay  int64           `json:"summarizedBestCaseDelay" yaml:"summarizedBestCaseDelay"`
	SummarizedWorstCaseDelay int64           `json:"summarizedWorstCaseDelay" yaml:"summarizedWorstCaseDelay"`
	Error                    string          `json:"error,omitempty" yaml:"error,omitempty"`
	DelaysPerPort            []PortDelayDesc `json:"delaysPerPort" yaml:"delaysPerPort"`
}

// ResultDesc is the serializable outcome of one whole evaluation, the
// document an evaluation run writes out.
type ResultDesc struct {
	TopologyName string             `json:"topologyName" yaml:"topologyName"`
	Streams      []StreamResultDesc `json:"streams" yaml:"streams"`
}

// round4 trims a utilization for reporting.
func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// BuildResultDesc transforms in-memory evaluation results into their
// serializable form, resolving arena indices back to names.  Utilization is
// reported on egress rows only, rounded to four decimals.
func (mdl *Model) BuildResultDesc(results []StreamResult) *ResultDesc {
	topo := mdl.topo
	rd := &ResultDesc{
		TopologyName: topo.name,
		Streams:      make([]StreamResultDesc, 0, len(results)),
	}

	for _, rslt := range results {
		srd := StreamResultDesc{Name: rslt.Stream}
		if rslt.Err != nil {
			srd.Error = rslt.Err.Error()
			rd.Streams = append(rd.Streams, srd)
			continue
		}

		srd.SummarizedBestCaseDelay = rslt.SummarizedBest
		srd.SummarizedWorstCaseDelay = rslt.SummarizedWorst
		srd.DelaysPerPort = make([]PortDelayDesc, 0, len(rslt.DelaysPerPort))
		for _, hd := range rslt.DelaysPerPort {
			pdd := PortDelayDesc{
				Node:           topo.nodes[hd.Hop.Node].name,
				Port:           topo.ports[hd.Hop.Port].name,
				Direction:      hd.Hop.Dir.String(),
				BestCaseDelay:  hd.Bound.Best,
				WorstCaseDelay: hd.Bound.Worst,
			}
			if hd.Hop.Dir == Egress {
				pdd.ResourceUtilization = round4(hd.Bound.Utilization)
			}
			srd.DelaysPerPort = append(srd.DelaysPerPort, pdd)
		}
		rd.Streams = append(rd.Streams, srd)
	}

	return rd
}

// ReadResultDesc deserializes a slice of bytes into a ResultDesc.  If the
// input arg of bytes is empty, the file whose name is given as an argument
// is read.  Error returned if any part of the process generates the error.
func ReadResultDesc(resultFileName string, useYAML bool, dict []byte) (*ResultDesc, error) {
	var err error

	if len(dict) == 0 {
		dict, err = os.ReadFile(resultFileName)
		if err != nil {
			return nil, err
		}
	}

	example := ResultDesc{}

	if useYAML {
		err = yaml.Unmarshal(dict, &example)
	} else {
		err = json.Unmarshal(dict, &example)
	}

	if err != nil {
		return nil, err
	}

	return &example, nil
}

// WriteToFile serializes the ResultDesc and writes to the file whose name
// is given as an input argument.  Extension of the file name selects
// whether serialization is to json or to yaml format.
func (rd *ResultDesc) WriteToFile(filename string) error {
	bytes, err := marshalByExt(filename, rd)
	if err != nil {
		return err
	}

	return os.WriteFile(filename, bytes, 0644)
}

// Scenario selects one of the analysis views rendered on top of an
// evaluation.  The set is closed; anything else is rejected up front.
type Scenario int

const (
	// NoScenario renders nothing
	NoScenario Scenario = iota

	// ArrivalWindowScenario tabulates the cumulative arrival window of
	// one stream hop by hop
	ArrivalWindowScenario

	// CongestionScenario tabulates the occupancy of the egress ports one
	// stream crosses
	CongestionScenario

	// InefficientTransScenario ranks the hops of one stream by their
	// worst-case delay
	InefficientTransScenario
)

func (sc Scenario) String() string {
	switch sc {
	case ArrivalWindowScenario:
		return "arrival_window"
	case CongestionScenario:
		return "congestion"
	case InefficientTransScenario:
		return "inefficient_trans"
	}

	return "none"
}

// ScenarioFromStr maps a configuration string to a Scenario.  The empty
// string and "none" select no view.
func ScenarioFromStr(name string) (Scenario, error) {
	switch name {
	case "", "none":
		return NoScenario, nil
	case "arrival_window":
		return ArrivalWindowScenario, nil
	case "congestion":
		return CongestionScenario, nil
	case "inefficient_trans":
		return InefficientTransScenario, nil
	}

	return NoScenario, fmt.Errorf("unknown scenario %q", name)
}

const (
	ruleWide   = "----------------------------------------"
	ruleNarrow = "-----------------------------------"
)

// rowLabel names a table row after the hop's node and direction, joined by
// the reserved separator.
func rowLabel(topo *Topology, hop Hop) string {
	return topo.nodes[hop.Node].name + NameSeparator + hop.Dir.String()
}

// RenderScenario writes the selected analysis view of the focus stream to
// w.  The focus stream must have evaluated cleanly; its error is forwarded
// otherwise.
func RenderScenario(w io.Writer, sc Scenario, mdl *Model, results []StreamResult, focus string) error {
	if sc == NoScenario {
		return nil
	}

	var focused *StreamResult
	for idx := range results {
		if results[idx].Stream == focus {
			focused = &results[idx]
			break
		}
	}
	if focused == nil {
		return fmt.Errorf("scenario %s: no result for stream %q", sc, focus)
	}
	if focused.Err != nil {
		return focused.Err
	}

	switch sc {
	case ArrivalWindowScenario:
		return renderArrivalWindow(w, mdl, focus)
	case CongestionScenario:
		return renderCongestion(w, mdl, focused)
	case InefficientTransScenario:
		return renderInefficientTrans(w, mdl, focused)
	}

	return nil
}

// renderArrivalWindow tabulates the instants at which the stream's frame
// can appear at each hop, earliest and latest.
func renderArrivalWindow(w io.Writer, mdl *Model, focus string) error {
	windows, err := mdl.ArrivalWindows(focus)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "\n\nArrival Window Calculation: (Topology %s)\n", mdl.topo.name)
	fmt.Fprintln(w, ruleWide)
	fmt.Fprintf(w, "| %-10s |  best-case | worst-case |\n", "port")
	fmt.Fprintf(w, "| %-10s |       [ns] |       [ns] |\n", "")
	for _, win := range windows {
		fmt.Fprintln(w, ruleWide)
		fmt.Fprintf(w, "| %-10s | %10d | %10d |\n", rowLabel(mdl.topo, win.Hop), win.BestInstant, win.WorstInstant)
	}
	fmt.Fprintln(w, ruleWide)
	fmt.Fprint(w, "\n\n")

	return nil
}

// renderCongestion tabulates the occupancy of the egress ports the stream
// crosses, as rounded percentages.
func renderCongestion(w io.Writer, mdl *Model, focused *StreamResult) error {
	fmt.Fprintf(w, "\n\nCongestion Identification: (Topology %s)\n", mdl.topo.name)
	fmt.Fprintln(w, ruleNarrow)
	fmt.Fprintf(w, "|   %-10s | %13s |\n", "port", "occupancy [%]")
	for _, hd := range focused.DelaysPerPort {
		if hd.Hop.Dir != Egress {
			continue
		}
		fmt.Fprintln(w, ruleNarrow)
		fmt.Fprintf(w, "|   %-10s | %13d |\n", rowLabel(mdl.topo, hd.Hop), int64(math.Round(hd.Bound.Utilization*100)))
	}
	fmt.Fprintln(w, ruleNarrow)
	fmt.Fprint(w, "\n\n")

	return nil
}

// renderInefficientTrans ranks the stream's hops by worst-case delay so the
// costliest transitions surface first.  The sort is stable, so hops tied on
// delay keep path order.
func renderInefficientTrans(w io.Writer, mdl *Model, focused *StreamResult) error {
	ranked := make([]HopDelay, len(focused.DelaysPerPort))
	copy(ranked, focused.DelaysPerPort)
	slices.SortStableFunc(ranked, func(a, b HopDelay) int {
		switch {
		case a.Bound.Worst > b.Bound.Worst:
			return -1
		case a.Bound.Worst < b.Bound.Worst:
			return 1
		}
		return 0
	})

	fmt.Fprintf(w, "\n\nInefficient Transitions: (Topology %s)\n", mdl.topo.name)
	fmt.Fprintln(w, ruleNarrow)
	fmt.Fprintf(w, "|   %-10s | %10s |\n", "transition", "delay [ns]")
	for _, hd := range ranked {
		fmt.Fprintln(w, ruleNarrow)
		fmt.Fprintf(w, "|   %-10s | %10d |\n", rowLabel(mdl.topo, hd.Hop), hd.Bound.Worst)
	}
	fmt.Fprintln(w, ruleNarrow)
	fmt.Fprint(w, "\n\n")

	return nil
}
