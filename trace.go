package tsnlat

// trace.go gathers the individual delay terms behind the bounds of an
// evaluation, for post-run inspection of where a worst case comes from.

import (
	"encoding/json"
	"os"
	"path"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// TermTrace records one additive term of one hop's delay bound: how much it
// contributes in the best case and how much in the worst.
type TermTrace struct {
	Node      string `json:"node" yaml:"node"`
	Port      string `json:"port" yaml:"port"`
	Direction string `json:"direction" yaml:"direction"`
	Term      string `json:"term" yaml:"term"`
	Best      int64  `json:"best" yaml:"best"`
	Worst     int64  `json:"worst" yaml:"worst"`
}

// EvalTraceManager accumulates the term records of one evaluation.  By
// testing the InUse flag we can inhibit the gathering when nobody wants it,
// while embedding calls to AddTerm wherever bounds are computed.
type EvalTraceManager struct {
	// evaluation gathers a trace
	InUse bool `json:"inuse" yaml:"inuse"`

	// name of the evaluated topology or experiment
	ExpName string `json:"expname" yaml:"expname"`

	// unique identity of this evaluation run
	RunID string `json:"runid" yaml:"runid"`

	// term records per stream name, in the order the terms were met
	Terms map[string][]TermTrace `json:"terms" yaml:"terms"`

	mu sync.Mutex
}

// CreateEvalTraceManager is a constructor.  It saves the name of the
// experiment, mints a run identity, and records whether tracing is active.
func CreateEvalTraceManager(expName string, active bool) *EvalTraceManager {
	tm := new(EvalTraceManager)
	tm.InUse = active
	tm.ExpName = expName
	tm.RunID = uuid.NewString()
	tm.Terms = make(map[string][]TermTrace)
	return tm
}

// Active tells the caller whether the trace manager is gathering records.
func (tm *EvalTraceManager) Active() bool {
	return tm != nil && tm.InUse
}

// AddTerm stores one term record.  Streams evaluate concurrently, so the
// store is serialized by a lock.
func (tm *EvalTraceManager) AddTerm(stream, node, port string, dir HopDir, term string, best, worst int64) {
	if !tm.Active() {
		return
	}

	tm.mu.Lock()
	defer tm.mu.Unlock()

	tm.Terms[stream] = append(tm.Terms[stream], TermTrace{
		Node:      node,
		Port:      port,
		Direction: dir.String(),
		Term:      term,
		Best:      best,
		Worst:     worst,
	})
}

// StreamTerms gives the recorded terms of one stream.
func (tm *EvalTraceManager) StreamTerms(stream string) []TermTrace {
	if tm == nil {
		return nil
	}

	tm.mu.Lock()
	defer tm.mu.Unlock()

	return tm.Terms[stream]
}

// WriteToFile stores the gathered terms to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of
// this name.  An inactive manager writes nothing.
func (tm *EvalTraceManager) WriteToFile(filename string) error {
	if !tm.Active() {
		return nil
	}

	tm.mu.Lock()
	defer tm.mu.Unlock()

	pathExt := path.Ext(filename)
	var bytes []byte
	var merr error

	if pathExt == ".yaml" || pathExt == ".YAML" || pathExt == ".yml" {
		bytes, merr = yaml.Marshal(tm)
	} else {
		bytes, merr = json.MarshalIndent(tm, "", "\t")
	}
	if merr != nil {
		return merr
	}

	return os.WriteFile(filename, bytes, 0644)
}
