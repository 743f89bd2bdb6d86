package tsnlat

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iti/rngstream"
)

// TestEndToEndPipeline drives the whole workflow the command line tool runs:
// persist a topology description, read it back, evaluate it with tracing on,
// round trip the results through a file, render an analysis view, and
// compare the prediction against synthesized measurements.
func TestEndToEndPipeline(t *testing.T) {
	dir := t.TempDir()

	topoFile := filepath.Join(dir, "topo.json")
	require.NoError(t, BuildSampleTopo().WriteToFile(topoFile))

	td, err := ReadTopoDesc(topoFile, UseYAML(topoFile), nil)
	require.NoError(t, err)

	topo, err := BuildTopology(td)
	require.NoError(t, err)

	tm := CreateEvalTraceManager(topo.Name(), true)
	mdl := CreateModel(topo, tm)
	results := mdl.Evaluate()
	require.Len(t, results, topo.NumStreams())

	rslt := findResult(t, results, "Stream 1")
	require.NoError(t, rslt.Err)
	assert.Equal(t, int64(20840), rslt.SummarizedBest)
	assert.Equal(t, int64(3985896), rslt.SummarizedWorst)

	// results survive a serialization round trip
	rd := mdl.BuildResultDesc(results)
	resultFile := filepath.Join(dir, "result.yaml")
	require.NoError(t, rd.WriteToFile(resultFile))

	back, err := ReadResultDesc(resultFile, UseYAML(resultFile), nil)
	require.NoError(t, err)
	assert.Equal(t, rd, back)

	// the rendered view carries the same numbers
	var buf bytes.Buffer
	require.NoError(t, RenderScenario(&buf, ArrivalWindowScenario, mdl, results, "Stream 1"))
	assert.Contains(t, buf.String(), "Arrival Window Calculation: (Topology a1)")
	assert.Contains(t, buf.String(), "20840")
	assert.Contains(t, buf.String(), "3985896")

	// measurements synthesized from the bounds must compare clean
	ds := openMemDataSet(t)
	require.NoError(t, ds.SynthesizeMeasurements(rngstream.New("end to end"), results, 25))

	buf.Reset()
	require.NoError(t, CompareWithDataSet(&buf, ds, results))
	assert.Contains(t, buf.String(), "all measurements fall within the predicted bounds")

	// the trace lands on disk and covers every stream
	traceFile := filepath.Join(dir, "trace.json")
	require.NoError(t, tm.WriteToFile(traceFile))

	raw, err := os.ReadFile(traceFile)
	require.NoError(t, err)

	var traced struct {
		ExpName string                 `json:"expname"`
		Terms   map[string][]TermTrace `json:"terms"`
	}
	require.NoError(t, json.Unmarshal(raw, &traced))
	assert.Equal(t, "a1", traced.ExpName)
	assert.Len(t, traced.Terms, topo.NumStreams())
}
