package main

// tsnlat evaluates best and worst case end-to-end latency bounds for the
// periodic streams of a topology document and renders the requested
// analysis scenario.  Configuration comes from a .env file in the working
// directory, overridable through the environment.

import (
	"log"
	"os"
	"sort"

	"github.com/hs-esslingen-it-security/tsnlat"
	"github.com/iti/rngstream"
	"github.com/spf13/viper"
)

var modelLog = log.New(os.Stdout, "MODEL INFO: ", log.Ltime)

// samples drawn per stream when an empty dataset is attached
const synthSamples = 1000

func setEnvVariables() {
	viper.SetConfigFile(".env")
	if err := viper.ReadInConfig(); err != nil {
		modelLog.Println(err)
	}
	viper.SetDefault("TOPOLOGY", "")
	viper.SetDefault("RESULT", "results.json")
	viper.SetDefault("SCENARIO", "none")
	viper.SetDefault("STREAM", "Stream 1")
	viper.SetDefault("DATASET", "")
	viper.SetDefault("EXPCFG", "")
	viper.SetDefault("TRACE", "")
	viper.SetConfigType("env")
	if err := viper.WriteConfigAs(".env"); err != nil {
		modelLog.Println(err)
	}
}

func printVariables() {
	settings := viper.AllSettings()
	sortedList := make([]string, 0, len(settings))
	for id := range settings {
		sortedList = append(sortedList, id)
	}

	sort.Strings(sortedList)

	for _, id := range sortedList {
		modelLog.Println(id, settings[id])
	}
}

func fatal(err error) {
	modelLog.Println(err)
	os.Exit(1)
}

func main() {
	// read configuration from .env, then let the environment override
	setEnvVariables()
	viper.AutomaticEnv()
	printVariables()

	topoFile := viper.GetString("TOPOLOGY")
	resultFile := viper.GetString("RESULT")
	focus := viper.GetString("STREAM")
	datasetFile := viper.GetString("DATASET")
	expCfgFile := viper.GetString("EXPCFG")
	traceFile := viper.GetString("TRACE")

	sc, err := tsnlat.ScenarioFromStr(viper.GetString("SCENARIO"))
	if err != nil {
		fatal(err)
	}

	if _, err = tsnlat.CheckReadableFiles([]string{topoFile, expCfgFile}); err != nil {
		fatal(err)
	}
	if _, err = tsnlat.CheckOutputFiles([]string{resultFile, traceFile, datasetFile}); err != nil {
		fatal(err)
	}

	var td *tsnlat.TopoDesc
	if topoFile == "" {
		modelLog.Println("no topology given, evaluating the built-in sample")
		td = tsnlat.BuildSampleTopo()
	} else {
		td, err = tsnlat.ReadTopoDesc(topoFile, tsnlat.UseYAML(topoFile), []byte{})
		if err != nil {
			fatal(err)
		}
	}

	if expCfgFile != "" {
		expCfg, cfgErr := tsnlat.ReadExpCfg(expCfgFile, tsnlat.UseYAML(expCfgFile), []byte{})
		if cfgErr != nil {
			fatal(cfgErr)
		}
		if err = tsnlat.ApplyExpCfg(expCfg, td); err != nil {
			fatal(err)
		}
	}

	topo, err := tsnlat.BuildTopology(td)
	if err != nil {
		fatal(err)
	}

	tm := tsnlat.CreateEvalTraceManager(topo.Name(), traceFile != "")
	mdl := tsnlat.CreateModel(topo, tm)
	results := mdl.Evaluate()

	rd := mdl.BuildResultDesc(results)
	for _, sr := range rd.Streams {
		if sr.Error != "" {
			modelLog.Printf("stream %s failed: %s", sr.Name, sr.Error)
		}
	}

	if resultFile != "" {
		if err = rd.WriteToFile(resultFile); err != nil {
			fatal(err)
		}
		modelLog.Println("wrote calculation result to", resultFile)
	}

	if err = tsnlat.RenderScenario(os.Stdout, sc, mdl, results, focus); err != nil {
		fatal(err)
	}

	if datasetFile != "" {
		compareDataSet(datasetFile, topo.Name(), results)
	}

	if traceFile != "" {
		if err = tm.WriteToFile(traceFile); err != nil {
			fatal(err)
		}
		modelLog.Println("wrote evaluation trace to", traceFile)
	}
}

// compareDataSet renders the measured-vs-predicted table for the dataset at
// the given path.  An empty dataset is filled with samples synthesized from
// the predicted bands first, so a fresh file still yields a usable demo.
func compareDataSet(filename, topoName string, results []tsnlat.StreamResult) {
	ds, err := tsnlat.OpenDataSet(filename)
	if err != nil {
		fatal(err)
	}
	defer ds.Close()

	stats, err := ds.StreamStats()
	if err != nil {
		fatal(err)
	}
	if len(stats) == 0 {
		rng := rngstream.New(topoName)
		if err = ds.SynthesizeMeasurements(rng, results, synthSamples); err != nil {
			fatal(err)
		}
		modelLog.Printf("dataset %s was empty, synthesized %d samples per stream", filename, synthSamples)
	}

	if err = tsnlat.CompareWithDataSet(os.Stdout, ds, results); err != nil {
		fatal(err)
	}
}
