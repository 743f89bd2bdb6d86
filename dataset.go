package tsnlat

// dataset.go stores measured frame latencies in a SQLite database and
// renders the measured-vs-predicted comparison table.  Latencies are stored
// in nanoseconds and displayed in microseconds.

import (
	"database/sql"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/iti/rngstream"
	_ "modernc.org/sqlite"
)

// DataSet wraps an open measurement database.  One row per observed frame,
// keyed by stream name.
type DataSet struct {
	db *sql.DB
}

// StreamStats aggregates the stored measurements of one stream.
type StreamStats struct {
	Stream string
	MinNs  int64
	MaxNs  int64
	Count  int64
}

// OpenDataSet opens (creating if needed) the measurement database at the
// given path.  ":memory:" gives a private in-memory database.
func OpenDataSet(filename string) (*DataSet, error) {
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec("CREATE TABLE IF NOT EXISTS measurements (stream TEXT NOT NULL, latency_ns INTEGER NOT NULL)")
	if err != nil {
		db.Close()
		return nil, err
	}

	return &DataSet{db: db}, nil
}

// Close releases the underlying database handle.
func (ds *DataSet) Close() error {
	return ds.db.Close()
}

// AddMeasurement records one observed end-to-end latency for the stream.
func (ds *DataSet) AddMeasurement(stream string, latencyNs int64) error {
	_, err := ds.db.Exec("INSERT INTO measurements (stream, latency_ns) VALUES (?, ?)", stream, latencyNs)

	return err
}

// AddMeasurements records a batch of observed latencies for the stream in
// one transaction.
func (ds *DataSet) AddMeasurements(stream string, latenciesNs []int64) error {
	tx, err := ds.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare("INSERT INTO measurements (stream, latency_ns) VALUES (?, ?)")
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, latency := range latenciesNs {
		if _, err = stmt.Exec(stream, latency); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// StreamStats returns min, max, and count of the stored measurements,
// grouped by stream and ordered by stream name.
func (ds *DataSet) StreamStats() ([]StreamStats, error) {
	rows, err := ds.db.Query("SELECT stream, MIN(latency_ns), MAX(latency_ns), COUNT(*) FROM measurements GROUP BY stream ORDER BY stream")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := make([]StreamStats, 0)
	for rows.Next() {
		var st StreamStats
		if err = rows.Scan(&st.Stream, &st.MinNs, &st.MaxNs, &st.Count); err != nil {
			return nil, err
		}
		stats = append(stats, st)
	}

	return stats, rows.Err()
}

// SynthesizeMeasurements fills the database with samples drawn uniformly
// from each cleanly evaluated stream's predicted delay band, for demos and
// tests that have no testbed capture at hand.
func (ds *DataSet) SynthesizeMeasurements(rng *rngstream.RngStream, results []StreamResult, samples int) error {
	for _, res := range results {
		if res.Err != nil {
			continue
		}

		band := float64(res.SummarizedWorst - res.SummarizedBest)
		latencies := make([]int64, samples)
		for idx := 0; idx < samples; idx += 1 {
			latencies[idx] = res.SummarizedBest + int64(rng.RandU01()*band)
		}

		if err := ds.AddMeasurements(res.Stream, latencies); err != nil {
			return err
		}
	}

	return nil
}

var ruleCompare = strings.Repeat("-", 102)

// maxEgressUtilization reports the stream's highest egress-port occupancy
// as a rounded percentage.
func maxEgressUtilization(res *StreamResult) int64 {
	var maxUtil int64
	for _, hd := range res.DelaysPerPort {
		if hd.Hop.Dir != Egress {
			continue
		}
		pct := int64(math.Round(hd.Bound.Utilization * 100))
		if pct > maxUtil {
			maxUtil = pct
		}
	}

	return maxUtil
}

// CompareWithDataSet tabulates each stream's predicted delay band against
// the measured extremes stored in the dataset.  A prediction is violated
// when a measurement falls outside the band while the ports along the path
// still had capacity; overloaded ports (occupancy at or above 100%) void
// the prediction, so those streams are not flagged.
func CompareWithDataSet(w io.Writer, ds *DataSet, results []StreamResult) error {
	stats, err := ds.StreamStats()
	if err != nil {
		return err
	}

	measured := make(map[string]StreamStats, len(stats))
	for _, st := range stats {
		measured[st.Stream] = st
	}

	fmt.Fprintln(w, ruleCompare)
	fmt.Fprintf(w, "| %10s | %13s | %13s | %13s | %13s | %21s |\n",
		"stream", "Pred. BC [µs]", "Meas. BC [µs]", "Meas. WC [µs]", "Pred. WC [µs]", "Pred. Utilization [%]")
	fmt.Fprintln(w, ruleCompare)

	violations := make([]string, 0)
	for idx := range results {
		res := &results[idx]
		st, ok := measured[res.Stream]
		if !ok || res.Err != nil {
			continue
		}

		predBC := float64(res.SummarizedBest) / 1000.0
		predWC := float64(res.SummarizedWorst) / 1000.0
		measBC := float64(st.MinNs) / 1000.0
		measWC := float64(st.MaxNs) / 1000.0
		utilization := maxEgressUtilization(res)

		if (predBC > measBC || predWC < measWC) && utilization < 100 {
			violations = append(violations, fmt.Sprintf("stream %s: predicted [%.2f, %.2f] µs, measured [%.2f, %.2f] µs",
				res.Stream, predBC, predWC, measBC, measWC))
		}

		fmt.Fprintf(w, "| %10s | %13.2f | %13.2f | %13.2f | %13.2f | %21d |\n",
			res.Stream, predBC, measBC, measWC, predWC, utilization)
	}
	fmt.Fprintln(w, ruleCompare)

	fmt.Fprintln(w)
	if len(violations) > 0 {
		fmt.Fprintf(w, "not all predictions align with the measurements, %d violations found:\n", len(violations))
		for _, v := range violations {
			fmt.Fprintln(w, v)
		}
	} else {
		fmt.Fprintln(w, "all measurements fall within the predicted bounds")
	}

	return nil
}
