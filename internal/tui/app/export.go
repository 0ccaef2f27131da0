package app

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"strconv"

	"scopebench/internal/stats"
	"scopebench/internal/storage"
)

// ExportCSV writes one row per trial: trial,duration_s,samples,bytes.
func ExportCSV(trials []stats.TrialResult, filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)

	if err := w.Write([]string{"trial", "duration_s", "samples", "bytes"}); err != nil {
		return err
	}
	for _, t := range trials {
		record := []string{
			strconv.Itoa(t.Index),
			strconv.FormatFloat(t.Seconds(), 'f', 9, 64),
			strconv.Itoa(t.Samples),
			strconv.Itoa(t.Bytes),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

// ExportJSON writes the full history item including every trial.
func ExportJSON(item storage.HistoryItem, filename string) error {
	data, err := json.MarshalIndent(item, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0644)
}

// ExportSummary writes <prefix>_summary.json without the per-trial list.
func ExportSummary(item storage.HistoryItem, prefix string) error {
	r := item.Report
	summary := map[string]interface{}{
		"id":               item.ID,
		"instrument":       item.Instrument,
		"resource":         item.Resource,
		"trials":           len(r.Trials),
		"record_length":    item.Config.RecordLength,
		"byte_width":       item.Config.ByteWidth,
		"total_seconds":    r.TotalSeconds,
		"mean_seconds":     r.MeanSeconds,
		"median_seconds":   r.MedianSeconds,
		"p99_seconds":      r.P99Seconds,
		"stddev_seconds":   r.StdDevSeconds,
		"bytes_per_second": r.BytesPerSecond,
	}

	b, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(prefix+"_summary.json", b, 0644)
}

// ExportAll writes <prefix>.csv, <prefix>.json and <prefix>_summary.json.
func ExportAll(item storage.HistoryItem, prefix string) error {
	if err := ExportCSV(item.Report.Trials, prefix+".csv"); err != nil {
		return err
	}
	if err := ExportJSON(item, prefix+".json"); err != nil {
		return err
	}
	return ExportSummary(item, prefix)
}
