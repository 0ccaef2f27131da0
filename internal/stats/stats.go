package stats

import (
	"errors"
	"time"

	mstats "github.com/montanaflynn/stats"
)

var ErrNoTrials = errors.New("no trials to aggregate")

// TrialResult is the outcome of one timed curve transfer.
type TrialResult struct {
	Index    int           `json:"index"`
	Duration time.Duration `json:"duration_ns"`
	Samples  int           `json:"samples"`
	Bytes    int           `json:"bytes"`
}

func (t TrialResult) Seconds() float64 {
	return t.Duration.Seconds()
}

// Report summarises a completed benchmark run.
type Report struct {
	Trials       []TrialResult `json:"trials"`
	TotalSeconds float64       `json:"total_seconds"`
	MeanSeconds  float64       `json:"mean_seconds"`

	MinSeconds    float64 `json:"min_seconds"`
	MaxSeconds    float64 `json:"max_seconds"`
	MedianSeconds float64 `json:"median_seconds"`
	StdDevSeconds float64 `json:"stddev_seconds"`
	P99Seconds    float64 `json:"p99_seconds"`

	TotalBytes     int64   `json:"total_bytes"`
	BytesPerSecond float64 `json:"bytes_per_second"`
}

// Aggregate builds a Report from trials in the given order.
func Aggregate(trials []TrialResult) (Report, error) {
	if len(trials) == 0 {
		return Report{}, ErrNoTrials
	}

	r := Report{Trials: make([]TrialResult, len(trials))}
	copy(r.Trials, trials)

	secs := make(mstats.Float64Data, len(trials))
	for i, t := range trials {
		secs[i] = t.Seconds()
		r.TotalSeconds += secs[i]
		r.TotalBytes += int64(t.Bytes)
	}
	r.MeanSeconds = r.TotalSeconds / float64(len(trials))

	// errors only occur on empty input, excluded above
	r.MinSeconds, _ = secs.Min()
	r.MaxSeconds, _ = secs.Max()
	r.MedianSeconds, _ = secs.Median()
	r.StdDevSeconds, _ = secs.StandardDeviation()
	r.P99Seconds, _ = secs.Percentile(99)

	if r.TotalSeconds > 0 {
		r.BytesPerSecond = float64(r.TotalBytes) / r.TotalSeconds
	}
	return r, nil
}

// Durations returns the per-trial durations in seconds, in trial order.
func (r Report) Durations() []float64 {
	out := make([]float64, len(r.Trials))
	for i, t := range r.Trials {
		out[i] = t.Seconds()
	}
	return out
}

func (r Report) Complete(expected int) bool {
	if len(r.Trials) != expected {
		return false
	}
	for i, t := range r.Trials {
		if t.Index != i+1 {
			return false
		}
	}
	return true
}
