package runner

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"scopebench/internal/instrument"
	"scopebench/internal/stats"
)

const (
	cmdStop   = "ACQuire:STATE OFF"
	cmdSingle = "ACQuire:STOPAfter SEQuence;STATE ON"
	cmdOPC    = "*OPC?"
	cmdCurve  = "CURVe?"
)

type Runner struct {
	Cfg     Config
	Session Session
	Hist    *stats.SafeHistogram

	// Event Channel
	Updates UpdateChan

	now func() time.Time
	log zerolog.Logger
}

type Option func(*Runner)

// WithClock replaces the transfer timer.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

func WithLogger(l zerolog.Logger) Option {
	return func(r *Runner) { r.log = l }
}

func WithUpdates(ch UpdateChan) Option {
	return func(r *Runner) { r.Updates = ch }
}

func NewRunner(cfg Config, sess Session, opts ...Option) *Runner {
	r := &Runner{
		Cfg:     cfg,
		Session: sess,
		Hist:    stats.NewSafeHistogram(),
		now:     time.Now,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.Updates == nil {
		// Avoid nil panics if not provided
		r.Updates = make(UpdateChan, 10)
	}
	r.log = r.log.With().Str("component", "runner").Logger()
	return r
}

// Run validates the config, configures the instrument, runs every trial and
// aggregates the result. On any error no report is returned.
func (r *Runner) Run(ctx context.Context) (stats.Report, error) {
	if err := r.Cfg.Validate(); err != nil {
		return stats.Report{}, err
	}

	setup, err := Configure(r.Session, r.Cfg)
	if err != nil {
		r.log.Error().Err(err).Msg("configuration failed")
		return stats.Report{}, err
	}
	if setup.RecordLength != r.Cfg.RecordLength {
		r.log.Warn().
			Int("requested", r.Cfg.RecordLength).
			Int("actual", setup.RecordLength).
			Msg("instrument adjusted record length")
	}

	trials, err := r.RunTrials(ctx, setup)
	if err != nil {
		return stats.Report{}, err
	}
	return stats.Aggregate(trials)
}

// RunTrials runs Cfg.Trials trials one after another. The first failure
// aborts the loop and discards all results: retrying or skipping a trial
// would skew the measured distribution.
func (r *Runner) RunTrials(ctx context.Context, setup Setup) ([]stats.TrialResult, error) {
	r.Hist.Reset()
	results := make([]stats.TrialResult, 0, r.Cfg.Trials)
	var totalBytes int64

	for i := 1; i <= r.Cfg.Trials; i++ {
		// cancellation is only honoured between trials
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		res, err := r.runTrial(i, setup)
		if err != nil {
			r.log.Error().Err(err).Int("trial", i).Msg("trial failed, aborting run")
			return nil, err
		}
		results = append(results, res)
		totalBytes += int64(res.Bytes)
		r.Hist.Record(res.Duration)

		r.log.Debug().Int("trial", i).Dur("transfer", res.Duration).Int("samples", res.Samples).Msg("transfer complete")
		r.sendUpdate(res, totalBytes)
	}
	return results, nil
}

func (r *Runner) runTrial(i int, setup Setup) (stats.TrialResult, error) {
	for _, cmd := range []string{cmdStop, cmdSingle} {
		if err := r.Session.Command(cmd); err != nil {
			return stats.TrialResult{}, &AcquisitionError{Trial: i, Command: cmd, Timeout: instrument.IsTimeout(err), Err: err}
		}
	}

	// blocks until the single sequence completes; not part of the timed window
	if _, err := r.Session.Query(cmdOPC); err != nil {
		return stats.TrialResult{}, &AcquisitionError{Trial: i, Command: cmdOPC, Timeout: instrument.IsTimeout(err), Err: err}
	}

	start := r.now()
	samples, err := r.Session.QueryBinary(cmdCurve, setup.Format)
	stop := r.now()
	if err != nil {
		return stats.TrialResult{}, &TransferError{Trial: i, Err: err}
	}
	if len(samples) == 0 {
		return stats.TrialResult{}, &TransferError{Trial: i, Err: errors.New("empty curve")}
	}

	d := stop.Sub(start)
	if d < 0 {
		d = 0
	}
	return stats.TrialResult{
		Index:    i,
		Duration: d,
		Samples:  len(samples),
		Bytes:    len(samples) * setup.Format.Width,
	}, nil
}

func (r *Runner) sendUpdate(last stats.TrialResult, totalBytes int64) {
	s := TrialSnapshot{
		Trial: last.Index,
		Total: r.Cfg.Trials,
		Last:  last,
		Mean:  r.Hist.Mean(),
		P50:   r.Hist.ValueAtQuantile(50),
		P99:   r.Hist.ValueAtQuantile(99),
		Max:   r.Hist.Max(),
		Bytes: totalBytes,
	}

	// Non-blocking send
	select {
	case r.Updates <- s:
	default:
		// Drop update if channel full, UI acts as backpressure
	}
}
