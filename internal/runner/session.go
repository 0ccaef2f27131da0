package runner

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"

	"scopebench/internal/instrument"
	"scopebench/internal/stats"
)

// Execution is a finished benchmark against a live instrument.
type Execution struct {
	Instrument string
	Resource   string
	Report     stats.Report

	// Standard event status register and event queue read after the run.
	ESR    int
	Events string
}

// RunOnInstrument opens resource, identifies the instrument, runs the
// benchmark and closes the session on every exit path. The config is
// validated before the instrument is contacted.
func RunOnInstrument(ctx context.Context, resource string, cfg Config, sessOpts []instrument.Option, opts ...Option) (exec Execution, err error) {
	exec.Resource = resource
	if err := cfg.Validate(); err != nil {
		return exec, err
	}

	sess, err := instrument.Open(ctx, resource, sessOpts...)
	if err != nil {
		return exec, fmt.Errorf("open %s: %w", resource, err)
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			err = multierror.Append(err, fmt.Errorf("close session: %w", cerr))
		}
	}()

	id, err := sess.Identify()
	if err != nil {
		return exec, fmt.Errorf("identify instrument: %w", err)
	}
	exec.Instrument = strings.TrimSpace(id)

	r := NewRunner(cfg, sess, opts...)
	exec.Report, err = r.Run(ctx)
	if err != nil {
		return exec, err
	}

	// a failed status read does not invalidate the measured transfers
	esr, events, serr := sess.EventStatus()
	if serr != nil {
		r.log.Warn().Err(serr).Msg("could not read event status")
		return exec, nil
	}
	exec.ESR, exec.Events = esr, events
	if esr != 0 {
		r.log.Warn().Int("esr", esr).Str("events", events).Msg("instrument reported events during the run")
	}
	return exec, nil
}
