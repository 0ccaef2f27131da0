package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"scopebench/internal/banner"
	"scopebench/internal/instrument"
	"scopebench/internal/runner"
	"scopebench/internal/stats"
	"scopebench/internal/storage"
	"scopebench/internal/tui/app"
	"scopebench/internal/tui/components"
)

// Options configures a headless run.
type Options struct {
	Resource    string
	Config      runner.Config
	SessionOpts []instrument.Option
	Store       *storage.Store // nil disables history
	OutPrefix   string
	Logger      zerolog.Logger
	Out         io.Writer // defaults to stdout
}

// Start runs the benchmark without the TUI and prints a report. The returned
// error is non-nil whenever the run did not complete every trial.
func Start(ctx context.Context, opts Options) error {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	cfg := opts.Config

	fmt.Fprintln(out, banner.GetString())
	printHeader(out, opts.Resource, cfg)

	updates := make(runner.UpdateChan, 100)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for snap := range updates {
			pct := float64(snap.Trial) / float64(max(1, snap.Total))
			fmt.Fprintf(out, "\r%s %3.0f%% | Trial %d/%d | Last: %s | Mean: %s | %s/s   ",
				progressBar(pct, 20), pct*100,
				snap.Trial, snap.Total,
				snap.Last.Duration.Round(time.Microsecond),
				snap.Mean.Round(time.Microsecond),
				humanize.Bytes(uint64(throughput(snap))),
			)
		}
	}()

	exec, err := runner.RunOnInstrument(ctx, opts.Resource, cfg, opts.SessionOpts,
		runner.WithUpdates(updates), runner.WithLogger(opts.Logger))
	close(updates)
	<-done
	fmt.Fprintln(out)

	if err != nil {
		if trial := runner.FailedTrial(err); trial > 0 {
			fmt.Fprintf(out, "\n❌ Run aborted on trial %d of %d\n", trial, cfg.Trials)
		} else {
			fmt.Fprintf(out, "\n❌ Run aborted\n")
		}
		return err
	}

	printSummary(out, exec)
	printPlot(out, exec.Report)

	item := storage.NewHistoryItem(exec.Instrument, exec.Resource, cfg, exec.Report)
	if opts.Store != nil {
		if err := opts.Store.Save(item); err != nil {
			opts.Logger.Warn().Err(err).Msg("could not save run to history")
		} else {
			fmt.Fprintf(out, "\n🗂️  Saved to history as %s (%s)\n", item.ID, opts.Store.Path())
		}
	}
	return handleAutoReport(out, item, opts.OutPrefix)
}

func printHeader(out io.Writer, resource string, cfg runner.Config) {
	fmt.Fprintf(out, "\n🚀 STARTING WAVEFORM TRANSFER BENCHMARK\n")
	fmt.Fprintf(out, "======================================================================\n")
	fmt.Fprintf(out, "Resource        : %s\n", resource)
	fmt.Fprintf(out, "Sample Rate     : %g S/s\n", cfg.SampleRate)
	fmt.Fprintf(out, "Horizontal Scale: %g s/div\n", cfg.HorizontalScale)
	fmt.Fprintf(out, "Record Length   : %s points\n", humanize.Comma(int64(cfg.RecordLength)))
	fmt.Fprintf(out, "Trials          : %d\n", cfg.Trials)
	fmt.Fprintf(out, "Sample Width    : %d byte(s) from %s\n", cfg.ByteWidth, cfg.Source)
	fmt.Fprintf(out, "======================================================================\n\n")
}

func progressBar(pct float64, width int) string {
	filled := int(pct * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return "[" + strings.Repeat("█", filled) + strings.Repeat("-", width-filled) + "]"
}

func throughput(snap runner.TrialSnapshot) float64 {
	if snap.Mean <= 0 || snap.Trial == 0 {
		return 0
	}
	return float64(snap.Bytes) / float64(snap.Trial) / snap.Mean.Seconds()
}

func printSummary(out io.Writer, exec runner.Execution) {
	r := exec.Report

	fmt.Fprintf(out, "\n📊 BENCHMARK RESULTS\n")
	fmt.Fprintf(out, "======================================================================\n")
	fmt.Fprintf(out, "Instrument     : %s\n", exec.Instrument)
	fmt.Fprintf(out, "Trials         : %d\n", len(r.Trials))
	fmt.Fprintf(out, "Total Time (s) : %.6f\n", r.TotalSeconds)
	fmt.Fprintf(out, "Mean Time (s)  : %.6f\n", r.MeanSeconds)
	fmt.Fprintf(out, "Transferred    : %s\n", humanize.Bytes(uint64(r.TotalBytes)))
	fmt.Fprintf(out, "Throughput     : %s/s\n", humanize.Bytes(uint64(r.BytesPerSecond)))
	if exec.Events != "" {
		fmt.Fprintf(out, "Event Status   : %d (%s)\n", exec.ESR, exec.Events)
	}
	fmt.Fprintf(out, "\n⏱️  TRANSFER TIMES (ms)\n")
	fmt.Fprintf(out, "   Min    : %.3f\n", r.MinSeconds*1000)
	fmt.Fprintf(out, "   Median : %.3f\n", r.MedianSeconds*1000)
	fmt.Fprintf(out, "   P99    : %.3f\n", r.P99Seconds*1000)
	fmt.Fprintf(out, "   Max    : %.3f\n", r.MaxSeconds*1000)
	fmt.Fprintf(out, "   StdDev : %.3f\n", r.StdDevSeconds*1000)
	fmt.Fprintf(out, "======================================================================\n")
}

func printPlot(out io.Writer, r stats.Report) {
	if len(r.Trials) < 2 {
		return
	}
	p := components.NewPlot("Transfer time per trial", "Trial (#)", "Time (ms)", 50, 10)
	for _, d := range r.Durations() {
		p.Values = append(p.Values, d*1000)
	}
	fmt.Fprintln(out)
	for _, l := range p.Lines() {
		fmt.Fprintln(out, l)
	}
}

func handleAutoReport(out io.Writer, item storage.HistoryItem, prefix string) error {
	if prefix == "" || len(item.Report.Trials) == 0 {
		return nil
	}

	fmt.Fprintf(out, "\n💾 Generating reports with prefix: %s\n", prefix)
	if err := app.ExportAll(item, prefix); err != nil {
		return fmt.Errorf("write reports: %w", err)
	}
	fmt.Fprintf(out, "✅ Reports saved to %s.{csv,json,_summary.json}\n", prefix)
	return nil
}
