package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"scopebench/internal/storage"
	"scopebench/internal/tui/app"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect past benchmark runs",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded runs, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(store *storage.Store) error {
			items, err := store.List()
			if err != nil {
				return err
			}
			if len(items) == 0 {
				fmt.Printf("No runs recorded yet in %s.\n", store.Path())
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tWHEN\tINSTRUMENT\tTRIALS\tPOINTS\tMEAN (ms)\tRATE")
			for _, it := range items {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%.3f\t%s/s\n",
					it.ID,
					humanize.Time(it.Timestamp),
					it.Instrument,
					len(it.Report.Trials),
					it.Config.RecordLength,
					it.Report.MeanSeconds*1000,
					humanize.Bytes(uint64(it.Report.BytesPerSecond)),
				)
			}
			return w.Flush()
		})
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show the summary of one run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(store *storage.Store) error {
			it, err := store.Get(args[0])
			if err != nil {
				return err
			}
			r := it.Report
			fmt.Printf("ID          : %s\n", it.ID)
			fmt.Printf("Recorded    : %s\n", it.Timestamp.Format(time.RFC3339))
			fmt.Printf("Instrument  : %s\n", it.Instrument)
			fmt.Printf("Resource    : %s\n", it.Resource)
			fmt.Printf("Record      : %d points x %d byte(s) from %s\n", it.Config.RecordLength, it.Config.ByteWidth, it.Config.Source)
			fmt.Printf("Trials      : %d\n", len(r.Trials))
			fmt.Printf("Total (s)   : %.6f\n", r.TotalSeconds)
			fmt.Printf("Mean (s)    : %.6f\n", r.MeanSeconds)
			fmt.Printf("Median (ms) : %.3f\n", r.MedianSeconds*1000)
			fmt.Printf("P99 (ms)    : %.3f\n", r.P99Seconds*1000)
			fmt.Printf("Throughput  : %s/s\n", humanize.Bytes(uint64(r.BytesPerSecond)))
			return nil
		})
	},
}

var historyExportCmd = &cobra.Command{
	Use:   "export <id> <prefix>",
	Short: "Write <prefix>.csv, <prefix>.json and <prefix>_summary.json for one run",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(store *storage.Store) error {
			it, err := store.Get(args[0])
			if err != nil {
				return err
			}
			if err := app.ExportAll(*it, args[1]); err != nil {
				return err
			}
			fmt.Printf("✅ Reports saved to %s.{csv,json,_summary.json}\n", args[1])
			return nil
		})
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Remove one run from history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(store *storage.Store) error {
			return store.Delete(args[0])
		})
	},
}

func init() {
	historyCmd.AddCommand(historyListCmd, historyShowCmd, historyExportCmd, historyDeleteCmd)
}

func withStore(fn func(*storage.Store) error) error {
	store, err := openStore()
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer store.Close()
	return fn(store)
}
