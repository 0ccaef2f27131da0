package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"scopebench/internal/dummy"
)

// --- Dummy Subcommand ---
var dummyCmd = &cobra.Command{
	Use:   "dummy",
	Short: "Run a simulated oscilloscope on a local socket",
	RunE: func(cmd *cobra.Command, args []string) error {
		log, closer, err := newLogger(false)
		if err != nil {
			return err
		}
		if closer != nil {
			defer closer.Close()
		}

		f := cmd.Flags()
		port, _ := f.GetInt("port")
		granularity, _ := f.GetInt("granularity")
		maxRecord, _ := f.GetInt("max-record-length")
		delay, _ := f.GetDuration("acquire-delay")
		throughput, _ := f.GetInt64("throughput")

		srv, err := dummy.Start(dummy.ServerConfig{
			Port:              port,
			RecordGranularity: granularity,
			MaxRecordLength:   maxRecord,
			AcquireDelay:      delay,
			Throughput:        throughput,
			Logger:            log,
		})
		if err != nil {
			return fmt.Errorf("start simulated oscilloscope: %w", err)
		}
		fmt.Printf("Simulated oscilloscope ready at %s\n", srv.Resource())

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		<-ctx.Done()

		return srv.Close()
	},
}

func init() {
	f := dummyCmd.Flags()
	f.IntP("port", "p", 4000, "Port to run the simulated oscilloscope on")
	f.Int("granularity", 1000, "Record lengths are rounded down to a multiple of this")
	f.Int("max-record-length", 62_500_000, "Largest record length the simulated scope accepts")
	f.Duration("acquire-delay", 2*time.Millisecond, "Time before *OPC? reports the acquisition complete")
	f.Int64("throughput", 0, "Curve transfer rate in bytes per second (0 = unlimited)")
}
