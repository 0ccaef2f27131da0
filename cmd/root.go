package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"scopebench/internal/banner"
	"scopebench/internal/cli"
	"scopebench/internal/instrument"
	"scopebench/internal/runner"
	"scopebench/internal/storage"
	"scopebench/internal/tui/app"
)

const defaultResource = "TCPIP0::localhost::4000::SOCKET"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "scopebench",
	Short: "scopebench - Oscilloscope Waveform Transfer Benchmark",
	Long: `
scopebench measures how long an oscilloscope takes to hand a full waveform
record to the host over a socket connection.

It supports two main modes:
1. TUI Mode (Default): Interactive Terminal UI
2. CLI Mode (--headless): Print progress and a report, for CI/CD usage`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := benchmarkConfig()
		if err != nil {
			return err
		}
		if viper.GetBool("headless") {
			return runHeadless(cfg)
		}
		return runTUI(cfg)
	},
}

func Execute() {
	// Custom Help with Banner
	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		fmt.Println(banner.GetString())
		_ = cmd.Usage()
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(dummyCmd)
	rootCmd.AddCommand(historyCmd)

	def := runner.DefaultConfig()

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.scopebench.yaml)")
	pf.String("log-level", "info", "Log level (debug, info, warn, error)")
	pf.String("log-file", "", "Write logs to this file (required to see logs in TUI mode)")
	pf.String("history", "", "History database path (default is $HOME/.scopebench/history.db)")

	f := rootCmd.Flags()
	f.StringP("resource", "r", defaultResource, "VISA socket resource or host:port of the oscilloscope")
	f.Float64("sample-rate", def.SampleRate, "Minimum sample rate (S/s)")
	f.Float64("horizontal-scale", def.HorizontalScale, "Horizontal scale (s/div)")
	f.IntP("record-length", "l", def.RecordLength, "Requested record length (points)")
	f.IntP("trials", "n", def.Trials, "Number of timed transfers")
	f.IntP("byte-width", "w", def.ByteWidth, "Bytes per sample (1 or 2)")
	f.StringP("source", "s", def.Source, "Waveform source channel")
	f.Duration("timeout", instrument.DefaultTimeout, "I/O timeout per instrument operation")
	f.Int("chunk-size", instrument.DefaultChunkSize, "Read chunk size for binary blocks (bytes)")
	f.Bool("headless", false, "Run without the TUI")
	f.StringP("out", "o", "", "Output filename prefix for auto-reporting")
	f.Bool("no-history", false, "Do not record the run in the history database")

	bind(pf, "log_level", "log-level")
	bind(pf, "log_file", "log-file")
	bind(pf, "history", "history")
	for _, name := range []string{
		"resource", "sample-rate", "horizontal-scale", "record-length", "trials",
		"byte-width", "source", "timeout", "chunk-size", "headless", "out", "no-history",
	} {
		bind(f, strings.ReplaceAll(name, "-", "_"), name)
	}
}

func bind(fs *pflag.FlagSet, key, flag string) {
	if err := viper.BindPFlag(key, fs.Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
			viper.SetConfigType("yaml")
			viper.SetConfigName(".scopebench")
		}
	}
	viper.SetEnvPrefix("SCOPEBENCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && cfgFile != "" {
			fmt.Fprintf(os.Stderr, "Warning: could not read config %s: %v\n", cfgFile, err)
		}
	}
}

// benchmarkConfig merges defaults, config file, environment and flags.
func benchmarkConfig() (runner.Config, error) {
	cfg := runner.DefaultConfig()
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("read configuration: %w", err)
	}
	cfg.Source = strings.ToUpper(strings.TrimSpace(cfg.Source))
	return cfg, nil
}

func sessionOptions(log zerolog.Logger) []instrument.Option {
	return []instrument.Option{
		instrument.WithTimeout(viper.GetDuration("timeout")),
		instrument.WithChunkSize(viper.GetInt("chunk_size")),
		instrument.WithDialRetries(3, 250*time.Millisecond),
		instrument.WithLogger(log),
	}
}

// newLogger builds the process logger. In TUI mode logs are dropped unless a
// log file is given.
func newLogger(tui bool) (zerolog.Logger, io.Closer, error) {
	level, err := zerolog.ParseLevel(viper.GetString("log_level"))
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("invalid log level %q: %w", viper.GetString("log_level"), err)
	}

	if path := viper.GetString("log_file"); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return zerolog.Nop(), nil, err
		}
		return zerolog.New(f).Level(level).With().Timestamp().Logger(), f, nil
	}
	if tui {
		return zerolog.Nop(), nil, nil
	}

	w := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}
	return zerolog.New(w).Level(level).With().Timestamp().Logger(), nil, nil
}

func openStore() (*storage.Store, error) {
	path := viper.GetString("history")
	if path == "" {
		var err error
		if path, err = storage.DefaultPath(); err != nil {
			return nil, err
		}
	}
	return storage.NewStore(path)
}

// --- Runners ---

func runTUI(cfg runner.Config) error {
	log, closer, err := newLogger(true)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}

	var store *storage.Store
	if !viper.GetBool("no_history") {
		if store, err = openStore(); err != nil {
			log.Warn().Err(err).Msg("history disabled")
			store = nil
		} else {
			defer store.Close()
		}
	}

	m := app.NewModel(viper.GetString("resource"), cfg, store, sessionOptions(log), log)
	p := tea.NewProgram(m, tea.WithAltScreen())

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running scopebench: %w", err)
	}
	return nil
}

func runHeadless(cfg runner.Config) error {
	log, closer, err := newLogger(false)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store *storage.Store
	if !viper.GetBool("no_history") {
		if store, err = openStore(); err != nil {
			log.Warn().Err(err).Msg("history disabled")
			store = nil
		} else {
			defer store.Close()
		}
	}

	return cli.Start(ctx, cli.Options{
		Resource:    viper.GetString("resource"),
		Config:      cfg,
		SessionOpts: sessionOptions(log),
		Store:       store,
		OutPrefix:   viper.GetString("out"),
		Logger:      log,
	})
}
