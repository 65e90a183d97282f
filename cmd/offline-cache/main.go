package main

import (
	"fmt"
	"io"
	"os"

	"github.com/always-cache/offline-cache/pkg/config"
	"github.com/always-cache/offline-cache/storage"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// this is set by goreleaser
var version string

type rootOptions struct {
	configPath         string
	verbosityTraceFlag bool
	logFilename        string
	logFile            *os.File
}

func main() {
	if version == "" {
		version = "DEV"
	}

	opts := &rootOptions{}
	root := &cobra.Command{
		Use:          "offline-cache",
		Short:        "Cache-first offline proxy for a static web app",
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setupLogging()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.logFile != nil {
				opts.logFile.Close()
			}
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to config file (defaults are used if empty)")
	root.PersistentFlags().BoolVar(&opts.verbosityTraceFlag, "vv", false, "Verbosity: trace logging")
	root.PersistentFlags().StringVar(&opts.logFilename, "log-file", "", "Log file to use (in addition to stdout)")

	root.AddCommand(
		newServeCmd(opts),
		newStaticCmd(opts),
		newCachesCmd(opts),
		newClearCmd(opts),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setupLogging sends logs to stdout, and also to the log file if specified.
// Stdout gets human readable output on a terminal and JSON otherwise.
func (opts *rootOptions) setupLogging() error {
	logLevel := zerolog.DebugLevel
	if opts.verbosityTraceFlag {
		logLevel = zerolog.TraceLevel
	}

	logOutputs := make([]io.Writer, 0)
	if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		logOutputs = append(logOutputs, zerolog.ConsoleWriter{Out: os.Stdout})
	} else {
		logOutputs = append(logOutputs, os.Stdout)
	}
	if opts.logFilename != "" {
		logFileOutput, err := os.OpenFile(opts.logFilename, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644)
		if err != nil {
			return fmt.Errorf("cannot open log file: %w", err)
		}
		opts.logFile = logFileOutput
		logOutputs = append(logOutputs, logFileOutput)
	}
	multiWriter := zerolog.MultiLevelWriter(logOutputs...)
	log.Logger = zerolog.New(multiWriter).Level(logLevel).
		With().Timestamp().Str("app", "offline-cache").Logger()
	return nil
}

func (opts *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// openStorage opens the cache database. "memory" gives an in-memory database.
func openStorage(db string) (*storage.SQLiteStorage, error) {
	if db == "memory" {
		db = "file::memory:?cache=shared"
	}
	return storage.NewSQLiteStorage(db)
}
