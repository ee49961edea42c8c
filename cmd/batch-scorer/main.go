// Command batch-scorer serves batched sentiment scoring over HTTP.
//
// Usage:
//
//	batch-scorer serve
//	batch-scorer serve --config config.yaml --port 8000
//	batch-scorer version
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	batchscorer "github.com/JohnPlummer/batch-scorer"
	"github.com/JohnPlummer/batch-scorer/config"
	"github.com/JohnPlummer/batch-scorer/dispatcher"
	"github.com/JohnPlummer/batch-scorer/scorer"
	"github.com/JohnPlummer/batch-scorer/server"
)

type serveFlags struct {
	configPath string
	envFile    string
	host       string
	port       int
	queueSize  int
	logLevel   string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "batch-scorer",
		Short:         "Batched sentiment scoring over HTTP",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var flags serveFlags
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Start the scoring server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, &flags)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}

	f := serve.Flags()
	f.StringVarP(&flags.configPath, "config", "c", "", "Path to YAML config file")
	f.StringVar(&flags.envFile, "env-file", ".env", "Path to .env file (ignored if missing)")
	f.StringVar(&flags.host, "host", "", "Bind address (overrides config)")
	f.IntVarP(&flags.port, "port", "p", 0, "HTTP port (overrides config)")
	f.IntVar(&flags.queueSize, "queue-size", 0, "Dispatch queue capacity (overrides config)")
	f.StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")

	version := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			info := batchscorer.GetVersion()
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", info.Name, info.Version)
		},
	}

	root.AddCommand(serve, version)
	return root
}

// loadConfig applies explicitly set flags on top of the loaded configuration
func loadConfig(cmd *cobra.Command, flags *serveFlags) (config.Config, error) {
	cfg, err := config.Load(flags.configPath, flags.envFile)
	if err != nil {
		return cfg, err
	}

	f := cmd.Flags()
	if f.Changed("host") {
		cfg.Server.Host = flags.host
	}
	if f.Changed("port") {
		cfg.Server.Port = flags.port
	}
	if f.Changed("queue-size") {
		cfg.Dispatcher.QueueSize = flags.queueSize
	}
	if f.Changed("log-level") {
		cfg.Log.Level = flags.logLevel
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func runServe(ctx context.Context, cfg config.Config) error {
	slog.SetDefault(cfg.Log.NewLogger())

	info := batchscorer.GetVersion()
	slog.Info("Starting batch scorer",
		"name", info.Name,
		"version", info.Version,
		"addr", cfg.Addr())

	scorerCfg := cfg.ScorerConfig()
	backend, err := scorer.NewIntegratedScorer(scorerCfg)
	if err != nil {
		return fmt.Errorf("failed to create scorer: %w", err)
	}

	metrics := scorer.NewMetricsRecorder(scorerCfg.EnableMetrics)
	d := dispatcher.New(backend,
		dispatcher.WithQueueSize(cfg.Dispatcher.QueueSize),
		dispatcher.WithBackendTimeout(cfg.Dispatcher.BackendTimeout),
		dispatcher.WithMetrics(metrics),
	)

	srv := server.New(server.Config{
		RequestTimeout:  cfg.Server.RequestTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, d, backend)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return d.Run(gctx)
	})
	g.Go(func() error {
		return srv.Run(gctx, cfg.Addr())
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	slog.Info("Batch scorer stopped")
	return nil
}
