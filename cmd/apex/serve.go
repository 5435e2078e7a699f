package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Laisky/zap"
	"github.com/spf13/cobra"

	"github.com/cregis-dev/apex/internal/adaptor"
	"github.com/cregis-dev/apex/internal/audit"
	"github.com/cregis-dev/apex/internal/config"
	"github.com/cregis-dev/apex/internal/httpserver"
	"github.com/cregis-dev/apex/internal/logger"
	"github.com/cregis-dev/apex/internal/metrics"
	"github.com/cregis-dev/apex/internal/pipeline"
	"github.com/cregis-dev/apex/internal/ratelimit"
	"github.com/cregis-dev/apex/internal/selector"
	"github.com/cregis-dev/apex/internal/tokencount"
)

var (
	serveConfigPath string
	serveLogLevel   string
	serveLogJSON    bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gateway HTTP server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&serveConfigPath, "config", "c", "apex.json", "Path to the gateway config file")
	serveCmd.Flags().StringVar(&serveLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	serveCmd.Flags().BoolVar(&serveLogJSON, "log-json", true, "Emit structured JSON logs")
}

func runServe(_ *cobra.Command, _ []string) error {
	log, err := logger.New(serveLogLevel, serveLogJSON)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer log.Sync() //nolint:errcheck

	snap, err := config.LoadFile(os.ReadFile, serveConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	store := config.NewStore(snap)

	sel := selector.New(store)
	limiter := ratelimit.New()
	store.OnReload(func(*config.Snapshot) { sel.Flush() })

	var sink *audit.Sink
	if path := store.Get().Doc.Audit.Path; path != "" {
		sink, err = audit.Open(path)
		if err != nil {
			return fmt.Errorf("open audit sink: %w", err)
		}
		defer sink.Close() //nolint:errcheck
	}

	pl := &pipeline.Pipeline{
		Store:     store,
		Selector:  sel,
		Registry:  adaptor.NewRegistry(),
		Limiter:   limiter,
		Estimator: tokencount.NewEstimator(),
		Metrics:   metrics.NewCollector(),
		Audit:     sink,
		Logger:    log,
		Client:    pipeline.NewHTTPClient(),
	}

	watcher := config.NewWatcher(store, serveConfigPath, log)
	if err := watcher.Start(); err != nil {
		return fmt.Errorf("start config watcher: %w", err)
	}
	defer watcher.Stop()

	engine := httpserver.New(pl, pl.Metrics, log)

	listen := store.Get().Doc.Global.Listen
	if listen == "" {
		listen = ":8080"
	}

	errCh := make(chan error, 1)
	go func() { errCh <- engine.Run(listen) }()

	log.Info("apex gateway listening", zap.String("addr", listen))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
		return nil
	}
}
