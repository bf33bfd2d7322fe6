// vitald runs the guarded data-acquisition pipeline as a standalone
// demo-mode daemon: one subscription per vital-sign domain, refreshed on
// a fixed cadence, with Prometheus metrics exposed over HTTP. It exists
// to exercise and observe the core outside a widget host.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vitalview/vitalcore/internal/governance"
	"github.com/vitalview/vitalcore/pkg/cache"
	"github.com/vitalview/vitalcore/pkg/config"
	"github.com/vitalview/vitalcore/pkg/domain"
	"github.com/vitalview/vitalcore/pkg/guard"
	"github.com/vitalview/vitalcore/pkg/logging"
	"github.com/vitalview/vitalcore/pkg/membrane"
	"github.com/vitalview/vitalcore/pkg/metrics"
	"github.com/vitalview/vitalcore/pkg/orchestrator"
	"github.com/vitalview/vitalcore/pkg/pipeline"
	"github.com/vitalview/vitalcore/pkg/telemetry"
)

func main() {
	var (
		configPath string
		logLevel   string
		demo       bool
	)

	root := &cobra.Command{
		Use:   "vitald",
		Short: "Vital-sign acquisition pipeline daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath, logLevel, demo)
		},
		SilenceUsage: true,
	}

	root.Flags().StringVar(&configPath, "config", "", "path to configuration file")
	root.Flags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	root.Flags().BoolVar(&demo, "demo", false, "force demo mode regardless of config")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath, logLevel string, demoFlag bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if demoFlag {
		cfg.Demo.Enabled = true
	}

	logging.Setup(logging.Config{Level: cfg.Logging.Level, Pretty: cfg.Logging.Pretty})
	logger := logging.Component("vitald")

	if !cfg.Demo.Enabled {
		return errors.New("no transport configured; run with --demo or demo.enabled")
	}

	shutdownTracing, err := telemetry.SetupProvider(ctx, telemetry.Config{
		ServiceName: "vitald",
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		Environment: cfg.Telemetry.Environment,
		Insecure:    cfg.Telemetry.Insecure,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("trace flush failed")
		}
	}()

	mem := membrane.New(membrane.StaticContext{Locale: "en-US", Theme: "light"})
	m := metrics.New()
	store := cache.NewResultCache()

	// Demo mode never reaches the executor; a nil fetcher keeps that
	// invariant honest.
	exec := pipeline.NewExecutor(nil, mem, governance.BreakerConfig{
		MaxFailures: cfg.Breaker.MaxFailures,
		Cooldown:    time.Duration(cfg.Breaker.CooldownS) * time.Second,
	}, logger)

	coord := orchestrator.NewCoordinator(exec, mem, store, m, logger)

	handles := make(map[domain.Key]*orchestrator.Handle, len(domain.Keys()))
	for _, key := range domain.Keys() {
		key := key
		handle, err := coord.Subscribe(ctx, orchestrator.Options{
			Domain:     key,
			DemoMode:   true,
			DemoDataFn: fixtureFor(key),
			Guards: guard.ChainOptions{
				Tokens: guard.TokenSourceFunc(func() bool { return true }),
				Staleness: guard.StalenessOptions{
					TTL:             cfg.Guards.TTL(),
					FreshnessCutoff: cfg.Guards.FreshnessCutoff,
				},
				Logger: logger,
			},
			Retry: governance.RetryConfig{
				MaxAttempts:    cfg.Retry.MaxAttempts,
				InitialBackoff: time.Duration(cfg.Retry.InitialBackoffMS) * time.Millisecond,
			},
		})
		if err != nil {
			return err
		}
		handles[key] = handle
		defer handle.Close()
	}
	logger.Info().Int("widgets", len(handles)).Msg("demo subscriptions active")

	if configPath != "" {
		watcher, err := config.NewWatcher(configPath, func(next *config.Config) {
			// Thresholds propagate to new chains; running demo handles
			// only care about the refresh cadence, picked up below.
			cfg.Guards = next.Guards
			cfg.Demo = next.Demo
		}, logger)
		if err != nil {
			return err
		}
		if err := watcher.Start(ctx); err != nil {
			return err
		}
		defer watcher.Stop() //nolint:errcheck
	}

	srv := &http.Server{
		Addr:              cfg.Metrics.Address,
		Handler:           metricsMux(m),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", cfg.Metrics.Address).Msg("metrics endpoint up")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server failed")
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	refresh := time.Duration(cfg.Demo.RefreshIntervalS) * time.Second
	if refresh <= 0 {
		refresh = time.Minute
	}
	ticker := time.NewTicker(refresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down")
			return nil
		case <-ticker.C:
			for key, handle := range handles {
				if err := handle.Refetch(ctx); err != nil {
					logger.Warn().Str("domain", string(key)).Err(err).Msg("refresh failed")
				}
			}
		}
	}
}

func metricsMux(m *metrics.Metrics) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}
