package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"ze-dashboard/internal/config"
	"ze-dashboard/internal/middleware"
	"ze-dashboard/internal/models"
	"ze-dashboard/internal/observability"
	"ze-dashboard/internal/revenue"
	"ze-dashboard/internal/server"
	"ze-dashboard/internal/services"
	"ze-dashboard/internal/source"
	"ze-dashboard/internal/ui/templates"
)

const (
	renderTimeout = 10 * time.Second
	cacheMaxAge   = "public, max-age=300"
	pageTitle     = "Revenue performance"
)

var version = "dev"

func handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), renderTimeout)
	defer cancel()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", cacheMaxAge)
	if err := templates.Dashboard(pageTitle).Render(ctx, w); err != nil {
		http.Error(w, "render error", http.StatusInternalServerError)
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Logger, os.Stdout)
	slog.SetDefault(logger)

	logger.Info("starting application",
		"version", version,
		"addr", cfg.Address(),
		"firms", cfg.Sources.Firms,
		"pos", cfg.Sources.POS,
		"granularity", cfg.Pipeline.Granularity,
		"policy", cfg.Pipeline.Policy,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("application stopped gracefully")
}

type app struct {
	analytics *services.Analytics
	metrics   *observability.Metrics
	handler   http.Handler
	gcs       *source.GCS
}

// newApp wires the pipeline and HTTP stack without touching the network.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{metrics: observability.NewMetrics()}

	fetchOpts := source.Options{
		Timeout: cfg.Sources.FetchTimeout,
		Retries: cfg.Sources.Retries,
		Backoff: cfg.Sources.RetryBackoff,
		Logger:  logger,
	}
	if source.NeedsGCS(cfg.Sources.Firms, cfg.Sources.POS) {
		gcs, err := source.NewGCS(ctx)
		if err != nil {
			return nil, err
		}
		a.gcs = gcs
		fetchOpts.Objects = gcs
	}

	granularity, err := models.ParseGranularity(cfg.Pipeline.Granularity)
	if err != nil {
		return nil, err
	}
	policy, err := models.ParsePolicy(cfg.Pipeline.Policy)
	if err != nil {
		return nil, err
	}

	a.analytics, err = services.NewAnalytics(source.NewFetcher(fetchOpts), services.Options{
		FirmsLocation: cfg.Sources.Firms,
		POSLocation:   cfg.Sources.POS,
		Granularity:   granularity,
		Policy:        policy,
		Thresholds: &revenue.ThreeWay{
			Low:  decimal.NewFromFloat(cfg.Pipeline.ThresholdLow),
			High: decimal.NewFromFloat(cfg.Pipeline.ThresholdHigh),
		},
		Logger:  logger,
		Metrics: a.metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("create analytics: %w", err)
	}

	srv := server.NewServer(a.analytics, logger, &server.TemplateHandlers{Dashboard: handleDashboard}, server.Options{
		Metrics:        a.metrics,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		Version:        version,
	})

	rateLimiter := middleware.NewRateLimiter(cfg.Security)

	// Metrics and Tracing read the matched route, so nothing between them and
	// the mux may replace the request.
	middlewareChain := middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.SecurityHeaders(),
		middleware.CORS(cfg.Security),
		middleware.TrustedProxy(cfg.Security),
		middleware.RateLimit(rateLimiter, logger),
		middleware.Tracing(),
		middleware.Metrics(a.metrics),
		middleware.Logger(logger),
	)
	a.handler = middlewareChain(srv)
	return a, nil
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, logger)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		_ = shutdownTracing(ctx)
		return err
	}

	start := time.Now()
	if err := a.analytics.Refresh(ctx); err != nil {
		logger.Warn("initial data load failed, serving without data until the next refresh", "error", err)
	} else {
		logger.Info("data loaded", "duration", time.Since(start))
	}

	refreshCtx, stopRefresh := context.WithCancel(context.WithoutCancel(ctx))
	refreshDone := make(chan struct{})
	go func() {
		defer close(refreshDone)
		a.analytics.Run(refreshCtx, cfg.Sources.RefreshInterval)
	}()

	httpServer := &http.Server{
		Addr:         cfg.Address(),
		Handler:      a.handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	gracefulServer := server.NewGracefulServer(httpServer, logger, cfg.Server)

	gracefulServer.RegisterShutdownHook(func(ctx context.Context) error {
		logger.Info("stopping refresh loop")
		stopRefresh()
		select {
		case <-refreshDone:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	gracefulServer.RegisterShutdownHook(shutdownTracing)
	if a.gcs != nil {
		gracefulServer.RegisterShutdownHook(func(context.Context) error {
			return a.gcs.Close()
		})
	}

	err = gracefulServer.Run(ctx)
	stopRefresh()
	return err
}
