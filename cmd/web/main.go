package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"resale-insights/internal/config"
	"resale-insights/internal/middleware"
	"resale-insights/internal/observability"
	"resale-insights/internal/server"
	"resale-insights/internal/services"
	"resale-insights/internal/ui/templates"
)

const (
	renderTimeout = 10 * time.Second
	cacheMaxAge   = "public, max-age=300"
)

func handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), renderTimeout)
	defer cancel()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", cacheMaxAge)
	if err := templates.Dashboard().Render(ctx, w); err != nil {
		http.Error(w, "render error", http.StatusInternalServerError)
	}
}

// loadStartupData analyzes the configured CSV files, if any. A failure here
// is not fatal; data can still be uploaded through /api/ingest.
func loadStartupData(analytics *services.Analytics, data config.DataConfig, logger *slog.Logger) {
	if data.ReturnsFile == "" && data.SalesFile == "" {
		logger.Info("no startup data configured, waiting for upload")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), data.LoadTimeout)
	defer cancel()

	start := time.Now()
	report, err := analytics.LoadFromCSV(ctx, data.ReturnsFile, data.SalesFile)
	if err != nil {
		logger.Error("failed to load startup data",
			"returns_file", data.ReturnsFile,
			"sales_file", data.SalesFile,
			"error", err,
		)
		return
	}
	logger.Info("startup data analyzed",
		"run_id", report.RunID,
		"failures", len(report.Failures),
		"duration", time.Since(start),
	)
}

func newHandler(cfg *config.Config, analytics *services.Analytics, logger *slog.Logger, metrics *observability.Metrics) http.Handler {
	templateHandlers := &server.TemplateHandlers{
		Dashboard: handleDashboard,
	}
	ingestGuard := middleware.IngestGuard(middleware.NewIngestLimiter(cfg.Security), cfg.Data.MaxUploadBytes, logger)
	srv := server.NewServer(analytics, logger, templateHandlers, cfg.Data, metrics, server.WithIngestGuard(ingestGuard))

	rateLimiter := middleware.NewRateLimiter(cfg.Security)

	// Metrics stays last so it sees the route pattern set by the mux.
	middlewareChain := middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Logger(logger),
		middleware.Tracing(),
		middleware.SecurityHeaders(),
		middleware.CORS(cfg.Security),
		middleware.TrustedProxy(cfg.Security),
		middleware.RateLimit(rateLimiter, logger),
		middleware.Metrics(metrics),
	)

	return middlewareChain(srv)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Logger)
	slog.SetDefault(logger)

	logger.Info("starting application",
		"version", "1.0.0",
		"address", cfg.Address(),
		"neighbor_k", cfg.Analytics.NeighborK,
		"max_distance_km", cfg.Analytics.MaxDistanceKm,
		"synthetic", cfg.Analytics.Synthetic.Enabled,
	)

	metrics := observability.NewMetrics()
	analytics := services.NewAnalytics(cfg.Analytics, logger, metrics)
	loadStartupData(analytics, cfg.Data, logger)

	httpServer := &http.Server{
		Addr:         cfg.Address(),
		Handler:      newHandler(cfg, analytics, logger, metrics),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	gracefulServer := server.NewGracefulServer(httpServer, logger, cfg)

	gracefulServer.RegisterShutdownHook(func(ctx context.Context) error {
		stats := analytics.Stats()
		logger.Info("shutting down analytics service",
			"runs", stats["runs"],
			"record_count", stats["record_count"],
		)
		return nil
	})

	logger.Info("starting graceful server")
	if err := gracefulServer.ListenAndServe(context.Background()); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("application stopped gracefully")
}
