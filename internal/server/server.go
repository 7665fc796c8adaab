package server

import (
	"log/slog"
	"net/http"

	"resale-insights/internal/config"
	"resale-insights/internal/handlers"
	"resale-insights/internal/observability"
	"resale-insights/internal/services"
)

type Server struct {
	analytics   *services.Analytics
	mux         *http.ServeMux
	logger      *slog.Logger
	metrics     *observability.Metrics
	apiHandlers *handlers.APIHandlers
	sseHandlers *handlers.SSEHandlers
	ingestGuard func(http.Handler) http.Handler
}

type TemplateHandlers struct {
	Dashboard http.HandlerFunc
}

type Option func(*Server)

// WithIngestGuard wraps the upload route only, ahead of the handler that
// parses the multipart body.
func WithIngestGuard(guard func(http.Handler) http.Handler) Option {
	return func(s *Server) {
		s.ingestGuard = guard
	}
}

func NewServer(analytics *services.Analytics, logger *slog.Logger, templateHandlers *TemplateHandlers, data config.DataConfig, metrics *observability.Metrics, opts ...Option) *Server {
	s := &Server{
		analytics:   analytics,
		mux:         http.NewServeMux(),
		logger:      logger,
		metrics:     metrics,
		apiHandlers: handlers.NewAPIHandlers(analytics, logger, data),
		sseHandlers: handlers.NewSSEHandlers(analytics, logger),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupRoutes(templateHandlers)
	return s
}

func (s *Server) setupRoutes(templateHandlers *TemplateHandlers) {
	// Dashboard routes
	s.mux.HandleFunc("GET /{$}", templateHandlers.Dashboard)
	s.mux.HandleFunc("GET /health", s.apiHandlers.HandleHealth)
	s.mux.HandleFunc("GET /admin/stats", s.apiHandlers.HandleStats)
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics.Handler())
	}

	// REST API endpoints
	var ingest http.Handler = http.HandlerFunc(s.apiHandlers.HandleIngest)
	if s.ingestGuard != nil {
		ingest = s.ingestGuard(ingest)
	}
	s.mux.Handle("POST /api/ingest", ingest)
	s.mux.HandleFunc("GET /api/report", s.apiHandlers.HandleReport)
	s.mux.HandleFunc("GET /api/demand", s.apiHandlers.HandleDemand)
	s.mux.HandleFunc("GET /api/viability", s.apiHandlers.HandleViability)
	s.mux.HandleFunc("GET /api/price-sensitivity", s.apiHandlers.HandlePriceSensitivity)
	s.mux.HandleFunc("GET /api/lifecycle", s.apiHandlers.HandleLifecycle)
	s.mux.HandleFunc("GET /api/segmentation", s.apiHandlers.HandleSegmentation)
	s.mux.HandleFunc("GET /api/channels", s.apiHandlers.HandleChannels)
	s.mux.HandleFunc("POST /api/manual-check", s.apiHandlers.HandleManualCheck)

	// Datastar SSE endpoints
	s.mux.HandleFunc("GET /sse/refresh-all", s.sseHandlers.HandleRefreshAll)
	s.mux.HandleFunc("GET /sse/viability", s.sseHandlers.HandleViability)
	s.mux.HandleFunc("POST /sse/manual-check", s.sseHandlers.HandleManualCheck)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
