package server

import (
	"log/slog"
	"net/http"

	"ze-dashboard/internal/handlers"
	"ze-dashboard/internal/observability"
	"ze-dashboard/internal/services"
)

type Server struct {
	analytics   *services.Analytics
	mux         *http.ServeMux
	logger      *slog.Logger
	metrics     *observability.Metrics
	apiHandlers *handlers.APIHandlers
	sseHandlers *handlers.SSEHandlers
}

type TemplateHandlers struct {
	Dashboard http.HandlerFunc
}

type Options struct {
	Metrics        *observability.Metrics
	MaxUploadBytes int64
	Version        string
}

func NewServer(analytics *services.Analytics, logger *slog.Logger, templateHandlers *TemplateHandlers, opts Options) *Server {
	if opts.Metrics == nil {
		opts.Metrics = observability.NewMetrics()
	}
	s := &Server{
		analytics:   analytics,
		mux:         http.NewServeMux(),
		logger:      logger,
		metrics:     opts.Metrics,
		apiHandlers: handlers.NewAPIHandlers(analytics, logger, opts.MaxUploadBytes, opts.Version),
		sseHandlers: handlers.NewSSEHandlers(analytics, logger, opts.MaxUploadBytes),
	}
	s.setupRoutes(templateHandlers)
	return s
}

func (s *Server) setupRoutes(templateHandlers *TemplateHandlers) {
	s.mux.HandleFunc("GET /{$}", templateHandlers.Dashboard)
	s.mux.HandleFunc("GET /health", s.apiHandlers.HandleHealth)
	s.mux.HandleFunc("GET /admin/stats", s.apiHandlers.HandleStats)
	s.mux.HandleFunc("POST /admin/refresh", s.apiHandlers.HandleRefresh)
	s.mux.Handle("GET /metrics", s.metrics.Handler())

	// JSON API
	s.mux.HandleFunc("GET /api/firms", s.apiHandlers.HandleFirms)
	s.mux.HandleFunc("GET /api/revenue/daily", s.apiHandlers.HandleDailyRevenue)
	s.mux.HandleFunc("GET /api/revenue/monthly", s.apiHandlers.HandleMonthlyRevenue)
	s.mux.HandleFunc("GET /api/trend", s.apiHandlers.HandleTrend)
	s.mux.HandleFunc("GET /api/summary", s.apiHandlers.HandleSummary)
	s.mux.HandleFunc("GET /api/performance", s.apiHandlers.HandlePerformance)
	s.mux.HandleFunc("GET /api/leaders", s.apiHandlers.HandleLeaders)
	s.mux.HandleFunc("POST /api/pos", s.apiHandlers.HandleUploadPOS)
	s.mux.HandleFunc("DELETE /api/pos", s.apiHandlers.HandleResetPOS)

	// Datastar SSE
	s.mux.HandleFunc("GET /sse/firms", s.sseHandlers.HandleFirms)
	s.mux.HandleFunc("GET /sse/performance", s.sseHandlers.HandlePerformance)
	s.mux.HandleFunc("GET /sse/revenue", s.sseHandlers.HandleRevenue)
	s.mux.HandleFunc("GET /sse/refresh-all", s.sseHandlers.HandleRefreshAll)
	s.mux.HandleFunc("GET /sse/live", s.sseHandlers.HandleLive)
	s.mux.HandleFunc("POST /sse/pos", s.sseHandlers.HandleUpload)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
