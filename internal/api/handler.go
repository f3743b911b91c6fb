// Package api provides the HTTP handlers for the lake control plane.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"shoplake/internal/domain"
	"shoplake/internal/middleware"
	"shoplake/internal/warehouse"
)

// Pipeline triggers pipeline runs. Satisfied by *pipeline.Runner.
type Pipeline interface {
	Execute(ctx context.Context, trigger domain.TriggerType, params domain.RunParams) (*domain.Run, error)
}

// Querier executes read-only queries over the lake views. Satisfied by
// *warehouse.Warehouse.
type Querier interface {
	Query(ctx context.Context, query string) (*warehouse.QueryResult, error)
}

// APIHandler serves the REST API for runs, partitions, and ad hoc queries.
type APIHandler struct {
	pipeline   Pipeline
	runs       domain.RunRepository
	partitions domain.PartitionRepository
	querier    Querier
	logger     *slog.Logger
}

// NewHandler creates an APIHandler with its service dependencies.
func NewHandler(
	pipeline Pipeline,
	runs domain.RunRepository,
	partitions domain.PartitionRepository,
	querier Querier,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		pipeline:   pipeline,
		runs:       runs,
		partitions: partitions,
		querier:    querier,
		logger:     logger,
	}
}

// RouterConfig carries the HTTP-level settings for the router.
type RouterConfig struct {
	JWTSecret          []byte
	RateLimitRPS       float64
	RateLimitBurst     int
	CORSAllowedOrigins []string
}

// Router wires the middleware stack and all routes. The health endpoint is
// public; everything under /v1 requires a bearer token.
func (h *APIHandler) Router(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RateLimiter(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		Burst:             cfg.RateLimitBurst,
	}))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/healthz", h.Health)

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Post("/runs", h.TriggerRun)
		r.Get("/runs", h.ListRuns)
		r.Get("/runs/{id}", h.GetRun)
		r.Get("/tables", h.ListTables)
		r.Get("/partitions", h.ListPartitions)
		r.Post("/query", h.ExecuteQuery)
	})

	return r
}

// Health reports service liveness.
func (h *APIHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
