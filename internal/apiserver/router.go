package apiserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/edgerun/skippy/internal/apiserver/handler"
	"github.com/edgerun/skippy/internal/audit"
	intmetrics "github.com/edgerun/skippy/internal/metrics"
	"github.com/edgerun/skippy/internal/skippy/clustercontext"
	"github.com/edgerun/skippy/internal/skippy/scheduler"
	"github.com/edgerun/skippy/pkg/explain"
)

// NewRouter creates the API router with all endpoints. explainer may be
// nil; PodHandler.Submit treats a nil explainer the same as a disabled one.
func NewRouter(log logr.Logger, sched *scheduler.Scheduler, ctx clustercontext.ClusterContext, auditLog *audit.Log, metricsStore *intmetrics.Store, explainer *explain.Explainer) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	podHandler := handler.NewPodHandler(log, sched, auditLog, metricsStore, explainer)
	nodeHandler := handler.NewNodeHandler(ctx)
	auditHandler := handler.NewAuditHandler(auditLog)
	statusHandler := handler.NewStatusHandler(metricsStore)

	r.Get("/healthz", statusHandler.GetHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/pods", podHandler.Submit)

		r.Get("/nodes", nodeHandler.List)
		r.Get("/nodes/{name}", nodeHandler.Get)

		r.Get("/audit", auditHandler.List)

		r.Get("/status/decisions", statusHandler.GetRecentDecisions)
	})

	return r
}
