package apiserver

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-logr/logr"

	"github.com/edgerun/skippy/internal/audit"
	"github.com/edgerun/skippy/internal/config"
	intmetrics "github.com/edgerun/skippy/internal/metrics"
	"github.com/edgerun/skippy/internal/skippy/clustercontext"
	"github.com/edgerun/skippy/internal/skippy/scheduler"
	"github.com/edgerun/skippy/pkg/explain"
)

// NewServer creates a new HTTP server for the scheduler's REST API.
// explainer may be nil to disable the optional ?explain=true narration.
func NewServer(log logr.Logger, cfg *config.Config, sched *scheduler.Scheduler, ctx clustercontext.ClusterContext, auditLog *audit.Log, metricsStore *intmetrics.Store, explainer *explain.Explainer) *http.Server {
	router := NewRouter(log, sched, ctx, auditLog, metricsStore, explainer)

	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.APIServer.Address, cfg.APIServer.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}
