package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-logr/logr"

	"github.com/edgerun/skippy/internal/audit"
	intmetrics "github.com/edgerun/skippy/internal/metrics"
	"github.com/edgerun/skippy/internal/skippy/model"
	"github.com/edgerun/skippy/internal/skippy/scheduler"
	"github.com/edgerun/skippy/pkg/explain"
)

// PodHandler exposes the scheduler's core operation over HTTP: submit a pod,
// get back the placement decision.
type PodHandler struct {
	log       logr.Logger
	scheduler *scheduler.Scheduler
	auditLog  *audit.Log
	metrics   *intmetrics.Store
	explainer *explain.Explainer // may be nil; Explain is nil-receiver safe either way
}

func NewPodHandler(log logr.Logger, s *scheduler.Scheduler, auditLog *audit.Log, metricsStore *intmetrics.Store, explainer *explain.Explainer) *PodHandler {
	return &PodHandler{log: log, scheduler: s, auditLog: auditLog, metrics: metricsStore, explainer: explainer}
}

type containerRequest struct {
	Image     string                   `json:"image"`
	Resources model.ResourceRequest    `json:"resources"`
}

type submitPodRequest struct {
	Name       string              `json:"name"`
	Namespace  string              `json:"namespace"`
	Containers []containerRequest  `json:"containers"`
	Labels     map[string]string   `json:"labels"`
}

type submitPodResponse struct {
	ChosenNode    string           `json:"chosenNode,omitempty"`
	FeasibleNodes int              `json:"feasibleNodes"`
	NeededImages  []string         `json:"neededImages,omitempty"`
	Explanation   *explain.Response `json:"explanation,omitempty"`
}

// Submit schedules one pod and returns the placement decision. A
// *clustercontext.ProgrammerError panic from the scheduling core (a data
// invariant the embedder's inventory loader should never violate) is
// recorded as a metric here and then re-raised for chi's Recoverer
// middleware to turn into a 500 — this handler never suppresses it.
func (h *PodHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitPodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body: " + err.Error()})
		return
	}
	if req.Name == "" || req.Namespace == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name and namespace are required"})
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			intmetrics.ProgrammerErrorsTotal.WithLabelValues("apiserver").Inc()
			panic(rec)
		}
	}()

	pod := model.Pod{
		Name:      req.Name,
		Namespace: req.Namespace,
		Spec: model.PodSpec{
			Labels: req.Labels,
		},
	}
	for _, c := range req.Containers {
		pod.Spec.Containers = append(pod.Spec.Containers, model.NewContainer(c.Image, c.Resources))
	}

	start := time.Now()
	result, err := h.scheduler.Schedule(pod)
	latency := time.Since(start)

	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	outcome := "infeasible"
	chosenNode := ""
	if result.SuggestedHost != nil {
		outcome = "placed"
		chosenNode = result.SuggestedHost.Name
	}
	intmetrics.SchedulingDecisionsTotal.WithLabelValues(outcome).Inc()
	intmetrics.SchedulingDurationSeconds.Observe(latency.Seconds())
	intmetrics.FeasibleNodesFound.Observe(float64(result.FeasibleNodes))
	locality := "cloud"
	if result.SuggestedHost != nil && result.SuggestedHost.Labels[model.LabelLocalityType] == "edge" {
		locality = "edge"
	}
	intmetrics.NeededImagesTotal.WithLabelValues(locality).Add(float64(len(result.NeededImages)))

	if h.auditLog != nil {
		h.auditLog.Record(pod, result, latency)
	}
	if h.metrics != nil {
		h.metrics.RecordDecision(start, latency, result.FeasibleNodes, chosenNode)
	}

	h.log.V(1).Info("scheduled pod", "pod", pod.Key(), "node", chosenNode, "feasibleNodes", result.FeasibleNodes)

	resp := submitPodResponse{
		ChosenNode:    chosenNode,
		FeasibleNodes: result.FeasibleNodes,
		NeededImages:  result.NeededImages,
	}
	if r.URL.Query().Get("explain") == "true" {
		explanation, explainErr := h.explainer.Explain(r.Context(), explain.Request{Pod: pod, Result: result})
		if explainErr != nil {
			h.log.V(1).Info("explain failed, omitting explanation", "pod", pod.Key(), "error", explainErr)
		} else {
			resp.Explanation = explanation
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
