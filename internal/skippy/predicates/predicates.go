// Package predicates implements the boolean feasibility checks applied
// during the filter phase of scheduling.
package predicates

import (
	"github.com/go-logr/logr"

	"github.com/edgerun/skippy/internal/skippy/clustercontext"
	"github.com/edgerun/skippy/internal/skippy/model"
)

// Predicate is a pure feasibility check for placing pod on node.
type Predicate interface {
	Name() string
	PassesPredicate(ctx clustercontext.ClusterContext, pod model.Pod, node *model.Node) bool
}

// Combined conjoins a list of predicates, short-circuiting on the first
// failure and logging each individual outcome at debug level.
type Combined struct {
	log        logr.Logger
	predicates []Predicate
}

// NewCombined builds a Combined predicate over preds, using log for the
// per-predicate debug trace.
func NewCombined(log logr.Logger, preds []Predicate) *Combined {
	return &Combined{log: log, predicates: preds}
}

func (c *Combined) Name() string { return "Combined" }

func (c *Combined) PassesPredicate(ctx clustercontext.ClusterContext, pod model.Pod, node *model.Node) bool {
	for _, p := range c.predicates {
		result := p.PassesPredicate(ctx, pod, node)
		c.log.V(1).Info("predicate evaluated", "pod", pod.Key(), "node", node.Name,
			"predicate", p.Name(), "passed", result)
		if !result {
			return false
		}
	}
	return true
}

// PodFitsResources is the only predicate the spec defines: the sum of the
// pod's container resource requests (with defaults applied) must fit
// within the node's current allocatable capacity.
type PodFitsResources struct{}

func (PodFitsResources) Name() string { return "PodFitsResources" }

func (PodFitsResources) PassesPredicate(_ clustercontext.ClusterContext, pod model.Pod, node *model.Node) bool {
	var requestedCPU, requestedMem int64
	for _, ct := range pod.Spec.Containers {
		requestedCPU += ct.Resources.CPUMillis()
		requestedMem += ct.Resources.MemoryBytes()
	}
	return requestedCPU <= node.Allocatable.CPUMillis && requestedMem <= node.Allocatable.Memory
}
