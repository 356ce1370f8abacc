// Package scheduler implements the sample -> filter -> score -> aggregate
// -> commit pipeline that turns a pod and a ClusterContext into a single
// placement decision.
package scheduler

import (
	"sync"

	"github.com/go-logr/logr"

	"github.com/edgerun/skippy/internal/skippy/clustercontext"
	"github.com/edgerun/skippy/internal/skippy/model"
	"github.com/edgerun/skippy/internal/skippy/predicates"
	"github.com/edgerun/skippy/internal/skippy/priorities"
	"github.com/edgerun/skippy/internal/skippy/storage"
	"github.com/edgerun/skippy/internal/skippy/util"
)

// Sampling-bound constants, see NumFeasibleNodesToFind.
const (
	minFeasibleNodesToFind           = 100
	minFeasibleNodesPercentageToFind = 5
	DefaultPercentageOfNodesToScore  = 50
)

// MaxPriority is the target range every priority's reduced score is scaled
// into before weighting.
const MaxPriority = priorities.DefaultMaxPriority

// WeightedPriority pairs a Priority with the integer weight its reduced
// score is multiplied by before being accumulated into a node's total.
type WeightedPriority struct {
	Weight   int
	Priority priorities.Priority
}

// Config holds a Scheduler's pluggable pieces and tunables. A zero Config's
// PercentageOfNodesToScore of 0 is treated as "use the adaptive formula",
// matching the spec's percentage semantics — callers that want the literal
// default of 100 must set it explicitly, callers that want the pipeline's
// historical default should use NewDefaultConfig.
type Config struct {
	Priorities               []WeightedPriority
	Predicate                predicates.Predicate
	PercentageOfNodesToScore int
}

// NewDefaultConfig returns the spec's default weighted priority list
// (1.0 x BalancedResource, LatencyAwareImageLocality, LocalityType,
// DataLocality, Capability), the resource-fit predicate, and
// percentage_of_nodes_to_score = 100.
func NewDefaultConfig(log logr.Logger, storageIndex *storage.Index) Config {
	return Config{
		Priorities: []WeightedPriority{
			{Weight: 1, Priority: priorities.BalancedResourcePriority{}},
			{Weight: 1, Priority: priorities.LatencyAwareImageLocalityPriority{Log: log}},
			{Weight: 1, Priority: priorities.LocalityTypePriority{}},
			{Weight: 1, Priority: priorities.DataLocalityPriority{Storage: storageIndex}},
			{Weight: 1, Priority: priorities.CapabilityPriority{}},
		},
		Predicate:                predicates.NewCombined(log, []predicates.Predicate{predicates.PodFitsResources{}}),
		PercentageOfNodesToScore: 100,
	}
}

// Scheduler runs the scheduling pipeline against a single ClusterContext.
// Schedule calls on one Scheduler are serialized by its own mutex; nothing
// coordinates several Schedulers sharing one ClusterContext, so callers
// running more than one must serialize their Schedule calls themselves.
type Scheduler struct {
	mu  sync.Mutex
	log logr.Logger

	ctx    clustercontext.ClusterContext
	config Config

	// lastScoredNodeIndex is the round-robin cursor, preserved across
	// Schedule calls so that every node is eventually sampled.
	lastScoredNodeIndex int
}

// New builds a Scheduler over ctx using config.
func New(log logr.Logger, ctx clustercontext.ClusterContext, config Config) *Scheduler {
	return &Scheduler{log: log, ctx: ctx, config: config}
}

// NumFeasibleNodesToFind computes the target count of feasible nodes the
// scheduler accepts before it stops sampling, given the total node count n
// and the configured percentage (0 triggers the adaptive formula).
func NumFeasibleNodesToFind(n int, percentage int) int {
	if n < 5 || percentage >= 100 {
		return n
	}
	pct := percentage
	if pct <= 0 {
		pct = DefaultPercentageOfNodesToScore - n/125
		if pct < minFeasibleNodesPercentageToFind {
			pct = minFeasibleNodesPercentageToFind
		}
	}
	target := n * pct / 100
	if target < minFeasibleNodesToFind {
		target = minFeasibleNodesToFind
	}
	return target
}

// Schedule runs the full pipeline for pod: sample a slice of nodes starting
// at the round-robin cursor, filter to the feasible subset, score and rank
// them, commit the placement on the winner, and advance the cursor.
func (s *Scheduler) Schedule(pod model.Pod) (model.SchedulingResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nodes := s.ctx.ListNodes()
	if len(nodes) == 0 {
		return model.SchedulingResult{}, nil
	}

	target := NumFeasibleNodesToFind(len(nodes), s.config.PercentageOfNodesToScore)

	feasible, lastAcceptedIdx := s.sampleFeasible(pod, nodes, target)
	if len(feasible) == 0 {
		return model.SchedulingResult{FeasibleNodes: 0}, nil
	}

	totals := make([]int, len(feasible))
	for _, wp := range s.config.Priorities {
		raw := make([]int, len(feasible))
		for i, n := range feasible {
			raw[i] = wp.Priority.MapNodeScore(s.ctx, pod, n, MaxPriority)
		}
		reduced := wp.Priority.ReduceMappedScore(s.ctx, pod, feasible, raw, MaxPriority)
		for i, v := range reduced {
			totals[i] += v * wp.Weight
		}
	}

	winner := 0
	for i := 1; i < len(totals); i++ {
		if totals[i] > totals[winner] {
			winner = i
		}
	}
	chosen := feasible[winner]

	needed := neededImages(s.ctx, pod, chosen)

	s.ctx.PlacePodOnNode(pod, chosen)

	s.lastScoredNodeIndex = (lastAcceptedIdx + 1) % len(nodes)

	s.log.V(1).Info("scheduled pod", "pod", pod.Key(), "node", chosen.Name,
		"feasibleNodes", len(feasible), "neededImages", needed)

	return model.SchedulingResult{
		SuggestedHost: chosen,
		FeasibleNodes: len(feasible),
		NeededImages:  needed,
	}, nil
}

// sampleFeasible walks nodes starting at the cursor, wrapping once, and
// returns every node passing the predicate up to target of them, plus the
// base-order index of the last one accepted (for cursor advancement). If no
// node is accepted, lastAcceptedIdx is the cursor's starting position minus
// one (so the cursor does not move).
func (s *Scheduler) sampleFeasible(pod model.Pod, nodes []*model.Node, target int) ([]*model.Node, int) {
	n := len(nodes)
	start := s.lastScoredNodeIndex % n
	if start < 0 {
		start = 0
	}

	var feasible []*model.Node
	lastAcceptedIdx := (start - 1 + n) % n

	for i := 0; i < n; i++ {
		idx := (start + i) % n
		node := nodes[idx]
		if s.config.Predicate.PassesPredicate(s.ctx, pod, node) {
			feasible = append(feasible, node)
			lastAcceptedIdx = idx
			if len(feasible) >= target {
				break
			}
		}
	}
	return feasible, lastAcceptedIdx
}

// neededImages returns the normalized image names of pod's containers not
// already cached on node, preserving container order. One entry is
// appended per container, so two containers referencing the same
// uncached image produce two identical entries.
func neededImages(ctx clustercontext.ClusterContext, pod model.Pod, node *model.Node) []string {
	cached := ctx.ImagesOnNode(node.Name)
	var out []string
	for _, ct := range pod.Spec.Containers {
		img := util.NormalizeImageName(ct.Image)
		if _, ok := cached[img]; ok {
			continue
		}
		out = append(out, img)
	}
	return out
}
