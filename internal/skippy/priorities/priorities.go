// Package priorities implements the node-scoring functions applied during
// the ranking phase of scheduling: a pluggable Priority maps each feasible
// node to a raw score, then reduces the full score vector (typically rank
// normalization) before the scheduler applies its configured weight.
package priorities

import (
	"fmt"
	"math"

	"github.com/go-logr/logr"

	"github.com/edgerun/skippy/internal/skippy/clustercontext"
	"github.com/edgerun/skippy/internal/skippy/model"
	"github.com/edgerun/skippy/internal/skippy/storage"
	"github.com/edgerun/skippy/internal/skippy/util"
)

// DefaultMaxPriority is the target range for normalized scores, matching
// the original ClusterContext.max_priority default.
const DefaultMaxPriority = 10

// Priority scores nodes for a pod, then optionally reduces the score
// vector across all scored nodes (e.g. rank normalization).
type Priority interface {
	Name() string
	MapNodeScore(ctx clustercontext.ClusterContext, pod model.Pod, node *model.Node, maxPriority int) int
	ReduceMappedScore(ctx clustercontext.ClusterContext, pod model.Pod, nodes []*model.Node, scores []int, maxPriority int) []int
}

// identityReduce is embedded by priorities that don't reduce the vector.
type identityReduce struct{}

func (identityReduce) ReduceMappedScore(_ clustercontext.ClusterContext, _ model.Pod, _ []*model.Node, scores []int, _ int) []int {
	return scores
}

// scale maps xs linearly onto [0, maxPriority]: higher input -> higher
// output. Returns an all-zero vector when every input is equal.
func scale(xs []int, maxPriority int) []int {
	return scaleWithSpan(xs, maxPriority, false)
}

// scaleInverse maps xs linearly onto [0, maxPriority]: lower input ->
// higher output. Returns an all-zero vector when every input is equal.
func scaleInverse(xs []int, maxPriority int) []int {
	return scaleWithSpan(xs, maxPriority, true)
}

func scaleWithSpan(xs []int, maxPriority int, invert bool) []int {
	out := make([]int, len(xs))
	if len(xs) == 0 {
		return out
	}
	min, max := xs[0], xs[0]
	for _, x := range xs {
		if x < min {
			min = x
		}
		if x > max {
			max = x
		}
	}
	span := max - min
	if span == 0 {
		return out
	}
	for i, x := range xs {
		var v float64
		if invert {
			v = float64(maxPriority) * float64(x-max) / float64(min-max)
		} else {
			v = float64(maxPriority) * float64(x-min) / float64(max-min)
		}
		out[i] = int(math.Round(v))
	}
	return out
}

// EqualPriority scores every node identically.
type EqualPriority struct{ identityReduce }

func (EqualPriority) Name() string { return "EqualPriority" }

func (EqualPriority) MapNodeScore(_ clustercontext.ClusterContext, _ model.Pod, _ *model.Node, _ int) int {
	return 1
}

// BalancedResourcePriority favors nodes whose fraction of requested CPU
// and requested memory (relative to free capacity) are close to each
// other, so a pod's placement doesn't skew one resource dimension.
type BalancedResourcePriority struct{ identityReduce }

func (BalancedResourcePriority) Name() string { return "BalancedResourcePriority" }

func (BalancedResourcePriority) MapNodeScore(_ clustercontext.ClusterContext, pod model.Pod, node *model.Node, maxPriority int) int {
	var requestedCPU, requestedMem int64
	for _, ct := range pod.Spec.Containers {
		requestedCPU += ct.Resources.CPUMillis()
		requestedMem += ct.Resources.MemoryBytes()
	}

	cpuFraction := fractionOfCapacity(requestedCPU, node.Allocatable.CPUMillis)
	memFraction := fractionOfCapacity(requestedMem, node.Allocatable.Memory)

	if cpuFraction >= 1 || memFraction >= 1 {
		return 0
	}

	diff := math.Abs(cpuFraction - memFraction)
	return int((1 - diff) * float64(maxPriority))
}

func fractionOfCapacity(requested, allocatable int64) float64 {
	if allocatable == 0 {
		allocatable = 1
	}
	return float64(requested) / float64(allocatable)
}

// imageLocalityThresholds bound the running sum ImageLocalityPriority maps
// into [0, maxPriority].
const (
	mib          = 1024 * 1024
	minThreshold = 23 * mib
	maxThreshold = 1000 * mib
)

// ImageLocalityPriority rewards nodes that already cache the pod's images,
// weighting each cached image's size by the fraction of cluster nodes that
// already cache it (a more widely spread image contributes more).
type ImageLocalityPriority struct{ identityReduce }

func (ImageLocalityPriority) Name() string { return "ImageLocalityPriority" }

func (ImageLocalityPriority) MapNodeScore(ctx clustercontext.ClusterContext, pod model.Pod, node *model.Node, maxPriority int) int {
	totalNodes := len(ctx.ListNodes())
	if totalNodes == 0 {
		return 0
	}
	cached := ctx.ImagesOnNode(node.Name)

	var sum int64
	arch := node.Arch()
	for _, ct := range pod.Spec.Containers {
		img := util.NormalizeImageName(ct.Image)
		state, ok := cached[img]
		if !ok {
			continue
		}
		size, ok := state.SizeForArch(arch)
		if !ok {
			panic(&clustercontext.ProgrammerError{
				Msg: fmt.Sprintf("image %q has no recorded size for any architecture", img),
			})
		}
		spread := float64(state.NumNodes) / float64(totalNodes)
		sum += int64(float64(size) * spread)
	}

	if sum < minThreshold {
		sum = minThreshold
	} else if sum > maxThreshold {
		sum = maxThreshold
	}
	return int(float64(maxPriority) * float64(sum-minThreshold) / float64(maxThreshold-minThreshold))
}

// downloadPriority is the shared map/reduce shape for priorities that
// estimate a download time from a source to the candidate node and
// reward smaller times.
type downloadPriority struct {
	log logr.Logger
	// size returns the bytes that would need to be transferred for pod on
	// node, and the node to transfer them from.
	size func(ctx clustercontext.ClusterContext, pod model.Pod, node *model.Node) (bytes int64, from string)
}

func (d downloadPriority) mapNodeScore(ctx clustercontext.ClusterContext, pod model.Pod, node *model.Node) int {
	bytes, from := d.size(ctx, pod, node)
	if bytes == 0 {
		return 0
	}
	bw := ctx.DLBandwidth(from, node.Name)
	if bw <= 0 {
		return 0
	}
	return int(math.Floor(float64(bytes) / bw))
}

// LatencyAwareImageLocalityPriority scores nodes by how long it would take
// to pull every image the pod needs but doesn't already have cached,
// downloading from the registry. Lower time scores higher.
//
// The canonical reduction (per spec) is linear scaling with an inverted
// rank offset, dividing by the max over the vector:
//
//	score = floor(maxPriority * (max - raw + min) / max)
//
// scaleInverse (above) is an alternative that is not used here, and its
// results differ: the form above gives the slowest node
// floor(maxPriority*min/max) rather than 0, gives every node maxPriority
// when all scores are equal and non-zero (scaleInverse gives 0), and floors
// where scaleInverse rounds. Both return all zeros when every score is 0.
type LatencyAwareImageLocalityPriority struct {
	Log logr.Logger
}

func (LatencyAwareImageLocalityPriority) Name() string { return "LatencyAwareImageLocalityPriority" }

func (p LatencyAwareImageLocalityPriority) MapNodeScore(ctx clustercontext.ClusterContext, pod model.Pod, node *model.Node, _ int) int {
	dp := downloadPriority{log: p.Log, size: p.sizeToDownload}
	return dp.mapNodeScore(ctx, pod, node)
}

func (p LatencyAwareImageLocalityPriority) sizeToDownload(ctx clustercontext.ClusterContext, pod model.Pod, node *model.Node) (int64, string) {
	cached := ctx.ImagesOnNode(node.Name)
	arch := node.Arch()
	var total int64
	for _, ct := range pod.Spec.Containers {
		img := util.NormalizeImageName(ct.Image)
		if _, ok := cached[img]; ok {
			continue
		}
		state, err := ctx.GetImageState(img)
		if err != nil {
			continue
		}
		size, ok := state.SizeForArch(arch)
		if !ok {
			panic(&clustercontext.ProgrammerError{
				Msg: fmt.Sprintf("image %q has no recorded size for any architecture", img),
			})
		}
		if _, exact := state.Size[arch]; !exact {
			p.Log.V(1).Info("falling back to another architecture's image size", "image", img, "wantArch", arch)
		}
		total += size
	}
	return total, clustercontext.RegistryNode
}

func (p LatencyAwareImageLocalityPriority) ReduceMappedScore(_ clustercontext.ClusterContext, _ model.Pod, _ []*model.Node, scores []int, maxPriority int) []int {
	max := 0
	for _, s := range scores {
		if s > max {
			max = s
		}
	}
	out := make([]int, len(scores))
	if max == 0 {
		return out
	}
	min := scores[0]
	for _, s := range scores {
		if s < min {
			min = s
		}
	}
	for i, s := range scores {
		out[i] = int(math.Floor(float64(maxPriority) * float64(max-s+min) / float64(max)))
	}
	return out
}

// LocalityTypePriority rewards edge nodes over cloud nodes.
type LocalityTypePriority struct{ identityReduce }

func (LocalityTypePriority) Name() string { return "LocalityTypePriority" }

func (LocalityTypePriority) MapNodeScore(_ clustercontext.ClusterContext, _ model.Pod, node *model.Node, maxPriority int) int {
	switch node.Labels[model.LabelLocalityType] {
	case "edge":
		return maxPriority
	default:
		return 0
	}
}

// CapabilityPriority counts matching capability.skippy.io/* labels between
// pod and node, then scales the raw counts into [0, maxPriority].
type CapabilityPriority struct{}

func (CapabilityPriority) Name() string { return "CapabilityPriority" }

func (CapabilityPriority) MapNodeScore(_ clustercontext.ClusterContext, pod model.Pod, node *model.Node, _ int) int {
	score := 0
	for k, v := range node.Labels {
		if !containsCapabilityMarker(k) {
			continue
		}
		if pv, ok := pod.Spec.Labels[k]; ok && pv == v {
			score++
		}
	}
	return score
}

func (CapabilityPriority) ReduceMappedScore(_ clustercontext.ClusterContext, _ model.Pod, _ []*model.Node, scores []int, maxPriority int) []int {
	return scale(scores, maxPriority)
}

func containsCapabilityMarker(key string) bool {
	const marker = "capability.skippy.io"
	return len(key) >= len(marker) && indexOf(key, marker) >= 0
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}

// DataLocalityPriority rewards nodes that are cheap to move the pod's
// input/output data to/from, using the bandwidth graph and storage index.
// A candidate node that is itself a storage node for the item pays zero.
type DataLocalityPriority struct {
	Storage *storage.Index
}

func (DataLocalityPriority) Name() string { return "DataLocalityPriority" }

func (d DataLocalityPriority) MapNodeScore(ctx clustercontext.ClusterContext, pod model.Pod, node *model.Node, _ int) int {
	var total int64
	if path, ok := pod.Spec.Labels[model.LabelReceivesFromStorage]; ok {
		total += d.transferTime(ctx, node, path, true)
	}
	if path, ok := pod.Spec.Labels[model.LabelSendsToStorage]; ok {
		total += d.transferTime(ctx, node, path, false)
	}
	return int(total)
}

// transferTime resolves path ("bucket/name") to a DataItem and the set of
// nodes hosting it, then returns the time to move it in the given
// direction (receive: storage -> node; send: node -> storage), picking the
// storage node with the minimum bandwidth in that direction. Zero if the
// item is unknown, or if node itself hosts it.
func (d DataLocalityPriority) transferTime(ctx clustercontext.ClusterContext, node *model.Node, path string, receive bool) int64 {
	bucket, name, ok := splitBucketPath(path)
	if !ok {
		return 0
	}

	var item storage.DataItem
	var holders map[string]struct{}
	if d.Storage != nil {
		it, found := d.Storage.Stat(bucket, name)
		if !found {
			return 0
		}
		item = it
		holders = d.Storage.DataNodes(bucket, name)
	}
	if len(holders) == 0 {
		// No storage index configured: fall back to the cluster
		// context's single next-storage-node hint (kept for backwards
		// compatibility). No item size is known on this path, so a
		// non-holder node's transfer time comes out as 0.
		target := ctx.NextStorageNode(node)
		if target == "" {
			return 0
		}
		holders = map[string]struct{}{target: {}}
	}

	if _, isHolder := holders[node.Name]; isHolder {
		return 0
	}

	var minBW float64 = -1
	for holder := range holders {
		var bw float64
		if receive {
			bw = ctx.DLBandwidth(holder, node.Name)
		} else {
			bw = ctx.DLBandwidth(node.Name, holder)
		}
		if bw <= 0 {
			continue
		}
		if minBW < 0 || bw < minBW {
			minBW = bw
		}
	}
	if minBW <= 0 {
		return 0
	}
	return int64(math.Floor(float64(item.Size) / minBW))
}

func splitBucketPath(path string) (bucket, name string, ok bool) {
	for i := 0; i < len(path); i++ {
		if path[i] == '/' {
			return path[:i], path[i+1:], true
		}
	}
	return "", "", false
}

func (DataLocalityPriority) ReduceMappedScore(_ clustercontext.ClusterContext, _ model.Pod, _ []*model.Node, scores []int, maxPriority int) []int {
	return scaleInverse(scores, maxPriority)
}
