// Package liveadapter provides Live, a ClusterContext that can be rebuilt
// in the background from an external source of truth (a Kubernetes API
// server, a cloud provider's instance inventory) without the scheduler
// ever holding a stale pointer. It holds the same
// sync.RWMutex-guarded-swap shape the teacher's cluster state cache uses
// for its nodes/pods maps, applied here to an entire
// clustercontext.MemoryClusterContext snapshot instead of two maps.
package liveadapter

import (
	"sync"

	"github.com/edgerun/skippy/internal/skippy/clustercontext"
	"github.com/edgerun/skippy/internal/skippy/model"
)

// Live wraps a *clustercontext.MemoryClusterContext behind a pointer that
// Swap can atomically replace. Every ClusterContext method is forwarded to
// whatever snapshot is current at call time.
//
// Swapping loses bookkeeping the scheduler made against the previous
// snapshot (placed pods, image-cache counts) that the external source
// hasn't observed yet — the same optimistic-then-reconciled gap a real
// cluster has between a Bind call and the next kubelet/API sync. Callers
// that need the prior snapshot's placements folded in should read them
// via ListNodes before building the next snapshot.
type Live struct {
	mu      sync.RWMutex
	current *clustercontext.MemoryClusterContext
}

var _ clustercontext.ClusterContext = (*Live)(nil)

// New wraps an initial snapshot. initial may be nil, but then Swap must
// install a snapshot before any ClusterContext method is called, since the
// forwarding methods dereference the current snapshot.
func New(initial *clustercontext.MemoryClusterContext) *Live {
	return &Live{current: initial}
}

// Swap replaces the current snapshot.
func (l *Live) Swap(next *clustercontext.MemoryClusterContext) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.current = next
}

func (l *Live) snapshot() *clustercontext.MemoryClusterContext {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

func (l *Live) ListNodes() []*model.Node { return l.snapshot().ListNodes() }

func (l *Live) GetNode(name string) (*model.Node, bool) { return l.snapshot().GetNode(name) }

func (l *Live) InitialImageStates() map[string]*model.ImageState {
	return l.snapshot().InitialImageStates()
}

func (l *Live) BandwidthGraph() clustercontext.BandwidthGraph { return l.snapshot().BandwidthGraph() }

func (l *Live) NextStorageNode(node *model.Node) string { return l.snapshot().NextStorageNode(node) }

func (l *Live) DLBandwidth(from, to string) float64 { return l.snapshot().DLBandwidth(from, to) }

func (l *Live) GetImageState(normalizedImage string) (*model.ImageState, error) {
	return l.snapshot().GetImageState(normalizedImage)
}

func (l *Live) ImageSizes(pod model.Pod, arch string) map[string]int64 {
	return l.snapshot().ImageSizes(pod, arch)
}

func (l *Live) PlacePodOnNode(pod model.Pod, node *model.Node) { l.snapshot().PlacePodOnNode(pod, node) }

func (l *Live) RemovePodFromNode(pod model.Pod, node *model.Node) {
	l.snapshot().RemovePodFromNode(pod, node)
}

func (l *Live) RemovePodImagesFromNode(pod model.Pod, node *model.Node) {
	l.snapshot().RemovePodImagesFromNode(pod, node)
}

func (l *Live) ImagesOnNode(nodeName string) map[string]*model.ImageState {
	return l.snapshot().ImagesOnNode(nodeName)
}
