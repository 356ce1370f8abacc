// Package clustercontext defines the ClusterContext plug-in surface the
// scheduling core reads and mutates, plus MemoryClusterContext, a
// reference in-memory implementation built once by the caller and then
// mutated only through the documented placement methods.
package clustercontext

import (
	"fmt"
	"sync"

	"github.com/go-logr/logr"

	"github.com/edgerun/skippy/internal/skippy/model"
	"github.com/edgerun/skippy/internal/skippy/util"
)

// RegistryNode is the reserved node name used as the origin of image pulls
// in the bandwidth graph.
const RegistryNode = "registry"

// BandwidthGraph maps node name -> node name -> bytes/second. Not required
// to be symmetric.
type BandwidthGraph map[string]map[string]float64

// ErrUnsupportedImageQuery is returned by the default RetrieveImageState:
// embedders that want remote image-size lookups must override it.
type ErrUnsupportedImageQuery struct {
	Image string
}

func (e *ErrUnsupportedImageQuery) Error() string {
	return fmt.Sprintf("clustercontext: remote image state lookup not supported for %q", e.Image)
}

// ProgrammerError is panicked for internal invariant violations: an
// absent bandwidth edge, or an image with no size entries at all. Per the
// core contract this is unrecoverable and terminates the scheduling call.
type ProgrammerError struct {
	Msg string
}

func (e *ProgrammerError) Error() string { return e.Msg }

// ImageStateRetriever is called by GetImageState when an image has never
// been seen before. The default MemoryClusterContext retriever always
// fails with ErrUnsupportedImageQuery; embedders override it to look up
// remote registries.
type ImageStateRetriever func(normalizedImage string) (*model.ImageState, error)

func defaultRetriever(image string) (*model.ImageState, error) {
	return nil, &ErrUnsupportedImageQuery{Image: image}
}

// ClusterContext is the contract an embedder supplies to the scheduler:
// cluster inventory, a bandwidth graph, image-cache bookkeeping and
// resource accounting. MemoryClusterContext below is the reference
// implementation; other embedders (e.g. a Kubernetes- or AWS-backed one)
// satisfy the same interface.
type ClusterContext interface {
	ListNodes() []*model.Node
	GetNode(name string) (*model.Node, bool)
	InitialImageStates() map[string]*model.ImageState
	BandwidthGraph() BandwidthGraph
	NextStorageNode(node *model.Node) string
	// DLBandwidth returns the bytes/second available from -> to. A missing
	// edge is a ProgrammerError: the bandwidth graph is built once by the
	// embedder and is expected to be complete for every node pair a
	// priority might query; DLBandwidth panics rather than returning an
	// error a caller could plausibly recover from.
	DLBandwidth(from, to string) float64
	GetImageState(normalizedImage string) (*model.ImageState, error)
	ImageSizes(pod model.Pod, arch string) map[string]int64

	PlacePodOnNode(pod model.Pod, node *model.Node)
	RemovePodFromNode(pod model.Pod, node *model.Node)
	RemovePodImagesFromNode(pod model.Pod, node *model.Node)

	// ImagesOnNode returns the set of normalized image names cached on a
	// node, for priorities that need to check cache membership without
	// mutating anything.
	ImagesOnNode(nodeName string) map[string]*model.ImageState
}

// MemoryClusterContext is a reference ClusterContext backed entirely by
// in-process maps. It is built once from a caller-supplied inventory and
// mutated only through PlacePodOnNode / RemovePodFromNode /
// RemovePodImagesFromNode / GetImageState's lazy fill.
type MemoryClusterContext struct {
	mu sync.RWMutex

	log logr.Logger

	nodes       []*model.Node
	nodesByName map[string]*model.Node

	imageStates map[string]*model.ImageState // normalized image name -> state
	imagesOn    map[string]map[string]*model.ImageState // node name -> normalized image -> state

	bandwidth BandwidthGraph

	nextStorage func(node *model.Node) string

	retriever ImageStateRetriever
}

// NewMemoryClusterContext builds a MemoryClusterContext. nodes defines
// list order (and is the base order the scheduler's round-robin cursor
// walks). bandwidth must include RegistryNode as a source. nextStorage
// may be nil, in which case NextStorageNode always returns "".
func NewMemoryClusterContext(
	log logr.Logger,
	nodes []*model.Node,
	initialImageStates map[string]*model.ImageState,
	bandwidth BandwidthGraph,
	nextStorage func(node *model.Node) string,
) *MemoryClusterContext {
	nodesByName := make(map[string]*model.Node, len(nodes))
	for _, n := range nodes {
		nodesByName[n.Name] = n
	}
	states := make(map[string]*model.ImageState, len(initialImageStates))
	for k, v := range initialImageStates {
		states[k] = v
	}
	if nextStorage == nil {
		nextStorage = func(*model.Node) string { return "" }
	}
	return &MemoryClusterContext{
		log:         log,
		nodes:       nodes,
		nodesByName: nodesByName,
		imageStates: states,
		imagesOn:    make(map[string]map[string]*model.ImageState),
		bandwidth:   bandwidth,
		nextStorage: nextStorage,
		retriever:   defaultRetriever,
	}
}

// SetImageStateRetriever overrides the lazy-fill behavior of GetImageState
// for images not already known. Used by embedders that support remote
// image-size lookups.
func (c *MemoryClusterContext) SetImageStateRetriever(r ImageStateRetriever) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.retriever = r
}

func (c *MemoryClusterContext) ListNodes() []*model.Node {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*model.Node, len(c.nodes))
	copy(out, c.nodes)
	return out
}

func (c *MemoryClusterContext) GetNode(name string) (*model.Node, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, ok := c.nodesByName[name]
	return n, ok
}

func (c *MemoryClusterContext) InitialImageStates() map[string]*model.ImageState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]*model.ImageState, len(c.imageStates))
	for k, v := range c.imageStates {
		out[k] = v
	}
	return out
}

func (c *MemoryClusterContext) BandwidthGraph() BandwidthGraph {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bandwidth
}

func (c *MemoryClusterContext) NextStorageNode(node *model.Node) string {
	return c.nextStorage(node)
}

func (c *MemoryClusterContext) DLBandwidth(from, to string) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	row, ok := c.bandwidth[from]
	if !ok {
		panic(&ProgrammerError{Msg: fmt.Sprintf("no bandwidth entries from %q", from)})
	}
	bw, ok := row[to]
	if !ok {
		panic(&ProgrammerError{Msg: fmt.Sprintf("no bandwidth edge %q -> %q", from, to)})
	}
	return bw
}

// GetImageState returns the ImageState for a normalized image name,
// retrieving (and caching) it lazily on first access.
func (c *MemoryClusterContext) GetImageState(normalizedImage string) (*model.ImageState, error) {
	c.mu.RLock()
	if s, ok := c.imageStates[normalizedImage]; ok {
		c.mu.RUnlock()
		return s, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	// re-check under write lock in case of a concurrent fill.
	if s, ok := c.imageStates[normalizedImage]; ok {
		return s, nil
	}
	s, err := c.retriever(normalizedImage)
	if err != nil {
		return nil, err
	}
	c.imageStates[normalizedImage] = s
	return s, nil
}

// ImageSizes returns, for each container in the pod, the image's size for
// the given architecture (falling back to any available architecture).
func (c *MemoryClusterContext) ImageSizes(pod model.Pod, arch string) map[string]int64 {
	out := make(map[string]int64, len(pod.Spec.Containers))
	for _, ct := range pod.Spec.Containers {
		img := util.NormalizeImageName(ct.Image)
		state, err := c.GetImageState(img)
		if err != nil {
			continue
		}
		if size, ok := state.SizeForArch(arch); ok {
			out[img] = size
		}
	}
	return out
}

func (c *MemoryClusterContext) ImagesOnNode(nodeName string) map[string]*model.ImageState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	src := c.imagesOn[nodeName]
	out := make(map[string]*model.ImageState, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// PlacePodOnNode records pod as running on node: for every container whose
// normalized image is not yet cached on the node, the image's ImageState is
// fetched (or created) and its NumNodes incremented; CPU/memory are then
// deducted from node.Allocatable and pod is appended to node.Pods.
func (c *MemoryClusterContext) PlacePodOnNode(pod model.Pod, node *model.Node) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cache, ok := c.imagesOn[node.Name]
	if !ok {
		cache = make(map[string]*model.ImageState)
		c.imagesOn[node.Name] = cache
	}

	for _, ct := range pod.Spec.Containers {
		img := util.NormalizeImageName(ct.Image)
		if _, cached := cache[img]; !cached {
			state, ok := c.imageStates[img]
			if !ok {
				s, err := c.retriever(img)
				if err != nil {
					// default retriever always fails on truly unknown
					// images; record an empty-but-present state rather
					// than failing the commit, so NumNodes is still
					// tracked for the image.
					s = &model.ImageState{Size: map[string]int64{}}
				}
				state = s
				c.imageStates[img] = state
			}
			state.NumNodes++
			cache[img] = state
		}

		node.Allocatable.CPUMillis -= ct.Resources.CPUMillis()
		node.Allocatable.Memory -= ct.Resources.MemoryBytes()
	}

	node.Pods = append(node.Pods, pod)

	c.log.V(1).Info("placed pod on node", "pod", pod.Key(), "node", node.Name,
		"allocatableCPU", node.Allocatable.CPUMillis, "allocatableMemory", node.Allocatable.Memory)
}

// RemovePodFromNode reverses the resource deduction of PlacePodOnNode and
// removes pod from node.Pods. It does not touch the image cache — call
// RemovePodImagesFromNode separately if that's also desired.
func (c *MemoryClusterContext) RemovePodFromNode(pod model.Pod, node *model.Node) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, ct := range pod.Spec.Containers {
		node.Allocatable.CPUMillis += ct.Resources.CPUMillis()
		node.Allocatable.Memory += ct.Resources.MemoryBytes()
	}

	for i, p := range node.Pods {
		if p.Namespace == pod.Namespace && p.Name == pod.Name {
			node.Pods = append(node.Pods[:i], node.Pods[i+1:]...)
			break
		}
	}
}

// RemovePodImagesFromNode decrements the NumNodes counter and drops the
// cache entry for every one of the pod's images still cached on node.
func (c *MemoryClusterContext) RemovePodImagesFromNode(pod model.Pod, node *model.Node) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cache := c.imagesOn[node.Name]
	if cache == nil {
		return
	}
	for _, ct := range pod.Spec.Containers {
		img := util.NormalizeImageName(ct.Image)
		if state, ok := cache[img]; ok {
			state.NumNodes--
			delete(cache, img)
		}
	}
}
