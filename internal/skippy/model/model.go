// Package model defines the data types the scheduling core operates on:
// capacities, pods, nodes, image metadata and the result of a placement
// decision. None of these types depend on a live cluster — they are built
// and mutated by a ClusterContext implementation.
package model

// Default resource requests applied when a container's ResourceRequest
// omits a key. Mirrors the Kubernetes scheduler's non_zero defaults.
const (
	DefaultMilliCPURequest = 100               // 0.1 cores
	DefaultMemoryRequest   = 200 * 1024 * 1024 // 200 MiB
)

// Capacity is a pair of CPU (millicores) and memory (bytes) quantities.
type Capacity struct {
	CPUMillis int64
	Memory    int64
}

// ResourceRequest is a per-resource-name quantity map. Canonical key for
// memory is "memory"; "mem" is accepted as an alias on read because the
// Skippy original used both inconsistently.
type ResourceRequest map[string]int64

// CPUMillis returns the requested CPU, or the default if absent.
func (r ResourceRequest) CPUMillis() int64 {
	if v, ok := r["cpu"]; ok {
		return v
	}
	return DefaultMilliCPURequest
}

// MemoryBytes returns the requested memory, or the default if absent.
// Accepts "mem" as an alias for "memory".
func (r ResourceRequest) MemoryBytes() int64 {
	if v, ok := r["memory"]; ok {
		return v
	}
	if v, ok := r["mem"]; ok {
		return v
	}
	return DefaultMemoryRequest
}

// Container is a single container within a pod spec.
type Container struct {
	Image     string
	Resources ResourceRequest
}

// Resources defaults to an empty map so CPUMillis/MemoryBytes fall back to
// the package defaults; callers must not share one ResourceRequest value
// across containers (aliasing bug in the original Python source).
func NewContainer(image string, resources ResourceRequest) Container {
	if resources == nil {
		resources = ResourceRequest{}
	} else {
		// copy defensively so callers mutating their own map afterwards
		// cannot affect this container's requests.
		cp := make(ResourceRequest, len(resources))
		for k, v := range resources {
			cp[k] = v
		}
		resources = cp
	}
	return Container{Image: image, Resources: resources}
}

// PodSpec is the ordered set of containers plus scheduling-hint labels.
type PodSpec struct {
	Containers []Container
	Labels     map[string]string
}

// Pod is a placement unit. Identity is (Namespace, Name).
type Pod struct {
	Name      string
	Namespace string
	Spec      PodSpec
}

// Key returns the pod's identity tuple as a single string, handy for maps.
func (p Pod) Key() string {
	return p.Namespace + "/" + p.Name
}

// Node is a worker machine. Capacity is immutable once built; Allocatable
// is mutated as pods are placed and removed.
type Node struct {
	Name        string
	Capacity    Capacity
	Allocatable Capacity
	Labels      map[string]string
	Pods        []Pod
}

// Label node keys the scheduler and priorities read.
const (
	LabelArch         = "beta.kubernetes.io/arch"
	LabelLocalityType = "locality.skippy.io/type"
	LabelCapabilityContains = "capability.skippy.io"
)

// Pod label keys consumed by the priorities.
const (
	LabelReceivesFromStorage = "data.skippy.io/receives-from-storage/path"
	LabelSendsToStorage      = "data.skippy.io/sends-to-storage/path"
)

// Arch returns the node's architecture label, or "" if absent.
func (n *Node) Arch() string {
	return n.Labels[LabelArch]
}

// ImageState is per-image metadata shared across the cluster context: a
// size per architecture, and the count of nodes currently caching it.
// ImageState is always referenced by pointer so that every map
// (image_states, images_on_nodes) observes the same NumNodes counter.
type ImageState struct {
	Size     map[string]int64 // arch -> bytes
	NumNodes int
}

// SizeForArch returns the image's size for the given architecture, falling
// back to any present architecture if the requested one is absent. ok is
// false only when Size is completely empty (a ProgrammerError case for the
// caller to handle).
func (s *ImageState) SizeForArch(arch string) (size int64, ok bool) {
	if v, present := s.Size[arch]; present {
		return v, true
	}
	for _, v := range s.Size {
		return v, true
	}
	return 0, false
}

// DataItem is an object stored under a bucket/name pair in the storage index.
type DataItem struct {
	Bucket string
	Name   string
	Size   int64
}

// SchedulingResult is the outcome of a single Schedule call.
type SchedulingResult struct {
	SuggestedHost  *Node
	FeasibleNodes  int
	NeededImages   []string
}
