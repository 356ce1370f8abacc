// Package k8sadapter builds a clustercontext.ClusterContext snapshot from
// a live Kubernetes API server: node/pod inventory, architecture and
// locality/capability labels read straight off corev1.Node, and
// per-architecture image sizes read off the kubelet-reported
// Node.Status.Images. The bandwidth graph between nodes is not
// discoverable from the Kubernetes API — live bandwidth measurement is
// explicitly out of scope — so it is supplied by the operator as static
// configuration and reused unchanged across every refresh.
package k8sadapter

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/client-go/kubernetes/scheme"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/edgerun/skippy/internal/skippy/clustercontext"
	"github.com/edgerun/skippy/internal/skippy/model"
)

// NewClient builds a controller-runtime client from a kubeconfig path
// ("" selects in-cluster config, the same default cmd/optimizer's
// ctrl.GetConfigOrDie relies on).
func NewClient(kubeconfig string) (client.Client, error) {
	restCfg, err := loadRESTConfig(kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("loading kubeconfig: %w", err)
	}
	return client.New(restCfg, client.Options{Scheme: scheme.Scheme})
}

// Adapter builds MemoryClusterContext snapshots from a live cluster.
type Adapter struct {
	log       logr.Logger
	client    client.Client
	bandwidth clustercontext.BandwidthGraph
	metrics   metricsClient
}

// NewAdapter builds an Adapter. bandwidth must include clustercontext.RegistryNode
// as a source node, since that edge is required of every ClusterContext.
func NewAdapter(log logr.Logger, c client.Client, bandwidth clustercontext.BandwidthGraph) *Adapter {
	return &Adapter{log: log, client: c, bandwidth: bandwidth}
}

const listPageSize = 500

func (a *Adapter) listAllNodes(ctx context.Context) ([]corev1.Node, error) {
	var out []corev1.Node
	opts := &client.ListOptions{Limit: listPageSize}
	for {
		page := &corev1.NodeList{}
		if err := a.client.List(ctx, page, opts); err != nil {
			return nil, err
		}
		out = append(out, page.Items...)
		if page.Continue == "" {
			break
		}
		opts.Continue = page.Continue
	}
	return out, nil
}

func (a *Adapter) listAllPods(ctx context.Context) ([]corev1.Pod, error) {
	var out []corev1.Pod
	opts := &client.ListOptions{Limit: listPageSize}
	for {
		page := &corev1.PodList{}
		if err := a.client.List(ctx, page, opts); err != nil {
			return nil, err
		}
		out = append(out, page.Items...)
		if page.Continue == "" {
			break
		}
		opts.Continue = page.Continue
	}
	return out, nil
}

// Build fetches the current node and pod inventory and returns a fresh
// MemoryClusterContext. It does not mutate any previously built snapshot;
// callers refreshing a liveadapter.Live swap this result in wholesale.
func (a *Adapter) Build(ctx context.Context) (*clustercontext.MemoryClusterContext, error) {
	nodeList, err := a.listAllNodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing nodes: %w", err)
	}
	podList, err := a.listAllPods(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing pods: %w", err)
	}

	podsByNode := make(map[string][]corev1.Pod, len(nodeList))
	for _, pod := range podList {
		if pod.Spec.NodeName != "" {
			podsByNode[pod.Spec.NodeName] = append(podsByNode[pod.Spec.NodeName], pod)
		}
	}

	nodes := make([]*model.Node, 0, len(nodeList))
	imageStates := make(map[string]*model.ImageState)
	for i := range nodeList {
		kn := &nodeList[i]
		pods := podsByNode[kn.Name]
		node := translateNode(kn, pods)
		nodes = append(nodes, node)
		mergeImageStates(imageStates, kn, node.Arch())
	}

	applyLiveUsage(ctx, a.metrics, a.log, nodes)

	mcc := clustercontext.NewMemoryClusterContext(a.log, nodes, imageStates, a.bandwidth, nil)
	a.log.V(1).Info("built cluster context from kubernetes", "nodes", len(nodes), "images", len(imageStates))
	return mcc, nil
}

// translateNode converts a corev1.Node plus the pods currently bound to it
// into a model.Node. Allocatable starts at the node's reported allocatable
// capacity and is reduced by every already-running pod's requests, so a
// freshly built snapshot reflects work the cluster is already carrying —
// not just what Skippy itself has placed since the last refresh.
func translateNode(kn *corev1.Node, pods []corev1.Pod) *model.Node {
	capCPU, capMem := quantities(kn.Status.Capacity)
	allocCPU, allocMem := quantities(kn.Status.Allocatable)
	if allocCPU == 0 && allocMem == 0 {
		allocCPU, allocMem = capCPU, capMem
	}

	labels := make(map[string]string, len(kn.Labels))
	for k, v := range kn.Labels {
		labels[k] = v
	}

	node := &model.Node{
		Name:        kn.Name,
		Capacity:    model.Capacity{CPUMillis: capCPU, Memory: capMem},
		Allocatable: model.Capacity{CPUMillis: allocCPU, Memory: allocMem},
		Labels:      labels,
	}

	for _, p := range pods {
		reqCPU, reqMem := podRequests(&p)
		node.Allocatable.CPUMillis -= reqCPU
		node.Allocatable.Memory -= reqMem
		node.Pods = append(node.Pods, model.Pod{Name: p.Name, Namespace: p.Namespace})
	}
	if node.Allocatable.CPUMillis < 0 {
		node.Allocatable.CPUMillis = 0
	}
	if node.Allocatable.Memory < 0 {
		node.Allocatable.Memory = 0
	}

	return node
}

func quantities(list corev1.ResourceList) (cpuMillis, memBytes int64) {
	if cpu, ok := list[corev1.ResourceCPU]; ok {
		cpuMillis = cpu.MilliValue()
	}
	if mem, ok := list[corev1.ResourceMemory]; ok {
		memBytes = mem.Value()
	}
	return
}

func podRequests(pod *corev1.Pod) (cpuMillis, memBytes int64) {
	for _, c := range pod.Spec.Containers {
		if cpu, ok := c.Resources.Requests[corev1.ResourceCPU]; ok {
			cpuMillis += cpu.MilliValue()
		}
		if mem, ok := c.Resources.Requests[corev1.ResourceMemory]; ok {
			memBytes += mem.Value()
		}
	}
	return
}

// mergeImageStates folds a node's kubelet-reported image cache into the
// cluster-wide image state map, keyed by every name the kubelet reports
// for an image (repo digests and tags alike point at the same layer set).
func mergeImageStates(states map[string]*model.ImageState, kn *corev1.Node, arch string) {
	if arch == "" {
		arch = "amd64"
	}
	for _, img := range kn.Status.Images {
		for _, name := range img.Names {
			state, ok := states[name]
			if !ok {
				state = &model.ImageState{Size: map[string]int64{}}
				states[name] = state
			}
			if _, seen := state.Size[arch]; !seen {
				state.Size[arch] = img.SizeBytes
			}
			state.NumNodes++
		}
	}
}
