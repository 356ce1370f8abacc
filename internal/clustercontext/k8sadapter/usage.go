package k8sadapter

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	metricsv1beta1 "k8s.io/metrics/pkg/apis/metrics/v1beta1"
	metricsclient "k8s.io/metrics/pkg/client/clientset/versioned"

	"github.com/edgerun/skippy/internal/skippy/model"
)

// metricsClient is the narrow slice of the metrics-server clientset the
// adapter needs, kept separate from client.Client because the metrics API
// group isn't part of corev1.Node/Pod and metrics-server is frequently
// absent from edge clusters.
type metricsClient interface {
	ListNodeMetrics(ctx context.Context) (*metricsv1beta1.NodeMetricsList, error)
}

type metricsServerClient struct {
	clientset *metricsclient.Clientset
}

// NewMetricsClient builds a metrics-server client from the same kubeconfig
// rules as NewClient. It returns an error only when the kubeconfig or the
// clientset cannot be built; it does not contact the server, so an
// unreachable metrics.k8s.io surfaces later as a ListNodeMetrics error,
// which applyLiveUsage treats as "keep the request-based allocatable".
func NewMetricsClient(kubeconfig string) (*metricsServerClient, error) {
	restCfg, err := loadRESTConfig(kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("loading kubeconfig: %w", err)
	}
	cs, err := metricsclient.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("building metrics client: %w", err)
	}
	return &metricsServerClient{clientset: cs}, nil
}

func (c *metricsServerClient) ListNodeMetrics(ctx context.Context) (*metricsv1beta1.NodeMetricsList, error) {
	return c.clientset.MetricsV1beta1().NodeMetricses().List(ctx, metav1.ListOptions{})
}

// SetMetricsClient attaches an optional metrics-server source. When set,
// Build prefers a node's live reported usage over the request-sum
// bookkeeping in translateNode: a node running pods with no resource
// requests (common for best-effort edge workloads) would otherwise look
// artificially empty to the scheduler's bin-packing priorities.
func (a *Adapter) SetMetricsClient(m metricsClient) {
	a.metrics = m
}

// applyLiveUsage overrides each node's Allocatable with capacity minus
// currently measured usage, for every node metrics-server reports. Nodes
// it doesn't cover (not yet scraped, or metrics-server itself absent) keep
// the request-based allocatable translateNode already computed.
func applyLiveUsage(ctx context.Context, mc metricsClient, log logr.Logger, nodes []*model.Node) {
	if mc == nil {
		return
	}
	list, err := mc.ListNodeMetrics(ctx)
	if err != nil {
		log.V(1).Info("metrics-server unavailable, keeping request-based allocatable", "error", err)
		return
	}

	usageByNode := make(map[string]*metricsv1beta1.NodeMetrics, len(list.Items))
	for i := range list.Items {
		usageByNode[list.Items[i].Name] = &list.Items[i]
	}

	for _, n := range nodes {
		um, ok := usageByNode[n.Name]
		if !ok {
			continue
		}
		cpuUsage := um.Usage.Cpu().MilliValue()
		memUsage := um.Usage.Memory().Value()

		allocCPU := n.Capacity.CPUMillis - cpuUsage
		allocMem := n.Capacity.Memory - memUsage
		if allocCPU < 0 {
			allocCPU = 0
		}
		if allocMem < 0 {
			allocMem = 0
		}
		n.Allocatable.CPUMillis = allocCPU
		n.Allocatable.Memory = allocMem
	}
}
