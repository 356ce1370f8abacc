package k8sadapter

import (
	"context"
	"fmt"
	"testing"

	"github.com/go-logr/logr"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/scheme"
	metricsv1beta1 "k8s.io/metrics/pkg/apis/metrics/v1beta1"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	"github.com/edgerun/skippy/internal/skippy/clustercontext"
	"github.com/edgerun/skippy/internal/skippy/model"
)

func TestBuild_TranslatesNodesAndPods(t *testing.T) {
	node := &corev1.Node{
		ObjectMeta: metav1.ObjectMeta{Name: "edge-1", Labels: map[string]string{
			model.LabelArch:         "arm64",
			model.LabelLocalityType: "edge",
		}},
		Status: corev1.NodeStatus{
			Capacity: corev1.ResourceList{
				corev1.ResourceCPU:    resource.MustParse("4"),
				corev1.ResourceMemory: resource.MustParse("8Gi"),
			},
			Allocatable: corev1.ResourceList{
				corev1.ResourceCPU:    resource.MustParse("3800m"),
				corev1.ResourceMemory: resource.MustParse("7Gi"),
			},
			Images: []corev1.ContainerImage{
				{Names: []string{"repo/img:latest"}, SizeBytes: 100 << 20},
			},
		},
	}
	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: "p1", Namespace: "default"},
		Spec: corev1.PodSpec{
			NodeName: "edge-1",
			Containers: []corev1.Container{
				{Resources: corev1.ResourceRequirements{Requests: corev1.ResourceList{
					corev1.ResourceCPU:    resource.MustParse("200m"),
					corev1.ResourceMemory: resource.MustParse("256Mi"),
				}}},
			},
		},
	}

	cl := fake.NewClientBuilder().WithScheme(scheme.Scheme).WithObjects(node, pod).Build()
	bandwidth := clustercontext.BandwidthGraph{clustercontext.RegistryNode: {"edge-1": 10 << 20}}
	adapter := NewAdapter(logr.Discard(), cl, bandwidth)

	mcc, err := adapter.Build(context.Background())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	n, ok := mcc.GetNode("edge-1")
	if !ok {
		t.Fatal("expected node edge-1 in built context")
	}
	if n.Arch() != "arm64" {
		t.Errorf("Arch() = %q, want arm64", n.Arch())
	}
	wantCPU := int64(3800 - 200)
	if n.Allocatable.CPUMillis != wantCPU {
		t.Errorf("Allocatable.CPUMillis = %d, want %d", n.Allocatable.CPUMillis, wantCPU)
	}

	state, err := mcc.GetImageState("repo/img:latest")
	if err != nil {
		t.Fatalf("GetImageState() error = %v", err)
	}
	if size, ok := state.SizeForArch("arm64"); !ok || size != 100<<20 {
		t.Errorf("SizeForArch(arm64) = %d, %v, want %d, true", size, ok, 100<<20)
	}
}

func TestBuild_NodeWithoutAllocatableFallsBackToCapacity(t *testing.T) {
	node := &corev1.Node{
		ObjectMeta: metav1.ObjectMeta{Name: "n1"},
		Status: corev1.NodeStatus{
			Capacity: corev1.ResourceList{
				corev1.ResourceCPU:    resource.MustParse("2"),
				corev1.ResourceMemory: resource.MustParse("4Gi"),
			},
		},
	}
	cl := fake.NewClientBuilder().WithScheme(scheme.Scheme).WithObjects(node).Build()
	adapter := NewAdapter(logr.Discard(), cl, clustercontext.BandwidthGraph{})

	mcc, err := adapter.Build(context.Background())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	n, _ := mcc.GetNode("n1")
	if n.Allocatable.CPUMillis != 2000 {
		t.Errorf("Allocatable.CPUMillis = %d, want 2000", n.Allocatable.CPUMillis)
	}
}

type fakeMetricsClient struct {
	list *metricsv1beta1.NodeMetricsList
	err  error
}

func (f *fakeMetricsClient) ListNodeMetrics(ctx context.Context) (*metricsv1beta1.NodeMetricsList, error) {
	return f.list, f.err
}

func TestBuild_PrefersLiveUsageOverRequestSum(t *testing.T) {
	node := &corev1.Node{
		ObjectMeta: metav1.ObjectMeta{Name: "edge-1"},
		Status: corev1.NodeStatus{
			Capacity: corev1.ResourceList{
				corev1.ResourceCPU:    resource.MustParse("4"),
				corev1.ResourceMemory: resource.MustParse("8Gi"),
			},
			Allocatable: corev1.ResourceList{
				corev1.ResourceCPU:    resource.MustParse("4"),
				corev1.ResourceMemory: resource.MustParse("8Gi"),
			},
		},
	}
	// A best-effort pod with no resource requests: request-sum bookkeeping
	// would see it as free, live usage should not.
	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: "p1", Namespace: "default"},
		Spec:       corev1.PodSpec{NodeName: "edge-1"},
	}

	cl := fake.NewClientBuilder().WithScheme(scheme.Scheme).WithObjects(node, pod).Build()
	adapter := NewAdapter(logr.Discard(), cl, clustercontext.BandwidthGraph{})
	adapter.SetMetricsClient(&fakeMetricsClient{list: &metricsv1beta1.NodeMetricsList{
		Items: []metricsv1beta1.NodeMetrics{
			{
				ObjectMeta: metav1.ObjectMeta{Name: "edge-1"},
				Usage: corev1.ResourceList{
					corev1.ResourceCPU:    resource.MustParse("1500m"),
					corev1.ResourceMemory: resource.MustParse("2Gi"),
				},
			},
		},
	}})

	mcc, err := adapter.Build(context.Background())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	n, _ := mcc.GetNode("edge-1")
	if n.Allocatable.CPUMillis != 2500 {
		t.Errorf("Allocatable.CPUMillis = %d, want 2500", n.Allocatable.CPUMillis)
	}
	if n.Allocatable.Memory != 6<<30 {
		t.Errorf("Allocatable.Memory = %d, want %d", n.Allocatable.Memory, 6<<30)
	}
}

func TestBuild_MetricsServerErrorFallsBackToRequestSum(t *testing.T) {
	node := &corev1.Node{
		ObjectMeta: metav1.ObjectMeta{Name: "n1"},
		Status: corev1.NodeStatus{
			Capacity:    corev1.ResourceList{corev1.ResourceCPU: resource.MustParse("2")},
			Allocatable: corev1.ResourceList{corev1.ResourceCPU: resource.MustParse("2")},
		},
	}
	cl := fake.NewClientBuilder().WithScheme(scheme.Scheme).WithObjects(node).Build()
	adapter := NewAdapter(logr.Discard(), cl, clustercontext.BandwidthGraph{})
	adapter.SetMetricsClient(&fakeMetricsClient{err: fmt.Errorf("metrics-server not installed")})

	mcc, err := adapter.Build(context.Background())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	n, _ := mcc.GetNode("n1")
	if n.Allocatable.CPUMillis != 2000 {
		t.Errorf("Allocatable.CPUMillis = %d, want 2000", n.Allocatable.CPUMillis)
	}
}
