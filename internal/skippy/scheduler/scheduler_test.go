package scheduler

import (
	"testing"

	"github.com/go-logr/logr"

	"github.com/edgerun/skippy/internal/skippy/clustercontext"
	"github.com/edgerun/skippy/internal/skippy/model"
	"github.com/edgerun/skippy/internal/skippy/predicates"
	"github.com/edgerun/skippy/internal/skippy/priorities"
	"github.com/edgerun/skippy/internal/skippy/storage"
)

func newNode(name string, cpu, mem int64, labels map[string]string) *model.Node {
	l := map[string]string{model.LabelArch: "amd64"}
	for k, v := range labels {
		l[k] = v
	}
	return &model.Node{
		Name:        name,
		Capacity:    model.Capacity{CPUMillis: cpu, Memory: mem},
		Allocatable: model.Capacity{CPUMillis: cpu, Memory: mem},
		Labels:      l,
	}
}

func onlyPredicate() predicates.Predicate {
	return predicates.NewCombined(logr.Discard(), []predicates.Predicate{predicates.PodFitsResources{}})
}

func TestSchedule_EmptyCluster(t *testing.T) {
	ctx := clustercontext.NewMemoryClusterContext(logr.Discard(), nil, nil, clustercontext.BandwidthGraph{}, nil)
	s := New(logr.Discard(), ctx, Config{Predicate: onlyPredicate(), PercentageOfNodesToScore: 100})

	res, err := s.Schedule(model.Pod{Name: "p", Namespace: "default"})
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if res.SuggestedHost != nil || res.FeasibleNodes != 0 || res.NeededImages != nil {
		t.Errorf("Schedule() = %+v, want zero-value no-fit result", res)
	}
}

func TestSchedule_SingleFit(t *testing.T) {
	node := newNode("node1", 1000, 1<<30, nil)
	ctx := clustercontext.NewMemoryClusterContext(logr.Discard(), []*model.Node{node}, map[string]*model.ImageState{}, clustercontext.BandwidthGraph{}, nil)
	s := New(logr.Discard(), ctx, Config{
		Priorities: []WeightedPriority{{Weight: 1, Priority: priorities.EqualPriority{}}},
		Predicate:  onlyPredicate(),
	})

	pod := model.Pod{
		Name: "p1", Namespace: "default",
		Spec: model.PodSpec{Containers: []model.Container{model.NewContainer("repo/img", nil)}},
	}

	res, err := s.Schedule(pod)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if res.SuggestedHost != node {
		t.Fatalf("SuggestedHost = %v, want node1", res.SuggestedHost)
	}
	if res.FeasibleNodes != 1 {
		t.Errorf("FeasibleNodes = %d, want 1", res.FeasibleNodes)
	}
	if len(res.NeededImages) != 1 || res.NeededImages[0] != "repo/img:latest" {
		t.Errorf("NeededImages = %v, want [repo/img:latest]", res.NeededImages)
	}

	if node.Allocatable.CPUMillis != 900 {
		t.Errorf("CPUMillis = %d, want 900", node.Allocatable.CPUMillis)
	}
	wantMem := int64(1<<30) - model.DefaultMemoryRequest
	if node.Allocatable.Memory != wantMem {
		t.Errorf("Memory = %d, want %d", node.Allocatable.Memory, wantMem)
	}

	state, err := ctx.GetImageState("repo/img:latest")
	if err != nil {
		t.Fatalf("GetImageState: %v", err)
	}
	if state.NumNodes != 1 {
		t.Errorf("NumNodes = %d, want 1", state.NumNodes)
	}
}

func TestSchedule_NeededImagesOnePerContainer(t *testing.T) {
	node := newNode("node1", 1000, 1<<30, nil)
	ctx := clustercontext.NewMemoryClusterContext(logr.Discard(), []*model.Node{node}, map[string]*model.ImageState{}, clustercontext.BandwidthGraph{}, nil)
	s := New(logr.Discard(), ctx, Config{
		Priorities: []WeightedPriority{{Weight: 1, Priority: priorities.EqualPriority{}}},
		Predicate:  onlyPredicate(),
	})

	pod := model.Pod{
		Name: "p1", Namespace: "default",
		Spec: model.PodSpec{Containers: []model.Container{
			model.NewContainer("repo/img", nil),
			model.NewContainer("repo/img", nil),
		}},
	}

	res, err := s.Schedule(pod)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	want := []string{"repo/img:latest", "repo/img:latest"}
	if len(res.NeededImages) != len(want) {
		t.Fatalf("NeededImages = %v, want %v", res.NeededImages, want)
	}
	for i := range want {
		if res.NeededImages[i] != want[i] {
			t.Errorf("NeededImages[%d] = %q, want %q", i, res.NeededImages[i], want[i])
		}
	}
}

func TestSchedule_ResourceExhaustion(t *testing.T) {
	node := newNode("node1", 50, 1<<30, nil)
	ctx := clustercontext.NewMemoryClusterContext(logr.Discard(), []*model.Node{node}, nil, clustercontext.BandwidthGraph{}, nil)
	s := New(logr.Discard(), ctx, Config{Predicate: onlyPredicate()})

	pod := model.Pod{
		Name: "p1", Namespace: "default",
		Spec: model.PodSpec{Containers: []model.Container{model.NewContainer("img", nil)}},
	}

	res, err := s.Schedule(pod)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if res.SuggestedHost != nil || res.FeasibleNodes != 0 {
		t.Errorf("Schedule() = %+v, want no feasible node", res)
	}
}

func TestSchedule_EdgePreference(t *testing.T) {
	edge := newNode("a", 1000, 1<<30, map[string]string{model.LabelLocalityType: "edge"})
	cloud := newNode("b", 1000, 1<<30, map[string]string{model.LabelLocalityType: "cloud"})
	ctx := clustercontext.NewMemoryClusterContext(logr.Discard(), []*model.Node{edge, cloud}, nil, clustercontext.BandwidthGraph{}, nil)
	s := New(logr.Discard(), ctx, Config{
		Priorities: []WeightedPriority{{Weight: 1, Priority: priorities.LocalityTypePriority{}}},
		Predicate:  onlyPredicate(),
	})

	pod := model.Pod{Name: "p1", Namespace: "default", Spec: model.PodSpec{Containers: []model.Container{model.NewContainer("img", nil)}}}

	res, err := s.Schedule(pod)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if res.SuggestedHost != edge {
		t.Errorf("SuggestedHost = %v, want edge node a", res.SuggestedHost)
	}
}

func TestSchedule_ImageLocalityBandwidthWins(t *testing.T) {
	a := newNode("a", 1000, 1<<30, nil)
	b := newNode("b", 1000, 1<<30, nil)
	bandwidth := clustercontext.BandwidthGraph{
		clustercontext.RegistryNode: {"a": 1.25e7, "b": 1.25e7},
	}
	initialStates := map[string]*model.ImageState{
		"repo/img:latest": {Size: map[string]int64{"amd64": 100 * 1024 * 1024}},
	}
	ctx := clustercontext.NewMemoryClusterContext(logr.Discard(), []*model.Node{a, b}, initialStates, bandwidth, nil)

	// Seed node a's image cache by placing a throwaway warmup pod with the
	// same image and no resource footprint, so the real pod's scheduling
	// decision isn't influenced by resource scoring.
	warmup := model.Pod{
		Name: "warmup", Namespace: "default",
		Spec: model.PodSpec{Containers: []model.Container{model.NewContainer("repo/img", model.ResourceRequest{"cpu": 0, "memory": 0})}},
	}
	ctx.PlacePodOnNode(warmup, a)

	s := New(logr.Discard(), ctx, Config{
		Priorities: []WeightedPriority{{Weight: 1, Priority: priorities.LatencyAwareImageLocalityPriority{Log: logr.Discard()}}},
		Predicate:  onlyPredicate(),
	})

	pod := model.Pod{
		Name: "p1", Namespace: "default",
		Spec: model.PodSpec{Containers: []model.Container{model.NewContainer("repo/img", nil)}},
	}

	res, err := s.Schedule(pod)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if res.SuggestedHost != a {
		t.Errorf("SuggestedHost = %v, want node a (already caches image)", res.SuggestedHost)
	}
	if len(res.NeededImages) != 0 {
		t.Errorf("NeededImages = %v, want empty", res.NeededImages)
	}
}

func TestSchedule_DataLocality(t *testing.T) {
	s1 := newNode("s", 1000, 1<<30, nil)
	x := newNode("x", 1000, 1<<30, nil)

	idx := storage.NewIndex()
	idx.MakeBucket("in", "s")
	if err := idx.Put(storage.DataItem{Bucket: "in", Name: "obj", Size: 10_000_000}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	bandwidth := clustercontext.BandwidthGraph{"s": {"x": 1e7}}
	ctx := clustercontext.NewMemoryClusterContext(logr.Discard(), []*model.Node{s1, x}, nil, bandwidth, nil)

	sched := New(logr.Discard(), ctx, Config{
		Priorities: []WeightedPriority{{Weight: 1, Priority: priorities.DataLocalityPriority{Storage: idx}}},
		Predicate:  onlyPredicate(),
	})

	pod := model.Pod{
		Name: "p1", Namespace: "default",
		Spec: model.PodSpec{
			Containers: []model.Container{model.NewContainer("img", nil)},
			Labels:     map[string]string{model.LabelReceivesFromStorage: "in/obj"},
		},
	}

	res, err := sched.Schedule(pod)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if res.SuggestedHost != s1 {
		t.Errorf("SuggestedHost = %v, want storage node s", res.SuggestedHost)
	}
}

func TestSchedule_NeverReturnsInfeasibleNode(t *testing.T) {
	tiny := newNode("tiny", 10, 10, nil)
	big := newNode("big", 1000, 1<<30, nil)
	ctx := clustercontext.NewMemoryClusterContext(logr.Discard(), []*model.Node{tiny, big}, nil, clustercontext.BandwidthGraph{}, nil)
	s := New(logr.Discard(), ctx, Config{
		Priorities: []WeightedPriority{{Weight: 1, Priority: priorities.EqualPriority{}}},
		Predicate:  onlyPredicate(),
	})

	pod := model.Pod{Name: "p1", Namespace: "default", Spec: model.PodSpec{Containers: []model.Container{model.NewContainer("img", nil)}}}

	res, err := s.Schedule(pod)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if res.SuggestedHost != big {
		t.Errorf("SuggestedHost = %v, want big (tiny node is infeasible)", res.SuggestedHost)
	}
}

func TestSchedule_DrainedNodesAreSkippedAcrossCalls(t *testing.T) {
	n1 := newNode("n1", 1000, 1<<30, nil)
	n2 := newNode("n2", 1000, 1<<30, nil)
	n3 := newNode("n3", 1000, 1<<30, nil)
	ctx := clustercontext.NewMemoryClusterContext(logr.Discard(), []*model.Node{n1, n2, n3}, nil, clustercontext.BandwidthGraph{}, nil)
	s := New(logr.Discard(), ctx, Config{
		Priorities:               []WeightedPriority{{Weight: 1, Priority: priorities.EqualPriority{}}},
		Predicate:                onlyPredicate(),
		PercentageOfNodesToScore: 100,
	})

	// With 3 total nodes (<5), NumFeasibleNodesToFind returns 3, so every
	// call samples the whole fleet and the cursor ends each call back at 0.
	// Each pod fills one node completely, so the three calls must land on
	// three distinct nodes: a drained node fails the predicate.
	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		pod := model.Pod{
			Name: "p", Namespace: "default",
			Spec: model.PodSpec{Containers: []model.Container{model.NewContainer("img", model.ResourceRequest{"cpu": 1000, "memory": 1 << 30})}},
		}
		res, err := s.Schedule(pod)
		if err != nil {
			t.Fatalf("Schedule: %v", err)
		}
		if res.SuggestedHost == nil {
			t.Fatalf("call %d: expected a feasible node, got none", i)
		}
		seen[res.SuggestedHost.Name] = true
	}
	if len(seen) != 3 {
		t.Errorf("visited %d distinct nodes over 3 calls, want 3 (every node drained exactly once)", len(seen))
	}
}

func TestNumFeasibleNodesToFind(t *testing.T) {
	tests := []struct {
		name       string
		n, pct     int
		wantTarget int
	}{
		{"small cluster returns all nodes", 3, 50, 3},
		{"percentage >=100 returns all nodes", 500, 100, 500},
		{"configured percentage below minimum floor", 1000, 10, 100},
		{"configured percentage above minimum floor", 1000, 50, 500},
		{"adaptive percentage for large cluster floors at 5", 10000, 0, 500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NumFeasibleNodesToFind(tt.n, tt.pct); got != tt.wantTarget {
				t.Errorf("NumFeasibleNodesToFind(%d, %d) = %d, want %d", tt.n, tt.pct, got, tt.wantTarget)
			}
		})
	}
}
