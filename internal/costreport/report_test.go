package costreport

import (
	"context"
	"errors"
	"testing"

	"github.com/go-logr/logr"

	"github.com/edgerun/skippy/internal/skippy/clustercontext"
	"github.com/edgerun/skippy/internal/skippy/model"
)

var errBoom = errors.New("boom")

func testNode(name string, cpuMillis, memBytes int64) *model.Node {
	return &model.Node{
		Name:        name,
		Capacity:    model.Capacity{CPUMillis: cpuMillis, Memory: memBytes},
		Allocatable: model.Capacity{CPUMillis: cpuMillis, Memory: memBytes},
		Labels:      map[string]string{model.LabelArch: "amd64"},
	}
}

func TestEstimate_NoSuggestedHostReturnsZeroCost(t *testing.T) {
	r := NewReporter(logr.Discard(), nil, CostModel{}, nil)

	pc, err := r.Estimate(context.Background(), model.Pod{}, model.SchedulingResult{})
	if err != nil {
		t.Fatalf("Estimate() error = %v", err)
	}
	if pc.ChosenNode != "" || pc.HourlyComputeUSD != 0 {
		t.Errorf("expected zero-value PlacementCost, got %+v", pc)
	}
	if len(pc.Notes) == 0 {
		t.Error("expected a note explaining no node was chosen")
	}
}

func TestEstimate_ComputesHourlyAndImagePullCost(t *testing.T) {
	node := testNode("n1", 4000, 16<<30) // 4 vCPU, 16 GiB

	states := map[string]*model.ImageState{
		"repo/img:latest": {Size: map[string]int64{"amd64": 2 << 30}, NumNodes: 0}, // 2 GiB
	}
	ctx := clustercontext.NewMemoryClusterContext(logr.Discard(), []*model.Node{node}, states, nil, nil)

	costModel := CostModel{HourlyCPUCostUSD: 0.05, HourlyMemoryCostUSD: 0.01, DataTransferPerGiBUSD: 0.09}
	r := NewReporter(logr.Discard(), ctx, costModel, nil)

	result := model.SchedulingResult{
		SuggestedHost: node,
		FeasibleNodes: 1,
		NeededImages:  []string{"repo/img:latest"},
	}

	pc, err := r.Estimate(context.Background(), model.Pod{Name: "p1"}, result)
	if err != nil {
		t.Fatalf("Estimate() error = %v", err)
	}

	wantHourly := 4*0.05 + 16*0.01
	if pc.HourlyComputeUSD != wantHourly {
		t.Errorf("HourlyComputeUSD = %v, want %v", pc.HourlyComputeUSD, wantHourly)
	}
	wantPull := 2 * 0.09
	if pc.ImagePullUSD != wantPull {
		t.Errorf("ImagePullUSD = %v, want %v", pc.ImagePullUSD, wantPull)
	}
	if pc.CommitmentCoverage != 0 {
		t.Errorf("CommitmentCoverage = %v, want 0 with nil source", pc.CommitmentCoverage)
	}
}

func TestEstimate_UnknownImageAddsNoteNotError(t *testing.T) {
	node := testNode("n1", 1000, 1<<30)
	ctx := clustercontext.NewMemoryClusterContext(logr.Discard(), []*model.Node{node}, nil, nil, nil)
	r := NewReporter(logr.Discard(), ctx, CostModel{}, nil)

	result := model.SchedulingResult{SuggestedHost: node, NeededImages: []string{"ghost:latest"}}
	pc, err := r.Estimate(context.Background(), model.Pod{}, result)
	if err != nil {
		t.Fatalf("Estimate() error = %v", err)
	}
	if pc.ImagePullUSD != 0 {
		t.Errorf("ImagePullUSD = %v, want 0 for unknown image", pc.ImagePullUSD)
	}
	if len(pc.Notes) != 1 {
		t.Errorf("Notes = %v, want one note about the unknown image", pc.Notes)
	}
}

type fakeCommitmentSource struct {
	commitments []Commitment
	err         error
}

func (f *fakeCommitmentSource) GetCommitments(ctx context.Context) ([]Commitment, error) {
	return f.commitments, f.err
}

func TestCommitmentCoverage(t *testing.T) {
	tests := []struct {
		name        string
		commitments []Commitment
		want        float64
	}{
		{"no commitments", nil, 0},
		{
			"fully covered",
			[]Commitment{{Status: "active", HourlyCostUSD: 10, OnDemandCostUSD: 10}},
			1,
		},
		{
			"half covered",
			[]Commitment{{Status: "active", HourlyCostUSD: 5, OnDemandCostUSD: 10}},
			0.5,
		},
		{
			"expired commitments excluded",
			[]Commitment{{Status: "expired", HourlyCostUSD: 10, OnDemandCostUSD: 10}},
			0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := commitmentCoverage(tt.commitments)
			if got != tt.want {
				t.Errorf("commitmentCoverage() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEstimate_UsesCommitmentSource(t *testing.T) {
	node := testNode("n1", 1000, 1<<30)
	ctx := clustercontext.NewMemoryClusterContext(logr.Discard(), []*model.Node{node}, nil, nil, nil)
	source := &fakeCommitmentSource{commitments: []Commitment{{Status: "active", HourlyCostUSD: 3, OnDemandCostUSD: 6}}}
	r := NewReporter(logr.Discard(), ctx, CostModel{}, source)

	pc, err := r.Estimate(context.Background(), model.Pod{}, model.SchedulingResult{SuggestedHost: node})
	if err != nil {
		t.Fatalf("Estimate() error = %v", err)
	}
	if pc.CommitmentCoverage != 0.5 {
		t.Errorf("CommitmentCoverage = %v, want 0.5", pc.CommitmentCoverage)
	}
}

func TestEstimate_CommitmentLookupFailureDegradesGracefully(t *testing.T) {
	node := testNode("n1", 1000, 1<<30)
	ctx := clustercontext.NewMemoryClusterContext(logr.Discard(), []*model.Node{node}, nil, nil, nil)
	source := &fakeCommitmentSource{err: errBoom}
	r := NewReporter(logr.Discard(), ctx, CostModel{}, source)

	pc, err := r.Estimate(context.Background(), model.Pod{}, model.SchedulingResult{SuggestedHost: node})
	if err != nil {
		t.Fatalf("Estimate() error = %v, want nil even when commitment source fails", err)
	}
	if pc.CommitmentCoverage != 0 {
		t.Errorf("CommitmentCoverage = %v, want 0 on lookup failure", pc.CommitmentCoverage)
	}
	if len(pc.Notes) == 0 {
		t.Error("expected a note about the failed commitment lookup")
	}
}
