package costreport

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/edgerun/skippy/internal/skippy/clustercontext"
	"github.com/edgerun/skippy/internal/skippy/model"
)

// CommitmentSource supplies the cloud commitments (Savings Plans, Reserved
// Instances) active for the account. Implementations talk to a specific
// cloud; Reporter itself is cloud-agnostic.
type CommitmentSource interface {
	GetCommitments(ctx context.Context) ([]Commitment, error)
}

// Reporter estimates the dollar cost of a placement decision: the chosen
// node's hourly compute rate plus the one-time cost of pulling any images
// it doesn't already have cached, and what fraction of the account's
// on-demand-equivalent spend active commitments already cover (an
// account-wide figure, not one specific to the chosen node).
type Reporter struct {
	log    logr.Logger
	ctx    clustercontext.ClusterContext
	model  CostModel
	source CommitmentSource // nil disables commitment-coverage lookups
}

// NewReporter builds a Reporter. source may be nil; Estimate then reports
// CommitmentCoverage as 0 without error.
func NewReporter(log logr.Logger, clusterCtx clustercontext.ClusterContext, costModel CostModel, source CommitmentSource) *Reporter {
	return &Reporter{log: log, ctx: clusterCtx, model: costModel, source: source}
}

// PlacementCost is the dollar estimate attached to one SchedulingResult.
type PlacementCost struct {
	ChosenNode         string
	HourlyComputeUSD   float64
	ImagePullUSD       float64
	CommitmentCoverage float64 // 0-1, fraction of cluster hourly spend already committed
	Notes              []string
}

// Estimate computes a PlacementCost for a committed SchedulingResult. It
// never returns an error that should change the outcome already recorded by
// the scheduler: a failed commitment lookup degrades CommitmentCoverage to 0
// with a note rather than failing the whole estimate.
func (r *Reporter) Estimate(ctx context.Context, pod model.Pod, result model.SchedulingResult) (*PlacementCost, error) {
	if result.SuggestedHost == nil {
		return &PlacementCost{Notes: []string{"no node was chosen; nothing to price"}}, nil
	}
	node := result.SuggestedHost

	pc := &PlacementCost{ChosenNode: node.Name}
	pc.HourlyComputeUSD = r.hourlyComputeCost(node)

	arch := node.Arch()
	for _, img := range result.NeededImages {
		state, err := r.ctx.GetImageState(img)
		if err != nil {
			pc.Notes = append(pc.Notes, fmt.Sprintf("no size known for image %s, excluded from pull cost", img))
			continue
		}
		size, ok := state.SizeForArch(arch)
		if !ok {
			continue
		}
		pc.ImagePullUSD += gibibytes(size) * r.model.DataTransferPerGiBUSD
	}

	if r.source == nil {
		return pc, nil
	}

	commitments, err := r.source.GetCommitments(ctx)
	if err != nil {
		r.log.V(1).Info("commitment lookup failed, reporting zero coverage", "error", err)
		pc.Notes = append(pc.Notes, fmt.Sprintf("commitment lookup failed: %v", err))
		return pc, nil
	}
	pc.CommitmentCoverage = commitmentCoverage(commitments)

	return pc, nil
}

func (r *Reporter) hourlyComputeCost(node *model.Node) float64 {
	cpuCores := float64(node.Capacity.CPUMillis) / 1000
	memGiB := gibibytes(node.Capacity.Memory)
	return cpuCores*r.model.HourlyCPUCostUSD + memGiB*r.model.HourlyMemoryCostUSD
}

// commitmentCoverage reports what fraction of the account's on-demand
// equivalent hourly spend is already paid for by active commitments.
func commitmentCoverage(commitments []Commitment) float64 {
	var committed, onDemand float64
	for _, c := range commitments {
		if c.Status != "active" {
			continue
		}
		committed += c.HourlyCostUSD
		onDemand += c.OnDemandCostUSD
	}
	if onDemand <= 0 {
		return 0
	}
	coverage := committed / onDemand
	if coverage > 1 {
		coverage = 1
	}
	return coverage
}

func gibibytes(bytes int64) float64 {
	return float64(bytes) / (1 << 30)
}
