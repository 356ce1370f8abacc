package costreport

import (
	"context"
	"fmt"
	"time"

	awscfg "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/savingsplans"
	sptypes "github.com/aws/aws-sdk-go-v2/service/savingsplans/types"
)

// savingsPlansClient is the subset of *savingsplans.Client this package
// calls, narrowed so tests can supply a fake.
type savingsPlansClient interface {
	DescribeSavingsPlans(ctx context.Context, params *savingsplans.DescribeSavingsPlansInput, optFns ...func(*savingsplans.Options)) (*savingsplans.DescribeSavingsPlansOutput, error)
}

// AWSCommitmentSource implements CommitmentSource against the AWS Savings
// Plans API.
type AWSCommitmentSource struct {
	client savingsPlansClient
}

// NewAWSCommitmentSource builds a CommitmentSource from an AWS config.
func NewAWSCommitmentSource(cfg awscfg.Config) *AWSCommitmentSource {
	return &AWSCommitmentSource{client: savingsplans.NewFromConfig(cfg)}
}

// GetCommitments fetches active Savings Plans and reports, per plan, its
// committed hourly rate alongside an on-demand-equivalent estimate so
// Reporter can compute coverage without a second pricing lookup.
func (s *AWSCommitmentSource) GetCommitments(ctx context.Context) ([]Commitment, error) {
	resp, err := s.client.DescribeSavingsPlans(ctx, &savingsplans.DescribeSavingsPlansInput{
		States: []sptypes.SavingsPlanState{sptypes.SavingsPlanStateActive},
	})
	if err != nil {
		return nil, fmt.Errorf("describing savings plans: %w", err)
	}

	var commitments []Commitment
	for _, sp := range resp.SavingsPlans {
		spType := "savings-plan"
		switch sp.SavingsPlanType {
		case sptypes.SavingsPlanTypeCompute:
			spType = "compute-savings-plan"
		case sptypes.SavingsPlanTypeEc2Instance:
			spType = "ec2-instance-savings-plan"
		}

		var expiresAt time.Time
		if sp.End != nil {
			expiresAt, _ = time.Parse(time.RFC3339, *sp.End)
		}

		hourlyCost := 0.0
		if sp.Commitment != nil {
			if _, err := fmt.Sscanf(*sp.Commitment, "%f", &hourlyCost); err != nil {
				hourlyCost = 0
			}
		}

		// Savings Plans typically discount ~30% (Compute) or ~40%
		// (EC2 Instance) off on-demand; used only to estimate the
		// on-demand-equivalent rate this plan displaces, since the API
		// does not return that figure directly.
		onDemandEstimate := hourlyCost
		switch spType {
		case "compute-savings-plan":
			onDemandEstimate = hourlyCost / 0.70
		case "ec2-instance-savings-plan":
			onDemandEstimate = hourlyCost / 0.60
		}

		region := ""
		if sp.Region != nil {
			region = *sp.Region
		}

		commitments = append(commitments, Commitment{
			ID:              stringVal(sp.SavingsPlanId),
			Type:            spType,
			Region:          region,
			HourlyCostUSD:   hourlyCost,
			OnDemandCostUSD: onDemandEstimate,
			Status:          string(sp.State),
			ExpiresAt:       expiresAt,
		})
	}

	return commitments, nil
}

func stringVal(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
