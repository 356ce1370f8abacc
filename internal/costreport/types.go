// Package costreport estimates the dollar cost of a scheduling decision. It
// is strictly observational: nothing here feeds back into predicates or
// priorities, and a failed or unconfigured Reporter never blocks a Schedule
// call. Callers attach a report to a decision after it has already been
// committed, the same way pkg/explain attaches a narrative.
package costreport

import "time"

// HoursPerMonth is the average number of hours in a calendar month
// (365.2425 days/year * 24 hours/day / 12 months = 730.485). Using a precise
// constant avoids the systematic underestimation the commonly used 730
// introduces across monthly projections.
const HoursPerMonth = 730.485

// CostModel holds the USD rates used to price a node's capacity and the
// data transferred to fill it with container images. Operators configure
// this per-region; it has no authoritative source of its own.
type CostModel struct {
	HourlyCPUCostUSD      float64 // per vCPU-hour
	HourlyMemoryCostUSD   float64 // per GiB-hour
	HourlyGPUCostUSD      float64 // per GPU-hour
	DataTransferPerGiBUSD float64 // image pull egress from the registry
}

// Commitment is a trimmed view of a cloud commitment (Savings Plan,
// Reserved Instance, CUD) relevant to estimating how much of the cluster's
// compute spend is already paid for versus billed on demand.
type Commitment struct {
	ID              string
	Type            string // AWSCommitmentSource sets "compute-savings-plan", "ec2-instance-savings-plan" or "savings-plan"
	Region          string
	HourlyCostUSD   float64
	OnDemandCostUSD float64
	Status          string // "active", "expired"
	ExpiresAt       time.Time
}
