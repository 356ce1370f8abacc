package config

import (
	"fmt"
	"strings"
)

// ValidationError collects multiple validation errors.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: %s", strings.Join(e.Errors, "; "))
}

func (e *ValidationError) Add(msg string) {
	e.Errors = append(e.Errors, msg)
}

func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// knownPriorities is the set of priority names the scheduler package
// actually implements; ValidateDetailed flags anything else as a likely
// typo rather than silently scoring zero for an unrecognized name.
var knownPriorities = map[string]bool{
	"EqualPriority":                     true,
	"BalancedResourcePriority":          true,
	"ImageLocalityPriority":             true,
	"LatencyAwareImageLocalityPriority": true,
	"LocalityTypePriority":              true,
	"CapabilityPriority":                true,
	"DataLocalityPriority":              true,
}

var knownPredicates = map[string]bool{
	"PodFitsResources": true,
}

// ValidateDetailed performs comprehensive config validation, collecting
// every problem found rather than stopping at the first.
func ValidateDetailed(cfg *Config) *ValidationError {
	ve := &ValidationError{}

	switch cfg.ClusterBackend {
	case "memory", "kubernetes", "aws":
	default:
		ve.Add(fmt.Sprintf("invalid clusterBackend %q", cfg.ClusterBackend))
	}

	if cfg.Scheduler.PercentageOfNodesToScore < 0 || cfg.Scheduler.PercentageOfNodesToScore > 100 {
		ve.Add("scheduler.percentageOfNodesToScore must be between 0 and 100")
	}
	for _, p := range cfg.Scheduler.Predicates {
		if !knownPredicates[p] {
			ve.Add(fmt.Sprintf("scheduler.predicates: unknown predicate %q", p))
		}
	}
	for _, p := range cfg.Scheduler.Priorities {
		if !knownPriorities[p.Name] {
			ve.Add(fmt.Sprintf("scheduler.priorities: unknown priority %q", p.Name))
		}
		if p.Weight < 0 {
			ve.Add(fmt.Sprintf("scheduler.priorities: %q has negative weight %d", p.Name, p.Weight))
		}
	}

	if cfg.Kubernetes.Enabled && cfg.ClusterBackend != "kubernetes" {
		ve.Add("kubernetes.enabled is true but clusterBackend is not \"kubernetes\"")
	}
	if cfg.AWS.Enabled {
		if cfg.ClusterBackend != "aws" {
			ve.Add("aws.enabled is true but clusterBackend is not \"aws\"")
		}
		if cfg.AWS.Region == "" {
			ve.Add("aws.region is required when aws.enabled is true")
		}
		if cfg.AWS.BandwidthTierGB <= 0 {
			ve.Add("aws.bandwidthTierGB must be > 0")
		}
	}

	if cfg.APIServer.Enabled {
		if cfg.APIServer.Port < 1 || cfg.APIServer.Port > 65535 {
			ve.Add("apiServer.port must be between 1 and 65535")
		}
	}
	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port < 1 || cfg.Metrics.Port > 65535 {
			ve.Add("metrics.port must be between 1 and 65535")
		}
	}

	if cfg.Explain.Enabled && cfg.Explain.Model == "" {
		ve.Add("explain.model is required when explain.enabled is true")
	}

	if cfg.Database.RetentionDays < 0 {
		ve.Add("database.retentionDays must be >= 0")
	}

	if ve.HasErrors() {
		return ve
	}
	return nil
}
