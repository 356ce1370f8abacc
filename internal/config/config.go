// Package config loads and validates skippyd's configuration: the
// scheduler's own tunables (predicate/priority selection, sampling
// percentage) plus the settings of the reference adapters and ambient
// services built around the core (cluster backend, audit database, API
// server, metrics, the optional explain feature).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for skippyd.
type Config struct {
	// ClusterBackend selects the ClusterContext implementation: "memory"
	// (a static, empty in-memory inventory, for testing/demo),
	// "kubernetes", or "aws".
	ClusterBackend string `yaml:"clusterBackend"`

	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Kubernetes KubernetesConfig `yaml:"kubernetes"`
	AWS        AWSConfig        `yaml:"aws"`
	APIServer  APIServerConfig  `yaml:"apiServer"`
	Database   DatabaseConfig   `yaml:"database"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Explain    ExplainConfig    `yaml:"explain"`
}

// PriorityWeight names one configured priority and the integer weight its
// reduced score is multiplied by.
type PriorityWeight struct {
	Name   string `yaml:"name"`
	Weight int    `yaml:"weight"`
}

// SchedulerConfig mirrors spec.md §4.6's Configuration: weighted priority
// list, predicate list, and the node-sampling percentage.
type SchedulerConfig struct {
	PercentageOfNodesToScore int              `yaml:"percentageOfNodesToScore"`
	Predicates               []string         `yaml:"predicates"`
	Priorities                []PriorityWeight `yaml:"priorities"`
}

// KubernetesConfig configures the internal/clustercontext/k8sadapter
// embedder.
type KubernetesConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Kubeconfig      string        `yaml:"kubeconfig"` // empty string uses in-cluster config
	RefreshSchedule string        `yaml:"refreshSchedule"` // cron expression
	RefreshTimeout  time.Duration `yaml:"refreshTimeout"`
}

// AWSConfig configures the internal/clustercontext/awsinventory embedder
// and internal/costreport's savings-plan coverage lookup.
type AWSConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Region          string        `yaml:"region"`
	RefreshInterval time.Duration `yaml:"refreshInterval"`
	BandwidthTierGB float64       `yaml:"bandwidthTierGB"` // data-transfer pricing tier boundary; validated only, the bandwidth graph uses fixed per-distance tiers
}

// APIServerConfig configures the chi HTTP surface.
type APIServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// DatabaseConfig configures the SQLite-backed placement audit log.
type DatabaseConfig struct {
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retentionDays"`
}

// MetricsConfig configures the Prometheus exporter.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// ExplainConfig configures the optional advisory natural-language
// explanation feature (pkg/explain). Disabled by default: it is never
// required for a scheduling decision to complete.
type ExplainConfig struct {
	Enabled bool          `yaml:"enabled"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultConfig returns a Config with sensible defaults: an in-memory
// cluster backend, the spec's default predicate/priority list and
// percentage_of_nodes_to_score, and every ambient service enabled except
// the advisory explain feature.
func DefaultConfig() *Config {
	return &Config{
		ClusterBackend: "memory",
		Scheduler: SchedulerConfig{
			PercentageOfNodesToScore: 100,
			Predicates:               []string{"PodFitsResources"},
			Priorities: []PriorityWeight{
				{Name: "BalancedResourcePriority", Weight: 1},
				{Name: "LatencyAwareImageLocalityPriority", Weight: 1},
				{Name: "LocalityTypePriority", Weight: 1},
				{Name: "DataLocalityPriority", Weight: 1},
				{Name: "CapabilityPriority", Weight: 1},
			},
		},
		Kubernetes: KubernetesConfig{
			Enabled:         false,
			RefreshSchedule: "@every 30s",
			RefreshTimeout:  10 * time.Second,
		},
		AWS: AWSConfig{
			Enabled:         false,
			Region:          "us-east-1",
			RefreshInterval: 5 * time.Minute,
			BandwidthTierGB: 10 * 1024, // AWS's first inter-region pricing tier boundary
		},
		APIServer: APIServerConfig{
			Enabled: true,
			Address: "0.0.0.0",
			Port:    8080,
		},
		Database: DatabaseConfig{
			Path:          "/data/skippy.db",
			RetentionDays: 30,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Address: "0.0.0.0",
			Port:    9090,
		},
		Explain: ExplainConfig{
			Enabled: false,
			Model:   "claude-3-5-haiku-latest",
			Timeout: 10 * time.Second,
		},
	}
}

// LoadFromFile loads config from a YAML file, overlaying it on
// DefaultConfig.
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// Validate checks the config for internal consistency.
func (c *Config) Validate() error {
	switch c.ClusterBackend {
	case "memory", "kubernetes", "aws":
	default:
		return fmt.Errorf("invalid clusterBackend %q: must be memory, kubernetes, or aws", c.ClusterBackend)
	}

	if c.ClusterBackend == "aws" && c.AWS.Region == "" {
		return fmt.Errorf("aws.region is required when clusterBackend is \"aws\"")
	}

	if c.Scheduler.PercentageOfNodesToScore < 0 || c.Scheduler.PercentageOfNodesToScore > 100 {
		return fmt.Errorf("scheduler.percentageOfNodesToScore must be between 0 and 100, got %d",
			c.Scheduler.PercentageOfNodesToScore)
	}
	if len(c.Scheduler.Predicates) == 0 {
		return fmt.Errorf("scheduler.predicates must name at least one predicate")
	}
	for _, p := range c.Scheduler.Priorities {
		if p.Weight < 0 {
			return fmt.Errorf("scheduler.priorities: %q has negative weight %d", p.Name, p.Weight)
		}
	}

	if c.APIServer.Enabled && c.APIServer.Port <= 0 {
		return fmt.Errorf("apiServer.port must be positive when apiServer.enabled is true, got %d", c.APIServer.Port)
	}
	if c.Metrics.Enabled && c.Metrics.Port <= 0 {
		return fmt.Errorf("metrics.port must be positive when metrics.enabled is true, got %d", c.Metrics.Port)
	}

	return nil
}

// ValidateDetailed performs extended validation beyond Validate, checking
// cross-field constraints that matter for running against live
// infrastructure.
func (c *Config) ValidateDetailed() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if c.Kubernetes.Enabled && c.ClusterBackend != "kubernetes" {
		return fmt.Errorf("kubernetes.enabled is true but clusterBackend is %q, not \"kubernetes\"", c.ClusterBackend)
	}
	if c.AWS.Enabled && c.ClusterBackend != "aws" {
		return fmt.Errorf("aws.enabled is true but clusterBackend is %q, not \"aws\"", c.ClusterBackend)
	}

	if c.Explain.Enabled && c.Explain.Model == "" {
		return fmt.Errorf("explain.model is required when explain.enabled is true")
	}

	if c.Database.RetentionDays < 0 {
		return fmt.Errorf("database.retentionDays must be >= 0, got %d", c.Database.RetentionDays)
	}

	return nil
}
