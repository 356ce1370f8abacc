// Command skippyd runs the Skippy scheduling daemon: it loads
// configuration, bootstraps a ClusterContext from the configured backend,
// and serves the scheduler's REST API and Prometheus metrics until
// signalled to stop.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/go-logr/logr"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/edgerun/skippy/internal/apiserver"
	"github.com/edgerun/skippy/internal/audit"
	"github.com/edgerun/skippy/internal/clustercontext/awsinventory"
	"github.com/edgerun/skippy/internal/clustercontext/k8sadapter"
	"github.com/edgerun/skippy/internal/clustercontext/liveadapter"
	"github.com/edgerun/skippy/internal/config"
	intmetrics "github.com/edgerun/skippy/internal/metrics"
	"github.com/edgerun/skippy/internal/skippy/clustercontext"
	"github.com/edgerun/skippy/internal/skippy/predicates"
	"github.com/edgerun/skippy/internal/skippy/priorities"
	"github.com/edgerun/skippy/internal/skippy/scheduler"
	"github.com/edgerun/skippy/internal/skippy/storage"
	"github.com/edgerun/skippy/pkg/explain"
)

var setupLog = ctrl.Log.WithName("setup")

func main() {
	var configFile string

	flag.StringVar(&configFile, "config", "/etc/skippy/config.yaml", "Path to config file")

	opts := zap.Options{Development: false}
	opts.BindFlags(flag.CommandLine)
	flag.Parse()

	ctrl.SetLogger(zap.New(zap.UseFlagOptions(&opts)))
	log := ctrl.Log.WithName("skippyd")

	cfg, err := config.LoadFromFile(configFile)
	if err != nil {
		setupLog.Error(err, "Failed to load config file, falling back to defaults", "path", configFile)
		cfg = config.DefaultConfig()
	}
	if err := cfg.ValidateDetailed(); err != nil {
		setupLog.Error(err, "Invalid configuration", "configFile", configFile)
		os.Exit(1)
	}

	setupLog.Info("Starting Skippy", "clusterBackend", cfg.ClusterBackend)

	appDB, err := audit.Open(audit.Config{Path: cfg.Database.Path, RetentionDays: cfg.Database.RetentionDays})
	if err != nil {
		setupLog.Error(err, "Database open failed, continuing with in-memory audit log only")
	} else {
		setupLog.Info("Database opened", "path", cfg.Database.Path)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var sqlDBRef *sql.DB
	var dbWriter *audit.Writer
	var auditLog *audit.Log
	if appDB != nil {
		sqlDBRef = appDB.RawDB()
		dbWriter = audit.NewWriter(sqlDBRef, 4096)
		dbWriter.Run(ctx)
		auditLog = audit.NewLogWithDB(1000, sqlDBRef, dbWriter)
	} else {
		auditLog = audit.NewLog(1000)
	}

	clusterCtx, err := bootstrapClusterContext(ctx, log, cfg)
	if err != nil {
		setupLog.Error(err, "Unable to bootstrap cluster context")
		os.Exit(1)
	}

	storageIndex := storage.NewIndex()
	schedConfig, err := buildSchedulerConfig(log, cfg, storageIndex)
	if err != nil {
		setupLog.Error(err, "Invalid scheduler configuration")
		os.Exit(1)
	}
	sched := scheduler.New(log, clusterCtx, schedConfig)

	metricsStore := intmetrics.NewStore(7 * 24 * time.Hour)

	explainer, err := explain.NewExplainer(explain.Config{
		Enabled: cfg.Explain.Enabled,
		Model:   cfg.Explain.Model,
		Timeout: cfg.Explain.Timeout,
	})
	if err != nil {
		setupLog.Error(err, "Unable to create explainer, continuing without explanations")
	}

	var apiSrv *http.Server
	if cfg.APIServer.Enabled {
		apiSrv = apiserver.NewServer(log, cfg, sched, clusterCtx, auditLog, metricsStore, explainer)
		go func() {
			setupLog.Info("Starting API server", "address", apiSrv.Addr)
			if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				setupLog.Error(err, "API server error")
			}
		}()
	}

	go func() {
		cleanupTicker := time.NewTicker(1 * time.Hour)
		defer cleanupTicker.Stop()
		for {
			select {
			case <-cleanupTicker.C:
				if appDB != nil {
					if err := appDB.Cleanup(); err != nil {
						setupLog.Error(err, "Database cleanup failed")
					}
				}
				if dbWriter != nil {
					if n := dbWriter.DroppedCount(); n > 0 {
						setupLog.Info("Database writer drops detected", "totalDropped", n)
					}
				}
				metricsStore.Cleanup()
			case <-ctx.Done():
				return
			}
		}
	}()

	signalCtx := ctrl.SetupSignalHandler()
	<-signalCtx.Done()
	setupLog.Info("Shutdown signal received, running cleanup")
	cancel()
	if apiSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		apiSrv.Shutdown(shutdownCtx)
	}
	if dbWriter != nil {
		dbWriter.Drain()
	}
	if appDB != nil {
		appDB.Close()
	}
}

// bootstrapClusterContext builds the ClusterContext for the configured
// backend. "kubernetes" and "aws" both refresh in the background into a
// liveadapter.Live so the returned value never needs to be swapped out
// from under the scheduler; "memory" returns a static empty inventory,
// useful for local testing against an otherwise idle daemon.
func bootstrapClusterContext(ctx context.Context, log logr.Logger, cfg *config.Config) (clustercontext.ClusterContext, error) {
	switch cfg.ClusterBackend {
	case "kubernetes":
		cl, err := k8sadapter.NewClient(cfg.Kubernetes.Kubeconfig)
		if err != nil {
			return nil, fmt.Errorf("building kubernetes client: %w", err)
		}
		bandwidth := clustercontext.BandwidthGraph{clustercontext.RegistryNode: {}}
		adapter := k8sadapter.NewAdapter(log.WithName("k8sadapter"), cl, bandwidth)
		if metricsClient, err := k8sadapter.NewMetricsClient(cfg.Kubernetes.Kubeconfig); err != nil {
			setupLog.Error(err, "metrics-server unavailable, scheduling on request-based allocatable only")
		} else {
			adapter.SetMetricsClient(metricsClient)
		}
		live := liveadapter.New(nil)
		refresher := k8sadapter.NewRefresher(adapter, live, cfg.Kubernetes.RefreshTimeout, func(err error) {
			setupLog.Error(err, "Kubernetes cluster refresh failed")
		})
		if err := refresher.Start(ctx, cfg.Kubernetes.RefreshSchedule); err != nil {
			return nil, fmt.Errorf("starting kubernetes refresher: %w", err)
		}
		return live, nil

	case "aws":
		awsConf, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(cfg.AWS.Region))
		if err != nil {
			return nil, fmt.Errorf("loading aws config: %w", err)
		}
		builder := awsinventory.NewBuilder(log.WithName("awsinventory"), awsConf)
		live := liveadapter.New(nil)
		refresher := awsinventory.NewRefresher(builder, live, 30*time.Second, func(err error) {
			setupLog.Error(err, "AWS cluster refresh failed")
		})
		if err := refresher.Start(ctx, refreshIntervalToCron(cfg.AWS.RefreshInterval)); err != nil {
			return nil, fmt.Errorf("starting aws refresher: %w", err)
		}
		return live, nil

	default: // "memory"
		return clustercontext.NewMemoryClusterContext(log.WithName("memory"), nil, nil,
			clustercontext.BandwidthGraph{clustercontext.RegistryNode: {}}, nil), nil
	}
}

// refreshIntervalToCron converts a plain refresh interval into the
// "@every" cron expression awsinventory.Refresher.Start expects, so
// AWSConfig.RefreshInterval stays a duration in config (the natural unit
// for "how often") rather than asking the operator to write cron syntax.
func refreshIntervalToCron(d time.Duration) string {
	if d <= 0 {
		d = 5 * time.Minute
	}
	return fmt.Sprintf("@every %s", d)
}

// buildSchedulerConfig resolves the configured predicate/priority names
// into the core scheduler.Config, failing fast on an unknown name rather
// than silently scheduling with fewer filters/priorities than configured.
func buildSchedulerConfig(log logr.Logger, cfg *config.Config, storageIndex *storage.Index) (scheduler.Config, error) {
	preds := make([]predicates.Predicate, 0, len(cfg.Scheduler.Predicates))
	for _, name := range cfg.Scheduler.Predicates {
		p, err := predicateByName(name)
		if err != nil {
			return scheduler.Config{}, err
		}
		preds = append(preds, p)
	}

	weighted := make([]scheduler.WeightedPriority, 0, len(cfg.Scheduler.Priorities))
	for _, pw := range cfg.Scheduler.Priorities {
		p, err := priorityByName(pw.Name, storageIndex, log)
		if err != nil {
			return scheduler.Config{}, err
		}
		weighted = append(weighted, scheduler.WeightedPriority{Weight: pw.Weight, Priority: p})
	}

	return scheduler.Config{
		Priorities:               weighted,
		Predicate:                predicates.NewCombined(log.WithName("predicates"), preds),
		PercentageOfNodesToScore: cfg.Scheduler.PercentageOfNodesToScore,
	}, nil
}

func predicateByName(name string) (predicates.Predicate, error) {
	switch name {
	case "PodFitsResources":
		return predicates.PodFitsResources{}, nil
	default:
		return nil, fmt.Errorf("unknown predicate %q", name)
	}
}

func priorityByName(name string, storageIndex *storage.Index, log logr.Logger) (priorities.Priority, error) {
	switch name {
	case "EqualPriority":
		return priorities.EqualPriority{}, nil
	case "BalancedResourcePriority":
		return priorities.BalancedResourcePriority{}, nil
	case "ImageLocalityPriority":
		return priorities.ImageLocalityPriority{}, nil
	case "LatencyAwareImageLocalityPriority":
		return priorities.LatencyAwareImageLocalityPriority{Log: log.WithName("priorities")}, nil
	case "LocalityTypePriority":
		return priorities.LocalityTypePriority{}, nil
	case "CapabilityPriority":
		return priorities.CapabilityPriority{}, nil
	case "DataLocalityPriority":
		return priorities.DataLocalityPriority{Storage: storageIndex}, nil
	default:
		return nil, fmt.Errorf("unknown priority %q", name)
	}
}
