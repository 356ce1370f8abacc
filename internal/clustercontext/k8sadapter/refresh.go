package k8sadapter

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/edgerun/skippy/internal/clustercontext/liveadapter"
)

// Refresher periodically rebuilds a liveadapter.Live snapshot from the
// Kubernetes API on a cron schedule, mirroring the teacher's hibernation
// controller's own cron.Cron lifecycle (validate schedule up front, start
// on an explicit Start, stop on context cancellation).
type Refresher struct {
	adapter *Adapter
	live    *liveadapter.Live
	cron    *cron.Cron
	timeout time.Duration
	onError func(error)
}

// NewRefresher builds a Refresher. onError may be nil.
func NewRefresher(adapter *Adapter, live *liveadapter.Live, timeout time.Duration, onError func(error)) *Refresher {
	if onError == nil {
		onError = func(error) {}
	}
	return &Refresher{adapter: adapter, live: live, cron: cron.New(), timeout: timeout, onError: onError}
}

// Start validates schedule, performs one synchronous refresh so the first
// Schedule call never races an empty snapshot, then starts the cron loop.
// The loop stops when ctx is cancelled.
func (r *Refresher) Start(ctx context.Context, schedule string) error {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", schedule, err)
	}

	if err := r.refreshOnce(ctx); err != nil {
		return fmt.Errorf("initial cluster refresh: %w", err)
	}

	if _, err := r.cron.AddFunc(schedule, func() {
		if err := r.refreshOnce(ctx); err != nil {
			r.onError(err)
		}
	}); err != nil {
		return fmt.Errorf("scheduling refresh %q: %w", schedule, err)
	}

	r.cron.Start()
	go func() {
		<-ctx.Done()
		r.cron.Stop()
	}()
	return nil
}

func (r *Refresher) refreshOnce(parent context.Context) error {
	ctx, cancel := context.WithTimeout(parent, r.timeout)
	defer cancel()

	snapshot, err := r.adapter.Build(ctx)
	if err != nil {
		return err
	}
	r.live.Swap(snapshot)
	return nil
}
