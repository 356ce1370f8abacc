package awsinventory

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/edgerun/skippy/internal/clustercontext/liveadapter"
)

// Refresher periodically rebuilds a liveadapter.Live snapshot from EC2 on
// a cron schedule. Identical lifecycle shape to k8sadapter.Refresher: one
// synchronous build before Start returns, then a cron.Cron loop stopped by
// context cancellation.
type Refresher struct {
	builder *Builder
	live    *liveadapter.Live
	cron    *cron.Cron
	timeout time.Duration
	onError func(error)
}

// NewRefresher builds a Refresher. onError may be nil.
func NewRefresher(builder *Builder, live *liveadapter.Live, timeout time.Duration, onError func(error)) *Refresher {
	if onError == nil {
		onError = func(error) {}
	}
	return &Refresher{builder: builder, live: live, cron: cron.New(), timeout: timeout, onError: onError}
}

// Start validates schedule, performs one synchronous refresh, then starts
// the cron loop. The loop stops when ctx is cancelled.
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

	snapshot, err := r.builder.Build(ctx)
	if err != nil {
		return err
	}
	r.live.Swap(snapshot)
	return nil
}
