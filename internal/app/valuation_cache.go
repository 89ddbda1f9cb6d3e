package app

import (
	"context"
	"horizon/clients/rolimons"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// refreshTimeout bounds one shared snapshot fetch.
const refreshTimeout = 30 * time.Second

// ValuationSource fetches a full valuation snapshot.
type ValuationSource interface {
	FetchSnapshot(ctx context.Context) (*rolimons.Snapshot, error)
}

// ValuationCache holds the last good valuation snapshot. With a refresh
// interval it refreshes on a timer; without one every dispatch refreshes,
// and concurrent refreshes share one request.
type ValuationCache struct {
	logger   *zap.Logger
	source   ValuationSource
	interval time.Duration
	metrics  *Metrics

	current atomic.Pointer[rolimons.Snapshot]
	group   singleflight.Group
}

func NewValuationCache(logger *zap.Logger, source ValuationSource, interval time.Duration, metrics *Metrics) *ValuationCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &ValuationCache{
		logger:   logger,
		source:   source,
		interval: interval,
		metrics:  metrics,
	}
}

// Current returns the last good snapshot, or nil before the first success.
func (c *ValuationCache) Current() *rolimons.Snapshot {
	return c.current.Load()
}

// Age returns how long ago the current snapshot was fetched.
func (c *ValuationCache) Age() time.Duration {
	snap := c.current.Load()
	if snap == nil {
		return 0
	}
	return time.Since(snap.FetchedAt)
}

// Refresh fetches a new snapshot and makes it current. A failed refresh
// leaves the previous snapshot in place. The fetch is shared by concurrent
// callers and does not end when one caller's ctx does; a cancelled caller
// stops waiting for it.
func (c *ValuationCache) Refresh(ctx context.Context) (*rolimons.Snapshot, error) {
	ch := c.group.DoChan("snapshot", func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()

		snap, err := c.source.FetchSnapshot(fetchCtx)
		if err != nil {
			c.metrics.valuationRefreshes.WithLabelValues("error").Inc()
			return nil, err
		}
		c.current.Store(snap)
		c.metrics.valuationRefreshes.WithLabelValues("ok").Inc()
		c.metrics.valuationItems.Set(float64(snap.Len()))
		c.logger.Debug("valuation snapshot refreshed", zap.Int("items", snap.Len()))
		return snap, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*rolimons.Snapshot), nil
	}
}

// ForDispatch returns the snapshot a notification should use. It never
// fails: on refresh errors it falls back to the last good snapshot, which
// may be nil.
func (c *ValuationCache) ForDispatch(ctx context.Context) *rolimons.Snapshot {
	if c.interval > 0 {
		return c.Current()
	}
	snap, err := c.Refresh(ctx)
	if err != nil {
		c.logger.Warn("valuation refresh failed, using last snapshot", zap.Error(err))
		return c.Current()
	}
	return snap
}

// Run refreshes on the configured interval until ctx is done. It returns
// immediately when refreshes happen per dispatch.
func (c *ValuationCache) Run(ctx context.Context) {
	if c.interval <= 0 {
		return
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.refreshLogged(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.refreshLogged(ctx)
		}
	}
}

func (c *ValuationCache) refreshLogged(ctx context.Context) {
	if _, err := c.Refresh(ctx); err != nil && ctx.Err() == nil {
		c.logger.Warn("valuation refresh failed", zap.Error(err))
	}
}
