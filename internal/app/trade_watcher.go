package app

import (
	"context"
	"errors"
	"fmt"
	"horizon/clients/roblox"
	"horizon/internal/ctxutil"
	"slices"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	doubleCheckRetryDelay = 5 * time.Second
	doubleCheckAttempts   = 6
)

// TradeLister lists the most recent trades of one direction, newest first.
type TradeLister interface {
	ListTrades(ctx context.Context, dir roblox.Direction, limit int) ([]roblox.TradeSummary, error)
}

// WatcherConfig configures one (account, direction) watcher.
type WatcherConfig struct {
	Account          string
	Direction        roblox.Direction
	PollInterval     time.Duration
	PageSize         int
	SeedPageSize     int
	DoubleCheck      bool
	DoubleCheckDelay time.Duration
	Testing          bool
}

// WatcherStats are the live counters of one watcher.
type WatcherStats struct {
	Detected   atomic.Int64
	Delivered  atomic.Int64
	Skipped    atomic.Int64
	Failed     atomic.Int64
	Dropped    atomic.Int64 // disappeared during double-check
	PollErrors atomic.Int64
	SeenSize   atomic.Int64
	LastPoll   atomic.Int64 // unix nanos
}

func (s *WatcherStats) record(o Outcome) {
	switch o {
	case OutcomeDelivered:
		s.Delivered.Add(1)
	case OutcomeSkipped:
		s.Skipped.Add(1)
	default:
		s.Failed.Add(1)
	}
}

// TradeWatcher polls one trade direction of one account and hands every
// trade it has not seen before to its processor.
type TradeWatcher struct {
	logger    *zap.Logger
	cfg       WatcherConfig
	lister    TradeLister
	processor TradeProcessor
	metrics   *Metrics
	stats     *WatcherStats

	// seen is only touched from the polling goroutine.
	seen *SeenTradeSet

	// spawn runs one notification; tests replace it to run inline.
	spawn func(func())
	sleep func(context.Context, time.Duration) error
}

func NewTradeWatcher(
	logger *zap.Logger,
	cfg WatcherConfig,
	lister TradeLister,
	processor TradeProcessor,
	metrics *Metrics,
	stats *WatcherStats,
) *TradeWatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	if stats == nil {
		stats = &WatcherStats{}
	}
	// Pages never outgrow the seen set, and seeding covers at least one poll
	// page, so ids already listed are never evicted and renotified.
	cfg.PageSize = min(max(cfg.PageSize, 1), SeenTradeCapacity)
	if cfg.SeedPageSize <= 0 {
		cfg.SeedPageSize = SeenTradeCapacity
	}
	cfg.SeedPageSize = min(max(cfg.SeedPageSize, cfg.PageSize), SeenTradeCapacity)
	return &TradeWatcher{
		logger: logger.With(
			zap.String("account", cfg.Account),
			zap.String("direction", string(cfg.Direction)),
		),
		cfg:       cfg,
		lister:    lister,
		processor: processor,
		metrics:   metrics,
		stats:     stats,
		seen:      NewSeenTradeSet(SeenTradeCapacity),
		spawn:     func(f func()) { go f() },
		sleep:     ctxutil.Sleep,
	}
}

// Stats returns the live counters of this watcher.
func (w *TradeWatcher) Stats() *WatcherStats {
	return w.stats
}

// Init seeds the seen set with the most recent trades so that history is
// never notified. In testing mode the newest trade is sent once.
func (w *TradeWatcher) Init(ctx context.Context) error {
	trades, err := w.lister.ListTrades(ctx, w.cfg.Direction, w.cfg.SeedPageSize)
	if err != nil {
		return fmt.Errorf("seed %s trades: %w", w.cfg.Direction, err)
	}
	trades = trades[:min(len(trades), w.cfg.SeedPageSize)]

	for _, t := range slices.Backward(trades) {
		w.seen.Add(t.ID)
	}
	w.stats.SeenSize.Store(int64(w.seen.Len()))

	w.logger.Info("trade watcher seeded", zap.Int("seen", w.seen.Len()))

	if w.cfg.Testing {
		if len(trades) == 0 {
			w.logger.Warn("no trades in history to send a test notification for")
		} else {
			newest := trades[0].ID
			w.logger.Info("testing mode, sending newest trade", zap.Int64("tradeId", newest))
			w.spawn(func() { w.dispatch(ctx, newest, false) })
		}
	}
	return nil
}

// Run seeds the watcher and polls until ctx is done or the session becomes
// unusable.
func (w *TradeWatcher) Run(ctx context.Context) error {
	if err := w.Init(ctx); err != nil {
		return err
	}

	w.logger.Info("trade watcher started", zap.Duration("pollInterval", w.cfg.PollInterval))

	if err := w.poll(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("trade watcher shutting down")
			return nil
		case <-ticker.C:
			if err := w.poll(ctx); err != nil {
				return err
			}
		}
	}
}

// poll fetches the latest page and dispatches unseen trades oldest first.
// Only errors that end the watcher are returned.
func (w *TradeWatcher) poll(ctx context.Context) error {
	w.logger.Debug("checking trades")
	w.stats.LastPoll.Store(time.Now().UnixNano())

	trades, err := w.lister.ListTrades(ctx, w.cfg.Direction, w.cfg.PageSize)
	if err != nil {
		if roblox.IsFatal(err) {
			w.logger.Error("session rejected, stopping watcher", zap.Error(err))
			return err
		}
		if ctx.Err() == nil {
			w.stats.PollErrors.Add(1)
			w.metrics.pollErrors.WithLabelValues(w.cfg.Account, string(w.cfg.Direction)).Inc()
			w.logger.Warn("failed to list trades", zap.Error(err))
		}
		return nil
	}
	trades = trades[:min(len(trades), w.cfg.PageSize)]

	for _, t := range slices.Backward(trades) {
		if !w.seen.Add(t.ID) {
			continue
		}
		w.stats.Detected.Add(1)
		w.metrics.tradesDetected.WithLabelValues(w.cfg.Account, string(w.cfg.Direction)).Inc()
		w.logger.Info("new trade detected", zap.Int64("tradeId", t.ID))

		id := t.ID
		w.spawn(func() { w.dispatch(ctx, id, w.cfg.DoubleCheck) })
	}
	w.stats.SeenSize.Store(int64(w.seen.Len()))
	return nil
}

func (w *TradeWatcher) dispatch(ctx context.Context, id int64, doubleCheck bool) {
	if doubleCheck {
		ok, err := w.stillListed(ctx, id)
		if err != nil {
			w.logger.Warn("double-check failed, skipping trade", zap.Int64("tradeId", id), zap.Error(err))
			w.stats.Failed.Add(1)
			return
		}
		if !ok {
			w.logger.Info("trade disappeared during double-check, skipping", zap.Int64("tradeId", id))
			w.stats.Dropped.Add(1)
			return
		}
	}
	w.processor.Process(ctx, id)
}

// stillListed waits the double-check delay and reports whether id is still
// in the latest page of trades.
func (w *TradeWatcher) stillListed(ctx context.Context, id int64) (bool, error) {
	w.logger.Info("double-checking trade", zap.Int64("tradeId", id))
	if err := w.sleep(ctx, w.cfg.DoubleCheckDelay); err != nil {
		return false, err
	}

	var lastErr error
	for attempt := 0; attempt < doubleCheckAttempts; attempt++ {
		if attempt > 0 {
			if err := w.sleep(ctx, doubleCheckRetryDelay); err != nil {
				return false, err
			}
		}
		trades, err := w.lister.ListTrades(ctx, w.cfg.Direction, w.cfg.PageSize)
		if err != nil {
			if roblox.IsFatal(err) || errors.Is(err, context.Canceled) {
				return false, err
			}
			lastErr = err
			continue
		}
		return slices.ContainsFunc(trades, func(t roblox.TradeSummary) bool { return t.ID == id }), nil
	}
	return false, fmt.Errorf("double-check %d: %w", id, lastErr)
}
