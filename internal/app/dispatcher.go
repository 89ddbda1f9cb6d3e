package app

import (
	"context"
	"errors"
	"horizon/clients/notifier"
	"horizon/clients/roblox"
	"horizon/internal/render"
	"horizon/internal/trade"
	"image"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Outcome is the result of one notification attempt.
type Outcome string

const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

// NotificationFileName is the attachment name of every trade image.
const NotificationFileName = "trade.png"

// TradeFetcher fetches one trade in full.
type TradeFetcher interface {
	GetTrade(ctx context.Context, id int64) (*roblox.TradeDetail, error)
}

// ThumbnailSource fetches asset images by asset id.
type ThumbnailSource interface {
	FetchThumbnails(ctx context.Context, assetIDs []int64, size string) (map[int64]image.Image, error)
}

// TradeProcessor turns a trade id into a delivered notification.
type TradeProcessor interface {
	Process(ctx context.Context, tradeID int64) Outcome
}

// DispatcherConfig is the per-watcher part of dispatching.
type DispatcherConfig struct {
	Account         string
	WatchedUserID   int64
	Direction       roblox.Direction
	ThemeDir        string
	Content         string // caption template
	IncludeUnvalued bool
	ThumbnailSize   string
}

// Dispatcher builds and delivers the notification for one trade. Every
// attempt is independent; nothing is retried or re-queued.
type Dispatcher struct {
	logger     *zap.Logger
	cfg        DispatcherConfig
	trades     TradeFetcher
	valuations *ValuationCache
	thumbnails ThumbnailSource
	compositor *render.Compositor
	notifier   notifier.Notifier
	metrics    *Metrics
	stats      *WatcherStats
}

func NewDispatcher(
	logger *zap.Logger,
	cfg DispatcherConfig,
	trades TradeFetcher,
	valuations *ValuationCache,
	thumbnails ThumbnailSource,
	n notifier.Notifier,
	metrics *Metrics,
	stats *WatcherStats,
) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	if stats == nil {
		stats = &WatcherStats{}
	}
	return &Dispatcher{
		logger:     logger,
		cfg:        cfg,
		trades:     trades,
		valuations: valuations,
		thumbnails: thumbnails,
		compositor: render.NewCompositor(logger),
		notifier:   n,
		metrics:    metrics,
		stats:      stats,
	}
}

// Process fetches, renders and delivers the notification for tradeID.
func (d *Dispatcher) Process(ctx context.Context, tradeID int64) Outcome {
	start := time.Now()
	logger := d.logger.With(
		zap.String("attempt", uuid.NewString()),
		zap.String("account", d.cfg.Account),
		zap.String("direction", string(d.cfg.Direction)),
		zap.Int64("tradeId", tradeID),
	)

	outcome := d.process(ctx, logger, tradeID)

	d.stats.record(outcome)
	d.metrics.notifications.WithLabelValues(d.cfg.Account, string(d.cfg.Direction), string(outcome)).Inc()
	if outcome == OutcomeDelivered {
		d.metrics.notificationSeconds.Observe(time.Since(start).Seconds())
	}
	return outcome
}

func (d *Dispatcher) process(ctx context.Context, logger *zap.Logger, tradeID int64) Outcome {
	raw, err := d.trades.GetTrade(ctx, tradeID)
	if err != nil {
		logger.Error("failed to fetch trade", zap.Error(err))
		return OutcomeFailed
	}

	var values trade.Valuations
	if d.valuations != nil {
		if snap := d.valuations.ForDispatch(ctx); snap != nil {
			values = snap
		}
	}

	view, err := trade.Normalize(raw, values, d.cfg.WatchedUserID, d.cfg.IncludeUnvalued, d.cfg.Direction)
	if err != nil {
		if errors.Is(err, trade.ErrOfferCount) || errors.Is(err, trade.ErrUnknownParty) || errors.Is(err, trade.ErrTooManyItems) {
			logger.Warn("trade cannot be normalized, skipping", zap.Error(err))
			return OutcomeSkipped
		}
		logger.Error("failed to normalize trade", zap.Error(err))
		return OutcomeFailed
	}

	if ids := view.AssetIDs(); len(ids) > 0 {
		images, err := d.thumbnails.FetchThumbnails(ctx, ids, d.cfg.ThumbnailSize)
		if err != nil {
			logger.Error("failed to fetch thumbnails", zap.Error(err))
			return OutcomeFailed
		}
		view.AttachThumbnails(images)
	}

	var caption string
	if d.cfg.Content != "" {
		caption, err = trade.Format(d.cfg.Content, view)
		if err != nil {
			logger.Error("failed to render caption", zap.Error(err))
			return OutcomeFailed
		}
	}

	theme, err := render.LoadTheme(d.cfg.ThemeDir)
	if err != nil {
		logger.Error("failed to load theme", zap.String("themeDir", d.cfg.ThemeDir), zap.Error(err))
		return OutcomeFailed
	}
	img, err := d.compositor.Build(theme, view)
	if err != nil {
		logger.Error("failed to build trade image", zap.Error(err))
		return OutcomeFailed
	}

	err = d.notifier.Send(ctx, notifier.Notification{
		Content:  caption,
		Image:    img.Bytes(),
		FileName: NotificationFileName,
	})
	if err != nil {
		logger.Error("failed to deliver notification", zap.Error(err))
		return OutcomeFailed
	}

	logger.Info("notification sent",
		zap.String("status", string(view.Status)),
		zap.Int("giveItems", view.Give.ItemCount()),
		zap.Int("takeItems", view.Take.ItemCount()),
	)
	return OutcomeDelivered
}
