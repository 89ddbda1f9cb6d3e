package app

import (
	"context"
	"errors"
	"fmt"
	clts "horizon/clients"
	"horizon/clients/roblox"
	"horizon/config"
	"net/http"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Build info - populated from embedded VCS info at init time
var (
	BuildCommit = "dev"
	BuildTime   = "unknown"
)

// Version is the release this binary corresponds to. Overridden with
// -ldflags "-X horizon/internal/app.Version=..." on release builds.
var Version = "v0.2.0-alpha"

// ErrNoActiveAccounts is returned by Run when every account has stopped.
var ErrNoActiveAccounts = errors.New("all accounts stopped")

func init() {
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				if setting.Value != "" {
					BuildCommit = setting.Value
				}
			case "vcs.time":
				BuildTime = setting.Value
			}
		}
	}
}

// AccountSession is the authenticated API surface one account needs.
type AccountSession interface {
	Authenticate(ctx context.Context) (*roblox.User, error)
	TradeLister
	TradeFetcher
}

type watcherEntry struct {
	account   string
	direction roblox.Direction
	userID    int64
	stats     *WatcherStats
}

type Runner struct {
	clients    *clts.Clients
	cfg        *config.Config
	metrics    *Metrics
	valuations *ValuationCache
	updates    *UpdateChecker

	newSession func(cookie string) AccountSession

	mu       sync.RWMutex
	watchers []watcherEntry

	healthServer *http.Server
	startTime    time.Time
}

// ServiceStats holds comprehensive service statistics.
type ServiceStats struct {
	// Build info
	Build struct {
		Version   string `json:"version"`
		Commit    string `json:"commit"`
		Time      string `json:"time,omitempty"`
		GoVersion string `json:"go_version"`
	} `json:"build"`

	// Service info
	StartTime string `json:"start_time"`
	Uptime    string `json:"uptime"`
	UptimeSec int64  `json:"uptime_seconds"`

	// Valuation snapshot
	Valuations struct {
		Items  int     `json:"items"`
		AgeSec float64 `json:"age_seconds"`
	} `json:"valuations"`

	LatestRelease string `json:"latest_release,omitempty"`

	Watchers []WatcherInfo `json:"watchers"`

	// Totals across watchers
	Totals struct {
		Detected  int64 `json:"detected"`
		Delivered int64 `json:"delivered"`
		Skipped   int64 `json:"skipped"`
		Failed    int64 `json:"failed"`
	} `json:"totals"`

	// Runtime stats
	Runtime struct {
		Goroutines int    `json:"goroutines"`
		HeapAlloc  uint64 `json:"heap_alloc"`
		NumGC      uint32 `json:"num_gc"`
		NumCPU     int    `json:"num_cpu"`
	} `json:"runtime"`
}

// WatcherInfo is the stats view of one watcher.
type WatcherInfo struct {
	Account    string `json:"account"`
	Direction  string `json:"direction"`
	UserID     int64  `json:"user_id"`
	SeenSize   int64  `json:"seen_size"`
	Detected   int64  `json:"detected"`
	Delivered  int64  `json:"delivered"`
	Skipped    int64  `json:"skipped"`
	Failed     int64  `json:"failed"`
	Dropped    int64  `json:"dropped"`
	PollErrors int64  `json:"poll_errors"`
	LastPollAt string `json:"last_poll_at,omitempty"`
}

func NewRunner(clients *clts.Clients, cfg *config.Config) *Runner {
	metrics := NewMetrics()
	r := &Runner{
		clients:    clients,
		cfg:        cfg,
		metrics:    metrics,
		valuations: NewValuationCache(clients.Logger, clients.Rolimons, cfg.Rolimons.RefreshInterval, metrics),
	}
	r.newSession = func(cookie string) AccountSession {
		return clients.Session(cookie)
	}
	return r
}

// Run starts every account and blocks until ctx is done or no account is
// left running.
func (r *Runner) Run(ctx context.Context) error {
	r.startTime = time.Now()
	logger := r.clients.Logger

	logger.Info("starting horizon",
		zap.String("version", Version),
		zap.String("commit", BuildCommit),
		zap.Int("accounts", len(r.cfg.Accounts)),
	)

	go r.valuations.Run(ctx)

	if r.cfg.UpdateChecker.Enabled {
		r.startUpdateChecker(ctx)
	}

	if r.cfg.HealthServer.Enabled {
		r.startHealthServer(r.cfg.HealthServer.Port)
		logger.Info("health server started", zap.Int("port", r.cfg.HealthServer.Port))
	}

	var g errgroup.Group
	for _, acct := range r.cfg.Accounts {
		g.Go(func() error {
			if err := r.runAccount(ctx, acct); err != nil && ctx.Err() == nil {
				logger.Error("account stopped", zap.String("account", acct.Name), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	err := ctx.Err()
	if err == nil {
		err = ErrNoActiveAccounts
	} else {
		err = nil
		logger.Info("runner shutting down")
	}

	if r.healthServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = r.healthServer.Shutdown(shutdownCtx)
		shutdownCancel()
	}

	return err
}

// runAccount authenticates one account and runs its watchers. A fatal
// session error in any watcher stops the whole account.
func (r *Runner) runAccount(ctx context.Context, acct config.AccountConfig) error {
	logger := r.clients.Logger.With(zap.String("account", acct.Name))

	session := r.newSession(acct.Cookie)
	user, err := session.Authenticate(ctx)
	if err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}
	logger.Info("account authenticated",
		zap.Int64("userId", user.ID),
		zap.String("userName", user.Name),
	)

	watchers := make([]*TradeWatcher, 0, len(acct.Watchers))
	for _, wc := range acct.Watchers {
		dir, err := roblox.ParseDirection(wc.Direction)
		if err != nil {
			return err
		}

		n, err := r.clients.WatcherNotifier(wc.WebhookURL)
		if err != nil {
			return fmt.Errorf("%s notifier: %w", dir, err)
		}
		defer n.Close()

		stats := &WatcherStats{}
		dispatcher := NewDispatcher(logger, DispatcherConfig{
			Account:         acct.Name,
			WatchedUserID:   user.ID,
			Direction:       dir,
			ThemeDir:        filepath.Join(r.cfg.Render.ThemesDir, wc.Theme),
			Content:         wc.Content,
			IncludeUnvalued: wc.IncludeUnvalued(),
			ThumbnailSize:   r.cfg.Render.ThumbnailSize,
		}, session, r.valuations, r.clients.Thumbnails, n, r.metrics, stats)

		watcher := NewTradeWatcher(logger, WatcherConfig{
			Account:          acct.Name,
			Direction:        dir,
			PollInterval:     wc.PollInterval,
			PageSize:         wc.PageSize,
			SeedPageSize:     r.cfg.Roblox.SeedPageSize,
			DoubleCheck:      wc.DoubleCheck,
			DoubleCheckDelay: r.cfg.Roblox.DoubleCheckDelay,
			Testing:          wc.Testing,
		}, session, dispatcher, r.metrics, stats)

		r.register(watcherEntry{account: acct.Name, direction: dir, userID: user.ID, stats: stats})
		watchers = append(watchers, watcher)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, w := range watchers {
		g.Go(func() error { return w.Run(gctx) })
	}
	return g.Wait()
}

func (r *Runner) startUpdateChecker(ctx context.Context) {
	logger := r.clients.Logger

	n, err := r.clients.AnnouncementNotifier(r.cfg.UpdateChecker.WebhookURL)
	if err != nil {
		logger.Warn("update notifications disabled", zap.Error(err))
		n = nil
	}

	r.updates = NewUpdateChecker(logger, r.clients.GitHub, n, r.cfg.UpdateChecker.Repo, r.cfg.UpdateChecker.Schedule, Version)
	if err := r.updates.Start(ctx); err != nil {
		logger.Warn("update checker not started", zap.Error(err))
		r.updates = nil
	}
}

func (r *Runner) register(e watcherEntry) {
	r.mu.Lock()
	r.watchers = append(r.watchers, e)
	r.mu.Unlock()
}

// GetStats returns comprehensive service statistics.
func (r *Runner) GetStats() ServiceStats {
	var stats ServiceStats

	stats.Build.Version = Version
	stats.Build.Commit = BuildCommit
	if BuildTime != "unknown" {
		stats.Build.Time = BuildTime
	}
	stats.Build.GoVersion = runtime.Version()

	stats.StartTime = r.startTime.Format(time.RFC3339)
	uptime := time.Since(r.startTime)
	stats.Uptime = uptime.Round(time.Second).String()
	stats.UptimeSec = int64(uptime.Seconds())

	stats.Valuations.Items = r.valuations.Current().Len()
	stats.Valuations.AgeSec = r.valuations.Age().Seconds()

	if r.updates != nil {
		stats.LatestRelease = r.updates.Latest()
	}

	r.mu.RLock()
	stats.Watchers = make([]WatcherInfo, 0, len(r.watchers))
	for _, e := range r.watchers {
		info := WatcherInfo{
			Account:    e.account,
			Direction:  string(e.direction),
			UserID:     e.userID,
			SeenSize:   e.stats.SeenSize.Load(),
			Detected:   e.stats.Detected.Load(),
			Delivered:  e.stats.Delivered.Load(),
			Skipped:    e.stats.Skipped.Load(),
			Failed:     e.stats.Failed.Load(),
			Dropped:    e.stats.Dropped.Load(),
			PollErrors: e.stats.PollErrors.Load(),
		}
		if last := e.stats.LastPoll.Load(); last > 0 {
			info.LastPollAt = time.Unix(0, last).Format(time.RFC3339)
		}
		stats.Totals.Detected += info.Detected
		stats.Totals.Delivered += info.Delivered
		stats.Totals.Skipped += info.Skipped
		stats.Totals.Failed += info.Failed
		stats.Watchers = append(stats.Watchers, info)
	}
	r.mu.RUnlock()

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	stats.Runtime.Goroutines = runtime.NumGoroutine()
	stats.Runtime.HeapAlloc = mem.HeapAlloc
	stats.Runtime.NumGC = mem.NumGC
	stats.Runtime.NumCPU = runtime.NumCPU()

	return stats
}
