package app

import (
	"context"
	"errors"
	"fmt"
	"horizon/clients/github"
	"horizon/clients/notifier"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const updateCheckTimeout = 30 * time.Second

// ReleaseSource returns the latest published release of a repository.
type ReleaseSource interface {
	LatestRelease(ctx context.Context, repo string) (*github.Release, error)
}

// UpdateChecker periodically compares the running version with the latest
// release and announces newer ones once.
type UpdateChecker struct {
	logger   *zap.Logger
	releases ReleaseSource
	notifier notifier.Notifier // may be nil
	repo     string
	schedule string
	current  string
	cron     *cron.Cron

	mu        sync.Mutex
	announced string
	latest    string
}

func NewUpdateChecker(logger *zap.Logger, releases ReleaseSource, n notifier.Notifier, repo, schedule, current string) *UpdateChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UpdateChecker{
		logger:   logger,
		releases: releases,
		notifier: n,
		repo:     repo,
		schedule: schedule,
		current:  current,
		cron:     cron.New(),
	}
}

// Start runs one check immediately and schedules the rest. The schedule
// stops when ctx is done.
func (u *UpdateChecker) Start(ctx context.Context) error {
	if _, err := u.cron.AddFunc(u.schedule, func() { u.Check(ctx) }); err != nil {
		return fmt.Errorf("schedule update check: %w", err)
	}
	u.cron.Start()
	go u.Check(ctx)

	go func() {
		<-ctx.Done()
		<-u.cron.Stop().Done()
	}()
	return nil
}

// Latest returns the newest release tag seen so far.
func (u *UpdateChecker) Latest() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.latest
}

// Check fetches the latest release and announces it if it is newer than the
// running version and has not been announced yet.
func (u *UpdateChecker) Check(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, updateCheckTimeout)
	defer cancel()

	rel, err := u.releases.LatestRelease(ctx, u.repo)
	if err != nil {
		if errors.Is(err, github.ErrNoRelease) {
			u.logger.Debug("no release published yet", zap.String("repo", u.repo))
			return
		}
		u.logger.Warn("update check failed", zap.Error(err))
		return
	}

	u.mu.Lock()
	u.latest = rel.TagName
	fresh := newerVersion(rel.TagName, u.current) && u.announced != rel.TagName
	if fresh {
		u.announced = rel.TagName
	}
	u.mu.Unlock()

	if !fresh {
		return
	}

	u.logger.Warn("a newer release is available",
		zap.String("current", u.current),
		zap.String("latest", rel.TagName),
		zap.String("url", rel.HTMLURL),
	)

	if u.notifier == nil {
		return
	}
	err = u.notifier.Send(ctx, notifier.Notification{
		Title:   fmt.Sprintf("Update available: %s", rel.TagName),
		Content: fmt.Sprintf("You are running %s. %s", u.current, strings.TrimSpace(rel.Body)),
		URL:     rel.HTMLURL,
	})
	if err != nil {
		u.logger.Warn("failed to send update notification", zap.Error(err))
	}
}

// newerVersion reports whether tag is a higher dotted version than current.
// Development builds are never considered outdated.
func newerVersion(tag, current string) bool {
	a, okA := parseVersion(tag)
	b, okB := parseVersion(current)
	if !okA || !okB {
		return false
	}
	for i := 0; i < max(len(a), len(b)); i++ {
		var x, y int
		if i < len(a) {
			x = a[i]
		}
		if i < len(b) {
			y = b[i]
		}
		if x != y {
			return x > y
		}
	}
	return false
}

func parseVersion(v string) ([]int, bool) {
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	if i := strings.IndexAny(v, "-+"); i >= 0 {
		v = v[:i]
	}
	if v == "" {
		return nil, false
	}
	parts := strings.Split(v, ".")
	out := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, false
		}
		out[i] = n
	}
	return out, true
}
