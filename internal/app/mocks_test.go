package app

import (
	"context"
	"horizon/clients/github"
	"horizon/clients/notifier"
	"horizon/clients/roblox"
	"horizon/clients/rolimons"
	"image"
	"sync"
	"time"
)

// fakeSession serves scripted trade lists and trade details.
type fakeSession struct {
	mu       sync.Mutex
	user     *roblox.User
	authErr  error
	pages    [][]roblox.TradeSummary // consumed one per ListTrades call; last page repeats
	listErrs []error                 // consumed before pages
	details  map[int64]*roblox.TradeDetail
	getErr   error
	calls    int
}

func summaries(ids ...int64) []roblox.TradeSummary {
	out := make([]roblox.TradeSummary, len(ids))
	for i, id := range ids {
		out[i] = roblox.TradeSummary{ID: id}
	}
	return out
}

func (f *fakeSession) Authenticate(ctx context.Context) (*roblox.User, error) {
	if f.authErr != nil {
		return nil, f.authErr
	}
	return f.user, nil
}

func (f *fakeSession) ListTrades(ctx context.Context, dir roblox.Direction, limit int) ([]roblox.TradeSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	if len(f.listErrs) > 0 {
		err := f.listErrs[0]
		f.listErrs = f.listErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	if len(f.pages) == 0 {
		return nil, nil
	}
	page := f.pages[0]
	if len(f.pages) > 1 {
		f.pages = f.pages[1:]
	}
	if limit > 0 && len(page) > limit {
		page = page[:limit]
	}
	return page, nil
}

func (f *fakeSession) GetTrade(ctx context.Context, id int64) (*roblox.TradeDetail, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.details[id], nil
}

func (f *fakeSession) listCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// recordingProcessor records trade ids in the order they were processed.
type recordingProcessor struct {
	mu  sync.Mutex
	ids []int64
}

func (p *recordingProcessor) Process(ctx context.Context, id int64) Outcome {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ids = append(p.ids, id)
	return OutcomeDelivered
}

func (p *recordingProcessor) processed() []int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int64(nil), p.ids...)
}

// fakeValuations returns scripted snapshots or errors in order.
type fakeValuations struct {
	mu        sync.Mutex
	snapshots []*rolimons.Snapshot
	errs      []error
	calls     int
	block     chan struct{}
	started   chan struct{} // closed when the first fetch begins
	startOnce sync.Once
	ctxErrs   []error       // ctx.Err() seen by each fetch once unblocked
}

func (f *fakeValuations) FetchSnapshot(ctx context.Context) (*rolimons.Snapshot, error) {
	if f.started != nil {
		f.startOnce.Do(func() { close(f.started) })
	}
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ctxErrs = append(f.ctxErrs, ctx.Err())
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.snapshots) {
		return f.snapshots[i], nil
	}
	return f.snapshots[len(f.snapshots)-1], nil
}

func (f *fakeValuations) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func snapshot(values map[int64]int64) *rolimons.Snapshot {
	snap := &rolimons.Snapshot{Items: make(map[int64]rolimons.Valuation), FetchedAt: time.Now()}
	for id, v := range values {
		snap.Items[id] = rolimons.Valuation{Value: v}
	}
	return snap
}

// fakeThumbnails returns the same image for every requested asset.
type fakeThumbnails struct {
	img       image.Image
	err       error
	requested [][]int64
}

func (f *fakeThumbnails) FetchThumbnails(ctx context.Context, ids []int64, size string) (map[int64]image.Image, error) {
	f.requested = append(f.requested, ids)
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[int64]image.Image, len(ids))
	for _, id := range ids {
		out[id] = f.img
	}
	return out, nil
}

// recordingNotifier captures sent notifications.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []notifier.Notification
	err  error
}

func (n *recordingNotifier) Send(ctx context.Context, msg notifier.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, msg)
	return nil
}

func (n *recordingNotifier) Close() error { return nil }

func (n *recordingNotifier) messages() []notifier.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notifier.Notification(nil), n.sent...)
}

// fakeReleases serves one scripted release.
type fakeReleases struct {
	release *github.Release
	err     error
}

func (f *fakeReleases) LatestRelease(ctx context.Context, repo string) (*github.Release, error) {
	return f.release, f.err
}
