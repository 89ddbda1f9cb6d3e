package app

import (
	"context"
	"errors"
	"horizon/clients/github"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewerVersion(t *testing.T) {
	tests := []struct {
		tag, current string
		want         bool
	}{
		{"v0.3.0", "v0.2.0-alpha", true},
		{"v0.2.1", "v0.2.0", true},
		{"v1.0", "v0.9.9", true},
		{"v0.2.0", "v0.2.0-alpha", false},
		{"v0.1.9", "v0.2.0", false},
		{"0.2.0", "v0.2.0", false},
		{"v1.0.0", "dev", false},
		{"nightly", "v0.2.0", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, newerVersion(tt.tag, tt.current), "%s vs %s", tt.tag, tt.current)
	}
}

func TestUpdateChecker_AnnouncesOnce(t *testing.T) {
	sink := &recordingNotifier{}
	releases := &fakeReleases{release: &github.Release{
		TagName: "v0.3.0",
		HTMLURL: "https://github.com/horizon-bots/horizon/releases/tag/v0.3.0",
		Body:    "Faster rendering.",
	}}
	u := NewUpdateChecker(nil, releases, sink, "horizon-bots/horizon", "@every 1h", "v0.2.0")

	u.Check(context.Background())
	u.Check(context.Background())

	msgs := sink.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Title, "v0.3.0")
	assert.Contains(t, msgs[0].Content, "v0.2.0")
	assert.Contains(t, msgs[0].Content, "Faster rendering.")
	assert.Equal(t, releases.release.HTMLURL, msgs[0].URL)
	assert.Equal(t, "v0.3.0", u.Latest())
}

func TestUpdateChecker_NoAnnouncement(t *testing.T) {
	tests := []struct {
		name     string
		releases *fakeReleases
	}{
		{"up to date", &fakeReleases{release: &github.Release{TagName: "v0.2.0"}}},
		{"no release", &fakeReleases{err: github.ErrNoRelease}},
		{"api error", &fakeReleases{err: errors.New("status=500")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &recordingNotifier{}
			u := NewUpdateChecker(nil, tt.releases, sink, "o/r", "@every 1h", "v0.2.0")
			u.Check(context.Background())
			assert.Empty(t, sink.messages())
		})
	}
}

func TestUpdateChecker_NilNotifier(t *testing.T) {
	u := NewUpdateChecker(nil, &fakeReleases{release: &github.Release{TagName: "v9.0.0"}}, nil, "o/r", "@every 1h", "v0.2.0")
	u.Check(context.Background())
	assert.Equal(t, "v9.0.0", u.Latest())
}

func TestUpdateChecker_BadSchedule(t *testing.T) {
	u := NewUpdateChecker(nil, &fakeReleases{err: github.ErrNoRelease}, nil, "o/r", "every so often", "v0.2.0")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	assert.Error(t, u.Start(ctx))
}
