// Package ctxutil holds small helpers for context-bound waiting.
package ctxutil

import (
	"context"
	"time"
)

// Sleep blocks for d or until ctx is done, returning ctx.Err() in the latter
// case. A non-positive d only reports whether ctx is already done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
