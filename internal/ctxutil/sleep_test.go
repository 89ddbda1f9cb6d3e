package ctxutil

import (
	"context"
	"testing"
	"time"
)

func TestSleep_Elapses(t *testing.T) {
	start := time.Now()
	if err := Sleep(context.Background(), 10*time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Error("returned before the delay elapsed")
	}
}

func TestSleep_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := Sleep(ctx, time.Hour); err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if err := Sleep(ctx, 0); err != context.Canceled {
		t.Errorf("expected context.Canceled for zero delay, got %v", err)
	}
}

func TestSleep_ZeroDelay(t *testing.T) {
	if err := Sleep(context.Background(), 0); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
