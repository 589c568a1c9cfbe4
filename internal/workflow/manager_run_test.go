package workflow

import (
	"context"
	"testing"
	"time"

	"narrator/internal/testsupport"
)

type nopClips struct{}

func (nopClips) SynthesizeClip(context.Context, string, string) error { return nil }
func (nopClips) Extension() string                                 { return ".mp3" }

// firstWait runs the loop until its first pause and returns the pause length.
func firstWait(t *testing.T, m *Manager) time.Duration {
	t.Helper()
	waits := make(chan time.Duration, 1)
	m.wait = func(_ context.Context, d time.Duration) bool {
		waits <- d
		return false
	}
	done := make(chan struct{})
	ctx := context.Background()
	go m.run(ctx, ctx, done)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not stop")
	}
	select {
	case d := <-waits:
		return d
	default:
		t.Fatal("loop never paused")
		return 0
	}
}

func TestRunWaitsErrorIntervalAfterFailedCycle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	m := NewManager(cfg, store, nopClips{}, nil, WithIntervals(time.Millisecond, time.Hour))

	if got := firstWait(t, m); got != time.Hour {
		t.Fatalf("expected error retry interval after failure, got %s", got)
	}
	m.mu.RLock()
	lastErr := m.lastErr
	m.mu.RUnlock()
	if lastErr == nil {
		t.Fatal("expected cycle failure to be recorded")
	}
}

func TestRunWaitsPollIntervalAfterIdleCycle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	m := NewManager(cfg, store, nopClips{}, nil, WithIntervals(time.Millisecond, time.Hour))

	if got := firstWait(t, m); got != time.Millisecond {
		t.Fatalf("expected poll interval after idle cycle, got %s", got)
	}
}
