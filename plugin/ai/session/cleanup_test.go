package session

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

// countingExpirer records cleanup invocations.
type countingExpirer struct {
	calls atomic.Int64
}

func (c *countingExpirer) CleanupExpired(ctx context.Context) (int64, error) {
	c.calls.Add(1)
	return 1, ctx.Err()
}

func TestSessionCleanupJob(t *testing.T) {
	ctx := context.Background()

	t.Run("NewSessionCleanupJob_DefaultConfig", func(t *testing.T) {
		job := NewSessionCleanupJob(&countingExpirer{}, CleanupConfig{})

		if job.config.CleanupInterval != DefaultCleanupInterval {
			t.Errorf("expected default cleanup interval %v, got %v", DefaultCleanupInterval, job.config.CleanupInterval)
		}
	})

	t.Run("NewSessionCleanupJob_CustomConfig", func(t *testing.T) {
		job := NewSessionCleanupJob(&countingExpirer{}, CleanupConfig{CleanupInterval: time.Hour})

		if job.config.CleanupInterval != time.Hour {
			t.Errorf("expected cleanup interval 1h, got %v", job.config.CleanupInterval)
		}
	})

	t.Run("RunOnce_CleansExpiredSessions", func(t *testing.T) {
		store, clock := newTestStore(Config{IdleTTL: time.Minute})
		store.GetOrCreate("old-session")
		clock.Advance(time.Hour)
		store.GetOrCreate("recent-session")

		job := NewSessionCleanupJob(store, DefaultCleanupConfig())
		deleted, err := job.RunOnce(ctx)
		if err != nil {
			t.Fatalf("RunOnce failed: %v", err)
		}
		if deleted != 1 {
			t.Errorf("expected 1 deleted, got %d", deleted)
		}
		if _, ok := store.Snapshot("old-session"); ok {
			t.Error("old session should be deleted")
		}
		if _, ok := store.Snapshot("recent-session"); !ok {
			t.Error("recent session should be kept")
		}
	})

	t.Run("StartStop_Idempotent", func(t *testing.T) {
		job := NewSessionCleanupJob(&countingExpirer{}, CleanupConfig{CleanupInterval: time.Hour})

		// Stop before Start is a no-op
		job.Stop()

		if err := job.Start(ctx); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		// Start again (should be idempotent)
		if err := job.Start(ctx); err != nil {
			t.Fatalf("Second Start failed: %v", err)
		}

		job.Stop()
		// Stop again (should be idempotent)
		job.Stop()
	})

	t.Run("Restart_AfterStop", func(t *testing.T) {
		expirer := &countingExpirer{}
		job := NewSessionCleanupJob(expirer, CleanupConfig{CleanupInterval: 5 * time.Millisecond})

		if err := job.Start(ctx); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		job.Stop()
		before := expirer.calls.Load()

		if err := job.Start(ctx); err != nil {
			t.Fatalf("Restart failed: %v", err)
		}
		deadline := time.Now().Add(2 * time.Second)
		for expirer.calls.Load() == before && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
		job.Stop()

		if expirer.calls.Load() == before {
			t.Error("expected the restarted job to run cleanup")
		}
	})

	t.Run("Start_RunsOnTicker", func(t *testing.T) {
		expirer := &countingExpirer{}
		job := NewSessionCleanupJob(expirer, CleanupConfig{CleanupInterval: 5 * time.Millisecond})

		if err := job.Start(ctx); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		deadline := time.Now().Add(2 * time.Second)
		for expirer.calls.Load() == 0 && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
		job.Stop()

		if expirer.calls.Load() == 0 {
			t.Error("expected at least one cleanup run")
		}
	})

	t.Run("Start_StopsWhenContextCanceled", func(t *testing.T) {
		runCtx, cancel := context.WithCancel(ctx)
		job := NewSessionCleanupJob(&countingExpirer{}, CleanupConfig{CleanupInterval: time.Hour})
		if err := job.Start(runCtx); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		cancel()

		// Stop must still return once the loop has exited on its own.
		job.Stop()
	})
}
