package remote

import (
	"context"
	"sync"
	"time"
)

// throttle enforces a minimum interval between consecutive operations by
// delaying callers rather than rejecting them (backpressure, not an error).
type throttle struct {
	mu       sync.Mutex
	interval time.Duration
	next     time.Time
}

// wait blocks until the caller's reserved slot arrives or ctx is done.
// Concurrent callers are serialized: each reserves the earliest slot at
// least interval after the previous one.
func (t *throttle) wait(ctx context.Context) error {
	if t.interval <= 0 {
		return nil
	}

	t.mu.Lock()
	now := time.Now()
	slot := t.next
	if slot.Before(now) {
		slot = now
	}
	t.next = slot.Add(t.interval)
	t.mu.Unlock()

	delay := time.Until(slot)
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
