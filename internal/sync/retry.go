package sync

import (
	gosync "sync"
	"time"
)

// RetryPolicy schedules exactly one pending retry after a fixed delay.
// Arming it again replaces the previous unfired retry. There is no backoff
// and no retry ceiling: a failing sync keeps retrying on the same delay for
// as long as the manager stays active.
type RetryPolicy struct {
	delay time.Duration

	mu    gosync.Mutex
	timer *time.Timer
}

// NewRetryPolicy creates a policy with the given fixed delay.
func NewRetryPolicy(delay time.Duration) *RetryPolicy {
	return &RetryPolicy{delay: delay}
}

// Schedule arms fn to run after the fixed delay, replacing any retry that
// has not fired yet.
func (r *RetryPolicy) Schedule(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer != nil {
		r.timer.Stop()
	}
	r.timer = time.AfterFunc(r.delay, fn)
}

// Cancel stops any unfired retry. A retry already running is not
// interrupted.
func (r *RetryPolicy) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}
