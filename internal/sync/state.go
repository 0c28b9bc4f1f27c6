package sync

import "time"

// State is the observable sync state of one process instance. It is
// process-local and never persisted.
type State struct {
	// Pending reports whether the current snapshot differs from the
	// baseline of the last successful remote write.
	Pending bool

	// InProgress reports whether a remote write is in flight.
	InProgress bool

	// LastSync is when the last successful remote write completed, or nil
	// if none has succeeded yet in this process.
	LastSync *time.Time

	// Error is a human-readable description of the last sync failure,
	// empty while healthy. A persistent error never blocks local reads or
	// writes, which always succeed against the cache.
	Error string

	// PendingChangeCount is the number of records that differ from the
	// baseline (added + removed + modified).
	PendingChangeCount int
}

// Clean reports whether there is nothing to sync and no recorded failure.
func (s State) Clean() bool {
	return !s.Pending && !s.InProgress && s.Error == ""
}

// Listener observes state transitions. A newly subscribed listener is
// invoked once immediately with the current state.
type Listener func(State)
