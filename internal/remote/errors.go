package remote

import (
	"context"
	"errors"
)

// Common errors returned by remote store operations.
//
// These can be checked with errors.Is():
//
//	if errors.Is(err, remote.ErrConflict) {
//	    // Someone else wrote the document first.
//	}
var (
	// ErrConflict is returned when the remote document's version token
	// changed since this process last read it: another writer got there
	// first. The store performs no merge; the caller must re-read and
	// reapply. Last-writer-wins races between instances surface here.
	ErrConflict = errors.New("remote document was modified by another writer")

	// ErrRateLimited is returned when the remote store rejects the call for
	// sending too many requests. Transient; retry after a delay.
	ErrRateLimited = errors.New("remote store rate limit exceeded")

	// ErrAuth is returned on authentication or authorization failure.
	// Terminal until re-authentication; no retries should be scheduled.
	ErrAuth = errors.New("remote store authentication failed")
)

// IsRetryable reports whether a failed operation is likely to succeed if
// simply retried after a delay. Conflicts are not retryable, since replaying
// the same write with the same stale token fails identically, and auth
// failures stay failed until the operator re-authenticates.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrConflict) || errors.Is(err, ErrAuth) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	// Rate limits, network failures, and timeouts are all transient.
	return true
}
