// Package remote adapts a versioned remote blob store holding the single
// synchronized JSON document.
//
// The adapter's contract is deliberately small: read the document with its
// version token, and conditionally write a new revision against the token
// last read. A token mismatch means another writer advanced the document
// first and surfaces as ErrConflict; the adapter never merges.
//
// Backends: HTTPStore against a versioned-document HTTP API, and MemoryStore
// for tests and fully offline deployments.
package remote

import (
	"context"

	"github.com/tallyhq/tally/internal/snapshot"
)

// Document is one revision of the remote document.
type Document struct {
	// Content is the decoded snapshot.
	Content *snapshot.Snapshot

	// VersionToken identifies this revision. It is opaque to the caller and
	// must be echoed back on the next Write. Empty means the document has
	// never been created: the next Write creates rather than updates.
	VersionToken string
}

// Store reads and conditionally writes the remote document.
type Store interface {
	// Read returns the current document. A document that has never been
	// written yields an empty snapshot and an empty version token, not an
	// error.
	Read(ctx context.Context) (*Document, error)

	// Write stores snap as the next revision, provided the remote document
	// is still at expectedToken. An empty expectedToken means "create; fail
	// if the document already exists". The message describes the change for
	// the remote store's history.
	//
	// Consecutive writes are subject to a minimum inter-call interval;
	// callers arriving sooner are delayed, not rejected.
	//
	// Errors: ErrConflict, ErrRateLimited, ErrAuth, or a transport error.
	Write(ctx context.Context, snap *snapshot.Snapshot, expectedToken, message string) (newToken string, err error)
}
