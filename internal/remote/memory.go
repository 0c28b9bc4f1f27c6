package remote

import (
	"context"
	"fmt"
	"sync"

	"github.com/tallyhq/tally/internal/snapshot"
)

// MemoryStore is an in-memory Store. It backs tests and fully offline
// deployments where the "remote" lives in the same process.
type MemoryStore struct {
	mu      sync.Mutex
	content *snapshot.Snapshot
	token   string
	rev     int
	history []string
}

// NewMemoryStore returns a store with no document yet.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Read implements Store.
func (m *MemoryStore) Read(ctx context.Context) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.content == nil {
		return &Document{Content: snapshot.New(), VersionToken: ""}, nil
	}
	return &Document{Content: m.content.Clone(), VersionToken: m.token}, nil
}

// Write implements Store, enforcing the same optimistic-concurrency rule as
// a real backend: the expected token must match the current one, and an
// empty expected token only creates.
func (m *MemoryStore) Write(ctx context.Context, snap *snapshot.Snapshot, expectedToken, message string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if expectedToken != m.token {
		return "", fmt.Errorf("remote document moved past version %q since our last read: %w",
			expectedToken, ErrConflict)
	}

	m.rev++
	m.content = snap.Clone()
	m.token = fmt.Sprintf("v%d", m.rev)
	m.history = append(m.history, message)
	return m.token, nil
}

// Revision returns how many writes have succeeded.
func (m *MemoryStore) Revision() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rev
}

// Messages returns the write messages in order.
func (m *MemoryStore) Messages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.history...)
}
