package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	gosync "sync"
	"time"

	"github.com/tallyhq/tally/internal/cache"
	"github.com/tallyhq/tally/internal/remote"
	"github.com/tallyhq/tally/internal/snapshot"
)

// Default scheduling intervals. The debounce window batches bursts of local
// mutations into one remote write; the retry delay is independent of it.
const (
	DefaultDebounceInterval = 2 * time.Second
	DefaultRetryDelay       = 30 * time.Second
)

// SnapshotFunc assembles the current snapshot from the local cache.
type SnapshotFunc func() (*snapshot.Snapshot, error)

// ApplyFunc writes a remotely fetched snapshot into the local cache.
type ApplyFunc func(*snapshot.Snapshot) error

// Config configures a Manager.
type Config struct {
	// Store is the remote document store. Required.
	Store remote.Store

	// Snapshot assembles the current snapshot. Required.
	Snapshot SnapshotFunc

	// Apply writes a pulled snapshot back into the cache. Only needed when
	// Pull is used.
	Apply ApplyFunc

	// Cache, when set, is subscribed to on Initialize so that every cache
	// write marks the manager dirty without the caller doing it by hand.
	Cache *cache.Cache

	// DebounceInterval overrides DefaultDebounceInterval when positive.
	DebounceInterval time.Duration

	// RetryDelay overrides DefaultRetryDelay when positive.
	RetryDelay time.Duration

	// Logger for sync activity. Defaults to a stderr logger.
	Logger *log.Logger
}

// Manager owns the sync state machine for one process instance.
//
// Construct it explicitly and hand it to whoever needs it; there is no
// package-level instance. Call Initialize before use and Destroy when done.
type Manager struct {
	store      remote.Store
	snapshotFn SnapshotFunc
	applyFn    ApplyFunc
	cache      *cache.Cache
	debounce   time.Duration
	retry      *RetryPolicy
	logger     *log.Logger

	mu            gosync.Mutex
	state         State
	active        bool
	initialized   bool
	destroyed     bool
	baseline      *snapshot.Snapshot
	baselineHash  string
	versionToken  string
	debounceTimer *time.Timer
	listeners     map[int]Listener
	nextID        int
	unsubCache    func()
}

// NewManager creates an uninitialized manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if cfg.Snapshot == nil {
		return nil, fmt.Errorf("snapshot func cannot be nil")
	}

	debounce := cfg.DebounceInterval
	if debounce <= 0 {
		debounce = DefaultDebounceInterval
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}

	return &Manager{
		store:      cfg.Store,
		snapshotFn: cfg.Snapshot,
		applyFn:    cfg.Apply,
		cache:      cfg.Cache,
		debounce:   debounce,
		retry:      NewRetryPolicy(retryDelay),
		logger:     logger,
		baseline:   snapshot.New(),
		listeners:  make(map[int]Listener),
	}, nil
}

// Initialize establishes the baseline from the current snapshot and, when
// active, arms the debounce/retry machinery and subscribes to cache change
// events. While inactive the manager records nothing and schedules nothing.
func (m *Manager) Initialize(active bool) error {
	snap, err := m.snapshotFn()
	if err != nil {
		return fmt.Errorf("failed to read initial snapshot: %w", err)
	}

	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return fmt.Errorf("manager has been destroyed")
	}
	m.baseline = snap
	m.baselineHash = snap.Hash()
	m.active = active
	m.initialized = true
	needSub := active && m.cache != nil && m.unsubCache == nil
	m.mu.Unlock()

	if needSub {
		unsub := m.cache.OnChange(func(key string) {
			m.MarkChanged(false)
		})
		m.mu.Lock()
		m.unsubCache = unsub
		m.mu.Unlock()
	}

	m.publish()
	return nil
}

// SetActive pauses or resumes the machinery, e.g. after the operator
// re-authenticates following an auth failure. Deactivating cancels any
// pending debounce and retry.
func (m *Manager) SetActive(active bool) {
	m.mu.Lock()
	m.active = active
	if !active {
		m.cancelDebounceLocked()
	}
	m.mu.Unlock()

	if !active {
		m.retry.Cancel()
	}
}

// Pull fetches the remote document, applies it to the local cache, and
// adopts its content and version token as the new baseline. Used on startup
// so that the first write updates rather than conflicts.
func (m *Manager) Pull(ctx context.Context) error {
	doc, err := m.store.Read(ctx)
	if err != nil {
		return fmt.Errorf("failed to pull remote document: %w", err)
	}

	if m.applyFn != nil && doc.VersionToken != "" {
		if err := m.applyFn(doc.Content); err != nil {
			return fmt.Errorf("failed to apply pulled snapshot: %w", err)
		}
	}

	m.mu.Lock()
	m.baseline = doc.Content
	m.baselineHash = doc.Content.Hash()
	m.versionToken = doc.VersionToken
	m.state.Error = ""
	m.mu.Unlock()

	m.recomputePending()
	m.publish()
	return nil
}

// Adopt fetches the remote document and adopts its content and version token
// as the baseline without touching the local cache. Local records that differ
// from the remote become pending and the next sync pushes them. Short-lived
// processes use this before a push so their write carries a current token.
func (m *Manager) Adopt(ctx context.Context) error {
	doc, err := m.store.Read(ctx)
	if err != nil {
		return fmt.Errorf("failed to read remote document: %w", err)
	}

	m.mu.Lock()
	m.baseline = doc.Content
	m.baselineHash = doc.Content.Hash()
	m.versionToken = doc.VersionToken
	m.state.Error = ""
	m.mu.Unlock()

	m.recomputePending()
	m.publish()
	return nil
}

// MarkChanged records that local state mutated. It always recomputes the
// pending diff against the baseline. With immediate set, any armed debounce
// timer is cancelled and a sync starts right away; otherwise the debounce
// timer is (re)armed, so bursts of calls within the window coalesce into a
// single sync once a quiet period elapses.
func (m *Manager) MarkChanged(immediate bool) {
	m.recomputePending()
	m.publish()

	m.mu.Lock()
	if !m.active || m.destroyed {
		m.mu.Unlock()
		return
	}
	m.cancelDebounceLocked()
	if !immediate {
		m.debounceTimer = time.AfterFunc(m.debounce, m.syncFromTimer)
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	go m.performSync(context.Background())
}

// ForceSync cancels any pending debounce and runs a sync to completion,
// returning whether the resulting state is error-free. Used for explicit
// user-triggered sync and for flushing pending changes before the process
// goes inactive.
func (m *Manager) ForceSync(ctx context.Context) bool {
	m.mu.Lock()
	m.cancelDebounceLocked()
	m.mu.Unlock()

	m.performSync(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Error == ""
}

// Subscribe registers a listener. It is invoked once immediately with the
// current state, then on every transition, until unsubscribed.
func (m *Manager) Subscribe(fn Listener) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	current := m.state
	m.mu.Unlock()

	fn(current)

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

// GetState returns a copy of the current sync state.
func (m *Manager) GetState() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Destroy cancels timers, unsubscribes from the cache, and drops all
// listeners. The manager cannot be reused afterwards. An in-flight write is
// not interrupted; it runs to completion and its result is discarded into
// the destroyed state.
func (m *Manager) Destroy() {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return
	}
	m.destroyed = true
	m.active = false
	m.cancelDebounceLocked()
	unsub := m.unsubCache
	m.unsubCache = nil
	m.listeners = make(map[int]Listener)
	m.mu.Unlock()

	m.retry.Cancel()
	if unsub != nil {
		unsub()
	}
}

// syncFromTimer runs when the debounce window elapses. If a write is still
// in flight the window re-arms instead of dropping the trigger, so a
// mutation that raced the flight is synced eventually.
func (m *Manager) syncFromTimer() {
	m.mu.Lock()
	if m.destroyed || !m.active {
		m.mu.Unlock()
		return
	}
	if m.state.InProgress {
		m.debounceTimer = time.AfterFunc(m.debounce, m.syncFromTimer)
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	m.performSync(context.Background())
}

// performSync is the single write path. Guarded by InProgress: concurrent
// invocations while a write is in flight are no-ops. An unchanged snapshot
// hash short-circuits to Idle without any network call.
func (m *Manager) performSync(ctx context.Context) {
	m.mu.Lock()
	if m.destroyed || !m.initialized || !m.active || m.state.InProgress {
		m.mu.Unlock()
		return
	}
	m.state.InProgress = true
	expectedToken := m.versionToken
	m.mu.Unlock()
	m.publish()

	snap, err := m.snapshotFn()
	if err != nil {
		m.finishWithError(fmt.Errorf("failed to assemble snapshot: %w", err), 0)
		return
	}

	hash := snap.Hash()
	m.mu.Lock()
	if hash == m.baselineHash {
		m.state.InProgress = false
		m.state.Pending = false
		m.state.PendingChangeCount = 0
		m.state.Error = ""
		m.mu.Unlock()
		m.publish()
		return
	}
	diff := snapshot.Compare(m.baseline, snap)
	m.mu.Unlock()

	message := fmt.Sprintf("tally: %d record change(s) (%s)", diff.Total(), diff)
	newToken, err := m.store.Write(ctx, snap, expectedToken, message)
	if err != nil {
		m.logger.Printf("Sync failed: %v", err)
		m.finishWithError(err, diff.Total())
		return
	}

	now := time.Now()
	m.mu.Lock()
	// Baseline, version token, and the state transition advance under one
	// critical section: there is no observable state where the remote write
	// succeeded but the baseline lags, or vice versa.
	m.baseline = snap
	m.baselineHash = hash
	m.versionToken = newToken
	m.state.InProgress = false
	m.state.LastSync = &now
	m.state.Error = ""
	m.state.Pending = false
	m.state.PendingChangeCount = 0
	m.mu.Unlock()

	m.logger.Printf("Synced %d record change(s), version %s", diff.Total(), newToken)

	// A mutation that landed while the write was in flight re-flips pending.
	m.recomputePending()
	m.publish()
}

// finishWithError records a failed sync and arms the retry machinery for
// transient failures. Auth failures pause the manager entirely until the
// operator re-activates it; conflicts wait for an explicit re-read.
func (m *Manager) finishWithError(err error, changeCount int) {
	authFailed := errors.Is(err, remote.ErrAuth)
	retryable := remote.IsRetryable(err)

	m.mu.Lock()
	m.state.InProgress = false
	m.state.Error = err.Error()
	m.state.Pending = true
	if changeCount > 0 {
		m.state.PendingChangeCount = changeCount
	}
	if authFailed {
		m.active = false
	}
	active := m.active && !m.destroyed
	m.mu.Unlock()
	m.publish()

	if retryable && active {
		m.retry.Schedule(func() {
			m.performSync(context.Background())
		})
	}
}

// recomputePending diffs the current snapshot against the baseline and
// updates Pending/PendingChangeCount. Snapshot read failures leave the
// previous pending flags in place; the next trigger recomputes again.
func (m *Manager) recomputePending() {
	snap, err := m.snapshotFn()
	if err != nil {
		m.logger.Printf("Failed to read snapshot for pending diff: %v", err)
		return
	}
	hash := snap.Hash()

	m.mu.Lock()
	if hash == m.baselineHash {
		m.state.Pending = false
		m.state.PendingChangeCount = 0
	} else {
		diff := snapshot.Compare(m.baseline, snap)
		m.state.Pending = true
		m.state.PendingChangeCount = diff.Total()
	}
	m.mu.Unlock()
}

// publish pushes the current state to all listeners, outside the lock.
func (m *Manager) publish() {
	m.mu.Lock()
	current := m.state
	listeners := make([]Listener, 0, len(m.listeners))
	for _, fn := range m.listeners {
		listeners = append(listeners, fn)
	}
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(current)
	}
}

func (m *Manager) cancelDebounceLocked() {
	if m.debounceTimer != nil {
		m.debounceTimer.Stop()
		m.debounceTimer = nil
	}
}
