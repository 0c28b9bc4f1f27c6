// Package sync provides the manager that reconciles the local cache against
// the remote versioned document.
//
// Overview
//
// The sync package owns the offline-first write path. Domain mutations land
// in the local cache immediately; the manager batches them behind a debounce
// window, diffs the current snapshot against the baseline of the last
// successful remote write, and pushes one conditional write to the remote
// store. Failures are recorded in the observable sync state and retried on a
// fixed delay.
//
// State machine
//
//	Idle ──markChanged──▶ Dirty ──debounce/force──▶ Syncing
//	  ▲                     ▲                          │
//	  │                     │ failure (error recorded, │
//	  └──────── success ────┴── retry armed) ◀─────────┘
//
// Usage
//
//	mgr, err := sync.NewManager(sync.Config{
//	    Store:    store,            // remote.Store
//	    Snapshot: shop.Snapshot,    // assembles the snapshot from the cache
//	    Cache:    db,               // marks dirty on every cache write
//	})
//	if err != nil {
//	    return err
//	}
//	if err := mgr.Initialize(true); err != nil {
//	    return err
//	}
//	defer mgr.Destroy()
//
//	unsub := mgr.Subscribe(func(st sync.State) {
//	    render(st) // called once immediately, then on every transition
//	})
//	defer unsub()
//
//	mgr.MarkChanged(false) // debounced
//	ok := mgr.ForceSync(ctx)
//
// Concurrency
//
// All state is guarded by one mutex; the InProgress flag is the only guard
// held across the remote write, so at most one write is in flight per
// process. Independent processes race for the remote document and the loser
// surfaces remote.ErrConflict; coordination between processes is advisory
// only, via the notify package.
package sync
