package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/tallyhq/tally/internal/cache"
	"github.com/tallyhq/tally/internal/notify"
	"github.com/tallyhq/tally/internal/snapshot"
	syncpkg "github.com/tallyhq/tally/internal/sync"
	"github.com/tallyhq/tally/internal/ui"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the background sync daemon",
	Long: `Keeps the process alive so the debounced sync engine can ship local
changes as they happen. With a notify backend configured, cache updates
from sibling tally processes on this machine are applied as they arrive.

On SIGINT/SIGTERM any pending changes are flushed with one final sync
before the process exits.`,
	Run: func(cmd *cobra.Command, args []string) {
		logger := newServeLogger()

		a, err := openAppWithLogger(false, logger)
		if err != nil {
			fatal("%v", err)
		}
		defer a.close()

		notifier, hub, err := openNotifier(logger)
		if err != nil {
			fatal("%v", err)
		}
		defer notifier.Close()
		if hub != nil {
			defer hub.Stop()
		}
		a.cache.SetNotifier(notifier)

		// Apply sibling cache updates locally. ApplyForeign does not
		// re-broadcast, so updates cannot ping-pong between processes.
		unsubs := subscribeForeign(notifier, a.cache, logger)
		defer func() {
			for _, unsub := range unsubs {
				unsub()
			}
		}()

		if a.mgr != nil {
			if err := startSync(a, logger); err != nil {
				fatal("%v", err)
			}
			unsubState := a.mgr.Subscribe(logStateTransitions(logger))
			defer unsubState()
		} else {
			logger.Printf("No remote configured, running local-only")
		}

		fmt.Printf("%s cache=%s notify=%s sync=%v\n",
			ui.RenderAccent("tally serve"), cfg.CachePath, cfg.Notify.Backend, a.mgr != nil && cfg.Sync.Enabled)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		<-ctx.Done()
		logger.Printf("Shutting down")

		if a.mgr != nil && a.mgr.GetState().Pending {
			flushCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if ok := a.mgr.ForceSync(flushCtx); !ok {
				logger.Printf("Final flush failed: %s", a.mgr.GetState().Error)
			} else {
				logger.Printf("Flushed pending changes")
			}
		}
	},
}

// newServeLogger logs to stderr, plus a size-rotated file when configured.
func newServeLogger() *log.Logger {
	var out io.Writer = os.Stderr
	if cfg.Log.File != "" {
		out = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   cfg.Log.File,
			MaxSize:    cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
		})
	}
	return log.New(out, "[tally] ", log.LstdFlags)
}

// openNotifier builds the configured cross-process notification backend. For
// the ws backend the first process to find no hub listening hosts one itself;
// the returned hub is non-nil only in that case.
func openNotifier(logger *log.Logger) (notify.Notifier, *notify.Hub, error) {
	switch cfg.Notify.Backend {
	case "", "none":
		return notify.Noop{}, nil, nil

	case "ws":
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		url := "ws://" + cfg.Notify.Addr
		if bus, err := notify.DialBus(ctx, url, logger); err == nil {
			return bus, nil, nil
		}

		hub := notify.NewHub(cfg.Notify.Addr, logger)
		if err := hub.Start(); err != nil {
			return nil, nil, fmt.Errorf("failed to start notify hub on %s: %w", cfg.Notify.Addr, err)
		}
		bus, err := notify.DialBus(ctx, hub.URL(), logger)
		if err != nil {
			hub.Stop()
			return nil, nil, fmt.Errorf("failed to join own notify hub: %w", err)
		}
		logger.Printf("Hosting notify hub on %s", hub.Addr())
		return bus, hub, nil

	case "spool":
		dir := cfg.Notify.SpoolDir
		if dir == "" {
			dir = filepath.Join(filepath.Dir(cfg.CachePath), "spool")
		}
		spool, err := notify.OpenSpool(dir, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open notify spool: %w", err)
		}
		return spool, nil, nil

	default:
		return nil, nil, fmt.Errorf("unknown notify backend %q (want none, ws, or spool)", cfg.Notify.Backend)
	}
}

func subscribeForeign(n notify.Notifier, c *cache.Cache, logger *log.Logger) []func() {
	unsubs := make([]func(), 0, len(snapshot.DefaultCollections))
	for _, name := range snapshot.DefaultCollections {
		name := name
		unsubs = append(unsubs, n.Subscribe(name, func(value string) {
			if err := c.ApplyForeign(name, value); err != nil {
				logger.Printf("Failed to apply foreign update to %s: %v", name, err)
			}
		}))
	}
	return unsubs
}

// startSync brings the manager up: an empty cache is seeded from the remote
// document, a non-empty one keeps its records and only adopts the remote
// version token so pending local changes push instead of conflicting.
func startSync(a *app, logger *log.Logger) error {
	if err := a.mgr.Initialize(cfg.Sync.Enabled); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	snap, err := a.shop.Snapshot()
	if err != nil {
		return err
	}
	if snap.Count() == 0 {
		if err := a.mgr.Pull(ctx); err != nil {
			logger.Printf("Startup pull failed, continuing offline: %v", err)
		}
	} else if err := a.mgr.Adopt(ctx); err != nil {
		logger.Printf("Startup read failed, continuing offline: %v", err)
	}

	// Changes that predate this process get a debounce window of their own.
	if a.mgr.GetState().Pending {
		a.mgr.MarkChanged(false)
	}
	return nil
}

// logStateTransitions reports sync state changes, collapsing repeats.
func logStateTransitions(logger *log.Logger) syncpkg.Listener {
	var last syncpkg.State
	first := true
	return func(st syncpkg.State) {
		if !first && st == last {
			return
		}
		switch {
		case st.Error != "":
			logger.Printf("Sync error (%d pending): %s", st.PendingChangeCount, st.Error)
		case st.InProgress:
			logger.Printf("Sync in progress (%d pending)", st.PendingChangeCount)
		case st.Pending:
			logger.Printf("%d record change(s) pending", st.PendingChangeCount)
		}
		last = st
		first = false
	}
}
