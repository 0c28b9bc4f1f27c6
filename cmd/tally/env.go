package main

import (
	"fmt"
	"log"
	"os"

	"github.com/tallyhq/tally/internal/cache"
	"github.com/tallyhq/tally/internal/domain"
	"github.com/tallyhq/tally/internal/remote"
	"github.com/tallyhq/tally/internal/sync"
)

// app bundles the pieces every command needs: the local cache, the typed
// collections over it, and (when a remote is configured) a sync manager.
type app struct {
	cache  *cache.Cache
	shop   *domain.Store
	mgr    *sync.Manager
	logger *log.Logger
}

// openApp opens the cache and wires the sync manager from the loaded config.
// With requireRemote set, a missing remote configuration is an error instead
// of a purely local app.
func openApp(requireRemote bool) (*app, error) {
	return openAppWithLogger(requireRemote, log.New(os.Stderr, "[tally] ", log.LstdFlags))
}

func openAppWithLogger(requireRemote bool, logger *log.Logger) (*app, error) {
	c, err := cache.Open(cfg.CachePath, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}

	a := &app{
		cache:  c,
		shop:   domain.NewStore(c),
		logger: logger,
	}

	if cfg.Remote.BaseURL == "" {
		if requireRemote {
			c.Close()
			return nil, fmt.Errorf("no remote store configured; run 'tally init' first")
		}
		return a, nil
	}

	store, err := remote.NewHTTPStore(remote.HTTPConfig{
		BaseURL:          cfg.Remote.BaseURL,
		Ref:              cfg.Remote.Ref,
		Token:            cfg.Remote.Token,
		MinWriteInterval: cfg.Remote.MinWriteInterval,
		Logger:           logger,
	})
	if err != nil {
		c.Close()
		return nil, err
	}

	mgr, err := sync.NewManager(sync.Config{
		Store:            store,
		Snapshot:         a.shop.Snapshot,
		Apply:            a.shop.Apply,
		Cache:            c,
		DebounceInterval: cfg.Sync.Debounce,
		RetryDelay:       cfg.Sync.RetryDelay,
		Logger:           logger,
	})
	if err != nil {
		c.Close()
		return nil, err
	}
	a.mgr = mgr
	return a, nil
}

func (a *app) close() {
	if a.mgr != nil {
		a.mgr.Destroy()
	}
	if err := a.cache.Close(); err != nil {
		a.logger.Printf("Failed to close cache: %v", err)
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
