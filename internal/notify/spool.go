package notify

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// spoolMaxAge is how long a sender keeps its own broadcast files around
// before pruning them. Receivers never delete, so slow siblings still see
// recent messages.
const spoolMaxAge = time.Minute

// envelope is the on-disk format of one spooled broadcast.
type envelope struct {
	Origin string `json:"origin"`
	Key    string `json:"key"`
	Value  string `json:"value"`
}

// Spool is a Notifier backed by a shared directory watched with fsnotify.
// Each broadcast is written as one JSON file; sibling instances watching the
// same directory pick it up and dispatch it. This is the filesystem analog
// of browser storage events and needs no network listener.
type Spool struct {
	dir     string
	origin  string
	watcher *fsnotify.Watcher
	logger  *log.Logger

	mu     sync.Mutex
	subs   map[string]map[int]Handler
	nextID int
	seq    int
	closed bool

	done chan struct{}
	wg   sync.WaitGroup
}

// OpenSpool creates the spool directory if needed and starts watching it.
func OpenSpool(dir string, logger *log.Logger) (*Spool, error) {
	if logger == nil {
		logger = log.Default()
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create spool directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch spool directory %s: %w", dir, err)
	}

	var id [6]byte
	if _, err := rand.Read(id[:]); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to generate spool origin id: %w", err)
	}

	s := &Spool{
		dir:     dir,
		origin:  hex.EncodeToString(id[:]),
		watcher: watcher,
		logger:  logger,
		subs:    make(map[string]map[int]Handler),
		done:    make(chan struct{}),
	}

	s.wg.Add(1)
	go s.watchLoop()
	return s, nil
}

// Broadcast implements Notifier. The message is written to a temp file and
// renamed into place so receivers never observe a partial write.
func (s *Spool) Broadcast(key, value string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("spool is closed")
	}
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	data, err := json.Marshal(envelope{Origin: s.origin, Key: key, Value: value})
	if err != nil {
		return fmt.Errorf("failed to encode spool message: %w", err)
	}

	name := fmt.Sprintf("%d-%s-%06d.json", time.Now().UnixNano(), s.origin, seq)
	tmp := filepath.Join(s.dir, name+".tmp")
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write spool message: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(s.dir, name)); err != nil {
		return fmt.Errorf("failed to publish spool message: %w", err)
	}

	s.pruneOwn()
	return nil
}

// Subscribe implements Notifier.
func (s *Spool) Subscribe(key string, fn Handler) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return func() {}
	}
	if s.subs[key] == nil {
		s.subs[key] = make(map[int]Handler)
	}
	id := s.nextID
	s.nextID++
	s.subs[key][id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if handlers, ok := s.subs[key]; ok {
			delete(handlers, id)
		}
	}
}

// Close implements Notifier.
func (s *Spool) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.done)
	if err := s.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close spool watcher: %w", err)
	}
	s.wg.Wait()
	return nil
}

// watchLoop consumes fsnotify events and dispatches foreign messages.
func (s *Spool) watchLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.done:
			return

		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) {
				continue
			}
			if !strings.HasSuffix(event.Name, ".json") {
				continue
			}
			s.consume(event.Name)

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Printf("Spool watcher error: %v", err)
		}
	}
}

// consume reads one spooled message and dispatches it unless we sent it.
func (s *Spool) consume(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		// The sender may have pruned it already.
		return
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.logger.Printf("Dropping malformed spool message %s: %v", filepath.Base(path), err)
		return
	}
	if env.Origin == s.origin {
		return
	}
	s.dispatch(env.Key, env.Value)
}

func (s *Spool) dispatch(key, value string) {
	s.mu.Lock()
	handlers := make([]Handler, 0, len(s.subs[key]))
	for _, fn := range s.subs[key] {
		handlers = append(handlers, fn)
	}
	s.mu.Unlock()

	for _, fn := range handlers {
		fn(value)
	}
}

// pruneOwn removes this instance's spool files older than spoolMaxAge.
func (s *Spool) pruneOwn() {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return
	}
	cutoff := time.Now().Add(-spoolMaxAge)
	for _, entry := range entries {
		if entry.IsDir() || !strings.Contains(entry.Name(), s.origin) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		_ = os.Remove(filepath.Join(s.dir, entry.Name()))
	}
}
