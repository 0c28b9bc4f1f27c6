package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/tallyhq/tally/internal/snapshot"
)

// docServer is a minimal versioned-document server for exercising HTTPStore.
type docServer struct {
	mu      sync.Mutex
	content string // base64 snapshot
	token   string
	rev     int

	failWith int // if non-zero, every request answers with this status
	writes   int
}

func (d *docServer) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d.mu.Lock()
		defer d.mu.Unlock()

		if d.failWith != 0 {
			w.WriteHeader(d.failWith)
			return
		}

		switch r.Method {
		case http.MethodGet:
			if d.token == "" {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			json.NewEncoder(w).Encode(map[string]string{
				"content":       d.content,
				"version_token": d.token,
			})

		case http.MethodPut:
			body, _ := io.ReadAll(r.Body)
			var req struct {
				Content      string `json:"content"`
				VersionToken string `json:"version_token"`
				Message      string `json:"message"`
			}
			if err := json.Unmarshal(body, &req); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			if req.VersionToken != d.token {
				w.WriteHeader(http.StatusConflict)
				return
			}
			d.rev++
			d.writes++
			d.content = req.Content
			d.token = "v" + strconv.Itoa(d.rev)
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{"version_token": d.token})

		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
}

func newTestStore(t *testing.T, srv *httptest.Server, interval time.Duration) *HTTPStore {
	t.Helper()
	store, err := NewHTTPStore(HTTPConfig{
		BaseURL:          srv.URL,
		Ref:              "shops/main/data.json",
		Token:            "test-token",
		MinWriteInterval: interval,
		Client:           srv.Client(),
		Logger:           log.New(io.Discard, "", 0),
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}

func testSnapshot(t *testing.T, records ...string) *snapshot.Snapshot {
	t.Helper()
	s := snapshot.New()
	recs := make([]json.RawMessage, len(records))
	for i, r := range records {
		recs[i] = json.RawMessage(r)
	}
	s.SetRecords("products", recs)
	return s
}

func TestReadMissingDocument(t *testing.T) {
	doc := &docServer{}
	srv := httptest.NewServer(doc.handler())
	defer srv.Close()

	store := newTestStore(t, srv, 0)
	got, err := store.Read(context.Background())
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if got.VersionToken != "" {
		t.Errorf("expected empty token for missing document, got %q", got.VersionToken)
	}
	if got.Content.Count() != 0 {
		t.Errorf("expected empty snapshot, got %d records", got.Content.Count())
	}
}

func TestWriteThenRead(t *testing.T) {
	doc := &docServer{}
	srv := httptest.NewServer(doc.handler())
	defer srv.Close()

	store := newTestStore(t, srv, 0)
	snap := testSnapshot(t, `{"id":"p1","name":"Flour"}`)

	token, err := store.Write(context.Background(), snap, "", "add flour")
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if token == "" {
		t.Fatal("expected a version token")
	}

	got, err := store.Read(context.Background())
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if got.VersionToken != token {
		t.Errorf("token mismatch: read %q, wrote %q", got.VersionToken, token)
	}
	if got.Content.Hash() != snap.Hash() {
		t.Error("content did not round trip")
	}
}

func TestWriteConflict(t *testing.T) {
	doc := &docServer{}
	srv := httptest.NewServer(doc.handler())
	defer srv.Close()

	store := newTestStore(t, srv, 0)
	snap := testSnapshot(t, `{"id":"p1"}`)

	if _, err := store.Write(context.Background(), snap, "", "create"); err != nil {
		t.Fatalf("initial Write failed: %v", err)
	}

	// Stale token: the document is now at v1.
	_, err := store.Write(context.Background(), snap, "stale", "overwrite")
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if IsRetryable(err) {
		t.Error("conflicts must not be classified as retryable")
	}
}

func TestErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		want      error
		retryable bool
	}{
		{"unauthorized", http.StatusUnauthorized, ErrAuth, false},
		{"forbidden", http.StatusForbidden, ErrAuth, false},
		{"rate limited", http.StatusTooManyRequests, ErrRateLimited, true},
		{"server error", http.StatusInternalServerError, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := &docServer{failWith: tt.status}
			srv := httptest.NewServer(doc.handler())
			defer srv.Close()

			store := newTestStore(t, srv, 0)
			_, err := store.Write(context.Background(), testSnapshot(t, `{"id":"p1"}`), "", "msg")
			if err == nil {
				t.Fatal("expected an error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			if got := IsRetryable(err); got != tt.retryable {
				t.Errorf("IsRetryable = %v, want %v", got, tt.retryable)
			}
		})
	}
}

func TestWriteThrottleDelaysSecondCall(t *testing.T) {
	doc := &docServer{}
	srv := httptest.NewServer(doc.handler())
	defer srv.Close()

	interval := 150 * time.Millisecond
	store := newTestStore(t, srv, interval)
	snap := testSnapshot(t, `{"id":"p1"}`)

	token, err := store.Write(context.Background(), snap, "", "first")
	if err != nil {
		t.Fatalf("first Write failed: %v", err)
	}

	start := time.Now()
	if _, err := store.Write(context.Background(), snap, token, "second"); err != nil {
		t.Fatalf("second Write failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed < interval/2 {
		t.Errorf("second write was not throttled: took %s", elapsed)
	}
}

func TestThrottledWriteHonorsCancellation(t *testing.T) {
	doc := &docServer{}
	srv := httptest.NewServer(doc.handler())
	defer srv.Close()

	store := newTestStore(t, srv, time.Minute)
	snap := testSnapshot(t, `{"id":"p1"}`)

	if _, err := store.Write(context.Background(), snap, "", "first"); err != nil {
		t.Fatalf("first Write failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := store.Write(ctx, snap, "v1", "second")
	if err == nil {
		t.Fatal("expected cancellation while throttled")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline error, got %v", err)
	}
}

func TestMemoryStoreConflictSemantics(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	doc, err := store.Read(ctx)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if doc.VersionToken != "" {
		t.Fatal("fresh store should have no version token")
	}

	snap := testSnapshot(t, `{"id":"p1"}`)
	token, err := store.Write(ctx, snap, "", "create")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	// A second creator loses.
	if _, err := store.Write(ctx, snap, "", "create again"); !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict for duplicate create, got %v", err)
	}

	// The holder of the current token wins.
	if _, err := store.Write(ctx, snap, token, "update"); err != nil {
		t.Errorf("conditional update failed: %v", err)
	}
	if store.Revision() != 2 {
		t.Errorf("expected 2 revisions, got %d", store.Revision())
	}
}
