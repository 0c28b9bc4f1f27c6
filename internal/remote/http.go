package remote

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/tallyhq/tally/internal/snapshot"
)

// HTTPConfig configures an HTTPStore.
type HTTPConfig struct {
	// BaseURL is the document API root, e.g. "https://store.example.com/v1".
	BaseURL string

	// Ref names the document under the API root, e.g. "shops/main/data.json".
	Ref string

	// Token is the bearer token sent on every request. Optional.
	Token string

	// MinWriteInterval is the minimum spacing between consecutive writes.
	// Writes arriving sooner are delayed, not rejected. Zero disables the
	// throttle.
	MinWriteInterval time.Duration

	// Client is the HTTP client to use. Defaults to one with a 30s timeout;
	// its timeout is what bounds an in-flight write, which cannot otherwise
	// be cancelled once started.
	Client *http.Client

	// Logger for request activity. Defaults to a stderr logger.
	Logger *log.Logger
}

// HTTPStore implements Store against a versioned-document HTTP API:
//
//	GET  {base}/{ref}  -> 200 {"content": <base64>, "version_token": t} | 404
//	PUT  {base}/{ref}  <- {"content": <base64>, "version_token": t?, "message": m}
//	                   -> 200/201 {"version_token": t'} | 409 | 429 | 401/403
//
// Status codes map onto the package error taxonomy; everything else is a
// transport error and therefore retryable.
type HTTPStore struct {
	cfg      HTTPConfig
	client   *http.Client
	logger   *log.Logger
	throttle throttle
}

// NewHTTPStore validates cfg and returns the store.
func NewHTTPStore(cfg HTTPConfig) (*HTTPStore, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("remote base URL cannot be empty")
	}
	if cfg.Ref == "" {
		return nil, fmt.Errorf("remote document ref cannot be empty")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid remote base URL: %w", err)
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[remote] ", log.LstdFlags)
	}

	return &HTTPStore{
		cfg:      cfg,
		client:   client,
		logger:   logger,
		throttle: throttle{interval: cfg.MinWriteInterval},
	}, nil
}

// documentURL joins the base URL and ref.
func (s *HTTPStore) documentURL() string {
	base := s.cfg.BaseURL
	for len(base) > 0 && base[len(base)-1] == '/' {
		base = base[:len(base)-1]
	}
	return base + "/" + s.cfg.Ref
}

type readResponse struct {
	Content      string `json:"content"`
	VersionToken string `json:"version_token"`
}

type writeRequest struct {
	Content      string `json:"content"`
	VersionToken string `json:"version_token,omitempty"`
	Message      string `json:"message,omitempty"`
}

type writeResponse struct {
	VersionToken string `json:"version_token"`
}

// Read implements Store.
func (s *HTTPStore) Read(ctx context.Context) (*Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.documentURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build read request: %w", err)
	}
	s.setHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to read remote document: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		// Never created: signal "create on next write", not an error.
		return &Document{Content: snapshot.New(), VersionToken: ""}, nil
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("read rejected with status %d: %w", resp.StatusCode, ErrAuth)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("read rejected: %w", ErrRateLimited)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("unexpected status %d reading remote document", resp.StatusCode)
	}

	var body readResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode read response: %w", err)
	}

	raw, err := base64.StdEncoding.DecodeString(body.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to decode remote document content: %w", err)
	}

	snap, err := snapshot.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("remote document is not a valid snapshot: %w", err)
	}

	return &Document{Content: snap, VersionToken: body.VersionToken}, nil
}

// Write implements Store. The call first waits out the minimum inter-write
// interval, then performs the conditional PUT.
func (s *HTTPStore) Write(ctx context.Context, snap *snapshot.Snapshot, expectedToken, message string) (string, error) {
	if err := s.throttle.wait(ctx); err != nil {
		return "", fmt.Errorf("write cancelled while throttled: %w", err)
	}

	raw, err := snap.Encode()
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(writeRequest{
		Content:      base64.StdEncoding.EncodeToString(raw),
		VersionToken: expectedToken,
		Message:      message,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode write request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.documentURL(), bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build write request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	s.setHeaders(req)

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to write remote document: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		// Fall through to decode the new token.
	case http.StatusConflict:
		// No merge is attempted: the loser of a multi-writer race lands
		// here and must re-read before writing again.
		return "", fmt.Errorf("remote document moved past version %q since our last read: %w",
			expectedToken, ErrConflict)
	case http.StatusTooManyRequests:
		return "", fmt.Errorf("write rejected: %w", ErrRateLimited)
	case http.StatusUnauthorized, http.StatusForbidden:
		return "", fmt.Errorf("write rejected with status %d: %w", resp.StatusCode, ErrAuth)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("unexpected status %d writing remote document: %s", resp.StatusCode, body)
	}

	var body writeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode write response: %w", err)
	}
	if body.VersionToken == "" {
		return "", fmt.Errorf("remote store returned no version token")
	}

	s.logger.Printf("Wrote remote document (%d bytes) in %s, version %s",
		len(raw), time.Since(start).Round(time.Millisecond), body.VersionToken)
	return body.VersionToken, nil
}

func (s *HTTPStore) setHeaders(req *http.Request) {
	if s.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.Token)
	}
	req.Header.Set("Accept", "application/json")
}
