package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// frame is the wire format relayed between instances.
type frame struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Hub is the websocket relay between application instances on one machine.
// Every frame received from one connected instance is forwarded to all other
// connected instances; the hub itself never originates messages.
//
// One instance (usually the long-running `tally serve` process) hosts the
// hub; every instance, the host included, attaches a WSBus client to it.
type Hub struct {
	addr     string
	listener net.Listener
	server   *http.Server

	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *log.Logger
}

// NewHub creates a hub that will listen on addr (e.g. "127.0.0.1:7337").
func NewHub(addr string, logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		addr:    addr,
		clients: make(map[*websocket.Conn]bool),
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger,
	}
}

// Start begins listening and serving websocket connections on /ws.
func (h *Hub) Start() error {
	ln, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", h.addr, err)
	}
	h.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.handleWS)

	h.server = &http.Server{
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.logger.Printf("Notify hub listening on %s", h.listener.Addr())
		if err := h.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			h.logger.Printf("Notify hub error: %v", err)
		}
	}()

	return nil
}

// Addr returns the address the hub is listening on. Useful when the
// configured port was 0.
func (h *Hub) Addr() string {
	if h.listener == nil {
		return h.addr
	}
	return h.listener.Addr().String()
}

// URL returns the websocket URL clients should dial.
func (h *Hub) URL() string {
	return fmt.Sprintf("ws://%s/ws", h.Addr())
}

// Stop gracefully shuts down the hub and disconnects all clients.
func (h *Hub) Stop() error {
	h.cancel()

	h.clientsMu.Lock()
	for conn := range h.clients {
		_ = conn.Close(websocket.StatusGoingAway, "hub shutting down")
		delete(h.clients, conn)
	}
	h.clientsMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := h.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("hub shutdown error: %w", err)
	}

	h.wg.Wait()
	return nil
}

// handleWS upgrades the connection and relays frames to all other clients.
func (h *Hub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Printf("WebSocket accept failed: %v", err)
		return
	}

	h.clientsMu.Lock()
	h.clients[conn] = true
	h.clientsMu.Unlock()

	defer func() {
		h.clientsMu.Lock()
		delete(h.clients, conn)
		h.clientsMu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		_, data, err := conn.Read(h.ctx)
		if err != nil {
			return
		}
		if !json.Valid(data) {
			h.logger.Printf("Dropping malformed notify frame (%d bytes)", len(data))
			continue
		}
		h.relay(conn, data)
	}
}

// relay forwards a frame to every client except its source.
func (h *Hub) relay(source *websocket.Conn, data []byte) {
	h.clientsMu.RLock()
	targets := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		if conn != source {
			targets = append(targets, conn)
		}
	}
	h.clientsMu.RUnlock()

	for _, conn := range targets {
		ctx, cancel := context.WithTimeout(h.ctx, 5*time.Second)
		if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
			h.logger.Printf("Failed to relay to client: %v", err)
		}
		cancel()
	}
}

// WSBus is a Notifier backed by a websocket connection to a Hub.
type WSBus struct {
	conn   *websocket.Conn
	logger *log.Logger

	mu     sync.Mutex
	subs   map[string]map[int]Handler
	nextID int
	closed bool

	cancel context.CancelFunc
	done   chan struct{}
}

// DialBus connects to a hub and starts the receive loop.
func DialBus(ctx context.Context, url string, logger *log.Logger) (*WSBus, error) {
	if logger == nil {
		logger = log.Default()
	}

	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial notify hub %s: %w", url, err)
	}

	readCtx, cancel := context.WithCancel(context.Background())
	bus := &WSBus{
		conn:   conn,
		logger: logger,
		subs:   make(map[string]map[int]Handler),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go bus.readLoop(readCtx)
	return bus, nil
}

// Broadcast implements Notifier.
func (b *WSBus) Broadcast(key, value string) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return fmt.Errorf("bus is closed")
	}

	data, err := json.Marshal(frame{Key: key, Value: value})
	if err != nil {
		return fmt.Errorf("failed to encode notify frame: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("failed to send notify frame: %w", err)
	}
	return nil
}

// Subscribe implements Notifier.
func (b *WSBus) Subscribe(key string, fn Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return func() {}
	}
	if b.subs[key] == nil {
		b.subs[key] = make(map[int]Handler)
	}
	id := b.nextID
	b.nextID++
	b.subs[key][id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if handlers, ok := b.subs[key]; ok {
			delete(handlers, id)
		}
	}
}

// Close implements Notifier.
func (b *WSBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.cancel()
	err := b.conn.Close(websocket.StatusNormalClosure, "")
	<-b.done
	if err != nil {
		return fmt.Errorf("failed to close bus connection: %w", err)
	}
	return nil
}

// readLoop receives frames from the hub and dispatches them to subscribers.
// Frames are dispatched synchronously, preserving same-key send order.
func (b *WSBus) readLoop(ctx context.Context) {
	defer close(b.done)

	for {
		_, data, err := b.conn.Read(ctx)
		if err != nil {
			b.mu.Lock()
			closed := b.closed
			b.mu.Unlock()
			if !closed {
				b.logger.Printf("Notify bus read error: %v", err)
			}
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			b.logger.Printf("Dropping malformed notify frame: %v", err)
			continue
		}
		b.dispatch(f.Key, f.Value)
	}
}

func (b *WSBus) dispatch(key, value string) {
	b.mu.Lock()
	handlers := make([]Handler, 0, len(b.subs[key]))
	for _, fn := range b.subs[key] {
		handlers = append(handlers, fn)
	}
	b.mu.Unlock()

	for _, fn := range handlers {
		fn(value)
	}
}
