package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/daybook-app/daybook/internal/logging"
)

// Broadcast is a WebSocket notification sink: fired reminders are
// fanned out to every connected client, letting desktop shells or
// browser widgets display them in real time.
type Broadcast struct {
	addr     string
	listener net.Listener
	server   *http.Server

	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex

	queue chan Notification

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	log logging.Logger
}

// BroadcastConfig holds broadcast server configuration.
type BroadcastConfig struct {
	// Port to listen on (default: 7513).
	Port int

	// Logger for server activity. Nil discards messages.
	Logger logging.Logger
}

// NewBroadcast creates a broadcast server. Start() must be called
// before notifications are delivered.
func NewBroadcast(cfg BroadcastConfig) *Broadcast {
	if cfg.Port == 0 {
		cfg.Port = 7513
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Broadcast{
		addr:    fmt.Sprintf(":%d", cfg.Port),
		clients: make(map[*websocket.Conn]bool),
		queue:   make(chan Notification, 100),
		ctx:     ctx,
		cancel:  cancel,
		log:     cfg.Logger,
	}
}

// SetLogger replaces the server's logger. Only valid before Start().
func (b *Broadcast) SetLogger(log logging.Logger) {
	if log != nil {
		b.log = log
	}
}

// Start begins the HTTP server and the broadcast loop.
func (b *Broadcast) Start() error {
	ln, err := net.Listen("tcp", b.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", b.addr, err)
	}
	b.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", b.handleWebSocket)
	mux.HandleFunc("/health", b.handleHealth)

	b.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	b.wg.Add(1)
	go b.broadcastLoop()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.log.Infof("notification broadcast listening on %s", b.addr)
		if err := b.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			b.log.Errorf("broadcast server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the server and all client connections.
func (b *Broadcast) Stop() error {
	b.cancel()

	b.clientsMu.Lock()
	for conn := range b.clients {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		delete(b.clients, conn)
	}
	b.clientsMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := b.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("broadcast shutdown error: %w", err)
	}

	b.wg.Wait()
	return nil
}

// Notify implements Notifier. The notification is queued for delivery;
// if the queue is full it is dropped with a warning rather than
// blocking the firing timer.
func (b *Broadcast) Notify(_ context.Context, n Notification) error {
	select {
	case b.queue <- n:
		return nil
	case <-b.ctx.Done():
		return fmt.Errorf("broadcast server stopped")
	default:
		b.log.Warnf("broadcast queue full, dropping notification %q", n.Title)
		return nil
	}
}

// broadcastLoop delivers queued notifications to all clients.
func (b *Broadcast) broadcastLoop() {
	defer b.wg.Done()

	for {
		select {
		case <-b.ctx.Done():
			return

		case n := <-b.queue:
			data, err := json.Marshal(n)
			if err != nil {
				b.log.Errorf("failed to marshal notification: %v", err)
				continue
			}

			b.clientsMu.RLock()
			clients := make([]*websocket.Conn, 0, len(b.clients))
			for conn := range b.clients {
				clients = append(clients, conn)
			}
			b.clientsMu.RUnlock()

			// Write outside the read lock so a slow client cannot
			// block new connections.
			for _, conn := range clients {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				err := conn.Write(ctx, websocket.MessageText, data)
				cancel()

				if err != nil {
					b.log.Warnf("dropping slow client: %v", err)
					b.removeClient(conn)
				}
			}
		}
	}
}

// handleWebSocket upgrades HTTP connections to WebSocket.
func (b *Broadcast) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		b.log.Warnf("websocket upgrade failed: %v", err)
		return
	}

	b.clientsMu.Lock()
	b.clients[conn] = true
	total := len(b.clients)
	b.clientsMu.Unlock()

	b.log.Infof("client connected (total: %d)", total)

	go b.readLoop(conn)
}

// readLoop keeps the connection alive and detects client disconnects.
// Client messages are not processed.
func (b *Broadcast) readLoop(conn *websocket.Conn) {
	defer b.removeClient(conn)

	for {
		if _, _, err := conn.Read(b.ctx); err != nil {
			return
		}
	}
}

// removeClient safely removes a client connection.
func (b *Broadcast) removeClient(conn *websocket.Conn) {
	b.clientsMu.Lock()
	if _, exists := b.clients[conn]; exists {
		delete(b.clients, conn)
		total := len(b.clients)
		b.clientsMu.Unlock()

		_ = conn.Close(websocket.StatusNormalClosure, "")
		b.log.Infof("client disconnected (total: %d)", total)
		return
	}
	b.clientsMu.Unlock()
}

func (b *Broadcast) handleHealth(w http.ResponseWriter, _ *http.Request) {
	b.clientsMu.RLock()
	total := len(b.clients)
	b.clientsMu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"clients": total,
	})
}

// Addr returns the server's listening address.
func (b *Broadcast) Addr() string {
	if b.listener != nil {
		return b.listener.Addr().String()
	}
	return b.addr
}

// ClientCount returns the current number of connected clients.
func (b *Broadcast) ClientCount() int {
	b.clientsMu.RLock()
	defer b.clientsMu.RUnlock()
	return len(b.clients)
}
