// Package devtools exposes a running store runtime over HTTP for
// inspection: a JSON listing of live store instances and a WebSocket feed
// of runtime events (store lifecycle, snapshot publishes, dispatch
// lifecycle). The storectl CLI is its client.
//
// The server observes — it never mutates stores. Mount it on its own port:
//
//	srv := devtools.New(devtools.WithAddr(":9229"))
//	go srv.ListenAndServe()
package devtools

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/tethys-org/store/pkg/store"
)

// Config configures the devtools server.
type Config struct {
	// Addr is the listen address (default ":9229").
	Addr string

	// Runtime is the runtime to inspect (default store.Default).
	Runtime *store.Runtime

	// Logger receives server diagnostics (default slog.Default()).
	Logger *slog.Logger

	// WriteTimeout bounds each WebSocket write (default 5s).
	WriteTimeout time.Duration

	// SendBuffer is the per-client outbound queue. A client that falls this
	// far behind is disconnected rather than allowed to stall the hub.
	SendBuffer int
}

// Option configures the devtools server.
type Option func(*Config)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(c *Config) {
		c.Addr = addr
	}
}

// WithRuntime sets the runtime to inspect.
func WithRuntime(rt *store.Runtime) Option {
	return func(c *Config) {
		c.Runtime = rt
	}
}

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithWriteTimeout sets the per-write deadline for WebSocket clients.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.WriteTimeout = d
	}
}

func defaultConfig() Config {
	return Config{
		Addr:         ":9229",
		WriteTimeout: 5 * time.Second,
		SendBuffer:   64,
	}
}

// Server streams runtime events to inspector clients.
type Server struct {
	config   Config
	runtime  *store.Runtime
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}

	http      *http.Server
	unsubHub  func()
	startOnce sync.Once
}

// client is one connected inspector. done is closed exactly once, under the
// server mutex, when the client is dropped; send is never closed, so a
// broadcaster that snapshotted the client set before the drop cannot panic
// on a closed channel.
type client struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
}

// New creates a devtools server. It does not listen until ListenAndServe;
// embedders can mount Handler on an existing mux instead.
func New(opts ...Option) *Server {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	rt := config.Runtime
	if rt == nil {
		rt = store.Default
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		config:  config,
		runtime: rt,
		logger:  logger,
		clients: make(map[*client]struct{}),
	}
}

// Handler returns the HTTP surface:
//
//	GET /stores — JSON array of live instance ids
//	GET /ws     — WebSocket feed of runtime events
func (s *Server) Handler() http.Handler {
	s.startOnce.Do(func() {
		s.unsubHub = s.runtime.Events().Subscribe(s.broadcast)
	})

	r := chi.NewRouter()
	r.Get("/stores", s.handleStores)
	r.Get("/ws", s.handleWS)
	return r
}

// ListenAndServe serves Handler on the configured address, blocking until
// Shutdown or a listener error.
func (s *Server) ListenAndServe() error {
	s.http = &http.Server{
		Addr:    s.config.Addr,
		Handler: s.Handler(),
	}
	s.logger.Info("devtools listening", "addr", s.config.Addr)
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the listener, detaches from the event hub, and closes
// every client connection.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.unsubHub != nil {
		s.unsubHub()
	}

	s.mu.Lock()
	for c := range s.clients {
		delete(s.clients, c)
		close(c.done)
	}
	s.mu.Unlock()

	if s.http != nil {
		return s.http.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleStores(w http.ResponseWriter, r *http.Request) {
	ids := s.runtime.Instances().Live()
	if ids == nil {
		ids = []string{}
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(ids); err != nil {
		s.logger.Error("stores encode error", "error", err)
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade error", "error", err)
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, s.config.SendBuffer),
		done: make(chan struct{}),
	}

	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()

	go s.writeLoop(c)
	s.readLoop(c)
}

// readLoop discards inbound messages; it exists to detect the close
// handshake and connection errors.
func (s *Server) readLoop(c *client) {
	defer s.drop(c)

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				s.logger.Error("read error", "error", err)
			}
			return
		}
	}
}

// writeLoop owns the connection: it is the only goroutine that writes to
// or closes conn, and it exits when the client is dropped.
func (s *Server) writeLoop(c *client) {
	defer c.conn.Close()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.logger.Error("write error", "error", err)
				s.drop(c)
				return
			}
		case <-c.done:
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(s.config.WriteTimeout))
			return
		}
	}
}

// broadcast fans one runtime event out to every connected client. Events
// whose snapshot cannot be marshaled are sent without it.
func (s *Server) broadcast(ev store.Event) {
	msg, err := json.Marshal(ev)
	if err != nil {
		ev.Snapshot = nil
		if msg, err = json.Marshal(ev); err != nil {
			s.logger.Error("event encode error", "kind", ev.Kind, "error", err)
			return
		}
	}

	s.mu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		select {
		case c.send <- msg:
		case <-c.done:
		default:
			// Client too far behind; disconnect rather than block the hub.
			s.logger.Warn("dropping slow devtools client")
			s.drop(c)
		}
	}
}

// drop removes the client and signals its write loop. send stays open; a
// concurrent broadcast that raced the drop sends into the buffer of an
// abandoned channel, which is harmless.
func (s *Server) drop(c *client) {
	s.mu.Lock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		close(c.done)
	}
	s.mu.Unlock()
}
