// Package websocket implements tickwire transports over gorilla/websocket.
//
// Server is a multi-session tickwire.Transport and Dialer is a single
// connection tickwire.Connector. Each WebSocket binary message carries exactly
// one frame.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/luciancaetano/tickwire"
	"github.com/luciancaetano/tickwire/internal/logging"
)

// CheckOriginFn is a function that validates the origin of a WebSocket connection request.
// It receives the HTTP request and returns true if the origin is allowed, false otherwise.
// Use this to implement CORS policies for your WebSocket server.
type CheckOriginFn = func(r *http.Request) bool

// RoutesFn mounts additional HTTP routes next to the WebSocket endpoint,
// for example a metrics or health handler.
type RoutesFn = func(r chi.Router)

const (
	defaultPath      = "/ws"
	defaultReadLimit = 1 << 20
)

// ServerConfig configures a Server.
type ServerConfig struct {
	// Addr is the listen address, for example ":8080". Use ":0" for a random port.
	Addr string
	// Path is the WebSocket endpoint (default "/ws").
	Path string
	// RateLimitConfig limits inbound messages per connection. Nil means
	// DefaultRateLimitConfig().
	RateLimitConfig *RateLimitConfig
	// CheckOrigin validates the Origin header. Nil uses gorilla's same-origin check.
	CheckOrigin CheckOriginFn
	// ReadLimit is the maximum inbound message size in bytes (default 1 MiB).
	ReadLimit int64
	// Timeouts sets deadlines and keepalive. Zero values use DefaultTimeouts().
	Timeouts Timeouts
	// SendQueueSize is the per-connection outbound queue length (default 256).
	SendQueueSize int
	// Routes mounts extra HTTP routes on the same listener.
	Routes RoutesFn
	// Logger receives connection logs. Nil discards them.
	Logger tickwire.Logger
}

// RateLimitConfig defines rate limiting configuration for clients
type RateLimitConfig struct {
	// MessagesPerSecond defines how many messages a client can send per second
	MessagesPerSecond rate.Limit
	// Burst defines the maximum burst size (token bucket capacity)
	Burst int
	// Enabled determines if rate limiting is active
	Enabled bool
}

// DefaultRateLimitConfig returns the default rate limit configuration
// Allows 100 messages per second with burst of 200
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		MessagesPerSecond: 100,
		Burst:             200,
		Enabled:           true,
	}
}

// NoRateLimit returns a configuration with rate limiting disabled
func NoRateLimit() *RateLimitConfig {
	return &RateLimitConfig{
		Enabled: false,
	}
}

func (c *RateLimitConfig) limiter() *rate.Limiter {
	if c == nil || !c.Enabled {
		return nil
	}
	return rate.NewLimiter(c.MessagesPerSecond, c.Burst)
}

// Server is a WebSocket tickwire.Transport.
type Server struct {
	addr            string
	path            string
	rateLimitConfig *RateLimitConfig
	readLimit       int64
	timeouts        Timeouts
	queueSize       int
	routes          RoutesFn
	logger          tickwire.Logger
	upgrader        websocket.Upgrader

	nextID atomic.Int64

	mu       sync.RWMutex
	running  bool
	server   *http.Server
	listener net.Listener
	events   tickwire.EventSink
	conns    map[int64]*Conn
}

var _ tickwire.Transport = (*Server)(nil)

// New creates a new WebSocket server instance with the specified configuration.
//
// The server uses the Gorilla WebSocket library with read/write buffer sizes of 1024 bytes.
// Rate limiting is applied per-connection using a token bucket algorithm; a
// connection that exceeds it is closed with ClosePolicyViolation.
//
// Example:
//
//	server := New(&ServerConfig{
//	    Addr:            ":8080",
//	    RateLimitConfig: DefaultRateLimitConfig(),
//	    CheckOrigin:     func(r *http.Request) bool { return true },
//	})
func New(cfg *ServerConfig) *Server {
	if cfg.RateLimitConfig == nil {
		cfg.RateLimitConfig = DefaultRateLimitConfig()
	}
	path := cfg.Path
	if path == "" {
		path = defaultPath
	}
	readLimit := cfg.ReadLimit
	if readLimit <= 0 {
		readLimit = defaultReadLimit
	}
	var logger tickwire.Logger = logging.Nop()
	if cfg.Logger != nil {
		logger = cfg.Logger
	}

	return &Server{
		addr:            cfg.Addr,
		path:            path,
		rateLimitConfig: cfg.RateLimitConfig,
		readLimit:       readLimit,
		timeouts:        cfg.Timeouts.withDefaults(),
		queueSize:       cfg.SendQueueSize,
		routes:          cfg.Routes,
		logger:          logger,
		conns:           make(map[int64]*Conn),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     cfg.CheckOrigin,
		},
	}
}

// Start binds the listener and serves in the background. Events of every
// connection go to events until Stop.
func (s *Server) Start(ctx context.Context, events tickwire.EventSink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return tickwire.ErrAlreadyRunning
	}

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("websocket: listen %s: %w", s.addr, err)
	}

	s.server = &http.Server{
		Handler:           s.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.listener = listener
	s.events = events
	s.running = true

	go func(srv *http.Server) {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("websocket server stopped", "addr", listener.Addr().String(), "error", err)
		}
	}(s.server)

	s.logger.Info("websocket server listening", "addr", listener.Addr().String(), "path", s.path)
	return nil
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Get(s.path, s.handleWebSocket)
	if s.routes != nil {
		s.routes(r)
	}
	return r
}

// Stop closes all connections with CloseGoingAway and shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	conns := make([]*Conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	srv := s.server
	s.mu.Unlock()

	for _, c := range conns {
		_ = c.CloseWithCode(tickwire.CloseGoingAway, "server shutting down")
	}

	return srv.Shutdown(ctx)
}

// Addr returns the bound listen address, or the configured one before Start.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Path returns the WebSocket endpoint path.
func (s *Server) Path() string { return s.path }

// Send queues one frame for a session. The data is copied.
func (s *Server) Send(sessionID int64, data []byte) error {
	c, ok := s.conn(sessionID)
	if !ok {
		return fmt.Errorf("%w: %d", tickwire.ErrSessionNotFound, sessionID)
	}
	return c.Send(data)
}

// CloseSession closes one session with a close code.
func (s *Server) CloseSession(_ context.Context, sessionID int64, code int, reason string) error {
	c, ok := s.conn(sessionID)
	if !ok {
		return fmt.Errorf("%w: %d", tickwire.ErrSessionNotFound, sessionID)
	}
	return c.CloseWithCode(code, reason)
}

// SessionIDs returns the ids of all connected sessions in ascending order.
func (s *Server) SessionIDs() []int64 {
	s.mu.RLock()
	ids := make([]int64, 0, len(s.conns))
	for id := range s.conns {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Conn returns a connected session.
func (s *Server) Conn(sessionID int64) (*Conn, bool) {
	return s.conn(sessionID)
}

func (s *Server) conn(id int64) (*Conn, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conns[id]
	return c, ok
}

// handleWebSocket upgrades the request and serves the connection on the
// handler goroutine until it ends.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error response.
		s.logger.Debug("websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	c := newConn(s.nextID.Add(1), ws, r.RemoteAddr, connConfig{
		limiter:   s.rateLimitConfig.limiter(),
		readLimit: s.readLimit,
		timeouts:  s.timeouts,
		queueSize: s.queueSize,
		logger:    s.logger,
	})

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		_ = c.CloseWithCode(tickwire.CloseGoingAway, "server shutting down")
		return
	}
	s.conns[c.ID()] = c
	events := s.events
	s.mu.Unlock()

	s.logger.Debug("websocket connection accepted", "session", c.ID(), "trace_id", c.TraceID(), "remote_addr", c.RemoteAddr())

	c.run(events, func() {
		s.mu.Lock()
		delete(s.conns, c.ID())
		s.mu.Unlock()
	})
}
