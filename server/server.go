// Package server binds a multi-session transport to a dispatch runtime.
//
// Transport goroutines only enqueue events. Tick, called from the tick loop,
// drains them: connection callbacks fire and frames are dispatched to the
// runtime's handlers, all on the ticking goroutine.
//
//	transport := ws.NewServer(ws.NewServerConfig(":8080", ws.DefaultRateLimitConfig(), ws.AllOrigins()))
//	srv := server.New(transport, runtime)
//	loop.Register(srv)
//	srv.Start(ctx)
package server

import (
	"context"
	"sort"
	"sync"

	"github.com/luciancaetano/tickwire"
	"github.com/luciancaetano/tickwire/dispatch"
	"github.com/luciancaetano/tickwire/internal/logging"
	"github.com/luciancaetano/tickwire/metrics"
	"github.com/luciancaetano/tickwire/tick"
)

type eventKind int

const (
	evConnect eventKind = iota
	evDisconnect
	evMessage
	evError
)

type event struct {
	kind   eventKind
	id     int64
	code   int
	reason string
	data   []byte
	err    error
}

// Server is a tickwire.Tickable protocol server.
type Server struct {
	transport tickwire.Transport
	runtime   *dispatch.Runtime
	ctx       context.Context
	logger    tickwire.Logger
	metrics   *metrics.Collector

	events tick.Queue[event]

	// sessions is only touched from Tick.
	sessions map[int64]struct{}

	subMu        sync.Mutex
	onConnect    []func(sessionID int64)
	onDisconnect []func(sessionID int64, code int, reason string)
	onError      []func(sessionID int64, err error)
}

var _ tickwire.Tickable = (*Server)(nil)

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger tickwire.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics enables session and queue metrics.
func WithMetrics(m *metrics.Collector) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithContext sets the context passed to handlers.
func WithContext(ctx context.Context) Option {
	return func(s *Server) {
		s.ctx = ctx
	}
}

// New creates a server over transport. Inbound frames go to runtime.
func New(transport tickwire.Transport, runtime *dispatch.Runtime, opts ...Option) *Server {
	s := &Server{
		transport: transport,
		runtime:   runtime,
		ctx:       context.Background(),
		logger:    logging.Nop(),
		sessions:  make(map[int64]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start starts the transport.
func (s *Server) Start(ctx context.Context) error {
	return s.transport.Start(ctx, sink{s})
}

// Stop stops the transport. Disconnect events produced by the shutdown are
// delivered on the following ticks.
func (s *Server) Stop(ctx context.Context) error {
	return s.transport.Stop(ctx)
}

// Runtime returns the dispatch runtime.
func (s *Server) Runtime() *dispatch.Runtime { return s.runtime }

// CreateOutboundProxy returns a proxy that sends through the transport.
func (s *Server) CreateOutboundProxy() *dispatch.Proxy {
	return s.runtime.CreateOutboundProxy(s.transport.Send)
}

// CloseSession closes one session.
func (s *Server) CloseSession(ctx context.Context, sessionID int64, code int, reason string) error {
	return s.transport.CloseSession(ctx, sessionID, code, reason)
}

// SessionIDs returns the sessions whose connect event has been processed and
// whose disconnect has not, in ascending order. Call it from the tick goroutine.
func (s *Server) SessionIDs() []int64 {
	ids := make([]int64, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// OnConnect subscribes to new sessions.
func (s *Server) OnConnect(fn func(sessionID int64)) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.onConnect = append(s.onConnect, fn)
}

// OnDisconnect subscribes to ended sessions.
func (s *Server) OnDisconnect(fn func(sessionID int64, code int, reason string)) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.onDisconnect = append(s.onDisconnect, fn)
}

// OnError subscribes to transport errors.
func (s *Server) OnError(fn func(sessionID int64, err error)) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.onError = append(s.onError, fn)
}

// Tick drains queued transport events.
func (s *Server) Tick() {
	n := s.events.Drain(s.apply)
	s.metrics.EventsDrained(n)
}

func (s *Server) apply(e event) {
	switch e.kind {
	case evConnect:
		if _, ok := s.sessions[e.id]; ok {
			return
		}
		s.sessions[e.id] = struct{}{}
		s.metrics.SessionOpened()
		s.logger.Debug("session connected", "session", e.id)

		s.subMu.Lock()
		subs := append([]func(int64){}, s.onConnect...)
		s.subMu.Unlock()
		for _, fn := range subs {
			s.call("OnConnect", e.id, func() { fn(e.id) })
		}

	case evDisconnect:
		if _, ok := s.sessions[e.id]; !ok {
			return
		}
		delete(s.sessions, e.id)
		s.metrics.SessionClosed()
		s.logger.Debug("session disconnected", "session", e.id, "code", e.code, "reason", e.reason)

		s.subMu.Lock()
		subs := append([]func(int64, int, string){}, s.onDisconnect...)
		s.subMu.Unlock()
		for _, fn := range subs {
			s.call("OnDisconnect", e.id, func() { fn(e.id, e.code, e.reason) })
		}

	case evMessage:
		if _, ok := s.sessions[e.id]; !ok {
			return
		}
		// Faults are reported by the runtime.
		s.call("HandleFrame", e.id, func() { _ = s.runtime.HandleFrame(s.ctx, e.id, e.data) })

	case evError:
		err := &tickwire.TransportError{SessionID: e.id, Err: e.err}
		s.logger.Warn("session transport error", "session", e.id, "error", e.err)

		s.subMu.Lock()
		subs := append([]func(int64, error){}, s.onError...)
		s.subMu.Unlock()
		for _, fn := range subs {
			s.call("OnError", e.id, func() { fn(e.id, err) })
		}
	}
}

// call runs one callback for a session. A panic is logged and the remaining
// events of the tick are still applied.
func (s *Server) call(name string, sessionID int64, fn func()) {
	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("server callback panicked", "session", sessionID, "callback", name, "panic", p)
		}
	}()
	fn()
}

// sink queues transport events for the next Tick.
type sink struct {
	s *Server
}

func (k sink) OnConnect(id int64) {
	k.s.events.Push(event{kind: evConnect, id: id})
}

func (k sink) OnDisconnect(id int64, code int, reason string) {
	k.s.events.Push(event{kind: evDisconnect, id: id, code: code, reason: reason})
}

func (k sink) OnBinaryMessage(id int64, data []byte) {
	k.s.events.Push(event{kind: evMessage, id: id, data: data})
}

func (k sink) OnError(id int64, err error) {
	k.s.events.Push(event{kind: evError, id: id, err: err})
}
