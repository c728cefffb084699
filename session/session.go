// Package session implements the client-side connection state machine.
//
// A Session wraps one tickwire.Connector. Transport events arrive on the
// connector's goroutines and are queued; Tick applies them and fires the
// session callbacks on the ticking goroutine.
//
//	Idle ──Connect──▶ Connecting ──connected──▶ Open
//	  │                   │  │                   │
//	  │                   │  └─Close / error─┐   ├─Close / error─▶ Closing
//	  │                   │                  ▼   │                   │
//	  └──Close──▶ Closed ◀┴── failed / disconnected ◀────────────────┘
//
// Closed is terminal. Every entry into Closed fires OnClose exactly once.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/luciancaetano/tickwire"
	"github.com/luciancaetano/tickwire/internal/logging"
	"github.com/luciancaetano/tickwire/metrics"
	"github.com/luciancaetano/tickwire/tick"
)

// State is the connection state of a Session.
type State int32

const (
	Idle State = iota
	Connecting
	Open
	Closing
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Connecting:
		return "Connecting"
	case Open:
		return "Open"
	case Closing:
		return "Closing"
	case Closed:
		return "Closed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// FrameHandler consumes inbound frames. *dispatch.Runtime implements it.
type FrameHandler interface {
	HandleFrame(ctx context.Context, sessionID int64, data []byte) error
}

type eventKind int

const (
	evTransition eventKind = iota
	evConnected
	evDisconnected
	evMessage
	evError
	evConnectFailed
)

type event struct {
	kind   eventKind
	from   State
	to     State
	code   int
	reason string
	err    error
	data   []byte
}

// Session is one client connection.
type Session struct {
	id        int64
	connector tickwire.Connector
	inbound   FrameHandler
	ctx       context.Context
	logger    tickwire.Logger
	metrics   *metrics.Collector

	mu             sync.Mutex
	state          State
	opened         bool
	closeRequested bool
	closeCode      int
	closeReason    string

	events tick.Queue[event]

	subMu     sync.Mutex
	onOpen    []func()
	onClose   []func(code int, reason string)
	onError   []func(err error)
	onChanged []func(from, to State)
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(logger tickwire.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithMetrics enables the open sessions gauge.
func WithMetrics(m *metrics.Collector) Option {
	return func(s *Session) {
		s.metrics = m
	}
}

// WithContext sets the context passed to the frame handler.
func WithContext(ctx context.Context) Option {
	return func(s *Session) {
		s.ctx = ctx
	}
}

// New creates an Idle session. Inbound frames are passed to inbound during
// Tick; inbound may be nil for send-only sessions.
func New(id int64, connector tickwire.Connector, inbound FrameHandler, opts ...Option) *Session {
	s := &Session{
		id:        id,
		connector: connector,
		inbound:   inbound,
		ctx:       context.Background(),
		logger:    logging.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID returns the session id used in envelopes.
func (s *Session) ID() int64 { return s.id }

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// OnOpen subscribes to the Connecting to Open transition.
func (s *Session) OnOpen(fn func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.onOpen = append(s.onOpen, fn)
}

// OnClose subscribes to the transition into Closed.
func (s *Session) OnClose(fn func(code int, reason string)) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.onClose = append(s.onClose, fn)
}

// OnError subscribes to transport errors.
func (s *Session) OnError(fn func(err error)) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.onError = append(s.onError, fn)
}

// OnStateChanged subscribes to every state transition.
func (s *Session) OnStateChanged(fn func(from, to State)) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.onChanged = append(s.onChanged, fn)
}

// Connect dials the connector. It blocks until the dial finishes or ctx is
// done. The session is Open only after the connect event has been applied by
// Tick.
//
// A failed or cancelled connect moves the session to Closed before Connect
// returns, without ever reaching Open; the next Tick fires OnError and OnClose.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case Idle:
	case Closed:
		s.mu.Unlock()
		return tickwire.ErrSessionClosed
	default:
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: session is %s", tickwire.ErrAlreadyRunning, state)
	}
	s.setStateLocked(Connecting)
	s.mu.Unlock()

	if err := s.connector.Connect(ctx, s.id, sink{s}); err != nil {
		if from, ok := s.transition(Closed, Connecting, Closing); ok {
			s.events.Push(event{kind: evConnectFailed, from: from, err: err})
		}
		return &tickwire.TransportError{SessionID: s.id, Err: err}
	}
	return nil
}

// Close closes the session with CloseNormal.
func (s *Session) Close(ctx context.Context) error {
	return s.CloseWithCode(ctx, tickwire.CloseNormal, "")
}

// CloseWithCode starts a graceful close. An Idle session goes straight to
// Closed. Closing an already Closed session is a no-op.
func (s *Session) CloseWithCode(ctx context.Context, code int, reason string) error {
	s.mu.Lock()
	switch s.state {
	case Closed:
		s.mu.Unlock()
		return nil
	case Idle:
		s.closeRequested = true
		s.closeCode, s.closeReason = code, reason
		s.setStateLocked(Closed)
		s.mu.Unlock()
		return nil
	case Closing:
		if s.closeRequested {
			s.mu.Unlock()
			return nil
		}
	default:
		s.setStateLocked(Closing)
	}
	s.closeRequested = true
	s.closeCode, s.closeReason = code, reason
	s.mu.Unlock()

	if err := s.connector.Close(ctx, code, reason); err != nil {
		return &tickwire.TransportError{SessionID: s.id, Err: err}
	}
	return nil
}

// Send writes one frame. It returns tickwire.ErrNotConnected without touching
// the connector unless the session is Open.
func (s *Session) Send(frame []byte) error {
	if s.State() != Open {
		return tickwire.ErrNotConnected
	}
	if err := s.connector.Send(frame); err != nil {
		return &tickwire.TransportError{SessionID: s.id, Err: err}
	}
	return nil
}

// SendFrame is Send with the tickwire.SendFunc signature, for use with
// dispatch.Runtime.CreateOutboundProxy. The session id is ignored.
func (s *Session) SendFrame(_ int64, frame []byte) error {
	return s.Send(frame)
}

// Tick applies queued transport events and fires callbacks.
func (s *Session) Tick() {
	s.events.Drain(s.apply)
}

// setStateLocked changes the state and queues the change notification.
// s.mu must be held.
func (s *Session) setStateLocked(to State) {
	from := s.state
	if from == to {
		return
	}
	s.state = to
	s.events.Push(event{kind: evTransition, from: from, to: to})
}

// transition changes the state. It reports false if the session was not in
// one of the allowed states.
func (s *Session) transition(to State, allowed ...State) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	from := s.state
	for _, a := range allowed {
		if from == a {
			s.state = to
			return from, true
		}
	}
	return from, false
}

func (s *Session) apply(e event) {
	switch e.kind {
	case evTransition:
		s.fireChanged(e.from, e.to)
		if e.to == Closed {
			code, reason := s.requestedClose()
			s.fireClose(code, reason)
		}

	case evConnected:
		from, ok := s.transition(Open, Connecting)
		if !ok {
			s.logger.Debug("connect event ignored", "session", s.id, "state", from.String())
			return
		}
		s.mu.Lock()
		s.opened = true
		s.mu.Unlock()
		s.metrics.SessionOpened()
		s.fireChanged(from, Open)
		s.fireOpen()

	case evDisconnected:
		from, ok := s.transition(Closed, Connecting, Open, Closing)
		if !ok {
			return
		}
		if s.wasOpened() {
			s.metrics.SessionClosed()
		}
		s.fireChanged(from, Closed)
		s.fireClose(e.code, e.reason)

	case evConnectFailed:
		from := e.from
		s.fireChanged(from, Closed)
		if code, reason := s.requestedClose(); from == Closing && code != 0 {
			s.fireClose(code, reason)
			return
		}
		err := &tickwire.TransportError{SessionID: s.id, Err: e.err}
		s.fireError(err)
		s.fireClose(tickwire.CloseAbnormal, e.err.Error())

	case evError:
		s.fireError(&tickwire.TransportError{SessionID: s.id, Err: e.err})
		if from, ok := s.transition(Closing, Connecting, Open); ok {
			s.fireChanged(from, Closing)
		}

	case evMessage:
		state := s.State()
		if state != Open && state != Closing {
			return
		}
		if s.inbound == nil {
			return
		}
		// Faults are reported by the handler itself.
		s.call("HandleFrame", func() { _ = s.inbound.HandleFrame(s.ctx, s.id, e.data) })
	}
}

func (s *Session) requestedClose() (int, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closeRequested {
		return 0, ""
	}
	return s.closeCode, s.closeReason
}

func (s *Session) wasOpened() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened
}

func (s *Session) fireOpen() {
	s.subMu.Lock()
	subs := append([]func(){}, s.onOpen...)
	s.subMu.Unlock()

	for _, fn := range subs {
		s.call("OnOpen", fn)
	}
}

func (s *Session) fireClose(code int, reason string) {
	s.subMu.Lock()
	subs := append([]func(int, string){}, s.onClose...)
	s.subMu.Unlock()

	for _, fn := range subs {
		s.call("OnClose", func() { fn(code, reason) })
	}
}

func (s *Session) fireError(err error) {
	s.logger.Warn("session transport error", "session", s.id, "error", err)

	s.subMu.Lock()
	subs := append([]func(error){}, s.onError...)
	s.subMu.Unlock()

	for _, fn := range subs {
		s.call("OnError", func() { fn(err) })
	}
}

func (s *Session) fireChanged(from, to State) {
	s.subMu.Lock()
	subs := append([]func(State, State){}, s.onChanged...)
	s.subMu.Unlock()

	for _, fn := range subs {
		s.call("OnStateChanged", func() { fn(from, to) })
	}
}

// call runs one callback. A panic is logged and does not stop the rest of
// the tick.
func (s *Session) call(name string, fn func()) {
	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("session callback panicked", "session", s.id, "callback", name, "panic", p)
		}
	}()
	fn()
}

// sink queues connector events for the next Tick.
type sink struct {
	s *Session
}

func (k sink) OnConnect(int64) {
	k.s.events.Push(event{kind: evConnected})
}

func (k sink) OnDisconnect(_ int64, code int, reason string) {
	k.s.events.Push(event{kind: evDisconnected, code: code, reason: reason})
}

func (k sink) OnBinaryMessage(_ int64, data []byte) {
	k.s.events.Push(event{kind: evMessage, data: data})
}

func (k sink) OnError(_ int64, err error) {
	k.s.events.Push(event{kind: evError, err: err})
}
