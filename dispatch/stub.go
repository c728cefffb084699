package dispatch

import (
	"context"
	"sync"

	"github.com/luciancaetano/tickwire"
	"github.com/luciancaetano/tickwire/opcode"
)

// Handler processes one decoded inbound message.
//
// env.Payload is borrowed from the transport and must not be retained.
type Handler func(ctx context.Context, env tickwire.Envelope, msg opcode.Message)

// Stub holds the inbound handlers of one protocol group, one per opcode.
//
// Generated group wrappers register typed handlers through it, for example
// OnPing(fn). Registration is safe while messages are being dispatched.
type Stub struct {
	mu       sync.RWMutex
	handlers map[int32]Handler
}

func newStub() *Stub {
	return &Stub{handlers: make(map[int32]Handler)}
}

// Handle registers h for opcode, replacing any previous handler.
// A nil h removes the registration.
func (s *Stub) Handle(op int32, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h == nil {
		delete(s.handlers, op)
		return
	}
	s.handlers[op] = h
}

// Handled reports whether a handler is registered for opcode.
func (s *Stub) Handled(op int32) bool {
	return s.handler(op) != nil
}

func (s *Stub) handler(op int32) Handler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.handlers[op]
}

// HandleTyped registers a handler that receives the concrete message type.
func HandleTyped[T any, PT interface {
	*T
	opcode.Message
}](s *Stub, op int32, fn func(ctx context.Context, env tickwire.Envelope, msg *T)) {
	if fn == nil {
		s.Handle(op, nil)
		return
	}
	s.Handle(op, func(ctx context.Context, env tickwire.Envelope, msg opcode.Message) {
		fn(ctx, env, (*T)(msg.(PT)))
	})
}
