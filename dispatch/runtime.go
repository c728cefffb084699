// Package dispatch routes inbound frames to handlers and frames outbound
// messages for one protocol group.
//
// A Runtime owns the group's opcode table, its codec and its Stub. Inbound
// bytes enter through HandleFrame or DispatchInbound; outbound messages leave
// through a Proxy created with CreateOutboundProxy.
//
// Messages that cannot be dispatched never panic and never close a session.
// They are reported to the fault handler, which logs a warning by default.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/luciancaetano/tickwire"
	"github.com/luciancaetano/tickwire/codec"
	"github.com/luciancaetano/tickwire/internal/bufpool"
	"github.com/luciancaetano/tickwire/internal/logging"
	"github.com/luciancaetano/tickwire/internal/protocol"
	"github.com/luciancaetano/tickwire/metrics"
	"github.com/luciancaetano/tickwire/opcode"
)

const tracerName = "github.com/luciancaetano/tickwire/dispatch"

// Fault describes an inbound message that was dropped.
type Fault struct {
	SessionID int64
	Opcode    int32
	// Payload is borrowed and only valid during the fault handler call.
	Payload []byte
	Err     error
}

// FaultHandler receives dropped inbound messages. It runs on the dispatching
// goroutine.
type FaultHandler func(ctx context.Context, f Fault)

// Runtime dispatches inbound frames and creates outbound proxies.
type Runtime struct {
	table   *opcode.Table
	codec   codec.Codec
	stub    *Stub
	pool    *bufpool.Pool
	logger  tickwire.Logger
	metrics *metrics.Collector
	tracer  trace.Tracer

	mu      sync.RWMutex
	onFault FaultHandler
}

// New creates a runtime for table.
func New(table *opcode.Table, opts ...Option) *Runtime {
	r := &Runtime{
		table:  table,
		stub:   newStub(),
		pool:   bufpool.Default(),
		logger: logging.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.codec == nil {
		r.codec = codec.NewSchema(table)
	}
	if r.tracer == nil {
		r.tracer = otel.Tracer(tracerName)
	}
	return r
}

// Stub returns the handler registry.
func (r *Runtime) Stub() *Stub { return r.stub }

// Codec returns the message codec.
func (r *Runtime) Codec() codec.Codec { return r.codec }

// Table returns the opcode table.
func (r *Runtime) Table() *opcode.Table { return r.table }

// InboundOpcodeName returns the message name registered for an inbound opcode.
func (r *Runtime) InboundOpcodeName(op int32) (string, bool) {
	return r.table.InboundName(op)
}

// SetUnknownInboundOpcode replaces the fault handler. Unknown opcodes, decode
// failures, malformed frames and handler panics all go through it.
// A nil h restores the default warn log.
func (r *Runtime) SetUnknownInboundOpcode(h FaultHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onFault = h
}

// HandleFrame unpacks one transport message and dispatches it.
func (r *Runtime) HandleFrame(ctx context.Context, sessionID int64, data []byte) error {
	frame, ok := protocol.Unpack(data)
	if !ok {
		err := fmt.Errorf("%w: %d bytes", tickwire.ErrMalformedFrame, len(data))
		r.fault(ctx, Fault{SessionID: sessionID, Opcode: -1, Payload: data, Err: err}, metrics.FaultMalformedFrame)
		return err
	}
	return r.DispatchInbound(ctx, sessionID, frame.Opcode, frame.Payload)
}

// DispatchInbound decodes payload as the message registered for op and
// invokes its handler synchronously.
//
// The returned error is informational: it has already been reported to the
// fault handler, and the session stays usable.
func (r *Runtime) DispatchInbound(ctx context.Context, sessionID int64, op int32, payload []byte) error {
	ctx, span := r.tracer.Start(ctx, "tickwire.dispatch",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("tickwire.group", r.table.Group()),
			attribute.Int64("tickwire.session_id", sessionID),
			attribute.Int("tickwire.opcode", int(op)),
			attribute.Int("tickwire.payload_size", len(payload)),
		),
	)
	defer span.End()

	name, ok := r.table.InboundName(op)
	if !ok {
		err := fmt.Errorf("%w: %d", tickwire.ErrUnknownOpcode, op)
		span.SetStatus(codes.Error, err.Error())
		r.fault(ctx, Fault{SessionID: sessionID, Opcode: op, Payload: payload, Err: err}, metrics.FaultUnknownOpcode)
		return err
	}
	span.SetAttributes(attribute.String("tickwire.message", name))

	msg, err := r.codec.DecodeByOpcode(op, payload)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		kind := metrics.FaultDecode
		if errors.Is(err, tickwire.ErrUnknownOpcode) {
			kind = metrics.FaultUnknownOpcode
		}
		r.fault(ctx, Fault{SessionID: sessionID, Opcode: op, Payload: payload, Err: err}, kind)
		return err
	}

	h := r.stub.handler(op)
	if h == nil {
		r.logger.Debug("no handler registered", "group", r.table.Group(), "message", name, "session", sessionID)
		r.metrics.Fault(metrics.FaultUnhandled)
		span.SetStatus(codes.Ok, "unhandled")
		return nil
	}

	env := tickwire.Envelope{SessionID: sessionID, Opcode: op, Payload: payload}
	if err := invoke(ctx, h, env, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.fault(ctx, Fault{SessionID: sessionID, Opcode: op, Payload: payload, Err: err}, metrics.FaultHandlerPanic)
		return err
	}

	r.metrics.InboundMessage(name)
	span.SetStatus(codes.Ok, "")
	return nil
}

// CreateOutboundProxy returns a proxy that frames messages and passes them to
// send.
func (r *Runtime) CreateOutboundProxy(send tickwire.SendFunc) *Proxy {
	return &Proxy{
		table:   r.table,
		codec:   r.codec,
		pool:    r.pool,
		send:    send,
		metrics: r.metrics,
	}
}

func invoke(ctx context.Context, h Handler, env tickwire.Envelope, msg opcode.Message) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", tickwire.ErrHandlerPanic, p)
		}
	}()
	h(ctx, env, msg)
	return nil
}

func (r *Runtime) fault(ctx context.Context, f Fault, kind string) {
	r.metrics.Fault(kind)

	r.mu.RLock()
	h := r.onFault
	r.mu.RUnlock()

	if h != nil {
		h(ctx, f)
		return
	}
	r.logger.Warn("dropping inbound message",
		"group", r.table.Group(),
		"session", f.SessionID,
		"opcode", f.Opcode,
		"payload_len", len(f.Payload),
		"error", f.Err,
	)
}
