package dispatch

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/luciancaetano/tickwire"
	"github.com/luciancaetano/tickwire/codec"
	"github.com/luciancaetano/tickwire/internal/protocol"
	"github.com/luciancaetano/tickwire/metrics"
	"github.com/luciancaetano/tickwire/opcode"
)

const (
	opNote  int32 = 1
	opOther int32 = 2
)

// note is a test message: an 8-byte LE id followed by text.
type note struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
}

func (*note) MessageName() string { return "Note" }

func (n *note) AppendPayload(dst []byte) ([]byte, error) {
	dst = binary.LittleEndian.AppendUint64(dst, uint64(n.ID))
	return append(dst, n.Text...), nil
}

func (n *note) UnmarshalPayload(data []byte) error {
	if len(data) < 8 {
		return io.ErrUnexpectedEOF
	}
	*n = note{ID: int64(binary.LittleEndian.Uint64(data)), Text: string(data[8:])}
	return nil
}

type stray struct{}

func (*stray) MessageName() string { return "Stray" }

func testTable() *opcode.Table {
	return opcode.MustNew("Test",
		[]opcode.Inbound{opcode.InboundOf[note](opNote)},
		[]opcode.Outbound{opcode.OutboundOf[note](opNote)},
	)
}

type faultRecorder struct {
	mu     sync.Mutex
	faults []Fault
}

func (f *faultRecorder) handle(_ context.Context, fault Fault) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fault.Payload = append([]byte(nil), fault.Payload...)
	f.faults = append(f.faults, fault)
}

func (f *faultRecorder) all() []Fault {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Fault(nil), f.faults...)
}

func TestDispatchInvokesHandler(t *testing.T) {
	t.Parallel()

	rt := New(testTable(), WithTracer(noop.NewTracerProvider().Tracer("test")))

	var gotEnv tickwire.Envelope
	var gotMsg *note
	HandleTyped[note](rt.Stub(), opNote, func(_ context.Context, env tickwire.Envelope, msg *note) {
		gotEnv = env
		gotMsg = msg
	})

	payload, _ := (&note{ID: 42, Text: "hi"}).AppendPayload(nil)
	if err := rt.DispatchInbound(context.Background(), 9, opNote, payload); err != nil {
		t.Fatalf("DispatchInbound() error = %v", err)
	}

	if gotMsg == nil || gotMsg.ID != 42 || gotMsg.Text != "hi" {
		t.Fatalf("handler got %+v, want {42 hi}", gotMsg)
	}
	if gotEnv.SessionID != 9 || gotEnv.Opcode != opNote || !bytes.Equal(gotEnv.Payload, payload) {
		t.Errorf("envelope = %+v", gotEnv)
	}
}

// TestUnknownOpcodeNonFatal verifies an unknown opcode reaches the fault handler
// and leaves later dispatches on the same session unaffected
func TestUnknownOpcodeNonFatal(t *testing.T) {
	t.Parallel()

	rec := &faultRecorder{}
	rt := New(testTable())
	rt.SetUnknownInboundOpcode(rec.handle)

	calls := 0
	rt.Stub().Handle(opNote, func(context.Context, tickwire.Envelope, opcode.Message) { calls++ })

	err := rt.DispatchInbound(context.Background(), 1, 77, []byte{1, 2, 3})
	if !errors.Is(err, tickwire.ErrUnknownOpcode) {
		t.Fatalf("DispatchInbound(77) error = %v, want ErrUnknownOpcode", err)
	}

	faults := rec.all()
	if len(faults) != 1 {
		t.Fatalf("faults = %d, want 1", len(faults))
	}
	if faults[0].SessionID != 1 || faults[0].Opcode != 77 || len(faults[0].Payload) != 3 {
		t.Errorf("fault = %+v", faults[0])
	}

	payload, _ := (&note{ID: 1}).AppendPayload(nil)
	if err := rt.DispatchInbound(context.Background(), 1, opNote, payload); err != nil {
		t.Fatalf("DispatchInbound() after unknown opcode error = %v", err)
	}
	if calls != 1 {
		t.Errorf("handler calls = %d, want 1", calls)
	}
}

func TestDecodeFailureReported(t *testing.T) {
	t.Parallel()

	rec := &faultRecorder{}
	rt := New(testTable(), WithFaultHandler(rec.handle))

	called := false
	rt.Stub().Handle(opNote, func(context.Context, tickwire.Envelope, opcode.Message) { called = true })

	err := rt.DispatchInbound(context.Background(), 3, opNote, []byte{1, 2})
	if !errors.Is(err, tickwire.ErrDecodeFailure) {
		t.Fatalf("DispatchInbound() error = %v, want ErrDecodeFailure", err)
	}
	if called {
		t.Error("handler called for undecodable payload")
	}

	faults := rec.all()
	if len(faults) != 1 || !errors.Is(faults[0].Err, tickwire.ErrDecodeFailure) {
		t.Errorf("faults = %+v, want one decode failure", faults)
	}
}

func TestHandlerPanicRecovered(t *testing.T) {
	t.Parallel()

	rec := &faultRecorder{}
	rt := New(testTable(), WithFaultHandler(rec.handle))
	rt.Stub().Handle(opNote, func(context.Context, tickwire.Envelope, opcode.Message) {
		panic("handler bug")
	})

	payload, _ := (&note{}).AppendPayload(nil)
	err := rt.DispatchInbound(context.Background(), 1, opNote, payload)
	if !errors.Is(err, tickwire.ErrHandlerPanic) {
		t.Fatalf("DispatchInbound() error = %v, want ErrHandlerPanic", err)
	}
	if faults := rec.all(); len(faults) != 1 {
		t.Errorf("faults = %d, want 1", len(faults))
	}
}

func TestHandleFrame(t *testing.T) {
	t.Parallel()

	rec := &faultRecorder{}
	rt := New(testTable(), WithFaultHandler(rec.handle))

	var got *note
	HandleTyped[note](rt.Stub(), opNote, func(_ context.Context, _ tickwire.Envelope, msg *note) { got = msg })

	payload, _ := (&note{ID: 5, Text: "x"}).AppendPayload(nil)
	if err := rt.HandleFrame(context.Background(), 0, protocol.Pack(opNote, payload)); err != nil {
		t.Fatalf("HandleFrame() error = %v", err)
	}
	if got == nil || got.ID != 5 {
		t.Errorf("handler got %+v, want ID 5", got)
	}

	for _, short := range [][]byte{nil, {}, {1}, {1, 0, 0}} {
		err := rt.HandleFrame(context.Background(), 0, short)
		if !errors.Is(err, tickwire.ErrMalformedFrame) {
			t.Errorf("HandleFrame(%v) error = %v, want ErrMalformedFrame", short, err)
		}
	}
	if faults := rec.all(); len(faults) != 4 {
		t.Errorf("faults = %d, want 4", len(faults))
	}
}

func TestUnhandledOpcodeIsNotAFault(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	rec := &faultRecorder{}
	rt := New(testTable(), WithFaultHandler(rec.handle), WithMetrics(metrics.New(metrics.WithRegistry(reg))))

	payload, _ := (&note{}).AppendPayload(nil)
	if err := rt.DispatchInbound(context.Background(), 0, opNote, payload); err != nil {
		t.Fatalf("DispatchInbound() error = %v", err)
	}
	if faults := rec.all(); len(faults) != 0 {
		t.Errorf("faults = %+v, want none", faults)
	}

	if n, err := testutil.GatherAndCount(reg, "tickwire_inbound_faults_total"); err != nil || n != 1 {
		t.Errorf("unhandled fault series = %d (%v), want 1", n, err)
	}
}

func TestStubHandleReplaceAndRemove(t *testing.T) {
	t.Parallel()

	rt := New(testTable())
	stub := rt.Stub()

	if stub.Handled(opNote) {
		t.Fatal("fresh stub reports a handler")
	}

	which := ""
	stub.Handle(opNote, func(context.Context, tickwire.Envelope, opcode.Message) { which = "first" })
	stub.Handle(opNote, func(context.Context, tickwire.Envelope, opcode.Message) { which = "second" })

	payload, _ := (&note{}).AppendPayload(nil)
	_ = rt.DispatchInbound(context.Background(), 0, opNote, payload)
	if which != "second" {
		t.Errorf("dispatched to %q, want second", which)
	}

	stub.Handle(opNote, nil)
	if stub.Handled(opNote) {
		t.Error("Handle(nil) did not remove the handler")
	}
}

func TestInboundOpcodeName(t *testing.T) {
	t.Parallel()

	rt := New(testTable())

	if name, ok := rt.InboundOpcodeName(opNote); !ok || name != "Note" {
		t.Errorf("InboundOpcodeName(%d) = %q, %v", opNote, name, ok)
	}
	if _, ok := rt.InboundOpcodeName(opOther); ok {
		t.Errorf("InboundOpcodeName(%d) found an entry", opOther)
	}
}

func TestRuntimeWithJSONCodec(t *testing.T) {
	t.Parallel()

	table := testTable()
	rt := New(table, WithCodec(codec.NewJSON(table)))

	var got *note
	HandleTyped[note](rt.Stub(), opNote, func(_ context.Context, _ tickwire.Envelope, msg *note) { got = msg })

	var frame []byte
	proxy := rt.CreateOutboundProxy(func(_ int64, f []byte) error {
		frame = append([]byte(nil), f...)
		return nil
	})
	if err := proxy.Send(0, &note{ID: 1 << 60, Text: "big"}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if !bytes.Contains(frame, []byte(codec.Int64Tag)) {
		t.Errorf("frame %s should carry a tagged integer", frame[protocol.HeaderSize:])
	}

	if err := rt.HandleFrame(context.Background(), 0, frame); err != nil {
		t.Fatalf("HandleFrame() error = %v", err)
	}
	if got == nil || got.ID != 1<<60 || got.Text != "big" {
		t.Errorf("handler got %+v", got)
	}
}
