package sample

import (
	"context"
	"time"

	"github.com/luciancaetano/tickwire"
	"github.com/luciancaetano/tickwire/dispatch"
	"github.com/luciancaetano/tickwire/opcode"
)

// ServerTable is the server side of the group: it receives C2Sample and sends
// Sample2C.
var ServerTable = opcode.MustNew("C2Sample",
	[]opcode.Inbound{
		opcode.InboundOf[Ping](OpPing),
		opcode.InboundOf[Echo](OpEcho),
	},
	[]opcode.Outbound{
		opcode.OutboundOf[Pong](OpPong),
		opcode.OutboundOf[EchoReply](OpEchoReply),
	},
)

// ClientTable is the client side of the group: it receives Sample2C and sends
// C2Sample.
var ClientTable = opcode.MustNew("Sample2C",
	[]opcode.Inbound{
		opcode.InboundOf[Pong](OpPong),
		opcode.InboundOf[EchoReply](OpEchoReply),
	},
	[]opcode.Outbound{
		opcode.OutboundOf[Ping](OpPing),
		opcode.OutboundOf[Echo](OpEcho),
	},
)

// NewServerRuntime creates a runtime over ServerTable.
func NewServerRuntime(opts ...dispatch.Option) *dispatch.Runtime {
	return dispatch.New(ServerTable, opts...)
}

// NewClientRuntime creates a runtime over ClientTable.
func NewClientRuntime(opts ...dispatch.Option) *dispatch.Runtime {
	return dispatch.New(ClientTable, opts...)
}

// ServerStub registers handlers for C2Sample messages.
type ServerStub struct {
	stub *dispatch.Stub
}

// NewServerStub wraps the stub of a server runtime.
func NewServerStub(rt *dispatch.Runtime) ServerStub {
	return ServerStub{stub: rt.Stub()}
}

func (s ServerStub) OnPing(fn func(ctx context.Context, env tickwire.Envelope, msg *Ping)) {
	dispatch.HandleTyped[Ping](s.stub, OpPing, fn)
}

func (s ServerStub) OnEcho(fn func(ctx context.Context, env tickwire.Envelope, msg *Echo)) {
	dispatch.HandleTyped[Echo](s.stub, OpEcho, fn)
}

// ClientStub registers handlers for Sample2C messages.
type ClientStub struct {
	stub *dispatch.Stub
}

// NewClientStub wraps the stub of a client runtime.
func NewClientStub(rt *dispatch.Runtime) ClientStub {
	return ClientStub{stub: rt.Stub()}
}

func (s ClientStub) OnPong(fn func(ctx context.Context, env tickwire.Envelope, msg *Pong)) {
	dispatch.HandleTyped[Pong](s.stub, OpPong, fn)
}

func (s ClientStub) OnEchoReply(fn func(ctx context.Context, env tickwire.Envelope, msg *EchoReply)) {
	dispatch.HandleTyped[EchoReply](s.stub, OpEchoReply, fn)
}

// ServerProxy sends Sample2C messages.
type ServerProxy struct {
	proxy *dispatch.Proxy
}

// NewServerProxy wraps a proxy created from a server runtime.
func NewServerProxy(p *dispatch.Proxy) ServerProxy {
	return ServerProxy{proxy: p}
}

func (p ServerProxy) SendPong(sessionID int64, msg *Pong) error {
	return p.proxy.Send(sessionID, msg)
}

func (p ServerProxy) SendEchoReply(sessionID int64, msg *EchoReply) error {
	return p.proxy.Send(sessionID, msg)
}

// ClientProxy sends C2Sample messages over a point-to-point connection.
type ClientProxy struct {
	proxy *dispatch.Proxy
}

// NewClientProxy wraps a proxy created from a client runtime.
func NewClientProxy(p *dispatch.Proxy) ClientProxy {
	return ClientProxy{proxy: p}
}

func (p ClientProxy) SendPing(msg *Ping) error {
	return p.proxy.Send(0, msg)
}

func (p ClientProxy) SendEcho(msg *Echo) error {
	return p.proxy.Send(0, msg)
}

// InstallEchoService answers every Ping with a Pong stamped by now and every
// Echo with an EchoReply. Send failures go to onErr, which may be nil.
func InstallEchoService(stub ServerStub, proxy ServerProxy, now func() time.Time, onErr func(sessionID int64, err error)) {
	if now == nil {
		now = time.Now
	}
	report := func(id int64, err error) {
		if err != nil && onErr != nil {
			onErr(id, err)
		}
	}

	stub.OnPing(func(_ context.Context, env tickwire.Envelope, msg *Ping) {
		report(env.SessionID, proxy.SendPong(env.SessionID, &Pong{
			Timestamp:  msg.Timestamp,
			ServerTime: now().UnixMilli(),
		}))
	})
	stub.OnEcho(func(_ context.Context, env tickwire.Envelope, msg *Echo) {
		report(env.SessionID, proxy.SendEchoReply(env.SessionID, &EchoReply{Message: msg.Message}))
	})
}
