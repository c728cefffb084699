package tickwire

import "context"

// Transport is the multi-session byte transport consumed by the protocol runtime.
//
// A transport delivers connection events and raw binary messages to an EventSink,
// usually from its own I/O goroutines, and accepts already framed outbound bytes.
// One transport message must carry exactly one frame: the runtime relies on the
// transport's message boundaries and does not add a length prefix.
//
// Example usage:
//
//	import "github.com/luciancaetano/tickwire/ws"
//
//	transport := ws.NewServer(ws.NewServerConfig(":8080", ws.DefaultRateLimitConfig(), ws.AllOrigins()))
//	srv := server.New(transport, runtime)
//	srv.Start(ctx)
type Transport interface {
	// Start begins accepting connections. Events for every session are
	// delivered to events until Stop returns.
	//
	// Returns an error if the transport is already running or cannot bind.
	Start(ctx context.Context, events EventSink) error

	// Stop closes all sessions and releases the listener.
	Stop(ctx context.Context) error

	// Send writes one frame to the given session.
	//
	// The transport must not retain data after Send returns; callers may
	// reuse the buffer immediately.
	Send(sessionID int64, data []byte) error

	// CloseSession closes one session with a close code and optional reason.
	CloseSession(ctx context.Context, sessionID int64, code int, reason string) error

	// SessionIDs returns the identifiers of all connected sessions.
	SessionIDs() []int64
}

// EventSink receives transport events.
//
// Methods may be called concurrently from any goroutine. Implementations in
// this module only enqueue the event; user callbacks run later inside a tick.
// Ownership of data passes to the sink.
type EventSink interface {
	OnConnect(sessionID int64)
	OnDisconnect(sessionID int64, code int, reason string)
	OnBinaryMessage(sessionID int64, data []byte)
	OnError(sessionID int64, err error)
}

// Connector is a single outbound connection used by a client session.
//
// Connect dials and reports the connection through events: OnConnect once the
// connection is usable and OnDisconnect exactly once when it ends. A Connect
// that returns an error must not report OnConnect afterwards.
type Connector interface {
	// Connect establishes the connection. It honours ctx cancellation.
	Connect(ctx context.Context, sessionID int64, events EventSink) error

	// Send writes one frame. The connector must not retain data.
	Send(data []byte) error

	// Close starts a graceful close. OnDisconnect follows asynchronously.
	Close(ctx context.Context, code int, reason string) error
}

// Tickable is anything processed once per external tick.
//
// Tick is always called from the goroutine that drives the tick loop.
type Tickable interface {
	Tick()
}

// SendFunc forwards one frame to a session. It must not retain frame.
type SendFunc func(sessionID int64, frame []byte) error

// Envelope is the handler-facing view of one inbound message.
//
// Payload is borrowed from the transport buffer and is only valid while the
// handler runs. Copy it if it needs to outlive the call.
type Envelope struct {
	SessionID int64
	Opcode    int32
	Payload   []byte
	Flags     int32
}

// Logger is the leveled key/value logger used across the runtime.
//
// It is satisfied by *slog.Logger and by the zerolog adapter in this module.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}
