// Package tickwire is a message protocol runtime for game clients and servers.
//
// It turns raw transport messages into typed, opcode-addressed messages and
// typed outbound messages back into bytes, and it delivers every user callback
// from a single tick goroutine so handler code never needs locks.
//
// # Architecture
//
// A frame is a 4-byte opcode followed by a payload:
//
//	[4 bytes: opcode (int32, little-endian)][N bytes: payload]
//
// There is no length prefix. One transport message carries exactly one frame,
// which holds for WebSocket but not for a raw TCP stream.
//
// The pieces, leaf first:
//
//   - internal/protocol packs and unpacks frames.
//   - opcode holds the immutable per-group table of decode and encode functions.
//   - codec turns messages into payload bytes: a schema codec driven by the
//     table and a JSON fallback that tags 64-bit integers as {"$int64": "..."}.
//   - dispatch provides the Stub (inbound handlers), the Proxy (outbound sends)
//     and the Runtime that ties them to a codec.
//   - session is a client connection state machine.
//   - server binds a multi-session Transport to a Runtime.
//   - tick runs registered Tickables once per external tick and provides the
//     multi-producer queue that moves transport events onto the tick goroutine.
//   - ws adapts gorilla/websocket to the Transport and Connector interfaces.
//
// # Quick Start
//
//	rt := sample.NewServerRuntime()
//	transport := ws.NewServer(ws.NewServerConfig(":8080", ws.DefaultRateLimitConfig(), ws.AllOrigins()))
//	srv := server.New(transport, rt)
//
//	proxy := sample.NewServerProxy(srv.CreateOutboundProxy())
//	sample.NewServerStub(rt).OnPing(func(ctx context.Context, env tickwire.Envelope, msg *sample.Ping) {
//	    proxy.SendPong(env.SessionID, &sample.Pong{Timestamp: msg.Timestamp})
//	})
//
//	loop := tick.NewLoop()
//	loop.Register(srv)
//	srv.Start(ctx)
//	loop.Run(ctx, 16*time.Millisecond)
//
// # Threading
//
// Transports call EventSink methods from their own goroutines. Sessions and
// servers only enqueue those events; handlers, OnOpen, OnClose and OnError run
// inside Tick. Opcode tables are immutable and shared without locking.
//
// # Important
//
//   - Do not keep Envelope.Payload after a handler returns.
//   - A SendFunc must not retain the frame; the proxy reuses its buffer.
//   - Unknown opcodes and malformed payloads never close a connection.
package tickwire
