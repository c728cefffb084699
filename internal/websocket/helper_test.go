package websocket

import (
	"context"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type sinkEvent struct {
	kind   string
	id     int64
	code   int
	reason string
	data   []byte
	err    error
}

// chanSink records transport events on a channel.
type chanSink struct {
	ch chan sinkEvent
}

func newChanSink() *chanSink {
	return &chanSink{ch: make(chan sinkEvent, 64)}
}

func (s *chanSink) OnConnect(id int64) {
	s.ch <- sinkEvent{kind: "connect", id: id}
}

func (s *chanSink) OnDisconnect(id int64, code int, reason string) {
	s.ch <- sinkEvent{kind: "disconnect", id: id, code: code, reason: reason}
}

func (s *chanSink) OnBinaryMessage(id int64, data []byte) {
	s.ch <- sinkEvent{kind: "message", id: id, data: data}
}

func (s *chanSink) OnError(id int64, err error) {
	s.ch <- sinkEvent{kind: "error", id: id, err: err}
}

// next waits for the next event of the given kind, skipping others.
func (s *chanSink) next(t *testing.T, kind string) sinkEvent {
	t.Helper()

	timeout := time.After(5 * time.Second)
	for {
		select {
		case e := <-s.ch:
			if e.kind == kind {
				return e
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s event", kind)
			return sinkEvent{}
		}
	}
}

// startServer starts a Server on a random loopback port.
func startServer(t *testing.T, cfg *ServerConfig) (*Server, *chanSink) {
	t.Helper()

	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:0"
	}
	server := New(cfg)
	sink := newChanSink()

	if err := server.Start(context.Background(), sink); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Stop(stopCtx)
	})

	return server, sink
}

func wsURL(s *Server) string {
	return "ws://" + s.Addr() + s.Path()
}

// Helper function to create a WebSocket dialer
func newDialer() *websocket.Dialer {
	return &websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}
}
