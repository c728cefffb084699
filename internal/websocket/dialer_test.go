package websocket

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/luciancaetano/tickwire"
)

func TestDialerRoundTrip(t *testing.T) {
	t.Parallel()

	server, serverSink := startServer(t, &ServerConfig{})

	dialer := NewDialer(&DialerConfig{URL: wsURL(server)})
	clientSink := newChanSink()

	if err := dialer.Connect(context.Background(), 0, clientSink); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if e := clientSink.next(t, "connect"); e.id != 0 {
		t.Errorf("client connect id = %d, want 0", e.id)
	}
	sessionID := serverSink.next(t, "connect").id

	frame := []byte{0x01, 0x00, 0x00, 0x00, 0x08, 0xE8, 0x07}
	if err := dialer.Send(frame); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if got := serverSink.next(t, "message"); !bytes.Equal(got.data, frame) {
		t.Errorf("server got % x, want % x", got.data, frame)
	}

	reply := []byte{0x01, 0x00, 0x00, 0x00, 0x10, 0x01}
	if err := server.Send(sessionID, reply); err != nil {
		t.Fatalf("server Send() error = %v", err)
	}
	if got := clientSink.next(t, "message"); !bytes.Equal(got.data, reply) {
		t.Errorf("client got % x, want % x", got.data, reply)
	}

	if err := dialer.Close(context.Background(), tickwire.CloseNormal, "done"); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if d := clientSink.next(t, "disconnect"); d.code != tickwire.CloseNormal {
		t.Errorf("client disconnect code = %d, want 1000", d.code)
	}
	if d := serverSink.next(t, "disconnect"); d.code != tickwire.CloseNormal || d.reason != "done" {
		t.Errorf("server disconnect = %d %q, want 1000 done", d.code, d.reason)
	}

	if err := dialer.Send(frame); !errors.Is(err, tickwire.ErrConnectionClosed) {
		t.Errorf("Send() after Close error = %v, want ErrConnectionClosed", err)
	}
	if err := dialer.Connect(context.Background(), 0, clientSink); !errors.Is(err, tickwire.ErrConnectionClosed) {
		t.Errorf("Connect() after Close error = %v, want ErrConnectionClosed", err)
	}
}

func TestDialerServerGoingAway(t *testing.T) {
	t.Parallel()

	server := New(&ServerConfig{Addr: "127.0.0.1:0"})
	serverSink := newChanSink()
	if err := server.Start(context.Background(), serverSink); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	dialer := NewDialer(&DialerConfig{URL: wsURL(server)})
	clientSink := newChanSink()
	if err := dialer.Connect(context.Background(), 3, clientSink); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	serverSink.next(t, "connect")

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Stop(stopCtx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	d := clientSink.next(t, "disconnect")
	if d.id != 3 || d.code != tickwire.CloseGoingAway {
		t.Errorf("client disconnect = %+v, want session 3 code 1001", d)
	}
}

func TestDialerConnectFailure(t *testing.T) {
	t.Parallel()

	// Bind and stop a server to get an address nothing listens on.
	server := New(&ServerConfig{Addr: "127.0.0.1:0"})
	if err := server.Start(context.Background(), newChanSink()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	url := wsURL(server)
	_ = server.Stop(context.Background())

	dialer := NewDialer(&DialerConfig{URL: url, HandshakeTimeout: time.Second})
	sink := newChanSink()

	if err := dialer.Connect(context.Background(), 0, sink); err == nil {
		t.Fatal("Connect() to a closed port should fail")
	}
	select {
	case e := <-sink.ch:
		t.Errorf("failed connect reported %s event", e.kind)
	case <-time.After(50 * time.Millisecond):
	}

	if err := dialer.Send([]byte{0, 0, 0, 0}); !errors.Is(err, tickwire.ErrNotConnected) {
		t.Errorf("Send() without connection error = %v, want ErrNotConnected", err)
	}
}

func TestDialerConnectCancelled(t *testing.T) {
	t.Parallel()

	server, _ := startServer(t, &ServerConfig{})
	dialer := NewDialer(&DialerConfig{URL: wsURL(server)})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := dialer.Connect(ctx, 0, newChanSink()); !errors.Is(err, context.Canceled) {
		t.Errorf("Connect() error = %v, want context.Canceled", err)
	}
}
