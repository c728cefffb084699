package websocket

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/luciancaetano/tickwire"
	"github.com/luciancaetano/tickwire/internal/logging"
)

// DialerConfig configures a Dialer.
type DialerConfig struct {
	// URL is the server endpoint, for example "ws://localhost:8080/ws".
	URL string
	// Header is sent with the handshake request.
	Header http.Header
	// HandshakeTimeout bounds the opening handshake (default 5s).
	HandshakeTimeout time.Duration
	// ReadLimit is the maximum inbound message size in bytes (default 1 MiB).
	ReadLimit int64
	// Timeouts sets deadlines and keepalive. Zero values use DefaultTimeouts().
	Timeouts Timeouts
	// SendQueueSize is the outbound queue length (default 256).
	SendQueueSize int
	// Logger receives connection logs. Nil discards them.
	Logger tickwire.Logger
}

// Dialer is a client-side tickwire.Connector. It holds at most one
// connection over its lifetime.
type Dialer struct {
	url    string
	header http.Header
	dialer websocket.Dialer
	cfg    connConfig

	mu         sync.Mutex
	conn       *Conn
	cancelDial context.CancelFunc
	closed     bool
}

var _ tickwire.Connector = (*Dialer)(nil)

// NewDialer creates a Dialer for cfg.URL.
func NewDialer(cfg *DialerConfig) *Dialer {
	handshake := cfg.HandshakeTimeout
	if handshake <= 0 {
		handshake = 5 * time.Second
	}
	readLimit := cfg.ReadLimit
	if readLimit <= 0 {
		readLimit = defaultReadLimit
	}
	var logger tickwire.Logger = logging.Nop()
	if cfg.Logger != nil {
		logger = cfg.Logger
	}

	return &Dialer{
		url:    cfg.URL,
		header: cfg.Header,
		dialer: websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshake,
		},
		cfg: connConfig{
			readLimit: readLimit,
			timeouts:  cfg.Timeouts,
			queueSize: cfg.SendQueueSize,
			logger:    logger,
		},
	}
}

// Connect dials the server. On success it reports OnConnect and starts the
// pumps; on failure no event is reported. Close during Connect aborts the dial.
func (d *Dialer) Connect(ctx context.Context, sessionID int64, events tickwire.EventSink) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return tickwire.ErrConnectionClosed
	}
	if d.conn != nil || d.cancelDial != nil {
		d.mu.Unlock()
		return tickwire.ErrAlreadyRunning
	}
	dialCtx, cancel := context.WithCancel(ctx)
	d.cancelDial = cancel
	d.mu.Unlock()

	ws, _, err := d.dialer.DialContext(dialCtx, d.url, d.header)
	cancel()

	d.mu.Lock()
	d.cancelDial = nil
	if err != nil {
		d.mu.Unlock()
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return fmt.Errorf("websocket: dial %s: %w", d.url, err)
	}
	if d.closed {
		d.mu.Unlock()
		_ = ws.Close()
		return tickwire.ErrConnectionClosed
	}
	c := newConn(sessionID, ws, d.url, d.cfg)
	d.conn = c
	d.mu.Unlock()

	d.cfg.logger.Debug("websocket connected", "url", d.url, "session", sessionID, "trace_id", c.TraceID())

	go c.run(events, nil)
	return nil
}

// Send queues one frame.
func (d *Dialer) Send(data []byte) error {
	d.mu.Lock()
	c := d.conn
	d.mu.Unlock()

	if c == nil {
		return tickwire.ErrNotConnected
	}
	return c.Send(data)
}

// Close sends a close frame, or aborts a dial in progress.
func (d *Dialer) Close(_ context.Context, code int, reason string) error {
	d.mu.Lock()
	d.closed = true
	if d.cancelDial != nil {
		d.cancelDial()
	}
	c := d.conn
	d.mu.Unlock()

	if c == nil {
		return nil
	}
	return c.CloseWithCode(code, reason)
}
