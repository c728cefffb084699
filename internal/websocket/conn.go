package websocket

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/luciancaetano/tickwire"
)

// ErrSendQueueFull is returned by Send when the write pump is not keeping up.
var ErrSendQueueFull = errors.New("websocket: send queue full")

// Timeouts controls deadlines and keepalive of a connection.
type Timeouts struct {
	// WriteWait is the time allowed to write one message.
	WriteWait time.Duration
	// PongWait is the time allowed between two reads (pongs included).
	PongWait time.Duration
	// PingPeriod must be shorter than PongWait.
	PingPeriod time.Duration
}

// DefaultTimeouts returns 10s writes, 60s pong wait and 54s pings.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		WriteWait:  10 * time.Second,
		PongWait:   60 * time.Second,
		PingPeriod: 54 * time.Second,
	}
}

func (t Timeouts) withDefaults() Timeouts {
	d := DefaultTimeouts()
	if t.WriteWait <= 0 {
		t.WriteWait = d.WriteWait
	}
	if t.PongWait <= 0 {
		t.PongWait = d.PongWait
	}
	if t.PingPeriod <= 0 || t.PingPeriod >= t.PongWait {
		t.PingPeriod = t.PongWait * 9 / 10
	}
	return t
}

const defaultSendQueueSize = 256

// Conn is one WebSocket connection, used by both the server and the dialer.
// A read pump and a write pump run under one errgroup; the connection ends
// when either of them stops.
type Conn struct {
	id         int64
	traceID    string
	ws         *websocket.Conn
	remoteAddr string
	ctx        context.Context
	cancel     context.CancelFunc
	sendCh     chan []byte
	limiter    *rate.Limiter
	readLimit  int64
	timeouts   Timeouts
	logger     tickwire.Logger

	mu          sync.RWMutex
	closed      bool
	closeCode   int
	closeReason string
}

type connConfig struct {
	limiter   *rate.Limiter
	readLimit int64
	timeouts  Timeouts
	queueSize int
	logger    tickwire.Logger
}

func newConn(id int64, ws *websocket.Conn, remoteAddr string, cfg connConfig) *Conn {
	ctx, cancel := context.WithCancel(context.Background())
	if cfg.queueSize <= 0 {
		cfg.queueSize = defaultSendQueueSize
	}

	return &Conn{
		id:         id,
		traceID:    uuid.New().String(),
		ws:         ws,
		remoteAddr: remoteAddr,
		ctx:        ctx,
		cancel:     cancel,
		sendCh:     make(chan []byte, cfg.queueSize),
		limiter:    cfg.limiter,
		readLimit:  cfg.readLimit,
		timeouts:   cfg.timeouts.withDefaults(),
		logger:     cfg.logger,
	}
}

// ID returns the session id of the connection.
func (c *Conn) ID() int64 { return c.id }

// TraceID returns a unique id for correlating logs of this connection.
func (c *Conn) TraceID() string { return c.traceID }

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() string { return c.remoteAddr }

// Context is cancelled when the connection closes.
func (c *Conn) Context() context.Context { return c.ctx }

// IsAlive reports whether the connection has not been closed locally.
func (c *Conn) IsAlive() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.closed
}

// Send queues a copy of data as one binary message. It never blocks.
func (c *Conn) Send(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return tickwire.ErrConnectionClosed
	}

	msg := append([]byte(nil), data...)
	select {
	case c.sendCh <- msg:
		return nil
	default:
		return fmt.Errorf("%w: session %d", ErrSendQueueFull, c.id)
	}
}

// CloseWithCode sends a close frame and closes the connection. Closing twice
// is a no-op.
func (c *Conn) CloseWithCode(code int, reason string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.closeCode = code
	c.closeReason = reason
	c.mu.Unlock()

	message := websocket.FormatCloseMessage(code, reason)
	_ = c.ws.WriteControl(websocket.CloseMessage, message, time.Now().Add(c.timeouts.WriteWait))

	c.cancel()
	_ = c.ws.Close()
	return nil
}

// allow checks the inbound rate limit.
func (c *Conn) allow() bool {
	if c.limiter == nil {
		return true
	}
	return c.limiter.Allow()
}

// run reports OnConnect, pumps until the connection ends, then calls done and
// reports OnDisconnect exactly once.
func (c *Conn) run(events tickwire.EventSink, done func()) {
	events.OnConnect(c.id)

	g, gctx := errgroup.WithContext(c.ctx)
	g.Go(func() error { return c.readPump(events) })
	g.Go(func() error { return c.writePump(gctx) })
	err := g.Wait()

	c.cancel()
	_ = c.ws.Close()

	code, reason, unexpected := c.disconnectReason(err)
	if unexpected {
		events.OnError(c.id, err)
	}
	if done != nil {
		done()
	}
	c.logger.Debug("websocket connection ended", "session", c.id, "trace_id", c.traceID, "code", code, "reason", reason)
	events.OnDisconnect(c.id, code, reason)
}

func (c *Conn) disconnectReason(err error) (code int, reason string, unexpected bool) {
	c.mu.RLock()
	closedLocally, localCode, localReason := c.closed, c.closeCode, c.closeReason
	c.mu.RUnlock()

	if errors.Is(err, tickwire.ErrRateLimited) {
		return localCode, localReason, true
	}
	if closedLocally {
		return localCode, localReason, false
	}

	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		if ce.Code == websocket.CloseAbnormalClosure {
			return tickwire.CloseAbnormal, ce.Text, true
		}
		return ce.Code, ce.Text, false
	}
	if err == nil {
		return tickwire.CloseAbnormal, "", false
	}
	return tickwire.CloseAbnormal, err.Error(), true
}

func (c *Conn) readPump(events tickwire.EventSink) error {
	if c.readLimit > 0 {
		c.ws.SetReadLimit(c.readLimit)
	}
	_ = c.ws.SetReadDeadline(time.Now().Add(c.timeouts.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.timeouts.PongWait))
	})

	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			return err
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(c.timeouts.PongWait))

		if !c.allow() {
			c.logger.Warn("rate limit exceeded", "session", c.id, "trace_id", c.traceID, "remote_addr", c.remoteAddr)
			_ = c.CloseWithCode(tickwire.ClosePolicyViolation, "rate limit exceeded")
			return fmt.Errorf("%w: session %d", tickwire.ErrRateLimited, c.id)
		}

		if messageType != websocket.BinaryMessage {
			c.logger.Debug("dropping non-binary message", "session", c.id, "type", messageType)
			continue
		}

		events.OnBinaryMessage(c.id, data)
	}
}

func (c *Conn) writePump(ctx context.Context) error {
	ticker := time.NewTicker(c.timeouts.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case message := <-c.sendCh:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.timeouts.WriteWait))
			if err := c.ws.WriteMessage(websocket.BinaryMessage, message); err != nil {
				return err
			}

		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.timeouts.WriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}

		case <-ctx.Done():
			return nil
		}
	}
}
