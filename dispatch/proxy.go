package dispatch

import (
	"errors"
	"fmt"

	"github.com/luciancaetano/tickwire"
	"github.com/luciancaetano/tickwire/codec"
	"github.com/luciancaetano/tickwire/internal/bufpool"
	"github.com/luciancaetano/tickwire/internal/protocol"
	"github.com/luciancaetano/tickwire/metrics"
	"github.com/luciancaetano/tickwire/opcode"
)

// Proxy frames outbound messages and hands them to a SendFunc.
//
// It keeps no state between calls other than the pooled encode buffer, and it
// never retries or queues. A Proxy is safe for concurrent use.
type Proxy struct {
	table   *opcode.Table
	codec   codec.Codec
	pool    *bufpool.Pool
	send    tickwire.SendFunc
	metrics *metrics.Collector
}

// Send encodes msg, frames it with its opcode and passes the frame to the
// send function. Errors from the send function are returned unchanged.
func (p *Proxy) Send(sessionID int64, msg opcode.Message) error {
	return p.withFrame(msg, func(name string, frame []byte) error {
		if err := p.send(sessionID, frame); err != nil {
			p.metrics.SendError()
			return err
		}
		p.metrics.OutboundMessage(name)
		return nil
	})
}

// SendMany encodes msg once and sends the frame to every session. It keeps
// going after a failed send and returns the joined errors.
func (p *Proxy) SendMany(sessionIDs []int64, msg opcode.Message) error {
	return p.withFrame(msg, func(name string, frame []byte) error {
		var errs []error
		for _, id := range sessionIDs {
			if err := p.send(id, frame); err != nil {
				p.metrics.SendError()
				errs = append(errs, fmt.Errorf("session %d: %w", id, err))
				continue
			}
			p.metrics.OutboundMessage(name)
		}
		return errors.Join(errs...)
	})
}

// Frame returns the framed bytes of msg in a new slice.
func (p *Proxy) Frame(msg opcode.Message) ([]byte, error) {
	var out []byte
	err := p.withFrame(msg, func(_ string, frame []byte) error {
		out = append([]byte(nil), frame...)
		return nil
	})
	return out, err
}

// withFrame encodes msg into a pooled buffer and calls fn with the frame.
// The frame is only valid during fn.
func (p *Proxy) withFrame(msg opcode.Message, fn func(name string, frame []byte) error) error {
	entry, ok := p.table.Outbound(msg.MessageName())
	if !ok {
		p.metrics.SendError()
		return fmt.Errorf("%w: %s", tickwire.ErrUnknownMessage, msg.MessageName())
	}

	return p.pool.With(func(b *bufpool.Buffer) error {
		b.B = protocol.AppendHeader(b.B, entry.Opcode)

		var err error
		b.B, err = p.codec.Encode(b.B, msg)
		if err != nil {
			p.metrics.SendError()
			return err
		}
		return fn(entry.Name, b.B)
	})
}
