// Package sample is the Sample protocol group: a ping and echo exchange used
// by the CLI and by tests.
//
// The group has two directions. C2Sample carries client to server messages
// (Ping, Echo) and Sample2C carries server to client messages (Pong,
// EchoReply). Payloads use the protobuf wire format.
//
// This package has the shape a schema generator produces for a group:
// message types, opcode constants, one table per side, typed stubs and
// typed proxies.
package sample

import (
	"google.golang.org/protobuf/encoding/protowire"
)

// C2Sample opcodes.
const (
	OpPing int32 = 1
	OpEcho int32 = 2
)

// Sample2C opcodes.
const (
	OpPong      int32 = 1
	OpEchoReply int32 = 2
)

// Ping asks the server for a Pong carrying the same timestamp.
type Ping struct {
	Timestamp int64  `json:"timestamp"`
	Payload   string `json:"payload,omitempty"`
}

// Echo asks the server to send Message back.
type Echo struct {
	Message string `json:"message"`
}

// Pong answers a Ping.
type Pong struct {
	Timestamp  int64 `json:"timestamp"`
	ServerTime int64 `json:"serverTime"`
}

// EchoReply answers an Echo.
type EchoReply struct {
	Message string `json:"message"`
}

func (*Ping) MessageName() string      { return "Ping" }
func (*Echo) MessageName() string      { return "Echo" }
func (*Pong) MessageName() string      { return "Pong" }
func (*EchoReply) MessageName() string { return "EchoReply" }

func (m *Ping) AppendPayload(b []byte) ([]byte, error) {
	b = appendInt64(b, 1, m.Timestamp)
	b = appendString(b, 2, m.Payload)
	return b, nil
}

func (m *Ping) UnmarshalPayload(b []byte) error {
	*m = Ping{}
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.VarintType:
			return consumeInt64(b, &m.Timestamp)
		case num == 2 && typ == protowire.BytesType:
			return consumeString(b, &m.Payload)
		}
		return skipField(num, typ, b)
	})
}

func (m *Echo) AppendPayload(b []byte) ([]byte, error) {
	return appendString(b, 1, m.Message), nil
}

func (m *Echo) UnmarshalPayload(b []byte) error {
	*m = Echo{}
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == 1 && typ == protowire.BytesType {
			return consumeString(b, &m.Message)
		}
		return skipField(num, typ, b)
	})
}

func (m *Pong) AppendPayload(b []byte) ([]byte, error) {
	b = appendInt64(b, 1, m.Timestamp)
	b = appendInt64(b, 2, m.ServerTime)
	return b, nil
}

func (m *Pong) UnmarshalPayload(b []byte) error {
	*m = Pong{}
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.VarintType:
			return consumeInt64(b, &m.Timestamp)
		case num == 2 && typ == protowire.VarintType:
			return consumeInt64(b, &m.ServerTime)
		}
		return skipField(num, typ, b)
	})
}

func (m *EchoReply) AppendPayload(b []byte) ([]byte, error) {
	return appendString(b, 1, m.Message), nil
}

func (m *EchoReply) UnmarshalPayload(b []byte) error {
	*m = EchoReply{}
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == 1 && typ == protowire.BytesType {
			return consumeString(b, &m.Message)
		}
		return skipField(num, typ, b)
	})
}

// Zero values are omitted, as in proto3.

func appendInt64(b []byte, num protowire.Number, v int64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(v))
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

// consumeFields walks the fields of b. field returns how many bytes of the
// field value it consumed.
func consumeFields(b []byte, field func(num protowire.Number, typ protowire.Type, b []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		n, err := field(num, typ, b)
		if err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

func consumeInt64(b []byte, v *int64) (int, error) {
	x, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	*v = int64(x)
	return n, nil
}

func consumeString(b []byte, v *string) (int, error) {
	s, n := protowire.ConsumeString(b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	*v = s
	return n, nil
}

func skipField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	n := protowire.ConsumeFieldValue(num, typ, b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	return n, nil
}
