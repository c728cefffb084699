// Package codec turns protocol messages into payload bytes and back.
//
// Two codecs satisfy the same contract: Schema, the production path driven by
// the opcode table, and JSON, a debugging and interop fallback that carries
// 64-bit integers without precision loss.
package codec

import (
	"fmt"

	"github.com/luciancaetano/tickwire/opcode"
)

// Codec encodes and decodes payloads for one protocol group.
//
// Implementations are safe for concurrent use. Decode and DecodeByOpcode must
// not retain data.
type Codec interface {
	// Name identifies the codec in logs and configuration.
	Name() string

	// Encode appends the payload of msg to dst and returns the extended slice.
	Encode(dst []byte, msg opcode.Message) ([]byte, error)

	// Decode fills msg from data.
	Decode(data []byte, msg opcode.Message) error

	// DecodeByOpcode decodes data as the inbound message registered for opcode.
	// It returns tickwire.ErrUnknownOpcode or a *tickwire.DecodeError on failure.
	DecodeByOpcode(opcode int32, data []byte) (opcode.Message, error)
}

// Decode decodes data into a new *T.
func Decode[T any, PT interface {
	*T
	opcode.Message
}](c Codec, data []byte) (*T, error) {
	msg := PT(new(T))
	if err := c.Decode(data, msg); err != nil {
		return nil, err
	}
	return (*T)(msg), nil
}

// ByName returns the codec registered under name for table.
func ByName(name string, table *opcode.Table) (Codec, error) {
	switch name {
	case "", SchemaName:
		return NewSchema(table), nil
	case JSONName:
		return NewJSON(table), nil
	default:
		return nil, fmt.Errorf("codec: unknown codec %q", name)
	}
}

// Encode encodes msg into a new slice.
func Encode(c Codec, msg opcode.Message) ([]byte, error) {
	return c.Encode(nil, msg)
}
