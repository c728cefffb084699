// Package opcode defines the opcode table contract between a protocol group
// and the runtime.
//
// A table is normally produced by a schema generator. It is built once, never
// mutated, and read concurrently without locks.
package opcode

import (
	"errors"
	"fmt"
	"sort"
)

// Message is any protocol message. The name keys outbound lookups, so it must
// be unique within a table.
type Message interface {
	MessageName() string
}

// PayloadMarshaler is implemented by messages with a schema encoding.
type PayloadMarshaler interface {
	Message
	// AppendPayload appends the encoded message to dst.
	AppendPayload(dst []byte) ([]byte, error)
}

// PayloadUnmarshaler is implemented by messages with a schema decoding.
type PayloadUnmarshaler interface {
	Message
	// UnmarshalPayload replaces the message with the decoded payload.
	// It must not retain data.
	UnmarshalPayload(data []byte) error
}

// DecodeFunc decodes one payload into a new message.
type DecodeFunc func(payload []byte) (Message, error)

// EncodeFunc appends the payload of msg to dst.
type EncodeFunc func(dst []byte, msg Message) ([]byte, error)

// Inbound describes a message this side receives.
type Inbound struct {
	Opcode int32
	Name   string
	// New returns an empty message, used by codecs that decode into a value.
	New    func() Message
	Decode DecodeFunc
}

// Outbound describes a message this side sends.
type Outbound struct {
	Opcode int32
	Name   string
	Encode EncodeFunc
}

var (
	ErrDuplicateOpcode  = errors.New("opcode: duplicate inbound opcode")
	ErrDuplicateMessage = errors.New("opcode: duplicate outbound message")
	ErrIncompleteEntry  = errors.New("opcode: incomplete entry")
)

// Table maps inbound opcodes and outbound message names for one side of a
// protocol group.
type Table struct {
	group    string
	inbound  map[int32]Inbound
	outbound map[string]Outbound
	opcodes  []int32
}

// New builds an immutable table. Entries must have a name and functions, and
// neither inbound opcodes nor outbound names may repeat.
func New(group string, inbound []Inbound, outbound []Outbound) (*Table, error) {
	t := &Table{
		group:    group,
		inbound:  make(map[int32]Inbound, len(inbound)),
		outbound: make(map[string]Outbound, len(outbound)),
		opcodes:  make([]int32, 0, len(inbound)),
	}

	for _, e := range inbound {
		if e.Name == "" || e.Decode == nil || e.New == nil {
			return nil, fmt.Errorf("%w: inbound opcode %d in %s", ErrIncompleteEntry, e.Opcode, group)
		}
		if _, dup := t.inbound[e.Opcode]; dup {
			return nil, fmt.Errorf("%w: %d in %s", ErrDuplicateOpcode, e.Opcode, group)
		}
		t.inbound[e.Opcode] = e
		t.opcodes = append(t.opcodes, e.Opcode)
	}

	for _, e := range outbound {
		if e.Name == "" || e.Encode == nil {
			return nil, fmt.Errorf("%w: outbound opcode %d in %s", ErrIncompleteEntry, e.Opcode, group)
		}
		if _, dup := t.outbound[e.Name]; dup {
			return nil, fmt.Errorf("%w: %s in %s", ErrDuplicateMessage, e.Name, group)
		}
		t.outbound[e.Name] = e
	}

	sort.Slice(t.opcodes, func(i, j int) bool { return t.opcodes[i] < t.opcodes[j] })
	return t, nil
}

// MustNew is New for generated code; it panics on an invalid table.
func MustNew(group string, inbound []Inbound, outbound []Outbound) *Table {
	t, err := New(group, inbound, outbound)
	if err != nil {
		panic(err)
	}
	return t
}

// Group returns the protocol group name.
func (t *Table) Group() string { return t.group }

// Inbound returns the entry for an inbound opcode.
func (t *Table) Inbound(opcode int32) (Inbound, bool) {
	e, ok := t.inbound[opcode]
	return e, ok
}

// Outbound returns the entry for an outbound message name.
func (t *Table) Outbound(name string) (Outbound, bool) {
	e, ok := t.outbound[name]
	return e, ok
}

// InboundName returns the message name of an inbound opcode.
func (t *Table) InboundName(opcode int32) (string, bool) {
	e, ok := t.inbound[opcode]
	return e.Name, ok
}

// InboundOpcodes returns all inbound opcodes in ascending order.
func (t *Table) InboundOpcodes() []int32 {
	return append([]int32(nil), t.opcodes...)
}

// InboundOf builds an inbound entry for a message type whose pointer
// implements PayloadUnmarshaler.
func InboundOf[T any, PT interface {
	*T
	PayloadUnmarshaler
}](opcode int32) Inbound {
	return Inbound{
		Opcode: opcode,
		Name:   PT(new(T)).MessageName(),
		New:    func() Message { return PT(new(T)) },
		Decode: func(payload []byte) (Message, error) {
			msg := PT(new(T))
			if err := msg.UnmarshalPayload(payload); err != nil {
				return nil, err
			}
			return msg, nil
		},
	}
}

// OutboundOf builds an outbound entry for a message type whose pointer
// implements PayloadMarshaler.
func OutboundOf[T any, PT interface {
	*T
	PayloadMarshaler
}](opcode int32) Outbound {
	name := PT(new(T)).MessageName()
	return Outbound{
		Opcode: opcode,
		Name:   name,
		Encode: func(dst []byte, msg Message) ([]byte, error) {
			m, ok := msg.(PT)
			if !ok {
				return dst, fmt.Errorf("opcode: %s encoder got %T", name, msg)
			}
			return m.AppendPayload(dst)
		},
	}
}
