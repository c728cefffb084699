package codec

import (
	"fmt"

	"github.com/luciancaetano/tickwire"
	"github.com/luciancaetano/tickwire/opcode"
)

// SchemaName is the configuration name of the schema codec.
const SchemaName = "schema"

// Schema delegates to the encode and decode functions of an opcode table.
// It appends into the caller's buffer and allocates nothing of its own.
type Schema struct {
	table *opcode.Table
}

// NewSchema creates a schema codec over table.
func NewSchema(table *opcode.Table) *Schema {
	return &Schema{table: table}
}

func (s *Schema) Name() string { return SchemaName }

func (s *Schema) Encode(dst []byte, msg opcode.Message) ([]byte, error) {
	entry, ok := s.table.Outbound(msg.MessageName())
	if !ok {
		return dst, fmt.Errorf("%w: %s", tickwire.ErrUnknownMessage, msg.MessageName())
	}
	return entry.Encode(dst, msg)
}

func (s *Schema) Decode(data []byte, msg opcode.Message) error {
	u, ok := msg.(opcode.PayloadUnmarshaler)
	if !ok {
		return fmt.Errorf("codec: %T has no schema decoding", msg)
	}
	if err := u.UnmarshalPayload(data); err != nil {
		return &tickwire.DecodeError{Name: msg.MessageName(), Opcode: -1, Err: err}
	}
	return nil
}

func (s *Schema) DecodeByOpcode(op int32, data []byte) (opcode.Message, error) {
	entry, ok := s.table.Inbound(op)
	if !ok {
		return nil, fmt.Errorf("%w: %d", tickwire.ErrUnknownOpcode, op)
	}
	msg, err := entry.Decode(data)
	if err != nil {
		return nil, &tickwire.DecodeError{Opcode: op, Name: entry.Name, Err: err}
	}
	return msg, nil
}
