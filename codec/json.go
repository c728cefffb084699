package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/luciancaetano/tickwire"
	"github.com/luciancaetano/tickwire/opcode"
)

// JSONName is the configuration name of the tagged JSON codec.
const JSONName = "json"

// Int64Tag is the object key that carries an integer outside the range a
// JSON number can hold exactly.
const Int64Tag = "$int64"

// maxSafeInteger is 2^53-1, the largest integer a float64 holds exactly.
const maxSafeInteger = 1<<53 - 1

// JSON encodes messages as JSON. Integers beyond ±(2^53-1) are written as
// {"$int64": "<decimal>"} so that JavaScript-style peers keep full precision.
type JSON struct {
	table *opcode.Table
}

// NewJSON creates a JSON codec. The table is used to allocate inbound messages
// in DecodeByOpcode.
func NewJSON(table *opcode.Table) *JSON {
	return &JSON{table: table}
}

func (j *JSON) Name() string { return JSONName }

func (j *JSON) Encode(dst []byte, msg opcode.Message) ([]byte, error) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return dst, errors.Wrapf(err, "codec: json encode %s", msg.MessageName())
	}

	tree, err := parseTree(raw)
	if err != nil {
		return dst, errors.Wrapf(err, "codec: json encode %s", msg.MessageName())
	}

	tagged, err := json.Marshal(tagIntegers(tree))
	if err != nil {
		return dst, errors.Wrapf(err, "codec: json encode %s", msg.MessageName())
	}
	return append(dst, tagged...), nil
}

func (j *JSON) Decode(data []byte, msg opcode.Message) error {
	if err := decodeTagged(data, msg); err != nil {
		return &tickwire.DecodeError{Name: msg.MessageName(), Opcode: -1, Err: err}
	}
	return nil
}

func (j *JSON) DecodeByOpcode(op int32, data []byte) (opcode.Message, error) {
	entry, ok := j.table.Inbound(op)
	if !ok {
		return nil, fmt.Errorf("%w: %d", tickwire.ErrUnknownOpcode, op)
	}
	msg := entry.New()
	if err := decodeTagged(data, msg); err != nil {
		return nil, &tickwire.DecodeError{Opcode: op, Name: entry.Name, Err: err}
	}
	return msg, nil
}

func decodeTagged(data []byte, v any) error {
	tree, err := parseTree(data)
	if err != nil {
		return err
	}

	untagged, err := untagIntegers(tree)
	if err != nil {
		return err
	}

	plain, err := json.Marshal(untagged)
	if err != nil {
		return errors.Wrap(err, "codec: json re-encode")
	}
	return errors.Wrap(json.Unmarshal(plain, v), "codec: json decode")
}

func parseTree(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, errors.Wrap(err, "codec: json parse")
	}
	if dec.More() {
		return nil, errors.New("codec: trailing data after json value")
	}
	return tree, nil
}

func tagIntegers(v any) any {
	switch x := v.(type) {
	case json.Number:
		if isUnsafeInteger(x) {
			return map[string]string{Int64Tag: x.String()}
		}
		return x
	case map[string]any:
		for k, e := range x {
			x[k] = tagIntegers(e)
		}
		return x
	case []any:
		for i, e := range x {
			x[i] = tagIntegers(e)
		}
		return x
	default:
		return v
	}
}

func untagIntegers(v any) (any, error) {
	switch x := v.(type) {
	case map[string]any:
		if raw, ok := x[Int64Tag]; ok && len(x) == 1 {
			s, ok := raw.(string)
			if !ok {
				return nil, fmt.Errorf("codec: %s tag must hold a string, got %T", Int64Tag, raw)
			}
			if _, err := strconv.ParseInt(s, 10, 64); err != nil {
				if _, uerr := strconv.ParseUint(s, 10, 64); uerr != nil {
					return nil, errors.Wrapf(err, "codec: invalid %s value %q", Int64Tag, s)
				}
			}
			return json.Number(s), nil
		}
		for k, e := range x {
			u, err := untagIntegers(e)
			if err != nil {
				return nil, err
			}
			x[k] = u
		}
		return x, nil
	case []any:
		for i, e := range x {
			u, err := untagIntegers(e)
			if err != nil {
				return nil, err
			}
			x[i] = u
		}
		return x, nil
	default:
		return v, nil
	}
}

// isUnsafeInteger reports whether n is an integer literal that a float64
// cannot represent exactly.
func isUnsafeInteger(n json.Number) bool {
	s := n.String()
	if strings.ContainsAny(s, ".eE") {
		return false
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i > maxSafeInteger || i < -maxSafeInteger
	}
	_, err := strconv.ParseUint(s, 10, 64)
	return err == nil
}
