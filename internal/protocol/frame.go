package protocol

import "encoding/binary"

// HeaderSize is the length of the opcode header. A frame has no length prefix.
const HeaderSize = 4

// Frame is one wire message: an opcode and its payload.
type Frame struct {
	Opcode  int32
	Payload []byte
}

// Pack writes the opcode as the first 4 bytes (little-endian) followed by a copy of the payload.
// The opcode range is not checked.
func Pack(opcode int32, payload []byte) []byte {
	out := make([]byte, HeaderSize+len(payload))
	PutOpcode(out, opcode)
	copy(out[HeaderSize:], payload)
	return out
}

// Unpack splits data into opcode and payload. It reports false when data is
// shorter than the header; that input is not a frame.
// The payload slice references data - do not modify it.
func Unpack(data []byte) (Frame, bool) {
	if len(data) < HeaderSize {
		return Frame{}, false
	}

	return Frame{
		Opcode:  int32(binary.LittleEndian.Uint32(data[:HeaderSize])),
		Payload: data[HeaderSize:],
	}, true
}

// AppendHeader appends the opcode header to dst so a payload can be encoded
// directly after it.
func AppendHeader(dst []byte, opcode int32) []byte {
	return binary.LittleEndian.AppendUint32(dst, uint32(opcode))
}

// PutOpcode writes opcode into the first 4 bytes of b. It panics if b is shorter than HeaderSize.
func PutOpcode(b []byte, opcode int32) {
	binary.LittleEndian.PutUint32(b[:HeaderSize], uint32(opcode))
}
