package wasm

import "bytes"

// LEB128 encoding utilities for WebAssembly binary format

// WriteLEB128u writes an unsigned LEB128 value
func WriteLEB128u(w *bytes.Buffer, v uint32) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		w.WriteByte(b)
		if v == 0 {
			break
		}
	}
}

// WriteLEB128s writes a signed LEB128 value
func WriteLEB128s(w *bytes.Buffer, v int32) {
	more := true
	for more {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			more = false
		} else {
			b |= 0x80
		}
		w.WriteByte(b)
	}
}

// EncodeLEB128u encodes an unsigned 32-bit LEB128 value to bytes.
func EncodeLEB128u(v uint32) []byte {
	var buf bytes.Buffer
	WriteLEB128u(&buf, v)
	return buf.Bytes()
}

// EncodeLEB128s encodes a signed 32-bit LEB128 value to bytes.
func EncodeLEB128s(v int32) []byte {
	var buf bytes.Buffer
	WriteLEB128s(&buf, v)
	return buf.Bytes()
}
