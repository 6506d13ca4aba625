package wasm

import (
	"github.com/tetratelabs/wazero/api"
)

// Section ids of the binary format.
const (
	sectionType     = 0x01
	sectionImport   = 0x02
	sectionFunction = 0x03
	sectionMemory   = 0x05
	sectionExport   = 0x07
	sectionCode     = 0x0a
)

// External kinds used in import and export entries.
const (
	externFunc   = 0x00
	externMemory = 0x02
)

// Opcodes used by trampoline bodies.
const (
	opCall     = 0x10
	opLocalGet = 0x20
	opEnd      = 0x0b
)

const funcTypeTag = 0x60

// EncodeULEB128 encodes an unsigned value in LEB128 format.
func EncodeULEB128(v uint32) []byte {
	var result []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		result = append(result, b)
		if v == 0 {
			break
		}
	}
	return result
}

// DecodeULEB128 decodes an unsigned LEB128 value and returns it with the
// number of bytes read.
func DecodeULEB128(data []byte) (uint32, int) {
	var result uint32
	var shift uint32
	for i, b := range data {
		result |= uint32(b&0x7F) << shift
		if b&0x80 == 0 {
			return result, i + 1
		}
		shift += 7
		if shift > 35 {
			return result, i + 1
		}
	}
	return result, len(data)
}

// ValTypeToWasm converts a wazero value type to its binary encoding.
func ValTypeToWasm(t api.ValueType) byte {
	switch t {
	case api.ValueTypeI64:
		return 0x7e
	case api.ValueTypeF32:
		return 0x7d
	case api.ValueTypeF64:
		return 0x7c
	default:
		return 0x7f
	}
}

func appendName(out []byte, name string) []byte {
	out = append(out, EncodeULEB128(uint32(len(name)))...)
	return append(out, name...)
}

func appendSection(out []byte, id byte, body []byte) []byte {
	out = append(out, id)
	out = append(out, EncodeULEB128(uint32(len(body)))...)
	return append(out, body...)
}
