package abi

import (
	"math"
	"reflect"
)

func SafeMulU32(a, b uint32) (uint32, bool) {
	if b != 0 && a > math.MaxUint32/b {
		return 0, false
	}
	return a * b, true
}

func SafeAddU32(a, b uint32) (uint32, bool) {
	if a > math.MaxUint32-b {
		return 0, false
	}
	return a + b, true
}

// TypeName returns "nil" for nil values, avoiding reflect.TypeOf(nil) panic.
func TypeName(value any) string {
	if value == nil {
		return "nil"
	}
	return reflect.TypeOf(value).String()
}

func AlignTo(offset, align uint32) uint32 {
	if align == 0 {
		return offset
	}
	return (offset + align - 1) &^ (align - 1)
}

const (
	CanonicalNaN32 = 0x7fc00000
	CanonicalNaN64 = 0x7ff8000000000000
)

const (
	MaxStringSize = 1 << 30
	MaxListLength = 1 << 27
	MaxAlloc      = 1 << 30
)

// CanonicalizeF32 maps every NaN payload onto the canonical quiet NaN.
func CanonicalizeF32(bits uint32) uint32 {
	if math.IsNaN(float64(math.Float32frombits(bits))) {
		return CanonicalNaN32
	}
	return bits
}

// CanonicalizeF64 maps every NaN payload onto the canonical quiet NaN.
func CanonicalizeF64(bits uint64) uint64 {
	if math.IsNaN(math.Float64frombits(bits)) {
		return CanonicalNaN64
	}
	return bits
}

// DiscriminantSize: 1 byte for <=256 cases, 2 for <=65536, else 4.
func DiscriminantSize(numCases int) uint32 {
	if numCases <= 256 {
		return 1
	} else if numCases <= 65536 {
		return 2
	}
	return 4
}
