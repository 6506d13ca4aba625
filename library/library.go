package library

import (
	"maps"
	"math"
	"unicode/utf8"

	"github.com/wippyai/ffi-boundary/record"
	"github.com/wippyai/ffi-boundary/transcoder"
)

func BoolInc(v bool) bool { return !v }

func I8Inc(v int8) int8 { return v + 1 }
func I16Inc(v int16) int16 { return v + 1 }
func I32Inc(v int32) int32 { return v + 1 }
func I64Inc(v int64) int64 { return v + 1 }
func U8Inc(v uint8) uint8 { return v + 1 }
func U16Inc(v uint16) uint16 { return v + 1 }
func U32Inc(v uint32) uint32 { return v + 1 }
func U64Inc(v uint64) uint64 { return v + 1 }
func FloatInc(v float32) float32 { return v + 1 }
func DoubleInc(v float64) float64 { return v + 1 }

// StringInc returns s twice.
func StringInc(s string) string { return s + s }

// ByRefInc adds 1 to x and then to y of the shared point. Every holder
// of the point observes the change.
func ByRefInc(p *record.Point) {
	p.Translate(1, 1)
}

// PointInc returns a copy of p with both coordinates incremented.
func PointInc(p record.PointValue) record.PointValue {
	return record.PointValue{X: p.X + 1, Y: p.Y + 1}
}

// OptionalInc increments a present value and leaves absence alone.
func OptionalInc(v transcoder.Option[int32]) transcoder.Option[int32] {
	if !v.Present {
		return v
	}
	return transcoder.Some(v.Value + 1)
}

// VectorInc returns l followed by l.
func VectorInc(l []string) []string {
	out := make([]string, 0, 2*len(l))
	out = append(out, l...)
	return append(out, l...)
}

// HashMapInc returns a copy of m with "zero" set to 0.
func HashMapInc(m map[string]int32) map[string]int32 {
	out := make(map[string]int32, len(m)+1)
	maps.Copy(out, m)
	out["zero"] = 0
	return out
}

// VoidInc accepts a value and returns nothing.
func VoidInc(int32) {}

// CheckedAdd returns a+b or an ArithmeticError when the sum overflows.
func CheckedAdd(a, b uint64) (uint64, error) {
	if a > math.MaxUint64-b {
		return 0, ArithmeticError[uint64]{Kind: IntegerOverflow, A: a, B: b}
	}
	return a + b, nil
}

// CheckedAddSigned is CheckedAdd for s32 operands.
func CheckedAddSigned(a, b int32) (int32, error) {
	if (b > 0 && a > math.MaxInt32-b) || (b < 0 && a < math.MinInt32-b) {
		return 0, ArithmeticError[int32]{Kind: IntegerOverflow, A: a, B: b}
	}
	return a + b, nil
}

// ErrorInc is CheckedAdd in boundary form.
func ErrorInc(a, b uint64) transcoder.Result[uint64, ArithmeticError[uint64]] {
	sum, err := CheckedAdd(a, b)
	if err != nil {
		return transcoder.Fail[uint64](err.(ArithmeticError[uint64]))
	}
	return transcoder.Ok[uint64, ArithmeticError[uint64]](sum)
}

// ErrorIncSigned is CheckedAddSigned in boundary form.
func ErrorIncSigned(a, b int32) transcoder.Result[int32, ArithmeticError[int32]] {
	sum, err := CheckedAddSigned(a, b)
	if err != nil {
		return transcoder.Fail[int32](err.(ArithmeticError[int32]))
	}
	return transcoder.Ok[int32, ArithmeticError[int32]](sum)
}

// CountCharacters returns the number of Unicode scalar values in s.
func CountCharacters(s string) uint32 {
	return uint32(utf8.RuneCountInString(s))
}
