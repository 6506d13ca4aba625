package library

import (
	"fmt"

	"github.com/wippyai/ffi-boundary/errors"
)

// ArithmeticErrorKind enumerates arithmetic failures.
type ArithmeticErrorKind uint8

const (
	IntegerOverflow ArithmeticErrorKind = iota
)

// EnumCases lists the boundary names of the kinds in order.
func (ArithmeticErrorKind) EnumCases() []string {
	return []string{"integer-overflow"}
}

func (k ArithmeticErrorKind) String() string {
	if k == IntegerOverflow {
		return "integer-overflow"
	}
	return fmt.Sprintf("arithmetic-error-kind(%d)", uint8(k))
}

// ArithmeticError reports a failed checked operation together with its
// operands.
type ArithmeticError[T uint64 | int32] struct {
	Kind ArithmeticErrorKind
	A    T
	B    T
}

func (e ArithmeticError[T]) Error() string {
	return fmt.Sprintf("integer overflow on an operation with %d and %d", e.A, e.B)
}

// Unwrap exposes the structured overflow error so errors.Is matches
// the overflow kind.
func (e ArithmeticError[T]) Unwrap() error {
	return errors.IntegerOverflow(errors.PhaseCall, e.A, e.B)
}
