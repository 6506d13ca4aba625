package transcoder

import "reflect"

// Result is a discriminated success-or-failure value. Exactly one of OK and
// Err is meaningful, selected by IsErr.
type Result[T, E any] struct {
	OK    T
	Err   E
	IsErr bool
}

func Ok[T, E any](v T) Result[T, E] {
	return Result[T, E]{OK: v}
}

func Fail[T, E any](e E) Result[T, E] {
	return Result[T, E]{Err: e, IsErr: true}
}

func (r Result[T, E]) IsOk() bool {
	return !r.IsErr
}

// Get returns the success value and true, or the error payload and false.
func (r Result[T, E]) Get() (T, E, bool) {
	return r.OK, r.Err, !r.IsErr
}

func (Result[T, E]) isResult() {}

type resultCarrier interface{ isResult() }

var resultCarrierType = reflect.TypeOf((*resultCarrier)(nil)).Elem()

// Field positions inside Result.
const (
	resultOKField    = 0
	resultErrField   = 1
	resultIsErrField = 2
)

// IsResult reports whether t is a Result carrier type.
func IsResult(t reflect.Type) bool {
	return t.Kind() == reflect.Struct && t.Implements(resultCarrierType)
}

// ResultTypes returns the success and error payload types of a Result
// carrier.
func ResultTypes(t reflect.Type) (ok, err reflect.Type) {
	return t.Field(resultOKField).Type, t.Field(resultErrField).Type
}
