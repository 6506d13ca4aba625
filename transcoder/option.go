package transcoder

import "reflect"

// Option carries a value that may be absent. Absence is an explicit flag,
// never an in-band sentinel.
type Option[T any] struct {
	Value   T
	Present bool
}

func Some[T any](v T) Option[T] {
	return Option[T]{Value: v, Present: true}
}

func None[T any]() Option[T] {
	return Option[T]{}
}

// Get returns the value and whether it is present.
func (o Option[T]) Get() (T, bool) {
	return o.Value, o.Present
}

// Or returns the value, or def when absent.
func (o Option[T]) Or(def T) T {
	if o.Present {
		return o.Value
	}
	return def
}

func (Option[T]) isOption() {}

type optionCarrier interface{ isOption() }

var optionCarrierType = reflect.TypeOf((*optionCarrier)(nil)).Elem()

// Field positions inside Option.
const (
	optionValueField   = 0
	optionPresentField = 1
)

// IsOption reports whether t is an Option carrier type.
func IsOption(t reflect.Type) bool {
	return t.Kind() == reflect.Struct && t.Implements(optionCarrierType)
}

// OptionElem returns the payload type of an Option carrier.
func OptionElem(t reflect.Type) reflect.Type {
	return t.Field(optionValueField).Type
}
