package types

import (
	"reflect"

	"github.com/wippyai/ffi-boundary/transcoder/internal/abi"
)

// Repr is how a Go value carries a WIT shape.
type Repr uint8

const (
	// ReprDirect: the Go kind mirrors the WIT kind.
	ReprDirect Repr = iota
	// ReprMap: list<tuple<K, V>> carried by a Go map.
	ReprMap
	// ReprPointer: option<T> carried by *T, nil meaning absent.
	ReprPointer
	// ReprCarrier: option or result carried by the package's generic structs.
	ReprCarrier
	// ReprRawHandle: own/borrow carried as the uint32 handle itself.
	ReprRawHandle
	// ReprObject: own/borrow carried as the Go object the handle refers to.
	ReprObject
)

type CompiledType struct {
	GoType   reflect.Type
	Elem     *CompiledType
	Ok       *CompiledType
	Err      *CompiledType
	Fields   []Field
	Flat     []abi.FlatType
	Resource string
	Cases    int
	WitSize  uint32
	WitAlign uint32
	// PayloadOff is the payload offset of options and results.
	PayloadOff uint32
	Kind       Kind
	Repr       Repr
}

type Field struct {
	Type      *CompiledType
	Name      string
	WitName   string
	GoIndex   int
	WitOffset uint32
}

func (ct *CompiledType) FlatCount() int {
	return len(ct.Flat)
}

// Owns reports whether lowering ct may allocate memory or handles.
func (ct *CompiledType) Owns() bool {
	switch ct.Kind {
	case KindString, KindList, KindOwn, KindBorrow:
		return true
	case KindRecord, KindTuple:
		for _, f := range ct.Fields {
			if f.Type.Owns() {
				return true
			}
		}
		return false
	case KindOption:
		return ct.Elem.Owns()
	case KindResult:
		return (ct.Ok != nil && ct.Ok.Owns()) || (ct.Err != nil && ct.Err.Owns())
	}
	return false
}
