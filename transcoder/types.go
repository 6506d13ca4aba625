package transcoder

import (
	"github.com/wippyai/ffi-boundary/transcoder/internal/abi"
	"github.com/wippyai/ffi-boundary/transcoder/internal/types"
)

type TypeKind = types.Kind

const (
	KindBool   = types.KindBool
	KindU8     = types.KindU8
	KindS8     = types.KindS8
	KindU16    = types.KindU16
	KindS16    = types.KindS16
	KindU32    = types.KindU32
	KindS32    = types.KindS32
	KindU64    = types.KindU64
	KindS64    = types.KindS64
	KindF32    = types.KindF32
	KindF64    = types.KindF64
	KindString = types.KindString
	KindRecord = types.KindRecord
	KindList   = types.KindList
	KindOption = types.KindOption
	KindResult = types.KindResult
	KindTuple  = types.KindTuple
	KindEnum   = types.KindEnum
	KindOwn    = types.KindOwn
	KindBorrow = types.KindBorrow
)

type CompiledType = types.CompiledType
type CompiledField = types.Field

type Repr = types.Repr

const (
	ReprDirect    = types.ReprDirect
	ReprMap       = types.ReprMap
	ReprPointer   = types.ReprPointer
	ReprCarrier   = types.ReprCarrier
	ReprRawHandle = types.ReprRawHandle
	ReprObject    = types.ReprObject
)

// FlatType is the core wasm type of one flat slot.
type FlatType = abi.FlatType

const (
	FlatI32 = abi.FlatI32
	FlatI64 = abi.FlatI64
	FlatF32 = abi.FlatF32
	FlatF64 = abi.FlatF64
)

// Flatten returns the flat slot types of a sequence of values.
func Flatten(cts []*CompiledType) []FlatType {
	var out []FlatType
	for _, ct := range cts {
		out = append(out, ct.Flat...)
	}
	return out
}
