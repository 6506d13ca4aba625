// Package transcoder moves typed values across the boundary between Go
// and a linear-memory callee.
//
// Each WIT type is compiled once against a Go type into a CompiledType
// plan. Plans are cached per (WIT type, Go type) pair and drive three
// codecs:
//
//	Encoder.Lower / Decoder.Lift        flat slots plus linear memory
//	Encoder.Store / Decoder.Load        in-memory canonical layout
//	Encoder.Serialize / Decoder.Deserialize  big-endian byte buffer
//
// # Flat slots
//
// Every flat slot is a uint64. An i32 slot holds a zero-extended 32-bit
// value and an f32 slot holds the float bits in the low half, so joined
// variant slots never need a value conversion. Lifting rejects slots with
// dirty high bits, booleans other than 0 and 1, and discriminants outside
// the declared cases.
//
// # Memory layout
//
//	Type            Size    Alignment
//	──────────────────────────────────
//	bool            1       1
//	u8/s8           1       1
//	u16/s16         2       2
//	u32/s32/f32     4       4
//	u64/s64/f64     8       8
//	string          8       4 (ptr + len)
//	list<T>         8       4 (ptr + len)
//	own/borrow      4       4
//	record          sum     max field align
//	option/result   1+pad   max case align
//
// Strings are UTF-8. The empty string and the empty list lower to (0, 0)
// without allocating.
//
// # Go representations
//
// Besides the direct mapping a plan may select another carrier:
//
//	list<tuple<K, V>>   map[K]V, lowered in sorted key order; duplicate
//	                    keys are rejected when lifting
//	option<T>           Option[T] or *T
//	result<T, E>        Result[T, E]
//	own/borrow          a uint32-kind handle, or an object resolved
//	                    through a HandleTable
//
// # Ownership
//
// The side that lowers a value allocates its memory and records each
// block in an AllocationList. Borrowed handles created for the call are
// recorded too and released with FreeAndRelease once the call returns.
// A receiver that takes ownership of memory passes a non-nil frees list
// to Lift and releases those blocks after copying.
package transcoder
