// Package layout computes canonical ABI size, alignment and field offsets
// for WIT types.
//
// Primitives have size equal to alignment. Records and tuples lay fields
// out in order with padding. Options and results put a one-byte
// discriminant before the payload, aligned to the widest case. Strings,
// lists and handles occupy fixed slots whose contents live elsewhere.
//
// This package is internal to the transcoder.
package layout
