package abi

import "go.bytecodealliance.org/wit"

// FlatType is the core wasm value type of one flat slot.
type FlatType uint8

const (
	FlatI32 FlatType = iota
	FlatI64
	FlatF32
	FlatF64
)

func (f FlatType) String() string {
	switch f {
	case FlatI32:
		return "i32"
	case FlatI64:
		return "i64"
	case FlatF32:
		return "f32"
	case FlatF64:
		return "f64"
	}
	return "unknown"
}

// Join merges two slot types that share a position in a variant payload.
func Join(a, b FlatType) FlatType {
	if a == b {
		return a
	}
	if (a == FlatI32 && b == FlatF32) || (a == FlatF32 && b == FlatI32) {
		return FlatI32
	}
	return FlatI64
}

// Flatten returns the flat slot types of t.
func Flatten(t wit.Type) []FlatType {
	switch t := t.(type) {
	case wit.Bool, wit.U8, wit.S8, wit.U16, wit.S16, wit.U32, wit.S32, wit.Char:
		return []FlatType{FlatI32}
	case wit.U64, wit.S64:
		return []FlatType{FlatI64}
	case wit.F32:
		return []FlatType{FlatF32}
	case wit.F64:
		return []FlatType{FlatF64}
	case wit.String:
		return []FlatType{FlatI32, FlatI32}
	case *wit.TypeDef:
		return flattenTypeDef(t)
	}
	return nil
}

func flattenTypeDef(t *wit.TypeDef) []FlatType {
	switch kind := t.Kind.(type) {
	case *wit.Record:
		var out []FlatType
		for _, f := range kind.Fields {
			out = append(out, Flatten(f.Type)...)
		}
		return out
	case *wit.Tuple:
		var out []FlatType
		for _, e := range kind.Types {
			out = append(out, Flatten(e)...)
		}
		return out
	case *wit.List:
		return []FlatType{FlatI32, FlatI32}
	case *wit.Enum, *wit.Own, *wit.Borrow:
		return []FlatType{FlatI32}
	case *wit.Option:
		return flattenCases(kind.Type)
	case *wit.Result:
		return flattenCases(kind.OK, kind.Err)
	case wit.Type:
		return Flatten(kind)
	}
	return nil
}

// flattenCases lays out a discriminant followed by the joined payloads.
func flattenCases(cases ...wit.Type) []FlatType {
	var payload []FlatType
	for _, c := range cases {
		if c == nil {
			continue
		}
		for i, ft := range Flatten(c) {
			if i < len(payload) {
				payload[i] = Join(payload[i], ft)
			} else {
				payload = append(payload, ft)
			}
		}
	}
	return append([]FlatType{FlatI32}, payload...)
}

// FlatCount returns the number of flat slots t occupies.
func FlatCount(t wit.Type) int {
	return len(Flatten(t))
}
