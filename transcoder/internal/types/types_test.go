package types

import (
	"reflect"
	"testing"
)

func TestKindString(t *testing.T) {
	tests := []struct {
		want string
		kind Kind
	}{
		{"bool", KindBool},
		{"s32", KindS32},
		{"f64", KindF64},
		{"string", KindString},
		{"option", KindOption},
		{"result", KindResult},
		{"borrow", KindBorrow},
		{"unknown", Kind(200)},
	}
	for _, tc := range tests {
		if got := tc.kind.String(); got != tc.want {
			t.Errorf("String() = %q, want %q", got, tc.want)
		}
	}
}

func TestKindClasses(t *testing.T) {
	if !KindF32.IsScalar() || KindString.IsScalar() {
		t.Error("IsScalar misclassifies")
	}
	if !KindOwn.IsHandle() || !KindBorrow.IsHandle() || KindU32.IsHandle() {
		t.Error("IsHandle misclassifies")
	}
}

func TestOwns(t *testing.T) {
	u32 := &CompiledType{Kind: KindU32, GoType: reflect.TypeOf(uint32(0))}
	str := &CompiledType{Kind: KindString, GoType: reflect.TypeOf("")}

	tests := []struct {
		ct   *CompiledType
		name string
		want bool
	}{
		{u32, "scalar", false},
		{str, "string", true},
		{&CompiledType{Kind: KindOption, Elem: u32}, "option<u32>", false},
		{&CompiledType{Kind: KindOption, Elem: str}, "option<string>", true},
		{&CompiledType{Kind: KindRecord, Fields: []Field{{Type: u32}, {Type: u32}}}, "record of scalars", false},
		{&CompiledType{Kind: KindTuple, Fields: []Field{{Type: str}, {Type: u32}}}, "tuple with string", true},
		{&CompiledType{Kind: KindResult, Ok: u32}, "result<u32>", false},
		{&CompiledType{Kind: KindResult, Ok: u32, Err: str}, "result<u32, string>", true},
		{&CompiledType{Kind: KindBorrow}, "borrow", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ct.Owns(); got != tt.want {
				t.Errorf("Owns() = %v, want %v", got, tt.want)
			}
		})
	}
}
