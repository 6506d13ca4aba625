package wasm

import (
	"bytes"
	"context"
	"math"
	"testing"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

func TestEncodeULEB128(t *testing.T) {
	tests := []struct {
		in   uint32
		want []byte
	}{
		{0, []byte{0x00}},
		{1, []byte{0x01}},
		{127, []byte{0x7f}},
		{128, []byte{0x80, 0x01}},
		{624485, []byte{0xe5, 0x8e, 0x26}},
		{math.MaxUint32, []byte{0xff, 0xff, 0xff, 0xff, 0x0f}},
	}
	for _, tc := range tests {
		got := EncodeULEB128(tc.in)
		if !bytes.Equal(got, tc.want) {
			t.Errorf("EncodeULEB128(%d) = % x, want % x", tc.in, got, tc.want)
		}
		v, n := DecodeULEB128(got)
		if v != tc.in || n != len(got) {
			t.Errorf("DecodeULEB128(% x) = %d, %d", got, v, n)
		}
	}
}

func TestStubBuilder_MemoryOnly(t *testing.T) {
	ctx := context.Background()
	r := wazero.NewRuntime(ctx)
	defer r.Close(ctx)

	b := NewStubBuilder()
	b.SetMemory(2, 8)
	compiled, err := r.CompileModule(ctx, b.Build())
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	mem, ok := compiled.ExportedMemories()[MemoryExport]
	if !ok {
		t.Fatal("memory not exported")
	}
	if mem.Min() != 2 {
		t.Errorf("min = %d", mem.Min())
	}
	if max, ok := mem.Max(); !ok || max != 8 {
		t.Errorf("max = %d, %v", max, ok)
	}
	if len(compiled.ExportedFunctions()) != 0 {
		t.Errorf("unexpected functions: %v", compiled.ExportedFunctions())
	}
}

func TestStubBuilder_Trampolines(t *testing.T) {
	ctx := context.Background()
	r := wazero.NewRuntime(ctx)
	defer r.Close(ctx)

	i32, i64, f64 := api.ValueTypeI32, api.ValueTypeI64, api.ValueTypeF64

	_, err := r.NewHostModuleBuilder("ffi:test/api").
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(_ context.Context, _ api.Module, stack []uint64) {
			stack[0] = uint64(uint32(stack[0]) + uint32(stack[1]))
		}), []api.ValueType{i32, i32}, []api.ValueType{i32}).
		Export("add").
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(_ context.Context, _ api.Module, stack []uint64) {
			stack[0] = api.EncodeF64(api.DecodeF64(stack[1]) * float64(stack[0]))
		}), []api.ValueType{i64, f64}, []api.ValueType{f64}).
		Export("scale").
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(_ context.Context, m api.Module, stack []uint64) {
			m.Memory().WriteByte(uint32(stack[0]), 0x2a)
		}), []api.ValueType{i32}, nil).
		Export("poke").
		Instantiate(ctx)
	if err != nil {
		t.Fatalf("host module: %v", err)
	}

	b := NewStubBuilder()
	b.AddFunc("ffi:test/api", "add", "ffi:test/api#add", []api.ValueType{i32, i32}, []api.ValueType{i32})
	b.AddFunc("ffi:test/api", "scale", "ffi:test/api#scale", []api.ValueType{i64, f64}, []api.ValueType{f64})
	b.AddFunc("ffi:test/api", "poke", "ffi:test/api#poke", []api.ValueType{i32}, nil)
	if b.Len() != 3 {
		t.Fatalf("Len = %d", b.Len())
	}

	compiled, err := r.CompileModule(ctx, b.Build())
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	imports := compiled.ImportedFunctions()
	if len(imports) != 3 {
		t.Fatalf("imports = %d", len(imports))
	}
	if mod, name, _ := imports[1].Import(); mod != "ffi:test/api" || name != "scale" {
		t.Errorf("import 1 = %s.%s", mod, name)
	}

	guest, err := r.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName("guest"))
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}

	out, err := guest.ExportedFunction("ffi:test/api#add").Call(ctx, 40, 2)
	if err != nil || out[0] != 42 {
		t.Errorf("add = %v, %v", out, err)
	}

	out, err = guest.ExportedFunction("ffi:test/api#scale").Call(ctx, 3, api.EncodeF64(1.5))
	if err != nil || api.DecodeF64(out[0]) != 4.5 {
		t.Errorf("scale = %v, %v", out, err)
	}

	if _, err := guest.ExportedFunction("ffi:test/api#poke").Call(ctx, 100); err != nil {
		t.Fatalf("poke: %v", err)
	}
	if v, ok := guest.ExportedMemory(MemoryExport).ReadByte(100); !ok || v != 0x2a {
		t.Errorf("memory[100] = %#x, %v", v, ok)
	}
}
