package memory

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/tetratelabs/wazero"

	"github.com/wippyai/ffi-boundary/errors"
)

func TestLinear_ReadWrite(t *testing.T) {
	mem := NewLinear(1, 0)

	if err := mem.WriteU8(0, 0xAB); err != nil {
		t.Fatal(err)
	}
	if err := mem.WriteU16(2, 0xBEEF); err != nil {
		t.Fatal(err)
	}
	if err := mem.WriteU32(4, 0xDEADBEEF); err != nil {
		t.Fatal(err)
	}
	if err := mem.WriteU64(8, 0x0102030405060708); err != nil {
		t.Fatal(err)
	}

	if v, _ := mem.ReadU8(0); v != 0xAB {
		t.Errorf("ReadU8 = %#x", v)
	}
	if v, _ := mem.ReadU16(2); v != 0xBEEF {
		t.Errorf("ReadU16 = %#x", v)
	}
	if v, _ := mem.ReadU32(4); v != 0xDEADBEEF {
		t.Errorf("ReadU32 = %#x", v)
	}
	if v, _ := mem.ReadU64(8); v != 0x0102030405060708 {
		t.Errorf("ReadU64 = %#x", v)
	}

	// little-endian layout
	if b := mem.Bytes()[8]; b != 0x08 {
		t.Errorf("low byte = %#x, want 0x08", b)
	}
}

func TestLinear_OutOfBounds(t *testing.T) {
	mem := NewLinear(1, 1)

	tests := []struct {
		name string
		fn   func() error
	}{
		{"read past end", func() error { _, err := mem.Read(PageSize-2, 4); return err }},
		{"u32 at end", func() error { _, err := mem.ReadU32(PageSize - 3); return err }},
		{"write past end", func() error { return mem.Write(PageSize, []byte{1}) }},
		{"u64 overflow offset", func() error { return mem.WriteU64(0xFFFFFFFF, 1) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fn()
			if !stderrors.Is(err, &errors.Error{Kind: errors.KindOutOfBounds}) {
				t.Fatalf("expected out_of_bounds, got %v", err)
			}
		})
	}
}

func TestLinear_Grow(t *testing.T) {
	mem := NewLinear(1, 2)
	if !mem.Grow(1) {
		t.Fatal("grow within limit failed")
	}
	if mem.Size() != 2*PageSize {
		t.Errorf("Size = %d", mem.Size())
	}
	if mem.Grow(1) {
		t.Fatal("grow past limit should fail")
	}
}

func TestArena_AllocAlignment(t *testing.T) {
	mem := NewLinear(1, 0)
	a := NewArena(mem, 0)

	p1, err := a.Alloc(3, 1)
	if err != nil {
		t.Fatal(err)
	}
	if p1 == 0 {
		t.Fatal("arena returned null pointer")
	}

	p2, err := a.Alloc(8, 8)
	if err != nil {
		t.Fatal(err)
	}
	if p2%8 != 0 {
		t.Errorf("pointer %d not 8-aligned", p2)
	}
	if p2 < p1+3 {
		t.Errorf("allocations overlap: %d, %d", p1, p2)
	}

	if _, err := a.Alloc(4, 3); err == nil {
		t.Error("non power-of-two alignment should fail")
	}
}

func TestArena_FreeReuse(t *testing.T) {
	mem := NewLinear(1, 0)
	a := NewArena(mem, 64)

	p1, _ := a.Alloc(16, 4)
	p2, _ := a.Alloc(16, 4)
	p3, _ := a.Alloc(16, 4)

	a.Free(p2, 16, 4)
	p4, _ := a.Alloc(8, 4)
	if p4 != p2 {
		t.Errorf("expected reuse of freed block %d, got %d", p2, p4)
	}

	a.Free(p1, 16, 4)
	a.Free(p4, 8, 4)
	a.Free(p3, 16, 4)

	if a.Live() != 0 || a.InUse() != 0 {
		t.Errorf("Live=%d InUse=%d after freeing everything", a.Live(), a.InUse())
	}

	// everything coalesced back into the bump region
	p5, _ := a.Alloc(48, 4)
	if p5 != p1 {
		t.Errorf("expected coalesced block at %d, got %d", p1, p5)
	}
}

func TestArena_FreeUnknownIgnored(t *testing.T) {
	a := NewArena(NewLinear(1, 0), 0)
	p, _ := a.Alloc(4, 4)
	a.Free(p+1, 4, 4)
	a.Free(12345, 4, 4)
	if a.Live() != 1 {
		t.Errorf("Live = %d, want 1", a.Live())
	}
}

func TestArena_Grows(t *testing.T) {
	mem := NewLinear(1, 4)
	a := NewArena(mem, 0)

	if _, err := a.Alloc(PageSize*2, 8); err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if mem.Size() < 2*PageSize {
		t.Errorf("memory did not grow: %d", mem.Size())
	}

	if _, err := a.Alloc(PageSize*8, 8); err == nil {
		t.Error("allocation past max pages should fail")
	}
}

func TestArena_Reset(t *testing.T) {
	a := NewArena(NewLinear(1, 0), 128)
	p1, _ := a.Alloc(10, 1)
	a.Reset()
	p2, _ := a.Alloc(10, 1)
	if p1 != p2 {
		t.Errorf("after Reset, Alloc = %d, want %d", p2, p1)
	}
}

func TestWrapper_Wazero(t *testing.T) {
	ctx := context.Background()
	r := wazero.NewRuntime(ctx)
	defer r.Close(ctx)

	// (module (memory (export "memory") 1))
	bin := []byte{
		0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
		0x05, 0x03, 0x01, 0x00, 0x01,
		0x07, 0x0a, 0x01, 0x06, 'm', 'e', 'm', 'o', 'r', 'y', 0x02, 0x00,
	}
	mod, err := r.Instantiate(ctx, bin)
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}

	w := Wrap(mod.Memory())
	if w.Size() != PageSize {
		t.Fatalf("Size = %d", w.Size())
	}
	if err := w.WriteU32(16, 42); err != nil {
		t.Fatal(err)
	}
	if v, _ := w.ReadU32(16); v != 42 {
		t.Errorf("ReadU32 = %d", v)
	}
	if _, err := w.ReadU64(PageSize - 4); err == nil {
		t.Error("expected out of bounds")
	}

	a := NewArena(w, 1024)
	if _, err := a.Alloc(PageSize, 8); err != nil {
		t.Fatalf("Alloc with grow: %v", err)
	}
	if w.Size() <= PageSize {
		t.Error("wazero memory did not grow")
	}

	if Wrap(nil) != nil {
		t.Error("Wrap(nil) should be nil")
	}
}
