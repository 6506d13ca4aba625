package transcoder

import (
	stderrors "errors"
	"math"
	"reflect"
	"testing"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/ffi-boundary/errors"
	"github.com/wippyai/ffi-boundary/memory"
)

type pointValue struct {
	X float64
	Y float64
}

type errorKind uint8

type arithError struct {
	Kind errorKind
	A    uint64
	B    uint64
}

type entry struct {
	Key   string
	Value int32
}

type pointHandle uint32

var (
	pointWit = &wit.TypeDef{Kind: &wit.Record{Fields: []wit.Field{
		{Name: "x", Type: wit.F64{}},
		{Name: "y", Type: wit.F64{}},
	}}}
	kindWit = &wit.TypeDef{Kind: &wit.Enum{Cases: []wit.EnumCase{{Name: "integer-overflow"}}}}
	arithWit = &wit.TypeDef{Kind: &wit.Record{Fields: []wit.Field{
		{Name: "kind", Type: kindWit},
		{Name: "a", Type: wit.U64{}},
		{Name: "b", Type: wit.U64{}},
	}}}
	entryWit    = &wit.TypeDef{Kind: &wit.Tuple{Types: []wit.Type{wit.String{}, wit.S32{}}}}
	entriesWit  = &wit.TypeDef{Kind: &wit.List{Type: entryWit}}
	stringsWit  = &wit.TypeDef{Kind: &wit.List{Type: wit.String{}}}
	bytesWit    = &wit.TypeDef{Kind: &wit.List{Type: wit.U8{}}}
	optS32Wit   = &wit.TypeDef{Kind: &wit.Option{Type: wit.S32{}}}
	resultWit   = &wit.TypeDef{Kind: &wit.Result{OK: wit.U64{}, Err: arithWit}}
	emptyResult = &wit.TypeDef{Kind: &wit.Result{}}
)

func resourceWit(name string) *wit.TypeDef {
	return &wit.TypeDef{Name: &name, Kind: &wit.Resource{}}
}

// fakeHandles is a minimal HandleTable recording releases.
type fakeHandles struct {
	objs     map[uint32]any
	released []uint32
	next     uint32
}

func newFakeHandles() *fakeHandles {
	return &fakeHandles{objs: make(map[uint32]any)}
}

func (f *fakeHandles) Insert(_ string, v any) (uint32, error) {
	f.next++
	f.objs[f.next] = v
	return f.next, nil
}

func (f *fakeHandles) Get(_ string, h uint32) (any, error) {
	v, ok := f.objs[h]
	if !ok {
		return nil, errors.InvalidHandle(errors.PhaseLift, nil, h)
	}
	return v, nil
}

func (f *fakeHandles) Release(_ string, h uint32) error {
	if _, ok := f.objs[h]; !ok {
		return errors.InvalidHandle(errors.PhaseCall, nil, h)
	}
	delete(f.objs, h)
	f.released = append(f.released, h)
	return nil
}

func hasKind(err error, kind errors.Kind) bool {
	return stderrors.Is(err, &errors.Error{Kind: kind})
}

type harness struct {
	compiler *Compiler
	enc      *Encoder
	dec      *Decoder
	mem      *memory.Linear
	arena    *memory.Arena
	handles  *fakeHandles
}

func newHarness() *harness {
	mem := memory.NewLinear(1, 0)
	h := newFakeHandles()
	return &harness{
		compiler: NewCompiler(),
		enc:      NewEncoder(h),
		dec:      NewDecoder(h),
		mem:      mem,
		arena:    memory.NewArena(mem, 1024),
		handles:  h,
	}
}

func (h *harness) compile(t *testing.T, witType wit.Type, goType reflect.Type) *CompiledType {
	t.Helper()
	ct, err := h.compiler.Compile(witType, goType)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return ct
}

// roundTrip lowers v to flat slots and lifts it back, freeing the caller's
// memory afterwards.
func (h *harness) roundTrip(t *testing.T, witType wit.Type, v any) any {
	t.Helper()
	ct := h.compile(t, witType, reflect.TypeOf(v))
	cts := []*CompiledType{ct}

	allocs := NewAllocationList()
	flat, err := h.enc.LowerValues(cts, []any{v}, h.mem, h.arena, allocs)
	if err != nil {
		t.Fatalf("Lower: %v", err)
	}
	if len(flat) != len(ct.Flat) {
		t.Fatalf("lowered %d slots, plan has %d", len(flat), len(ct.Flat))
	}
	out, err := h.dec.Lift(cts, flat, h.mem, nil)
	if err != nil {
		t.Fatalf("Lift: %v", err)
	}
	allocs.FreeAndRelease(h.arena, h.handles)
	return out[0].Interface()
}

func TestRoundTrip_Flat(t *testing.T) {
	tests := []struct {
		name string
		wit  wit.Type
		v    any
	}{
		{"bool true", wit.Bool{}, true},
		{"bool false", wit.Bool{}, false},
		{"s8 min", wit.S8{}, int8(math.MinInt8)},
		{"u8 max", wit.U8{}, uint8(math.MaxUint8)},
		{"s16 min", wit.S16{}, int16(math.MinInt16)},
		{"u16 max", wit.U16{}, uint16(math.MaxUint16)},
		{"s32 min", wit.S32{}, int32(math.MinInt32)},
		{"u32 max", wit.U32{}, uint32(math.MaxUint32)},
		{"s64 min", wit.S64{}, int64(math.MinInt64)},
		{"u64 max", wit.U64{}, uint64(math.MaxUint64)},
		{"f32", wit.F32{}, float32(-1.5)},
		{"f64", wit.F64{}, math.Pi},
		{"string", wit.String{}, "hello, 世界"},
		{"empty string", wit.String{}, ""},
		{"list of strings", stringsWit, []string{"a", "", "ccc"}},
		{"empty list", stringsWit, []string{}},
		{"bytes", bytesWit, []byte{0, 1, 2, 255}},
		{"map", entriesWit, map[string]int32{"one": 1, "two": 2, "neg": -3}},
		{"option some", optS32Wit, Some[int32](-7)},
		{"option none", optS32Wit, None[int32]()},
		{"record", pointWit, pointValue{X: 1.5, Y: -2.25}},
		{"tuple", entryWit, entry{Key: "k", Value: 42}},
		{"result ok", resultWit, Ok[uint64, arithError](99)},
		{"result err", resultWit, Fail[uint64](arithError{A: math.MaxUint64, B: 1})},
		{"empty result err", emptyResult, Fail[struct{}, struct{}](struct{}{})},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness()
			got := h.roundTrip(t, tc.wit, tc.v)
			if !reflect.DeepEqual(got, tc.v) {
				t.Errorf("got %#v, want %#v", got, tc.v)
			}
			if live := h.arena.Live(); live != 0 {
				t.Errorf("%d blocks still live after free", live)
			}
		})
	}
}

func TestRoundTrip_PointerOption(t *testing.T) {
	h := newHarness()
	v := int32(5)

	got := h.roundTrip(t, optS32Wit, &v).(*int32)
	if got == nil || *got != 5 {
		t.Fatalf("got %v, want 5", got)
	}
	if got == &v {
		t.Error("lifted pointer aliases the input")
	}

	if got := h.roundTrip(t, optS32Wit, (*int32)(nil)).(*int32); got != nil {
		t.Errorf("got %v, want nil", *got)
	}
}

func TestStoreLoadTuple(t *testing.T) {
	h := newHarness()
	cts := []*CompiledType{
		h.compile(t, resultWit, reflect.TypeOf(Result[uint64, arithError]{})),
		h.compile(t, wit.String{}, reflect.TypeOf("")),
	}
	offsets, size, align := TupleLayout(cts)
	if offsets[0] != 0 || offsets[1] != 32 || size != 40 || align != 8 {
		t.Fatalf("layout = %v size=%d align=%d", offsets, size, align)
	}

	addr, err := h.arena.Alloc(size, align)
	if err != nil {
		t.Fatal(err)
	}
	in := []reflect.Value{
		reflect.ValueOf(Fail[uint64](arithError{A: 3, B: 4})),
		reflect.ValueOf("tail"),
	}
	if err := h.enc.StoreTuple(cts, in, addr, h.mem, h.arena, nil); err != nil {
		t.Fatalf("StoreTuple: %v", err)
	}

	frees := NewAllocationList()
	out, err := h.dec.LoadTuple(cts, addr, h.mem, frees)
	if err != nil {
		t.Fatalf("LoadTuple: %v", err)
	}
	if !reflect.DeepEqual(Interfaces(out), Interfaces(in)) {
		t.Errorf("got %v, want %v", Interfaces(out), Interfaces(in))
	}
	if frees.Count() != 1 {
		t.Errorf("frees recorded %d blocks, want 1", frees.Count())
	}
}

func TestLower_MapSortedKeys(t *testing.T) {
	h := newHarness()
	ct := h.compile(t, entriesWit, reflect.TypeOf(map[string]int32{}))

	flat, err := h.enc.Lower([]*CompiledType{ct}, []reflect.Value{reflect.ValueOf(map[string]int32{"b": 2, "c": 3, "a": 1})}, h.mem, h.arena, nil)
	if err != nil {
		t.Fatal(err)
	}
	if flat[1] != 3 {
		t.Fatalf("length = %d, want 3", flat[1])
	}

	asList := h.compile(t, entriesWit, reflect.TypeOf([]entry{}))
	out, err := h.dec.Lift([]*CompiledType{asList}, flat, h.mem, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := []entry{{"a", 1}, {"b", 2}, {"c", 3}}
	if got := out[0].Interface(); !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestLift_DuplicateMapKey(t *testing.T) {
	h := newHarness()
	asList := h.compile(t, entriesWit, reflect.TypeOf([]entry{}))
	asMap := h.compile(t, entriesWit, reflect.TypeOf(map[string]int32{}))

	flat, err := h.enc.Lower([]*CompiledType{asList}, []reflect.Value{reflect.ValueOf([]entry{{"x", 1}, {"x", 2}})}, h.mem, h.arena, nil)
	if err != nil {
		t.Fatal(err)
	}
	_, err = h.dec.Lift([]*CompiledType{asMap}, flat, h.mem, nil)
	if !hasKind(err, errors.KindInvalidData) {
		t.Errorf("got %v, want invalid_data", err)
	}
}

func TestLift_InvalidSlots(t *testing.T) {
	h := newHarness()
	if err := h.mem.Write(2048, []byte{0xff, 0xfe}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		wit  wit.Type
		goT  reflect.Type
		flat []uint64
		kind errors.Kind
	}{
		{"bool 2", wit.Bool{}, reflect.TypeOf(false), []uint64{2}, errors.KindInvalidData},
		{"u8 dirty", wit.U8{}, reflect.TypeOf(uint8(0)), []uint64{0x100}, errors.KindInvalidData},
		{"s8 not sign extended", wit.S8{}, reflect.TypeOf(int8(0)), []uint64{0x80}, errors.KindInvalidData},
		{"s32 high bits", wit.S32{}, reflect.TypeOf(int32(0)), []uint64{1 << 32}, errors.KindInvalidData},
		{"option disc 2", optS32Wit, reflect.TypeOf(Option[int32]{}), []uint64{2, 0}, errors.KindInvalidVariant},
		{"result disc 7", resultWit, reflect.TypeOf(Result[uint64, arithError]{}), []uint64{7, 0, 0, 0}, errors.KindInvalidVariant},
		{"enum out of range", kindWit, reflect.TypeOf(errorKind(0)), []uint64{1}, errors.KindInvalidVariant},
		{"string invalid utf8", wit.String{}, reflect.TypeOf(""), []uint64{2048, 2}, errors.KindInvalidUTF8},
		{"string out of bounds", wit.String{}, reflect.TypeOf(""), []uint64{memory.PageSize - 1, 8}, errors.KindOutOfBounds},
		{"leftover slots", wit.S32{}, reflect.TypeOf(int32(0)), []uint64{1, 2}, errors.KindInvalidData},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ct := h.compile(t, tc.wit, tc.goT)
			_, err := h.dec.Lift([]*CompiledType{ct}, tc.flat, h.mem, nil)
			if !hasKind(err, tc.kind) {
				t.Errorf("got %v, want %s", err, tc.kind)
			}
		})
	}
}

func TestLower_Errors(t *testing.T) {
	h := newHarness()

	str := h.compile(t, wit.String{}, reflect.TypeOf(""))
	_, err := h.enc.LowerValues([]*CompiledType{str}, []any{"ok\xff"}, h.mem, h.arena, nil)
	if !hasKind(err, errors.KindInvalidUTF8) {
		t.Errorf("invalid text: got %v", err)
	}

	s32 := h.compile(t, wit.S32{}, reflect.TypeOf(int32(0)))
	_, err = h.enc.LowerValues([]*CompiledType{s32}, []any{7}, h.mem, h.arena, nil)
	if !hasKind(err, errors.KindTypeMismatch) {
		t.Errorf("int for s32: got %v", err)
	}

	_, err = h.enc.LowerValues([]*CompiledType{s32}, []any{int32(1), int32(2)}, h.mem, h.arena, nil)
	if !hasKind(err, errors.KindInvalidInput) {
		t.Errorf("arity: got %v", err)
	}

	_, err = h.enc.LowerValues([]*CompiledType{str}, []any{"x"}, h.mem, nil, nil)
	if !hasKind(err, errors.KindNotInitialized) {
		t.Errorf("no allocator: got %v", err)
	}
}

func TestHandles_Own(t *testing.T) {
	h := newHarness()
	own := &wit.TypeDef{Kind: &wit.Own{Type: resourceWit("point")}}
	ct := h.compile(t, own, reflect.TypeOf(&pointValue{}))
	if ct.Resource != "point" || ct.Repr != ReprObject {
		t.Fatalf("resource=%q repr=%v", ct.Resource, ct.Repr)
	}

	p := &pointValue{X: 1}
	flat, err := h.enc.LowerValues([]*CompiledType{ct}, []any{p}, h.mem, h.arena, nil)
	if err != nil {
		t.Fatal(err)
	}
	if flat[0] == 0 {
		t.Fatal("own lowered to handle 0")
	}

	out, err := h.dec.Lift([]*CompiledType{ct}, flat, h.mem, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out[0].Interface().(*pointValue) != p {
		t.Error("lifted own is not the original object")
	}
	if len(h.handles.released) != 1 {
		t.Errorf("own lift released %d handles, want 1", len(h.handles.released))
	}

	_, err = h.dec.Lift([]*CompiledType{ct}, flat, h.mem, nil)
	if !hasKind(err, errors.KindInvalidHandle) {
		t.Errorf("second lift: got %v, want invalid_handle", err)
	}
}

func TestHandles_BorrowReleasedAfterCall(t *testing.T) {
	h := newHarness()
	borrow := &wit.TypeDef{Kind: &wit.Borrow{Type: resourceWit("point")}}
	ct := h.compile(t, borrow, reflect.TypeOf(&pointValue{}))

	allocs := NewAllocationList()
	flat, err := h.enc.LowerValues([]*CompiledType{ct}, []any{&pointValue{}}, h.mem, h.arena, allocs)
	if err != nil {
		t.Fatal(err)
	}
	if allocs.Borrows() != 1 {
		t.Fatalf("borrows = %d, want 1", allocs.Borrows())
	}

	if _, err := h.dec.Lift([]*CompiledType{ct}, flat, h.mem, nil); err != nil {
		t.Fatal(err)
	}
	if len(h.handles.released) != 0 {
		t.Fatal("borrow lift released the handle")
	}

	allocs.FreeAndRelease(h.arena, h.handles)
	if len(h.handles.objs) != 0 {
		t.Errorf("%d handles live after the call", len(h.handles.objs))
	}
}

func TestHandles_Null(t *testing.T) {
	h := newHarness()
	borrow := &wit.TypeDef{Kind: &wit.Borrow{Type: resourceWit("point")}}

	raw := h.compile(t, borrow, reflect.TypeOf(pointHandle(0)))
	if raw.Repr != ReprRawHandle {
		t.Fatalf("repr = %v, want raw handle", raw.Repr)
	}
	_, err := h.enc.LowerValues([]*CompiledType{raw}, []any{pointHandle(0)}, h.mem, h.arena, nil)
	if !hasKind(err, errors.KindNullHandle) {
		t.Errorf("lower raw 0: got %v", err)
	}
	_, err = h.dec.Lift([]*CompiledType{raw}, []uint64{0}, h.mem, nil)
	if !hasKind(err, errors.KindNullHandle) {
		t.Errorf("lift 0: got %v", err)
	}

	obj := h.compile(t, borrow, reflect.TypeOf(&pointValue{}))
	_, err = h.enc.LowerValues([]*CompiledType{obj}, []any{nil}, h.mem, h.arena, nil)
	if !hasKind(err, errors.KindNullHandle) {
		t.Errorf("lower nil object: got %v", err)
	}
}

func TestCompile_Errors(t *testing.T) {
	c := NewCompiler()

	tests := []struct {
		name string
		wit  wit.Type
		goT  reflect.Type
		kind errors.Kind
	}{
		{"int for s32", wit.S32{}, reflect.TypeOf(0), errors.KindTypeMismatch},
		{"int64 for u64", wit.U64{}, reflect.TypeOf(int64(0)), errors.KindTypeMismatch},
		{"float32 for f64", wit.F64{}, reflect.TypeOf(float32(0)), errors.KindTypeMismatch},
		{"missing record field", arithWit, reflect.TypeOf(pointValue{}), errors.KindNotFound},
		{"option as value", optS32Wit, reflect.TypeOf(int32(0)), errors.KindTypeMismatch},
		{"result without carrier", resultWit, reflect.TypeOf(uint64(0)), errors.KindTypeMismatch},
		{"map over plain list", stringsWit, reflect.TypeOf(map[string]string{}), errors.KindTypeMismatch},
		{"tuple member type", entryWit, reflect.TypeOf(pointValue{}), errors.KindTypeMismatch},
		{"handle as string", &wit.TypeDef{Kind: &wit.Own{Type: resourceWit("r")}}, reflect.TypeOf(""), errors.KindTypeMismatch},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := c.Compile(tc.wit, tc.goT)
			if !hasKind(err, tc.kind) {
				t.Errorf("got %v, want %s", err, tc.kind)
			}
		})
	}
}

func TestCompile_Cached(t *testing.T) {
	c := NewCompiler()
	a, err := c.Compile(pointWit, reflect.TypeOf(pointValue{}))
	if err != nil {
		t.Fatal(err)
	}
	b, err := c.Compile(pointWit, reflect.TypeOf(pointValue{}))
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("second compile returned a new plan")
	}
	if a.WitSize != 16 || a.WitAlign != 8 || a.FlatCount() != 2 {
		t.Errorf("size=%d align=%d flat=%d", a.WitSize, a.WitAlign, a.FlatCount())
	}
}

func TestCompile_FieldTags(t *testing.T) {
	type tagged struct {
		Horizontal float64 `wit:"x"`
		Vertical   float64 `wit:"y"`
	}
	ct, err := NewCompiler().Compile(pointWit, reflect.TypeOf(tagged{}))
	if err != nil {
		t.Fatal(err)
	}
	if ct.Fields[0].Name != "Horizontal" || ct.Fields[1].Name != "Vertical" {
		t.Errorf("fields = %s, %s", ct.Fields[0].Name, ct.Fields[1].Name)
	}
}

func TestKebabCase(t *testing.T) {
	tests := map[string]string{
		"BoolInc":         "bool-inc",
		"I8Inc":           "i8-inc",
		"CountCharacters": "count-characters",
		"ParseHTTPRequest": "parse-http-request",
		"HashMapInc":      "hash-map-inc",
		"X":               "x",
	}
	for in, want := range tests {
		if got := KebabCase(in); got != want {
			t.Errorf("KebabCase(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFlatten(t *testing.T) {
	h := newHarness()
	cts := []*CompiledType{
		h.compile(t, wit.String{}, reflect.TypeOf("")),
		h.compile(t, resultWit, reflect.TypeOf(Result[uint64, arithError]{})),
	}
	want := []FlatType{FlatI32, FlatI32, FlatI32, FlatI64, FlatI64, FlatI64}
	if got := Flatten(cts); !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}
