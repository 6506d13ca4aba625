package runtime

import (
	"context"
	stderrors "errors"
	"math"
	"reflect"
	"testing"

	"github.com/wippyai/ffi-boundary/engine"
	"github.com/wippyai/ffi-boundary/errors"
	"github.com/wippyai/ffi-boundary/library"
	"github.com/wippyai/ffi-boundary/record"
	"github.com/wippyai/ffi-boundary/resource"
	"github.com/wippyai/ffi-boundary/transcoder"
)

func hasKind(err error, kind errors.Kind) bool {
	return stderrors.Is(err, &errors.Error{Kind: kind})
}

func newLibrary(t *testing.T) (*Runtime, *Instance) {
	t.Helper()
	ctx := context.Background()
	rt, err := New(ctx, Options{MemoryLimitPages: 16})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = rt.Close(ctx) })

	if err := rt.RegisterHost(library.NewHost(rt.Handles())); err != nil {
		t.Fatal(err)
	}
	inst, err := rt.Instantiate(ctx)
	if err != nil {
		t.Fatal(err)
	}
	return rt, inst
}

func TestRuntime_LibraryCalls(t *testing.T) {
	_, inst := newLibrary(t)
	ctx := context.Background()

	type overflow = library.ArithmeticError[uint64]
	type overflowSigned = library.ArithmeticError[int32]

	tests := []struct {
		name string
		fn   string
		args []any
		want any
	}{
		{"bool", "bool-inc", []any{true}, false},
		{"s8", "i8-inc", []any{int8(-1)}, int8(0)},
		{"s16", "i16-inc", []any{int16(41)}, int16(42)},
		{"s32", "i32-inc", []any{int32(-7)}, int32(-6)},
		{"s64", "i64-inc", []any{int64(1) << 40}, int64(1)<<40 + 1},
		{"u8", "u8-inc", []any{uint8(254)}, uint8(255)},
		{"u16", "u16-inc", []any{uint16(9)}, uint16(10)},
		{"u32", "u32-inc", []any{uint32(math.MaxUint32 - 1)}, uint32(math.MaxUint32)},
		{"u64", "u64-inc", []any{uint64(1) << 63}, uint64(1)<<63 + 1},
		{"f32", "float-inc", []any{float32(1.5)}, float32(2.5)},
		{"f64", "double-inc", []any{-0.5}, 0.5},
		{"string", "string-inc", []any{"ab"}, "abab"},
		{"multibyte string", "string-inc", []any{"ü"}, "üü"},
		{"interior nul string", "string-inc", []any{"a\x00b"}, "a\x00ba\x00b"},
		{"option some", "optional-inc", []any{transcoder.Some[int32](1)}, transcoder.Some[int32](2)},
		{"option none", "optional-inc", []any{transcoder.None[int32]()}, transcoder.None[int32]()},
		{"list", "vector-inc", []any{[]string{"a", "b"}}, []string{"a", "b", "a", "b"}},
		{"map", "hash-map-inc", []any{map[string]int32{"one": 1}}, map[string]int32{"one": 1, "zero": 0}},
		{"record by value", "point-inc", []any{record.PointValue{X: 1, Y: 2}}, record.PointValue{X: 2, Y: 3}},
		{"void", "void-inc", []any{int32(5)}, nil},
		{"checked add ok", "error-inc", []any{uint64(0), uint64(5)}, transcoder.Ok[uint64, overflow](5)},
		{"checked add overflow", "error-inc", []any{uint64(math.MaxUint64), uint64(1)},
			transcoder.Fail[uint64](overflow{Kind: library.IntegerOverflow, A: math.MaxUint64, B: 1})},
		{"signed overflow", "error-inc-signed", []any{int32(math.MinInt32), int32(-1)},
			transcoder.Fail[int32](overflowSigned{Kind: library.IntegerOverflow, A: math.MinInt32, B: -1})},
		{"signed ok", "error-inc-signed", []any{int32(-3), int32(1)}, transcoder.Ok[int32, overflowSigned](-2)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := inst.Call(ctx, tc.fn, tc.args...)
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("got %#v, want %#v", got, tc.want)
			}
			if live := inst.Engine().Arena().Live(); live != 0 {
				t.Errorf("%d arena blocks leaked", live)
			}
		})
	}
}

func TestRuntime_OverflowCarriesOperands(t *testing.T) {
	_, inst := newLibrary(t)

	out, err := inst.Call(context.Background(), "error-inc", uint64(math.MaxUint64), uint64(1))
	if err != nil {
		t.Fatal(err)
	}
	res := out.(transcoder.Result[uint64, library.ArithmeticError[uint64]])
	_, ae, ok := res.Get()
	if ok {
		t.Fatal("overflow reported success")
	}
	if !stderrors.Is(ae, &errors.Error{Kind: errors.KindOverflow}) {
		t.Errorf("%v does not match the overflow kind", ae)
	}
	if ae.A != math.MaxUint64 || ae.B != 1 {
		t.Errorf("operands = %d, %d", ae.A, ae.B)
	}
}

func TestRuntime_SharedPoint(t *testing.T) {
	rt, inst := newLibrary(t)
	ctx := context.Background()

	out, err := inst.Call(ctx, "new-point", 1.0, 2.0)
	if err != nil {
		t.Fatal(err)
	}
	h := out.(resource.Handle)

	out, err = inst.Call(ctx, "point-clone", h)
	if err != nil {
		t.Fatal(err)
	}
	clone := out.(resource.Handle)
	if rt.Handles().Refs(uint32(h)) != 2 {
		t.Fatalf("refs after clone = %d", rt.Handles().Refs(uint32(h)))
	}

	if _, err := inst.Call(ctx, "by-ref-inc", h); err != nil {
		t.Fatal(err)
	}
	for _, handle := range []resource.Handle{h, clone} {
		x, err := inst.Call(ctx, "point-get-x", handle)
		if err != nil {
			t.Fatal(err)
		}
		y, err := inst.Call(ctx, "point-get-y", handle)
		if err != nil {
			t.Fatal(err)
		}
		if x != 2.0 || y != 3.0 {
			t.Errorf("handle %d reads (%v, %v), want (2, 3)", handle, x, y)
		}
	}

	if _, err := inst.Call(ctx, "point-set-y", clone, 10.0); err != nil {
		t.Fatal(err)
	}
	if y, _ := inst.Call(ctx, "point-get-y", h); y != 10.0 {
		t.Errorf("set through clone not visible: %v", y)
	}

	for _, handle := range []resource.Handle{h, clone} {
		if _, err := inst.Call(ctx, "point-drop", handle); err != nil {
			t.Fatal(err)
		}
	}
	if n := rt.Handles().Len(); n != 0 {
		t.Errorf("%d handles live after dropping every reference", n)
	}
	if _, err := inst.Call(ctx, "point-get-x", h); !hasKind(err, errors.KindInvalidHandle) {
		t.Errorf("dropped handle: %v", err)
	}
	_, err = inst.Call(ctx, "point-drop", h)
	if !hasKind(err, errors.KindTrap) || !hasKind(err, errors.KindInvalidHandle) {
		t.Errorf("drop of a dropped handle: %v", err)
	}
	if _, err := inst.Call(ctx, "point-drop", resource.Handle(77)); !hasKind(err, errors.KindTrap) {
		t.Errorf("drop of an unknown handle: %v", err)
	}
	if out, err := inst.Call(ctx, "i32-inc", int32(1)); err != nil || out != int32(2) {
		t.Errorf("after stale drops: %v, %v", out, err)
	}
}

func TestRuntime_BoundaryFailures(t *testing.T) {
	_, inst := newLibrary(t)
	ctx := context.Background()

	if _, err := inst.Call(ctx, "string-inc", "a\xffb"); !hasKind(err, errors.KindInvalidUTF8) {
		t.Errorf("invalid text from caller: %v", err)
	}

	// invalid text the caller placed in memory itself
	if !inst.Memory().Mem.Write(4096, []byte{'o', 'k', 0xc0}) {
		t.Fatal("write")
	}
	_, err := inst.CallRaw(ctx, "string-inc", 4096, 3, 2048)
	if !hasKind(err, errors.KindTrap) || !hasKind(err, errors.KindInvalidUTF8) {
		t.Errorf("invalid text in memory: %v", err)
	}

	_, err = inst.CallRaw(ctx, "by-ref-inc", 0)
	if !hasKind(err, errors.KindTrap) || !hasKind(err, errors.KindNullHandle) {
		t.Errorf("null handle: %v", err)
	}
	_, err = inst.Call(ctx, "by-ref-inc", (*record.Point)(nil))
	if !hasKind(err, errors.KindNullHandle) {
		t.Errorf("nil point: %v", err)
	}

	// the instance survives every failure above
	if out, err := inst.Call(ctx, "i32-inc", int32(1)); err != nil || out != int32(2) {
		t.Errorf("after failures: %v, %v", out, err)
	}
}

func TestRuntime_CountCharacters(t *testing.T) {
	_, inst := newLibrary(t)
	ctx := context.Background()

	tests := []struct {
		in   string
		want uint32
	}{
		{"", 0},
		{"hello", 5},
		{"päivää", 6},
		{"日本語", 3},
		{"🦀🦀", 2},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			n, err := inst.CallCString(ctx, "count-characters", tc.in)
			if err != nil || n != tc.want {
				t.Errorf("count(%q) = %d, %v; want %d", tc.in, n, err, tc.want)
			}
		})
	}

	if !inst.Memory().Mem.Write(8192, []byte{0xe6, 0x97, 0}) {
		t.Fatal("write")
	}
	_, err := inst.Engine().CallCStringAt(ctx, library.Namespace, "count-characters", 8192)
	var se *engine.StatusError
	if !stderrors.As(err, &se) || se.Code != engine.StatusFailed {
		t.Errorf("truncated text: %v", err)
	}
}

func TestRuntime_CallSerialized(t *testing.T) {
	_, inst := newLibrary(t)

	w := transcoder.NewWriter()
	if err := w.WriteString("xy"); err != nil {
		t.Fatal(err)
	}
	out, err := inst.CallSerialized(context.Background(), "string-inc", w.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	r := transcoder.NewReader(out)
	s, err := r.ReadString()
	if err != nil || s != "xyxy" {
		t.Errorf("result = %q, %v", s, err)
	}
}

func TestRuntime_Resolve(t *testing.T) {
	rt, inst := newLibrary(t)
	ctx := context.Background()

	if out, err := inst.Call(ctx, library.Namespace+"#i32-inc", int32(1)); err != nil || out != int32(2) {
		t.Errorf("qualified call: %v, %v", out, err)
	}
	if _, err := inst.Call(ctx, "missing"); !hasKind(err, errors.KindNotFound) {
		t.Errorf("missing: %v", err)
	}
	if err := rt.RegisterFunc("late:ns/api", "f", func() {}); !hasKind(err, errors.KindInvalidInput) {
		t.Errorf("registration after instantiate: %v", err)
	}

	multi, err := inst.CallNS(ctx, library.Namespace, "vector-inc", []string{"z"})
	if err != nil || len(multi) != 1 {
		t.Errorf("CallNS = %v, %v", multi, err)
	}
}

func TestRuntime_Ambiguous(t *testing.T) {
	ctx := context.Background()
	rt, err := New(ctx, Options{MemoryLimitPages: 4})
	if err != nil {
		t.Fatal(err)
	}
	defer rt.Close(ctx)

	for _, ns := range []string{"a:x/api", "b:x/api"} {
		if err := rt.RegisterFunc(ns, "id", func(v int32) int32 { return v }); err != nil {
			t.Fatal(err)
		}
	}
	inst, err := rt.Instantiate(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := inst.Call(ctx, "id", int32(1)); !hasKind(err, errors.KindInvalidInput) {
		t.Errorf("ambiguous: %v", err)
	}
	if out, err := inst.Call(ctx, "b:x/api#id", int32(1)); err != nil || out != int32(1) {
		t.Errorf("qualified: %v, %v", out, err)
	}
}
