package main

import (
	"bytes"
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/wippyai/ffi-boundary/library"
	"github.com/wippyai/ffi-boundary/record"
	"github.com/wippyai/ffi-boundary/resource"
	"github.com/wippyai/ffi-boundary/transcoder"
)

func TestParseArg(t *testing.T) {
	tests := []struct {
		text string
		typ  reflect.Type
		want any
	}{
		{"41", reflect.TypeOf(int32(0)), int32(41)},
		{"18446744073709551615", reflect.TypeOf(uint64(0)), uint64(18446744073709551615)},
		{"true", reflect.TypeOf(false), true},
		{"1.5", reflect.TypeOf(float32(0)), float32(1.5)},
		{"  spaced: text ", reflect.TypeOf(""), "  spaced: text "},
		{"[a, b]", reflect.TypeOf([]string(nil)), []string{"a", "b"}},
		{"{one: 1}", reflect.TypeOf(map[string]int32(nil)), map[string]int32{"one": 1}},
		{"{x: 1, y: 2}", reflect.TypeOf(record.PointValue{}), record.PointValue{X: 1, Y: 2}},
		{"none", reflect.TypeOf(transcoder.Option[int32]{}), transcoder.None[int32]()},
		{"", reflect.TypeOf(transcoder.Option[int32]{}), transcoder.None[int32]()},
		{"7", reflect.TypeOf(transcoder.Option[int32]{}), transcoder.Some[int32](7)},
		{"3", reflect.TypeOf((*record.Point)(nil)), resource.Handle(3)},
		{"3", reflect.TypeOf(library.PointHandle(0)), resource.Handle(3)},
	}
	for _, tc := range tests {
		t.Run(tc.typ.String()+"/"+tc.text, func(t *testing.T) {
			got, err := parseArg(tc.text, tc.typ)
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("parseArg = %#v, want %#v", got, tc.want)
			}
		})
	}
}

func TestParseArg_Errors(t *testing.T) {
	tests := []struct {
		text string
		typ  reflect.Type
	}{
		{"x", reflect.TypeOf(int32(0))},
		{"300", reflect.TypeOf(uint8(0))},
		{"-1", reflect.TypeOf((*record.Point)(nil))},
		{"[a", reflect.TypeOf([]string(nil))},
		{"x", reflect.TypeOf(transcoder.Option[int32]{})},
	}
	for _, tc := range tests {
		if _, err := parseArg(tc.text, tc.typ); err == nil {
			t.Errorf("parseArg(%q, %s) succeeded", tc.text, tc.typ)
		}
	}
}

func TestFormatValue(t *testing.T) {
	overflow := library.ErrorInc(18446744073709551615, 1)

	tests := []struct {
		name string
		v    any
		want string
	}{
		{"unit", nil, "()"},
		{"int", int32(-6), "-6"},
		{"string", "abab", `"abab"`},
		{"handle", resource.Handle(4), "handle 4"},
		{"none", transcoder.None[int32](), "none"},
		{"some", transcoder.Some[int32](2), "some(2)"},
		{"list", []string{"a", "b"}, `["a", "b"]`},
		{"map", map[string]int32{"zero": 0, "one": 1}, "{one: 1, zero: 0}"},
		{"record", record.PointValue{X: 2, Y: 3}, "{X:2 Y:3}"},
		{"ok", library.ErrorInc(0, 5), "ok(5)"},
		{"err", overflow, "err(integer overflow on an operation with 18446744073709551615 and 1)"},
		{"tuple", []any{int32(1), "a"}, `(1, "a")`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := formatValue(tc.v); got != tc.want {
				t.Errorf("formatValue = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestRunDemo(t *testing.T) {
	ctx := context.Background()
	s, err := openSession(ctx, options{plain: true})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close(ctx)

	var out bytes.Buffer
	if failed := runDemo(ctx, s, newPrinter(&out, true)); failed != 0 {
		t.Errorf("%d check(s) failed:\n%s", failed, out.String())
	}
	if strings.Contains(out.String(), "FAIL") {
		t.Errorf("output reports a failure:\n%s", out.String())
	}
}

func TestSession_Call(t *testing.T) {
	ctx := context.Background()
	s, err := openSession(ctx, options{plain: true})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close(ctx)

	f, err := s.function("i32-inc")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.call(ctx, f, nil); err == nil {
		t.Error("missing argument accepted")
	}
	if _, err := s.function("nope"); err == nil {
		t.Error("unknown function found")
	}

	f, _ = s.function("count-characters")
	if got, err := s.call(ctx, f, []string{"héllo"}); err != nil || got != "5" {
		t.Errorf("count-characters = %s, %v", got, err)
	}
}
