package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/wippyai/ffi-boundary/engine"
	"github.com/wippyai/ffi-boundary/errors"
)

type demoCase struct {
	fn   string
	args []string
	want string
}

var catalog = []demoCase{
	{"bool-inc", []string{"true"}, "false"},
	{"i8-inc", []string{"-1"}, "0"},
	{"i16-inc", []string{"41"}, "42"},
	{"i32-inc", []string{"-7"}, "-6"},
	{"i64-inc", []string{"1099511627776"}, "1099511627777"},
	{"u8-inc", []string{"254"}, "255"},
	{"u16-inc", []string{"9"}, "10"},
	{"u32-inc", []string{"4294967294"}, "4294967295"},
	{"u64-inc", []string{"9223372036854775808"}, "9223372036854775809"},
	{"float-inc", []string{"1.5"}, "2.5"},
	{"double-inc", []string{"-0.5"}, "0.5"},
	{"string-inc", []string{"ab"}, `"abab"`},
	{"optional-inc", []string{"1"}, "some(2)"},
	{"optional-inc", []string{"none"}, "none"},
	{"vector-inc", []string{"[a, b]"}, `["a", "b", "a", "b"]`},
	{"hash-map-inc", []string{"{one: 1}"}, "{one: 1, zero: 0}"},
	{"point-inc", []string{"{x: 1, y: 2}"}, "{X:2 Y:3}"},
	{"void-inc", []string{"5"}, "()"},
	{"error-inc", []string{"0", "5"}, "ok(5)"},
	{"error-inc", []string{"18446744073709551615", "1"},
		"err(integer overflow on an operation with 18446744073709551615 and 1)"},
	{"error-inc-signed", []string{"-2147483648", "-1"},
		"err(integer overflow on an operation with -2147483648 and -1)"},
	{"count-characters", []string{"päivää"}, "6"},
}

// runDemo runs the catalog, the shared point scenario and the failure
// scenarios. It returns the number of failed checks.
func runDemo(ctx context.Context, s *session, p *printer) int {
	failed := 0
	tally := func(ok bool) {
		if !ok {
			failed++
		}
	}

	p.title("operations")
	for _, c := range catalog {
		call := c.fn + "(" + strings.Join(c.args, ", ") + ")"
		f, err := s.function(c.fn)
		if err != nil {
			tally(p.check(call, err.Error(), c.want))
			continue
		}
		got, err := s.call(ctx, f, c.args)
		if err != nil {
			got = "error: " + err.Error()
		}
		tally(p.check(call, got, c.want))
	}

	p.title("shared point")
	tally(sharedPoint(ctx, s, p))

	p.title("boundary failures")
	tally(failures(ctx, s, p))

	return failed
}

// callText calls fn by name with text arguments.
func (s *session) callText(ctx context.Context, fn string, args ...string) (string, error) {
	f, err := s.function(fn)
	if err != nil {
		return "", err
	}
	return s.call(ctx, f, args)
}

// sharedPoint creates a point, clones its handle, increments it through
// one handle and reads it back through both.
func sharedPoint(ctx context.Context, s *session, p *printer) bool {
	h, err := s.callText(ctx, "new-point", "1", "2")
	if err != nil {
		return p.check("new-point(1, 2)", err.Error(), "a handle")
	}
	h = strings.TrimPrefix(h, "handle ")

	clone, err := s.callText(ctx, "point-clone", h)
	if err != nil {
		return p.check("point-clone("+h+")", err.Error(), "a handle")
	}
	clone = strings.TrimPrefix(clone, "handle ")

	if _, err := s.callText(ctx, "by-ref-inc", h); err != nil {
		return p.check("by-ref-inc("+h+")", err.Error(), "()")
	}

	ok := true
	for _, handle := range []string{h, clone} {
		x, errX := s.callText(ctx, "point-get-x", handle)
		y, errY := s.callText(ctx, "point-get-y", handle)
		got := fmt.Sprintf("(%s, %s)", x, y)
		if err := stderrors.Join(errX, errY); err != nil {
			got = err.Error()
		}
		ok = p.check("point via handle "+handle, got, "(2, 3)") && ok
	}

	for _, handle := range []string{h, clone} {
		if _, err := s.callText(ctx, "point-drop", handle); err != nil {
			ok = p.check("point-drop("+handle+")", err.Error(), "()") && ok
		}
	}
	return p.check("live handles after drop", fmt.Sprint(s.rt.Handles().Len()), "0") && ok
}

// failures shows the two abort paths: invalid text rejected at the
// boundary and a null handle trapping the call. The instance keeps
// working afterwards.
func failures(ctx context.Context, s *session, p *printer) bool {
	ok := true

	_, err := s.inst.Call(ctx, "string-inc", "a\xffb")
	ok = p.check(`string-inc("a\xffb")`, kindOf(err), string(errors.KindInvalidUTF8)) && ok

	_, err = s.inst.CallRaw(ctx, "by-ref-inc", 0)
	ok = p.check("by-ref-inc(null)", kindOf(err), string(errors.KindNullHandle)+" trap") && ok

	_, err = s.inst.CallCString(ctx, "count-characters", "a\x00b")
	ok = p.check(`count-characters("a\x00b")`, kindOf(err), string(errors.KindInteriorNul)) && ok

	got, err := s.callText(ctx, "i32-inc", "1")
	if err != nil {
		got = err.Error()
	}
	return p.check("i32-inc(1) after failures", got, "2") && ok
}

// kindOf names the failure of err; traps are suffixed with " trap".
func kindOf(err error) string {
	if err == nil {
		return "no error"
	}
	var se *engine.StatusError
	if stderrors.As(err, &se) {
		return fmt.Sprintf("status %d", se.Code)
	}

	kind := "unknown"
	for _, k := range []errors.Kind{
		errors.KindInvalidUTF8, errors.KindNullHandle, errors.KindInteriorNul,
		errors.KindInvalidHandle, errors.KindOutOfBounds, errors.KindOverflow,
	} {
		if stderrors.Is(err, &errors.Error{Kind: k}) {
			kind = string(k)
			break
		}
	}
	if stderrors.Is(err, &errors.Error{Kind: errors.KindTrap}) {
		kind += " trap"
	}
	return kind
}
