package runtime

import (
	stderrors "errors"
	"testing"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/ffi-boundary/engine"
	"github.com/wippyai/ffi-boundary/errors"
	"github.com/wippyai/ffi-boundary/library"
	"github.com/wippyai/ffi-boundary/resource"
)

type explicitHost struct{}

func (explicitHost) Namespace() string { return "test:explicit/api" }

func (explicitHost) Register() map[string]any {
	return map[string]any{
		"[method]point.get-x": func(x float64) float64 { return x },
	}
}

type badHost struct{}

func (badHost) Namespace() string  { return "test:bad/api" }
func (badHost) Stream(chan int)    {}
func (badHost) Fine(v int32) int32 { return v }

func TestHostRegistry_RegisterHost(t *testing.T) {
	r := NewHostRegistry()
	if err := r.RegisterHost(library.NewHost(resource.NewTable())); err != nil {
		t.Fatal(err)
	}

	want := []string{
		"bool-inc", "by-ref-inc", "double-inc", "error-inc", "error-inc-signed",
		"float-inc", "hash-map-inc", "i16-inc", "i32-inc", "i64-inc", "i8-inc",
		"new-point", "optional-inc", "point-clone", "point-drop", "point-get-x",
		"point-get-y", "point-inc", "point-set-x", "point-set-y", "string-inc",
		"u16-inc", "u32-inc", "u64-inc", "u8-inc", "vector-inc", "void-inc",
	}
	for _, name := range want {
		f, ok := r.Lookup(library.Namespace, name)
		if !ok {
			t.Errorf("%s not registered", name)
			continue
		}
		if f.IsCString() {
			t.Errorf("%s registered as a C-string function", name)
		}
	}

	f, ok := r.Lookup(library.Namespace, "count-characters")
	if !ok || !f.IsCString() {
		t.Error("count-characters not registered as a C-string function")
	}
	for _, reserved := range []string{"namespace", "c-string-functions"} {
		if _, ok := r.Lookup(library.Namespace, reserved); ok {
			t.Errorf("%s registered", reserved)
		}
	}
	if got := len(r.Functions(library.Namespace)); got != len(want)+1 {
		t.Errorf("%d functions, want %d", got, len(want)+1)
	}

	f, _ = r.Lookup(library.Namespace, "void-inc")
	if len(f.Signature.Params) != 1 || len(f.Signature.Results) != 0 {
		t.Errorf("void-inc signature %+v", f.Signature)
	}
	f, _ = r.Lookup(library.Namespace, "point-clone")
	if len(f.Signature.Results) != 1 {
		t.Errorf("trailing error counted in point-clone: %+v", f.Signature)
	}
}

func TestHostRegistry_Explicit(t *testing.T) {
	r := NewHostRegistry()
	if err := r.RegisterHost(explicitHost{}); err != nil {
		t.Fatal(err)
	}
	if _, ok := r.Lookup("test:explicit/api", "[method]point.get-x"); !ok {
		t.Error("explicit name not registered")
	}
	if _, ok := r.Lookup("test:explicit/api", "register"); ok {
		t.Error("Register bound as a function")
	}
}

func TestHostRegistry_Errors(t *testing.T) {
	r := NewHostRegistry()

	err := r.RegisterHost(badHost{})
	if !stderrors.Is(err, &errors.Error{Kind: errors.KindRegistration}) {
		t.Errorf("unsupported method: %v", err)
	}
	if !stderrors.Is(err, &errors.Error{Kind: errors.KindUnsupported}) {
		t.Errorf("cause lost: %v", err)
	}

	tests := []struct {
		name      string
		namespace string
		fn        string
		handler   any
		kind      errors.Kind
	}{
		{"empty namespace", "", "f", func() {}, errors.KindInvalidInput},
		{"empty name", "ns", "", func() {}, errors.KindInvalidInput},
		{"not a function", "ns", "f", 42, errors.KindTypeMismatch},
		{"nil handler", "ns", "f", nil, errors.KindTypeMismatch},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := r.RegisterFunc(tc.namespace, tc.fn, tc.handler)
			if !stderrors.Is(err, &errors.Error{Kind: tc.kind}) {
				t.Errorf("err = %v, want %s", err, tc.kind)
			}
		})
	}

	if err := r.RegisterFunc("ns", "dup", func() {}); err != nil {
		t.Fatal(err)
	}
	if err := r.RegisterFunc("ns", "dup", func() {}); !stderrors.Is(err, &errors.Error{Kind: errors.KindRegistration}) {
		t.Errorf("duplicate: %v", err)
	}
	if err := r.RegisterCString("ns", "raw", nil); err == nil {
		t.Error("nil C-string function accepted")
	}
}

func TestHostRegistry_ExplicitSignature(t *testing.T) {
	r := NewHostRegistry()
	sig := engine.Signature{Params: []wit.Type{wit.U32{}}, Results: []wit.Type{wit.U32{}}}
	if err := r.RegisterFuncWithSignature("ns", "id", sig, func(v uint32) uint32 { return v }); err != nil {
		t.Fatal(err)
	}
	f, ok := r.Lookup("ns", "id")
	if !ok || len(f.Signature.Params) != 1 {
		t.Errorf("lookup = %+v, %v", f, ok)
	}
	if got := r.Namespaces(); len(got) != 1 || got[0] != "ns" {
		t.Errorf("namespaces = %v", got)
	}
}
