package idl

import (
	stderrors "errors"
	"fmt"

	"github.com/wippyai/ffi-boundary/engine"
	"github.com/wippyai/ffi-boundary/errors"
	"github.com/wippyai/ffi-boundary/runtime"
)

// Verify checks that reg implements every function the document
// declares with the declared types. Functions reg lacks are reported
// together as one *errors.MissingFunctionsError; each signature that
// differs is reported as a type mismatch.
func (d *Document) Verify(reg *runtime.HostRegistry) error {
	var missing []string
	var errs []error

	for _, iface := range d.Interfaces {
		for _, f := range iface.Functions {
			key := engine.FuncKey(iface.Name, f.Name)
			hf, ok := reg.Lookup(iface.Name, f.Name)
			if !ok {
				missing = append(missing, key)
				continue
			}
			if err := f.check(key, hf); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if len(missing) > 0 {
		errs = append([]error{errors.NewMissingFunctionsError(missing)}, errs...)
	}
	return stderrors.Join(errs...)
}

func (f *Function) check(key string, hf *runtime.HostFunc) error {
	mismatch := func(detail string, args ...any) error {
		return errors.New(errors.PhaseBind, errors.KindTypeMismatch).
			Path(key).
			Detail(detail, args...).
			Build()
	}

	if f.IsCString() != hf.IsCString() {
		return mismatch("declared abi %q, bound %q", f.ABI, abiOf(hf))
	}
	if f.IsCString() {
		return nil
	}

	want, got := f.sig, hf.Signature
	if len(want.Params) != len(got.Params) || len(want.Results) != len(got.Results) {
		return mismatch("declared %d -> %d values, bound %d -> %d",
			len(want.Params), len(want.Results), len(got.Params), len(got.Results))
	}
	for i := range want.Params {
		if !Equal(want.Params[i], got.Params[i]) {
			return errors.New(errors.PhaseBind, errors.KindTypeMismatch).
				Path(key, f.Params[i].Name).
				WitType(Format(want.Params[i])).
				Detail("bound as %s", Format(got.Params[i])).
				Build()
		}
	}
	for i := range want.Results {
		if !Equal(want.Results[i], got.Results[i]) {
			return errors.New(errors.PhaseBind, errors.KindTypeMismatch).
				Path(key, fmt.Sprintf("result %d", i)).
				WitType(Format(want.Results[i])).
				Detail("bound as %s", Format(got.Results[i])).
				Build()
		}
	}
	return nil
}

func abiOf(hf *runtime.HostFunc) string {
	if hf.IsCString() {
		return ABICString
	}
	return "canonical"
}

// Register binds fn to a declared function using the declared
// signature instead of one inferred from fn.
func (d *Document) Register(reg *runtime.HostRegistry, namespace, name string, fn any) error {
	iface, ok := d.Interface(namespace)
	if !ok {
		return errors.NotFound(errors.PhaseBind, "interface", namespace)
	}
	f, ok := iface.Function(name)
	if !ok {
		return errors.NotFound(errors.PhaseBind, "function", engine.FuncKey(namespace, name))
	}
	if f.IsCString() {
		cf, ok := fn.(func(string) (uint32, error))
		if !ok {
			return errors.TypeMismatch(errors.PhaseBind, []string{name}, fmt.Sprintf("%T", fn), ABICString)
		}
		return reg.RegisterCString(namespace, name, cf)
	}
	return reg.RegisterFuncWithSignature(namespace, name, f.sig, fn)
}
