package main

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wippyai/ffi-boundary/idl"
	"github.com/wippyai/ffi-boundary/library"
	"github.com/wippyai/ffi-boundary/resource"
	"github.com/wippyai/ffi-boundary/runtime"
	"github.com/wippyai/ffi-boundary/transcoder"
)

// session is a runtime with the library bound and one instance.
type session struct {
	rt   *runtime.Runtime
	inst *runtime.Instance
	doc  *idl.Document
}

func openSession(ctx context.Context, opts options) (*session, error) {
	doc := idl.Library()
	if opts.describe != "" {
		d, err := idl.Load(opts.describe)
		if err != nil {
			return nil, err
		}
		doc = d
	}

	rt, err := runtime.New(ctx, runtime.Options{MemoryLimitPages: opts.memoryPages})
	if err != nil {
		return nil, fmt.Errorf("create runtime: %w", err)
	}
	if err := rt.RegisterHost(library.NewHost(rt.Handles())); err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("register library: %w", err)
	}
	if err := doc.Verify(rt.Hosts()); err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("verify bindings: %w", err)
	}

	inst, err := rt.Instantiate(ctx)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("instantiate: %w", err)
	}
	return &session{rt: rt, inst: inst, doc: doc}, nil
}

func (s *session) Close(ctx context.Context) {
	_ = s.inst.Close(ctx)
	_ = s.rt.Close(ctx)
}

// functions lists the declared functions of every interface sorted by
// name.
func (s *session) functions() []*idl.Function {
	var out []*idl.Function
	for _, iface := range s.doc.Interfaces {
		out = append(out, iface.Functions...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *session) function(name string) (*idl.Function, error) {
	for _, f := range s.functions() {
		if f.Name == name {
			return f, nil
		}
	}
	return nil, fmt.Errorf("unknown function %q", name)
}

// call parses text arguments against the bound handler's parameter
// types and calls the function.
func (s *session) call(ctx context.Context, f *idl.Function, texts []string) (string, error) {
	if f.IsCString() {
		if len(texts) != 1 {
			return "", fmt.Errorf("%s takes one string", f.Name)
		}
		n, err := s.inst.CallCString(ctx, f.Name, texts[0])
		if err != nil {
			return "", err
		}
		return strconv.FormatUint(uint64(n), 10), nil
	}

	types, err := s.paramTypes(f.Name)
	if err != nil {
		return "", err
	}
	if len(texts) != len(types) {
		return "", fmt.Errorf("%s takes %d argument(s), got %d", f.Name, len(types), len(texts))
	}
	args := make([]any, len(texts))
	for i, text := range texts {
		if args[i], err = parseArg(text, types[i]); err != nil {
			return "", fmt.Errorf("%s: %w", f.Params[i].Name, err)
		}
	}

	out, err := s.inst.Call(ctx, f.Name, args...)
	if err != nil {
		return "", err
	}
	return formatValue(out), nil
}

func (s *session) paramTypes(name string) ([]reflect.Type, error) {
	for _, ns := range s.rt.Hosts().Namespaces() {
		if w := s.rt.Engine().Wrapper(ns, name); w != nil {
			types := make([]reflect.Type, len(w.Params()))
			for i, ct := range w.Params() {
				types[i] = ct.GoType
			}
			return types, nil
		}
	}
	return nil, fmt.Errorf("%s is not bound", name)
}

var resourceNamerType = reflect.TypeOf((*runtime.ResourceNamer)(nil)).Elem()

// parseArg converts command-line text to a value of type t. Handles are
// written as their number, absent options as "none", and compound values
// in YAML flow syntax.
func parseArg(text string, t reflect.Type) (any, error) {
	if t.Implements(resourceNamerType) {
		h, err := strconv.ParseUint(text, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("handle %q: %w", text, err)
		}
		return resource.Handle(h), nil
	}

	if transcoder.IsOption(t) {
		v := reflect.New(t).Elem()
		if text == "" || text == "none" {
			return v.Interface(), nil
		}
		elem, err := parseArg(text, transcoder.OptionElem(t))
		if err != nil {
			return nil, err
		}
		v.FieldByName("Value").Set(reflect.ValueOf(elem))
		v.FieldByName("Present").SetBool(true)
		return v.Interface(), nil
	}

	if t.Kind() == reflect.String {
		return reflect.ValueOf(text).Convert(t).Interface(), nil
	}

	ptr := reflect.New(t)
	if err := yaml.Unmarshal([]byte(text), ptr.Interface()); err != nil {
		return nil, fmt.Errorf("%q is not a %s: %w", text, t, err)
	}
	return ptr.Elem().Interface(), nil
}

// formatValue renders a result for display.
func formatValue(v any) string {
	if v == nil {
		return "()"
	}
	if h, ok := v.(resource.Handle); ok {
		return "handle " + strconv.FormatUint(uint64(h), 10)
	}
	if vs, ok := v.([]any); ok {
		parts := make([]string, len(vs))
		for i, e := range vs {
			parts[i] = formatValue(e)
		}
		return "(" + strings.Join(parts, ", ") + ")"
	}

	rv := reflect.ValueOf(v)
	switch {
	case transcoder.IsOption(rv.Type()):
		if !rv.FieldByName("Present").Bool() {
			return "none"
		}
		return "some(" + formatValue(rv.FieldByName("Value").Interface()) + ")"
	case transcoder.IsResult(rv.Type()):
		ok, errv, isOk := resultParts(rv)
		if isOk {
			return "ok(" + formatValue(ok) + ")"
		}
		return "err(" + formatValue(errv) + ")"
	}

	switch rv.Kind() {
	case reflect.Map:
		keys := rv.MapKeys()
		sort.Slice(keys, func(i, j int) bool { return fmt.Sprint(keys[i]) < fmt.Sprint(keys[j]) })
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("%v: %v", k, rv.MapIndex(k))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case reflect.Slice:
		parts := make([]string, rv.Len())
		for i := range parts {
			parts[i] = formatValue(rv.Index(i).Interface())
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case reflect.String:
		return strconv.Quote(rv.String())
	case reflect.Struct:
		return fmt.Sprintf("%+v", v)
	}
	return fmt.Sprint(v)
}

func resultParts(rv reflect.Value) (ok, errv any, isOk bool) {
	out := rv.MethodByName("Get").Call(nil)
	return out[0].Interface(), out[1].Interface(), out[2].Bool()
}

