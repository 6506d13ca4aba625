package runtime

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/ffi-boundary/engine"
	"github.com/wippyai/ffi-boundary/errors"
	"github.com/wippyai/ffi-boundary/transcoder"
)

// Host is the interface for struct-based host modules.
// All exported methods (except Namespace) are registered as host functions.
type Host interface {
	// Namespace returns the interface name (e.g., "ffi:library/api@0.1.0").
	Namespace() string
}

// CStringHost extends Host with functions that take a null-terminated
// string pointer and report failures through a call status record.
type CStringHost interface {
	Host
	CStringFunctions() map[string]func(string) (uint32, error)
}

// ExplicitRegistrar allows hosts to provide exact function names
// when automatic PascalCase-to-kebab-case conversion doesn't apply.
type ExplicitRegistrar interface {
	Register() map[string]any
}

// methods a host implements for the registry rather than for callers
var reservedMethods = map[string]bool{
	"Namespace":        true,
	"CStringFunctions": true,
	"Register":         true,
}

type HostFunc struct {
	Handler   any
	CString   engine.CStringFunc
	Signature engine.Signature
	Namespace string
	Name      string
}

// IsCString reports whether the function uses the raw C-string ABI.
func (f *HostFunc) IsCString() bool {
	return f.CString != nil
}

type HostRegistry struct {
	funcs    map[string]map[string]*HostFunc
	inferrer *Inferrer
	mu       sync.RWMutex
}

func NewHostRegistry() *HostRegistry {
	return &HostRegistry{
		funcs:    make(map[string]map[string]*HostFunc),
		inferrer: NewInferrer(),
	}
}

// Inferrer returns the type inferrer shared by every registered function.
func (r *HostRegistry) Inferrer() *Inferrer {
	return r.inferrer
}

func (r *HostRegistry) RegisterHost(h Host) error {
	ns := h.Namespace()
	if ns == "" {
		return errors.InvalidInput(errors.PhaseBind, "namespace cannot be empty")
	}

	handlers := make(map[string]any)
	if er, ok := h.(ExplicitRegistrar); ok {
		for name, handler := range er.Register() {
			handlers[name] = handler
		}
	} else {
		rv := reflect.ValueOf(h)
		rt := rv.Type()
		for i := 0; i < rt.NumMethod(); i++ {
			method := rt.Method(i)
			if !method.IsExported() || reservedMethods[method.Name] {
				continue
			}
			handlers[transcoder.KebabCase(method.Name)] = rv.Method(i).Interface()
		}
	}

	for _, name := range sortedKeys(handlers) {
		if err := r.RegisterFunc(ns, name, handlers[name]); err != nil {
			return err
		}
	}

	if ch, ok := h.(CStringHost); ok {
		for name, fn := range ch.CStringFunctions() {
			if err := r.RegisterCString(ns, name, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// RegisterFunc registers fn with a signature inferred from its Go type.
func (r *HostRegistry) RegisterFunc(namespace, name string, fn any) error {
	if err := checkName(namespace, name); err != nil {
		return err
	}
	rv := reflect.ValueOf(fn)
	if rv.Kind() != reflect.Func {
		return errors.New(errors.PhaseBind, errors.KindTypeMismatch).
			GoType(fmt.Sprintf("%T", fn)).
			Detail("handler must be a function").
			Build()
	}
	sig, err := r.inferrer.Signature(rv.Type())
	if err != nil {
		return errors.Registration(errors.PhaseBind, namespace, name, err)
	}
	return r.put(&HostFunc{Handler: fn, Signature: sig, Namespace: namespace, Name: name})
}

// RegisterFuncWithSignature registers fn under an explicit signature,
// for Go types inference cannot map on its own.
func (r *HostRegistry) RegisterFuncWithSignature(namespace, name string, sig engine.Signature, fn any) error {
	if err := checkName(namespace, name); err != nil {
		return err
	}
	return r.put(&HostFunc{Handler: fn, Signature: sig, Namespace: namespace, Name: name})
}

// RegisterCString registers fn as a raw C-string function.
func (r *HostRegistry) RegisterCString(namespace, name string, fn engine.CStringFunc) error {
	if err := checkName(namespace, name); err != nil {
		return err
	}
	if fn == nil {
		return errors.InvalidInput(errors.PhaseBind, "nil function")
	}
	return r.put(&HostFunc{CString: fn, Namespace: namespace, Name: name})
}

func checkName(namespace, name string) error {
	if namespace == "" {
		return errors.InvalidInput(errors.PhaseBind, "namespace cannot be empty")
	}
	if name == "" {
		return errors.InvalidInput(errors.PhaseBind, "function name cannot be empty")
	}
	return nil
}

func (r *HostRegistry) put(f *HostFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.funcs[f.Namespace] == nil {
		r.funcs[f.Namespace] = make(map[string]*HostFunc)
	}
	if _, dup := r.funcs[f.Namespace][f.Name]; dup {
		return errors.Registration(errors.PhaseBind, f.Namespace, f.Name,
			errors.InvalidInput(errors.PhaseBind, "duplicate function"))
	}
	r.funcs[f.Namespace][f.Name] = f
	return nil
}

// Lookup returns the function registered as namespace#name.
func (r *HostRegistry) Lookup(namespace, name string) (*HostFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.funcs[namespace][name]
	return f, ok
}

// Namespaces returns every namespace with at least one function, sorted.
func (r *HostRegistry) Namespaces() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.funcs)
}

// Functions returns the functions of one namespace sorted by name.
func (r *HostRegistry) Functions(namespace string) []*HostFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	funcs := r.funcs[namespace]
	out := make([]*HostFunc, 0, len(funcs))
	for _, name := range sortedKeys(funcs) {
		out = append(out, funcs[name])
	}
	return out
}

// Bind registers every host function with e. Namespaces and names are
// bound in sorted order so guest stubs come out identical across runs.
func (r *HostRegistry) Bind(e *engine.Engine) error {
	for _, ns := range r.Namespaces() {
		for _, f := range r.Functions(ns) {
			var err error
			if f.IsCString() {
				err = e.RegisterCString(ns, f.Name, f.CString)
			} else {
				err = e.Register(ns, f.Name, f.Signature, f.Handler)
			}
			if err != nil {
				return err
			}
		}
		engine.Logger().Debug("bound namespace", zap.String("namespace", ns), zap.Int("functions", len(r.Functions(ns))))
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
