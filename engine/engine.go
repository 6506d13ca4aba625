package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/ffi-boundary/engine/internal/wasm"
	"github.com/wippyai/ffi-boundary/errors"
	"github.com/wippyai/ffi-boundary/transcoder"
)

// Defaults applied to zero Config fields.
const (
	DefaultMemoryLimitPages = 256 // 16MB
	DefaultArenaBase        = 1024
	DefaultModuleName       = "guest"
)

// Config holds configuration for engine creation.
type Config struct {
	// Handles backs own and borrow values. Required when any registered
	// function passes handles.
	Handles transcoder.HandleTable

	// ModuleName prefixes the names of guest instances.
	ModuleName string

	// MemoryLimitPages caps each instance's memory in 64KB pages.
	MemoryLimitPages uint32

	// ArenaBase is the lowest address the per-instance allocator hands
	// out. Memory below it is never touched by the boundary.
	ArenaBase uint32
}

func (c Config) withDefaults() Config {
	if c.ModuleName == "" {
		c.ModuleName = DefaultModuleName
	}
	if c.MemoryLimitPages == 0 {
		c.MemoryLimitPages = DefaultMemoryLimitPages
	}
	if c.ArenaBase == 0 {
		c.ArenaBase = DefaultArenaBase
	}
	return c
}

// Engine binds Go functions behind a wazero boundary. Functions are
// registered first; the first Instantiate seals the set, builds one host
// module per namespace and a guest stub that imports every function and
// re-exports it through a trampoline.
type Engine struct {
	runtime  wazero.Runtime
	compiler *transcoder.Compiler
	encoder  *transcoder.Encoder
	decoder  *transcoder.Decoder
	compiled wazero.CompiledModule
	funcs    map[string]*boundFunc
	cfg      Config
	order    []string
	mu       sync.Mutex
	seq      int
	sealed   bool
}

type boundFunc struct {
	wrapper   *LowerWrapper
	cstring   CStringFunc
	namespace string
	name      string
	params    []api.ValueType
	results   []api.ValueType
}

func (f *boundFunc) key() string {
	return FuncKey(f.namespace, f.name)
}

// FuncKey is the export name of a function in the guest stub.
func FuncKey(namespace, name string) string {
	return namespace + "#" + name
}

// New creates an engine with its own wazero runtime.
func New(ctx context.Context, cfg Config) (*Engine, error) {
	cfg = cfg.withDefaults()
	rc := wazero.NewRuntimeConfig().WithMemoryLimitPages(cfg.MemoryLimitPages)
	return &Engine{
		runtime:  wazero.NewRuntimeWithConfig(ctx, rc),
		compiler: transcoder.NewCompiler(),
		encoder:  transcoder.NewEncoder(cfg.Handles),
		decoder:  transcoder.NewDecoder(cfg.Handles),
		funcs:    make(map[string]*boundFunc),
		cfg:      cfg,
	}, nil
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Compiler returns the plan compiler shared by every function.
func (e *Engine) Compiler() *transcoder.Compiler {
	return e.compiler
}

// Register binds handler to namespace#name with the given signature.
func (e *Engine) Register(namespace, name string, sig Signature, handler any) error {
	w, err := NewLowerWrapper(name, sig, handler, e.compiler, e.cfg.Handles)
	if err != nil {
		return errors.Registration(errors.PhaseBind, namespace, name, err)
	}
	return e.add(&boundFunc{
		wrapper:   w,
		namespace: namespace,
		name:      name,
		params:    w.FlatParamTypes(),
		results:   w.FlatResultTypes(),
	})
}

// RegisterCString binds fn as (string pointer, status pointer) -> u32.
func (e *Engine) RegisterCString(namespace, name string, fn CStringFunc) error {
	if fn == nil {
		return errors.Registration(errors.PhaseBind, namespace, name,
			errors.InvalidInput(errors.PhaseBind, "nil function"))
	}
	return e.add(&boundFunc{
		cstring:   fn,
		namespace: namespace,
		name:      name,
		params:    cstringParams,
		results:   cstringResults,
	})
}

func (e *Engine) add(f *boundFunc) error {
	if f.namespace == "" || f.name == "" {
		return errors.InvalidInput(errors.PhaseBind, "namespace and name cannot be empty")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sealed {
		return errors.Registration(errors.PhaseBind, f.namespace, f.name,
			errors.InvalidInput(errors.PhaseBind, "engine already instantiated"))
	}
	key := f.key()
	if _, dup := e.funcs[key]; dup {
		return errors.Registration(errors.PhaseBind, f.namespace, f.name,
			errors.InvalidInput(errors.PhaseBind, "duplicate function"))
	}
	e.funcs[key] = f
	e.order = append(e.order, key)
	Logger().Debug("registered", zap.String("func", key),
		zap.Int("params", len(f.params)), zap.Int("results", len(f.results)))
	return nil
}

// Functions returns the keys of every registered function in
// registration order.
func (e *Engine) Functions() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.order...)
}

// Wrapper returns the typed wrapper of namespace#name, or nil for
// unknown and raw functions.
func (e *Engine) Wrapper(namespace, name string) *LowerWrapper {
	e.mu.Lock()
	defer e.mu.Unlock()
	if f, ok := e.funcs[FuncKey(namespace, name)]; ok {
		return f.wrapper
	}
	return nil
}

func (e *Engine) lookup(key string) (*boundFunc, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	f, ok := e.funcs[key]
	if !ok {
		return nil, errors.NotFound(errors.PhaseRuntime, "function", key)
	}
	return f, nil
}

// seal builds the host modules and compiles the guest stub once.
func (e *Engine) seal(ctx context.Context) error {
	if e.sealed {
		return nil
	}

	byNS := make(map[string][]*boundFunc)
	for _, key := range e.order {
		f := e.funcs[key]
		byNS[f.namespace] = append(byNS[f.namespace], f)
	}
	namespaces := make([]string, 0, len(byNS))
	for ns := range byNS {
		namespaces = append(namespaces, ns)
	}
	sort.Strings(namespaces)

	stub := wasm.NewStubBuilder()
	stub.SetMemory(1, e.cfg.MemoryLimitPages)

	for _, ns := range namespaces {
		builder := e.runtime.NewHostModuleBuilder(ns)
		for _, f := range byNS[ns] {
			var fn api.GoModuleFunc
			if f.cstring != nil {
				fn = buildCStringFunc(f.key(), f.cstring)
			} else {
				fn = f.wrapper.BuildRawFunc()
			}
			builder = builder.NewFunctionBuilder().
				WithGoModuleFunction(fn, f.params, f.results).
				WithName(f.name).
				Export(f.name)
			stub.AddFunc(ns, f.name, f.key(), f.params, f.results)
		}
		if _, err := builder.Instantiate(ctx); err != nil {
			return errors.Instantiation(fmt.Errorf("host module %s: %w", ns, err))
		}
	}

	compiled, err := e.runtime.CompileModule(ctx, stub.Build())
	if err != nil {
		return errors.Instantiation(fmt.Errorf("guest stub: %w", err))
	}
	e.compiled = compiled
	e.sealed = true
	Logger().Debug("sealed", zap.Int("namespaces", len(namespaces)), zap.Int("functions", len(e.order)))
	return nil
}

// Instantiate creates a guest instance with its own memory and arena.
func (e *Engine) Instantiate(ctx context.Context) (*Instance, error) {
	e.mu.Lock()
	if err := e.seal(ctx); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	e.seq++
	name := fmt.Sprintf("%s-%d", e.cfg.ModuleName, e.seq)
	compiled := e.compiled
	e.mu.Unlock()

	mod, err := e.runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(name))
	if err != nil {
		return nil, errors.Instantiation(err)
	}
	return newInstance(e, mod, name)
}

// Close releases the wazero runtime and every instance.
func (e *Engine) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}
