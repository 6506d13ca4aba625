package engine

import (
	"context"
	"reflect"
	"strconv"
	"sync"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/ffi-boundary/engine/internal/wasm"
	"github.com/wippyai/ffi-boundary/errors"
	"github.com/wippyai/ffi-boundary/memory"
	"github.com/wippyai/ffi-boundary/resource"
	"github.com/wippyai/ffi-boundary/transcoder"
)

var handleType = reflect.TypeOf(resource.Handle(0))

type instanceKey struct{}

func withInstance(ctx context.Context, i *Instance) context.Context {
	return context.WithValue(ctx, instanceKey{}, i)
}

// instanceFrom returns the instance a host function runs for.
func instanceFrom(ctx context.Context) *Instance {
	i, _ := ctx.Value(instanceKey{}).(*Instance)
	return i
}

// Instance is one guest stub with its own linear memory. Calls on an
// instance are serialized.
type Instance struct {
	engine *Engine
	mod    api.Module
	mem    *memory.Wrapper
	arena  *memory.Arena
	name   string
	mu     sync.Mutex
}

func newInstance(e *Engine, mod api.Module, name string) (*Instance, error) {
	mem := memory.Wrap(mod.ExportedMemory(wasm.MemoryExport))
	if mem == nil {
		_ = mod.Close(context.Background())
		return nil, errors.NotInitialized(errors.PhaseLoad, "guest memory")
	}
	return &Instance{
		engine: e,
		mod:    mod,
		mem:    mem,
		arena:  memory.NewArena(mem, e.cfg.ArenaBase),
		name:   name,
	}, nil
}

func (i *Instance) Name() string {
	return i.name
}

// Memory returns the instance's linear memory.
func (i *Instance) Memory() *memory.Wrapper {
	return i.mem
}

// Arena returns the allocator both sides of the boundary use.
func (i *Instance) Arena() *memory.Arena {
	return i.arena
}

// prepareCallContext makes the instance visible to host functions.
func (i *Instance) prepareCallContext(ctx context.Context) context.Context {
	return withInstance(ctx, i)
}

// Call invokes namespace#name with dynamically typed arguments.
//
// Each argument is compiled against its own Go type, so a handle
// parameter accepts either the object or a resource.Handle. A nil
// argument takes the handler's parameter type. Results come back in the
// handler's Go types, except top-level handles, which come back as
// resource.Handle holding the reference the callee gave up.
func (i *Instance) Call(ctx context.Context, namespace, name string, args ...any) ([]any, error) {
	f, err := i.engine.lookup(FuncKey(namespace, name))
	if err != nil {
		return nil, err
	}
	if f.wrapper == nil {
		return nil, errors.InvalidInput(errors.PhaseRuntime, f.key()+" takes a C string; use CallCString")
	}
	w := f.wrapper
	if len(args) != len(w.params) {
		return nil, errors.New(errors.PhaseLower, errors.KindInvalidInput).
			Detail("%s: expected %d arguments, got %d", f.key(), len(w.params), len(args)).
			Build()
	}

	argCts := make([]*transcoder.CompiledType, len(args))
	values := make([]reflect.Value, len(args))
	for n, a := range args {
		ct := w.params[n]
		v := reflect.ValueOf(a)
		if v.IsValid() && v.Type() != ct.GoType {
			witType := w.sigParam(n)
			if ct, err = i.engine.compiler.Compile(witType, v.Type()); err != nil {
				return nil, err
			}
		}
		if !v.IsValid() {
			rvs, err := transcoder.Values([]*transcoder.CompiledType{ct}, []any{nil}, errors.PhaseLower)
			if err != nil {
				return nil, err
			}
			v = rvs[0]
		}
		argCts[n] = ct
		values[n] = v
	}

	resCts, err := i.callerResults(w)
	if err != nil {
		return nil, err
	}
	out, err := i.call(ctx, f, argCts, values, resCts)
	if err != nil {
		return nil, err
	}
	return transcoder.Interfaces(out), nil
}

func (i *Instance) callerResults(w *LowerWrapper) ([]*transcoder.CompiledType, error) {
	out := make([]*transcoder.CompiledType, len(w.results))
	for n, ct := range w.results {
		if ct.Kind != transcoder.KindOwn && ct.Kind != transcoder.KindBorrow {
			out[n] = ct
			continue
		}
		hct, err := i.engine.compiler.Compile(w.sigResult(n), handleType)
		if err != nil {
			return nil, err
		}
		out[n] = hct
	}
	return out, nil
}

// CallValues invokes namespace#name with values already of the
// handler's parameter types and lifts results into the handler's
// result types.
func (i *Instance) CallValues(ctx context.Context, namespace, name string, values []reflect.Value) ([]reflect.Value, error) {
	f, err := i.engine.lookup(FuncKey(namespace, name))
	if err != nil {
		return nil, err
	}
	if f.wrapper == nil {
		return nil, errors.InvalidInput(errors.PhaseRuntime, f.key()+" takes a C string; use CallCString")
	}
	return i.call(ctx, f, f.wrapper.params, values, f.wrapper.results)
}

// CallSerialized invokes namespace#name with arguments and results in
// the serialized buffer format.
func (i *Instance) CallSerialized(ctx context.Context, namespace, name string, args []byte) ([]byte, error) {
	f, err := i.engine.lookup(FuncKey(namespace, name))
	if err != nil {
		return nil, err
	}
	if f.wrapper == nil {
		return nil, errors.InvalidInput(errors.PhaseRuntime, f.key()+" takes a C string; use CallCString")
	}
	values, err := i.engine.decoder.Deserialize(f.wrapper.params, args)
	if err != nil {
		return nil, err
	}
	out, err := i.call(ctx, f, f.wrapper.params, values, f.wrapper.results)
	if err != nil {
		return nil, err
	}
	buf := transcoder.NewWriter()
	if err := i.engine.encoder.Serialize(f.wrapper.results, out, buf, nil); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// call lowers values into this instance's memory, runs the trampoline
// and lifts the results. Every block and borrowed handle the call
// created is released before it returns.
func (i *Instance) call(ctx context.Context, f *boundFunc, argCts []*transcoder.CompiledType, values []reflect.Value, resCts []*transcoder.CompiledType) ([]reflect.Value, error) {
	fn := i.mod.ExportedFunction(f.key())
	if fn == nil {
		return nil, errors.NotFound(errors.PhaseRuntime, "export", f.key())
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	e := i.engine
	allocs := transcoder.NewAllocationList()
	defer allocs.FreeAndRelease(i.arena, e.cfg.Handles)

	flat, err := e.encoder.Lower(argCts, values, i.mem, i.arena, allocs)
	if err != nil {
		return nil, err
	}

	var retptr uint32
	if f.wrapper.usesRetptr {
		_, size, align := transcoder.TupleLayout(resCts)
		if retptr, err = i.arena.Alloc(size, align); err != nil {
			return nil, err
		}
		allocs.Add(retptr, size, align)
		flat = append(flat, uint64(retptr))
	}

	stack := make([]uint64, max(len(flat), len(f.results)))
	copy(stack, flat)

	log := Logger()
	log.Debug("call", zap.String("func", f.key()), zap.Int("slots", len(flat)))
	if err := fn.CallWithStack(i.prepareCallContext(ctx), stack); err != nil {
		log.Warn("call trapped", zap.String("func", f.key()), zap.Error(err))
		return nil, errors.Trap(f.key(), err)
	}

	frees := transcoder.NewAllocationList()
	defer func() {
		frees.Free(i.arena)
		frees.Release()
	}()

	if retptr != 0 {
		return e.decoder.LoadTuple(resCts, retptr, i.mem, frees)
	}
	n := len(f.wrapper.resultFlat)
	maskSlots(stack[:n], f.wrapper.resultFlat)
	return e.decoder.Lift(resCts, stack[:n], i.mem, frees)
}

// CallCString invokes a raw C-string function with s.
func (i *Instance) CallCString(ctx context.Context, namespace, name, s string) (uint32, error) {
	f, err := i.cstringFunc(namespace, name)
	if err != nil {
		return 0, err
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	allocs := transcoder.NewAllocationList()
	defer allocs.FreeAndRelease(i.arena, nil)
	ptr, err := transcoder.LowerCString(s, i.mem, i.arena, allocs)
	if err != nil {
		return 0, err
	}
	return i.callCString(ctx, f, ptr)
}

// CallCStringAt invokes a raw C-string function with a string already
// in memory at ptr. A zero ptr traps the call.
func (i *Instance) CallCStringAt(ctx context.Context, namespace, name string, ptr uint32) (uint32, error) {
	f, err := i.cstringFunc(namespace, name)
	if err != nil {
		return 0, err
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	return i.callCString(ctx, f, ptr)
}

func (i *Instance) cstringFunc(namespace, name string) (*boundFunc, error) {
	f, err := i.engine.lookup(FuncKey(namespace, name))
	if err != nil {
		return nil, err
	}
	if f.cstring == nil {
		return nil, errors.InvalidInput(errors.PhaseRuntime, f.key()+" is not a C-string function")
	}
	return f, nil
}

func (i *Instance) callCString(ctx context.Context, f *boundFunc, ptr uint32) (uint32, error) {
	status, err := i.arena.Alloc(statusSize, statusAlign)
	if err != nil {
		return 0, err
	}
	defer i.arena.Free(status, statusSize, statusAlign)
	if err := i.mem.Write(status, make([]byte, statusSize)); err != nil {
		return 0, err
	}

	stack := []uint64{uint64(ptr), uint64(status)}
	if err := i.mod.ExportedFunction(f.key()).CallWithStack(i.prepareCallContext(ctx), stack); err != nil {
		Logger().Warn("call trapped", zap.String("func", f.key()), zap.Error(err))
		return 0, errors.Trap(f.key(), err)
	}
	if err := i.readStatus(f.key(), status); err != nil {
		return 0, err
	}
	return uint32(stack[0]), nil
}

// CallRaw invokes an export with core wasm values and no marshaling.
func (i *Instance) CallRaw(ctx context.Context, namespace, name string, params ...uint64) ([]uint64, error) {
	key := FuncKey(namespace, name)
	fn := i.mod.ExportedFunction(key)
	if fn == nil {
		return nil, errors.NotFound(errors.PhaseRuntime, "export", key)
	}
	if got, want := len(params), len(fn.Definition().ParamTypes()); got != want {
		return nil, errors.InvalidInput(errors.PhaseRuntime,
			key+": expected "+strconv.Itoa(want)+" params, got "+strconv.Itoa(got))
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	out, err := fn.Call(i.prepareCallContext(ctx), params...)
	if err != nil {
		return nil, errors.Trap(key, err)
	}
	return out, nil
}

// Close releases the guest module.
func (i *Instance) Close(ctx context.Context) error {
	return i.mod.Close(ctx)
}
