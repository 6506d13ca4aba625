package engine

import (
	"context"
	"fmt"
	"reflect"

	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"
	"go.uber.org/zap"

	"github.com/wippyai/ffi-boundary/errors"
	"github.com/wippyai/ffi-boundary/transcoder"
)

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// Signature is the boundary type of one function.
type Signature struct {
	Params  []wit.Type
	Results []wit.Type
}

// LowerWrapper adapts a Go handler to a core wasm host function. The
// host function lifts its parameters from flat slots, calls the handler
// and lowers the results onto the stack or behind the return pointer.
//
// The handler may take a leading context.Context and may return a
// trailing error. A non-nil error aborts the call with a trap.
type LowerWrapper struct {
	name        string
	sig         Signature
	handler     reflect.Value
	encoder     *transcoder.Encoder
	decoder     *transcoder.Decoder
	handles     transcoder.HandleTable
	params      []*transcoder.CompiledType
	results     []*transcoder.CompiledType
	paramFlat   []transcoder.FlatType
	resultFlat  []transcoder.FlatType
	hasCtx      bool
	returnsErr  bool
	usesRetptr  bool
	paramOffset int
}

// NewLowerWrapper checks handler against sig and compiles its plans.
func NewLowerWrapper(name string, sig Signature, handler any, c *transcoder.Compiler, handles transcoder.HandleTable) (*LowerWrapper, error) {
	hv := reflect.ValueOf(handler)
	if hv.Kind() != reflect.Func {
		return nil, errors.New(errors.PhaseBind, errors.KindTypeMismatch).
			GoType(fmt.Sprintf("%T", handler)).
			Detail("handler for %s must be a function", name).
			Build()
	}
	ht := hv.Type()

	w := &LowerWrapper{
		name:    name,
		sig:     sig,
		handler: hv,
		encoder: transcoder.NewEncoder(handles),
		decoder: transcoder.NewDecoder(handles),
		handles: handles,
	}
	if ht.NumIn() > 0 && ht.In(0) == contextType {
		w.hasCtx = true
		w.paramOffset = 1
	}
	numOut := ht.NumOut()
	if numOut > 0 && ht.Out(numOut-1) == errorType {
		w.returnsErr = true
		numOut--
	}

	if got := ht.NumIn() - w.paramOffset; got != len(sig.Params) {
		return nil, errors.InvalidInput(errors.PhaseBind,
			fmt.Sprintf("%s: param count mismatch: expected %d, got %d", name, len(sig.Params), got))
	}
	if numOut != len(sig.Results) {
		return nil, errors.InvalidInput(errors.PhaseBind,
			fmt.Sprintf("%s: result count mismatch: expected %d, got %d", name, len(sig.Results), numOut))
	}

	for i, p := range sig.Params {
		ct, err := c.Compile(p, ht.In(w.paramOffset+i))
		if err != nil {
			return nil, fmt.Errorf("%s: param %d: %w", name, i, err)
		}
		w.params = append(w.params, ct)
	}
	for i, r := range sig.Results {
		ct, err := c.Compile(r, ht.Out(i))
		if err != nil {
			return nil, fmt.Errorf("%s: result %d: %w", name, i, err)
		}
		w.results = append(w.results, ct)
	}

	w.paramFlat = transcoder.Flatten(w.params)
	w.resultFlat = transcoder.Flatten(w.results)
	if len(w.paramFlat) > transcoder.MaxFlatParams {
		return nil, errors.Unsupported(errors.PhaseBind,
			fmt.Sprintf("%s: %d flat params exceed %d", name, len(w.paramFlat), transcoder.MaxFlatParams))
	}
	w.usesRetptr = len(w.resultFlat) > transcoder.MaxFlatResults
	return w, nil
}

func (w *LowerWrapper) Name() string {
	return w.name
}

// Params returns the compiled parameter plans.
func (w *LowerWrapper) Params() []*transcoder.CompiledType {
	return w.params
}

// Results returns the compiled result plans.
func (w *LowerWrapper) Results() []*transcoder.CompiledType {
	return w.results
}

func (w *LowerWrapper) Signature() Signature {
	return w.sig
}

func (w *LowerWrapper) sigParam(i int) wit.Type  { return w.sig.Params[i] }
func (w *LowerWrapper) sigResult(i int) wit.Type { return w.sig.Results[i] }

// UsesRetptr reports whether results are returned through memory.
func (w *LowerWrapper) UsesRetptr() bool {
	return w.usesRetptr
}

func (w *LowerWrapper) FlatParamTypes() []api.ValueType {
	types := valueTypes(w.paramFlat)
	if w.usesRetptr {
		types = append(types, api.ValueTypeI32)
	}
	return types
}

func (w *LowerWrapper) FlatResultTypes() []api.ValueType {
	if w.usesRetptr {
		return nil
	}
	return valueTypes(w.resultFlat)
}

func valueTypes(flat []transcoder.FlatType) []api.ValueType {
	types := make([]api.ValueType, len(flat))
	for i, f := range flat {
		switch f {
		case transcoder.FlatI64:
			types[i] = api.ValueTypeI64
		case transcoder.FlatF32:
			types[i] = api.ValueTypeF32
		case transcoder.FlatF64:
			types[i] = api.ValueTypeF64
		default:
			types[i] = api.ValueTypeI32
		}
	}
	return types
}

// maskSlots clears the bits above 32 of i32 and f32 slots, which the
// core stack leaves unspecified.
func maskSlots(stack []uint64, flat []transcoder.FlatType) {
	for i, f := range flat {
		if i >= len(stack) {
			return
		}
		if f == transcoder.FlatI32 || f == transcoder.FlatF32 {
			stack[i] = uint64(uint32(stack[i]))
		}
	}
}

// BuildRawFunc returns the host function. Every failure panics so the
// guest call traps; the panic value is always an error.
func (w *LowerWrapper) BuildRawFunc() api.GoModuleFunc {
	return func(ctx context.Context, _ api.Module, stack []uint64) {
		inst := instanceFrom(ctx)
		if inst == nil {
			panic(errors.NotInitialized(errors.PhaseCall, "instance"))
		}
		log := Logger()

		n := len(w.paramFlat)
		flat := make([]uint64, n)
		copy(flat, stack[:n])
		maskSlots(flat, w.paramFlat)

		args, err := w.decoder.Lift(w.params, flat, inst.mem, nil)
		if err != nil {
			log.Warn("lift params failed", zap.String("func", w.name), zap.Error(err))
			panic(err)
		}

		in := args
		if w.hasCtx {
			in = append([]reflect.Value{reflect.ValueOf(ctx)}, args...)
		}
		out := w.handler.Call(in)

		if w.returnsErr {
			last := out[len(out)-1]
			out = out[:len(out)-1]
			if !last.IsNil() {
				err := last.Interface().(error)
				log.Debug("handler failed", zap.String("func", w.name), zap.Error(err))
				panic(err)
			}
		}
		if len(w.results) == 0 {
			return
		}

		allocs := transcoder.NewAllocationList()
		if w.usesRetptr {
			err = w.encoder.StoreTuple(w.results, out, uint32(stack[n]), inst.mem, inst.arena, allocs)
		} else {
			var lowered []uint64
			lowered, err = w.encoder.Lower(w.results, out, inst.mem, inst.arena, allocs)
			copy(stack, lowered)
		}
		if err != nil {
			allocs.FreeAndRelease(inst.arena, w.handles)
			log.Warn("lower results failed", zap.String("func", w.name), zap.Error(err))
			panic(err)
		}
		// the caller owns the result memory now
		allocs.Release()
	}
}
