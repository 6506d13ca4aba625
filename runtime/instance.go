package runtime

import (
	"context"
	"strings"

	"github.com/wippyai/ffi-boundary/engine"
	"github.com/wippyai/ffi-boundary/errors"
	"github.com/wippyai/ffi-boundary/memory"
)

// Instance is one guest with its own linear memory. Functions are
// addressed as "namespace#name", or by bare name when exactly one
// namespace registers it.
type Instance struct {
	runtime *Runtime
	inst    *engine.Instance
}

// Call invokes a function and returns its result: nil for functions
// without results, the value for one result, []any for several.
func (i *Instance) Call(ctx context.Context, name string, args ...any) (any, error) {
	ns, fn, err := i.resolve(name)
	if err != nil {
		return nil, err
	}
	out, err := i.inst.Call(ctx, ns, fn, args...)
	if err != nil {
		return nil, err
	}
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		return out[0], nil
	}
	return out, nil
}

// CallNS invokes namespace#name and returns every result.
func (i *Instance) CallNS(ctx context.Context, namespace, name string, args ...any) ([]any, error) {
	return i.inst.Call(ctx, namespace, name, args...)
}

// CallSerialized invokes a function with arguments and results in the
// serialized buffer format.
func (i *Instance) CallSerialized(ctx context.Context, name string, args []byte) ([]byte, error) {
	ns, fn, err := i.resolve(name)
	if err != nil {
		return nil, err
	}
	return i.inst.CallSerialized(ctx, ns, fn, args)
}

// CallCString invokes a raw C-string function.
func (i *Instance) CallCString(ctx context.Context, name, s string) (uint32, error) {
	ns, fn, err := i.resolve(name)
	if err != nil {
		return 0, err
	}
	return i.inst.CallCString(ctx, ns, fn, s)
}

// CallRaw invokes a function with core wasm values and no marshaling.
// Slots are not validated beyond their count; the host side rejects
// what it cannot lift.
func (i *Instance) CallRaw(ctx context.Context, name string, params ...uint64) ([]uint64, error) {
	ns, fn, err := i.resolve(name)
	if err != nil {
		return nil, err
	}
	return i.inst.CallRaw(ctx, ns, fn, params...)
}

func (i *Instance) resolve(name string) (namespace, fn string, err error) {
	if ns, fn, ok := strings.Cut(name, "#"); ok {
		return ns, fn, nil
	}
	var matches []string
	for _, ns := range i.runtime.hosts.Namespaces() {
		if _, ok := i.runtime.hosts.Lookup(ns, name); ok {
			matches = append(matches, ns)
		}
	}
	switch len(matches) {
	case 0:
		return "", "", errors.NotFound(errors.PhaseRuntime, "function", name)
	case 1:
		return matches[0], name, nil
	}
	return "", "", errors.InvalidInput(errors.PhaseRuntime,
		name+" is ambiguous across "+strings.Join(matches, ", "))
}

func (i *Instance) Name() string {
	return i.inst.Name()
}

func (i *Instance) Memory() *memory.Wrapper {
	return i.inst.Memory()
}

// Engine returns the underlying engine instance.
func (i *Instance) Engine() *engine.Instance {
	return i.inst
}

func (i *Instance) Close(ctx context.Context) error {
	return i.inst.Close(ctx)
}
