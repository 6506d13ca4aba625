package engine

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/ffi-boundary/errors"
	"github.com/wippyai/ffi-boundary/transcoder"
)

// Call status codes written by raw C-string functions.
const (
	StatusOK       uint8 = 0
	StatusFailed   uint8 = 1 // the call reported an error; the message says which
	StatusInternal uint8 = 2 // the handler panicked
)

// Layout of the call status record: code u8 at 0, message pointer u32
// at 4, message length u32 at 8.
const (
	statusSize      = 12
	statusAlign     = 4
	statusMsgPtrOff = 4
	statusMsgLenOff = 8
)

// CStringFunc counts, measures or otherwise maps a string to a u32.
type CStringFunc func(string) (uint32, error)

// StatusError is a failure reported through a call status record.
type StatusError struct {
	Function string
	Message  string
	Code     uint8
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: call status %d: %s", e.Function, e.Code, e.Message)
}

// cstringParams is (string pointer, status pointer) -> u32.
var (
	cstringParams  = []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}
	cstringResults = []api.ValueType{api.ValueTypeI32}
)

// buildCStringFunc returns a host function taking a null-terminated
// string. A null string pointer traps; every other failure is written
// to the status record and the result is 0.
func buildCStringFunc(name string, fn CStringFunc) api.GoModuleFunc {
	return func(ctx context.Context, _ api.Module, stack []uint64) {
		inst := instanceFrom(ctx)
		if inst == nil {
			panic(errors.NotInitialized(errors.PhaseCall, "instance"))
		}
		ptr, status := uint32(stack[0]), uint32(stack[1])
		if ptr == 0 {
			err := errors.NullHandle(errors.PhaseLift, []string{"param[0]"}, "string pointer")
			Logger().Warn("null string pointer", zap.String("func", name))
			panic(err)
		}

		n, code, msg := runCString(ptr, inst, fn)
		stack[0] = uint64(n)
		if err := inst.writeStatus(status, code, msg); err != nil {
			panic(err)
		}
	}
}

func runCString(ptr uint32, inst *Instance, fn CStringFunc) (n uint32, code uint8, msg string) {
	s, err := transcoder.LiftCString(ptr, inst.mem)
	if err != nil {
		return 0, StatusFailed, err.Error()
	}

	defer func() {
		if r := recover(); r != nil {
			n, code, msg = 0, StatusInternal, fmt.Sprint(r)
		}
	}()
	n, err = fn(s)
	if err != nil {
		return 0, StatusFailed, err.Error()
	}
	return n, StatusOK, ""
}

// writeStatus fills the record at addr. Messages are allocated in the
// arena and freed by the caller once read.
func (i *Instance) writeStatus(addr uint32, code uint8, msg string) error {
	if addr == 0 {
		return nil
	}
	var ptr uint32
	if msg != "" {
		var err error
		if ptr, err = i.arena.Alloc(uint32(len(msg)), 1); err != nil {
			return err
		}
		if err := i.mem.Write(ptr, []byte(msg)); err != nil {
			return err
		}
	}
	if err := i.mem.WriteU8(addr, code); err != nil {
		return err
	}
	if err := i.mem.WriteU32(addr+statusMsgPtrOff, ptr); err != nil {
		return err
	}
	return i.mem.WriteU32(addr+statusMsgLenOff, uint32(len(msg)))
}

// readStatus decodes the record at addr and frees its message.
func (i *Instance) readStatus(function string, addr uint32) error {
	code, err := i.mem.ReadU8(addr)
	if err != nil {
		return err
	}
	if code == StatusOK {
		return nil
	}
	ptr, err := i.mem.ReadU32(addr + statusMsgPtrOff)
	if err != nil {
		return err
	}
	length, err := i.mem.ReadU32(addr + statusMsgLenOff)
	if err != nil {
		return err
	}
	var msg string
	if length > 0 {
		raw, err := i.mem.Read(ptr, length)
		if err != nil {
			return err
		}
		msg = string(raw)
		i.arena.Free(ptr, length, 1)
	}
	return &StatusError{Function: function, Code: code, Message: msg}
}
