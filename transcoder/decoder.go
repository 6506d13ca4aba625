package transcoder

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"unicode/utf8"

	"github.com/wippyai/ffi-boundary/errors"
	"github.com/wippyai/ffi-boundary/transcoder/internal/abi"
)

// Decoder lifts flat slots and linear memory into Go values, validating
// every slot, discriminant, length and text encoding on the way.
// Decoders hold no per-call state and may be shared.
type Decoder struct {
	handles HandleTable
}

// NewDecoder creates a decoder. handles may be nil when no own or borrow
// values are lifted.
func NewDecoder(handles HandleTable) *Decoder {
	return &Decoder{handles: handles}
}

// Lift lifts flat slots into values of the planned Go types. When frees is
// non-nil every memory block the values were read from is recorded in it,
// so the receiver can release blocks it now owns.
func (d *Decoder) Lift(cts []*CompiledType, flat []uint64, mem Memory, frees *AllocationList) ([]reflect.Value, error) {
	out := make([]reflect.Value, len(cts))
	off := 0
	for i, ct := range cts {
		v, used, err := d.lift(ct, flat[off:], mem, frees, []string{"param[" + strconv.Itoa(i) + "]"})
		if err != nil {
			return nil, err
		}
		out[i] = v
		off += used
	}
	if off != len(flat) {
		return nil, errors.New(errors.PhaseLift, errors.KindInvalidData).
			Detail("%d flat values left over", len(flat)-off).
			Build()
	}
	return out, nil
}

// LoadTuple reads values laid out consecutively at addr, the form results
// take behind a return pointer.
func (d *Decoder) LoadTuple(cts []*CompiledType, addr uint32, mem Memory, frees *AllocationList) ([]reflect.Value, error) {
	offsets, _, _ := TupleLayout(cts)
	out := make([]reflect.Value, len(cts))
	for i, ct := range cts {
		v, err := d.load(ct, addr+offsets[i], mem, frees, []string{"result[" + strconv.Itoa(i) + "]"})
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Load reads one value at addr.
func (d *Decoder) Load(ct *CompiledType, addr uint32, mem Memory, frees *AllocationList) (reflect.Value, error) {
	return d.load(ct, addr, mem, frees, nil)
}

// Interfaces converts lifted values back to dynamic form.
func Interfaces(values []reflect.Value) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v.Interface()
	}
	return out
}

func slotError(path []string, slot uint64, wit string) error {
	return errors.New(errors.PhaseLift, errors.KindInvalidData).
		Path(path...).
		WitType(wit).
		Value(slot).
		Detail("slot %#x is not a valid %s", slot, wit).
		Build()
}

func (d *Decoder) lift(ct *CompiledType, flat []uint64, mem Memory, frees *AllocationList, path []string) (reflect.Value, int, error) {
	n := len(ct.Flat)
	if len(flat) < n {
		return reflect.Value{}, 0, errors.New(errors.PhaseLift, errors.KindInvalidData).
			Path(path...).
			Detail("need %d flat values, have %d", n, len(flat)).
			Build()
	}

	out := reflect.New(ct.GoType).Elem()
	slot := flat[0]

	switch ct.Kind {
	case KindBool:
		b, ok := abi.SlotBool(slot)
		if !ok {
			return out, 0, slotError(path, slot, "bool")
		}
		out.SetBool(b)
	case KindU8:
		v, ok := abi.SlotU8(slot)
		if !ok {
			return out, 0, slotError(path, slot, "u8")
		}
		out.SetUint(uint64(v))
	case KindS8:
		v, ok := abi.SlotS8(slot)
		if !ok {
			return out, 0, slotError(path, slot, "s8")
		}
		out.SetInt(int64(v))
	case KindU16:
		v, ok := abi.SlotU16(slot)
		if !ok {
			return out, 0, slotError(path, slot, "u16")
		}
		out.SetUint(uint64(v))
	case KindS16:
		v, ok := abi.SlotS16(slot)
		if !ok {
			return out, 0, slotError(path, slot, "s16")
		}
		out.SetInt(int64(v))
	case KindU32:
		v, ok := abi.SlotU32(slot)
		if !ok {
			return out, 0, slotError(path, slot, "u32")
		}
		out.SetUint(uint64(v))
	case KindS32:
		v, ok := abi.SlotS32(slot)
		if !ok {
			return out, 0, slotError(path, slot, "s32")
		}
		out.SetInt(int64(v))
	case KindU64:
		out.SetUint(slot)
	case KindS64:
		out.SetInt(int64(slot))
	case KindF32:
		bits, ok := abi.SlotU32(slot)
		if !ok {
			return out, 0, slotError(path, slot, "f32")
		}
		out.SetFloat(float64(math.Float32frombits(bits)))
	case KindF64:
		out.SetFloat(math.Float64frombits(slot))

	case KindString, KindList:
		ptr, ok1 := abi.SlotU32(flat[0])
		length, ok2 := abi.SlotU32(flat[1])
		if !ok1 || !ok2 {
			return out, 0, slotError(path, flat[0], "pointer")
		}
		v, err := d.loadSpan(ct, ptr, length, mem, frees, path)
		if err != nil {
			return out, 0, err
		}
		out.Set(v)

	case KindRecord, KindTuple:
		off := 0
		for _, f := range ct.Fields {
			v, used, err := d.lift(f.Type, flat[off:], mem, frees, appendPath(path, f))
			if err != nil {
				return out, 0, err
			}
			out.Field(f.GoIndex).Set(v)
			off += used
		}

	case KindOption:
		switch slot {
		case 0:
		case 1:
			v, _, err := d.lift(ct.Elem, flat[1:n], mem, frees, subPath(path, "[some]"))
			if err != nil {
				return out, 0, err
			}
			out = makeOption(ct, v)
		default:
			return out, 0, errors.InvalidDiscriminant(errors.PhaseLift, path, uint32(slot), 1)
		}

	case KindResult:
		if slot > 1 {
			return out, 0, errors.InvalidDiscriminant(errors.PhaseLift, path, uint32(slot), 1)
		}
		isErr := slot == 1
		payloadType := ct.Ok
		if isErr {
			payloadType = ct.Err
		}
		var payload reflect.Value
		if payloadType != nil {
			v, _, err := d.lift(payloadType, flat[1:n], mem, frees, subPath(path, resultCase(isErr)))
			if err != nil {
				return out, 0, err
			}
			payload = v
		}
		setResult(out, payload, isErr)

	case KindEnum:
		disc, ok := abi.SlotU32(slot)
		if !ok || disc >= uint32(ct.Cases) {
			return out, 0, errors.InvalidDiscriminant(errors.PhaseLift, path, uint32(slot), uint32(ct.Cases-1))
		}
		setEnum(out, disc)

	case KindOwn, KindBorrow:
		h, ok := abi.SlotU32(slot)
		if !ok {
			return out, 0, slotError(path, slot, "handle")
		}
		v, err := d.liftHandle(ct, h, path)
		if err != nil {
			return out, 0, err
		}
		out.Set(v)

	default:
		return out, 0, errors.Unsupported(errors.PhaseLift, "lift "+ct.Kind.String())
	}

	return out, n, nil
}

func makeOption(ct *CompiledType, payload reflect.Value) reflect.Value {
	if ct.Repr == ReprPointer {
		p := reflect.New(ct.GoType.Elem())
		p.Elem().Set(payload)
		return p
	}
	out := reflect.New(ct.GoType).Elem()
	out.Field(optionValueField).Set(payload)
	out.Field(optionPresentField).SetBool(true)
	return out
}

func setResult(out, payload reflect.Value, isErr bool) {
	field := resultOKField
	if isErr {
		field = resultErrField
		out.Field(resultIsErrField).SetBool(true)
	}
	if payload.IsValid() {
		out.Field(field).Set(payload)
	}
}

func setEnum(out reflect.Value, disc uint32) {
	if out.CanUint() {
		out.SetUint(uint64(disc))
	} else {
		out.SetInt(int64(disc))
	}
}

func (d *Decoder) liftHandle(ct *CompiledType, h uint32, path []string) (reflect.Value, error) {
	what := ct.Resource
	if what == "" {
		what = "handle"
	}
	if h == 0 {
		return reflect.Value{}, errors.NullHandle(errors.PhaseLift, path, what)
	}

	if ct.Repr == ReprRawHandle {
		if d.handles != nil {
			if _, err := d.handles.Get(ct.Resource, h); err != nil {
				return reflect.Value{}, err
			}
		}
		v := reflect.New(ct.GoType).Elem()
		v.SetUint(uint64(h))
		return v, nil
	}

	if d.handles == nil {
		return reflect.Value{}, errors.NotInitialized(errors.PhaseLift, "handle table")
	}
	obj, err := d.handles.Get(ct.Resource, h)
	if err != nil {
		return reflect.Value{}, err
	}
	v := reflect.ValueOf(obj)
	if !v.IsValid() || !v.Type().AssignableTo(ct.GoType) {
		return reflect.Value{}, errors.TypeMismatch(errors.PhaseLift, path, typeName(obj), ct.GoType.String())
	}
	if ct.Kind == KindOwn {
		if err := d.handles.Release(ct.Resource, h); err != nil {
			return reflect.Value{}, err
		}
	}
	out := reflect.New(ct.GoType).Elem()
	out.Set(v)
	return out, nil
}

// loadSpan reads the string or list a (ptr, len) pair refers to.
func (d *Decoder) loadSpan(ct *CompiledType, ptr, length uint32, mem Memory, frees *AllocationList, path []string) (reflect.Value, error) {
	if ct.Kind == KindString {
		s, err := d.loadString(ptr, length, mem, frees, path)
		if err != nil {
			return reflect.Value{}, err
		}
		v := reflect.New(ct.GoType).Elem()
		v.SetString(s)
		return v, nil
	}
	return d.loadList(ct, ptr, length, mem, frees, path)
}

func (d *Decoder) loadString(ptr, length uint32, mem Memory, frees *AllocationList, path []string) (string, error) {
	if length == 0 {
		return "", nil
	}
	if length > MaxStringSize {
		return "", errors.Overflow(errors.PhaseLift, path, length, "string")
	}

	data, err := mem.Read(ptr, length)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", errors.InvalidUTF8(errors.PhaseLift, path, data)
	}
	if frees != nil {
		frees.Add(ptr, length, 1)
	}
	return string(data), nil
}

func (d *Decoder) loadList(ct *CompiledType, ptr, length uint32, mem Memory, frees *AllocationList, path []string) (reflect.Value, error) {
	if length > MaxListLength {
		return reflect.Value{}, errors.Overflow(errors.PhaseLift, path, length, "list")
	}

	elem := ct.Elem
	size, ok := safeMulU32(length, elem.WitSize)
	if !ok {
		return reflect.Value{}, errors.Overflow(errors.PhaseLift, path, length, "list")
	}

	if ct.Repr == ReprMap {
		return d.loadMap(ct, ptr, length, mem, frees, path)
	}

	out := reflect.MakeSlice(ct.GoType, int(length), int(length))
	if length == 0 {
		return out, nil
	}

	if elem.Kind == KindU8 {
		data, err := mem.Read(ptr, length)
		if err != nil {
			return reflect.Value{}, err
		}
		reflect.Copy(out, reflect.ValueOf(data))
	} else {
		for i := uint32(0); i < length; i++ {
			v, err := d.load(elem, ptr+i*elem.WitSize, mem, frees, subPath(path, "["+strconv.Itoa(int(i))+"]"))
			if err != nil {
				return reflect.Value{}, err
			}
			out.Index(int(i)).Set(v)
		}
	}

	if frees != nil {
		frees.Add(ptr, size, elem.WitAlign)
	}
	return out, nil
}

// loadMap rejects duplicate keys: a mapping crossing the boundary has
// unique keys by contract.
func (d *Decoder) loadMap(ct *CompiledType, ptr, length uint32, mem Memory, frees *AllocationList, path []string) (reflect.Value, error) {
	elem := ct.Elem
	key, val := elem.Fields[0], elem.Fields[1]
	out := reflect.MakeMapWithSize(ct.GoType, int(length))

	for i := uint32(0); i < length; i++ {
		base := ptr + i*elem.WitSize
		entryPath := subPath(path, "["+strconv.Itoa(int(i))+"]")
		k, err := d.load(key.Type, base+key.WitOffset, mem, frees, subPath(entryPath, "key"))
		if err != nil {
			return reflect.Value{}, err
		}
		v, err := d.load(val.Type, base+val.WitOffset, mem, frees, subPath(entryPath, "value"))
		if err != nil {
			return reflect.Value{}, err
		}
		if out.MapIndex(k).IsValid() {
			return reflect.Value{}, errors.InvalidData(errors.PhaseLift, entryPath, fmt.Sprintf("duplicate map key %v", k.Interface()))
		}
		out.SetMapIndex(k, v)
	}

	if frees != nil && length > 0 {
		frees.Add(ptr, length*elem.WitSize, elem.WitAlign)
	}
	return out, nil
}

func (d *Decoder) load(ct *CompiledType, addr uint32, mem Memory, frees *AllocationList, path []string) (reflect.Value, error) {
	out := reflect.New(ct.GoType).Elem()

	switch ct.Kind {
	case KindBool:
		b, err := mem.ReadU8(addr)
		if err != nil {
			return out, err
		}
		v, ok := abi.SlotBool(uint64(b))
		if !ok {
			return out, slotError(path, uint64(b), "bool")
		}
		out.SetBool(v)
	case KindU8:
		b, err := mem.ReadU8(addr)
		if err != nil {
			return out, err
		}
		out.SetUint(uint64(b))
	case KindS8:
		b, err := mem.ReadU8(addr)
		if err != nil {
			return out, err
		}
		out.SetInt(int64(int8(b)))
	case KindU16:
		v, err := mem.ReadU16(addr)
		if err != nil {
			return out, err
		}
		out.SetUint(uint64(v))
	case KindS16:
		v, err := mem.ReadU16(addr)
		if err != nil {
			return out, err
		}
		out.SetInt(int64(int16(v)))
	case KindU32:
		v, err := mem.ReadU32(addr)
		if err != nil {
			return out, err
		}
		out.SetUint(uint64(v))
	case KindS32:
		v, err := mem.ReadU32(addr)
		if err != nil {
			return out, err
		}
		out.SetInt(int64(int32(v)))
	case KindU64:
		v, err := mem.ReadU64(addr)
		if err != nil {
			return out, err
		}
		out.SetUint(v)
	case KindS64:
		v, err := mem.ReadU64(addr)
		if err != nil {
			return out, err
		}
		out.SetInt(int64(v))
	case KindF32:
		v, err := mem.ReadU32(addr)
		if err != nil {
			return out, err
		}
		out.SetFloat(float64(math.Float32frombits(v)))
	case KindF64:
		v, err := mem.ReadU64(addr)
		if err != nil {
			return out, err
		}
		out.SetFloat(math.Float64frombits(v))

	case KindString, KindList:
		ptr, err := mem.ReadU32(addr)
		if err != nil {
			return out, err
		}
		length, err := mem.ReadU32(addr + 4)
		if err != nil {
			return out, err
		}
		v, err := d.loadSpan(ct, ptr, length, mem, frees, path)
		if err != nil {
			return out, err
		}
		out.Set(v)

	case KindRecord, KindTuple:
		for _, f := range ct.Fields {
			v, err := d.load(f.Type, addr+f.WitOffset, mem, frees, appendPath(path, f))
			if err != nil {
				return out, err
			}
			out.Field(f.GoIndex).Set(v)
		}

	case KindOption:
		disc, err := mem.ReadU8(addr)
		if err != nil {
			return out, err
		}
		switch disc {
		case 0:
		case 1:
			v, err := d.load(ct.Elem, addr+ct.PayloadOff, mem, frees, subPath(path, "[some]"))
			if err != nil {
				return out, err
			}
			out = makeOption(ct, v)
		default:
			return out, errors.InvalidDiscriminant(errors.PhaseLift, path, uint32(disc), 1)
		}

	case KindResult:
		disc, err := mem.ReadU8(addr)
		if err != nil {
			return out, err
		}
		if disc > 1 {
			return out, errors.InvalidDiscriminant(errors.PhaseLift, path, uint32(disc), 1)
		}
		isErr := disc == 1
		payloadType := ct.Ok
		if isErr {
			payloadType = ct.Err
		}
		var payload reflect.Value
		if payloadType != nil {
			payload, err = d.load(payloadType, addr+ct.PayloadOff, mem, frees, subPath(path, resultCase(isErr)))
			if err != nil {
				return out, err
			}
		}
		setResult(out, payload, isErr)

	case KindEnum:
		disc, err := readDiscriminant(mem, addr, ct.WitSize)
		if err != nil {
			return out, err
		}
		if disc >= uint32(ct.Cases) {
			return out, errors.InvalidDiscriminant(errors.PhaseLift, path, disc, uint32(ct.Cases-1))
		}
		setEnum(out, disc)

	case KindOwn, KindBorrow:
		h, err := mem.ReadU32(addr)
		if err != nil {
			return out, err
		}
		v, err := d.liftHandle(ct, h, path)
		if err != nil {
			return out, err
		}
		out.Set(v)

	default:
		return out, errors.Unsupported(errors.PhaseLift, "load "+ct.Kind.String())
	}
	return out, nil
}

func readDiscriminant(mem Memory, addr, size uint32) (uint32, error) {
	switch size {
	case 1:
		v, err := mem.ReadU8(addr)
		return uint32(v), err
	case 2:
		v, err := mem.ReadU16(addr)
		return uint32(v), err
	default:
		return mem.ReadU32(addr)
	}
}

// subPath extends path without sharing its backing array.
func subPath(path []string, elem string) []string {
	out := make([]string, len(path), len(path)+1)
	copy(out, path)
	return append(out, elem)
}
