package transcoder

import (
	"math"
	"reflect"
	"sort"
	"strconv"
	"unicode/utf8"

	"github.com/wippyai/ffi-boundary/errors"
	"github.com/wippyai/ffi-boundary/transcoder/internal/abi"
)

// Canonical ABI limits for flat encoding
const (
	MaxFlatParams  = 16
	MaxFlatResults = 1
)

const (
	MaxStringSize = abi.MaxStringSize
	MaxListLength = abi.MaxListLength
	MaxAlloc      = abi.MaxAlloc
)

var (
	safeMulU32 = abi.SafeMulU32
	typeName   = abi.TypeName
)

// Encoder lowers Go values into flat slots and linear memory.
// Encoders hold no per-call state and may be shared.
type Encoder struct {
	handles HandleTable
}

// NewEncoder creates an encoder. handles may be nil when no own or
// borrow values are lowered.
func NewEncoder(handles HandleTable) *Encoder {
	return &Encoder{handles: handles}
}

// LowerValues lowers dynamically typed values. Each value must have
// exactly the Go type its plan was compiled for.
func (e *Encoder) LowerValues(cts []*CompiledType, values []any, mem Memory, alloc Allocator, allocs *AllocationList) ([]uint64, error) {
	rvs, err := Values(cts, values, errors.PhaseLower)
	if err != nil {
		return nil, err
	}
	return e.Lower(cts, rvs, mem, alloc, allocs)
}

// Values converts dynamic values to reflect values of the planned types.
func Values(cts []*CompiledType, values []any, phase errors.Phase) ([]reflect.Value, error) {
	if len(cts) != len(values) {
		return nil, errors.New(phase, errors.KindInvalidInput).
			Detail("value count mismatch: expected %d, got %d", len(cts), len(values)).
			Build()
	}

	rvs := make([]reflect.Value, len(values))
	for i, ct := range cts {
		v := reflect.ValueOf(values[i])
		switch {
		case !v.IsValid() && nilable(ct.GoType):
			v = reflect.Zero(ct.GoType)
		case !v.IsValid() || v.Type() != ct.GoType:
			return nil, errors.New(phase, errors.KindTypeMismatch).
				Path("param["+strconv.Itoa(i)+"]").
				GoType(typeName(values[i])).
				WitType(ct.Kind.String()).
				Detail("expected Go type %s", ct.GoType).
				Build()
		}
		rvs[i] = v
	}
	return rvs, nil
}

func nilable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Slice, reflect.Map:
		return true
	}
	return false
}

// Lower flattens values into core wasm slots.
func (e *Encoder) Lower(cts []*CompiledType, values []reflect.Value, mem Memory, alloc Allocator, allocs *AllocationList) ([]uint64, error) {
	if len(cts) != len(values) {
		return nil, errors.New(errors.PhaseLower, errors.KindInvalidInput).
			Detail("value count mismatch: expected %d, got %d", len(cts), len(values)).
			Build()
	}

	flat := getFlat()
	defer putFlat(flat)

	for i, ct := range cts {
		if err := e.flatten(ct, values[i], mem, alloc, allocs, flat, []string{"param[" + strconv.Itoa(i) + "]"}); err != nil {
			return nil, err
		}
	}

	out := make([]uint64, len(*flat))
	copy(out, *flat)
	return out, nil
}

// StoreTuple writes values consecutively at addr using tuple layout,
// the form results take behind a return pointer.
func (e *Encoder) StoreTuple(cts []*CompiledType, values []reflect.Value, addr uint32, mem Memory, alloc Allocator, allocs *AllocationList) error {
	offsets, _, _ := TupleLayout(cts)
	for i, ct := range cts {
		if err := e.store(ct, values[i], addr+offsets[i], mem, alloc, allocs, []string{"result[" + strconv.Itoa(i) + "]"}); err != nil {
			return err
		}
	}
	return nil
}

// Store writes one value at addr.
func (e *Encoder) Store(ct *CompiledType, v reflect.Value, addr uint32, mem Memory, alloc Allocator, allocs *AllocationList) error {
	return e.store(ct, v, addr, mem, alloc, allocs, nil)
}

// TupleLayout returns member offsets, total size and alignment of a tuple
// made of cts.
func TupleLayout(cts []*CompiledType) ([]uint32, uint32, uint32) {
	offsets := make([]uint32, len(cts))
	align := uint32(1)
	offset := uint32(0)
	for i, ct := range cts {
		offset = abi.AlignTo(offset, ct.WitAlign)
		offsets[i] = offset
		offset += ct.WitSize
		if ct.WitAlign > align {
			align = ct.WitAlign
		}
	}
	return offsets, abi.AlignTo(offset, align), align
}

func (e *Encoder) flatten(ct *CompiledType, v reflect.Value, mem Memory, alloc Allocator, allocs *AllocationList, flat *[]uint64, path []string) error {
	switch ct.Kind {
	case KindBool:
		if v.Bool() {
			*flat = append(*flat, 1)
		} else {
			*flat = append(*flat, 0)
		}
	case KindU8, KindU16, KindU32, KindU64:
		*flat = append(*flat, v.Uint())
	case KindS8, KindS16, KindS32:
		*flat = append(*flat, abi.I32Slot(int32(v.Int())))
	case KindS64:
		*flat = append(*flat, uint64(v.Int()))
	case KindF32:
		*flat = append(*flat, uint64(abi.CanonicalizeF32(math.Float32bits(float32(v.Float())))))
	case KindF64:
		*flat = append(*flat, abi.CanonicalizeF64(math.Float64bits(v.Float())))

	case KindString:
		ptr, n, err := e.lowerString(v.String(), mem, alloc, allocs, path)
		if err != nil {
			return err
		}
		*flat = append(*flat, uint64(ptr), uint64(n))

	case KindList:
		ptr, n, err := e.lowerList(ct, v, mem, alloc, allocs, path)
		if err != nil {
			return err
		}
		*flat = append(*flat, uint64(ptr), uint64(n))

	case KindRecord, KindTuple:
		for _, f := range ct.Fields {
			if err := e.flatten(f.Type, v.Field(f.GoIndex), mem, alloc, allocs, flat, appendPath(path, f)); err != nil {
				return err
			}
		}

	case KindOption:
		start := len(*flat)
		payload, present := optionParts(ct, v)
		if present {
			*flat = append(*flat, 1)
			if err := e.flatten(ct.Elem, payload, mem, alloc, allocs, flat, subPath(path, "[some]")); err != nil {
				return err
			}
		} else {
			*flat = append(*flat, 0)
		}
		padFlat(flat, start+len(ct.Flat))

	case KindResult:
		start := len(*flat)
		payloadType, payload, isErr := resultParts(ct, v)
		if isErr {
			*flat = append(*flat, 1)
		} else {
			*flat = append(*flat, 0)
		}
		if payloadType != nil {
			if err := e.flatten(payloadType, payload, mem, alloc, allocs, flat, subPath(path, resultCase(isErr))); err != nil {
				return err
			}
		}
		padFlat(flat, start+len(ct.Flat))

	case KindEnum:
		disc, err := enumIndex(ct, v, path)
		if err != nil {
			return err
		}
		*flat = append(*flat, uint64(disc))

	case KindOwn, KindBorrow:
		h, err := e.lowerHandle(ct, v, allocs, path)
		if err != nil {
			return err
		}
		*flat = append(*flat, uint64(h))

	default:
		return errors.Unsupported(errors.PhaseLower, "flatten "+ct.Kind.String())
	}
	return nil
}

// padFlat zero-fills the unused slots of a joined variant payload.
func padFlat(flat *[]uint64, n int) {
	for len(*flat) < n {
		*flat = append(*flat, 0)
	}
}

func appendPath(path []string, f CompiledField) []string {
	name := f.WitName
	if name == "" {
		name = f.Name
	}
	return append(append([]string{}, path...), name)
}

func resultCase(isErr bool) string {
	if isErr {
		return "[err]"
	}
	return "[ok]"
}

func optionParts(ct *CompiledType, v reflect.Value) (reflect.Value, bool) {
	if ct.Repr == ReprPointer {
		if v.IsNil() {
			return reflect.Value{}, false
		}
		return v.Elem(), true
	}
	return v.Field(optionValueField), v.Field(optionPresentField).Bool()
}

func resultParts(ct *CompiledType, v reflect.Value) (*CompiledType, reflect.Value, bool) {
	if v.Field(resultIsErrField).Bool() {
		return ct.Err, v.Field(resultErrField), true
	}
	return ct.Ok, v.Field(resultOKField), false
}

func enumIndex(ct *CompiledType, v reflect.Value, path []string) (uint32, error) {
	var n uint64
	if v.CanUint() {
		n = v.Uint()
	} else {
		i := v.Int()
		if i < 0 {
			return 0, errors.InvalidDiscriminant(errors.PhaseLower, path, uint32(i), uint32(ct.Cases-1))
		}
		n = uint64(i)
	}
	if n >= uint64(ct.Cases) {
		return 0, errors.InvalidDiscriminant(errors.PhaseLower, path, uint32(n), uint32(ct.Cases-1))
	}
	return uint32(n), nil
}

func (e *Encoder) lowerString(s string, mem Memory, alloc Allocator, allocs *AllocationList, path []string) (uint32, uint32, error) {
	if !utf8.ValidString(s) {
		return 0, 0, errors.InvalidUTF8(errors.PhaseLower, path, []byte(s))
	}
	if len(s) == 0 {
		return 0, 0, nil
	}
	if len(s) > MaxStringSize {
		return 0, 0, errors.Overflow(errors.PhaseLower, path, len(s), "string")
	}

	ptr, err := e.allocate(uint32(len(s)), 1, alloc, allocs)
	if err != nil {
		return 0, 0, err
	}
	if err := mem.Write(ptr, []byte(s)); err != nil {
		return 0, 0, err
	}
	return ptr, uint32(len(s)), nil
}

func (e *Encoder) allocate(size, align uint32, alloc Allocator, allocs *AllocationList) (uint32, error) {
	if alloc == nil {
		return 0, errors.NotInitialized(errors.PhaseLower, "allocator")
	}
	if size > MaxAlloc {
		return 0, errors.AllocationFailed(errors.PhaseLower, size, align)
	}
	ptr, err := alloc.Alloc(size, align)
	if err != nil {
		return 0, err
	}
	if allocs != nil {
		allocs.Add(ptr, size, align)
	}
	return ptr, nil
}

func (e *Encoder) lowerList(ct *CompiledType, v reflect.Value, mem Memory, alloc Allocator, allocs *AllocationList, path []string) (uint32, uint32, error) {
	n := v.Len()
	if n == 0 {
		return 0, 0, nil
	}
	if n > MaxListLength {
		return 0, 0, errors.Overflow(errors.PhaseLower, path, n, "list")
	}

	elem := ct.Elem
	size, ok := safeMulU32(uint32(n), elem.WitSize)
	if !ok {
		return 0, 0, errors.Overflow(errors.PhaseLower, path, n, "list")
	}
	ptr, err := e.allocate(size, elem.WitAlign, alloc, allocs)
	if err != nil {
		return 0, 0, err
	}

	if ct.Repr == ReprMap {
		key, val := elem.Fields[0], elem.Fields[1]
		for i, k := range sortedKeys(v) {
			base := ptr + uint32(i)*elem.WitSize
			entryPath := append(append([]string{}, path...), "["+strconv.Itoa(i)+"]")
			if err := e.store(key.Type, k, base+key.WitOffset, mem, alloc, allocs, subPath(entryPath, "key")); err != nil {
				return 0, 0, err
			}
			if err := e.store(val.Type, v.MapIndex(k), base+val.WitOffset, mem, alloc, allocs, subPath(entryPath, "value")); err != nil {
				return 0, 0, err
			}
		}
		return ptr, uint32(n), nil
	}

	if elem.Kind == KindU8 && v.Type().Elem().Kind() == reflect.Uint8 {
		data := make([]byte, n)
		reflect.Copy(reflect.ValueOf(data), v)
		if err := mem.Write(ptr, data); err != nil {
			return 0, 0, err
		}
		return ptr, uint32(n), nil
	}

	for i := 0; i < n; i++ {
		elemPath := append(append([]string{}, path...), "["+strconv.Itoa(i)+"]")
		if err := e.store(elem, v.Index(i), ptr+uint32(i)*elem.WitSize, mem, alloc, allocs, elemPath); err != nil {
			return 0, 0, err
		}
	}
	return ptr, uint32(n), nil
}

// sortedKeys orders map keys so lowered maps are deterministic.
func sortedKeys(m reflect.Value) []reflect.Value {
	keys := m.MapKeys()
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		switch {
		case a.Kind() == reflect.String:
			return a.String() < b.String()
		case a.CanInt():
			return a.Int() < b.Int()
		default:
			return a.Uint() < b.Uint()
		}
	})
	return keys
}

func (e *Encoder) lowerHandle(ct *CompiledType, v reflect.Value, allocs *AllocationList, path []string) (uint32, error) {
	what := ct.Resource
	if what == "" {
		what = "handle"
	}

	if ct.Repr == ReprRawHandle {
		h := uint32(v.Uint())
		if h == 0 {
			return 0, errors.NullHandle(errors.PhaseLower, path, what)
		}
		return h, nil
	}

	if v.IsNil() {
		return 0, errors.NullHandle(errors.PhaseLower, path, what)
	}
	if e.handles == nil {
		return 0, errors.NotInitialized(errors.PhaseLower, "handle table")
	}
	h, err := e.handles.Insert(ct.Resource, v.Interface())
	if err != nil {
		return 0, err
	}
	if ct.Kind == KindBorrow && allocs != nil {
		allocs.AddBorrow(ct.Resource, h)
	}
	return h, nil
}

func (e *Encoder) store(ct *CompiledType, v reflect.Value, addr uint32, mem Memory, alloc Allocator, allocs *AllocationList, path []string) error {
	switch ct.Kind {
	case KindBool:
		var b uint8
		if v.Bool() {
			b = 1
		}
		return mem.WriteU8(addr, b)
	case KindU8:
		return mem.WriteU8(addr, uint8(v.Uint()))
	case KindS8:
		return mem.WriteU8(addr, uint8(int8(v.Int())))
	case KindU16:
		return mem.WriteU16(addr, uint16(v.Uint()))
	case KindS16:
		return mem.WriteU16(addr, uint16(int16(v.Int())))
	case KindU32:
		return mem.WriteU32(addr, uint32(v.Uint()))
	case KindS32:
		return mem.WriteU32(addr, uint32(int32(v.Int())))
	case KindU64:
		return mem.WriteU64(addr, v.Uint())
	case KindS64:
		return mem.WriteU64(addr, uint64(v.Int()))
	case KindF32:
		return mem.WriteU32(addr, abi.CanonicalizeF32(math.Float32bits(float32(v.Float()))))
	case KindF64:
		return mem.WriteU64(addr, abi.CanonicalizeF64(math.Float64bits(v.Float())))

	case KindString:
		ptr, n, err := e.lowerString(v.String(), mem, alloc, allocs, path)
		if err != nil {
			return err
		}
		return writePair(mem, addr, ptr, n)

	case KindList:
		ptr, n, err := e.lowerList(ct, v, mem, alloc, allocs, path)
		if err != nil {
			return err
		}
		return writePair(mem, addr, ptr, n)

	case KindRecord, KindTuple:
		for _, f := range ct.Fields {
			if err := e.store(f.Type, v.Field(f.GoIndex), addr+f.WitOffset, mem, alloc, allocs, appendPath(path, f)); err != nil {
				return err
			}
		}
		return nil

	case KindOption:
		payload, present := optionParts(ct, v)
		if !present {
			return mem.WriteU8(addr, 0)
		}
		if err := mem.WriteU8(addr, 1); err != nil {
			return err
		}
		return e.store(ct.Elem, payload, addr+ct.PayloadOff, mem, alloc, allocs, subPath(path, "[some]"))

	case KindResult:
		payloadType, payload, isErr := resultParts(ct, v)
		var disc uint8
		if isErr {
			disc = 1
		}
		if err := mem.WriteU8(addr, disc); err != nil {
			return err
		}
		if payloadType == nil {
			return nil
		}
		return e.store(payloadType, payload, addr+ct.PayloadOff, mem, alloc, allocs, subPath(path, resultCase(isErr)))

	case KindEnum:
		disc, err := enumIndex(ct, v, path)
		if err != nil {
			return err
		}
		return writeDiscriminant(mem, addr, ct.WitSize, disc)

	case KindOwn, KindBorrow:
		h, err := e.lowerHandle(ct, v, allocs, path)
		if err != nil {
			return err
		}
		return mem.WriteU32(addr, h)
	}
	return errors.Unsupported(errors.PhaseLower, "store "+ct.Kind.String())
}

func writePair(mem Memory, addr, ptr, n uint32) error {
	if err := mem.WriteU32(addr, ptr); err != nil {
		return err
	}
	return mem.WriteU32(addr+4, n)
}

func writeDiscriminant(mem Memory, addr, size, disc uint32) error {
	switch size {
	case 1:
		return mem.WriteU8(addr, uint8(disc))
	case 2:
		return mem.WriteU16(addr, uint16(disc))
	default:
		return mem.WriteU32(addr, disc)
	}
}
