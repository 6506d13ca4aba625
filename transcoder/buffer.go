package transcoder

import (
	"encoding/binary"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"unicode/utf8"

	"github.com/wippyai/ffi-boundary/errors"
)

// The serialized form used by generated bindings that exchange byte
// buffers instead of pointers. Scalars are big-endian; bool is one 0/1
// byte; strings and sequences carry an i32 length; optionals and results
// a 0/1 tag byte; enums an i32 case index starting at 1; handles a u64.
// Records and tuples are their members in order.

// Writer appends serialized values to a growing buffer.
type Writer struct {
	buf []byte
}

func NewWriter() *Writer {
	return &Writer{buf: make([]byte, 0, 64)}
}

func (w *Writer) Bytes() []byte { return w.buf }
func (w *Writer) Len() int      { return len(w.buf) }

func (w *Writer) WriteBool(v bool) {
	if v {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
}

func (w *Writer) WriteU8(v uint8)   { w.buf = append(w.buf, v) }
func (w *Writer) WriteU16(v uint16) { w.buf = binary.BigEndian.AppendUint16(w.buf, v) }
func (w *Writer) WriteU32(v uint32) { w.buf = binary.BigEndian.AppendUint32(w.buf, v) }
func (w *Writer) WriteU64(v uint64) { w.buf = binary.BigEndian.AppendUint64(w.buf, v) }
func (w *Writer) WriteI32(v int32)  { w.WriteU32(uint32(v)) }

func (w *Writer) WriteF32(v float32) { w.WriteU32(math.Float32bits(v)) }
func (w *Writer) WriteF64(v float64) { w.WriteU64(math.Float64bits(v)) }

// WriteString writes an i32 byte length followed by the UTF-8 bytes.
func (w *Writer) WriteString(s string) error {
	if !utf8.ValidString(s) {
		return errors.InvalidUTF8(errors.PhaseLower, nil, []byte(s))
	}
	if len(s) > math.MaxInt32 {
		return errors.Overflow(errors.PhaseLower, nil, len(s), "i32 length")
	}
	w.WriteI32(int32(len(s)))
	w.buf = append(w.buf, s...)
	return nil
}

// Reader consumes serialized values from a buffer.
type Reader struct {
	data []byte
	pos  int
}

func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.data) - r.pos }

// Finish fails if unread bytes remain.
func (r *Reader) Finish() error {
	if n := r.Remaining(); n != 0 {
		return errors.New(errors.PhaseLift, errors.KindInvalidData).
			Value(n).
			Detail("junk data left in buffer: %d bytes", n).
			Build()
	}
	return nil
}

func (r *Reader) take(n int) ([]byte, error) {
	if n < 0 || r.Remaining() < n {
		return nil, errors.OutOfBounds(errors.PhaseLift, nil, uint64(r.pos), uint64(max(n, 0)))
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *Reader) ReadU8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) ReadU16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (r *Reader) ReadU32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *Reader) ReadU64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func (r *Reader) ReadI32() (int32, error) {
	v, err := r.ReadU32()
	return int32(v), err
}

// ReadBool accepts only 0 and 1.
func (r *Reader) ReadBool() (bool, error) {
	b, err := r.ReadU8()
	if err != nil {
		return false, err
	}
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	}
	return false, errors.InvalidData(errors.PhaseLift, nil, fmt.Sprintf("unexpected byte for boolean: %d", b))
}

// ReadLength reads an i32 length and rejects negative values.
func (r *Reader) ReadLength() (int, error) {
	n, err := r.ReadI32()
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, errors.InvalidData(errors.PhaseLift, nil, fmt.Sprintf("unexpected negative length %d", n))
	}
	return int(n), nil
}

func (r *Reader) ReadString() (string, error) {
	n, err := r.ReadLength()
	if err != nil {
		return "", err
	}
	b, err := r.take(n)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", errors.InvalidUTF8(errors.PhaseLift, nil, b)
	}
	return string(b), nil
}

// Serialize writes values of the planned types to w.
func (e *Encoder) Serialize(cts []*CompiledType, values []reflect.Value, w *Writer, allocs *AllocationList) error {
	if len(cts) != len(values) {
		return errors.New(errors.PhaseLower, errors.KindInvalidInput).
			Detail("value count mismatch: expected %d, got %d", len(cts), len(values)).
			Build()
	}
	for i, ct := range cts {
		if err := e.serialize(ct, values[i], w, allocs, []string{"param[" + strconv.Itoa(i) + "]"}); err != nil {
			return err
		}
	}
	return nil
}

func (e *Encoder) serialize(ct *CompiledType, v reflect.Value, w *Writer, allocs *AllocationList, path []string) error {
	switch ct.Kind {
	case KindBool:
		w.WriteBool(v.Bool())
	case KindU8:
		w.WriteU8(uint8(v.Uint()))
	case KindS8:
		w.WriteU8(uint8(int8(v.Int())))
	case KindU16:
		w.WriteU16(uint16(v.Uint()))
	case KindS16:
		w.WriteU16(uint16(int16(v.Int())))
	case KindU32:
		w.WriteU32(uint32(v.Uint()))
	case KindS32:
		w.WriteI32(int32(v.Int()))
	case KindU64:
		w.WriteU64(v.Uint())
	case KindS64:
		w.WriteU64(uint64(v.Int()))
	case KindF32:
		w.WriteF32(float32(v.Float()))
	case KindF64:
		w.WriteF64(v.Float())

	case KindString:
		s := v.String()
		if !utf8.ValidString(s) {
			return errors.InvalidUTF8(errors.PhaseLower, path, []byte(s))
		}
		if err := w.WriteString(s); err != nil {
			return err
		}

	case KindList:
		n := v.Len()
		if n > MaxListLength {
			return errors.Overflow(errors.PhaseLower, path, n, "list")
		}
		w.WriteI32(int32(n))
		if ct.Repr == ReprMap {
			key, val := ct.Elem.Fields[0], ct.Elem.Fields[1]
			for _, k := range sortedKeys(v) {
				if err := e.serialize(key.Type, k, w, allocs, subPath(path, "key")); err != nil {
					return err
				}
				if err := e.serialize(val.Type, v.MapIndex(k), w, allocs, subPath(path, "value")); err != nil {
					return err
				}
			}
			return nil
		}
		for i := 0; i < n; i++ {
			if err := e.serialize(ct.Elem, v.Index(i), w, allocs, subPath(path, "["+strconv.Itoa(i)+"]")); err != nil {
				return err
			}
		}

	case KindRecord, KindTuple:
		for _, f := range ct.Fields {
			if err := e.serialize(f.Type, v.Field(f.GoIndex), w, allocs, appendPath(path, f)); err != nil {
				return err
			}
		}

	case KindOption:
		payload, present := optionParts(ct, v)
		w.WriteBool(present)
		if present {
			return e.serialize(ct.Elem, payload, w, allocs, subPath(path, "[some]"))
		}

	case KindResult:
		payloadType, payload, isErr := resultParts(ct, v)
		w.WriteBool(isErr)
		if payloadType != nil {
			return e.serialize(payloadType, payload, w, allocs, subPath(path, resultCase(isErr)))
		}

	case KindEnum:
		disc, err := enumIndex(ct, v, path)
		if err != nil {
			return err
		}
		w.WriteI32(int32(disc) + 1)

	case KindOwn, KindBorrow:
		h, err := e.lowerHandle(ct, v, allocs, path)
		if err != nil {
			return err
		}
		w.WriteU64(uint64(h))

	default:
		return errors.Unsupported(errors.PhaseLower, "serialize "+ct.Kind.String())
	}
	return nil
}

// Deserialize reads values of the planned types and requires the buffer
// to be fully consumed.
func (d *Decoder) Deserialize(cts []*CompiledType, data []byte) ([]reflect.Value, error) {
	r := NewReader(data)
	out := make([]reflect.Value, len(cts))
	for i, ct := range cts {
		v, err := d.deserialize(ct, r, []string{"param[" + strconv.Itoa(i) + "]"})
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	if err := r.Finish(); err != nil {
		return nil, err
	}
	return out, nil
}

func (d *Decoder) deserialize(ct *CompiledType, r *Reader, path []string) (reflect.Value, error) {
	out := reflect.New(ct.GoType).Elem()

	switch ct.Kind {
	case KindBool:
		v, err := r.ReadBool()
		if err != nil {
			return out, err
		}
		out.SetBool(v)
	case KindU8, KindS8:
		v, err := r.ReadU8()
		if err != nil {
			return out, err
		}
		if ct.Kind == KindS8 {
			out.SetInt(int64(int8(v)))
		} else {
			out.SetUint(uint64(v))
		}
	case KindU16, KindS16:
		v, err := r.ReadU16()
		if err != nil {
			return out, err
		}
		if ct.Kind == KindS16 {
			out.SetInt(int64(int16(v)))
		} else {
			out.SetUint(uint64(v))
		}
	case KindU32, KindS32, KindF32:
		v, err := r.ReadU32()
		if err != nil {
			return out, err
		}
		switch ct.Kind {
		case KindS32:
			out.SetInt(int64(int32(v)))
		case KindF32:
			out.SetFloat(float64(math.Float32frombits(v)))
		default:
			out.SetUint(uint64(v))
		}
	case KindU64, KindS64, KindF64:
		v, err := r.ReadU64()
		if err != nil {
			return out, err
		}
		switch ct.Kind {
		case KindS64:
			out.SetInt(int64(v))
		case KindF64:
			out.SetFloat(math.Float64frombits(v))
		default:
			out.SetUint(v)
		}

	case KindString:
		s, err := r.ReadString()
		if err != nil {
			return out, err
		}
		out.SetString(s)

	case KindList:
		n, err := r.ReadLength()
		if err != nil {
			return out, err
		}
		// every element takes at least one byte
		if n > r.Remaining() {
			return out, errors.OutOfBounds(errors.PhaseLift, path, uint64(r.pos), uint64(n))
		}
		if ct.Repr == ReprMap {
			return d.deserializeMap(ct, n, r, path)
		}
		out = reflect.MakeSlice(ct.GoType, n, n)
		for i := 0; i < n; i++ {
			v, err := d.deserialize(ct.Elem, r, subPath(path, "["+strconv.Itoa(i)+"]"))
			if err != nil {
				return out, err
			}
			out.Index(i).Set(v)
		}

	case KindRecord, KindTuple:
		for _, f := range ct.Fields {
			v, err := d.deserialize(f.Type, r, appendPath(path, f))
			if err != nil {
				return out, err
			}
			out.Field(f.GoIndex).Set(v)
		}

	case KindOption:
		present, err := r.ReadBool()
		if err != nil {
			return out, err
		}
		if present {
			v, err := d.deserialize(ct.Elem, r, subPath(path, "[some]"))
			if err != nil {
				return out, err
			}
			out = makeOption(ct, v)
		}

	case KindResult:
		isErr, err := r.ReadBool()
		if err != nil {
			return out, err
		}
		payloadType := ct.Ok
		if isErr {
			payloadType = ct.Err
		}
		var payload reflect.Value
		if payloadType != nil {
			payload, err = d.deserialize(payloadType, r, subPath(path, resultCase(isErr)))
			if err != nil {
				return out, err
			}
		}
		setResult(out, payload, isErr)

	case KindEnum:
		idx, err := r.ReadI32()
		if err != nil {
			return out, err
		}
		if idx < 1 || int(idx) > ct.Cases {
			return out, errors.InvalidDiscriminant(errors.PhaseLift, path, uint32(idx), uint32(ct.Cases))
		}
		setEnum(out, uint32(idx-1))

	case KindOwn, KindBorrow:
		h, err := r.ReadU64()
		if err != nil {
			return out, err
		}
		if h > math.MaxUint32 {
			return out, errors.InvalidHandle(errors.PhaseLift, path, uint32(h))
		}
		v, err := d.liftHandle(ct, uint32(h), path)
		if err != nil {
			return out, err
		}
		out.Set(v)

	default:
		return out, errors.Unsupported(errors.PhaseLift, "deserialize "+ct.Kind.String())
	}
	return out, nil
}

func (d *Decoder) deserializeMap(ct *CompiledType, n int, r *Reader, path []string) (reflect.Value, error) {
	key, val := ct.Elem.Fields[0], ct.Elem.Fields[1]
	out := reflect.MakeMapWithSize(ct.GoType, n)
	for i := 0; i < n; i++ {
		k, err := d.deserialize(key.Type, r, subPath(path, "key"))
		if err != nil {
			return out, err
		}
		v, err := d.deserialize(val.Type, r, subPath(path, "value"))
		if err != nil {
			return out, err
		}
		if out.MapIndex(k).IsValid() {
			return out, errors.InvalidData(errors.PhaseLift, path, fmt.Sprintf("duplicate map key %v", k.Interface()))
		}
		out.SetMapIndex(k, v)
	}
	return out, nil
}
