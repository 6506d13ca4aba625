package runtime

import (
	"context"
	"reflect"
	"sync"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/ffi-boundary/engine"
	"github.com/wippyai/ffi-boundary/errors"
	"github.com/wippyai/ffi-boundary/transcoder"
)

// ResourceNamer marks Go types that cross the boundary as handles.
// Pointer types carry the object; uint32 types carry the handle number.
type ResourceNamer interface {
	ResourceName() string
}

// Enum marks integer types that cross the boundary as enums.
type Enum interface {
	EnumCases() []string
}

var (
	contextType  = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType    = reflect.TypeOf((*error)(nil)).Elem()
	resourceType = reflect.TypeOf((*ResourceNamer)(nil)).Elem()
	enumType     = reflect.TypeOf((*Enum)(nil)).Elem()
	emptyType    = reflect.TypeOf(struct{}{})
)

// Position distinguishes parameters from results. Handles are borrowed
// as parameters and owned as results.
type Position uint8

const (
	InParam Position = iota
	InResult
)

type inferKey struct {
	t   reflect.Type
	pos Position
}

// Inferrer derives boundary types from Go types. It returns the same
// *wit.TypeDef for the same Go type, so compiled plans are shared.
type Inferrer struct {
	types     map[inferKey]wit.Type
	resources map[string]*wit.TypeDef
	mu        sync.Mutex
}

func NewInferrer() *Inferrer {
	return &Inferrer{
		types:     make(map[inferKey]wit.Type),
		resources: make(map[string]*wit.TypeDef),
	}
}

// Signature infers the boundary signature of a function type. A leading
// context.Context and a trailing error are not part of the signature.
func (in *Inferrer) Signature(fn reflect.Type) (engine.Signature, error) {
	var sig engine.Signature
	if fn.Kind() != reflect.Func {
		return sig, errors.New(errors.PhaseBind, errors.KindTypeMismatch).
			GoType(fn.String()).
			Detail("handler must be a function").
			Build()
	}

	start := 0
	if fn.NumIn() > 0 && fn.In(0) == contextType {
		start = 1
	}
	for i := start; i < fn.NumIn(); i++ {
		t, err := in.Type(fn.In(i), InParam)
		if err != nil {
			return sig, err
		}
		sig.Params = append(sig.Params, t)
	}

	numOut := fn.NumOut()
	if numOut > 0 && fn.Out(numOut-1) == errorType {
		numOut--
	}
	for i := 0; i < numOut; i++ {
		t, err := in.Type(fn.Out(i), InResult)
		if err != nil {
			return sig, err
		}
		sig.Results = append(sig.Results, t)
	}
	return sig, nil
}

// Type infers the boundary type of one Go type.
func (in *Inferrer) Type(t reflect.Type, pos Position) (wit.Type, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.infer(t, pos)
}

func (in *Inferrer) infer(t reflect.Type, pos Position) (wit.Type, error) {
	key := inferKey{t, pos}
	if cached, ok := in.types[key]; ok {
		return cached, nil
	}
	w, err := in.inferUncached(t, pos)
	if err != nil {
		return nil, err
	}
	in.types[key] = w
	return w, nil
}

func (in *Inferrer) inferUncached(t reflect.Type, pos Position) (wit.Type, error) {
	if t.Implements(resourceType) && (t.Kind() == reflect.Ptr || t.Kind() == reflect.Uint32) {
		return in.handle(t, pos), nil
	}
	if t.Implements(enumType) {
		return in.enum(t)
	}

	switch t.Kind() {
	case reflect.Bool:
		return wit.Bool{}, nil
	case reflect.Int8:
		return wit.S8{}, nil
	case reflect.Int16:
		return wit.S16{}, nil
	case reflect.Int32:
		return wit.S32{}, nil
	case reflect.Int64:
		return wit.S64{}, nil
	case reflect.Uint8:
		return wit.U8{}, nil
	case reflect.Uint16:
		return wit.U16{}, nil
	case reflect.Uint32:
		return wit.U32{}, nil
	case reflect.Uint64:
		return wit.U64{}, nil
	case reflect.Float32:
		return wit.F32{}, nil
	case reflect.Float64:
		return wit.F64{}, nil
	case reflect.String:
		return wit.String{}, nil
	case reflect.Slice:
		elem, err := in.infer(t.Elem(), pos)
		if err != nil {
			return nil, err
		}
		return &wit.TypeDef{Kind: &wit.List{Type: elem}}, nil
	case reflect.Map:
		k, err := in.infer(t.Key(), pos)
		if err != nil {
			return nil, err
		}
		v, err := in.infer(t.Elem(), pos)
		if err != nil {
			return nil, err
		}
		entry := &wit.TypeDef{Kind: &wit.Tuple{Types: []wit.Type{k, v}}}
		return &wit.TypeDef{Kind: &wit.List{Type: entry}}, nil
	case reflect.Ptr:
		elem, err := in.infer(t.Elem(), pos)
		if err != nil {
			return nil, err
		}
		return &wit.TypeDef{Kind: &wit.Option{Type: elem}}, nil
	case reflect.Struct:
		return in.structType(t, pos)
	}

	return nil, errors.New(errors.PhaseBind, errors.KindUnsupported).
		GoType(t.String()).
		Detail("no boundary type for Go kind %s", t.Kind()).
		Build()
}

func (in *Inferrer) handle(t reflect.Type, pos Position) wit.Type {
	name := reflect.Zero(t).Interface().(ResourceNamer).ResourceName()
	res, ok := in.resources[name]
	if !ok {
		res = &wit.TypeDef{Name: &name, Kind: &wit.Resource{}}
		in.resources[name] = res
	}
	if pos == InParam {
		return &wit.TypeDef{Kind: &wit.Borrow{Type: res}}
	}
	return &wit.TypeDef{Kind: &wit.Own{Type: res}}
}

func (in *Inferrer) enum(t reflect.Type) (wit.Type, error) {
	switch t.Kind() {
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Int32, reflect.Int64, reflect.Int:
	default:
		return nil, errors.TypeMismatch(errors.PhaseBind, nil, t.String(), "integer enum")
	}
	names := reflect.Zero(t).Interface().(Enum).EnumCases()
	if len(names) == 0 {
		return nil, errors.InvalidInput(errors.PhaseBind, t.String()+": enum has no cases")
	}
	cases := make([]wit.EnumCase, len(names))
	for i, n := range names {
		cases[i] = wit.EnumCase{Name: n}
	}
	return &wit.TypeDef{Kind: &wit.Enum{Cases: cases}}, nil
}

func (in *Inferrer) structType(t reflect.Type, pos Position) (wit.Type, error) {
	switch {
	case transcoder.IsOption(t):
		elem, err := in.infer(transcoder.OptionElem(t), pos)
		if err != nil {
			return nil, err
		}
		return &wit.TypeDef{Kind: &wit.Option{Type: elem}}, nil

	case transcoder.IsResult(t):
		okT, errT := transcoder.ResultTypes(t)
		r := &wit.Result{}
		var err error
		if okT != emptyType {
			if r.OK, err = in.infer(okT, pos); err != nil {
				return nil, err
			}
		}
		if errT != emptyType {
			if r.Err, err = in.infer(errT, pos); err != nil {
				return nil, err
			}
		}
		return &wit.TypeDef{Kind: r}, nil
	}

	rec := &wit.Record{}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := f.Tag.Get("wit")
		if name == "-" {
			continue
		}
		if name == "" {
			name = transcoder.KebabCase(f.Name)
		}
		ft, err := in.infer(f.Type, pos)
		if err != nil {
			return nil, err
		}
		rec.Fields = append(rec.Fields, wit.Field{Name: name, Type: ft})
	}
	if len(rec.Fields) == 0 {
		return nil, errors.New(errors.PhaseBind, errors.KindUnsupported).
			GoType(t.String()).
			Detail("record has no exported fields").
			Build()
	}
	return &wit.TypeDef{Kind: rec}, nil
}
