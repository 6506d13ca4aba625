package transcoder

import (
	"reflect"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/ffi-boundary/errors"
	"github.com/wippyai/ffi-boundary/transcoder/internal/abi"
	"github.com/wippyai/ffi-boundary/transcoder/internal/layout"
)

// Compiler pairs WIT types with Go types and caches the resulting plans.
// It is safe for concurrent use.
type Compiler struct {
	layout *layout.Calculator
	cache  sync.Map // cacheKey -> *CompiledType
}

type cacheKey struct {
	goType reflect.Type
	wit    any
}

func NewCompiler() *Compiler {
	return &Compiler{
		layout: layout.NewCalculator(),
	}
}

// Compile checks that goType can carry witType and returns the plan.
func (c *Compiler) Compile(witType wit.Type, goType reflect.Type) (*CompiledType, error) {
	if witType == nil {
		return nil, errors.InvalidInput(errors.PhaseBind, "WIT type cannot be nil")
	}
	if goType == nil {
		return nil, errors.InvalidInput(errors.PhaseBind, "Go type cannot be nil")
	}

	key := cacheKey{goType: goType, wit: witKey(witType)}
	if cached, ok := c.cache.Load(key); ok {
		return cached.(*CompiledType), nil
	}

	ct, err := c.compile(witType, goType, nil)
	if err != nil {
		return nil, err
	}

	c.cache.Store(key, ct)
	return ct, nil
}

// witKey identifies typedefs by pointer and primitives by their type.
func witKey(t wit.Type) any {
	if td, ok := t.(*wit.TypeDef); ok {
		return td
	}
	return reflect.TypeOf(t)
}

func (c *Compiler) compile(witType wit.Type, goType reflect.Type, path []string) (*CompiledType, error) {
	info := c.layout.Calculate(witType)

	ct := &CompiledType{
		GoType:   goType,
		WitSize:  info.Size,
		WitAlign: info.Align,
		Flat:     abi.Flatten(witType),
	}

	switch t := witType.(type) {
	case wit.Bool:
		return ct, c.scalar(ct, KindBool, reflect.Bool, path)
	case wit.U8:
		return ct, c.scalar(ct, KindU8, reflect.Uint8, path)
	case wit.S8:
		return ct, c.scalar(ct, KindS8, reflect.Int8, path)
	case wit.U16:
		return ct, c.scalar(ct, KindU16, reflect.Uint16, path)
	case wit.S16:
		return ct, c.scalar(ct, KindS16, reflect.Int16, path)
	case wit.U32:
		return ct, c.scalar(ct, KindU32, reflect.Uint32, path)
	case wit.S32:
		return ct, c.scalar(ct, KindS32, reflect.Int32, path)
	case wit.U64:
		return ct, c.scalar(ct, KindU64, reflect.Uint64, path)
	case wit.S64:
		return ct, c.scalar(ct, KindS64, reflect.Int64, path)
	case wit.F32:
		return ct, c.scalar(ct, KindF32, reflect.Float32, path)
	case wit.F64:
		return ct, c.scalar(ct, KindF64, reflect.Float64, path)
	case wit.String:
		return ct, c.scalar(ct, KindString, reflect.String, path)
	case *wit.TypeDef:
		return c.compileTypeDef(t, ct, info, path)
	default:
		return nil, errors.New(errors.PhaseBind, errors.KindUnsupported).
			Path(path...).
			GoType(goType.String()).
			Detail("unsupported WIT type: %T", witType).
			Build()
	}
}

// scalar requires the exact Go kind for the WIT width; no widening.
func (c *Compiler) scalar(ct *CompiledType, kind TypeKind, want reflect.Kind, path []string) error {
	ct.Kind = kind
	if ct.GoType.Kind() != want {
		return errors.TypeMismatch(errors.PhaseBind, path, ct.GoType.String(), kind.String())
	}
	return nil
}

func (c *Compiler) compileTypeDef(t *wit.TypeDef, ct *CompiledType, info layout.Info, path []string) (*CompiledType, error) {
	switch kind := t.Kind.(type) {
	case *wit.Record:
		return c.compileRecord(kind, ct, info, path)
	case *wit.Tuple:
		return c.compileTuple(kind, ct, info, path)
	case *wit.List:
		return c.compileList(kind, ct, path)
	case *wit.Option:
		return c.compileOption(kind, ct, info, path)
	case *wit.Result:
		return c.compileResult(kind, ct, info, path)
	case *wit.Enum:
		return c.compileEnum(kind, ct, path)
	case *wit.Own:
		ct.Kind = KindOwn
		return c.compileHandle(kind.Type, ct, path)
	case *wit.Borrow:
		ct.Kind = KindBorrow
		return c.compileHandle(kind.Type, ct, path)
	case wit.Type:
		return c.compile(kind, ct.GoType, path)
	default:
		return nil, errors.New(errors.PhaseBind, errors.KindUnsupported).
			Path(path...).
			Detail("unsupported TypeDef kind: %T", kind).
			Build()
	}
}

func (c *Compiler) compileRecord(r *wit.Record, ct *CompiledType, info layout.Info, path []string) (*CompiledType, error) {
	ct.Kind = KindRecord
	goType := ct.GoType
	if goType.Kind() != reflect.Struct {
		return nil, errors.TypeMismatch(errors.PhaseBind, path, goType.String(), "struct")
	}

	ct.Fields = make([]CompiledField, 0, len(r.Fields))
	for i, witField := range r.Fields {
		goField, found := findGoField(goType, witField.Name)
		if !found {
			return nil, errors.New(errors.PhaseBind, errors.KindNotFound).
				Path(path...).
				GoType(goType.String()).
				Detail("no Go field for record field %q", witField.Name).
				Build()
		}

		fieldPath := append(append([]string{}, path...), witField.Name)
		fieldType, err := c.compile(witField.Type, goField.Type, fieldPath)
		if err != nil {
			return nil, err
		}

		ct.Fields = append(ct.Fields, CompiledField{
			Type:      fieldType,
			Name:      goField.Name,
			WitName:   witField.Name,
			GoIndex:   goField.Index[0],
			WitOffset: info.Offsets[i],
		})
	}
	return ct, nil
}

// findGoField matches by: 1) wit:"name" tag, 2) case-insensitive, 3) kebab-case.
func findGoField(goType reflect.Type, witName string) (reflect.StructField, bool) {
	for i := 0; i < goType.NumField(); i++ {
		field := goType.Field(i)
		if !field.IsExported() {
			continue
		}

		if tag := field.Tag.Get("wit"); tag != "" {
			if tag == "-" {
				continue
			}
			if tag == witName {
				return field, true
			}
			continue
		}

		if strings.EqualFold(field.Name, witName) || KebabCase(field.Name) == witName {
			return field, true
		}
	}
	return reflect.StructField{}, false
}

// KebabCase converts PascalCase to kebab-case.
// Runs of capitals stay together: ParseHTTPRequest -> parse-http-request.
func KebabCase(s string) string {
	runes := []rune(s)
	var b strings.Builder

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if !unicode.IsUpper(r) {
			b.WriteRune(r)
			continue
		}

		end := i + 1
		for end < len(runes) && unicode.IsUpper(runes[end]) {
			end++
		}
		// the last capital before a lowercase letter starts the next word
		if end > i+1 && end < len(runes) && unicode.IsLower(runes[end]) {
			end--
		}

		if i > 0 {
			b.WriteByte('-')
		}
		for j := i; j < end; j++ {
			b.WriteRune(unicode.ToLower(runes[j]))
		}
		i = end - 1
	}
	return b.String()
}

// exportedFields lists the exported fields of a struct in declaration order.
func exportedFields(goType reflect.Type) []reflect.StructField {
	var out []reflect.StructField
	for i := 0; i < goType.NumField(); i++ {
		if f := goType.Field(i); f.IsExported() {
			out = append(out, f)
		}
	}
	return out
}

// compileTuple maps tuple members onto exported struct fields by position.
func (c *Compiler) compileTuple(t *wit.Tuple, ct *CompiledType, info layout.Info, path []string) (*CompiledType, error) {
	ct.Kind = KindTuple
	goType := ct.GoType
	if goType.Kind() != reflect.Struct {
		return nil, errors.TypeMismatch(errors.PhaseBind, path, goType.String(), "struct")
	}

	fields := exportedFields(goType)
	if len(fields) != len(t.Types) {
		return nil, errors.New(errors.PhaseBind, errors.KindTypeMismatch).
			Path(path...).
			GoType(goType.String()).
			Detail("tuple has %d members, struct has %d exported fields", len(t.Types), len(fields)).
			Build()
	}

	ct.Fields = make([]CompiledField, len(t.Types))
	for i, member := range t.Types {
		memberPath := append(append([]string{}, path...), "["+strconv.Itoa(i)+"]")
		memberType, err := c.compile(member, fields[i].Type, memberPath)
		if err != nil {
			return nil, err
		}
		ct.Fields[i] = CompiledField{
			Type:      memberType,
			Name:      fields[i].Name,
			GoIndex:   fields[i].Index[0],
			WitOffset: info.Offsets[i],
		}
	}
	return ct, nil
}

func (c *Compiler) compileList(l *wit.List, ct *CompiledType, path []string) (*CompiledType, error) {
	ct.Kind = KindList
	goType := ct.GoType
	elemPath := append(append([]string{}, path...), "[elem]")

	switch goType.Kind() {
	case reflect.Slice:
		elem, err := c.compile(l.Type, goType.Elem(), elemPath)
		if err != nil {
			return nil, err
		}
		ct.Elem = elem
		return ct, nil

	case reflect.Map:
		return c.compileMap(l, ct, elemPath)

	default:
		return nil, errors.TypeMismatch(errors.PhaseBind, path, goType.String(), "slice or map")
	}
}

// compileMap accepts list<tuple<K, V>> carried by map[K]V.
func (c *Compiler) compileMap(l *wit.List, ct *CompiledType, path []string) (*CompiledType, error) {
	td, ok := l.Type.(*wit.TypeDef)
	var tuple *wit.Tuple
	if ok {
		tuple, _ = td.Kind.(*wit.Tuple)
	}
	if tuple == nil || len(tuple.Types) != 2 {
		return nil, errors.TypeMismatch(errors.PhaseBind, path, ct.GoType.String(), "list<tuple<K, V>>")
	}

	goType := ct.GoType
	switch goType.Key().Kind() {
	case reflect.String,
		reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
	default:
		return nil, errors.Unsupported(errors.PhaseBind, "map key type "+goType.Key().String())
	}

	info := c.layout.Calculate(l.Type)
	key, err := c.compile(tuple.Types[0], goType.Key(), append(append([]string{}, path...), "[key]"))
	if err != nil {
		return nil, err
	}
	val, err := c.compile(tuple.Types[1], goType.Elem(), append(append([]string{}, path...), "[value]"))
	if err != nil {
		return nil, err
	}

	ct.Repr = ReprMap
	ct.Elem = &CompiledType{
		Kind:     KindTuple,
		WitSize:  info.Size,
		WitAlign: info.Align,
		Flat:     abi.Flatten(l.Type),
		Fields: []CompiledField{
			{Type: key, Name: "key", WitOffset: info.Offsets[0]},
			{Type: val, Name: "value", WitOffset: info.Offsets[1]},
		},
	}
	return ct, nil
}

func (c *Compiler) compileOption(o *wit.Option, ct *CompiledType, info layout.Info, path []string) (*CompiledType, error) {
	ct.Kind = KindOption
	ct.PayloadOff = info.Offsets[1]
	goType := ct.GoType
	elemPath := append(append([]string{}, path...), "[some]")

	var elemGo reflect.Type
	switch {
	case IsOption(goType):
		ct.Repr = ReprCarrier
		elemGo = goType.Field(optionValueField).Type
	case goType.Kind() == reflect.Ptr:
		ct.Repr = ReprPointer
		elemGo = goType.Elem()
	default:
		return nil, errors.TypeMismatch(errors.PhaseBind, path, goType.String(), "Option[T] or *T")
	}

	elem, err := c.compile(o.Type, elemGo, elemPath)
	if err != nil {
		return nil, err
	}
	ct.Elem = elem
	return ct, nil
}

func (c *Compiler) compileResult(r *wit.Result, ct *CompiledType, info layout.Info, path []string) (*CompiledType, error) {
	ct.Kind = KindResult
	ct.Repr = ReprCarrier
	ct.PayloadOff = info.Offsets[1]
	goType := ct.GoType

	if !IsResult(goType) {
		return nil, errors.TypeMismatch(errors.PhaseBind, path, goType.String(), "Result[T, E]")
	}

	if r.OK != nil {
		ok, err := c.compile(r.OK, goType.Field(resultOKField).Type, append(append([]string{}, path...), "[ok]"))
		if err != nil {
			return nil, err
		}
		ct.Ok = ok
	}
	if r.Err != nil {
		e, err := c.compile(r.Err, goType.Field(resultErrField).Type, append(append([]string{}, path...), "[err]"))
		if err != nil {
			return nil, err
		}
		ct.Err = e
	}
	return ct, nil
}

func (c *Compiler) compileEnum(e *wit.Enum, ct *CompiledType, path []string) (*CompiledType, error) {
	ct.Kind = KindEnum
	ct.Cases = len(e.Cases)

	switch ct.GoType.Kind() {
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Int, reflect.Int32, reflect.Int64:
		return ct, nil
	}
	return nil, errors.TypeMismatch(errors.PhaseBind, path, ct.GoType.String(), "integer enum")
}

func (c *Compiler) compileHandle(resource *wit.TypeDef, ct *CompiledType, path []string) (*CompiledType, error) {
	if resource != nil && resource.Name != nil {
		ct.Resource = *resource.Name
	}

	switch ct.GoType.Kind() {
	case reflect.Uint32:
		ct.Repr = ReprRawHandle
	case reflect.Ptr, reflect.Interface:
		ct.Repr = ReprObject
	default:
		return nil, errors.TypeMismatch(errors.PhaseBind, path, ct.GoType.String(), "handle or pointer")
	}
	return ct, nil
}
