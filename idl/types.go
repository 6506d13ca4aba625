package idl

import (
	"fmt"
	"reflect"
	"strings"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/ffi-boundary/errors"
)

// Scope resolves type names declared in an interface.
type Scope map[string]*wit.TypeDef

// ParseType parses a type expression such as "list<string>",
// "result<u64, arithmetic-error>" or "borrow<point>".
func ParseType(expr string, scope Scope) (wit.Type, error) {
	p := &typeParser{tokens: tokenize(expr), scope: scope}
	t, err := p.parse(false)
	if err != nil {
		return nil, errors.ParseFailed("type "+expr, err)
	}
	if !p.done() {
		return nil, errors.ParseFailed("type "+expr,
			fmt.Errorf("unexpected %q", p.tokens[p.pos]))
	}
	return t, nil
}

func tokenize(s string) []string {
	var tokens []string
	start := -1
	flush := func(end int) {
		if start >= 0 {
			tokens = append(tokens, s[start:end])
			start = -1
		}
	}
	for i, r := range s {
		switch r {
		case '<', '>', ',':
			flush(i)
			tokens = append(tokens, string(r))
		case ' ', '\t', '\n':
			flush(i)
		default:
			if start < 0 {
				start = i
			}
		}
	}
	flush(len(s))
	return tokens
}

type typeParser struct {
	tokens []string
	pos    int
	scope  Scope
}

func (p *typeParser) done() bool {
	return p.pos >= len(p.tokens)
}

func (p *typeParser) next() (string, error) {
	if p.done() {
		return "", fmt.Errorf("unexpected end of type")
	}
	t := p.tokens[p.pos]
	p.pos++
	return t, nil
}

func (p *typeParser) peek(tok string) bool {
	return !p.done() && p.tokens[p.pos] == tok
}

// parse reads one type; "_" is accepted only where a result arm may be
// absent, and comes back as nil.
func (p *typeParser) parse(allowAbsent bool) (wit.Type, error) {
	name, err := p.next()
	if err != nil {
		return nil, err
	}
	if name == "_" {
		if !allowAbsent {
			return nil, fmt.Errorf("_ outside result")
		}
		return nil, nil
	}

	var args []wit.Type
	if p.peek("<") {
		p.pos++
		for {
			arg, err := p.parse(name == "result")
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			tok, err := p.next()
			if err != nil {
				return nil, err
			}
			if tok == ">" {
				break
			}
			if tok != "," {
				return nil, fmt.Errorf("expected , or > after %s argument, got %q", name, tok)
			}
		}
	}

	arity := func(n int) error {
		if len(args) != n {
			return fmt.Errorf("%s takes %d type argument(s), got %d", name, n, len(args))
		}
		return nil
	}

	switch name {
	case "list":
		if err := arity(1); err != nil {
			return nil, err
		}
		return &wit.TypeDef{Kind: &wit.List{Type: args[0]}}, nil
	case "option":
		if err := arity(1); err != nil {
			return nil, err
		}
		return &wit.TypeDef{Kind: &wit.Option{Type: args[0]}}, nil
	case "tuple":
		if len(args) == 0 {
			return nil, fmt.Errorf("tuple needs at least one type")
		}
		return &wit.TypeDef{Kind: &wit.Tuple{Types: args}}, nil
	case "result":
		r := &wit.Result{}
		switch len(args) {
		case 0:
		case 1:
			r.OK = args[0]
		case 2:
			r.OK, r.Err = args[0], args[1]
		default:
			return nil, fmt.Errorf("result takes at most 2 type arguments, got %d", len(args))
		}
		return &wit.TypeDef{Kind: r}, nil
	case "own", "borrow":
		if err := arity(1); err != nil {
			return nil, err
		}
		res, ok := args[0].(*wit.TypeDef)
		if !ok {
			return nil, fmt.Errorf("%s of a non-resource", name)
		}
		if _, ok := res.Kind.(*wit.Resource); !ok {
			return nil, fmt.Errorf("%s of a non-resource", name)
		}
		if name == "own" {
			return &wit.TypeDef{Kind: &wit.Own{Type: res}}, nil
		}
		return &wit.TypeDef{Kind: &wit.Borrow{Type: res}}, nil
	}

	if len(args) > 0 {
		return nil, fmt.Errorf("%s takes no type arguments", name)
	}
	if td, ok := p.scope[name]; ok {
		return td, nil
	}
	t, err := wit.ParseType(name)
	if err != nil {
		return nil, fmt.Errorf("unknown type %q", name)
	}
	return t, nil
}

// Format renders t as a type expression. Named definitions render as
// their name.
func Format(t wit.Type) string {
	if t == nil {
		return "_"
	}
	td, ok := t.(*wit.TypeDef)
	if !ok {
		return primitiveName(t)
	}
	if td.Name != nil {
		return *td.Name
	}

	switch k := td.Kind.(type) {
	case *wit.List:
		return "list<" + Format(k.Type) + ">"
	case *wit.Option:
		return "option<" + Format(k.Type) + ">"
	case *wit.Tuple:
		parts := make([]string, len(k.Types))
		for i, e := range k.Types {
			parts[i] = Format(e)
		}
		return "tuple<" + strings.Join(parts, ", ") + ">"
	case *wit.Result:
		switch {
		case k.OK == nil && k.Err == nil:
			return "result"
		case k.Err == nil:
			return "result<" + Format(k.OK) + ">"
		}
		return "result<" + Format(k.OK) + ", " + Format(k.Err) + ">"
	case *wit.Own:
		return "own<" + Format(k.Type) + ">"
	case *wit.Borrow:
		return "borrow<" + Format(k.Type) + ">"
	case *wit.Enum:
		cases := make([]string, len(k.Cases))
		for i, c := range k.Cases {
			cases[i] = c.Name
		}
		return "enum { " + strings.Join(cases, ", ") + " }"
	case *wit.Record:
		fields := make([]string, len(k.Fields))
		for i, f := range k.Fields {
			fields[i] = f.Name + ": " + Format(f.Type)
		}
		return "record { " + strings.Join(fields, ", ") + " }"
	case *wit.Resource:
		return "resource"
	}
	return fmt.Sprintf("%T", td.Kind)
}

func primitiveName(t wit.Type) string {
	switch t.(type) {
	case wit.Bool:
		return "bool"
	case wit.S8:
		return "s8"
	case wit.U8:
		return "u8"
	case wit.S16:
		return "s16"
	case wit.U16:
		return "u16"
	case wit.S32:
		return "s32"
	case wit.U32:
		return "u32"
	case wit.S64:
		return "s64"
	case wit.U64:
		return "u64"
	case wit.F32:
		return "f32"
	case wit.F64:
		return "f64"
	case wit.Char:
		return "char"
	case wit.String:
		return "string"
	}
	return fmt.Sprintf("%T", t)
}

// Equal reports whether a and b have the same structure. Records,
// enums and lists compare by shape; resources compare by name.
func Equal(a, b wit.Type) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, aok := a.(*wit.TypeDef)
	tb, bok := b.(*wit.TypeDef)
	if !aok || !bok {
		return !aok && !bok && reflect.TypeOf(a) == reflect.TypeOf(b)
	}

	switch ka := ta.Kind.(type) {
	case *wit.List:
		kb, ok := tb.Kind.(*wit.List)
		return ok && Equal(ka.Type, kb.Type)
	case *wit.Option:
		kb, ok := tb.Kind.(*wit.Option)
		return ok && Equal(ka.Type, kb.Type)
	case *wit.Tuple:
		kb, ok := tb.Kind.(*wit.Tuple)
		if !ok || len(ka.Types) != len(kb.Types) {
			return false
		}
		for i := range ka.Types {
			if !Equal(ka.Types[i], kb.Types[i]) {
				return false
			}
		}
		return true
	case *wit.Result:
		kb, ok := tb.Kind.(*wit.Result)
		return ok && Equal(ka.OK, kb.OK) && Equal(ka.Err, kb.Err)
	case *wit.Own:
		kb, ok := tb.Kind.(*wit.Own)
		return ok && Equal(ka.Type, kb.Type)
	case *wit.Borrow:
		kb, ok := tb.Kind.(*wit.Borrow)
		return ok && Equal(ka.Type, kb.Type)
	case *wit.Resource:
		_, ok := tb.Kind.(*wit.Resource)
		return ok && ta.Name != nil && tb.Name != nil && *ta.Name == *tb.Name
	case *wit.Enum:
		kb, ok := tb.Kind.(*wit.Enum)
		if !ok || len(ka.Cases) != len(kb.Cases) {
			return false
		}
		for i := range ka.Cases {
			if ka.Cases[i].Name != kb.Cases[i].Name {
				return false
			}
		}
		return true
	case *wit.Record:
		kb, ok := tb.Kind.(*wit.Record)
		if !ok || len(ka.Fields) != len(kb.Fields) {
			return false
		}
		for i := range ka.Fields {
			if ka.Fields[i].Name != kb.Fields[i].Name || !Equal(ka.Fields[i].Type, kb.Fields[i].Type) {
				return false
			}
		}
		return true
	}
	return false
}
