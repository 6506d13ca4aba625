package idl

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	"go.bytecodealliance.org/wit"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/ffi-boundary/engine"
	"github.com/wippyai/ffi-boundary/errors"
)

// ABICString marks functions taking a null-terminated string pointer
// and a call status record.
const ABICString = "cstring"

// Document is an interface description file.
type Document struct {
	Package    string       `yaml:"package"`
	Interfaces []*Interface `yaml:"interfaces"`
}

// Interface is one namespace of functions and the types they use.
type Interface struct {
	Name      string      `yaml:"name"`
	Doc       string      `yaml:"doc,omitempty"`
	Types     []*TypeDecl `yaml:"types,omitempty"`
	Functions []*Function `yaml:"functions"`

	scope Scope
}

// TypeDecl declares a named type. Exactly one of Resource, Record and
// Enum is set.
type TypeDecl struct {
	Name     string   `yaml:"name"`
	Resource bool     `yaml:"resource,omitempty"`
	Record   []Field  `yaml:"record,omitempty"`
	Enum     []string `yaml:"enum,omitempty"`
}

type Field struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

type Function struct {
	Name    string   `yaml:"name"`
	Doc     string   `yaml:"doc,omitempty"`
	ABI     string   `yaml:"abi,omitempty"`
	Params  []Field  `yaml:"params,omitempty"`
	Results []string `yaml:"results,omitempty"`

	sig engine.Signature
}

// Signature returns the resolved signature. C-string functions have
// none.
func (f *Function) Signature() engine.Signature {
	return f.sig
}

func (f *Function) IsCString() bool {
	return f.ABI == ABICString
}

// String renders the function the way interface files read.
func (f *Function) String() string {
	var b bytes.Buffer
	b.WriteString(f.Name)
	b.WriteString(": func(")
	if f.IsCString() {
		b.WriteString("s: cstring) -> u32")
		return b.String()
	}
	for i, p := range f.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.Name + ": " + Format(f.sig.Params[i]))
	}
	b.WriteString(")")
	switch len(f.sig.Results) {
	case 0:
	case 1:
		b.WriteString(" -> " + Format(f.sig.Results[0]))
	default:
		b.WriteString(" -> (")
		for i, r := range f.sig.Results {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(Format(r))
		}
		b.WriteString(")")
	}
	return b.String()
}

// Type returns the named type declared in the interface.
func (i *Interface) Type(name string) (*wit.TypeDef, bool) {
	td, ok := i.scope[name]
	return td, ok
}

// Function returns the named function.
func (i *Interface) Function(name string) (*Function, bool) {
	for _, f := range i.Functions {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

//go:embed library.yaml
var libraryYAML []byte

// Library returns the description of the bundled library interface.
func Library() *Document {
	doc, err := Parse(libraryYAML)
	if err != nil {
		panic(fmt.Sprintf("idl: bundled library description: %v", err))
	}
	return doc
}

// Load reads and parses a description file.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseParse, errors.KindNotFound, err, "read "+path)
	}
	return Parse(data)
}

// Parse decodes a description and resolves every type in it.
func Parse(data []byte) (*Document, error) {
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, errors.ParseFailed("interface description", err)
	}
	if len(doc.Interfaces) == 0 {
		return nil, errors.InvalidInput(errors.PhaseParse, "no interfaces declared")
	}

	seen := make(map[string]bool)
	for _, iface := range doc.Interfaces {
		if iface.Name == "" {
			return nil, errors.InvalidInput(errors.PhaseParse, "interface without a name")
		}
		if seen[iface.Name] {
			return nil, errors.InvalidInput(errors.PhaseParse, "duplicate interface "+iface.Name)
		}
		seen[iface.Name] = true
		if err := iface.resolve(); err != nil {
			return nil, err
		}
	}
	return &doc, nil
}

func (i *Interface) resolve() error {
	i.scope = make(Scope)
	for _, decl := range i.Types {
		if _, dup := i.scope[decl.Name]; dup || decl.Name == "" {
			return errors.InvalidInput(errors.PhaseParse,
				fmt.Sprintf("%s: bad or duplicate type name %q", i.Name, decl.Name))
		}
		td, err := decl.resolve(i.scope)
		if err != nil {
			return errors.New(errors.PhaseParse, errors.KindInvalidData).
				Path(i.Name, decl.Name).
				Cause(err).
				Build()
		}
		i.scope[decl.Name] = td
	}

	names := make(map[string]bool)
	for _, f := range i.Functions {
		if f.Name == "" || names[f.Name] {
			return errors.InvalidInput(errors.PhaseParse,
				fmt.Sprintf("%s: bad or duplicate function name %q", i.Name, f.Name))
		}
		names[f.Name] = true
		if err := f.resolve(i.scope); err != nil {
			return errors.New(errors.PhaseParse, errors.KindInvalidData).
				Path(i.Name, f.Name).
				Cause(err).
				Build()
		}
	}
	return nil
}

func (d *TypeDecl) resolve(scope Scope) (*wit.TypeDef, error) {
	set := 0
	if d.Resource {
		set++
	}
	if len(d.Record) > 0 {
		set++
	}
	if len(d.Enum) > 0 {
		set++
	}
	if set != 1 {
		return nil, fmt.Errorf("declare exactly one of resource, record or enum")
	}

	name := d.Name
	switch {
	case d.Resource:
		return &wit.TypeDef{Name: &name, Kind: &wit.Resource{}}, nil
	case len(d.Enum) > 0:
		cases := make([]wit.EnumCase, len(d.Enum))
		for i, c := range d.Enum {
			cases[i] = wit.EnumCase{Name: c}
		}
		return &wit.TypeDef{Name: &name, Kind: &wit.Enum{Cases: cases}}, nil
	}

	rec := &wit.Record{}
	for _, f := range d.Record {
		t, err := ParseType(f.Type, scope)
		if err != nil {
			return nil, err
		}
		rec.Fields = append(rec.Fields, wit.Field{Name: f.Name, Type: t})
	}
	return &wit.TypeDef{Name: &name, Kind: rec}, nil
}

func (f *Function) resolve(scope Scope) error {
	switch f.ABI {
	case "":
	case ABICString:
		if len(f.Params) > 0 || len(f.Results) > 0 {
			return fmt.Errorf("%s functions declare no params or results", ABICString)
		}
		return nil
	default:
		return fmt.Errorf("unknown abi %q", f.ABI)
	}

	for _, p := range f.Params {
		t, err := ParseType(p.Type, scope)
		if err != nil {
			return err
		}
		f.sig.Params = append(f.sig.Params, t)
	}
	for _, r := range f.Results {
		t, err := ParseType(r, scope)
		if err != nil {
			return err
		}
		f.sig.Results = append(f.sig.Results, t)
	}
	return nil
}

// Interface returns the named interface.
func (d *Document) Interface(name string) (*Interface, bool) {
	for _, i := range d.Interfaces {
		if i.Name == name {
			return i, true
		}
	}
	return nil, false
}

// Encode renders the document as YAML.
func (d *Document) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
