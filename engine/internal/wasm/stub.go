package wasm

import (
	"github.com/tetratelabs/wazero/api"
)

// MemoryExport is the export name of the stub's linear memory.
const MemoryExport = "memory"

// StubBuilder builds a guest module that defines one memory and, for
// every added function, imports it from a host module and exports a
// trampoline that forwards its parameters and results unchanged.
type StubBuilder struct {
	funcs    []stubFunc
	minPages uint32
	maxPages uint32
}

type stubFunc struct {
	module  string
	name    string
	export  string
	params  []api.ValueType
	results []api.ValueType
}

// NewStubBuilder returns a builder for a stub with one page of memory
// and no maximum.
func NewStubBuilder() *StubBuilder {
	return &StubBuilder{minPages: 1}
}

// SetMemory sets the memory limits in pages. max 0 means unbounded.
func (b *StubBuilder) SetMemory(min, max uint32) {
	b.minPages = min
	b.maxPages = max
}

// AddFunc imports module.name and exports a trampoline for it as export.
func (b *StubBuilder) AddFunc(module, name, export string, params, results []api.ValueType) {
	b.funcs = append(b.funcs, stubFunc{
		module:  module,
		name:    name,
		export:  export,
		params:  params,
		results: results,
	})
}

// Len returns the number of functions added.
func (b *StubBuilder) Len() int {
	return len(b.funcs)
}

// Build encodes the module.
func (b *StubBuilder) Build() []byte {
	wasm := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

	if len(b.funcs) > 0 {
		wasm = appendSection(wasm, sectionType, b.buildTypeSection())
		wasm = appendSection(wasm, sectionImport, b.buildImportSection())
		wasm = appendSection(wasm, sectionFunction, b.buildFuncSection())
	}
	wasm = appendSection(wasm, sectionMemory, b.buildMemorySection())
	wasm = appendSection(wasm, sectionExport, b.buildExportSection())
	if len(b.funcs) > 0 {
		wasm = appendSection(wasm, sectionCode, b.buildCodeSection())
	}
	return wasm
}

// One type per function; the import and its trampoline share it.
func (b *StubBuilder) buildTypeSection() []byte {
	section := EncodeULEB128(uint32(len(b.funcs)))
	for _, f := range b.funcs {
		section = append(section, funcTypeTag)
		section = append(section, EncodeULEB128(uint32(len(f.params)))...)
		for _, t := range f.params {
			section = append(section, ValTypeToWasm(t))
		}
		section = append(section, EncodeULEB128(uint32(len(f.results)))...)
		for _, t := range f.results {
			section = append(section, ValTypeToWasm(t))
		}
	}
	return section
}

func (b *StubBuilder) buildImportSection() []byte {
	section := EncodeULEB128(uint32(len(b.funcs)))
	for i, f := range b.funcs {
		section = appendName(section, f.module)
		section = appendName(section, f.name)
		section = append(section, externFunc)
		section = append(section, EncodeULEB128(uint32(i))...)
	}
	return section
}

func (b *StubBuilder) buildFuncSection() []byte {
	section := EncodeULEB128(uint32(len(b.funcs)))
	for i := range b.funcs {
		section = append(section, EncodeULEB128(uint32(i))...)
	}
	return section
}

func (b *StubBuilder) buildMemorySection() []byte {
	section := []byte{0x01}
	if b.maxPages > 0 {
		section = append(section, 0x01)
		section = append(section, EncodeULEB128(b.minPages)...)
		return append(section, EncodeULEB128(b.maxPages)...)
	}
	section = append(section, 0x00)
	return append(section, EncodeULEB128(b.minPages)...)
}

func (b *StubBuilder) buildExportSection() []byte {
	section := EncodeULEB128(uint32(len(b.funcs) + 1))
	section = appendName(section, MemoryExport)
	section = append(section, externMemory, 0x00)

	// trampolines follow the imports in the function index space
	imports := uint32(len(b.funcs))
	for i, f := range b.funcs {
		section = appendName(section, f.export)
		section = append(section, externFunc)
		section = append(section, EncodeULEB128(imports+uint32(i))...)
	}
	return section
}

func (b *StubBuilder) buildCodeSection() []byte {
	section := EncodeULEB128(uint32(len(b.funcs)))
	for i, f := range b.funcs {
		body := []byte{0x00} // no locals
		for p := range f.params {
			body = append(body, opLocalGet)
			body = append(body, EncodeULEB128(uint32(p))...)
		}
		body = append(body, opCall)
		body = append(body, EncodeULEB128(uint32(i))...)
		body = append(body, opEnd)

		section = append(section, EncodeULEB128(uint32(len(body)))...)
		section = append(section, body...)
	}
	return section
}
