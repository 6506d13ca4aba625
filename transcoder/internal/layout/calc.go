package layout

import (
	"sync"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/ffi-boundary/transcoder/internal/abi"
)

// Info is the memory layout of one WIT type.
type Info struct {
	FieldOffs map[string]uint32
	Offsets   []uint32
	Size      uint32
	Align     uint32
}

type Calculator struct {
	cache map[*wit.TypeDef]Info
	mu    sync.Mutex
}

func NewCalculator() *Calculator {
	return &Calculator{
		cache: make(map[*wit.TypeDef]Info),
	}
}

func (c *Calculator) Calculate(t wit.Type) Info {
	switch typ := t.(type) {
	case wit.U8, wit.S8, wit.Bool:
		return Info{Size: 1, Align: 1}
	case wit.U16, wit.S16:
		return Info{Size: 2, Align: 2}
	case wit.U32, wit.S32, wit.F32, wit.Char:
		return Info{Size: 4, Align: 4}
	case wit.U64, wit.S64, wit.F64:
		return Info{Size: 8, Align: 8}
	case wit.String:
		return Info{Size: 8, Align: 4}
	case *wit.TypeDef:
		return c.calculateTypeDef(typ)
	default:
		return Info{Size: 0, Align: 1}
	}
}

func (c *Calculator) calculateTypeDef(t *wit.TypeDef) Info {
	c.mu.Lock()
	cached, ok := c.cache[t]
	c.mu.Unlock()
	if ok {
		return cached
	}

	var info Info
	switch kind := t.Kind.(type) {
	case *wit.Record:
		names := make([]string, len(kind.Fields))
		types := make([]wit.Type, len(kind.Fields))
		for i, f := range kind.Fields {
			names[i] = f.Name
			types[i] = f.Type
		}
		info = c.sequence(types)
		info.FieldOffs = make(map[string]uint32, len(names))
		for i, name := range names {
			info.FieldOffs[name] = info.Offsets[i]
		}
	case *wit.Tuple:
		info = c.sequence(kind.Types)
	case *wit.List:
		info = Info{Size: 8, Align: 4}
	case *wit.Enum:
		size := abi.DiscriminantSize(len(kind.Cases))
		info = Info{Size: size, Align: size}
	case *wit.Own, *wit.Borrow:
		info = Info{Size: 4, Align: 4}
	case *wit.Option:
		info = c.cases(kind.Type)
	case *wit.Result:
		info = c.cases(kind.OK, kind.Err)
	case wit.Type:
		info = c.Calculate(kind)
	default:
		info = Info{Size: 0, Align: 1}
	}

	c.mu.Lock()
	c.cache[t] = info
	c.mu.Unlock()
	return info
}

// sequence lays out consecutive members, as records and tuples do.
func (c *Calculator) sequence(types []wit.Type) Info {
	if len(types) == 0 {
		return Info{Size: 0, Align: 1}
	}

	offsets := make([]uint32, len(types))
	maxAlign := uint32(1)
	offset := uint32(0)
	for i, typ := range types {
		member := c.Calculate(typ)
		offset = abi.AlignTo(offset, member.Align)
		offsets[i] = offset
		if member.Align > maxAlign {
			maxAlign = member.Align
		}
		offset += member.Size
	}

	return Info{
		Size:    abi.AlignTo(offset, maxAlign),
		Align:   maxAlign,
		Offsets: offsets,
	}
}

// cases lays out a one-byte discriminant and the widest payload.
// A nil case has no payload.
func (c *Calculator) cases(types ...wit.Type) Info {
	maxAlign := uint32(1)
	maxSize := uint32(0)
	for _, typ := range types {
		if typ == nil {
			continue
		}
		member := c.Calculate(typ)
		if member.Align > maxAlign {
			maxAlign = member.Align
		}
		if member.Size > maxSize {
			maxSize = member.Size
		}
	}

	payload := abi.AlignTo(1, maxAlign)
	return Info{
		Size:    abi.AlignTo(payload+maxSize, maxAlign),
		Align:   maxAlign,
		Offsets: []uint32{0, payload},
	}
}
