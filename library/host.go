package library

import (
	"github.com/wippyai/ffi-boundary/record"
	"github.com/wippyai/ffi-boundary/resource"
	"github.com/wippyai/ffi-boundary/transcoder"
)

// Namespace is the interface name the operations are exported under.
const Namespace = "ffi:library/api@0.1.0"

// PointHandle is a point as its raw handle number. Callers holding one
// own a reference and release it with PointDrop.
type PointHandle uint32

func (PointHandle) ResourceName() string { return record.ResourceName }

// Host exposes the library operations for binding. Every exported method
// except Namespace and CStringFunctions becomes one boundary function
// named after the method in kebab case.
type Host struct {
	points *resource.Typed[*record.Point]
}

// NewHost returns a Host whose point handles live in table.
func NewHost(table *resource.Table) *Host {
	return &Host{points: resource.NewTyped[*record.Point](table, record.ResourceName)}
}

func (h *Host) Namespace() string { return Namespace }

func (h *Host) BoolInc(v bool) bool { return BoolInc(v) }
func (h *Host) I8Inc(v int8) int8 { return I8Inc(v) }
func (h *Host) I16Inc(v int16) int16 { return I16Inc(v) }
func (h *Host) I32Inc(v int32) int32 { return I32Inc(v) }
func (h *Host) I64Inc(v int64) int64 { return I64Inc(v) }
func (h *Host) U8Inc(v uint8) uint8 { return U8Inc(v) }
func (h *Host) U16Inc(v uint16) uint16 { return U16Inc(v) }
func (h *Host) U32Inc(v uint32) uint32 { return U32Inc(v) }
func (h *Host) U64Inc(v uint64) uint64 { return U64Inc(v) }
func (h *Host) FloatInc(v float32) float32 { return FloatInc(v) }
func (h *Host) DoubleInc(v float64) float64 { return DoubleInc(v) }
func (h *Host) StringInc(s string) string { return StringInc(s) }
func (h *Host) VectorInc(l []string) []string { return VectorInc(l) }
func (h *Host) VoidInc(v int32) { VoidInc(v) }

func (h *Host) HashMapInc(m map[string]int32) map[string]int32 {
	return HashMapInc(m)
}

func (h *Host) OptionalInc(v transcoder.Option[int32]) transcoder.Option[int32] {
	return OptionalInc(v)
}

func (h *Host) PointInc(p record.PointValue) record.PointValue {
	return PointInc(p)
}

func (h *Host) ByRefInc(p *record.Point) {
	ByRefInc(p)
}

func (h *Host) ErrorInc(a, b uint64) transcoder.Result[uint64, ArithmeticError[uint64]] {
	return ErrorInc(a, b)
}

func (h *Host) ErrorIncSigned(a, b int32) transcoder.Result[int32, ArithmeticError[int32]] {
	return ErrorIncSigned(a, b)
}

// NewPoint creates a shared point. The handle the caller receives holds
// the only reference.
func (h *Host) NewPoint(x, y float64) *record.Point {
	return record.NewPoint(x, y)
}

func (h *Host) PointGetX(p *record.Point) float64 { return p.X.Load() }
func (h *Host) PointGetY(p *record.Point) float64 { return p.Y.Load() }
func (h *Host) PointSetX(p *record.Point, x float64) { p.X.Store(x) }
func (h *Host) PointSetY(p *record.Point, y float64) { p.Y.Store(y) }

// PointClone adds a reference to a point and returns a handle for it.
// A handle that is not live traps the call.
func (h *Host) PointClone(p PointHandle) (PointHandle, error) {
	c, err := h.points.Clone(resource.Handle(p))
	return PointHandle(c), err
}

// PointDrop releases one reference. The point is freed once every
// reference is gone. Dropping a handle that is not live traps the call
// with an invalid handle error; the error is never returned as a value.
func (h *Host) PointDrop(p PointHandle) error {
	return h.points.Release(resource.Handle(p))
}

// CStringFunctions lists the functions that take a null-terminated
// string pointer and report failures through a call status record.
func (h *Host) CStringFunctions() map[string]func(string) (uint32, error) {
	return map[string]func(string) (uint32, error){
		"count-characters": func(s string) (uint32, error) {
			return CountCharacters(s), nil
		},
	}
}
