package record

// ResourceName is the name Point handles are registered under.
const ResourceName = "point"

// Point is a shared mutable record. Every holder of a handle sees the
// same x and y, and each coordinate is locked independently.
type Point struct {
	X Field[float64]
	Y Field[float64]
}

// NewPoint returns a point at (x, y).
func NewPoint(x, y float64) *Point {
	p := &Point{}
	p.X.value = x
	p.Y.value = y
	return p
}

// ResourceName names the handle type a *Point crosses the boundary as.
func (*Point) ResourceName() string { return ResourceName }

// Snapshot reads both coordinates. The two reads are not atomic with
// respect to each other.
func (p *Point) Snapshot() PointValue {
	return PointValue{X: p.X.Load(), Y: p.Y.Load()}
}

// Translate adds dx to x and then dy to y, each under its own
// exclusive lock.
func (p *Point) Translate(dx, dy float64) {
	p.X.Modify(func(x float64) float64 { return x + dx })
	p.Y.Modify(func(y float64) float64 { return y + dy })
}

// PointValue is a plain copy of a point's coordinates, passed by value.
type PointValue struct {
	X float64
	Y float64
}
