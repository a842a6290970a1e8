package annotation

import "math"

// Annotation is one typed answer inside a classification. The set of
// implementations is closed: Choice, Count, PointMark, CircleMark, RectMark.
type Annotation interface {
	Kind() TaskKind
	isAnnotation()
}

// Choice is a categorical answer, kept exactly as submitted.
type Choice struct {
	Value string
}

// Count is a numeric answer. Value is nil when the submitted text could not
// be read as an integer.
type Count struct {
	Value *int
}

// PointMark is a single (x, y) mark in image pixel coordinates.
type PointMark struct {
	X, Y float64
}

// CircleMark is a circle centred on (X, Y). Angle is the tool's rotation
// handle in degrees; older exports omit it.
type CircleMark struct {
	X, Y   float64
	Radius float64
	Angle  *float64
}

// RectMark is an axis-aligned box with its top-left corner at (X, Y).
type RectMark struct {
	X, Y          float64
	Width, Height float64
}

func (Choice) Kind() TaskKind     { return KindChoice }
func (Count) Kind() TaskKind      { return KindCount }
func (PointMark) Kind() TaskKind  { return KindPoint }
func (CircleMark) Kind() TaskKind { return KindCircle }
func (RectMark) Kind() TaskKind   { return KindRect }

func (Choice) isAnnotation()     {}
func (Count) isAnnotation()      {}
func (PointMark) isAnnotation()  {}
func (CircleMark) isAnnotation() {}
func (RectMark) isAnnotation()   {}

// IntPtr is a helper for building Count values.
func IntPtr(v int) *int { return &v }

// FloatPtr is a helper for building optional mark attributes.
func FloatPtr(v float64) *float64 { return &v }

// Mark is the common view of a spatial annotation used for clustering.
// Centre is the position that gets clustered; Aux carries the per-kind
// attributes that are averaged over a cluster (radius, or width and height).
type Mark interface {
	Annotation
	Centre() (x, y float64)
	Aux() []float64
}

func (m PointMark) Centre() (float64, float64) { return m.X, m.Y }
func (m PointMark) Aux() []float64             { return nil }

func (m CircleMark) Centre() (float64, float64) { return m.X, m.Y }
func (m CircleMark) Aux() []float64             { return []float64{m.Radius} }

// Centre of a box is its midpoint, so boxes drawn from the same object
// but with different extents still land close together.
func (m RectMark) Centre() (float64, float64) {
	return m.X + 0.5*m.Width, m.Y + 0.5*m.Height
}
func (m RectMark) Aux() []float64 { return []float64{m.Width, m.Height} }

// ValidateMark checks that every value of a mark is finite.
func ValidateMark(m Mark) error {
	x, y := m.Centre()
	if !finite(x) || !finite(y) {
		return &MalformedMarkError{Kind: m.Kind(), Field: "centre"}
	}
	for _, v := range m.Aux() {
		if !finite(v) {
			return &MalformedMarkError{Kind: m.Kind(), Field: "size"}
		}
	}
	if c, ok := m.(CircleMark); ok && c.Angle != nil && !finite(*c.Angle) {
		return &MalformedMarkError{Kind: m.Kind(), Field: "angle"}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
