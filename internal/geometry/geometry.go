// Package geometry converts between surface pixel coordinates and
// image-relative fractional coordinates.
package geometry

import (
	"math"

	"github.com/sensorhub/annotator/internal/observation"
)

// Point is a position in surface pixels or fractions, depending on context.
type Point struct {
	X, Y float64
}

// Size is a measured surface. A surface with a non-positive side is unmeasured.
type Size struct {
	Width, Height float64
}

// Measured reports whether both sides are positive and finite.
func (s Size) Measured() bool {
	return s.Width > 0 && s.Height > 0 && !math.IsInf(s.Width, 0) && !math.IsInf(s.Height, 0)
}

// Rect is an axis-aligned rectangle in surface pixels.
type Rect struct {
	X, Y, Width, Height float64
}

// Between returns the rectangle spanned by a and b in any drag direction.
func Between(a, b Point) Rect {
	return Rect{
		X:      min(a.X, b.X),
		Y:      min(a.Y, b.Y),
		Width:  math.Abs(b.X - a.X),
		Height: math.Abs(b.Y - a.Y),
	}
}

// IsZero reports whether r has no area.
func (r Rect) IsZero() bool {
	return r.Width == 0 || r.Height == 0
}

// ToFraction divides a pixel position by the surface size.
// ok is false for an unmeasured surface so callers never see NaN or Inf.
func ToFraction(x, y float64, size Size) (fx, fy float64, ok bool) {
	if !size.Measured() {
		return 0, 0, false
	}
	return x / size.Width, y / size.Height, true
}

// ToPixels is the inverse of ToFraction.
func ToPixels(fx, fy float64, size Size) (x, y float64, ok bool) {
	if !size.Measured() {
		return 0, 0, false
	}
	return fx * size.Width, fy * size.Height, true
}

// RectToBox normalizes a pixel rectangle into a bounding box clamped to [0,1].
// Rectangles extending past the surface edge are cut at the edge.
func RectToBox(r Rect, size Size) (observation.BoundingBox, bool) {
	x1, y1, ok := ToFraction(r.X, r.Y, size)
	if !ok {
		return observation.BoundingBox{}, false
	}
	x2, y2, _ := ToFraction(r.X+r.Width, r.Y+r.Height, size)
	return observation.NewBox(x1, y1, x2, y2).Normalize(), true
}

// BoxToRect maps a bounding box onto a surface for display.
func BoxToRect(b observation.BoundingBox, size Size) (Rect, bool) {
	if b.IsEmpty() {
		return Rect{}, false
	}
	x1, y1, ok := ToPixels(b.X1, b.Y1, size)
	if !ok {
		return Rect{}, false
	}
	x2, y2, _ := ToPixels(b.X2, b.Y2, size)
	return Between(Point{X: x1, Y: y1}, Point{X: x2, Y: y2}), true
}
