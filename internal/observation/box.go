package observation

import (
	"encoding/json"
	"math"

	"github.com/sensorhub/annotator/internal/errors"
)

// BoundingBox is an image-relative rectangle with coordinates in [0,1].
// The zero value is the empty box and encodes as {}.
type BoundingBox struct {
	X1, Y1, X2, Y2 float64
	set            bool
}

// NewBox returns a box with the given corners, stored as given.
func NewBox(x1, y1, x2, y2 float64) BoundingBox {
	return BoundingBox{X1: x1, Y1: y1, X2: x2, Y2: y2, set: true}
}

// IsEmpty reports whether b is the empty box.
func (b BoundingBox) IsEmpty() bool {
	return !b.set
}

// IsDegenerate reports whether a non-empty box has zero width or height.
func (b BoundingBox) IsDegenerate() bool {
	return b.set && (b.X1 == b.X2 || b.Y1 == b.Y2)
}

// Normalize clamps every coordinate to [0,1] and orders the corners so x1<=x2 and y1<=y2.
func (b BoundingBox) Normalize() BoundingBox {
	if !b.set {
		return b
	}
	x1, x2 := clamp01(b.X1), clamp01(b.X2)
	y1, y2 := clamp01(b.Y1), clamp01(b.Y2)
	return NewBox(min(x1, x2), min(y1, y2), max(x1, x2), max(y1, y2))
}

// IsNormalized reports whether b is empty or already satisfies Normalize's invariant.
func (b BoundingBox) IsNormalized() bool {
	return !b.set || b == b.Normalize()
}

// Validate checks a non-empty box for finite in-range ordered coordinates.
func (b BoundingBox) Validate() error {
	if !b.set {
		return nil
	}
	for _, v := range []float64{b.X1, b.Y1, b.X2, b.Y2} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.New(ErrInvalidBox).
				Component("observation").
				Category(errors.CategoryValidation).
				Context("reason", "non-finite coordinate").
				Build()
		}
	}
	if !b.IsNormalized() {
		return errors.New(ErrInvalidBox).
			Component("observation").
			Category(errors.CategoryValidation).
			Context("reason", "coordinates out of range or unordered").
			Build()
	}
	return nil
}

type boxJSON struct {
	X1 *float64 `json:"x1,omitempty"`
	Y1 *float64 `json:"y1,omitempty"`
	X2 *float64 `json:"x2,omitempty"`
	Y2 *float64 `json:"y2,omitempty"`
}

// MarshalJSON encodes the empty box as {} and a set box as {x1,y1,x2,y2}.
func (b BoundingBox) MarshalJSON() ([]byte, error) {
	if !b.set {
		return []byte("{}"), nil
	}
	return json.Marshal(boxJSON{X1: &b.X1, Y1: &b.Y1, X2: &b.X2, Y2: &b.Y2})
}

// UnmarshalJSON accepts null, {} or a complete {x1,y1,x2,y2} object.
func (b *BoundingBox) UnmarshalJSON(data []byte) error {
	var raw *boxJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil || (raw.X1 == nil && raw.Y1 == nil && raw.X2 == nil && raw.Y2 == nil) {
		*b = BoundingBox{}
		return nil
	}
	if raw.X1 == nil || raw.Y1 == nil || raw.X2 == nil || raw.Y2 == nil {
		return errors.New(ErrInvalidBox).
			Component("observation").
			Category(errors.CategoryValidation).
			Context("reason", "partial bounding box").
			Build()
	}
	*b = NewBox(*raw.X1, *raw.Y1, *raw.X2, *raw.Y2)
	return nil
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return min(max(v, 0), 1)
}
