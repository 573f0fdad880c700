package drawing

import (
	"fmt"

	"github.com/sensorhub/annotator/internal/geometry"
	"github.com/sensorhub/annotator/internal/observation"
)

// NoHover marks that no row is hovered.
const NoHover = -1

// Shape is one labelled box on the overlay. Rect is in surface pixels and is
// only set when the surface is measured.
type Shape struct {
	Index int                     `json:"index"`
	Label string                  `json:"label"`
	Box   observation.BoundingBox `json:"bounding_box"`
	Rect  *geometry.Rect          `json:"rect,omitempty"`
}

// Overlay is everything to draw over the image, bottom layer first.
// A hovered row appears only in Highlight, which is drawn above Normal.
type Overlay struct {
	EditMode  bool           `json:"edit_mode"`
	EditIndex int            `json:"edit_index"`
	Normal    []Shape        `json:"normal"`
	Highlight []Shape        `json:"highlight"`
	Live      *geometry.Rect `json:"live,omitempty"`
}

// RenderInput is the display state for Render.
type RenderInput struct {
	Rows       []observation.Local
	FileID     int64
	Session    Session
	HoverIndex int
	Size       geometry.Size
	Live       *geometry.Rect
}

// Render builds the overlay. Rows without a box or detached from the file are skipped.
// While a box is being drawn, the edited row is hidden and hover is ignored.
func Render(in RenderInput) Overlay {
	out := Overlay{
		EditMode:  in.Session.EditMode,
		EditIndex: in.Session.EditIndex,
		Normal:    []Shape{},
		Highlight: []Shape{},
	}

	for _, row := range in.Rows {
		if row.BoundingBox.IsEmpty() || row.AttachmentTo(in.FileID) == observation.Detached {
			continue
		}
		if in.Session.EditMode && row.Index == in.Session.EditIndex {
			continue
		}

		shape := Shape{Index: row.Index, Label: Label(row.Observation), Box: row.BoundingBox}
		if rect, ok := geometry.BoxToRect(row.BoundingBox, in.Size); ok {
			shape.Rect = &rect
		}

		if !in.Session.EditMode && row.Index == in.HoverIndex {
			out.Highlight = append(out.Highlight, shape)
			continue
		}
		out.Normal = append(out.Normal, shape)
	}

	if in.Session.EditMode && in.Live != nil {
		live := *in.Live
		out.Live = &live
	}
	return out
}

// Label is the caption drawn next to a box.
func Label(o observation.Observation) string {
	name := o.SpeciesCommonName
	if name == "" {
		name = o.SpeciesName
	}
	if name == "" {
		name = "Unknown"
	}
	if o.Number > 1 {
		return fmt.Sprintf("%s (%d)", name, o.Number)
	}
	return name
}
