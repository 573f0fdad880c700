// Package drawing implements the rectangle draw state machine that turns a
// pointer drag into one normalized bounding box per edit session.
package drawing

import "github.com/sensorhub/annotator/internal/geometry"

// State is one of Idle, Dragging or Committed.
type State interface {
	stateName() string
}

// Idle waits for a pointer-down.
type Idle struct{}

// Dragging follows the pointer from Anchor. Live is the rectangle between Anchor and Current.
type Dragging struct {
	Anchor  geometry.Point
	Current geometry.Point
	Live    geometry.Rect
}

// Committed holds the final rectangle of a drag. It is transient: the next
// input is handled as if from Idle.
type Committed struct {
	Rect geometry.Rect
}

func (Idle) stateName() string      { return "idle" }
func (Dragging) stateName() string  { return "dragging" }
func (Committed) stateName() string { return "committed" }

// Name returns the state label used in logs and API responses.
func Name(s State) string {
	if s == nil {
		return Idle{}.stateName()
	}
	return s.stateName()
}

// Input is a pointer transition in surface pixels.
type Input struct {
	Kind InputKind
	At   geometry.Point
}

// InputKind enumerates the transitions.
type InputKind int

const (
	PointerDown InputKind = iota
	PointerMove
	PointerUp
)

// Reduce is the pure transition function.
//
//	idle     --down--> dragging (anchor recorded)
//	dragging --move--> dragging (live rectangle recomputed)
//	dragging --up----> committed
//
// Everything else leaves the state unchanged; committed behaves as idle.
func Reduce(s State, in Input) State {
	switch cur := s.(type) {
	case Dragging:
		switch in.Kind {
		case PointerMove:
			return Dragging{Anchor: cur.Anchor, Current: in.At, Live: geometry.Between(cur.Anchor, in.At)}
		case PointerUp:
			return Committed{Rect: geometry.Between(cur.Anchor, in.At)}
		default:
			return cur
		}
	default:
		if in.Kind == PointerDown {
			return Dragging{Anchor: in.At, Current: in.At, Live: geometry.Between(in.At, in.At)}
		}
		return Idle{}
	}
}
