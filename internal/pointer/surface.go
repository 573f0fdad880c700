package pointer

import (
	"sync"

	"github.com/sensorhub/annotator/internal/geometry"
)

// EventType is the kind of raw pointer event.
type EventType string

const (
	Down EventType = "down"
	Move EventType = "move"
	Up   EventType = "up"
)

// Event is a raw pointer event in page coordinates.
type Event struct {
	Type  EventType `json:"type"`
	PageX float64   `json:"page_x"`
	PageY float64   `json:"page_y"`
}

// Bounds is the surface's placement on the page.
type Bounds struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Size returns the surface dimensions.
func (b Bounds) Size() geometry.Size {
	return geometry.Size{Width: b.Width, Height: b.Height}
}

// Local converts page coordinates into surface-local pixels.
func (b Bounds) Local(pageX, pageY float64) geometry.Point {
	return geometry.Point{X: pageX - b.Left, Y: pageY - b.Top}
}

// Surface is anything pointer events can be drawn on.
// Subscribe returns a function that removes the listener; calling it twice is safe.
type Surface interface {
	Bounds() Bounds
	Subscribe(listener func(Event)) (unsubscribe func())
}

// EventSurface is an in-process Surface fed by Dispatch, used by the host API and tests.
type EventSurface struct {
	mu        sync.RWMutex
	bounds    Bounds
	nextID    uint64
	listeners map[uint64]func(Event)
}

// NewEventSurface creates a surface with the given placement.
func NewEventSurface(bounds Bounds) *EventSurface {
	return &EventSurface{
		bounds:    bounds,
		listeners: make(map[uint64]func(Event)),
	}
}

// Bounds returns the current placement.
func (s *EventSurface) Bounds() Bounds {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bounds
}

// SetBounds updates the placement, e.g. after the image is measured or resized.
func (s *EventSurface) SetBounds(bounds Bounds) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bounds = bounds
}

// Subscribe registers listener until the returned function is called.
func (s *EventSurface) Subscribe(listener func(Event)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners[id] = listener

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.listeners, id)
		})
	}
}

// Dispatch delivers ev synchronously to every listener.
func (s *EventSurface) Dispatch(ev Event) {
	s.mu.RLock()
	listeners := make([]func(Event), 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.RUnlock()

	for _, l := range listeners {
		l(ev)
	}
}

// Listeners returns the number of attached listeners.
func (s *EventSurface) Listeners() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.listeners)
}
