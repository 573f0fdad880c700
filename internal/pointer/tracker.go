// Package pointer tracks the pointer position relative to a drawing surface.
package pointer

import (
	"sync"

	"github.com/sensorhub/annotator/internal/geometry"
	"github.com/sensorhub/annotator/internal/logger"
)

// Tracker exposes the latest pointer position in the attached surface's local pixels.
// The position is (0,0) until the first event after Attach.
type Tracker struct {
	mu          sync.RWMutex
	surface     Surface
	unsubscribe func()
	position    geometry.Point
	onEvent     func(Event, geometry.Point)
	log         logger.Logger
}

// NewTracker creates a detached tracker.
func NewTracker(log logger.Logger) *Tracker {
	if log == nil {
		log = logger.Global().Module("pointer")
	}
	return &Tracker{log: log}
}

// OnEvent registers a callback run after each event with the updated local position.
// The draw engine uses it to receive down/move/up in surface coordinates.
func (t *Tracker) OnEvent(fn func(Event, geometry.Point)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onEvent = fn
}

// Attach starts tracking s. A previously attached surface is detached first.
func (t *Tracker) Attach(s Surface) {
	t.Detach()

	unsubscribe := s.Subscribe(t.handle)

	t.mu.Lock()
	t.surface = s
	t.unsubscribe = unsubscribe
	t.position = geometry.Point{}
	t.mu.Unlock()

	t.log.Debug("pointer tracker attached", logger.Float64("width", s.Bounds().Width), logger.Float64("height", s.Bounds().Height))
}

// Detach removes the listener from the current surface. Safe to call when detached.
func (t *Tracker) Detach() {
	t.mu.Lock()
	unsubscribe := t.unsubscribe
	t.surface = nil
	t.unsubscribe = nil
	t.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
		t.log.Debug("pointer tracker detached")
	}
}

// Attached reports whether a surface is being tracked.
func (t *Tracker) Attached() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.surface != nil
}

// Position returns the latest local pointer position.
func (t *Tracker) Position() geometry.Point {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.position
}

// Size returns the attached surface's current size, or the zero Size when detached.
func (t *Tracker) Size() geometry.Size {
	t.mu.RLock()
	s := t.surface
	t.mu.RUnlock()
	if s == nil {
		return geometry.Size{}
	}
	return s.Bounds().Size()
}

func (t *Tracker) handle(ev Event) {
	t.mu.Lock()
	if t.surface == nil {
		t.mu.Unlock()
		return
	}
	pos := t.surface.Bounds().Local(ev.PageX, ev.PageY)
	t.position = pos
	onEvent := t.onEvent
	t.mu.Unlock()

	t.log.Trace("pointer event",
		logger.String("type", string(ev.Type)),
		logger.Float64("x", pos.X),
		logger.Float64("y", pos.Y))

	if onEvent != nil {
		onEvent(ev, pos)
	}
}
