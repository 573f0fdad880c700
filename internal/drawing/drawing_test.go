package drawing

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/sensorhub/annotator/internal/geometry"
	"github.com/sensorhub/annotator/internal/logger"
	"github.com/sensorhub/annotator/internal/observation"
	"github.com/sensorhub/annotator/internal/pointer"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// memRows is a minimal Rows backed by a slice.
type memRows struct {
	mu   sync.Mutex
	rows []observation.Local
}

func newMemRows(n int) *memRows {
	r := &memRows{}
	for i := range n {
		r.rows = append(r.rows, observation.Local{Index: i, Observation: observation.Observation{DataFiles: []int64{1}}})
	}
	return r
}

func (m *memRows) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

func (m *memRows) SetBox(index int, box observation.BoundingBox) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if index < 0 || index >= len(m.rows) {
		return fmt.Errorf("index %d out of range", index)
	}
	m.rows[index].BoundingBox = box
	m.rows[index].Edited = true
	return nil
}

func (m *memRows) Rows() []observation.Local {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]observation.Local, len(m.rows))
	copy(out, m.rows)
	return out
}

var surface = geometry.Size{Width: 200, Height: 100}

func ev(t pointer.EventType) pointer.Event {
	return pointer.Event{Type: t}
}

func TestReduceTransitions(t *testing.T) {
	t.Parallel()

	s := Reduce(Idle{}, Input{Kind: PointerMove, At: geometry.Point{X: 3, Y: 3}})
	assert.Equal(t, Idle{}, s)

	s = Reduce(s, Input{Kind: PointerDown, At: geometry.Point{X: 50, Y: 40}})
	require.IsType(t, Dragging{}, s)
	assert.Equal(t, geometry.Point{X: 50, Y: 40}, s.(Dragging).Anchor)

	s = Reduce(s, Input{Kind: PointerMove, At: geometry.Point{X: 10, Y: 80}})
	assert.Equal(t, geometry.Rect{X: 10, Y: 40, Width: 40, Height: 40}, s.(Dragging).Live)

	s = Reduce(s, Input{Kind: PointerDown, At: geometry.Point{X: 0, Y: 0}})
	assert.Equal(t, geometry.Point{X: 50, Y: 40}, s.(Dragging).Anchor, "second down keeps the anchor")

	s = Reduce(s, Input{Kind: PointerUp, At: geometry.Point{X: 60, Y: 20}})
	assert.Equal(t, Committed{Rect: geometry.Rect{X: 50, Y: 20, Width: 10, Height: 20}}, s)
	assert.Equal(t, "committed", Name(s))

	assert.Equal(t, Idle{}, Reduce(s, Input{Kind: PointerUp}))
	assert.IsType(t, Dragging{}, Reduce(s, Input{Kind: PointerDown}))
}

func TestEngineCommitsNormalizedBox(t *testing.T) {
	t.Parallel()

	rows := newMemRows(2)
	e := NewEngine(rows, Options{DiscardDegenerate: true}, logger.NewDiscardLogger())

	var completed []observation.Local
	require.NoError(t, e.Begin(1, func(r []observation.Local) { completed = r }))
	assert.Equal(t, Session{EditMode: true, EditIndex: 1}, e.Session())

	_, err := e.Handle(ev(pointer.Down), geometry.Point{X: 150, Y: 80}, surface)
	require.NoError(t, err)
	_, err = e.Handle(ev(pointer.Move), geometry.Point{X: 100, Y: 60}, surface)
	require.NoError(t, err)
	live, ok := e.Live()
	require.True(t, ok)
	assert.Equal(t, geometry.Rect{X: 100, Y: 60, Width: 50, Height: 20}, live)

	res, err := e.Handle(ev(pointer.Up), geometry.Point{X: 50, Y: 20}, surface)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, res.Applied)
	assert.Equal(t, observation.NewBox(0.25, 0.2, 0.75, 0.8), res.Box)

	require.Len(t, completed, 2)
	assert.Equal(t, res.Box, completed[1].BoundingBox)
	assert.True(t, completed[1].Edited)
	assert.True(t, completed[0].BoundingBox.IsEmpty())

	assert.Equal(t, Session{}, e.Session())
	assert.Equal(t, Idle{}, e.State())
}

func TestEngineDegenerateBox(t *testing.T) {
	t.Parallel()

	for _, discard := range []bool{true, false} {
		rows := newMemRows(1)
		e := NewEngine(rows, Options{DiscardDegenerate: discard}, logger.NewDiscardLogger())

		called := false
		require.NoError(t, e.Begin(0, func([]observation.Local) { called = true }))
		_, err := e.Handle(ev(pointer.Down), geometry.Point{X: 20, Y: 20}, surface)
		require.NoError(t, err)
		res, err := e.Handle(ev(pointer.Up), geometry.Point{X: 20, Y: 20}, surface)
		require.NoError(t, err)

		assert.True(t, called, "callback fires for no-op commits too")
		if discard {
			assert.False(t, res.Applied)
			assert.Equal(t, ReasonDegenerate, res.Reason)
			assert.True(t, rows.Rows()[0].BoundingBox.IsEmpty())
		} else {
			assert.True(t, res.Applied)
			assert.Equal(t, observation.NewBox(0.1, 0.2, 0.1, 0.2), rows.Rows()[0].BoundingBox)
		}
	}
}

func TestEngineUnmeasuredSurfaceIsNoop(t *testing.T) {
	t.Parallel()

	rows := newMemRows(1)
	e := NewEngine(rows, Options{}, logger.NewDiscardLogger())
	require.NoError(t, e.Begin(0, nil))

	_, err := e.Handle(ev(pointer.Down), geometry.Point{X: 1, Y: 1}, geometry.Size{})
	require.NoError(t, err)
	res, err := e.Handle(ev(pointer.Up), geometry.Point{X: 30, Y: 30}, geometry.Size{})
	require.NoError(t, err)

	assert.False(t, res.Applied)
	assert.Equal(t, ReasonUnmeasured, res.Reason)
	assert.False(t, rows.Rows()[0].Edited)
}

func TestEngineSessionErrors(t *testing.T) {
	t.Parallel()

	e := NewEngine(newMemRows(1), Options{}, logger.NewDiscardLogger())

	res, err := e.Handle(ev(pointer.Move), geometry.Point{}, surface)
	require.NoError(t, err, "hover movement outside a session is ignored")
	assert.Nil(t, res)

	_, err = e.Handle(ev(pointer.Down), geometry.Point{}, surface)
	require.ErrorIs(t, err, ErrNotEditing)

	require.Error(t, e.Begin(5, nil))
	require.NoError(t, e.Begin(0, nil))
	require.ErrorIs(t, e.Begin(0, nil), ErrSessionActive)

	_, err = e.Handle(ev(pointer.Up), geometry.Point{}, surface)
	require.ErrorIs(t, err, ErrNotDragging)

	_, err = e.Handle(pointer.Event{Type: "wheel"}, geometry.Point{}, surface)
	require.Error(t, err)

	e.Cancel()
	assert.Equal(t, Session{}, e.Session())
}

func TestCommittedBoxesStayInUnitSquare(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(7, 11))
	for range 500 {
		size := geometry.Size{Width: 1 + rng.Float64()*2000, Height: 1 + rng.Float64()*2000}
		randPoint := func() geometry.Point {
			// Pointer may leave the surface while dragging
			return geometry.Point{
				X: (rng.Float64()*1.6 - 0.3) * size.Width,
				Y: (rng.Float64()*1.6 - 0.3) * size.Height,
			}
		}

		rows := newMemRows(1)
		e := NewEngine(rows, Options{}, logger.NewDiscardLogger())
		require.NoError(t, e.Begin(0, nil))

		_, err := e.Handle(ev(pointer.Down), randPoint(), size)
		require.NoError(t, err)
		for range rng.IntN(10) {
			_, err = e.Handle(ev(pointer.Move), randPoint(), size)
			require.NoError(t, err)
		}
		res, err := e.Handle(ev(pointer.Up), randPoint(), size)
		require.NoError(t, err)
		require.True(t, res.Applied)

		b := res.Box
		assert.True(t, 0 <= b.X1 && b.X1 <= b.X2 && b.X2 <= 1, "x bounds %v", b)
		assert.True(t, 0 <= b.Y1 && b.Y1 <= b.Y2 && b.Y2 <= 1, "y bounds %v", b)
	}
}

func TestEngineDrivenByTracker(t *testing.T) {
	t.Parallel()

	rows := newMemRows(1)
	e := NewEngine(rows, Options{DiscardDegenerate: true}, logger.NewDiscardLogger())
	s := pointer.NewEventSurface(pointer.Bounds{Left: 10, Top: 10, Width: 100, Height: 100})
	tr := pointer.NewTracker(logger.NewDiscardLogger())
	tr.Attach(s)
	defer tr.Detach()

	tr.OnEvent(func(ev pointer.Event, at geometry.Point) {
		_, _ = e.Handle(ev, at, tr.Size())
	})

	require.NoError(t, e.Begin(0, nil))
	s.Dispatch(pointer.Event{Type: pointer.Down, PageX: 20, PageY: 30})
	s.Dispatch(pointer.Event{Type: pointer.Move, PageX: 60, PageY: 50})
	s.Dispatch(pointer.Event{Type: pointer.Up, PageX: 60, PageY: 90})

	assert.Equal(t, observation.NewBox(0.1, 0.2, 0.5, 0.8), rows.Rows()[0].BoundingBox)
}

func TestRenderLayers(t *testing.T) {
	t.Parallel()

	const fileID = 1
	box := observation.NewBox(0.1, 0.1, 0.5, 0.5)
	rows := []observation.Local{
		{Index: 0, Observation: observation.Observation{SpeciesCommonName: "Red fox", Number: 2, BoundingBox: box, DataFiles: []int64{fileID}}},
		{Index: 1, Observation: observation.Observation{SpeciesName: "Meles meles", BoundingBox: box, DataFiles: []int64{fileID}}},
		{Index: 2, Observation: observation.Observation{BoundingBox: box, DataFiles: []int64{}}},
		{Index: 3, Observation: observation.Observation{SpeciesName: "No box", DataFiles: []int64{fileID}}},
	}

	out := Render(RenderInput{Rows: rows, FileID: fileID, HoverIndex: 1, Size: surface})
	require.Len(t, out.Normal, 1)
	require.Len(t, out.Highlight, 1)
	assert.Equal(t, "Red fox (2)", out.Normal[0].Label)
	assert.Equal(t, "Meles meles", out.Highlight[0].Label)
	require.NotNil(t, out.Highlight[0].Rect)
	assert.Equal(t, geometry.Rect{X: 20, Y: 10, Width: 80, Height: 40}, *out.Highlight[0].Rect)

	out = Render(RenderInput{Rows: rows, FileID: fileID, HoverIndex: NoHover})
	assert.Len(t, out.Normal, 2)
	assert.Empty(t, out.Highlight)
	assert.Nil(t, out.Normal[0].Rect)

	live := geometry.Rect{X: 1, Y: 2, Width: 3, Height: 4}
	out = Render(RenderInput{Rows: rows, FileID: fileID, HoverIndex: 1, Session: Session{EditMode: true, EditIndex: 0}, Live: &live})
	require.Len(t, out.Normal, 1)
	assert.Equal(t, 1, out.Normal[0].Index)
	assert.Empty(t, out.Highlight)
	assert.Equal(t, &live, out.Live)
}
