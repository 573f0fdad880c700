package drawing

import (
	"sync"

	"github.com/sensorhub/annotator/internal/errors"
	"github.com/sensorhub/annotator/internal/geometry"
	"github.com/sensorhub/annotator/internal/logger"
	"github.com/sensorhub/annotator/internal/observation"
	"github.com/sensorhub/annotator/internal/pointer"
)

var (
	// ErrNotDragging is returned for a pointer-up with no drag in progress.
	ErrNotDragging = errors.NewStd("no drag in progress")
	// ErrNotEditing is returned for pointer input outside a box edit session.
	ErrNotEditing = errors.NewStd("no bounding box edit session")
	// ErrSessionActive is returned when a second edit session is started.
	ErrSessionActive = errors.NewStd("bounding box edit session already active")
)

// Rows is the row storage the engine writes committed boxes into.
type Rows interface {
	Len() int
	SetBox(index int, box observation.BoundingBox) error
	Rows() []observation.Local
}

// Session identifies the row receiving a drawn box.
type Session struct {
	EditMode  bool `json:"edit_mode"`
	EditIndex int  `json:"edit_index"`
}

// CommitResult describes the outcome of a pointer-up.
type CommitResult struct {
	Index   int                     `json:"index"`
	Box     observation.BoundingBox `json:"bounding_box"`
	Applied bool                    `json:"applied"`
	Reason  string                  `json:"reason,omitempty"` // why a commit was a no-op
}

// Commit no-op reasons
const (
	ReasonUnmeasured = "surface not measured"
	ReasonDegenerate = "zero-area box discarded"
)

// Options tune commit behavior.
type Options struct {
	// DiscardDegenerate drops zero-area boxes instead of writing them.
	DiscardDegenerate bool
}

// Engine runs Reduce for one edit session at a time and writes the result into Rows.
type Engine struct {
	mu         sync.Mutex
	rows       Rows
	opts       Options
	state      State
	session    Session
	onComplete func([]observation.Local)
	log        logger.Logger
}

// NewEngine creates an idle engine writing into rows.
func NewEngine(rows Rows, opts Options, log logger.Logger) *Engine {
	if log == nil {
		log = logger.Global().Module("drawing")
	}
	return &Engine{rows: rows, opts: opts, state: Idle{}, log: log}
}

// Begin starts an edit session for the row at index. onComplete receives the
// full row list after the session commits, even when the commit was a no-op.
func (e *Engine) Begin(index int, onComplete func([]observation.Local)) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session.EditMode {
		return errors.New(ErrSessionActive).
			Component("drawing").
			Category(errors.CategoryState).
			Context("edit_index", e.session.EditIndex).
			Context("requested_index", index).
			Build()
	}
	if index < 0 || index >= e.rows.Len() {
		return errors.Newf("row index %d out of range", index).
			Component("drawing").
			Category(errors.CategoryValidation).
			Context("rows", e.rows.Len()).
			Build()
	}

	e.session = Session{EditMode: true, EditIndex: index}
	e.state = Idle{}
	e.onComplete = onComplete
	e.log.Debug("box edit session started", logger.Int("index", index))
	return nil
}

// Cancel ends the session without writing anything.
func (e *Engine) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session.EditMode {
		e.log.Debug("box edit session cancelled", logger.Int("index", e.session.EditIndex))
	}
	e.reset()
}

// Handle feeds one pointer event at local position at on a surface of the given size.
// A non-nil CommitResult is returned when the event ended the session.
func (e *Engine) Handle(ev pointer.Event, at geometry.Point, size geometry.Size) (*CommitResult, error) {
	e.mu.Lock()

	if !e.session.EditMode {
		e.mu.Unlock()
		if ev.Type == pointer.Move {
			return nil, nil
		}
		return nil, errors.New(ErrNotEditing).Component("drawing").Category(errors.CategoryState).Build()
	}

	kind, ok := inputKind(ev.Type)
	if !ok {
		e.mu.Unlock()
		return nil, errors.Newf("unknown pointer event type %q", ev.Type).
			Component("drawing").
			Category(errors.CategoryValidation).
			Build()
	}

	if _, dragging := e.state.(Dragging); kind == PointerUp && !dragging {
		e.mu.Unlock()
		return nil, errors.New(ErrNotDragging).Component("drawing").Category(errors.CategoryState).Build()
	}

	e.state = Reduce(e.state, Input{Kind: kind, At: at})

	committed, ok := e.state.(Committed)
	if !ok {
		e.mu.Unlock()
		return nil, nil
	}

	result := e.commit(committed, size)
	onComplete := e.onComplete
	e.reset()
	e.mu.Unlock()

	// Callback runs unlocked so it may start the next session
	if onComplete != nil {
		onComplete(e.rows.Rows())
	}
	return result, nil
}

// commit writes the committed rectangle. Geometry problems are no-ops, never errors.
func (e *Engine) commit(c Committed, size geometry.Size) *CommitResult {
	index := e.session.EditIndex
	result := &CommitResult{Index: index}

	box, ok := geometry.RectToBox(c.Rect, size)
	switch {
	case !ok:
		result.Reason = ReasonUnmeasured
	case box.IsDegenerate() && e.opts.DiscardDegenerate:
		result.Reason = ReasonDegenerate
	default:
		if err := e.rows.SetBox(index, box); err != nil {
			// Row vanished under the session; treat like any other failed geometry commit
			e.log.Warn("failed to write committed box", logger.Int("index", index), logger.Error(err))
			result.Reason = err.Error()
			return result
		}
		result.Box = box
		result.Applied = true
	}

	if result.Applied {
		e.log.Debug("bounding box committed",
			logger.Int("index", index),
			logger.Float64("x1", box.X1), logger.Float64("y1", box.Y1),
			logger.Float64("x2", box.X2), logger.Float64("y2", box.Y2))
	} else {
		e.log.Debug("bounding box commit skipped", logger.Int("index", index), logger.String("reason", result.Reason))
	}
	return result
}

func (e *Engine) reset() {
	e.state = Idle{}
	e.session = Session{}
	e.onComplete = nil
}

// State returns the current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Session returns the current edit session.
func (e *Engine) Session() Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session
}

// Live returns the in-progress rectangle while dragging.
func (e *Engine) Live() (geometry.Rect, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if d, ok := e.state.(Dragging); ok {
		return d.Live, true
	}
	return geometry.Rect{}, false
}

func inputKind(t pointer.EventType) (InputKind, bool) {
	switch t {
	case pointer.Down:
		return PointerDown, true
	case pointer.Move:
		return PointerMove, true
	case pointer.Up:
		return PointerUp, true
	default:
		return 0, false
	}
}
