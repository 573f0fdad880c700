// Package editor is the host-facing annotation editor for one data file. It
// ties the row store, the box draw engine and the pointer tracker together,
// and saves through the sync engine.
package editor

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/sensorhub/annotator/internal/drawing"
	"github.com/sensorhub/annotator/internal/errors"
	"github.com/sensorhub/annotator/internal/geometry"
	"github.com/sensorhub/annotator/internal/logger"
	"github.com/sensorhub/annotator/internal/observation"
	"github.com/sensorhub/annotator/internal/pointer"
	"github.com/sensorhub/annotator/internal/reconcile"
	"github.com/sensorhub/annotator/internal/rowstore"
)

var (
	// ErrNotEditing is returned for mutations outside edit mode.
	ErrNotEditing = errors.NewStd("editor is not in edit mode")
	// ErrReadOnly is returned when modifying a row owned by another user.
	ErrReadOnly = errors.NewStd("observation is owned by another user")
)

// DraftStore keeps unsaved rows across restarts.
type DraftStore interface {
	Save(ctx context.Context, fileID int64, sessionID string, rows []observation.Local) error
	LoadRows(ctx context.Context, fileID int64) ([]observation.Local, error)
	Delete(ctx context.Context, fileID int64) error
}

// Notifier receives every save report.
type Notifier interface {
	PublishReport(ctx context.Context, r *reconcile.Report) error
}

// Callbacks are the host's hooks. Any of them may be nil.
type Callbacks struct {
	// OnEdit runs after a row changes; isNew is set for added and copied rows.
	OnEdit func(row observation.Local, isNew bool)
	// OnEditBoundingBox runs when box drawing starts for a row.
	OnEditBoundingBox func(index int)
	// OnBoxComplete receives the full row list after a box session ends.
	OnBoxComplete func(result drawing.CommitResult, rows []observation.Local)
	// OnHover runs when the hovered row changes; drawing.NoHover clears it.
	OnHover func(index int)
	// OnStopEdit runs when edit mode ends.
	OnStopEdit func()
	// OnSubmit runs after a fully successful save; hosts refetch on it.
	OnSubmit func(report *reconcile.Report)
}

// Options tune editor behavior.
type Options struct {
	DiscardDegenerate bool
	NormalizeOnLoad   bool
	DefaultSource     observation.Source
}

// Deps are the collaborators of a session. Drafts and Notifier are optional.
type Deps struct {
	Source   reconcile.DataSource
	Sync     *reconcile.Engine
	Drafts   DraftStore
	Notifier Notifier
	Logger   logger.Logger
}

// Session edits the observations of one data file.
type Session struct {
	id       string
	file     observation.FileRef
	rows     *rowstore.Store
	draw     *drawing.Engine
	surface  *pointer.EventSurface
	tracker  *pointer.Tracker
	source   reconcile.DataSource
	sync     *reconcile.Engine
	drafts   DraftStore
	notifier Notifier
	cb       Callbacks
	log      logger.Logger

	saves singleflight.Group

	mu       sync.Mutex
	editMode bool
	hover    int

	// Serializes Pointer; the pending fields are written by the tracker
	// callback during the synchronous Dispatch.
	pointerMu     sync.Mutex
	pendingResult *drawing.CommitResult
	pendingErr    error
}

// New creates a session for file. It starts outside edit mode.
func New(file observation.FileRef, deps Deps, opts Options, cb Callbacks) *Session {
	log := deps.Logger
	if log == nil {
		log = logger.Global().Module("editor")
	}
	log = log.With(logger.Int64("file_id", file.ID))

	syncEngine := deps.Sync
	if syncEngine == nil {
		syncEngine = reconcile.NewEngine(deps.Source, reconcile.WithLogger(log.Module("reconcile")))
	}

	rows := rowstore.New(file, rowstore.Options{
		DefaultSource:   opts.DefaultSource,
		NormalizeOnLoad: opts.NormalizeOnLoad,
	}, log.Module("rowstore"))

	s := &Session{
		id:       uuid.NewString(),
		file:     file,
		rows:     rows,
		draw:     drawing.NewEngine(rows, drawing.Options{DiscardDegenerate: opts.DiscardDegenerate}, log.Module("drawing")),
		surface:  pointer.NewEventSurface(pointer.Bounds{}),
		tracker:  pointer.NewTracker(log.Module("pointer")),
		source:   deps.Source,
		sync:     syncEngine,
		drafts:   deps.Drafts,
		notifier: deps.Notifier,
		cb:       cb,
		log:      log,
		hover:    drawing.NoHover,
	}
	s.tracker.OnEvent(s.handlePointer)
	return s
}

// ID is the session id stamped on drafts.
func (s *Session) ID() string { return s.id }

// File returns the data file being edited.
func (s *Session) File() observation.FileRef { return s.file }

// EditMode reports whether the session is in edit mode.
func (s *Session) EditMode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.editMode
}

// Enter switches to edit mode. Rows come from a stored draft when one exists,
// otherwise from the backend. restored reports which. Entering twice is a no-op.
func (s *Session) Enter(ctx context.Context) (restored bool, err error) {
	if s.EditMode() {
		return false, nil
	}

	if draft, ok := s.loadDraft(ctx); ok {
		s.rows.Restore(draft)
		restored = true
	} else if err := s.seed(ctx); err != nil {
		return false, err
	}

	s.tracker.Attach(s.surface)
	s.mu.Lock()
	s.editMode = true
	s.hover = drawing.NoHover
	s.mu.Unlock()

	s.log.Info("edit mode entered", logger.String("session_id", s.id), logger.Bool("draft_restored", restored), logger.Int("rows", s.rows.Len()))
	return restored, nil
}

// Refresh reseeds the rows from the backend, discarding local changes.
func (s *Session) Refresh(ctx context.Context) error {
	s.draw.Cancel()
	return s.seed(ctx)
}

func (s *Session) seed(ctx context.Context) error {
	server, err := s.source.List(ctx, s.file.ID)
	if err != nil {
		return err
	}
	s.rows.Seed(server)
	return nil
}

func (s *Session) loadDraft(ctx context.Context) ([]observation.Local, bool) {
	if s.drafts == nil {
		return nil, false
	}
	rows, err := s.drafts.LoadRows(ctx, s.file.ID)
	if err != nil {
		if !errors.IsNotFound(err) {
			s.log.Warn("failed to load draft, reseeding from backend", logger.Error(err))
		}
		return nil, false
	}
	return rows, true
}

// Stop leaves edit mode, abandoning any box session. Unsaved rows stay in
// the draft store.
func (s *Session) Stop() {
	s.mu.Lock()
	was := s.editMode
	s.editMode = false
	s.hover = drawing.NoHover
	s.mu.Unlock()
	if !was {
		return
	}

	s.draw.Cancel()
	s.tracker.Detach()
	s.log.Info("edit mode stopped", logger.String("session_id", s.id))
	if s.cb.OnStopEdit != nil {
		s.cb.OnStopEdit()
	}
}

// Close releases the surface listener.
func (s *Session) Close() {
	s.draw.Cancel()
	s.tracker.Detach()
}

// Rows returns every row, detached ones included.
func (s *Session) Rows() []observation.Local {
	return s.rows.Rows()
}

// Visible returns the rows still attached to the file.
func (s *Session) Visible() []observation.Local {
	return s.rows.Visible()
}

// Row returns the row at index.
func (s *Session) Row(index int) (observation.Local, error) {
	return s.rows.Row(index)
}

// Edit applies field edits to the row at row.Index. Identity and ownership
// are kept from the stored row.
func (s *Session) Edit(ctx context.Context, row observation.Local) (observation.Local, error) {
	current, err := s.writable(row.Index)
	if err != nil {
		return observation.Local{}, err
	}
	row.ID = current.ID
	row.UserIsOwner = current.UserIsOwner

	updated, err := s.rows.Edit(row)
	if err != nil {
		return observation.Local{}, err
	}
	s.changed(ctx)
	if s.cb.OnEdit != nil {
		s.cb.OnEdit(updated, false)
	}
	return updated, nil
}

// Add appends a default row for the file.
func (s *Session) Add(ctx context.Context) (observation.Local, error) {
	if err := s.requireEditMode(); err != nil {
		return observation.Local{}, err
	}
	row := s.rows.Add(nil)
	s.changed(ctx)
	if s.cb.OnEdit != nil {
		s.cb.OnEdit(row, true)
	}
	return row, nil
}

// Copy appends a copy of the row at index. Rows owned by others may be
// copied; copying a validation request creates a validation.
func (s *Session) Copy(ctx context.Context, index int) (observation.Local, error) {
	if err := s.requireEditMode(); err != nil {
		return observation.Local{}, err
	}
	row, err := s.rows.Copy(index)
	if err != nil {
		return observation.Local{}, err
	}
	s.changed(ctx)
	if s.cb.OnEdit != nil {
		s.cb.OnEdit(row, true)
	}
	return row, nil
}

// Delete detaches the row at index from the file.
func (s *Session) Delete(ctx context.Context, index int) (observation.Local, error) {
	if _, err := s.writable(index); err != nil {
		return observation.Local{}, err
	}
	row, err := s.rows.MarkDeleted(index)
	if err != nil {
		return observation.Local{}, err
	}
	if s.HoverIndex() == index {
		s.Hover(drawing.NoHover)
	}
	s.changed(ctx)
	if s.cb.OnEdit != nil {
		s.cb.OnEdit(row, false)
	}
	return row, nil
}

// Hover marks the row at index as hovered.
func (s *Session) Hover(index int) {
	if index < 0 {
		index = drawing.NoHover
	}
	s.mu.Lock()
	changed := s.hover != index
	s.hover = index
	s.mu.Unlock()
	if changed && s.cb.OnHover != nil {
		s.cb.OnHover(index)
	}
}

// HoverIndex returns the hovered row or drawing.NoHover.
func (s *Session) HoverIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hover
}

// EditBoundingBox starts drawing a box for the row at index on a surface
// placed at bounds. Only one box session may be active.
func (s *Session) EditBoundingBox(index int, bounds pointer.Bounds) error {
	if _, err := s.writable(index); err != nil {
		return err
	}
	s.surface.SetBounds(bounds)
	if err := s.draw.Begin(index, nil); err != nil {
		return err
	}
	if s.cb.OnEditBoundingBox != nil {
		s.cb.OnEditBoundingBox(index)
	}
	return nil
}

// CancelBox abandons the box session without writing.
func (s *Session) CancelBox() {
	s.draw.Cancel()
}

// Pointer dispatches a raw pointer event to the surface. A non-nil bounds
// updates the surface placement first. The result is non-nil when the event
// ended the box session.
func (s *Session) Pointer(ctx context.Context, ev pointer.Event, bounds *pointer.Bounds) (*drawing.CommitResult, error) {
	if err := s.requireEditMode(); err != nil {
		return nil, err
	}

	s.pointerMu.Lock()
	if bounds != nil {
		s.surface.SetBounds(*bounds)
	}
	s.pendingResult, s.pendingErr = nil, nil
	s.surface.Dispatch(ev)
	result, err := s.pendingResult, s.pendingErr
	s.pendingResult, s.pendingErr = nil, nil
	s.pointerMu.Unlock()

	if err != nil {
		return nil, err
	}
	if result != nil {
		if result.Applied {
			s.changed(ctx)
		}
		if s.cb.OnBoxComplete != nil {
			s.cb.OnBoxComplete(*result, s.rows.Rows())
		}
	}
	return result, nil
}

// handlePointer is the tracker callback; it runs inside Dispatch.
func (s *Session) handlePointer(ev pointer.Event, at geometry.Point) {
	s.pendingResult, s.pendingErr = s.draw.Handle(ev, at, s.surface.Bounds().Size())
}

// Position returns the tracked pointer position in surface pixels.
func (s *Session) Position() geometry.Point {
	return s.tracker.Position()
}

// Render returns the overlay for the current rows, box session and hover.
func (s *Session) Render() drawing.Overlay {
	in := drawing.RenderInput{
		Rows:       s.rows.Rows(),
		FileID:     s.file.ID,
		Session:    s.draw.Session(),
		HoverIndex: s.HoverIndex(),
		Size:       s.surface.Bounds().Size(),
	}
	if live, ok := s.draw.Live(); ok {
		in.Live = &live
	}
	return drawing.Render(in)
}

// Save sends the row changes to the backend. Concurrent calls share one
// batch. With stop set, a fully successful save also leaves edit mode; any
// failure keeps the editor open with the failed rows still edited.
func (s *Session) Save(ctx context.Context, stop bool) (*reconcile.Report, error) {
	if err := s.requireEditMode(); err != nil {
		return nil, err
	}

	v, err, shared := s.saves.Do("save", func() (any, error) {
		return s.save(ctx), nil
	})
	if err != nil {
		return nil, err
	}
	report := v.(*reconcile.Report)
	if shared {
		s.log.Debug("save request coalesced", logger.String("batch_id", report.BatchID))
	}

	if report.Success && stop {
		s.Stop()
	}
	return report, nil
}

func (s *Session) save(ctx context.Context) *reconcile.Report {
	report := s.sync.Save(ctx, s.file.ID, s.rows.Rows(), s.rows)

	if report.Success {
		if s.drafts != nil {
			if err := s.drafts.Delete(ctx, s.file.ID); err != nil {
				s.log.Warn("failed to delete draft after save", logger.Error(err))
			}
		}
	} else {
		s.persistDraft(ctx)
	}

	if s.notifier != nil {
		if err := s.notifier.PublishReport(ctx, report); err != nil {
			s.log.Warn("failed to publish save report", logger.String("batch_id", report.BatchID), logger.Error(err))
		}
	}
	if report.Success && s.cb.OnSubmit != nil {
		s.cb.OnSubmit(report)
	}
	return report
}

// changed persists a draft after a mutation.
func (s *Session) changed(ctx context.Context) {
	s.persistDraft(ctx)
}

// persistDraft stores the full row list while any row still needs a remote
// write, pending creates included, and removes the draft once none does.
// Draft failures never fail the edit.
func (s *Session) persistDraft(ctx context.Context) {
	if s.drafts == nil {
		return
	}
	rows := s.rows.Rows()
	var err error
	if reconcile.Split(rows).Empty() {
		err = s.drafts.Delete(ctx, s.file.ID)
	} else {
		err = s.drafts.Save(ctx, s.file.ID, s.id, rows)
	}
	if err != nil {
		s.log.Warn("failed to persist draft", logger.Error(err))
	}
}

func (s *Session) requireEditMode() error {
	if s.EditMode() {
		return nil
	}
	return errors.New(ErrNotEditing).
		Component("editor").
		Category(errors.CategoryState).
		Context("file_id", s.file.ID).
		Build()
}

// writable returns the row at index if the session may modify it.
func (s *Session) writable(index int) (observation.Local, error) {
	if err := s.requireEditMode(); err != nil {
		return observation.Local{}, err
	}
	row, err := s.rows.Row(index)
	if err != nil {
		return observation.Local{}, err
	}
	if !row.UserIsOwner {
		return observation.Local{}, errors.New(ErrReadOnly).
			Component("editor").
			Category(errors.CategoryValidation).
			Context("index", index).
			Context("observation_id", row.ID).
			Build()
	}
	return row, nil
}
