package editor

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/sensorhub/annotator/internal/drawing"
	"github.com/sensorhub/annotator/internal/errors"
	"github.com/sensorhub/annotator/internal/logger"
	"github.com/sensorhub/annotator/internal/observation"
	"github.com/sensorhub/annotator/internal/pointer"
	"github.com/sensorhub/annotator/internal/reconcile"
	"github.com/sensorhub/annotator/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var testFile = observation.FileRef{ID: 5, RecordedAt: time.Date(2024, 6, 1, 3, 15, 0, 0, time.UTC)}

// fakeBackend is an in-memory DataSource.
type fakeBackend struct {
	mu         sync.Mutex
	server     []observation.Observation
	nextID     int
	failCreate bool
	lists      int
	creates    int
	updates    int
	deletes    int
	entered    chan struct{}
	release    chan struct{}
}

func (b *fakeBackend) List(_ context.Context, fileID int64) ([]observation.Observation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lists++
	var out []observation.Observation
	for _, o := range b.server {
		if o.AttachmentTo(fileID) == observation.Active {
			out = append(out, o.Clone())
		}
	}
	return out, nil
}

func (b *fakeBackend) Create(_ context.Context, p observation.Payload) (observation.Observation, error) {
	if b.entered != nil {
		b.entered <- struct{}{}
		<-b.release
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.creates++
	if b.failCreate {
		return observation.Observation{}, fmt.Errorf("species not allowed")
	}
	b.nextID++
	o := fromPayload(fmt.Sprintf("srv-%d", b.nextID), p)
	b.server = append(b.server, o)
	return o, nil
}

func (b *fakeBackend) Update(_ context.Context, id string, p observation.Payload) (observation.Observation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.updates++
	o := fromPayload(id, p)
	for i := range b.server {
		if b.server[i].ID == id {
			b.server[i] = o
		}
	}
	return o, nil
}

func (b *fakeBackend) Delete(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deletes++
	return nil
}

func (b *fakeBackend) calls() (lists, creates, updates, deletes int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lists, b.creates, b.updates, b.deletes
}

func fromPayload(id string, p observation.Payload) observation.Observation {
	return observation.Observation{
		ID:                  id,
		ObsDT:               p.ObsDT,
		SpeciesName:         p.SpeciesName,
		SpeciesCommonName:   p.SpeciesCommonName,
		Number:              p.Number,
		Sex:                 p.Sex,
		Lifestage:           p.Lifestage,
		Behavior:            p.Behavior,
		Source:              p.Source,
		BoundingBox:         p.BoundingBox,
		DataFiles:           p.DataFiles,
		ValidationRequested: p.ValidationRequested,
		ValidationOf:        p.ValidationOf,
		UserIsOwner:         true,
	}
}

// memoryDrafts is an in-memory DraftStore.
type memoryDrafts struct {
	mu     sync.Mutex
	drafts map[int64][]observation.Local
}

func newMemoryDrafts() *memoryDrafts {
	return &memoryDrafts{drafts: map[int64][]observation.Local{}}
}

func (m *memoryDrafts) Save(_ context.Context, fileID int64, _ string, rows []observation.Local) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drafts[fileID] = rows
	return nil
}

func (m *memoryDrafts) LoadRows(_ context.Context, fileID int64) ([]observation.Local, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows, ok := m.drafts[fileID]
	if !ok {
		return nil, errors.Newf("draft not found").Category(errors.CategoryNotFound).Build()
	}
	return rows, nil
}

func (m *memoryDrafts) Delete(_ context.Context, fileID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.drafts, fileID)
	return nil
}

func (m *memoryDrafts) has(fileID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.drafts[fileID]
	return ok
}

type recordingNotifier struct {
	mu      sync.Mutex
	reports []*reconcile.Report
}

func (r *recordingNotifier) PublishReport(_ context.Context, report *reconcile.Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, report)
	return nil
}

func serverFox(id string, owner bool) observation.Observation {
	return observation.Observation{
		ID:          id,
		ObsDT:       testFile.RecordedAt,
		SpeciesName: "Vulpes vulpes",
		Number:      1,
		Source:      observation.SourceAI,
		BoundingBox: observation.NewBox(0.1, 0.1, 0.3, 0.3),
		DataFiles:   []int64{testFile.ID},
		UserIsOwner: owner,
	}
}

type harness struct {
	session  *Session
	backend  *fakeBackend
	drafts   *memoryDrafts
	notifier *recordingNotifier
}

func newHarness(t *testing.T, cb Callbacks, server ...observation.Observation) *harness {
	t.Helper()
	h := &harness{
		backend:  &fakeBackend{server: server},
		drafts:   newMemoryDrafts(),
		notifier: &recordingNotifier{},
	}
	log := logger.NewDiscardLogger()
	h.session = New(testFile, Deps{
		Source:   h.backend,
		Sync:     reconcile.NewEngine(h.backend, reconcile.WithLogger(log)),
		Drafts:   h.drafts,
		Notifier: h.notifier,
		Logger:   log,
	}, Options{DiscardDegenerate: true, NormalizeOnLoad: true}, cb)
	t.Cleanup(h.session.Close)
	return h
}

var surface = pointer.Bounds{Left: 10, Top: 20, Width: 200, Height: 100}

func TestEnterSeedsFromBackend(t *testing.T) {
	h := newHarness(t, Callbacks{}, serverFox("1", true), serverFox("2", false))
	ctx := t.Context()

	assert.False(t, h.session.EditMode())
	restored, err := h.session.Enter(ctx)
	require.NoError(t, err)
	assert.False(t, restored)
	assert.True(t, h.session.EditMode())

	rows := h.session.Rows()
	require.Len(t, rows, 2)
	for i, r := range rows {
		assert.Equal(t, i, r.Index)
		assert.False(t, r.Edited)
	}

	_, err = h.session.Enter(ctx)
	require.NoError(t, err)
	lists, _, _, _ := h.backend.calls()
	assert.Equal(t, 1, lists, "entering twice does not refetch")
}

func TestMutationsRequireEditMode(t *testing.T) {
	h := newHarness(t, Callbacks{}, serverFox("1", true))
	ctx := t.Context()

	_, err := h.session.Add(ctx)
	require.ErrorIs(t, err, ErrNotEditing)
	_, err = h.session.Copy(ctx, 0)
	require.ErrorIs(t, err, ErrNotEditing)
	require.ErrorIs(t, h.session.EditBoundingBox(0, surface), ErrNotEditing)
	_, err = h.session.Save(ctx, false)
	require.ErrorIs(t, err, ErrNotEditing)
	_, err = h.session.Pointer(ctx, pointer.Event{Type: pointer.Down}, nil)
	require.ErrorIs(t, err, ErrNotEditing)
}

func TestDrawBoxFlow(t *testing.T) {
	var (
		started   []int
		completed []drawing.CommitResult
		rowsSeen  []observation.Local
	)
	h := newHarness(t, Callbacks{
		OnEditBoundingBox: func(index int) { started = append(started, index) },
		OnBoxComplete: func(result drawing.CommitResult, rows []observation.Local) {
			completed = append(completed, result)
			rowsSeen = rows
		},
	})
	ctx := t.Context()
	_, err := h.session.Enter(ctx)
	require.NoError(t, err)

	row, err := h.session.Add(ctx)
	require.NoError(t, err)
	require.NoError(t, h.session.EditBoundingBox(row.Index, surface))
	assert.Equal(t, []int{0}, started)
	require.ErrorIs(t, h.session.EditBoundingBox(row.Index, surface), drawing.ErrSessionActive)

	// Drag up-left from (100,50) to (50,25) in surface pixels
	res, err := h.session.Pointer(ctx, pointer.Event{Type: pointer.Down, PageX: 110, PageY: 70}, nil)
	require.NoError(t, err)
	assert.Nil(t, res)
	_, err = h.session.Pointer(ctx, pointer.Event{Type: pointer.Move, PageX: 60, PageY: 45}, nil)
	require.NoError(t, err)
	assert.Equal(t, 50.0, h.session.Position().X)

	overlay := h.session.Render()
	assert.True(t, overlay.EditMode)
	require.NotNil(t, overlay.Live)
	assert.Empty(t, overlay.Normal, "row being drawn is hidden")

	res, err = h.session.Pointer(ctx, pointer.Event{Type: pointer.Up, PageX: 60, PageY: 45}, nil)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, res.Applied)
	assert.InDelta(t, 0.25, res.Box.X1, 1e-9)
	assert.InDelta(t, 0.25, res.Box.Y1, 1e-9)
	assert.InDelta(t, 0.5, res.Box.X2, 1e-9)
	assert.InDelta(t, 0.5, res.Box.Y2, 1e-9)

	require.Len(t, completed, 1)
	require.Len(t, rowsSeen, 1)
	assert.True(t, rowsSeen[0].Edited)
	assert.Equal(t, res.Box, rowsSeen[0].BoundingBox)
	assert.True(t, h.drafts.has(testFile.ID), "box commit persists a draft")

	overlay = h.session.Render()
	assert.False(t, overlay.EditMode)
	require.Len(t, overlay.Normal, 1)
	require.NotNil(t, overlay.Normal[0].Rect)
	assert.InDelta(t, 50, overlay.Normal[0].Rect.X, 1e-9)
}

func TestDegenerateBoxDiscarded(t *testing.T) {
	var completed int
	h := newHarness(t, Callbacks{
		OnBoxComplete: func(drawing.CommitResult, []observation.Local) { completed++ },
	}, serverFox("1", true))
	ctx := t.Context()
	_, err := h.session.Enter(ctx)
	require.NoError(t, err)
	before, err := h.session.Row(0)
	require.NoError(t, err)

	require.NoError(t, h.session.EditBoundingBox(0, surface))
	_, err = h.session.Pointer(ctx, pointer.Event{Type: pointer.Down, PageX: 50, PageY: 50}, nil)
	require.NoError(t, err)
	res, err := h.session.Pointer(ctx, pointer.Event{Type: pointer.Up, PageX: 50, PageY: 50}, nil)
	require.NoError(t, err)

	require.NotNil(t, res)
	assert.False(t, res.Applied)
	assert.Equal(t, drawing.ReasonDegenerate, res.Reason)
	assert.Equal(t, 1, completed, "callback fires for a no-op commit")

	after, err := h.session.Row(0)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.False(t, h.drafts.has(testFile.ID))
}

func TestUnmeasuredSurfaceIsNoOp(t *testing.T) {
	h := newHarness(t, Callbacks{}, serverFox("1", true))
	ctx := t.Context()
	_, err := h.session.Enter(ctx)
	require.NoError(t, err)

	require.NoError(t, h.session.EditBoundingBox(0, pointer.Bounds{}))
	_, err = h.session.Pointer(ctx, pointer.Event{Type: pointer.Down, PageX: 1, PageY: 1}, nil)
	require.NoError(t, err)
	res, err := h.session.Pointer(ctx, pointer.Event{Type: pointer.Up, PageX: 30, PageY: 30}, nil)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, drawing.ReasonUnmeasured, res.Reason)
}

func TestPointerUpdatesBounds(t *testing.T) {
	h := newHarness(t, Callbacks{}, serverFox("1", true))
	ctx := t.Context()
	_, err := h.session.Enter(ctx)
	require.NoError(t, err)
	require.NoError(t, h.session.EditBoundingBox(0, pointer.Bounds{}))

	resized := pointer.Bounds{Width: 100, Height: 100}
	_, err = h.session.Pointer(ctx, pointer.Event{Type: pointer.Down, PageX: 0, PageY: 0}, &resized)
	require.NoError(t, err)
	res, err := h.session.Pointer(ctx, pointer.Event{Type: pointer.Up, PageX: 150, PageY: 40}, nil)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, res.Applied)
	assert.Equal(t, observation.NewBox(0, 0, 1, 0.4), res.Box, "box is clamped to the surface")
}

func TestPointerUpWithoutDrag(t *testing.T) {
	h := newHarness(t, Callbacks{}, serverFox("1", true))
	ctx := t.Context()
	_, err := h.session.Enter(ctx)
	require.NoError(t, err)

	_, err = h.session.Pointer(ctx, pointer.Event{Type: pointer.Move, PageX: 5, PageY: 5}, nil)
	require.NoError(t, err, "moves outside a box session are ignored")
	_, err = h.session.Pointer(ctx, pointer.Event{Type: pointer.Down}, nil)
	require.ErrorIs(t, err, drawing.ErrNotEditing)

	require.NoError(t, h.session.EditBoundingBox(0, surface))
	_, err = h.session.Pointer(ctx, pointer.Event{Type: pointer.Up}, nil)
	require.ErrorIs(t, err, drawing.ErrNotDragging)

	h.session.CancelBox()
	assert.False(t, h.session.Render().EditMode)
}

func TestReadOnlyRows(t *testing.T) {
	var edits []bool
	validation := serverFox("42", false)
	validation.ValidationRequested = true
	h := newHarness(t, Callbacks{
		OnEdit: func(_ observation.Local, isNew bool) { edits = append(edits, isNew) },
	}, validation)
	ctx := t.Context()
	_, err := h.session.Enter(ctx)
	require.NoError(t, err)

	row, err := h.session.Row(0)
	require.NoError(t, err)
	row.SpeciesName = "Canis lupus"
	_, err = h.session.Edit(ctx, row)
	require.ErrorIs(t, err, ErrReadOnly)
	_, err = h.session.Delete(ctx, 0)
	require.ErrorIs(t, err, ErrReadOnly)
	require.ErrorIs(t, h.session.EditBoundingBox(0, surface), ErrReadOnly)

	copied, err := h.session.Copy(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, copied.ID)
	assert.Equal(t, 1, copied.Index)
	assert.False(t, copied.ValidationRequested)
	assert.Equal(t, "42", copied.ValidationOf)
	assert.Equal(t, observation.SourceHuman, copied.Source)
	assert.True(t, copied.UserIsOwner)
	assert.Equal(t, []bool{true}, edits)
}

func TestEditKeepsIdentity(t *testing.T) {
	h := newHarness(t, Callbacks{}, serverFox("1", true))
	ctx := t.Context()
	_, err := h.session.Enter(ctx)
	require.NoError(t, err)

	row, err := h.session.Row(0)
	require.NoError(t, err)
	row.ID = "forged"
	row.Behavior = "foraging"
	updated, err := h.session.Edit(ctx, row)
	require.NoError(t, err)
	assert.Equal(t, "1", updated.ID)
	assert.Equal(t, "foraging", updated.Behavior)
	assert.True(t, updated.Edited)

	row.Index = 7
	_, err = h.session.Edit(ctx, row)
	require.Error(t, err)
}

func TestHover(t *testing.T) {
	var hovered []int
	h := newHarness(t, Callbacks{OnHover: func(i int) { hovered = append(hovered, i) }},
		serverFox("1", true), serverFox("2", true))
	ctx := t.Context()
	_, err := h.session.Enter(ctx)
	require.NoError(t, err)

	h.session.Hover(1)
	h.session.Hover(1)
	overlay := h.session.Render()
	require.Len(t, overlay.Highlight, 1)
	assert.Equal(t, 1, overlay.Highlight[0].Index)
	require.Len(t, overlay.Normal, 1)

	_, err = h.session.Delete(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, drawing.NoHover, h.session.HoverIndex())
	assert.Equal(t, []int{1, drawing.NoHover}, hovered)
	assert.Empty(t, h.session.Render().Highlight)
	assert.Len(t, h.session.Visible(), 1)
}

func TestSaveSuccessStopsEditing(t *testing.T) {
	var submitted, stopped int
	h := newHarness(t, Callbacks{
		OnSubmit:   func(*reconcile.Report) { submitted++ },
		OnStopEdit: func() { stopped++ },
	}, serverFox("1", true), serverFox("2", true))
	ctx := t.Context()
	_, err := h.session.Enter(ctx)
	require.NoError(t, err)

	added, err := h.session.Add(ctx)
	require.NoError(t, err)
	added.SpeciesName = "Meles meles"
	_, err = h.session.Edit(ctx, added)
	require.NoError(t, err)
	_, err = h.session.Delete(ctx, 1)
	require.NoError(t, err)
	assert.True(t, h.drafts.has(testFile.ID))

	report, err := h.session.Save(ctx, true)
	require.NoError(t, err)
	assert.True(t, report.Success)
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 1, report.Deleted)
	assert.Equal(t, 1, report.Skipped)

	_, creates, updates, deletes := h.backend.calls()
	assert.Equal(t, []int{1, 0, 1}, []int{creates, updates, deletes})
	assert.Equal(t, 1, submitted)
	assert.Equal(t, 1, stopped)
	assert.False(t, h.session.EditMode())
	assert.False(t, h.drafts.has(testFile.ID), "successful save removes the draft")
	require.Len(t, h.notifier.reports, 1)

	for _, r := range h.session.Rows() {
		assert.False(t, r.Edited)
	}
	created, err := h.session.Row(2)
	require.NoError(t, err)
	assert.Equal(t, "srv-1", created.ID)
}

func TestSavePartialFailureKeepsEditing(t *testing.T) {
	var submitted, stopped int
	h := newHarness(t, Callbacks{
		OnSubmit:   func(*reconcile.Report) { submitted++ },
		OnStopEdit: func() { stopped++ },
	}, serverFox("1", true))
	h.backend.failCreate = true
	ctx := t.Context()
	_, err := h.session.Enter(ctx)
	require.NoError(t, err)

	row, err := h.session.Row(0)
	require.NoError(t, err)
	row.Number = 3
	_, err = h.session.Edit(ctx, row)
	require.NoError(t, err)
	added, err := h.session.Add(ctx)
	require.NoError(t, err)
	added.SpeciesName = "Meles meles"
	_, err = h.session.Edit(ctx, added)
	require.NoError(t, err)

	report, err := h.session.Save(ctx, true)
	require.NoError(t, err)
	assert.False(t, report.Success)
	assert.Equal(t, 1, report.Updated)
	assert.Equal(t, 1, report.Failed)

	assert.True(t, h.session.EditMode())
	assert.Zero(t, submitted)
	assert.Zero(t, stopped)

	updated, err := h.session.Row(0)
	require.NoError(t, err)
	assert.False(t, updated.Edited)
	assert.Equal(t, 3, updated.Number)
	pending, err := h.session.Row(1)
	require.NoError(t, err)
	assert.True(t, pending.Edited)
	assert.Empty(t, pending.ID)

	draft, err := h.drafts.LoadRows(ctx, testFile.ID)
	require.NoError(t, err)
	assert.Len(t, draft, 2)
}

func TestSaveNoChanges(t *testing.T) {
	h := newHarness(t, Callbacks{}, serverFox("1", true))
	ctx := t.Context()
	_, err := h.session.Enter(ctx)
	require.NoError(t, err)

	report, err := h.session.Save(ctx, false)
	require.NoError(t, err)
	assert.True(t, report.NoChanges)
	assert.True(t, h.session.EditMode())

	_, creates, updates, deletes := h.backend.calls()
	assert.Zero(t, creates+updates+deletes)
}

func TestEnterRestoresDraft(t *testing.T) {
	h := newHarness(t, Callbacks{}, serverFox("1", true))
	ctx := t.Context()

	draft := []observation.Local{
		{Observation: serverFox("1", true), Edited: true, Index: 4},
	}
	draft[0].Behavior = "resting"
	require.NoError(t, h.drafts.Save(ctx, testFile.ID, "old-session", draft))

	restored, err := h.session.Enter(ctx)
	require.NoError(t, err)
	assert.True(t, restored)

	lists, _, _, _ := h.backend.calls()
	assert.Zero(t, lists)
	rows := h.session.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, 0, rows[0].Index)
	assert.True(t, rows[0].Edited)
	assert.Equal(t, "resting", rows[0].Behavior)

	report, err := h.session.Save(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Updated)
}

func TestPendingCreatesKeepDraft(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(context.Context, *Session) error
	}{
		{"copy of a row owned by another user", func(ctx context.Context, s *Session) error {
			_, err := s.Copy(ctx, 0)
			return err
		}},
		{"added row", func(ctx context.Context, s *Session) error {
			_, err := s.Add(ctx)
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Callbacks{}, serverFox("1", false))
			ctx := t.Context()
			_, err := h.session.Enter(ctx)
			require.NoError(t, err)

			require.NoError(t, tt.mutate(ctx, h.session))
			require.Len(t, h.session.Rows(), 2)
			assert.False(t, h.session.Rows()[1].Edited)
			assert.True(t, h.drafts.has(testFile.ID), "pending create is kept in the draft")

			reopened := New(testFile, Deps{Source: h.backend, Drafts: h.drafts, Logger: logger.NewDiscardLogger()}, Options{}, Callbacks{})
			t.Cleanup(reopened.Close)
			restored, err := reopened.Enter(ctx)
			require.NoError(t, err)
			assert.True(t, restored)
			rows := reopened.Rows()
			require.Len(t, rows, 2)
			assert.Empty(t, rows[1].ID)
			assert.Equal(t, []int64{testFile.ID}, rows[1].DataFiles)
		})
	}
}

func TestConcurrentSavesShareOneBatch(t *testing.T) {
	h := newHarness(t, Callbacks{})
	h.backend.entered = make(chan struct{}, 1)
	h.backend.release = make(chan struct{})
	ctx := t.Context()
	_, err := h.session.Enter(ctx)
	require.NoError(t, err)

	added, err := h.session.Add(ctx)
	require.NoError(t, err)
	added.SpeciesName = "Lynx lynx"
	_, err = h.session.Edit(ctx, added)
	require.NoError(t, err)

	var wg sync.WaitGroup
	reports := make([]*reconcile.Report, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		reports[0], _ = h.session.Save(ctx, false)
	}()
	testutil.WaitForChannel(t, (<-chan struct{})(h.backend.entered), testutil.DefaultTestTimeout, "first save never reached the backend")

	wg.Add(1)
	go func() {
		defer wg.Done()
		reports[1], _ = h.session.Save(ctx, false)
	}()
	time.Sleep(20 * time.Millisecond)
	close(h.backend.release)
	testutil.WaitForWaitGroup(t, &wg, testutil.DefaultTestTimeout, "saves did not finish")

	_, creates, _, _ := h.backend.calls()
	assert.Equal(t, 1, creates, "the row is created exactly once")
	require.NotNil(t, reports[0])
	require.NotNil(t, reports[1])
}

func TestStopCancelsBoxSession(t *testing.T) {
	var stopped int
	h := newHarness(t, Callbacks{OnStopEdit: func() { stopped++ }}, serverFox("1", true))
	ctx := t.Context()
	_, err := h.session.Enter(ctx)
	require.NoError(t, err)
	require.NoError(t, h.session.EditBoundingBox(0, surface))

	h.session.Stop()
	h.session.Stop()
	assert.Equal(t, 1, stopped)
	assert.False(t, h.session.Render().EditMode)

	_, err = h.session.Enter(ctx)
	require.NoError(t, err)
	require.NoError(t, h.session.EditBoundingBox(0, surface), "a new box session can start after stop")
}

func TestRefresh(t *testing.T) {
	h := newHarness(t, Callbacks{}, serverFox("1", true))
	ctx := t.Context()
	_, err := h.session.Enter(ctx)
	require.NoError(t, err)
	_, err = h.session.Add(ctx)
	require.NoError(t, err)
	require.Len(t, h.session.Rows(), 2)

	require.NoError(t, h.session.Refresh(ctx))
	assert.Len(t, h.session.Rows(), 1)
}
