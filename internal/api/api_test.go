package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sensorhub/annotator/internal/buildinfo"
	"github.com/sensorhub/annotator/internal/conf"
	"github.com/sensorhub/annotator/internal/editor"
	"github.com/sensorhub/annotator/internal/errors"
	"github.com/sensorhub/annotator/internal/logger"
	"github.com/sensorhub/annotator/internal/notification"
	"github.com/sensorhub/annotator/internal/observation"
	"github.com/sensorhub/annotator/internal/reconcile"
	"github.com/sensorhub/annotator/internal/species"
)

var recordedAt = time.Date(2024, 6, 1, 3, 15, 0, 0, time.UTC)

// memoryBackend is an in-memory observation backend.
type memoryBackend struct {
	mu         sync.Mutex
	server     []observation.Observation
	nextID     int
	rejectName string
}

func (b *memoryBackend) List(_ context.Context, fileID int64) ([]observation.Observation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []observation.Observation
	for _, o := range b.server {
		if o.AttachmentTo(fileID) == observation.Active {
			out = append(out, o.Clone())
		}
	}
	return out, nil
}

func (b *memoryBackend) Create(_ context.Context, p observation.Payload) (observation.Observation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p.SpeciesName == b.rejectName {
		return observation.Observation{}, fmt.Errorf("species %s not allowed", p.SpeciesName)
	}
	b.nextID++
	o := observation.Observation{
		ID:                fmt.Sprintf("srv-%d", b.nextID),
		ObsDT:             p.ObsDT,
		SpeciesName:       p.SpeciesName,
		SpeciesCommonName: p.SpeciesCommonName,
		Number:            p.Number,
		Source:            p.Source,
		BoundingBox:       p.BoundingBox,
		DataFiles:         p.DataFiles,
		UserIsOwner:       true,
	}
	b.server = append(b.server, o)
	return o, nil
}

func (b *memoryBackend) Update(_ context.Context, id string, p observation.Payload) (observation.Observation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.server {
		if b.server[i].ID == id {
			b.server[i].SpeciesName = p.SpeciesName
			b.server[i].BoundingBox = p.BoundingBox
			b.server[i].DataFiles = p.DataFiles
			return b.server[i].Clone(), nil
		}
	}
	return observation.Observation{}, fmt.Errorf("observation %s not found", id)
}

func (b *memoryBackend) Delete(context.Context, string) error { return nil }

type fakeSpecies struct {
	created []species.Species
}

func (f *fakeSpecies) Search(_ context.Context, q string) ([]species.Species, error) {
	if q == "fail" {
		return nil, errors.Newf("backend unavailable").Category(errors.CategoryNetwork).Build()
	}
	return []species.Species{{Name: "Vulpes vulpes", CommonName: "Red fox"}}, nil
}

func (f *fakeSpecies) Create(_ context.Context, sp species.Species) (species.Species, error) {
	if sp.Name == "" {
		return species.Species{}, errors.New(species.ErrNameRequired).Category(errors.CategoryValidation).Build()
	}
	f.created = append(f.created, sp)
	return sp, nil
}

func fox(id string, fileID int64, owner bool) observation.Observation {
	return observation.Observation{
		ID:          id,
		ObsDT:       recordedAt,
		SpeciesName: "Vulpes vulpes",
		Number:      1,
		Source:      observation.SourceAI,
		BoundingBox: observation.NewBox(0.1, 0.1, 0.3, 0.3),
		DataFiles:   []int64{fileID},
		UserIsOwner: owner,
	}
}

type testServer struct {
	server  *Server
	backend *memoryBackend
	species *fakeSpecies
}

func newTestServer(t *testing.T, server ...observation.Observation) *testServer {
	t.Helper()
	log := logger.NewDiscardLogger()
	ts := &testServer{backend: &memoryBackend{server: server}, species: &fakeSpecies{}}

	factory := func(file observation.FileRef, toasts *notification.ToastQueue) *editor.Session {
		return editor.New(file, editor.Deps{
			Source:   ts.backend,
			Sync:     reconcile.NewEngine(ts.backend, reconcile.WithLogger(log)),
			Notifier: notification.NewService(log, toasts),
			Logger:   log,
		}, editor.Options{DiscardDegenerate: true, DefaultSource: observation.SourceHuman}, editor.Callbacks{})
	}
	registry := NewSessionRegistry(factory, 0, 10, log)
	ts.server = NewServer(&conf.WebServerSettings{Listen: "127.0.0.1:0"}, registry, log,
		WithSpecies(ts.species),
		WithBuildInfo(&buildinfo.Context{Version: "1.0.0"}),
		WithMetrics("/metrics", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("annotator_up 1\n"))
		})),
	)
	t.Cleanup(registry.Close)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	ts.server.Echo().ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) open(t *testing.T, fileID int64) SessionResponse {
	t.Helper()
	rec := ts.do(t, http.MethodPost, fmt.Sprintf("/api/v1/files/%d/session", fileID), OpenSessionRequest{RecordedAt: recordedAt})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "1.0.0", body["version"])
	assert.InDelta(t, 0, body["sessions"], 0)
}

func TestMetricsRoute(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "annotator_up")
}

func TestOpenSession(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, fox("1", 5, true), fox("2", 6, true))

	resp := ts.open(t, 5)
	assert.True(t, resp.EditMode)
	assert.False(t, resp.DraftRestored)
	assert.NotEmpty(t, resp.SessionID)
	require.Len(t, resp.Rows, 1)
	assert.Equal(t, "1", resp.Rows[0].ID)

	// Reopening keeps the same session
	rec := ts.do(t, http.MethodPost, "/api/v1/files/5/session", OpenSessionRequest{RecordedAt: recordedAt})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, resp.SessionID, decode[SessionResponse](t, rec).SessionID)
}

func TestOpenSessionValidation(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	tests := []struct {
		name string
		path string
		body any
	}{
		{"missing recorded_at", "/api/v1/files/5/session", map[string]any{}},
		{"non-numeric file", "/api/v1/files/abc/session", OpenSessionRequest{RecordedAt: recordedAt}},
		{"zero file id", "/api/v1/files/0/session", OpenSessionRequest{RecordedAt: recordedAt}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, tt.path, tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			resp := decode[ErrorResponse](t, rec)
			assert.Equal(t, http.StatusBadRequest, resp.Code)
			assert.Len(t, resp.CorrelationID, 8)
		})
	}
}

func TestUnknownSession(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/files/9/rows", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Session not found", decode[ErrorResponse](t, rec).Message)
}

func TestAddEditSave(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	ts.open(t, 5)

	rec := ts.do(t, http.MethodPost, "/api/v1/files/5/rows", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	added := decode[observation.Local](t, rec)
	assert.Equal(t, 0, added.Index)
	assert.Equal(t, []int64{5}, added.DataFiles)

	edit := added.Observation
	edit.SpeciesName = "Vulpes vulpes"
	edit.BoundingBox = observation.NewBox(0.2, 0.2, 0.4, 0.5)
	rec = ts.do(t, http.MethodPut, "/api/v1/files/5/rows/0", edit)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decode[observation.Local](t, rec).Edited)

	rec = ts.do(t, http.MethodPost, "/api/v1/files/5/save", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	saved := decode[SaveResponse](t, rec)
	assert.Equal(t, "success", saved.Result)
	assert.Equal(t, 1, saved.Report.Created)
	assert.True(t, saved.EditMode)
	require.Len(t, saved.Rows, 1)
	assert.Equal(t, "srv-1", saved.Rows[0].ID)
	assert.False(t, saved.Rows[0].Edited)

	rec = ts.do(t, http.MethodGet, "/api/v1/files/5/toasts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	toasts := decode[struct {
		Toasts []notification.Notification `json:"toasts"`
	}](t, rec)
	require.Len(t, toasts.Toasts, 1)
	assert.Equal(t, notification.TypeSuccess, toasts.Toasts[0].Type)

	rec = ts.do(t, http.MethodGet, "/api/v1/files/5/toasts", nil)
	assert.Empty(t, decode[struct {
		Toasts []notification.Notification `json:"toasts"`
	}](t, rec).Toasts)
}

func TestEditRowMergesOmittedFields(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, fox("1", 5, true))
	ts.open(t, 5)

	rec := ts.do(t, http.MethodPut, "/api/v1/files/5/rows/0", map[string]any{"species_name": "Meles meles"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	edited := decode[observation.Local](t, rec)
	assert.Equal(t, "Meles meles", edited.SpeciesName)
	assert.Equal(t, "1", edited.ID)
	assert.Equal(t, []int64{5}, edited.DataFiles)
	assert.Equal(t, fox("1", 5, true).Number, edited.Number)
	assert.True(t, edited.Edited)

	rec = ts.do(t, http.MethodPost, "/api/v1/files/5/save", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	saved := decode[SaveResponse](t, rec)
	assert.Equal(t, 1, saved.Report.Updated)
	assert.Zero(t, saved.Report.Deleted)

	rec = ts.do(t, http.MethodPut, "/api/v1/files/5/rows/3", map[string]any{"number": 2})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSavePartialFailure(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	ts.backend.rejectName = "Canis lupus"
	ts.open(t, 5)

	for _, name := range []string{"Vulpes vulpes", "Canis lupus"} {
		rec := ts.do(t, http.MethodPost, "/api/v1/files/5/rows", nil)
		require.Equal(t, http.StatusCreated, rec.Code)
		row := decode[observation.Local](t, rec)
		row.SpeciesName = name
		rec = ts.do(t, http.MethodPut, fmt.Sprintf("/api/v1/files/5/rows/%d", row.Index), row.Observation)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec := ts.do(t, http.MethodPost, "/api/v1/files/5/save?stop=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	saved := decode[SaveResponse](t, rec)
	assert.Equal(t, "partial", saved.Result)
	assert.False(t, saved.Report.Success)
	assert.True(t, saved.EditMode, "failed save keeps the editor open")
	require.Len(t, saved.Rows, 2)
	assert.False(t, saved.Rows[0].Edited)
	assert.True(t, saved.Rows[1].Edited)
}

func TestSaveWithStopLeavesEditMode(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, fox("1", 5, true))
	ts.open(t, 5)

	rec := ts.do(t, http.MethodPost, "/api/v1/files/5/save?stop=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	saved := decode[SaveResponse](t, rec)
	assert.Equal(t, "no_changes", saved.Result)
	assert.False(t, saved.EditMode)

	rec = ts.do(t, http.MethodPost, "/api/v1/files/5/rows", nil)
	assert.Equal(t, http.StatusConflict, rec.Code, "mutations outside edit mode are rejected")
}

func TestDrawBox(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, fox("1", 5, true))
	ts.open(t, 5)
	surface := map[string]float64{"left": 10, "top": 20, "width": 200, "height": 100}

	rec := ts.do(t, http.MethodPost, "/api/v1/files/5/rows/0/box", map[string]any{"surface": surface})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	overlay := decode[map[string]any](t, rec)
	assert.Equal(t, true, overlay["edit_mode"])

	rec = ts.do(t, http.MethodPost, "/api/v1/files/5/rows/0/box", map[string]any{"surface": surface})
	assert.Equal(t, http.StatusConflict, rec.Code, "only one box session at a time")

	for _, ev := range []map[string]any{
		{"type": "down", "page_x": 30, "page_y": 30},
		{"type": "move", "page_x": 90, "page_y": 60},
	} {
		rec = ts.do(t, http.MethodPost, "/api/v1/files/5/pointer", ev)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Nil(t, decode[PointerResponse](t, rec).Committed)
	}

	rec = ts.do(t, http.MethodPost, "/api/v1/files/5/pointer", map[string]any{"type": "up", "page_x": 110, "page_y": 70})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[PointerResponse](t, rec)
	require.NotNil(t, resp.Committed)
	assert.True(t, resp.Committed.Applied)
	assert.InDelta(t, 0.1, resp.Committed.Box.X1, 1e-9)
	assert.InDelta(t, 0.1, resp.Committed.Box.Y1, 1e-9)
	assert.InDelta(t, 0.5, resp.Committed.Box.X2, 1e-9)
	assert.InDelta(t, 0.5, resp.Committed.Box.Y2, 1e-9)
	require.Len(t, resp.Rows, 1)
	assert.True(t, resp.Rows[0].Edited)
	assert.InDelta(t, 100.0, resp.Position.X, 1e-9)

	rec = ts.do(t, http.MethodGet, "/api/v1/files/5/overlay", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode[map[string]any](t, rec)["edit_mode"])
}

func TestPointerValidation(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, fox("1", 5, true))
	ts.open(t, 5)

	rec := ts.do(t, http.MethodPost, "/api/v1/files/5/pointer", map[string]any{"type": "wheel"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/files/5/pointer", map[string]any{"type": "down"})
	assert.Equal(t, http.StatusConflict, rec.Code, "down without a box session")
}

func TestReadOnlyRow(t *testing.T) {
	t.Parallel()
	validation := fox("42", 5, false)
	validation.ValidationRequested = true
	ts := newTestServer(t, validation)
	ts.open(t, 5)

	rec := ts.do(t, http.MethodPut, "/api/v1/files/5/rows/0", validation)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = ts.do(t, http.MethodDelete, "/api/v1/files/5/rows/0", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/files/5/rows/0/copy", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	copied := decode[observation.Local](t, rec)
	assert.Equal(t, "42", copied.ValidationOf)
	assert.True(t, copied.UserIsOwner)
}

func TestRowIndexErrors(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, fox("1", 5, true))
	ts.open(t, 5)

	rec := ts.do(t, http.MethodDelete, "/api/v1/files/5/rows/x", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = ts.do(t, http.MethodDelete, "/api/v1/files/5/rows/7", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteAndHover(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, fox("1", 5, true), fox("2", 5, true))
	ts.open(t, 5)

	rec := ts.do(t, http.MethodPut, "/api/v1/files/5/hover", map[string]any{"index": 1})
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = ts.do(t, http.MethodGet, "/api/v1/files/5/overlay", nil)
	overlay := decode[struct {
		Normal    []map[string]any `json:"normal"`
		Highlight []map[string]any `json:"highlight"`
	}](t, rec)
	assert.Len(t, overlay.Normal, 1)
	assert.Len(t, overlay.Highlight, 1)

	rec = ts.do(t, http.MethodDelete, "/api/v1/files/5/rows/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[observation.Local](t, rec).DataFiles)

	rec = ts.do(t, http.MethodGet, "/api/v1/files/5/rows?visible=true", nil)
	visible := decode[struct {
		Rows []observation.Local `json:"rows"`
	}](t, rec)
	assert.Len(t, visible.Rows, 1)

	rec = ts.do(t, http.MethodGet, "/api/v1/files/5/overlay?hover=-1", nil)
	overlay = decode[struct {
		Normal    []map[string]any `json:"normal"`
		Highlight []map[string]any `json:"highlight"`
	}](t, rec)
	assert.Len(t, overlay.Normal, 1)
	assert.Empty(t, overlay.Highlight)
}

func TestCloseSession(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	ts.open(t, 5)

	rec := ts.do(t, http.MethodDelete, "/api/v1/files/5/session", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = ts.do(t, http.MethodGet, "/api/v1/files/5/rows", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSpeciesRoutes(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/species?search=fox", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Red fox", decode[[]species.Species](t, rec)[0].CommonName)

	rec = ts.do(t, http.MethodGet, "/api/v1/species?search=fail", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/species", species.Species{Name: "Meles meles", CommonName: "Badger"})
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, ts.species.created, 1)

	rec = ts.do(t, http.MethodPost, "/api/v1/species", species.Species{})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestStatusFor(t *testing.T) {
	t.Parallel()

	build := func(c errors.ErrorCategory) error {
		return errors.Newf("boom").Category(c).Build()
	}
	tests := []struct {
		err  error
		want int
	}{
		{errors.New(editor.ErrReadOnly).Category(errors.CategoryValidation).Build(), http.StatusForbidden},
		{build(errors.CategoryNotFound), http.StatusNotFound},
		{build(errors.CategoryValidation), http.StatusUnprocessableEntity},
		{build(errors.CategoryState), http.StatusConflict},
		{build(errors.CategoryNetwork), http.StatusBadGateway},
		{build(errors.CategoryRemoteRejection), http.StatusBadGateway},
		{build(errors.CategoryCancellation), http.StatusServiceUnavailable},
		{fmt.Errorf("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestCorrelationID(t *testing.T) {
	t.Parallel()

	id := generateCorrelationID()
	assert.Len(t, id, 8)
	assert.Empty(t, strings.Trim(id, correlationChars))
}
