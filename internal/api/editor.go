package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sensorhub/annotator/internal/drawing"
	"github.com/sensorhub/annotator/internal/errors"
	"github.com/sensorhub/annotator/internal/geometry"
	"github.com/sensorhub/annotator/internal/logger"
	"github.com/sensorhub/annotator/internal/notification"
	"github.com/sensorhub/annotator/internal/observation"
	"github.com/sensorhub/annotator/internal/pointer"
	"github.com/sensorhub/annotator/internal/reconcile"
)

// OpenSessionRequest opens a file for editing.
type OpenSessionRequest struct {
	RecordedAt time.Time `json:"recorded_at"`
}

// SessionResponse describes an editor session.
type SessionResponse struct {
	SessionID     string              `json:"session_id"`
	FileID        int64               `json:"file_id"`
	EditMode      bool                `json:"edit_mode"`
	DraftRestored bool                `json:"draft_restored"`
	Rows          []observation.Local `json:"rows"`
}

// BoxRequest starts drawing a box on a surface placed at Surface.
type BoxRequest struct {
	Surface pointer.Bounds `json:"surface"`
}

// PointerRequest is one raw pointer event. Surface, when set, is the
// surface placement at the time of the event.
type PointerRequest struct {
	pointer.Event
	Surface *pointer.Bounds `json:"surface,omitempty"`
}

// PointerResponse carries the commit result when the event ended a box session.
type PointerResponse struct {
	Committed *drawing.CommitResult `json:"committed"`
	Position  geometry.Point        `json:"position"`
	Rows      []observation.Local   `json:"rows,omitempty"`
}

// HoverRequest sets the hovered row; a null or negative index clears it.
type HoverRequest struct {
	Index *int `json:"index"`
}

// SaveResponse is the save report plus the rows after it.
type SaveResponse struct {
	Result   string              `json:"result"`
	Summary  string              `json:"summary"`
	Report   *reconcile.Report   `json:"report"`
	EditMode bool                `json:"edit_mode"`
	Rows     []observation.Local `json:"rows"`
}

func fileIDParam(ctx echo.Context) (int64, error) {
	id, err := strconv.ParseInt(ctx.Param("file"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.Newf("invalid file id %q", ctx.Param("file")).
			Component("api").
			Category(errors.CategoryValidation).
			Build()
	}
	return id, nil
}

func indexParam(ctx echo.Context) (int, error) {
	index, err := strconv.Atoi(ctx.Param("index"))
	if err != nil || index < 0 {
		return 0, errors.Newf("invalid row index %q", ctx.Param("index")).
			Component("api").
			Category(errors.CategoryValidation).
			Build()
	}
	return index, nil
}

// entry resolves the open session named by the :file parameter. On failure
// the error response has already been written and the returned error is the
// handler's result.
func (c *Controller) entry(ctx echo.Context) (*SessionEntry, error) {
	id, err := fileIDParam(ctx)
	if err != nil {
		return nil, c.HandleError(ctx, err, "Invalid file id", http.StatusBadRequest)
	}
	e, ok := c.sessions.Get(id)
	if !ok {
		return nil, c.HandleError(ctx, errors.Newf("no editor session for file %d", id).
			Component("api").
			Category(errors.CategoryNotFound).
			Build(), "Session not found", http.StatusNotFound)
	}
	return e, nil
}

// OpenSession enters edit mode for a file, creating its session if needed.
func (c *Controller) OpenSession(ctx echo.Context) error {
	id, err := fileIDParam(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid file id", http.StatusBadRequest)
	}
	var req OpenSessionRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
	}
	if req.RecordedAt.IsZero() {
		return c.HandleError(ctx, errors.ValidationError("recorded_at is required"), "Missing recording time", http.StatusBadRequest)
	}

	e, created := c.sessions.Open(observation.FileRef{ID: id, RecordedAt: req.RecordedAt})
	restored, err := e.Session.Enter(ctx.Request().Context())
	if err != nil {
		if created {
			c.sessions.Remove(id)
		}
		return c.HandleError(ctx, err, "Failed to load observations", 0)
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	return ctx.JSON(status, SessionResponse{
		SessionID:     e.Session.ID(),
		FileID:        id,
		EditMode:      e.Session.EditMode(),
		DraftRestored: restored,
		Rows:          e.Session.Rows(),
	})
}

// CloseSession leaves edit mode and drops the session.
func (c *Controller) CloseSession(ctx echo.Context) error {
	e, err := c.entry(ctx)
	if e == nil {
		return err
	}
	e.Session.Stop()
	c.sessions.Remove(e.Session.File().ID)
	return ctx.NoContent(http.StatusNoContent)
}

// GetOverlay returns the shapes to draw. The optional hover query parameter
// sets the hovered row first.
func (c *Controller) GetOverlay(ctx echo.Context) error {
	e, err := c.entry(ctx)
	if e == nil {
		return err
	}
	if h := ctx.QueryParam("hover"); h != "" {
		index, err := strconv.Atoi(h)
		if err != nil {
			return c.HandleError(ctx, err, "Invalid hover index", http.StatusBadRequest)
		}
		e.Session.Hover(index)
	}
	return ctx.JSON(http.StatusOK, e.Session.Render())
}

// ListRows returns the rows. With visible=true, detached rows are left out.
func (c *Controller) ListRows(ctx echo.Context) error {
	e, err := c.entry(ctx)
	if e == nil {
		return err
	}
	rows := e.Session.Rows()
	if ctx.QueryParam("visible") == "true" {
		rows = e.Session.Visible()
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"edit_mode": e.Session.EditMode(),
		"rows":      rows,
	})
}

// AddRow appends a default row.
func (c *Controller) AddRow(ctx echo.Context) error {
	e, err := c.entry(ctx)
	if e == nil {
		return err
	}
	row, err := e.Session.Add(ctx.Request().Context())
	if err != nil {
		return c.HandleError(ctx, err, "Failed to add row", 0)
	}
	return ctx.JSON(http.StatusCreated, row)
}

// EditRow updates the editable fields of a row. The body is merged onto the
// stored row: fields left out keep their values, so a row is only detached
// from its files by sending an explicit empty data_files.
func (c *Controller) EditRow(ctx echo.Context) error {
	e, err := c.entry(ctx)
	if e == nil {
		return err
	}
	index, err := indexParam(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid row index", http.StatusBadRequest)
	}
	current, err := e.Session.Row(index)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to edit row", 0)
	}
	obs := current.Observation
	if err := ctx.Bind(&obs); err != nil {
		return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
	}

	row, err := e.Session.Edit(ctx.Request().Context(), observation.Local{Observation: obs, Index: index})
	if err != nil {
		return c.HandleError(ctx, err, "Failed to edit row", 0)
	}
	return ctx.JSON(http.StatusOK, row)
}

// CopyRow appends a copy of a row.
func (c *Controller) CopyRow(ctx echo.Context) error {
	e, err := c.entry(ctx)
	if e == nil {
		return err
	}
	index, err := indexParam(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid row index", http.StatusBadRequest)
	}
	row, err := e.Session.Copy(ctx.Request().Context(), index)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to copy row", 0)
	}
	return ctx.JSON(http.StatusCreated, row)
}

// DeleteRow detaches a row from the file; it is deleted on the next save.
func (c *Controller) DeleteRow(ctx echo.Context) error {
	e, err := c.entry(ctx)
	if e == nil {
		return err
	}
	index, err := indexParam(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid row index", http.StatusBadRequest)
	}
	row, err := e.Session.Delete(ctx.Request().Context(), index)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to delete row", 0)
	}
	return ctx.JSON(http.StatusOK, row)
}

// BeginBox starts drawing a box for a row.
func (c *Controller) BeginBox(ctx echo.Context) error {
	e, err := c.entry(ctx)
	if e == nil {
		return err
	}
	index, err := indexParam(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid row index", http.StatusBadRequest)
	}
	var req BoxRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
	}
	if err := e.Session.EditBoundingBox(index, req.Surface); err != nil {
		return c.HandleError(ctx, err, "Failed to start box drawing", 0)
	}
	return ctx.JSON(http.StatusAccepted, e.Session.Render())
}

// CancelBox abandons the active box session.
func (c *Controller) CancelBox(ctx echo.Context) error {
	e, err := c.entry(ctx)
	if e == nil {
		return err
	}
	e.Session.CancelBox()
	return ctx.NoContent(http.StatusNoContent)
}

// PointerEvent feeds one pointer event to the draw engine.
func (c *Controller) PointerEvent(ctx echo.Context) error {
	e, err := c.entry(ctx)
	if e == nil {
		return err
	}
	var req PointerRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
	}
	switch req.Type {
	case pointer.Down, pointer.Move, pointer.Up:
	default:
		return c.HandleError(ctx, errors.Newf("unknown pointer event type %q", req.Type).
			Component("api").
			Category(errors.CategoryValidation).
			Build(), "Invalid pointer event", http.StatusBadRequest)
	}

	result, err := e.Session.Pointer(ctx.Request().Context(), req.Event, req.Surface)
	if err != nil {
		return c.HandleError(ctx, err, "Pointer event rejected", 0)
	}
	resp := PointerResponse{Committed: result, Position: e.Session.Position()}
	if result != nil {
		resp.Rows = e.Session.Rows()
	}
	return ctx.JSON(http.StatusOK, resp)
}

// SetHover sets or clears the hovered row.
func (c *Controller) SetHover(ctx echo.Context) error {
	e, err := c.entry(ctx)
	if e == nil {
		return err
	}
	var req HoverRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
	}
	index := drawing.NoHover
	if req.Index != nil {
		index = *req.Index
	}
	e.Session.Hover(index)
	return ctx.NoContent(http.StatusNoContent)
}

// Save sends pending changes to the backend. With stop=true a fully
// successful save also leaves edit mode; otherwise the rows are refetched.
// Partial failures are reported in the body with status 200.
func (c *Controller) Save(ctx echo.Context) error {
	e, err := c.entry(ctx)
	if e == nil {
		return err
	}
	stop := ctx.QueryParam("stop") == "true"

	reqCtx := ctx.Request().Context()
	report, err := e.Session.Save(reqCtx, stop)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to save", 0)
	}
	if report.Success && !report.NoChanges && !stop {
		if err := e.Session.Refresh(reqCtx); err != nil {
			c.log.Warn("refetch after save failed",
				logger.Int64("file_id", report.FileID),
				logger.String("batch_id", report.BatchID),
				logger.Error(err))
		}
	}

	return ctx.JSON(http.StatusOK, SaveResponse{
		Result:   report.Result(),
		Summary:  report.Summary(),
		Report:   report,
		EditMode: e.Session.EditMode(),
		Rows:     e.Session.Rows(),
	})
}

// DrainToasts returns and clears the pending notifications.
func (c *Controller) DrainToasts(ctx echo.Context) error {
	e, err := c.entry(ctx)
	if e == nil {
		return err
	}
	toasts := e.Toasts.Drain()
	if toasts == nil {
		toasts = []*notification.Notification{}
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"toasts":  toasts,
		"dropped": e.Toasts.Dropped(),
	})
}
