package reconcile

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/sensorhub/annotator/internal/errors"
	"github.com/sensorhub/annotator/internal/logger"
	"github.com/sensorhub/annotator/internal/observation"
)

// DataSource is the backend holding observations.
type DataSource interface {
	List(ctx context.Context, fileID int64) ([]observation.Observation, error)
	Create(ctx context.Context, payload observation.Payload) (observation.Observation, error)
	Update(ctx context.Context, id string, payload observation.Payload) (observation.Observation, error)
	Delete(ctx context.Context, id string) error
}

// RowWriter receives the reconciled rows.
type RowWriter interface {
	Replace(index int, canonical observation.Observation) error
	MarkClean(index int) error
}

// Recorder observes task and batch results, e.g. for metrics.
type Recorder interface {
	RecordTask(op Operation, status Status, elapsed time.Duration)
	RecordBatch(result string)
}

type nopRecorder struct{}

func (nopRecorder) RecordTask(Operation, Status, time.Duration) {}
func (nopRecorder) RecordBatch(string)                          {}

// Engine executes save plans strictly one task at a time so each outcome is
// attributed to exactly one row.
type Engine struct {
	source   DataSource
	recorder Recorder
	log      logger.Logger
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithRecorder attaches a task and batch recorder.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.recorder = r
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an engine writing to source.
func NewEngine(source DataSource, opts ...Option) *Engine {
	e := &Engine{
		source:   source,
		recorder: nopRecorder{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = logger.Global().Module("reconcile")
	}
	return e
}

// Save partitions rows, executes the plan and reconciles results into store.
// With nothing to send it returns a NoChanges report without any backend call.
func (e *Engine) Save(ctx context.Context, fileID int64, rows []observation.Local, store RowWriter) *Report {
	p := Split(rows)
	if p.Empty() {
		now := e.now()
		report := &Report{
			BatchID:    uuid.NewString(),
			FileID:     fileID,
			StartedAt:  now,
			FinishedAt: now,
			Outcomes:   []Outcome{},
			Skipped:    len(p.Skipped),
			Success:    true,
			NoChanges:  true,
		}
		e.recorder.RecordBatch(report.Result())
		e.log.Debug("save skipped, no changes", logger.Int64("file_id", fileID), logger.Int("rows", len(rows)))
		return report
	}

	report := e.Execute(ctx, fileID, Plan(p), store)
	report.Skipped = len(p.Skipped)
	return report
}

// Execute runs tasks in order as a fold over the report.
func (e *Engine) Execute(ctx context.Context, fileID int64, tasks []Task, store RowWriter) *Report {
	report := &Report{
		BatchID:   uuid.NewString(),
		FileID:    fileID,
		StartedAt: e.now(),
		Outcomes:  make([]Outcome, 0, len(tasks)),
	}
	log := e.log.With(logger.String("batch_id", report.BatchID), logger.Int64("file_id", fileID))
	log.Info("save started", logger.Int("tasks", len(tasks)))

	for _, task := range tasks {
		report.add(e.step(ctx, task, store, log))
	}

	report.FinishedAt = e.now()
	report.Success = report.Failed == 0 && report.Blocked == 0
	e.recorder.RecordBatch(report.Result())

	log.Info("save finished",
		logger.String("result", report.Result()),
		logger.Int("created", report.Created),
		logger.Int("updated", report.Updated),
		logger.Int("deleted", report.Deleted),
		logger.Int("failed", report.Failed),
		logger.Int("blocked", report.Blocked),
		logger.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)))
	return report
}

// step runs one task. Failures leave the row untouched so the next save retries it.
func (e *Engine) step(ctx context.Context, task Task, store RowWriter, log logger.Logger) Outcome {
	row := task.Row
	out := Outcome{Op: task.Op, Index: row.Index, ObservationID: row.ID, Species: row.SpeciesName}
	start := e.now()

	defer func() {
		e.recorder.RecordTask(out.Op, out.Status, out.Duration)
	}()

	if task.Op != OpDelete {
		if err := row.Validate(); err != nil {
			out.Status = StatusBlocked
			out.Err = err
			out.Message = err.Error()
			log.Debug("row blocked by validation", logger.Int("index", row.Index), logger.Error(err))
			return out
		}
	}

	if err := ctx.Err(); err != nil {
		out.Status = StatusFailed
		out.Err = errors.New(err).
			Component("reconcile").
			Category(errors.CategoryCancellation).
			Context("operation", string(task.Op)).
			Build()
		out.Message = err.Error()
		return out
	}

	canonical, err := e.issue(ctx, task)
	out.Duration = e.now().Sub(start)
	if err == nil && task.Op != OpDelete && canonical.ID == "" {
		err = errors.Newf("backend returned no observation for %s", task.Op).
			Component("reconcile").
			Category(errors.CategoryRemoteRejection).
			Context("operation", string(task.Op)).
			Build()
	}
	if err != nil {
		out.Status = StatusFailed
		out.Err = err
		out.Message = err.Error()
		log.Warn("remote write failed",
			logger.String("operation", string(task.Op)),
			logger.Int("index", row.Index),
			logger.String("observation_id", row.ID),
			logger.Error(err))
		return out
	}

	out.Status = StatusSucceeded
	if task.Op == OpDelete {
		err = store.MarkClean(row.Index)
	} else {
		out.ObservationID = canonical.ID
		err = store.Replace(row.Index, canonical)
	}
	if err != nil {
		// The backend accepted the write; only the local copy is stale.
		log.Warn("failed to reconcile row after remote write",
			logger.String("operation", string(task.Op)),
			logger.Int("index", row.Index),
			logger.Error(err))
	}

	log.Debug("remote write succeeded",
		logger.String("operation", string(task.Op)),
		logger.Int("index", row.Index),
		logger.String("observation_id", out.ObservationID),
		logger.Duration("elapsed", out.Duration))
	return out
}

func (e *Engine) issue(ctx context.Context, task Task) (observation.Observation, error) {
	switch task.Op {
	case OpCreate:
		return e.source.Create(ctx, task.Row.Payload())
	case OpUpdate:
		return e.source.Update(ctx, task.Row.ID, task.Row.Payload())
	case OpDelete:
		return observation.Observation{}, e.source.Delete(ctx, task.Row.ID)
	default:
		return observation.Observation{}, errors.Newf("unknown operation %q", task.Op).
			Component("reconcile").
			Category(errors.CategoryValidation).
			Build()
	}
}
