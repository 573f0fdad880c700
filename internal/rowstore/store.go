// Package rowstore holds the ordered, locally editable observation rows of
// one file. A row's Index always equals its position in the list.
package rowstore

import (
	"slices"
	"sync"

	"github.com/sensorhub/annotator/internal/errors"
	"github.com/sensorhub/annotator/internal/logger"
	"github.com/sensorhub/annotator/internal/observation"
)

// ErrIndexOutOfRange is returned for operations on a row that does not exist.
var ErrIndexOutOfRange = errors.NewStd("row index out of range")

// Options tune seeding and new rows.
type Options struct {
	// DefaultSource is stamped on rows created with Add.
	DefaultSource observation.Source
	// NormalizeOnLoad clamps and orders boxes received from the backend.
	NormalizeOnLoad bool
}

// Store is the in-memory row list for one file. Safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	file observation.FileRef
	opts Options
	rows []observation.Local
	log  logger.Logger
}

// New creates an empty store for file.
func New(file observation.FileRef, opts Options, log logger.Logger) *Store {
	if log == nil {
		log = logger.Global().Module("rowstore")
	}
	if opts.DefaultSource == "" {
		opts.DefaultSource = observation.SourceHuman
	}
	return &Store{file: file, opts: opts, log: log.With(logger.Int64("file_id", file.ID))}
}

// File returns the file the rows belong to.
func (s *Store) File() observation.FileRef {
	return s.file
}

// Seed replaces all rows with server data. Every row starts clean.
func (s *Store) Seed(server []observation.Observation) {
	rows := make([]observation.Local, len(server))
	normalized := 0
	for i, o := range server {
		o = o.Clone()
		if s.opts.NormalizeOnLoad && !o.BoundingBox.IsNormalized() {
			o.BoundingBox = o.BoundingBox.Normalize()
			normalized++
		}
		rows[i] = observation.Local{Observation: o, Edited: false, Index: i}
	}

	s.mu.Lock()
	s.rows = rows
	s.mu.Unlock()

	s.log.Debug("rows seeded", logger.Int("rows", len(rows)), logger.Int("boxes_normalized", normalized))
}

// Restore replaces all rows with a saved draft, keeping edited flags and re-stamping indexes.
func (s *Store) Restore(draft []observation.Local) {
	rows := make([]observation.Local, len(draft))
	for i, r := range draft {
		r = r.Clone()
		r.Index = i
		rows[i] = r
	}

	s.mu.Lock()
	s.rows = rows
	s.mu.Unlock()

	s.log.Debug("rows restored from draft", logger.Int("rows", len(rows)))
}

// Edit replaces the row at row.Index and marks it edited.
func (s *Store) Edit(row observation.Local) (observation.Local, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkIndexLocked(row.Index); err != nil {
		return observation.Local{}, err
	}
	row = row.Clone()
	row.Edited = true
	s.rows[row.Index] = row
	return row.Clone(), nil
}

// Add appends a row. With a nil template the row defaults to the file's
// recording time and id; otherwise the template is copied (see copyOf).
func (s *Store) Add(template *observation.Local) observation.Local {
	var row observation.Local
	if template == nil {
		row.Observation = observation.Template(s.file, s.opts.DefaultSource)
	} else {
		row = copyOf(*template)
	}

	s.mu.Lock()
	row.Index = len(s.rows)
	s.rows = append(s.rows, row)
	s.mu.Unlock()

	s.log.Debug("row added", logger.Int("index", row.Index), logger.Bool("copy", template != nil))
	return row.Clone()
}

// Copy appends a copy of the row at index.
func (s *Store) Copy(index int) (observation.Local, error) {
	template, err := s.Row(index)
	if err != nil {
		return observation.Local{}, err
	}
	return s.Add(&template), nil
}

// copyOf builds a new unsaved row from template. Copying a row that asks
// for validation yields a validation of it rather than a second request.
func copyOf(template observation.Local) observation.Local {
	row := template.Clone()
	row.ID = ""
	row.Source = observation.SourceHuman
	row.Edited = false
	row.UserIsOwner = true
	if template.ValidationRequested {
		row.ValidationRequested = false
		row.ValidationOf = template.ID
	}
	return row
}

// MarkDeleted detaches the row at index from the current file and marks it edited.
// The row stays in the list so the next save can issue the deletion.
func (s *Store) MarkDeleted(index int) (observation.Local, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkIndexLocked(index); err != nil {
		return observation.Local{}, err
	}
	row := s.rows[index].Clone()
	row.Detach(s.file.ID)
	row.Edited = true
	s.rows[index] = row
	return row.Clone(), nil
}

// SetBox writes a committed bounding box into the row at index and marks it edited.
func (s *Store) SetBox(index int, box observation.BoundingBox) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkIndexLocked(index); err != nil {
		return err
	}
	s.rows[index].BoundingBox = box
	s.rows[index].Edited = true
	return nil
}

// Replace installs the server's canonical copy at index and marks it clean.
func (s *Store) Replace(index int, canonical observation.Observation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkIndexLocked(index); err != nil {
		return err
	}
	canonical = canonical.Clone()
	if s.opts.NormalizeOnLoad {
		canonical.BoundingBox = canonical.BoundingBox.Normalize()
	}
	s.rows[index] = observation.Local{Observation: canonical, Edited: false, Index: index}
	return nil
}

// MarkClean clears the edited flag of the row at index.
func (s *Store) MarkClean(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkIndexLocked(index); err != nil {
		return err
	}
	s.rows[index].Edited = false
	return nil
}

// Row returns a copy of the row at index.
func (s *Store) Row(index int) (observation.Local, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkIndexLocked(index); err != nil {
		return observation.Local{}, err
	}
	return s.rows[index].Clone(), nil
}

// Rows returns a deep copy of every row in index order.
func (s *Store) Rows() []observation.Local {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]observation.Local, len(s.rows))
	for i, r := range s.rows {
		out[i] = r.Clone()
	}
	return out
}

// Visible returns the rows still attached to the current file.
func (s *Store) Visible() []observation.Local {
	return slices.DeleteFunc(s.Rows(), func(r observation.Local) bool {
		return r.AttachmentTo(s.file.ID) == observation.Detached
	})
}

// Dirty returns the rows with unsaved changes.
func (s *Store) Dirty() []observation.Local {
	return slices.DeleteFunc(s.Rows(), func(r observation.Local) bool { return !r.Edited })
}

// Len returns the number of rows, detached ones included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

func (s *Store) checkIndexLocked(index int) error {
	if index < 0 || index >= len(s.rows) {
		return errors.New(ErrIndexOutOfRange).
			Component("rowstore").
			Category(errors.CategoryNotFound).
			Context("index", index).
			Context("rows", len(s.rows)).
			Build()
	}
	return nil
}
