package datastore

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sensorhub/annotator/internal/errors"
	"github.com/sensorhub/annotator/internal/logger"
	"github.com/sensorhub/annotator/internal/observation"
)

// ErrDraftNotFound is wrapped by the error Load returns when no draft exists for a file.
var ErrDraftNotFound = errors.NewStd("draft not found")

// slowQueryThreshold marks queries logged at WARN by the gorm adapter.
const slowQueryThreshold = 200 * time.Millisecond

// Store reads and writes drafts.
type Store struct {
	db     *gorm.DB
	driver string
	log    logger.Logger
}

// newStore migrates db and wraps it.
func newStore(db *gorm.DB, driver string, log logger.Logger) (*Store, error) {
	if err := db.AutoMigrate(&Draft{}); err != nil {
		return nil, dbError(err, "auto_migrate", driver)
	}
	return &Store{db: db, driver: driver, log: log}, nil
}

// Driver returns "sqlite" or "mysql".
func (s *Store) Driver() string { return s.driver }

// Save upserts the draft for fileID.
func (s *Store) Save(ctx context.Context, fileID int64, sessionID string, rows []observation.Local) error {
	encoded, err := encodeRows(rows)
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryValidation).
			Context("file_id", fileID).
			Build()
	}

	draft := Draft{FileID: fileID, SessionID: sessionID, Rows: encoded, RowCount: len(rows)}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "file_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"session_id", "rows_json", "row_count", "updated_at"}),
	}).Create(&draft).Error
	if err != nil {
		return dbError(err, "save_draft", s.driver)
	}

	s.log.Debug("draft saved",
		logger.Int64("file_id", fileID),
		logger.String("session_id", sessionID),
		logger.Int("rows", len(rows)))
	return nil
}

// Load returns the draft for fileID, or a NotFound error wrapping ErrDraftNotFound.
func (s *Store) Load(ctx context.Context, fileID int64) (*Draft, error) {
	var draft Draft
	err := s.db.WithContext(ctx).Where("file_id = ?", fileID).First(&draft).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.New(ErrDraftNotFound).
			Component("datastore").
			Category(errors.CategoryNotFound).
			Context("file_id", fileID).
			Build()
	}
	if err != nil {
		return nil, dbError(err, "load_draft", s.driver)
	}
	return &draft, nil
}

// LoadRows returns the decoded rows of the draft for fileID.
func (s *Store) LoadRows(ctx context.Context, fileID int64) ([]observation.Local, error) {
	draft, err := s.Load(ctx, fileID)
	if err != nil {
		return nil, err
	}
	rows, err := draft.Decode()
	if err != nil {
		return nil, errors.New(fmt.Errorf("corrupt draft: %w", err)).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("file_id", fileID).
			Build()
	}
	return rows, nil
}

// Delete removes the draft for fileID. Deleting a missing draft is not an error.
func (s *Store) Delete(ctx context.Context, fileID int64) error {
	if err := s.db.WithContext(ctx).Where("file_id = ?", fileID).Delete(&Draft{}).Error; err != nil {
		return dbError(err, "delete_draft", s.driver)
	}
	s.log.Debug("draft deleted", logger.Int64("file_id", fileID))
	return nil
}

// List returns every draft, most recently updated first, without rows.
func (s *Store) List(ctx context.Context) ([]Draft, error) {
	var drafts []Draft
	err := s.db.WithContext(ctx).
		Omit("rows_json").
		Order("updated_at DESC").
		Find(&drafts).Error
	if err != nil {
		return nil, dbError(err, "list_drafts", s.driver)
	}
	return drafts, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return dbError(err, "close", s.driver)
	}
	return sqlDB.Close()
}

func dbError(err error, operation, driver string) error {
	return errors.New(err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("operation", operation).
		Context("driver", driver).
		Build()
}
