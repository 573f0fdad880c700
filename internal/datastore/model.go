// Package datastore persists unsaved annotation rows as drafts so an edit
// session survives a restart of the host.
package datastore

import (
	"encoding/json"
	"time"

	"github.com/sensorhub/annotator/internal/observation"
)

// Draft is the dirty row list of one data file.
type Draft struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	FileID    int64     `gorm:"uniqueIndex;not null" json:"file_id"`
	SessionID string    `gorm:"type:varchar(36);index;not null" json:"session_id"`
	Rows      string    `gorm:"column:rows_json;type:text;not null" json:"-"`
	RowCount  int       `gorm:"not null;default:0" json:"row_count"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName pins the table name independent of gorm's naming strategy.
func (Draft) TableName() string {
	return "drafts"
}

// Decode returns the stored rows.
func (d *Draft) Decode() ([]observation.Local, error) {
	var rows []observation.Local
	if err := json.Unmarshal([]byte(d.Rows), &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func encodeRows(rows []observation.Local) (string, error) {
	if rows == nil {
		rows = []observation.Local{}
	}
	b, err := json.Marshal(rows)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
