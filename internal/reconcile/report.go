package reconcile

import (
	"fmt"
	"time"
)

// Status is the result of one task.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"  // backend rejected or unreachable
	StatusBlocked   Status = "blocked" // failed client-side validation, not sent
)

// Outcome is the per-row result of a task.
type Outcome struct {
	Op            Operation     `json:"operation"`
	Index         int           `json:"index"`
	ObservationID string        `json:"observation_id,omitempty"`
	Species       string        `json:"species,omitempty"`
	Status        Status        `json:"status"`
	Message       string        `json:"message,omitempty"`
	Duration      time.Duration `json:"duration_ns"`
	Err           error         `json:"-"`
}

// Report summarizes one save.
type Report struct {
	BatchID    string    `json:"batch_id"`
	FileID     int64     `json:"file_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Outcomes   []Outcome `json:"outcomes"`
	Created    int       `json:"created"`
	Updated    int       `json:"updated"`
	Deleted    int       `json:"deleted"`
	Failed     int       `json:"failed"`
	Blocked    int       `json:"blocked"`
	Skipped    int       `json:"skipped"`
	// Success is true only when every task succeeded.
	Success bool `json:"success"`
	// NoChanges is true when nothing needed sending; no backend call was made.
	NoChanges bool `json:"no_changes"`
}

// Result is the batch label used in metrics and logs.
func (r *Report) Result() string {
	switch {
	case r.NoChanges:
		return "no_changes"
	case r.Success:
		return "success"
	case r.Created+r.Updated+r.Deleted > 0:
		return "partial"
	default:
		return "failed"
	}
}

// Summary is a one-line human description.
func (r *Report) Summary() string {
	if r.NoChanges {
		return "No changes to save"
	}
	saved := r.Created + r.Updated + r.Deleted
	if r.Success {
		return fmt.Sprintf("%d %s saved", saved, plural(saved, "change", "changes"))
	}
	return fmt.Sprintf("%d of %d changes saved, %d failed", saved, len(r.Outcomes), r.Failed+r.Blocked)
}

// Failures returns the outcomes that did not succeed.
func (r *Report) Failures() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Status != StatusSucceeded {
			out = append(out, o)
		}
	}
	return out
}

// add folds one outcome into the report.
func (r *Report) add(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
	switch o.Status {
	case StatusSucceeded:
		switch o.Op {
		case OpCreate:
			r.Created++
		case OpUpdate:
			r.Updated++
		case OpDelete:
			r.Deleted++
		}
	case StatusFailed:
		r.Failed++
	case StatusBlocked:
		r.Blocked++
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
