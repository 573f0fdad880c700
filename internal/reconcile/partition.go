// Package reconcile diffs the local row list against the backend on save:
// it partitions rows into create, update and delete sets, issues them one at
// a time, and folds every result back into the row store.
package reconcile

import "github.com/sensorhub/annotator/internal/observation"

// Operation is a remote write.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Partition is the disjoint split of a row list.
type Partition struct {
	Create  []observation.Local
	Update  []observation.Local
	Delete  []observation.Local
	Skipped []observation.Local // matched no predicate; never sent
}

// Split partitions rows with create taking precedence over update over delete:
//
//	create: no id, attached to at least one file
//	update: has id, attached to at least one file, edited
//	delete: has id, attached to no file, edited
func Split(rows []observation.Local) Partition {
	var p Partition
	for _, row := range rows {
		attached := len(row.DataFiles) > 0
		switch {
		case !row.IsPersisted() && attached:
			p.Create = append(p.Create, row)
		case row.IsPersisted() && attached && row.Edited:
			p.Update = append(p.Update, row)
		case row.IsPersisted() && !attached && row.Edited:
			p.Delete = append(p.Delete, row)
		default:
			p.Skipped = append(p.Skipped, row)
		}
	}
	return p
}

// Empty reports whether nothing needs to be sent.
func (p Partition) Empty() bool {
	return len(p.Create) == 0 && len(p.Update) == 0 && len(p.Delete) == 0
}

// Task is one remote write for one row.
type Task struct {
	Op  Operation
	Row observation.Local
}

// Plan orders the partition for execution: updates, then creates, then deletes,
// each in row order.
func Plan(p Partition) []Task {
	tasks := make([]Task, 0, len(p.Update)+len(p.Create)+len(p.Delete))
	for _, group := range []struct {
		op   Operation
		rows []observation.Local
	}{
		{OpUpdate, p.Update},
		{OpCreate, p.Create},
		{OpDelete, p.Delete},
	} {
		for _, row := range group.rows {
			tasks = append(tasks, Task{Op: group.op, Row: row})
		}
	}
	return tasks
}
