package observation

import "slices"

// Attachment is the relation between a row and the current file.
// Deletion is signaled by detaching, never by removing the row.
type Attachment int

const (
	// Detached rows no longer reference the current file and are deleted on save.
	Detached Attachment = iota
	// Active rows reference the current file.
	Active
)

func (a Attachment) String() string {
	if a == Active {
		return "active"
	}
	return "detached"
}

// AttachmentTo reports whether o still references fileID.
func (o Observation) AttachmentTo(fileID int64) Attachment {
	if slices.Contains(o.DataFiles, fileID) {
		return Active
	}
	return Detached
}

// Detach removes fileID from DataFiles. It reports whether anything changed.
func (o *Observation) Detach(fileID int64) bool {
	before := len(o.DataFiles)
	o.DataFiles = slices.DeleteFunc(slices.Clone(o.DataFiles), func(id int64) bool { return id == fileID })
	return len(o.DataFiles) != before
}

// Attach adds fileID to DataFiles if absent. It reports whether anything changed.
func (o *Observation) Attach(fileID int64) bool {
	if slices.Contains(o.DataFiles, fileID) {
		return false
	}
	o.DataFiles = append(slices.Clone(o.DataFiles), fileID)
	return true
}
