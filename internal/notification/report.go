package notification

import (
	"fmt"

	"github.com/sensorhub/annotator/internal/reconcile"
)

const component = "annotation-sync"

// FromReport converts a save report into toasts: one per row that did not
// succeed, followed by a summary.
func FromReport(r *reconcile.Report) []*Notification {
	if r.NoChanges {
		return []*Notification{
			tag(NewNotification(TypeInfo, PriorityLow, "No changes", r.Summary()), r),
		}
	}

	var out []*Notification
	for _, o := range r.Failures() {
		var n *Notification
		if o.Status == reconcile.StatusBlocked {
			n = NewNotification(TypeWarning, PriorityMedium, "Validation failed", rowMessage(o))
		} else {
			n = NewNotification(TypeError, PriorityHigh, "Save failed", rowMessage(o))
		}
		out = append(out, tag(n, r).WithMetadata(MetadataRow, o.Index))
	}

	saved := r.Created + r.Updated + r.Deleted
	switch {
	case r.Success:
		out = append(out, tag(NewNotification(TypeSuccess, PriorityLow, "Saved", r.Summary()), r))
	case saved > 0:
		out = append(out, tag(NewNotification(TypeWarning, PriorityMedium, "Partially saved", r.Summary()), r))
	}
	return out
}

func tag(n *Notification, r *reconcile.Report) *Notification {
	return n.WithComponent(component).
		WithMetadata(MetadataBatchID, r.BatchID).
		WithMetadata(MetadataFileID, r.FileID)
}

func rowMessage(o reconcile.Outcome) string {
	subject := o.Species
	if subject == "" {
		subject = "unnamed observation"
	}
	if o.Message == "" {
		return fmt.Sprintf("Could not %s %s", o.Op, subject)
	}
	return fmt.Sprintf("Could not %s %s: %s", o.Op, subject, o.Message)
}
