// Package notification delivers save results to the host: an in-memory toast
// queue the UI drains, the structured log, and optional push services.
package notification

import (
	"maps"
	"time"

	"github.com/google/uuid"
)

// Type represents the category of a notification
type Type string

const (
	TypeError   Type = "error"
	TypeWarning Type = "warning"
	TypeSuccess Type = "success"
	TypeInfo    Type = "info"
)

// Priority represents the urgency level of a notification
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Metadata keys attached to save notifications
const (
	MetadataBatchID = "batch_id"
	MetadataFileID  = "file_id"
	MetadataRow     = "row"
)

// Notification is a single message for the host.
type Notification struct {
	ID        string         `json:"id"`
	Type      Type           `json:"type"`
	Priority  Priority       `json:"priority"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Component string         `json:"component,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewNotification creates a notification with a unique ID and timestamp.
func NewNotification(notifType Type, priority Priority, title, message string) *Notification {
	return &Notification{
		ID:        uuid.New().String(),
		Type:      notifType,
		Priority:  priority,
		Title:     title,
		Message:   message,
		Timestamp: time.Now(),
		Metadata:  make(map[string]any),
	}
}

// WithComponent sets the component field and returns the notification for chaining
func (n *Notification) WithComponent(component string) *Notification {
	n.Component = component
	return n
}

// WithMetadata adds metadata and returns the notification for chaining
func (n *Notification) WithMetadata(key string, value any) *Notification {
	if n.Metadata == nil {
		n.Metadata = make(map[string]any)
	}
	n.Metadata[key] = value
	return n
}

// Clone copies the notification. Metadata values are shallow copied; save
// notifications only carry scalars.
func (n *Notification) Clone() *Notification {
	if n == nil {
		return nil
	}
	clone := *n
	clone.Metadata = maps.Clone(n.Metadata)
	return &clone
}
