// Package events implements the task event bus: structured progress,
// completion and error events fanned out to many subscribers.
package events

import "time"

// Event types.
const (
	TypeProgress  = "progress"
	TypeCompleted = "completed"
	TypeError     = "error"
	TypeCancelled = "cancelled"
	TypeWarning   = "warning"
)

// TaskEvent is the wire shape delivered to subscribers and mirrored
// into the progress store. Timestamps are ISO-8601.
type TaskEvent struct {
	Type      string `json:"type"`
	Scope     string `json:"scope"`
	ProjectID string `json:"project_id"`
	TaskID    string `json:"task_id"`
	Status    string `json:"status,omitempty"`
	Phase     string `json:"phase,omitempty"`
	Progress  int    `json:"progress"`
	Message   string `json:"message,omitempty"`
	Timestamp string `json:"timestamp"`
	FilePath  string `json:"file_path,omitempty"`

	// Set on model-download progress events only.
	DownloadedBytes int64 `json:"downloaded_bytes,omitempty"`
	TotalBytes      int64 `json:"total_bytes,omitempty"`
}

// IsTerminal reports whether the event ends its task.
func (e *TaskEvent) IsTerminal() bool {
	switch e.Type {
	case TypeCompleted, TypeError, TypeCancelled:
		return true
	}
	return false
}

// stamp fills the timestamp when the producer left it empty.
func (e *TaskEvent) stamp() {
	if e.Timestamp == "" {
		e.Timestamp = time.Now().Format(time.RFC3339)
	}
}
