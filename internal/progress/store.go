// Package progress mirrors the latest task state per
// (scope, project, task) so reconnecting subscribers can observe
// outcomes they missed on the event bus.
package progress

import (
	"sync"
	"time"

	"github.com/voxcut/voxcut/internal/events"
)

// Task statuses.
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusCancelled  = "cancelled"
)

// TaskState is the latest snapshot for one task.
type TaskState struct {
	Scope     string    `json:"scope"`
	ProjectID string    `json:"project_id"`
	TaskID    string    `json:"task_id"`
	Status    string    `json:"status"`
	Progress  int       `json:"progress"`
	Phase     string    `json:"phase,omitempty"`
	Message   string    `json:"message,omitempty"`
	Type      string    `json:"type"`
	Timestamp string    `json:"timestamp"`
	FilePath  string    `json:"file_path,omitempty"`
	UpdatedAt time.Time `json:"-"`
}

// IsTerminal reports whether the state can no longer change.
func (s *TaskState) IsTerminal() bool {
	switch s.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// IsActive reports whether the task is still pending or running.
func (s *TaskState) IsActive() bool { return !s.IsTerminal() }

type key struct {
	scope, project, task string
}

// Store holds the latest state per task. Terminal states are
// immutable; later writes against a terminal key are ignored.
type Store struct {
	mu     sync.RWMutex
	states map[key]*TaskState
}

// NewStore creates a progress store.
func NewStore() *Store {
	return &Store{states: make(map[key]*TaskState)}
}

// SetState overwrites the state for a task unless the existing state
// is terminal.
func (s *Store) SetState(state *TaskState) {
	if state == nil || state.TaskID == "" {
		return
	}
	k := key{state.Scope, state.ProjectID, state.TaskID}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.states[k]; ok && existing.IsTerminal() {
		return
	}
	state.UpdatedAt = time.Now()
	s.states[k] = state
}

// UpdateFromEvent derives a state from a bus event and stores it.
// When the event carries no explicit status, the event type is
// normalized: completed→completed, error→failed, cancelled→cancelled,
// anything else→processing.
func (s *Store) UpdateFromEvent(ev *events.TaskEvent) {
	if ev == nil {
		return
	}
	status := ev.Status
	if status == "" {
		switch ev.Type {
		case events.TypeCompleted:
			status = StatusCompleted
		case events.TypeError:
			status = StatusFailed
		case events.TypeCancelled:
			status = StatusCancelled
		default:
			status = StatusProcessing
		}
	}
	s.SetState(&TaskState{
		Scope:     ev.Scope,
		ProjectID: ev.ProjectID,
		TaskID:    ev.TaskID,
		Status:    status,
		Progress:  ev.Progress,
		Phase:     ev.Phase,
		Message:   ev.Message,
		Type:      ev.Type,
		Timestamp: ev.Timestamp,
		FilePath:  ev.FilePath,
	})
}

// GetState returns the state for (scope, project, task). With an
// empty task it returns the most recently updated active task for
// (scope, project), falling back to the most recent of any status.
func (s *Store) GetState(scope, project, task string) (*TaskState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if task != "" {
		st, ok := s.states[key{scope, project, task}]
		return st, ok
	}

	var newest, newestActive *TaskState
	for k, st := range s.states {
		if k.scope != scope || k.project != project {
			continue
		}
		if newest == nil || st.UpdatedAt.After(newest.UpdatedAt) {
			newest = st
		}
		if st.IsActive() && (newestActive == nil || st.UpdatedAt.After(newestActive.UpdatedAt)) {
			newestActive = st
		}
	}
	if newestActive != nil {
		return newestActive, true
	}
	return newest, newest != nil
}

// GetLatestRunning returns the newest state for (scope, project) only
// when it is still in flight.
func (s *Store) GetLatestRunning(scope, project string) (*TaskState, bool) {
	st, ok := s.GetState(scope, project, "")
	if !ok {
		return nil, false
	}
	switch st.Status {
	case StatusQueued, StatusProcessing:
		return st, true
	}
	if st.Type == events.TypeProgress {
		return st, true
	}
	return nil, false
}

// PruneTerminal removes terminal states last updated before the
// cutoff and returns how many were removed.
func (s *Store) PruneTerminal(olderThan time.Duration) int {
	cutoff := time.Now().Add(-olderThan)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k, st := range s.states {
		if st.IsTerminal() && st.UpdatedAt.Before(cutoff) {
			delete(s.states, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked states.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.states)
}
