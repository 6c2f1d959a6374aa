// Package service holds the per-operation facades between the route
// layer and the pipelines. Each facade validates prerequisites, runs
// its pipeline with progress forwarded to the event bus, and returns
// a result map. Scheduling is explicit: callers enqueue through the
// facade's Enqueue method, never from inside a run.
package service

import (
	"time"

	"github.com/voxcut/voxcut/internal/events"
	"github.com/voxcut/voxcut/internal/progress"
	"github.com/voxcut/voxcut/internal/taskqueue"
)

// Services bundles the facades for startup wiring.
type Services struct {
	Video     *VideoService
	Script    *ScriptService
	Draft     *DraftService
	Subtitles *SubtitleService
	Models    *ModelService
}

// resultMap builds the common result envelope every facade returns.
func resultMap(started time.Time, extra map[string]any) map[string]any {
	out := map[string]any{
		"started_at":  started.Format(time.RFC3339),
		"finished_at": time.Now().Format(time.RFC3339),
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// progressEvent is the shape every mid-task report uses.
func progressEvent(phase string, percent int, message string) *events.TaskEvent {
	return &events.TaskEvent{
		Type:     events.TypeProgress,
		Status:   progress.StatusProcessing,
		Phase:    phase,
		Progress: percent,
		Message:  message,
	}
}

// publisher is the slice of the scheduler the facades need for
// mid-task events.
type publisher interface {
	Publish(scope, projectID, taskID string, ev *events.TaskEvent)
}

var _ publisher = (*taskqueue.Scheduler)(nil)
