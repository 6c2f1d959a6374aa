package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/voxcut/voxcut/internal/events"
	"github.com/voxcut/voxcut/internal/models"
	"github.com/voxcut/voxcut/internal/observability"
	"github.com/voxcut/voxcut/internal/progress"
)

// poisonPill is the queue sentinel that retires one worker. Real task
// ids are never empty.
const poisonPill = ""

// queueCapacity bounds each scope's FIFO queue.
const queueCapacity = 1024

// RunFunc is the task closure handed to the scheduler. It must honor
// ctx and sig at every suspension point. The returned map may carry
// "file_path" or "output_path" for the completion event.
type RunFunc func(ctx context.Context, projectID, taskID string, sig *Signal) (map[string]any, error)

// EnqueueOptions describes one task submission.
type EnqueueOptions struct {
	Scope     string
	ProjectID string
	TaskID    string // assigned when empty
	Run       RunFunc

	// Concurrency grows the scope's worker pool to at least this
	// value. Zero leaves the pool as is (new scopes get one worker).
	Concurrency int

	// Dedup collapses simultaneous enqueues per project unless
	// AllowSameProjectParallel is set.
	Dedup                    bool
	AllowSameProjectParallel bool

	// LocalUpdate, when set, observes every event the task emits.
	LocalUpdate func(*events.TaskEvent)
}

type queuedTask struct {
	id          string
	projectID   string
	run         RunFunc
	localUpdate func(*events.TaskEvent)
	dedup       bool
}

type scopeState struct {
	name        string
	concurrency int
	queue       chan string

	mu      sync.Mutex
	pending map[string]*queuedTask
	running map[string]*queuedTask
	dedup   map[string]string // project id -> active task id
}

// Scheduler owns the per-scope task queues and worker pools. Every
// state transition writes the progress store first and then
// broadcasts on the bus, so a subscriber reacting to an event always
// reads fresh state.
type Scheduler struct {
	registry *Registry
	store    *progress.Store
	bus      *events.Bus
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	scopes map[string]*scopeState
}

// NewScheduler creates a scheduler.
func NewScheduler(registry *Registry, store *progress.Store, bus *events.Bus, logger *slog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		registry: registry,
		store:    store,
		bus:      bus,
		logger:   observability.WithComponent(logger, "scheduler"),
		ctx:      ctx,
		cancel:   cancel,
		scopes:   make(map[string]*scopeState),
	}
}

// Enqueue submits a task. With dedup enabled, an active task for the
// same (scope, project) short-circuits the call and its id is
// returned instead of creating a second task.
func (s *Scheduler) Enqueue(opts EnqueueOptions) (string, error) {
	if opts.Scope == "" || opts.ProjectID == "" || opts.Run == nil {
		return "", models.InputInvalid("enqueue requires scope, project id and run function")
	}

	sc := s.ensureScope(opts.Scope, opts.Concurrency)

	sc.mu.Lock()
	dedupActive := opts.Dedup && !opts.AllowSameProjectParallel
	if dedupActive {
		if existing, ok := sc.dedup[opts.ProjectID]; ok {
			sc.mu.Unlock()
			s.logger.Debug("enqueue deduplicated", "scope", opts.Scope,
				"project_id", opts.ProjectID, "task_id", existing)
			return existing, nil
		}
	}

	id := opts.TaskID
	if id == "" {
		id = NewTaskID(opts.Scope, opts.ProjectID)
	}
	t := &queuedTask{
		id:          id,
		projectID:   opts.ProjectID,
		run:         opts.Run,
		localUpdate: opts.LocalUpdate,
		dedup:       dedupActive,
	}
	sc.pending[id] = t
	if dedupActive {
		sc.dedup[opts.ProjectID] = id
	}

	// Emit queued before the id becomes visible to workers so the
	// per-task event order starts with it.
	s.emit(opts.Scope, t, &events.TaskEvent{
		Type:     events.TypeProgress,
		Status:   progress.StatusQueued,
		Phase:    "queued",
		Progress: 0,
		Message:  "task queued",
	})

	select {
	case sc.queue <- id:
	default:
		delete(sc.pending, id)
		if dedupActive {
			delete(sc.dedup, opts.ProjectID)
		}
		sc.mu.Unlock()
		return "", fmt.Errorf("scope %s queue full", opts.Scope)
	}
	sc.mu.Unlock()

	return id, nil
}

// ensureScope returns the scope state, creating it or growing its
// worker pool to at least concurrency. Shrinking happens only via
// Resize poison pills.
func (s *Scheduler) ensureScope(name string, concurrency int) *scopeState {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc, ok := s.scopes[name]
	if !ok {
		n := concurrency
		if n < 1 {
			n = 1
		}
		sc = &scopeState{
			name:        name,
			concurrency: n,
			queue:       make(chan string, queueCapacity),
			pending:     make(map[string]*queuedTask),
			running:     make(map[string]*queuedTask),
			dedup:       make(map[string]string),
		}
		s.scopes[name] = sc
		for i := 0; i < n; i++ {
			s.spawnWorker(sc)
		}
		s.logger.Info("scope created", "scope", name, "workers", n)
		return sc
	}

	if concurrency > sc.concurrency {
		delta := concurrency - sc.concurrency
		sc.concurrency = concurrency
		for i := 0; i < delta; i++ {
			s.spawnWorker(sc)
		}
		s.logger.Info("scope grown", "scope", name, "workers", concurrency)
	}
	return sc
}

// Resize sets a scope's worker count. Growth spawns workers; shrink
// enqueues poison pills so running work is never interrupted.
func (s *Scheduler) Resize(scope string, n int) {
	if n < 1 {
		n = 1
	}
	sc := s.ensureScope(scope, 0)

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case n == sc.concurrency:
		return
	case n > sc.concurrency:
		delta := n - sc.concurrency
		sc.concurrency = n
		for i := 0; i < delta; i++ {
			s.spawnWorker(sc)
		}
	default:
		pills := sc.concurrency - n
		sc.concurrency = n
		for i := 0; i < pills; i++ {
			s.sendPill(sc)
		}
	}
	s.logger.Info("scope resized", "scope", scope, "workers", n)
}

// sendPill delivers one poison pill to the scope's queue. A full
// queue defers delivery to a goroutine so the shrink is never lost;
// the worker retires once the backlog drains.
func (s *Scheduler) sendPill(sc *scopeState) {
	select {
	case sc.queue <- poisonPill:
		return
	default:
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		select {
		case sc.queue <- poisonPill:
		case <-s.ctx.Done():
		}
	}()
}

func (s *Scheduler) spawnWorker(sc *scopeState) {
	s.wg.Add(1)
	go s.worker(sc)
}

func (s *Scheduler) worker(sc *scopeState) {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case id := <-sc.queue:
			if id == poisonPill {
				return
			}
			s.execute(sc, id)
		}
	}
}

func (s *Scheduler) execute(sc *scopeState, id string) {
	sc.mu.Lock()
	t, ok := sc.pending[id]
	if !ok {
		// cancelled while pending; its terminal event already went out
		sc.mu.Unlock()
		return
	}
	delete(sc.pending, id)
	sc.running[id] = t
	sc.mu.Unlock()

	sig := s.registry.GetSignal(sc.name, t.projectID, id)

	defer func() {
		sc.mu.Lock()
		delete(sc.running, id)
		if t.dedup && sc.dedup[t.projectID] == id {
			delete(sc.dedup, t.projectID)
		}
		sc.mu.Unlock()
		s.registry.Cleanup(sc.name, t.projectID, id)
	}()

	if sig.IsFired() {
		s.emit(sc.name, t, &events.TaskEvent{
			Type:    events.TypeCancelled,
			Status:  progress.StatusCancelled,
			Message: "task cancelled before start",
		})
		return
	}

	s.emit(sc.name, t, &events.TaskEvent{
		Type:     events.TypeProgress,
		Status:   progress.StatusProcessing,
		Phase:    "start",
		Progress: 1,
		Message:  "task started",
	})

	result, err := s.runTask(t, sig)

	switch {
	case models.IsCancelled(err),
		errors.Is(err, context.Canceled),
		err != nil && sig.IsFired():
		s.emit(sc.name, t, &events.TaskEvent{
			Type:    events.TypeCancelled,
			Status:  progress.StatusCancelled,
			Message: "task cancelled",
		})
	case err != nil:
		s.emit(sc.name, t, &events.TaskEvent{
			Type:    events.TypeError,
			Status:  progress.StatusFailed,
			Message: observability.RedactError(err),
		})
	default:
		s.emit(sc.name, t, &events.TaskEvent{
			Type:     events.TypeCompleted,
			Status:   progress.StatusCompleted,
			Progress: 100,
			Message:  "task completed",
			FilePath: extractFilePath(result),
		})
	}
}

// runTask invokes the closure with a context that is cancelled when
// the signal fires. Panics become failures rather than dead workers.
func (s *Scheduler) runTask(t *queuedTask, sig *Signal) (result map[string]any, err error) {
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	go func() {
		select {
		case <-sig.Fired():
			cancel()
		case <-ctx.Done():
		}
	}()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
			s.logger.Error("task panic", "task_id", t.id, "panic", r)
		}
	}()

	return t.run(ctx, t.projectID, t.id, sig)
}

// Publish emits a mid-task event on behalf of a running closure,
// applying the same store-then-broadcast rule as lifecycle events.
// The task's LocalUpdate observer, when registered, sees it too.
func (s *Scheduler) Publish(scope, projectID, taskID string, ev *events.TaskEvent) {
	s.mu.Lock()
	sc := s.scopes[scope]
	s.mu.Unlock()

	var t *queuedTask
	if sc != nil {
		sc.mu.Lock()
		if rt, ok := sc.running[taskID]; ok {
			t = rt
		} else if pt, ok := sc.pending[taskID]; ok {
			t = pt
		}
		sc.mu.Unlock()
	}
	if t == nil {
		t = &queuedTask{id: taskID, projectID: projectID}
	}
	s.emit(scope, t, ev)
}

// Cancel cancels a task. Pending tasks are removed synchronously and
// announced as cancelled; running tasks have their signal fired,
// which terminates registered subprocesses and lets the worker
// publish the terminal event. Cancelling a finished task fires the
// (fresh) signal but emits nothing.
func (s *Scheduler) Cancel(scope, project, task string) {
	s.mu.Lock()
	sc := s.scopes[scope]
	s.mu.Unlock()

	if sc != nil {
		sc.mu.Lock()
		if t, ok := sc.pending[task]; ok {
			delete(sc.pending, task)
			if t.dedup && sc.dedup[t.projectID] == task {
				delete(sc.dedup, t.projectID)
			}
			sc.mu.Unlock()

			s.registry.Cancel(scope, project, task)
			s.registry.Cleanup(scope, project, task)
			s.emit(scope, t, &events.TaskEvent{
				Type:    events.TypeCancelled,
				Status:  progress.StatusCancelled,
				Message: "task cancelled while queued",
			})
			return
		}
		sc.mu.Unlock()
	}

	s.registry.Cancel(scope, project, task)
}

// ActiveTaskID returns the in-flight task id for (scope, project), if
// any.
func (s *Scheduler) ActiveTaskID(scope, project string) (string, bool) {
	s.mu.Lock()
	sc := s.scopes[scope]
	s.mu.Unlock()
	if sc == nil {
		return "", false
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	if id, ok := sc.dedup[project]; ok {
		return id, true
	}
	for id, t := range sc.running {
		if t.projectID == project {
			return id, true
		}
	}
	for id, t := range sc.pending {
		if t.projectID == project {
			return id, true
		}
	}
	return "", false
}

// RunningCount returns the number of tasks executing in a scope.
func (s *Scheduler) RunningCount(scope string) int {
	s.mu.Lock()
	sc := s.scopes[scope]
	s.mu.Unlock()
	if sc == nil {
		return 0
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return len(sc.running)
}

// Shutdown stops all workers. Running closures observe their context
// cancellation; the call returns once every worker has exited.
func (s *Scheduler) Shutdown() {
	s.cancel()
	s.wg.Wait()
}

// emit applies the store-then-broadcast rule for one task event.
func (s *Scheduler) emit(scope string, t *queuedTask, ev *events.TaskEvent) {
	ev.Scope = scope
	ev.ProjectID = t.projectID
	ev.TaskID = t.id
	ev.Message = observability.Redact(ev.Message)
	if ev.Timestamp == "" {
		ev.Timestamp = time.Now().Format(time.RFC3339)
	}

	s.store.UpdateFromEvent(ev)
	s.bus.Publish(ev)
	if t.localUpdate != nil {
		t.localUpdate(ev)
	}
}

func extractFilePath(result map[string]any) string {
	for _, k := range []string{"file_path", "output_path"} {
		if v, ok := result[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

const taskIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// NewTaskID builds a task id of the form
// {scope}_{project}_{YYYYMMDD_HHMMSS}_{rand6}.
func NewTaskID(scope, project string) string {
	suffix := make([]byte, 6)
	for i := range suffix {
		suffix[i] = taskIDAlphabet[rand.IntN(len(taskIDAlphabet))]
	}
	return fmt.Sprintf("%s_%s_%s_%s", scope, project,
		time.Now().Format("20060102_150405"), string(suffix))
}
