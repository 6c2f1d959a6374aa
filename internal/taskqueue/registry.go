// Package taskqueue implements the scoped task scheduler and the
// per-task cancellation registry.
package taskqueue

import (
	"os/exec"
	"sync"
	"time"
)

// processKillGrace mirrors the runner's force-kill timeout for
// processes terminated directly through the registry.
const processKillGrace = 1500 * time.Millisecond

// Signal is a per-task cancellation signal. It also acts as the
// process registrar: subprocesses registered here are terminated the
// moment the signal fires.
type Signal struct {
	once sync.Once
	ch   chan struct{}

	mu    sync.Mutex
	procs map[*exec.Cmd]struct{}
}

func newSignal() *Signal {
	return &Signal{
		ch:    make(chan struct{}),
		procs: make(map[*exec.Cmd]struct{}),
	}
}

// Fired returns a channel closed when the signal fires.
func (s *Signal) Fired() <-chan struct{} { return s.ch }

// IsFired reports whether cancellation has been requested.
func (s *Signal) IsFired() bool {
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}

// Register records a running subprocess. If the signal already fired,
// the process is terminated immediately.
func (s *Signal) Register(cmd *exec.Cmd) {
	s.mu.Lock()
	s.procs[cmd] = struct{}{}
	fired := s.IsFired()
	s.mu.Unlock()

	if fired {
		killProcess(cmd)
	}
}

// Unregister removes a subprocess after it exits.
func (s *Signal) Unregister(cmd *exec.Cmd) {
	s.mu.Lock()
	delete(s.procs, cmd)
	s.mu.Unlock()
}

// Fire closes the signal channel and terminates every registered
// subprocess. Safe to call multiple times.
func (s *Signal) Fire() {
	s.once.Do(func() { close(s.ch) })

	s.mu.Lock()
	procs := make([]*exec.Cmd, 0, len(s.procs))
	for cmd := range s.procs {
		procs = append(procs, cmd)
	}
	s.mu.Unlock()

	for _, cmd := range procs {
		killProcess(cmd)
	}
}

// killProcess terminates cmd: graceful request first, force kill
// after the grace period if it is still running.
func killProcess(cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	terminateProcess(cmd)
	go func() {
		time.Sleep(processKillGrace)
		// Kill on an already-reaped process returns ErrProcessDone;
		// reading cmd.ProcessState here would race the owner's Wait.
		_ = cmd.Process.Kill()
	}()
}

type taskKey struct {
	scope, project, task string
}

// Registry hands out stable cancel signals per (scope, project, task)
// and fires them on demand.
type Registry struct {
	mu      sync.Mutex
	signals map[taskKey]*Signal
}

// NewRegistry creates a cancel registry.
func NewRegistry() *Registry {
	return &Registry{signals: make(map[taskKey]*Signal)}
}

// GetSignal returns the signal for a task, creating it on first
// access. Identity is stable for the lifetime of the task.
func (r *Registry) GetSignal(scope, project, task string) *Signal {
	k := taskKey{scope, project, task}

	r.mu.Lock()
	defer r.mu.Unlock()

	sig, ok := r.signals[k]
	if !ok {
		sig = newSignal()
		r.signals[k] = sig
	}
	return sig
}

// Cancel fires the signal for a task, terminating its registered
// subprocesses. Idempotent; creates the signal if it does not exist
// yet so a task enqueued later observes the cancellation.
func (r *Registry) Cancel(scope, project, task string) {
	r.GetSignal(scope, project, task).Fire()
}

// Cleanup drops the signal when the owning task completes.
func (r *Registry) Cleanup(scope, project, task string) {
	r.mu.Lock()
	delete(r.signals, taskKey{scope, project, task})
	r.mu.Unlock()
}

// Len returns the number of live signals.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.signals)
}
