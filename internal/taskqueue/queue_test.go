package taskqueue

import (
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"regexp"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxcut/voxcut/internal/events"
	"github.com/voxcut/voxcut/internal/progress"
)

type fixture struct {
	registry *Registry
	store    *progress.Store
	bus      *events.Bus
	sched    *Scheduler
}

func newFixture() *fixture {
	logger := slog.New(slog.DiscardHandler)
	f := &fixture{
		registry: NewRegistry(),
		store:    progress.NewStore(),
		bus:      events.NewBus(logger),
	}
	f.sched = NewScheduler(f.registry, f.store, f.bus, logger)
	return f
}

// collectEvents drains a subscription for one task until its terminal
// event or the timeout.
func collectEvents(t *testing.T, sub *events.Subscription, taskID string, timeout time.Duration) []*events.TaskEvent {
	t.Helper()
	var out []*events.TaskEvent
	deadline := time.After(timeout)
	for {
		select {
		case ev := <-sub.C:
			if ev.TaskID != taskID {
				continue
			}
			out = append(out, ev)
			if ev.IsTerminal() {
				return out
			}
		case <-deadline:
			return out
		}
	}
}

func TestTaskIDFormat(t *testing.T) {
	id := NewTaskID("generate_video", "p1")
	re := regexp.MustCompile(`^generate_video_p1_\d{8}_\d{6}_[a-z0-9]{6}$`)
	assert.Regexp(t, re, id)
}

func TestTaskLifecycleEvents(t *testing.T) {
	f := newFixture()
	defer f.sched.Shutdown()
	sub := f.bus.Subscribe()
	defer f.bus.Unsubscribe(sub)

	id, err := f.sched.Enqueue(EnqueueOptions{
		Scope:     "test_scope",
		ProjectID: "p1",
		Run: func(ctx context.Context, projectID, taskID string, sig *Signal) (map[string]any, error) {
			return map[string]any{"file_path": "videos/outputs/p1/final.mp4"}, nil
		},
	})
	require.NoError(t, err)

	evs := collectEvents(t, sub, id, 2*time.Second)
	require.NotEmpty(t, evs)
	last := evs[len(evs)-1]
	assert.Equal(t, events.TypeCompleted, last.Type)
	assert.Equal(t, 100, last.Progress)
	assert.Equal(t, "videos/outputs/p1/final.mp4", last.FilePath)

	// exactly one terminal event, and it is last
	terminals := 0
	for _, ev := range evs {
		if ev.IsTerminal() {
			terminals++
		}
	}
	assert.Equal(t, 1, terminals)

	// store mirrors the terminal state (store-then-broadcast)
	st, ok := f.store.GetState("test_scope", "p1", id)
	require.True(t, ok)
	assert.Equal(t, progress.StatusCompleted, st.Status)
}

func TestTaskFailurePublishesRedactedError(t *testing.T) {
	f := newFixture()
	defer f.sched.Shutdown()
	sub := f.bus.Subscribe()
	defer f.bus.Unsubscribe(sub)

	id, err := f.sched.Enqueue(EnqueueOptions{
		Scope:     "test_scope",
		ProjectID: "p1",
		Run: func(ctx context.Context, projectID, taskID string, sig *Signal) (map[string]any, error) {
			return nil, errors.New("provider rejected api_key=sk-secret")
		},
	})
	require.NoError(t, err)

	evs := collectEvents(t, sub, id, 2*time.Second)
	require.NotEmpty(t, evs)
	last := evs[len(evs)-1]
	assert.Equal(t, events.TypeError, last.Type)
	assert.NotContains(t, last.Message, "sk-secret")
}

func TestDedupReturnsSameTaskID(t *testing.T) {
	f := newFixture()
	defer f.sched.Shutdown()

	release := make(chan struct{})
	opts := EnqueueOptions{
		Scope:     "generate_video",
		ProjectID: "p1",
		Dedup:     true,
		Run: func(ctx context.Context, projectID, taskID string, sig *Signal) (map[string]any, error) {
			<-release
			return nil, nil
		},
	}

	first, err := f.sched.Enqueue(opts)
	require.NoError(t, err)
	second, err := f.sched.Enqueue(opts)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	id, ok := f.sched.ActiveTaskID("generate_video", "p1")
	assert.True(t, ok)
	assert.Equal(t, first, id)

	close(release)
	require.Eventually(t, func() bool {
		_, active := f.sched.ActiveTaskID("generate_video", "p1")
		return !active
	}, 2*time.Second, 10*time.Millisecond)

	// after completion a new enqueue creates a fresh task
	third, err := f.sched.Enqueue(opts)
	require.NoError(t, err)
	assert.NotEqual(t, first, third)
}

func TestConcurrencyBound(t *testing.T) {
	f := newFixture()
	defer f.sched.Shutdown()

	const workers = 2
	var running, peak atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		_, err := f.sched.Enqueue(EnqueueOptions{
			Scope:       "bounded",
			ProjectID:   "p" + string(rune('a'+i)),
			Concurrency: workers,
			Run: func(ctx context.Context, projectID, taskID string, sig *Signal) (map[string]any, error) {
				defer wg.Done()
				n := running.Add(1)
				for {
					old := peak.Load()
					if n <= old || peak.CompareAndSwap(old, n) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
				running.Add(-1)
				return nil, nil
			},
		})
		require.NoError(t, err)
	}

	wg.Wait()
	assert.LessOrEqual(t, peak.Load(), int32(workers))
}

func TestCancelRunningTask(t *testing.T) {
	f := newFixture()
	defer f.sched.Shutdown()
	sub := f.bus.Subscribe()
	defer f.bus.Unsubscribe(sub)

	started := make(chan struct{})
	id, err := f.sched.Enqueue(EnqueueOptions{
		Scope:     "cancellable",
		ProjectID: "p1",
		Run: func(ctx context.Context, projectID, taskID string, sig *Signal) (map[string]any, error) {
			close(started)
			select {
			case <-sig.Fired():
				return nil, context.Canceled
			case <-time.After(5 * time.Second):
				return nil, nil
			}
		},
	})
	require.NoError(t, err)

	<-started
	f.sched.Cancel("cancellable", "p1", id)

	evs := collectEvents(t, sub, id, 2*time.Second)
	require.NotEmpty(t, evs)
	last := evs[len(evs)-1]
	assert.Equal(t, events.TypeCancelled, last.Type)

	// cancelling again after completion publishes nothing further
	f.sched.Cancel("cancellable", "p1", id)
	select {
	case ev := <-sub.C:
		if ev.TaskID == id {
			t.Fatalf("unexpected extra event after terminal: %+v", ev)
		}
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCancelPendingTask(t *testing.T) {
	f := newFixture()
	defer f.sched.Shutdown()
	sub := f.bus.Subscribe()
	defer f.bus.Unsubscribe(sub)

	// occupy the single worker so the second task stays pending
	block := make(chan struct{})
	_, err := f.sched.Enqueue(EnqueueOptions{
		Scope:     "narrow",
		ProjectID: "blocker",
		Run: func(ctx context.Context, projectID, taskID string, sig *Signal) (map[string]any, error) {
			<-block
			return nil, nil
		},
	})
	require.NoError(t, err)

	pendingID, err := f.sched.Enqueue(EnqueueOptions{
		Scope:     "narrow",
		ProjectID: "p2",
		Run: func(ctx context.Context, projectID, taskID string, sig *Signal) (map[string]any, error) {
			t.Error("cancelled pending task must not run")
			return nil, nil
		},
	})
	require.NoError(t, err)

	f.sched.Cancel("narrow", "p2", pendingID)

	evs := collectEvents(t, sub, pendingID, 2*time.Second)
	require.NotEmpty(t, evs)
	assert.Equal(t, events.TypeCancelled, evs[len(evs)-1].Type)

	close(block)
	// drain so the blocker finishes before shutdown
	require.Eventually(t, func() bool {
		return f.sched.RunningCount("narrow") == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestResizeShrinkUsesPoisonPills(t *testing.T) {
	f := newFixture()
	defer f.sched.Shutdown()

	var running, peak atomic.Int32
	var wg sync.WaitGroup

	// scope starts with 3 workers, shrink to 1 before submitting work
	f.sched.ensureScope("resizable", 3)
	f.sched.Resize("resizable", 1)
	// give the pills a moment to retire workers
	time.Sleep(50 * time.Millisecond)

	for i := 0; i < 4; i++ {
		wg.Add(1)
		_, err := f.sched.Enqueue(EnqueueOptions{
			Scope:     "resizable",
			ProjectID: "p" + string(rune('a'+i)),
			Run: func(ctx context.Context, projectID, taskID string, sig *Signal) (map[string]any, error) {
				defer wg.Done()
				n := running.Add(1)
				for {
					old := peak.Load()
					if n <= old || peak.CompareAndSwap(old, n) {
						break
					}
				}
				time.Sleep(15 * time.Millisecond)
				running.Add(-1)
				return nil, nil
			},
		})
		require.NoError(t, err)
	}

	wg.Wait()
	assert.LessOrEqual(t, peak.Load(), int32(1))
}

// A shrink against a full queue must still deliver its pill once a
// slot frees instead of dropping it.
func TestSendPillDefersOnFullQueue(t *testing.T) {
	f := newFixture()
	defer f.sched.Shutdown()

	sc := &scopeState{name: "full", queue: make(chan string, 1)}
	sc.queue <- "task-1"

	f.sched.sendPill(sc)

	require.Equal(t, "task-1", <-sc.queue)
	select {
	case id := <-sc.queue:
		assert.Equal(t, poisonPill, id)
	case <-time.After(2 * time.Second):
		t.Fatal("deferred pill never arrived")
	}
}

func TestPanicBecomesFailure(t *testing.T) {
	f := newFixture()
	defer f.sched.Shutdown()
	sub := f.bus.Subscribe()
	defer f.bus.Unsubscribe(sub)

	id, err := f.sched.Enqueue(EnqueueOptions{
		Scope:     "panicky",
		ProjectID: "p1",
		Run: func(ctx context.Context, projectID, taskID string, sig *Signal) (map[string]any, error) {
			panic("boom")
		},
	})
	require.NoError(t, err)

	evs := collectEvents(t, sub, id, 2*time.Second)
	require.NotEmpty(t, evs)
	last := evs[len(evs)-1]
	assert.Equal(t, events.TypeError, last.Type)
	assert.Contains(t, last.Message, "boom")
}

func TestSignalRegistryLifecycle(t *testing.T) {
	reg := NewRegistry()
	sig := reg.GetSignal("s", "p", "t")
	assert.Same(t, sig, reg.GetSignal("s", "p", "t"))
	assert.False(t, sig.IsFired())

	reg.Cancel("s", "p", "t")
	assert.True(t, sig.IsFired())
	// idempotent
	reg.Cancel("s", "p", "t")

	reg.Cleanup("s", "p", "t")
	assert.Equal(t, 0, reg.Len())
	// a fresh signal after cleanup is unfired
	assert.False(t, reg.GetSignal("s", "p", "t2").IsFired())
}

// Firing a signal must terminate a registered process while its owner
// sits in cmd.Wait, without touching fields Wait writes.
func TestFireKillsRegisteredProcessDuringWait(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a posix sleep binary")
	}

	sig := newSignal()
	cmd := exec.Command("sleep", "30")
	require.NoError(t, cmd.Start())
	sig.Register(cmd)
	defer sig.Unregister(cmd)

	waitErr := make(chan error, 1)
	go func() { waitErr <- cmd.Wait() }()

	sig.Fire()

	select {
	case err := <-waitErr:
		require.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("process still running after cancellation")
	}

	// let the delayed force-kill pass run against the reaped process
	time.Sleep(processKillGrace + 100*time.Millisecond)
}
