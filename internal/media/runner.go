package media

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/voxcut/voxcut/internal/models"
)

// killGrace is how long a cancelled process gets to exit after the
// graceful termination request before it is force-killed.
const killGrace = 1500 * time.Millisecond

// stderrCaptureLimit bounds how much trailing stderr is retained.
const stderrCaptureLimit = 64 * 1024

// StdoutMode selects how the runner handles child stdout.
type StdoutMode int

const (
	// Drain discards stdout.
	Drain StdoutMode = iota
	// LineStream delivers stdout lines to Spec.OnLine.
	LineStream
)

// CancelSignal is the subset of the task cancel signal the runner
// needs. Fired returns a channel closed when cancellation fires.
type CancelSignal interface {
	Fired() <-chan struct{}
	IsFired() bool
}

// ProcessRegistrar receives the running process so an external
// canceller can terminate it.
type ProcessRegistrar interface {
	Register(cmd *exec.Cmd)
	Unregister(cmd *exec.Cmd)
}

// Spec describes one subprocess invocation.
type Spec struct {
	Command    []string // argv, Command[0] is the executable path
	Env        []string // appended to the inherited environment when set
	StdoutMode StdoutMode
	OnLine     func(line string) // required in LineStream mode
	Registrar  ProcessRegistrar  // optional
	Cancel     CancelSignal      // optional
}

// Result is the outcome of a subprocess run.
type Result struct {
	ExitCode  int
	Stderr    []byte
	Cancelled bool
}

// Runner spawns ffmpeg/ffprobe subprocesses.
type Runner struct{}

// NewRunner creates a subprocess runner.
func NewRunner() *Runner { return &Runner{} }

// Run executes the spec. A fired cancel signal (or cancelled context)
// terminates the process gracefully, waits up to 1.5 s and then
// force-kills; the returned error is models.ErrCancelled in that case.
// A non-zero exit is not an error here; callers check Result.ExitCode.
func (r *Runner) Run(ctx context.Context, spec Spec) (*Result, error) {
	if len(spec.Command) == 0 {
		return nil, models.InputInvalid("empty command")
	}
	if spec.Cancel != nil && spec.Cancel.IsFired() {
		return &Result{ExitCode: -1, Cancelled: true}, models.ErrCancelled
	}

	cmd := exec.Command(spec.Command[0], spec.Command[1:]...)
	if len(spec.Env) > 0 {
		cmd.Env = append(cmd.Environ(), spec.Env...)
	}
	hideWindow(cmd)

	stderr := newTailBuffer(stderrCaptureLimit)
	cmd.Stderr = stderr

	var stdoutDone chan struct{}
	if spec.StdoutMode == LineStream {
		if spec.OnLine == nil {
			return nil, models.InputInvalid("LineStream mode requires OnLine")
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, fmt.Errorf("stdout pipe: %w", err)
		}
		stdoutDone = make(chan struct{})
		go func() {
			defer close(stdoutDone)
			scanner := bufio.NewScanner(stdout)
			scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
			for scanner.Scan() {
				spec.OnLine(scanner.Text())
			}
		}()
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", spec.Command[0], err)
	}

	if spec.Registrar != nil {
		spec.Registrar.Register(cmd)
		defer spec.Registrar.Unregister(cmd)
	}

	waitDone := make(chan error, 1)
	go func() {
		if stdoutDone != nil {
			<-stdoutDone
		}
		waitDone <- cmd.Wait()
	}()

	var cancelCh <-chan struct{}
	if spec.Cancel != nil {
		cancelCh = spec.Cancel.Fired()
	}

	select {
	case err := <-waitDone:
		return finish(cmd, stderr, err, false)
	case <-cancelCh:
	case <-ctx.Done():
	}

	// Cancellation path: graceful termination, bounded wait, force kill.
	terminate(cmd)
	select {
	case <-waitDone:
	case <-time.After(killGrace):
		_ = cmd.Process.Kill()
		<-waitDone
	}
	res, _ := finish(cmd, stderr, nil, true)
	return res, models.ErrCancelled
}

func finish(cmd *exec.Cmd, stderr *tailBuffer, waitErr error, cancelled bool) (*Result, error) {
	res := &Result{
		ExitCode:  -1,
		Stderr:    stderr.Bytes(),
		Cancelled: cancelled,
	}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}
	if waitErr != nil {
		if _, ok := waitErr.(*exec.ExitError); !ok {
			return res, fmt.Errorf("waiting for %s: %w", cmd.Path, waitErr)
		}
	}
	return res, nil
}

// tailBuffer keeps the last limit bytes written to it. ffmpeg puts
// the useful diagnostics at the end of stderr.
type tailBuffer struct {
	limit int
	buf   []byte
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.limit {
		t.buf = t.buf[len(t.buf)-t.limit:]
	}
	return len(p), nil
}

func (t *tailBuffer) Bytes() []byte { return t.buf }

// ParseProgressLine interprets one line of ffmpeg's -progress pipe:1
// stream. It returns elapsed output time when the line carries
// out_time_ms, and end=true on the final progress=end marker.
func ParseProgressLine(line string) (elapsed time.Duration, end bool, ok bool) {
	line = strings.TrimSpace(line)
	if v, found := strings.CutPrefix(line, "out_time_ms="); found {
		us, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil || us < 0 {
			return 0, false, false
		}
		// out_time_ms is microseconds despite the name
		return time.Duration(us) * time.Microsecond, false, true
	}
	if v, found := strings.CutPrefix(line, "progress="); found {
		return 0, strings.TrimSpace(v) == "end", true
	}
	return 0, false, false
}

// ProgressPercent converts elapsed output time to a 0..99 percentage
// of total. 100 is only ever reported once progress=end is seen, so
// the cap here is 99.
func ProgressPercent(elapsed, total time.Duration) int {
	if total <= 0 {
		return 0
	}
	pct := int(float64(elapsed) / float64(total) * 100)
	if pct < 0 {
		pct = 0
	}
	if pct > 99 {
		pct = 99
	}
	return pct
}
