package launch

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
)

//go:generate mockgen -destination=../dispatch/mocks/mock_launcher.go -package=mocks github.com/gogins/csound-ac/internal/launch Launcher

// Launcher starts the process for one request. It returns once the process
// has started; it never waits for the process to finish.
type Launcher interface {
	Launch(ctx context.Context, req *Request) (*Handle, error)
}

// terminationGracePeriod is the time we wait after SIGTERM before sending SIGKILL.
const terminationGracePeriod = 5 * time.Second

var (
	// ErrDetached is returned when waiting on a process that was released.
	ErrDetached = errors.New("process is detached")
	// ErrNotRunning is returned when signalling a pid that is not registered.
	ErrNotRunning = errors.New("no running launch with that pid")
)

// Handle tracks one started process.
type Handle struct {
	ID           string
	PID          int
	ActionID     string
	DocumentPath string
	WorkingDir   string
	Mode         Mode
	Argv         []string
	StartedAt    time.Time
	Detached     bool

	done chan struct{}

	mu       sync.Mutex
	exitCode int
	exitErr  error
	exitedAt time.Time
}

func newHandle(req *Request, argv []string) *Handle {
	return &Handle{
		ID:           uuid.NewString(),
		ActionID:     req.ActionID,
		DocumentPath: req.DocumentPath,
		WorkingDir:   req.WorkingDir,
		Mode:         req.Mode,
		Argv:         argv,
		done:         make(chan struct{}),
	}
}

func (h *Handle) started(p *os.Process) {
	h.PID = p.Pid
	h.StartedAt = time.Now().UTC()
}

func (h *Handle) finish(err error) {
	code := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		} else {
			code = -1
		}
	}

	h.mu.Lock()
	h.exitCode = code
	h.exitErr = err
	h.exitedAt = time.Now().UTC()
	h.mu.Unlock()
	close(h.done)
}

// Done is closed once the process has exited. It is never closed for a
// detached handle.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the process exits or ctx ends and returns the exit code.
// A non-zero exit is reported through the code, not the error.
func (h *Handle) Wait(ctx context.Context) (int, error) {
	if h.Detached {
		return 0, ErrDetached
	}
	select {
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		var exitErr *exec.ExitError
		if h.exitErr != nil && !errors.As(h.exitErr, &exitErr) {
			return h.exitCode, h.exitErr
		}
		return h.exitCode, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Exited reports the exit code and whether the process has exited.
func (h *Handle) Exited() (int, bool) {
	select {
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.exitCode, true
	default:
		return 0, false
	}
}

// Signal delivers sig to the process group of the launch.
func (h *Handle) Signal(sig os.Signal) error {
	return signalProcess(h.PID, sig)
}

// Terminate sends SIGTERM, then SIGKILL if the process outlives grace.
func (h *Handle) Terminate(grace time.Duration) error {
	if grace <= 0 {
		grace = terminationGracePeriod
	}
	if err := h.Signal(syscall.SIGTERM); err != nil {
		return err
	}
	if h.Detached {
		return nil
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-h.done:
		return nil
	case <-timer.C:
		return h.Signal(os.Kill)
	}
}

// Info is a JSON-friendly snapshot of a handle.
type Info struct {
	ID           string     `json:"id"`
	PID          int        `json:"pid"`
	ActionID     string     `json:"action"`
	DocumentPath string     `json:"document"`
	WorkingDir   string     `json:"working_dir"`
	Mode         Mode       `json:"mode"`
	Argv         []string   `json:"argv"`
	StartedAt    time.Time  `json:"started_at"`
	Detached     bool       `json:"detached,omitempty"`
	Running      bool       `json:"running"`
	ExitCode     *int       `json:"exit_code,omitempty"`
	ExitedAt     *time.Time `json:"exited_at,omitempty"`
}

func (h *Handle) Info() Info {
	info := Info{
		ID:           h.ID,
		PID:          h.PID,
		ActionID:     h.ActionID,
		DocumentPath: h.DocumentPath,
		WorkingDir:   h.WorkingDir,
		Mode:         h.Mode,
		Argv:         h.Argv,
		StartedAt:    h.StartedAt,
		Detached:     h.Detached,
		Running:      !h.Detached,
	}
	if code, ok := h.Exited(); ok {
		h.mu.Lock()
		at := h.exitedAt
		h.mu.Unlock()
		info.Running = false
		info.ExitCode = &code
		info.ExitedAt = &at
	}
	return info
}

// OutputEvent is the payload of a launch.output event.
type OutputEvent struct {
	LaunchID string `json:"launch_id"`
	PID      int    `json:"pid"`
	ActionID string `json:"action"`
	Text     string `json:"text"`
}

// ExitEvent is the payload of a launch.exited event.
type ExitEvent struct {
	LaunchID string `json:"launch_id"`
	PID      int    `json:"pid"`
	ActionID string `json:"action"`
	ExitCode int    `json:"exit_code"`
	Error    string `json:"error,omitempty"`
}
