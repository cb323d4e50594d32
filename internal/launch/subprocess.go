package launch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/gogins/csound-ac/internal/events"
	"github.com/gogins/csound-ac/internal/log"
)

// Subprocess runs requests as background processes whose combined output is
// appended to a log file.
type Subprocess struct {
	logPath  string
	registry *Registry
	events   events.Publisher
	stream   io.Writer
	detach   bool
}

// SubprocessOption configures a Subprocess launcher.
type SubprocessOption func(*Subprocess)

// WithRegistry records running launches in r.
func WithRegistry(r *Registry) SubprocessOption {
	return func(s *Subprocess) { s.registry = r }
}

// WithPublisher sends launch.output and launch.exited events to p.
func WithPublisher(p events.Publisher) SubprocessOption {
	return func(s *Subprocess) { s.events = p }
}

// WithStream copies cleaned output to w as well as the log file.
func WithStream(w io.Writer) SubprocessOption {
	return func(s *Subprocess) { s.stream = w }
}

// WithDetach makes the child write straight into the log file and releases
// it after start, so the caller may exit while it keeps running.
func WithDetach() SubprocessOption {
	return func(s *Subprocess) { s.detach = true }
}

// NewSubprocess creates a launcher appending output to logPath.
func NewSubprocess(logPath string, opts ...SubprocessOption) *Subprocess {
	s := &Subprocess{
		logPath: logPath,
		events:  events.Discard,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LogPath returns the file output is appended to.
func (s *Subprocess) LogPath() string {
	return s.logPath
}

func (s *Subprocess) Launch(ctx context.Context, req *Request) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	argv := req.Argv()

	logFile, err := OpenLog(s.logPath)
	if err != nil {
		return nil, err
	}

	// Not CommandContext: a launch outlives the request that started it.
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = req.WorkingDir
	setProcessGroup(cmd)

	h := newHandle(req, argv)
	logger := log.WithLaunch(h.ID).With("action", req.ActionID)

	if s.detach {
		return s.startDetached(cmd, h, logFile, logger)
	}

	// Output copying starts inside cmd.Start; hold it until the pid is known.
	ready := make(chan struct{})
	sink := NewOutputSink(logFile, func(chunk []byte) {
		<-ready
		if s.stream != nil {
			_, _ = s.stream.Write(chunk)
		}
		s.events.Publish(events.TypeLaunchOutput, OutputEvent{
			LaunchID: h.ID,
			PID:      h.PID,
			ActionID: h.ActionID,
			Text:     string(chunk),
		})
	})
	cmd.Stdout = sink
	cmd.Stderr = sink

	logger.Debug("starting subprocess", "argv", argv, "dir", cmd.Dir)
	if err := cmd.Start(); err != nil {
		_ = logFile.Close()
		return nil, fmt.Errorf("start process: %w", err)
	}
	h.started(cmd.Process)
	close(ready)
	if s.registry != nil {
		s.registry.Add(h)
	}
	_, _ = fmt.Fprintf(sink, "Playpen is running (pid %d)\n", h.PID)
	logger.Info("subprocess started", "pid", h.PID)

	go func() {
		waitErr := cmd.Wait()
		if err := sink.Flush(); err != nil {
			logger.Warn("failed to flush output", "error", err)
		}
		if err := logFile.Close(); err != nil {
			logger.Warn("failed to close output log", "error", err)
		}
		if s.registry != nil {
			s.registry.Remove(h)
		}
		h.finish(waitErr)

		code, _ := h.Exited()
		ev := ExitEvent{LaunchID: h.ID, PID: h.PID, ActionID: h.ActionID, ExitCode: code}
		if code != 0 {
			logger.Warn("subprocess exited with non-zero status", "pid", h.PID, "exit_code", code)
			if waitErr != nil {
				ev.Error = waitErr.Error()
			}
		} else {
			logger.Info("subprocess exited", "pid", h.PID)
		}
		s.events.Publish(events.TypeLaunchExited, ev)
	}()

	return h, nil
}

func (s *Subprocess) startDetached(cmd *exec.Cmd, h *Handle, logFile *os.File, logger *slog.Logger) (*Handle, error) {
	defer logFile.Close()

	cmd.Stdout = logFile
	cmd.Stderr = logFile
	logger.Debug("starting detached subprocess", "argv", h.Argv, "dir", cmd.Dir)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start process: %w", err)
	}
	h.started(cmd.Process)
	h.Detached = true
	_, _ = fmt.Fprintf(logFile, "Playpen is running (pid %d)\n", h.PID)

	if err := cmd.Process.Release(); err != nil {
		return nil, fmt.Errorf("release process: %w", err)
	}
	logger.Info("subprocess started (detached)", "pid", h.PID)
	return h, nil
}

// OpenLog opens path for appending, creating it and its directory if needed.
func OpenLog(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create output log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open output log: %w", err)
	}
	return f, nil
}
