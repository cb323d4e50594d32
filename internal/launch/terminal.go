package launch

import (
	"context"
	"fmt"
	"os/exec"

	"al.essio.dev/pkg/shellescape"

	"github.com/gogins/csound-ac/internal/events"
	"github.com/gogins/csound-ac/internal/log"
)

// DefaultTerminal is the emulator command used when none is configured.
const DefaultTerminal = "x-terminal-emulator -e"

// Terminal runs requests inside a new terminal emulator window whose shell
// starts in the document's directory. Output stays in that window.
type Terminal struct {
	command  []string
	events   events.Publisher
	registry *Registry
}

// TerminalOption configures a Terminal launcher.
type TerminalOption func(*Terminal)

// WithTerminalRegistry records running emulators in r until they exit.
func WithTerminalRegistry(r *Registry) TerminalOption {
	return func(t *Terminal) { t.registry = r }
}

// NewTerminal parses the emulator command line, e.g. "gnome-terminal --".
// The shell script is appended as trailing arguments.
func NewTerminal(command string, p events.Publisher, opts ...TerminalOption) (*Terminal, error) {
	if command == "" {
		command = DefaultTerminal
	}
	argv, err := ParseCommand(command)
	if err != nil {
		return nil, fmt.Errorf("terminal command: %w", err)
	}
	if p == nil {
		p = events.Discard
	}
	t := &Terminal{command: argv, events: p}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Script returns the shell script the terminal runs: change into the
// working directory, run the command, then stay interactive.
func Script(req *Request) string {
	return fmt.Sprintf("cd %s && %s; exec \"${SHELL:-/bin/sh}\"",
		shellescape.Quote(req.WorkingDir), shellescape.QuoteCommand(req.Argv()))
}

// Argv returns the full emulator command line for req.
func (t *Terminal) Argv(req *Request) []string {
	argv := make([]string, 0, len(t.command)+3)
	argv = append(argv, t.command...)
	return append(argv, "sh", "-c", Script(req))
}

func (t *Terminal) Launch(ctx context.Context, req *Request) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	argv := t.Argv(req)

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = req.WorkingDir
	setProcessGroup(cmd)

	h := newHandle(req, argv)
	logger := log.WithLaunch(h.ID).With("action", req.ActionID)

	logger.Debug("starting terminal", "argv", argv, "dir", cmd.Dir)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start terminal: %w", err)
	}
	h.started(cmd.Process)
	logger.Info("terminal started", "pid", h.PID)
	if t.registry != nil {
		t.registry.Add(h)
	}

	// Reap the emulator; its window lifetime is up to the user.
	go func() {
		waitErr := cmd.Wait()
		if t.registry != nil {
			t.registry.Remove(h)
		}
		h.finish(waitErr)
		code, _ := h.Exited()
		ev := ExitEvent{LaunchID: h.ID, PID: h.PID, ActionID: h.ActionID, ExitCode: code}
		if waitErr != nil {
			ev.Error = waitErr.Error()
		}
		logger.Debug("terminal exited", "pid", h.PID, "exit_code", code)
		t.events.Publish(events.TypeLaunchExited, ev)
	}()

	return h, nil
}
