package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gogins/csound-ac/internal/action"
	"github.com/gogins/csound-ac/internal/browser"
	"github.com/gogins/csound-ac/internal/events"
	"github.com/gogins/csound-ac/internal/launch"
	"github.com/gogins/csound-ac/internal/log"
)

var (
	ErrUnknownAction    = action.ErrUnknownAction
	ErrNoActiveDocument = launch.ErrNoActiveDocument
	ErrNoLauncher       = errors.New("no launcher for mode")
	ErrNotShellAction   = errors.New("action opens a url and launches nothing")
)

// Dispatcher resolves actions and starts them. It holds no per-invocation
// state, so Invoke may be called from any number of goroutines.
type Dispatcher struct {
	catalog     *action.Catalog
	launchers   map[launch.Mode]launch.Launcher
	opener      browser.Opener
	interpreter []string
	script      string
	defaultMode launch.Mode
	events      events.Publisher
	recorder    Recorder
	logger      *slog.Logger
}

// Recorder keeps a history of invocations. *journal.Journal satisfies it.
type Recorder interface {
	RecordLaunch(ctx context.Context, h *launch.Handle) error
	RecordURL(ctx context.Context, actionID, url string) (string, error)
	RecordFailure(ctx context.Context, actionID, kind, documentPath string, cause error) (string, error)
	Track(h *launch.Handle)
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithInterpreter sets the interpreter argv; default ["python3"].
func WithInterpreter(argv []string) Option {
	return func(d *Dispatcher) {
		if len(argv) > 0 {
			d.interpreter = append([]string(nil), argv...)
		}
	}
}

// WithScript sets the playpen script path.
func WithScript(path string) Option {
	return func(d *Dispatcher) { d.script = path }
}

// WithDefaultMode sets the mode used when an invocation names none.
func WithDefaultMode(m launch.Mode) Option {
	return func(d *Dispatcher) { d.defaultMode = m }
}

// WithPublisher sends launch.started and url.opened events to p.
func WithPublisher(p events.Publisher) Option {
	return func(d *Dispatcher) { d.events = p }
}

// WithRecorder records every invocation, failed or not, in r.
func WithRecorder(r Recorder) Option {
	return func(d *Dispatcher) { d.recorder = r }
}

// New creates a dispatcher. launchers maps each supported mode to the
// launcher that serves it.
func New(catalog *action.Catalog, launchers map[launch.Mode]launch.Launcher, opener browser.Opener, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		catalog:     catalog,
		launchers:   launchers,
		opener:      opener,
		interpreter: []string{"python3"},
		script:      "playpen.py",
		defaultMode: launch.ModeSubprocess,
		events:      events.Discard,
		logger:      log.WithComponent("dispatch"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Invocation names an action and the document it applies to.
type Invocation struct {
	ActionID     string
	DocumentPath string
	Mode         launch.Mode
}

// Result describes what an invocation did. Exactly one of Handle or URL is set.
type Result struct {
	Action  *action.Action
	Request *launch.Request
	Handle  *launch.Handle
	URL     string
}

// Catalog returns the action catalog.
func (d *Dispatcher) Catalog() *action.Catalog {
	return d.catalog
}

// Lookup resolves any spelling of an action name.
func (d *Dispatcher) Lookup(name string) (*action.Action, error) {
	a, ok := d.catalog.Resolve(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, name)
	}
	return a, nil
}

// Resolve builds the launch request for a shell action without starting it.
func (d *Dispatcher) Resolve(actionID, documentPath string, mode launch.Mode) (*launch.Request, error) {
	a, err := d.Lookup(actionID)
	if err != nil {
		return nil, err
	}
	if a.Kind != action.KindShell {
		return nil, fmt.Errorf("%s: %w", a.ID, ErrNotShellAction)
	}
	return d.request(a, documentPath, mode)
}

func (d *Dispatcher) request(a *action.Action, documentPath string, mode launch.Mode) (*launch.Request, error) {
	if mode == "" {
		mode = d.defaultMode
	}
	return launch.NewRequest(a.ID, a.Subcommand, documentPath, d.interpreter, d.script, mode)
}

// Invoke runs one action. Shell actions return once the process has started.
func (d *Dispatcher) Invoke(ctx context.Context, inv Invocation) (*Result, error) {
	a, err := d.Lookup(inv.ActionID)
	if err != nil {
		return nil, err
	}
	logger := d.logger.With("action", a.ID)

	if a.Kind == action.KindURL {
		u := a.ResolvedURL()
		if err := d.opener.Open(ctx, u); err != nil {
			logger.Error("failed to open url", "url", u, "error", err)
			d.recordFailure(ctx, a, "", err)
			return nil, fmt.Errorf("%s: %w", a.ID, err)
		}
		logger.Info("url opened", "url", u)
		d.events.Publish(events.TypeURLOpened, map[string]string{"action": a.ID, "url": u})
		if d.recorder != nil {
			if _, err := d.recorder.RecordURL(ctx, a.ID, u); err != nil {
				logger.Warn("failed to record invocation", "error", err)
			}
		}
		return &Result{Action: a, URL: u}, nil
	}

	req, err := d.request(a, inv.DocumentPath, inv.Mode)
	if err != nil {
		if errors.Is(err, ErrNoActiveDocument) {
			logger.Warn("no active document")
		}
		d.recordFailure(ctx, a, inv.DocumentPath, err)
		return nil, err
	}

	launcher, ok := d.launchers[req.Mode]
	if !ok || launcher == nil {
		err := fmt.Errorf("%w %q", ErrNoLauncher, req.Mode)
		d.recordFailure(ctx, a, req.DocumentPath, err)
		return nil, err
	}

	h, err := launcher.Launch(ctx, req)
	if err != nil {
		logger.Error("launch failed", "document", req.DocumentPath, "error", err)
		d.recordFailure(ctx, a, req.DocumentPath, err)
		return nil, fmt.Errorf("launch %s: %w", a.ID, err)
	}
	logger.Info("launched", "pid", h.PID, "mode", req.Mode, "document", req.DocumentPath)
	d.events.Publish(events.TypeLaunchStarted, h.Info())
	if d.recorder != nil {
		if err := d.recorder.RecordLaunch(ctx, h); err != nil {
			logger.Warn("failed to record invocation", "error", err)
		} else {
			d.recorder.Track(h)
		}
	}

	return &Result{Action: a, Request: req, Handle: h}, nil
}

func (d *Dispatcher) recordFailure(ctx context.Context, a *action.Action, documentPath string, cause error) {
	if d.recorder == nil {
		return
	}
	if _, err := d.recorder.RecordFailure(ctx, a.ID, string(a.Kind), documentPath, cause); err != nil {
		d.logger.Warn("failed to record invocation", "action", a.ID, "error", err)
	}
}
