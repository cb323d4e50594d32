package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"

	"github.com/gogins/csound-ac/internal/action"
	"github.com/gogins/csound-ac/internal/browser"
	"github.com/gogins/csound-ac/internal/config"
	"github.com/gogins/csound-ac/internal/dispatch"
	"github.com/gogins/csound-ac/internal/events"
	"github.com/gogins/csound-ac/internal/journal"
	"github.com/gogins/csound-ac/internal/launch"
	"github.com/gogins/csound-ac/internal/log"
	"github.com/gogins/csound-ac/internal/storage"
)

// sessionOptions selects how launches started by one command behave.
type sessionOptions struct {
	// detach releases subprocesses after start so the CLI may exit.
	detach bool
	// stream receives attached subprocess output besides the log.
	stream io.Writer
	// registry tracks running launches; nil when nobody lists them.
	registry *launch.Registry
	// publisher receives launch and url events.
	publisher events.Publisher
	// recorder overrides the journal as the dispatcher's recorder.
	recorder func(*journal.Journal) dispatch.Recorder
	// noJournal skips the state database entirely.
	noJournal bool
}

// session is everything one command needs to invoke actions.
type session struct {
	cfg        *config.Config
	db         *sql.DB
	journal    *journal.Journal
	dispatcher *dispatch.Dispatcher
}

// newSession builds the dispatcher for cfg. The journal is opened when the
// state database is reachable; without it invocations still run, unrecorded.
func newSession(ctx context.Context, cfg *config.Config, opts sessionOptions) (*session, error) {
	logger := log.WithComponent("main")

	catalog, err := action.Load(cfg.Actions)
	if err != nil {
		return nil, fmt.Errorf("load actions: %w", err)
	}
	interpreter, err := launch.ParseCommand(cfg.Interpreter)
	if err != nil {
		return nil, fmt.Errorf("interpreter: %w", err)
	}
	defaultMode, err := launch.ParseMode(cfg.Launch.Mode, launch.ModeSubprocess)
	if err != nil {
		return nil, fmt.Errorf("launch.mode: %w", err)
	}

	publisher := opts.publisher
	if publisher == nil {
		publisher = events.Discard
	}

	subOpts := []launch.SubprocessOption{launch.WithPublisher(publisher)}
	if opts.registry != nil {
		subOpts = append(subOpts, launch.WithRegistry(opts.registry))
	}
	if opts.stream != nil {
		subOpts = append(subOpts, launch.WithStream(opts.stream))
	}
	if opts.detach {
		subOpts = append(subOpts, launch.WithDetach())
	}
	launchers := map[launch.Mode]launch.Launcher{
		launch.ModeSubprocess: launch.NewSubprocess(cfg.Output.LogPath, subOpts...),
	}
	var termOpts []launch.TerminalOption
	if opts.registry != nil {
		termOpts = append(termOpts, launch.WithTerminalRegistry(opts.registry))
	}
	if term, err := launch.NewTerminal(cfg.Launch.Terminal, publisher, termOpts...); err != nil {
		logger.Warn("terminal mode unavailable", "terminal", cfg.Launch.Terminal, "error", err)
	} else {
		launchers[launch.ModeTerminal] = term
	}

	rt := &session{cfg: cfg}
	dispatchOpts := []dispatch.Option{
		dispatch.WithInterpreter(interpreter),
		dispatch.WithScript(cfg.Script),
		dispatch.WithDefaultMode(defaultMode),
		dispatch.WithPublisher(publisher),
	}

	if opts.noJournal {
		rt.dispatcher = dispatch.New(catalog, launchers, browser.NewSystem(), dispatchOpts...)
		return rt, nil
	}

	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		logger.Warn("launch journal unavailable", "path", cfg.State.Path, "error", err)
	} else {
		rt.db = db
		rt.journal = journal.New(db)
		var rec dispatch.Recorder = rt.journal
		if opts.recorder != nil {
			rec = opts.recorder(rt.journal)
		}
		dispatchOpts = append(dispatchOpts, dispatch.WithRecorder(rec))
	}

	rt.dispatcher = dispatch.New(catalog, launchers, browser.NewSystem(), dispatchOpts...)
	return rt, nil
}

// Close releases the state database.
func (r *session) Close() {
	if r.db != nil {
		_ = r.db.Close()
	}
}

// untrackedRecorder records invocations but leaves exit bookkeeping to the
// caller, which waits for the launch itself.
type untrackedRecorder struct {
	*journal.Journal
}

func (untrackedRecorder) Track(*launch.Handle) {}
