package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gogins/csound-ac/internal/action"
	"github.com/gogins/csound-ac/internal/dispatch"
	"github.com/gogins/csound-ac/internal/journal"
	"github.com/gogins/csound-ac/internal/launch"
	"github.com/gogins/csound-ac/internal/log"
)

const interruptGrace = 2 * time.Second

func runRun(args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	modeFlag := fs.String("mode", "", "Launch mode: subprocess or terminal (default from config)")
	wait := fs.Bool("wait", false, "Stay attached and exit with the script's exit code")
	dryRun := fs.Bool("dry-run", false, "Print the command line without launching")

	flags, positionals := splitFlagsAndPositionals(args, map[string]bool{
		"--config": true, "-config": true,
		"--mode": true, "-mode": true,
	})
	if err := fs.Parse(flags); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}
	if len(positionals) < 1 || len(positionals) > 2 {
		fmt.Fprintln(os.Stderr, "Usage: playpen run <action> <document> [--mode subprocess|terminal] [--wait] [--dry-run]")
		return 1
	}
	name := positionals[0]
	document := ""
	if len(positionals) == 2 {
		document = positionals[1]
	}

	mode, err := launch.ParseMode(*modeFlag, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to run %s: %v\n", name, err)
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := sessionOptions{detach: true}
	switch {
	case *dryRun:
		opts = sessionOptions{noJournal: true}
	case *wait:
		opts = sessionOptions{
			stream:   os.Stdout,
			recorder: func(j *journal.Journal) dispatch.Recorder { return untrackedRecorder{j} },
		}
	}

	sess, err := newSession(ctx, cfg, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to run %s: %v\n", name, err)
		return 1
	}
	defer sess.Close()

	if *dryRun {
		return printDryRun(sess.dispatcher, name, document, mode)
	}

	res, err := sess.dispatcher.Invoke(ctx, dispatch.Invocation{
		ActionID:     name,
		DocumentPath: document,
		Mode:         mode,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to run %s: %v\n", name, err)
		return 1
	}

	if res.URL != "" {
		fmt.Printf("Opened %s\n", res.URL)
		return 0
	}

	h := res.Handle
	if !*wait {
		fmt.Fprintf(os.Stderr, "Started %s (pid %d), output in %s\n", res.Action.ID, h.PID, outputDestination(cfg.Output.LogPath, res.Request.Mode))
		return 0
	}

	return waitForLaunch(ctx, sess, h)
}

// waitForLaunch blocks until h exits, records the exit and returns the
// script's exit code. An interrupt stops the launch.
func waitForLaunch(ctx context.Context, sess *session, h *launch.Handle) int {
	logger := log.WithLaunch(h.ID)

	code, err := h.Wait(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Info("interrupted, stopping launch", "pid", h.PID)
		if termErr := h.Terminate(interruptGrace); termErr != nil && !errors.Is(termErr, launch.ErrNotRunning) {
			logger.Warn("failed to stop launch", "pid", h.PID, "error", termErr)
		}
		code, err = h.Wait(context.Background())
		if err == nil {
			err = errors.New("interrupted")
		}
	}

	if sess.journal != nil {
		exitErr := err
		if exitErr == nil && code != 0 {
			exitErr = fmt.Errorf("exit status %d", code)
		}
		if markErr := sess.journal.MarkExited(context.Background(), h.ID, code, exitErr); markErr != nil {
			logger.Warn("failed to record exit", "error", markErr)
		}
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Launch %s failed: %v\n", h.ActionID, err)
		if code == 0 {
			code = 1
		}
	}
	return code
}

func printDryRun(d *dispatch.Dispatcher, name, document string, mode launch.Mode) int {
	a, err := d.Lookup(name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to run %s: %v\n", name, err)
		return 1
	}
	if a.Kind == action.KindURL {
		fmt.Printf("open %s\n", a.ResolvedURL())
		return 0
	}

	req, err := d.Resolve(a.ID, document, mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to run %s: %v\n", name, err)
		return 1
	}
	fmt.Printf("cd %s\n", req.WorkingDir)
	fmt.Println(req.String())
	return 0
}

func runOpen(args []string) int {
	fs := flag.NewFlagSet("open", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	flags, positionals := splitFlagsAndPositionals(args, map[string]bool{"--config": true, "-config": true})
	if err := fs.Parse(flags); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}
	if len(positionals) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: playpen open <action>")
		return 1
	}
	name := positionals[0]

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	ctx := context.Background()
	sess, err := newSession(ctx, cfg, sessionOptions{detach: true})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open %s: %v\n", name, err)
		return 1
	}
	defer sess.Close()

	a, err := sess.dispatcher.Lookup(name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open %s: %v\n", name, err)
		return 1
	}
	if a.Kind != action.KindURL {
		fmt.Fprintf(os.Stderr, "Failed to open %s: action runs a script (use 'playpen run %s <document>')\n", a.ID, a.ID)
		return 1
	}

	res, err := sess.dispatcher.Invoke(ctx, dispatch.Invocation{ActionID: a.ID})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open %s: %v\n", a.ID, err)
		return 1
	}
	fmt.Printf("Opened %s\n", res.URL)
	return 0
}

func outputDestination(logPath string, mode launch.Mode) string {
	if mode == launch.ModeTerminal {
		return "a new terminal"
	}
	return logPath
}

// splitFlagsAndPositionals lets flags follow positionals, as editors append
// them after the document path. Everything after "--" is positional.
func splitFlagsAndPositionals(args []string, takesValue map[string]bool) ([]string, []string) {
	flags := make([]string, 0, len(args))
	positionals := make([]string, 0, len(args))

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			positionals = append(positionals, args[i+1:]...)
			break
		}
		if !strings.HasPrefix(arg, "-") || arg == "-" {
			positionals = append(positionals, arg)
			continue
		}

		flags = append(flags, arg)
		if strings.Contains(arg, "=") {
			continue
		}
		if takesValue[arg] && i+1 < len(args) {
			i++
			flags = append(flags, args[i])
		}
	}

	return flags, positionals
}
