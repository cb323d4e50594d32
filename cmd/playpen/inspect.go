package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/nxadm/tail"

	"github.com/gogins/csound-ac/internal/action"
	"github.com/gogins/csound-ac/internal/journal"
	"github.com/gogins/csound-ac/internal/storage"
)

func runActionList(args []string) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	jsonOut := fs.Bool("json", false, "Output in structured JSON format")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	catalog, err := action.Load(cfg.Actions)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load actions: %v\n", err)
		return 1
	}
	actions := catalog.All()

	if *jsonOut {
		data, err := json.MarshalIndent(actions, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	width := len("ACTION")
	for _, a := range actions {
		width = max(width, len(a.ID))
	}

	bold := color.New(color.Bold)
	cyan := color.New(color.FgCyan)
	faint := color.New(color.Faint)

	bold.Printf("%-*s  %-5s  %s\n", width, "ACTION", "KIND", "DESCRIPTION")
	for _, a := range actions {
		kind := cyan.Sprintf("%-5s", a.Kind)
		desc := a.Description
		if a.Kind == action.KindURL {
			desc = strings.TrimSpace(desc + " " + faint.Sprint(a.ResolvedURL()))
		}
		fmt.Printf("%-*s  %s  %s\n", width, a.ID, kind, desc)
		if len(a.Aliases) > 0 {
			faint.Printf("%-*s  %-5s  aliases: %s\n", width, "", "", strings.Join(a.Aliases, ", "))
		}
	}
	return 0
}

func runHistory(args []string) int {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	limit := fs.Int("limit", journal.DefaultLimit, "Maximum entries to show")
	actionFilter := fs.String("action", "", "Only show invocations of this action")
	jsonOut := fs.Bool("json", false, "Output in structured JSON format")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}
	if *limit <= 0 {
		fmt.Fprintln(os.Stderr, "--limit must be positive")
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	filter := *actionFilter
	if filter != "" {
		if catalog, err := action.Load(cfg.Actions); err == nil {
			if a, ok := catalog.Resolve(filter); ok {
				filter = a.ID
			}
		}
	}

	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		return 1
	}
	defer db.Close()

	entries, err := journal.New(db).Recent(ctx, *limit, filter)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read history: %v\n", err)
		return 1
	}

	if *jsonOut {
		if entries == nil {
			entries = []journal.Entry{}
		}
		data, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	if len(entries) == 0 {
		fmt.Println("No invocations recorded.")
		return 0
	}
	for _, e := range entries {
		fmt.Println(formatHistoryEntry(e))
	}
	return 0
}

func formatHistoryEntry(e journal.Entry) string {
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)

	var status string
	switch {
	case e.Error != nil:
		status = red.Sprint("failed")
	case e.Kind == journal.KindURL:
		status = green.Sprint("opened")
	case e.Running():
		status = yellow.Sprint("running")
	case e.ExitCode != nil && *e.ExitCode != 0:
		status = red.Sprintf("exit %d", *e.ExitCode)
	default:
		status = green.Sprint("ok")
	}

	target := e.DocumentPath
	if e.Kind == journal.KindURL {
		target = e.URL
	}
	line := fmt.Sprintf("%s  %-22s %-8s %s", e.StartedAt.Local().Format(time.DateTime), e.ActionID, status, target)
	if e.Error != nil {
		line += "\n    " + red.Sprint(*e.Error)
	}
	return line
}

func runLogs(args []string) int {
	fs := flag.NewFlagSet("logs", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	follow := fs.Bool("follow", false, "Keep printing as the log grows")
	fs.BoolVar(follow, "f", false, "Keep printing as the log grows")
	lines := fs.Int("n", 40, "Number of trailing lines to start from (0 for all)")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := tailLog(ctx, cfg.Output.LogPath, *lines, *follow, os.Stdout); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "No output log yet at %s\n", cfg.Output.LogPath)
			return 1
		}
		fmt.Fprintf(os.Stderr, "Failed to read log: %v\n", err)
		return 1
	}
	return 0
}

// tailLog copies the last n lines of path to w, then keeps copying new lines
// until ctx ends when follow is set.
func tailLog(ctx context.Context, path string, n int, follow bool, w io.Writer) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	offset, err := lastLinesOffset(path, n)
	if err != nil {
		return err
	}

	t, err := tail.TailFile(path, tail.Config{
		Location:  &tail.SeekInfo{Offset: offset, Whence: io.SeekStart},
		Follow:    follow,
		ReOpen:    follow,
		MustExist: true,
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return err
	}
	defer func() { _ = t.Stop() }()

	out := bufio.NewWriter(w)
	defer out.Flush()
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-t.Lines:
			if !ok || line == nil {
				return nil
			}
			if line.Err != nil {
				return line.Err
			}
			fmt.Fprintln(out, line.Text)
			if len(t.Lines) == 0 {
				if err := out.Flush(); err != nil {
					return err
				}
			}
		}
	}
}

// lastLinesOffset returns the byte offset where the last n lines of path
// begin. n <= 0 means the whole file.
func lastLinesOffset(path string, n int) (int64, error) {
	if n <= 0 {
		return 0, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	size := info.Size()
	if size == 0 {
		return 0, nil
	}

	const chunk = 8192
	buf := make([]byte, chunk)
	pos := size
	newlines := 0
	// A trailing newline ends the last line rather than starting a new one.
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, size-1); err != nil {
		return 0, err
	}
	if last[0] == '\n' {
		pos = size - 1
	}

	for pos > 0 {
		readSize := int64(chunk)
		if pos < readSize {
			readSize = pos
		}
		pos -= readSize
		if _, err := f.ReadAt(buf[:readSize], pos); err != nil {
			return 0, err
		}
		for i := readSize - 1; i >= 0; i-- {
			if buf[i] == '\n' {
				newlines++
				if newlines == n {
					return pos + i + 1, nil
				}
			}
		}
	}
	return 0, nil
}
