package watch

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"

	"github.com/gogins/csound-ac/internal/events"
	"github.com/gogins/csound-ac/internal/launch"
)

const maxOutputLines = 500

// LaunchState tracks one launch seen on the event stream.
type LaunchState struct {
	ID        string
	PID       int
	Action    string
	Document  string
	Mode      launch.Mode
	StartedAt time.Time
	EndedAt   time.Time
	Exited    bool
	ExitCode  int
	Error     string

	output  []string
	partial string
}

// Output returns the captured output, newest line last.
func (l *LaunchState) Output() string {
	lines := l.output
	if l.partial != "" {
		lines = append(lines[:len(lines):len(lines)], l.partial)
	}
	return strings.Join(lines, "\n")
}

func (l *LaunchState) appendOutput(text string) {
	text = l.partial + text
	parts := strings.Split(text, "\n")
	l.partial = parts[len(parts)-1]
	l.output = append(l.output, parts[:len(parts)-1]...)
	if over := len(l.output) - maxOutputLines; over > 0 {
		l.output = append([]string(nil), l.output[over:]...)
	}
}

// updateLaunchState applies one event. It reports whether the event
// concerned a launch.
func updateLaunchState(launches map[string]*LaunchState, e events.Event) bool {
	switch e.Type {
	case events.TypeLaunchStarted:
		var info launch.Info
		if err := json.Unmarshal(e.Data, &info); err != nil || info.ID == "" {
			return false
		}
		l := getOrCreateLaunch(launches, info.ID)
		l.PID = info.PID
		l.Action = info.ActionID
		l.Document = info.DocumentPath
		l.Mode = info.Mode
		l.StartedAt = info.StartedAt
		return true

	case events.TypeLaunchOutput:
		var out launch.OutputEvent
		if err := json.Unmarshal(e.Data, &out); err != nil || out.LaunchID == "" {
			return false
		}
		l := getOrCreateLaunch(launches, out.LaunchID)
		if l.PID == 0 {
			l.PID, l.Action = out.PID, out.ActionID
		}
		l.appendOutput(out.Text)
		return true

	case events.TypeLaunchExited:
		var exit launch.ExitEvent
		if err := json.Unmarshal(e.Data, &exit); err != nil || exit.LaunchID == "" {
			return false
		}
		l := getOrCreateLaunch(launches, exit.LaunchID)
		if l.PID == 0 {
			l.PID, l.Action = exit.PID, exit.ActionID
		}
		l.Exited = true
		l.ExitCode = exit.ExitCode
		l.Error = exit.Error
		l.EndedAt = e.At
		return true
	}
	return false
}

func getOrCreateLaunch(launches map[string]*LaunchState, id string) *LaunchState {
	l, ok := launches[id]
	if !ok {
		l = &LaunchState{ID: id}
		launches[id] = l
	}
	return l
}

// sortedLaunches orders launches newest first.
func sortedLaunches(launches map[string]*LaunchState) []*LaunchState {
	out := make([]*LaunchState, 0, len(launches))
	for _, l := range launches {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// pruneFinished drops launches that have exited.
func pruneFinished(launches map[string]*LaunchState) {
	for id, l := range launches {
		if l.Exited {
			delete(launches, id)
		}
	}
}

func launchColumns() []table.Column {
	return []table.Column{
		{Title: "ST", Width: 2},
		{Title: "PID", Width: 8},
		{Title: "Action", Width: 22},
		{Title: "Document", Width: 28},
		{Title: "Mode", Width: 10},
		{Title: "Time", Width: 10},
	}
}

func launchRows(list []*LaunchState, theme Theme, now time.Time) []table.Row {
	rows := make([]table.Row, 0, len(list))
	for _, l := range list {
		rows = append(rows, table.Row{
			statusSymbol(l, theme),
			fmt.Sprintf("%d", l.PID),
			l.Action,
			filepath.Base(l.Document),
			string(l.Mode),
			launchDuration(l, now),
		})
	}
	return rows
}

func statusSymbol(l *LaunchState, theme Theme) string {
	switch {
	case !l.Exited:
		return theme.StatusRunning.Render("◉")
	case l.ExitCode == 0:
		return theme.StatusOK.Render("●")
	default:
		return theme.StatusFailed.Render("∅")
	}
}

func launchDuration(l *LaunchState, now time.Time) string {
	if l.StartedAt.IsZero() {
		return "-"
	}
	end := now
	if l.Exited && !l.EndedAt.IsZero() {
		end = l.EndedAt
	}
	return formatDuration(end.Sub(l.StartedAt))
}
