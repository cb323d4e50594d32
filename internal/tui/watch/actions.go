package watch

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/gogins/csound-ac/internal/events"
)

// ActionState counts invocations of one action.
type ActionState struct {
	Name     string
	Launches int
	Opens    int
	Failures int
	LastUsed time.Time
}

func updateActionState(actions map[string]*ActionState, e events.Event) {
	var data struct {
		Action   string `json:"action"`
		ExitCode int    `json:"exit_code"`
	}
	if err := json.Unmarshal(e.Data, &data); err != nil || data.Action == "" {
		return
	}

	a, ok := actions[data.Action]
	if !ok {
		a = &ActionState{Name: data.Action}
		actions[data.Action] = a
	}

	switch e.Type {
	case events.TypeLaunchStarted:
		a.Launches++
		a.LastUsed = e.At
	case events.TypeURLOpened:
		a.Opens++
		a.LastUsed = e.At
	case events.TypeLaunchExited:
		if data.ExitCode != 0 {
			a.Failures++
		}
	}
}

func renderActions(actions map[string]*ActionState, theme Theme, width int, now time.Time) string {
	innerWidth := width - 4

	if len(actions) == 0 {
		return theme.Border.Width(innerWidth).Render(lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("ACTIONS"),
			theme.Dim.Render("  No actions invoked yet..."),
		))
	}

	list := make([]*ActionState, 0, len(actions))
	for _, a := range actions {
		list = append(list, a)
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].LastUsed.Equal(list[j].LastUsed) {
			return list[i].LastUsed.After(list[j].LastUsed)
		}
		return list[i].Name < list[j].Name
	})

	lines := []string{theme.Title.Render("ACTIONS")}
	for i, a := range list {
		if i >= 6 {
			break
		}
		failures := theme.Dim.Render("0 failed")
		if a.Failures > 0 {
			failures = theme.StatusFailed.Render(fmt.Sprintf("%d failed", a.Failures))
		}
		lastUsed := "-"
		if !a.LastUsed.IsZero() {
			lastUsed = formatAgo(now.Sub(a.LastUsed))
		}
		lines = append(lines, fmt.Sprintf(" %-24s launched %-3d opened %-3d %s  %s",
			a.Name, a.Launches, a.Opens, failures, theme.Dim.Render(lastUsed)))
	}

	return theme.Border.Width(innerWidth).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}
