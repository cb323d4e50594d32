package watch

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/gogins/csound-ac/internal/events"
)

const maxEventLog = 50

func renderEventStream(eventLog []events.Event, theme Theme, width int) string {
	innerWidth := width - 4

	if len(eventLog) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("EVENT STREAM"),
			theme.Dim.Render("  Waiting for events..."),
		)
		return theme.Border.Width(innerWidth).Render(content)
	}

	var lines []string
	for i, e := range eventLog {
		if i >= 8 {
			break
		}
		lines = append(lines, formatEvent(e, theme))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("EVENT STREAM"),
		lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n")),
	)
	return theme.Border.Width(innerWidth).Render(content)
}

func formatEvent(e events.Event, theme Theme) string {
	ts := theme.Dim.Render(e.At.Local().Format("15:04:05"))

	var typeStyle lipgloss.Style
	switch e.Type {
	case events.TypeLaunchStarted:
		typeStyle = theme.StatusRunning
	case events.TypeLaunchExited:
		typeStyle = theme.StatusOK
		if exitFailed(e) {
			typeStyle = theme.StatusFailed
		}
	case events.TypeURLOpened:
		typeStyle = theme.Highlight
	default:
		typeStyle = theme.Dim
	}

	return fmt.Sprintf("%s %s %s", ts, typeStyle.Render(fmt.Sprintf("%-16s", e.Type)), extractEventDesc(e))
}

func exitFailed(e events.Event) bool {
	var data struct {
		ExitCode int `json:"exit_code"`
	}
	_ = json.Unmarshal(e.Data, &data)
	return data.ExitCode != 0
}

func extractEventDesc(e events.Event) string {
	data := make(map[string]any)
	_ = json.Unmarshal(e.Data, &data)

	var parts []string
	if pid, ok := data["pid"].(float64); ok && pid > 0 {
		parts = append(parts, fmt.Sprintf("[%d]", int(pid)))
	}
	if a, ok := data["action"].(string); ok {
		parts = append(parts, a)
	}
	if doc, ok := data["document"].(string); ok && doc != "" {
		parts = append(parts, filepath.Base(doc))
	}
	if u, ok := data["url"].(string); ok {
		parts = append(parts, u)
	}
	if e.Type == events.TypeLaunchExited {
		if code, ok := data["exit_code"].(float64); ok {
			parts = append(parts, fmt.Sprintf("exit %d", int(code)))
		}
	}

	if len(parts) == 0 {
		raw := string(e.Data)
		if len(raw) > 60 {
			raw = raw[:60] + "..."
		}
		return raw
	}
	return strings.Join(parts, " ")
}
