package watch

import (
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/gogins/csound-ac/internal/events"
)

// Model is the main BubbleTea model for the watch TUI.
type Model struct {
	client *client

	width  int
	height int

	health   HealthState
	launches map[string]*LaunchState
	actions  map[string]*ActionState
	eventLog []events.Event

	ticker   Ticker
	activity Activity
	theme    Theme
	now      func() time.Time

	table  table.Model
	output viewport.Model

	hubEvents chan events.Event
	lastError string
}

// New creates a new watch TUI model.
func New(apiURL, apiKey string) *Model {
	theme := NewDefaultTheme()

	t := table.New(
		table.WithColumns(launchColumns()),
		table.WithFocused(true),
		table.WithHeight(8),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	return &Model{
		client:    newClient(apiURL, apiKey),
		launches:  make(map[string]*LaunchState),
		actions:   make(map[string]*ActionState),
		hubEvents: make(chan events.Event, 256),
		ticker:    NewTicker(),
		theme:     theme,
		now:       time.Now,
		table:     t,
		output:    viewport.New(80, 10),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.client.subscribe(m.hubEvents),
		receiveNextEvent(m.hubEvents),
		m.client.fetchHealth,
		tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) }),
		tea.EnterAltScreen,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "x":
			if l := m.selected(); l != nil && !l.Exited && l.PID > 0 {
				return m, m.client.stop(l.PID)
			}
			return m, nil
		case "c":
			pruneFinished(m.launches)
			m.refresh()
			return m, nil
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.output, cmd = m.output.Update(msg)
			return m, cmd
		}
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		m.refreshOutput()
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetWidth(max(m.width-6, 20))
		m.output.Width = max(m.width-6, 20)
		m.output.Height = max(m.height/4, 3)
		m.refreshOutput()

	case tickMsg:
		m.ticker.Tick()
		m.activity.Decay(m.now())
		m.refresh()
		return m, tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })

	case eventMsg:
		e := events.Event(msg)
		m.applyEvent(e)
		m.health.Connected = true
		m.lastError = ""
		return m, receiveNextEvent(m.hubEvents)

	case healthMsg:
		m.health = HealthState(msg)
		m.health.Connected = true
		m.lastError = ""
		return m, tea.Tick(5*time.Second, func(time.Time) tea.Msg { return m.client.fetchHealth() })

	case stoppedMsg:
		m.lastError = fmt.Sprintf("stopping pid %d", msg.pid)

	case sseDisconnectedMsg:
		m.health.Connected = false
		m.lastError = "SSE disconnected, reconnecting..."
		return m, tea.Tick(3*time.Second, func(time.Time) tea.Msg { return reconnectMsg{} })

	case reconnectMsg:
		return m, m.client.subscribe(m.hubEvents)

	case errMsg:
		m.lastError = msg.Error()
		return m, tea.Tick(5*time.Second, func(time.Time) tea.Msg { return m.client.fetchHealth() })
	}

	return m, nil
}

// applyEvent folds one bridge event into the model.
func (m *Model) applyEvent(e events.Event) {
	if e.Type != events.TypeLaunchOutput {
		m.eventLog = append([]events.Event{e}, m.eventLog...)
		if len(m.eventLog) > maxEventLog {
			m.eventLog = m.eventLog[:maxEventLog]
		}
	}
	m.activity.OnEvent(m.now())
	updateActionState(m.actions, e)
	if updateLaunchState(m.launches, e) {
		m.refresh()
	}
}

func (m *Model) refresh() {
	m.table.SetRows(launchRows(sortedLaunches(m.launches), m.theme, m.now()))
	m.refreshOutput()
}

func (m *Model) refreshOutput() {
	l := m.selected()
	if l == nil {
		m.output.SetContent(m.theme.Dim.Render("No launch selected."))
		return
	}
	atBottom := m.output.AtBottom()
	m.output.SetContent(l.Output())
	if atBottom {
		m.output.GotoBottom()
	}
}

// selected returns the launch under the table cursor.
func (m Model) selected() *LaunchState {
	row := m.table.SelectedRow()
	if len(row) < 2 {
		return nil
	}
	pid, err := strconv.Atoi(row[1])
	if err != nil {
		return nil
	}
	for _, l := range sortedLaunches(m.launches) {
		if l.PID == pid {
			return l
		}
	}
	return nil
}

func (m Model) View() string {
	if m.width == 0 {
		return "Initializing playpen watch..."
	}
	now := m.now()

	launchesView := m.theme.Border.Width(m.width - 4).Render(
		lipgloss.JoinVertical(lipgloss.Left, m.theme.Title.Render("LAUNCHES"), m.table.View()),
	)

	outputTitle := "OUTPUT"
	if l := m.selected(); l != nil {
		outputTitle = fmt.Sprintf("OUTPUT %s [%d]", l.Action, l.PID)
	}
	outputView := m.theme.Border.Width(m.width - 4).Render(
		lipgloss.JoinVertical(lipgloss.Left, m.theme.Title.Render(outputTitle), m.output.View()),
	)

	parts := []string{
		renderHeader(m.health, m.ticker, m.activity, m.theme, m.width, now),
		launchesView,
		outputView,
		renderActions(m.actions, m.theme, m.width, now),
		renderEventStream(m.eventLog, m.theme, m.width),
	}
	if m.lastError != "" {
		parts = append(parts, m.theme.StatusFailed.Render(" ⚠ "+m.lastError))
	}
	parts = append(parts, lipgloss.NewStyle().
		Foreground(lipgloss.Color("241")).
		Render(" [q] Quit • [↑/↓] Select • [x] Stop • [c] Clear finished • [pgup/pgdn] Scroll output"))

	return lipgloss.NewStyle().Margin(1, 2).Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}
