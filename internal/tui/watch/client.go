package watch

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/gogins/csound-ac/internal/events"
)

// --- Message types ---

type eventMsg events.Event

type healthMsg HealthState

type tickMsg time.Time

type errMsg error

type sseDisconnectedMsg struct{}
type reconnectMsg struct{}

type stoppedMsg struct{ pid int }

// client talks to the bridge. It is shared by pointer so the last seen
// event ID survives the value copies bubbletea makes of the model.
type client struct {
	apiURL string
	apiKey string
	http   *http.Client
	lastID atomic.Int64
}

func newClient(apiURL, apiKey string) *client {
	return &client{
		apiURL: strings.TrimRight(apiURL, "/"),
		apiKey: apiKey,
		http:   &http.Client{},
	}
}

func (c *client) newRequest(ctx context.Context, method, path string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, nil)
	if err != nil {
		return nil, err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}

// --- Commands ---

// subscribe connects to /events and feeds events into ch, resuming after
// the last event it delivered. Returns sseDisconnectedMsg when the
// connection drops.
func (c *client) subscribe(ch chan<- events.Event) tea.Cmd {
	return func() tea.Msg {
		req, err := c.newRequest(context.Background(), http.MethodGet, "/events")
		if err != nil {
			return errMsg(err)
		}
		if id := c.lastID.Load(); id > 0 {
			req.Header.Set("Last-Event-ID", strconv.FormatInt(id, 10))
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return sseDisconnectedMsg{}
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return errMsg(fmt.Errorf("subscribe: %s", resp.Status))
		}

		readSSE(bufio.NewScanner(resp.Body), func(ev events.Event) {
			c.lastID.Store(ev.ID)
			ch <- ev
		})
		return sseDisconnectedMsg{}
	}
}

// readSSE parses an event stream until it ends.
func readSSE(scanner *bufio.Scanner, emit func(events.Event)) {
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var cur events.Event
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if cur.Data != nil {
				if cur.At.IsZero() {
					cur.At = time.Now()
				}
				emit(cur)
			}
			cur = events.Event{}
		case strings.HasPrefix(line, ":"):
			// comment / keep-alive
		case strings.HasPrefix(line, "id: "):
			if id, err := strconv.ParseInt(line[4:], 10, 64); err == nil {
				cur.ID = id
			}
		case strings.HasPrefix(line, "event: "):
			cur.Type = line[7:]
		case strings.HasPrefix(line, "data: "):
			cur.Data = json.RawMessage(line[6:])
		}
	}
}

// receiveNextEvent waits for the next event from the channel.
func receiveNextEvent(ch <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		return eventMsg(<-ch)
	}
}

// fetchHealth queries the /healthz endpoint.
func (c *client) fetchHealth() tea.Msg {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := c.newRequest(ctx, http.MethodGet, "/healthz")
	if err != nil {
		return errMsg(err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errMsg(err)
	}
	defer resp.Body.Close()

	var h HealthState
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return errMsg(err)
	}
	return healthMsg(h)
}

// stop asks the bridge to terminate a launch.
func (c *client) stop(pid int) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		req, err := c.newRequest(ctx, http.MethodDelete, fmt.Sprintf("/launches/%d", pid))
		if err != nil {
			return errMsg(err)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return errMsg(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusAccepted {
			var body struct {
				Error string `json:"error"`
			}
			_ = json.NewDecoder(resp.Body).Decode(&body)
			return errMsg(fmt.Errorf("stop %d: %s %s", pid, resp.Status, body.Error))
		}
		return stoppedMsg{pid: pid}
	}
}
