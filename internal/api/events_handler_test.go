package api

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLastEventID(t *testing.T) {
	tests := map[string]int64{"": 0, "17": 17, "-3": 0, "abc": 0}
	for in, want := range tests {
		assert.Equal(t, want, parseLastEventID(in), in)
	}
}

func readSSEIDs(t *testing.T, sc *bufio.Scanner, n int) []string {
	t.Helper()
	var ids []string
	for len(ids) < n && sc.Scan() {
		if id, ok := strings.CutPrefix(sc.Text(), "id: "); ok {
			ids = append(ids, id)
		}
	}
	require.NoError(t, sc.Err())
	return ids
}

func TestEventsReplayAndStream(t *testing.T) {
	b := newTestBridge(t)
	ts := httptest.NewServer(b.handler)
	t.Cleanup(ts.Close)

	b.hub.Publish("url.opened", map[string]string{"action": "a"})
	b.hub.Publish("url.opened", map[string]string{"action": "b"})
	b.hub.Publish("url.opened", map[string]string{"action": "c"})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/events", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	req.Header.Set("Last-Event-ID", "1")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	sc := bufio.NewScanner(resp.Body)
	assert.Equal(t, []string{"2", "3"}, readSSEIDs(t, sc, 2))

	b.hub.Publish("launch.started", map[string]int{"pid": 1})
	assert.Equal(t, []string{"4"}, readSSEIDs(t, sc, 1))
}

func TestEventsRequiresScope(t *testing.T) {
	b := newTestBridge(t)
	rr := b.do(t, http.MethodGet, "/events", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
