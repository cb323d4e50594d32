package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogins/csound-ac/internal/action"
	"github.com/gogins/csound-ac/internal/auth"
	"github.com/gogins/csound-ac/internal/dispatch"
	"github.com/gogins/csound-ac/internal/dispatch/mocks"
	"github.com/gogins/csound-ac/internal/events"
	"github.com/gogins/csound-ac/internal/journal"
	"github.com/gogins/csound-ac/internal/launch"
	"github.com/gogins/csound-ac/internal/storage"
)

const testAPIKey = "test-key"

type testBridge struct {
	server   *Server
	handler  http.Handler
	sub      *mocks.MockLauncher
	opener   *mocks.MockOpener
	registry *launch.Registry
	journal  *journal.Journal
	hub      *events.Hub
}

func newTestBridge(t *testing.T, tokens ...auth.TokenConfig) *testBridge {
	t.Helper()
	ctrl := gomock.NewController(t)

	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "playpen.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	b := &testBridge{
		sub:      mocks.NewMockLauncher(ctrl),
		opener:   mocks.NewMockOpener(ctrl),
		registry: launch.NewRegistry(),
		journal:  journal.New(db),
		hub:      events.NewHub(64),
	}
	d := dispatch.New(action.Builtin(), map[launch.Mode]launch.Launcher{
		launch.ModeSubprocess: b.sub,
	}, b.opener,
		dispatch.WithInterpreter([]string{"python3"}),
		dispatch.WithScript("/home/mkg/playpen.py"),
		dispatch.WithPublisher(b.hub),
		dispatch.WithRecorder(b.journal),
	)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	b.server = New(Config{APIKey: testAPIKey, Tokens: tokens}, d, b.registry, b.journal, b.hub, logger)
	b.handler = b.server.Handler()
	return b
}

func (b *testBridge) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rd)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	b.handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func startedHandle(req *launch.Request) *launch.Handle {
	return &launch.Handle{
		ID:           "launch-" + req.ActionID,
		PID:          31337,
		ActionID:     req.ActionID,
		DocumentPath: req.DocumentPath,
		WorkingDir:   req.WorkingDir,
		Mode:         req.Mode,
		Argv:         req.Argv(),
		StartedAt:    time.Now().UTC(),
	}
}

func TestHealthzNoAuth(t *testing.T) {
	b := newTestBridge(t)
	rr := b.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	resp := decode[HealthzResponse](t, rr)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 0, resp.Running)
	assert.Equal(t, action.Builtin().Len(), resp.Actions)
}

func TestAuthRequired(t *testing.T) {
	b := newTestBridge(t)

	rr := b.do(t, http.MethodGet, "/actions", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = b.do(t, http.MethodGet, "/actions", "wrong", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "invalid API key", decode[ErrorResponse](t, rr).Error)
}

func TestScopedTokens(t *testing.T) {
	b := newTestBridge(t, auth.TokenConfig{Token: "viewer", Scopes: []string{auth.ScopeLaunchesRO}})

	assert.Equal(t, http.StatusOK, b.do(t, http.MethodGet, "/launches", "viewer", nil).Code)
	assert.Equal(t, http.StatusOK, b.do(t, http.MethodGet, "/history", "viewer", nil).Code)
	assert.Equal(t, http.StatusForbidden, b.do(t, http.MethodGet, "/actions", "viewer", nil).Code)
	assert.Equal(t, http.StatusForbidden, b.do(t, http.MethodPost, "/actions/csd-audio", "viewer", InvokeRequest{Document: "/a.csd"}).Code)
	assert.Equal(t, http.StatusForbidden, b.do(t, http.MethodDelete, "/launches/1", "viewer", nil).Code)
}

func TestListActions(t *testing.T) {
	b := newTestBridge(t)
	rr := b.do(t, http.MethodGet, "/actions", testAPIKey, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	resp := decode[ActionListResponse](t, rr)
	require.Len(t, resp.Actions, action.Builtin().Len())
	ids := make([]string, 0, len(resp.Actions))
	for _, a := range resp.Actions {
		ids = append(ids, a.ID)
	}
	assert.Contains(t, ids, "csd-audio")
	assert.Contains(t, ids, "csound-reference")
}

func TestInvokeShellAction(t *testing.T) {
	b := newTestBridge(t)
	doc := "/home/mkg/pieces/Drone.csd"

	b.sub.EXPECT().Launch(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req *launch.Request) (*launch.Handle, error) {
			return startedHandle(req), nil
		})

	rr := b.do(t, http.MethodPost, "/actions/playpen.csd_audio", testAPIKey, InvokeRequest{Document: doc})
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())

	resp := decode[InvokeResponse](t, rr)
	assert.Equal(t, "csd-audio", resp.Action)
	assert.Equal(t, "started", resp.Status)
	assert.Equal(t, "python3 /home/mkg/playpen.py csd-audio /home/mkg/pieces/Drone.csd", resp.Command)
	require.NotNil(t, resp.Launch)
	assert.Equal(t, 31337, resp.Launch.PID)
	assert.Equal(t, "/home/mkg/pieces", resp.Launch.WorkingDir)
	assert.Empty(t, resp.URL)

	entries, err := b.journal.Recent(context.Background(), 10, "")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, doc, entries[0].DocumentPath)
}

func TestInvokeURLAction(t *testing.T) {
	b := newTestBridge(t)
	b.opener.EXPECT().Open(gomock.Any(), "https://csound.com/docs/manual/index.html").Return(nil)

	rr := b.do(t, http.MethodPost, "/actions/csound-reference", testAPIKey, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	resp := decode[InvokeResponse](t, rr)
	assert.Equal(t, "opened", resp.Status)
	assert.Equal(t, "https://csound.com/docs/manual/index.html", resp.URL)
	assert.Nil(t, resp.Launch)
}

func TestInvokeErrors(t *testing.T) {
	b := newTestBridge(t)
	b.sub.EXPECT().Launch(gomock.Any(), gomock.Any()).Return(nil, errors.New("start process: boom"))

	tests := []struct {
		name   string
		path   string
		body   any
		status int
		msg    string
	}{
		{name: "no document", path: "/actions/csd-audio", body: InvokeRequest{}, status: http.StatusBadRequest, msg: "no active document"},
		{name: "unknown action", path: "/actions/render-video", body: InvokeRequest{Document: "/a.csd"}, status: http.StatusNotFound, msg: "action not found"},
		{name: "bad mode", path: "/actions/csd-audio", body: InvokeRequest{Document: "/a.csd", Mode: "window"}, status: http.StatusBadRequest, msg: "unknown launch mode"},
		{name: "bad body", path: "/actions/csd-audio", body: "not an object", status: http.StatusBadRequest, msg: "invalid JSON body"},
		{name: "spawn failure", path: "/actions/csd-audio", body: InvokeRequest{Document: "/a.csd"}, status: http.StatusInternalServerError, msg: "boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := b.do(t, http.MethodPost, tt.path, testAPIKey, tt.body)
			assert.Equal(t, tt.status, rr.Code)
			assert.Contains(t, decode[ErrorResponse](t, rr).Error, tt.msg)
		})
	}
}

func TestInvokeTerminalModeWithoutLauncher(t *testing.T) {
	b := newTestBridge(t)
	rr := b.do(t, http.MethodPost, "/actions/csd-audio", testAPIKey, InvokeRequest{Document: "/a.csd", Mode: "terminal"})
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, decode[ErrorResponse](t, rr).Error, "no launcher")
}

func TestListLaunchesEmpty(t *testing.T) {
	b := newTestBridge(t)
	rr := b.do(t, http.MethodGet, "/launches", testAPIKey, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"launches":[]}`, rr.Body.String())
}

func TestStopLaunchErrors(t *testing.T) {
	b := newTestBridge(t)
	assert.Equal(t, http.StatusBadRequest, b.do(t, http.MethodDelete, "/launches/abc", testAPIKey, nil).Code)
	assert.Equal(t, http.StatusBadRequest, b.do(t, http.MethodDelete, "/launches/-4", testAPIKey, nil).Code)
	assert.Equal(t, http.StatusNotFound, b.do(t, http.MethodDelete, "/launches/424242", testAPIKey, nil).Code)
}

func TestHistory(t *testing.T) {
	b := newTestBridge(t)
	ctx := context.Background()
	for _, id := range []string{"csound-reference", "python-reference", "csound-reference"} {
		_, err := b.journal.RecordURL(ctx, id, "https://example.com/"+id)
		require.NoError(t, err)
	}

	rr := b.do(t, http.MethodGet, "/history?limit=2", testAPIKey, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[HistoryResponse](t, rr).Entries, 2)

	rr = b.do(t, http.MethodGet, "/history?action=python-reference", testAPIKey, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	entries := decode[HistoryResponse](t, rr).Entries
	require.Len(t, entries, 1)
	assert.Equal(t, "python-reference", entries[0].ActionID)

	assert.Equal(t, http.StatusBadRequest, b.do(t, http.MethodGet, "/history?limit=zero", testAPIKey, nil).Code)
}

func TestHistoryUnavailable(t *testing.T) {
	ctrl := gomock.NewController(t)
	d := dispatch.New(action.Builtin(), nil, mocks.NewMockOpener(ctrl))
	s := New(Config{APIKey: testAPIKey}, d, launch.NewRegistry(), nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	req := httptest.NewRequest(http.MethodGet, "/history", nil)
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestOpenAPI(t *testing.T) {
	b := newTestBridge(t)
	rr := b.do(t, http.MethodGet, "/openapi.json", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var doc struct {
		OpenAPI string                    `json:"openapi"`
		Paths   map[string]map[string]any `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &doc))
	assert.Equal(t, "3.1.0", doc.OpenAPI)
	assert.Contains(t, doc.Paths, "/launches/{pid}")

	shell, ok := doc.Paths["/actions/csd-audio"]["post"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, shell, "requestBody")

	url, ok := doc.Paths["/actions/csound-reference"]["post"].(map[string]any)
	require.True(t, ok)
	assert.NotContains(t, url, "requestBody")
}
