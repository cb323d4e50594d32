//go:build !windows

package api

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogins/csound-ac/internal/action"
	"github.com/gogins/csound-ac/internal/dispatch"
	"github.com/gogins/csound-ac/internal/dispatch/mocks"
	"github.com/gogins/csound-ac/internal/events"
	"github.com/gogins/csound-ac/internal/launch"
)

func TestLaunchListAndStop(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "playpen.sh")
	require.NoError(t, os.WriteFile(script, []byte("sleep 30\n"), 0o755))
	doc := filepath.Join(dir, "piece.csd")
	require.NoError(t, os.WriteFile(doc, nil, 0o644))

	hub := events.NewHub(64)
	reg := launch.NewRegistry()
	sub := launch.NewSubprocess(filepath.Join(dir, "output.log"), launch.WithRegistry(reg), launch.WithPublisher(hub))
	d := dispatch.New(action.Builtin(), map[launch.Mode]launch.Launcher{launch.ModeSubprocess: sub},
		mocks.NewMockOpener(gomock.NewController(t)),
		dispatch.WithInterpreter([]string{"/bin/sh"}),
		dispatch.WithScript(script),
		dispatch.WithPublisher(hub),
	)
	s := New(Config{APIKey: testAPIKey, StopGrace: time.Second}, d, reg, nil, hub, slog.New(slog.NewTextHandler(io.Discard, nil)))
	b := &testBridge{server: s, handler: s.Handler(), registry: reg, hub: hub}

	rr := b.do(t, http.MethodPost, "/actions/csd-audio", testAPIKey, InvokeRequest{Document: doc})
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	started := decode[InvokeResponse](t, rr)
	require.NotNil(t, started.Launch)
	pid := started.Launch.PID

	rr = b.do(t, http.MethodGet, "/launches", testAPIKey, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	list := decode[LaunchListResponse](t, rr)
	require.Len(t, list.Launches, 1)
	assert.Equal(t, pid, list.Launches[0].PID)
	assert.True(t, list.Launches[0].Running)

	rr = b.do(t, http.MethodDelete, fmt.Sprintf("/launches/%d", pid), testAPIKey, nil)
	require.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, "stopping", decode[StopResponse](t, rr).Status)

	h, ok := reg.Get(pid)
	if ok {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		code, err := h.Wait(ctx)
		require.NoError(t, err)
		assert.NotEqual(t, 0, code)
	}
	assert.Eventually(t, func() bool { return reg.Len() == 0 }, 10*time.Second, 20*time.Millisecond)
}
