package dispatch

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogins/csound-ac/internal/action"
	"github.com/gogins/csound-ac/internal/dispatch/mocks"
	"github.com/gogins/csound-ac/internal/events"
	"github.com/gogins/csound-ac/internal/launch"
)

type fixture struct {
	sub    *mocks.MockLauncher
	term   *mocks.MockLauncher
	opener *mocks.MockOpener
	hub    *events.Hub
	d      *Dispatcher
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	f := &fixture{
		sub:    mocks.NewMockLauncher(ctrl),
		term:   mocks.NewMockLauncher(ctrl),
		opener: mocks.NewMockOpener(ctrl),
		hub:    events.NewHub(16),
	}
	opts = append([]Option{
		WithInterpreter([]string{"python3"}),
		WithScript("/home/mkg/playpen.py"),
		WithPublisher(f.hub),
	}, opts...)
	f.d = New(action.Builtin(), map[launch.Mode]launch.Launcher{
		launch.ModeSubprocess: f.sub,
		launch.ModeTerminal:   f.term,
	}, f.opener, opts...)
	return f
}

func handleFor(req *launch.Request) *launch.Handle {
	return &launch.Handle{
		ID:           uuid.NewString(),
		PID:          4242,
		ActionID:     req.ActionID,
		DocumentPath: req.DocumentPath,
		WorkingDir:   req.WorkingDir,
		Mode:         req.Mode,
		Argv:         req.Argv(),
	}
}

func TestInvokeShellAction(t *testing.T) {
	f := newFixture(t)
	doc := "/home/mkg/pieces/Sonata No 2.csd"

	var got *launch.Request
	f.sub.EXPECT().Launch(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req *launch.Request) (*launch.Handle, error) {
			got = req
			return handleFor(req), nil
		})

	res, err := f.d.Invoke(context.Background(), Invocation{ActionID: "playpen.csd_soundfile", DocumentPath: doc})
	require.NoError(t, err)

	require.NotNil(t, got)
	assert.Equal(t, []string{"python3", "/home/mkg/playpen.py", "csd-play", doc}, got.Argv())
	assert.Equal(t, "/home/mkg/pieces", got.WorkingDir)
	assert.Equal(t, launch.ModeSubprocess, got.Mode)
	assert.Equal(t, "csd-soundfile", res.Action.ID)
	assert.Same(t, got, res.Request)
	require.NotNil(t, res.Handle)
	assert.Empty(t, res.URL)

	snap := f.hub.SnapshotSince(0)
	require.Len(t, snap, 1)
	assert.Equal(t, events.TypeLaunchStarted, snap[0].Type)
}

func TestInvokeEveryShellActionCarriesDocument(t *testing.T) {
	f := newFixture(t)
	doc := "/tmp/work/piece.cpp"

	f.sub.EXPECT().Launch(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req *launch.Request) (*launch.Handle, error) {
			argv := req.Argv()
			assert.Equal(t, doc, argv[len(argv)-1])
			assert.Equal(t, filepath.Dir(doc), req.WorkingDir)
			return handleFor(req), nil
		}).AnyTimes()

	for _, a := range f.d.Catalog().All() {
		if a.Kind != action.KindShell {
			continue
		}
		_, err := f.d.Invoke(context.Background(), Invocation{ActionID: a.ID, DocumentPath: doc})
		assert.NoError(t, err, a.ID)
	}
}

func TestInvokeTerminalMode(t *testing.T) {
	f := newFixture(t)
	f.term.EXPECT().Launch(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req *launch.Request) (*launch.Handle, error) {
			assert.Equal(t, launch.ModeTerminal, req.Mode)
			return handleFor(req), nil
		})

	_, err := f.d.Invoke(context.Background(), Invocation{
		ActionID:     "cpp-app",
		DocumentPath: "/src/app.cpp",
		Mode:         launch.ModeTerminal,
	})
	require.NoError(t, err)
}

func TestInvokeDefaultMode(t *testing.T) {
	f := newFixture(t, WithDefaultMode(launch.ModeTerminal))
	f.term.EXPECT().Launch(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req *launch.Request) (*launch.Handle, error) {
			return handleFor(req), nil
		})

	_, err := f.d.Invoke(context.Background(), Invocation{ActionID: "cpp-lib", DocumentPath: "/src/lib.cpp"})
	require.NoError(t, err)
}

func TestInvokeURLActionNeverLaunches(t *testing.T) {
	f := newFixture(t)
	t.Setenv("HOME", "/home/mkg")

	// No Launch expectations: any launcher call fails the test.
	f.opener.EXPECT().Open(gomock.Any(), "https://csound.com/docs/manual/index.html").Return(nil)
	f.opener.EXPECT().Open(gomock.Any(), "file:///home/mkg/csound-ac/doc/latex/csound-ac.pdf").Return(nil)

	res, err := f.d.Invoke(context.Background(), Invocation{ActionID: "playpen.csoundReference", DocumentPath: "/ignored.csd"})
	require.NoError(t, err)
	assert.Equal(t, "https://csound.com/docs/manual/index.html", res.URL)
	assert.Nil(t, res.Handle)
	assert.Nil(t, res.Request)

	res, err = f.d.Invoke(context.Background(), Invocation{ActionID: "man-csoundac"})
	require.NoError(t, err)
	assert.Equal(t, "file:///home/mkg/csound-ac/doc/latex/csound-ac.pdf", res.URL)

	snap := f.hub.SnapshotSince(0)
	require.Len(t, snap, 2)
	assert.Equal(t, events.TypeURLOpened, snap[0].Type)
}

func TestInvokeURLOpenFailure(t *testing.T) {
	f := newFixture(t)
	f.opener.EXPECT().Open(gomock.Any(), gomock.Any()).Return(errors.New("xdg-open not found"))

	_, err := f.d.Invoke(context.Background(), Invocation{ActionID: "python-reference"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "python-reference")
	assert.Empty(t, f.hub.SnapshotSince(0))
}

func TestInvokeNoActiveDocument(t *testing.T) {
	f := newFixture(t)

	_, err := f.d.Invoke(context.Background(), Invocation{ActionID: "csd-audio"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoActiveDocument))
	assert.Equal(t, "no active document", err.Error())
	assert.Empty(t, f.hub.SnapshotSince(0))
}

func TestInvokeUnknownAction(t *testing.T) {
	f := newFixture(t)

	_, err := f.d.Invoke(context.Background(), Invocation{ActionID: "render-video", DocumentPath: "/a.csd"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownAction))
}

func TestInvokeMissingLauncher(t *testing.T) {
	ctrl := gomock.NewController(t)
	d := New(action.Builtin(), map[launch.Mode]launch.Launcher{}, mocks.NewMockOpener(ctrl))

	_, err := d.Invoke(context.Background(), Invocation{ActionID: "csd-audio", DocumentPath: "/a.csd"})
	assert.True(t, errors.Is(err, ErrNoLauncher))
}

func TestInvokeSpawnErrorIsReturned(t *testing.T) {
	f := newFixture(t)
	spawnErr := errors.New(`start process: exec: "python3": executable file not found in $PATH`)
	f.sub.EXPECT().Launch(gomock.Any(), gomock.Any()).Return(nil, spawnErr)

	_, err := f.d.Invoke(context.Background(), Invocation{ActionID: "csd-audio", DocumentPath: "/a.csd"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, spawnErr))
	assert.Contains(t, err.Error(), "launch csd-audio")
	assert.Empty(t, f.hub.SnapshotSince(0))
}

func TestInvokeConcurrentIndependentLaunches(t *testing.T) {
	f := newFixture(t)

	var mu sync.Mutex
	var seen []*launch.Request
	f.sub.EXPECT().Launch(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req *launch.Request) (*launch.Handle, error) {
			mu.Lock()
			seen = append(seen, req)
			mu.Unlock()
			return handleFor(req), nil
		}).Times(2)

	results := make([]*Result, 2)
	var wg sync.WaitGroup
	for i, doc := range []string{"/a/one.csd", "/b/two.csd"} {
		wg.Add(1)
		go func(i int, doc string) {
			defer wg.Done()
			res, err := f.d.Invoke(context.Background(), Invocation{ActionID: "csd-audio", DocumentPath: doc})
			if assert.NoError(t, err) {
				results[i] = res
			}
		}(i, doc)
	}
	wg.Wait()

	require.Len(t, seen, 2)
	assert.NotSame(t, seen[0], seen[1])
	require.NotNil(t, results[0])
	require.NotNil(t, results[1])
	assert.NotEqual(t, results[0].Handle.ID, results[1].Handle.ID)
	assert.Equal(t, "/a", results[0].Request.WorkingDir)
	assert.Equal(t, "/b", results[1].Request.WorkingDir)
}

func TestResolve(t *testing.T) {
	f := newFixture(t, WithInterpreter([]string{"python3", "-u"}))

	req, err := f.d.Resolve("csd_psyvh", "/patches/pad.inc", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"python3", "-u", "/home/mkg/playpen.py", "csd-patch", "/patches/pad.inc"}, req.Argv())

	_, err = f.d.Resolve("cpp-reference", "/a.cpp", "")
	assert.True(t, errors.Is(err, ErrNotShellAction))

	_, err = f.d.Resolve("nope", "/a.cpp", "")
	assert.True(t, errors.Is(err, ErrUnknownAction))

	_, err = f.d.Resolve("csd-audio", "", "")
	assert.True(t, errors.Is(err, ErrNoActiveDocument))
}

type fakeRecorder struct {
	mu       sync.Mutex
	launches []string
	urls     []string
	failures []string
	tracked  int
}

func (r *fakeRecorder) RecordLaunch(_ context.Context, h *launch.Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.launches = append(r.launches, h.ActionID)
	return nil
}

func (r *fakeRecorder) RecordURL(_ context.Context, actionID, _ string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.urls = append(r.urls, actionID)
	return "u", nil
}

func (r *fakeRecorder) RecordFailure(_ context.Context, actionID, kind, _ string, cause error) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, actionID+"/"+kind+": "+cause.Error())
	return "f", nil
}

func (r *fakeRecorder) Track(*launch.Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tracked++
}

func TestInvokeRecordsHistory(t *testing.T) {
	rec := &fakeRecorder{}
	f := newFixture(t, WithRecorder(rec))

	f.sub.EXPECT().Launch(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req *launch.Request) (*launch.Handle, error) {
			return handleFor(req), nil
		})
	f.opener.EXPECT().Open(gomock.Any(), gomock.Any()).Return(nil)

	_, err := f.d.Invoke(context.Background(), Invocation{ActionID: "csd-audio", DocumentPath: "/a.csd"})
	require.NoError(t, err)
	_, err = f.d.Invoke(context.Background(), Invocation{ActionID: "python-reference"})
	require.NoError(t, err)
	_, err = f.d.Invoke(context.Background(), Invocation{ActionID: "csd-audio"})
	require.Error(t, err)
	_, err = f.d.Invoke(context.Background(), Invocation{ActionID: "unknown-thing"})
	require.Error(t, err)

	assert.Equal(t, []string{"csd-audio"}, rec.launches)
	assert.Equal(t, 1, rec.tracked)
	assert.Equal(t, []string{"python-reference"}, rec.urls)
	assert.Equal(t, []string{"csd-audio/shell: no active document"}, rec.failures, "unknown actions are not recorded")
}
