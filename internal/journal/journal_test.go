package journal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogins/csound-ac/internal/launch"
	"github.com/gogins/csound-ac/internal/storage"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "playpen.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db)
}

func TestRecordLaunchAndMarkExited(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	h := &launch.Handle{
		ID:           "launch-1",
		PID:          1234,
		ActionID:     "csd-audio",
		DocumentPath: "/pieces/a.csd",
		WorkingDir:   "/pieces",
		Mode:         launch.ModeSubprocess,
		Argv:         []string{"python3", "/home/mkg/playpen.py", "csd-audio", "/pieces/a.csd"},
		StartedAt:    time.Now().UTC(),
	}
	require.NoError(t, j.RecordLaunch(ctx, h))

	e, err := j.Get(ctx, "launch-1")
	require.NoError(t, err)
	assert.Equal(t, KindShell, e.Kind)
	assert.Equal(t, h.Argv, e.Command)
	assert.Equal(t, 1234, e.PID)
	assert.Equal(t, "subprocess", e.Mode)
	assert.True(t, e.Running())
	assert.Nil(t, e.ExitCode)

	require.NoError(t, j.MarkExited(ctx, "launch-1", 2, errors.New("exit status 2")))
	e, err = j.Get(ctx, "launch-1")
	require.NoError(t, err)
	require.NotNil(t, e.ExitCode)
	assert.Equal(t, 2, *e.ExitCode)
	require.NotNil(t, e.ExitedAt)
	require.NotNil(t, e.Error)
	assert.Equal(t, "exit status 2", *e.Error)
	assert.False(t, e.Running())
}

func TestMarkExitedUnknown(t *testing.T) {
	j := openTestJournal(t)
	err := j.MarkExited(context.Background(), "missing", 0, nil)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRecordURLAndFailure(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	id, err := j.RecordURL(ctx, "cpp-reference", "https://en.cppreference.com/w/")
	require.NoError(t, err)
	e, err := j.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, KindURL, e.Kind)
	assert.Equal(t, "https://en.cppreference.com/w/", e.URL)
	assert.False(t, e.Running())

	id, err = j.RecordFailure(ctx, "csd-audio", KindShell, "", launch.ErrNoActiveDocument)
	require.NoError(t, err)
	e, err = j.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, e.Error)
	assert.Equal(t, "no active document", *e.Error)
}

func TestRecordValidation(t *testing.T) {
	j := openTestJournal(t)
	_, err := j.Record(context.Background(), Entry{Kind: KindShell})
	assert.Error(t, err)
	_, err = j.Record(context.Background(), Entry{ActionID: "play"})
	assert.Error(t, err)
}

func TestRecentOrderingLimitAndFilter(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, a := range []string{"csd-audio", "cpp-app", "csd-audio", "play"} {
		_, err := j.Record(ctx, Entry{ActionID: a, Kind: KindShell, StartedAt: base.Add(time.Duration(i) * time.Minute)})
		require.NoError(t, err)
	}

	all, err := j.Recent(ctx, 0, "")
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "play", all[0].ActionID)
	assert.Equal(t, "csd-audio", all[3].ActionID)

	two, err := j.Recent(ctx, 2, "")
	require.NoError(t, err)
	assert.Len(t, two, 2)

	csd, err := j.Recent(ctx, 10, "csd-audio")
	require.NoError(t, err)
	require.Len(t, csd, 2)
	assert.True(t, csd[0].StartedAt.After(csd[1].StartedAt))
}

func TestGetNotFound(t *testing.T) {
	j := openTestJournal(t)
	_, err := j.Get(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrNotFound))
}
