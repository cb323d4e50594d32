//go:build !windows

package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogins/csound-ac/internal/launch"
)

func TestTrackRecordsExit(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	// sh -c 'exit 7' ignores the script/subcommand/document positionals.
	l := launch.NewSubprocess(filepath.Join(t.TempDir(), "output.log"))
	req, err := launch.NewRequest("cpp-app", "cpp-app", filepath.Join(t.TempDir(), "app.cpp"),
		[]string{"/bin/sh", "-c", "exit 7"}, "playpen.py", launch.ModeSubprocess)
	require.NoError(t, err)

	h, err := l.Launch(ctx, req)
	require.NoError(t, err)
	require.NoError(t, j.RecordLaunch(ctx, h))
	j.Track(h)

	require.Eventually(t, func() bool {
		e, err := j.Get(ctx, h.ID)
		return err == nil && e.ExitCode != nil
	}, 10*time.Second, 20*time.Millisecond)

	e, err := j.Get(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, *e.ExitCode)
	require.NotNil(t, e.Error)
	assert.Equal(t, "exit status 7", *e.Error)
}
