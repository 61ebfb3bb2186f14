//go:build unix

package copytool

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/beamsplit/internal/chunk"
	"github.com/bamsammich/beamsplit/internal/engine"
	"github.com/bamsammich/beamsplit/internal/tree"
)

// writeScript creates an executable shell script standing in for the copy
// tool.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fakecopy")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

const logArgScript = `for a in "$@"; do
  case "$a" in /UNILOG:*) log="${a#/UNILOG:}" ;; esac
done
`

func waitExit(t *testing.T, r *Robocopy, j engine.Job) int {
	t.Helper()
	var code int
	require.Eventually(t, func() bool {
		var exited bool
		exited, code = r.Poll(j)
		return exited
	}, 10*time.Second, 10*time.Millisecond)
	return code
}

func TestStart_ExitCodeAndSummary(t *testing.T) {
	prog := writeScript(t, logArgScript+`printf '   Files :  3  2  1  0  0  0\n   Bytes :  300  200  100  0  0  0\n' > "$log"
exit 1
`)
	r := &Robocopy{Program: prog, LogDir: t.TempDir()}
	c := chunk.New("/src/a", "/dst/a", 300, 3)

	j, err := r.Start(context.Background(), c, engine.RetryPolicy{Retries: 1}, 0)
	require.NoError(t, err)
	assert.Positive(t, j.PID())

	assert.Equal(t, 1, waitExit(t, r, j))
	code, err := r.ExitCode(j)
	require.NoError(t, err)
	assert.Equal(t, 1, code)

	s := r.ParseSummary(j)
	assert.Equal(t, int64(200), s.BytesCopied)
	assert.Equal(t, int64(2), s.FilesCopied)
	assert.Equal(t, int64(1), s.FilesSkipped)
}

func TestParseSummary_RemovesTempLog(t *testing.T) {
	t.Setenv("TMPDIR", t.TempDir())
	prog := writeScript(t, logArgScript+`printf '   Files :  1  1  0  0  0  0\n' > "$log"
exit 1
`)
	r := &Robocopy{Program: prog}
	j, err := r.Start(context.Background(), chunk.New("/s", "/d", 10, 1), engine.RetryPolicy{}, 0)
	require.NoError(t, err)
	logPath := j.(*job).logPath
	assert.Equal(t, os.TempDir(), filepath.Dir(logPath))

	assert.Equal(t, 1, waitExit(t, r, j))
	assert.FileExists(t, logPath)
	assert.Equal(t, int64(1), r.ParseSummary(j).FilesCopied)
	assert.NoFileExists(t, logPath)
}

func TestParseSummary_KeepsConfiguredLog(t *testing.T) {
	dir := t.TempDir()
	prog := writeScript(t, logArgScript+`printf '   Files :  1  1  0  0  0  0\n' > "$log"
exit 1
`)
	r := &Robocopy{Program: prog, LogDir: dir}
	j, err := r.Start(context.Background(), chunk.New("/s", "/d", 10, 1), engine.RetryPolicy{}, 0)
	require.NoError(t, err)

	waitExit(t, r, j)
	r.ParseSummary(j)
	assert.FileExists(t, j.(*job).logPath)
}

func TestKill_RemovesTempLog(t *testing.T) {
	t.Setenv("TMPDIR", t.TempDir())
	r := &Robocopy{Program: writeScript(t, logArgScript+"echo started > \"$log\"\nsleep 30\n")}
	j, err := r.Start(context.Background(), chunk.New("/s", "/d", 0, 0), engine.RetryPolicy{}, 0)
	require.NoError(t, err)
	logPath := j.(*job).logPath
	require.Eventually(t, func() bool {
		_, statErr := os.Stat(logPath)
		return statErr == nil
	}, 10*time.Second, 10*time.Millisecond)

	require.NoError(t, r.Kill(j))
	waitExit(t, r, j)
	assert.Eventually(t, func() bool {
		_, statErr := os.Stat(logPath)
		return os.IsNotExist(statErr)
	}, 5*time.Second, 10*time.Millisecond)
}

func TestStart_NoLogMeansZeroSummary(t *testing.T) {
	r := &Robocopy{Program: writeScript(t, "exit 0\n"), LogDir: t.TempDir()}
	j, err := r.Start(context.Background(), chunk.New("/s", "/d", 0, 0), engine.RetryPolicy{}, 0)
	require.NoError(t, err)

	assert.Equal(t, 0, waitExit(t, r, j))
	assert.Equal(t, engine.Summary{}, r.ParseSummary(j))
}

func TestStart_MissingProgram(t *testing.T) {
	r := &Robocopy{Program: filepath.Join(t.TempDir(), "does-not-exist"), LogDir: t.TempDir()}
	_, err := r.Start(context.Background(), chunk.New("/s", "/d", 0, 0), engine.RetryPolicy{}, 0)
	require.Error(t, err)
}

func TestStart_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := &Robocopy{Program: writeScript(t, "exit 0\n"), LogDir: t.TempDir()}
	_, err := r.Start(ctx, chunk.New("/s", "/d", 0, 0), engine.RetryPolicy{}, 0)
	require.ErrorIs(t, err, context.Canceled)
}

func TestKill(t *testing.T) {
	r := &Robocopy{Program: writeScript(t, "sleep 30\n"), LogDir: t.TempDir()}
	j, err := r.Start(context.Background(), chunk.New("/s", "/d", 0, 0), engine.RetryPolicy{}, 0)
	require.NoError(t, err)

	exited, _ := r.Poll(j)
	assert.False(t, exited)
	_, err = r.ExitCode(j)
	require.ErrorIs(t, err, ErrNotExited)

	require.NoError(t, r.Kill(j))
	assert.Equal(t, -1, waitExit(t, r, j))

	// killing an exited job is a no-op
	require.NoError(t, r.Kill(j))
}

func TestList(t *testing.T) {
	prog := writeScript(t, `printf '\t\t2\t/src/root/\n\t\t100\t/src/root/a.txt\n\t\t1\t/src/root/sub/\n\t\t50\t/src/root/sub/b.bin\n'
exit 1
`)
	r := &Robocopy{Program: prog}
	rc, err := r.List(context.Background(), "/src/root")
	require.NoError(t, err)

	root, err := tree.BuildTree("/src/root", rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())

	assert.Equal(t, int64(150), root.TotalSize)
	assert.Equal(t, int64(2), root.TotalFileCount)
	require.NotNil(t, root.Child("sub"))
	assert.Equal(t, int64(50), root.Child("sub").DirectSize)
}

func TestList_FailureExitCode(t *testing.T) {
	r := &Robocopy{Program: writeScript(t, "echo partial\nexit 16\n")}
	rc, err := r.List(context.Background(), "/nowhere")
	require.NoError(t, err)

	_, _ = io.ReadAll(rc)
	require.Error(t, rc.Close())
}
