package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/beamsplit/internal/chunk"
	"github.com/bamsammich/beamsplit/internal/config"
	"github.com/bamsammich/beamsplit/internal/engine"
	"github.com/bamsammich/beamsplit/internal/mount"
	"github.com/bamsammich/beamsplit/internal/stats"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunFlagsApplyOnlyChanged(t *testing.T) {
	var rf runFlags
	fl := pflag.NewFlagSet("run", pflag.ContinueOnError)
	rf.register(fl)
	require.NoError(t, fl.Parse([]string{"-j", "8", "--bwlimit", "200", "--no-checkpoint", "--await-operator", "2m"}))

	s := config.DefaultSettings()
	s.MaxRetries = 5
	s.CopyTool = "/opt/robocopy-compat"
	rf.apply(fl, &s)

	assert.Equal(t, 8, s.MaxConcurrentJobs)
	assert.InDelta(t, 200.0, s.BandwidthLimitMbps, 0.001)
	assert.False(t, s.Checkpoint)
	assert.Equal(t, 2*time.Minute, s.AwaitOperator)
	assert.Equal(t, 5, s.MaxRetries, "unset flag keeps the configured value")
	assert.Equal(t, "/opt/robocopy-compat", s.CopyTool)
}

func TestNewRunnerWiring(t *testing.T) {
	s := config.DefaultSettings()
	r, err := newRunner(s, discardLogger(), nil, stats.NewCollector())
	require.NoError(t, err)
	assert.NotNil(t, r.Orchestrator)
	assert.NotNil(t, r.Lister)
	assert.Nil(t, r.Snapshots)
	assert.Nil(t, r.Mounts)
	assert.True(t, r.Checkpoint)

	s.Snapshot.Create = []string{"snap", "{source}"}
	s.Mount = config.MountConfig{Points: []string{"/mnt/a"}, Mount: []string{"mount", "{remote}", "{local}"}}
	r, err = newRunner(s, discardLogger(), nil, stats.NewCollector())
	require.NoError(t, err)
	assert.NotNil(t, r.Snapshots)
	_, isPool := r.Mounts.(*mount.Pool)
	assert.True(t, isPool)
}

func TestNewRunnerRejectsBadSeverity(t *testing.T) {
	s := config.DefaultSettings()
	s.MismatchSeverity = "catastrophic"
	_, err := newRunner(s, discardLogger(), nil, stats.NewCollector())
	assert.Error(t, err)
}

func TestPrintPlan(t *testing.T) {
	var buf bytes.Buffer
	p := config.Profile{Name: "docs", Source: `C:\Data`, Destination: `E:\Backup`}
	chunks := []*chunk.Chunk{
		{ID: 1, SourcePath: `C:\Data\a`, DestinationPath: `E:\Backup\a`, EstimatedSize: 2048, EstimatedFiles: 1200},
		{ID: 2, SourcePath: `C:\Data`, DestinationPath: `E:\Backup`, EstimatedSize: 10, EstimatedFiles: 1, IsFilesOnly: true},
	}
	printPlan(&buf, p, chunks)

	out := buf.String()
	assert.Contains(t, out, `profile docs: C:\Data -> E:\Backup`)
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "1,200")
	assert.Contains(t, out, "files")
	assert.Contains(t, out, "2 chunks")
}

func TestExitError(t *testing.T) {
	err := usageError(errors.New("bad config"))
	var exitErr *exitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 2, exitErr.code)
	assert.Equal(t, "bad config", err.Error())

	assert.Equal(t, "exit code 1", (&exitError{code: 1}).Error())
}

func TestStatusURL(t *testing.T) {
	assert.Equal(t, "http://127.0.0.1:7780/status", statusURL("127.0.0.1:7780", "/status"))
	assert.Equal(t, "https://host/status", statusURL("https://host/", "/status"))
}

func TestPrintStatus(t *testing.T) {
	var buf bytes.Buffer
	printStatus(&buf, engine.Status{
		Profile:     "docs",
		TotalChunks: 2,
		Active:      []engine.ActiveInfo{{ChunkID: 3, Source: "/src/a", PID: 77}},
		Failed:      []chunk.Chunk{{ID: 4, SourcePath: "/src/b", LastErrorMessage: "fatal error"}},
	})
	assert.Contains(t, buf.String(), "progress: docs")
	assert.Contains(t, buf.String(), "running #3  /src/a  pid 77")
	assert.Contains(t, buf.String(), "failed  #4  /src/b  fatal error")
}

type fakeOperator struct {
	mu      sync.Mutex
	stops   int
	retries int
	snaps   int
}

func (f *fakeOperator) Snapshot() engine.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snaps++
	return engine.Status{Profile: "docs"}
}
func (f *fakeOperator) Retry(int64) bool { return false }
func (f *fakeOperator) Skip(int64) bool  { return false }
func (f *fakeOperator) RetryAllFailed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retries++
	return 0
}
func (f *fakeOperator) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
}

func TestHandleSignalsInterruptTwiceCancels(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	op := &fakeOperator{}
	sigs := make(chan os.Signal, 2)
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		handleSignals(ctx, sigs, done, op, cancel, discardLogger())
		close(finished)
	}()

	sigs <- os.Interrupt
	sigs <- os.Interrupt

	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("second interrupt did not cancel")
	}
	assert.Equal(t, 1, op.stops)
	assert.Error(t, ctx.Err())
}
