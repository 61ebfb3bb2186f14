package ui

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/beamsplit/internal/engine"
	"github.com/bamsammich/beamsplit/internal/stats"
)

func newPlain(out, errOut *bytes.Buffer, verbose bool) *plainPresenter {
	return &plainPresenter{
		w:        out,
		errW:     errOut,
		stats:    stats.NewCollector(),
		status:   func() engine.Status { return engine.Status{} },
		interval: time.Hour,
		verbose:  verbose,
		progress: true,
	}
}

func TestPlainPresenterChunkLifecycle(t *testing.T) {
	var out, errOut bytes.Buffer
	p := newPlain(&out, &errOut, false)

	events := make(chan Event, 10)
	events <- Event{Type: ChunksPlanned, Profile: "docs", Total: 3, TotalSize: 3 << 20, Files: 30}
	events <- Event{Type: ChunkStarted, ChunkID: 1, Path: `C:\src\a`}
	events <- Event{Type: ChunkCompleted, ChunkID: 1, Path: `C:\src\a`, Size: 1 << 20, Files: 10, ExitCode: 1, Message: "files copied"}
	events <- Event{Type: ChunkFailed, ChunkID: 2, Path: `C:\src\b`, ExitCode: 16, Message: "fatal error"}
	close(events)

	require.NoError(t, p.Run(events))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3, "started lines are verbose only")
	assert.Contains(t, lines[0], "3 chunks")
	assert.Contains(t, lines[1], "copied")
	assert.Contains(t, lines[1], `C:\src\a`)
	assert.Contains(t, lines[1], "1.0 MiB")
	assert.Contains(t, lines[1], "exit 1: files copied")
	assert.Contains(t, lines[2], "failed")
	assert.Contains(t, lines[2], "exit 16: fatal error")
	assert.Empty(t, errOut.String())
}

func TestPlainPresenterVerboseShowsStarts(t *testing.T) {
	var out, errOut bytes.Buffer
	p := newPlain(&out, &errOut, true)

	events := make(chan Event, 1)
	events <- Event{Type: ChunkStarted, ChunkID: 7, Path: "/src/x", PID: 4242, Size: 2048}
	close(events)

	require.NoError(t, p.Run(events))
	assert.Contains(t, out.String(), "started")
	assert.Contains(t, out.String(), "#7")
	assert.Contains(t, out.String(), "pid 4242")
}

func TestPlainPresenterDegraded(t *testing.T) {
	var out, errOut bytes.Buffer
	p := newPlain(&out, &errOut, false)

	events := make(chan Event, 1)
	events <- Event{Type: Degraded, Path: "/src", Message: "snapshot", Error: errors.New("vss unavailable")}
	close(events)

	require.NoError(t, p.Run(events))
	assert.Contains(t, out.String(), "degraded")
	assert.Contains(t, out.String(), "without snapshot: vss unavailable")
}

func TestPlainPresenterPrintsProgress(t *testing.T) {
	var out, errOut bytes.Buffer
	eta := 90 * time.Second
	p := newPlain(&out, &errOut, false)
	p.interval = 5 * time.Millisecond
	p.status = func() engine.Status {
		return engine.Status{
			Profile:        "docs",
			Profiles:       []string{"docs"},
			TotalChunks:    4,
			CompletedCount: 1,
			Percent:        25,
			TotalBytes:     4096,
			BytesComplete:  1024,
			ETA:            &eta,
		}
	}

	events := make(chan Event)
	go func() {
		time.Sleep(50 * time.Millisecond)
		close(events)
	}()
	require.NoError(t, p.Run(events))

	assert.Contains(t, errOut.String(), "progress: docs 25% 1/4 chunks")
	assert.Contains(t, errOut.String(), "eta 1m 30s")
}

func TestPlainPresenterSummary(t *testing.T) {
	var out, errOut bytes.Buffer
	p := newPlain(&out, &errOut, false)
	assert.Contains(t, p.Summary(), "done ✓")
}

func TestNewPresenterSelection(t *testing.T) {
	var out bytes.Buffer
	_, quiet := NewPresenter(Config{Quiet: true}).(*quietPresenter)
	assert.True(t, quiet)

	plain, ok := NewPresenter(Config{Writer: &out, ErrWriter: &out}).(*plainPresenter)
	require.True(t, ok)
	assert.Equal(t, DefaultProgressInterval, plain.interval)
	assert.True(t, plain.progress)

	plain, ok = NewPresenter(Config{Writer: &out, ErrWriter: &out, IsTTY: true, NoProgress: true}).(*plainPresenter)
	require.True(t, ok)
	assert.False(t, plain.progress)

	_, hud := NewPresenter(Config{Writer: &out, ErrWriter: &out, IsTTY: true}).(*hudPresenter)
	assert.True(t, hud)
}
