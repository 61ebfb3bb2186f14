package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/beamsplit/internal/chunk"
)

func TestQueue_FIFO(t *testing.T) {
	var q Queue
	cs := makeChunks(3)
	q.Push(cs[0], cs[1])
	q.Push(cs[2])
	assert.Equal(t, 3, q.Len())

	c, ok := q.Pop()
	require.True(t, ok)
	assert.Same(t, cs[0], c)

	removed, ok := q.Remove(cs[2].ID)
	require.True(t, ok)
	assert.Same(t, cs[2], removed)
	_, ok = q.Remove(cs[2].ID)
	assert.False(t, ok)

	snap := q.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, cs[1].ID, snap[0].ID)

	assert.Len(t, q.Drain(), 1)
	_, ok = q.Pop()
	assert.False(t, ok)
}

func TestQueue_SnapshotIsACopy(t *testing.T) {
	var q Queue
	c := chunk.NewFilesOnly("/a", "/b", 1, 1)
	q.Push(c)

	snap := q.Snapshot()
	snap[0].Status = chunk.Skipped
	snap[0].ExtraArgs[0] = "/E"
	assert.Equal(t, chunk.Pending, c.Status)
	assert.Equal(t, chunk.FilesOnlyArg, c.ExtraArgs[0])
}

func TestState_Lifecycle(t *testing.T) {
	clk := newFakeClock()
	s := NewState(clk.Now)
	assert.Equal(t, PhaseIdle, s.Phase())

	s.Reset([]string{"docs", "media"})
	runStart := s.StartTime()
	assert.Equal(t, clk.Now(), runStart)
	name, idx := s.Profile()
	assert.Empty(t, name)
	assert.Equal(t, -1, idx)
	assert.Equal(t, []string{"docs", "media"}, s.Profiles())

	clk.Advance(time.Minute)
	s.ResetForNewProfile("docs")
	s.Enqueue(makeChunks(2))
	s.BytesComplete.Add(50)
	s.CompletedCount.Add(1)
	name, idx = s.Profile()
	assert.Equal(t, "docs", name)
	assert.Equal(t, 0, idx)
	assert.Equal(t, PhaseRunning, s.Phase())
	assert.Equal(t, int64(2), s.TotalChunks.Load())
	assert.Equal(t, int64(200), s.TotalBytes.Load())
	assert.Equal(t, runStart.Add(time.Minute), s.ProfileStartTime())

	clk.Advance(time.Minute)
	s.ResetForNewProfile("media")
	name, idx = s.Profile()
	assert.Equal(t, "media", name)
	assert.Equal(t, 1, idx)
	assert.Equal(t, 0, s.Pending.Len())
	assert.Zero(t, s.TotalChunks.Load())
	assert.Zero(t, s.BytesComplete.Load())
	assert.Zero(t, s.CompletedCount.Load())
	assert.Equal(t, runStart, s.StartTime(), "run start survives profile resets")
	assert.Equal(t, runStart.Add(2*time.Minute), s.ProfileStartTime())
}

func TestState_StoppedSurvivesProfileReset(t *testing.T) {
	s := NewState(nil)
	s.ResetForNewProfile("a")
	s.setPhase(PhaseStopped)
	s.ResetForNewProfile("b")
	assert.Equal(t, PhaseStopped, s.Phase())

	s.Reset(nil)
	assert.Equal(t, PhaseIdle, s.Phase())
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "stopped", PhaseStopped.String())
	assert.Equal(t, "unknown", Phase(42).String())
	b, err := PhaseRunning.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "running", string(b))
}
