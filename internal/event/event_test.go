package event

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypeString(t *testing.T) {
	tests := []struct {
		want string
		typ  Type
	}{
		{want: "ProfileStarted", typ: ProfileStarted},
		{want: "ProfileComplete", typ: ProfileComplete},
		{want: "ProfileFailed", typ: ProfileFailed},
		{want: "ChunksPlanned", typ: ChunksPlanned},
		{want: "ChunkStarted", typ: ChunkStarted},
		{want: "ChunkCompleted", typ: ChunkCompleted},
		{want: "ChunkFailed", typ: ChunkFailed},
		{want: "ChunkRetried", typ: ChunkRetried},
		{want: "ChunkSkipped", typ: ChunkSkipped},
		{want: "ChunkLaunchFailed", typ: ChunkLaunchFailed},
		{want: "ChunkKilled", typ: ChunkKilled},
		{want: "Degraded", typ: Degraded},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.typ.String())
		})
	}
}

func TestTypeStringUnknown(t *testing.T) {
	assert.Equal(t, "Unknown", Type(999).String())
	assert.Equal(t, "Unknown", Type(0).String())
}

func TestEventZeroValue(t *testing.T) {
	var e Event
	assert.Equal(t, Type(0), e.Type)
	assert.True(t, e.Timestamp.IsZero())
	assert.Empty(t, e.Path)
	assert.Zero(t, e.ChunkID)
	require.NoError(t, e.Error)
}

func TestEmit(t *testing.T) {
	ch := make(chan Event, 1)
	Emit(ch, Event{Type: ChunkStarted, ChunkID: 7})
	// buffer full: dropped, not blocked
	Emit(ch, Event{Type: ChunkFailed, Error: errors.New("boom")})

	got := <-ch
	assert.Equal(t, ChunkStarted, got.Type)
	assert.Equal(t, int64(7), got.ChunkID)
	assert.WithinDuration(t, time.Now(), got.Timestamp, time.Minute)
	assert.Empty(t, ch)

	Emit(nil, Event{Type: ChunkStarted})
}
