package ui

import "github.com/bamsammich/beamsplit/internal/event"

// Event is the orchestrator's lifecycle event.
type Event = event.Event

// Re-export event types for convenience.
const (
	ProfileStarted    = event.ProfileStarted
	ProfileComplete   = event.ProfileComplete
	ProfileFailed     = event.ProfileFailed
	ChunksPlanned     = event.ChunksPlanned
	ChunkStarted      = event.ChunkStarted
	ChunkCompleted    = event.ChunkCompleted
	ChunkFailed       = event.ChunkFailed
	ChunkRetried      = event.ChunkRetried
	ChunkSkipped      = event.ChunkSkipped
	ChunkLaunchFailed = event.ChunkLaunchFailed
	ChunkKilled       = event.ChunkKilled
	Degraded          = event.Degraded
)
