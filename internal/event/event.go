package event

import "time"

// Type identifies the kind of event.
type Type int

const (
	ProfileStarted Type = iota + 1
	ProfileComplete
	ProfileFailed
	ChunksPlanned
	ChunkStarted
	ChunkCompleted
	ChunkFailed
	ChunkRetried
	ChunkSkipped
	ChunkLaunchFailed
	ChunkKilled
	Degraded
)

var typeNames = [...]string{
	ProfileStarted:    "ProfileStarted",
	ProfileComplete:   "ProfileComplete",
	ProfileFailed:     "ProfileFailed",
	ChunksPlanned:     "ChunksPlanned",
	ChunkStarted:      "ChunkStarted",
	ChunkCompleted:    "ChunkCompleted",
	ChunkFailed:       "ChunkFailed",
	ChunkRetried:      "ChunkRetried",
	ChunkSkipped:      "ChunkSkipped",
	ChunkLaunchFailed: "ChunkLaunchFailed",
	ChunkKilled:       "ChunkKilled",
	Degraded:          "Degraded",
}

func (t Type) String() string {
	if t > 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "Unknown"
}

// Event represents a single lifecycle event from the orchestrator.
type Event struct {
	Timestamp time.Time
	Error     error
	Profile   string
	Path      string // chunk source path
	Message   string
	ChunkID   int64
	Size      int64 // estimated or copied bytes
	Files     int64
	Total     int64 // chunk count (ChunksPlanned, ProfileComplete)
	TotalSize int64 // bytes (ChunksPlanned)
	Type      Type
	ExitCode  int
	PID       int
	Attempt   int
}

// Emit sends e on ch without blocking. A nil channel drops the event.
func Emit(ch chan<- Event, e Event) {
	if ch == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	select {
	case ch <- e:
	default:
	}
}
