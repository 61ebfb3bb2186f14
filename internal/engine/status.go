package engine

import (
	"time"

	"github.com/bamsammich/beamsplit/internal/chunk"
)

// Status is a point-in-time view of the orchestrator for presenters and the
// status endpoint.
type Status struct {
	StartTime        time.Time      `json:"start_time"`
	ProfileStartTime time.Time      `json:"profile_start_time"`
	ETA              *time.Duration `json:"eta_ns,omitempty"`
	Profile          string         `json:"profile"`
	Phase            Phase          `json:"phase"`
	Active           []ActiveInfo   `json:"active"`
	Failed           []chunk.Chunk  `json:"failed"`
	Profiles         []string       `json:"profiles"`
	ProfileIndex     int            `json:"profile_index"`
	Pending          int            `json:"pending"`
	Completed        int            `json:"completed"`
	Skipped          int            `json:"skipped"`
	Percent          int            `json:"percent"`
	TotalChunks      int64          `json:"total_chunks"`
	CompletedCount   int64          `json:"completed_count"`
	TotalBytes       int64          `json:"total_bytes"`
	BytesComplete    int64          `json:"bytes_complete"`
	FilesComplete    int64          `json:"files_complete"`
}

// Snapshot returns the current status. It does not wait for a running tick.
func (o *Orchestrator) Snapshot() Status {
	s := o.state
	profile, idx := s.Profile()
	st := Status{
		Phase:            s.Phase(),
		Profile:          profile,
		ProfileIndex:     idx,
		Profiles:         s.Profiles(),
		StartTime:        s.StartTime(),
		ProfileStartTime: s.ProfileStartTime(),
		Pending:          s.Pending.Len(),
		Active:           s.Active(),
		Failed:           s.Failed.Snapshot(),
		Completed:        s.Completed.Len(),
		Skipped:          s.Skipped.Len(),
		TotalChunks:      s.TotalChunks.Load(),
		CompletedCount:   s.CompletedCount.Load(),
		TotalBytes:       s.TotalBytes.Load(),
		BytesComplete:    s.BytesComplete.Load(),
		FilesComplete:    s.FilesComplete.Load(),
	}
	st.Percent = progressPercent(st.CompletedCount, st.TotalChunks)
	if eta, ok := o.ETA(); ok {
		st.ETA = &eta
	}
	return st
}
