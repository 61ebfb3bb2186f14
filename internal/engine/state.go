package engine

import (
	"cmp"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bamsammich/beamsplit/internal/chunk"
)

// Phase is the run-wide orchestration phase.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseRunning
	PhaseComplete
	PhaseStopped
)

var phaseNames = [...]string{
	PhaseIdle:     "idle",
	PhaseRunning:  "running",
	PhaseComplete: "complete",
	PhaseStopped:  "stopped",
}

func (p Phase) String() string {
	if p >= 0 && int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Queue is a mutex-guarded FIFO of chunks. Chunks are only mutated while
// they sit in no queue, so Snapshot can copy them under the lock.
type Queue struct {
	mu    sync.Mutex
	items []*chunk.Chunk
}

// Push appends chunks to the tail.
func (q *Queue) Push(c ...*chunk.Chunk) {
	q.mu.Lock()
	q.items = append(q.items, c...)
	q.mu.Unlock()
}

// Pop removes the head. ok is false when the queue is empty.
func (q *Queue) Pop() (*chunk.Chunk, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	c := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return c, true
}

// Remove takes the chunk with the given id out of the queue.
func (q *Queue) Remove(id int64) (*chunk.Chunk, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	i := slices.IndexFunc(q.items, func(c *chunk.Chunk) bool { return c.ID == id })
	if i < 0 {
		return nil, false
	}
	c := q.items[i]
	q.items = slices.Delete(q.items, i, i+1)
	return c, true
}

// Drain empties the queue and returns its contents in order.
func (q *Queue) Drain() []*chunk.Chunk {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}

// Len returns the number of queued chunks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Snapshot returns copies of the queued chunks in order.
func (q *Queue) Snapshot() []chunk.Chunk {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]chunk.Chunk, len(q.items))
	for i, c := range q.items {
		out[i] = c.Clone()
	}
	return out
}

// ActiveJob is a running copy-tool invocation.
type ActiveJob struct {
	Started    time.Time
	Job        Job
	Chunk      *chunk.Chunk
	ThrottleMs int
}

// ActiveInfo is an observer's view of an ActiveJob.
type ActiveInfo struct {
	Started    time.Time `json:"started"`
	Source     string    `json:"source"`
	ChunkID    int64     `json:"chunk_id"`
	Estimated  int64     `json:"estimated_bytes"`
	PID        int       `json:"pid"`
	ThrottleMs int       `json:"throttle_ms"`
	Attempt    int       `json:"attempt"`
}

// State is the run-wide orchestration state. The tick is its only writer;
// observers may read it concurrently.
type State struct {
	now func() time.Time

	Pending   Queue
	Failed    Queue
	Completed Queue
	Skipped   Queue

	activeMu sync.RWMutex
	active   map[int]*ActiveJob

	TotalChunks    atomic.Int64
	TotalBytes     atomic.Int64
	BytesComplete  atomic.Int64
	FilesComplete  atomic.Int64
	CompletedCount atomic.Int64
	phase          atomic.Int32

	mu               sync.RWMutex
	currentProfile   string
	profiles         []string
	profileIndex     int
	startTime        time.Time
	profileStartTime time.Time
}

// NewState returns an idle state. clock may be nil.
func NewState(clock func() time.Time) *State {
	if clock == nil {
		clock = time.Now
	}
	return &State{now: clock, active: make(map[int]*ActiveJob), profileIndex: -1}
}

// Reset prepares the state for a new run over profiles.
func (s *State) Reset(profiles []string) {
	s.clear()
	s.mu.Lock()
	s.profiles = slices.Clone(profiles)
	s.profileIndex = -1
	s.currentProfile = ""
	s.startTime = s.now()
	s.profileStartTime = time.Time{}
	s.mu.Unlock()
	s.phase.Store(int32(PhaseIdle))
}

// ResetForNewProfile clears queues and counters and makes name current.
// A stopped run stays stopped.
func (s *State) ResetForNewProfile(name string) {
	s.clear()
	s.mu.Lock()
	s.currentProfile = name
	s.profileIndex++
	s.profileStartTime = s.now()
	if s.startTime.IsZero() {
		s.startTime = s.profileStartTime
	}
	s.mu.Unlock()
	s.phase.CompareAndSwap(int32(PhaseIdle), int32(PhaseRunning))
	s.phase.CompareAndSwap(int32(PhaseComplete), int32(PhaseRunning))
}

func (s *State) clear() {
	s.Pending.Drain()
	s.Failed.Drain()
	s.Completed.Drain()
	s.Skipped.Drain()
	s.activeMu.Lock()
	s.active = make(map[int]*ActiveJob)
	s.activeMu.Unlock()
	s.TotalChunks.Store(0)
	s.TotalBytes.Store(0)
	s.BytesComplete.Store(0)
	s.FilesComplete.Store(0)
	s.CompletedCount.Store(0)
}

// Enqueue adds planned chunks to Pending and to the totals.
func (s *State) Enqueue(chunks []*chunk.Chunk) {
	var bytes int64
	for _, c := range chunks {
		c.Status = chunk.Pending
		bytes += c.EstimatedSize
	}
	s.Pending.Push(chunks...)
	s.TotalChunks.Add(int64(len(chunks)))
	s.TotalBytes.Add(bytes)
}

// Phase returns the current phase.
func (s *State) Phase() Phase { return Phase(s.phase.Load()) }

func (s *State) setPhase(p Phase) { s.phase.Store(int32(p)) }

// Profile returns the current profile name and its index.
func (s *State) Profile() (string, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentProfile, s.profileIndex
}

// Profiles returns the run's profile names.
func (s *State) Profiles() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.profiles)
}

// StartTime returns when the run started.
func (s *State) StartTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.startTime
}

// ProfileStartTime returns when the current profile started.
func (s *State) ProfileStartTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profileStartTime
}

func (s *State) addActive(pid int, j *ActiveJob) {
	s.activeMu.Lock()
	s.active[pid] = j
	s.activeMu.Unlock()
}

func (s *State) removeActive(pid int) {
	s.activeMu.Lock()
	delete(s.active, pid)
	s.activeMu.Unlock()
}

func (s *State) hasActive(pid int) bool {
	s.activeMu.RLock()
	defer s.activeMu.RUnlock()
	_, ok := s.active[pid]
	return ok
}

// ActiveCount returns the number of running jobs.
func (s *State) ActiveCount() int {
	s.activeMu.RLock()
	defer s.activeMu.RUnlock()
	return len(s.active)
}

type activeEntry struct {
	job *ActiveJob
	pid int
}

// activeJobs returns the running jobs ordered by chunk id.
func (s *State) activeJobs() []activeEntry {
	s.activeMu.RLock()
	out := make([]activeEntry, 0, len(s.active))
	for pid, j := range s.active {
		out = append(out, activeEntry{pid: pid, job: j})
	}
	s.activeMu.RUnlock()
	slices.SortFunc(out, func(a, b activeEntry) int {
		return cmp.Compare(a.job.Chunk.ID, b.job.Chunk.ID)
	})
	return out
}

// Active returns an observer's view of the running jobs, ordered by chunk id.
func (s *State) Active() []ActiveInfo {
	s.activeMu.RLock()
	out := make([]ActiveInfo, 0, len(s.active))
	for pid, j := range s.active {
		out = append(out, ActiveInfo{
			ChunkID:    j.Chunk.ID,
			PID:        pid,
			Source:     j.Chunk.SourcePath,
			Estimated:  j.Chunk.EstimatedSize,
			Started:    j.Started,
			ThrottleMs: j.ThrottleMs,
			Attempt:    j.Chunk.RetryCount + 1,
		})
	}
	s.activeMu.RUnlock()
	slices.SortFunc(out, func(a, b ActiveInfo) int { return cmp.Compare(a.ChunkID, b.ChunkID) })
	return out
}
