package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/bamsammich/beamsplit/internal/chunk"
	"github.com/bamsammich/beamsplit/internal/event"
	"github.com/bamsammich/beamsplit/internal/stats"
)

// MaxETA caps the reported time remaining.
const MaxETA = 30 * 24 * time.Hour

// ErrStopped is returned by Loop when the run was stopped.
var ErrStopped = errors.New("run stopped")

// Config controls dispatch and retry behaviour.
type Config struct {
	Events             chan<- event.Event
	Stats              *stats.Collector
	Logger             *slog.Logger
	Clock              func() time.Time
	OnComplete         func(c *chunk.Chunk) // called on the tick for each completed chunk
	Policy             RetryPolicy
	MaxConcurrentJobs  int
	MaxRetries         int
	BandwidthLimitMbps float64
	LaunchesPerSecond  float64
	MismatchSeverity   Severity
	// AwaitOperator keeps Loop ticking this long after the queues drain
	// with failures left, so operators can still retry them.
	AwaitOperator time.Duration
}

// Orchestrator dispatches chunks to a Copier and tracks their lifecycle.
// Tick is the only writer of its State; Retry, Skip and RetryAllFailed are
// serialized with it.
type Orchestrator struct {
	cfg     Config
	copier  Copier
	state   *State
	limiter *rate.Limiter
	logger  *slog.Logger
	stats   *stats.Collector
	now     func() time.Time

	tickMu     sync.Mutex
	checkpoint *CheckpointDB // guarded by tickMu
}

// NewOrchestrator creates an orchestrator with a fresh State.
func NewOrchestrator(copier Copier, cfg Config) *Orchestrator {
	if cfg.MaxConcurrentJobs <= 0 {
		cfg.MaxConcurrentJobs = 1
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	collector := cfg.Stats
	if collector == nil {
		collector = stats.NewCollector()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Orchestrator{
		cfg:     cfg,
		copier:  copier,
		state:   NewState(clock),
		limiter: NewLaunchLimiter(cfg.LaunchesPerSecond),
		logger:  logger.With("component", "orchestrator"),
		stats:   collector,
		now:     clock,
	}
}

// State returns the orchestration state for read-only observers.
func (o *Orchestrator) State() *State { return o.state }

// Stats returns the run-wide collector.
func (o *Orchestrator) Stats() *stats.Collector { return o.stats }

// setCheckpoint makes completed chunks be recorded in db. nil stops
// recording.
func (o *Orchestrator) setCheckpoint(db *CheckpointDB) {
	o.tickMu.Lock()
	defer o.tickMu.Unlock()
	o.checkpoint = db
}

func (o *Orchestrator) emit(e event.Event) {
	if e.Profile == "" {
		e.Profile, _ = o.state.Profile()
	}
	event.Emit(o.cfg.Events, e)
}

// Stop asks the next tick to kill every running job and dispatch nothing
// further.
func (o *Orchestrator) Stop() {
	if o.state.Phase() != PhaseStopped {
		o.logger.Info("stop requested", "active", o.state.ActiveCount())
	}
	o.state.setPhase(PhaseStopped)
}

// Stopped reports whether Stop was called.
func (o *Orchestrator) Stopped() bool { return o.state.Phase() == PhaseStopped }

// Tick runs one poll/classify/dispatch cycle.
func (o *Orchestrator) Tick(ctx context.Context) {
	o.tickMu.Lock()
	defer o.tickMu.Unlock()

	if o.state.Phase() == PhaseStopped {
		o.killAll()
		return
	}
	o.pollActive()
	o.dispatch(ctx)

	if o.drained() && o.state.Phase() == PhaseRunning {
		o.state.phase.CompareAndSwap(int32(PhaseRunning), int32(PhaseComplete))
	}
}

func (o *Orchestrator) drained() bool {
	return o.state.Pending.Len() == 0 && o.state.ActiveCount() == 0
}

func (o *Orchestrator) pollActive() {
	for _, e := range o.state.activeJobs() {
		exited, code := o.copier.Poll(e.job.Job)
		if !exited {
			continue
		}
		summary := o.copier.ParseSummary(e.job.Job)
		o.state.removeActive(e.pid)
		o.finish(e.job, e.pid, code, summary)
		o.state.CompletedCount.Add(1)
	}
}

func (o *Orchestrator) finish(aj *ActiveJob, pid, code int, summary Summary) {
	c := aj.Chunk
	c.FinishedAt = o.now()
	cls := Classify(code, o.cfg.MismatchSeverity)
	log := o.logger.With("chunk", c.ID, "source", c.SourcePath, "exit_code", code, "pid", pid)

	o.stats.AddFilesSkipped(summary.FilesSkipped)
	o.stats.AddFilesFailed(summary.FilesFailed)

	switch {
	case cls.ShouldRetry && c.RetryCount < o.cfg.MaxRetries:
		c.RetryCount++
		c.ClearError()
		c.Status = chunk.Pending
		o.state.Pending.Push(c)
		o.stats.AddChunksRetried(1)
		log.Warn("chunk failed, retrying", "reason", cls.Message, "attempt", c.RetryCount, "max_retries", o.cfg.MaxRetries)
		o.emit(event.Event{
			Type: event.ChunkRetried, ChunkID: c.ID, Path: c.SourcePath,
			ExitCode: code, Message: cls.Message, Attempt: c.RetryCount, PID: pid,
		})

	case cls.Severity >= SeverityError:
		c.SetExit(code, cls.Message)
		c.Status = chunk.Failed
		o.state.Failed.Push(c)
		o.stats.AddChunksFailed(1)
		log.Error("chunk failed", "reason", cls.Message, "retries", c.RetryCount)
		o.emit(event.Event{
			Type: event.ChunkFailed, ChunkID: c.ID, Path: c.SourcePath,
			ExitCode: code, Message: cls.Message, Attempt: c.RetryCount, PID: pid,
		})

	default:
		c.SetExit(code, cls.Message)
		c.BytesCopied = summary.BytesCopied
		c.FilesCopied = summary.FilesCopied
		c.Status = chunk.Complete
		o.state.BytesComplete.Add(summary.BytesCopied)
		o.state.FilesComplete.Add(summary.FilesCopied)
		o.stats.AddBytesCopied(summary.BytesCopied)
		o.stats.AddFilesCopied(summary.FilesCopied)
		o.stats.AddChunksCompleted(1)
		if o.checkpoint != nil {
			if err := o.checkpoint.MarkCompleted(c); err != nil {
				log.Warn("cannot record completed chunk", "error", err)
			}
		}
		if o.cfg.OnComplete != nil {
			o.cfg.OnComplete(c)
		}
		o.state.Completed.Push(c)
		level := slog.LevelInfo
		if cls.Severity == SeverityWarning {
			level = slog.LevelWarn
		}
		log.Log(context.Background(), level, "chunk complete",
			"result", cls.Message, "bytes", summary.BytesCopied, "files", summary.FilesCopied)
		o.emit(event.Event{
			Type: event.ChunkCompleted, ChunkID: c.ID, Path: c.SourcePath,
			ExitCode: code, Message: cls.Message, Size: summary.BytesCopied,
			Files: summary.FilesCopied, PID: pid,
		})
	}
}

func (o *Orchestrator) dispatch(ctx context.Context) {
	for o.state.ActiveCount() < o.cfg.MaxConcurrentJobs && o.state.Pending.Len() > 0 {
		// a cancelled run leaves the rest Pending for Loop to stop
		if ctx.Err() != nil {
			return
		}
		if o.limiter != nil && !o.limiter.Allow() {
			return
		}
		c, ok := o.state.Pending.Pop()
		if !ok {
			return
		}
		throttle := ComputeThrottle(o.cfg.BandwidthLimitMbps, o.state.ActiveCount(), true)
		job, err := o.copier.Start(ctx, c, o.cfg.Policy, throttle)
		if err != nil {
			o.launchFailed(c, err)
			continue
		}

		pid := job.PID()
		if o.state.hasActive(pid) {
			// reused PID of a job that exited after this tick polled it
			o.logger.Warn("duplicate job id, keying by chunk", "pid", pid, "chunk", c.ID)
			pid = -int(c.ID)
		}
		c.Status = chunk.Running
		c.StartedAt = o.now()
		o.state.addActive(pid, &ActiveJob{Job: job, Chunk: c, Started: c.StartedAt, ThrottleMs: throttle})
		o.logger.Debug("chunk started",
			"chunk", c.ID, "source", c.SourcePath, "dest", c.DestinationPath,
			"files_only", c.IsFilesOnly, "throttle_ms", throttle, "pid", job.PID())
		o.emit(event.Event{
			Type: event.ChunkStarted, ChunkID: c.ID, Path: c.SourcePath,
			Size: c.EstimatedSize, Files: c.EstimatedFiles, PID: job.PID(), Attempt: c.RetryCount,
		})
	}
}

func (o *Orchestrator) launchFailed(c *chunk.Chunk, err error) {
	c.LastExitCode = nil
	c.LastErrorMessage = fmt.Sprintf("launch failed: %v", err)
	c.Status = chunk.Failed
	c.FinishedAt = o.now()
	o.state.Failed.Push(c)
	o.state.CompletedCount.Add(1)
	o.stats.AddChunksFailed(1)
	o.stats.AddChunksLaunchFailed(1)
	o.logger.Error("cannot launch copy", "chunk", c.ID, "source", c.SourcePath, "error", err)
	o.emit(event.Event{
		Type: event.ChunkLaunchFailed, ChunkID: c.ID, Path: c.SourcePath,
		Message: c.LastErrorMessage, Error: err,
	})
}

func (o *Orchestrator) killAll() {
	for _, e := range o.state.activeJobs() {
		c := e.job.Chunk
		if err := o.copier.Kill(e.job.Job); err != nil {
			o.logger.Warn("cannot kill copy process", "chunk", c.ID, "pid", e.pid, "error", err)
		}
		o.state.removeActive(e.pid)
		c.LastExitCode = nil
		c.LastErrorMessage = "stopped: copy process killed"
		c.Status = chunk.Failed
		c.FinishedAt = o.now()
		o.state.Failed.Push(c)
		o.state.CompletedCount.Add(1)
		o.stats.AddChunksFailed(1)
		o.logger.Warn("chunk killed", "chunk", c.ID, "source", c.SourcePath, "pid", e.pid)
		o.emit(event.Event{
			Type: event.ChunkKilled, ChunkID: c.ID, Path: c.SourcePath,
			Message: c.LastErrorMessage, PID: e.pid,
		})
	}
}

// Retry moves a failed chunk back to Pending with its retry count reset.
// It reports false, changing nothing, when id is not in the failed queue.
func (o *Orchestrator) Retry(id int64) bool {
	o.tickMu.Lock()
	defer o.tickMu.Unlock()

	c, ok := o.state.Failed.Remove(id)
	if !ok {
		o.logger.Warn("chunk not found in failed queue", "chunk", id, "action", "retry")
		return false
	}
	o.requeue(c)
	return true
}

// RetryAllFailed retries every failed chunk and returns how many there were.
func (o *Orchestrator) RetryAllFailed() int {
	o.tickMu.Lock()
	defer o.tickMu.Unlock()

	failed := o.state.Failed.Drain()
	for _, c := range failed {
		o.requeue(c)
	}
	if len(failed) > 0 {
		o.logger.Info("retrying failed chunks", "count", len(failed))
	}
	return len(failed)
}

func (o *Orchestrator) requeue(c *chunk.Chunk) {
	c.RetryCount = 0
	c.ClearError()
	c.Status = chunk.Pending
	o.state.Pending.Push(c)
	o.state.phase.CompareAndSwap(int32(PhaseComplete), int32(PhaseRunning))
	o.stats.AddChunksFailed(-1)
	o.logger.Info("chunk requeued by operator", "chunk", c.ID, "source", c.SourcePath)
	o.emit(event.Event{Type: event.ChunkRetried, ChunkID: c.ID, Path: c.SourcePath, Message: "operator retry"})
}

// Skip gives up on a failed chunk. It reports false, changing nothing, when
// id is not in the failed queue.
func (o *Orchestrator) Skip(id int64) bool {
	o.tickMu.Lock()
	defer o.tickMu.Unlock()

	c, ok := o.state.Failed.Remove(id)
	if !ok {
		o.logger.Warn("chunk not found in failed queue", "chunk", id, "action", "skip")
		return false
	}
	c.Status = chunk.Skipped
	o.state.Skipped.Push(c)
	o.stats.AddChunksFailed(-1)
	o.stats.AddChunksSkipped(1)
	o.logger.Warn("chunk skipped by operator", "chunk", c.ID, "source", c.SourcePath, "last_error", c.LastErrorMessage)
	o.emit(event.Event{Type: event.ChunkSkipped, ChunkID: c.ID, Path: c.SourcePath, Message: c.LastErrorMessage})
	return true
}

// Progress returns the share of the current profile's chunks that have
// finished, as a whole percentage in [0, 100].
func (o *Orchestrator) Progress() int {
	return progressPercent(o.state.CompletedCount.Load(), o.state.TotalChunks.Load())
}

func progressPercent(completed, total int64) int {
	if total <= 0 {
		return 0
	}
	pct := 100 * completed / total
	return int(min(max(pct, 0), 100))
}

// ETA estimates the time until the current profile's bytes are copied.
// ok is false when there is not enough information yet.
func (o *Orchestrator) ETA() (eta time.Duration, ok bool) {
	start := o.state.ProfileStartTime()
	if start.IsZero() {
		start = o.state.StartTime()
	}
	return estimate(o.state.TotalBytes.Load(), o.state.BytesComplete.Load(), start, o.now())
}

func estimate(total, done int64, start, now time.Time) (time.Duration, bool) {
	if total <= 0 || start.IsZero() || done <= 0 {
		return 0, false
	}
	if done >= total {
		return 0, true
	}
	elapsed := now.Sub(start).Seconds()
	if elapsed <= 0 {
		return 0, false
	}
	rate := float64(done) / elapsed
	secs := float64(total-done) / rate
	if secs >= MaxETA.Seconds() {
		return MaxETA, true
	}
	return time.Duration(secs * float64(time.Second)), true
}

// Loop ticks every interval until the profile's chunks are drained, Stop
// is called or ctx is cancelled. Cancelling ctx stops the run.
func (o *Orchestrator) Loop(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lingerUntil time.Time
	o.Tick(ctx)
	for {
		if o.Stopped() {
			if o.state.ActiveCount() == 0 {
				return ErrStopped
			}
		} else if o.drained() {
			if o.cfg.AwaitOperator <= 0 || o.state.Failed.Len() == 0 {
				return nil
			}
			if lingerUntil.IsZero() {
				lingerUntil = o.now().Add(o.cfg.AwaitOperator)
				o.logger.Warn("waiting for operator action on failed chunks",
					"failed", o.state.Failed.Len(), "timeout", o.cfg.AwaitOperator)
			} else if !o.now().Before(lingerUntil) {
				return nil
			}
		} else {
			lingerUntil = time.Time{}
		}

		select {
		case <-ctx.Done():
			o.Stop()
			o.Tick(context.WithoutCancel(ctx))
			return ctx.Err()
		case <-ticker.C:
			o.Tick(ctx)
		}
	}
}
