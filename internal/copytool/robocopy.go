// Package copytool launches the external bulk-copy tool, one process per
// chunk, and reads back what each run reports.
package copytool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/bamsammich/beamsplit/internal/chunk"
	"github.com/bamsammich/beamsplit/internal/engine"
)

// DefaultProgram is the copy tool looked up on PATH when Program is empty.
const DefaultProgram = "robocopy"

// ErrNotExited is returned by ExitCode for a job that is still running.
var ErrNotExited = errors.New("copy process has not exited")

// Robocopy runs robocopy (or a compatible program) for each chunk. Each
// run writes its own log under LogDir, which ParseSummary reads back. When
// LogDir is empty the logs go to the temp dir and are removed once read.
type Robocopy struct {
	Logger    *slog.Logger
	Program   string
	LogDir    string
	ExtraArgs []string // appended to every copy invocation
}

var (
	_ engine.Copier = (*Robocopy)(nil)
	_ engine.Lister = (*Robocopy)(nil)
)

// job is one running copy process.
type job struct {
	cmd     *exec.Cmd
	done    chan struct{}
	logPath string
	chunkID int64
	pid     int
	code    atomic.Int64
	tempLog bool
	killed  atomic.Bool
}

// removeLog deletes a log written to the temp dir.
func (j *job) removeLog(logger *slog.Logger) {
	if !j.tempLog {
		return
	}
	if err := os.Remove(j.logPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Debug("cannot remove copy log", "chunk", j.chunkID, "log", j.logPath, "error", err)
	}
}

func (j *job) PID() int { return j.pid }

func (r *Robocopy) program() string {
	if r.Program != "" {
		return r.Program
	}
	return DefaultProgram
}

func (r *Robocopy) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// Args returns the command line for copying c. logPath is where the tool
// writes its log.
func (r *Robocopy) Args(c *chunk.Chunk, policy engine.RetryPolicy, throttleMs int, logPath string) []string {
	args := []string{c.SourcePath, c.DestinationPath}
	if !c.IsFilesOnly {
		args = append(args, "/E")
	}
	args = append(args, c.ExtraArgs...)
	args = append(args,
		"/R:"+strconv.Itoa(max(policy.Retries, 0)),
		"/W:"+strconv.Itoa(max(policy.WaitSeconds, 0)),
	)
	if throttleMs > 0 {
		args = append(args, "/IPG:"+strconv.Itoa(throttleMs))
	}
	args = append(args, "/NP", "/BYTES", "/UNILOG:"+logPath)
	return append(args, r.ExtraArgs...)
}

// Start launches the copy for c. The process is not tied to ctx: it is
// only ever ended by Kill, so a cancelled run can account for it.
func (r *Robocopy) Start(ctx context.Context, c *chunk.Chunk, policy engine.RetryPolicy, throttleMs int) (engine.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logDir := r.LogDir
	if logDir == "" {
		logDir = os.TempDir()
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	logPath := filepath.Join(logDir, fmt.Sprintf("chunk-%d-%s.log", c.ID, uuid.NewString()))

	cmd := exec.Command(r.program(), r.Args(c, policy, throttleMs, logPath)...) //nolint:gosec // program comes from configuration
	// the tool logs to its /UNILOG file; stdio stays on the null device
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", r.program(), err)
	}

	j := &job{
		cmd: cmd, done: make(chan struct{}), logPath: logPath, chunkID: c.ID,
		pid: cmd.Process.Pid, tempLog: r.LogDir == "",
	}
	go func() {
		err := cmd.Wait()
		code := cmd.ProcessState.ExitCode()
		j.code.Store(int64(code))
		r.logger().Debug("copy process exited", "chunk", c.ID, "pid", j.pid, "exit_code", code, "error", err)
		close(j.done)
		// a killed job is never summarized, so its log is dropped here
		if j.killed.Load() {
			j.removeLog(r.logger())
		}
	}()
	return j, nil
}

// Poll reports whether the job's process has exited. A process killed by
// a signal reports exit code -1.
func (r *Robocopy) Poll(ej engine.Job) (bool, int) {
	j, ok := ej.(*job)
	if !ok {
		return true, -1
	}
	select {
	case <-j.done:
		return true, int(j.code.Load())
	default:
		return false, 0
	}
}

// ExitCode returns the exit code of a finished job, or ErrNotExited.
func (r *Robocopy) ExitCode(ej engine.Job) (int, error) {
	exited, code := r.Poll(ej)
	if !exited {
		return 0, ErrNotExited
	}
	return code, nil
}

// ParseSummary reads the job's log. A missing or unreadable log yields a
// zero summary.
func (r *Robocopy) ParseSummary(ej engine.Job) engine.Summary {
	j, ok := ej.(*job)
	if !ok {
		return engine.Summary{}
	}
	defer j.removeLog(r.logger())
	s, err := ReadSummaryFile(j.logPath)
	if err != nil {
		r.logger().Debug("no copy summary", "chunk", j.chunkID, "log", j.logPath, "error", err)
		return engine.Summary{}
	}
	return s
}

// Kill ends the job's process and every process it started.
func (r *Robocopy) Kill(ej engine.Job) error {
	j, ok := ej.(*job)
	if !ok {
		return fmt.Errorf("unknown job type %T", ej)
	}
	j.killed.Store(true)
	select {
	case <-j.done:
		j.removeLog(r.logger())
		return nil
	default:
	}
	if err := killProcessGroup(j.cmd); err != nil {
		return fmt.Errorf("kill pid %d: %w", j.pid, err)
	}
	return nil
}
