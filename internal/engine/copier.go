package engine

import (
	"context"
	"io"

	"github.com/bamsammich/beamsplit/internal/chunk"
)

// Job is a handle to one running copy-tool process.
type Job interface {
	// PID identifies the job among running jobs.
	PID() int
}

// RetryPolicy is passed through to the copy tool for its own per-file
// retries. It is independent of chunk-level retries.
type RetryPolicy struct {
	Retries     int
	WaitSeconds int
}

// Summary is what a finished copy-tool run reports.
type Summary struct {
	BytesCopied  int64
	FilesCopied  int64
	FilesSkipped int64
	FilesFailed  int64
}

// Copier launches and supervises copy-tool processes, one per chunk.
type Copier interface {
	// Start launches a copy of c. An error means nothing was started.
	Start(ctx context.Context, c *chunk.Chunk, policy RetryPolicy, throttleMs int) (Job, error)
	// Poll reports whether the process has exited and, if so, its exit code.
	Poll(j Job) (exited bool, exitCode int)
	// ParseSummary reads the run's summary. Missing or unparseable output
	// yields zeros.
	ParseSummary(j Job) Summary
	// Kill terminates the process and everything it started.
	Kill(j Job) error
}

// Lister produces a directory listing that tree.BuildTree can parse.
type Lister interface {
	List(ctx context.Context, root string) (io.ReadCloser, error)
}
