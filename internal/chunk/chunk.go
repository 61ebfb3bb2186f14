// Package chunk splits a source tree into units of copy work that together
// cover every byte and file exactly once.
package chunk

import (
	"fmt"
	"sync/atomic"
	"time"
)

// FilesOnlyArg restricts a copy to the files directly inside the source
// directory.
const FilesOnlyArg = "/LEV:1"

// Status is the lifecycle state of a chunk.
type Status int

const (
	Pending Status = iota
	Running
	Complete
	Failed
	Skipped
)

var statusNames = [...]string{
	Pending:  "pending",
	Running:  "running",
	Complete: "complete",
	Failed:   "failed",
	Skipped:  "skipped",
}

func (s Status) String() string {
	if s >= 0 && int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "unknown"
}

// Terminal reports whether no further transitions are possible without
// operator action.
func (s Status) Terminal() bool {
	return s == Complete || s == Skipped
}

// Chunk is one unit of copy work: a directory copied recursively, or the
// files directly inside a directory when IsFilesOnly is set.
type Chunk struct {
	StartedAt        time.Time
	FinishedAt       time.Time
	LastExitCode     *int
	SourcePath       string
	DestinationPath  string
	Profile          string
	LastErrorMessage string
	ExtraArgs        []string
	ID               int64
	EstimatedSize    int64
	EstimatedFiles   int64
	BytesCopied      int64
	FilesCopied      int64
	Depth            int
	RetryCount       int
	Status           Status
	IsFilesOnly      bool
}

var lastID atomic.Int64

// NextID returns a process-wide unique, increasing chunk id.
func NextID() int64 {
	return lastID.Add(1)
}

// New creates a pending chunk with a fresh id.
func New(src, dst string, size, files int64) *Chunk {
	return &Chunk{
		ID:              NextID(),
		SourcePath:      src,
		DestinationPath: dst,
		EstimatedSize:   size,
		EstimatedFiles:  files,
		Status:          Pending,
	}
}

// NewFilesOnly creates a pending chunk covering only the files directly in
// src.
func NewFilesOnly(src, dst string, size, files int64) *Chunk {
	c := New(src, dst, size, files)
	c.IsFilesOnly = true
	c.ExtraArgs = []string{FilesOnlyArg}
	return c
}

// ClearError resets the result of the last attempt.
func (c *Chunk) ClearError() {
	c.LastExitCode = nil
	c.LastErrorMessage = ""
}

// SetExit records the exit code and message of the last attempt.
func (c *Chunk) SetExit(code int, msg string) {
	c.LastExitCode = &code
	c.LastErrorMessage = msg
}

// Clone returns a deep copy safe to hand to observers.
func (c *Chunk) Clone() Chunk {
	out := *c
	if c.ExtraArgs != nil {
		out.ExtraArgs = append([]string(nil), c.ExtraArgs...)
	}
	if c.LastExitCode != nil {
		code := *c.LastExitCode
		out.LastExitCode = &code
	}
	return out
}

// Key identifies a chunk's coverage independent of its id.
func (c *Chunk) Key() string {
	if c.IsFilesOnly {
		return c.SourcePath + "\x00files"
	}
	return c.SourcePath
}

func (c *Chunk) String() string {
	kind := "dir"
	if c.IsFilesOnly {
		kind = "files"
	}
	return fmt.Sprintf("#%d %s %s -> %s", c.ID, kind, c.SourcePath, c.DestinationPath)
}
