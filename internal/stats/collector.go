package stats

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const ringSize = 60

// Reader is the read side of a Collector.
type Reader interface {
	Snapshot() Snapshot
	RollingSpeed(seconds int) float64
	RollingFilesPerSec(seconds int) float64
	SparklineData(n int) []float64
	ETA() time.Duration
}

// ReadTicker is a Reader that the presenter also advances once a second.
type ReadTicker interface {
	Reader
	Tick()
}

// Collector tracks run-wide copy statistics using lock-free atomic counters.
// Chunk counters are cumulative across profiles.
type Collector struct {
	startTime time.Time

	chunksTotal        atomic.Int64
	chunksCompleted    atomic.Int64
	chunksFailed       atomic.Int64
	chunksSkipped      atomic.Int64
	chunksRetried      atomic.Int64
	chunksLaunchFailed atomic.Int64
	bytesCopied        atomic.Int64
	filesCopied        atomic.Int64
	filesSkipped       atomic.Int64
	filesFailed        atomic.Int64
	bytesTotal         atomic.Int64
	filesTotal         atomic.Int64

	// Ring buffer: written only by Tick.
	mu          sync.Mutex
	throughput  [ringSize]int64 // bytes delta per second
	filesPerSec [ringSize]int64 // files delta per second
	ringIdx     int
	ringCount   int // samples written, capped at ringSize
	lastBytes   int64
	lastFiles   int64
}

// NewCollector creates a Collector with startTime set to now.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// AddPlanned adds a partitioned profile's totals.
func (c *Collector) AddPlanned(chunks, files, bytes int64) {
	c.chunksTotal.Add(chunks)
	c.filesTotal.Add(files)
	c.bytesTotal.Add(bytes)
}

// Snapshot is a point-in-time read of all counters.
type Snapshot struct {
	ChunksTotal        int64
	ChunksCompleted    int64
	ChunksFailed       int64
	ChunksSkipped      int64
	ChunksRetried      int64
	ChunksLaunchFailed int64
	BytesCopied        int64
	FilesCopied        int64
	FilesSkipped       int64
	FilesFailed        int64
	BytesTotal         int64
	FilesTotal         int64
	Elapsed            time.Duration
}

func (c *Collector) AddChunksCompleted(n int64)    { c.chunksCompleted.Add(n) }
func (c *Collector) AddChunksFailed(n int64)       { c.chunksFailed.Add(n) }
func (c *Collector) AddChunksSkipped(n int64)      { c.chunksSkipped.Add(n) }
func (c *Collector) AddChunksRetried(n int64)      { c.chunksRetried.Add(n) }
func (c *Collector) AddChunksLaunchFailed(n int64) { c.chunksLaunchFailed.Add(n) }
func (c *Collector) AddBytesCopied(n int64)        { c.bytesCopied.Add(n) }
func (c *Collector) AddFilesCopied(n int64)        { c.filesCopied.Add(n) }
func (c *Collector) AddFilesSkipped(n int64)       { c.filesSkipped.Add(n) }
func (c *Collector) AddFilesFailed(n int64)        { c.filesFailed.Add(n) }

// Snapshot returns a point-in-time read of all counters.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		ChunksTotal:        c.chunksTotal.Load(),
		ChunksCompleted:    c.chunksCompleted.Load(),
		ChunksFailed:       c.chunksFailed.Load(),
		ChunksSkipped:      c.chunksSkipped.Load(),
		ChunksRetried:      c.chunksRetried.Load(),
		ChunksLaunchFailed: c.chunksLaunchFailed.Load(),
		BytesCopied:        c.bytesCopied.Load(),
		FilesCopied:        c.filesCopied.Load(),
		FilesSkipped:       c.filesSkipped.Load(),
		FilesFailed:        c.filesFailed.Load(),
		BytesTotal:         c.bytesTotal.Load(),
		FilesTotal:         c.filesTotal.Load(),
		Elapsed:            c.Elapsed(),
	}
}

// Tick snapshots byte/file deltas into the ring buffer. Called 1/sec by the presenter.
func (c *Collector) Tick() {
	currentBytes := c.bytesCopied.Load()
	currentFiles := c.filesCopied.Load()

	c.mu.Lock()
	defer c.mu.Unlock()

	bytesDelta := currentBytes - c.lastBytes
	filesDelta := currentFiles - c.lastFiles
	c.lastBytes = currentBytes
	c.lastFiles = currentFiles

	c.throughput[c.ringIdx] = bytesDelta
	c.filesPerSec[c.ringIdx] = filesDelta
	c.ringIdx = (c.ringIdx + 1) % ringSize
	if c.ringCount < ringSize {
		c.ringCount++
	}
}

// RollingSpeed returns average bytes/sec over the last n seconds of samples.
// Chunks report bytes only when they finish, so the curve is bursty.
func (c *Collector) RollingSpeed(seconds int) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rollingAvg(c.throughput[:], seconds)
}

// RollingFilesPerSec returns average files/sec over the last n seconds.
func (c *Collector) RollingFilesPerSec(seconds int) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rollingAvg(c.filesPerSec[:], seconds)
}

func (c *Collector) rollingAvg(buf []int64, n int) float64 {
	count := min(n, c.ringCount)
	if count <= 0 {
		return 0
	}
	var sum int64
	for i := range count {
		idx := (c.ringIdx - 1 - i + ringSize) % ringSize
		sum += buf[idx]
	}
	return float64(sum) / float64(count)
}

// SparklineData returns the last n bytes/sec samples for rendering.
func (c *Collector) SparklineData(n int) []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := min(n, c.ringCount)
	if count <= 0 {
		return nil
	}

	data := make([]float64, count)
	for i := range count {
		// oldest first
		idx := (c.ringIdx - count + i + ringSize) % ringSize
		data[i] = float64(c.throughput[idx])
	}
	return data
}

// ETA estimates remaining time from the one-minute rolling speed.
func (c *Collector) ETA() time.Duration {
	speed := c.RollingSpeed(ringSize)
	if speed <= 0 {
		return 0
	}
	remaining := c.bytesTotal.Load() - c.bytesCopied.Load()
	if remaining <= 0 {
		return 0
	}
	return time.Duration(float64(remaining)/speed) * time.Second
}

// Elapsed returns time since collector creation.
func (c *Collector) Elapsed() time.Duration {
	return time.Since(c.startTime)
}

func (s Snapshot) String() string {
	return fmt.Sprintf(
		"chunks=%d/%d failed=%d skipped=%d retried=%d bytes=%d files=%d",
		s.ChunksCompleted, s.ChunksTotal, s.ChunksFailed, s.ChunksSkipped,
		s.ChunksRetried, s.BytesCopied, s.FilesCopied,
	)
}

// FormatBytes returns a human-readable byte count.
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
