package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bamsammich/beamsplit/internal/chunk"
)

type fakeJob struct {
	chunk    *chunk.Chunk
	pid      int
	code     int
	throttle int
	exited   bool
	killed   bool
}

func (j *fakeJob) PID() int { return j.pid }

// fakeCopier scripts exit codes per source path. Jobs exit on their first
// poll when autoFinish is set, otherwise when finish is called.
type fakeCopier struct {
	mu         sync.Mutex
	exits      map[string][]int
	startErrs  map[string]error
	attempts   map[string]int
	jobs       []*fakeJob
	nextPID    int
	autoFinish bool
	killErr    error
}

func newFakeCopier(autoFinish bool) *fakeCopier {
	return &fakeCopier{
		exits:      make(map[string][]int),
		startErrs:  make(map[string]error),
		attempts:   make(map[string]int),
		autoFinish: autoFinish,
	}
}

func (f *fakeCopier) script(src string, codes ...int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exits[src] = codes
}

func (f *fakeCopier) failStart(src string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startErrs[src] = err
}

func (f *fakeCopier) Start(_ context.Context, c *chunk.Chunk, _ RetryPolicy, throttleMs int) (Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.startErrs[c.SourcePath]; err != nil {
		return nil, err
	}
	attempt := f.attempts[c.SourcePath]
	f.attempts[c.SourcePath]++

	code := 1
	if codes := f.exits[c.SourcePath]; len(codes) > 0 {
		code = codes[min(attempt, len(codes)-1)]
	}
	f.nextPID++
	j := &fakeJob{pid: 1000 + f.nextPID, chunk: c, code: code, throttle: throttleMs}
	f.jobs = append(f.jobs, j)
	return j, nil
}

func (f *fakeCopier) Poll(j Job) (bool, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fj := j.(*fakeJob)
	if f.autoFinish {
		fj.exited = true
	}
	return fj.exited, fj.code
}

func (f *fakeCopier) ParseSummary(j Job) Summary {
	f.mu.Lock()
	defer f.mu.Unlock()
	fj := j.(*fakeJob)
	if fj.code >= ExitCopyErrors || fj.code < 0 {
		return Summary{FilesFailed: 1}
	}
	return Summary{BytesCopied: fj.chunk.EstimatedSize, FilesCopied: fj.chunk.EstimatedFiles}
}

func (f *fakeCopier) Kill(j Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	fj := j.(*fakeJob)
	fj.killed = true
	fj.exited = true
	fj.code = -1
	return f.killErr
}

// finishAll marks every started job as exited.
func (f *fakeCopier) finishAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, j := range f.jobs {
		j.exited = true
	}
}

func (f *fakeCopier) started() []*fakeJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeJob(nil), f.jobs...)
}

func (f *fakeCopier) startedSources() []string {
	var out []string
	for _, j := range f.started() {
		out = append(out, j.chunk.SourcePath)
	}
	return out
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func makeChunks(n int) []*chunk.Chunk {
	out := make([]*chunk.Chunk, n)
	for i := range out {
		out[i] = chunk.New(fmt.Sprintf("/src/d%d", i), fmt.Sprintf("/dst/d%d", i), 100, 10)
	}
	return out
}

var errNoBinary = errors.New("executable file not found")
