package ui

import (
	"fmt"
	"io"
	"time"

	"github.com/bamsammich/beamsplit/internal/stats"
)

// plainPresenter outputs one line per chunk event to stdout,
// and periodic progress to stderr when not a TTY.
type plainPresenter struct {
	w        io.Writer
	errW     io.Writer
	stats    stats.ReadTicker
	status   StatusFunc
	interval time.Duration
	verbose  bool
	progress bool
}

func (p *plainPresenter) Run(events <-chan Event) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			p.handleEvent(ev)
		case <-ticker.C:
			if p.stats != nil {
				p.stats.Tick()
			}
			if p.progress {
				p.printProgress()
			}
		}
	}
}

func (p *plainPresenter) handleEvent(ev Event) {
	if line, ok := FeedLine(ev, p.verbose); ok {
		fmt.Fprintln(p.w, line)
	}
}

func (p *plainPresenter) printProgress() {
	fmt.Fprintln(p.errW, ProgressLine(p.status()))
}

func (p *plainPresenter) Summary() string {
	if p.stats == nil {
		return ""
	}
	return CompletionSummary(p.stats.Snapshot())
}
