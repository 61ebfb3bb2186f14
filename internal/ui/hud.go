package ui

import (
	"fmt"
	"io"
	"time"

	"github.com/bamsammich/beamsplit/internal/stats"
)

// hudPresenter provides a rich TTY display with a scrolling feed of chunk
// events and a 2-line HUD that redraws in place.
type hudPresenter struct {
	w       io.Writer
	stats   stats.ReadTicker
	status  StatusFunc
	workers int
	verbose bool

	hudDrawn     bool
	hudLineCount int // actual number of lines in the last HUD draw
	lastHUDDraw  time.Time
}

const (
	sparklineWidth   = 20
	progressBarWidth = 20
	pathWidth        = 48
	hudMinInterval   = 50 * time.Millisecond // don't redraw faster than this
)

func (p *hudPresenter) Run(events <-chan Event) error {
	secTicker := time.NewTicker(time.Second)
	defer secTicker.Stop()

	// Redraw ticker for when no events are flowing (long-running chunks).
	redrawTicker := time.NewTicker(250 * time.Millisecond)
	defer redrawTicker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				p.clearHUD()
				return nil
			}
			p.handleEvent(ev)
			p.maybeDrawHUD()

		case <-redrawTicker.C:
			p.drawHUD()

		case <-secTicker.C:
			if p.stats != nil {
				p.stats.Tick()
			}
		}
	}
}

func (p *hudPresenter) handleEvent(ev Event) {
	if ev.Path != "" {
		ev.Path = truncPath(ev.Path, pathWidth)
	}
	line, ok := FeedLine(ev, p.verbose)
	if !ok {
		return
	}
	p.clearHUD()
	fmt.Fprintln(p.w, line)
	p.drawHUD() // always redraw HUD after feed line
}

// maybeDrawHUD redraws the HUD if enough time has passed since the last draw.
func (p *hudPresenter) maybeDrawHUD() {
	if time.Since(p.lastHUDDraw) < hudMinInterval {
		return
	}
	p.drawHUD()
}

func (p *hudPresenter) drawHUD() {
	st := p.status()
	p.clearHUD()

	var pct float64
	if st.TotalChunks > 0 {
		pct = float64(st.Percent) / 100
	}

	var speed float64
	var spark string
	if p.stats != nil {
		speed = p.stats.RollingSpeed(10)
		spark = Sparkline(p.stats.SparklineData(sparklineWidth), sparklineWidth)
	} else {
		spark = Sparkline(nil, sparklineWidth)
	}
	eta := time.Duration(0)
	if st.ETA != nil {
		eta = *st.ETA
	}
	workers := max(p.workers, len(st.Active))

	// Line 1: throughput sparkline + speed + byte totals.
	fmt.Fprintf(p.w, "       %s   %s   %s / %s   %s\n",
		spark, FormatRate(speed),
		FormatBytes(st.BytesComplete), FormatBytes(st.TotalBytes),
		dimWord(profileLabel(st)))

	// Line 2: progress bar + chunks + running jobs + eta.
	fmt.Fprintf(p.w, " %3d%%  %s   %s / %s chunks   %s   eta %s\n",
		int(pct*100), ProgressBar(pct, progressBarWidth),
		FormatCount(st.CompletedCount), FormatCount(st.TotalChunks),
		WorkerIndicator(len(st.Active), workers),
		FormatETA(eta))

	p.hudDrawn = true
	p.hudLineCount = 2
	p.lastHUDDraw = time.Now()
}

func (p *hudPresenter) clearHUD() {
	if !p.hudDrawn {
		return
	}
	lines := p.hudLineCount
	if lines == 0 {
		lines = 2 // fallback
	}
	// Move cursor up N lines and clear to end of screen.
	fmt.Fprintf(p.w, "\033[%dA\033[J", lines)
	p.hudDrawn = false
}

func (p *hudPresenter) Summary() string {
	if p.stats == nil {
		return ""
	}
	return CompletionSummary(p.stats.Snapshot())
}
