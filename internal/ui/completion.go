package ui

import (
	"fmt"
	"strings"

	"github.com/bamsammich/beamsplit/internal/engine"
	"github.com/bamsammich/beamsplit/internal/stats"
)

// CompletionSummary builds a final summary line from a snapshot.
// Format: done ✓  chunks 120/120  files 48,917  size 2.1 GiB  avg 641 MB/s  time 3m 17s  failed 0
func CompletionSummary(snap stats.Snapshot) string {
	avgSpeed := 0.0
	if snap.Elapsed.Seconds() > 0 {
		avgSpeed = float64(snap.BytesCopied) / snap.Elapsed.Seconds()
	}

	icon := "✓"
	if snap.ChunksFailed > 0 {
		icon = "✗"
	}

	base := fmt.Sprintf("done %s  chunks %s/%s  files %s  size %s  avg %s  time %s",
		icon,
		FormatCount(snap.ChunksCompleted),
		FormatCount(snap.ChunksTotal),
		FormatCount(snap.FilesCopied),
		FormatBytes(snap.BytesCopied),
		FormatRate(avgSpeed),
		FormatDuration(snap.Elapsed),
	)

	if snap.ChunksRetried > 0 {
		base += fmt.Sprintf("  retried %d", snap.ChunksRetried)
	}
	if snap.ChunksSkipped > 0 {
		base += fmt.Sprintf("  skipped %d", snap.ChunksSkipped)
	}

	base += fmt.Sprintf("  failed %d", snap.ChunksFailed)

	return base
}

// ResultSummary renders one line per profile followed by every chunk that
// still needs attention.
func ResultSummary(res engine.Result) string {
	var b strings.Builder
	for _, p := range res.Profiles {
		state := okWord("ok")
		switch {
		case p.Stopped:
			state = warnWord("stopped")
		case !p.OK():
			state = errWord("failed")
		}
		fmt.Fprintf(&b, "%-10s %s  %s chunks  %s  %s files  %s",
			p.Name, state,
			FormatCount(int64(p.Completed)), FormatBytes(p.Bytes), FormatCount(p.Files),
			FormatDuration(p.Duration))
		if p.Resumed > 0 {
			fmt.Fprintf(&b, "  resumed %d", p.Resumed)
		}
		if len(p.Degraded) > 0 {
			fmt.Fprintf(&b, "  degraded %s", strings.Join(p.Degraded, ","))
		}
		b.WriteByte('\n')
		if p.Err != nil {
			fmt.Fprintf(&b, "  error: %v\n", p.Err)
		}
		for _, c := range p.Failed {
			fmt.Fprintf(&b, "  %s #%d %s: %s\n", errWord("failed"), c.ID, c.SourcePath, c.LastErrorMessage)
		}
		for _, c := range p.Skipped {
			fmt.Fprintf(&b, "  %s #%d %s\n", warnWord("skipped"), c.ID, c.SourcePath)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
