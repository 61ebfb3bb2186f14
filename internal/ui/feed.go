package ui

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

var (
	okWord    = color.New(color.FgGreen).SprintFunc()
	warnWord  = color.New(color.FgYellow).SprintFunc()
	errWord   = color.New(color.FgRed).SprintFunc()
	infoWord  = color.New(color.FgCyan).SprintFunc()
	dimWord   = color.New(color.Faint).SprintFunc()
	boldWord  = color.New(color.Bold).SprintFunc()
	wordWidth = len("launch failed")
)

// word pads s to a fixed column before coloring so lines stay aligned.
func word(paint func(...any) string, s string) string {
	return paint(fmt.Sprintf("%-*s", wordWidth, s))
}

// FeedLine renders one event as a single line of output. Events that are
// only interesting in verbose mode report false unless verbose is set.
//
//nolint:gocyclo // flat switch over event kinds
func FeedLine(ev Event, verbose bool) (string, bool) {
	switch ev.Type {
	case ProfileStarted:
		return fmt.Sprintf("%s %s  %s -> %s",
			word(infoWord, "profile"), boldWord(ev.Profile), ev.Path, ev.Message), true

	case ChunksPlanned:
		return fmt.Sprintf("%s %s chunks  %s  %s files",
			word(infoWord, "planned"), FormatCount(ev.Total),
			FormatBytes(ev.TotalSize), FormatCount(ev.Files)), true

	case ChunkStarted:
		if !verbose {
			return "", false
		}
		return fmt.Sprintf("%s #%d  %s  ~%s  pid %d",
			word(dimWord, "started"), ev.ChunkID, ev.Path, FormatBytes(ev.Size), ev.PID), true

	case ChunkCompleted:
		return fmt.Sprintf("%s #%d  %s  %s  %s files  %s",
			word(okWord, "copied"), ev.ChunkID, ev.Path,
			FormatBytes(ev.Size), FormatCount(ev.Files), dimWord(exitText(ev))), true

	case ChunkRetried:
		what := ev.Message
		if ev.Attempt > 0 {
			what = fmt.Sprintf("attempt %d, %s", ev.Attempt, exitText(ev))
		}
		return fmt.Sprintf("%s #%d  %s  %s",
			word(warnWord, "retry"), ev.ChunkID, ev.Path, what), true

	case ChunkFailed:
		return fmt.Sprintf("%s #%d  %s  %s",
			word(errWord, "failed"), ev.ChunkID, ev.Path, exitText(ev)), true

	case ChunkLaunchFailed:
		return fmt.Sprintf("%s #%d  %s  %s",
			word(errWord, "launch failed"), ev.ChunkID, ev.Path, ev.Message), true

	case ChunkKilled:
		return fmt.Sprintf("%s #%d  %s  pid %d",
			word(errWord, "killed"), ev.ChunkID, ev.Path, ev.PID), true

	case ChunkSkipped:
		return fmt.Sprintf("%s #%d  %s  %s",
			word(warnWord, "skipped"), ev.ChunkID, ev.Path, dimWord(ev.Message)), true

	case Degraded:
		msg := "without " + ev.Message
		if ev.Error != nil {
			msg += ": " + ev.Error.Error()
		}
		return fmt.Sprintf("%s %s  %s", word(warnWord, "degraded"), ev.Path, msg), true

	case ProfileComplete:
		return fmt.Sprintf("%s %s  %s chunks  %s  %s files",
			word(okWord, "done"), boldWord(ev.Profile), FormatCount(ev.Total),
			FormatBytes(ev.Size), FormatCount(ev.Files)), true

	case ProfileFailed:
		return fmt.Sprintf("%s %s  %s",
			word(errWord, "incomplete"), boldWord(ev.Profile), ev.Message), true
	}
	return "", false
}

func exitText(ev Event) string {
	msg := strings.TrimSpace(ev.Message)
	if msg == "" {
		return fmt.Sprintf("exit %d", ev.ExitCode)
	}
	return fmt.Sprintf("exit %d: %s", ev.ExitCode, msg)
}
