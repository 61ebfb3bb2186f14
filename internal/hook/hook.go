// Package hook runs operator-configured helper commands, such as snapshot
// and mount scripts, from argument templates with {name} placeholders.
package hook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrEmptyCommand is returned for a template with no program.
var ErrEmptyCommand = errors.New("empty command template")

// Result holds the captured output of a finished command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// FirstLine returns the first non-blank line of stdout, trimmed.
func (r Result) FirstLine() string {
	for _, line := range strings.Split(r.Stdout, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

// Expand substitutes {name} placeholders in every argument. A placeholder
// with no value is an error so a typo never runs a half-filled command.
func Expand(tmpl []string, vars map[string]string) ([]string, error) {
	if len(tmpl) == 0 || strings.TrimSpace(tmpl[0]) == "" {
		return nil, ErrEmptyCommand
	}
	out := make([]string, len(tmpl))
	for i, arg := range tmpl {
		var b strings.Builder
		rest := arg
		for {
			open := strings.IndexByte(rest, '{')
			if open < 0 {
				b.WriteString(rest)
				break
			}
			end := strings.IndexByte(rest[open:], '}')
			if end < 0 {
				b.WriteString(rest)
				break
			}
			name := rest[open+1 : open+end]
			val, ok := vars[name]
			if !ok {
				return nil, fmt.Errorf("unknown placeholder {%s} in %q", name, arg)
			}
			b.WriteString(rest[:open])
			b.WriteString(val)
			rest = rest[open+end+1:]
		}
		out[i] = b.String()
	}
	return out, nil
}

// Run executes argv and captures its output. A non-zero exit is an error
// that includes the command's stderr.
func Run(ctx context.Context, argv []string) (Result, error) {
	if len(argv) == 0 {
		return Result{}, ErrEmptyCommand
	}
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...) //nolint:gosec // argv comes from configuration
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}
	if err != nil {
		if msg := strings.TrimSpace(res.Stderr); msg != "" {
			return res, fmt.Errorf("%s: %w: %s", argv[0], err, msg)
		}
		return res, fmt.Errorf("%s: %w", argv[0], err)
	}
	return res, nil
}

// RunTemplate expands tmpl with vars and runs it.
func RunTemplate(ctx context.Context, tmpl []string, vars map[string]string) (Result, error) {
	argv, err := Expand(tmpl, vars)
	if err != nil {
		return Result{}, err
	}
	return Run(ctx, argv)
}
