package copytool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/google/uuid"
)

// listArgs ask for a full-path, byte-exact listing with no header, footer,
// class column or progress, without following junctions.
var listArgs = []string{"/L", "/E", "/BYTES", "/FP", "/NJH", "/NJS", "/NC", "/NP", "/XJ"}

// listFailCode is the lowest exit code that means the listing failed.
const listFailCode = 8

// List runs the copy tool in list-only mode against root. The destination
// is a path that does not exist, so every source entry is reported. The
// returned reader must be closed; Close reports a failed listing.
func (r *Robocopy) List(ctx context.Context, root string) (io.ReadCloser, error) {
	scratch := filepath.Join(os.TempDir(), "beamsplit-list-"+uuid.NewString())
	args := append([]string{root, scratch}, listArgs...)

	cmd := exec.CommandContext(ctx, r.program(), args...) //nolint:gosec // program comes from configuration
	cmd.Stderr = io.Discard
	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", root, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("list %s: start %s: %w", root, r.program(), err)
	}
	r.logger().Debug("listing source", "root", root, "pid", cmd.Process.Pid)
	return &listing{Reader: out, cmd: cmd, root: root}, nil
}

type listing struct {
	io.Reader
	cmd  *exec.Cmd
	root string
}

func (l *listing) Close() error {
	// the process may block on a full pipe until the rest is read
	_, _ = io.Copy(io.Discard, l.Reader)
	err := l.cmd.Wait()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if code := exitErr.ExitCode(); code >= 0 && code < listFailCode {
			return nil
		}
	}
	if err != nil {
		return fmt.Errorf("list %s: %w", l.root, err)
	}
	return nil
}
