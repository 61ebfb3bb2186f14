package tree

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/bamsammich/beamsplit/internal/filter"
	"github.com/bamsammich/beamsplit/internal/pathmap"
)

// Profiler builds a tree by walking a filesystem. It is used when the copy
// tool cannot produce a listing.
type Profiler struct {
	FS     afero.Fs
	Filter *filter.Chain
	Logger *slog.Logger
}

// NewProfiler returns a profiler over the host filesystem.
func NewProfiler(f *filter.Chain, logger *slog.Logger) *Profiler {
	return &Profiler{FS: afero.NewOsFs(), Filter: f, Logger: logger}
}

// Profile walks root and returns its aggregated tree. Unreadable
// subdirectories are logged and left empty; an unreadable root is an error.
func (p *Profiler) Profile(ctx context.Context, root string) (*Node, error) {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	fsys := p.FS
	if fsys == nil {
		fsys = afero.NewOsFs()
	}

	root = filepath.Clean(root)
	info, err := fsys.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("profile %s: not a directory", root)
	}

	style := pathmap.Native
	top := NewNode(style.Normalize(root), filepath.Base(root))
	nodes := map[string]*Node{root: top}
	var unreadable int

	err = afero.Walk(fsys, root, func(path string, info os.FileInfo, walkErr error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if walkErr != nil {
			if path == root {
				return walkErr
			}
			unreadable++
			logger.Warn("cannot read directory entry", "path", path, "error", walkErr)
			if info != nil && info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if path == root {
			return nil
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil //nolint:nilerr // entries afero reports outside the root are ignored
		}
		rel = filepath.ToSlash(rel)

		parent := nodes[filepath.Dir(path)]
		if parent == nil {
			// parent was excluded
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		switch {
		case info.IsDir():
			if !p.Filter.Match(rel, true) {
				return filepath.SkipDir
			}
			name := info.Name()
			if style.FoldsCase() {
				nodes[path] = parent.AddChild(name, style.Join(parent.Path, name))
			} else {
				nodes[path] = parent.AddChildExact(name, style.Join(parent.Path, name))
			}
		case info.Mode()&fs.ModeSymlink != 0:
			// links are copied by the copy tool as links, not followed
		case info.Mode().IsRegular():
			if p.Filter.Match(rel, false) {
				parent.AddFile(info.Size())
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, filepath.SkipDir) {
		return nil, fmt.Errorf("profile %s: %w", root, err)
	}

	AggregateTotals(top)
	logger.Debug("profiled source tree",
		"root", root,
		"dirs", len(nodes),
		"files", top.TotalFileCount,
		"bytes", top.TotalSize,
		"unreadable", unreadable,
	)
	return top, nil
}

// Exists reports whether path names a directory on fsys.
func Exists(fsys afero.Fs, path string) bool {
	if fsys == nil || strings.TrimSpace(path) == "" {
		return false
	}
	ok, err := afero.DirExists(fsys, path)
	return err == nil && ok
}
