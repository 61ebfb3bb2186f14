package chunk

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/afero"

	"github.com/bamsammich/beamsplit/internal/pathmap"
	"github.com/bamsammich/beamsplit/internal/tree"
)

// Unlimited disables the depth limit.
const Unlimited = -1

var (
	ErrInvalidConstraints = errors.New("invalid constraints")
	ErrEmptyPath          = errors.New("empty path")
	ErrSourceNotFound     = errors.New("source path does not exist")
)

// Constraints bound the size of a single chunk.
type Constraints struct {
	MaxSizeBytes int64
	MaxFiles     int64
	MaxDepth     int // Unlimited for no limit
	MinSizeBytes int64
}

// Validate checks the numeric limits.
func (c Constraints) Validate() error {
	switch {
	case c.MaxSizeBytes <= 0:
		return fmt.Errorf("%w: max size must be positive, got %d", ErrInvalidConstraints, c.MaxSizeBytes)
	case c.MaxFiles <= 0:
		return fmt.Errorf("%w: max files must be positive, got %d", ErrInvalidConstraints, c.MaxFiles)
	case c.MaxDepth < Unlimited:
		return fmt.Errorf("%w: max depth must be -1 or greater, got %d", ErrInvalidConstraints, c.MaxDepth)
	case c.MinSizeBytes < 0:
		return fmt.Errorf("%w: min size must not be negative, got %d", ErrInvalidConstraints, c.MinSizeBytes)
	case c.MaxSizeBytes <= c.MinSizeBytes:
		return fmt.Errorf("%w: max size %d must exceed min size %d",
			ErrInvalidConstraints, c.MaxSizeBytes, c.MinSizeBytes)
	}
	return nil
}

// Mode names a partitioning preset.
type Mode string

const (
	ModeFlat  Mode = "flat"
	ModeSmart Mode = "smart"
)

// ParseMode parses a preset name. The empty string selects smart.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeSmart:
		return ModeSmart, nil
	case ModeFlat:
		return ModeFlat, nil
	}
	return "", fmt.Errorf("unknown chunk mode %q (want flat or smart)", s)
}

// Apply returns c with the preset's depth.
func (m Mode) Apply(c Constraints) Constraints {
	if m == ModeFlat {
		return Flat(c)
	}
	return Smart(c)
}

// Flat never recurses: the whole root becomes one chunk.
func Flat(c Constraints) Constraints {
	c.MaxDepth = 0
	return c
}

// Smart recurses wherever the size and file limits require it.
func Smart(c Constraints) Constraints {
	c.MaxDepth = Unlimited
	return c
}

// Request is a partitioning job as read from configuration.
type Request struct {
	Path            string
	DestinationRoot string
	Constraints     Constraints
}

// ValidateRequest rejects requests that cannot be partitioned. fsys is used
// to check that Path exists; nil skips the check.
func ValidateRequest(fsys afero.Fs, r Request) error {
	if strings.TrimSpace(r.Path) == "" {
		return fmt.Errorf("source: %w", ErrEmptyPath)
	}
	if strings.TrimSpace(r.DestinationRoot) == "" {
		return fmt.Errorf("destination: %w", ErrEmptyPath)
	}
	if fsys != nil && !tree.Exists(fsys, r.Path) {
		return fmt.Errorf("%w: %s", ErrSourceNotFound, r.Path)
	}
	return r.Constraints.Validate()
}

// Partition walks root and returns chunks whose estimates sum to the root's
// totals. A directory becomes one chunk when it is small enough, sits at
// MaxDepth or has no subdirectories; otherwise its children are partitioned
// and the files directly inside it get their own files-only chunk.
func Partition(root *tree.Node, destRoot string, c Constraints, style pathmap.Style) ([]*Chunk, error) {
	if root == nil {
		return nil, fmt.Errorf("partition: %w", ErrEmptyPath)
	}
	if strings.TrimSpace(destRoot) == "" {
		return nil, fmt.Errorf("destination: %w", ErrEmptyPath)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	p := partitioner{root: root.Path, dest: destRoot, c: c, style: style}
	p.visit(root, 0)
	return p.out, nil
}

type partitioner struct {
	root  string
	dest  string
	style pathmap.Style
	out   []*Chunk
	c     Constraints
}

func (p *partitioner) fits(n *tree.Node, depth int) bool {
	if n.TotalSize <= p.c.MinSizeBytes {
		return true
	}
	if n.TotalSize <= p.c.MaxSizeBytes && n.TotalFileCount <= p.c.MaxFiles {
		return true
	}
	// a directory without subdirectories cannot be split any further
	return depth == p.c.MaxDepth || len(n.Children) == 0
}

func (p *partitioner) visit(n *tree.Node, depth int) {
	dst := p.style.MapDestination(n.Path, p.root, p.dest)
	if p.fits(n, depth) {
		ch := New(n.Path, dst, n.TotalSize, n.TotalFileCount)
		ch.Depth = depth
		p.out = append(p.out, ch)
		return
	}
	if n.DirectFileCount > 0 {
		ch := NewFilesOnly(n.Path, dst, n.DirectSize, n.DirectFileCount)
		ch.Depth = depth
		p.out = append(p.out, ch)
	}
	for _, child := range n.SortedChildren() {
		p.visit(child, depth+1)
	}
}

// Totals sums the estimates of chunks.
func Totals(chunks []*Chunk) (size, files int64) {
	for _, c := range chunks {
		size += c.EstimatedSize
		files += c.EstimatedFiles
	}
	return size, files
}
