package tree

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/bamsammich/beamsplit/internal/filter"
	"github.com/bamsammich/beamsplit/internal/pathmap"
)

// Entry tags printed by the copy tool in list-only mode.
var (
	dirTags   = []string{"new dir", "dir"}
	fileTags  = []string{"new file", "newer", "older", "same", "changed", "tweaked", "modified", "lonely", "file"}
	extraTags = []string{"*extra dir", "*extra file", "*mismatch"}
)

// Builder parses a copy-tool directory listing into a Node tree.
type Builder struct {
	Logger *slog.Logger
	Filter *filter.Chain
	Style  pathmap.Style
}

// BuildStats reports how a listing was consumed.
type BuildStats struct {
	Lines       int
	Dirs        int
	Files       int
	Skipped     int // unparseable lines
	OutsideRoot int
	Excluded    int
	DestOnly    int // entries that exist only at the destination
}

// BuildTree parses listing into a tree rooted at rootPath, guessing the
// path style from the root. Totals are aggregated before returning.
func BuildTree(rootPath string, listing io.Reader) (*Node, error) {
	b := Builder{Style: pathmap.StyleFor(rootPath)}
	n, _, err := b.Build(rootPath, listing)
	return n, err
}

type listingEntry struct {
	path string
	size int64
	dir  bool
}

// Build parses listing. Each line carries an optional tag, a number (file
// size, or file count for directories) and a path. Directory lines are
// tagged as such or end with a separator; relative file names belong to
// the most recent directory line. Unparseable lines are skipped.
//
//nolint:gocyclo,revive // cognitive-complexity: line classification is a flat switch over entry kinds
func (b Builder) Build(rootPath string, listing io.Reader) (*Node, BuildStats, error) {
	logger := b.Logger
	if logger == nil {
		logger = slog.Default()
	}
	style := b.Style
	if style.Sep == 0 {
		style = pathmap.StyleFor(rootPath)
	}

	rootPath = style.Normalize(rootPath)
	root := NewNode(rootPath, style.Base(rootPath))
	idx := &index{style: style, root: root, nodes: map[string]*Node{style.Key(rootPath): root}}

	var st BuildStats
	current := root

	sc := bufio.NewScanner(listing)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		st.Lines++
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		e, kind := parseListingLine(line, style)
		switch kind {
		case lineInvalid:
			st.Skipped++
			logger.Debug("skipping unparseable listing line", "line", line)
			continue
		case lineExtra:
			st.DestOnly++
			continue
		}

		if e.dir {
			abs := e.path
			if !style.IsAbs(abs) {
				abs = style.Join(rootPath, abs)
			}
			n, ok := idx.ensure(abs, b.Filter)
			switch {
			case n == nil && ok:
				st.Excluded++
			case !ok:
				st.OutsideRoot++
			default:
				st.Dirs++
			}
			current = n
			continue
		}

		var parent *Node
		name := e.path
		switch {
		case style.IsAbs(e.path):
			var ok bool
			parent, ok = idx.ensure(style.Dir(e.path), b.Filter)
			if !ok {
				st.OutsideRoot++
				continue
			}
			name = style.Base(e.path)
		case current == nil:
			// belongs to an excluded or out-of-root directory
			st.Excluded++
			continue
		default:
			parent = current
			if rel := style.Normalize(e.path); strings.IndexByte(rel, style.Sep) >= 0 {
				parent, _ = idx.ensure(style.Join(current.Path, style.Dir(rel)), b.Filter)
				name = style.Base(rel)
			}
		}
		if parent == nil {
			st.Excluded++
			continue
		}
		if rel, ok := style.Rel(style.Join(parent.Path, name), rootPath); ok && !b.Filter.Match(rel, false) {
			st.Excluded++
			continue
		}
		parent.AddFile(e.size)
		st.Files++
	}
	if err := sc.Err(); err != nil {
		return nil, st, fmt.Errorf("read listing: %w", err)
	}

	if st.Skipped > 0 || st.OutsideRoot > 0 {
		logger.Warn("listing contained entries that were ignored",
			"root", rootPath,
			"unparseable", st.Skipped,
			"outside_root", st.OutsideRoot,
		)
	}

	AggregateTotals(root)
	return root, st, nil
}

// index maps absolute path keys to nodes so intermediate directories are
// created once. Keys fold case for Windows-style listings.
type index struct {
	nodes map[string]*Node
	root  *Node
	style pathmap.Style
}

// ensure returns the node for abs, creating missing intermediates. ok is
// false when abs lies outside the root; a nil node with ok=true means the
// directory is excluded by the filter.
func (ix *index) ensure(abs string, f *filter.Chain) (*Node, bool) {
	abs = ix.style.Normalize(abs)
	key := ix.style.Key(abs)
	if n, found := ix.nodes[key]; found {
		return n, true
	}
	rel, ok := ix.style.Rel(abs, ix.root.Path)
	if !ok {
		return nil, false
	}
	n := ix.root
	walked := ""
	for _, comp := range ix.style.Split(rel) {
		if walked == "" {
			walked = comp
		} else {
			walked += "/" + comp
		}
		if !f.Match(walked, true) {
			return nil, true
		}
		if ix.style.FoldsCase() {
			n = n.AddChild(comp, ix.style.Join(n.Path, comp))
		} else {
			n = n.AddChildExact(comp, ix.style.Join(n.Path, comp))
		}
		ix.nodes[ix.style.Key(n.Path)] = n
	}
	return n, true
}

type lineKind int

const (
	lineInvalid lineKind = iota
	lineEntry
	lineExtra
)

// parseListingLine splits a line into tag, number and path. Tab-separated
// lines take the last field as the path so paths may contain spaces;
// otherwise the path is whatever follows the number.
func parseListingLine(line string, style pathmap.Style) (listingEntry, lineKind) {
	var head, path string
	if strings.Contains(line, "\t") {
		var fields []string
		for _, f := range strings.Split(line, "\t") {
			if f = strings.TrimSpace(f); f != "" {
				fields = append(fields, f)
			}
		}
		if len(fields) == 0 {
			return listingEntry{}, lineInvalid
		}
		path = fields[len(fields)-1]
		head = strings.Join(fields[:len(fields)-1], " ")
	} else {
		head, path = splitHeadPath(strings.TrimSpace(line))
	}

	lower := strings.ToLower(head)
	for _, t := range extraTags {
		if strings.HasPrefix(lower, t) {
			return listingEntry{}, lineExtra
		}
	}

	tagged, isDir := "", false
	for _, t := range dirTags {
		if hasWordPrefix(lower, t) {
			tagged, isDir = t, true
			break
		}
	}
	if tagged == "" {
		for _, t := range fileTags {
			if hasWordPrefix(lower, t) {
				tagged = t
				break
			}
		}
	}
	num := strings.TrimSpace(head[len(tagged):])

	if path == "" {
		return listingEntry{}, lineInvalid
	}
	trailingSep := strings.HasSuffix(path, string(style.Sep)) || strings.HasSuffix(path, "/")
	if isDir || trailingSep {
		// The number on a directory line is a file count; it is not needed.
		return listingEntry{path: path, dir: true}, lineEntry
	}
	if num == "" {
		return listingEntry{}, lineInvalid
	}
	size, err := filter.ParseSize(num)
	if err != nil {
		return listingEntry{}, lineInvalid
	}
	return listingEntry{path: path, size: size}, lineEntry
}

// splitHeadPath splits a space-separated line into its leading tag, number
// and unit words and the remaining path.
func splitHeadPath(line string) (head, path string) {
	var words []string
	rest := line
	lower := strings.ToLower(rest)
	for _, tags := range [][]string{extraTags, dirTags, fileTags} {
		for _, t := range tags {
			if hasWordPrefix(lower, t) && len(rest) > len(t) {
				words = append(words, rest[:len(t)])
				rest = strings.TrimLeft(rest[len(t):], " ")
				break
			}
		}
		if len(words) > 0 {
			break
		}
	}

	word, after, found := strings.Cut(rest, " ")
	if found && isNumeric(word) {
		words = append(words, word)
		rest = strings.TrimLeft(after, " ")
		if unit, after, found := strings.Cut(rest, " "); found && isUnit(strings.ToLower(unit)) {
			words = append(words, unit)
			rest = after
		}
	}
	return strings.Join(words, " "), strings.TrimSpace(rest)
}

func hasWordPrefix(s, prefix string) bool {
	if !strings.HasPrefix(s, prefix) {
		return false
	}
	return len(s) == len(prefix) || s[len(prefix)] == ' '
}

func isUnit(w string) bool {
	switch w {
	case "b", "k", "m", "g", "t":
		return true
	}
	return false
}

func isNumeric(w string) bool {
	if w == "" {
		return false
	}
	dot := false
	for i := 0; i < len(w); i++ {
		switch c := w[i]; {
		case c >= '0' && c <= '9':
		case c == '.' && !dot:
			dot = true
		default:
			return false
		}
	}
	return true
}
