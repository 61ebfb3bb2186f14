package filter

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// compiledPattern is a validated doublestar glob with rsync-style anchoring.
type compiledPattern struct {
	glob     string
	original string
	anchored bool // pattern starts with / or contains a /
	dirOnly  bool // pattern ends with /
}

// compilePattern validates pattern and records its anchoring. Unanchored
// patterns match the basename or any trailing run of path components.
func compilePattern(pattern string) (*compiledPattern, error) {
	cp := &compiledPattern{original: pattern}
	pattern = strings.ReplaceAll(pattern, `\`, "/")

	if strings.HasSuffix(pattern, "/") {
		cp.dirOnly = true
		pattern = strings.TrimRight(pattern, "/")
	}
	if strings.HasPrefix(pattern, "/") {
		cp.anchored = true
		pattern = strings.TrimLeft(pattern, "/")
	} else if strings.Contains(pattern, "/") {
		cp.anchored = true
	}
	if pattern == "" {
		return nil, fmt.Errorf("empty pattern %q", cp.original)
	}
	if !cp.anchored {
		pattern = "**/" + pattern
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid pattern %q", cp.original)
	}
	cp.glob = pattern
	return cp, nil
}

// match tests whether a slash-separated relative path matches.
func (cp *compiledPattern) match(relPath string, isDir, foldCase bool) bool {
	if cp.dirOnly && !isDir {
		return false
	}
	glob := cp.glob
	if foldCase {
		glob = strings.ToLower(glob)
		relPath = strings.ToLower(relPath)
	}
	ok, err := doublestar.Match(glob, relPath)
	return err == nil && ok
}
