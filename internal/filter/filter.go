// Package filter decides which directories and files of a source tree take
// part in a replication, and parses human-readable sizes.
package filter

import "strings"

// Rule represents a single include or exclude filter rule.
type Rule struct {
	Pattern *compiledPattern
	Include bool
}

// Chain holds an ordered list of filter rules. The first matching rule
// wins; paths that match nothing are included.
type Chain struct {
	rules    []Rule
	foldCase bool
}

// NewChain creates an empty filter chain.
func NewChain() *Chain {
	return &Chain{}
}

// NewExcludeChain builds a chain from a list of exclude patterns.
func NewExcludeChain(patterns []string, foldCase bool) (*Chain, error) {
	c := &Chain{foldCase: foldCase}
	for _, p := range patterns {
		if err := c.AddExclude(p); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// SetFoldCase makes matching case-insensitive, as on Windows shares.
func (c *Chain) SetFoldCase(fold bool) {
	c.foldCase = fold
}

// AddExclude adds an exclude rule for the given pattern.
func (c *Chain) AddExclude(pattern string) error {
	cp, err := compilePattern(pattern)
	if err != nil {
		return err
	}
	c.rules = append(c.rules, Rule{Pattern: cp, Include: false})
	return nil
}

// AddInclude adds an include rule for the given pattern.
func (c *Chain) AddInclude(pattern string) error {
	cp, err := compilePattern(pattern)
	if err != nil {
		return err
	}
	c.rules = append(c.rules, Rule{Pattern: cp, Include: true})
	return nil
}

// Empty reports whether the chain has no rules.
func (c *Chain) Empty() bool {
	return c == nil || len(c.rules) == 0
}

// Match returns true if the path should be INCLUDED. relPath is relative to
// the copy root and may use either separator.
func (c *Chain) Match(relPath string, isDir bool) bool {
	if c.Empty() {
		return true
	}
	relPath = strings.Trim(strings.ReplaceAll(relPath, `\`, "/"), "/")
	for _, rule := range c.rules {
		if rule.Pattern.match(relPath, isDir, c.foldCase) {
			return rule.Include
		}
	}
	return true
}
