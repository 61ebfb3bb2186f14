// Package tree models a source directory tree with direct and cumulative
// size and file counts per directory.
package tree

import (
	"sort"
	"strings"
)

// Node is one directory. Totals are only valid after AggregateTotals.
type Node struct {
	Children        map[string]*Node // keyed by lower-cased name, or exact name for case-sensitive trees
	Path            string
	Name            string
	DirectSize      int64
	DirectFileCount int64
	TotalSize       int64
	TotalFileCount  int64
}

// NewNode creates an empty directory node.
func NewNode(path, name string) *Node {
	return &Node{
		Path:     path,
		Name:     name,
		Children: make(map[string]*Node),
	}
}

// Child looks up a direct child by name. An exact match wins; otherwise the
// name is matched case-insensitively.
func (n *Node) Child(name string) *Node {
	if c, ok := n.Children[name]; ok {
		return c
	}
	return n.Children[strings.ToLower(name)]
}

// AddChild returns the named child, creating it with the given path when it
// does not exist yet.
func (n *Node) AddChild(name, path string) *Node {
	key := strings.ToLower(name)
	if c, ok := n.Children[key]; ok {
		return c
	}
	c := NewNode(path, name)
	n.Children[key] = c
	return c
}

// AddChildExact is AddChild for case-sensitive filesystems: names that
// differ only in case become distinct children.
func (n *Node) AddChildExact(name, path string) *Node {
	if c, ok := n.Children[name]; ok {
		return c
	}
	c := NewNode(path, name)
	n.Children[name] = c
	return c
}

// AddFile records one file living directly in n.
func (n *Node) AddFile(size int64) {
	n.DirectSize += size
	n.DirectFileCount++
}

// SortedChildren returns children ordered by case-folded name.
func (n *Node) SortedChildren() []*Node {
	out := make([]*Node, 0, len(n.Children))
	for _, c := range n.Children {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := strings.ToLower(out[i].Name), strings.ToLower(out[j].Name)
		if a == b {
			return out[i].Name < out[j].Name
		}
		return a < b
	})
	return out
}

// AggregateTotals computes TotalSize and TotalFileCount for every node in a
// single post-order pass.
func AggregateTotals(n *Node) {
	if n == nil {
		return
	}
	n.TotalSize = n.DirectSize
	n.TotalFileCount = n.DirectFileCount
	for _, c := range n.Children {
		AggregateTotals(c)
		n.TotalSize += c.TotalSize
		n.TotalFileCount += c.TotalFileCount
	}
}

// Walk visits n and its descendants in pre-order. Returning false from fn
// skips the node's children.
func Walk(n *Node, fn func(n *Node, depth int) bool) {
	walk(n, 0, fn)
}

func walk(n *Node, depth int, fn func(*Node, int) bool) {
	if n == nil || !fn(n, depth) {
		return
	}
	for _, c := range n.SortedChildren() {
		walk(c, depth+1, fn)
	}
}

// Count returns the number of directories in the tree rooted at n.
func Count(n *Node) int {
	total := 0
	Walk(n, func(*Node, int) bool {
		total++
		return true
	})
	return total
}
