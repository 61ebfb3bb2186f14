package tree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregateTotals(t *testing.T) {
	root := NewNode("/r", "r")
	root.AddFile(10)
	a := root.AddChild("a", "/r/a")
	a.AddFile(100)
	a.AddFile(200)
	b := a.AddChild("b", "/r/a/b")
	b.AddFile(5)
	root.AddChild("empty", "/r/empty")

	AggregateTotals(root)

	assert.Equal(t, int64(315), root.TotalSize)
	assert.Equal(t, int64(4), root.TotalFileCount)
	assert.Equal(t, int64(305), a.TotalSize)
	assert.Equal(t, int64(3), a.TotalFileCount)
	assert.Equal(t, int64(5), b.TotalSize)
	assert.Equal(t, int64(0), root.Child("EMPTY").TotalSize)
}

func TestAggregateTotals_Idempotent(t *testing.T) {
	root := NewNode("/r", "r")
	root.AddFile(1)
	root.AddChild("x", "/r/x").AddFile(2)

	AggregateTotals(root)
	AggregateTotals(root)

	assert.Equal(t, int64(3), root.TotalSize)
	assert.Equal(t, int64(2), root.TotalFileCount)
}

func TestChildCaseInsensitive(t *testing.T) {
	root := NewNode("/r", "r")
	c := root.AddChild("Docs", "/r/Docs")
	assert.Same(t, c, root.AddChild("DOCS", "/r/DOCS"))
	assert.Same(t, c, root.Child("docs"))
	assert.Equal(t, "Docs", c.Name)
}

func TestAddChildExact(t *testing.T) {
	root := NewNode("/r", "r")
	upper := root.AddChildExact("Docs", "/r/Docs")
	lower := root.AddChildExact("docs", "/r/docs")
	assert.NotSame(t, upper, lower)
	assert.Same(t, upper, root.AddChildExact("Docs", "/r/Docs"))
	assert.Same(t, upper, root.Child("Docs"))
	assert.Same(t, lower, root.Child("docs"))

	sorted := root.SortedChildren()
	require.Len(t, sorted, 2)
	assert.Equal(t, "Docs", sorted[0].Name)
	assert.Equal(t, "docs", sorted[1].Name)
}

func TestWalkAndCount(t *testing.T) {
	root := NewNode("/r", "r")
	root.AddChild("b", "/r/b")
	a := root.AddChild("a", "/r/a")
	a.AddChild("deep", "/r/a/deep")

	var visited []string
	Walk(root, func(n *Node, depth int) bool {
		visited = append(visited, n.Name)
		return depth < 1
	})
	require.Equal(t, []string{"r", "a", "b"}, visited)
	assert.Equal(t, 4, Count(root))
}
