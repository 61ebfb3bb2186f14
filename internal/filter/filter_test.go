package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmptyChainIncludesAll(t *testing.T) {
	c := NewChain()
	assert.True(t, c.Match("any/file.txt", false))
	assert.True(t, c.Match("any/dir", true))
	assert.True(t, c.Empty())

	var nilChain *Chain
	assert.True(t, nilChain.Match("x", true))
}

func TestExcludeDirectoryByName(t *testing.T) {
	c, err := NewExcludeChain([]string{"node_modules/", "$RECYCLE.BIN/"}, false)
	require.NoError(t, err)

	assert.False(t, c.Match("node_modules", true))
	assert.False(t, c.Match("web/app/node_modules", true))
	assert.False(t, c.Match("$RECYCLE.BIN", true))
	assert.True(t, c.Match("node_modules", false))
	assert.True(t, c.Match("src", true))
}

func TestExcludeWindowsSeparators(t *testing.T) {
	c, err := NewExcludeChain([]string{`Users\*\AppData/`}, false)
	require.NoError(t, err)

	assert.False(t, c.Match(`Users\bob\AppData`, true))
	assert.True(t, c.Match(`Home\bob\AppData`, true))
}

func TestFoldCase(t *testing.T) {
	c, err := NewExcludeChain([]string{"System Volume Information/"}, true)
	require.NoError(t, err)

	assert.False(t, c.Match("SYSTEM VOLUME INFORMATION", true))

	c.SetFoldCase(false)
	assert.True(t, c.Match("SYSTEM VOLUME INFORMATION", true))
}

func TestIncludeOverridesExclude(t *testing.T) {
	c := NewChain()
	require.NoError(t, c.AddInclude("important.log"))
	require.NoError(t, c.AddExclude("*.log"))

	assert.True(t, c.Match("important.log", false))
	assert.False(t, c.Match("debug.log", false))
}

func TestExcludeIncludeOrder(t *testing.T) {
	c := NewChain()
	require.NoError(t, c.AddExclude("*.log"))
	require.NoError(t, c.AddInclude("important.log"))

	assert.False(t, c.Match("important.log", false))
}

func TestAnchoredPattern(t *testing.T) {
	c := NewChain()
	require.NoError(t, c.AddExclude("/scratch/"))

	assert.False(t, c.Match("scratch", true))
	assert.True(t, c.Match("projects/scratch", true))
}
