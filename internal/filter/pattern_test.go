package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatternStar(t *testing.T) {
	p, err := compilePattern("*.tmp")
	require.NoError(t, err)

	assert.True(t, p.match("x.tmp", false, false))
	assert.True(t, p.match("dir/x.tmp", false, false))
	assert.False(t, p.match("x.tmp.bak", false, false))
}

func TestPatternDoubleStar(t *testing.T) {
	p, err := compilePattern("**/cache/**")
	require.NoError(t, err)

	assert.True(t, p.match("a/cache/b", true, false))
	assert.True(t, p.match("cache/b/c", true, false))
	assert.False(t, p.match("a/caches/b", true, false))
}

func TestPatternDirOnly(t *testing.T) {
	p, err := compilePattern("build/")
	require.NoError(t, err)

	assert.True(t, p.dirOnly)
	assert.True(t, p.match("build", true, false))
	assert.False(t, p.match("build", false, false))
}

func TestPatternInvalid(t *testing.T) {
	_, err := compilePattern("[unclosed")
	assert.Error(t, err)

	_, err = compilePattern("/")
	assert.Error(t, err)
}
