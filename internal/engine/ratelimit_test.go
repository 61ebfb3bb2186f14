package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLaunchLimiter(t *testing.T) {
	assert.Nil(t, NewLaunchLimiter(0))
	assert.Nil(t, NewLaunchLimiter(-3))

	l := NewLaunchLimiter(2.5)
	require.NotNil(t, l)
	assert.Equal(t, 3, l.Burst())
	assert.True(t, l.Allow())
	assert.True(t, l.Allow())
	assert.True(t, l.Allow())
	assert.False(t, l.Allow())

	assert.Equal(t, 1, NewLaunchLimiter(0.1).Burst())
}
