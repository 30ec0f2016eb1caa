package tokencount

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountUnknownFamily(t *testing.T) {
	c := New()
	_, err := c.Count("hello", "cohere")
	require.Error(t, err)
}

func TestCountMonotonic(t *testing.T) {
	c := New()
	short := "error: build failed"
	long := strings.Repeat(short+" ", 20)

	for _, fam := range []ModelFamily{FamilyGPT, FamilyClaude, FamilyGemini} {
		t.Run(string(fam), func(t *testing.T) {
			shortN, err := c.Count(short, fam)
			require.NoError(t, err)
			longN, err := c.Count(long, fam)
			require.NoError(t, err)
			assert.Greater(t, longN, shortN)
		})
	}
}

func TestCountDeterministic(t *testing.T) {
	c := New()
	text := "ModuleNotFoundError: No module named 'requests'"
	a, err := c.Count(text, FamilyGPT)
	require.NoError(t, err)
	b, err := c.Count(text, FamilyGPT)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestCountEmpty(t *testing.T) {
	c := New()
	n, err := c.Count("", FamilyGPT)
	require.NoError(t, err)
	assert.Zero(t, n)
}
