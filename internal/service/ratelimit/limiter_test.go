package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_DisabledAlwaysAllows(t *testing.T) {
	l := New(0, 1)
	assert.False(t, l.Enabled())
	for i := 0; i < 100; i++ {
		assert.True(t, l.Allow("https://a"))
	}
	require.NoError(t, l.Wait(context.Background(), "https://a"))
	assert.Empty(t, l.Keys())
}

func TestLimiter_BurstPerKey(t *testing.T) {
	l := New(0.001, 2)

	assert.True(t, l.Allow("https://a"))
	assert.True(t, l.Allow("https://a"))
	assert.False(t, l.Allow("https://a"))

	// separate bucket
	assert.True(t, l.Allow("https://b"))
	assert.ElementsMatch(t, []string{"https://a", "https://b"}, l.Keys())
}

func TestLimiter_WaitHonoursContext(t *testing.T) {
	l := New(0.001, 1)
	require.True(t, l.Allow("k"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Wait(ctx, "k"))
}
