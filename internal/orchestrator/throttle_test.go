package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThrottle_Wait(t *testing.T) {
	const gap = 50 * time.Millisecond
	ctx := context.Background()

	t.Run("first post does not wait", func(t *testing.T) {
		th := newThrottle()
		start := time.Now()
		require.NoError(t, th.wait(ctx, "a", gap))
		assert.Less(t, time.Since(start), gap)
	})

	t.Run("next post waits the gap", func(t *testing.T) {
		th := newThrottle()
		th.posted("a", gap)
		start := time.Now()
		require.NoError(t, th.wait(ctx, "a", gap))
		assert.GreaterOrEqual(t, time.Since(start), gap-5*time.Millisecond)
	})

	t.Run("gap runs from the latest post", func(t *testing.T) {
		th := newThrottle()
		th.posted("a", gap)
		time.Sleep(gap)
		th.posted("a", gap)
		start := time.Now()
		require.NoError(t, th.wait(ctx, "a", gap))
		assert.GreaterOrEqual(t, time.Since(start), gap-5*time.Millisecond)
	})

	t.Run("other accounts are not held back", func(t *testing.T) {
		th := newThrottle()
		th.posted("a", time.Hour)
		start := time.Now()
		require.NoError(t, th.wait(ctx, "b", time.Hour))
		assert.Less(t, time.Since(start), gap)
	})

	t.Run("zero gap never waits", func(t *testing.T) {
		th := newThrottle()
		th.posted("a", 0)
		require.NoError(t, th.wait(ctx, "a", 0))
	})

	t.Run("cancelled wait returns", func(t *testing.T) {
		th := newThrottle()
		th.posted("a", time.Hour)
		cctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
		defer cancel()
		assert.Error(t, th.wait(cctx, "a", time.Hour))
	})
}
