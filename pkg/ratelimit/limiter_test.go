package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlidingWindow(t *testing.T) {
	clock := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	sw := NewSlidingWindow(3, time.Minute)
	sw.now = func() time.Time { return clock }

	for i := 0; i < 3; i++ {
		assert.True(t, sw.Allow(), "request %d should be allowed", i+1)
	}
	assert.False(t, sw.Allow(), "fourth request inside the window should be blocked")

	clock = clock.Add(30 * time.Second)
	assert.False(t, sw.Allow())

	clock = clock.Add(31 * time.Second)
	assert.True(t, sw.Allow(), "slots free up once the window slides")
}

func TestSlidingWindowReset(t *testing.T) {
	sw := NewSlidingWindow(1, time.Hour)
	require.True(t, sw.Allow())
	require.False(t, sw.Allow())

	sw.Reset()
	assert.True(t, sw.Allow())
}

func TestSlidingWindowWaitBlocksUntilSlotFrees(t *testing.T) {
	sw := NewSlidingWindow(1, 50*time.Millisecond)
	require.NoError(t, sw.Wait(context.Background()))

	start := time.Now()
	require.NoError(t, sw.Wait(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestSlidingWindowWaitCancelled(t *testing.T) {
	sw := NewSlidingWindow(1, time.Hour)
	require.True(t, sw.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, sw.Wait(ctx), context.DeadlineExceeded)
}

func TestPerMinute(t *testing.T) {
	_, unlimited := PerMinute(0).(Unlimited)
	assert.True(t, unlimited)

	l := PerMinute(2)
	assert.True(t, l.Allow())
	assert.True(t, l.Allow())
	assert.False(t, l.Allow())
	assert.NoError(t, Unlimited{}.Wait(context.Background()))
}
