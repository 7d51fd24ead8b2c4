package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock drives a Limiter deterministically: sleeps advance the clock
// instead of blocking.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return ctx.Err()
}

func newTestLimiter(interval time.Duration) (*Limiter, *fakeClock) {
	clock := newFakeClock()
	l := New(interval)
	l.now = clock.Now
	l.sleep = clock.Sleep
	return l, clock
}

func TestWait_FirstCallDoesNotSleep(t *testing.T) {
	l, clock := newTestLimiter(2 * time.Second)

	require.NoError(t, l.Wait(context.Background()))

	assert.Empty(t, clock.sleeps)
}

func TestWait_SecondCallSleepsFullInterval(t *testing.T) {
	l, clock := newTestLimiter(2 * time.Second)

	require.NoError(t, l.Wait(context.Background()))
	require.NoError(t, l.Wait(context.Background()))

	require.Len(t, clock.sleeps, 1)
	assert.Equal(t, 2*time.Second, clock.sleeps[0])
}

func TestWait_ConsecutiveCallsStaySpaced(t *testing.T) {
	l, clock := newTestLimiter(2 * time.Second)

	var slots []time.Time
	for i := 0; i < 4; i++ {
		require.NoError(t, l.Wait(context.Background()))
		slots = append(slots, clock.Now())
	}

	for i := 1; i < len(slots); i++ {
		assert.GreaterOrEqual(t, slots[i].Sub(slots[i-1]), 2*time.Second)
	}
}

func TestWait_ElapsedTimeReducesSleep(t *testing.T) {
	l, clock := newTestLimiter(2 * time.Second)

	require.NoError(t, l.Wait(context.Background()))
	clock.mu.Lock()
	clock.now = clock.now.Add(1500 * time.Millisecond)
	clock.mu.Unlock()
	require.NoError(t, l.Wait(context.Background()))

	require.Len(t, clock.sleeps, 1)
	assert.Equal(t, 500*time.Millisecond, clock.sleeps[0])
}

func TestWait_NoSleepAfterLongIdle(t *testing.T) {
	l, clock := newTestLimiter(2 * time.Second)

	require.NoError(t, l.Wait(context.Background()))
	clock.mu.Lock()
	clock.now = clock.now.Add(time.Minute)
	clock.mu.Unlock()
	require.NoError(t, l.Wait(context.Background()))

	assert.Empty(t, clock.sleeps)
}

func TestWait_ZeroIntervalNeverBlocks(t *testing.T) {
	l, clock := newTestLimiter(0)

	for i := 0; i < 10; i++ {
		require.NoError(t, l.Wait(context.Background()))
	}
	assert.Empty(t, clock.sleeps)
}

func TestWait_CanceledContext(t *testing.T) {
	l, _ := newTestLimiter(2 * time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, l.Wait(context.Background()))
	assert.ErrorIs(t, l.Wait(ctx), context.Canceled)
}

func TestWait_RealSleepRespectsCancellation(t *testing.T) {
	l := New(time.Hour)
	require.NoError(t, l.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := l.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestInterval(t *testing.T) {
	assert.Equal(t, 2*time.Second, New(2*time.Second).Interval())
	assert.Equal(t, time.Duration(0), New(-1).Interval())
}
