package network

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeClock advances only when told to, so the limiter's sampling decisions
// are deterministic.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }
func (c *fakeClock) advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func TestWindowLimiterDisabledWhenRateZero(t *testing.T) {
	l := newWindowLimiter(0, time.Now)
	for i := 0; i < 1000; i++ {
		require.Zero(t, l.RecordSend())
	}
}

func TestWindowLimiterDoesNotSleepUnderRate(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	l := newWindowLimiter(1000, clock.now)

	for i := 0; i < rateSampleInterval*2; i++ {
		clock.advance(time.Millisecond)
		require.Zero(t, l.RecordSend())
	}
}

func TestWindowLimiterSleepsOutRemainderWhenOverRate(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	l := newWindowLimiter(rateSampleInterval, clock.now)

	var lastSleep time.Duration
	for i := uint64(0); i < rateSampleInterval; i++ {
		lastSleep = l.RecordSend()
	}
	require.Greater(t, lastSleep, time.Duration(0))
	require.LessOrEqual(t, lastSleep, time.Second)
}

func TestWindowLimiterResetsOnceAWindowElapses(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	l := newWindowLimiter(rateSampleInterval, clock.now)

	for i := uint64(0); i < rateSampleInterval; i++ {
		l.RecordSend()
	}
	clock.advance(2 * time.Second)

	require.Zero(t, l.RecordSend())
}
