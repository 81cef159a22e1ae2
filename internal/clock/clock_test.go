package clock_test

import (
	"testing"
	"time"

	"github.com/jroosing/poolnetd/internal/clock"
	"github.com/stretchr/testify/assert"
)

func TestMillisZeroIsPersistentSentinel(t *testing.T) {
	var m clock.Millis
	assert.True(t, m.IsZero())
}

func TestFakeClockAdvance(t *testing.T) {
	fc := clock.NewFakeClock(1000)
	assert.Equal(t, clock.Millis(1000), fc.Now())

	fc.Advance(500 * time.Millisecond)
	assert.Equal(t, clock.Millis(1500), fc.Now())
}

func TestMillisBeforeAfter(t *testing.T) {
	a := clock.Millis(100)
	b := clock.Millis(200)

	assert.True(t, a.Before(b))
	assert.False(t, b.Before(a))
	assert.True(t, b.After(a))
}

func TestMillisAddAndElapsed(t *testing.T) {
	start := clock.Millis(1000)
	end := start.Add(2 * time.Second)
	assert.Equal(t, clock.Millis(3000), end)
	assert.Equal(t, 2*time.Second, end.Elapsed(start))
}

func TestSystemClockMonotonic(t *testing.T) {
	var c clock.System
	first := c.Now()
	time.Sleep(2 * time.Millisecond)
	second := c.Now()
	assert.True(t, first.Before(second) || first == second)
}
