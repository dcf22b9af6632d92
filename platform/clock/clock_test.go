package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFakeAdvanceFiresInDeadlineOrder(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewFake(start)
	var fired []string

	c.AfterFunc(5*time.Second, func() { fired = append(fired, "b") })
	c.AfterFunc(time.Second, func() { fired = append(fired, "a") })

	c.Advance(900 * time.Millisecond)
	assert.Empty(t, fired)

	c.Advance(5 * time.Second)
	assert.Equal(t, []string{"a", "b"}, fired)
	assert.Equal(t, start.Add(5900*time.Millisecond), c.Now())
}

func TestFakeAdvanceRunsChainedTimersInsideWindow(t *testing.T) {
	c := NewFake(time.Unix(0, 0))
	count := 0
	var tick func()
	tick = func() {
		count++
		if count < 3 {
			c.AfterFunc(time.Second, tick)
		}
	}
	c.AfterFunc(time.Second, tick)

	c.Advance(10 * time.Second)
	assert.Equal(t, 3, count)
	assert.Zero(t, c.Pending())
}

func TestFakeStop(t *testing.T) {
	c := NewFake(time.Unix(0, 0))
	fired := false
	timer := c.AfterFunc(time.Second, func() { fired = true })

	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())
	c.Advance(time.Minute)
	assert.False(t, fired)
}

func TestFakeNextDelay(t *testing.T) {
	c := NewFake(time.Unix(0, 0))
	_, ok := c.NextDelay()
	assert.False(t, ok)

	c.AfterFunc(15*time.Second, func() {})
	c.AfterFunc(5*time.Second, func() {})
	d, ok := c.NextDelay()
	assert.True(t, ok)
	assert.Equal(t, 5*time.Second, d)
}
