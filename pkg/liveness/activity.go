package liveness

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var lastActivity = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "agent_last_activity_timestamp_seconds",
	Help: "Unix time of the last idle-timer reset",
})

// ActivityClock is the in-process IdleResetter. It records when the agent
// last showed activity so the host (or an operator) can see idle time.
type ActivityClock struct {
	last atomic.Int64
	now  func() time.Time
}

// NewActivityClock creates a clock started at the current time.
func NewActivityClock() *ActivityClock {
	c := &ActivityClock{now: time.Now}
	c.ResetIdle()
	return c
}

// ResetIdle restarts the idle countdown.
func (c *ActivityClock) ResetIdle() {
	t := c.now()
	c.last.Store(t.UnixNano())
	lastActivity.Set(float64(t.Unix()))
}

// LastActivity returns the instant of the last reset.
func (c *ActivityClock) LastActivity() time.Time {
	return time.Unix(0, c.last.Load())
}

// IdleFor returns the time elapsed since the last reset.
func (c *ActivityClock) IdleFor() time.Duration {
	return c.now().Sub(c.LastActivity())
}
