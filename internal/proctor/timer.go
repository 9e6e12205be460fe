package proctor

import "time"

// Countdown tracks remaining attempt time, one second per tick. It is
// deliberately independent of lock and warning state: time keeps running
// while the student deals with a violation, so warnings cannot be used
// to pause the clock. The Machine drives Tick from its ticker loop.
type Countdown struct {
	remaining time.Duration
	expired   bool

	thresholds []time.Duration
	fired      []bool

	onWarn   func(remaining time.Duration)
	onExpire func()
}

// NewCountdown creates a countdown with the given remaining time and
// one-time warning thresholds (highest first).
func NewCountdown(remaining time.Duration, thresholds []time.Duration, onWarn func(time.Duration), onExpire func()) *Countdown {
	return &Countdown{
		remaining:  remaining,
		thresholds: thresholds,
		fired:      make([]bool, len(thresholds)),
		onWarn:     onWarn,
		onExpire:   onExpire,
	}
}

// Tick decrements remaining time by one second, firing threshold
// warnings once and the expiry callback exactly once at zero.
func (c *Countdown) Tick() {
	if c.expired {
		return
	}

	c.remaining -= time.Second
	if c.remaining < 0 {
		c.remaining = 0
	}

	for i, th := range c.thresholds {
		if !c.fired[i] && c.remaining <= th && c.remaining > 0 {
			c.fired[i] = true
			if c.onWarn != nil {
				c.onWarn(c.remaining)
			}
		}
	}

	if c.remaining == 0 {
		c.expired = true
		if c.onExpire != nil {
			c.onExpire()
		}
	}
}

// Remaining returns the time left. Monotonically non-increasing.
func (c *Countdown) Remaining() time.Duration { return c.remaining }

// Expired reports whether the countdown reached zero.
func (c *Countdown) Expired() bool { return c.expired }
