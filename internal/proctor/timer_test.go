package proctor

import (
	"testing"
	"time"
)

func TestCountdownDecrementsOncePerTick(t *testing.T) {
	var warns []time.Duration
	expired := 0
	c := NewCountdown(10*time.Second, nil,
		func(r time.Duration) { warns = append(warns, r) },
		func() { expired++ },
	)

	prev := c.Remaining()
	for i := 0; i < 9; i++ {
		c.Tick()
		if got := c.Remaining(); got != prev-time.Second {
			t.Fatalf("tick %d: remaining = %v, want %v", i, got, prev-time.Second)
		}
		prev = c.Remaining()
	}
	if expired != 0 {
		t.Fatalf("expired fired early: %d", expired)
	}

	c.Tick()
	if !c.Expired() || expired != 1 {
		t.Fatalf("expired = %v fired %d times, want true/1", c.Expired(), expired)
	}
	if len(warns) != 0 {
		t.Fatalf("warns = %v, want none without thresholds", warns)
	}
}

func TestCountdownExpiryFiresExactlyOnce(t *testing.T) {
	expired := 0
	c := NewCountdown(2*time.Second, nil, nil, func() { expired++ })

	for i := 0; i < 10; i++ {
		c.Tick()
	}
	if expired != 1 {
		t.Fatalf("expiry fired %d times, want exactly 1", expired)
	}
	if c.Remaining() != 0 {
		t.Fatalf("remaining = %v after expiry, want 0", c.Remaining())
	}
}

func TestCountdownThresholdWarningsFireOnce(t *testing.T) {
	var warns []time.Duration
	c := NewCountdown(6*time.Minute, []time.Duration{5 * time.Minute, time.Minute},
		func(r time.Duration) { warns = append(warns, r) },
		nil,
	)

	for i := 0; i < 6*60-1; i++ {
		c.Tick()
	}

	if len(warns) != 2 {
		t.Fatalf("warns = %v, want exactly two threshold warnings", warns)
	}
	if warns[0] != 5*time.Minute {
		t.Fatalf("first warning at %v, want 5m", warns[0])
	}
	if warns[1] != time.Minute {
		t.Fatalf("second warning at %v, want 1m", warns[1])
	}
}
