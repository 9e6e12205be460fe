package proctor

import "time"

// Policy groups the tunable proctoring thresholds. The exact values are
// product choices, not protocol constants: the windows only need to be
// short enough to catch rapid gaming and long enough to absorb a genuine
// browser-event double-fire.
type Policy struct {
	// MaxViolations is the fullscreen-exit count that forces submission.
	MaxViolations int
	// ExitDebounce suppresses duplicate exit signals for one physical
	// exit (browsers fire several overlapping events per user action).
	ExitDebounce time.Duration
	// ReentryGuard suppresses exit detection between a recovery
	// acknowledgement and the fullscreen request settling.
	ReentryGuard time.Duration
	// AbuseWindow escalates immediately when a fresh exit follows a
	// recovery acknowledgement this closely.
	AbuseWindow time.Duration
	// GraceDelay is the pause between the final warning and the forced
	// submission, so the message can render.
	GraceDelay time.Duration
	// PendingRecency bounds how old a pending-submission snapshot may be
	// and still trigger a fallback send on page hide/unload.
	PendingRecency time.Duration
	// WarnThresholds are the one-time low-time warnings, highest first.
	WarnThresholds []time.Duration
}

// DefaultPolicy returns the production thresholds.
func DefaultPolicy() Policy {
	return Policy{
		MaxViolations:  3,
		ExitDebounce:   1200 * time.Millisecond,
		ReentryGuard:   1500 * time.Millisecond,
		AbuseWindow:    5 * time.Second,
		GraceDelay:     4 * time.Second,
		PendingRecency: 30 * time.Second,
		WarnThresholds: []time.Duration{5 * time.Minute, time.Minute},
	}
}
