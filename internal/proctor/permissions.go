package proctor

import (
	"errors"

	"github.com/quizport/quizport-backend/internal/model"
	"github.com/rs/zerolog"
)

// ErrCookiesRequired aborts session start: without the cookie probe the
// attempt marker cannot be set and the session is untrackable.
var ErrCookiesRequired = errors.New("cookie support is required to start a proctored attempt")

// PermissionOutcome records which capabilities the session actually holds,
// so the UI can reflect degraded guarantees (no wake-lock means the screen
// may sleep mid-test).
type PermissionOutcome struct {
	Cookies          bool `json:"cookies"`
	StoragePersisted bool `json:"storage_persisted"`
	WakeLock         bool `json:"wake_lock"`
	OrientationLock  bool `json:"orientation_lock"`
}

// Negotiator evaluates the client's capability report in probe order.
// Only the cookie probe is a hard requirement; every other capability is
// best-effort and a failure is logged and ignored.
type Negotiator struct {
	log zerolog.Logger
}

// NewNegotiator creates a Negotiator.
func NewNegotiator(log zerolog.Logger) *Negotiator {
	return &Negotiator{log: log.With().Str("component", "permission_negotiator").Logger()}
}

// Acquire validates the report and returns the granted capability set.
func (n *Negotiator) Acquire(report model.CapabilityReport) (PermissionOutcome, error) {
	if !report.Cookies {
		n.log.Warn().Msg("Cookie probe failed, aborting session start")
		return PermissionOutcome{}, ErrCookiesRequired
	}

	out := PermissionOutcome{Cookies: true}

	out.StoragePersisted = report.StoragePersisted
	if !report.StoragePersisted {
		n.log.Warn().Msg("Storage persistence not granted, pending snapshots may be evicted")
	}

	out.WakeLock = report.WakeLock
	if !report.WakeLock {
		n.log.Warn().Msg("Wake-lock not granted, screen may sleep during the attempt")
	}

	out.OrientationLock = report.OrientationLock
	if !report.OrientationLock {
		n.log.Debug().Msg("Orientation lock not granted")
	}

	return out, nil
}
