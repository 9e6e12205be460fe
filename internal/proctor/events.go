package proctor

import "time"

// SignalKind identifies a raw browser lifecycle signal forwarded by the
// client. The engine never trusts client interpretation: classification
// (duplicate, violation, abuse, recovery) happens server-side.
type SignalKind string

const (
	// SignalFullscreenExit fires for any of the vendor fullscreen-change
	// events or the window-size heuristic indicating fullscreen was left.
	SignalFullscreenExit SignalKind = "fullscreen_exit"
	// SignalFullscreenEnter fires when the document (re)entered fullscreen.
	SignalFullscreenEnter SignalKind = "fullscreen_enter"
	// SignalFullscreenDenied fires when the initial fullscreen request was
	// rejected or unsupported; the session degrades instead of blocking.
	SignalFullscreenDenied SignalKind = "fullscreen_denied"
	// SignalRecoveryAck is the single designated recovery action: the
	// student acknowledged a violation warning.
	SignalRecoveryAck SignalKind = "recovery_ack"
	// SignalPageHidden and SignalPageUnload are the browser lifecycle
	// hooks that may trigger the fallback send.
	SignalPageHidden SignalKind = "page_hidden"
	SignalPageUnload SignalKind = "page_unload"
)

// Signal is one client-reported lifecycle event.
type Signal struct {
	Kind SignalKind
	At   time.Time
}
