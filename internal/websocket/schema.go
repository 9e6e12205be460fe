package websocket

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionBegin  Action = "begin"
	ActionSignal Action = "signal"
	ActionAnswer Action = "answer"
	ActionSubmit Action = "submit"
	ActionPing   Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// BeginRequest carries the browser's capability probe results. The
// session stays in negotiation until this arrives.
type BeginRequest struct {
	Action           Action `json:"action"`
	Cookies          bool   `json:"cookies"`
	StoragePersisted bool   `json:"storage_persisted"`
	WakeLock         bool   `json:"wake_lock"`
	OrientationLock  bool   `json:"orientation_lock"`
}

// SignalRequest forwards a raw browser lifecycle signal. The server
// decides what it means; the client never interprets it.
type SignalRequest struct {
	Action Action `json:"action"`
	Kind   string `json:"kind"`
	AtMs   int64  `json:"at_ms"` // client event timestamp, unix millis
}

// AnswerRequest records a single answer selection.
type AnswerRequest struct {
	Action        Action `json:"action"`
	QuestionIndex int    `json:"question_index"`
	OptionIndex   int    `json:"option_index"`
}

// SubmitRequest asks for a user-initiated final submission.
type SubmitRequest struct {
	Action Action `json:"action"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError             Event = "error"
	EventPong              Event = "pong"
	EventState             Event = "state"
	EventRequestFullscreen Event = "request_fullscreen"
	EventInputLock         Event = "input_lock"
	EventInputUnlock       Event = "input_unlock"
	EventWarning           Event = "warning"
	EventFinalWarning      Event = "final_warning"
	EventWarningClear      Event = "warning_clear"
	EventTimeWarning       Event = "time_warning"
	EventDegraded          Event = "degraded"
	EventPermissionDenied  Event = "permission_denied"
	EventRelease           Event = "release"
	EventSubmitted         Event = "submitted"
	EventSubmitFailed      Event = "submit_failed"
)

// StateResponse is the first message after the socket is accepted. It
// lets a reconnecting client rebuild its view of the session.
type StateResponse struct {
	Event            Event          `json:"event"`
	Phase            string         `json:"phase"`
	RemainingSeconds float64        `json:"remaining_seconds"`
	Violations       int            `json:"violations"`
	InputLocked      bool           `json:"input_locked"`
	Answers          map[string]int `json:"answers"`
}

// InputLockDirective tells the client to suppress input. Permanent
// locks survive fullscreen recovery and only clear at submission.
type InputLockDirective struct {
	Event     Event `json:"event"`
	Permanent bool  `json:"permanent"`
}

// WarningDirective shows the blocking violation dialog.
type WarningDirective struct {
	Event             Event `json:"event"`
	Violations        int   `json:"violations"`
	RemainingWarnings int   `json:"remaining_warnings"`
}

// TimeWarningDirective fires at the configured remaining-time thresholds.
type TimeWarningDirective struct {
	Event            Event   `json:"event"`
	RemainingSeconds float64 `json:"remaining_seconds"`
}

// DegradedDirective reports that the session continues without one of
// its protective measures.
type DegradedDirective struct {
	Event  Event  `json:"event"`
	Reason string `json:"reason"`
}

// PermissionDeniedDirective aborts the start flow with a user-facing cause.
type PermissionDeniedDirective struct {
	Event   Event  `json:"event"`
	Message string `json:"message"`
}

// SubmittedDirective confirms a terminal, server-acknowledged submission.
type SubmittedDirective struct {
	Event  Event  `json:"event"`
	Reason string `json:"reason"`
}

// SubmitFailedDirective reports a failed submission. Retryable is true
// only for user-initiated submissions.
type SubmitFailedDirective struct {
	Event     Event  `json:"event"`
	Reason    string `json:"reason"`
	Retryable bool   `json:"retryable"`
	Error     string `json:"error"`
}

// PlainEvent covers directives that carry no payload.
type PlainEvent struct {
	Event Event `json:"event"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
