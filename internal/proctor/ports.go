package proctor

import (
	"context"
	"time"

	"github.com/quizport/quizport-backend/internal/model"
)

// Effects is the directive channel back to the client UI. Every method
// maps to one message on the proctor stream; implementations must be
// safe to call from the machine and timer goroutines.
type Effects interface {
	// RequestFullscreen cues the client to present the fullscreen entry
	// gesture. Browsers only grant fullscreen inside a user gesture, so
	// the server can never force it directly.
	RequestFullscreen()
	LockInput(permanent bool)
	UnlockInput()
	// ShowWarning presents the violation dialog with the count so far and
	// how many warnings remain before forced submission.
	ShowWarning(violations, remainingWarnings int)
	// ShowFinalWarning presents the non-dismissable terminal warning.
	ShowFinalWarning()
	ClearWarning()
	TimeWarning(remaining time.Duration)
	// DegradedMode informs the client a hardening feature is unavailable
	// and the session continues without it.
	DegradedMode(reason string)
	// PermissionDenied reports the single fatal negotiation outcome
	// (cookie probe failure).
	PermissionDenied(err error)
	// ReleaseCapabilities tells the client to drop the wake-lock and exit
	// fullscreen after finalization.
	ReleaseCapabilities()
	Submitted(reason model.SubmitReason)
	SubmitFailed(reason model.SubmitReason, err error)
}

// Submitter finalizes an attempt against durable storage.
type Submitter interface {
	Submit(ctx context.Context, sub *model.Submission) error
}

// PendingStore persists the at-most-one pending-submission snapshot.
// Take is a destructive read: the record is deleted before it is
// returned, which is what makes double submission structurally
// impossible across racing send paths.
type PendingStore interface {
	Put(ctx context.Context, p *model.PendingSubmission) error
	Take(ctx context.Context, attemptID string) (*model.PendingSubmission, bool, error)
}

// FallbackSender is the fire-and-forget transport used when the page is
// going away: no response is awaited and no delivery confirmation exists.
type FallbackSender interface {
	Send(p *model.PendingSubmission)
}

// ViolationSink receives violation events for asynchronous audit
// persistence. It must never block the guard.
type ViolationSink interface {
	Record(v *model.ViolationEvent)
}

// AnswerSink receives accepted answer saves for autosave persistence.
type AnswerSink interface {
	SaveAnswer(questionIndex, optionIndex int, question *model.QuestionForTaking)
}
