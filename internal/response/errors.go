package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrSessionActive      ErrCode = "SESSION_ALREADY_ACTIVE"
	ErrSessionInvalidated ErrCode = "SESSION_INVALIDATED"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"
	ErrTokenExpired       ErrCode = "TOKEN_EXPIRED"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound        ErrCode = "NOT_FOUND"
	ErrConflict        ErrCode = "CONFLICT"
	ErrActionForbidden ErrCode = "ACTION_FORBIDDEN"

	// ─── Test taking ───────────────────────────────────────────────────
	ErrTestNotAvailable    ErrCode = "TEST_NOT_AVAILABLE"
	ErrInvalidEntryToken   ErrCode = "INVALID_ENTRY_TOKEN"
	ErrTestNotPublished    ErrCode = "TEST_NOT_PUBLISHED"
	ErrNoQuestions         ErrCode = "NO_QUESTIONS"
	ErrAttemptSubmitted    ErrCode = "ATTEMPT_ALREADY_SUBMITTED"
	ErrAttemptNotFound     ErrCode = "ATTEMPT_NOT_FOUND"
	ErrSubmissionInFlight  ErrCode = "SUBMISSION_IN_FLIGHT"
	ErrCookiesRequired     ErrCode = "COOKIES_REQUIRED"
	ErrInvalidBeaconToken  ErrCode = "INVALID_BEACON_TOKEN"
	ErrNoPendingSubmission ErrCode = "NO_PENDING_SUBMISSION"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrInvalidCredentials:
		return "Wrong username or password."
	case ErrSessionActive:
		return "You are already signed in on another device."
	case ErrSessionInvalidated:
		return "Your session has ended. Please sign in again."
	case ErrTokenRequired:
		return "An authentication token is required."
	case ErrTokenInvalid:
		return "The authentication token is invalid."
	case ErrTokenExpired:
		return "The authentication token has expired."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."
	case ErrConflict:
		return "Resource already exists."
	case ErrActionForbidden:
		return "This action is not allowed."

	// ─── Test taking ───────────────────────────────────────────────────
	case ErrTestNotAvailable:
		return "This test is not currently available."
	case ErrInvalidEntryToken:
		return "The test entry token is invalid."
	case ErrTestNotPublished:
		return "This test has not been published yet."
	case ErrNoQuestions:
		return "This test has no questions."
	case ErrAttemptSubmitted:
		return "This attempt has already been submitted."
	case ErrAttemptNotFound:
		return "No attempt in progress for this test."
	case ErrSubmissionInFlight:
		return "A submission is already being processed."
	case ErrCookiesRequired:
		return "Cookies must be enabled to take this test."
	case ErrInvalidBeaconToken:
		return "The submit token is invalid or already used."
	case ErrNoPendingSubmission:
		return "No pending submission was found for this attempt."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}
