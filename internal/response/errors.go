package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrLoginSuperseded    ErrCode = "LOGIN_SUPERSEDED"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"
	ErrTokenExpired       ErrCode = "TOKEN_EXPIRED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden       ErrCode = "FORBIDDEN"
	ErrUserAccessOnly  ErrCode = "USER_ACCESS_ONLY"
	ErrAdminAccessOnly ErrCode = "ADMIN_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound  ErrCode = "NOT_FOUND"
	ErrConflict  ErrCode = "CONFLICT"
	ErrDuplicate ErrCode = "DUPLICATE"

	// ─── Eligibility ───────────────────────────────────────────────────
	ErrExamNotAvailable  ErrCode = "EXAM_NOT_AVAILABLE"
	ErrAttemptLimit      ErrCode = "ATTEMPT_LIMIT_EXCEEDED"
	ErrAttemptInProgress ErrCode = "ATTEMPT_IN_PROGRESS"
	ErrAlreadyPassed     ErrCode = "ALREADY_PASSED"
	ErrNoQuestions       ErrCode = "NO_QUESTIONS"

	// ─── Session lifecycle ─────────────────────────────────────────────
	ErrSessionNotStarted    ErrCode = "SESSION_NOT_STARTED"
	ErrSessionFinished      ErrCode = "SESSION_FINISHED"
	ErrSessionExpired       ErrCode = "SESSION_EXPIRED"
	ErrNotSessionOwner      ErrCode = "NOT_SESSION_OWNER"
	ErrQuestionNotInSession ErrCode = "QUESTION_NOT_IN_SESSION"
	ErrChoiceMismatch       ErrCode = "CHOICE_MISMATCH"
	ErrInvalidDirection     ErrCode = "INVALID_DIRECTION"
	ErrResultsNotReady      ErrCode = "RESULTS_NOT_READY"

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
		return "Invalid username or password."
	case ErrLoginSuperseded:
		return "Your session has ended because you signed in elsewhere."
	case ErrTokenRequired:
		return "An authentication token is required."
	case ErrTokenInvalid:
		return "The authentication token is invalid."
	case ErrTokenExpired:
		return "The authentication token has expired."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "You do not have permission to access this resource."
	case ErrUserAccessOnly:
		return "This resource is restricted to learners."
	case ErrAdminAccessOnly:
		return "This resource is restricted to administrators."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "The identifier format is invalid."
	case ErrInvalidPayload:
		return "The request payload is invalid."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "The resource was not found."
	case ErrConflict:
		return "The resource already exists."
	case ErrDuplicate:
		return "The username or email is already taken."

	// ─── Eligibility ───────────────────────────────────────────────────
	case ErrExamNotAvailable:
		return "This exam is not currently available."
	case ErrAttemptLimit:
		return "You have used all allowed attempts for this exam."
	case ErrAttemptInProgress:
		return "You already have an attempt in progress for this exam."
	case ErrAlreadyPassed:
		return "You have already passed this exam and retakes are disabled."
	case ErrNoQuestions:
		return "This exam has no questions available."

	// ─── Session lifecycle ─────────────────────────────────────────────
	case ErrSessionNotStarted:
		return "This session has not been started yet."
	case ErrSessionFinished:
		return "This session has already finished."
	case ErrSessionExpired:
		return "The time limit for this session has elapsed."
	case ErrNotSessionOwner:
		return "This session belongs to another user."
	case ErrQuestionNotInSession:
		return "That question is not part of this session."
	case ErrChoiceMismatch:
		return "That choice does not belong to the question."
	case ErrInvalidDirection:
		return "The navigation direction is invalid."
	case ErrResultsNotReady:
		return "Results are not available while the session is ongoing."

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
