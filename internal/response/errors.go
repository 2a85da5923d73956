package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"
	ErrConflict ErrCode = "CONFLICT"

	// ─── Survey-specific ───────────────────────────────────────────────
	ErrSurveyNotFound      ErrCode = "SURVEY_NOT_FOUND"
	ErrInvalidSurvey       ErrCode = "INVALID_SURVEY"
	ErrQuestionNotFound    ErrCode = "QUESTION_NOT_FOUND"
	ErrSessionNotFound     ErrCode = "SESSION_NOT_FOUND"
	ErrSessionCompleted    ErrCode = "SESSION_COMPLETED"
	ErrSessionConflict     ErrCode = "SESSION_CONFLICT"
	ErrSectionNotAvailable ErrCode = "SECTION_NOT_AVAILABLE"
	ErrSectionIncomplete   ErrCode = "SECTION_INCOMPLETE"
	ErrAutosaveFailed      ErrCode = "AUTOSAVE_FAILED"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
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

	// ─── Survey-specific ───────────────────────────────────────────────
	case ErrSurveyNotFound:
		return "Survey not found."
	case ErrInvalidSurvey:
		return "The survey definition is invalid."
	case ErrQuestionNotFound:
		return "Question not found in this survey."
	case ErrSessionNotFound:
		return "Survey session not found."
	case ErrSessionCompleted:
		return "This survey has already been submitted."
	case ErrSessionConflict:
		return "This session belongs to another survey."
	case ErrSectionNotAvailable:
		return "This section is not available."
	case ErrSectionIncomplete:
		return "Please answer the highlighted questions before continuing."
	case ErrAutosaveFailed:
		return "Your answers could not be saved. Please try again."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Internal server error."
	default:
		return "An unexpected error occurred."
	}
}
