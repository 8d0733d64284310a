package handlers

// Error codes carried in ErrorResponse.Code. Clients branch on these, not on
// the message.
const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeUnavailable      = "unavailable"
	ErrCodeInternal         = "internal_error"

	// Domain-specific:
	ErrCodeFeedFailed     = "feed_failed"
	ErrCodeDispatchFailed = "dispatch_failed"
	ErrCodeHistoryFailed  = "history_failed"
	ErrCodeInvalidCursor  = "invalid_cursor"
)
