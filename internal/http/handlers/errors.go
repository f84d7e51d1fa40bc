package handlers

// Error codes carried in ErrorResponse.Code. Clients branch on these, so
// they never change once published.
const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Domain-specific:
	ErrCodeVersionConflict = "version_conflict"
	ErrCodeInvalidStatus   = "invalid_status"
	ErrCodeCreateFailed    = "create_failed"
	ErrCodeUpdateFailed    = "update_failed"
	ErrCodeSendFailed      = "send_failed"
	ErrCodePaymentFailed   = "payment_failed"
)
