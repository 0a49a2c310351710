package http

const (
	CodeMethodNotAllowed = "method_not_allowed"
	CodeRequestTooLarge  = "request_too_large"
	CodeRateLimited      = "rate_limited"
	CodeInternal         = "internal_error"
	CodeAdminDisabled    = "admin_disabled"
	CodeNotReady         = "not_ready"
)
