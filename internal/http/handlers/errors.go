// Package handlers defines HTTP-layer error codes used by the internal API.
//
// Codes are lowercase snake_case and give callers a stable, machine-readable
// taxonomy next to the human-readable message. The interactions webhook does
// not use them: the platform only looks at the status code, so that endpoint
// answers errors in plain text.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "conflict",
//	  "message": "event already exists"
//	}
package handlers

const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeForbidden    = "forbidden"
	ErrCodeNotFound     = "not_found"
	ErrCodeConflict     = "conflict"
	ErrCodeRateLimited  = "too_many_requests"
	ErrCodeInternal     = "internal_error"

	// Domain-specific:
	ErrCodeEnqueueFailed    = "enqueue_failed"
	ErrCodeReconcileFailed  = "reconcile_failed"
	ErrCodeLinkCodeFailed   = "link_code_failed"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)
