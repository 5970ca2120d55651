// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are lowercase snake_case and stable; clients branch on them rather
// than on messages. Generic codes mirror HTTP status semantics, the rest name
// the gateway operation that failed.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "invalid_status",
//	  "message": "status must be sent or failed"
//	}
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeInternal         = "internal_error"

	// Gateway-specific:
	ErrCodeFlushFailed     = "flush_failed"
	ErrCodeQueueUnreadable = "queue_unreadable"
	ErrCodeInvalidStatus   = "invalid_status"
	ErrCodeListFailed      = "list_failed"
	ErrCodeUpstreamFailed  = "upstream_failed"
)
