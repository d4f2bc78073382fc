// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// These codes give clients a stable, machine-readable taxonomy next to the
// human-readable message in ErrorResponse. Codes are lowercase snake_case;
// generic ones mirror HTTP status semantics, domain ones name the failure.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "quota_exceeded",
//	  "message": "usage quota exceeded"
//	}
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeUnsupportedMedia = "unsupported_media_type"
	ErrCodeTooLarge         = "payload_too_large"
	ErrCodeUnavailable      = "service_unavailable"
	ErrCodeInternal         = "internal_error"

	// Domain-specific:
	ErrCodeQuotaExceeded  = "quota_exceeded"
	ErrCodeUpstreamFailed = "upstream_failed"
	ErrCodeTaskFinalized  = "task_finalized"
	ErrCodeUploadFailed   = "upload_failed"
)
