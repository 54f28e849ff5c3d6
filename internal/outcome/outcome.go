// Package outcome defines the tagged result shape every core operation
// returns to its caller, plus the error taxonomy the HTTP layer maps to
// status codes. Rejections carry enough detail for a human operator to
// resolve the dispute manually; nothing here is auto-retried.
package outcome

import (
	"fmt"
	"net/http"
)

// Kind classifies a failed outcome.
type Kind string

const (
	KindValidation            Kind = "validation_error"
	KindDetectionFailure      Kind = "detection_failure"
	KindNoActiveLecture       Kind = "no_active_lecture"
	KindNoMatch               Kind = "no_match"
	KindDuplicateIdentity     Kind = "duplicate_identity"
	KindConflictingManualMark Kind = "conflicting_manual_mark"
	KindAlreadyProcessed      Kind = "already_processed"
	KindNotAuthorizedApprover Kind = "not_authorized_approver"
	KindNotFound              Kind = "not_found"
	KindStoreFailure          Kind = "store_failure"
)

// Error is a classified, caller-recoverable failure.
// KindStoreFailure is the only kind treated as fatal for the request.
type Error struct {
	Kind   Kind   `json:"kind"`
	Detail string `json:"detail"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// Errf builds a classified error with a formatted detail message.
func Errf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// StoreErr wraps an underlying persistence error.
func StoreErr(err error) *Error {
	return &Error{Kind: KindStoreFailure, Detail: err.Error()}
}

// KindOf extracts the outcome kind from an error, defaulting to
// store_failure for unclassified errors.
func KindOf(err error) Kind {
	if oe, ok := err.(*Error); ok {
		return oe.Kind
	}
	return KindStoreFailure
}

// HTTPStatus maps an outcome kind to the status code the API layer uses.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation, KindDetectionFailure, KindNoActiveLecture,
		KindDuplicateIdentity, KindAlreadyProcessed:
		return http.StatusBadRequest
	case KindConflictingManualMark:
		return http.StatusConflict
	case KindNoMatch, KindNotFound:
		return http.StatusNotFound
	case KindNotAuthorizedApprover:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
