package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// Stable API error codes. These are contract; do not rename.
const (
	CodeInvalidParameter     = "INVALID_PARAMETER"
	CodePaperNotFound        = "PAPER_NOT_FOUND"
	CodeResourceNotFound     = "RESOURCE_NOT_FOUND"
	CodeForbiddenSQL         = "FORBIDDEN_SQL"
	CodeEmbeddingUnavailable = "EMBEDDING_SERVICE_UNAVAILABLE"
	CodeQueryTimeout         = "QUERY_TIMEOUT"
	CodeDatabaseUnavailable  = "DATABASE_UNAVAILABLE"
	CodeInternalPlanError    = "INTERNAL_PLAN_ERROR"
	CodeInternalError        = "INTERNAL_ERROR"
)

// Error is the taxonomy-carrying error surfaced to API clients.
type Error struct {
	Code    string
	Message string
	Detail  string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError builds a taxonomy error with an optional detail string.
func NewError(code, message string, detail ...string) *Error {
	e := &Error{Code: code, Message: message}
	if len(detail) > 0 {
		e.Detail = detail[0]
	}
	return e
}

// Invalid is shorthand for an INVALID_PARAMETER error naming the offending
// parameter.
func Invalid(param, reason string) *Error {
	return &Error{Code: CodeInvalidParameter, Message: fmt.Sprintf("invalid parameter %q", param), Detail: reason}
}

// CodeOf extracts the taxonomy code from err, defaulting to INTERNAL_ERROR.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternalError
}

// HTTPStatus maps an error code to its HTTP status per the API contract.
func HTTPStatus(code string) int {
	switch code {
	case CodeInvalidParameter, CodeForbiddenSQL:
		return http.StatusBadRequest
	case CodePaperNotFound, CodeResourceNotFound:
		return http.StatusNotFound
	case CodeQueryTimeout:
		return http.StatusGatewayTimeout
	case CodeDatabaseUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
