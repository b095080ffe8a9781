// Package errors provides standardized error handling for the conequest service.
// Recorder precondition failures are returned as *Error values carrying the
// user-facing message; nothing in the check-in path panics or throws.
package errors

import (
	"fmt"
	"net/http"
)

// ErrorCode represents a standardized error code for the conequest service.
type ErrorCode string

const (
	// Validation / precondition errors. These are locally recoverable by the
	// caller (sign in, re-acquire location, pick a valid rating).
	CQ_VALIDATION       ErrorCode = "CQ_VALIDATION"       // General validation error
	CQ_BAD_REQUEST      ErrorCode = "CQ_BAD_REQUEST"      // Bad request
	CQ_MISSING_USER     ErrorCode = "CQ_MISSING_USER"     // No user id on the operation
	CQ_MISSING_TARGET   ErrorCode = "CQ_MISSING_TARGET"   // No target on the operation
	CQ_MISSING_LOCATION ErrorCode = "CQ_MISSING_LOCATION" // No usable location sample
	CQ_NOT_IN_RANGE     ErrorCode = "CQ_NOT_IN_RANGE"     // Admission gate rejected the attempt
	CQ_INVALID_RATING   ErrorCode = "CQ_INVALID_RATING"   // Rating outside 1-5
	CQ_CATALOG_REJECT   ErrorCode = "CQ_CATALOG_REJECT"   // Target document failed schema validation

	// Authentication errors
	CQ_AUTHN         ErrorCode = "CQ_AUTHN"         // Authentication failed
	CQ_JWT_INVALID   ErrorCode = "CQ_JWT_INVALID"   // Invalid JWT
	CQ_JWT_EXPIRED   ErrorCode = "CQ_JWT_EXPIRED"   // Expired JWT
	CQ_JWT_MALFORMED ErrorCode = "CQ_JWT_MALFORMED" // Malformed JWT

	// Resource errors
	CQ_NOT_FOUND ErrorCode = "CQ_NOT_FOUND" // Resource not found
	CQ_CONFLICT  ErrorCode = "CQ_CONFLICT"  // Resource conflict

	// Server errors
	CQ_INTERNAL    ErrorCode = "CQ_INTERNAL"    // Internal server error
	CQ_UNAVAILABLE ErrorCode = "CQ_UNAVAILABLE" // Service unavailable
)

// Error represents a standardized error response. Message is the
// human-readable text surfaced to the user.
type Error struct {
	Code          ErrorCode   `json:"code"`
	Message       string      `json:"message"`
	CorrelationID string      `json:"correlationId"`
	Details       interface{} `json:"details,omitempty"`
	HTTPStatus    int         `json:"-"`
}

// New creates a new Error with the specified code and message.
func New(code ErrorCode, message string, correlationID string) *Error {
	return &Error{
		Code:          code,
		Message:       message,
		CorrelationID: correlationID,
		HTTPStatus:    httpStatusCodeForCode(code),
	}
}

// NewWithDetails creates a new Error with the specified code, message, and details.
func NewWithDetails(code ErrorCode, message string, correlationID string, details interface{}) *Error {
	return &Error{
		Code:          code,
		Message:       message,
		CorrelationID: correlationID,
		Details:       details,
		HTTPStatus:    httpStatusCodeForCode(code),
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Details != nil {
		return fmt.Sprintf("%s: %s (details: %v)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// httpStatusCodeForCode maps error codes to HTTP status codes.
func httpStatusCodeForCode(code ErrorCode) int {
	switch code {
	case CQ_VALIDATION, CQ_BAD_REQUEST, CQ_MISSING_TARGET, CQ_MISSING_LOCATION, CQ_INVALID_RATING, CQ_CATALOG_REJECT:
		return http.StatusBadRequest
	case CQ_NOT_IN_RANGE:
		return http.StatusUnprocessableEntity
	case CQ_MISSING_USER, CQ_AUTHN, CQ_JWT_INVALID, CQ_JWT_EXPIRED, CQ_JWT_MALFORMED:
		return http.StatusUnauthorized
	case CQ_NOT_FOUND:
		return http.StatusNotFound
	case CQ_CONFLICT:
		return http.StatusConflict
	case CQ_UNAVAILABLE:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
