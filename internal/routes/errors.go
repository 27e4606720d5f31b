package routes

import (
	"errors"
	"net/http"
)

// HTTPError represents an error with an associated HTTP status code and user message
type HTTPError struct {
	Err        error  // The underlying error
	StatusCode int    // HTTP status code
	Message    string // User-friendly message
	Internal   bool   // Whether this is an internal error (hide details from user)
}

// Error implements the error interface
func (e *HTTPError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *HTTPError) Unwrap() error {
	return e.Err
}

// NewHTTPError creates a new HTTPError
func NewHTTPError(statusCode int, err error, message string) *HTTPError {
	return &HTTPError{
		Err:        err,
		StatusCode: statusCode,
		Message:    message,
		Internal:   statusCode >= 500,
	}
}

var (
	// Authentication errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// Validation errors
	ErrMissingPushToken     = errors.New("missing pushToken")
	ErrMissingSerialNumbers = errors.New("serialNumbers must be a non-empty array")
	ErrMissingParameter     = errors.New("missing required parameter")
	ErrInvalidParameter     = errors.New("invalid parameter")

	// Lookup errors
	ErrTicketNotFound = errors.New("ticket not found")

	// More than one document matched a lookup that must be unique.
	ErrStoreIntegrity = errors.New("store integrity error")

	// Store, push gateway or wallet API call failed. Safe to retry.
	ErrUpstream = errors.New("upstream service failure")
)

// errorStatusMap maps errors to HTTP status codes
var errorStatusMap = map[error]int{
	// 400 Bad Request
	ErrMissingPushToken:     http.StatusBadRequest,
	ErrMissingSerialNumbers: http.StatusBadRequest,
	ErrMissingParameter:     http.StatusBadRequest,
	ErrInvalidParameter:     http.StatusBadRequest,

	// 401 Unauthorized
	ErrUnauthorized: http.StatusUnauthorized,

	// 403 Forbidden
	ErrForbidden: http.StatusForbidden,

	// 404 Not Found
	ErrTicketNotFound: http.StatusNotFound,

	// 500 Internal Server Error
	ErrStoreIntegrity: http.StatusInternalServerError,

	// 502 Bad Gateway
	ErrUpstream: http.StatusBadGateway,
}

// errorMessageMap maps errors to user-facing messages. Internal detail
// (store/gateway errors wrapped inside) never reaches the response.
var errorMessageMap = map[error]string{
	ErrUnauthorized:         "Unauthorized",
	ErrForbidden:            "Forbidden",
	ErrMissingPushToken:     "Missing pushToken",
	ErrMissingSerialNumbers: "`serialNumbers` must be a non-empty array",
	ErrMissingParameter:     "Required parameter is missing",
	ErrInvalidParameter:     "Invalid parameter value",
	ErrTicketNotFound:       "Ticket not found",
	ErrStoreIntegrity:       "An internal error occurred",
	ErrUpstream:             "A backing service failed, please retry",
}

// GetErrorStatus returns the HTTP status code for an error
func GetErrorStatus(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}

	if status, ok := errorStatusMap[err]; ok {
		return status
	}

	// Check if error wraps a known error
	for knownErr, status := range errorStatusMap {
		if errors.Is(err, knownErr) {
			return status
		}
	}

	return http.StatusInternalServerError
}

// GetErrorMessage returns a user-friendly message for an error
func GetErrorMessage(err error) string {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Message
	}

	if msg, ok := errorMessageMap[err]; ok {
		return msg
	}

	for knownErr, msg := range errorMessageMap {
		if errors.Is(err, knownErr) {
			return msg
		}
	}

	if GetErrorStatus(err) >= 500 {
		return "An internal error occurred"
	}
	return err.Error()
}
