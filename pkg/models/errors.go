package models

import "fmt"

// ErrorCode classifies a request failure. Codes are part of the wire
// contract: agents and UI surfaces switch on them.
type ErrorCode string

const (
	ErrCodeValidation          ErrorCode = "validation_error"
	ErrCodeAlreadyInFlight     ErrorCode = "already_in_flight"
	ErrCodeAuthRequired        ErrorCode = "auth_required"
	ErrCodeTransient           ErrorCode = "transient_error"
	ErrCodeAuthExpired         ErrorCode = "auth_expired"
	ErrCodeAuthorizationDenied ErrorCode = "authorization_denied"
	ErrCodeUnsupportedMedia    ErrorCode = "unsupported_media_type"
	ErrCodeInvalidResponse     ErrorCode = "invalid_remote_response"
	ErrCodeNotFound            ErrorCode = "not_found"
	ErrCodeAuthInProgress      ErrorCode = "auth_in_progress"
	ErrCodeAuthFailed          ErrorCode = "auth_failed"
	ErrCodeUnknownKind         ErrorCode = "unknown_kind"
	ErrCodeRateLimited         ErrorCode = "rate_limited"
)

// RequestError is the single error type crossing component boundaries.
// Everything the dispatcher or identity manager reports is one of these.
type RequestError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError builds a RequestError with a formatted message.
func NewError(code ErrorCode, format string, args ...interface{}) *RequestError {
	return &RequestError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// AsRequestError normalizes any error into a RequestError so handlers can
// always produce a typed envelope. Untyped errors become transient.
func AsRequestError(err error) *RequestError {
	if err == nil {
		return nil
	}
	if re, ok := err.(*RequestError); ok {
		return re
	}
	return &RequestError{Code: ErrCodeTransient, Message: err.Error()}
}
