package tokenauth

import (
	"errors"
	"fmt"
)

// ErrorCode represents authorization failure categories.
type ErrorCode string

const (
	ErrCodeNotAllowlisted   ErrorCode = "not_allowlisted"
	ErrCodeInvalidSignature ErrorCode = "invalid_signature"
	ErrCodeMissingSubject   ErrorCode = "missing_subject"
	ErrCodeMissingIssuedAt  ErrorCode = "missing_issued_at"
	ErrCodeMissingExpiry    ErrorCode = "missing_expiry"
	ErrCodeExpired          ErrorCode = "expired"
	ErrCodeNotAuthorized    ErrorCode = "not_authorized"
)

var errorMessages = map[ErrorCode]string{
	ErrCodeNotAllowlisted:   "Access denied: user not authorized to generate tokens",
	ErrCodeInvalidSignature: "Invalid token signature",
	ErrCodeMissingSubject:   "Invalid token: missing subject",
	ErrCodeMissingIssuedAt:  "Invalid token: missing issued at time",
	ErrCodeMissingExpiry:    "Invalid token: missing expiration time",
	ErrCodeExpired:          "Token has expired",
	ErrCodeNotAuthorized:    "Access denied: user not authorized",
}

// Error is the single authorization error returned by Issuer and Validator.
// Every code is terminal; callers should reject the request.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	base := e.Message
	if base == "" {
		base = string(e.Code)
	}
	if e.Err == nil {
		return base
	}
	return fmt.Sprintf("%s: %v", base, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf extracts the ErrorCode from err, or "" when err is not an *Error.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func newError(code ErrorCode, err error) error {
	msg, ok := errorMessages[code]
	if !ok {
		msg = string(code)
	}
	return &Error{Code: code, Message: msg, Err: err}
}
