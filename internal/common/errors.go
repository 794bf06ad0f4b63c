// Package common defines the error taxonomy, shared constants and small
// random helpers used across sessionkeeper. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Store-level infrastructure errors.
	ErrCacheUnavailable = errors.New("cache unavailable")
)

// DomainError is an expected, user-facing authentication outcome. Code is
// stable across releases and safe to branch on; Message is a generic
// description that never reveals which internal check failed.
type DomainError struct {
	Code    string
	Message string
}

func (e *DomainError) Error() string {
	return e.Code + ": " + e.Message
}

// Domain error codes.
const (
	CodeInvalidCaptcha      = "invalid_captcha"
	CodeUserLockedOut       = "user_locked_out"
	CodeInvalidCredentials  = "invalid_credentials"
	CodeEmailNotConfirmed   = "email_not_confirmed"
	CodeTransactionFailed   = "transaction_failed"
	CodeInvalidRefreshToken = "invalid_refresh_token"
	CodeInvalidToken        = "invalid_token"
)

var (
	ErrInvalidCaptcha      = &DomainError{Code: CodeInvalidCaptcha, Message: "captcha verification failed"}
	ErrUserLockedOut       = &DomainError{Code: CodeUserLockedOut, Message: "account is temporarily locked"}
	ErrInvalidCredentials  = &DomainError{Code: CodeInvalidCredentials, Message: "invalid email or password"}
	ErrEmailNotConfirmed   = &DomainError{Code: CodeEmailNotConfirmed, Message: "email address is not confirmed"}
	ErrTransactionFailed   = &DomainError{Code: CodeTransactionFailed, Message: "the operation could not be completed"}
	ErrInvalidRefreshToken = &DomainError{Code: CodeInvalidRefreshToken, Message: "refresh token is invalid or expired"}
	ErrInvalidToken        = &DomainError{Code: CodeInvalidToken, Message: "access token is invalid"}
)

// AsDomainError reports whether err is (or wraps) a DomainError and returns it.
func AsDomainError(err error) (*DomainError, bool) {
	var de *DomainError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}
