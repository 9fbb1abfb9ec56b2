package utils

import (
	"errors"
	"fmt"
	"net/http"
)

// ResponseCode classifies an application error
type ResponseCode int

const (
	CodeSuccess           ResponseCode = 0
	CodeInvalidParam      ResponseCode = 1001
	CodeUnauthorized      ResponseCode = 1002
	CodeForbidden         ResponseCode = 1003
	CodeNotFound          ResponseCode = 1004
	CodeInvalidState      ResponseCode = 1005
	CodeInvalidTransition ResponseCode = 1006
	CodeConflict          ResponseCode = 1007
	CodeRateLimit         ResponseCode = 1008
	CodeInternalError     ResponseCode = 5000
	CodeServiceError      ResponseCode = 5001
)

// HTTPStatus maps a code onto the HTTP status used in responses
func (c ResponseCode) HTTPStatus() int {
	switch c {
	case CodeSuccess:
		return http.StatusOK
	case CodeInvalidParam:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeInvalidState, CodeInvalidTransition, CodeConflict:
		return http.StatusConflict
	case CodeRateLimit:
		return http.StatusTooManyRequests
	case CodeServiceError:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// AppError application error structure
type AppError struct {
	Code    ResponseCode `json:"code"`
	Message string       `json:"message"`
	Err     error        `json:"-"`
}

// Error implement error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("code: %d, message: %s, error: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("code: %d, message: %s", e.Code, e.Message)
}

// Unwrap implement errors.Unwrap interface
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches any AppError carrying the same code, so
// errors.Is(NewError(CodeNotFound, "order not found"), ErrNotFound) holds.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewError create new application error
func NewError(code ResponseCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Errorf create new application error with a formatted message
func Errorf(code ResponseCode, format string, args ...interface{}) *AppError {
	return NewError(code, fmt.Sprintf(format, args...))
}

// WrapError wrap error
func WrapError(err error, code ResponseCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Predefined errors. Match with errors.Is.
var (
	ErrValidation        = NewError(CodeInvalidParam, "invalid parameter")
	ErrUnauthorized      = NewError(CodeUnauthorized, "unauthorized")
	ErrForbidden         = NewError(CodeForbidden, "forbidden")
	ErrNotFound          = NewError(CodeNotFound, "not found")
	ErrInvalidState      = NewError(CodeInvalidState, "invalid state")
	ErrInvalidTransition = NewError(CodeInvalidTransition, "invalid status transition")
	ErrConflict          = NewError(CodeConflict, "concurrent modification")
	ErrRateLimit         = NewError(CodeRateLimit, "rate limit exceeded")
	ErrInternalError     = NewError(CodeInternalError, "internal server error")
	ErrServiceError      = NewError(CodeServiceError, "service unavailable")
)

// NewInvalidTransition reports a rejected status change from -> to
func NewInvalidTransition(from, to string) *AppError {
	return Errorf(CodeInvalidTransition, "cannot change status from %s to %s", from, to)
}

// IsAppError check if err is or wraps an application error
func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetErrorCode get error code
func GetErrorCode(err error) ResponseCode {
	if appErr, ok := IsAppError(err); ok {
		return appErr.Code
	}
	return CodeInternalError
}

// GetErrorMessage get error message
func GetErrorMessage(err error) string {
	if appErr, ok := IsAppError(err); ok {
		return appErr.Message
	}
	return err.Error()
}
