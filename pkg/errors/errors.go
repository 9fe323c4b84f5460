package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is an error with a stable machine-readable code. Handlers map the
// code to an HTTP status, so services return AppErrors instead of picking
// status codes themselves.
type AppError struct {
	Code    string
	Message string
	Cause   error
	Details map[string]interface{}
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func (e *AppError) Is(target error) bool {
	var appErr *AppError
	if errors.As(target, &appErr) {
		return e.Code == appErr.Code
	}
	return false
}

func (e *AppError) clone() *AppError {
	details := make(map[string]interface{}, len(e.Details))
	for k, v := range e.Details {
		details[k] = v
	}
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Cause:   e.Cause,
		Details: details,
	}
}

func (e *AppError) WithCause(cause error) *AppError {
	out := e.clone()
	out.Cause = cause
	return out
}

func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	out := e.clone()
	out.Details[key] = value
	return out
}

var (
	ErrValidation   = &AppError{Code: "VALIDATION_ERROR", Message: "request validation failed"}
	ErrNotFound     = &AppError{Code: "NOT_FOUND", Message: "resource not found"}
	ErrConflict     = &AppError{Code: "CONFLICT", Message: "resource already exists"}
	ErrForbidden    = &AppError{Code: "FORBIDDEN", Message: "missing required scope"}
	ErrUnauthorized = &AppError{Code: "UNAUTHORIZED", Message: "missing user identity"}
	ErrUnavailable  = &AppError{Code: "SERVICE_UNAVAILABLE", Message: "dependency unavailable"}
	ErrRateLimited  = &AppError{Code: "RATE_LIMIT_EXCEEDED", Message: "rate limit exceeded"}
	ErrInternal     = &AppError{Code: "INTERNAL_ERROR", Message: "internal error"}
)

// Wrap attaches err as the cause of kind unless err already carries a code.
func Wrap(err error, kind *AppError) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return err
	}
	return kind.WithCause(err)
}

type ErrorResponse struct {
	Error     string                 `json:"error"`
	ErrorCode string                 `json:"error_code"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

func ToHTTPStatus(err error) int {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return http.StatusInternalServerError
	}

	switch appErr.Code {
	case ErrValidation.Code:
		return http.StatusBadRequest
	case ErrUnauthorized.Code:
		return http.StatusUnauthorized
	case ErrForbidden.Code:
		return http.StatusForbidden
	case ErrNotFound.Code:
		return http.StatusNotFound
	case ErrConflict.Code:
		return http.StatusConflict
	case ErrUnavailable.Code:
		return http.StatusServiceUnavailable
	case ErrRateLimited.Code:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func ToErrorResponse(err error) ErrorResponse {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return ErrorResponse{
			Error:     "internal error",
			ErrorCode: ErrInternal.Code,
		}
	}

	return ErrorResponse{
		Error:     appErr.Message,
		ErrorCode: appErr.Code,
		Details:   appErr.Details,
	}
}
