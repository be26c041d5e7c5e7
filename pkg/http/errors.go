package http

import (
	"errors"
	"fmt"
	"net/http"

	"FinPolicy/pkg/errs"
)

// AppError is an application error with an HTTP status.
type AppError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Field   string                 `json:"field,omitempty"`
	Params  map[string]interface{} `json:"params,omitempty"`
	Status  int                    `json:"-"`
	Err     error                  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates an application error.
func NewAppError(code, field, message string, status int) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Field:   field,
		Status:  status,
		Params:  make(map[string]interface{}),
	}
}

// WithParam sets a single error param.
func (e *AppError) WithParam(key string, value interface{}) *AppError {
	if e.Params == nil {
		e.Params = make(map[string]interface{})
	}
	e.Params[key] = value
	return e
}

// WithError wraps an underlying error.
func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

// NotFoundError creates a 404 error.
func NotFoundError(message string) *AppError {
	return NewAppError("ERR_NOT_FOUND", "", message, http.StatusNotFound)
}

// BadRequestError creates a 400 error.
func BadRequestError(message string) *AppError {
	return NewAppError("ERR_BAD_REQUEST", "", message, http.StatusBadRequest)
}

// InternalError creates a 500 error.
func InternalError(message string) *AppError {
	return NewAppError("ERR_INTERNAL", "", message, http.StatusInternalServerError)
}

// StatusForKind maps a domain error kind to an HTTP status.
func StatusForKind(k errs.Kind) int {
	switch k {
	case errs.KindValidation:
		return http.StatusBadRequest
	case errs.KindRiskLimit:
		return http.StatusUnprocessableEntity
	case errs.KindIntegrity, errs.KindResource:
		return http.StatusServiceUnavailable
	case errs.KindTimeout:
		return http.StatusGatewayTimeout
	case errs.KindInsufficientData:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// FromError converts any error into an AppError. Domain errors keep their
// kind as the code.
func FromError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	k, ok := errs.KindOf(err)
	if !ok {
		return InternalError("Something went wrong").WithError(err)
	}
	return NewAppError(string(k), "", err.Error(), StatusForKind(k)).WithError(err)
}
