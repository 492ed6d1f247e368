package core

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrProviderUnavailable = errors.New("embedding provider unavailable")
	ErrProviderAuth        = errors.New("embedding provider rejected credentials")
	ErrNotFound            = errors.New("not found")
	ErrValidation          = errors.New("validation failed")
)

// OpError ties an error to the operation that produced it.
type OpError struct {
	Op      string
	Err     error
	Context map[string]any
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

func NewOpError(op string, err error) *OpError {
	return &OpError{Op: op, Err: err}
}

// Wrapf wraps a sentinel with a formatted detail message while keeping errors.Is intact.
func Wrapf(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}

func WithContext(err *OpError, key string, val any) *OpError {
	if err.Context == nil {
		err.Context = make(map[string]any)
	}
	err.Context[key] = val
	return err
}

// HTTPStatus maps an error from the core taxonomy to a response status.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrProviderAuth):
		return http.StatusBadGateway
	case errors.Is(err, ErrProviderUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
