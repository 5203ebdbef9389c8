package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/jonathan/applications-dashboard/internal/fetch"
	"github.com/jonathan/applications-dashboard/internal/parsing"
)

// ErrNotImplemented is returned by the delete and clear endpoints.
var ErrNotImplemented = errors.New("not implemented")

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return "validation error: " + e.Field + " - " + e.Message
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var (
		loadErr       *fetch.LoadError
		formatErr     *parsing.FormatError
		dateErr       *parsing.DateFormatError
		fieldCountErr *parsing.FieldCountError
		validationErr *ErrValidation
		tooLargeErr   *http.MaxBytesError
	)

	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotImplemented):
		return http.StatusNotImplemented
	case errors.As(err, &validationErr):
		return http.StatusBadRequest
	case errors.As(err, &tooLargeErr):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &formatErr), errors.As(err, &dateErr), errors.As(err, &fieldCountErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &loadErr):
		if loadErr.StatusCode == http.StatusNotFound {
			return http.StatusNotFound
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
