package queue

import (
	"errors"
	"net/http"
)

// Domain errors for queue operations.
var (
	ErrNotFound          = errors.New("queue entry not found")
	ErrInvalidTransition = errors.New("invalid queue transition")
	ErrPersistence       = errors.New("queue persistence failure")
	ErrInvalidEntry      = errors.New("invalid queue entry")
)

// MapHTTPStatus maps queue domain errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	if errors.Is(err, ErrNotFound) {
		return http.StatusNotFound
	}
	if errors.Is(err, ErrInvalidTransition) {
		return http.StatusConflict
	}
	if errors.Is(err, ErrInvalidEntry) {
		return http.StatusBadRequest
	}
	if errors.Is(err, ErrPersistence) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
