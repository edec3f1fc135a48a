package ingest

import (
	"errors"
	"net/http"

	"github.com/JaimeStill/geofeed/internal/queue"
)

var (
	ErrInvalidRequest = errors.New("invalid request body")
	ErrEmptyBatch     = errors.New("batch contains no detections")
	ErrBatchTooLarge  = errors.New("batch exceeds maximum size")
)

// MapHTTPStatus maps ingest errors to HTTP status codes. A feature that could
// not be persisted is reported as 503 so senders retry.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrEmptyBatch):
		return http.StatusBadRequest
	case errors.Is(err, ErrBatchTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, queue.ErrPersistence):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
