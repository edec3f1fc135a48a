package audit

import (
	"errors"
	"net/http"

	"github.com/JaimeStill/geofeed/pkg/storage"
)

// ErrUnavailable indicates the requested view of the trail needs a sink that is not enabled.
var ErrUnavailable = errors.New("audit view unavailable")

// MapHTTPStatus maps audit errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	if errors.Is(err, ErrUnavailable) {
		return http.StatusNotImplemented
	}
	if errors.Is(err, storage.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
