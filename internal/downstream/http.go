package downstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/JaimeStill/geofeed/internal/features"
	"github.com/JaimeStill/geofeed/pkg/lifecycle"
)

const (
	contentTypeGeoJSON = "application/geo+json"
	idempotencyHeader  = "Idempotency-Key"
)

type httpDriver struct {
	client    *http.Client
	url       string
	healthURL string
	now       func() time.Time
	logger    *slog.Logger
}

func newHTTP(cfg *HTTPConfig, logger *slog.Logger) (*httpDriver, error) {
	return &httpDriver{
		client:    &http.Client{},
		url:       cfg.URL,
		healthURL: cfg.HealthURL,
		now:       time.Now,
		logger:    logger,
	}, nil
}

func (d *httpDriver) Driver() string { return DriverHTTP }

func (d *httpDriver) Start(lc *lifecycle.Coordinator) error {
	d.logger.Info("starting downstream", "url", d.url)

	lc.OnShutdown(func() {
		<-lc.Context().Done()
		d.client.CloseIdleConnections()
		d.logger.Info("downstream closed")
	})
	return nil
}

// Deliver posts the feature as GeoJSON. 2xx and 409 Conflict (already
// received under the same idempotency key) both count as acknowledged.
func (d *httpDriver) Deliver(ctx context.Context, f features.Feature) error {
	body, err := json.Marshal(f.GeoJSON(d.now()))
	if err != nil {
		return fmt.Errorf("encode feature %s: %w", f.FeatureID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentTypeGeoJSON)
	req.Header.Set(idempotencyHeader, f.FeatureID)

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if accepted(resp.StatusCode) {
		return nil
	}
	return fmt.Errorf("%w: %s returned %d", ErrRejected, d.url, resp.StatusCode)
}

func (d *httpDriver) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.healthURL, nil)
	if err != nil {
		return fmt.Errorf("build probe: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: %s returned %d", ErrUnreachable, d.healthURL, resp.StatusCode)
	}
	return nil
}

func accepted(status int) bool {
	return (status >= 200 && status < 300) || status == http.StatusConflict
}
