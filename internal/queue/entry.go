// Package queue is the durable store-and-forward queue for features that could not be
// delivered directly. Entries are keyed by feature ID and move through
// PENDING → SYNCING → SYNCED | FAILED_PERMANENT; they are never deleted by the service.
package queue

import (
	"encoding/json"
	"time"
)

// Status is the delivery state of a queue entry.
type Status string

const (
	StatusPending         Status = "PENDING"
	StatusSyncing         Status = "SYNCING"
	StatusSynced          Status = "SYNCED"
	StatusFailedPermanent Status = "FAILED_PERMANENT"
)

// Valid reports whether s is one of the four queue states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusSyncing, StatusSynced, StatusFailedPermanent:
		return true
	}
	return false
}

// Entry is one queued feature. RetryCount counts delivery attempts made so far,
// including the direct attempt when one preceded the enqueue.
type Entry struct {
	FeatureID     string          `json:"feature_id"`
	Sequence      int64           `json:"sequence"`
	Payload       json.RawMessage `json:"payload"`
	Status        Status          `json:"status"`
	RetryCount    int             `json:"retry_count"`
	NextAttemptAt time.Time       `json:"next_attempt_at"`
	EnqueuedAt    time.Time       `json:"enqueued_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	SyncedAt      *time.Time      `json:"synced_at,omitempty"`
	LastError     *string         `json:"last_error,omitempty"`
}

// EnqueueCommand describes a feature handed to the queue.
// Attempts seeds RetryCount for a new entry and is ignored on re-enqueue.
type EnqueueCommand struct {
	FeatureID     string
	Payload       json.RawMessage
	Attempts      int
	NextAttemptAt time.Time
	LastError     string
	At            time.Time
}

// Stats summarizes the queue by state.
type Stats struct {
	Pending         int        `json:"pending"`
	Syncing         int        `json:"syncing"`
	Synced          int        `json:"synced"`
	FailedPermanent int        `json:"failed_permanent"`
	Total           int        `json:"total"`
	OldestPending   *time.Time `json:"oldest_pending,omitempty"`
}

func (s *Stats) add(status Status, n int) {
	switch status {
	case StatusPending:
		s.Pending += n
	case StatusSyncing:
		s.Syncing += n
	case StatusSynced:
		s.Synced += n
	case StatusFailedPermanent:
		s.FailedPermanent += n
	}
	s.Total += n
}
