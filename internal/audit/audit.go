// Package audit records every queue state transition and direct-delivery outcome so that
// RED geolocations and permanently failed deliveries stay visible to operators.
package audit

import (
	"context"
	"errors"
	"time"
)

// Kind categorizes an audit event.
type Kind string

const (
	KindGeolocation Kind = "geolocation"
	KindDirect      Kind = "direct"
	KindTransition  Kind = "transition"
	KindRecovery    Kind = "recovery"
	KindRequeue     Kind = "requeue"
)

// Pseudo-states used for events that happen outside the queue state machine.
const (
	StateDirect       = "DIRECT"
	StateDelivered    = "DELIVERED"
	StateDirectFailed = "DIRECT_FAILED"
)

// Event describes one observable outcome for a feature. Alert marks events
// that need human intervention.
type Event struct {
	Kind      Kind      `json:"kind"`
	FeatureID string    `json:"feature_id"`
	From      string    `json:"from,omitempty"`
	To        string    `json:"to,omitempty"`
	At        time.Time `json:"at"`
	Attempt   int       `json:"attempt,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Alert     bool      `json:"alert,omitempty"`
}

// Sink receives audit events. Record is called synchronously after the
// transition it describes has been committed.
type Sink interface {
	Record(ctx context.Context, e Event) error
}

// Multi fans an event out to every sink and joins their errors.
type Multi []Sink

// Record implements Sink.
func (m Multi) Record(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Record(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard is a Sink that drops every event.
var Discard Sink = discard{}

type discard struct{}

func (discard) Record(context.Context, Event) error { return nil }
