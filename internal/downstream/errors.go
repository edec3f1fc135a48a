package downstream

import "errors"

var (
	// ErrUnreachable indicates the transport could not reach the receiver.
	ErrUnreachable = errors.New("downstream unreachable")
	// ErrRejected indicates the receiver answered but did not accept the feature.
	ErrRejected = errors.New("downstream rejected feature")
)
