package features

import "errors"

// ErrMalformedPayload indicates a queued payload cannot be decoded into a Feature.
var ErrMalformedPayload = errors.New("malformed feature payload")
