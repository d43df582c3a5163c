package pipeline

import "errors"

// ErrInvalidInput marks failures that redelivery can never fix (unknown
// source, unknown category, malformed envelope). Handlers finish these
// deliveries immediately instead of requeueing.
var ErrInvalidInput = errors.New("invalid input")

// IsInvalid reports whether err is non-retryable.
func IsInvalid(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}
