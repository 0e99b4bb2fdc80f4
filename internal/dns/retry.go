package dns

import (
	"errors"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/util/retry"
)

// TransientError marks a store failure worth retrying: timeouts, rate
// limits, server-side errors.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient: " + e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientError. A nil err stays nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err or anything it wraps is a TransientError.
func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

// WriteBackoff is the backoff used for retrying transient store writes.
var WriteBackoff = wait.Backoff{
	Steps:    4,
	Duration: 200 * time.Millisecond,
	Factor:   2.0,
	Jitter:   0.1,
}

// WithRetry runs fn, retrying with WriteBackoff while it fails transiently.
func WithRetry(fn func() error) error {
	return retry.OnError(WriteBackoff, IsTransient, fn)
}
