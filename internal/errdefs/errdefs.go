// Package errdefs defines the error classes a sync run distinguishes.
package errdefs

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration halts the current zone; other zones in a batch continue.
	ErrConfiguration = errors.New("configuration error")
	// ErrSkip marks a condition that skips one IP or nameserver without mutating anything.
	ErrSkip = errors.New("skipped")
	// ErrStoreWrite marks a failed create or delete of a single record.
	ErrStoreWrite = errors.New("store write failed")
)

// Configuration returns an error wrapping ErrConfiguration.
func Configuration(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// Skip returns an error wrapping ErrSkip.
func Skip(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSkip, fmt.Sprintf(format, args...))
}

// StoreWrite wraps err as ErrStoreWrite for the given operation.
func StoreWrite(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreWrite, op, err)
}

// IsConfiguration reports whether err halts a zone.
func IsConfiguration(err error) bool { return errors.Is(err, ErrConfiguration) }

// IsSkip reports whether err only skips its nameserver or address.
func IsSkip(err error) bool { return errors.Is(err, ErrSkip) }
