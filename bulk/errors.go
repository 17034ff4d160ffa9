package bulk

import (
	"errors"
	"fmt"
)

var (
	// ErrNotOpen reports a transfer attempted on a Transport that was never
	// opened or has been closed.
	ErrNotOpen = errors.New("transport not open")

	// ErrDeviceNotFound means no connected device matched the vendor and
	// product identity, on either backend.
	ErrDeviceNotFound = errors.New("no matching USB device")

	// ErrEndpointsNotFound means the target interface lacks a bulk
	// endpoint pair.
	ErrEndpointsNotFound = errors.New("bulk endpoints not found")

	// ErrTimeout is returned when a transfer on the direct-driver backend
	// exceeds its bound and is aborted. It is distinct from other transfer
	// failures so callers can retry at their own policy.
	ErrTimeout = errors.New("bulk transfer timed out")
)

// ClaimError reports a rejected interface claim. Err carries the library's
// failure unchanged; with the gousb backend its value is the libusb error
// code.
type ClaimError struct {
	Interface uint8
	Err       error
}

func (e *ClaimError) Error() string {
	return fmt.Sprintf("claim interface %d: %v", e.Interface, e.Err)
}

func (e *ClaimError) Unwrap() error {
	return e.Err
}
