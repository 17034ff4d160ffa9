//go:build !windows
// +build !windows

package bulk

import (
	"errors"
	"time"
)

// The direct-driver backend only exists on Windows; elsewhere the facade
// goes straight to the generic backend and none of these run.

var errDirectUnavailable = errors.New("direct-driver backend unavailable")

type directState struct{}

func (t *Transport) openDirect(Descriptor) bool { return false }

func (t *Transport) directWrite([]byte, time.Duration) (int, error) {
	return 0, errDirectUnavailable
}

func (t *Transport) directRead([]byte) (int, error) {
	return 0, errDirectUnavailable
}

func (t *Transport) flushDirect() {}

func (t *Transport) closeDirect() {}
