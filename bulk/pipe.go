package bulk

import (
	"errors"
	"fmt"
)

// Overlapped wait statuses the transfer path tells apart (WAIT_OBJECT_0 and
// WAIT_TIMEOUT). Anything else is a failed wait, not an expired one.
const (
	waitCompleted = 0x00000000
	waitExpired   = 0x00000102
)

// waitOutcome maps a transfer wait status to the error reported to the
// caller: nil when the transfer completed, ErrTimeout when the bound
// expired, and the wait's own failure otherwise so the two stay
// distinguishable.
func waitOutcome(status uint32, waitErr error) error {
	switch status {
	case waitCompleted:
		return nil
	case waitExpired:
		return ErrTimeout
	default:
		if waitErr == nil {
			waitErr = errors.New("wait failed")
		}
		return fmt.Errorf("wait for transfer: %w", waitErr)
	}
}

// readChunked fills p in packet-sized chunks until p is full or read
// delivers a short packet. keepProgress selects what a chunk failure after
// some progress yields: the bytes already read (direct-driver behavior) or
// the chunk's error with progress dropped (generic-library behavior).
func readChunked(p []byte, keepProgress bool, read func([]byte) (int, error)) (int, error) {
	total := 0
	for total < len(p) {
		chunk := len(p) - total
		if chunk > bulkPacketSize {
			chunk = bulkPacketSize
		}
		n, err := read(p[total : total+chunk])
		if err != nil {
			if keepProgress && total > 0 {
				return total, nil
			}
			return 0, err
		}
		total += n
		if n < chunk {
			break
		}
	}
	return total, nil
}
