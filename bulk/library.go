package bulk

import (
	"io"
	"sync"
	"time"
)

// Library is the process-wide generic USB access capability. It is shared
// by every Transport that falls back to the generic backend, so it is
// reference counted: each Open that uses it takes one reference with
// acquireLibrary and returns it during Close with releaseLibrary.
type Library interface {
	// NewContext opens a private connection to the library, independent
	// of any connection an upstream layer may already hold.
	NewContext() (Context, error)
}

// Context is a private library connection, created only when the caller
// did not supply an already-open device handle.
type Context interface {
	// OpenDevice enumerates connected devices and opens the first one
	// matching the vendor/product identity.
	OpenDevice(vendorID, productID uint16) (DeviceHandle, error)
	Close() error
}

// DeviceHandle is an open USB device. A Transport either owns the handle
// (it opened the device itself) or borrows one supplied by an upstream
// layer; only owned handles are closed during teardown.
type DeviceHandle interface {
	// ConfigDescriptor returns the active configuration's descriptor
	// tree. The returned descriptor must be released exactly once.
	ConfigDescriptor() (*ConfigDescriptor, error)
	SetAutoDetach(enable bool) error
	ClaimInterface(number uint8) error
	ReleaseInterface(number uint8) error
	// BulkTransfer moves up to len(buf) bytes on the given endpoint,
	// honoring the endpoint's direction bit, and returns the byte count
	// actually moved.
	BulkTransfer(endpoint uint8, buf []byte, timeout time.Duration) (int, error)
	Close() error
}

// newLibrary is a package variable so tests can substitute a fake library.
var newLibrary = newGousbLibrary

var (
	libMu   sync.Mutex
	lib     Library
	libRefs int
)

// acquireLibrary returns the shared library, initializing it on first use.
// Every successful acquire must be paired with one releaseLibrary.
func acquireLibrary() (Library, error) {
	libMu.Lock()
	defer libMu.Unlock()
	if lib == nil {
		l, err := newLibrary()
		if err != nil {
			return nil, err
		}
		lib = l
	}
	libRefs++
	return lib, nil
}

// releaseLibrary drops one reference and tears the library down when the
// last reference is gone. Extra releases are no-ops.
func releaseLibrary() {
	libMu.Lock()
	defer libMu.Unlock()
	if libRefs == 0 {
		return
	}
	libRefs--
	if libRefs == 0 {
		if c, ok := lib.(io.Closer); ok {
			c.Close()
		}
		lib = nil
	}
}
