// Package bulk moves data over the vendor bulk interface of a Switch 2
// class composite controller. Interface 0 of the device is HID and stays
// with the operating system's HID driver; interface 1 is vendor-specific
// bulk. On Windows that split means the generic USB stack cannot claim
// interface 1 while the HID driver owns its sibling, so the package talks
// WinUSB directly there and falls back to the generic stack everywhere
// else (and on Windows when WinUSB itself is unavailable, e.g. the
// interface is locked by another process).
package bulk

import "time"

const (
	// bulkInterfaceNumber is the vendor bulk interface on the composite
	// device. Interface 0 is HID and is never touched here.
	bulkInterfaceNumber = 1

	// bulkPacketSize is the bulk endpoint's packet size. Reads are
	// chunked to it; a packet shorter than the chunk ends the stream.
	bulkPacketSize = 64

	// genericReadTimeout bounds each read chunk on the generic backend.
	genericReadTimeout = 500 * time.Millisecond
)

// PropertyDeviceHandle keys a DeviceHandle in Descriptor.Properties that an
// upstream layer (for example a libusb-backed HID implementation) already
// holds open for this device. When present the transport borrows it instead
// of opening its own.
const PropertyDeviceHandle = "usb.device.handle"

// Properties carries opaque values handed down by upstream device layers.
type Properties map[string]any

func (p Properties) deviceHandle() DeviceHandle {
	if h, ok := p[PropertyDeviceHandle].(DeviceHandle); ok {
		return h
	}
	return nil
}

// Descriptor identifies the device whose bulk interface should be opened.
type Descriptor struct {
	VendorID   uint16
	ProductID  uint16
	Properties Properties
}

// Transport is one bulk session with one device. The zero value is ready
// for Open, and Close returns it to the zero state so it can be reopened.
// A Transport is not safe for concurrent use; callers serialize
// Open/Write/Read/Close on a given value.
type Transport struct {
	// generic-library backend state
	lib        Library
	dev        DeviceHandle
	ownsDevice bool
	ctx        Context // private library connection, set only with ownsDevice
	claimed    bool

	ifaceNum    uint8
	outEndpoint uint8
	inEndpoint  uint8

	// direct-driver backend state; empty on platforms without it
	direct    directState
	useDirect bool
}

// Open acquires the device's bulk interface. The direct-driver backend is
// tried first on platforms that have it; when it succeeds, stale data from
// a previous session is flushed and the generic backend is never touched.
// Otherwise the generic backend opens the device (reusing a shared handle
// from dev.Properties when present), resolves the bulk endpoint pair and
// claims the interface. A failed Open leaves the Transport closed.
func (t *Transport) Open(dev Descriptor) error {
	if t.openDirect(dev) {
		t.useDirect = true
		t.flushDirect()
		return nil
	}

	if err := t.openGeneric(dev); err != nil {
		t.Close()
		return err
	}
	return nil
}

// Write sends the whole buffer on the bulk OUT endpoint, waiting at most
// timeout for completion. A Transport that is not open reports ErrNotOpen.
func (t *Transport) Write(p []byte, timeout time.Duration) (int, error) {
	if !t.useDirect && t.dev == nil {
		return 0, ErrNotOpen
	}
	if len(p) == 0 {
		return 0, nil
	}
	if t.useDirect {
		return t.directWrite(p, timeout)
	}
	return t.dev.BulkTransfer(t.outEndpoint, p, timeout)
}

// Read fills p from the bulk IN endpoint in packet-sized chunks until p is
// full or the device sends a short packet. On the direct-driver backend a
// chunk failure after progress returns the bytes already read; the generic
// backend reports the failed chunk's error and discards progress. A
// Transport that is not open reports ErrNotOpen.
func (t *Transport) Read(p []byte) (int, error) {
	if !t.useDirect && t.dev == nil {
		return 0, ErrNotOpen
	}
	if len(p) == 0 {
		return 0, nil
	}
	if t.useDirect {
		return t.directRead(p)
	}
	return readChunked(p, false, func(chunk []byte) (int, error) {
		return t.dev.BulkTransfer(t.inEndpoint, chunk, genericReadTimeout)
	})
}

// Close tears the session down in reverse acquisition order: the direct
// backend first, then interface claim, owned device handle, owned library
// connection, and last the shared library reference. Every step is guarded
// against the resource never having been acquired, so Close is idempotent
// and safe after a failed Open.
func (t *Transport) Close() {
	if t.useDirect {
		t.closeDirect()
		t.useDirect = false
	}
	if t.claimed && t.dev != nil {
		t.dev.ReleaseInterface(t.ifaceNum)
		t.claimed = false
	}
	if t.ownsDevice && t.dev != nil {
		t.dev.Close()
		t.ownsDevice = false
	}
	t.dev = nil
	if t.ctx != nil {
		t.ctx.Close()
		t.ctx = nil
	}
	if t.lib != nil {
		releaseLibrary()
		t.lib = nil
	}
	t.ifaceNum = 0
	t.outEndpoint = 0
	t.inEndpoint = 0
}
