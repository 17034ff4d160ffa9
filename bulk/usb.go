package bulk

import (
	"fmt"

	logInternal "github.com/hifihedgehog/switch2usb/log"
)

// openGeneric brings up the generic-library backend: acquire the shared
// library, get a device handle (borrowed from the descriptor's properties
// or freshly opened through a private connection), resolve the bulk
// endpoint pair and claim the interface. State acquired before a failure
// is left on the Transport for Close to unwind.
func (t *Transport) openGeneric(dev Descriptor) error {
	lib, err := acquireLibrary()
	if err != nil {
		return fmt.Errorf("initialize USB library: %w", err)
	}
	t.lib = lib

	if shared := dev.Properties.deviceHandle(); shared != nil {
		// An upstream layer already holds a handle for this device;
		// borrow it and leave its lifetime to that layer.
		t.dev = shared
		logInternal.LogMessage(logInternal.DEBUG, "reusing shared device handle for %04x:%04x", dev.VendorID, dev.ProductID)
	} else {
		ctx, err := lib.NewContext()
		if err == nil {
			handle, err := ctx.OpenDevice(dev.VendorID, dev.ProductID)
			if err == nil {
				t.dev = handle
				t.ownsDevice = true
				t.ctx = ctx
			} else {
				ctx.Close()
			}
		}
	}
	if t.dev == nil {
		return fmt.Errorf("%04x:%04x: %w", dev.VendorID, dev.ProductID, ErrDeviceNotFound)
	}

	out, in, err := findEndpoints(t.dev, bulkInterfaceNumber)
	if err != nil {
		return err
	}
	t.ifaceNum = bulkInterfaceNumber
	t.outEndpoint = out
	t.inEndpoint = in

	t.dev.SetAutoDetach(true)
	if err := t.dev.ClaimInterface(t.ifaceNum); err != nil {
		return &ClaimError{Interface: t.ifaceNum, Err: err}
	}
	t.claimed = true

	logInternal.LogMessage(logInternal.DEBUG, "generic backend open: interface %d out=0x%02x in=0x%02x", t.ifaceNum, out, in)
	return nil
}
