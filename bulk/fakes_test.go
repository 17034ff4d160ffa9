package bulk

import (
	"testing"
	"time"
)

// The fakes below implement the capability contracts and record every
// lifecycle event so tests can assert teardown ordering.

type fakeLibrary struct {
	events *[]string

	devices       []*fakeDevice // handed out one per NewContext
	newContextErr error
	contexts      []*fakeContext
	closed        int
}

func (l *fakeLibrary) NewContext() (Context, error) {
	if l.newContextErr != nil {
		return nil, l.newContextErr
	}
	ctx := &fakeContext{events: l.events}
	if len(l.devices) > 0 {
		ctx.dev = l.devices[0]
		l.devices = l.devices[1:]
	}
	l.contexts = append(l.contexts, ctx)
	return ctx, nil
}

func (l *fakeLibrary) Close() error {
	l.closed++
	l.record("close-library")
	return nil
}

func (l *fakeLibrary) record(event string) {
	if l.events != nil {
		*l.events = append(*l.events, event)
	}
}

type fakeContext struct {
	events *[]string

	dev     *fakeDevice
	openErr error
	closed  int
}

func (c *fakeContext) OpenDevice(vendorID, productID uint16) (DeviceHandle, error) {
	if c.openErr != nil {
		return nil, c.openErr
	}
	if c.dev == nil {
		return nil, ErrDeviceNotFound
	}
	return c.dev, nil
}

func (c *fakeContext) Close() error {
	c.closed++
	if c.events != nil {
		*c.events = append(*c.events, "close-context")
	}
	return nil
}

type transferResult struct {
	n   int
	err error
}

type transferCall struct {
	endpoint uint8
	size     int
	timeout  time.Duration
}

type fakeDevice struct {
	events *[]string

	cfg      *ConfigDescriptor
	cfgErr   error
	releases int

	autoDetach bool
	claimErr   error
	claimed    int
	released   int
	closed     int

	transfers []transferResult // scripted; empty means full sync completion
	calls     []transferCall
}

func (d *fakeDevice) ConfigDescriptor() (*ConfigDescriptor, error) {
	if d.cfgErr != nil {
		return nil, d.cfgErr
	}
	cfg := *d.cfg
	cfg.Release = func() { d.releases++ }
	return &cfg, nil
}

func (d *fakeDevice) SetAutoDetach(enable bool) error {
	d.autoDetach = enable
	return nil
}

func (d *fakeDevice) ClaimInterface(number uint8) error {
	if d.claimErr != nil {
		return d.claimErr
	}
	d.claimed++
	return nil
}

func (d *fakeDevice) ReleaseInterface(number uint8) error {
	d.released++
	if d.events != nil {
		*d.events = append(*d.events, "release-interface")
	}
	return nil
}

func (d *fakeDevice) BulkTransfer(endpoint uint8, buf []byte, timeout time.Duration) (int, error) {
	d.calls = append(d.calls, transferCall{endpoint: endpoint, size: len(buf), timeout: timeout})
	if len(d.transfers) == 0 {
		return len(buf), nil
	}
	res := d.transfers[0]
	d.transfers = d.transfers[1:]
	return res.n, res.err
}

func (d *fakeDevice) Close() error {
	d.closed++
	if d.events != nil {
		*d.events = append(*d.events, "close-device")
	}
	return nil
}

// bulkPairConfig builds a descriptor tree carrying a bulk OUT/IN pair on
// the given interface, preceded by an HID-looking interface 0 with
// interrupt endpoints that the resolver must skip.
func bulkPairConfig(iface uint8, endpoints ...EndpointDescriptor) *ConfigDescriptor {
	return &ConfigDescriptor{
		Interfaces: []InterfaceDescriptor{
			{AltSettings: []InterfaceSetting{{
				Number: 0,
				Endpoints: []EndpointDescriptor{
					{Address: 0x81, Attributes: 0x03},
					{Address: 0x01, Attributes: 0x03},
				},
			}}},
			{AltSettings: []InterfaceSetting{{
				Number:    iface,
				Endpoints: endpoints,
			}}},
		},
	}
}

func goodDevice(events *[]string) *fakeDevice {
	return &fakeDevice{
		events: events,
		cfg: bulkPairConfig(bulkInterfaceNumber,
			EndpointDescriptor{Address: 0x01, Attributes: transferTypeBulk},
			EndpointDescriptor{Address: 0x81, Attributes: transferTypeBulk},
		),
	}
}

// withFakeLibrary installs lib as the library factory and resets the
// process-wide singleton before and after the test.
func withFakeLibrary(t *testing.T, fl *fakeLibrary) {
	t.Helper()
	prev := newLibrary
	newLibrary = func() (Library, error) { return fl, nil }
	resetLibrary()
	t.Cleanup(func() {
		newLibrary = prev
		resetLibrary()
	})
}

func resetLibrary() {
	libMu.Lock()
	lib = nil
	libRefs = 0
	libMu.Unlock()
}
