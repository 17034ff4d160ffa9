package bulk

import "fmt"

// USB 2.0 descriptor bit fields (§9.6.6).
const (
	endpointDirIn    = 0x80
	transferTypeMask = 0x03
	transferTypeBulk = 0x02
)

// ConfigDescriptor is a configuration's interface tree, in the shape the
// endpoint resolver walks it.
type ConfigDescriptor struct {
	Interfaces []InterfaceDescriptor

	// Release frees the descriptor. The resolver calls it exactly once on
	// every path out, success or failure. Nil means nothing to free.
	Release func()
}

// InterfaceDescriptor groups the alternate settings of one interface.
type InterfaceDescriptor struct {
	AltSettings []InterfaceSetting
}

// InterfaceSetting is one alternate setting and its endpoints.
type InterfaceSetting struct {
	Number    uint8
	Endpoints []EndpointDescriptor
}

// EndpointDescriptor carries the raw address and attribute bytes; the
// direction bit lives in Address, the transfer type in Attributes.
type EndpointDescriptor struct {
	Address    uint8
	Attributes uint8
}

// findEndpoints locates the bulk OUT and IN endpoints on the target
// interface by walking every interface, alternate setting and endpoint of
// the active configuration. It succeeds as soon as both directions are
// found and reports ErrEndpointsNotFound after exhausting the tree.
func findEndpoints(dev DeviceHandle, ifaceNum uint8) (outEP, inEP uint8, err error) {
	cfg, err := dev.ConfigDescriptor()
	if err != nil {
		return 0, 0, fmt.Errorf("get config descriptor: %w", err)
	}
	if cfg.Release != nil {
		defer cfg.Release()
	}

	var found int
	for _, iface := range cfg.Interfaces {
		for _, alt := range iface.AltSettings {
			if alt.Number != ifaceNum {
				continue
			}
			for _, ep := range alt.Endpoints {
				if ep.Attributes&transferTypeMask != transferTypeBulk {
					continue
				}
				if ep.Address&endpointDirIn == 0 {
					outEP = ep.Address
					found |= 1
				} else {
					inEP = ep.Address
					found |= 2
				}
				if found == 3 {
					return outEP, inEP, nil
				}
			}
		}
	}
	return 0, 0, ErrEndpointsNotFound
}
