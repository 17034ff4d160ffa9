package bulk

import (
	"context"
	"fmt"
	"time"

	"github.com/google/gousb"
)

// gousbLibrary backs the Library capability with github.com/google/gousb.
// It is the production implementation installed by default; tests swap in
// fakes through the newLibrary variable.
type gousbLibrary struct{}

func newGousbLibrary() (Library, error) {
	return gousbLibrary{}, nil
}

func (gousbLibrary) NewContext() (Context, error) {
	return &gousbContext{ctx: gousb.NewContext()}, nil
}

type gousbContext struct {
	ctx *gousb.Context
}

func (c *gousbContext) OpenDevice(vendorID, productID uint16) (DeviceHandle, error) {
	dev, err := c.ctx.OpenDeviceWithVIDPID(gousb.ID(vendorID), gousb.ID(productID))
	if err != nil {
		return nil, err
	}
	if dev == nil {
		return nil, ErrDeviceNotFound
	}
	return &gousbDevice{dev: dev}, nil
}

func (c *gousbContext) Close() error {
	return c.ctx.Close()
}

// gousbDevice adapts *gousb.Device to the DeviceHandle contract. Claiming
// an interface materializes the gousb config/interface pair; releasing it
// closes them again.
type gousbDevice struct {
	dev  *gousb.Device
	cfg  *gousb.Config
	intf *gousb.Interface
	out  *gousb.OutEndpoint
	in   *gousb.InEndpoint
}

func (d *gousbDevice) ConfigDescriptor() (*ConfigDescriptor, error) {
	num, err := d.dev.ActiveConfigNum()
	if err != nil {
		return nil, err
	}
	desc, ok := d.dev.Desc.Configs[num]
	if !ok {
		return nil, fmt.Errorf("configuration %d has no descriptor", num)
	}

	// gousb keeps descriptors alive with the device, so there is nothing
	// to free and Release stays nil.
	cfg := &ConfigDescriptor{}
	for _, iface := range desc.Interfaces {
		ifd := InterfaceDescriptor{}
		for _, alt := range iface.AltSettings {
			setting := InterfaceSetting{Number: uint8(alt.Number)}
			for _, ep := range alt.Endpoints {
				setting.Endpoints = append(setting.Endpoints, EndpointDescriptor{
					Address:    uint8(ep.Address),
					Attributes: transferAttributes(ep.TransferType),
				})
			}
			ifd.AltSettings = append(ifd.AltSettings, setting)
		}
		cfg.Interfaces = append(cfg.Interfaces, ifd)
	}
	return cfg, nil
}

func transferAttributes(t gousb.TransferType) uint8 {
	switch t {
	case gousb.TransferTypeIsochronous:
		return 0x01
	case gousb.TransferTypeBulk:
		return transferTypeBulk
	case gousb.TransferTypeInterrupt:
		return 0x03
	default:
		return 0x00
	}
}

func (d *gousbDevice) SetAutoDetach(enable bool) error {
	return d.dev.SetAutoDetach(enable)
}

func (d *gousbDevice) ClaimInterface(number uint8) error {
	num, err := d.dev.ActiveConfigNum()
	if err != nil {
		return err
	}
	cfg, err := d.dev.Config(num)
	if err != nil {
		return err
	}
	intf, err := cfg.Interface(int(number), 0)
	if err != nil {
		cfg.Close()
		return err
	}
	d.cfg = cfg
	d.intf = intf
	return nil
}

func (d *gousbDevice) ReleaseInterface(number uint8) error {
	d.out = nil
	d.in = nil
	if d.intf != nil {
		d.intf.Close()
		d.intf = nil
	}
	if d.cfg != nil {
		d.cfg.Close()
		d.cfg = nil
	}
	return nil
}

func (d *gousbDevice) BulkTransfer(endpoint uint8, buf []byte, timeout time.Duration) (int, error) {
	if d.intf == nil {
		return 0, fmt.Errorf("endpoint 0x%02x: interface not claimed", endpoint)
	}

	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if endpoint&endpointDirIn != 0 {
		if d.in == nil {
			in, err := d.intf.InEndpoint(int(endpoint &^ endpointDirIn))
			if err != nil {
				return 0, err
			}
			d.in = in
		}
		return d.in.ReadContext(ctx, buf)
	}

	if d.out == nil {
		out, err := d.intf.OutEndpoint(int(endpoint))
		if err != nil {
			return 0, err
		}
		d.out = out
	}
	return d.out.WriteContext(ctx, buf)
}

func (d *gousbDevice) Close() error {
	d.ReleaseInterface(0)
	return d.dev.Close()
}
