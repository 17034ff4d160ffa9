// Package hid discovers attached controllers through their HID interface.
// The bulk interface is deliberately not touched here: this layer only
// answers "which devices are plugged in" and hands the identity over to
// the bulk package.
package hid

import (
	"errors"

	"github.com/karalabe/hid"

	"github.com/hifihedgehog/switch2usb/bulk"
)

// Info describes one attached controller as reported by its HID interface.
type Info struct {
	VendorID  uint16
	ProductID uint16
	Path      string
	Serial    string
	Interface int
}

// Descriptor builds the identity the bulk transport opens with.
func (i Info) Descriptor() bulk.Descriptor {
	return bulk.Descriptor{
		VendorID:  i.VendorID,
		ProductID: i.ProductID,
	}
}

// Find enumerates HID devices of the given vendor. With no product IDs
// every device of the vendor is returned; otherwise only matching ones.
func Find(vendorID uint16, productIDs ...uint16) ([]Info, error) {
	if !hid.Supported() {
		return nil, errors.New("hid: unsupported platform")
	}

	devices, err := hid.Enumerate(vendorID, 0)
	if err != nil {
		return nil, err
	}

	var infos []Info
	for _, dev := range devices {
		if len(productIDs) > 0 && !containsID(productIDs, dev.ProductID) {
			continue
		}
		infos = append(infos, Info{
			VendorID:  dev.VendorID,
			ProductID: dev.ProductID,
			Path:      dev.Path,
			Serial:    dev.Serial,
			Interface: dev.Interface,
		})
	}
	return infos, nil
}

func containsID(ids []uint16, id uint16) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
