package bulk

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindEndpointsPair(t *testing.T) {
	dev := goodDevice(nil)

	out, in, err := findEndpoints(dev, bulkInterfaceNumber)
	require.NoError(t, err)
	assert.Equal(t, uint8(0x01), out)
	assert.Equal(t, uint8(0x81), in)
	assert.Equal(t, 1, dev.releases)
}

func TestFindEndpointsMissingDirection(t *testing.T) {
	tests := []struct {
		name      string
		endpoints []EndpointDescriptor
	}{
		{"no endpoints", nil},
		{"out only", []EndpointDescriptor{{Address: 0x01, Attributes: transferTypeBulk}}},
		{"in only", []EndpointDescriptor{{Address: 0x81, Attributes: transferTypeBulk}}},
		{"interrupt pair", []EndpointDescriptor{
			{Address: 0x01, Attributes: 0x03},
			{Address: 0x81, Attributes: 0x03},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := &fakeDevice{cfg: bulkPairConfig(bulkInterfaceNumber, tt.endpoints...)}

			_, _, err := findEndpoints(dev, bulkInterfaceNumber)
			assert.ErrorIs(t, err, ErrEndpointsNotFound)
			assert.Equal(t, 1, dev.releases)
		})
	}
}

func TestFindEndpointsWrongInterface(t *testing.T) {
	dev := &fakeDevice{cfg: bulkPairConfig(3,
		EndpointDescriptor{Address: 0x01, Attributes: transferTypeBulk},
		EndpointDescriptor{Address: 0x81, Attributes: transferTypeBulk},
	)}

	_, _, err := findEndpoints(dev, bulkInterfaceNumber)
	assert.ErrorIs(t, err, ErrEndpointsNotFound)
	assert.Equal(t, 1, dev.releases)
}

func TestFindEndpointsAcrossAltSettings(t *testing.T) {
	// The pair may be split over alternate settings of the target
	// interface; the resolver walks all of them.
	dev := &fakeDevice{cfg: &ConfigDescriptor{
		Interfaces: []InterfaceDescriptor{
			{AltSettings: []InterfaceSetting{
				{Number: bulkInterfaceNumber, Endpoints: []EndpointDescriptor{
					{Address: 0x02, Attributes: transferTypeBulk},
				}},
				{Number: bulkInterfaceNumber, Endpoints: []EndpointDescriptor{
					{Address: 0x82, Attributes: transferTypeBulk},
				}},
			}},
		},
	}}

	out, in, err := findEndpoints(dev, bulkInterfaceNumber)
	require.NoError(t, err)
	assert.Equal(t, uint8(0x02), out)
	assert.Equal(t, uint8(0x82), in)
	assert.Equal(t, 1, dev.releases)
}

func TestFindEndpointsDescriptorError(t *testing.T) {
	dev := &fakeDevice{cfgErr: errors.New("no descriptor")}

	_, _, err := findEndpoints(dev, bulkInterfaceNumber)
	require.Error(t, err)
	assert.Equal(t, 0, dev.releases)
}
