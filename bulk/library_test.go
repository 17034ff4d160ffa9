package bulk

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLibraryRefcount(t *testing.T) {
	fl := &fakeLibrary{}
	withFakeLibrary(t, fl)

	first, err := acquireLibrary()
	require.NoError(t, err)
	second, err := acquireLibrary()
	require.NoError(t, err)
	assert.Same(t, first.(*fakeLibrary), second.(*fakeLibrary), "acquires share one instance")

	releaseLibrary()
	assert.Zero(t, fl.closed, "teardown waits for the last reference")

	releaseLibrary()
	assert.Equal(t, 1, fl.closed)

	releaseLibrary()
	assert.Equal(t, 1, fl.closed, "extra release is a no-op")
}

func TestLibraryInitFailure(t *testing.T) {
	initErr := errors.New("no backend")
	prev := newLibrary
	newLibrary = func() (Library, error) { return nil, initErr }
	resetLibrary()
	t.Cleanup(func() {
		newLibrary = prev
		resetLibrary()
	})

	_, err := acquireLibrary()
	assert.ErrorIs(t, err, initErr)

	tr := &Transport{}
	err = tr.Open(Descriptor{VendorID: testVendor, ProductID: testProduct})
	assert.ErrorIs(t, err, initErr, "generic open surfaces the initialization failure")
}

func TestLibrarySharedAcrossTransports(t *testing.T) {
	fl := &fakeLibrary{devices: []*fakeDevice{goodDevice(nil), goodDevice(nil)}}
	withFakeLibrary(t, fl)

	a := &Transport{}
	require.NoError(t, a.Open(Descriptor{VendorID: testVendor, ProductID: testProduct}))
	b := &Transport{}
	require.NoError(t, b.Open(Descriptor{VendorID: testVendor, ProductID: testProduct}))

	a.Close()
	assert.Zero(t, fl.closed, "library stays up while another transport uses it")
	b.Close()
	assert.Equal(t, 1, fl.closed)
}
