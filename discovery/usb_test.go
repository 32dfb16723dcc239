package discovery

import (
	"errors"
	"io"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nixxel-company-limited/escpos-printkit/adapter"
)

type fakeEnumerator struct {
	devices []USBDevice
	err     error
}

func (f fakeEnumerator) Enumerate() ([]USBDevice, error) {
	return f.devices, f.err
}

func usbDevice(vid, pid uint16) USBDevice {
	return USBDevice{Port: adapter.USBPort(vid, pid, 1, 4)}
}

func TestUSBScannerFiltersBySignature(t *testing.T) {
	e := fakeEnumerator{devices: []USBDevice{
		usbDevice(0x046d, 0xc52b),
		usbDevice(0x0525, 0xa700),
		usbDevice(0x04b8, 0x0202),
	}}
	s := NewUSBScannerWith(e, log.New(io.Discard, "", 0))

	found, err := s.Discover()
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "HPRT", found[0].Signature.Model)
	assert.Equal(t, "Epson TM-T20", found[1].Signature.Model)
}

func TestUSBScannerEnumerationError(t *testing.T) {
	s := NewUSBScannerWith(fakeEnumerator{err: errors.New("libusb unavailable")}, log.New(io.Discard, "", 0))
	_, err := s.Discover()
	assert.Error(t, err)
}

func TestSignaturesReturnsCopy(t *testing.T) {
	sigs := Signatures()
	require.NotEmpty(t, sigs)
	sigs[0].Model = "changed"

	sig, ok := LookupSignature(0x04b8, 0x0202)
	require.True(t, ok)
	assert.Equal(t, "Epson TM-T20", sig.Model)
	assert.Equal(t, "04b8:0202 Epson TM-T20", sig.String())

	_, ok = LookupSignature(0xffff, 0xffff)
	assert.False(t, ok)
}
