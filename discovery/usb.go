package discovery

import (
	"fmt"
	"log"
	"os"

	"github.com/google/gousb"

	"github.com/nixxel-company-limited/escpos-printkit/adapter"
)

// Signature is a known vendor/product ID pair and the model it belongs to
type Signature struct {
	VendorID  uint16 `json:"vendor_id"`
	ProductID uint16 `json:"product_id"`
	Model     string `json:"model"`
}

func (s Signature) String() string {
	return fmt.Sprintf("%04x:%04x %s", s.VendorID, s.ProductID, s.Model)
}

// signatures is fixed at build time; Signatures hands out copies
var signatures = []Signature{
	{VendorID: 0x04b8, ProductID: 0x0202, Model: "Epson TM-T20"},
	{VendorID: 0x154f, ProductID: 0x154f, Model: "Xprinter"},
	{VendorID: 0x0525, ProductID: 0xa700, Model: "HPRT"},
	{VendorID: 0x20d1, ProductID: 0x7008, Model: "Generic ESC/POS"},
}

// Signatures returns the known printer signature table
func Signatures() []Signature {
	out := make([]Signature, len(signatures))
	copy(out, signatures)
	return out
}

// LookupSignature finds the signature for a vendor/product pair
func LookupSignature(vid, pid uint16) (Signature, bool) {
	for _, s := range signatures {
		if s.VendorID == vid && s.ProductID == pid {
			return s, true
		}
	}
	return Signature{}, false
}

// USBDevice is an attached device that matched the signature table
type USBDevice struct {
	Port         adapter.Port `json:"port"`
	Signature    Signature    `json:"signature"`
	Manufacturer string       `json:"manufacturer,omitempty"`
	Product      string       `json:"product,omitempty"`
	Serial       string       `json:"serial,omitempty"`
}

// Enumerator lists attached USB devices
type Enumerator interface {
	Enumerate() ([]USBDevice, error)
}

// GousbEnumerator enumerates through libusb
type GousbEnumerator struct{}

// Enumerate opens only devices in the signature table and closes them again
func (GousbEnumerator) Enumerate() ([]USBDevice, error) {
	ctx := gousb.NewContext()
	defer ctx.Close()

	devices, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		_, ok := LookupSignature(uint16(desc.Vendor), uint16(desc.Product))
		return ok
	})
	defer func() {
		for _, d := range devices {
			d.Close()
		}
	}()
	if err != nil && len(devices) == 0 {
		return nil, fmt.Errorf("enumerate usb devices: %w", err)
	}

	out := make([]USBDevice, 0, len(devices))
	for _, dev := range devices {
		sig, _ := LookupSignature(uint16(dev.Desc.Vendor), uint16(dev.Desc.Product))
		d := USBDevice{
			Port:      adapter.USBPort(sig.VendorID, sig.ProductID, dev.Desc.Bus, dev.Desc.Address),
			Signature: sig,
		}
		d.Manufacturer, _ = dev.Manufacturer()
		d.Product, _ = dev.Product()
		d.Serial, _ = dev.SerialNumber()
		out = append(out, d)
	}
	return out, nil
}

// USBScanner filters attached devices against the signature table
type USBScanner struct {
	enumerator Enumerator
	logger     *log.Logger
}

// NewUSBScanner creates a scanner over libusb
func NewUSBScanner() *USBScanner {
	return NewUSBScannerWith(GousbEnumerator{}, log.New(os.Stdout, "[USB] ", log.LstdFlags|log.Lmsgprefix))
}

// NewUSBScannerWith creates a scanner over a custom enumerator
func NewUSBScannerWith(e Enumerator, logger *log.Logger) *USBScanner {
	return &USBScanner{enumerator: e, logger: logger}
}

// Discover returns attached devices whose IDs are in the signature table
func (s *USBScanner) Discover() ([]USBDevice, error) {
	devices, err := s.enumerator.Enumerate()
	if err != nil {
		s.logger.Printf("Error: %v", err)
		return nil, err
	}

	var out []USBDevice
	for _, d := range devices {
		sig, ok := LookupSignature(d.Port.VendorID, d.Port.ProductID)
		if !ok {
			continue
		}
		d.Signature = sig
		s.logger.Printf("Found %s at %s", sig.Model, d.Port)
		out = append(out, d)
	}
	return out, nil
}

// SerialPorts lists serial devices as COM port candidates
func SerialPorts(baud int) ([]adapter.Port, error) {
	names, err := adapter.SerialPorts()
	if err != nil {
		return nil, err
	}
	ports := make([]adapter.Port, 0, len(names))
	for _, name := range names {
		ports = append(ports, adapter.COMPort(name, baud))
	}
	return ports, nil
}
