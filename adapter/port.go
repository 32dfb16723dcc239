package adapter

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// DefaultRawPort is the conventional raw printing TCP port
const DefaultRawPort = 9100

// DefaultBaudRate is used for COM ports without an explicit speed
const DefaultBaudRate = 9600

// PortKind is the physical attachment of a printer
type PortKind string

const (
	KindLAN PortKind = "LAN"
	KindUSB PortKind = "USB"
	KindCOM PortKind = "COM"
)

// Port identifies one physical device.
// LAN: Address is host or host:port. USB: VendorID/ProductID plus optional Bus/Device.
// COM: Address is the device path, BaudRate optional.
type Port struct {
	Kind      PortKind `json:"kind" mapstructure:"kind"`
	Address   string   `json:"address,omitempty" mapstructure:"address"`
	VendorID  uint16   `json:"vendor_id,omitempty" mapstructure:"vendor_id"`
	ProductID uint16   `json:"product_id,omitempty" mapstructure:"product_id"`
	Bus       int      `json:"bus,omitempty" mapstructure:"bus"`
	Device    int      `json:"device,omitempty" mapstructure:"device"`
	BaudRate  int      `json:"baud_rate,omitempty" mapstructure:"baud_rate"`
}

// LANPort builds a LAN port for host, adding :9100 when no port is given
func LANPort(host string) Port {
	return Port{Kind: KindLAN, Address: host}
}

// USBPort builds a USB port from its identifiers
func USBPort(vid, pid uint16, bus, device int) Port {
	return Port{Kind: KindUSB, VendorID: vid, ProductID: pid, Bus: bus, Device: device}
}

// COMPort builds a serial port
func COMPort(path string, baud int) Port {
	return Port{Kind: KindCOM, Address: path, BaudRate: baud}
}

// ParsePort accepts "lan:host[:port]", "usb:vid:pid[:bus:dev]" (hex ids), "com:path[@baud]",
// or a bare host which is taken as LAN.
func ParsePort(s string) (Port, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Port{}, fmt.Errorf("empty port")
	}

	kind, rest, found := strings.Cut(s, ":")
	if !found {
		return LANPort(s), nil
	}

	switch strings.ToUpper(kind) {
	case string(KindLAN), "TCP":
		return LANPort(rest), nil
	case string(KindUSB):
		parts := strings.Split(rest, ":")
		if len(parts) != 2 && len(parts) != 4 {
			return Port{}, fmt.Errorf("usb port %q: want vid:pid or vid:pid:bus:device", s)
		}
		vid, err := strconv.ParseUint(strings.TrimPrefix(parts[0], "0x"), 16, 16)
		if err != nil {
			return Port{}, fmt.Errorf("usb port %q: vendor id: %w", s, err)
		}
		pid, err := strconv.ParseUint(strings.TrimPrefix(parts[1], "0x"), 16, 16)
		if err != nil {
			return Port{}, fmt.Errorf("usb port %q: product id: %w", s, err)
		}
		p := USBPort(uint16(vid), uint16(pid), 0, 0)
		if len(parts) == 4 {
			if p.Bus, err = strconv.Atoi(parts[2]); err != nil {
				return Port{}, fmt.Errorf("usb port %q: bus: %w", s, err)
			}
			if p.Device, err = strconv.Atoi(parts[3]); err != nil {
				return Port{}, fmt.Errorf("usb port %q: device: %w", s, err)
			}
		}
		return p, nil
	case string(KindCOM), "SERIAL":
		path, baud, hasBaud := strings.Cut(rest, "@")
		p := COMPort(path, 0)
		if hasBaud {
			b, err := strconv.Atoi(baud)
			if err != nil {
				return Port{}, fmt.Errorf("com port %q: baud: %w", s, err)
			}
			p.BaudRate = b
		}
		return p, nil
	}

	// host:port without a scheme
	if _, err := strconv.Atoi(rest); err == nil {
		return LANPort(s), nil
	}
	return Port{}, fmt.Errorf("%w: %q", ErrUnsupportedPortType, kind)
}

// DialAddress returns host:port for a LAN port
func (p Port) DialAddress() string {
	if _, _, err := net.SplitHostPort(p.Address); err == nil {
		return p.Address
	}
	return net.JoinHostPort(p.Address, strconv.Itoa(DefaultRawPort))
}

// Key identifies the physical device for exclusive access
func (p Port) Key() string {
	switch p.Kind {
	case KindLAN:
		return "lan:" + p.DialAddress()
	case KindUSB:
		if p.Bus != 0 || p.Device != 0 {
			return fmt.Sprintf("usb:%04x:%04x:%d:%d", p.VendorID, p.ProductID, p.Bus, p.Device)
		}
		return fmt.Sprintf("usb:%04x:%04x", p.VendorID, p.ProductID)
	case KindCOM:
		return "com:" + p.Address
	}
	return string(p.Kind) + ":" + p.Address
}

func (p Port) String() string {
	return p.Key()
}
