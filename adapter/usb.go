package adapter

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/google/gousb"
)

// Interface class codes
// Reference: http://www.usb.org/developers/defined_class
const (
	IfaceClassAudio   = 0x01
	IfaceClassHID     = 0x03
	IfaceClassPrinter = 0x07
	IfaceClassHub     = 0x09
)

// EventType represents device events
type EventType int

const (
	EventConnect EventType = iota
	EventDisconnect
	EventData
	EventClose
)

func (t EventType) String() string {
	switch t {
	case EventConnect:
		return "connect"
	case EventDisconnect:
		return "disconnect"
	case EventData:
		return "data"
	case EventClose:
		return "close"
	}
	return "unknown"
}

// Event represents a device event
type Event struct {
	Type  EventType
	Port  Port
	Data  []byte
	Error error
}

// USBAdapter manages USB printer communication over bulk endpoints
type USBAdapter struct {
	port           Port
	writeTimeout   time.Duration
	readTimeout    time.Duration
	ctx            *gousb.Context
	device         *gousb.Device
	config         *gousb.Config
	iface          *gousb.Interface
	outEndpoint    *gousb.OutEndpoint
	inEndpoint     *gousb.InEndpoint
	eventListeners map[EventType][]func(Event)
	listenersMutex sync.RWMutex
	isOpen         bool
	mu             sync.Mutex
	logger         *log.Logger
}

// NewUSBAdapter creates an unopened adapter for the device identified by port
func NewUSBAdapter(port Port, writeTimeout time.Duration) *USBAdapter {
	return &USBAdapter{
		port:           port,
		writeTimeout:   writeTimeout,
		readTimeout:    DefaultReadTimeout,
		eventListeners: make(map[EventType][]func(Event)),
		logger:         log.New(os.Stdout, "[USB] ", log.LstdFlags|log.Lmsgprefix),
	}
}

// IsPrinter checks if a device exposes the printer interface class
func IsPrinter(dev *gousb.Device) bool {
	if dev == nil {
		return false
	}
	return printerInterface(dev) >= 0
}

// printerInterface returns the number of the first printer-class interface, or -1
func printerInterface(dev *gousb.Device) int {
	cfgNum, err := dev.ActiveConfigNum()
	if err != nil {
		return -1
	}
	cfgDesc, ok := dev.Desc.Configs[cfgNum]
	if !ok {
		return -1
	}
	for _, iface := range cfgDesc.Interfaces {
		for _, alt := range iface.AltSettings {
			if alt.Class == IfaceClassPrinter {
				return iface.Number
			}
		}
	}
	return -1
}

// FindPrinterPorts returns ports for every attached printer-class USB device.
// Device handles are closed before returning.
func FindPrinterPorts() ([]Port, error) {
	ctx := gousb.NewContext()
	defer ctx.Close()

	devices, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return true
	})
	defer func() {
		for _, d := range devices {
			d.Close()
		}
	}()
	if err != nil && len(devices) == 0 {
		return nil, fmt.Errorf("enumerate usb devices: %w", err)
	}

	var ports []Port
	for _, dev := range devices {
		if IsPrinter(dev) {
			ports = append(ports, portFromDesc(dev.Desc))
		}
	}
	return ports, nil
}

func portFromDesc(desc *gousb.DeviceDesc) Port {
	return USBPort(uint16(desc.Vendor), uint16(desc.Product), desc.Bus, desc.Address)
}

// matches reports whether desc is the device addressed by p
func (p Port) matches(desc *gousb.DeviceDesc) bool {
	if uint16(desc.Vendor) != p.VendorID || uint16(desc.Product) != p.ProductID {
		return false
	}
	if p.Bus != 0 && desc.Bus != p.Bus {
		return false
	}
	if p.Device != 0 && desc.Address != p.Device {
		return false
	}
	return true
}

// On adds an event listener
func (a *USBAdapter) On(eventType EventType, handler func(Event)) {
	a.listenersMutex.Lock()
	defer a.listenersMutex.Unlock()

	a.eventListeners[eventType] = append(a.eventListeners[eventType], handler)
}

// emit triggers an event
func (a *USBAdapter) emit(event Event) {
	a.listenersMutex.RLock()
	defer a.listenersMutex.RUnlock()

	event.Port = a.port
	if listeners, ok := a.eventListeners[event.Type]; ok {
		for _, handler := range listeners {
			go handler(event)
		}
	}
}

// Open opens the USB device and claims its printer interface
func (a *USBAdapter) Open() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.isOpen {
		return errors.New("device already open")
	}

	ctx := gousb.NewContext()
	devices, err := ctx.OpenDevices(a.port.matches)
	if len(devices) == 0 {
		ctx.Close()
		if err != nil {
			return wrap("connect", a.port, err)
		}
		return wrap("connect", a.port, errors.New("device not found"))
	}
	// Keep the first match only
	for _, d := range devices[1:] {
		d.Close()
	}
	dev := devices[0]

	if err := a.claim(dev); err != nil {
		dev.Close()
		ctx.Close()
		return wrap("connect", a.port, err)
	}

	a.ctx = ctx
	a.device = dev
	a.isOpen = true
	a.logger.Printf("Opened %s", a.port)
	a.emit(Event{Type: EventConnect})

	return nil
}

// claim selects the printer interface and its bulk endpoints
func (a *USBAdapter) claim(dev *gousb.Device) error {
	// Set auto-detach kernel driver on Linux
	if runtime.GOOS == "linux" {
		dev.SetAutoDetach(true)
	}

	cfgNum, err := dev.ActiveConfigNum()
	if err != nil {
		return fmt.Errorf("failed to get active config: %w", err)
	}

	ifaceNum := printerInterface(dev)
	if ifaceNum < 0 {
		return errors.New("no printer interface found")
	}

	cfg, err := dev.Config(cfgNum)
	if err != nil {
		return fmt.Errorf("failed to get config: %w", err)
	}

	iface, err := cfg.Interface(ifaceNum, 0)
	if err != nil {
		cfg.Close()
		return fmt.Errorf("failed to claim interface: %w", err)
	}

	var out *gousb.OutEndpoint
	var in *gousb.InEndpoint
	for _, epDesc := range iface.Setting.Endpoints {
		if epDesc.Direction == gousb.EndpointDirectionOut && out == nil {
			if ep, err := iface.OutEndpoint(epDesc.Number); err == nil {
				out = ep
			}
		}
		if epDesc.Direction == gousb.EndpointDirectionIn && in == nil {
			if ep, err := iface.InEndpoint(epDesc.Number); err == nil {
				in = ep
			}
		}
	}

	if out == nil {
		iface.Close()
		cfg.Close()
		return errors.New("cannot find output endpoint from printer")
	}

	a.config = cfg
	a.iface = iface
	a.outEndpoint = out
	a.inEndpoint = in
	return nil
}

// Write sends data to the printer's bulk OUT endpoint
func (a *USBAdapter) Write(data []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.isOpen {
		return 0, ErrNotOpen
	}

	a.emit(Event{Type: EventData, Data: data})

	ctx, cancel := deadline(a.writeTimeout)
	defer cancel()

	n, err := a.outEndpoint.WriteContext(ctx, data)
	if err != nil {
		return n, a.ioError(ctx, "write", err)
	}

	return n, nil
}

// ioError classifies a transfer failure. A vanished device emits EventDisconnect.
func (a *USBAdapter) ioError(ctx context.Context, op string, err error) error {
	switch {
	case ctx.Err() != nil:
		err = fmt.Errorf("%w: %v", ErrTimeout, err)
	case errors.Is(err, gousb.ErrorNoDevice):
		a.logger.Printf("Device %s disconnected", a.port)
		a.emit(Event{Type: EventDisconnect, Error: err})
	}
	return wrap(op, a.port, err)
}

// Read reads from the bulk IN endpoint within the read timeout
func (a *USBAdapter) Read(buf []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.isOpen {
		return 0, ErrNotOpen
	}

	if a.inEndpoint == nil {
		return 0, wrap("read", a.port, ErrNoInput)
	}

	ctx, cancel := deadline(a.readTimeout)
	defer cancel()

	n, err := a.inEndpoint.ReadContext(ctx, buf)
	if err != nil {
		return n, a.ioError(ctx, "read", err)
	}

	return n, nil
}

// SetReadTimeout bounds subsequent reads
func (a *USBAdapter) SetReadTimeout(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("read timeout must be positive, got %s", d)
	}
	a.mu.Lock()
	a.readTimeout = d
	a.mu.Unlock()
	return nil
}

// Close releases the interface, configuration, device and context
func (a *USBAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.isOpen {
		return nil
	}

	var errs []error

	if a.iface != nil {
		a.iface.Close()
		a.iface = nil
	}

	if a.config != nil {
		if err := a.config.Close(); err != nil {
			errs = append(errs, err)
		}
		a.config = nil
	}

	if a.device != nil {
		if err := a.device.Close(); err != nil {
			errs = append(errs, err)
		}
		a.device = nil
	}

	if a.ctx != nil {
		if err := a.ctx.Close(); err != nil {
			errs = append(errs, err)
		}
		a.ctx = nil
	}

	a.outEndpoint = nil
	a.inEndpoint = nil
	a.isOpen = false
	a.emit(Event{Type: EventClose})

	if len(errs) > 0 {
		return wrap("close", a.port, errors.Join(errs...))
	}

	return nil
}

// IsOpen returns whether the device is open
func (a *USBAdapter) IsOpen() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.isOpen
}

// Port returns the port this adapter addresses
func (a *USBAdapter) Port() Port {
	return a.port
}

func deadline(d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), d)
}
