package adapter

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
)

// SerialAdapter talks to a printer on a COM port
type SerialAdapter struct {
	port        Port
	readTimeout time.Duration
	sp          serial.Port
	mu          sync.Mutex
}

// NewSerialAdapter creates an unopened COM adapter
func NewSerialAdapter(port Port) *SerialAdapter {
	return &SerialAdapter{port: port, readTimeout: DefaultReadTimeout}
}

// Open opens the serial device 8N1 at the port's baud rate
func (a *SerialAdapter) Open() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.sp != nil {
		return errors.New("device already open")
	}

	baud := a.port.BaudRate
	if baud == 0 {
		baud = DefaultBaudRate
	}
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	sp, err := serial.Open(a.port.Address, mode)
	if err != nil {
		return wrap("connect", a.port, err)
	}
	if err := sp.SetReadTimeout(a.readTimeout); err != nil {
		sp.Close()
		return wrap("connect", a.port, err)
	}
	a.sp = sp
	return nil
}

// Write sends data to the serial device
func (a *SerialAdapter) Write(data []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.sp == nil {
		return 0, ErrNotOpen
	}
	n, err := a.sp.Write(data)
	if err != nil {
		return n, wrap("write", a.port, err)
	}
	return n, nil
}

// Read returns ErrTimeout when nothing arrives before the read timeout
func (a *SerialAdapter) Read(buf []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.sp == nil {
		return 0, ErrNotOpen
	}
	n, err := a.sp.Read(buf)
	if err != nil {
		return n, wrap("read", a.port, err)
	}
	// go.bug.st/serial reports an expired read timeout as (0, nil)
	if n == 0 {
		return 0, wrap("read", a.port, ErrTimeout)
	}
	return n, nil
}

// SetReadTimeout bounds subsequent reads
func (a *SerialAdapter) SetReadTimeout(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("read timeout must be positive, got %s", d)
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	a.readTimeout = d
	if a.sp != nil {
		if err := a.sp.SetReadTimeout(d); err != nil {
			return wrap("configure", a.port, err)
		}
	}
	return nil
}

// Close closes the serial device
func (a *SerialAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.sp == nil {
		return nil
	}
	err := a.sp.Close()
	a.sp = nil
	if err != nil {
		return wrap("close", a.port, err)
	}
	return nil
}

// IsOpen returns whether the serial device is open
func (a *SerialAdapter) IsOpen() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sp != nil
}

// SerialPorts lists the serial devices present on this host
func SerialPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	return ports, nil
}
