package adapter

import "time"

// Adapter defines the interface for printer communication adapters
type Adapter interface {
	// Open opens the connection to the printer
	Open() error

	// Write sends data to the printer
	Write(data []byte) (int, error)

	// Read reads data from the printer.
	// When the read timeout expires with nothing received it returns an error matching ErrTimeout.
	Read(buf []byte) (int, error)

	// SetReadTimeout bounds every subsequent Read
	SetReadTimeout(d time.Duration) error

	// Close closes the connection to the printer
	Close() error

	// IsOpen returns whether the connection is open
	IsOpen() bool
}

// New returns the only adapter type valid for the port's kind
func New(port Port, opts Options) (Adapter, error) {
	opts = opts.withDefaults()
	switch port.Kind {
	case KindLAN:
		return NewTCPAdapter(port, opts.ConnectTimeout, opts.WriteTimeout), nil
	case KindUSB:
		a := NewUSBAdapter(port, opts.WriteTimeout)
		if opts.Events != nil {
			for _, et := range []EventType{EventConnect, EventData, EventDisconnect, EventClose} {
				a.On(et, opts.Events)
			}
		}
		return a, nil
	case KindCOM:
		return NewSerialAdapter(port), nil
	}
	return nil, &TransportError{Op: "open", Port: port, Err: ErrUnsupportedPortType}
}
