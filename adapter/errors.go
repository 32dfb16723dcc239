package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
)

var (
	// ErrTimeout is returned when a connect, write or read deadline expires
	ErrTimeout = errors.New("timeout")
	// ErrUnsupportedPortType is returned for a port kind with no transport
	ErrUnsupportedPortType = errors.New("unsupported port type")
	// ErrPortBusy is returned when a device stays locked by another connection past the deadline
	ErrPortBusy = errors.New("port busy")
	// ErrNotOpen is returned by adapters used before Open or after Close
	ErrNotOpen = errors.New("device not open")
	// ErrNoInput is returned by Read on devices with no way to answer
	ErrNoInput = errors.New("input endpoint not available")
)

// TransportError wraps an OS-level socket, serial or USB failure
type TransportError struct {
	Op   string
	Port Port
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Port, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether err is a deadline expiry of any origin
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func wrap(op string, port Port, err error) error {
	if err == nil {
		return nil
	}
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	if IsTimeout(err) && !errors.Is(err, ErrTimeout) {
		err = fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return &TransportError{Op: op, Port: port, Err: err}
}
