package adapter

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

// TCPAdapter talks to a LAN printer on its raw port
type TCPAdapter struct {
	port           Port
	connectTimeout time.Duration
	writeTimeout   time.Duration
	readTimeout    time.Duration
	dial           func(network, address string, timeout time.Duration) (net.Conn, error)
	conn           net.Conn
	mu             sync.Mutex
}

// NewTCPAdapter creates an unopened LAN adapter
func NewTCPAdapter(port Port, connectTimeout, writeTimeout time.Duration) *TCPAdapter {
	return &TCPAdapter{
		port:           port,
		connectTimeout: connectTimeout,
		writeTimeout:   writeTimeout,
		readTimeout:    DefaultReadTimeout,
		dial:           net.DialTimeout,
	}
}

// Open dials the printer
func (a *TCPAdapter) Open() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.conn != nil {
		return errors.New("device already open")
	}

	conn, err := a.dial("tcp", a.port.DialAddress(), a.connectTimeout)
	if err != nil {
		return wrap("connect", a.port, err)
	}
	a.conn = conn
	return nil
}

// Write sends data within the write timeout
func (a *TCPAdapter) Write(data []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.conn == nil {
		return 0, ErrNotOpen
	}
	if a.writeTimeout > 0 {
		if err := a.conn.SetWriteDeadline(time.Now().Add(a.writeTimeout)); err != nil {
			return 0, wrap("write", a.port, err)
		}
	}
	n, err := a.conn.Write(data)
	if err != nil {
		return n, wrap("write", a.port, err)
	}
	return n, nil
}

// Read reads within the read timeout
func (a *TCPAdapter) Read(buf []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.conn == nil {
		return 0, ErrNotOpen
	}
	if err := a.conn.SetReadDeadline(time.Now().Add(a.readTimeout)); err != nil {
		return 0, wrap("read", a.port, err)
	}
	n, err := a.conn.Read(buf)
	if err != nil {
		return n, wrap("read", a.port, err)
	}
	return n, nil
}

// SetReadTimeout bounds subsequent reads
func (a *TCPAdapter) SetReadTimeout(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("read timeout must be positive, got %s", d)
	}
	a.mu.Lock()
	a.readTimeout = d
	a.mu.Unlock()
	return nil
}

// Close closes the socket; closing twice is a no-op
func (a *TCPAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.conn == nil {
		return nil
	}
	err := a.conn.Close()
	a.conn = nil
	if err != nil {
		return wrap("close", a.port, err)
	}
	return nil
}

// IsOpen returns whether the socket is open
func (a *TCPAdapter) IsOpen() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conn != nil
}
