package adapter

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"sync"
	"time"
)

// Transport defaults
const (
	DefaultConnectTimeout = 3 * time.Second
	DefaultWriteTimeout   = 10 * time.Second
	DefaultReadTimeout    = 2 * time.Second
	DefaultGrace          = time.Second
)

// Options configures connection deadlines
type Options struct {
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
	// Grace is the silence window after a LAN write that counts as success
	Grace time.Duration
	// Events receives connect, data, disconnect and close events from USB adapters
	Events func(Event)
}

func (o Options) withDefaults() Options {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
	if o.Grace <= 0 {
		o.Grace = DefaultGrace
	}
	return o
}

// Factory builds an adapter for a port
type Factory func(Port, Options) (Adapter, error)

// Transport hands out at most one open connection per physical device
type Transport struct {
	opts    Options
	factory Factory
	logger  *log.Logger

	mu    sync.Mutex
	locks map[string]chan struct{}
}

// NewTransport creates a transport with the default adapter factory
func NewTransport(opts Options) *Transport {
	return NewTransportWithFactory(opts, New, log.New(os.Stdout, "[TRANSPORT] ", log.LstdFlags|log.Lmsgprefix))
}

// NewTransportWithFactory creates a transport with a custom adapter factory and logger
func NewTransportWithFactory(opts Options, factory Factory, logger *log.Logger) *Transport {
	return &Transport{
		opts:    opts.withDefaults(),
		factory: factory,
		logger:  logger,
		locks:   make(map[string]chan struct{}),
	}
}

// Options returns the effective options
func (t *Transport) Options() Options {
	return t.opts
}

// Conn is an open, exclusively held connection. Close releases the device.
type Conn struct {
	Adapter
	port    Port
	release func()
	once    sync.Once
}

// Port returns the device this connection holds
func (c *Conn) Port() Port {
	return c.port
}

// Close closes the adapter and releases the device lock
func (c *Conn) Close() error {
	var err error
	c.once.Do(func() {
		err = c.Adapter.Close()
		c.release()
	})
	return err
}

func (t *Transport) lock(key string) chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()

	l, ok := t.locks[key]
	if !ok {
		l = make(chan struct{}, 1)
		t.locks[key] = l
	}
	return l
}

// Connect acquires the device and opens it, both within timeout.
// A zero timeout uses the configured connect timeout.
func (t *Transport) Connect(ctx context.Context, port Port, timeout time.Duration) (*Conn, error) {
	if timeout <= 0 {
		timeout = t.opts.ConnectTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	l := t.lock(port.Key())
	select {
	case l <- struct{}{}:
	case <-ctx.Done():
		return nil, &TransportError{Op: "connect", Port: port, Err: errors.Join(ErrPortBusy, ErrTimeout)}
	}
	release := func() { <-l }

	opts := t.opts
	if remaining, ok := ctx.Deadline(); ok {
		opts.ConnectTimeout = time.Until(remaining)
	}
	a, err := t.factory(port, opts)
	if err != nil {
		release()
		return nil, err
	}
	if err := a.Open(); err != nil {
		release()
		return nil, wrap("connect", port, err)
	}

	return &Conn{Adapter: a, port: port, release: release}, nil
}

// Send performs one scoped job: connect, write everything, wait out the LAN grace window, close.
// The connection is closed on every path.
func (t *Transport) Send(ctx context.Context, port Port, data []byte) (err error) {
	conn, err := t.Connect(ctx, port, 0)
	if err != nil {
		t.logger.Printf("Error: connect %s: %v", port, err)
		return err
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if err := WriteAll(conn, data); err != nil {
		t.logger.Printf("Error: write %s: %v", port, err)
		return wrap("write", port, err)
	}
	t.logger.Printf("Wrote %d bytes to %s", len(data), port)

	if port.Kind == KindLAN {
		return t.awaitSilence(conn)
	}
	return nil
}

// awaitSilence treats a quiet grace window after a LAN write as success.
// Most firmwares never acknowledge a job, so this is a heuristic, not a protocol ack.
func (t *Transport) awaitSilence(conn *Conn) error {
	if err := conn.SetReadTimeout(t.opts.Grace); err != nil {
		return wrap("read", conn.port, err)
	}
	buf := make([]byte, 64)
	n, err := conn.Read(buf)
	switch {
	case err == nil:
		t.logger.Printf("Printer %s answered %d bytes after job", conn.port, n)
		return nil
	case IsTimeout(err), errors.Is(err, io.EOF):
		return nil
	default:
		return wrap("read", conn.port, err)
	}
}

// WriteAll writes data fully, looping over short writes
func WriteAll(a Adapter, data []byte) error {
	for len(data) > 0 {
		n, err := a.Write(data)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		data = data[n:]
	}
	return nil
}
