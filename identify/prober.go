package identify

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/nixxel-company-limited/escpos-printkit/adapter"
)

// Identifier returns the identification result for a port
type Identifier interface {
	Identify(ctx context.Context, port adapter.Port) Result
}

// Observer is told about every finished identification
type Observer func(port adapter.Port, r Result)

// Prober connects through a Transport and runs the Protocol
type Prober struct {
	transport *adapter.Transport
	protocol  *Protocol
	observer  Observer
	logger    *log.Logger
}

// NewProber creates a prober with the given per-query timeout
func NewProber(transport *adapter.Transport, timeout time.Duration) *Prober {
	logger := log.New(os.Stdout, "[IDENTIFY] ", log.LstdFlags|log.Lmsgprefix)
	return &Prober{
		transport: transport,
		protocol:  NewProtocol(timeout, logger),
		logger:    logger,
	}
}

// WithLogger replaces the prober's logger
func (p *Prober) WithLogger(logger *log.Logger) *Prober {
	p.logger = logger
	p.protocol.logger = logger
	return p
}

// WithObserver registers a callback for finished identifications
func (p *Prober) WithObserver(o Observer) *Prober {
	p.observer = o
	return p
}

// Identify opens the port, runs the handshake and always releases the port.
// Connection failures become Timeout or Error results; nothing is returned as an error.
func (p *Prober) Identify(ctx context.Context, port adapter.Port) Result {
	r := p.identify(ctx, port)
	p.logger.Printf("%s: %s", port, r)
	if p.observer != nil {
		p.observer(port, r)
	}
	return r
}

func (p *Prober) identify(ctx context.Context, port adapter.Port) Result {
	conn, err := p.transport.Connect(ctx, port, 0)
	if err != nil {
		if adapter.IsTimeout(err) {
			return Result{Status: StatusTimeout, Message: err.Error()}
		}
		return Result{Status: StatusError, Message: err.Error()}
	}
	defer conn.Close()

	return p.protocol.Run(ctx, conn)
}
