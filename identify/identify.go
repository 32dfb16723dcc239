// Package identify runs the two-step manufacturer query against a printer.
//
// The primary query is GS I 1. If nothing usable arrives before the timeout the
// fallback DLE EOT 1 is sent with the same timeout. Silence on both is reported
// as NoResponse, which callers must not treat as a rejection.
package identify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"
	"unicode"

	"github.com/nixxel-company-limited/escpos-printkit/adapter"
)

// Status is the terminal state of an identification
type Status string

const (
	StatusSuccess    Status = "SUCCESS"
	StatusNoResponse Status = "NO_RESPONSE"
	StatusTimeout    Status = "TIMEOUT"
	StatusError      Status = "ERROR"
)

// DefaultTimeout bounds the wait for each query
const DefaultTimeout = 2000 * time.Millisecond

// MinResponseBytes ends a wait early once this many bytes arrived
const MinResponseBytes = 5

var (
	// PrimaryQuery is GS I 1: transmit printer model ID
	PrimaryQuery = []byte{0x1D, 0x49, 0x01}
	// FallbackQuery is DLE EOT 1: transmit printer status
	FallbackQuery = []byte{0x10, 0x04, 0x01}
)

// Result is the outcome of an identification. Success always carries data.
type Result struct {
	Status  Status `json:"status"`
	Data    []byte `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// Identity returns the printable part of the response
func (r Result) Identity() string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsPrint(r) {
			return r
		}
		return ' '
	}, string(r.Data))
	return strings.Join(strings.Fields(cleaned), " ")
}

// Contains reports whether the identity contains name, case-insensitively
func (r Result) Contains(name string) bool {
	if name == "" {
		return false
	}
	return strings.Contains(strings.ToLower(r.Identity()), strings.ToLower(name))
}

func (r Result) String() string {
	if r.Status == StatusSuccess {
		return fmt.Sprintf("%s %q", r.Status, r.Identity())
	}
	if r.Message != "" {
		return fmt.Sprintf("%s: %s", r.Status, r.Message)
	}
	return string(r.Status)
}

// Protocol runs the handshake over an already open adapter
type Protocol struct {
	Timeout time.Duration
	logger  *log.Logger
}

// NewProtocol creates a protocol with the given per-query timeout
func NewProtocol(timeout time.Duration, logger *log.Logger) *Protocol {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = log.New(os.Stdout, "[IDENTIFY] ", log.LstdFlags|log.Lmsgprefix)
	}
	return &Protocol{Timeout: timeout, logger: logger}
}

// Run sends the primary query and, on silence, the fallback query.
// It never takes longer than two timeouts.
func (p *Protocol) Run(ctx context.Context, a adapter.Adapter) Result {
	ctx, cancel := context.WithTimeout(ctx, 2*p.Timeout)
	defer cancel()

	for i, query := range [][]byte{PrimaryQuery, FallbackQuery} {
		if ctx.Err() != nil {
			break
		}
		data, err := p.exchange(ctx, a, query)
		switch {
		case err == nil:
			p.logger.Printf("Query %d answered %d bytes", i+1, len(data))
			return Result{Status: StatusSuccess, Data: data}
		case errors.Is(err, adapter.ErrNoInput):
			return Result{Status: StatusNoResponse, Message: "device cannot answer queries"}
		case adapter.IsTimeout(err):
			p.logger.Printf("Query %d timed out", i+1)
			continue
		default:
			p.logger.Printf("Error: query %d: %v", i+1, err)
			return Result{Status: StatusError, Message: err.Error()}
		}
	}

	return Result{Status: StatusNoResponse, Message: "no answer to GS I 1 or DLE EOT 1"}
}

// exchange writes one query and collects its answer until MinResponseBytes,
// a NUL/LF terminator, or the deadline. A partial answer at the deadline counts.
func (p *Protocol) exchange(ctx context.Context, a adapter.Adapter, query []byte) ([]byte, error) {
	if err := writeQuery(ctx, a, query); err != nil {
		return nil, err
	}

	end := time.Now().Add(p.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(end) {
		end = d
	}

	var resp []byte
	buf := make([]byte, 64)
	for {
		remaining := time.Until(end)
		if remaining <= 0 || ctx.Err() != nil {
			break
		}
		if err := a.SetReadTimeout(remaining); err != nil {
			return nil, err
		}

		n, err := a.Read(buf)
		resp = append(resp, buf[:n]...)
		if complete(resp) {
			return resp, nil
		}
		if err != nil {
			if adapter.IsTimeout(err) || errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
	}

	if len(resp) > 0 {
		return resp, nil
	}
	return nil, adapter.ErrTimeout
}

// writeQuery gives up on a stalled write once ctx expires.
// The write itself finishes in the background and is unblocked when the caller closes the adapter.
func writeQuery(ctx context.Context, a adapter.Adapter, query []byte) error {
	done := make(chan error, 1)
	go func() { done <- adapter.WriteAll(a, query) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("write query: %w", adapter.ErrTimeout)
	}
}

func complete(resp []byte) bool {
	return len(resp) >= MinResponseBytes || bytes.IndexByte(resp, 0x00) >= 0 || bytes.IndexByte(resp, '\n') >= 0
}
