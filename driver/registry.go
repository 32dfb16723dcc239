package driver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/nixxel-company-limited/escpos-printkit/adapter"
	"github.com/nixxel-company-limited/escpos-printkit/identify"
)

var (
	// ErrProtocolMismatch means the device answered but no registered model claims it
	ErrProtocolMismatch = errors.New("protocol mismatch")
	// ErrUnidentified means the device could not be queried or stayed silent under strict mode
	ErrUnidentified = errors.New("device not identified")
)

// MismatchError carries the identity string nobody claimed
type MismatchError struct {
	Identity string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%v: no driver for %q", ErrProtocolMismatch, e.Identity)
}

func (e *MismatchError) Is(target error) bool {
	return target == ErrProtocolMismatch
}

// Registry tries drivers in a fixed order; Generic is the fallback
type Registry struct {
	drivers    []Driver
	fallback   Driver
	identifier identify.Identifier
	logger     *log.Logger
}

// NewRegistry builds the standard model set: Epson TM-T20, Xprinter, HPRT, then Generic as fallback
func NewRegistry(id identify.Identifier, opts Options) (*Registry, error) {
	if opts.Logger == nil {
		opts.Logger = log.New(os.Stdout, "[DRIVER] ", log.LstdFlags|log.Lmsgprefix)
	}

	epson, xprinter, hprt, generic := NewEpsonTMT20(), NewXprinter(), NewHPRT(), NewGeneric()
	for _, m := range []*model{epson.model, xprinter.model, hprt.model, generic.model} {
		if err := m.configure(id, opts); err != nil {
			return nil, fmt.Errorf("configure %s: %w", m.name, err)
		}
	}

	return &Registry{
		drivers:    []Driver{epson, xprinter, hprt},
		fallback:   generic,
		identifier: id,
		logger:     opts.Logger,
	}, nil
}

// Drivers returns the ordered drivers followed by the fallback
func (r *Registry) Drivers() []Driver {
	out := make([]Driver, 0, len(r.drivers)+1)
	out = append(out, r.drivers...)
	return append(out, r.fallback)
}

// Fallback returns the driver used for blind transmission
func (r *Registry) Fallback() Driver {
	return r.fallback
}

// Lookup finds a driver by model name or manufacturer, case-insensitively
func (r *Registry) Lookup(name string) (Driver, bool) {
	for _, d := range r.Drivers() {
		if strings.EqualFold(d.Name(), name) || (d.Manufacturer() != "" && strings.EqualFold(d.Manufacturer(), name)) {
			return d, true
		}
	}
	return nil, false
}

// order puts preferred drivers first, then the rest in registry order
func (r *Registry) order(preferred []string) []Driver {
	seen := map[Driver]bool{}
	var out []Driver
	for _, name := range preferred {
		if d, ok := r.Lookup(name); ok && !seen[d] && d != r.fallback {
			seen[d] = true
			out = append(out, d)
		}
	}
	for _, d := range r.drivers {
		if !seen[d] {
			out = append(out, d)
		}
	}
	return out
}

// Select picks the first driver accepting r.
// An answer nobody claims returns the fallback together with a MismatchError.
func (r *Registry) Select(res identify.Result, preferred ...string) (Driver, error) {
	for _, d := range r.order(preferred) {
		if d.Accepts(res) {
			return d, nil
		}
	}
	if res.Status == identify.StatusSuccess {
		return r.fallback, &MismatchError{Identity: res.Identity()}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnidentified, res)
}

// Match identifies the device once and selects a driver for it
func (r *Registry) Match(ctx context.Context, port adapter.Port, preferred ...string) (Driver, identify.Result, error) {
	if r.identifier == nil {
		return nil, identify.Result{}, fmt.Errorf("%w: no identifier configured", ErrUnidentified)
	}
	res := r.identifier.Identify(ctx, port)
	d, err := r.Select(res, preferred...)
	if err != nil {
		r.logger.Printf("%s: %v", port, err)
		return d, res, err
	}
	r.logger.Printf("%s: matched %s (%s)", port, d.Name(), res.Status)
	return d, res, nil
}
