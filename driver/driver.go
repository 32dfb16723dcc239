// Package driver binds hardware models to their identification rule, network
// provisioning command and command profile.
package driver

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"time"

	"github.com/nixxel-company-limited/escpos-printkit/adapter"
	"github.com/nixxel-company-limited/escpos-printkit/escpos"
	"github.com/nixxel-company-limited/escpos-printkit/identify"
	"github.com/nixxel-company-limited/escpos-printkit/render"
)

// LANConfig is a model's factory network configuration
type LANConfig struct {
	IP      string `json:"ip"`
	Netmask string `json:"netmask"`
	Gateway string `json:"gateway"`
	Port    int    `json:"port"`
}

// Driver is the capability set of one hardware model
type Driver interface {
	// Name is the model name
	Name() string
	// Manufacturer is matched against identification responses
	Manufacturer() string
	// Identify runs the handshake on port and applies Accepts
	Identify(ctx context.Context, port adapter.Port) bool
	// Accepts decides on an already obtained identification result
	Accepts(r identify.Result) bool
	DefaultLANConfig() LANConfig
	// SetIPCommand returns the vendor prefix followed by the four IP octets
	SetIPCommand(ip net.IP) ([]byte, error)
	// RestartDelay is how long the device needs after a network reconfiguration
	RestartDelay() time.Duration
	Profile() escpos.Profile
	GeneratePrintCommands(data any, tmpl render.Template) ([]byte, error)
}

// Options apply to every driver built by a registry
type Options struct {
	// RequireResponse rejects silent devices instead of assuming a match
	RequireResponse bool
	// Columns overrides the model's line width when positive
	Columns int
	// Codepage selects a code table for text, empty for UTF-8
	Codepage string
	Logger   *log.Logger
}

// model holds what differs between hardware models; the exported model types embed it
type model struct {
	name         string
	manufacturer string
	aliases      []string
	lan          LANConfig
	setIPPrefix  []byte
	restartDelay time.Duration
	profile      escpos.Profile

	identifier identify.Identifier
	strict     bool
	logger     *log.Logger
}

func (m *model) configure(id identify.Identifier, opts Options) error {
	m.identifier = id
	m.strict = opts.RequireResponse
	m.logger = opts.Logger
	if m.logger == nil {
		m.logger = log.New(os.Stdout, "[DRIVER] ", log.LstdFlags|log.Lmsgprefix)
	}
	if opts.Columns > 0 {
		m.profile.Columns = opts.Columns
	}
	if opts.Codepage != "" {
		cp, err := escpos.LookupCodepage(opts.Codepage)
		if err != nil {
			return err
		}
		m.profile.Codepage = &cp
	}
	return nil
}

func (m *model) Name() string         { return m.name }
func (m *model) Manufacturer() string { return m.manufacturer }

func (m *model) DefaultLANConfig() LANConfig { return m.lan }

func (m *model) RestartDelay() time.Duration { return m.restartDelay }

func (m *model) Profile() escpos.Profile { return m.profile }

// Identify asks the device and matches the manufacturer.
// Silence is accepted unless the registry requires a response.
func (m *model) Identify(ctx context.Context, port adapter.Port) bool {
	if m.identifier == nil {
		return false
	}
	return m.Accepts(m.identifier.Identify(ctx, port))
}

// Accepts matches the manufacturer or an alias as a case-insensitive substring
func (m *model) Accepts(r identify.Result) bool {
	switch r.Status {
	case identify.StatusSuccess:
		if r.Contains(m.manufacturer) {
			return true
		}
		for _, alias := range m.aliases {
			if r.Contains(alias) {
				return true
			}
		}
		return false
	case identify.StatusNoResponse:
		return !m.strict
	}
	return false
}

func (m *model) SetIPCommand(ip net.IP) ([]byte, error) {
	v4 := ip.To4()
	if v4 == nil {
		return nil, fmt.Errorf("%s: set ip: %q is not an IPv4 address", m.name, ip)
	}
	out := make([]byte, 0, len(m.setIPPrefix)+4)
	out = append(out, m.setIPPrefix...)
	return append(out, v4...), nil
}

func (m *model) GeneratePrintCommands(data any, tmpl render.Template) ([]byte, error) {
	r := render.NewWithLogger(escpos.NewEncoder(m.profile), m.logger)
	out, err := r.Commands(tmpl, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", m.name, err)
	}
	return out, nil
}
