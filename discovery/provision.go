package discovery

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"time"

	"github.com/nixxel-company-limited/escpos-printkit/adapter"
	"github.com/nixxel-company-limited/escpos-printkit/driver"
	"github.com/nixxel-company-limited/escpos-printkit/identify"
	"github.com/nixxel-company-limited/escpos-printkit/render"
)

// Sender transmits one finished job to a port
type Sender interface {
	Send(ctx context.Context, port adapter.Port, data []byte) error
}

// Matcher binds a port to a driver
type Matcher interface {
	Match(ctx context.Context, port adapter.Port, preferred ...string) (driver.Driver, identify.Result, error)
}

// State tracks a device through USB-to-LAN provisioning
type State string

const (
	// StateIdentified: a driver accepted the device; nothing was changed
	StateIdentified State = "IDENTIFIED"
	// StateUnverified: the set-IP command was sent but no test print confirmed it
	StateUnverified State = "UNVERIFIED"
	// StateVerified: a test print over the new address succeeded
	StateVerified State = "VERIFIED"
	// StateFailed: identification, set-IP or the test print failed
	StateFailed State = "FAILED"
)

// USBMatch is a discovered USB device bound to a driver
type USBMatch struct {
	Device         USBDevice       `json:"device"`
	Driver         driver.Driver   `json:"-"`
	DriverName     string          `json:"driver"`
	Identification identify.Result `json:"identification"`
	// Blind is set when the device answered but no model claimed it
	Blind   bool   `json:"blind,omitempty"`
	Message string `json:"message,omitempty"`
}

// ProvisionResult is the outcome of moving one device onto the LAN
type ProvisionResult struct {
	Match   USBMatch      `json:"match"`
	IP      string        `json:"ip,omitempty"`
	State   State         `json:"state"`
	Message string        `json:"message,omitempty"`
	Elapsed time.Duration `json:"elapsed"`
}

// USBDiscovery finds known USB printers, binds drivers and reconfigures them for LAN use
type USBDiscovery struct {
	scanner *USBScanner
	matcher Matcher
	sender  Sender
	sleep   func(ctx context.Context, d time.Duration) error
	logger  *log.Logger
}

// NewUSBDiscovery wires the scanner, driver registry and transport together
func NewUSBDiscovery(scanner *USBScanner, matcher Matcher, sender Sender) *USBDiscovery {
	return &USBDiscovery{
		scanner: scanner,
		matcher: matcher,
		sender:  sender,
		sleep:   sleepContext,
		logger:  log.New(os.Stdout, "[USB] ", log.LstdFlags|log.Lmsgprefix),
	}
}

// WithLogger replaces the logger
func (u *USBDiscovery) WithLogger(l *log.Logger) *USBDiscovery {
	u.logger = l
	return u
}

// Discover lists matching devices and offers each to the drivers, signature model first.
// Per-device failures are reported in the match, not as an error.
func (u *USBDiscovery) Discover(ctx context.Context) ([]USBMatch, error) {
	devices, err := u.scanner.Discover()
	if err != nil {
		return nil, err
	}

	matches := make([]USBMatch, 0, len(devices))
	for _, dev := range devices {
		matches = append(matches, u.match(ctx, dev))
	}
	return matches, nil
}

func (u *USBDiscovery) match(ctx context.Context, dev USBDevice) USBMatch {
	m := USBMatch{Device: dev}
	d, res, err := u.matcher.Match(ctx, dev.Port, dev.Signature.Model)
	m.Identification = res
	switch {
	case err == nil:
	case errors.Is(err, driver.ErrProtocolMismatch) && d != nil:
		m.Blind = true
		m.Message = err.Error()
	default:
		m.Message = err.Error()
		return m
	}
	m.Driver = d
	m.DriverName = d.Name()
	u.logger.Printf("%s bound to %s (%s)", dev.Port, d.Name(), res.Status)
	return m
}

// Provision sends the driver's set-IP command over USB, waits the restart delay,
// then sends a test page to ip over the LAN. Only a successful test print verifies the move.
func (u *USBDiscovery) Provision(ctx context.Context, m USBMatch, ip net.IP) (res ProvisionResult) {
	start := time.Now()
	res = ProvisionResult{Match: m}
	defer func() { res.Elapsed = time.Since(start) }()

	if m.Driver == nil {
		res.State = StateFailed
		res.Message = fmt.Sprintf("no driver bound: %s", m.Message)
		return res
	}
	if ip == nil {
		res.State = StateIdentified
		return res
	}
	res.IP = ip.String()

	cmd, err := m.Driver.SetIPCommand(ip)
	if err != nil {
		res.State = StateFailed
		res.Message = err.Error()
		return res
	}
	if err := u.sender.Send(ctx, m.Device.Port, cmd); err != nil {
		res.State = StateFailed
		res.Message = fmt.Sprintf("send set-ip: %v", err)
		return res
	}

	res.State = StateUnverified
	delay := m.Driver.RestartDelay()
	u.logger.Printf("%s: set ip %s, waiting %s for restart", m.Device.Port, ip, delay)
	if err := u.sleep(ctx, delay); err != nil {
		res.Message = fmt.Sprintf("interrupted while waiting for restart: %v", err)
		return res
	}

	page, err := m.Driver.GeneratePrintCommands(nil, render.TestPage(fmt.Sprintf("%s at %s", m.Driver.Name(), ip)))
	if err != nil {
		res.State = StateFailed
		res.Message = err.Error()
		return res
	}
	lan := adapter.LANPort(ip.String())
	if err := u.sender.Send(ctx, lan, page); err != nil {
		res.State = StateFailed
		res.Message = fmt.Sprintf("test print on %s: %v", lan, err)
		u.logger.Printf("%s: %s", m.Device.Port, res.Message)
		return res
	}

	res.State = StateVerified
	u.logger.Printf("%s: verified on %s", m.Device.Port, lan)
	return res
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
