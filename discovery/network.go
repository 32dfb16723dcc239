// Package discovery finds candidate printers on the LAN, on USB and on serial ports.
package discovery

import (
	"context"
	"encoding/binary"
	"fmt"
	"log"
	"net"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Network scan defaults
const (
	DefaultProbePort    = 9100
	DefaultProbeTimeout = 1000 * time.Millisecond
	DefaultWindowBits   = 24
)

// Dialer opens probe connections
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// ScanConfig configures a network scan
type ScanConfig struct {
	Port    int
	Timeout time.Duration
	// WindowBits bounds the scan to the host's own /WindowBits segment
	// when an interface's subnet is larger. Zero means /24.
	WindowBits int
	// MaxConcurrency caps in-flight probes; zero leaves only the OS limit
	MaxConcurrency int
}

func (c ScanConfig) withDefaults() ScanConfig {
	if c.Port == 0 {
		c.Port = DefaultProbePort
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultProbeTimeout
	}
	if c.WindowBits <= 0 || c.WindowBits > 32 {
		c.WindowBits = DefaultWindowBits
	}
	return c
}

// ProbeResult is the outcome of one TCP connect attempt
type ProbeResult struct {
	Address string        `json:"address"`
	Open    bool          `json:"open"`
	Latency time.Duration `json:"latency"`
	Error   string        `json:"error,omitempty"`
}

// Segment is one range to scan
type Segment struct {
	Network *net.IPNet
	// Self is excluded from the scan; nil for manual ranges
	Self net.IP
}

// Scanner probes address ranges for an open raw printing port
type Scanner struct {
	config     ScanConfig
	dialer     Dialer
	interfaces func() ([]Segment, error)
	observer   func(ProbeResult)
	logger     *log.Logger
}

// NewScanner creates a scanner with a net.Dialer
func NewScanner(config ScanConfig) *Scanner {
	return &Scanner{
		config:     config.withDefaults(),
		dialer:     &net.Dialer{},
		interfaces: LocalSegments,
		logger:     log.New(os.Stdout, "[DISCOVERY] ", log.LstdFlags|log.Lmsgprefix),
	}
}

// WithDialer replaces the probe dialer
func (s *Scanner) WithDialer(d Dialer) *Scanner {
	s.dialer = d
	return s
}

// WithLogger replaces the scanner's logger
func (s *Scanner) WithLogger(l *log.Logger) *Scanner {
	s.logger = l
	return s
}

// WithObserver registers a callback for every probe result
func (s *Scanner) WithObserver(fn func(ProbeResult)) *Scanner {
	s.observer = fn
	return s
}

// Config returns the effective configuration
func (s *Scanner) Config() ScanConfig {
	return s.config
}

// LocalSegments lists active, non-loopback IPv4 interface networks
func LocalSegments() ([]Segment, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}

	var segs []Segment
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok || ipnet.IP.IsLoopback() || ipnet.IP.To4() == nil {
				continue
			}
			segs = append(segs, Segment{
				Network: &net.IPNet{IP: ipnet.IP.To4().Mask(ipnet.Mask), Mask: ipnet.Mask},
				Self:    ipnet.IP.To4(),
			})
		}
	}
	return segs, nil
}

// ParseRange turns a CIDR string into a manual segment
func ParseRange(cidr string) (Segment, error) {
	_, ipnet, err := net.ParseCIDR(cidr)
	if err != nil {
		return Segment{}, fmt.Errorf("parse range %q: %w", cidr, err)
	}
	if ipnet.IP.To4() == nil {
		return Segment{}, fmt.Errorf("parse range %q: not IPv4", cidr)
	}
	return Segment{Network: ipnet}, nil
}

// Hosts returns the usable host addresses of seg.
// Subnets larger than the window are narrowed to the window around Self,
// or around the network address for manual ranges. Network, broadcast and
// Self are never included.
func Hosts(seg Segment, windowBits int) []net.IP {
	if windowBits <= 0 || windowBits > 32 {
		windowBits = DefaultWindowBits
	}

	ones, bits := seg.Network.Mask.Size()
	if bits != 32 {
		return nil
	}

	network := seg.Network
	if ones < windowBits {
		anchor := seg.Network.IP.To4()
		if seg.Self != nil {
			anchor = seg.Self.To4()
		}
		mask := net.CIDRMask(windowBits, 32)
		network = &net.IPNet{IP: anchor.Mask(mask), Mask: mask}
		ones = windowBits
	}

	base := binary.BigEndian.Uint32(network.IP.To4())
	size := uint64(1) << (32 - ones)

	var first, last uint64
	switch {
	case ones == 32:
		first, last = 0, 0
	case ones == 31:
		// RFC 3021 point-to-point: both addresses are hosts
		first, last = 0, 1
	default:
		first, last = 1, size-2
	}

	var self uint32
	hasSelf := seg.Self != nil && seg.Self.To4() != nil
	if hasSelf {
		self = binary.BigEndian.Uint32(seg.Self.To4())
	}

	hosts := make([]net.IP, 0, last-first+1)
	for i := first; i <= last; i++ {
		v := base + uint32(i)
		if hasSelf && v == self {
			continue
		}
		ip := make(net.IP, 4)
		binary.BigEndian.PutUint32(ip, v)
		hosts = append(hosts, ip)
	}
	return hosts
}

// Discover scans every local interface, or only cidr when it is not empty.
// It returns open addresses, deduplicated and sorted, once every probe has finished.
func (s *Scanner) Discover(ctx context.Context, cidr string) ([]string, error) {
	results, err := s.Probe(ctx, cidr)
	if err != nil {
		return nil, err
	}
	var open []string
	for _, r := range results {
		if r.Open {
			open = append(open, r.Address)
		}
	}
	return open, nil
}

// Probe scans like Discover but returns every probe result
func (s *Scanner) Probe(ctx context.Context, cidr string) ([]ProbeResult, error) {
	var segs, local []Segment
	if cidr != "" {
		seg, err := ParseRange(cidr)
		if err != nil {
			return nil, err
		}
		segs = []Segment{seg}
		// Best effort: a manual range still must not include this host
		local, _ = s.interfaces()
	} else {
		var err error
		if segs, err = s.interfaces(); err != nil {
			return nil, err
		}
		local = segs
	}

	targets := s.targets(segs, local)
	s.logger.Printf("Probing %d addresses on port %d", len(targets), s.config.Port)

	results := s.probeAll(ctx, targets)

	open := 0
	for _, r := range results {
		if r.Open {
			open++
		}
	}
	s.logger.Printf("Scan finished: %d of %d addresses open", open, len(results))
	return results, nil
}

// targets merges all segments' hosts without duplicates.
// The Self of every local segment is excluded from every segment, so a host
// with several addresses on one subnet never probes itself.
func (s *Scanner) targets(segs, local []Segment) []string {
	seen := map[string]bool{}
	for _, seg := range local {
		if seg.Self != nil {
			seen[seg.Self.String()] = true
		}
	}
	var out []string
	for _, seg := range segs {
		for _, ip := range Hosts(seg, s.config.WindowBits) {
			addr := ip.String()
			if !seen[addr] {
				seen[addr] = true
				out = append(out, addr)
			}
		}
	}
	return out
}

// probeAll runs one probe per target and waits for all of them
func (s *Scanner) probeAll(ctx context.Context, targets []string) []ProbeResult {
	var (
		mu      sync.Mutex
		results = make([]ProbeResult, 0, len(targets))
		g       errgroup.Group
	)
	if s.config.MaxConcurrency > 0 {
		g.SetLimit(s.config.MaxConcurrency)
	}

	for _, addr := range targets {
		addr := addr
		g.Go(func() error {
			r := s.probe(ctx, addr)
			if s.observer != nil {
				s.observer(r)
			}
			mu.Lock()
			results = append(results, r)
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	sort.Slice(results, func(i, j int) bool {
		return ipLess(results[i].Address, results[j].Address)
	})
	return results
}

func (s *Scanner) probe(ctx context.Context, addr string) ProbeResult {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	start := time.Now()
	conn, err := s.dialer.DialContext(ctx, "tcp", net.JoinHostPort(addr, strconv.Itoa(s.config.Port)))
	r := ProbeResult{Address: addr, Latency: time.Since(start)}
	if err != nil {
		r.Error = err.Error()
		return r
	}
	conn.Close()
	r.Open = true
	return r
}

func ipLess(a, b string) bool {
	ia, ib := net.ParseIP(a).To4(), net.ParseIP(b).To4()
	if ia == nil || ib == nil {
		return a < b
	}
	return binary.BigEndian.Uint32(ia) < binary.BigEndian.Uint32(ib)
}
