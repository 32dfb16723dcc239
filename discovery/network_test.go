package discovery

import (
	"context"
	"errors"
	"io"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingDialer struct {
	mu    sync.Mutex
	calls []string
	open  map[string]bool
}

func (d *countingDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	d.mu.Lock()
	d.calls = append(d.calls, address)
	d.mu.Unlock()

	host, _, _ := net.SplitHostPort(address)
	if d.open[host] {
		client, server := net.Pipe()
		server.Close()
		return client, nil
	}
	return nil, errors.New("connection refused")
}

func noInterfaces() ([]Segment, error) { return nil, nil }

func quietScanner(cfg ScanConfig) *Scanner {
	return NewScanner(cfg).WithLogger(log.New(io.Discard, "", 0))
}

func strs(ips []net.IP) []string {
	out := make([]string, len(ips))
	for i, ip := range ips {
		out[i] = ip.String()
	}
	return out
}

func TestHostsSmallRange(t *testing.T) {
	seg, err := ParseRange("192.168.50.0/30")
	require.NoError(t, err)
	assert.Equal(t, []string{"192.168.50.1", "192.168.50.2"}, strs(Hosts(seg, 24)))
}

func TestHostsLargeSubnetNarrowedAroundSelf(t *testing.T) {
	seg := Segment{
		Network: &net.IPNet{IP: net.IPv4(10, 1, 0, 0).To4(), Mask: net.CIDRMask(16, 32)},
		Self:    net.IPv4(10, 1, 2, 3).To4(),
	}
	hosts := strs(Hosts(seg, 24))

	assert.Len(t, hosts, 253)
	assert.NotContains(t, hosts, "10.1.2.3")
	assert.NotContains(t, hosts, "10.1.2.0")
	assert.NotContains(t, hosts, "10.1.2.255")
	assert.Contains(t, hosts, "10.1.2.1")
	assert.Contains(t, hosts, "10.1.2.254")
	assert.NotContains(t, hosts, "10.1.3.1")
}

func TestHostsManualLargeRangeUsesNetworkWindow(t *testing.T) {
	seg, err := ParseRange("172.16.0.0/12")
	require.NoError(t, err)
	hosts := strs(Hosts(seg, 24))
	assert.Len(t, hosts, 254)
	assert.Equal(t, "172.16.0.1", hosts[0])
	assert.Equal(t, "172.16.0.254", hosts[len(hosts)-1])
}

func TestHostsPointToPoint(t *testing.T) {
	seg, err := ParseRange("10.0.0.4/31")
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.4", "10.0.0.5"}, strs(Hosts(seg, 24)))

	seg, err = ParseRange("10.0.0.9/32")
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.9"}, strs(Hosts(seg, 24)))
}

func TestParseRangeErrors(t *testing.T) {
	_, err := ParseRange("not-a-cidr")
	assert.Error(t, err)
	_, err = ParseRange("fe80::/64")
	assert.Error(t, err)
}

func TestProbeManualRange(t *testing.T) {
	d := &countingDialer{open: map[string]bool{"192.168.50.2": true}}
	s := quietScanner(ScanConfig{Port: 9100, Timeout: 100 * time.Millisecond}).WithDialer(d)
	s.interfaces = noInterfaces

	results, err := s.Probe(context.Background(), "192.168.50.0/30")
	require.NoError(t, err)

	assert.Len(t, d.calls, 2)
	assert.ElementsMatch(t, []string{"192.168.50.1:9100", "192.168.50.2:9100"}, d.calls)
	require.Len(t, results, 2)
	assert.Equal(t, "192.168.50.1", results[0].Address)
	assert.False(t, results[0].Open)
	assert.NotEmpty(t, results[0].Error)
	assert.True(t, results[1].Open)
}

func TestDiscoverFindsLoopbackListener(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			c.Close()
		}
	}()

	port := ln.Addr().(*net.TCPAddr).Port
	s := quietScanner(ScanConfig{Port: port, Timeout: time.Second})

	open, err := s.Discover(context.Background(), "127.0.0.1/32")
	require.NoError(t, err)
	assert.Equal(t, []string{"127.0.0.1"}, open)
}

func TestProbeDeduplicatesSegments(t *testing.T) {
	d := &countingDialer{}
	s := quietScanner(ScanConfig{}).WithDialer(d)
	s.interfaces = func() ([]Segment, error) {
		a, _ := ParseRange("10.9.0.0/30")
		b, _ := ParseRange("10.9.0.0/30")
		return []Segment{a, b}, nil
	}

	results, err := s.Probe(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Len(t, d.calls, 2)
}

func TestProbeSkipsEveryLocalAddress(t *testing.T) {
	d := &countingDialer{}
	s := quietScanner(ScanConfig{}).WithDialer(d)
	mask := net.CIDRMask(24, 32)
	s.interfaces = func() ([]Segment, error) {
		return []Segment{
			{Network: &net.IPNet{IP: net.IPv4(192, 168, 1, 0).To4(), Mask: mask}, Self: net.IPv4(192, 168, 1, 10).To4()},
			{Network: &net.IPNet{IP: net.IPv4(192, 168, 1, 0).To4(), Mask: mask}, Self: net.IPv4(192, 168, 1, 20).To4()},
		}, nil
	}

	results, err := s.Probe(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, results, 252)
	assert.NotContains(t, d.calls, "192.168.1.10:9100")
	assert.NotContains(t, d.calls, "192.168.1.20:9100")
	assert.Contains(t, d.calls, "192.168.1.11:9100")
}

func TestProbeManualRangeSkipsLocalAddress(t *testing.T) {
	d := &countingDialer{}
	s := quietScanner(ScanConfig{}).WithDialer(d)
	s.interfaces = func() ([]Segment, error) {
		return []Segment{{
			Network: &net.IPNet{IP: net.IPv4(192, 168, 50, 0).To4(), Mask: net.CIDRMask(24, 32)},
			Self:    net.IPv4(192, 168, 50, 2).To4(),
		}}, nil
	}

	_, err := s.Probe(context.Background(), "192.168.50.0/30")
	require.NoError(t, err)
	assert.Equal(t, []string{"192.168.50.1:9100"}, d.calls)
}

func TestProbeObserverAndConcurrencyLimit(t *testing.T) {
	var seen atomic.Int32
	d := &countingDialer{}
	s := quietScanner(ScanConfig{MaxConcurrency: 2}).
		WithDialer(d).
		WithObserver(func(ProbeResult) { seen.Add(1) })
	s.interfaces = noInterfaces

	results, err := s.Probe(context.Background(), "10.20.30.0/29")
	require.NoError(t, err)
	assert.Len(t, results, 6)
	assert.EqualValues(t, 6, seen.Load())
}

func TestProbeInterfaceError(t *testing.T) {
	s := quietScanner(ScanConfig{})
	s.interfaces = func() ([]Segment, error) { return nil, errors.New("no interfaces") }
	_, err := s.Discover(context.Background(), "")
	assert.Error(t, err)
}

func TestScanConfigDefaults(t *testing.T) {
	cfg := NewScanner(ScanConfig{WindowBits: 40}).Config()
	assert.Equal(t, DefaultProbePort, cfg.Port)
	assert.Equal(t, DefaultProbeTimeout, cfg.Timeout)
	assert.Equal(t, DefaultWindowBits, cfg.WindowBits)
}
