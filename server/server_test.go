package server

import (
	"errors"
	"io"
	"log"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nixxel-company-limited/escpos-printkit/adapter"
)

// MockAdapter records everything written across connections to one device
type MockAdapter struct {
	mu        sync.Mutex
	open      bool
	opens     int
	writeData []byte
	openErr   error
}

func (m *MockAdapter) Open() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.openErr != nil {
		return m.openErr
	}
	m.open = true
	m.opens++
	return nil
}

func (m *MockAdapter) Write(data []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeData = append(m.writeData, data...)
	return len(data), nil
}

func (m *MockAdapter) Read(buf []byte) (int, error) {
	return 0, adapter.ErrTimeout
}

func (m *MockAdapter) SetReadTimeout(time.Duration) error { return nil }

func (m *MockAdapter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open = false
	return nil
}

func (m *MockAdapter) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

func (m *MockAdapter) written() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.writeData...)
}

var usbPort = adapter.USBPort(0x0525, 0xa700, 0, 0)

func newTestServer(m *MockAdapter, address string) *Server {
	quiet := log.New(io.Discard, "", 0)
	tr := adapter.NewTransportWithFactory(adapter.Options{}, func(adapter.Port, adapter.Options) (adapter.Adapter, error) {
		return m, nil
	}, quiet)
	return NewWithLogger(tr, usbPort, address, quiet)
}

func TestNewServer(t *testing.T) {
	server := newTestServer(&MockAdapter{}, "localhost:9100")

	assert.NotNil(t, server)
	assert.Equal(t, "localhost:9100", server.Address())
	assert.False(t, server.IsRunning())
	assert.Equal(t, usbPort, server.Port())
}

func TestServerStartStop(t *testing.T) {
	mockAdapter := &MockAdapter{}
	server := newTestServer(mockAdapter, "127.0.0.1:0")

	err := server.StartAsync()
	require.NoError(t, err)
	assert.True(t, server.IsRunning())
	// The device was opened once to check it, then released
	assert.Equal(t, 1, mockAdapter.opens)
	assert.False(t, mockAdapter.IsOpen())

	err = server.StartAsync()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already running")

	err = server.Stop()
	require.NoError(t, err)
	assert.False(t, server.IsRunning())

	err = server.Stop()
	assert.NoError(t, err)
}

func TestServerPrinterUnavailable(t *testing.T) {
	server := newTestServer(&MockAdapter{openErr: errors.New("no device")}, "127.0.0.1:0")

	err := server.StartAsync()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open printer")
	assert.False(t, server.IsRunning())
}

func TestServerConnection(t *testing.T) {
	mockAdapter := &MockAdapter{}
	server := newTestServer(mockAdapter, "127.0.0.1:0")
	require.NoError(t, server.StartAsync())
	defer server.Stop()

	conn, err := net.Dial("tcp", server.Address())
	require.NoError(t, err)

	testData := []byte("Hello, Printer!")
	n, err := conn.Write(testData)
	require.NoError(t, err)
	assert.Equal(t, len(testData), n)
	conn.Close()

	assert.Eventually(t, func() bool {
		return string(mockAdapter.written()) == string(testData) && !mockAdapter.IsOpen()
	}, time.Second, 10*time.Millisecond)
}

func TestServerClientsTakeTurns(t *testing.T) {
	mockAdapter := &MockAdapter{}
	server := newTestServer(mockAdapter, "127.0.0.1:0")
	require.NoError(t, server.StartAsync())
	defer server.Stop()

	for i := 0; i < 3; i++ {
		conn, err := net.Dial("tcp", server.Address())
		require.NoError(t, err)
		_, err = conn.Write([]byte{byte(i + 1)})
		require.NoError(t, err)
		conn.Close()

		want := i + 1
		require.Eventually(t, func() bool {
			return len(mockAdapter.written()) == want && !mockAdapter.IsOpen()
		}, time.Second, 10*time.Millisecond)
	}

	assert.Equal(t, []byte{1, 2, 3}, mockAdapter.written())
	// One open for the start check plus one per client
	assert.Equal(t, 4, mockAdapter.opens)
}

func TestServerWithRealUSBAdapter(t *testing.T) {
	ports, err := adapter.FindPrinterPorts()
	if err != nil || len(ports) == 0 {
		t.Skip("No USB printer found, skipping test")
	}

	server := New(adapter.NewTransport(adapter.Options{}), ports[0], "127.0.0.1:0")
	require.NoError(t, server.StartAsync())
	defer server.Stop()

	conn, err := net.Dial("tcp", server.Address())
	require.NoError(t, err)
	defer conn.Close()

	initCmd := []byte{0x1B, 0x40} // ESC @
	n, err := conn.Write(initCmd)
	require.NoError(t, err)
	assert.Equal(t, len(initCmd), n)

	time.Sleep(100 * time.Millisecond)
}

func TestServerAddress(t *testing.T) {
	testCases := []string{
		"localhost:9100",
		"0.0.0.0:9100",
		":9100",
	}

	for _, addr := range testCases {
		t.Run(addr, func(t *testing.T) {
			server := newTestServer(&MockAdapter{}, addr)
			assert.Equal(t, addr, server.Address())
		})
	}
}

func TestServerInvalidAddress(t *testing.T) {
	server := newTestServer(&MockAdapter{}, "invalid:address:9100")

	err := server.StartAsync()
	assert.Error(t, err)
	assert.False(t, server.IsRunning())
}

func TestServerStartBlocking(t *testing.T) {
	mockAdapter := &MockAdapter{}
	server := newTestServer(mockAdapter, "127.0.0.1:0")

	started := make(chan error)
	go func() {
		started <- server.Start()
	}()

	require.Eventually(t, server.IsRunning, time.Second, 10*time.Millisecond)

	conn, err := net.Dial("tcp", server.Address())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("Blocking test"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return string(mockAdapter.written()) == "Blocking test"
	}, time.Second, 10*time.Millisecond)

	// Stop disconnects the still-open client
	err = server.Stop()
	require.NoError(t, err)
	assert.False(t, mockAdapter.IsOpen())

	select {
	case err := <-started:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Start() did not return after Stop()")
	}
}
