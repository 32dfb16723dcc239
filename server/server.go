// Package server exposes one attached printer as a raw TCP print port.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"sync"
	"time"

	"github.com/nixxel-company-limited/escpos-printkit/adapter"
)

// DefaultAcquireTimeout is how long a client waits for a device held by another job
const DefaultAcquireTimeout = 30 * time.Second

// Server accepts TCP clients and forwards their bytes to a printer.
// Each client holds the device exclusively from connect to disconnect.
type Server struct {
	transport *adapter.Transport
	port      adapter.Port
	listener  net.Listener
	address   string
	acquire   time.Duration
	mu        sync.Mutex
	running   bool
	clients   map[net.Conn]struct{}
	wg        sync.WaitGroup
	logger    *log.Logger
}

// New creates a new server instance
func New(transport *adapter.Transport, port adapter.Port, address string) *Server {
	logger := log.New(os.Stdout, "[SERVER] ", log.LstdFlags|log.Lmsgprefix)
	return NewWithLogger(transport, port, address, logger)
}

// NewWithLogger creates a new server instance with a custom logger
func NewWithLogger(transport *adapter.Transport, port adapter.Port, address string, logger *log.Logger) *Server {
	return &Server{
		transport: transport,
		port:      port,
		address:   address,
		acquire:   DefaultAcquireTimeout,
		clients:   make(map[net.Conn]struct{}),
		logger:    logger,
	}
}

// SetAcquireTimeout changes how long a client waits for the device
func (s *Server) SetAcquireTimeout(d time.Duration) {
	if d > 0 {
		s.acquire = d
	}
}

// Start starts the TCP server and blocks until Stop is called
func (s *Server) Start() error {
	s.logger.Printf("Starting server on %s (blocking mode)", s.address)
	if err := s.listen(); err != nil {
		return err
	}

	s.logger.Println("Ready to accept connections")
	s.acceptConnections()
	return nil
}

// StartAsync starts the TCP server in a goroutine (non-blocking)
func (s *Server) StartAsync() error {
	s.logger.Printf("Starting server on %s (async mode)", s.address)
	if err := s.listen(); err != nil {
		return err
	}

	go s.acceptConnections()
	s.logger.Println("Server started in background, ready to accept connections")
	return nil
}

// listen binds the address after checking the printer can be opened.
// On success the accept loop is counted in wg.
func (s *Server) listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.logger.Println("Error: Server already running")
		return fmt.Errorf("server already running")
	}

	s.logger.Printf("Checking printer %s...", s.port)
	conn, err := s.transport.Connect(context.Background(), s.port, 0)
	if err != nil {
		s.logger.Printf("Error: Failed to open printer: %v", err)
		return fmt.Errorf("failed to open printer: %w", err)
	}
	conn.Close()

	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		s.logger.Printf("Error: Failed to start server: %v", err)
		return fmt.Errorf("failed to start server: %w", err)
	}

	s.listener = listener
	s.running = true
	s.wg.Add(1)
	s.logger.Printf("Server listening on %s for %s", listener.Addr(), s.port)
	return nil
}

// acceptConnections handles incoming client connections
func (s *Server) acceptConnections() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if !s.IsRunning() {
				s.logger.Println("Server shutting down, stopping accept loop")
				return
			}
			s.logger.Printf("Error accepting connection: %v", err)
			continue
		}

		s.mu.Lock()
		s.clients[conn] = struct{}{}
		s.mu.Unlock()

		s.logger.Printf("Client connected from %s", conn.RemoteAddr())
		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

// handleConnection holds the printer for the lifetime of one client
func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
		conn.Close()
		s.logger.Printf("Client disconnected: %s", conn.RemoteAddr())
	}()

	clientAddr := conn.RemoteAddr().String()

	printer, err := s.transport.Connect(context.Background(), s.port, s.acquire)
	if err != nil {
		s.logger.Printf("Error opening printer for %s: %v", clientAddr, err)
		return
	}
	defer printer.Close()

	buf := make([]byte, 4096)
	total := 0
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			if werr := adapter.WriteAll(printer, buf[:n]); werr != nil {
				s.logger.Printf("Error writing to printer: %v", werr)
				return
			}
			total += n
		}
		if err != nil {
			if errors.Is(err, io.EOF) || !s.IsRunning() {
				s.logger.Printf("Client %s closed connection after %d bytes", clientAddr, total)
			} else {
				s.logger.Printf("Error reading from client %s: %v", clientAddr, err)
			}
			return
		}
	}
}

// Stop closes the listener and every client connection, then waits for handlers to release the printer
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		s.logger.Println("Stop called but server is not running")
		return nil
	}

	s.logger.Println("Stopping server...")
	s.running = false
	listener := s.listener
	for c := range s.clients {
		c.Close()
	}
	s.mu.Unlock()

	var err error
	if listener != nil {
		err = listener.Close()
	}

	s.wg.Wait()
	s.logger.Println("Server stopped successfully")
	return err
}

// IsRunning returns whether the server is running
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Address returns the bound address while running, else the configured one
func (s *Server) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running && s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.address
}

// Port returns the printer this server forwards to
func (s *Server) Port() adapter.Port {
	return s.port
}
