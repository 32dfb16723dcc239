// Package api is a small HTTP control surface over discovery, identification and printing.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/nixxel-company-limited/escpos-printkit/adapter"
	"github.com/nixxel-company-limited/escpos-printkit/discovery"
	"github.com/nixxel-company-limited/escpos-printkit/driver"
	"github.com/nixxel-company-limited/escpos-printkit/identify"
	"github.com/nixxel-company-limited/escpos-printkit/metrics"
	"github.com/nixxel-company-limited/escpos-printkit/render"
	"github.com/nixxel-company-limited/escpos-printkit/spool"
)

// Scanner probes the LAN
type Scanner interface {
	Probe(ctx context.Context, cidr string) ([]discovery.ProbeResult, error)
}

// USBLister lists attached USB printers bound to drivers
type USBLister interface {
	Discover(ctx context.Context) ([]discovery.USBMatch, error)
}

// Drivers resolves drivers by name or by identifying a device
type Drivers interface {
	Drivers() []driver.Driver
	Lookup(name string) (driver.Driver, bool)
	Match(ctx context.Context, port adapter.Port, preferred ...string) (driver.Driver, identify.Result, error)
}

// Printer runs print jobs
type Printer interface {
	Print(ctx context.Context, port adapter.Port, data []byte) spool.JobResult
}

// Deps are the components the API drives. USB and Metrics may be nil.
type Deps struct {
	Scanner Scanner
	USB     USBLister
	Drivers Drivers
	Printer Printer
	Metrics *metrics.Metrics
}

// Server serves the HTTP routes
type Server struct {
	deps   Deps
	logger *log.Logger
}

// New creates the API server
func New(deps Deps) *Server {
	return &Server{deps: deps, logger: log.New(os.Stdout, "[API] ", log.LstdFlags|log.Lmsgprefix)}
}

// WithLogger replaces the logger
func (s *Server) WithLogger(l *log.Logger) *Server {
	s.logger = l
	return s
}

// Handler builds the router
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/discover", s.discover)
	r.Get("/usb", s.usb)
	r.Get("/serial", s.serial)
	r.Get("/drivers", s.drivers)
	r.Post("/identify", s.identify)
	r.Post("/print", s.print)
	r.Post("/test-print", s.testPrint)
	r.Handle("/metrics", s.deps.Metrics.Handler())
	return r
}

type portRequest struct {
	Port   string `json:"port"`
	Driver string `json:"driver,omitempty"`
}

type printRequest struct {
	portRequest
	Template map[string]any `json:"template,omitempty"`
	Data     any            `json:"data,omitempty"`
}

type identifyResponse struct {
	Port           string          `json:"port"`
	Driver         string          `json:"driver,omitempty"`
	Identity       string          `json:"identity,omitempty"`
	Identification identify.Result `json:"identification"`
	Blind          bool            `json:"blind,omitempty"`
	Error          string          `json:"error,omitempty"`
}

type driverInfo struct {
	Name         string           `json:"name"`
	Manufacturer string           `json:"manufacturer,omitempty"`
	LAN          driver.LANConfig `json:"lan"`
	Columns      int              `json:"columns"`
	RestartDelay string           `json:"restart_delay"`
}

func (s *Server) discover(w http.ResponseWriter, r *http.Request) {
	results, err := s.deps.Scanner.Probe(r.Context(), r.URL.Query().Get("cidr"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if r.URL.Query().Get("all") == "" {
		open := make([]discovery.ProbeResult, 0, len(results))
		for _, res := range results {
			if res.Open {
				open = append(open, res)
			}
		}
		results = open
	}
	s.writeJSON(w, http.StatusOK, results)
}

func (s *Server) usb(w http.ResponseWriter, r *http.Request) {
	if s.deps.USB == nil {
		s.writeError(w, http.StatusNotImplemented, errors.New("usb discovery not configured"))
		return
	}
	matches, err := s.deps.USB.Discover(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, matches)
}

func (s *Server) serial(w http.ResponseWriter, r *http.Request) {
	ports, err := discovery.SerialPorts(adapter.DefaultBaudRate)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ports)
}

func (s *Server) drivers(w http.ResponseWriter, r *http.Request) {
	var out []driverInfo
	for _, d := range s.deps.Drivers.Drivers() {
		out = append(out, driverInfo{
			Name:         d.Name(),
			Manufacturer: d.Manufacturer(),
			LAN:          d.DefaultLANConfig(),
			Columns:      d.Profile().Columns,
			RestartDelay: d.RestartDelay().String(),
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) identify(w http.ResponseWriter, r *http.Request) {
	var req portRequest
	port, ok := s.decodePort(w, r, &req, &req)
	if !ok {
		return
	}

	d, res, err := s.deps.Drivers.Match(r.Context(), port)
	resp := identifyResponse{Port: port.String(), Identification: res, Identity: res.Identity()}
	if d != nil {
		resp.Driver = d.Name()
	}
	status := http.StatusOK
	switch {
	case err == nil:
	case errors.Is(err, driver.ErrProtocolMismatch):
		resp.Blind = true
		resp.Error = err.Error()
	default:
		resp.Error = err.Error()
		status = http.StatusBadGateway
	}
	s.writeJSON(w, status, resp)
}

func (s *Server) print(w http.ResponseWriter, r *http.Request) {
	var req printRequest
	port, ok := s.decodePort(w, r, &req, &req.portRequest)
	if !ok {
		return
	}

	tmpl := render.DefaultReceipt()
	if req.Template != nil {
		var err error
		if tmpl, err = render.Decode(req.Template); err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	s.runJob(w, r, port, req.Driver, req.Data, tmpl)
}

func (s *Server) testPrint(w http.ResponseWriter, r *http.Request) {
	var req portRequest
	port, ok := s.decodePort(w, r, &req, &req)
	if !ok {
		return
	}
	s.runJob(w, r, port, req.Driver, nil, render.TestPage(port.String()))
}

func (s *Server) runJob(w http.ResponseWriter, r *http.Request, port adapter.Port, name string, data any, tmpl render.Template) {
	d, err := s.resolve(r.Context(), port, name)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err)
		return
	}

	cmds, err := d.GeneratePrintCommands(data, tmpl)
	if err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, err)
		return
	}

	res := s.deps.Printer.Print(r.Context(), port, cmds)
	status := http.StatusOK
	if !res.OK {
		status = http.StatusBadGateway
	}
	s.writeJSON(w, status, res)
}

// resolve uses the named driver, or identifies the device.
// A device nobody claims is printed to blind with the fallback driver.
func (s *Server) resolve(ctx context.Context, port adapter.Port, name string) (driver.Driver, error) {
	if name != "" {
		d, ok := s.deps.Drivers.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("unknown driver %q", name)
		}
		return d, nil
	}
	d, _, err := s.deps.Drivers.Match(ctx, port)
	if err != nil && !(errors.Is(err, driver.ErrProtocolMismatch) && d != nil) {
		return nil, err
	}
	return d, nil
}

// decodePort reads the JSON body into dst and parses the port spec in pr
func (s *Server) decodePort(w http.ResponseWriter, r *http.Request, dst any, pr *portRequest) (adapter.Port, bool) {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return adapter.Port{}, false
	}
	port, err := adapter.ParsePort(pr.Port)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return adapter.Port{}, false
	}
	return port, true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Printf("Error encoding response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.logger.Printf("Error: %v", err)
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
