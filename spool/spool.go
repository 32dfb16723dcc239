// Package spool serializes print jobs per device. Each port gets one worker
// that drains its queue in submission order; different ports print in parallel.
package spool

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/nixxel-company-limited/escpos-printkit/adapter"
	"github.com/nixxel-company-limited/escpos-printkit/metrics"
)

// DefaultQueueDepth is the number of jobs a port may have waiting
const DefaultQueueDepth = 16

var (
	// ErrClosed is returned for jobs submitted after Close
	ErrClosed = errors.New("spooler closed")
	// ErrQueueFull means the port already has DefaultQueueDepth jobs waiting
	ErrQueueFull = errors.New("queue full")
)

// Sender transmits one finished job
type Sender interface {
	Send(ctx context.Context, port adapter.Port, data []byte) error
}

// JobResult describes what happened to a job in words a user can read
type JobResult struct {
	OK       bool          `json:"ok"`
	Message  string        `json:"message"`
	Port     string        `json:"port"`
	Bytes    int           `json:"bytes"`
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
}

type job struct {
	ctx       context.Context
	port      adapter.Port
	data      []byte
	submitted time.Time
	done      chan JobResult
}

// Spooler owns one queue and worker per port key
type Spooler struct {
	sender  Sender
	depth   int
	metrics *metrics.Metrics
	logger  *log.Logger

	mu     sync.Mutex
	queues map[string]chan job
	closed bool
	wg     sync.WaitGroup
}

// New creates a spooler over sender
func New(sender Sender) *Spooler {
	return &Spooler{
		sender: sender,
		depth:  DefaultQueueDepth,
		logger: log.New(os.Stdout, "[SPOOL] ", log.LstdFlags|log.Lmsgprefix),
		queues: make(map[string]chan job),
	}
}

// WithLogger replaces the logger
func (s *Spooler) WithLogger(l *log.Logger) *Spooler {
	s.logger = l
	return s
}

// WithMetrics records every finished job in m
func (s *Spooler) WithMetrics(m *metrics.Metrics) *Spooler {
	s.metrics = m
	return s
}

// WithQueueDepth changes how many jobs may wait per port
func (s *Spooler) WithQueueDepth(n int) *Spooler {
	if n > 0 {
		s.depth = n
	}
	return s
}

// Submit queues data for port and returns a channel that receives exactly one result
func (s *Spooler) Submit(ctx context.Context, port adapter.Port, data []byte) (<-chan JobResult, error) {
	j := job{ctx: ctx, port: port, data: data, submitted: time.Now(), done: make(chan JobResult, 1)}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	q, ok := s.queues[port.Key()]
	if !ok {
		q = make(chan job, s.depth)
		s.queues[port.Key()] = q
		s.wg.Add(1)
		go s.worker(port.Key(), q)
	}

	select {
	case q <- j:
		return j.done, nil
	default:
		return nil, fmt.Errorf("%s: %w", port, ErrQueueFull)
	}
}

// Print submits a job and waits for its result
func (s *Spooler) Print(ctx context.Context, port adapter.Port, data []byte) JobResult {
	done, err := s.Submit(ctx, port, data)
	if err != nil {
		return s.finish(port, len(data), time.Now(), err)
	}
	select {
	case r := <-done:
		return r
	case <-ctx.Done():
		return JobResult{Port: port.String(), Message: fmt.Sprintf("Gave up waiting for %s: %v", port, ctx.Err()), Err: ctx.Err()}
	}
}

// Close stops accepting jobs and waits for queued ones to finish
func (s *Spooler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for _, q := range s.queues {
		close(q)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Spooler) worker(key string, q <-chan job) {
	defer s.wg.Done()
	for j := range q {
		var err error
		if err = j.ctx.Err(); err == nil {
			err = s.sender.Send(j.ctx, j.port, j.data)
		}
		j.done <- s.finish(j.port, len(j.data), j.submitted, err)
	}
	s.logger.Printf("Worker for %s stopped", key)
}

func (s *Spooler) finish(port adapter.Port, n int, start time.Time, err error) JobResult {
	r := JobResult{Port: port.String(), Duration: time.Since(start), Err: err}
	if err != nil {
		r.Message = describe(port, err)
		s.logger.Printf("Error: %s", r.Message)
	} else {
		r.OK = true
		r.Bytes = n
		r.Message = fmt.Sprintf("Printed %d bytes on %s", n, port)
	}
	s.metrics.Job(string(port.Kind), r.OK, r.Bytes, r.Duration)
	return r
}

func describe(port adapter.Port, err error) string {
	switch {
	case errors.Is(err, adapter.ErrPortBusy):
		return fmt.Sprintf("%s is in use by another job", port)
	case errors.Is(err, adapter.ErrUnsupportedPortType):
		return fmt.Sprintf("%s cannot be printed to: %v", port, err)
	case adapter.IsTimeout(err):
		return fmt.Sprintf("%s did not respond in time: %v", port, err)
	case errors.Is(err, context.Canceled):
		return fmt.Sprintf("Job for %s was cancelled", port)
	}
	return fmt.Sprintf("Print failed on %s: %v", port, err)
}
