// Package sink implements the agent's HTTP reporting queue: a single
// background worker draining an unbounded FIFO of requests to the central
// ingestion API, with a fixed-delay back-off after repeated failures.
package sink

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// failureThreshold is the consecutive-failure count that triggers the
// delaying state.
const failureThreshold = 5

// delayDuration is how long the worker pauses once the delaying state is
// entered.
const delayDuration = 10 * time.Second

// Request is one queued HTTP delivery.
type Request struct {
	// ID is a correlation ID for tracing this request (and its retries)
	// through the agent's logs. Populated by Enqueue if empty.
	ID string

	Method string
	URL    string
	Body   []byte

	// OnSuccess is invoked with the response body on a 2xx status.
	OnSuccess func(body []byte)
	// OnError is invoked with the response body (or nil, on a transport
	// failure) on a non-2xx status or network error.
	OnError func(body []byte)
}

// Sink is a single-writer HTTP delivery queue. It is safe for concurrent use
// by multiple producers calling Enqueue; delivery happens on one internal
// worker goroutine.
type Sink struct {
	client *http.Client
	logger *slog.Logger

	mu                  sync.Mutex
	cond                *sync.Cond
	queue               []Request
	consecutiveFailures int
	delaying            bool
	delay               time.Duration

	persist PersistHook

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// PersistHook durably persists req before it is appended to the in-memory
// delivery queue, returning an ack function to invoke once delivery
// succeeds (or nil if the request need not be acknowledged). It lets a
// caller survive a crash between Enqueue and delivery without the sink
// package depending on any particular durable-storage implementation.
type PersistHook func(req Request) (ack func(), err error)

// Option configures optional Sink behaviour.
type Option func(*Sink)

// WithDelay overrides the fixed delay applied after failureThreshold
// consecutive failures. Intended for tests; production callers should leave
// this at its default of 10s.
func WithDelay(d time.Duration) Option {
	return func(s *Sink) { s.delay = d }
}

// WithPersistHook registers a hook invoked by Enqueue before the request
// joins the in-memory queue, so at-least-once delivery survives a process
// restart.
func WithPersistHook(hook PersistHook) Option {
	return func(s *Sink) { s.persist = hook }
}

// New creates a Sink. TLS certificate verification is disabled, matching
// the development-default transport security posture of the agent this
// spec describes.
func New(logger *slog.Logger, opts ...Option) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sink{
		client: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // development default per spec
			},
			Timeout: 10 * time.Second,
		},
		logger: logger,
		delay:  delayDuration,
	}
	s.cond = sync.NewCond(&s.mu)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the delivery worker goroutine.
func (s *Sink) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	// Wake the worker out of cond.Wait when ctx is cancelled so Stop does
	// not hang waiting for a queue that will never receive another item.
	go func() {
		<-ctx.Done()
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	}()

	s.wg.Add(1)
	go s.run(ctx)
}

// Enqueue appends req to the tail of the delivery queue. Only POST requests
// are supported; any other method is a programmer error. If a PersistHook is
// configured, req is durably persisted first.
func (s *Sink) Enqueue(req Request) error {
	if req.Method != http.MethodPost {
		return fmt.Errorf("sink: unsupported method %q (only POST is supported)", req.Method)
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	if s.persist != nil {
		ack, err := s.persist(req)
		if err != nil {
			return fmt.Errorf("sink: persist request: %w", err)
		}
		if ack != nil {
			onSuccess := req.OnSuccess
			req.OnSuccess = func(body []byte) {
				ack()
				if onSuccess != nil {
					onSuccess(body)
				}
			}
		}
	}

	s.enqueueRaw(req)
	return nil
}

// EnqueueRaw appends req to the delivery queue without invoking the
// configured PersistHook. It is meant for replaying rows that a caller has
// already persisted itself (for example, durable-queue rows recovered after
// a restart), so they are not persisted a second time.
func (s *Sink) EnqueueRaw(req Request) {
	s.enqueueRaw(req)
}

func (s *Sink) enqueueRaw(req Request) {
	s.mu.Lock()
	s.queue = append(s.queue, req)
	s.cond.Signal()
	s.mu.Unlock()
}

func (s *Sink) run(ctx context.Context) {
	defer s.wg.Done()

	for {
		s.mu.Lock()
		for (len(s.queue) == 0 || s.delaying) && ctx.Err() == nil {
			s.cond.Wait()
		}
		if ctx.Err() != nil {
			s.mu.Unlock()
			return
		}
		req := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		s.deliver(ctx, req)
	}
}

func (s *Sink) deliver(ctx context.Context, req Request) {
	status, body, err := s.doRequest(ctx, req)

	if err == nil && status >= 200 && status < 300 {
		if req.OnSuccess != nil {
			req.OnSuccess(body)
		}
		s.logger.Debug("sink: delivered", slog.String("request_id", req.ID), slog.String("url", req.URL))
		s.mu.Lock()
		s.consecutiveFailures = 0
		s.mu.Unlock()
		return
	}

	s.logger.Warn("sink: delivery failed", slog.String("request_id", req.ID), slog.String("url", req.URL), slog.Any("error", err), slog.Int("status", status))
	if req.OnError != nil {
		req.OnError(body)
	}

	s.mu.Lock()
	s.queue = append(s.queue, req)
	s.consecutiveFailures++
	enterDelay := s.consecutiveFailures >= failureThreshold
	if enterDelay {
		s.delaying = true
	}
	s.cond.Signal()
	s.mu.Unlock()

	if enterDelay {
		s.logger.Warn("sink: entering delay state after repeated failures", slog.Int("consecutive_failures", s.consecutiveFailures))
		time.AfterFunc(s.delay, func() {
			s.mu.Lock()
			s.delaying = false
			s.cond.Broadcast()
			s.mu.Unlock()
		})
	}
}

func (s *Sink) doRequest(ctx context.Context, req Request) (status int, body []byte, err error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return 0, nil, fmt.Errorf("sink: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/plain")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return 0, nil, fmt.Errorf("sink: do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return resp.StatusCode, nil, fmt.Errorf("sink: read response body: %w", readErr)
	}
	return resp.StatusCode, respBody, nil
}

// Depth returns the number of requests currently queued (including any
// in-flight retry not yet redelivered).
func (s *Sink) Depth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Stop signals the worker to exit and waits for it. Any requests still
// queued are dropped; callers that need at-least-once delivery across
// restarts should stage requests in a durable queue before calling Enqueue.
func (s *Sink) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}
