// Package agent contains the edge agent orchestrator. It wires together,
// per configured sniffer mode, a capture supervisor, a processor, and a
// fingerprint store, plus the components shared across all sniffers: the
// HTTP sink, the local durable queue feeding it, the antenna bootstrap, and
// the fingerprint/location reporter jobs.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/fieldmesh/beacon/internal/capture"
	"github.com/fieldmesh/beacon/internal/codec"
	"github.com/fieldmesh/beacon/internal/config"
	"github.com/fieldmesh/beacon/internal/queue"
	"github.com/fieldmesh/beacon/internal/reporter"
	"github.com/fieldmesh/beacon/internal/sink"
	"github.com/fieldmesh/beacon/internal/store"
)

// ErrRadioUnavailable is wrapped into the error returned by Start for every
// requested sniffer mode whose capture subprocess failed to launch.
var ErrRadioUnavailable = errors.New("agent: radio unavailable for requested sniffer mode")

// ErrUnknownMode is returned for a positional sniffer mode that is not one
// of "btbr", "btle", "btle-adv".
var ErrUnknownMode = errors.New("agent: unknown sniffer mode")

// sniffer bundles the per-mode components the agent supervises.
type sniffer struct {
	mode       string
	supervisor *capture.Supervisor
	processor  *capture.Processor
}

// Agent is the central orchestrator of the edge telemetry collector. It
// starts and supervises the per-sniffer capture pipelines and the shared
// reporting components.
type Agent struct {
	cfg     *config.Config
	network *config.NetworkConfig
	logger  *slog.Logger
	hostMAC string
	modes   []string

	argvFor func(mode, pipePath string) []string

	sk           *sink.Sink
	durableQueue *queue.Queue
	antenna      *reporter.AntennaID
	scheduler    *reporter.Scheduler
	fpReporter   *reporter.Reporter
	locReporter  *reporter.LocationReporter
	locationSrc  reporter.CoordinateSource
	ownsSink     bool
	ownsQueue    bool

	btbrStore    *store.BTBRStore
	btleStore    *store.BTLEStore
	btleAdvStore *store.BTLEAdvStore

	sniffers []*sniffer

	startTime time.Time
	cancel    context.CancelFunc

	mu      sync.RWMutex
	running bool
}

// Option is a functional option for Agent construction.
type Option func(*Agent)

// WithSink overrides the HTTP sink. Primarily for tests; production callers
// should leave this unset so New constructs one from the logger.
func WithSink(sk *sink.Sink) Option {
	return func(a *Agent) { a.sk = sk }
}

// WithDurableQueue overrides the local durable queue. Primarily for tests.
func WithDurableQueue(q *queue.Queue) Option {
	return func(a *Agent) { a.durableQueue = q }
}

// WithHostMAC overrides the hardware MAC address posted during antenna
// bootstrap. Primarily for tests, where no real network interface is
// representative.
func WithHostMAC(mac string) Option {
	return func(a *Agent) { a.hostMAC = mac }
}

// WithLocationSource registers the coordinate source polled by the location
// reporter job. If unset, the agent runs without a location reporter.
func WithLocationSource(src reporter.CoordinateSource) Option {
	return func(a *Agent) { a.locationSrc = src }
}

// WithArgv overrides how a sniffer mode's capture subprocess is invoked.
// Primarily for tests, to substitute a fake capture tool for the real
// ubertooth-rx/ubertooth-btle binaries.
func WithArgv(f func(mode, pipePath string) []string) Option {
	return func(a *Agent) { a.argvFor = f }
}

// New creates an Agent for the given sniffer modes. modes must each be one
// of "btbr", "btle", "btle-adv"; New returns ErrUnknownMode wrapped with the
// offending mode otherwise.
func New(cfg *config.Config, network *config.NetworkConfig, logger *slog.Logger, modes []string, opts ...Option) (*Agent, error) {
	if logger == nil {
		logger = slog.Default()
	}

	for _, m := range modes {
		if _, ok := codec.RecordSize(m); !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownMode, m)
		}
	}

	a := &Agent{
		cfg:     cfg,
		network: network,
		logger:  logger,
		modes:   modes,
		argvFor: defaultArgv,
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.durableQueue == nil {
		q, err := queue.New(cfg.QueuePath)
		if err != nil {
			return nil, fmt.Errorf("agent: open durable queue: %w", err)
		}
		a.durableQueue = q
		a.ownsQueue = true
	}
	if a.sk == nil {
		dq := a.durableQueue
		a.sk = sink.New(logger, sink.WithPersistHook(func(req sink.Request) (func(), error) {
			persisted, err := dq.Enqueue(context.Background(), req)
			if err != nil {
				return nil, err
			}
			id := persisted.ID
			return func() { _ = dq.Ack(context.Background(), []string{id}) }, nil
		}))
		a.ownsSink = true
	}
	if a.hostMAC == "" {
		mac, err := hostHardwareMAC()
		if err != nil {
			return nil, fmt.Errorf("agent: determine host MAC: %w", err)
		}
		a.hostMAC = mac
	}

	a.antenna = reporter.NewAntennaID()

	for _, m := range modes {
		switch m {
		case "btbr":
			a.btbrStore = store.NewBTBRStore(cfg.SeenForSeconds)
		case "btle":
			a.btleStore = store.NewBTLEStore(cfg.SeenThreshold)
		case "btle-adv":
			a.btleAdvStore = store.NewBTLEAdvStore(cfg.SeenForSeconds)
		}
	}

	a.fpReporter = reporter.NewReporter(a.sk, network.BaseURL(), a.antenna, a.btbrStore, a.btleStore, a.btleAdvStore, logger)
	if a.locationSrc != nil {
		a.locReporter = reporter.NewLocationReporter(a.sk, network.BaseURL(), a.antenna, a.locationSrc, logger)
	}

	return a, nil
}

// defaultArgv maps a sniffer mode to the argv of the external capture tool
// that writes fixed-layout records to pipePath. The tools themselves are
// opaque per spec; only the pipe target matters to this agent.
func defaultArgv(mode, pipePath string) []string {
	switch mode {
	case "btbr":
		return []string{"ubertooth-rx", "-z", "-d", pipePath}
	case "btle":
		return []string{"ubertooth-btle", "-f", "-d", pipePath}
	case "btle-adv":
		return []string{"ubertooth-btle", "-a", "-d", pipePath}
	default:
		return nil
	}
}

// Start brings up the agent's components in dependency order: the shared
// sink and durable queue, the antenna bootstrap, the per-mode capture
// supervisors and processors, and finally the scheduled reporter jobs. If
// any requested sniffer mode's capture subprocess fails to launch, Start
// tears down everything it already brought up and returns an error wrapping
// ErrRadioUnavailable once per missing mode.
func (a *Agent) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("agent: already running")
	}
	a.running = true
	a.startTime = time.Now()
	a.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.logger.Info("starting agent",
		slog.Any("modes", a.modes),
		slog.String("base_url", a.network.BaseURL()),
		slog.String("log_level", a.cfg.LogLevel),
	)

	a.sk.Start(ctx)
	a.replayDurableQueue(ctx)

	if err := reporter.Bootstrap(ctx, a.sk, a.network.BaseURL(), a.hostMAC, a.antenna); err != nil {
		a.teardown()
		cancel()
		a.setRunning(false)
		return fmt.Errorf("agent: antenna bootstrap failed: %w", err)
	}

	if err := a.startSniffers(ctx); err != nil {
		a.teardown()
		cancel()
		a.setRunning(false)
		return err
	}

	sched, err := reporter.NewScheduler(a.logger)
	if err != nil {
		a.teardown()
		cancel()
		a.setRunning(false)
		return fmt.Errorf("agent: create scheduler: %w", err)
	}
	a.scheduler = sched

	reportInterval := time.Duration(a.cfg.ReportIntervalSeconds) * time.Second
	if err := a.scheduler.RegisterReporter(ctx, a.fpReporter, reportInterval); err != nil {
		a.teardown()
		cancel()
		a.setRunning(false)
		return fmt.Errorf("agent: register reporter job: %w", err)
	}
	if a.locReporter != nil {
		locInterval := time.Duration(a.cfg.LocationIntervalSeconds) * time.Second
		if err := a.scheduler.RegisterLocationReporter(ctx, a.locReporter, locInterval); err != nil {
			a.teardown()
			cancel()
			a.setRunning(false)
			return fmt.Errorf("agent: register location reporter job: %w", err)
		}
	}
	a.scheduler.Start()

	a.logger.Info("agent started")
	return nil
}

func (a *Agent) setRunning(v bool) {
	a.mu.Lock()
	a.running = v
	a.mu.Unlock()
}

// startSniffers launches one supervisor and one processor per configured
// sniffer mode. It stops any sniffer already started before returning an
// error.
func (a *Agent) startSniffers(ctx context.Context) error {
	var errs []error

	for _, mode := range a.modes {
		pipePath := filepath.Join(a.cfg.PipeDir, mode)

		sup := capture.NewSupervisor(mode, a.argvFor(mode, pipePath), a.logger)
		if err := sup.Start(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%w: %s: %v", ErrRadioUnavailable, mode, err))
			continue
		}

		recordSize, _ := codec.RecordSize(mode)
		proc := capture.NewProcessor(mode, pipePath, recordSize, a.handlerFor(mode), a.logger)
		if err := proc.Start(ctx); err != nil {
			sup.Stop()
			errs = append(errs, fmt.Errorf("%w: %s: %v", ErrRadioUnavailable, mode, err))
			continue
		}

		a.sniffers = append(a.sniffers, &sniffer{mode: mode, supervisor: sup, processor: proc})
	}

	if len(errs) > 0 {
		for _, s := range a.sniffers {
			s.processor.Stop()
			s.supervisor.Stop()
		}
		a.sniffers = nil
		return errors.Join(errs...)
	}
	return nil
}

// handlerFor returns the decode-and-ingest callback passed to a sniffer
// mode's Processor.
func (a *Agent) handlerFor(mode string) func([]byte) error {
	switch mode {
	case "btbr":
		return func(record []byte) error {
			pkt, err := codec.DecodeBTBR(record)
			if err != nil {
				return err
			}
			a.btbrStore.Ingest(pkt)
			return nil
		}
	case "btle":
		return func(record []byte) error {
			pkt, err := codec.DecodeBTLE(record)
			if err != nil {
				return err
			}
			a.btleStore.Ingest(pkt)
			return nil
		}
	case "btle-adv":
		return func(record []byte) error {
			pkt, err := codec.DecodeBTLEAdv(record)
			if err != nil {
				return err
			}
			a.btleAdvStore.Ingest(pkt)
			return nil
		}
	default:
		return func([]byte) error { return fmt.Errorf("agent: no handler for mode %q", mode) }
	}
}

// replayDurableQueue re-enqueues every row the durable queue has not yet
// acknowledged, so a restart after a crash redelivers reports that never
// reached the central API. Replayed rows are handed to the sink directly
// (EnqueueRaw), bypassing the persist hook, since they are already durably
// stored.
func (a *Agent) replayDurableQueue(ctx context.Context) {
	pending, err := a.durableQueue.Pending(ctx, 1<<20)
	if err != nil {
		a.logger.Warn("agent: failed to read pending durable-queue rows", slog.Any("error", err))
		return
	}
	for _, p := range pending {
		id := p.ID
		a.sk.EnqueueRaw(sink.Request{
			ID:     id,
			Method: p.Method,
			URL:    p.URL,
			Body:   p.Body,
			OnSuccess: func([]byte) {
				if err := a.durableQueue.Ack(ctx, []string{id}); err != nil {
					a.logger.Warn("agent: failed to ack durable queue row", slog.String("id", id), slog.Any("error", err))
				}
			},
		})
	}
	if len(pending) > 0 {
		a.logger.Info("agent: replayed pending reports from durable queue", slog.Int("count", len(pending)))
	}
}

// teardown stops every component already brought up, in reverse start
// order. It is safe to call on a partially-started agent.
func (a *Agent) teardown() {
	if a.scheduler != nil {
		_ = a.scheduler.Stop()
	}
	for _, s := range a.sniffers {
		s.processor.Stop()
		s.supervisor.Stop()
	}
	a.sniffers = nil
	if a.ownsSink {
		a.sk.Stop()
	}
}

// Stop signals all components to shut down and waits for internal
// goroutines to exit. It is safe to call Stop multiple times.
func (a *Agent) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	a.mu.Unlock()

	if a.scheduler != nil {
		_ = a.scheduler.Stop()
	}

	for _, s := range a.sniffers {
		s.processor.Stop()
		s.supervisor.Stop()
	}

	if a.cancel != nil {
		a.cancel()
	}

	if a.ownsSink {
		a.sk.Stop()
	}

	if a.ownsQueue {
		if err := a.durableQueue.Close(); err != nil {
			a.logger.Warn("agent: error closing durable queue", slog.Any("error", err))
		}
	}

	a.logger.Info("agent stopped")
}

// HealthStatus is the payload returned by the /healthz endpoint.
type HealthStatus struct {
	Status       string   `json:"status"`
	UptimeS      float64  `json:"uptime_s"`
	SinkDepth    int      `json:"sink_depth"`
	DurableDepth int      `json:"durable_queue_depth"`
	Sniffers     []string `json:"sniffers"`
}

// Health returns a snapshot of the current agent health state.
func (a *Agent) Health() HealthStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()

	h := HealthStatus{
		Status:   "ok",
		UptimeS:  time.Since(a.startTime).Seconds(),
		Sniffers: a.modes,
	}
	if a.sk != nil {
		h.SinkDepth = a.sk.Depth()
	}
	if a.durableQueue != nil {
		h.DurableDepth = a.durableQueue.Depth()
	}
	return h
}

// HealthzHandler is an http.HandlerFunc that responds with the agent's
// health status as a JSON object and HTTP 200.
func (a *Agent) HealthzHandler(w http.ResponseWriter, r *http.Request) {
	h := a.Health()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(h); err != nil {
		a.logger.Warn("healthz: failed to encode response", slog.Any("error", err))
	}
}

// hostHardwareMAC returns the hardware MAC address of the first network
// interface that has one, formatted as standard colon-hex. The interface's
// up/down state is not checked.
func hostHardwareMAC() (string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "", err
	}
	for _, iface := range ifaces {
		if len(iface.HardwareAddr) == 0 {
			continue
		}
		return iface.HardwareAddr.String(), nil
	}
	return "", fmt.Errorf("agent: no network interface with a hardware address found")
}
