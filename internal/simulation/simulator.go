package simulation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Resanso/minerva-ericsson/apps/scadasim/internal/health"
	"github.com/Resanso/minerva-ericsson/apps/scadasim/internal/registry"
	"github.com/Resanso/minerva-ericsson/apps/scadasim/internal/telemetry"
	"github.com/Resanso/minerva-ericsson/apps/scadasim/internal/transport"
)

const (
	defaultInterval          = 1 * time.Second
	defaultStatusEvery       = 10
	defaultErrorPause        = 5 * time.Second
	defaultReconnectAttempts = 1
	defaultReconnectBackoff  = 1 * time.Second
)

var (
	// ErrConnect is returned by Run when the initial transport connection fails.
	ErrConnect = errors.New("connect transport")
	// ErrReconnect is returned by Run when a failed send could not be recovered.
	ErrReconnect = errors.New("reconnect transport")
	// ErrTransient marks a tick that failed for a reason other than delivery.
	ErrTransient = errors.New("transient simulation error")
	// ErrAlreadyRunning is returned when Run is called on a running simulator.
	ErrAlreadyRunning = errors.New("simulation already running")
)

// Observer receives counters from the simulation loop. *metrics.Recorder satisfies it.
type Observer interface {
	ReadingSent(sensorType string)
	StatusSent(deviceID, status string, severity int)
	Anomaly(kind string)
	SendFailed()
	Reconnect(ok bool)
	TransientError()
	Tick(tick int64)
}

type noopObserver struct{}

func (noopObserver) ReadingSent(string)             {}
func (noopObserver) StatusSent(string, string, int) {}
func (noopObserver) Anomaly(string)                 {}
func (noopObserver) SendFailed()                    {}
func (noopObserver) Reconnect(bool)                 {}
func (noopObserver) TransientError()                {}
func (noopObserver) Tick(int64)                     {}

// Stats summarises a run for the status surface.
type Stats struct {
	RunID        string    `json:"runId"`
	Running      bool      `json:"running"`
	Tick         int64     `json:"tick"`
	ReadingsSent int64     `json:"readingsSent"`
	StatusesSent int64     `json:"statusesSent"`
	Reconnects   int64     `json:"reconnects"`
	StartedAt    time.Time `json:"startedAt,omitempty"`
}

// Simulator drives the synthesizer and aggregator on a fixed cadence and hands every
// message to the transport.
type Simulator struct {
	transport transport.Transport
	registry  *registry.Registry
	synth     *Synthesizer
	health    *health.Aggregator
	readings  *health.Aggregator
	observer  Observer
	logger    *zap.Logger
	clock     func() time.Time

	interval          time.Duration
	statusEvery       int64
	tickLimit         int64
	errorPause        time.Duration
	reconnectAttempts int
	reconnectBackoff  time.Duration
	runID             string

	running  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}

	mu    sync.RWMutex
	stats Stats
}

// Option customizes Simulator creation.
type Option func(*Simulator)

// WithInterval overrides the default generation interval.
func WithInterval(interval time.Duration) Option {
	return func(s *Simulator) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

// WithStatusEvery sets how many ticks separate device status rounds.
func WithStatusEvery(ticks int64) Option {
	return func(s *Simulator) {
		if ticks > 0 {
			s.statusEvery = ticks
		}
	}
}

// WithTickLimit ends the run after n ticks. Zero means unbounded.
func WithTickLimit(n int64) Option {
	return func(s *Simulator) {
		if n >= 0 {
			s.tickLimit = n
		}
	}
}

// WithErrorPause sets the pause after a transient tick failure.
func WithErrorPause(d time.Duration) Option {
	return func(s *Simulator) {
		if d > 0 {
			s.errorPause = d
		}
	}
}

// WithReconnectPolicy bounds the reconnect attempts after a failed send. The wait before
// attempt n+1 is n times backoff.
func WithReconnectPolicy(attempts int, backoff time.Duration) Option {
	return func(s *Simulator) {
		if attempts > 0 {
			s.reconnectAttempts = attempts
		}
		if backoff >= 0 {
			s.reconnectBackoff = backoff
		}
	}
}

// WithClock overrides the wall clock used for message timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *Simulator) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithObserver attaches metrics.
func WithObserver(o Observer) Option {
	return func(s *Simulator) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Simulator) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithReadAggregator evaluates DeviceStatuses and DeviceStatus with agg instead of the
// loop's aggregator, so status reads do not consume the loop's seeded random draws.
func WithReadAggregator(agg *health.Aggregator) Option {
	return func(s *Simulator) {
		if agg != nil {
			s.readings = agg
		}
	}
}

// WithRunID tags Stats with an identifier for this run.
func WithRunID(id string) Option {
	return func(s *Simulator) {
		s.runID = id
	}
}

// New creates a new Simulator.
func New(tr transport.Transport, synth *Synthesizer, agg *health.Aggregator, opts ...Option) *Simulator {
	sim := &Simulator{
		transport:         tr,
		registry:          synth.Registry(),
		synth:             synth,
		health:            agg,
		observer:          noopObserver{},
		logger:            zap.NewNop(),
		clock:             time.Now,
		interval:          defaultInterval,
		statusEvery:       defaultStatusEvery,
		errorPause:        defaultErrorPause,
		reconnectAttempts: defaultReconnectAttempts,
		reconnectBackoff:  defaultReconnectBackoff,
		stopCh:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(sim)
	}
	if sim.readings == nil {
		sim.readings = agg
	}
	sim.stats.RunID = sim.runID
	return sim
}

type anomalyForwarder struct {
	observer Observer
}

func (f anomalyForwarder) OnAnomaly(ev AnomalyEvent) {
	f.observer.Anomaly(string(ev.Kind))
}

// AnomalyObserver adapts an Observer so it can be registered on a Synthesizer with
// WithAnomalyListener.
func AnomalyObserver(o Observer) AnomalyListener {
	return anomalyForwarder{observer: o}
}

// Run connects the transport and ticks until Stop, ctx cancellation, the tick limit or an
// unrecoverable delivery failure. The transport is closed on every exit path once
// connected. A stop request is honoured only between ticks.
func (s *Simulator) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer s.running.Store(false)

	if err := s.transport.Connect(ctx); err != nil {
		s.logger.Error("could not connect to listener", zap.Error(err))
		return fmt.Errorf("%w: %w", ErrConnect, err)
	}
	defer s.release()

	s.mu.Lock()
	s.stats.Running = true
	s.stats.StartedAt = s.clock()
	tick := s.stats.Tick
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.stats.Running = false
		s.mu.Unlock()
	}()

	s.logger.Info("sensor simulator running",
		zap.Duration("interval", s.interval),
		zap.Int("sensors", s.registry.Len()),
		zap.Int("devices", len(s.registry.Devices())),
		zap.Int64("status_every", s.statusEvery),
		zap.Int64("tick_limit", s.tickLimit))

	for {
		if s.tickLimit > 0 && tick >= s.tickLimit {
			s.logger.Info("tick limit reached", zap.Int64("ticks", tick))
			return nil
		}

		pause := s.interval
		err := s.step(ctx, tick)
		switch {
		case err == nil:
			tick++
			s.mu.Lock()
			s.stats.Tick = tick
			s.mu.Unlock()
			s.observer.Tick(tick)
		case errors.Is(err, ErrReconnect):
			s.logger.Error("reconnection failed, stopping simulation", zap.Error(err))
			return err
		default:
			// the same tick is retried after the pause
			s.observer.TransientError()
			s.logger.Warn("simulation error, pausing", zap.Int64("tick", tick), zap.Duration("pause", s.errorPause), zap.Error(err))
			pause = s.errorPause
		}

		if s.tickLimit > 0 && tick >= s.tickLimit {
			continue
		}
		if !s.wait(ctx, pause) {
			if ctx.Err() != nil {
				s.logger.Info("simulation interrupted", zap.Int64("tick", tick))
			} else {
				s.logger.Info("sensor simulator stopped", zap.Int64("tick", tick))
			}
			return nil
		}
	}
}

// Stop asks the loop to end after the current tick. A stopped simulator cannot be restarted.
func (s *Simulator) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// step generates every sensor once and, on status ticks, evaluates every device. When a
// step fails partway, Run retries the whole tick, so sensors already sent for it are
// generated and sent again.
func (s *Simulator) step(ctx context.Context, tick int64) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrTransient, r)
		}
	}()

	for _, def := range s.registry.Sensors() {
		value, err := s.synth.Generate(def.ID, tick)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrTransient, err)
		}
		sent, err := s.deliver(ctx, telemetry.NewReading(def, value, s.clock()))
		if err != nil {
			return err
		}
		if sent {
			s.observer.ReadingSent(string(def.Type))
			s.mu.Lock()
			s.stats.ReadingsSent++
			s.mu.Unlock()
		}
	}

	if tick%s.statusEvery != 0 {
		return nil
	}
	for _, device := range s.registry.Devices() {
		report := s.health.Evaluate(ctx, device)
		sent, err := s.deliver(ctx, telemetry.NewDeviceStatus(report, s.clock()))
		if err != nil {
			return err
		}
		if sent {
			s.observer.StatusSent(device, string(report.Status), report.Status.Severity())
			s.mu.Lock()
			s.stats.StatusesSent++
			s.mu.Unlock()
		}
	}
	return nil
}

// deliver sends msg and runs the reconnect policy on failure. A message whose send failed
// is dropped, not retried; sent reports whether it reached the transport.
func (s *Simulator) deliver(ctx context.Context, msg telemetry.Message) (sent bool, err error) {
	sendErr := s.transport.Send(ctx, msg)
	if sendErr == nil {
		return true, nil
	}
	if errors.Is(sendErr, transport.ErrEncode) {
		return false, fmt.Errorf("%w: %w", ErrTransient, sendErr)
	}

	s.observer.SendFailed()
	s.logger.Warn("send failed, attempting reconnection",
		zap.String("message_type", msg.MessageType()), zap.Error(sendErr))
	if err := s.reconnect(ctx); err != nil {
		return false, err
	}
	return false, nil
}

func (s *Simulator) reconnect(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= s.reconnectAttempts; attempt++ {
		_ = s.transport.Close()
		err := s.transport.Connect(ctx)
		s.observer.Reconnect(err == nil)
		if err == nil {
			s.mu.Lock()
			s.stats.Reconnects++
			s.mu.Unlock()
			s.logger.Info("reconnected to listener", zap.Int("attempt", attempt))
			return nil
		}
		lastErr = err
		s.logger.Warn("reconnect attempt failed",
			zap.Int("attempt", attempt), zap.Int("max_attempts", s.reconnectAttempts), zap.Error(err))

		if attempt < s.reconnectAttempts {
			if !sleepCtx(ctx, time.Duration(attempt)*s.reconnectBackoff) {
				return fmt.Errorf("%w: %w", ErrReconnect, ctx.Err())
			}
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrReconnect, s.reconnectAttempts, lastErr)
}

// wait blocks for d unless the context ends or Stop is called, in which case it
// returns false.
func (s *Simulator) wait(ctx context.Context, d time.Duration) bool {
	select {
	case <-s.stopCh:
		return false
	case <-ctx.Done():
		return false
	default:
	}
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-s.stopCh:
		return false
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (s *Simulator) release() {
	if err := s.transport.Close(); err != nil {
		s.logger.Warn("closing transport failed", zap.Error(err))
		return
	}
	s.logger.Info("transport released")
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Stats returns a copy of the run counters.
func (s *Simulator) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// Snapshot returns every sensor with its current state.
func (s *Simulator) Snapshot() []SensorSnapshot {
	return s.synth.Snapshot()
}

// DeviceStatuses evaluates every device against the current sensor values.
func (s *Simulator) DeviceStatuses(ctx context.Context) []health.Report {
	devices := s.registry.Devices()
	out := make([]health.Report, 0, len(devices))
	for _, d := range devices {
		out = append(out, s.readings.Evaluate(ctx, d))
	}
	return out
}

// DeviceStatus evaluates a single device. Unknown devices report false.
func (s *Simulator) DeviceStatus(ctx context.Context, deviceID string) (health.Report, bool) {
	if len(s.registry.SensorsForDevice(deviceID)) == 0 {
		return health.Report{}, false
	}
	return s.readings.Evaluate(ctx, deviceID), true
}

// Interval returns the configured simulation interval.
func (s *Simulator) Interval() time.Duration {
	return s.interval
}
