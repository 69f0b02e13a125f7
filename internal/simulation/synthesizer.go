package simulation

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Resanso/minerva-ericsson/apps/scadasim/internal/registry"
)

const (
	DefaultAnomalyProbability = 0.05

	noiseScale           = 0.3
	maxDriftScale        = 0.5
	trendFlipProbability = 0.01
	cycleAmplitudeScale  = 0.2
	cycleFrequency       = 0.01
	anomalyNoiseScale    = 0.8
)

// ErrUnknownSensor is returned by Generate for ids missing from the registry.
var ErrUnknownSensor = errors.New("unknown sensor")

// AnomalyKind names an injected fault pattern.
type AnomalyKind string

const (
	AnomalySpike AnomalyKind = "spike"
	AnomalyDrop  AnomalyKind = "drop"
	AnomalyNoise AnomalyKind = "noise"
)

var anomalyKinds = [...]AnomalyKind{AnomalySpike, AnomalyDrop, AnomalyNoise}

// AnomalyEvent describes one injected anomaly after clamping.
type AnomalyEvent struct {
	SensorID string
	DeviceID string
	Kind     AnomalyKind
	Value    float64
	Tick     int64
}

// AnomalyListener observes anomaly injection.
type AnomalyListener interface {
	OnAnomaly(ev AnomalyEvent)
}

// SensorState is the mutable part of a simulated sensor.
type SensorState struct {
	CurrentValue    float64 `json:"currentValue"`
	DriftOffset     float64 `json:"driftOffset"`
	TrendDirection  int     `json:"trendDirection"`
	LastAnomalyTick int64   `json:"lastAnomalyTick"`
}

// SensorSnapshot pairs a definition with a copy of its runtime state.
type SensorSnapshot struct {
	registry.Definition
	SensorState
}

// Synthesizer owns the runtime state of every registered sensor and produces the next
// value of each on demand.
type Synthesizer struct {
	registry           *registry.Registry
	states             map[string]*SensorState
	rng                *rand.Rand
	anomalyProbability float64
	listeners          []AnomalyListener
	logger             *zap.Logger
	mu                 sync.RWMutex
}

// SynthOption customises Synthesizer creation.
type SynthOption func(*Synthesizer)

// WithRand injects the random source. Fixing its seed makes runs reproducible.
func WithRand(rng *rand.Rand) SynthOption {
	return func(s *Synthesizer) {
		if rng != nil {
			s.rng = rng
		}
	}
}

// WithAnomalyProbability overrides the per-call anomaly chance. Values are clamped to [0, 1].
func WithAnomalyProbability(p float64) SynthOption {
	return func(s *Synthesizer) {
		s.anomalyProbability = math.Max(0, math.Min(1, p))
	}
}

// WithAnomalyListener subscribes l to anomaly events.
func WithAnomalyListener(l AnomalyListener) SynthOption {
	return func(s *Synthesizer) {
		if l != nil {
			s.listeners = append(s.listeners, l)
		}
	}
}

// WithSynthLogger sets the logger used for anomaly diagnostics.
func WithSynthLogger(l *zap.Logger) SynthOption {
	return func(s *Synthesizer) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSynthesizer creates runtime state for every sensor in reg. Each sensor starts at its
// base value with no drift and a random trend direction.
func NewSynthesizer(reg *registry.Registry, opts ...SynthOption) *Synthesizer {
	s := &Synthesizer{
		registry:           reg,
		states:             make(map[string]*SensorState, reg.Len()),
		rng:                rand.New(rand.NewSource(time.Now().UnixNano())),
		anomalyProbability: DefaultAnomalyProbability,
		logger:             zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, def := range reg.Sensors() {
		trend := 1
		if s.rng.Intn(2) == 0 {
			trend = -1
		}
		s.states[def.ID] = &SensorState{
			CurrentValue:   def.BaseValue,
			TrendDirection: trend,
		}
	}
	return s
}

// Registry returns the registry the synthesizer was built from.
func (s *Synthesizer) Registry() *registry.Registry {
	return s.registry
}

// Generate advances sensorID by one step at the given simulated tick and returns the new
// value rounded to two decimals. The stored value is the clamped, unrounded one.
func (s *Synthesizer) Generate(sensorID string, tick int64) (float64, error) {
	def, ok := s.registry.Sensor(sensorID)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownSensor, sensorID)
	}

	s.mu.Lock()
	state := s.states[sensorID]

	normal := s.rng.NormFloat64() * def.Variance * noiseScale

	maxDrift := def.Variance * maxDriftScale
	state.DriftOffset += s.rng.NormFloat64() * def.DriftRate * float64(state.TrendDirection)
	state.DriftOffset = clamp(state.DriftOffset, -maxDrift, maxDrift)

	if s.rng.Float64() < trendFlipProbability {
		state.TrendDirection = -state.TrendDirection
	}

	cycle := def.Variance * cycleAmplitudeScale * math.Sin(float64(tick)*cycleFrequency)
	value := def.BaseValue + normal + state.DriftOffset + cycle

	var anomaly *AnomalyEvent
	if s.rng.Float64() < s.anomalyProbability {
		kind := anomalyKinds[s.rng.Intn(len(anomalyKinds))]
		switch kind {
		case AnomalySpike:
			value += def.Variance * uniform(s.rng, 1.5, 3.0)
		case AnomalyDrop:
			value -= def.Variance * uniform(s.rng, 1.0, 2.0)
		case AnomalyNoise:
			value += s.rng.NormFloat64() * def.Variance * anomalyNoiseScale
		}
		state.LastAnomalyTick = tick
		anomaly = &AnomalyEvent{SensorID: def.ID, DeviceID: def.DeviceID, Kind: kind, Tick: tick}
	}

	// clamp last so anomalies can never escape the sensor range
	value = clamp(value, def.MinValue, def.MaxValue)
	state.CurrentValue = value
	s.mu.Unlock()

	rounded := clamp(round2(value), def.MinValue, def.MaxValue)
	if anomaly != nil {
		anomaly.Value = rounded
		s.logger.Info("anomaly generated",
			zap.String("sensor_id", anomaly.SensorID),
			zap.String("kind", string(anomaly.Kind)),
			zap.Float64("value", anomaly.Value),
			zap.Int64("tick", tick))
		for _, l := range s.listeners {
			l.OnAnomaly(*anomaly)
		}
	}
	return rounded, nil
}

// CurrentValue returns the last stored value of a sensor.
func (s *Synthesizer) CurrentValue(sensorID string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[sensorID]
	if !ok {
		return 0, false
	}
	return state.CurrentValue, true
}

// State returns a copy of a sensor's runtime state.
func (s *Synthesizer) State(sensorID string) (SensorState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[sensorID]
	if !ok {
		return SensorState{}, false
	}
	return *state, true
}

// Snapshot returns every sensor with a copy of its state, in registry order.
func (s *Synthesizer) Snapshot() []SensorSnapshot {
	defs := s.registry.Sensors()
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]SensorSnapshot, len(defs))
	for i, def := range defs {
		out[i] = SensorSnapshot{Definition: def, SensorState: *s.states[def.ID]}
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
