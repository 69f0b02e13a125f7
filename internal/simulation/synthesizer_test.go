package simulation

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/Resanso/minerva-ericsson/apps/scadasim/internal/registry"
)

type recordingListener struct {
	events []AnomalyEvent
}

func (r *recordingListener) OnAnomaly(ev AnomalyEvent) {
	r.events = append(r.events, ev)
}

func singleSensorRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.New([]registry.Definition{
		registry.NewDefinition("t1", registry.Temperature, "d1", 65, 15, "celsius", 20, 120, 0.1),
	})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return reg
}

func TestNewSynthesizerInitialState(t *testing.T) {
	reg := registry.Default()
	synth := NewSynthesizer(reg, WithRand(rand.New(rand.NewSource(1))))

	for _, def := range reg.Sensors() {
		state, ok := synth.State(def.ID)
		if !ok {
			t.Fatalf("missing state for %s", def.ID)
		}
		if state.CurrentValue != def.BaseValue {
			t.Fatalf("%s starts at %.2f, want base %.2f", def.ID, state.CurrentValue, def.BaseValue)
		}
		if state.DriftOffset != 0 {
			t.Fatalf("%s starts with drift %.2f", def.ID, state.DriftOffset)
		}
		if state.TrendDirection != 1 && state.TrendDirection != -1 {
			t.Fatalf("%s trend direction %d", def.ID, state.TrendDirection)
		}
	}
}

func TestGenerateStaysInRange(t *testing.T) {
	for _, p := range []float64{DefaultAnomalyProbability, 1} {
		reg := registry.Default()
		synth := NewSynthesizer(reg,
			WithRand(rand.New(rand.NewSource(99))),
			WithAnomalyProbability(p))

		for tick := int64(0); tick < 5000; tick++ {
			for _, def := range reg.Sensors() {
				v, err := synth.Generate(def.ID, tick)
				if err != nil {
					t.Fatalf("generate: %v", err)
				}
				if v < def.MinValue || v > def.MaxValue {
					t.Fatalf("p=%.2f tick=%d %s value %.2f outside [%.2f, %.2f]",
						p, tick, def.ID, v, def.MinValue, def.MaxValue)
				}
				stored, _ := synth.CurrentValue(def.ID)
				if stored < def.MinValue || stored > def.MaxValue {
					t.Fatalf("stored value %.4f for %s outside range", stored, def.ID)
				}
			}
		}
	}
}

func TestGenerateClampsSpikes(t *testing.T) {
	reg, err := registry.New([]registry.Definition{
		registry.NewDefinition("narrow", registry.Vibration, "d1", 5, 4, "mm/s", 4, 6, 0),
	})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	synth := NewSynthesizer(reg, WithRand(rand.New(rand.NewSource(3))), WithAnomalyProbability(1))

	hitEdge := false
	for tick := int64(0); tick < 500; tick++ {
		v, _ := synth.Generate("narrow", tick)
		if v < 4 || v > 6 {
			t.Fatalf("value %.2f escaped [4, 6]", v)
		}
		if v == 4 || v == 6 {
			hitEdge = true
		}
	}
	if !hitEdge {
		t.Fatal("expected anomalies of magnitude 1.5-3x variance to be clamped at a bound")
	}
}

func TestDriftStaysBounded(t *testing.T) {
	reg := registry.Default()
	synth := NewSynthesizer(reg, WithRand(rand.New(rand.NewSource(5))))

	for tick := int64(0); tick < 20000; tick++ {
		for _, def := range reg.Sensors() {
			if _, err := synth.Generate(def.ID, tick); err != nil {
				t.Fatalf("generate: %v", err)
			}
			state, _ := synth.State(def.ID)
			if math.Abs(state.DriftOffset) > def.Variance*0.5 {
				t.Fatalf("tick=%d %s drift %.4f exceeds %.4f", tick, def.ID, state.DriftOffset, def.Variance*0.5)
			}
		}
	}
}

func TestNoUnboundedGrowthWithoutAnomalies(t *testing.T) {
	reg := singleSensorRegistry(t)
	def, _ := reg.Sensor("t1")
	synth := NewSynthesizer(reg, WithRand(rand.New(rand.NewSource(11))), WithAnomalyProbability(0))

	// noise sigma is 0.3*variance and drift is capped at 0.5*variance; six sigma of noise
	// plus the drift cap bounds every sample.
	limit := def.Variance*0.5 + 6*def.Variance*0.3
	var sum float64
	const n = 10000
	for i := 0; i < n; i++ {
		v, err := synth.Generate("t1", 0)
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if math.Abs(v-def.BaseValue) > limit {
			t.Fatalf("call %d value %.2f deviates more than %.2f from base", i, v, limit)
		}
		sum += v
	}
	mean := sum / n
	if math.Abs(mean-def.BaseValue) > def.Variance*0.5+0.5 {
		t.Fatalf("mean %.2f drifted away from base %.2f", mean, def.BaseValue)
	}
}

func TestGenerateDeterministicUnderSeed(t *testing.T) {
	run := func() []float64 {
		reg := singleSensorRegistry(t)
		synth := NewSynthesizer(reg, WithRand(rand.New(rand.NewSource(2024))), WithAnomalyProbability(0))
		out := make([]float64, 0, 1000)
		for tick := int64(0); tick < 1000; tick++ {
			v, err := synth.Generate("t1", tick)
			if err != nil {
				t.Fatalf("generate: %v", err)
			}
			out = append(out, v)
		}
		return out
	}

	first, second := run(), run()
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("runs diverge at tick %d: %.2f vs %.2f", i, first[i], second[i])
		}
	}
}

func TestGenerateRoundsToTwoDecimals(t *testing.T) {
	synth := NewSynthesizer(registry.Default(), WithRand(rand.New(rand.NewSource(8))))
	for tick := int64(0); tick < 200; tick++ {
		v, _ := synth.Generate("vessel_001_pressure", tick)
		if scaled := v * 100; math.Abs(scaled-math.Round(scaled)) > 1e-6 {
			t.Fatalf("value %v has more than two decimals", v)
		}
	}
}

func TestGenerateUnknownSensor(t *testing.T) {
	synth := NewSynthesizer(registry.Default())
	if _, err := synth.Generate("missing", 0); !errors.Is(err, ErrUnknownSensor) {
		t.Fatalf("expected ErrUnknownSensor, got %v", err)
	}
	if _, ok := synth.CurrentValue("missing"); ok {
		t.Fatal("expected no current value for missing sensor")
	}
}

func TestAnomalyEvents(t *testing.T) {
	reg := singleSensorRegistry(t)
	listener := &recordingListener{}
	synth := NewSynthesizer(reg,
		WithRand(rand.New(rand.NewSource(17))),
		WithAnomalyProbability(1),
		WithAnomalyListener(listener))

	const ticks = 300
	for tick := int64(1); tick <= ticks; tick++ {
		v, _ := synth.Generate("t1", tick)
		last := listener.events[len(listener.events)-1]
		if last.Tick != tick || last.Value != v || last.SensorID != "t1" || last.DeviceID != "d1" {
			t.Fatalf("unexpected event %+v for tick %d value %.2f", last, tick, v)
		}
	}
	if len(listener.events) != ticks {
		t.Fatalf("expected %d anomaly events, got %d", ticks, len(listener.events))
	}

	seen := map[AnomalyKind]int{}
	for _, ev := range listener.events {
		seen[ev.Kind]++
	}
	for _, kind := range anomalyKinds {
		if seen[kind] == 0 {
			t.Fatalf("anomaly kind %s never chosen in %d draws", kind, ticks)
		}
	}

	state, _ := synth.State("t1")
	if state.LastAnomalyTick != ticks {
		t.Fatalf("last anomaly tick = %d, want %d", state.LastAnomalyTick, ticks)
	}
}

func TestNoAnomaliesWhenDisabled(t *testing.T) {
	listener := &recordingListener{}
	synth := NewSynthesizer(registry.Default(),
		WithRand(rand.New(rand.NewSource(4))),
		WithAnomalyProbability(0),
		WithAnomalyListener(listener))
	for tick := int64(0); tick < 1000; tick++ {
		for _, def := range synth.Registry().Sensors() {
			_, _ = synth.Generate(def.ID, tick)
		}
	}
	if len(listener.events) != 0 {
		t.Fatalf("expected no anomalies, got %d", len(listener.events))
	}
}

func TestSnapshotOrderAndCopy(t *testing.T) {
	reg := registry.Default()
	synth := NewSynthesizer(reg, WithRand(rand.New(rand.NewSource(1))))
	snap := synth.Snapshot()
	if len(snap) != reg.Len() {
		t.Fatalf("snapshot has %d sensors, want %d", len(snap), reg.Len())
	}
	for i, def := range reg.Sensors() {
		if snap[i].ID != def.ID {
			t.Fatalf("snapshot order mismatch at %d: %s vs %s", i, snap[i].ID, def.ID)
		}
	}
	snap[0].CurrentValue = -100
	if v, _ := synth.CurrentValue(snap[0].ID); v == -100 {
		t.Fatal("snapshot shares state with the synthesizer")
	}
}
