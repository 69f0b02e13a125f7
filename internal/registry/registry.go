package registry

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// SensorType is the physical quantity a sensor measures.
type SensorType string

const (
	Temperature SensorType = "temperature"
	Pressure    SensorType = "pressure"
	Flow        SensorType = "flow"
	Vibration   SensorType = "vibration"
)

// Valid reports whether t is one of the known sensor types.
func (t SensorType) Valid() bool {
	switch t {
	case Temperature, Pressure, Flow, Vibration:
		return true
	}
	return false
}

// ErrInvalidDefinition is returned when a sensor definition fails validation.
var ErrInvalidDefinition = errors.New("invalid sensor definition")

// Definition is the static configuration of one simulated sensor.
type Definition struct {
	ID        string     `yaml:"id" json:"id"`
	Type      SensorType `yaml:"type" json:"type"`
	DeviceID  string     `yaml:"device_id" json:"deviceId"`
	BaseValue float64    `yaml:"base_value" json:"baseValue"`
	Variance  float64    `yaml:"variance" json:"variance"`
	Unit      string     `yaml:"unit" json:"unit"`
	MinValue  float64    `yaml:"min_value" json:"minValue"`
	MaxValue  float64    `yaml:"max_value" json:"maxValue"`
	DriftRate float64    `yaml:"drift_rate" json:"driftRate"`
}

func (d Definition) validate() error {
	for _, f := range []struct {
		name  string
		value float64
	}{
		{"base_value", d.BaseValue},
		{"variance", d.Variance},
		{"min_value", d.MinValue},
		{"max_value", d.MaxValue},
		{"drift_rate", d.DriftRate},
	} {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return fmt.Errorf("%w: sensor %s %s must be a finite number", ErrInvalidDefinition, d.ID, f.name)
		}
	}

	switch {
	case strings.TrimSpace(d.ID) == "":
		return fmt.Errorf("%w: id is required", ErrInvalidDefinition)
	case !d.Type.Valid():
		return fmt.Errorf("%w: sensor %s has unknown type %q", ErrInvalidDefinition, d.ID, d.Type)
	case strings.TrimSpace(d.DeviceID) == "":
		return fmt.Errorf("%w: sensor %s has no device_id", ErrInvalidDefinition, d.ID)
	case d.MinValue > d.MaxValue:
		return fmt.Errorf("%w: sensor %s min_value %.2f exceeds max_value %.2f", ErrInvalidDefinition, d.ID, d.MinValue, d.MaxValue)
	case d.Variance < 0:
		return fmt.Errorf("%w: sensor %s variance must not be negative", ErrInvalidDefinition, d.ID)
	case d.DriftRate < 0:
		return fmt.Errorf("%w: sensor %s drift_rate must not be negative", ErrInvalidDefinition, d.ID)
	}
	return nil
}

// Registry is an immutable, ordered set of sensor definitions grouped by device.
type Registry struct {
	sensors       []Definition
	index         map[string]int
	deviceOrder   []string
	deviceSensors map[string][]string
}

// New validates the definitions and builds a Registry preserving their order.
func New(defs []Definition) (*Registry, error) {
	r := &Registry{
		sensors:       make([]Definition, 0, len(defs)),
		index:         make(map[string]int, len(defs)),
		deviceSensors: make(map[string][]string),
	}
	for _, def := range defs {
		if err := def.validate(); err != nil {
			return nil, err
		}
		if _, exists := r.index[def.ID]; exists {
			return nil, fmt.Errorf("%w: duplicate sensor id %s", ErrInvalidDefinition, def.ID)
		}
		r.index[def.ID] = len(r.sensors)
		r.sensors = append(r.sensors, def)

		if _, exists := r.deviceSensors[def.DeviceID]; !exists {
			r.deviceOrder = append(r.deviceOrder, def.DeviceID)
		}
		r.deviceSensors[def.DeviceID] = append(r.deviceSensors[def.DeviceID], def.ID)
	}
	return r, nil
}

// Sensors returns a copy of all definitions in registration order.
func (r *Registry) Sensors() []Definition {
	out := make([]Definition, len(r.sensors))
	copy(out, r.sensors)
	return out
}

// Sensor looks up a definition by id.
func (r *Registry) Sensor(id string) (Definition, bool) {
	i, ok := r.index[id]
	if !ok {
		return Definition{}, false
	}
	return r.sensors[i], true
}

// Devices returns the distinct device ids in first-seen order.
func (r *Registry) Devices() []string {
	out := make([]string, len(r.deviceOrder))
	copy(out, r.deviceOrder)
	return out
}

// SensorsForDevice returns the definitions owned by deviceID. Unknown devices yield nil.
func (r *Registry) SensorsForDevice(deviceID string) []Definition {
	ids := r.deviceSensors[deviceID]
	if len(ids) == 0 {
		return nil
	}
	out := make([]Definition, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.sensors[r.index[id]])
	}
	return out
}

// Len returns the number of registered sensors.
func (r *Registry) Len() int {
	return len(r.sensors)
}
