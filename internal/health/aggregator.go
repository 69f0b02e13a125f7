package health

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Resanso/minerva-ericsson/apps/scadasim/internal/registry"
)

// ValueSource exposes the latest synthesized value per sensor.
type ValueSource interface {
	CurrentValue(sensorID string) (float64, bool)
}

// Report is the device status summary sent as the details of a device_status message.
type Report struct {
	DeviceID        string    `json:"device_id"`
	Status          Status    `json:"status"`
	SensorCount     int       `json:"sensor_count"`
	CriticalSensors int       `json:"critical_sensors"`
	WarningSensors  int       `json:"warning_sensors"`
	LastMaintenance time.Time `json:"last_maintenance"`
	UptimeHours     int       `json:"uptime_hours"`
}

// Aggregator derives device health from the current sensor values.
type Aggregator struct {
	registry    *registry.Registry
	values      ValueSource
	maintenance MaintenanceSource
	fallback    *StaticMaintenance
	logger      *zap.Logger
}

// Option customises the Aggregator.
type Option func(*Aggregator)

// WithMaintenanceSource sets the primary maintenance lookup, e.g. the MySQL repository.
func WithMaintenanceSource(src MaintenanceSource) Option {
	return func(a *Aggregator) {
		if src != nil {
			a.maintenance = src
		}
	}
}

// WithFallback replaces the static maintenance source used when no record is available.
func WithFallback(src *StaticMaintenance) Option {
	return func(a *Aggregator) {
		if src != nil {
			a.fallback = src
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Aggregator) {
		if l != nil {
			a.logger = l
		}
	}
}

// NewAggregator wires the registry and the value source.
func NewAggregator(reg *registry.Registry, values ValueSource, opts ...Option) *Aggregator {
	a := &Aggregator{
		registry: reg,
		values:   values,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.fallback == nil {
		a.fallback = NewStaticMaintenance(nil)
	}
	return a
}

// Evaluate classifies every sensor owned by deviceID and rolls the result up.
// Devices without sensors report normal with zero counts.
func (a *Aggregator) Evaluate(ctx context.Context, deviceID string) Report {
	sensors := a.registry.SensorsForDevice(deviceID)
	report := Report{
		DeviceID:    deviceID,
		Status:      Normal,
		SensorCount: len(sensors),
	}

	for _, def := range sensors {
		value, ok := a.values.CurrentValue(def.ID)
		if !ok {
			continue
		}
		switch Classify(def.Type, value) {
		case Critical:
			report.CriticalSensors++
		case Warning:
			report.WarningSensors++
		}
	}

	switch {
	case report.CriticalSensors > 0:
		report.Status = Critical
	case report.WarningSensors > 0:
		report.Status = Warning
	}

	m := a.lookupMaintenance(ctx, deviceID)
	report.LastMaintenance = m.LastMaintenance
	report.UptimeHours = m.UptimeHours
	return report
}

func (a *Aggregator) lookupMaintenance(ctx context.Context, deviceID string) Maintenance {
	if a.maintenance != nil {
		m, err := a.maintenance.Maintenance(ctx, deviceID)
		if err == nil {
			return m
		}
		a.logger.Warn("maintenance lookup failed, using static metadata",
			zap.String("device_id", deviceID), zap.Error(err))
	}
	m, _ := a.fallback.Maintenance(ctx, deviceID)
	return m
}
