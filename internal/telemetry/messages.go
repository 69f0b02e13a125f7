package telemetry

import (
	"encoding/json"
	"time"

	"github.com/Resanso/minerva-ericsson/apps/scadasim/internal/health"
	"github.com/Resanso/minerva-ericsson/apps/scadasim/internal/registry"
)

const (
	TypeSensorData   = "sensor_data"
	TypeDeviceStatus = "device_status"

	// QualityGood is the only quality flag the generator emits.
	QualityGood = "good"
)

// Message is a record accepted by a transport.
type Message interface {
	MessageType() string
}

// Reading is the sensor_data message.
type Reading struct {
	Type       string              `json:"type"`
	SensorID   string              `json:"sensorId"`
	SensorType registry.SensorType `json:"sensorType"`
	DeviceID   string              `json:"deviceId"`
	Value      float64             `json:"value"`
	Unit       string              `json:"unit"`
	Quality    string              `json:"quality"`
	Timestamp  int64               `json:"timestamp"`
}

// NewReading builds a sensor_data message for def stamped at the given time.
func NewReading(def registry.Definition, value float64, at time.Time) Reading {
	return Reading{
		Type:       TypeSensorData,
		SensorID:   def.ID,
		SensorType: def.Type,
		DeviceID:   def.DeviceID,
		Value:      value,
		Unit:       def.Unit,
		Quality:    QualityGood,
		Timestamp:  at.UnixMilli(),
	}
}

func (Reading) MessageType() string { return TypeSensorData }

// DeviceStatus is the device_status message.
type DeviceStatus struct {
	Type      string        `json:"type"`
	DeviceID  string        `json:"deviceId"`
	Status    health.Status `json:"status"`
	Details   health.Report `json:"details"`
	Timestamp int64         `json:"timestamp"`
}

// NewDeviceStatus wraps an aggregator report.
func NewDeviceStatus(report health.Report, at time.Time) DeviceStatus {
	return DeviceStatus{
		Type:      TypeDeviceStatus,
		DeviceID:  report.DeviceID,
		Status:    report.Status,
		Details:   report,
		Timestamp: at.UnixMilli(),
	}
}

func (DeviceStatus) MessageType() string { return TypeDeviceStatus }

// Encode serializes a message to its JSON text form.
func Encode(m Message) ([]byte, error) {
	return json.Marshal(m)
}
