package influxdb

import (
	"context"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"go.uber.org/zap"

	"github.com/Resanso/minerva-ericsson/apps/scadasim/internal/telemetry"
	"github.com/Resanso/minerva-ericsson/apps/scadasim/internal/transport"
)

const (
	SensorMeasurement = "sensor_data"
	StatusMeasurement = "device_status"
)

// PointWriter is the subset of api.WriteAPIBlocking the transport needs.
type PointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// Transport forwards telemetry messages as points to the InfluxDB a dashboard reads from.
type Transport struct {
	cfg    Config
	logger *zap.Logger
	dial   func(ctx context.Context, cfg Config) (PointWriter, func(), error)

	mu      sync.Mutex
	writer  PointWriter
	release func()
}

// NewTransport builds an unconnected InfluxDB transport.
func NewTransport(cfg Config, logger *zap.Logger) *Transport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transport{cfg: cfg, logger: logger, dial: dialClient}
}

func dialClient(ctx context.Context, cfg Config) (PointWriter, func(), error) {
	client, err := New(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return client.WriteAPI(), client.Close, nil
}

// Connect pings InfluxDB and binds the blocking write API.
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closeLocked()
	writer, release, err := t.dial(ctx, t.cfg)
	if err != nil {
		return err
	}
	t.writer = writer
	t.release = release
	t.logger.Info("connected to influxdb", zap.String("url", t.cfg.URL), zap.String("bucket", t.cfg.Bucket))
	return nil
}

// Send converts msg to a point and writes it synchronously.
func (t *Transport) Send(ctx context.Context, msg telemetry.Message) error {
	point, err := ToPoint(msg)
	if err != nil {
		return err
	}

	t.mu.Lock()
	writer := t.writer
	t.mu.Unlock()
	if writer == nil {
		return transport.ErrNotConnected
	}

	if err := writer.WritePoint(ctx, point); err != nil {
		return fmt.Errorf("write %s point: %w", msg.MessageType(), err)
	}
	return nil
}

// Close releases the client. Closing twice is a no-op.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeLocked()
	return nil
}

func (t *Transport) closeLocked() {
	if t.release != nil {
		t.release()
	}
	t.writer = nil
	t.release = nil
}

// ToPoint maps a telemetry message onto its measurement.
func ToPoint(msg telemetry.Message) (*write.Point, error) {
	switch m := msg.(type) {
	case telemetry.Reading:
		return influxdb2.NewPoint(
			SensorMeasurement,
			map[string]string{
				"sensor_id":   m.SensorID,
				"sensor_type": string(m.SensorType),
				"device_id":   m.DeviceID,
				"unit":        m.Unit,
				"quality":     m.Quality,
			},
			map[string]interface{}{
				"value": m.Value,
			},
			time.UnixMilli(m.Timestamp),
		), nil
	case telemetry.DeviceStatus:
		return influxdb2.NewPoint(
			StatusMeasurement,
			map[string]string{
				"device_id": m.DeviceID,
				"status":    string(m.Status),
			},
			map[string]interface{}{
				"severity":         m.Status.Severity(),
				"sensor_count":     m.Details.SensorCount,
				"critical_sensors": m.Details.CriticalSensors,
				"warning_sensors":  m.Details.WarningSensors,
				"uptime_hours":     m.Details.UptimeHours,
				"last_maintenance": m.Details.LastMaintenance.UTC().Format(time.RFC3339),
			},
			time.UnixMilli(m.Timestamp),
		), nil
	default:
		return nil, fmt.Errorf("%w: unsupported message %T", transport.ErrEncode, msg)
	}
}
