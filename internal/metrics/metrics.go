package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder holds the simulator's Prometheus collectors.
type Recorder struct {
	readingsSent    *prometheus.CounterVec
	statusesSent    *prometheus.CounterVec
	anomalies       *prometheus.CounterVec
	sendFailures    prometheus.Counter
	reconnects      *prometheus.CounterVec
	transientErrors prometheus.Counter
	deviceStatus    *prometheus.GaugeVec
	tick            prometheus.Gauge

	gatherer prometheus.Gatherer
}

// New registers the collectors on a fresh registry so parallel simulations in one
// process do not collide.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	return NewWithRegistry(reg, reg)
}

// NewWithRegistry registers the collectors on reg and serves them from gatherer.
func NewWithRegistry(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Recorder {
	r := &Recorder{
		readingsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scadasim_readings_sent_total",
			Help: "Sensor readings handed to the transport.",
		}, []string{"sensor_type"}),
		statusesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scadasim_device_status_sent_total",
			Help: "Device status reports handed to the transport, by status.",
		}, []string{"status"}),
		anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scadasim_anomalies_total",
			Help: "Injected anomalies by kind.",
		}, []string{"kind"}),
		sendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scadasim_send_failures_total",
			Help: "Transport send calls that returned an error.",
		}),
		reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scadasim_reconnects_total",
			Help: "Reconnect attempts by result.",
		}, []string{"result"}),
		transientErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scadasim_transient_errors_total",
			Help: "Ticks aborted by a recoverable error.",
		}),
		deviceStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "scadasim_device_status",
			Help: "Last evaluated device status (0 normal, 1 warning, 2 critical).",
		}, []string{"device_id"}),
		tick: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scadasim_tick",
			Help: "Current simulated tick.",
		}),
		gatherer: gatherer,
	}

	reg.MustRegister(
		r.readingsSent,
		r.statusesSent,
		r.anomalies,
		r.sendFailures,
		r.reconnects,
		r.transientErrors,
		r.deviceStatus,
		r.tick,
	)
	return r
}

func (r *Recorder) ReadingSent(sensorType string) {
	r.readingsSent.WithLabelValues(sensorType).Inc()
}

// StatusSent records a device status message and updates the per-device gauge.
func (r *Recorder) StatusSent(deviceID, status string, severity int) {
	r.statusesSent.WithLabelValues(status).Inc()
	r.deviceStatus.WithLabelValues(deviceID).Set(float64(severity))
}

func (r *Recorder) Anomaly(kind string) {
	r.anomalies.WithLabelValues(kind).Inc()
}

func (r *Recorder) SendFailed() {
	r.sendFailures.Inc()
}

func (r *Recorder) Reconnect(ok bool) {
	result := "failure"
	if ok {
		result = "success"
	}
	r.reconnects.WithLabelValues(result).Inc()
}

func (r *Recorder) TransientError() {
	r.transientErrors.Inc()
}

func (r *Recorder) Tick(tick int64) {
	r.tick.Set(float64(tick))
}

// Handler serves the registered collectors in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}
