// Package metrics exports transaction and device metrics to prometheus.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/robotalks/roboclaw.go/pkg/l0/comm"
	"github.com/robotalks/roboclaw.go/pkg/roboclaw"
)

// Namespace prefixes all metric names.
const Namespace = "roboclaw"

// Transaction results.
const (
	ResultOK      = "ok"
	ResultTimeout = "timeout"
	ResultCRC     = "crc_mismatch"
	ResultAck     = "invalid_ack"
	ResultWidth   = "invalid_width"
	ResultIO      = "io_error"
	ResultError   = "error"
)

// Result classifies a transaction error.
func Result(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, comm.ErrTimeout):
		return ResultTimeout
	case errors.Is(err, comm.ErrCRCMismatch):
		return ResultCRC
	case errors.Is(err, comm.ErrInvalidAck):
		return ResultAck
	case errors.Is(err, comm.ErrInvalidFieldWidth):
		return ResultWidth
	}
	var se *comm.StreamError
	if errors.As(err, &se) {
		return ResultIO
	}
	return ResultError
}

// Metrics implements comm.Observer and holds device gauges.
type Metrics struct {
	registry *prometheus.Registry

	transactions *prometheus.CounterVec
	attempts     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	position     *prometheus.GaugeVec
	battery      *prometheus.GaugeVec
	temperature  prometheus.Gauge
}

// New creates Metrics registered on a new registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		transactions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "transactions_total",
				Help:      "Completed transactions.",
			},
			[]string{"kind", "command", "result"},
		),
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "attempts_total",
				Help:      "Transaction attempts including retries.",
			},
			[]string{"kind"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "transaction_duration_seconds",
				Help:      "Transaction duration in seconds.",
				Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"kind"},
		),
		position: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "encoder_position",
				Help:      "Cumulative encoder position.",
			},
			[]string{"motor"},
		),
		battery: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "battery_volts",
				Help:      "Battery voltage.",
			},
			[]string{"battery"},
		),
		temperature: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "temperature_celsius",
				Help:      "Board temperature.",
			},
		),
	}
	m.registry.MustRegister(m.transactions, m.attempts, m.duration,
		m.position, m.battery, m.temperature)
	return m
}

// Registry returns the registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the HTTP handler exposing the metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// AttemptStarted implements comm.Observer.
func (m *Metrics) AttemptStarted(kind comm.Kind, command byte, attempt int) {
	m.attempts.WithLabelValues(string(kind)).Inc()
}

// TransactionDone implements comm.Observer.
func (m *Metrics) TransactionDone(kind comm.Kind, command byte, attempts int, elapsed time.Duration, err error) {
	m.transactions.WithLabelValues(string(kind), roboclaw.CommandName(command), Result(err)).Inc()
	m.duration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
}

// SetPositions records encoder positions.
func (m *Metrics) SetPositions(p roboclaw.Positions) {
	m.position.WithLabelValues(roboclaw.M1.String()).Set(float64(p.M1))
	m.position.WithLabelValues(roboclaw.M2.String()).Set(float64(p.M2))
}

// SetBattery records a battery voltage in 0.1V.
func (m *Metrics) SetBattery(battery string, tenths uint16) {
	m.battery.WithLabelValues(battery).Set(float64(tenths) / 10)
}

// SetTemperature records the temperature in 0.1°C.
func (m *Metrics) SetTemperature(tenths uint16) {
	m.temperature.Set(float64(tenths) / 10)
}

// Server serves the metrics over HTTP.
type Server struct {
	http.Server
}

// NewServer creates a Server listening on addr with /metrics.
func (m *Metrics) NewServer(addr string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok\n"))
	})
	return &Server{Server: http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}}
}
