// Package metrics exports CWMP session and RPC counters to Prometheus.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/catawampus/cwmpd/std/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const handlerTimeout = 10 * time.Second

type Metrics struct {
	reg *prometheus.Registry

	sessions      *prometheus.CounterVec
	rpcs          *prometheus.CounterVec
	pings         *prometheus.CounterVec
	notifications *prometheus.CounterVec
	retryCount    prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		sessions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cwmp_sessions_total",
			Help: "Number of CWMP sessions by result.",
		}, []string{"result"}),
		rpcs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cwmp_rpcs_total",
			Help: "Number of ACS requests by method and fault code.",
		}, []string{"method", "code"}),
		pings: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cwmp_connection_requests_total",
			Help: "Number of connection requests by result.",
		}, []string{"result"}),
		notifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cwmp_value_changes_total",
			Help: "Number of detected parameter changes by notification level.",
		}, []string{"level"}),
		retryCount: f.NewGauge(prometheus.GaugeOpts{
			Name: "cwmp_retry_count",
			Help: "Consecutive failed session attempts.",
		}),
	}
}

func (m *Metrics) String() string {
	return "metrics"
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

func (m *Metrics) Session(result string) {
	if m != nil {
		m.sessions.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) RPC(method string, code int) {
	if m != nil {
		m.rpcs.WithLabelValues(method, strconv.Itoa(code)).Inc()
	}
}

func (m *Metrics) Ping(result string) {
	if m != nil {
		m.pings.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) ValueChange(level string) {
	if m != nil {
		m.notifications.WithLabelValues(level).Inc()
	}
}

func (m *Metrics) RetryCount(n int) {
	if m != nil {
		m.retryCount.Set(float64(n))
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.InstrumentMetricHandler(m.reg,
		promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Timeout: handlerTimeout}))
}

// Serve exports /metrics on bind until ctx is done.
func (m *Metrics) Serve(ctx context.Context, bind string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	server := &http.Server{Addr: bind, Handler: mux}

	go func() {
		<-ctx.Done()
		server.Close()
	}()

	log.Info(m, "Exporting prometheus metrics", "addr", bind)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
