package metrics

import (
    "fmt"
    "net/http"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promhttp"

    "github.com/rudilee/OrangeServer/pkg/logger"
)

type PrometheusMetrics struct {
    counters   map[string]*prometheus.CounterVec
    histograms map[string]*prometheus.HistogramVec
    gauges     map[string]*prometheus.GaugeVec
}

func NewPrometheusMetrics() *PrometheusMetrics {
    pm := &PrometheusMetrics{
        counters:   make(map[string]*prometheus.CounterVec),
        histograms: make(map[string]*prometheus.HistogramVec),
        gauges:     make(map[string]*prometheus.GaugeVec),
    }

    pm.registerMetrics()

    return pm
}

func (pm *PrometheusMetrics) registerMetrics() {
    // Counters
    pm.counters["orange_logins"] = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Name: "orange_logins_total",
            Help: "Total successful agent logins",
        },
        []string{"level"},
    )

    pm.counters["orange_auth_failures"] = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Name: "orange_auth_failures_total",
            Help: "Total rejected authentication attempts",
        },
        []string{"reason"},
    )

    pm.counters["orange_heartbeat_timeouts"] = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Name: "orange_heartbeat_timeouts_total",
            Help: "Total sessions reaped by the heartbeat watchdog",
        },
        []string{},
    )

    pm.counters["orange_status_broadcasts"] = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Name: "orange_status_broadcasts_total",
            Help: "Total agent status frames fanned out to group members",
        },
        []string{},
    )

    pm.counters["ami_actions"] = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Name: "ami_actions_total",
            Help: "Total AMI actions sent",
        },
        []string{"action", "status"},
    )

    pm.counters["ami_events"] = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Name: "ami_events_total",
            Help: "Total AMI events received",
        },
        []string{"event"},
    )

    pm.counters["journal_errors"] = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Name: "journal_errors_total",
            Help: "Total failed session/status journal writes",
        },
        []string{},
    )

    // Histograms
    pm.histograms["orange_session_duration"] = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{
            Name:    "orange_session_duration_seconds",
            Help:    "Agent session lifetime in seconds",
            Buckets: []float64{60, 300, 900, 1800, 3600, 7200, 14400, 28800},
        },
        []string{},
    )

    pm.histograms["ami_action_duration"] = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{
            Name:    "ami_action_duration_seconds",
            Help:    "AMI action round-trip time",
            Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5},
        },
        []string{"action"},
    )

    // Gauges
    pm.gauges["orange_sessions_active"] = prometheus.NewGaugeVec(
        prometheus.GaugeOpts{
            Name: "orange_sessions_active",
            Help: "Current connected desktop sessions",
        },
        []string{},
    )

    pm.gauges["orange_agents_logged_in"] = prometheus.NewGaugeVec(
        prometheus.GaugeOpts{
            Name: "orange_agents_logged_in",
            Help: "Current authenticated agents",
        },
        []string{},
    )

    pm.gauges["ami_connected"] = prometheus.NewGaugeVec(
        prometheus.GaugeOpts{
            Name: "ami_connected",
            Help: "Whether the Asterisk manager link is up",
        },
        []string{},
    )

    for _, counter := range pm.counters {
        prometheus.MustRegister(counter)
    }
    for _, histogram := range pm.histograms {
        prometheus.MustRegister(histogram)
    }
    for _, gauge := range pm.gauges {
        prometheus.MustRegister(gauge)
    }
}

func (pm *PrometheusMetrics) IncrementCounter(name string, labels map[string]string) {
    if counter, exists := pm.counters[name]; exists {
        if labels == nil {
            labels = make(map[string]string)
        }
        counter.With(prometheus.Labels(labels)).Inc()
    }
}

func (pm *PrometheusMetrics) ObserveHistogram(name string, value float64, labels map[string]string) {
    if histogram, exists := pm.histograms[name]; exists {
        if labels == nil {
            labels = make(map[string]string)
        }
        histogram.With(prometheus.Labels(labels)).Observe(value)
    }
}

func (pm *PrometheusMetrics) SetGauge(name string, value float64, labels map[string]string) {
    if gauge, exists := pm.gauges[name]; exists {
        if labels == nil {
            labels = make(map[string]string)
        }
        gauge.With(prometheus.Labels(labels)).Set(value)
    }
}

func (pm *PrometheusMetrics) ServeHTTP(port int) error {
    http.Handle("/metrics", promhttp.Handler())
    addr := fmt.Sprintf(":%d", port)
    logger.WithField("addr", addr).Info("Metrics server started")
    return http.ListenAndServe(addr, nil)
}
