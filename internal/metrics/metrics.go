package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry returns a registry carrying the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry
}

// Handler exposes the registry in the Prometheus text format.
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// HTTP holds request counters for the fiber middleware.
type HTTP struct {
	RequestCount    *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

func NewHTTP(registry *prometheus.Registry) *HTTP {
	m := &HTTP{
		RequestCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
	}
	registry.MustRegister(m.RequestCount, m.RequestDuration)
	return m
}

func (m *HTTP) Observe(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestCount.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// Ledger counts engine operations by outcome code.
type Ledger struct {
	Operations        *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	Retries           *prometheus.CounterVec
}

func NewLedger(registry *prometheus.Registry) *Ledger {
	m := &Ledger{
		Operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_operations_total",
				Help: "Total ledger operations by outcome.",
			},
			[]string{"op", "outcome"},
		),
		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledger_operation_duration_seconds",
				Help:    "Ledger operation duration in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		Retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_version_conflict_retries_total",
				Help: "Total retries caused by version conflicts.",
			},
			[]string{"op"},
		),
	}
	registry.MustRegister(m.Operations, m.OperationDuration, m.Retries)
	return m
}

func (m *Ledger) ObserveOperation(op, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(op, outcome).Inc()
	m.OperationDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

func (m *Ledger) RetryAttempt(op string) {
	if m == nil {
		return
	}
	m.Retries.WithLabelValues(op).Inc()
}

// Mirror tracks the asynchronous projection into the mirror store.
type Mirror struct {
	Enqueued   prometheus.Counter
	Dropped    prometheus.Counter
	Writes     *prometheus.CounterVec
	Retries    prometheus.Counter
	QueueDepth prometheus.Gauge
}

func NewMirror(registry *prometheus.Registry) *Mirror {
	m := &Mirror{
		Enqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mirror_enqueued_total",
			Help: "Total projections accepted by the mirror queue.",
		}),
		Dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mirror_dropped_total",
			Help: "Total projections dropped because the queue was full.",
		}),
		Writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mirror_writes_total",
			Help: "Total mirror writes by status.",
		}, []string{"status"}),
		Retries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mirror_write_retries_total",
			Help: "Total mirror write retries.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mirror_queue_depth",
			Help: "Projections waiting in the mirror queue.",
		}),
	}
	registry.MustRegister(m.Enqueued, m.Dropped, m.Writes, m.Retries, m.QueueDepth)
	return m
}

func (m *Mirror) IncEnqueued() {
	if m == nil {
		return
	}
	m.Enqueued.Inc()
	m.QueueDepth.Inc()
}

func (m *Mirror) IncDropped() {
	if m == nil {
		return
	}
	m.Dropped.Inc()
}

func (m *Mirror) Dequeued() {
	if m == nil {
		return
	}
	m.QueueDepth.Dec()
}

func (m *Mirror) IncWrite(status string) {
	if m == nil {
		return
	}
	m.Writes.WithLabelValues(status).Inc()
}

func (m *Mirror) IncRetry() {
	if m == nil {
		return
	}
	m.Retries.Inc()
}

// Notifications counts transfer notices handed to the notifier.
type Notifications struct {
	PublishTotal   *prometheus.CounterVec
	PublishLatency prometheus.Histogram
}

func NewNotifications(registry *prometheus.Registry) *Notifications {
	m := &Notifications{
		PublishTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notification_publish_total",
				Help: "Total notification publish attempts.",
			},
			[]string{"channel", "status"},
		),
		PublishLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "notification_publish_latency_seconds",
				Help:    "Notification publish latency in seconds.",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
	registry.MustRegister(m.PublishTotal, m.PublishLatency)
	return m
}

func (m *Notifications) Observe(channel string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.PublishTotal.WithLabelValues(channel, status).Inc()
	m.PublishLatency.Observe(duration.Seconds())
}
