package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "quote_producer"

// Tick results.
const (
	TickOK           = "ok"
	TickFetchError   = "fetch_error"
	TickPublishError = "publish_error"
)

// Publish results.
const (
	PublishOK      = "ok"
	PublishTimeout = "timeout"
	PublishClosed  = "closed"
	PublishError   = "error"
)

// Metrics holds the producer's collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	reg      prometheus.Registerer
	gatherer prometheus.Gatherer

	ticks          *prometheus.CounterVec
	publishes      *prometheus.CounterVec
	fetchDuration  prometheus.Histogram
	archiveDropped prometheus.Counter
}

// New registers the collectors on a fresh registry that also carries the
// Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg, reg)
}

// NewWithRegistry registers the collectors on reg and serves them from gatherer.
func NewWithRegistry(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		reg:      reg,
		gatherer: gatherer,
		ticks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "The total number of job ticks by result",
		}, []string{"result"}),
		publishes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_total",
			Help:      "The total number of records handed to the broker by result",
		}, []string{"result"}),
		fetchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Quote fetch latency",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		archiveDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_dropped_total",
			Help:      "The total number of records dropped because the archive buffer was full",
		}),
	}
}

// SchedulerSource exposes scheduler counters.
type SchedulerSource interface {
	ActiveJobs() int
	RunningTicks() int64
	SkippedTicks() int64
}

// WatchScheduler exports gauges and counters read from src on every scrape.
func (m *Metrics) WatchScheduler(src SchedulerSource) {
	if m == nil {
		return
	}
	f := promauto.With(m.reg)
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "jobs_active",
		Help:      "The number of keys with a scheduled job",
	}, func() float64 { return float64(src.ActiveJobs()) })
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ticks_running",
		Help:      "The number of ticks currently running or waiting for a worker",
	}, func() float64 { return float64(src.RunningTicks()) })
	f.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ticks_skipped_total",
		Help:      "The total number of ticks skipped because the previous tick was still running",
	}, func() float64 { return float64(src.SkippedTicks()) })
}

// WatchBrokerPending exports the number of unacknowledged publishes.
func (m *Metrics) WatchBrokerPending(pending func() int) {
	if m == nil {
		return
	}
	promauto.With(m.reg).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "publish_pending",
		Help:      "The number of published records awaiting broker acknowledgement",
	}, func() float64 { return float64(pending()) })
}

// ObserveTick records the outcome of one tick.
func (m *Metrics) ObserveTick(result string) {
	if m == nil {
		return
	}
	m.ticks.WithLabelValues(result).Inc()
}

// ObserveFetch records fetch latency.
func (m *Metrics) ObserveFetch(d time.Duration) {
	if m == nil {
		return
	}
	m.fetchDuration.Observe(d.Seconds())
}

// ObservePublish records the outcome of one publish.
func (m *Metrics) ObservePublish(result string) {
	if m == nil {
		return
	}
	m.publishes.WithLabelValues(result).Inc()
}

// ArchiveDropped counts one record dropped by the archive buffer.
func (m *Metrics) ArchiveDropped() {
	if m == nil {
		return
	}
	m.archiveDropped.Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
