package metric

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "meshsync"

// Registry holds all application metrics.
type Registry struct {
	reg *prometheus.Registry

	// Sync operations
	SyncOperations *prometheus.CounterVec
	SyncDuration   *prometheus.HistogramVec

	// Transport
	HealthChecks   *prometheus.CounterVec
	RemoteRequests *prometheus.CounterVec

	// Snapshots
	SnapshotBytes *prometheus.HistogramVec
	PendingPushes prometheus.Gauge
}

// NewRegistry creates a registry with Go runtime and process collectors
// already registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Registry{
		reg: reg,
		SyncOperations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_operations_total",
			Help:      "Sync operations by kind and outcome",
		}, []string{"op", "outcome"}),
		SyncDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_duration_seconds",
			Help:      "Wall time of sync operations",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"op"}),
		HealthChecks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "endpoint_health_checks_total",
			Help:      "Backend health probes by result",
		}, []string{"result"}),
		RemoteRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_requests_total",
			Help:      "Backend requests by collection, method and status class",
		}, []string{"collection", "method", "code"}),
		SnapshotBytes: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "snapshot_blob_bytes",
			Help:      "Size of encoded snapshot blobs",
			Buckets:   prometheus.ExponentialBuckets(256, 4, 10),
		}, []string{"direction"}),
		PendingPushes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_push",
			Help:      "1 while an unsent snapshot sits in the local cache",
		}),
	}
}

// Registerer returns the underlying registerer for components that add
// their own series (the KV engine, the status collector).
func (r *Registry) Registerer() prometheus.Registerer {
	return r.reg
}

// Gatherer returns the underlying gatherer.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// ObserveSync records one finished sync operation.
func (r *Registry) ObserveSync(op, outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.SyncOperations.WithLabelValues(op, outcome).Inc()
	r.SyncDuration.WithLabelValues(op).Observe(d.Seconds())
}

// ObserveHealth records one endpoint probe.
func (r *Registry) ObserveHealth(ok bool) {
	if r == nil {
		return
	}
	result := "fail"
	if ok {
		result = "ok"
	}
	r.HealthChecks.WithLabelValues(result).Inc()
}

// ObserveRemote records one backend request. code 0 means no response.
func (r *Registry) ObserveRemote(collection, method string, code int) {
	if r == nil {
		return
	}
	r.RemoteRequests.WithLabelValues(collection, method, statusClass(code)).Inc()
}

// ObserveSnapshot records the size of a blob sent ("push") or received ("pull").
func (r *Registry) ObserveSnapshot(direction string, size int) {
	if r == nil {
		return
	}
	r.SnapshotBytes.WithLabelValues(direction).Observe(float64(size))
}

// SetPending flags whether a push is waiting in the local cache.
func (r *Registry) SetPending(pending bool) {
	if r == nil {
		return
	}
	if pending {
		r.PendingPushes.Set(1)
	} else {
		r.PendingPushes.Set(0)
	}
}

// Handler serves the registry in Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

func statusClass(code int) string {
	switch {
	case code <= 0:
		return "none"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
