// Package prom adapts concache.Metrics to Prometheus collectors.
package prom

import (
	"time"

	"github.com/concache/concache/concache"
	"github.com/prometheus/client_golang/prometheus"
)

// Adapter implements concache.Metrics and exports Prometheus counters, a
// gauge for resident entries, and a histogram for row-lock wait latency.
// Safe for concurrent use; all Prometheus metric types are goroutine-safe.
type Adapter struct {
	hits           prometheus.Counter
	misses         prometheus.Counter
	lockTimeouts   prometheus.Counter
	callbackFailed prometheus.Counter
	ttlExpired     prometheus.Counter
	size           prometheus.Gauge
	lockWait       prometheus.Histogram
}

// New constructs a Prometheus metrics adapter.
//   - reg:          registry to register metrics with (nil => prometheus.DefaultRegisterer)
//   - ns, sub:      Prometheus namespace and subsystem
//   - constLabels:  static labels applied to all metrics (may be nil)
func New(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a := &Adapter{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: "hits_total",
			Help: "Cache hits", ConstLabels: constLabels,
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: "misses_total",
			Help: "Cache misses", ConstLabels: constLabels,
		}),
		lockTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: "lock_timeouts_total",
			Help: "Row-lock acquisitions that exceeded AcquireLockTimeout", ConstLabels: constLabels,
		}),
		callbackFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: "callback_failures_total",
			Help: "Options.Callback invocations that returned an error", ConstLabels: constLabels,
		}),
		ttlExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: "ttl_expirations_total",
			Help: "Entries removed by TTL expiry", ConstLabels: constLabels,
		}),
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub, Name: "size_entries",
			Help: "Number of resident entries", ConstLabels: constLabels,
		}),
		lockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "lock_wait_seconds",
			Help:        "Row-lock acquisition wait time",
			ConstLabels: constLabels,
			Buckets:     prometheus.ExponentialBuckets(0.00005, 4, 10),
		}),
	}
	reg.MustRegister(a.hits, a.misses, a.lockTimeouts, a.callbackFailed, a.ttlExpired, a.size, a.lockWait)
	return a
}

func (a *Adapter) Hit()             { a.hits.Inc() }
func (a *Adapter) Miss()            { a.misses.Inc() }
func (a *Adapter) LockTimeout()     { a.lockTimeouts.Inc() }
func (a *Adapter) CallbackFailed()  { a.callbackFailed.Inc() }
func (a *Adapter) TTLExpired()      { a.ttlExpired.Inc() }
func (a *Adapter) Size(entries int) { a.size.Set(float64(entries)) }

func (a *Adapter) LockWait(d time.Duration) { a.lockWait.Observe(d.Seconds()) }

// Compile-time check: ensure Adapter implements concache.Metrics.
var _ concache.Metrics = (*Adapter)(nil)
