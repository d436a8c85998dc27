package concache

import (
	"time"

	"github.com/concache/concache/internal/util"
)

// Stats is a point-in-time counters snapshot, grounded on
// Krishna8167-tempuscache's Stats() method and the teacher's Metrics hooks.
type Stats struct {
	Hits           uint64
	Misses         uint64
	LockTimeouts   uint64
	CallbackFailed uint64
	TTLExpirations uint64
	Entries        int
}

type paddedCounter struct{ v util.PaddedAtomicUint64 }

func (c *paddedCounter) add(n uint64) { c.v.Add(n) }
func (c *paddedCounter) load() uint64 { return c.v.Load() }

// statsMetrics is the internal Metrics implementation that fanoutMetrics
// always carries, whether or not the caller supplies one; it backs
// Cache.Stats(), so Stats() works out of the box without requiring a
// Prometheus (or other) adapter. Counters are cache-line padded (the
// teacher's internal/util.Padded* types) since hits/misses are updated from
// every goroutine calling Get concurrently.
type statsMetrics struct {
	hits, misses, lockTimeouts, callbackFailed, ttlExpirations paddedCounter
}

func (m *statsMetrics) Hit()                       { m.hits.add(1) }
func (m *statsMetrics) Miss()                      { m.misses.add(1) }
func (m *statsMetrics) LockTimeout()                { m.lockTimeouts.add(1) }
func (m *statsMetrics) CallbackFailed()             { m.callbackFailed.add(1) }
func (m *statsMetrics) TTLExpired()                 { m.ttlExpirations.add(1) }
func (m *statsMetrics) LockWait(_ time.Duration)    {}
func (m *statsMetrics) Size(_ int)                  {}

func (m *statsMetrics) snapshot() Stats {
	return Stats{
		Hits:           m.hits.load(),
		Misses:         m.misses.load(),
		LockTimeouts:   m.lockTimeouts.load(),
		CallbackFailed: m.callbackFailed.load(),
		TTLExpirations: m.ttlExpirations.load(),
	}
}

// fanoutMetrics forwards Hit/Miss/LockTimeout/CallbackFailed/TTLExpired to
// both the always-present internal counters (backing Cache.Stats()) and
// whatever Metrics the caller supplied (e.g. the Prometheus adapter in
// metrics/prom); LockWait and Size go only to the caller's Metrics. This
// lets Stats() work even when the caller has wired a custom Metrics.
type fanoutMetrics struct {
	user  Metrics
	stats *statsMetrics
}

func newFanoutMetrics(user Metrics) *fanoutMetrics {
	if user == nil {
		user = NoopMetrics{}
	}
	return &fanoutMetrics{user: user, stats: &statsMetrics{}}
}

func (f *fanoutMetrics) Hit()            { f.stats.Hit(); f.user.Hit() }
func (f *fanoutMetrics) Miss()           { f.stats.Miss(); f.user.Miss() }
func (f *fanoutMetrics) LockTimeout()    { f.stats.LockTimeout(); f.user.LockTimeout() }
func (f *fanoutMetrics) CallbackFailed() { f.stats.CallbackFailed(); f.user.CallbackFailed() }
func (f *fanoutMetrics) TTLExpired()     { f.stats.TTLExpired(); f.user.TTLExpired() }
func (f *fanoutMetrics) LockWait(d time.Duration) { f.user.LockWait(d) }
func (f *fanoutMetrics) Size(n int)               { f.user.Size(n) }
