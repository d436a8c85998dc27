package concache

import (
	"time"

	"github.com/concache/concache/internal/store"
)

// StoreKind selects the backing store flavor (spec §6 ets_options
// passthrough: "set" or "ordered set").
type StoreKind int

const (
	StoreSet         StoreKind = StoreKind(store.Set)
	StoreOrderedSet  StoreKind = StoreKind(store.OrderedSet)
)

// Clock provides time in UnixNano; overridable in tests for determinism,
// mirroring the teacher's cache.Clock.
type Clock interface{ NowUnixNano() int64 }

// Metrics exposes cache-level observability hooks. A NoopMetrics
// implementation is used by default — the teacher's pattern of pushing
// observability through hooks rather than a logger.
type Metrics interface {
	Hit()
	Miss()
	LockTimeout()
	CallbackFailed()
	TTLExpired()
	LockWait(d time.Duration)
	Size(entries int)
}

// NoopMetrics discards every signal.
type NoopMetrics struct{}

func (NoopMetrics) Hit()                    {}
func (NoopMetrics) Miss()                   {}
func (NoopMetrics) LockTimeout()            {}
func (NoopMetrics) CallbackFailed()         {}
func (NoopMetrics) TTLExpired()             {}
func (NoopMetrics) LockWait(time.Duration)  {}
func (NoopMetrics) Size(int)                {}

// EventKind distinguishes callback events (spec §4.F).
type EventKind int

const (
	EventUpdate EventKind = iota
	EventDelete
)

// Event is delivered to Options.Callback after a successful mutation. For
// EventDelete, Value is the value that was stored immediately before
// deletion (the callback fires before the store write per spec §4.E).
type Event[K comparable, V any] struct {
	Kind  EventKind
	Key   K
	Value V
}

// AuditEvent is reported through Options.Audit for conditions that spec §9
// leaves as an open question rather than a hard failure — currently a
// callback failure or a row-lock timeout observed during TTL-driven expiry
// (see Open Questions in DESIGN.md: expiry callbacks run with the row lock
// held and their error is reported here rather than stalling the tick loop).
type AuditEvent struct {
	Key any
	Err error
}

// TTLOverride distinguishes "use the cache default" from an explicit
// per-item TTL, where an explicit zero means "never expire" (spec §4.D).
// The zero value of TTLOverride means "no override, use the default".
type TTLOverride struct {
	set      bool
	duration time.Duration
}

// DefaultTTL requests the cache's configured default TTL (or no expiry if
// DefaultTTL is itself zero). It is the zero value of TTLOverride; spelled
// out for readability at call sites.
func DefaultTTL() TTLOverride { return TTLOverride{} }

// Forever requests that the entry never expire, overriding any default.
func Forever() TTLOverride { return TTLOverride{set: true, duration: 0} }

// After requests an explicit per-item TTL, overriding any default.
func After(d time.Duration) TTLOverride { return TTLOverride{set: true, duration: d} }

// UpdateResult is the tagged "changed | no_change" sum a Mutator returns
// (spec §4.E/§9): a distinguished tag rather than an in-band sentinel value
// that could collide with a legitimate V.
type UpdateResult[V any] struct {
	value    V
	noChange bool
	ttl      TTLOverride
}

// Changed reports that the update produced a new value, stored using the
// cache's default TTL resolution.
func Changed[V any](v V) UpdateResult[V] { return UpdateResult[V]{value: v} }

// ChangedTTL is Changed with a per-item TTL override.
func ChangedTTL[V any](v V, ttl TTLOverride) UpdateResult[V] {
	return UpdateResult[V]{value: v, ttl: ttl}
}

// NoChange reports that the update inspected the old value but chose not to
// write a new one; the store is left untouched and no callback fires.
func NoChange[V any]() UpdateResult[V] {
	var zero V
	return UpdateResult[V]{value: zero, noChange: true}
}

// Options configures a cache instance. Zero value is safe; New applies the
// same style of defaulting the teacher uses (nil Metrics -> NoopMetrics,
// Shards <= 0 -> auto).
type Options[K comparable, V any] struct {
	// TTLCheck is the tick length; zero/unset disables TTL entirely (spec
	// §4.D: the manager becomes inert).
	TTLCheck time.Duration

	// DefaultTTL applies when a mutator does not supply a TTLOverride.
	// Zero means "never expire".
	DefaultTTL time.Duration

	// TouchOnRead: Get emits SetTTL(k, DefaultTTL) on every hit.
	TouchOnRead bool

	// Callback receives Event after a successful Put/Update/InsertNew/
	// GetOrStore (EventUpdate) or Delete (EventDelete). Invoked
	// synchronously under the row lock (spec §4.F). An error return
	// propagates to the caller as *Error{Kind: KindCallbackFailed}; for
	// EventUpdate the store mutation already happened, for EventDelete it
	// has not (spec §4.F/§7).
	Callback func(Event[K, V]) error

	// AcquireLockTimeout bounds row-lock acquisition; default 5s (spec §6).
	AcquireLockTimeout time.Duration

	// StoreKind selects the backing store flavor; default StoreSet.
	StoreKind StoreKind

	// Shards sizes the lock pool and backing store. <= 0 picks a default
	// (lock pool: one coordinator per hardware thread; store: the
	// teacher's 2*GOMAXPROCS heuristic).
	Shards int

	// Less orders keys for StoreOrderedSet; required when StoreKind is
	// StoreOrderedSet, ignored otherwise.
	Less func(a, b K) bool

	Metrics Metrics
	Clock   Clock

	// Audit reports conditions that are not hard failures but are worth
	// surfacing — see AuditEvent.
	Audit func(AuditEvent)
}
