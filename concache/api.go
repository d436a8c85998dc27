package concache

import "context"

// Cache is the full operation-layer surface of spec §4.E. All methods are
// safe for concurrent use. Methods that can block on row-lock acquisition
// take a context.Context as their first argument, in the same style as the
// teacher's GetOrLoad; passing the ctx an Isolated callback receives into a
// nested call back into the cache makes that nested call reentrant on the
// same row lock (spec §8 invariant 4, §9 "reentrant locks"). Update and
// UpdateExisting functions receive no ctx, so a nested call made from
// inside them acquires as a new owner.
type Cache[K comparable, V any] interface {
	// Get returns v and a presence flag. If TouchOnRead is configured, a
	// hit also emits SetTTL(k, DefaultTTL). Does not acquire the row lock;
	// readers are always dirty (spec Non-goals).
	Get(ctx context.Context, k K) (V, bool)

	// WithExisting runs fn(v) if k is present, without acquiring the row
	// lock, and reports whether it ran.
	WithExisting(ctx context.Context, k K, fn func(v V)) bool

	// Put inserts or updates k->v using DefaultTTL, under the row lock.
	Put(ctx context.Context, k K, v V) error
	// PutTTL is Put with a per-item TTL override.
	PutTTL(ctx context.Context, k K, v V, ttl TTLOverride) error

	// InsertNew inserts k->v only if k is absent; returns a *Error with
	// KindAlreadyExists otherwise.
	InsertNew(ctx context.Context, k K, v V) error
	InsertNewTTL(ctx context.Context, k K, v V, ttl TTLOverride) error

	// Update runs fn(old, existed) under the row lock, having looked old
	// up while holding it (spec "read-before-write under lock"). If fn
	// returns NoChange, the store is untouched and no callback fires.
	Update(ctx context.Context, k K, fn func(old V, existed bool) UpdateResult[V]) error

	// UpdateExisting is Update but fails with KindNotExisting if k is
	// absent, without calling fn.
	UpdateExisting(ctx context.Context, k K, fn func(old V) UpdateResult[V]) error

	// GetOrStore returns the value for k; on miss, runs fn under the row
	// lock and inserts its result. fn is never invoked if k is present.
	GetOrStore(ctx context.Context, k K, fn func() (V, error)) (V, error)
	GetOrStoreTTL(ctx context.Context, k K, fn func() (V, TTLOverride, error)) (V, error)

	// Delete removes k. The callback (if any) fires before the store
	// mutation, so it can still observe the value being removed.
	Delete(ctx context.Context, k K) error

	// Touch emits SetTTL(k, DefaultTTL) (a no-op if no default is
	// configured). No row lock, no callback.
	Touch(k K)

	// Isolated acquires id (NOT necessarily a cache key — spec allows an
	// arbitrary lock-id) and runs fn while holding it.
	Isolated(ctx context.Context, id uint64, fn func(context.Context) error) error
	// TryIsolated is Isolated but never blocks: returns a *Error with
	// KindLocked if id is already held by a different owner.
	TryIsolated(ctx context.Context, id uint64, fn func(context.Context) error) error

	// Dirty* mutators skip the row lock. They remain atomic at the store
	// level (one Insert/Delete each) and still emit TTL intents and the
	// callback; only read-modify-write isolation is lost (spec §4.E: "for
	// each mutator there is a dirty twin that skips the row lock ... only
	// compound read-modify-write loses isolation").
	DirtyPut(k K, v V) error
	DirtyInsertNew(k K, v V) error
	DirtyDelete(k K) error

	// DirtyUpdate/DirtyUpdateExisting/DirtyGetOrStore are the dirty twins
	// of Update/UpdateExisting/GetOrStoreTTL: the lookup-then-write is no
	// longer serialized against other callers, so a concurrent writer can
	// interleave between fn's read and its write.
	DirtyUpdate(k K, fn func(old V, existed bool) UpdateResult[V]) error
	DirtyUpdateExisting(k K, fn func(old V) UpdateResult[V]) error
	DirtyGetOrStore(k K, fn func() (V, TTLOverride, error)) (V, error)

	// Len returns the number of resident entries.
	Len() int
	// Stats returns a point-in-time counters snapshot.
	Stats() Stats
	// Close stops the TTL tick loop and every row-lock shard coordinator.
	Close() error
}
