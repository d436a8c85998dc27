// Package concache provides a generic, sharded, in-process key/value cache
// with per-key row-level locking for serialized read-modify-write, TTL
// expiry with per-item overrides and touch-on-read, and post-mutation
// callbacks.
//
// Design
//
//   - Concurrency: key locking is split from storage. A rowlock.Pool of
//     shard coordinators (one per hardware thread by default) serializes
//     read-modify-write sequences per key; the backing store itself
//     (internal/store) is sharded independently and serves reads without
//     the row lock (only a per-shard read lock). A row lock is reentrant
//     for the same logical owner, tracked by threading the same
//     context.Context through nested calls — an Isolated callback can pass
//     the ctx it receives back into the cache for the same id without
//     deadlocking. Update/UpdateExisting functions receive no context, so a
//     nested row-locked call made from inside them is a new owner.
//
//   - Storage: internal/store shards a map[K]V (StoreSet) or a sharded map
//     plus a per-shard sorted key index (StoreOrderedSet, for callers that
//     need ordered key iteration).
//
//   - TTL: internal/ttl runs a single tick-bucketed expiry wheel. Writers
//     never block on it; SetTTL/Clear are asynchronous intents drained once
//     per tick. Touch-on-read and per-item TTLOverride both resolve to the
//     same intent path.
//
//   - Callbacks: Options.Callback observes every successful mutation
//     (EventUpdate) and every delete (EventDelete, fired before the store
//     write so the old value is still visible). A callback error surfaces
//     as *Error{Kind: KindCallbackFailed}; for EventUpdate the store write
//     has already happened, for EventDelete the key is left in place.
//
//   - Metrics: Options.Metrics receives Hit/Miss/LockTimeout/CallbackFailed/
//     TTLExpired/LockWait/Size signals. A NoopMetrics is used by default, but
//     Cache.Stats() always works regardless — the Hit/Miss/LockTimeout/
//     CallbackFailed/TTLExpired signals also flow to an internal counter set
//     via fanoutMetrics. See metrics/prom for a
//     Prometheus adapter.
//
// Basic usage
//
//	c := concache.New[string, int64](concache.Options[string, int64]{
//	    DefaultTTL: time.Minute,
//	    TTLCheck:   100 * time.Millisecond,
//	})
//	defer c.Close()
//	_ = c.Put(context.Background(), "a", 1)
//	v, ok := c.Get(context.Background(), "a")
//
// Serialized read-modify-write
//
//	err := c.Update(ctx, "counter", func(old int64, existed bool) concache.UpdateResult[int64] {
//	    if !existed {
//	        return concache.Changed(int64(1))
//	    }
//	    return concache.Changed(old + 1)
//	})
//
// Coalescing concurrent loads
//
//	v, err := c.GetOrStore(ctx, "key", func() (string, error) {
//	    return fetchFromDB(ctx, "key")
//	})
//
// Isolating on an arbitrary id (not necessarily a cache key)
//
//	err := c.Isolated(ctx, shardID, func(ctx context.Context) error {
//	    return rebuildShard(ctx, shardID)
//	})
//
// Thread-safety
//
// All Cache methods are safe for concurrent use. Get, WithExisting, and the
// Dirty* mutators never acquire the row lock and therefore give no
// read-modify-write isolation against concurrent Put/Update/Delete on the
// same key — use Update/UpdateExisting/Isolated when that matters.
//
// See options.go for the full Options surface and errors.go for the
// structured error Kinds.
package concache
