package concache

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/concache/concache/internal/rowlock"
	"github.com/concache/concache/internal/store"
	"github.com/concache/concache/internal/ttl"
	"github.com/concache/concache/internal/util"
)

// errClosed is returned by operations on a closed cache handle. It is not
// one of spec §7's structured kinds because "closed" is a host lifecycle
// concern, not a cache-semantics failure.
var errClosed = errors.New("concache: cache is closed")

// cache is the handle of spec §3: a configuration-bearing value referencing
// the backing store (A), the lock pool (B/C) and the TTL manager (D). The
// callback closure (F) lives in opt and is shared by every caller.
type cache[K comparable, V any] struct {
	st      store.Store[K, V]
	locks   *rowlock.Pool
	ttlMgr  *ttl.Manager[K]
	opt     Options[K, V]
	metrics *fanoutMetrics
	closed  atomic.Bool
}

// New constructs a cache handle. Defaults mirror the teacher's New():
//   - nil Metrics            -> NoopMetrics (wrapped so Stats() still works)
//   - Shards <= 0            -> auto (lock pool: one per hardware thread;
//     store: 2*GOMAXPROCS rounded to a power of two)
//   - AcquireLockTimeout <= 0 -> 5s (spec §6 default)
//   - TTLCheck <= 0          -> TTL manager is inert (spec §4.D)
func New[K comparable, V any](opt Options[K, V]) Cache[K, V] {
	if opt.AcquireLockTimeout <= 0 {
		opt.AcquireLockTimeout = 5 * time.Second
	}
	metrics := newFanoutMetrics(opt.Metrics)
	opt.Metrics = metrics

	c := &cache[K, V]{
		opt:     opt,
		st:      store.New[K, V](store.Kind(opt.StoreKind), opt.Shards, opt.Less),
		locks:   rowlock.NewPool(opt.Shards),
		metrics: metrics,
	}
	c.ttlMgr = ttl.New[K](opt.TTLCheck, c.expireKey)
	return c
}

// lockID routes a cache key to a row-lock id by hashing it, reusing the
// teacher's getShard hashing approach (util.Fnv64a) at the lock-routing
// layer instead of the eviction-shard layer.
func (c *cache[K, V]) lockID(k K) uint64 { return util.Fnv64a(k) }

func (c *cache[K, V]) withRowLock(ctx context.Context, k K, fn func(context.Context) error) error {
	ctx, _ = rowlock.EnsureOwnerCtx(ctx)
	start := c.now()
	tok, err := c.locks.Acquire(ctx, c.lockID(k), c.opt.AcquireLockTimeout)
	c.metrics.LockWait(time.Duration(c.now()-start) * time.Nanosecond)
	if err != nil {
		c.metrics.LockTimeout()
		return newErr(KindLockTimeout, k, err)
	}
	defer c.locks.Release(tok)
	return fn(ctx)
}

func (c *cache[K, V]) now() int64 {
	if c.opt.Clock != nil {
		return c.opt.Clock.NowUnixNano()
	}
	return time.Now().UnixNano()
}

// applyTTLIntent resolves a TTLOverride against the cache default and emits
// the corresponding asynchronous SetTTL/Clear intent (spec §4.D "per-item
// override").
func (c *cache[K, V]) applyTTLIntent(k K, o TTLOverride) {
	d := c.opt.DefaultTTL
	if o.set {
		d = o.duration
	}
	if d <= 0 {
		c.ttlMgr.Clear(k)
		return
	}
	c.ttlMgr.SetTTL(k, d.Milliseconds())
}

func (c *cache[K, V]) fireCallback(ev Event[K, V]) error {
	if c.opt.Callback == nil {
		return nil
	}
	if err := c.opt.Callback(ev); err != nil {
		c.metrics.CallbackFailed()
		return newErr(KindCallbackFailed, ev.Key, err)
	}
	return nil
}

// deleteLocked performs the store-agnostic half of Delete: look up the
// current value, fire the delete callback while it can still be observed
// (before the store mutation, per spec §4.E "delete-before-mutate
// ordering"), then delete from the store and clear any TTL deadline. Used
// both by Delete (row lock held by the caller) and by TTL-driven expiry
// (row lock held by expireKey).
func (c *cache[K, V]) deleteLocked(k K) error {
	v, existed := c.st.Lookup(k)
	if existed {
		if err := c.fireCallback(Event[K, V]{Kind: EventDelete, Key: k, Value: v}); err != nil {
			return err
		}
	}
	c.st.Delete(k)
	c.ttlMgr.Clear(k)
	c.metrics.Size(c.st.Len())
	return nil
}

// expireKey is the TTL manager's DeleteFn: it acquires the row lock with
// the standard timeout and runs the same delete path Delete uses, so an
// expiring key's callback fires exactly like an explicit delete's (spec
// §4.D step 2). Failure (lock timeout, or a callback error) is reported
// through Options.Audit rather than stalling the tick loop — the open
// question in spec §9 resolved in favor of "swallow with an audit event".
func (c *cache[K, V]) expireKey(k K) {
	ctx, _ := rowlock.EnsureOwner(context.Background())
	err := c.locks.With(ctx, c.lockID(k), c.opt.AcquireLockTimeout, func(context.Context) error {
		return c.deleteLocked(k)
	})
	if err != nil {
		c.reportAudit(k, err)
		return
	}
	c.metrics.TTLExpired()
}

func (c *cache[K, V]) reportAudit(k K, err error) {
	if c.opt.Audit == nil {
		return
	}
	c.opt.Audit(AuditEvent{Key: k, Err: err})
}

// ---- Cache[K,V] implementation ----

func (c *cache[K, V]) Get(ctx context.Context, k K) (V, bool) {
	if c.closed.Load() {
		var zero V
		return zero, false
	}
	v, ok := c.st.Lookup(k)
	if !ok {
		c.metrics.Miss()
		return v, false
	}
	c.metrics.Hit()
	if c.opt.TouchOnRead {
		c.ttlMgr.SetTTL(k, c.opt.DefaultTTL.Milliseconds())
	}
	return v, true
}

func (c *cache[K, V]) WithExisting(ctx context.Context, k K, fn func(v V)) bool {
	if c.closed.Load() {
		return false
	}
	v, ok := c.st.Lookup(k)
	if !ok {
		return false
	}
	fn(v)
	return true
}

func (c *cache[K, V]) Put(ctx context.Context, k K, v V) error {
	return c.PutTTL(ctx, k, v, DefaultTTL())
}

func (c *cache[K, V]) PutTTL(ctx context.Context, k K, v V, ttlOverride TTLOverride) error {
	if c.closed.Load() {
		return errClosed
	}
	return c.withRowLock(ctx, k, func(context.Context) error {
		c.st.Insert(k, v)
		c.applyTTLIntent(k, ttlOverride)
		c.metrics.Size(c.st.Len())
		return c.fireCallback(Event[K, V]{Kind: EventUpdate, Key: k, Value: v})
	})
}

func (c *cache[K, V]) InsertNew(ctx context.Context, k K, v V) error {
	return c.InsertNewTTL(ctx, k, v, DefaultTTL())
}

func (c *cache[K, V]) InsertNewTTL(ctx context.Context, k K, v V, ttlOverride TTLOverride) error {
	if c.closed.Load() {
		return errClosed
	}
	return c.withRowLock(ctx, k, func(context.Context) error {
		if !c.st.InsertIfAbsent(k, v) {
			return newErr(KindAlreadyExists, k, nil)
		}
		c.applyTTLIntent(k, ttlOverride)
		c.metrics.Size(c.st.Len())
		return c.fireCallback(Event[K, V]{Kind: EventUpdate, Key: k, Value: v})
	})
}

func (c *cache[K, V]) Update(ctx context.Context, k K, fn func(old V, existed bool) UpdateResult[V]) error {
	if c.closed.Load() {
		return errClosed
	}
	return c.withRowLock(ctx, k, func(context.Context) error {
		old, existed := c.st.Lookup(k)
		res := fn(old, existed)
		if res.noChange {
			return nil
		}
		c.st.Insert(k, res.value)
		c.applyTTLIntent(k, res.ttl)
		c.metrics.Size(c.st.Len())
		return c.fireCallback(Event[K, V]{Kind: EventUpdate, Key: k, Value: res.value})
	})
}

func (c *cache[K, V]) UpdateExisting(ctx context.Context, k K, fn func(old V) UpdateResult[V]) error {
	if c.closed.Load() {
		return errClosed
	}
	return c.withRowLock(ctx, k, func(context.Context) error {
		old, existed := c.st.Lookup(k)
		if !existed {
			return newErr(KindNotExisting, k, nil)
		}
		res := fn(old)
		if res.noChange {
			return nil
		}
		c.st.Insert(k, res.value)
		c.applyTTLIntent(k, res.ttl)
		c.metrics.Size(c.st.Len())
		return c.fireCallback(Event[K, V]{Kind: EventUpdate, Key: k, Value: res.value})
	})
}

func (c *cache[K, V]) GetOrStore(ctx context.Context, k K, fn func() (V, error)) (V, error) {
	return c.GetOrStoreTTL(ctx, k, func() (V, TTLOverride, error) {
		v, err := fn()
		return v, DefaultTTL(), err
	})
}

func (c *cache[K, V]) GetOrStoreTTL(ctx context.Context, k K, fn func() (V, TTLOverride, error)) (V, error) {
	// Fast path: a raw dirty read (not c.Get) avoids the row lock on the
	// common hot-path hit; the row-locked lookup below double-checks on
	// miss so no two callers ever run fn for the same key concurrently.
	// Hit/Miss is recorded once the outcome is definitive, never twice.
	if v, ok := c.st.Lookup(k); ok {
		c.metrics.Hit()
		return v, nil
	}
	var zero V
	if c.closed.Load() {
		return zero, errClosed
	}
	var out V
	err := c.withRowLock(ctx, k, func(context.Context) error {
		if v, ok := c.st.Lookup(k); ok {
			c.metrics.Hit()
			out = v
			return nil
		}
		c.metrics.Miss()
		v, ttlOverride, ferr := fn()
		if ferr != nil {
			return ferr
		}
		c.st.Insert(k, v)
		c.applyTTLIntent(k, ttlOverride)
		c.metrics.Size(c.st.Len())
		out = v
		return c.fireCallback(Event[K, V]{Kind: EventUpdate, Key: k, Value: v})
	})
	return out, err
}

func (c *cache[K, V]) Delete(ctx context.Context, k K) error {
	if c.closed.Load() {
		return errClosed
	}
	return c.withRowLock(ctx, k, func(context.Context) error {
		return c.deleteLocked(k)
	})
}

func (c *cache[K, V]) Touch(k K) {
	if c.closed.Load() {
		return
	}
	if c.opt.DefaultTTL <= 0 {
		return // spec §4.D: touch is a no-op when no default is configured
	}
	c.ttlMgr.SetTTL(k, c.opt.DefaultTTL.Milliseconds())
}

func (c *cache[K, V]) Isolated(ctx context.Context, id uint64, fn func(context.Context) error) error {
	if c.closed.Load() {
		return errClosed
	}
	ctx, _ = rowlock.EnsureOwnerCtx(ctx)
	tok, err := c.locks.Acquire(ctx, id, c.opt.AcquireLockTimeout)
	if err != nil {
		c.metrics.LockTimeout()
		return newErr(KindLockTimeout, id, err)
	}
	defer c.locks.Release(tok)
	return fn(ctx)
}

func (c *cache[K, V]) TryIsolated(ctx context.Context, id uint64, fn func(context.Context) error) error {
	if c.closed.Load() {
		return errClosed
	}
	ctx, _ = rowlock.EnsureOwnerCtx(ctx)
	tok, err := c.locks.TryAcquire(ctx, id)
	if err != nil {
		return newErr(KindLocked, id, err)
	}
	defer c.locks.Release(tok)
	return fn(ctx)
}

func (c *cache[K, V]) DirtyPut(k K, v V) error {
	if c.closed.Load() {
		return errClosed
	}
	c.st.Insert(k, v)
	c.applyTTLIntent(k, DefaultTTL())
	c.metrics.Size(c.st.Len())
	return c.fireCallback(Event[K, V]{Kind: EventUpdate, Key: k, Value: v})
}

func (c *cache[K, V]) DirtyInsertNew(k K, v V) error {
	if c.closed.Load() {
		return errClosed
	}
	if !c.st.InsertIfAbsent(k, v) {
		return newErr(KindAlreadyExists, k, nil)
	}
	c.applyTTLIntent(k, DefaultTTL())
	c.metrics.Size(c.st.Len())
	return c.fireCallback(Event[K, V]{Kind: EventUpdate, Key: k, Value: v})
}

func (c *cache[K, V]) DirtyDelete(k K) error {
	if c.closed.Load() {
		return errClosed
	}
	return c.deleteLocked(k)
}

// DirtyUpdate is Update without the row lock: fn still observes a
// lookup-then-write pair, but a concurrent caller can interleave between
// the lookup and the write (spec §4.E "only compound read-modify-write
// loses isolation").
func (c *cache[K, V]) DirtyUpdate(k K, fn func(old V, existed bool) UpdateResult[V]) error {
	if c.closed.Load() {
		return errClosed
	}
	old, existed := c.st.Lookup(k)
	res := fn(old, existed)
	if res.noChange {
		return nil
	}
	c.st.Insert(k, res.value)
	c.applyTTLIntent(k, res.ttl)
	c.metrics.Size(c.st.Len())
	return c.fireCallback(Event[K, V]{Kind: EventUpdate, Key: k, Value: res.value})
}

// DirtyUpdateExisting is UpdateExisting without the row lock.
func (c *cache[K, V]) DirtyUpdateExisting(k K, fn func(old V) UpdateResult[V]) error {
	if c.closed.Load() {
		return errClosed
	}
	old, existed := c.st.Lookup(k)
	if !existed {
		return newErr(KindNotExisting, k, nil)
	}
	res := fn(old)
	if res.noChange {
		return nil
	}
	c.st.Insert(k, res.value)
	c.applyTTLIntent(k, res.ttl)
	c.metrics.Size(c.st.Len())
	return c.fireCallback(Event[K, V]{Kind: EventUpdate, Key: k, Value: res.value})
}

// DirtyGetOrStore is GetOrStoreTTL without the row lock: the lookup-then-fn
// window is not serialized, so two concurrent callers can both observe a
// miss and both run fn (spec §4.E dirty twins trade isolation for no
// blocking; only the locked GetOrStoreTTL guarantees fn runs at most once).
func (c *cache[K, V]) DirtyGetOrStore(k K, fn func() (V, TTLOverride, error)) (V, error) {
	var zero V
	if c.closed.Load() {
		return zero, errClosed
	}
	if v, ok := c.st.Lookup(k); ok {
		c.metrics.Hit()
		return v, nil
	}
	c.metrics.Miss()
	v, ttlOverride, err := fn()
	if err != nil {
		return zero, err
	}
	c.st.Insert(k, v)
	c.applyTTLIntent(k, ttlOverride)
	c.metrics.Size(c.st.Len())
	if err := c.fireCallback(Event[K, V]{Kind: EventUpdate, Key: k, Value: v}); err != nil {
		return v, err
	}
	return v, nil
}

func (c *cache[K, V]) Len() int { return c.st.Len() }

func (c *cache[K, V]) Stats() Stats {
	s := c.metrics.stats.snapshot()
	s.Entries = c.st.Len()
	return s
}

// Close stops the TTL tick loop and every row-lock shard coordinator. Safe
// to call more than once; only the first call has effect, matching the
// teacher's idempotent-enough Close (there, a soft no-op flag; here, real
// goroutines that must be told to stop).
func (c *cache[K, V]) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.ttlMgr.Close()
	c.locks.Close()
	return nil
}
