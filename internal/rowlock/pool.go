package rowlock

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/concache/concache/internal/util"
)

// ownerCtxKey is the context key under which the current call's owner
// identity is stashed so that nested acquisitions of the same id by the
// same logical caller are recognized as reentrant rather than deadlocking.
type ownerCtxKey struct{}

var ownerSeq uint64

// EnsureOwner returns a context carrying an owner identity: the one already
// present on ctx, if any (so a caller threading the same ctx through a
// nested operation reenters its own lock), or a freshly minted one.
func EnsureOwner(ctx context.Context) (context.Context, uint64) {
	if v, ok := ctx.Value(ownerCtxKey{}).(uint64); ok {
		return ctx, v
	}
	id := atomic.AddUint64(&ownerSeq, 1)
	return context.WithValue(ctx, ownerCtxKey{}, id), id
}

// Pool is a fixed array of shard coordinators, one per hardware thread.
// A lock-id is routed to a shard by hashing; each shard serializes access
// to its own slice of the id space via a single-threaded actor goroutine,
// so distinct shards never block each other (spec invariant: no ordering
// guarantee across distinct ids).
type Pool struct {
	shards    []*coordinator
	waiterSeq uint64
}

// NewPool starts n shard coordinators (n is rounded up to the next power of
// two; n <= 0 picks one coordinator per hardware thread).
func NewPool(n int) *Pool {
	if n <= 0 {
		n = util.HardwareParallelism()
	} else {
		n = int(util.NextPow2(uint64(n)))
	}
	p := &Pool{shards: make([]*coordinator, n)}
	for i := range p.shards {
		p.shards[i] = newCoordinator()
		go p.shards[i].run()
	}
	return p
}

// Close stops every shard coordinator. Pending waiters are abandoned (their
// Acquire calls will block on an un-run coordinator and thus must already
// have returned; Close is intended for cache teardown after all callers
// have stopped issuing operations).
func (p *Pool) Close() {
	for _, s := range p.shards {
		close(s.stopCh)
	}
}

func (p *Pool) shardFor(id uint64) *coordinator {
	idx := util.ShardIndex(id, len(p.shards))
	return p.shards[idx]
}

// Acquire blocks until id is granted to the ctx's owner or timeout elapses.
// A zero or negative timeout blocks indefinitely. Reentrant: if the owner
// already holds id, the reentry counter is incremented and Acquire returns
// immediately.
func (p *Pool) Acquire(ctx context.Context, id uint64, timeout time.Duration) (Token, error) {
	owner := mustOwner(ctx)
	sh := p.shardFor(id)
	reply := make(chan error, 1)
	wID := atomic.AddUint64(&p.waiterSeq, 1)

	sh.reqCh <- request{kind: reqAcquire, id: id, owner: owner, waiterID: wID, reply: reply}

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timeoutCh = t.C
	}

	select {
	case err := <-reply:
		if err != nil {
			return Token{}, err
		}
		return Token{shard: sh, id: id, owner: owner}, nil
	case <-timeoutCh:
		ack := make(chan error, 1)
		sh.reqCh <- request{kind: reqCancelWait, id: id, owner: owner, waiterID: wID, reply: ack}
		<-ack // coordinator either dequeued us or released a racily-granted lock
		return Token{}, ErrLockTimeout
	}
}

// TryAcquire acquires id without blocking. Returns ErrLocked if another
// owner already holds it.
func (p *Pool) TryAcquire(ctx context.Context, id uint64) (Token, error) {
	owner := mustOwner(ctx)
	sh := p.shardFor(id)
	reply := make(chan error, 1)
	sh.reqCh <- request{kind: reqTryAcquire, id: id, owner: owner, reply: reply}
	if err := <-reply; err != nil {
		return Token{}, err
	}
	return Token{shard: sh, id: id, owner: owner}, nil
}

// Release decrements the reentry counter for tok and, at zero, promotes the
// next FIFO waiter (if any). Blocks only for the coordinator's queue depth,
// which is intended to be near-instant.
func (p *Pool) Release(tok Token) {
	reply := make(chan error, 1)
	tok.shard.reqCh <- request{kind: reqRelease, id: tok.id, owner: tok.owner, reply: reply}
	<-reply
}

// With acquires id, runs fn, and releases on every exit path including
// panics propagated from fn. Reentrant: a nested With on the same id by the
// same owner (same ctx lineage) does not deadlock.
func (p *Pool) With(ctx context.Context, id uint64, timeout time.Duration, fn func(context.Context) error) error {
	ctx, _ = EnsureOwnerCtx(ctx)
	tok, err := p.Acquire(ctx, id, timeout)
	if err != nil {
		return err
	}
	defer p.Release(tok)
	return fn(ctx)
}

// EnsureOwnerCtx is the context-carrying form of EnsureOwner, for callers
// that only need the decorated context back.
func EnsureOwnerCtx(ctx context.Context) (context.Context, uint64) { return EnsureOwner(ctx) }

func mustOwner(ctx context.Context) uint64 {
	if v, ok := ctx.Value(ownerCtxKey{}).(uint64); ok {
		return v
	}
	// Caller skipped EnsureOwner; treat as its own singleton owner so a
	// series of calls sharing no context still behaves correctly (each
	// acquires and releases independently, no false reentrancy).
	return atomic.AddUint64(&ownerSeq, 1)
}
