// Package rowlock implements per-key (row-level) mutual exclusion without a
// central writer: a fixed pool of shard coordinators, one per hardware
// thread, each owning the wait queues for the slice of lock-ids that hash to
// it. Callers serialize on an arbitrary id while every other id proceeds in
// parallel.
package rowlock

import "errors"

// ErrLockTimeout is returned by Acquire/With when the caller's deadline
// elapses before the lock is granted.
var ErrLockTimeout = errors.New("rowlock: acquire timed out")

// ErrLocked is returned by TryAcquire when the id is already held by a
// different owner.
var ErrLocked = errors.New("rowlock: already locked")

// Token references a held lock: which shard granted it, the id, and the
// owner that holds it. Release is idempotent-unsafe by design (matching the
// teacher's "release on every exit path" convention) — releasing a token
// twice decrements the reentry counter twice, which is a caller bug, not a
// library concern.
type Token struct {
	shard *coordinator
	id    uint64
	owner uint64
}
