package concache

import (
	"errors"
	"fmt"
)

// Kind enumerates the structured error kinds of spec §7.
type Kind int

const (
	// KindAlreadyExists: InsertNew found the key present.
	KindAlreadyExists Kind = iota
	// KindNotExisting: UpdateExisting found the key absent. WithExisting
	// does not return it; it reports an absent key with a false result.
	KindNotExisting
	// KindLocked: TryIsolated found the lock-id held.
	KindLocked
	// KindLockTimeout: acquisition exceeded AcquireLockTimeout.
	KindLockTimeout
	// KindCallbackFailed: propagation from the user callback.
	KindCallbackFailed
)

func (k Kind) String() string {
	switch k {
	case KindAlreadyExists:
		return "already_exists"
	case KindNotExisting:
		return "not_existing"
	case KindLocked:
		return "locked"
	case KindLockTimeout:
		return "lock_timeout"
	case KindCallbackFailed:
		return "callback_failed"
	default:
		return "unknown"
	}
}

// Error is the structured error type returned by cache operations. Kind
// identifies the failure class; Key is the offending key (any, since the
// error type itself cannot be generic over K without infecting every
// signature); Err wraps the underlying cause for KindCallbackFailed.
type Error struct {
	Kind Kind
	Key  any
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("concache: %s (key=%v): %v", e.Kind, e.Key, e.Err)
	}
	return fmt.Sprintf("concache: %s (key=%v)", e.Kind, e.Key)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for e.Kind, enabling
// errors.Is(err, ErrLockTimeout) style checks without exposing Kind
// comparisons at call sites.
func (e *Error) Is(target error) bool {
	sentinel, ok := target.(*Error)
	if !ok {
		return false
	}
	return sentinel.Kind == e.Kind && sentinel.Key == nil
}

// Sentinels for errors.Is comparisons, one per Kind.
var (
	ErrAlreadyExists  = &Error{Kind: KindAlreadyExists}
	ErrNotExisting    = &Error{Kind: KindNotExisting}
	ErrLocked         = &Error{Kind: KindLocked}
	ErrLockTimeout    = &Error{Kind: KindLockTimeout}
	ErrCallbackFailed = &Error{Kind: KindCallbackFailed}
)

func newErr(kind Kind, key any, cause error) *Error {
	return &Error{Kind: kind, Key: key, Err: cause}
}

// errIsKind is a small helper used internally to branch on error kind
// without repeating type assertions at every call site.
func errIsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
