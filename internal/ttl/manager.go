// Package ttl implements the TTL scheduler required by spec component D: a
// tick loop, a pending-intent queue, and a tick-bucketed expiry wheel
// (expiry_by_tick / key_deadline in spec §3), owned by a single agent
// goroutine so that expiry bookkeeping never needs its own lock.
//
// Insertion and refresh are O(1) map operations (set_ttl/clear just enqueue
// an intent); per-tick work is proportional to the keys actually due, never
// to cache size — the "why a bucketed wheel" rationale in spec §4.D.
package ttl

import (
	"sync/atomic"
	"time"
)

type intentKind int

const (
	intentSet intentKind = iota
	intentClear
)

type intent[K comparable] struct {
	key  K
	kind intentKind
	ms   int64
}

// Manager owns now_tick, pending, expiry_by_tick and key_deadline (spec §3).
// DeleteFn is invoked for each key whose deadline comes due; it is expected
// to honor the callback and acquire the row lock with the standard timeout,
// per spec §4.D step 2 — the operation layer supplies this closure so the
// ttl package itself never needs to know about the store, row locks, or
// callbacks.
type Manager[K comparable] struct {
	tickDuration time.Duration
	tickMs       int64
	inert        bool

	deleteFn func(K)

	pending  chan intent[K]
	stopCh   chan struct{}
	stoppedC chan struct{}

	// Only ever touched by the single owner goroutine (run/Step); no lock
	// needed, matching spec §5 "owned by a single agent and mutated only
	// by that agent".
	nowTick      int64
	expiryByTick map[int64]map[K]struct{}
	keyDeadline  map[K]int64

	ticks uint64 // exported via Ticks for diagnostics; atomic for safe concurrent reads
}

// New constructs a Manager. tickCheck <= 0 makes the manager inert per spec
// §4.D: entries never expire and SetTTL/Touch/Clear become no-ops.
func New[K comparable](tickCheck time.Duration, deleteFn func(K)) *Manager[K] {
	m := &Manager[K]{
		tickDuration: tickCheck,
		tickMs:       tickCheck.Milliseconds(),
		inert:        tickCheck <= 0,
		deleteFn:     deleteFn,
		pending:      make(chan intent[K], 4096),
		stopCh:       make(chan struct{}),
		stoppedC:     make(chan struct{}),
		expiryByTick: make(map[int64]map[K]struct{}),
		keyDeadline:  make(map[K]int64),
	}
	if !m.inert {
		go m.run()
	} else {
		close(m.stoppedC)
	}
	return m
}

// SetTTL asynchronously schedules key to expire in ms milliseconds (ms <= 0
// clears any deadline — "never expire"). The caller enqueues and returns;
// this keeps Put/Touch off the tick loop's critical path.
func (m *Manager[K]) SetTTL(key K, ms int64) {
	if m.inert {
		return
	}
	if ms <= 0 {
		m.Clear(key)
		return
	}
	m.pending <- intent[K]{key: key, kind: intentSet, ms: ms}
}

// Clear asynchronously removes key's deadline, if any.
func (m *Manager[K]) Clear(key K) {
	if m.inert {
		return
	}
	m.pending <- intent[K]{key: key, kind: intentClear}
}

// Close stops the tick loop. Call it at most once on an active manager: a
// second call panics, as closing a channel twice does.
func (m *Manager[K]) Close() {
	if m.inert {
		return
	}
	close(m.stopCh)
	<-m.stoppedC
}

// Ticks reports how many tick steps have run, for diagnostics/tests.
func (m *Manager[K]) Ticks() uint64 { return atomic.LoadUint64(&m.ticks) }

func (m *Manager[K]) run() {
	defer close(m.stoppedC)
	timer := time.NewTimer(m.tickDuration)
	defer timer.Stop()
	for {
		select {
		case <-timer.C:
			m.Step()
			timer.Reset(m.tickDuration)
		case <-m.stopCh:
			return
		}
	}
}

// Step performs exactly one tick: drain pending intents, expire whatever is
// due at now_tick, then advance now_tick. Exported so tests can drive the
// wheel deterministically instead of racing a real timer.
func (m *Manager[K]) Step() {
	m.drainPending()

	if due, ok := m.expiryByTick[m.nowTick]; ok {
		for key := range due {
			if m.keyDeadline[key] == m.nowTick {
				delete(m.keyDeadline, key)
				m.deleteFn(key)
			}
			// else: stale reference, filtered here per spec §3 invariant note.
		}
		delete(m.expiryByTick, m.nowTick)
	}

	m.nowTick++
	atomic.AddUint64(&m.ticks, 1)
}

func (m *Manager[K]) drainPending() {
	for {
		select {
		case in := <-m.pending:
			m.apply(in)
		default:
			return
		}
	}
}

func (m *Manager[K]) apply(in intent[K]) {
	switch in.kind {
	case intentSet:
		target := m.nowTick + ceilDiv(in.ms, m.tickMs)
		m.keyDeadline[in.key] = target
		bucket, ok := m.expiryByTick[target]
		if !ok {
			bucket = make(map[K]struct{})
			m.expiryByTick[target] = bucket
		}
		bucket[in.key] = struct{}{}
	case intentClear:
		delete(m.keyDeadline, in.key)
		// Stale entry left behind in expiry_by_tick; filtered at dequeue.
	}
}

func ceilDiv(a, b int64) int64 {
	if b <= 0 {
		b = 1
	}
	return (a + b - 1) / b
}
