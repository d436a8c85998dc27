// Package store implements the backing associative map required by spec
// component A: a concurrent K→V map supporting atomic Lookup/Insert/
// InsertIfAbsent/Delete. It is the "given" collaborator the cache operation
// layer composes with the row lock and TTL manager; it knows nothing about
// TTLs or callbacks.
//
// Grounded on the teacher's shard.go map-of-nodes pattern (one RWMutex-guarded
// map per shard, keyed by util.Fnv64a), stripped of the intrusive LRU list
// since this cache has no eviction policy other than TTL.
package store

import (
	"sort"
	"sync"

	"github.com/concache/concache/internal/util"
)

// Kind selects the backing store flavor, mirroring the spec's ets_options
// "set" / "ordered set" passthrough.
type Kind int

const (
	// Set is a plain sharded hash map; Keys() returns entries in
	// unspecified order.
	Set Kind = iota
	// OrderedSet additionally maintains a sorted key index per shard, so
	// Keys() returns entries in ascending order within each shard; global
	// ascending order across all entries requires a single shard (Shards:
	// 1). Ordered iteration is not required by the cache core (spec
	// §4.A); it exists for callers that pass StoreOrderedSet through
	// configuration and want a single-shard, ordered view.
	OrderedSet
)

// Store is the capability required by spec component A.
type Store[K comparable, V any] interface {
	Lookup(k K) (V, bool)
	Insert(k K, v V)
	InsertIfAbsent(k K, v V) bool
	Delete(k K) bool
	Keys() []K
	Len() int
}

// New constructs a sharded Store of the requested Kind. shards <= 0 picks a
// reasonable default (the teacher's 2*GOMAXPROCS-rounded-to-pow2 heuristic).
func New[K comparable, V any](kind Kind, shards int, less func(a, b K) bool) Store[K, V] {
	if shards <= 0 {
		shards = util.ReasonableShardCount()
	} else {
		shards = int(util.NextPow2(uint64(shards)))
	}
	s := &sharded[K, V]{
		shards: make([]*bucket[K, V], shards),
		ordered: kind == OrderedSet,
		less:    less,
	}
	for i := range s.shards {
		s.shards[i] = &bucket[K, V]{m: make(map[K]V)}
	}
	return s
}

type bucket[K comparable, V any] struct {
	mu      sync.RWMutex
	m       map[K]V
	keys    []K // maintained sorted only when ordered == true
}

type sharded[K comparable, V any] struct {
	shards  []*bucket[K, V]
	ordered bool
	less    func(a, b K) bool
}

func (s *sharded[K, V]) bucketFor(k K) *bucket[K, V] {
	h := util.Fnv64a(k)
	idx := util.ShardIndex(h, len(s.shards))
	return s.shards[idx]
}

func (s *sharded[K, V]) Lookup(k K) (V, bool) {
	b := s.bucketFor(k)
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.m[k]
	return v, ok
}

func (s *sharded[K, V]) Insert(k K, v V) {
	b := s.bucketFor(k)
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.m[k]; !exists && s.ordered {
		b.insertSortedLocked(k, s.less)
	}
	b.m[k] = v
}

func (s *sharded[K, V]) InsertIfAbsent(k K, v V) bool {
	b := s.bucketFor(k)
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.m[k]; exists {
		return false
	}
	b.m[k] = v
	if s.ordered {
		b.insertSortedLocked(k, s.less)
	}
	return true
}

func (s *sharded[K, V]) Delete(k K) bool {
	b := s.bucketFor(k)
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.m[k]; !exists {
		return false
	}
	delete(b.m, k)
	if s.ordered {
		b.removeSortedLocked(k, s.less)
	}
	return true
}

func (s *sharded[K, V]) Keys() []K {
	out := make([]K, 0, s.Len())
	for _, b := range s.shards {
		b.mu.RLock()
		if s.ordered {
			out = append(out, b.keys...)
		} else {
			for k := range b.m {
				out = append(out, k)
			}
		}
		b.mu.RUnlock()
	}
	return out
}

func (s *sharded[K, V]) Len() int {
	total := 0
	for _, b := range s.shards {
		b.mu.RLock()
		total += len(b.m)
		b.mu.RUnlock()
	}
	return total
}

// insertSortedLocked maintains bucket.keys in ascending order. Called with
// b.mu held and only when k is not already present.
func (b *bucket[K, V]) insertSortedLocked(k K, less func(a, b K) bool) {
	i := sort.Search(len(b.keys), func(i int) bool { return less(k, b.keys[i]) })
	b.keys = append(b.keys, k)
	copy(b.keys[i+1:], b.keys[i:])
	b.keys[i] = k
}

func (b *bucket[K, V]) removeSortedLocked(k K, less func(a, b K) bool) {
	i := sort.Search(len(b.keys), func(i int) bool { return !less(b.keys[i], k) })
	if i < len(b.keys) && b.keys[i] == k {
		b.keys = append(b.keys[:i], b.keys[i+1:]...)
	}
}
