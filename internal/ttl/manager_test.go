package ttl

import (
	"sync"
	"testing"
	"time"
)

func TestManager_Inert(t *testing.T) {
	var deleted []string
	var mu sync.Mutex
	m := New[string](0, func(k string) {
		mu.Lock()
		deleted = append(deleted, k)
		mu.Unlock()
	})
	defer m.Close()

	m.SetTTL("a", 10)
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(deleted) != 0 {
		t.Fatalf("inert manager must never expire entries, got %v", deleted)
	}
}

func TestManager_ExpiresAtDeadline(t *testing.T) {
	var deleted []string
	var mu sync.Mutex
	m := New[string](time.Hour, func(k string) { // tickDuration unused: we drive Step() manually
		mu.Lock()
		deleted = append(deleted, k)
		mu.Unlock()
	})
	defer m.Close()

	m.SetTTL("k", 250) // tickMs = time.Hour.Milliseconds() so this resolves to tick+1
	drain(m)

	m.Step() // tick 0 -> 1: ceil(250/tickMs) == 1 puts k in bucket 1, so nothing is due yet
	mu.Lock()
	n := len(deleted)
	mu.Unlock()
	if n != 0 {
		t.Fatalf("expired too early: %v", deleted)
	}

	m.Step() // tick 1 -> 2
	mu.Lock()
	defer mu.Unlock()
	if len(deleted) != 1 || deleted[0] != "k" {
		t.Fatalf("want [k], got %v", deleted)
	}
}

func TestManager_TouchDefersDeletion(t *testing.T) {
	var deleted []string
	var mu sync.Mutex
	m := New[string](time.Hour, func(k string) {
		mu.Lock()
		deleted = append(deleted, k)
		mu.Unlock()
	})
	defer m.Close()

	m.SetTTL("k", 1) // applied at nowTick=0 -> deadline bucket 1
	drain(m)
	m.Step() // tick 0 -> 1: bucket 0 empty, not due yet

	// Refresh before the original deadline (bucket 1) is checked: applied at
	// nowTick=1 -> deadline bucket 2, superseding the stale bucket-1 entry.
	m.SetTTL("k", 1)
	drain(m)
	m.Step() // tick 1 -> 2: bucket 1 still holds a stale "k" reference, but
	// keyDeadline["k"] is now 2, so it's filtered rather than deleted.

	mu.Lock()
	n := len(deleted)
	mu.Unlock()
	if n != 0 {
		t.Fatalf("refresh must defer the original deadline, got %v", deleted)
	}

	m.Step() // tick 2 -> 3: bucket 2 is now due.
	mu.Lock()
	defer mu.Unlock()
	if len(deleted) != 1 || deleted[0] != "k" {
		t.Fatalf("want exactly one deferred delete of k, got %v", deleted)
	}
}

func TestManager_ClearPreventsExpiry(t *testing.T) {
	var deleted []string
	var mu sync.Mutex
	m := New[string](time.Hour, func(k string) {
		mu.Lock()
		deleted = append(deleted, k)
		mu.Unlock()
	})
	defer m.Close()

	m.SetTTL("k", 1)
	m.Clear("k")
	drain(m)

	for i := 0; i < 5; i++ {
		m.Step()
	}

	mu.Lock()
	defer mu.Unlock()
	if len(deleted) != 0 {
		t.Fatalf("cleared key must not expire, got %v", deleted)
	}
}

// drain does nothing: Step drains the pending channel synchronously, so
// intents enqueued on the test goroutine are already visible to the next
// Step() call. It is a no-op spacer kept for readability.
func drain(m *Manager[string]) {}
