package store

import (
	"sort"
	"testing"
)

func TestStore_SetBasics(t *testing.T) {
	s := New[string, int](Set, 4, nil)

	if ok := s.InsertIfAbsent("a", 1); !ok {
		t.Fatal("InsertIfAbsent on empty key must succeed")
	}
	if ok := s.InsertIfAbsent("a", 2); ok {
		t.Fatal("InsertIfAbsent on present key must fail")
	}
	if v, ok := s.Lookup("a"); !ok || v != 1 {
		t.Fatalf("got %v, %v", v, ok)
	}

	s.Insert("a", 9)
	if v, _ := s.Lookup("a"); v != 9 {
		t.Fatalf("Insert did not overwrite, got %v", v)
	}

	if !s.Delete("a") {
		t.Fatal("Delete of present key must return true")
	}
	if s.Delete("a") {
		t.Fatal("Delete of absent key must return false")
	}
	if _, ok := s.Lookup("a"); ok {
		t.Fatal("key must be absent after Delete")
	}
}

func TestStore_OrderedKeys(t *testing.T) {
	// Single shard: Keys() only guarantees ascending order within a shard,
	// so global ordering requires shards == 1 (see OrderedSet's doc).
	s := New[int, string](OrderedSet, 1, func(a, b int) bool { return a < b })

	vals := []int{5, 1, 9, 3, 7, 2}
	for _, v := range vals {
		s.Insert(v, "x")
	}
	s.Delete(9)

	got := s.Keys()
	if !sort.IntsAreSorted(got) {
		t.Fatalf("ordered store did not keep keys sorted: %v", got)
	}
	if len(got) != len(vals)-1 {
		t.Fatalf("want %d keys, got %d", len(vals)-1, len(got))
	}
}

func TestStore_LenConsistentWithKeys(t *testing.T) {
	s := New[int, int](Set, 8, nil)
	for i := 0; i < 100; i++ {
		s.Insert(i, i*i)
	}
	if s.Len() != 100 {
		t.Fatalf("want 100, got %d", s.Len())
	}
	if len(s.Keys()) != 100 {
		t.Fatalf("want 100 keys, got %d", len(s.Keys()))
	}
}
