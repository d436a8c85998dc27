package concache

import (
	"context"
	"math/rand"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// A mixed workload of concurrent Put/Get/Update/Delete/Isolated on random
// keys. Should pass under -race without detector reports.
func TestRace_Basic(t *testing.T) {
	c := New[string, int](Options[string, int]{
		TTLCheck:   10 * time.Millisecond,
		DefaultTTL: 50 * time.Millisecond,
	})
	t.Cleanup(func() { _ = c.Close() })

	workers := 4 * runtime.GOMAXPROCS(0)
	keyspace := 2_000
	deadline := time.Now().Add(1500 * time.Millisecond)

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(id int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(id)*9973))
			ctx := context.Background()
			for time.Now().Before(deadline) {
				k := "k:" + strconv.Itoa(r.Intn(keyspace))
				switch r.Intn(100) {
				case 0, 1, 2, 3, 4: // ~5% — Delete
					_ = c.Delete(ctx, k)
				case 5, 6, 7, 8, 9: // ~5% — Touch
					c.Touch(k)
				case 10, 11, 12, 13, 14: // ~5% — Update
					_ = c.Update(ctx, k, func(old int, existed bool) UpdateResult[int] {
						return Changed(old + 1)
					})
				case 15, 16, 17, 18, 19: // ~5% — Isolated
					_ = c.Isolated(ctx, uint64(r.Intn(keyspace)), func(ctx context.Context) error {
						return c.Put(ctx, k, r.Intn(1000))
					})
				case 20, 21, 22, 23, 24, 25, 26, 27, 28, 29: // ~10% — Put
					_ = c.Put(ctx, k, r.Intn(1000))
				default: // ~70% — Get
					c.Get(ctx, k)
				}
			}
		}(w)
	}
	wg.Wait()
}

// One hundred goroutines call GetOrStore on the same key concurrently. The
// loader should run at most once (row-lock coalescing takes the place of a
// dedicated singleflight).
func TestRace_GetOrStore(t *testing.T) {
	var calls int64

	c := New[string, string](Options[string, string]{})
	t.Cleanup(func() { _ = c.Close() })

	const goroutines = 100
	key := "same-key"

	start := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(goroutines)

	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			<-start
			v, err := c.GetOrStore(context.Background(), key, func() (string, error) {
				atomic.AddInt64(&calls, 1)
				time.Sleep(2 * time.Millisecond)
				return "v:" + key, nil
			})
			if err != nil {
				t.Errorf("GetOrStore error: %v", err)
				return
			}
			if v != "v:"+key {
				t.Errorf("unexpected value: %q", v)
			}
		}()
	}

	close(start)
	wg.Wait()

	if got := atomic.LoadInt64(&calls); got > 1 {
		t.Fatalf("loader should run at most once, got %d", got)
	}

	if v, err := c.GetOrStore(context.Background(), key, func() (string, error) {
		t.Fatal("loader must not run on a cache hit")
		return "", nil
	}); err != nil || v != "v:"+key {
		t.Fatalf("second GetOrStore failed: v=%q err=%v", v, err)
	}
}
