// Command bench runs a synthetic row-lock/TTL-churn workload against the
// cache and exposes optional pprof/Prometheus endpoints.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/concache/concache/concache"
	pmet "github.com/concache/concache/metrics/prom"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// ---- Flags ----
	var (
		shards   = flag.Int("shards", 0, "lock pool / store shard count (0=auto)")
		ttlCheck = flag.Duration("ttl_check", 50*time.Millisecond, "TTL tick length")
		ttlDefer = flag.Duration("ttl_default", 2*time.Second, "default per-entry TTL")

		workers  = flag.Int("workers", 2*runtime.GOMAXPROCS(0), "number of worker goroutines")
		duration = flag.Duration("duration", 10*time.Second, "benchmark duration")
		readPct  = flag.Int("reads", 70, "read percentage [0..100]")
		updatePct = flag.Int("updates", 15, "Update (read-modify-write) percentage of non-read ops [0..100]")

		keys    = flag.Int("keys", 1_000_000, "keyspace size")
		zipfS   = flag.Float64("zipf_s", 1.1, "Zipf s > 1 (skew)")
		zipfV   = flag.Float64("zipf_v", 1.0, "Zipf v")
		seed    = flag.Int64("seed", time.Now().UnixNano(), "random seed")
		preload = flag.Int("preload", 500_000, "preload entries")

		pprofAddr   = flag.String("pprof", "", "serve pprof at addr (e.g. :6060); empty = disabled")
		metricsAddr = flag.String("http", ":8080", "serve Prometheus metrics at addr")
	)
	flag.Parse()

	if *pprofAddr != "" {
		go func() {
			log.Printf("pprof: serving at %s", *pprofAddr)
			log.Println(http.ListenAndServe(*pprofAddr, nil))
		}()
	}

	metrics := pmet.New(nil, "concache", "bench", nil)
	http.Handle("/metrics", promhttp.Handler())
	go func() {
		log.Printf("metrics: serving at %s", *metricsAddr)
		log.Println(http.ListenAndServe(*metricsAddr, nil))
	}()

	c := concache.New[string, string](concache.Options[string, string]{
		Shards:     *shards,
		TTLCheck:   *ttlCheck,
		DefaultTTL: *ttlDefer,
		Metrics:    metrics,
	})
	defer func() { _ = c.Close() }()

	ctx := context.Background()
	for i := 0; i < *preload; i++ {
		k := "k:" + strconv.Itoa(i)
		_ = c.Put(ctx, k, "v"+strconv.Itoa(i))
	}

	readPctVal := *readPct
	updatePctVal := *updatePct
	keysMax := uint64(*keys - 1)
	seedBase := *seed
	zipfSVal := *zipfS
	zipfVVal := *zipfV
	workersN := *workers
	if workersN <= 0 {
		workersN = 1
	}

	var reads, writes, updates, hits, misses, lockTimeouts, total uint64
	runCtx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(workersN)
	for w := 0; w < workersN; w++ {
		go func(id int) {
			defer wg.Done()

			localR := rand.New(rand.NewSource(seedBase + int64(id)*9973))
			localZipf := rand.NewZipf(localR, zipfSVal, zipfVVal, keysMax)

			keyByZipf := func() string {
				return "k:" + strconv.FormatUint(localZipf.Uint64(), 10)
			}

			for {
				select {
				case <-runCtx.Done():
					return
				default:
				}

				atomic.AddUint64(&total, 1)
				k := keyByZipf()
				if int(localR.Int31n(100)) < readPctVal {
					atomic.AddUint64(&reads, 1)
					if _, ok := c.Get(ctx, k); ok {
						atomic.AddUint64(&hits, 1)
					} else {
						atomic.AddUint64(&misses, 1)
					}
					continue
				}
				if int(localR.Int31n(100)) < updatePctVal {
					atomic.AddUint64(&updates, 1)
					err := c.Update(ctx, k, func(old string, existed bool) concache.UpdateResult[string] {
						return concache.Changed("v" + strconv.Itoa(localR.Int()))
					})
					if err != nil && errIsLockTimeout(err) {
						atomic.AddUint64(&lockTimeouts, 1)
					}
					continue
				}
				atomic.AddUint64(&writes, 1)
				if err := c.Put(ctx, k, "v"+strconv.Itoa(localR.Int())); err != nil && errIsLockTimeout(err) {
					atomic.AddUint64(&lockTimeouts, 1)
				}
			}
		}(w)
	}
	wg.Wait()
	elapsed := time.Since(start)

	ops := atomic.LoadUint64(&total)
	readsN := atomic.LoadUint64(&reads)
	writesN := atomic.LoadUint64(&writes)
	updatesN := atomic.LoadUint64(&updates)
	hitsN := atomic.LoadUint64(&hits)
	missesN := atomic.LoadUint64(&misses)
	lockTimeoutsN := atomic.LoadUint64(&lockTimeouts)

	hitRate := 0.0
	if readsN > 0 {
		hitRate = float64(hitsN) / float64(readsN) * 100
	}

	fmt.Printf("shards=%d workers=%d keys=%d dur=%v seed=%d\n", *shards, workersN, *keys, elapsed, seedBase)
	fmt.Printf("ops=%d (%.0f ops/s)  reads=%d  writes=%d  updates=%d\n",
		ops, float64(ops)/elapsed.Seconds(), readsN, writesN, updatesN)
	fmt.Printf("hits=%d  misses=%d  hit-rate=%.2f%%  lock-timeouts=%d\n", hitsN, missesN, hitRate, lockTimeoutsN)
	fmt.Printf("Len()=%d\n", c.Len())
}

func errIsLockTimeout(err error) bool {
	var e *concache.Error
	return errors.As(err, &e) && e.Kind == concache.KindLockTimeout
}
