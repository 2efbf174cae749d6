// Command session-loadtest seeds sessions through the engine and measures
// Validate and reissue latency under concurrency.
package main

import (
	"context"
	crand "crypto/rand"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"math/rand/v2"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type identityState struct {
	identity string
	wire     string
	mu       sync.Mutex
}

func main() {
	var (
		identities  = flag.Int("identities", 10000, "number of identities to seed")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 200000, "operations per phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "sess", "session key prefix")
		cacheOn     = flag.Bool("cache", true, "enable the local validation cache")
		backend     = flag.String("cache-backend", goSession.CacheBackendTTL, "cache backend: ttl or ristretto")
		sealed      = flag.Bool("sealed", false, "seal tokens with the transport codec")
	)
	flag.Parse()

	if *identities <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "identities, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", mr.Addr())
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	engine, err := buildEngine(client, *prefix, *cacheOn, *backend, *sealed)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	ctx := context.Background()
	states := make([]identityState, *identities)
	fmt.Printf("seeding %d sessions...\n", *identities)
	startSeed := time.Now()
	for i := range states {
		id := fmt.Sprintf("+91%010d", i)
		res, err := engine.Issue(ctx, id, goSession.IssueOptions{})
		if err != nil {
			fmt.Fprintf(os.Stderr, "issue failed: %v\n", err)
			os.Exit(1)
		}
		states[i].identity = id
		states[i].wire = res.Token
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	before := engine.MetricsSnapshot()
	validateReport := runPhase(*ops, *concurrency, 7919, func(r *rand.Rand) error {
		s := &states[r.IntN(len(states))]
		s.mu.Lock()
		wire := s.wire
		s.mu.Unlock()
		_, err := engine.Validate(ctx, wire)
		return err
	})
	after := engine.MetricsSnapshot()

	reissueReport := runPhase(*ops/10+1, *concurrency, 6151, func(r *rand.Rand) error {
		s := &states[r.IntN(len(states))]
		s.mu.Lock()
		defer s.mu.Unlock()
		res, err := engine.Issue(ctx, s.identity, goSession.IssueOptions{})
		if err == nil {
			s.wire = res.Token
		}
		return err
	})

	fmt.Println("results:")
	validateReport.print("validate")
	reissueReport.print("reissue")

	hits := after.Counters[goSession.MetricValidateCacheHit] - before.Counters[goSession.MetricValidateCacheHit]
	misses := after.Counters[goSession.MetricValidateCacheMiss] - before.Counters[goSession.MetricValidateCacheMiss]
	if hits+misses > 0 {
		fmt.Printf("cache: hits=%d misses=%d hit_ratio=%.3f\n", hits, misses, float64(hits)/float64(hits+misses))
	}
}

func buildEngine(client redis.UniversalClient, prefix string, cacheOn bool, backend string, sealed bool) (*goSession.Engine, error) {
	cfg := goSession.DefaultConfig()
	cfg.Token.PrivateKey = make([]byte, 32)
	if _, err := crand.Read(cfg.Token.PrivateKey); err != nil {
		return nil, err
	}
	cfg.Session.RedisPrefix = prefix
	cfg.Cache.Enabled = cacheOn
	cfg.Cache.Backend = backend
	cfg.Profile.Enabled = false
	cfg.RateLimit.Enabled = false
	if sealed {
		key := make([]byte, 32)
		if _, err := crand.Read(key); err != nil {
			return nil, err
		}
		cfg.Transport.Enabled = true
		cfg.Transport.Key = key
	}

	return goSession.New().
		WithConfig(cfg).
		WithRedis(client).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		WithLatencyHistograms(true).
		Build()
}

// runPhase spreads ops calls of op over concurrency workers. Each worker
// keeps its own samples; they are merged once the phase ends.
func runPhase(ops, concurrency int, seed uint64, op func(*rand.Rand) error) report {
	var (
		next    atomic.Int64
		wg      sync.WaitGroup
		perWork = make([]workerSamples, concurrency)
	)

	start := time.Now()
	for w := range perWork {
		wg.Add(1)
		go func(ws *workerSamples) {
			defer wg.Done()
			r := rand.New(rand.NewPCG(seed, uint64(w)))
			for next.Add(1) <= int64(ops) {
				t0 := time.Now()
				err := op(r)
				ws.latencies = append(ws.latencies, time.Since(t0))
				if err != nil {
					ws.record(err)
				}
			}
		}(&perWork[w])
	}
	wg.Wait()

	return summarize(time.Since(start), perWork)
}

type workerSamples struct {
	latencies []time.Duration
	failures  map[string]int
}

func (ws *workerSamples) record(err error) {
	if ws.failures == nil {
		ws.failures = make(map[string]int)
	}
	ws.failures[failureLabel(err)]++
}

func failureLabel(err error) string {
	var authErr *goSession.AuthError
	if errors.As(err, &authErr) {
		return authErr.Kind.String()
	}
	return "error"
}

type report struct {
	elapsed  time.Duration
	samples  []time.Duration
	failures map[string]int
}

func summarize(elapsed time.Duration, perWork []workerSamples) report {
	r := report{elapsed: elapsed, failures: map[string]int{}}
	for _, ws := range perWork {
		r.samples = append(r.samples, ws.latencies...)
		for k, n := range ws.failures {
			r.failures[k] += n
		}
	}
	slices.Sort(r.samples)
	return r
}

// quantile returns the nearest-rank q-quantile of the sorted samples.
func (r report) quantile(q float64) time.Duration {
	if len(r.samples) == 0 {
		return 0
	}
	i := int(q * float64(len(r.samples)-1))
	return r.samples[min(max(i, 0), len(r.samples)-1)]
}

func (r report) print(name string) {
	n := len(r.samples)
	rate := 0.0
	if r.elapsed > 0 {
		rate = float64(n) / r.elapsed.Seconds()
	}
	fmt.Printf("%-8s n=%d elapsed=%s rate=%.0f/s p50=%s p95=%s p99=%s\n",
		name, n, r.elapsed.Round(time.Millisecond), rate,
		r.quantile(0.50).Round(time.Microsecond),
		r.quantile(0.95).Round(time.Microsecond),
		r.quantile(0.99).Round(time.Microsecond),
	)
	if len(r.failures) == 0 {
		return
	}
	kinds := slices.Sorted(maps.Keys(r.failures))
	for _, k := range kinds {
		fmt.Printf("%-8s   failed[%s]=%d\n", "", k, r.failures[k])
	}
}
