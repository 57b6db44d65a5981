// Command taskmanager-loadtest measures authenticate and refresh latency
// against Redis, or an embedded miniredis when no address is given.
package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	taskmanager "github.com/lewadaa/task-manager"
	"github.com/lewadaa/task-manager/directory"
	"github.com/lewadaa/task-manager/password"
)

type principal struct {
	mu      sync.Mutex
	access  string
	refresh string
}

func main() {
	var (
		users       = flag.Int("users", 1000, "number of principals to log in")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 50000, "operations per phase (authenticate, refresh)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *users <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "users, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	client, cleanup, err := connect(*redisAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "redis: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	engine, err := buildEngine(client, *users)
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	ctx := context.Background()
	states := make([]principal, *users)
	start := time.Now()
	for i := range states {
		pair, err := engine.Login(ctx, username(i), "load-password")
		if err != nil {
			fmt.Fprintf(os.Stderr, "login %s: %v\n", username(i), err)
			os.Exit(1)
		}
		states[i].access, states[i].refresh = pair.AccessToken, pair.RefreshToken
	}
	fmt.Printf("logged in %d principals in %s\n", *users, time.Since(start).Round(time.Millisecond))

	authStats := runPhase(*ops, *concurrency, func(r *rand.Rand) error {
		p := &states[r.IntN(len(states))]
		p.mu.Lock()
		access := p.access
		p.mu.Unlock()
		_, err := engine.Authenticate(ctx, access, "")
		return err
	})

	refreshStats := runPhase(*ops, *concurrency, func(r *rand.Rand) error {
		p := &states[r.IntN(len(states))]
		p.mu.Lock()
		defer p.mu.Unlock()
		pair, err := engine.Refresh(ctx, p.refresh)
		if err != nil {
			return err
		}
		p.access, p.refresh = pair.AccessToken, pair.RefreshToken
		return nil
	})

	fmt.Println("---- results ----")
	printStats("authenticate", authStats)
	printStats("refresh", refreshStats)

	counters, err := collectCounters(ctx, engine)
	if err != nil {
		fmt.Fprintf(os.Stderr, "counters: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("---- engine counters ----")
	printCounters(counters)
}

func connect(addr string) (redis.UniversalClient, func(), error) {
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr != "" {
		client := redis.NewClient(&redis.Options{Addr: addr})
		fmt.Printf("using redis at %s\n", addr)
		return client, func() { _ = client.Close() }, nil
	}

	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, err
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	fmt.Printf("using miniredis at %s\n", mr.Addr())
	return client, func() {
		_ = client.Close()
		mr.Close()
	}, nil
}

func buildEngine(client redis.UniversalClient, users int) (*taskmanager.Engine, error) {
	hasher, err := password.NewBcrypt(bcrypt.MinCost)
	if err != nil {
		return nil, err
	}
	// Every principal shares one hash so seeding stays cheap.
	hash, err := hasher.Hash("load-password")
	if err != nil {
		return nil, err
	}
	dir := directory.NewMemory()
	for i := 0; i < users; i++ {
		if err := dir.Put(taskmanager.PrincipalRecord{Username: username(i), Role: taskmanager.RoleUser, PasswordHash: hash}); err != nil {
			return nil, err
		}
	}

	cfg := taskmanager.DefaultConfig()
	cfg.JWT.Secret = base64.StdEncoding.EncodeToString(bytes.Repeat([]byte("L"), 32))
	cfg.Password.Scheme = password.SchemeBcrypt
	cfg.Password.BcryptCost = bcrypt.MinCost
	cfg.Security.EnableLoginThrottle = false

	return taskmanager.New().
		WithConfig(cfg).
		WithRedis(client).
		WithDirectory(dir).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		Build()
}

func username(i int) string { return fmt.Sprintf("load-user-%d", i) }

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
}

func runPhase(ops, concurrency int, op func(*rand.Rand) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    atomic.Int64
		failures  atomic.Int64
		mu        sync.Mutex
		latencies = make([]time.Duration, 0, ops)
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(seed uint64) {
			defer wg.Done()
			r := rand.New(rand.NewPCG(seed, uint64(time.Now().UnixNano())))
			for cursor.Add(1) <= int64(ops) {
				t0 := time.Now()
				err := op(r)
				d := time.Since(t0)
				if err != nil {
					failures.Add(1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(uint64(w))
	}
	wg.Wait()

	slices.Sort(latencies)
	return phaseStats{
		total:    time.Since(start),
		ops:      len(latencies),
		failures: failures.Load(),
		p50:      percentile(latencies, 50),
		p95:      percentile(latencies, 95),
		p99:      percentile(latencies, 99),
	}
}

func percentile(sorted []time.Duration, p int) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	return sorted[(len(sorted)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	var perSec float64
	if s.total > 0 {
		perSec = float64(s.ops) / s.total.Seconds()
	}
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name, s.ops, s.failures,
		s.total.Round(time.Millisecond), perSec,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
