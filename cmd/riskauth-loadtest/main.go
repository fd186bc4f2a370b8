// Command riskauth-loadtest drives login, token validation and refresh rotation
// against an in-process engine backed by Redis and SQLite.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	goRiskAuth "github.com/MrEthical07/goRiskAuth"
	"github.com/MrEthical07/goRiskAuth/store/gormstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const loadPassword = "load-test-password"

type userState struct {
	email   string
	access  string
	refresh string
	mu      sync.Mutex
}

func main() {
	var (
		users       = flag.Int("users", 2000, "number of users to seed and log in")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 50000, "operations per validate/refresh phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		dbPath      = flag.String("db", "file:loadtest?mode=memory&cache=shared", "sqlite database path")
	)
	flag.Parse()

	if *users <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "users, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := goRiskAuth.WithClientIP(context.Background(), "198.51.100.10")

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fail("start miniredis", err)
		}
		defer mr.Close()
		addr = mr.Addr()
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		fmt.Printf("using redis at %s\n", addr)
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	defer func() { _ = client.Close() }()

	db, err := gormstore.OpenSQLite(ctx, *dbPath)
	if err != nil {
		fail("open sqlite", err)
	}
	if err := gormstore.Migrate(ctx, db); err != nil {
		fail("migrate", err)
	}
	store := gormstore.New(db)
	defer func() { _ = store.Close() }()

	cfg := goRiskAuth.DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("loadtest-loadtest-loadtest-32byte")
	cfg.Password = goRiskAuth.PasswordConfig{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
	cfg.Lockout.MaxAttempts = 1 << 20
	cfg.Risk.ChallengeThreshold = 100
	cfg.Risk.BlockThreshold = 100

	engine, err := goRiskAuth.New().
		WithConfig(cfg).
		WithRedis(client).
		WithCredentialStore(store).
		WithSessionStore(store).
		WithEventStore(store).
		Build()
	if err != nil {
		fail("build engine", err)
	}
	defer engine.Close()

	hash, err := engine.HashPassword(loadPassword)
	if err != nil {
		fail("hash password", err)
	}
	states := make([]userState, *users)
	fmt.Printf("seeding %d users...\n", *users)
	startSeed := time.Now()
	for i := range states {
		states[i].email = fmt.Sprintf("load-%d@example.com", i)
		err := store.CreateUser(ctx, &goRiskAuth.User{
			ID:           fmt.Sprintf("u-%d", i),
			Email:        states[i].email,
			PasswordHash: hash,
			Roles:        []string{"user"},
			Active:       true,
		})
		if err != nil {
			fail("create user", err)
		}
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	loginStats := runPhase(*users, *concurrency, func(i int, _ *rand.Rand) error {
		st := &states[i]
		res, err := engine.Login(ctx, goRiskAuth.LoginRequest{
			Email:             st.email,
			Password:          loadPassword,
			DeviceFingerprint: "loadtest",
		})
		if err != nil {
			return err
		}
		st.mu.Lock()
		st.access, st.refresh = res.AccessToken, res.RefreshToken
		st.mu.Unlock()
		return nil
	})

	validateStats := runPhase(*ops, *concurrency, func(_ int, r *rand.Rand) error {
		st := &states[r.Intn(len(states))]
		st.mu.Lock()
		token := st.access
		st.mu.Unlock()
		_, err := engine.AuthenticateToken(ctx, token)
		return err
	})

	refreshStats := runPhase(*ops, *concurrency, func(_ int, r *rand.Rand) error {
		st := &states[r.Intn(len(states))]
		st.mu.Lock()
		defer st.mu.Unlock()
		pair, err := engine.Refresh(ctx, st.refresh)
		if err != nil {
			return err
		}
		st.access, st.refresh = pair.AccessToken, pair.RefreshToken
		return nil
	})

	fmt.Println("---- results ----")
	printStats("login", loginStats)
	printStats("validate", validateStats)
	printStats("refresh", refreshStats)
	fmt.Printf("audit dropped: %d\n", engine.AuditDropped())
}

// runPhase runs op ops times spread over concurrency workers and records per-call latency.
func runPhase(ops, concurrency int, op func(i int, r *rand.Rand) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(i, r)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(sorted []time.Duration, p int) time.Duration {
	switch {
	case len(sorted) == 0:
		return 0
	case p <= 0:
		return sorted[0]
	case p >= 100:
		return sorted[len(sorted)-1]
	}
	return sorted[(len(sorted)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%-8s ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name, s.ops, s.failures,
		s.total.Round(time.Millisecond), s.opsPerS,
		s.p50.Round(time.Microsecond), s.p95.Round(time.Microsecond), s.p99.Round(time.Microsecond),
	)
}

func fail(what string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", what, err)
	os.Exit(1)
}
