package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	goSSO "github.com/MrEthical07/goSSO"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const loadtestProvider = "loadtest"

type loadtestOptions struct {
	sessions    int
	users       int
	concurrency int
	ops         int
	redisAddr   string
	prefix      string
}

func newLoadtestCmd(root *rootOptions) *cobra.Command {
	opts := loadtestOptions{}

	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Measure login, lookup and conversion throughput",
		Long: `Seed sessions through Login, then run concurrent Current lookups and
Deserialize calls and report latency percentiles.

Without --redis-addr (or REDIS_ADDR) an in-process miniredis is used.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.sessions <= 0 || opts.users <= 0 || opts.concurrency <= 0 || opts.ops <= 0 {
				return errors.New("sessions, users, concurrency and ops must be > 0")
			}
			return runLoadtest(cmd.Context(), cmd.OutOrStdout(), root, opts)
		},
	}

	cmd.Flags().IntVar(&opts.sessions, "sessions", 10000, "number of sessions to seed")
	cmd.Flags().IntVar(&opts.users, "users", 1000, "number of distinct identities")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 64, "number of concurrent workers")
	cmd.Flags().IntVar(&opts.ops, "ops", 100000, "operations per phase")
	cmd.Flags().StringVar(&opts.redisAddr, "redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	cmd.Flags().StringVar(&opts.prefix, "prefix", "ssolt", "session key prefix")
	return cmd
}

func runLoadtest(ctx context.Context, out io.Writer, root *rootOptions, opts loadtestOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}

	addr := opts.redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		rdb     redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return fmt.Errorf("failed to start miniredis: %w", err)
		}
		rdb = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		cleanup = func() {
			_ = rdb.Close()
			mr.Close()
		}
		root.logger.WithField("addr", mr.Addr()).Info("using miniredis")
	} else {
		rdb = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = rdb.Close() }
		root.logger.WithField("addr", addr).Info("using redis")
	}
	defer cleanup()

	cfg := root.config
	cfg.Providers = append(cfg.Providers, goSSO.ProviderConfig{Name: loadtestProvider, Format: goSSO.FormatJSON})
	cfg.Session.Enabled = true
	cfg.Session.KeyPrefix = opts.prefix
	cfg.Metrics.Enabled = true

	client, err := goSSO.New().WithConfig(cfg).WithRedis(rdb).WithLogger(root.logger).Build()
	if err != nil {
		return err
	}
	defer client.Close()

	payloads := make([]string, opts.users)
	for i := range payloads {
		payloads[i] = fmt.Sprintf(`{"uid":"user-%d","name":"User %d","groups":["staff"]}`, i, i)
	}

	sids := make([]string, opts.sessions)
	root.logger.WithField("sessions", opts.sessions).Info("seeding sessions")
	seedStart := time.Now()
	for i := range sids {
		sess, err := client.Login(ctx, loadtestProvider, payloads[i%len(payloads)])
		if err != nil {
			return fmt.Errorf("login failed: %w", err)
		}
		sids[i] = sess.ID
	}
	root.logger.WithField("elapsed", time.Since(seedStart).Round(time.Millisecond)).Info("seeded")

	currentStats := runPhase(opts.ops, opts.concurrency, 7919, func(r *rand.Rand) error {
		_, err := client.Current(ctx, sids[r.Intn(len(sids))])
		return err
	})
	decodeStats := runPhase(opts.ops, opts.concurrency, 6151, func(r *rand.Rand) error {
		_, err := client.Deserialize(ctx, loadtestProvider, payloads[r.Intn(len(payloads))])
		return err
	})

	fmt.Fprintln(out, "---- results ----")
	printStats(out, "current", currentStats)
	printStats(out, "decode", decodeStats)

	if stats, ok := client.CacheStats(loadtestProvider); ok {
		root.logger.WithFields(logrus.Fields{
			"hits":   stats.Hits,
			"misses": stats.Misses,
		}).Info("conversion cache")
	}
	return nil
}

func runPhase(ops, concurrency int, seed int64, op func(r *rand.Rand) error) phaseStats {
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
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*seed))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r)
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
		return phaseStats{total: total, failures: failures}
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

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(w io.Writer, name string, s phaseStats) {
	fmt.Fprintf(w, "%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
