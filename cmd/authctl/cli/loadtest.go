package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehp-platform/authcore"
	"github.com/ehp-platform/authcore/jwt"
	"github.com/ehp-platform/authcore/session"
)

var (
	flagLoadSessions    int
	flagLoadConcurrency int
	flagLoadOps         int
	flagLoadEmbedded    bool
	flagLoadPrefix      string

	LoadtestCmd = &cobra.Command{
		Use:   "loadtest",
		Short: "Measure session validation latency against Redis",
		Long: `
Usage: authctl loadtest [options]

  Seeds sessions through the session manager and runs a validate phase and a
  list phase, printing p50/p95/p99 latencies. Without --embedded the Redis
  connection comes from REDIS_HOST/REDIS_PORT; with it an in-process
  miniredis is used.

      $ authctl loadtest --embedded --sessions 10000 --ops 100000
`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runLoadtestCmd,
	}
)

func init() {
	LoadtestCmd.Flags().IntVar(&flagLoadSessions, "sessions", 10000, "Number of sessions to seed")
	LoadtestCmd.Flags().IntVar(&flagLoadConcurrency, "concurrency", 64, "Number of concurrent workers")
	LoadtestCmd.Flags().IntVar(&flagLoadOps, "ops", 100000, "Operations per phase")
	LoadtestCmd.Flags().BoolVar(&flagLoadEmbedded, "embedded", false, "Run against an in-process miniredis")
	LoadtestCmd.Flags().StringVar(&flagLoadPrefix, "prefix", "lt", "Session key prefix")
}

type loadtestOptions struct {
	sessions    int
	concurrency int
	ops         int
	prefix      string
}

type seededSession struct {
	principalID string
	token       string
}

func runLoadtestCmd(cmd *cobra.Command, args []string) error {
	opts := loadtestOptions{
		sessions:    flagLoadSessions,
		concurrency: flagLoadConcurrency,
		ops:         flagLoadOps,
		prefix:      flagLoadPrefix,
	}
	if opts.sessions <= 0 || opts.concurrency <= 0 || opts.ops <= 0 {
		return errors.New("sessions, concurrency, and ops must be > 0")
	}

	var client redis.UniversalClient
	if flagLoadEmbedded {
		mr, err := miniredis.Run()
		if err != nil {
			return fmt.Errorf("failed to start miniredis: %w", err)
		}
		defer mr.Close()
		client = redis.NewClient(&redis.Options{Addr: mr.Addr()})
		fmt.Fprintf(cmd.OutOrStdout(), "using miniredis at %s\n", mr.Addr())
	} else {
		cfg := authcore.LoadConfigFromEnv()
		opt := cfg.Redis.Options()
		client = redis.NewClient(opt)
		fmt.Fprintf(cmd.OutOrStdout(), "using redis at %s\n", opt.Addr)
	}
	defer client.Close()

	_, err := runLoadtest(cmd.Context(), cmd.OutOrStdout(), client, opts)
	return err
}

// runLoadtest seeds opts.sessions sessions and runs both phases, writing a
// summary to out.
func runLoadtest(ctx context.Context, out io.Writer, client redis.UniversalClient, opts loadtestOptions) (map[string]phaseStats, error) {
	codec, err := jwt.NewManager(jwt.Config{
		Secret:    []byte("authctl-loadtest"),
		Issuer:    "authctl-loadtest",
		AccessTTL: 24 * time.Hour,
	})
	if err != nil {
		return nil, err
	}
	manager, err := session.NewManager(codec, session.NewStore(client, opts.prefix), session.ManagerConfig{
		SessionTimeout: 24 * time.Hour,
	}, zerolog.Nop())
	if err != nil {
		return nil, err
	}

	// one principal per session keeps every jti distinct
	seeded := make([]seededSession, opts.sessions)
	fmt.Fprintf(out, "seeding %d sessions...\n", opts.sessions)
	startSeed := time.Now()
	for i := range seeded {
		pid := fmt.Sprintf("lt-%d", i)
		pair, err := manager.CreateSession(ctx, pid, "", false)
		if err != nil {
			return nil, fmt.Errorf("seed session %d: %w", i, err)
		}
		seeded[i] = seededSession{principalID: pid, token: pair.AccessToken}
	}
	fmt.Fprintf(out, "seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	results := map[string]phaseStats{
		"validate": runPhase(opts.ops, opts.concurrency, len(seeded), func(idx int) error {
			_, _, err := manager.Validate(ctx, seeded[idx].token)
			return err
		}),
		"list": runPhase(opts.ops, opts.concurrency, len(seeded), func(idx int) error {
			_, err := manager.ListSessions(ctx, seeded[idx].principalID)
			return err
		}),
	}

	fmt.Fprintln(out, "---- results ----")
	printStats(out, "validate", results["validate"])
	printStats(out, "list", results["list"])
	return results, nil
}

// runPhase spreads ops calls of op over concurrency workers, each call
// targeting a random seeded index.
func runPhase(ops, concurrency, population int, op func(idx int) error) phaseStats {
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
				err := op(r.Intn(population))
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

// percentile expects samples sorted ascending.
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

func printStats(out io.Writer, name string, s phaseStats) {
	fmt.Fprintf(out, "%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
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
