package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/alvmarrod/proxy-harvest/internal/fetch"
	"github.com/alvmarrod/proxy-harvest/internal/proxy"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Defaults for Options fields left at zero.
const (
	DefaultItemCount      = 5000
	DefaultNumWorkers     = 5
	DefaultMaxRetries     = 3
	DefaultCooldown       = 15 * time.Second
	DefaultEmptyPoolPause = 15 * time.Second
)

// Results maps an item key to its payload. Items that never succeeded
// are absent.
type Results map[int]fetch.Payload

// ProxySource lists the proxies to schedule over. It is called once.
type ProxySource interface {
	ListProxies(ctx context.Context) ([]*proxy.Proxy, error)
}

// LoadPool builds a pool from src. A failing or empty source is fatal to
// the run and must be handled before any worker starts.
func LoadPool(ctx context.Context, src ProxySource, usageLimit int) (*proxy.Pool, error) {
	proxies, err := src.ListProxies(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list proxies: %w", err)
	}
	if len(proxies) == 0 {
		return nil, fmt.Errorf("proxy source returned no proxies")
	}
	return proxy.NewPool(proxies, usageLimit)
}

// Options configures a run.
type Options struct {
	ItemCount         int
	NumWorkers        int
	MaxRetries        int
	Cooldown          time.Duration
	EmptyPoolPause    time.Duration
	RetireOnSuccess   bool
	RequestsPerSecond float64
}

func (o *Options) applyDefaults() {
	if o.ItemCount == 0 {
		o.ItemCount = DefaultItemCount
	}
	if o.NumWorkers == 0 {
		o.NumWorkers = DefaultNumWorkers
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.Cooldown == 0 {
		o.Cooldown = DefaultCooldown
	}
	if o.EmptyPoolPause == 0 {
		o.EmptyPoolPause = DefaultEmptyPoolPause
	}
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithPacer replaces the timer-based Governor.
func WithPacer(p Pacer) Option {
	return func(s *Scheduler) { s.ctrl.pacer = p }
}

// WithObserver registers an event sink, typically a metrics tracker.
func WithObserver(o Observer) Option {
	return func(s *Scheduler) { s.ctrl.observer = o }
}

// Scheduler fans the item range out to partitions sharing one pool.
type Scheduler struct {
	opts Options
	pool *proxy.Pool
	ctrl *Controller
}

// New creates a Scheduler.
func New(pool *proxy.Pool, exec fetch.Executor, opts Options, options ...Option) *Scheduler {
	opts.applyDefaults()

	s := &Scheduler{
		opts: opts,
		pool: pool,
		ctrl: &Controller{
			pool:            pool,
			exec:            exec,
			pacer:           Governor{},
			limiter:         NewLimiter(opts.RequestsPerSecond),
			observer:        nopObserver{},
			maxRetries:      opts.MaxRetries,
			cooldown:        opts.Cooldown,
			emptyPoolPause:  opts.EmptyPoolPause,
			retireOnSuccess: opts.RetireOnSuccess,
		},
	}
	for _, o := range options {
		o(s)
	}
	return s
}

// Run processes every item once and returns the merged results. Fetch
// failures never abort the run. If ctx is cancelled, the partial results
// are returned together with the first partition's stop error, which wraps
// ctx.Err().
func (s *Scheduler) Run(ctx context.Context) (Results, error) {
	ranges := Partition(s.opts.ItemCount, s.opts.NumWorkers)
	logrus.Infof("Starting %d partitions over %d items (pool of %d proxies)",
		len(ranges), s.opts.ItemCount, s.pool.Stats().Size)

	parts := make([]Results, len(ranges))

	// A plain Group: one stopped partition must not cancel the others'
	// in-flight work, the shared ctx already does that.
	var g errgroup.Group
	for i, r := range ranges {
		g.Go(func() error {
			var err error
			parts[i], err = s.runPartition(ctx, i+1, r)
			return err
		})
	}
	err := g.Wait()

	merged := Merge(parts...)
	logrus.Infof("All partitions finished: %d/%d items fetched", len(merged), s.opts.ItemCount)
	return merged, err
}

// runPartition processes one range sequentially in ascending order. It
// returns an error only when cancellation left items unprocessed.
func (s *Scheduler) runPartition(ctx context.Context, id int, r Range) (Results, error) {
	logrus.Infof("Partition %d started: items %d-%d", id, r.First, r.Last)

	local := make(Results, r.Len())
	exhausted := 0
	for item := r.First; item <= r.Last; item++ {
		res := s.ctrl.Fetch(ctx, item)
		if res.Outcome == Succeeded {
			local[item] = res.Payload
			continue
		}
		exhausted++
	}

	if err := ctx.Err(); err != nil {
		logrus.Warnf("Partition %d stopped early: %d fetched, %d missing", id, len(local), exhausted)
		return local, fmt.Errorf("partition %d (items %d-%d) stopped: %w", id, r.First, r.Last, err)
	}
	logrus.Infof("Partition %d finished: %d fetched, %d missing", id, len(local), exhausted)
	return local, nil
}
