package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/alvmarrod/proxy-harvest/internal/config"
	"github.com/alvmarrod/proxy-harvest/internal/fetch"
	"github.com/alvmarrod/proxy-harvest/internal/memory"
	"github.com/alvmarrod/proxy-harvest/internal/metrics"
	"github.com/alvmarrod/proxy-harvest/internal/scheduler"
	"github.com/alvmarrod/proxy-harvest/internal/storage"
	"github.com/alvmarrod/proxy-harvest/internal/version"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the JSON config file")
	flag.Parse()

	// Configure logging
	logrus.SetLevel(logrus.InfoLevel)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	runID := uuid.New().String()
	log := logrus.WithField("run", runID)
	log.Infof("Proxy Harvest v%s starting...", version.Version)

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logrus.SetLevel(cfg.Level())

	log.Infof("Configuration loaded: items=%d, workers=%d, usage_limit=%d, retries=%d, source=%s",
		cfg.ItemCount, cfg.NumWorkers, cfg.ProxyUsageLimit, cfg.MaxRetries, cfg.ProxySource)

	// Open the proxy source and build the pool before any worker starts
	src, closeSrc, err := openSource(context.Background(), cfg)
	if err != nil {
		log.Fatalf("Failed to open proxy source: %v", err)
	}
	defer closeSrc()

	pool, err := scheduler.LoadPool(context.Background(), src, cfg.ProxyUsageLimit)
	if err != nil {
		closeSrc()
		log.Fatalf("Failed to load proxy pool: %v", err)
	}
	log.Infof("Proxy pool ready: %d proxies", pool.Stats().Size)

	fetcher, err := fetch.NewFetcher(fetch.Options{
		BaseURL:     cfg.BaseURL,
		Method:      cfg.Method,
		Body:        cfg.RequestBody,
		ContentType: cfg.ContentType,
		UserAgent:   cfg.UserAgent,
		Timeout:     cfg.RequestTimeout(),
		MaxBodySize: cfg.MaxBodyBytes,
	})
	if err != nil {
		closeSrc()
		log.Fatalf("Failed to create fetcher: %v", err)
	}

	// Initialize metrics tracker
	tracker := metrics.NewTracker(runID, cfg.ItemCount)

	s := scheduler.New(pool, fetcher, scheduler.Options{
		ItemCount:         cfg.ItemCount,
		NumWorkers:        cfg.NumWorkers,
		MaxRetries:        cfg.MaxRetries,
		Cooldown:          cfg.Cooldown(),
		EmptyPoolPause:    cfg.EmptyPoolPause(),
		RetireOnSuccess:   cfg.RetireOnSuccess(),
		RequestsPerSecond: cfg.MaxRequestsPerSecond,
	}, scheduler.WithObserver(tracker))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handler for graceful shutdown: the first signal stops
	// new acquisitions, the second forces an exit.
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Infof("Received signal: %v, letting in-flight fetches finish...", sig)
		cancel()

		sig = <-sigChan
		log.Warnf("Received second signal (%v) - forcing immediate exit!", sig)
		if err := tracker.WriteToFile(cfg.MetricsPath, "forced_exit"); err != nil {
			log.Errorf("Emergency metrics save failed: %v", err)
		}
		os.Exit(1)
	}()

	// Start progress logger
	var wg sync.WaitGroup
	stopProgress := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(cfg.ProgressInterval())
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				log.Info(tracker.LogProgress())
			case <-stopProgress:
				return
			}
		}
	}()

	start := time.Now()
	results, runErr := s.Run(ctx)

	terminationReason := "completed"
	if errors.Is(runErr, context.Canceled) {
		terminationReason = "signal"
		log.Warnf("Run interrupted: %v", runErr)
	}

	log.Info("Initiating shutdown...")
	log.Info("Step 1/3: Stopping progress logger...")
	close(stopProgress)
	wg.Wait()

	log.Info("Step 2/3: Writing results...")
	snap := tracker.GetSnapshot()
	log.Infof("Run finished in %v: %d/%d items fetched, %d missing | %d attempts (%d failed, avg %dms) | %d cooldowns, %d empty-pool pauses",
		time.Since(start).Round(time.Millisecond), len(results), cfg.ItemCount, snap.ItemsExhausted,
		snap.Attempts, snap.FailedAttempts, snap.AvgFetchTimeMs, snap.Cooldowns, snap.EmptyPoolPauses)
	if cfg.OutputPath != "" {
		if err := writeResults(cfg.OutputPath, results); err != nil {
			log.Errorf("Failed to write results: %v", err)
		} else {
			log.Infof("Results written to %s", cfg.OutputPath)
		}
	}

	log.Info("Step 3/3: Writing final metrics...")
	log.Info("Final stats: " + tracker.LogProgress())
	if err := tracker.WriteToFile(cfg.MetricsPath, terminationReason); err != nil {
		log.Errorf("Failed to write metrics: %v", err)
	} else {
		log.Infof("Metrics written to %s", cfg.MetricsPath)
	}

	log.Info("Shutdown complete. Goodbye!")
}

// openSource returns the configured proxy source and its closer.
func openSource(ctx context.Context, cfg *config.Config) (scheduler.ProxySource, func(), error) {
	switch cfg.ProxySource {
	case config.SourcePostgres:
		pg, err := storage.OpenPG(ctx, cfg.PGDSN, cfg.PGMaxConns, cfg.PGViaBouncer)
		if err != nil {
			return nil, nil, err
		}
		return pg, func() { pg.Close() }, nil
	case config.SourceStatic:
		proxies, err := cfg.StaticProxies()
		if err != nil {
			return nil, nil, err
		}
		return memory.FromProxies(proxies), func() {}, nil
	default:
		store, err := storage.NewStorage(cfg.DBPath)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	}
}
