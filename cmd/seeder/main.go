package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/alvmarrod/proxy-harvest/internal/config"
	"github.com/alvmarrod/proxy-harvest/internal/storage"
	"github.com/alvmarrod/proxy-harvest/internal/version"
	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the JSON config file")
	count := flag.Int("count", defaultSeedCount, "number of proxies to generate when -file is not set")
	file := flag.String("file", "", "read proxies from a host:port[:user:password] file instead of generating them")
	reset := flag.Bool("reset", false, "delete existing proxies before seeding")
	flag.Parse()

	logrus.SetLevel(logrus.InfoLevel)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	logrus.Infof("Proxy Harvest seeder v%s", version.Version)

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	logrus.SetLevel(cfg.Level())

	ctx := context.Background()

	var recs []storage.ProxyRecord
	if *file != "" {
		proxies, err := readProxyFile(*file)
		if err != nil {
			logrus.Fatalf("Failed to read proxies: %v", err)
		}
		for _, p := range proxies {
			recs = append(recs, storage.RecordFromProxy(p))
		}
		logrus.Infof("Read %d proxies from %s", len(recs), *file)
	} else {
		recs, err = generateProxies(*count)
		if err != nil {
			logrus.Fatalf("Failed to generate proxies: %v", err)
		}
		logrus.Infof("Generated %d proxies", len(recs))
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		logrus.Fatalf("Failed to open proxy store: %v", err)
	}
	defer store.Close()

	total, err := seedStore(ctx, store, recs, *reset)
	if err != nil {
		store.Close()
		logrus.Fatalf("Failed to seed proxies: %v", err)
	}
	logrus.Infof("Seeder done: %d proxies in %s store", total, cfg.ProxySource)
}

func openStore(ctx context.Context, cfg *config.Config) (storage.ProxyStore, error) {
	switch cfg.ProxySource {
	case config.SourceSQLite:
		store, err := storage.NewStorage(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.SourcePostgres:
		pg, err := storage.OpenPG(ctx, cfg.PGDSN, cfg.PGMaxConns, cfg.PGViaBouncer)
		if err != nil {
			return nil, err
		}
		return pg, nil
	}
	return nil, fmt.Errorf("proxy_source %q has no store to seed", cfg.ProxySource)
}
