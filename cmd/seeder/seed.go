package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/alvmarrod/proxy-harvest/internal/memory"
	"github.com/alvmarrod/proxy-harvest/internal/proxy"
	"github.com/alvmarrod/proxy-harvest/internal/storage"
	"github.com/sirupsen/logrus"
)

const (
	defaultSeedCount = 50
	seedBasePort     = 8000
	maxSeedCount     = 65535 - seedBasePort + 1
)

// generateProxies builds n placeholder proxies: 192.168.0.i on port
// 8000+i with credentials user<i>/password<i>.
func generateProxies(n int) ([]storage.ProxyRecord, error) {
	if n < 1 || n > maxSeedCount {
		return nil, fmt.Errorf("count must be between 1 and %d, got %d", maxSeedCount, n)
	}

	recs := make([]storage.ProxyRecord, 0, n)
	for i := 0; i < n; i++ {
		recs = append(recs, storage.ProxyRecord{
			IP:       fmt.Sprintf("192.168.%d.%d", i/256, i%256),
			Port:     seedBasePort + i,
			Login:    fmt.Sprintf("user%d", i),
			Password: fmt.Sprintf("password%d", i),
		})
	}
	return recs, nil
}

// readProxyFile parses one proxy per line. Blank lines and lines starting
// with '#' are skipped.
func readProxyFile(path string) ([]*proxy.Proxy, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open proxy file: %w", err)
	}
	defer f.Close()

	var out []*proxy.Proxy
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		p, err := proxy.Parse(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		out = append(out, p)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read proxy file: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no proxies in %s", path)
	}
	return out, nil
}

// seedStore stages the rows already in store together with recs in memory,
// so duplicates collapse before the write, then flushes them back. With
// reset the table is emptied first. Returns the number of distinct proxies
// the store holds afterwards.
func seedStore(ctx context.Context, store storage.ProxyStore, recs []storage.ProxyRecord, reset bool) (int, error) {
	src := memory.NewSource()
	if reset {
		if err := store.DeleteAllProxies(ctx); err != nil {
			return 0, fmt.Errorf("failed to reset proxies: %w", err)
		}
		logrus.Info("Existing proxies deleted")
	} else if err := src.LoadFromStore(ctx, store); err != nil {
		return 0, err
	}

	before := src.Len()
	for _, rec := range recs {
		src.Upsert(rec)
	}
	logrus.Infof("Staged %d new proxies on top of %d existing", src.Len()-before, before)

	if _, err := src.Flush(ctx, store); err != nil {
		return 0, err
	}
	return src.Len(), nil
}
