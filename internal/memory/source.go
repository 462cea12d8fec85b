package memory

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/alvmarrod/proxy-harvest/internal/proxy"
	"github.com/alvmarrod/proxy-harvest/internal/storage"
	"github.com/sirupsen/logrus"
)

// Source holds a proxy set in memory. It serves the static proxy list
// from the config and stages seeded proxies before they are flushed to a
// database.
type Source struct {
	records   []*storage.ProxyRecord          // insertion order
	byKey     map[string]*storage.ProxyRecord // ip:port:login -> first record
	idCounter int
	mu        sync.RWMutex
}

// NewSource creates an empty in-memory source
func NewSource() *Source {
	return &Source{
		byKey: make(map[string]*storage.ProxyRecord),
	}
}

// FromProxies builds a source from already parsed proxies. Every entry
// stays a separate proxy, even when two entries are identical.
func FromProxies(proxies []*proxy.Proxy) *Source {
	s := NewSource()
	for _, p := range proxies {
		s.Append(storage.RecordFromProxy(p))
	}
	return s
}

func recordKey(rec storage.ProxyRecord) string {
	return rec.IP + ":" + strconv.Itoa(rec.Port) + ":" + rec.Login
}

// Upsert inserts a proxy or refreshes its password and scheme if the
// (ip, port, login) triple exists. Returns the record id.
func (s *Source) Upsert(rec storage.ProxyRecord) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byKey[recordKey(rec)]; ok {
		existing.Password = rec.Password
		existing.Scheme = rec.Scheme
		return existing.ID
	}
	return s.add(rec)
}

// Append always adds a new record. Returns the record id.
func (s *Source) Append(rec storage.ProxyRecord) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.add(rec)
}

// add must be called with s.mu held.
func (s *Source) add(rec storage.ProxyRecord) int {
	s.idCounter++
	stored := rec
	stored.ID = s.idCounter
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	s.records = append(s.records, &stored)
	if key := recordKey(stored); s.byKey[key] == nil {
		s.byKey[key] = &stored
	}
	return stored.ID
}

// Len returns the number of distinct proxies
func (s *Source) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Records returns copies of all records in insertion order
func (s *Source) Records() []storage.ProxyRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]storage.ProxyRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, *rec)
	}
	return out
}

// ListProxies returns a fresh proxy for every record. Each call yields new
// instances, so two pools built from one source never share a proxy.
func (s *Source) ListProxies(ctx context.Context) ([]*proxy.Proxy, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	recs := s.Records()
	out := make([]*proxy.Proxy, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.ToProxy())
	}
	return out, nil
}

// Flush writes all in-memory records to a database store
func (s *Source) Flush(ctx context.Context, store storage.ProxyStore) (int, error) {
	recs := s.Records()
	if len(recs) == 0 {
		return 0, nil
	}

	startTime := time.Now()
	logrus.Infof("Flushing %d proxies to database...", len(recs))

	n, err := store.InsertProxies(ctx, recs)
	if err != nil {
		return 0, fmt.Errorf("failed to flush proxies: %w", err)
	}

	logrus.Infof("Flush complete: %d proxies written in %v", n, time.Since(startTime))
	return n, nil
}

// LoadFromStore populates the source from a database store
func (s *Source) LoadFromStore(ctx context.Context, store storage.ProxyStore) error {
	logrus.Info("Loading proxies from database into memory...")

	proxies, err := store.ListProxies(ctx)
	if err != nil {
		return fmt.Errorf("failed to load proxies: %w", err)
	}
	for _, p := range proxies {
		s.Upsert(storage.RecordFromProxy(p))
	}

	logrus.Infof("Loaded %d proxies into memory", len(proxies))
	return nil
}
