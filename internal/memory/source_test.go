package memory

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alvmarrod/proxy-harvest/internal/proxy"
	"github.com/alvmarrod/proxy-harvest/internal/storage"
)

func TestSource_UpsertDeduplicates(t *testing.T) {
	s := NewSource()

	id1 := s.Upsert(storage.ProxyRecord{IP: "192.168.0.1", Port: 8001, Login: "user1", Password: "a"})
	id2 := s.Upsert(storage.ProxyRecord{IP: "192.168.0.2", Port: 8002, Login: "user2", Password: "b"})
	id3 := s.Upsert(storage.ProxyRecord{IP: "192.168.0.1", Port: 8001, Login: "user1", Password: "c"})

	if id1 == id2 || id1 != id3 {
		t.Errorf("Unexpected ids: %d %d %d", id1, id2, id3)
	}
	if s.Len() != 2 {
		t.Fatalf("Expected 2 records, got %d", s.Len())
	}

	recs := s.Records()
	if recs[0].Password != "c" || recs[1].IP != "192.168.0.2" {
		t.Errorf("Unexpected records: %+v", recs)
	}
	if recs[0].CreatedAt.IsZero() {
		t.Error("Expected created_at to be stamped")
	}
}

func TestSource_ListProxiesReturnsFreshInstances(t *testing.T) {
	p1, _ := proxy.Parse("10.0.0.1:8080:user0:password0")
	p2, _ := proxy.Parse("10.0.0.2:8080")
	s := FromProxies([]*proxy.Proxy{p1, p2})

	a, err := s.ListProxies(context.Background())
	if err != nil {
		t.Fatalf("ListProxies() returned an error: %v", err)
	}
	b, _ := s.ListProxies(context.Background())

	if len(a) != 2 || a[0].Host != "10.0.0.1" || a[0].Password != "password0" {
		t.Fatalf("Unexpected proxies: %v", a)
	}
	if a[0] == b[0] {
		t.Error("Expected distinct instances per call")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.ListProxies(ctx); err == nil {
		t.Error("Expected an error for a cancelled context")
	}
}

func TestSource_FlushAndLoad(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewStorage(filepath.Join(t.TempDir(), "proxies.db"))
	if err != nil {
		t.Fatalf("NewStorage() returned an error: %v", err)
	}
	defer store.Close()

	s := NewSource()
	for i := 0; i < 5; i++ {
		s.Upsert(storage.ProxyRecord{IP: "192.168.0.9", Port: 9000 + i, Login: "u", Password: "p"})
	}

	n, err := s.Flush(ctx, store)
	if err != nil {
		t.Fatalf("Flush() returned an error: %v", err)
	}
	if n != 5 {
		t.Errorf("Expected 5 flushed, got %d", n)
	}
	if n, err := NewSource().Flush(ctx, store); err != nil || n != 0 {
		t.Errorf("Flushing an empty source = %d, %v", n, err)
	}

	loaded := NewSource()
	if err := loaded.LoadFromStore(ctx, store); err != nil {
		t.Fatalf("LoadFromStore() returned an error: %v", err)
	}
	if loaded.Len() != 5 {
		t.Errorf("Expected 5 loaded, got %d", loaded.Len())
	}
}

func TestFromProxies_KeepsIdenticalEntriesDistinct(t *testing.T) {
	a, _ := proxy.Parse("10.0.0.1:8080:user0:password0")
	b, _ := proxy.Parse("10.0.0.1:8080:user0:password0")
	s := FromProxies([]*proxy.Proxy{a, b})

	proxies, err := s.ListProxies(context.Background())
	if err != nil {
		t.Fatalf("ListProxies() returned an error: %v", err)
	}
	if len(proxies) != 2 {
		t.Fatalf("Expected 2 distinct proxies, got %d", len(proxies))
	}
	if proxies[0] == proxies[1] || proxies[0].ID == proxies[1].ID {
		t.Errorf("Identical entries collapsed: %+v %+v", proxies[0], proxies[1])
	}
}

func TestFromProxies_KeepsScheme(t *testing.T) {
	p, err := proxy.Parse("socks5://10.0.0.1:1080:u:p")
	if err != nil {
		t.Fatalf("Parse() returned an error: %v", err)
	}

	proxies, err := FromProxies([]*proxy.Proxy{p}).ListProxies(context.Background())
	if err != nil {
		t.Fatalf("ListProxies() returned an error: %v", err)
	}
	if got := proxies[0].URL().String(); got != "socks5://u:p@10.0.0.1:1080" {
		t.Errorf("Expected socks5 proxy URL, got %s", got)
	}
}

func TestSource_UpsertRefreshesScheme(t *testing.T) {
	s := NewSource()
	s.Upsert(storage.ProxyRecord{IP: "10.0.0.1", Port: 1080, Login: "u"})
	s.Upsert(storage.ProxyRecord{IP: "10.0.0.1", Port: 1080, Login: "u", Scheme: "socks5"})

	recs := s.Records()
	if len(recs) != 1 || recs[0].Scheme != "socks5" {
		t.Errorf("Expected one socks5 record, got %+v", recs)
	}
}
