package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alvmarrod/proxy-harvest/internal/proxy"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := NewStorage(filepath.Join(t.TempDir(), "proxies.db"))
	if err != nil {
		t.Fatalf("NewStorage() returned an error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStorage_InsertAndList(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	recs := []ProxyRecord{
		{IP: "192.168.0.0", Port: 8000, Login: "user0", Password: "password0"},
		{IP: "192.168.0.1", Port: 8001, Login: "user1", Password: "password1"},
		{IP: "10.0.0.9", Port: 3128},
	}
	n, err := s.InsertProxies(ctx, recs)
	if err != nil {
		t.Fatalf("InsertProxies() returned an error: %v", err)
	}
	if n != 3 {
		t.Errorf("Expected 3 inserted, got %d", n)
	}

	proxies, err := s.ListProxies(ctx)
	if err != nil {
		t.Fatalf("ListProxies() returned an error: %v", err)
	}
	if len(proxies) != 3 {
		t.Fatalf("Expected 3 proxies, got %d", len(proxies))
	}
	first := proxies[0]
	if first.ID == 0 || first.Host != "192.168.0.0" || first.Port != 8000 || first.Username != "user0" || first.Password != "password0" {
		t.Errorf("Unexpected first proxy: %+v", first)
	}
	if proxies[2].Username != "" || proxies[2].URL().User != nil {
		t.Errorf("Expected an anonymous proxy, got %+v", proxies[2])
	}

	listed, err := s.ListProxyRecords(ctx)
	if err != nil {
		t.Fatalf("ListProxyRecords() returned an error: %v", err)
	}
	if listed[0].CreatedAt.IsZero() {
		t.Error("Expected created_at to be set")
	}
}

func TestStorage_ReinsertKeepsOneRow(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	rec := ProxyRecord{IP: "192.168.0.5", Port: 8005, Login: "user5", Password: "old"}
	if _, err := s.InsertProxies(ctx, []ProxyRecord{rec}); err != nil {
		t.Fatalf("InsertProxies() returned an error: %v", err)
	}
	rec.Password = "new"
	if _, err := s.InsertProxies(ctx, []ProxyRecord{rec}); err != nil {
		t.Fatalf("InsertProxies() returned an error: %v", err)
	}

	count, err := s.CountProxies(ctx)
	if err != nil {
		t.Fatalf("CountProxies() returned an error: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 row, got %d", count)
	}

	proxies, _ := s.ListProxies(ctx)
	if proxies[0].Password != "new" {
		t.Errorf("Expected refreshed password, got %q", proxies[0].Password)
	}
}

func TestStorage_SchemeRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	socks, err := proxy.Parse("socks5://10.0.0.1:1080:u:p")
	if err != nil {
		t.Fatalf("Parse() returned an error: %v", err)
	}
	plain, _ := proxy.Parse("10.0.0.2:3128")
	if _, err := s.InsertProxies(ctx, []ProxyRecord{RecordFromProxy(socks), RecordFromProxy(plain)}); err != nil {
		t.Fatalf("InsertProxies() returned an error: %v", err)
	}

	proxies, err := s.ListProxies(ctx)
	if err != nil {
		t.Fatalf("ListProxies() returned an error: %v", err)
	}
	if got := proxies[0].URL().String(); got != "socks5://u:p@10.0.0.1:1080" {
		t.Errorf("Expected socks5 proxy URL, got %s", got)
	}
	if got := proxies[1].URL().Scheme; got != "http" {
		t.Errorf("Expected http for a proxy without scheme, got %s", got)
	}
}

func TestStorage_DeleteAll(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	p, _ := proxy.Parse("192.168.0.7:8007:user7:password7")
	if _, err := s.InsertProxies(ctx, []ProxyRecord{RecordFromProxy(p)}); err != nil {
		t.Fatalf("InsertProxies() returned an error: %v", err)
	}
	if err := s.DeleteAllProxies(ctx); err != nil {
		t.Fatalf("DeleteAllProxies() returned an error: %v", err)
	}

	proxies, err := s.ListProxies(ctx)
	if err != nil {
		t.Fatalf("ListProxies() returned an error: %v", err)
	}
	if len(proxies) != 0 {
		t.Errorf("Expected an empty table, got %d proxies", len(proxies))
	}
}

func TestStorage_ReopenKeepsRows(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "proxies.db")

	s, err := NewStorage(path)
	if err != nil {
		t.Fatalf("NewStorage() returned an error: %v", err)
	}
	if _, err := s.InsertProxies(ctx, []ProxyRecord{{IP: "1.2.3.4", Port: 80}}); err != nil {
		t.Fatalf("InsertProxies() returned an error: %v", err)
	}
	s.Close()

	s, err = NewStorage(path)
	if err != nil {
		t.Fatalf("NewStorage() on reopen returned an error: %v", err)
	}
	defer s.Close()

	if n, _ := s.CountProxies(ctx); n != 1 {
		t.Errorf("Expected 1 row after reopen, got %d", n)
	}
}
