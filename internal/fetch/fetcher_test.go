package fetch

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alvmarrod/proxy-harvest/internal/proxy"
)

// proxyFromServer turns an httptest server into a Proxy. Plain-HTTP
// requests sent through it arrive with an absolute request URI.
func proxyFromServer(t *testing.T, srv *httptest.Server, user, pass string) *proxy.Proxy {
	t.Helper()
	host, portStr, err := net.SplitHostPort(strings.TrimPrefix(srv.URL, "http://"))
	if err != nil {
		t.Fatalf("bad server URL %s: %v", srv.URL, err)
	}
	port, _ := strconv.Atoi(portStr)
	return &proxy.Proxy{Host: host, Port: port, Username: user, Password: pass}
}

func TestFetcher_RoutesThroughProxy(t *testing.T) {
	type seen struct {
		method, host, path, auth, contentType, body string
	}
	got := make(chan seen, 1)

	fwd := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got <- seen{
			method:      r.Method,
			host:        r.URL.Host,
			path:        r.URL.Path,
			auth:        r.Header.Get("Proxy-Authorization"),
			contentType: r.Header.Get("Content-Type"),
			body:        string(body),
		}
		w.Write([]byte(`{"offers":[1,2,3]}`))
	}))
	defer fwd.Close()

	f, err := NewFetcher(Options{
		BaseURL:     "http://upstream.test/yml/offer-view/offers/",
		Body:        `{"cityId":"750000000"}`,
		ContentType: "application/json",
		Timeout:     2 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewFetcher() returned an error: %v", err)
	}

	p := proxyFromServer(t, fwd, "user1", "password1")
	payload, err := f.Fetch(context.Background(), 42, p)
	if err != nil {
		t.Fatalf("Fetch() returned an error: %v", err)
	}
	if string(payload) != `{"offers":[1,2,3]}` {
		t.Errorf("Unexpected payload: %s", payload)
	}

	s := <-got
	if s.method != http.MethodPost {
		t.Errorf("Expected POST, got %s", s.method)
	}
	if s.host != "upstream.test" || s.path != "/yml/offer-view/offers/42" {
		t.Errorf("Expected request for upstream.test/yml/offer-view/offers/42, got %s%s", s.host, s.path)
	}
	wantAuth := "Basic " + base64.StdEncoding.EncodeToString([]byte("user1:password1"))
	if s.auth != wantAuth {
		t.Errorf("Expected proxy credentials %q, got %q", wantAuth, s.auth)
	}
	if s.contentType != "application/json" || s.body != `{"cityId":"750000000"}` {
		t.Errorf("Unexpected request body %q (%s)", s.body, s.contentType)
	}
}

func TestFetcher_FailuresCollapseToError(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantStatus int
	}{
		{
			name: "rate limited",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte("slow down"))
			},
			wantStatus: http.StatusTooManyRequests,
		},
		{
			name: "empty body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			},
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fwd := httptest.NewServer(tt.handler)
			defer fwd.Close()

			f, err := NewFetcher(Options{BaseURL: "http://upstream.test/offers/", Method: "get", Timeout: time.Second})
			if err != nil {
				t.Fatalf("NewFetcher() returned an error: %v", err)
			}

			payload, err := f.Fetch(context.Background(), 1, proxyFromServer(t, fwd, "", ""))
			if payload != nil {
				t.Errorf("Expected no payload, got %q", payload)
			}
			var fe *Error
			if !errors.As(err, &fe) {
				t.Fatalf("Expected *fetch.Error, got %T (%v)", err, err)
			}
			if fe.Item != 1 || fe.Status != tt.wantStatus {
				t.Errorf("Expected item 1 status %d, got item %d status %d", tt.wantStatus, fe.Item, fe.Status)
			}
		})
	}
}

func TestFetcher_BodyOverLimitFails(t *testing.T) {
	fwd := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 64)))
	}))
	defer fwd.Close()

	p := proxyFromServer(t, fwd, "", "")

	f, err := NewFetcher(Options{BaseURL: "http://upstream.test/offers/", Timeout: time.Second, MaxBodySize: 16})
	if err != nil {
		t.Fatalf("NewFetcher() returned an error: %v", err)
	}
	payload, err := f.Fetch(context.Background(), 4, p)
	if payload != nil {
		t.Errorf("Expected no payload for a cut body, got %d bytes", len(payload))
	}
	var fe *Error
	if !errors.As(err, &fe) || !errors.Is(err, errBodyTooLarge) {
		t.Fatalf("Expected *fetch.Error wrapping errBodyTooLarge, got %v", err)
	}

	// A body exactly at the limit is whole.
	f, _ = NewFetcher(Options{BaseURL: "http://upstream.test/offers/", Timeout: time.Second, MaxBodySize: 64})
	payload, err = f.Fetch(context.Background(), 4, p)
	if err != nil {
		t.Fatalf("Fetch() returned an error: %v", err)
	}
	if len(payload) != 64 {
		t.Errorf("Expected 64 bytes, got %d", len(payload))
	}
}

func TestFetcher_UnlimitedBodyIsNotTruncated(t *testing.T) {
	// Past colly's 10 MiB default.
	const size = 11 << 20
	fwd := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(bytes.Repeat([]byte("o"), size))
	}))
	defer fwd.Close()

	f, err := NewFetcher(Options{BaseURL: "http://upstream.test/offers/", Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("NewFetcher() returned an error: %v", err)
	}
	payload, err := f.Fetch(context.Background(), 2, proxyFromServer(t, fwd, "", ""))
	if err != nil {
		t.Fatalf("Fetch() returned an error: %v", err)
	}
	if len(payload) != size {
		t.Errorf("Expected %d bytes, got %d", size, len(payload))
	}
}

func TestFetcher_Timeout(t *testing.T) {
	release := make(chan struct{})
	fwd := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer fwd.Close()
	defer close(release)

	f, err := NewFetcher(Options{BaseURL: "http://upstream.test/offers/", Timeout: 100 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewFetcher() returned an error: %v", err)
	}

	start := time.Now()
	_, err = f.Fetch(context.Background(), 3, proxyFromServer(t, fwd, "", ""))
	var fe *Error
	if !errors.As(err, &fe) {
		t.Fatalf("Expected *fetch.Error on timeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Timeout not applied, fetch took %v", elapsed)
	}
}

func TestFetcher_UnreachableProxy(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().(*net.TCPAddr)
	ln.Close()

	f, _ := NewFetcher(Options{BaseURL: "http://upstream.test/offers/", Timeout: time.Second})
	_, err = f.Fetch(context.Background(), 9, &proxy.Proxy{Host: "127.0.0.1", Port: addr.Port})

	var fe *Error
	if !errors.As(err, &fe) {
		t.Fatalf("Expected *fetch.Error for a dead proxy, got %v", err)
	}
	if fe.Status != 0 {
		t.Errorf("Expected no status for a transport error, got %d", fe.Status)
	}
}

func TestFetcher_NilProxy(t *testing.T) {
	f, _ := NewFetcher(Options{BaseURL: "http://upstream.test/offers/"})
	if _, err := f.Fetch(context.Background(), 1, nil); err == nil {
		t.Error("Expected an error without a proxy")
	}
}

func TestNewFetcher_RejectsBadBaseURL(t *testing.T) {
	for _, base := range []string{"", "ftp://host/x", "offers/", "http:///path"} {
		if _, err := NewFetcher(Options{BaseURL: base}); err == nil {
			t.Errorf("Expected NewFetcher(%q) to fail", base)
		}
	}
}

func TestItemURL(t *testing.T) {
	tests := []struct {
		base string
		item int
		want string
	}{
		{"https://kaspi.kz/yml/offer-view/offers/", 17, "https://kaspi.kz/yml/offer-view/offers/17"},
		{"https://host/offers", 5, "https://host/offers/5"},
		{"https://host/offers/?city=1", 5, "https://host/offers/5?city=1"},
		{"https://host/item/{item}/view", 8, "https://host/item/8/view"},
	}
	for _, tt := range tests {
		if got := ItemURL(tt.base, tt.item); got != tt.want {
			t.Errorf("ItemURL(%q, %d) = %q, expected %q", tt.base, tt.item, got, tt.want)
		}
	}

	if got := Host("https://Kaspi.KZ/yml"); got != "kaspi.kz" {
		t.Errorf("Host() = %q", got)
	}
}
