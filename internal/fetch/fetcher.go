package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alvmarrod/proxy-harvest/internal/proxy"
	"github.com/gocolly/colly/v2"
	"github.com/sirupsen/logrus"
)

// DefaultTimeout bounds a single fetch attempt.
const DefaultTimeout = 7 * time.Second

// Payload is the raw response body of a successful fetch. It is never
// interpreted here.
type Payload []byte

// Executor performs one fetch attempt for an item through one proxy.
type Executor interface {
	Fetch(ctx context.Context, item int, p *proxy.Proxy) (Payload, error)
}

// Error is the single failure type of a fetch attempt. Transport errors,
// timeouts, non-success statuses and empty or oversized bodies all end
// up here.
type Error struct {
	Item   int
	Proxy  string
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("fetch item %d via %s: status %d: %v", e.Item, e.Proxy, e.Status, e.Err)
	}
	return fmt.Sprintf("fetch item %d via %s: %v", e.Item, e.Proxy, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

var (
	errEmptyBody    = errors.New("empty response body")
	errBodyTooLarge = errors.New("response body exceeds limit")
	errNoProxy      = errors.New("no proxy bound to request")
)

// Options configures the upstream request.
type Options struct {
	BaseURL     string
	Method      string
	Body        string
	ContentType string
	UserAgent   string
	Timeout     time.Duration
	// MaxBodySize caps the response body in bytes. 0 means unlimited. A
	// body over the cap fails the attempt instead of being truncated.
	MaxBodySize int
}

// proxyKey carries the proxy for one request through the request context.
type proxyKey struct{}

// Fetcher is a colly-backed Executor. One base collector holds the shared
// transport; each attempt runs on a clone whose context names its proxy.
type Fetcher struct {
	opts Options
	base *colly.Collector
}

// NewFetcher creates a Fetcher for the given upstream.
func NewFetcher(opts Options) (*Fetcher, error) {
	if err := ValidateBaseURL(opts.BaseURL); err != nil {
		return nil, err
	}
	if opts.Method == "" {
		opts.Method = http.MethodPost
	}
	opts.Method = strings.ToUpper(opts.Method)
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	f := &Fetcher{opts: opts}
	f.setupColly()

	logrus.Debugf("Fetcher ready: %s %s (timeout %v)", opts.Method, Host(opts.BaseURL), opts.Timeout)
	return f, nil
}

// setupColly configures the shared collector
func (f *Fetcher) setupColly() {
	// colly truncates silently at its limit, so read one byte past ours
	// to tell a full body from a cut one.
	bodyLimit := 0
	if f.opts.MaxBodySize > 0 {
		bodyLimit = f.opts.MaxBodySize + 1
	}
	options := []colly.CollectorOption{
		colly.AllowURLRevisit(), // retries hit the same URL
		colly.MaxBodySize(bodyLimit),
	}
	if f.opts.UserAgent != "" {
		options = append(options, colly.UserAgent(f.opts.UserAgent))
	}
	f.base = colly.NewCollector(options...)

	f.base.SetRequestTimeout(f.opts.Timeout)

	// Cookies would tie proxies together in the upstream's eyes.
	f.base.DisableCookies()

	// Route every request through the proxy stored in its context.
	f.base.SetProxyFunc(func(req *http.Request) (*url.URL, error) {
		u, ok := req.Context().Value(proxyKey{}).(*url.URL)
		if !ok || u == nil {
			return nil, errNoProxy
		}
		return u, nil
	})
}

// Fetch issues exactly one request for item through p.
func (f *Fetcher) Fetch(ctx context.Context, item int, p *proxy.Proxy) (Payload, error) {
	if p == nil {
		return nil, &Error{Item: item, Proxy: "-", Err: errNoProxy}
	}

	target := ItemURL(f.opts.BaseURL, item)

	c := f.base.Clone()
	c.Context = context.WithValue(ctx, proxyKey{}, p.URL())

	var (
		payload Payload
		status  int
	)
	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		payload = r.Body
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
	})

	hdr := http.Header{}
	var body io.Reader
	if f.opts.Body != "" {
		body = bytes.NewReader([]byte(f.opts.Body))
		if f.opts.ContentType != "" {
			hdr.Set("Content-Type", f.opts.ContentType)
		}
	}

	start := time.Now()
	err := c.Request(f.opts.Method, target, body, nil, hdr)
	elapsed := time.Since(start)

	if err != nil {
		logrus.Debugf("Item %d via %s failed after %v: %v", item, p, elapsed, err)
		return nil, &Error{Item: item, Proxy: p.String(), Status: status, Err: err}
	}
	if len(payload) == 0 {
		return nil, &Error{Item: item, Proxy: p.String(), Status: status, Err: errEmptyBody}
	}
	if f.opts.MaxBodySize > 0 && len(payload) > f.opts.MaxBodySize {
		return nil, &Error{Item: item, Proxy: p.String(), Status: status, Err: errBodyTooLarge}
	}

	logrus.Debugf("Item %d via %s fetched (status=%d, %d bytes, %v)", item, p, status, len(payload), elapsed)
	return payload, nil
}
