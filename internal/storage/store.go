package storage

import (
	"context"

	"github.com/alvmarrod/proxy-harvest/internal/proxy"
)

// ProxyStore is implemented by Storage and PGSource.
type ProxyStore interface {
	InsertProxies(ctx context.Context, recs []ProxyRecord) (int, error)
	ListProxies(ctx context.Context) ([]*proxy.Proxy, error)
	CountProxies(ctx context.Context) (int, error)
	DeleteAllProxies(ctx context.Context) error
	Close() error
}

var (
	_ ProxyStore = (*Storage)(nil)
	_ ProxyStore = (*PGSource)(nil)
)
