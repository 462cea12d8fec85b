package storage

import (
	"context"
	"fmt"

	"github.com/alvmarrod/proxy-harvest/internal/proxy"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGSource is the PostgreSQL proxy store
type PGSource struct {
	pool *pgxpool.Pool
}

// OpenPG connects to PostgreSQL and makes sure the proxy table exists.
// viaBouncer switches to the simple protocol for pgbouncer in
// transaction mode.
func OpenPG(ctx context.Context, dsn string, maxConns int, viaBouncer bool) (*PGSource, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pg_dsn: %w", err)
	}
	if maxConns <= 0 {
		maxConns = 2
	}
	cfg.MaxConns = int32(maxConns)
	if viaBouncer {
		cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	src := &PGSource{pool: pool}
	if err := src.initSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return src, nil
}

func (s *PGSource) initSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS proxy (
			id SERIAL PRIMARY KEY,
			ip TEXT NOT NULL,
			port INTEGER NOT NULL,
			login TEXT NOT NULL DEFAULT '',
			password TEXT NOT NULL DEFAULT '',
			scheme TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (ip, port, login)
		)
	`)
	return err
}

// InsertProxies upserts all records in one batch and returns how many
// were written.
func (s *PGSource) InsertProxies(ctx context.Context, recs []ProxyRecord) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, rec := range recs {
		batch.Queue(`
			INSERT INTO proxy (ip, port, login, password, scheme)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (ip, port, login) DO UPDATE SET
				password = EXCLUDED.password,
				scheme = EXCLUDED.scheme
		`, rec.IP, rec.Port, rec.Login, rec.Password, rec.Scheme)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for _, rec := range recs {
		if _, err := br.Exec(); err != nil {
			return 0, fmt.Errorf("failed to insert proxy %s:%d: %w", rec.IP, rec.Port, err)
		}
	}
	return len(recs), nil
}

// ListProxyRecords returns every row in insertion order
func (s *PGSource) ListProxyRecords(ctx context.Context) ([]ProxyRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, ip, port, login, password, scheme, created_at
		FROM proxy
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load proxies: %w", err)
	}
	defer rows.Close()

	var recs []ProxyRecord
	for rows.Next() {
		var rec ProxyRecord
		if err := rows.Scan(&rec.ID, &rec.IP, &rec.Port, &rec.Login, &rec.Password, &rec.Scheme, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan proxy: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating proxies: %w", err)
	}
	return recs, nil
}

// ListProxies returns the stored proxies ready for a pool
func (s *PGSource) ListProxies(ctx context.Context) ([]*proxy.Proxy, error) {
	recs, err := s.ListProxyRecords(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*proxy.Proxy, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.ToProxy())
	}
	return out, nil
}

// CountProxies returns the number of stored proxies
func (s *PGSource) CountProxies(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM proxy").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count proxies: %w", err)
	}
	return n, nil
}

// DeleteAllProxies empties the proxy table
func (s *PGSource) DeleteAllProxies(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "DELETE FROM proxy"); err != nil {
		return fmt.Errorf("failed to delete proxies: %w", err)
	}
	return nil
}

// Close releases the connection pool
func (s *PGSource) Close() error {
	s.pool.Close()
	return nil
}
