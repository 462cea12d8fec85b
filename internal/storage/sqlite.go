package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/alvmarrod/proxy-harvest/internal/proxy"
	_ "github.com/mattn/go-sqlite3"
)

// Storage is the SQLite proxy store
type Storage struct {
	db *sql.DB
}

// NewStorage creates a new Storage instance, opening/creating the DB and initializing schema
func NewStorage(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	storage := &Storage{db: db}

	// Initialize schema
	if err := storage.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

// initSchema creates tables and indices if they don't exist
func (s *Storage) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS proxy (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ip TEXT NOT NULL,
		port INTEGER NOT NULL,
		login TEXT NOT NULL DEFAULT '',
		password TEXT NOT NULL DEFAULT '',
		scheme TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(ip, port, login)
	);

	CREATE INDEX IF NOT EXISTS idx_proxy_created ON proxy(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// InsertProxies upserts all records in one transaction and returns how
// many were written. An existing (ip, port, login) row gets the new
// password and scheme.
func (s *Storage) InsertProxies(ctx context.Context, recs []ProxyRecord) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO proxy (ip, port, login, password, scheme)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(ip, port, login) DO UPDATE SET
			password = EXCLUDED.password,
			scheme = EXCLUDED.scheme
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range recs {
		if _, err := stmt.ExecContext(ctx, rec.IP, rec.Port, rec.Login, rec.Password, rec.Scheme); err != nil {
			return 0, fmt.Errorf("failed to insert proxy %s:%d: %w", rec.IP, rec.Port, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit proxies: %w", err)
	}
	return len(recs), nil
}

// ListProxyRecords returns every row in insertion order
func (s *Storage) ListProxyRecords(ctx context.Context) ([]ProxyRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
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
func (s *Storage) ListProxies(ctx context.Context) ([]*proxy.Proxy, error) {
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
func (s *Storage) CountProxies(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM proxy").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count proxies: %w", err)
	}
	return n, nil
}

// DeleteAllProxies empties the proxy table
func (s *Storage) DeleteAllProxies(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM proxy"); err != nil {
		return fmt.Errorf("failed to delete proxies: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}
