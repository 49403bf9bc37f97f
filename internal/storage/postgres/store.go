// Package postgres provides the Postgres-backed storage.Store implementation.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"pageanalyzer/internal/storage"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// pool is the subset of pgxpool.Pool the store uses. pgxmock implements it
// for tests.
type pool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Store persists entries and checks in Postgres. Every operation acquires and
// releases a pooled connection internally, so no connection outlives a call.
type Store struct {
	pool pool
}

// New connects a pool, verifies it with a ping and ensures the schema exists.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := &Store{pool: p}
	if err := s.migrate(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return s, nil
}

// NewWithPool constructs a Store from an existing pool (primarily for
// testing). No migration runs.
func NewWithPool(p pool) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: p}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS urls (
		id         BIGSERIAL PRIMARY KEY,
		name       TEXT NOT NULL UNIQUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS url_checks (
		id          BIGSERIAL PRIMARY KEY,
		url_id      BIGINT NOT NULL REFERENCES urls(id),
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		status_code INTEGER,
		title       VARCHAR(255) NOT NULL DEFAULT '',
		h1          VARCHAR(255) NOT NULL DEFAULT '',
		description VARCHAR(255) NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_url_checks_url_id_created_at
		ON url_checks (url_id, created_at DESC);
	`
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("exec schema: %w", err)
	}
	return nil
}

// FindByName looks up an entry by canonical URL.
func (s *Store) FindByName(ctx context.Context, name string) (storage.URLEntry, error) {
	query := `SELECT id, name, created_at FROM urls WHERE name = $1`
	var entry storage.URLEntry
	err := s.pool.QueryRow(ctx, query, name).Scan(&entry.ID, &entry.Name, &entry.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return storage.URLEntry{}, storage.ErrNotFound
		}
		return storage.URLEntry{}, fmt.Errorf("find entry by name: %w", err)
	}
	return entry, nil
}

// FindByID looks up an entry by identifier.
func (s *Store) FindByID(ctx context.Context, id int64) (storage.URLEntry, error) {
	query := `SELECT id, name, created_at FROM urls WHERE id = $1`
	var entry storage.URLEntry
	err := s.pool.QueryRow(ctx, query, id).Scan(&entry.ID, &entry.Name, &entry.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return storage.URLEntry{}, storage.ErrNotFound
		}
		return storage.URLEntry{}, fmt.Errorf("find entry by id: %w", err)
	}
	return entry, nil
}

// CreateEntry inserts an entry for the canonical URL. The unique constraint
// on name closes the check-then-act race: when another request inserted the
// same URL first, the insert affects no row and the existing entry is
// re-fetched and returned with storage.ErrDuplicate.
func (s *Store) CreateEntry(ctx context.Context, name string) (storage.URLEntry, error) {
	query := `
		INSERT INTO urls (name, created_at)
		VALUES ($1, $2)
		ON CONFLICT (name) DO NOTHING
		RETURNING id, name, created_at`
	var entry storage.URLEntry
	err := s.pool.QueryRow(ctx, query, name, time.Now().UTC()).
		Scan(&entry.ID, &entry.Name, &entry.CreatedAt)
	if err == nil {
		return entry, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return storage.URLEntry{}, fmt.Errorf("insert entry: %w", err)
	}
	existing, err := s.FindByName(ctx, name)
	if err != nil {
		return storage.URLEntry{}, fmt.Errorf("refetch entry after conflict: %w", err)
	}
	return existing, storage.ErrDuplicate
}

// ListEntries returns all entries ordered by identifier.
func (s *Store) ListEntries(ctx context.Context) ([]storage.URLEntry, error) {
	query := `SELECT id, name, created_at FROM urls ORDER BY id`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var entries []storage.URLEntry
	for rows.Next() {
		var entry storage.URLEntry
		if err := rows.Scan(&entry.ID, &entry.Name, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan entry row: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entry rows: %w", err)
	}
	return entries, nil
}

// ListChecks returns an entry's checks in insertion order.
func (s *Store) ListChecks(ctx context.Context, urlID int64) ([]storage.Check, error) {
	query := `
		SELECT id, url_id, created_at, status_code, title, h1, description
		FROM url_checks
		WHERE url_id = $1
		ORDER BY id`
	rows, err := s.pool.Query(ctx, query, urlID)
	if err != nil {
		return nil, fmt.Errorf("list checks: %w", err)
	}
	defer rows.Close()

	var checks []storage.Check
	for rows.Next() {
		var check storage.Check
		err := rows.Scan(
			&check.ID,
			&check.URLID,
			&check.CreatedAt,
			&check.StatusCode,
			&check.Title,
			&check.H1,
			&check.Description,
		)
		if err != nil {
			return nil, fmt.Errorf("scan check row: %w", err)
		}
		checks = append(checks, check)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate check rows: %w", err)
	}
	return checks, nil
}

// CreateCheck appends a check row for an entry. A foreign key violation on
// url_id maps to storage.ErrNotFound.
func (s *Store) CreateCheck(ctx context.Context, urlID int64, input storage.CheckInput) (storage.Check, error) {
	query := `
		INSERT INTO url_checks (url_id, created_at, status_code, title, h1, description)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`
	status := input.StatusCode
	check := storage.Check{
		URLID:       urlID,
		StatusCode:  &status,
		Title:       input.Title,
		H1:          input.H1,
		Description: input.Description,
	}
	err := s.pool.QueryRow(ctx, query,
		urlID,
		time.Now().UTC(),
		input.StatusCode,
		input.Title,
		input.H1,
		input.Description,
	).Scan(&check.ID, &check.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return storage.Check{}, storage.ErrNotFound
		}
		return storage.Check{}, fmt.Errorf("insert check: %w", err)
	}
	return check, nil
}

// MergedListing joins each entry with its most recent check, newest entry
// first. Entries without checks come back with null last-check fields.
func (s *Store) MergedListing(ctx context.Context) ([]storage.MergedEntry, error) {
	query := `
		SELECT u.id, u.name, u.created_at, lc.status_code, lc.created_at
		FROM urls u
		LEFT JOIN (
			SELECT DISTINCT ON (url_id) url_id, status_code, created_at
			FROM url_checks
			ORDER BY url_id, created_at DESC, id DESC
		) lc ON lc.url_id = u.id
		ORDER BY u.id DESC`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("merged listing: %w", err)
	}
	defer rows.Close()

	var merged []storage.MergedEntry
	for rows.Next() {
		var row storage.MergedEntry
		err := rows.Scan(
			&row.ID,
			&row.Name,
			&row.CreatedAt,
			&row.LastCheckStatus,
			&row.LastCheckAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan merged row: %w", err)
		}
		merged = append(merged, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate merged rows: %w", err)
	}
	return merged, nil
}
