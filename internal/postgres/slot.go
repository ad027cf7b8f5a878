// Package postgres provides a Postgres-backed slot repository for deployments that
// share one durable record across several server processes.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rpggio/rollcall/internal/repository"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

var _ repository.SlotRepository = (*SlotRepository)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/rollcall?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// SlotRepository stores slots in a single Postgres table.
type SlotRepository struct {
	db *sql.DB
}

// Open connects to dsn (falls back to defaultDSN) and ensures the slots table exists.
func Open(ctx context.Context, dsn string) (*SlotRepository, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := ensureSlotTable(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SlotRepository{db: db}, nil
}

// NewSlotRepository wraps an already opened database. The table must exist.
func NewSlotRepository(db *sql.DB) *SlotRepository {
	return &SlotRepository{db: db}
}

func ensureSlotTable(ctx context.Context, db *sql.DB) error {
	ddl := `CREATE TABLE IF NOT EXISTS slots (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure slots table: %w", err)
	}
	return nil
}

// Get returns the serialized value stored under key.
func (r *SlotRepository) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM slots WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", repository.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("select slot: %w", err)
	}
	return value, nil
}

// Put upserts the value stored under key.
func (r *SlotRepository) Put(ctx context.Context, key, value string) error {
	if strings.TrimSpace(key) == "" {
		return repository.ErrInvalidInput
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO slots (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		key, value)
	if err != nil {
		return fmt.Errorf("upsert slot: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (r *SlotRepository) Close() error {
	return r.db.Close()
}
