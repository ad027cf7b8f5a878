package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rpggio/rollcall/internal/repository"
)

// SlotRepository implements repository.SlotRepository for SQLite
type SlotRepository struct {
	db *DB
}

// NewSlotRepository creates a new SlotRepository
func NewSlotRepository(db *DB) *SlotRepository {
	return &SlotRepository{db: db}
}

// Get returns the serialized value stored under key
func (r *SlotRepository) Get(ctx context.Context, key string) (string, error) {
	query := `
		SELECT value
		FROM slots
		WHERE key = ?
	`

	var value string
	err := r.db.QueryRowContext(ctx, query, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", repository.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get slot: %w", err)
	}

	return value, nil
}

// Put replaces the value stored under key
func (r *SlotRepository) Put(ctx context.Context, key, value string) error {
	if strings.TrimSpace(key) == "" {
		return repository.ErrInvalidInput
	}

	query := `
		INSERT INTO slots (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`

	if _, err := r.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to put slot: %w", err)
	}

	return nil
}
