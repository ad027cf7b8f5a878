package repository

import "context"

// SlotRepository stores serialized values under named keys. Put replaces the whole
// value in a single write; readers never observe a partial value.
type SlotRepository interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key, value string) error
}

// Driver names a slot backend.
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
	DriverFile     Driver = "file"
)
