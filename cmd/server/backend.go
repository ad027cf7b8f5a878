package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/rpggio/rollcall/internal/config"
	"github.com/rpggio/rollcall/internal/postgres"
	"github.com/rpggio/rollcall/internal/repository"
	"github.com/rpggio/rollcall/internal/sqlite"
	"github.com/rpggio/rollcall/internal/storage"
)

type backend struct {
	repo  repository.SlotRepository
	close func() error
}

func (b *backend) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

func openBackend(ctx context.Context, cfg config.Config, logger *slog.Logger) (*backend, error) {
	switch repository.Driver(cfg.Storage.Driver) {
	case repository.DriverSQLite, "":
		if err := ensureDBDir(cfg.DB.Path); err != nil {
			return nil, fmt.Errorf("preparing database path: %w", err)
		}
		db, err := sqlite.New(cfg.DB.Path)
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		if err := db.RunMigrations(); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
		logger.Info("storage ready", "driver", "sqlite", "path", cfg.DB.Path)
		return &backend{repo: sqlite.NewSlotRepository(db), close: db.Close}, nil

	case repository.DriverPostgres:
		repo, err := postgres.Open(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, err
		}
		logger.Info("storage ready", "driver", "postgres")
		return &backend{repo: repo, close: repo.Close}, nil

	case repository.DriverFile:
		if err := os.MkdirAll(cfg.Storage.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("preparing storage dir: %w", err)
		}
		fb, err := storage.NewFileBackend(cfg.Storage.Dir, logger)
		if err != nil {
			return nil, err
		}
		if err := fb.Start(ctx); err != nil {
			return nil, err
		}
		logger.Info("storage ready", "driver", "file", "dir", cfg.Storage.Dir)
		return &backend{repo: fb, close: fb.Close}, nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

func ensureDBDir(path string) error {
	if path == ":memory:" || path == "" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
