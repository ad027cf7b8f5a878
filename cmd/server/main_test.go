package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rpggio/rollcall/internal/config"
	"github.com/rpggio/rollcall/internal/domain/stats"
)

func TestLogFileWriter_TruncatesToNewest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "rollcall.log")
	w, file, err := newLogFileWriter(path)
	require.NoError(t, err)
	defer file.Close()
	w.maxSize, w.keepSize = 20, 10

	_, err = w.Write([]byte(strings.Repeat("a", 15)))
	require.NoError(t, err)
	_, err = w.Write([]byte("0123456789"))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "0123456789", string(data))
}

func TestParseLogLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, parseLogLevel("debug"))
	require.Equal(t, slog.LevelInfo, parseLogLevel("verbose"))
}

func TestOpenBackend(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.DiscardHandler)
	dir := t.TempDir()

	for _, driver := range []string{"sqlite", "file"} {
		t.Run(driver, func(t *testing.T) {
			cfg := config.Default()
			cfg.Storage.Driver = driver
			cfg.DB.Path = filepath.Join(dir, "db", "rollcall.db")
			cfg.Storage.Dir = filepath.Join(dir, "slots")

			b, err := openBackend(ctx, cfg, logger)
			require.NoError(t, err)
			defer b.Close()

			require.NoError(t, b.repo.Put(ctx, stats.DefaultKey, `{"total":1}`))
			got, err := b.repo.Get(ctx, stats.DefaultKey)
			require.NoError(t, err)
			require.Equal(t, `{"total":1}`, got)
		})
	}

	cfg := config.Default()
	cfg.Storage.Driver = "etcd"
	_, err := openBackend(ctx, cfg, logger)
	require.ErrorContains(t, err, "unknown storage driver")
}
