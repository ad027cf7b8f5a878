package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rpggio/rollcall/internal/repository"
)

const fileExt = ".json"

var _ repository.SlotRepository = (*FileBackend)(nil)

// FileBackend keeps each slot in <dir>/<key>.json. Processes sharing dir see each
// other's writes through fsnotify once Start has been called.
type FileBackend struct {
	dir    string
	logger *slog.Logger

	mu       sync.Mutex
	lastSeen map[string]string
	handlers []func(key, value string)
	watcher  *fsnotify.Watcher
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewFileBackend creates dir if needed.
func NewFileBackend(dir string, logger *slog.Logger) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage dir: %w", err)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &FileBackend{
		dir:      dir,
		logger:   logger,
		lastSeen: make(map[string]string),
	}, nil
}

// Get reads the slot file.
func (b *FileBackend) Get(_ context.Context, key string) (string, error) {
	path, err := b.path(key)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", repository.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("reading slot: %w", err)
	}
	return string(data), nil
}

// Put writes to a temp file and renames it over the slot so readers never see a partial value.
func (b *FileBackend) Put(_ context.Context, key, value string) error {
	path, err := b.path(key)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(b.dir, "."+key+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp slot: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.WriteString(value); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp slot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp slot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp slot: %w", err)
	}

	b.mu.Lock()
	b.lastSeen[key] = value
	b.mu.Unlock()

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replacing slot: %w", err)
	}
	return nil
}

// OnChange registers fn for writes made by other processes.
func (b *FileBackend) OnChange(fn func(key, value string)) {
	b.mu.Lock()
	b.handlers = append(b.handlers, fn)
	b.mu.Unlock()
}

// Start begins watching dir. It is a no-op when already running.
func (b *FileBackend) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.watcher != nil {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	if err := watcher.Add(b.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watching %s: %w", b.dir, err)
	}

	b.watcher = watcher
	b.stopCh = make(chan struct{})
	b.doneCh = make(chan struct{})
	go b.run(ctx, watcher, b.stopCh, b.doneCh)
	return nil
}

// Close stops the watcher and waits for it to exit.
func (b *FileBackend) Close() error {
	b.mu.Lock()
	watcher, stopCh, doneCh := b.watcher, b.stopCh, b.doneCh
	b.watcher = nil
	b.mu.Unlock()

	if watcher == nil {
		return nil
	}
	close(stopCh)
	<-doneCh
	return watcher.Close()
}

func (b *FileBackend) run(ctx context.Context, watcher *fsnotify.Watcher, stopCh, doneCh chan struct{}) {
	defer close(doneCh)
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			b.handleEvent(event.Name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			b.logger.Warn("storage watcher error", "dir", b.dir, "error", err)
		}
	}
}

func (b *FileBackend) handleEvent(path string) {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") || filepath.Ext(name) != fileExt {
		return
	}
	key := strings.TrimSuffix(name, fileExt)

	data, err := os.ReadFile(path)
	if err != nil {
		b.logger.Debug("storage watcher read failed", "path", path, "error", err)
		return
	}
	value := string(data)

	b.mu.Lock()
	if b.lastSeen[key] == value {
		b.mu.Unlock()
		return
	}
	b.lastSeen[key] = value
	handlers := append([]func(string, string){}, b.handlers...)
	b.mu.Unlock()

	b.logger.Debug("storage slot changed externally", "key", key)
	for _, fn := range handlers {
		fn(key, value)
	}
}

func (b *FileBackend) path(key string) (string, error) {
	if strings.TrimSpace(key) == "" || strings.ContainsAny(key, `/\`) || strings.HasPrefix(key, ".") {
		return "", repository.ErrInvalidInput
	}
	return filepath.Join(b.dir, key+fileExt), nil
}
