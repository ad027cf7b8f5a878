// Package storage owns the durable copy of the published record.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rpggio/rollcall/internal/domain/stats"
	"github.com/rpggio/rollcall/internal/metrics"
	"github.com/rpggio/rollcall/internal/repository"
)

// ErrStorage indicates the durable slot could not be read or written.
var ErrStorage = errors.New("storage unavailable")

// ChangeHandler receives the new serialized value after the slot changes.
// Handlers run on the writer's goroutine and must not block.
type ChangeHandler func(value string)

// Subscription is released with Close.
type Subscription interface {
	Close() error
}

// ExternalWatcher is implemented by backends that observe writes made by other processes.
type ExternalWatcher interface {
	OnChange(fn func(key, value string))
}

// Store reads and writes one versioned slot.
type Store struct {
	repo    repository.SlotRepository
	key     string
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu       sync.RWMutex
	watchers map[int]ChangeHandler
	nextID   int
}

// New creates a store for key on repo.
func New(repo repository.SlotRepository, key string, logger *slog.Logger, m *metrics.Metrics) *Store {
	if key == "" {
		key = stats.DefaultKey
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Store{
		repo:     repo,
		key:      key,
		logger:   logger,
		metrics:  m,
		watchers: make(map[int]ChangeHandler),
	}
	if w, ok := repo.(ExternalWatcher); ok {
		w.OnChange(func(key, value string) {
			if key == s.key {
				s.notify(value)
			}
		})
	}
	return s
}

// Key returns the slot name.
func (s *Store) Key() string { return s.key }

// Load returns the persisted record, or nil when the slot is empty or unreadable.
// Only backend failures are reported, wrapped in ErrStorage.
func (s *Store) Load(ctx context.Context) (*stats.Record, error) {
	value, err := s.repo.Get(ctx, s.key)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		s.metrics.StorageFailed("load")
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	rec, err := Parse(value)
	if err != nil {
		s.logger.Warn("discarding unreadable stored stats", "key", s.key, "error", err)
		return nil, nil
	}
	return rec, nil
}

// Save validates rec and overwrites the slot.
func (s *Store) Save(ctx context.Context, rec stats.Record) error {
	if err := stats.Validate(rec); err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding stats: %w", err)
	}
	if err := s.repo.Put(ctx, s.key, string(data)); err != nil {
		s.metrics.StorageFailed("save")
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	s.notify(string(data))
	return nil
}

// Watch registers handler for every change of the slot.
func (s *Store) Watch(handler ChangeHandler) Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = handler
	return &watch{store: s, id: id}
}

func (s *Store) notify(value string) {
	s.mu.RLock()
	handlers := make([]ChangeHandler, 0, len(s.watchers))
	for _, h := range s.watchers {
		handlers = append(handlers, h)
	}
	s.mu.RUnlock()

	for _, h := range handlers {
		h(value)
	}
}

type watch struct {
	store *Store
	id    int
}

func (w *watch) Close() error {
	w.store.mu.Lock()
	delete(w.store.watchers, w.id)
	w.store.mu.Unlock()
	return nil
}

// Parse decodes a stored value. Invalid content is an error; callers treat it as absent.
func Parse(value string) (*stats.Record, error) {
	rec, err := stats.ParseJSON([]byte(value))
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
