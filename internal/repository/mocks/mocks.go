package mocks

import (
	"context"

	"github.com/rpggio/rollcall/internal/broadcast"
	"github.com/rpggio/rollcall/internal/domain/stats"
	"github.com/stretchr/testify/mock"
)

// SlotRepository is a mock for repository.SlotRepository.
type SlotRepository struct {
	mock.Mock
}

func (m *SlotRepository) Get(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (m *SlotRepository) Put(ctx context.Context, key, value string) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

// Notifier is a mock for the cross-context notifier used by edit sessions.
type Notifier struct {
	mock.Mock
}

func (m *Notifier) Publish(ctx context.Context, rec stats.Record) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *Notifier) Subscribe(handler broadcast.Handler) (broadcast.Subscription, error) {
	args := m.Called(handler)
	if sub, ok := args.Get(0).(broadcast.Subscription); ok {
		return sub, args.Error(1)
	}
	return nil, args.Error(1)
}

// Store is a mock for the record store used by edit sessions.
type Store struct {
	mock.Mock
}

func (m *Store) Load(ctx context.Context) (*stats.Record, error) {
	args := m.Called(ctx)
	if rec, ok := args.Get(0).(*stats.Record); ok {
		return rec, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Store) Save(ctx context.Context, rec stats.Record) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}
