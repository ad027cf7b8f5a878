package edit_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rpggio/rollcall/internal/broadcast"
	"github.com/rpggio/rollcall/internal/domain/edit"
	"github.com/rpggio/rollcall/internal/domain/stats"
	"github.com/rpggio/rollcall/internal/replica"
	"github.com/rpggio/rollcall/internal/repository/mocks"
	"github.com/rpggio/rollcall/internal/snapshot"
	"github.com/rpggio/rollcall/internal/storage"
)

type fakeReplica struct {
	mu      sync.Mutex
	current stats.Record
	offered []stats.Record
}

func (f *fakeReplica) Current() stats.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

func (f *fakeReplica) Offer(_ replica.Trigger, rec stats.Record) (stats.Record, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offered = append(f.offered, rec)
	chosen, replaced := stats.Reconcile(f.current, &rec)
	f.current = chosen
	return chosen, replaced
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestService_PublishFlow(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	store := &mocks.Store{}
	notifier := &mocks.Notifier{}
	rep := &fakeReplica{current: stats.Default()}

	want := stats.Record{Total: 150, Boys: 70, Girls: 80, LastUpdated: now}
	store.On("Save", ctx, want).Return(nil)
	notifier.On("Publish", ctx, want).Return(nil)

	svc := edit.NewService(store, notifier, rep, edit.Options{
		Clock:   fixedClock(now),
		BaseURL: "https://example.org/board",
	})

	view := svc.Open()
	require.NotEmpty(t, view.ID)
	require.Equal(t, stats.Default(), view.Draft)
	require.False(t, view.Dirty)

	view, err := svc.SetField(view.ID, "boys", 70)
	require.NoError(t, err)
	require.Equal(t, 150, view.Draft.Total)
	require.True(t, view.Dirty)

	result, err := svc.Publish(ctx, view.ID)
	require.NoError(t, err)
	assert.Equal(t, want, result.Record)
	assert.Contains(t, result.ShareURL, "d="+result.Token)

	decoded, err := snapshot.Decode(result.Token)
	require.NoError(t, err)
	assert.True(t, decoded.Equal(want))

	assert.Equal(t, want, rep.Current())

	view, err = svc.Get(view.ID)
	require.NoError(t, err)
	assert.Equal(t, edit.StatePublished, view.State)
	assert.False(t, view.Dirty)

	store.AssertExpectations(t)
	notifier.AssertExpectations(t)
}

func TestService_BroadcastFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	store := &mocks.Store{}
	notifier := &mocks.Notifier{}
	rep := &fakeReplica{current: stats.Default()}

	store.On("Save", ctx, mock.Anything).Return(nil)
	notifier.On("Publish", ctx, mock.Anything).Return(broadcast.ErrClosed)

	svc := edit.NewService(store, notifier, rep, edit.Options{})
	view := svc.Open()

	result, err := svc.Publish(ctx, view.ID)
	require.NoError(t, err)
	assert.Empty(t, result.ShareURL)
	assert.Len(t, rep.offered, 1)
}

func TestService_SaveFailureKeepsDraft(t *testing.T) {
	ctx := context.Background()
	store := &mocks.Store{}
	rep := &fakeReplica{current: stats.Default()}

	store.On("Save", ctx, mock.Anything).Return(storage.ErrStorage)

	svc := edit.NewService(store, nil, rep, edit.Options{})
	view := svc.Open()
	view, err := svc.SetField(view.ID, "girls", 100)
	require.NoError(t, err)

	_, err = svc.Publish(ctx, view.ID)
	require.ErrorIs(t, err, storage.ErrStorage)

	view, err = svc.Get(view.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, view.Draft.Girls)
	assert.Equal(t, edit.StateEditing, view.State)
	assert.Empty(t, rep.offered)
}

func TestService_PublishStampsAfterCurrent(t *testing.T) {
	ctx := context.Background()
	past := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	current := stats.Record{Total: 1, Boys: 1, LastUpdated: past.Add(time.Hour)}

	store := &mocks.Store{}
	store.On("Save", ctx, mock.Anything).Return(nil)
	rep := &fakeReplica{current: current}

	svc := edit.NewService(store, nil, rep, edit.Options{Clock: fixedClock(past)})
	view := svc.Open()

	result, err := svc.Publish(ctx, view.ID)
	require.NoError(t, err)
	assert.True(t, result.Record.Newer(current))
	assert.Equal(t, result.Record, rep.Current())
}

func TestService_UnknownSessionAndField(t *testing.T) {
	svc := edit.NewService(&mocks.Store{}, nil, &fakeReplica{current: stats.Default()}, edit.Options{})

	_, err := svc.Get("missing")
	assert.ErrorIs(t, err, edit.ErrSessionNotFound)

	_, err = svc.SetField("missing", "boys", 1)
	assert.ErrorIs(t, err, edit.ErrSessionNotFound)

	view := svc.Open()
	_, err = svc.SetField(view.ID, "teachers", 1)
	assert.ErrorIs(t, err, edit.ErrUnknownField)

	_, err = svc.Publish(context.Background(), "missing")
	assert.ErrorIs(t, err, edit.ErrSessionNotFound)

	require.NoError(t, svc.Close(view.ID))
	assert.ErrorIs(t, svc.Close(view.ID), edit.ErrSessionNotFound)
}

func TestService_ResetPicksUpNewerPublish(t *testing.T) {
	rep := &fakeReplica{current: stats.Default()}
	svc := edit.NewService(&mocks.Store{}, nil, rep, edit.Options{})

	view := svc.Open()
	_, err := svc.SetField(view.ID, "boys", 1)
	require.NoError(t, err)

	newer := stats.Record{Total: 9, Boys: 4, Girls: 5, LastUpdated: time.Unix(100, 0)}
	rep.Offer(replica.TriggerBroadcast, newer)

	view, err = svc.Reset(view.ID)
	require.NoError(t, err)
	assert.Equal(t, newer, view.Draft)
}

func TestService_ConcurrentSessionsOwnDrafts(t *testing.T) {
	svc := edit.NewService(&mocks.Store{}, nil, &fakeReplica{current: stats.Default()}, edit.Options{Policy: edit.PolicyRatio})
	a := svc.Open()
	b := svc.Open()

	_, err := svc.SetField(a.ID, "total", 70)
	require.NoError(t, err)

	a, err = svc.Get(a.ID)
	require.NoError(t, err)
	b, err = svc.Get(b.ID)
	require.NoError(t, err)

	assert.Equal(t, 30, a.Draft.Boys)
	assert.Equal(t, stats.Default(), b.Draft)
}

func TestPublishReachesOtherContext(t *testing.T) {
	ctx := context.Background()

	backend, err := storage.NewFileBackend(t.TempDir(), nil)
	require.NoError(t, err)
	store := storage.New(backend, stats.DefaultKey, nil, nil)
	hub := broadcast.NewHub("school")
	defer hub.Close()

	admin := replica.New(store, hub, replica.Options{PollInterval: -1})
	require.NoError(t, admin.Start(ctx))
	defer admin.Close()
	viewer := replica.New(store, hub, replica.Options{PollInterval: -1})
	require.NoError(t, viewer.Start(ctx))
	defer viewer.Close()

	svc := edit.NewService(store, hub, admin, edit.Options{})
	view := svc.Open()
	_, err = svc.SetField(view.ID, "boys", 70)
	require.NoError(t, err)

	result, err := svc.Publish(ctx, view.ID)
	require.NoError(t, err)
	require.Equal(t, 150, result.Record.Total)

	assert.Eventually(t, func() bool {
		got := viewer.Current()
		return got.Total == 150 && got.Boys == 70 && got.Girls == 80
	}, time.Second, 5*time.Millisecond)

	persisted, err := store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, persisted)
	assert.True(t, persisted.Equal(result.Record))
}
