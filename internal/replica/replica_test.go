package replica

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/rpggio/rollcall/internal/broadcast"
	"github.com/rpggio/rollcall/internal/domain/stats"
	"github.com/rpggio/rollcall/internal/snapshot"
	"github.com/rpggio/rollcall/internal/storage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeStore struct {
	mu      sync.Mutex
	rec     *stats.Record
	err     error
	handler storage.ChangeHandler
}

func (f *fakeStore) Load(context.Context) (*stats.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.rec == nil {
		return nil, nil
	}
	rec := *f.rec
	return &rec, nil
}

func (f *fakeStore) Watch(handler storage.ChangeHandler) storage.Subscription {
	f.mu.Lock()
	f.handler = handler
	f.mu.Unlock()
	return closerFunc(func() error {
		f.mu.Lock()
		f.handler = nil
		f.mu.Unlock()
		return nil
	})
}

func (f *fakeStore) set(rec stats.Record) {
	f.mu.Lock()
	f.rec = &rec
	f.mu.Unlock()
}

func (f *fakeStore) fire(value string) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	if h != nil {
		h(value)
	}
}

type closerFunc func() error

func (c closerFunc) Close() error { return c() }

func at(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

func rec(total, boys, girls int, sec int64) stats.Record {
	return stats.Record{Total: total, Boys: boys, Girls: girls, LastUpdated: at(sec)}
}

func start(t *testing.T, store Store, notifier Notifier, opts Options) *Replica {
	t.Helper()
	if opts.PollInterval == 0 {
		opts.PollInterval = -1
	}
	r := New(store, notifier, opts)
	require.NoError(t, r.Start(context.Background()))
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestStart_FirstRunShowsDefault(t *testing.T) {
	r := start(t, &fakeStore{}, nil, Options{})
	assert.Equal(t, stats.Default(), r.Current())
}

func TestStart_PersistedWinsOverDefault(t *testing.T) {
	persisted := rec(150, 70, 80, 1000)
	r := start(t, &fakeStore{rec: &persisted}, nil, Options{})
	assert.Equal(t, persisted, r.Current())
}

func TestStart_PersistedNewerThanURL(t *testing.T) {
	persisted := rec(150, 70, 80, 2000)
	token, err := snapshot.Encode(rec(140, 60, 80, 1000))
	require.NoError(t, err)

	r := start(t, &fakeStore{rec: &persisted}, nil, Options{SeedToken: token})
	assert.Equal(t, persisted, r.Current())
}

func TestStart_URLNewerThanPersisted(t *testing.T) {
	persisted := rec(150, 70, 80, 1000)
	fromURL := rec(160, 80, 80, 2000)
	token, err := snapshot.Encode(fromURL)
	require.NoError(t, err)

	r := start(t, &fakeStore{rec: &persisted}, nil, Options{SeedToken: token})
	assert.Equal(t, fromURL, r.Current())
}

func TestStart_MalformedTokenFallsBack(t *testing.T) {
	persisted := rec(150, 70, 80, 1000)
	r := start(t, &fakeStore{rec: &persisted}, nil, Options{SeedToken: "%%%not-base64"})
	assert.Equal(t, persisted, r.Current())
}

func TestStart_StorageErrorFallsBackToDefault(t *testing.T) {
	r := start(t, &fakeStore{err: errors.New("disk gone")}, nil, Options{})
	assert.Equal(t, stats.Default(), r.Current())
}

func TestStart_Idempotent(t *testing.T) {
	r := start(t, &fakeStore{}, nil, Options{})
	require.NoError(t, r.Start(context.Background()))
}

func TestStorageChange_AdoptsNewer(t *testing.T) {
	store := &fakeStore{}
	r := start(t, store, nil, Options{})

	store.fire(`{"total":151,"boys":70,"girls":81,"lastUpdated":"2024-05-01T10:00:00Z"}`)

	assert.Eventually(t, func() bool {
		return r.Current().Total == 151
	}, time.Second, 5*time.Millisecond)
}

func TestStorageChange_IgnoresGarbage(t *testing.T) {
	store := &fakeStore{}
	r := start(t, store, nil, Options{})

	store.fire("not json")
	store.fire(`{"total":-1,"boys":0,"girls":0,"lastUpdated":"2024-05-01T10:00:00Z"}`)

	assert.Never(t, func() bool {
		return r.Current() != stats.Default()
	}, 50*time.Millisecond, 5*time.Millisecond)
}

func TestBroadcast_AdoptsNewerIgnoresOlder(t *testing.T) {
	hub := broadcast.NewHub("test")
	defer hub.Close()

	current := rec(150, 70, 80, 2000)
	r := start(t, &fakeStore{rec: &current}, hub, Options{})

	require.NoError(t, hub.Publish(context.Background(), rec(10, 5, 5, 1000)))
	assert.Never(t, func() bool {
		return r.Current() != current
	}, 50*time.Millisecond, 5*time.Millisecond)

	newer := rec(152, 72, 80, 3000)
	require.NoError(t, hub.Publish(context.Background(), newer))
	assert.Eventually(t, func() bool {
		return r.Current() == newer
	}, time.Second, 5*time.Millisecond)
}

func TestPoll_PicksUpMissedWrites(t *testing.T) {
	store := &fakeStore{}
	r := start(t, store, nil, Options{PollInterval: 10 * time.Millisecond})

	newer := rec(155, 75, 80, 5000)
	store.set(newer)

	assert.Eventually(t, func() bool {
		return r.Current() == newer
	}, time.Second, 5*time.Millisecond)
}

func TestRefresh_RereadsStore(t *testing.T) {
	store := &fakeStore{}
	r := start(t, store, nil, Options{})

	newer := rec(155, 75, 80, 5000)
	store.set(newer)

	assert.Equal(t, newer, r.Refresh(context.Background()))
	assert.Equal(t, newer, r.Current())
}

func TestOffer_TieKeepsCurrent(t *testing.T) {
	current := rec(150, 70, 80, 2000)
	r := start(t, &fakeStore{rec: &current}, nil, Options{})

	chosen, replaced := r.Offer(TriggerPublish, rec(1, 1, 0, 2000))
	assert.False(t, replaced)
	assert.Equal(t, current, chosen)
}

func TestObserve(t *testing.T) {
	r := start(t, &fakeStore{}, nil, Options{})

	var calls atomic.Int32
	stop := r.Observe(func(stats.Record) { calls.Add(1) })

	r.Offer(TriggerPublish, rec(150, 70, 80, 1000))
	r.Offer(TriggerPublish, rec(150, 70, 80, 500))
	assert.Equal(t, int32(1), calls.Load())

	stop()
	r.Offer(TriggerPublish, rec(150, 70, 80, 2000))
	assert.Equal(t, int32(1), calls.Load())
}

func TestTwoReplicasConverge(t *testing.T) {
	repo, err := storage.NewFileBackend(t.TempDir(), nil)
	require.NoError(t, err)
	store := storage.New(repo, stats.DefaultKey, nil, nil)
	hub := broadcast.NewHub("shared")
	defer hub.Close()

	a := start(t, store, hub, Options{})
	b := start(t, store, hub, Options{})

	published := rec(150, 70, 80, 1000)
	require.NoError(t, store.Save(context.Background(), published))

	for _, r := range []*Replica{a, b} {
		assert.Eventually(t, func() bool {
			return r.Current().Equal(published)
		}, time.Second, 5*time.Millisecond)
	}
}

func TestClose_BeforeStart(t *testing.T) {
	r := New(&fakeStore{}, nil, Options{})
	assert.NoError(t, r.Close())
}
