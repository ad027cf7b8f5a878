package broadcast

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rpggio/rollcall/internal/domain/stats"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func sample(total int) stats.Record {
	return stats.Record{
		Total:       total,
		Boys:        total - 10,
		Girls:       10,
		LastUpdated: time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC),
	}
}

func TestHub_PublishSubscribe(t *testing.T) {
	hub := NewHub("test")
	t.Cleanup(func() { _ = hub.Close() })

	got := make(chan stats.Record, 1)
	sub, err := hub.Subscribe(func(rec stats.Record) { got <- rec })
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Close() })

	require.NoError(t, hub.Publish(context.Background(), sample(150)))

	select {
	case rec := <-got:
		require.True(t, sample(150).Equal(rec))
	case <-time.After(time.Second):
		t.Fatal("no broadcast received")
	}
}

func TestHub_IgnoresUnknownTypes(t *testing.T) {
	hub := NewHub("test")
	t.Cleanup(func() { _ = hub.Close() })

	got := make(chan stats.Record, 2)
	_, err := hub.Subscribe(func(rec stats.Record) { got <- rec })
	require.NoError(t, err)

	require.NoError(t, hub.deliver(Message{Type: "PING", Payload: []byte(`{}`)}))
	require.NoError(t, hub.deliver(Message{Type: TypeStatsUpdate, Payload: []byte(`{"total":-1}`)}))
	require.NoError(t, hub.Publish(context.Background(), sample(20)))

	select {
	case rec := <-got:
		require.Equal(t, 20, rec.Total)
	case <-time.After(time.Second):
		t.Fatal("no broadcast received")
	}
	require.Empty(t, got)
}

func TestHub_ClosedSubscriptionStopsDelivery(t *testing.T) {
	hub := NewHub("test")
	t.Cleanup(func() { _ = hub.Close() })

	calls := make(chan stats.Record, 4)
	sub, err := hub.Subscribe(func(rec stats.Record) { calls <- rec })
	require.NoError(t, err)
	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())

	require.NoError(t, hub.Publish(context.Background(), sample(30)))
	time.Sleep(20 * time.Millisecond)
	require.Empty(t, calls)
}

func TestHub_Close(t *testing.T) {
	hub := NewHub("test")
	_, err := hub.Subscribe(func(stats.Record) {})
	require.NoError(t, err)

	require.NoError(t, hub.Close())
	require.NoError(t, hub.Close())

	require.ErrorIs(t, hub.Publish(context.Background(), sample(30)), ErrClosed)
	_, err = hub.Subscribe(func(stats.Record) {})
	require.ErrorIs(t, err, ErrClosed)
}

func TestHub_LaggingSubscriberDoesNotBlockPublish(t *testing.T) {
	hub := NewHub("test", WithBuffer(1))
	t.Cleanup(func() { _ = hub.Close() })

	release := make(chan struct{})
	_, err := hub.Subscribe(func(stats.Record) { <-release })
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			_ = hub.Publish(context.Background(), sample(100+i))
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a lagging subscriber")
	}
	close(release)
}

func TestHub_PublishCanceledContext(t *testing.T) {
	hub := NewHub("test")
	t.Cleanup(func() { _ = hub.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, hub.Publish(ctx, sample(1)), context.Canceled)
}

func TestWebsocketBridge(t *testing.T) {
	hub := NewHub("test")
	server := httptest.NewServer(http.HandlerFunc(hub.ServeWS))

	client := NewClient("ws" + strings.TrimPrefix(server.URL, "http"))
	connected := make(chan struct{}, 1)
	client.OnConnect(func() {
		select {
		case connected <- struct{}{}:
		default:
		}
	})
	client.Start(context.Background())
	t.Cleanup(func() {
		_ = client.Close()
		server.Close()
		_ = hub.Close()
	})

	select {
	case <-connected:
	case <-time.After(2 * time.Second):
		t.Fatal("client did not connect")
	}

	fromServer := make(chan stats.Record, 8)
	_, err := client.Subscribe(func(rec stats.Record) {
		select {
		case fromServer <- rec:
		default:
		}
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_ = hub.Publish(context.Background(), sample(41))
		select {
		case rec := <-fromServer:
			return rec.Total == 41
		case <-time.After(20 * time.Millisecond):
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)

	fromClient := make(chan stats.Record, 8)
	_, err = hub.Subscribe(func(rec stats.Record) {
		select {
		case fromClient <- rec:
		default:
		}
	})
	require.NoError(t, err)

	require.NoError(t, client.Publish(context.Background(), sample(77)))
	select {
	case rec := <-fromClient:
		require.Equal(t, 77, rec.Total)
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not receive client publish")
	}
}

func TestClient_PublishWhileDisconnected(t *testing.T) {
	client := NewClient("ws://127.0.0.1:1/ws")
	t.Cleanup(func() { _ = client.Close() })

	err := client.Publish(context.Background(), sample(1))
	require.ErrorIs(t, err, ErrNotConnected)
}

func TestFanout_PublishesToAllAndJoinsErrors(t *testing.T) {
	a := NewHub("a")
	b := NewHub("b")
	defer a.Close()

	got := make(chan stats.Record, 1)
	sub, err := a.Subscribe(func(rec stats.Record) {
		select {
		case got <- rec:
		default:
		}
	})
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, b.Close())

	rec := stats.Record{Total: 3, Boys: 1, Girls: 2, LastUpdated: time.Unix(10, 0).UTC()}
	err = Fanout{a, b}.Publish(context.Background(), rec)
	require.ErrorIs(t, err, ErrClosed)

	select {
	case r := <-got:
		require.True(t, r.Equal(rec))
	case <-time.After(time.Second):
		t.Fatal("fanout did not reach the open hub")
	}
}
