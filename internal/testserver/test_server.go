package testserver

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/rpggio/rollcall/internal/broadcast"
	"github.com/rpggio/rollcall/internal/domain/edit"
	"github.com/rpggio/rollcall/internal/domain/stats"
	"github.com/rpggio/rollcall/internal/insight"
	"github.com/rpggio/rollcall/internal/mcp"
	"github.com/rpggio/rollcall/internal/metrics"
	"github.com/rpggio/rollcall/internal/replica"
	"github.com/rpggio/rollcall/internal/sqlite"
	"github.com/rpggio/rollcall/internal/storage"
	"github.com/rpggio/rollcall/internal/transport"
)

// Options tweaks the stack under test.
type Options struct {
	AdminSecret string
	BaseURL     string
	SeedToken   string
	Policy      edit.TotalPolicy
	Generator   insight.Generator
}

// TestServer is a full rollcall stack behind an httptest server, backed by in-memory
// sqlite.
type TestServer struct {
	Server   *httptest.Server
	DB       *sqlite.DB
	Store    *storage.Store
	Hub      *broadcast.Hub
	Replica  *replica.Replica
	Edits    *edit.Service
	Registry *prometheus.Registry
	Options  Options
}

func New(t *testing.T, opts Options) *TestServer {
	t.Helper()
	ctx := context.Background()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := sqlite.New(dsn)
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations())

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	store := storage.New(sqlite.NewSlotRepository(db), stats.DefaultKey, nil, m)
	hub := broadcast.NewHub("school_stats_channel", broadcast.WithMetrics(m))

	rep := replica.New(store, hub, replica.Options{
		PollInterval: -1,
		SeedToken:    opts.SeedToken,
		Metrics:      m,
	})
	require.NoError(t, rep.Start(ctx))

	edits := edit.NewService(store, hub, rep, edit.Options{
		Policy:  opts.Policy,
		BaseURL: opts.BaseURL,
		Metrics: m,
	})

	services := mcp.Services{Stats: rep, Edits: edits}
	cfg := transport.Config{
		Stats:       rep,
		Edits:       edits,
		AdminSecret: opts.AdminSecret,
		BaseURL:     opts.BaseURL,
		WebSocket:   http.HandlerFunc(hub.ServeWS),
		Metrics:     metrics.Handler(registry),
	}
	if opts.Generator != nil {
		insights := insight.NewService(opts.Generator, 0, nil, m)
		services.Insights = insights
		cfg.Insights = insights
	}

	mcpServer := mcp.NewServer(mcp.Config{
		Services:      services,
		AdminSecret:   opts.AdminSecret,
		BaseURL:       opts.BaseURL,
		TransportMode: "http",
	})
	cfg.MCP = sdkmcp.NewStreamableHTTPHandler(
		func(*http.Request) *sdkmcp.Server { return mcpServer },
		nil,
	)
	server := httptest.NewServer(transport.NewServer(cfg))

	ts := &TestServer{
		Server:   server,
		DB:       db,
		Store:    store,
		Hub:      hub,
		Replica:  rep,
		Edits:    edits,
		Registry: registry,
		Options:  opts,
	}

	t.Cleanup(func() {
		server.Close()
		_ = rep.Close()
		_ = hub.Close()
		_ = db.Close()
	})

	return ts
}

// URL returns an absolute URL for path on the test server.
func (ts *TestServer) URL(path string) string {
	return ts.Server.URL + path
}

// AdminURL returns an absolute admin URL carrying admin=true and the secret, if any.
func (ts *TestServer) AdminURL(path string) string {
	q := url.Values{"admin": {"true"}}
	if ts.Options.AdminSecret != "" {
		q.Set("key", ts.Options.AdminSecret)
	}
	return ts.Server.URL + path + "?" + q.Encode()
}

// WebSocketURL returns the ws:// address of the broadcast endpoint.
func (ts *TestServer) WebSocketURL() string {
	return "ws" + strings.TrimPrefix(ts.Server.URL, "http") + "/ws"
}
