package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/rpggio/rollcall/internal/broadcast"
	"github.com/rpggio/rollcall/internal/config"
	"github.com/rpggio/rollcall/internal/domain/edit"
	"github.com/rpggio/rollcall/internal/domain/stats"
	"github.com/rpggio/rollcall/internal/insight"
	"github.com/rpggio/rollcall/internal/mcp"
	"github.com/rpggio/rollcall/internal/metrics"
	"github.com/rpggio/rollcall/internal/replica"
	"github.com/rpggio/rollcall/internal/storage"
	"github.com/rpggio/rollcall/internal/transport"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	// Use stderr for logs in stdio mode to keep stdout clean for JSON-RPC.
	logWriter := io.Writer(os.Stdout)
	if cfg.Transport.Mode == "stdio" {
		logWriter = os.Stderr
	}
	if logPath := os.Getenv("ROLLCALL_LOG_PATH"); logPath != "" {
		fileWriter, file, err := newLogFileWriter(logPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "log file error: %v\n", err)
		} else {
			defer file.Close()
			logWriter = fileWriter
		}
	}
	logger := slog.New(slog.NewTextHandler(logWriter, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Log.Level),
	}))

	if err := run(cfg, logger); err != nil {
		logger.Error("rollcall stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	policy, err := edit.ParsePolicy(cfg.Edit.TotalPolicy)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	backend, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	key := cfg.Storage.Key
	if key == "" {
		key = stats.DefaultKey
	}
	store := storage.New(backend.repo, key, logger, m)

	hub := broadcast.NewHub(cfg.Sync.Channel, broadcast.WithLogger(logger), broadcast.WithMetrics(m))
	defer hub.Close()

	rep := replica.New(store, hub, replica.Options{
		PollInterval: cfg.Sync.PollInterval,
		SeedToken:    cfg.Sync.SeedToken,
		Logger:       logger,
		Metrics:      m,
	})
	if err := rep.Start(ctx); err != nil {
		return fmt.Errorf("starting replica: %w", err)
	}
	defer rep.Close()

	var notifier edit.Notifier = hub
	if cfg.Sync.UpstreamURL != "" {
		upstream, err := joinUpstream(ctx, cfg.Sync.UpstreamURL, hub, rep, logger, m)
		if err != nil {
			return err
		}
		defer upstream.Close()
		notifier = broadcast.Fanout{hub, upstream}
	}

	edits := edit.NewService(store, notifier, rep, edit.Options{
		Policy:       policy,
		PublishedAck: cfg.Edit.PublishedAck,
		BaseURL:      cfg.Admin.PublicBaseURL,
		Logger:       logger,
		Metrics:      m,
	})

	services := mcp.Services{Stats: rep, Edits: edits}
	var insights transport.InsightService
	if cfg.Insight.APIKey != "" {
		gen, err := insight.NewGenAIGenerator(ctx, cfg.Insight.APIKey, cfg.Insight.Model)
		if err != nil {
			logger.Warn("insights disabled", "error", err)
		} else {
			svc := insight.NewService(gen, cfg.Insight.Timeout, logger, m)
			services.Insights = svc
			insights = svc
			logger.Info("insights enabled", "generator", gen.Name())
		}
	}

	mcpServer := mcp.NewServer(mcp.Config{
		Services:      services,
		AdminSecret:   cfg.Admin.Secret,
		BaseURL:       cfg.Admin.PublicBaseURL,
		TransportMode: cfg.Transport.Mode,
		Version:       version,
		Logger:        logger,
	})

	go refreshOnHangup(ctx, rep, logger)

	if cfg.Transport.Mode == "stdio" {
		return runStdioMode(ctx, logger, mcpServer)
	}

	mcpHandler := sdkmcp.NewStreamableHTTPHandler(
		func(r *http.Request) *sdkmcp.Server { return mcpServer },
		&sdkmcp.StreamableHTTPOptions{
			Stateless:      false,
			SessionTimeout: 30 * time.Minute,
		},
	)
	router := transport.NewServer(transport.Config{
		Stats:       rep,
		Edits:       edits,
		Insights:    insights,
		AdminSecret: cfg.Admin.Secret,
		BaseURL:     cfg.Admin.PublicBaseURL,
		WebSocket:   http.HandlerFunc(hub.ServeWS),
		Metrics:     metrics.Handler(registry),
		MCP:         mcpHandler,
		Logger:      logger,
	})
	return runHTTPMode(ctx, logger, router, cfg.Server.Host, cfg.Server.Port)
}

func joinUpstream(ctx context.Context, url string, hub *broadcast.Hub, rep *replica.Replica, logger *slog.Logger, m *metrics.Metrics) (*broadcast.Client, error) {
	client := broadcast.NewClient(url, broadcast.WithClientLogger(logger), broadcast.WithClientMetrics(m))
	// Updates missed while disconnected are recovered from storage.
	client.OnConnect(func() { rep.Refresh(ctx) })
	if _, err := client.Subscribe(func(rec stats.Record) {
		if err := hub.Publish(ctx, rec); err != nil && !errors.Is(err, context.Canceled) {
			logger.Debug("relaying upstream update", "error", err)
		}
	}); err != nil {
		return nil, fmt.Errorf("subscribing upstream: %w", err)
	}
	client.Start(ctx)
	logger.Info("joined upstream channel", "url", url)
	return client, nil
}

func refreshOnHangup(ctx context.Context, rep *replica.Replica, logger *slog.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			rec := rep.Refresh(ctx)
			logger.Info("refreshed from storage", "last_updated", rec.LastUpdated)
		}
	}
}

func runStdioMode(ctx context.Context, logger *slog.Logger, mcpServer *sdkmcp.Server) error {
	logger.Info("starting stdio transport")

	// Run blocks until stdin closes or context is canceled
	if err := mcpServer.Run(ctx, &sdkmcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("stdio server: %w", err)
	}
	return nil
}

func runHTTPMode(ctx context.Context, logger *slog.Logger, handler http.Handler, host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		logger.Info("shutting down")
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
