package mcp

import (
	"context"
	"log/slog"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rpggio/rollcall/internal/domain/edit"
	"github.com/rpggio/rollcall/internal/domain/stats"
	"github.com/rpggio/rollcall/internal/insight"
)

// StatsService exposes the local replica to MCP.
type StatsService interface {
	Current() stats.Record
	Refresh(ctx context.Context) stats.Record
}

// EditService defines edit session operations needed by MCP.
type EditService interface {
	Open() edit.View
	Get(id string) (edit.View, error)
	SetField(id, field string, raw any) (edit.View, error)
	Reset(id string) (edit.View, error)
	Publish(ctx context.Context, id string) (*edit.PublishResult, error)
}

// InsightService produces narrative insights. It may be nil.
type InsightService interface {
	Insights(ctx context.Context, rec stats.Record) *insight.Insight
}

// Services contains all domain services needed by MCP.
type Services struct {
	Stats    StatsService
	Edits    EditService
	Insights InsightService
}

// Config contains server configuration.
type Config struct {
	Services Services
	// AdminSecret, when set, must be presented as a bearer token to call editing tools
	// over HTTP.
	AdminSecret   string
	BaseURL       string
	TransportMode string // "stdio" or "http"
	Version       string
	Logger        *slog.Logger
}

// NewServer creates and configures an MCP server with all tools and middleware.
func NewServer(cfg Config) *sdkmcp.Server {
	version := cfg.Version
	if version == "" {
		version = "0.1.0"
	}
	server := sdkmcp.NewServer(&sdkmcp.Implementation{
		Name:    "rollcall",
		Version: version,
	}, &sdkmcp.ServerOptions{
		Instructions: serverInstructions,
		Logger:       cfg.Logger,
	})

	registerDocResources(server)

	// Stdio is a local operator console; it always edits.
	if cfg.TransportMode == "stdio" || cfg.AdminSecret == "" {
		server.AddReceivingMiddleware(noAuthMiddleware())
	} else {
		server.AddReceivingMiddleware(adminMiddleware(cfg.AdminSecret))
	}
	server.AddReceivingMiddleware(trafficLoggingMiddleware(cfg.Logger, "inbound"))
	server.AddSendingMiddleware(trafficLoggingMiddleware(cfg.Logger, "outbound"))

	registerTools(server, cfg.Services, cfg.BaseURL, cfg.Logger)

	return server
}
