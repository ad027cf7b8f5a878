package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rpggio/rollcall/internal/domain/stats"
	"github.com/rpggio/rollcall/internal/snapshot"
)

type tools struct {
	services Services
	baseURL  string
	logger   *slog.Logger
	now      func() time.Time
}

func registerTools(server *sdkmcp.Server, services Services, baseURL string, logger *slog.Logger) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	t := &tools{services: services, baseURL: baseURL, logger: logger, now: time.Now}

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "get_stats",
		Description: "Get the published student counts as this server currently shows them",
	}, t.getStats)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "encode_snapshot",
		Description: "Encode the current record, or the given counts, as a share token and link",
	}, t.encodeSnapshot)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "decode_snapshot",
		Description: "Decode a share token without applying it",
	}, t.decodeSnapshot)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "open_edit_session",
		Description: "Open an edit session whose draft starts from the current record",
	}, t.openEditSession)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "get_edit_session",
		Description: "Show an edit session's draft and publish state",
	}, t.getEditSession)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "set_field",
		Description: "Set total, boys or girls on a draft; dependent counts are recomputed",
	}, t.setField)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "reset_edit_session",
		Description: "Discard a draft and start again from the current record",
	}, t.resetEditSession)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "publish_stats",
		Description: "Publish a draft to storage and every open dashboard",
	}, t.publishStats)
	if services.Insights != nil {
		sdkmcp.AddTool(server, &sdkmcp.Tool{
			Name:        "get_insights",
			Description: "Get a one-sentence summary and a recommendation for the current counts",
		}, t.getInsights)
	}
}

func (t *tools) getStats(ctx context.Context, _ *sdkmcp.CallToolRequest, in GetStatsParams) (*sdkmcp.CallToolResult, StatsResponse, error) {
	if in.Refresh {
		t.services.Stats.Refresh(ctx)
	}
	rec := t.services.Stats.Current()
	if in.Token != "" {
		var err error
		if rec, err = snapshot.Resolve(rec, in.Token); err != nil {
			t.logger.Debug("ignoring unreadable snapshot token", "error", err)
		}
	}
	return nil, toStatsResponse(rec), nil
}

func (t *tools) encodeSnapshot(_ context.Context, _ *sdkmcp.CallToolRequest, in EncodeSnapshotParams) (*sdkmcp.CallToolResult, SnapshotResponse, error) {
	rec := t.services.Stats.Current()
	if in.Total != nil || in.Boys != nil || in.Girls != nil {
		if in.Boys != nil {
			rec.Boys = *in.Boys
		}
		if in.Girls != nil {
			rec.Girls = *in.Girls
		}
		rec.Total = rec.Boys + rec.Girls
		if in.Total != nil {
			rec.Total = *in.Total
		}
		rec.LastUpdated = t.now().UTC()
	}
	if err := stats.ValidateConsistent(rec); err != nil {
		return nil, SnapshotResponse{}, mapError(err)
	}

	token, err := snapshot.Encode(rec)
	if err != nil {
		return nil, SnapshotResponse{}, fmt.Errorf("encoding snapshot: %w", err)
	}
	out := SnapshotResponse{Token: token}
	if t.baseURL != "" {
		if out.ShareURL, err = snapshot.ShareURL(t.baseURL, token); err != nil {
			return nil, SnapshotResponse{}, err
		}
	}
	return nil, out, nil
}

func (t *tools) decodeSnapshot(_ context.Context, _ *sdkmcp.CallToolRequest, in DecodeSnapshotParams) (*sdkmcp.CallToolResult, StatsResponse, error) {
	rec, err := snapshot.Decode(in.Token)
	if err != nil {
		return nil, StatsResponse{}, mapError(err)
	}
	return nil, toStatsResponse(rec), nil
}

func (t *tools) openEditSession(ctx context.Context, _ *sdkmcp.CallToolRequest, _ OpenEditSessionParams) (*sdkmcp.CallToolResult, SessionResponse, error) {
	if !isAdmin(ctx) {
		return nil, SessionResponse{}, errForbidden
	}
	return nil, toSessionResponse(t.services.Edits.Open()), nil
}

func (t *tools) getEditSession(ctx context.Context, _ *sdkmcp.CallToolRequest, in SessionParams) (*sdkmcp.CallToolResult, SessionResponse, error) {
	if !isAdmin(ctx) {
		return nil, SessionResponse{}, errForbidden
	}
	view, err := t.services.Edits.Get(in.SessionID)
	if err != nil {
		return nil, SessionResponse{}, mapError(err)
	}
	return nil, toSessionResponse(view), nil
}

func (t *tools) setField(ctx context.Context, _ *sdkmcp.CallToolRequest, in SetFieldParams) (*sdkmcp.CallToolResult, SessionResponse, error) {
	if !isAdmin(ctx) {
		return nil, SessionResponse{}, errForbidden
	}
	view, err := t.services.Edits.SetField(in.SessionID, in.Field, in.Value)
	if err != nil {
		return nil, SessionResponse{}, mapError(err)
	}
	return nil, toSessionResponse(view), nil
}

func (t *tools) resetEditSession(ctx context.Context, _ *sdkmcp.CallToolRequest, in SessionParams) (*sdkmcp.CallToolResult, SessionResponse, error) {
	if !isAdmin(ctx) {
		return nil, SessionResponse{}, errForbidden
	}
	view, err := t.services.Edits.Reset(in.SessionID)
	if err != nil {
		return nil, SessionResponse{}, mapError(err)
	}
	return nil, toSessionResponse(view), nil
}

func (t *tools) publishStats(ctx context.Context, _ *sdkmcp.CallToolRequest, in SessionParams) (*sdkmcp.CallToolResult, PublishResponse, error) {
	if !isAdmin(ctx) {
		return nil, PublishResponse{}, errForbidden
	}
	result, err := t.services.Edits.Publish(ctx, in.SessionID)
	if err != nil {
		return nil, PublishResponse{}, mapError(err)
	}
	return nil, PublishResponse{
		Stats:    toStatsResponse(result.Record),
		Token:    result.Token,
		ShareURL: result.ShareURL,
	}, nil
}

func (t *tools) getInsights(ctx context.Context, _ *sdkmcp.CallToolRequest, _ GetInsightsParams) (*sdkmcp.CallToolResult, InsightResponse, error) {
	got := t.services.Insights.Insights(ctx, t.services.Stats.Current())
	if got == nil {
		return nil, InsightResponse{}, nil
	}
	return nil, InsightResponse{
		Available:      true,
		Summary:        got.Summary,
		Recommendation: got.Recommendation,
	}, nil
}
