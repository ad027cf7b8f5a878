package mcp

import (
	"time"

	"github.com/rpggio/rollcall/internal/domain/edit"
	"github.com/rpggio/rollcall/internal/domain/stats"
)

type GetStatsParams struct {
	Token   string `json:"token,omitempty" jsonschema:"snapshot token from a share link; the newer of it and the current record is returned"`
	Refresh bool   `json:"refresh,omitempty" jsonschema:"re-read durable storage first"`
}

type EncodeSnapshotParams struct {
	Total *int `json:"total,omitempty" jsonschema:"total count, defaults to boys + girls; omit all counts to encode the current record"`
	Boys  *int `json:"boys,omitempty" jsonschema:"boys count"`
	Girls *int `json:"girls,omitempty" jsonschema:"girls count"`
}

type DecodeSnapshotParams struct {
	Token string `json:"token" jsonschema:"snapshot token, the d query parameter of a share link"`
}

type OpenEditSessionParams struct{}

type SessionParams struct {
	SessionID string `json:"session_id" jsonschema:"edit session id from open_edit_session"`
}

type SetFieldParams struct {
	SessionID string `json:"session_id" jsonschema:"edit session id from open_edit_session"`
	Field     string `json:"field" jsonschema:"one of total, boys, girls"`
	Value     any    `json:"value" jsonschema:"new count; non-numeric input counts as 0, negatives as 0"`
}

type GetInsightsParams struct{}

// StatsResponse is the wire form of a record.
type StatsResponse struct {
	Total       int    `json:"total"`
	Boys        int    `json:"boys"`
	Girls       int    `json:"girls"`
	LastUpdated string `json:"lastUpdated,omitempty"`
	Consistent  bool   `json:"consistent"`
}

type SnapshotResponse struct {
	Token    string `json:"token"`
	ShareURL string `json:"shareUrl,omitempty"`
}

type SessionResponse struct {
	SessionID string        `json:"session_id"`
	State     string        `json:"state"`
	Dirty     bool          `json:"dirty"`
	Draft     StatsResponse `json:"draft"`
}

type PublishResponse struct {
	Stats    StatsResponse `json:"stats"`
	Token    string        `json:"token"`
	ShareURL string        `json:"shareUrl,omitempty"`
}

type InsightResponse struct {
	Available      bool   `json:"available"`
	Summary        string `json:"summary,omitempty"`
	Recommendation string `json:"recommendation,omitempty"`
}

func toStatsResponse(rec stats.Record) StatsResponse {
	out := StatsResponse{
		Total:      rec.Total,
		Boys:       rec.Boys,
		Girls:      rec.Girls,
		Consistent: rec.Consistent(),
	}
	if !rec.LastUpdated.IsZero() {
		out.LastUpdated = rec.LastUpdated.UTC().Format(time.RFC3339Nano)
	}
	return out
}

func toSessionResponse(v edit.View) SessionResponse {
	return SessionResponse{
		SessionID: v.ID,
		State:     string(v.State),
		Dirty:     v.Dirty,
		Draft:     toStatsResponse(v.Draft),
	}
}
