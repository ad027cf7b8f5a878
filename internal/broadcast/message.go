package broadcast

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rpggio/rollcall/internal/domain/stats"
)

// TypeStatsUpdate tags a message carrying a freshly published record.
const TypeStatsUpdate = "STATS_UPDATE"

// DefaultChannel is the channel name shared by every context of one deployment.
const DefaultChannel = "school_stats_channel"

var (
	// ErrClosed is returned when publishing or subscribing on a closed notifier.
	ErrClosed = errors.New("broadcast channel closed")
	// ErrUnknownType indicates a message this version does not understand.
	ErrUnknownType = errors.New("unknown message type")
)

// Message is the wire shape exchanged on a channel.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Origin  string          `json:"origin,omitempty"`
}

// NewUpdate wraps rec in a STATS_UPDATE message.
func NewUpdate(origin string, rec stats.Record) (Message, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return Message{}, fmt.Errorf("encoding payload: %w", err)
	}
	return Message{Type: TypeStatsUpdate, Payload: payload, Origin: origin}, nil
}

// Record extracts and validates the record of a STATS_UPDATE message.
func (m Message) Record() (stats.Record, error) {
	if m.Type != TypeStatsUpdate {
		return stats.Record{}, fmt.Errorf("%w: %q", ErrUnknownType, m.Type)
	}
	return stats.ParseJSON(m.Payload)
}

// ParseMessage decodes a raw frame.
func ParseMessage(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("decoding message: %w", err)
	}
	return msg, nil
}
