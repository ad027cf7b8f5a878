package edit

import (
	"context"

	"github.com/rpggio/rollcall/internal/domain/stats"
	"github.com/rpggio/rollcall/internal/replica"
)

// Store persists the published record.
type Store interface {
	Save(ctx context.Context, rec stats.Record) error
}

// Notifier announces a published record to other contexts.
type Notifier interface {
	Publish(ctx context.Context, rec stats.Record) error
}

// Replica is the local context's view of the published record.
type Replica interface {
	Current() stats.Record
	Offer(trigger replica.Trigger, rec stats.Record) (stats.Record, bool)
}
