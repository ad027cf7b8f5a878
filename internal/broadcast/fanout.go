package broadcast

import (
	"context"
	"errors"

	"github.com/rpggio/rollcall/internal/domain/stats"
)

// Publisher sends a record to a channel.
type Publisher interface {
	Publish(ctx context.Context, rec stats.Record) error
}

// Fanout publishes to every publisher, joining their errors.
type Fanout []Publisher

// Publish implements Publisher.
func (f Fanout) Publish(ctx context.Context, rec stats.Record) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
