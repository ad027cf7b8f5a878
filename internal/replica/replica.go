// Package replica holds one context's in-memory copy of the published record and keeps
// it current. Every trigger (initial load, storage change, broadcast, focus, poll, local
// publish) feeds candidates into the same latest-timestamp-wins reconciliation.
package replica

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/rpggio/rollcall/internal/broadcast"
	"github.com/rpggio/rollcall/internal/domain/stats"
	"github.com/rpggio/rollcall/internal/metrics"
	"github.com/rpggio/rollcall/internal/snapshot"
	"github.com/rpggio/rollcall/internal/storage"
)

// DefaultPollInterval bounds how stale a context can get when events are lost.
const DefaultPollInterval = 3 * time.Second

const eventBuffer = 64

// Trigger names what caused a reconciliation.
type Trigger string

const (
	TriggerLoad      Trigger = "load"
	TriggerStorage   Trigger = "storage"
	TriggerBroadcast Trigger = "broadcast"
	TriggerFocus     Trigger = "focus"
	TriggerPoll      Trigger = "poll"
	TriggerPublish   Trigger = "publish"
)

// Store is the durable slot as seen by a replica.
type Store interface {
	Load(ctx context.Context) (*stats.Record, error)
	Watch(handler storage.ChangeHandler) storage.Subscription
}

// Notifier is the cross-context channel as seen by a replica.
type Notifier interface {
	Subscribe(handler broadcast.Handler) (broadcast.Subscription, error)
}

// Options configures a Replica.
type Options struct {
	// PollInterval is the fallback re-read period. Zero uses DefaultPollInterval;
	// negative disables polling.
	PollInterval time.Duration
	// SeedToken is a snapshot token considered during the initial load.
	SeedToken string
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
}

type event struct {
	trigger   Trigger
	candidate *stats.Record
}

// Replica is the state container for one context. Reads are concurrent; every write
// goes through reconcile.
type Replica struct {
	store    Store
	notifier Notifier
	opts     Options
	logger   *slog.Logger

	mu        sync.RWMutex
	current   stats.Record
	observers map[int]func(stats.Record)
	nextObs   int

	events  chan event
	closers []io.Closer
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a replica seeded with the default record. notifier may be nil.
func New(store Store, notifier Notifier, opts Options) *Replica {
	if opts.PollInterval == 0 {
		opts.PollInterval = DefaultPollInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Replica{
		store:     store,
		notifier:  notifier,
		opts:      opts,
		logger:    logger,
		current:   stats.Default(),
		observers: make(map[int]func(stats.Record)),
		events:    make(chan event, eventBuffer),
	}
}

// Start performs the initial load and begins listening for changes.
func (r *Replica) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.done != nil {
		r.mu.Unlock()
		return nil
	}
	r.done = make(chan struct{})
	r.mu.Unlock()

	r.initialLoad(ctx)

	sub := r.store.Watch(func(value string) {
		rec, err := storage.Parse(value)
		if err != nil {
			r.logger.Debug("ignoring unreadable storage change", "error", err)
			return
		}
		r.enqueue(TriggerStorage, rec)
	})
	r.closers = append(r.closers, sub)

	if r.notifier != nil {
		bsub, err := r.notifier.Subscribe(func(rec stats.Record) {
			r.enqueue(TriggerBroadcast, &rec)
		})
		if err != nil {
			_ = sub.Close()
			close(r.done)
			return fmt.Errorf("subscribing to broadcast: %w", err)
		}
		r.closers = append(r.closers, bsub)
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.cancel = cancel
	go r.loop(loopCtx)
	return nil
}

// Close stops polling and releases storage and broadcast subscriptions.
func (r *Replica) Close() error {
	r.mu.RLock()
	done := r.done
	r.mu.RUnlock()
	if done == nil || r.cancel == nil {
		return nil
	}

	r.cancel()
	<-done

	var errs []error
	for _, c := range r.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

// Current returns the record this context currently shows.
func (r *Replica) Current() stats.Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Observe registers fn for every adopted change. The returned func unregisters it.
func (r *Replica) Observe(fn func(stats.Record)) func() {
	r.mu.Lock()
	id := r.nextObs
	r.nextObs++
	r.observers[id] = fn
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.observers, id)
		r.mu.Unlock()
	}
}

// Offer reconciles rec against the current record.
func (r *Replica) Offer(trigger Trigger, rec stats.Record) (stats.Record, bool) {
	return r.reconcile(trigger, &rec)
}

// Refresh re-reads the durable slot, the equivalent of a context regaining focus.
func (r *Replica) Refresh(ctx context.Context) stats.Record {
	return r.reloadPersisted(ctx, TriggerFocus)
}

func (r *Replica) initialLoad(ctx context.Context) {
	persisted, err := r.store.Load(ctx)
	if err != nil {
		r.logger.Warn("persisted stats unavailable, using other sources", "error", err)
		persisted = nil
	}

	var fromURL *stats.Record
	if r.opts.SeedToken != "" {
		rec, err := snapshot.Decode(r.opts.SeedToken)
		if err != nil {
			r.opts.Metrics.DecodeFailed()
			r.logger.Warn("ignoring malformed seed token", "error", err)
		} else {
			fromURL = &rec
		}
	}

	chosen, _ := r.reconcile(TriggerLoad, persisted, fromURL)
	r.logger.Info("stats loaded",
		"total", chosen.Total,
		"boys", chosen.Boys,
		"girls", chosen.Girls,
		"last_updated", chosen.LastUpdated)
}

func (r *Replica) reloadPersisted(ctx context.Context, trigger Trigger) stats.Record {
	persisted, err := r.store.Load(ctx)
	if err != nil {
		r.logger.Debug("persisted stats unavailable", "trigger", trigger, "error", err)
		return r.Current()
	}
	chosen, _ := r.reconcile(trigger, persisted)
	return chosen
}

func (r *Replica) enqueue(trigger Trigger, rec *stats.Record) {
	select {
	case r.events <- event{trigger: trigger, candidate: rec}:
	default:
		r.logger.Debug("replica event queue full, relying on poll", "trigger", trigger)
	}
}

func (r *Replica) loop(ctx context.Context) {
	defer close(r.done)

	var tick <-chan time.Time
	if r.opts.PollInterval > 0 {
		ticker := time.NewTicker(r.opts.PollInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-r.events:
			r.reconcile(ev.trigger, ev.candidate)
		case <-tick:
			r.reloadPersisted(ctx, TriggerPoll)
		}
	}
}

// reconcile is the only place the current record changes.
func (r *Replica) reconcile(trigger Trigger, candidates ...*stats.Record) (stats.Record, bool) {
	r.mu.Lock()
	chosen, replaced := stats.Reconcile(r.current, candidates...)
	r.current = chosen
	var observers []func(stats.Record)
	if replaced {
		observers = make([]func(stats.Record), 0, len(r.observers))
		for _, fn := range r.observers {
			observers = append(observers, fn)
		}
	}
	r.mu.Unlock()

	r.opts.Metrics.Reconciled(string(trigger), replaced)
	if replaced {
		r.logger.Debug("adopted newer stats", "trigger", trigger, "last_updated", chosen.LastUpdated)
		for _, fn := range observers {
			fn(chosen)
		}
	}
	return chosen, replaced
}
