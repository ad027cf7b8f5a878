package edit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rpggio/rollcall/internal/domain/stats"
	"github.com/rpggio/rollcall/internal/metrics"
	"github.com/rpggio/rollcall/internal/replica"
	"github.com/rpggio/rollcall/internal/snapshot"
)

// Options configures a Service.
type Options struct {
	Policy       TotalPolicy
	PublishedAck time.Duration
	// BaseURL is the public page a share link points at. Empty disables share links.
	BaseURL string
	Clock   func() time.Time
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// PublishResult is returned by a successful publish.
type PublishResult struct {
	Record   stats.Record `json:"record"`
	Token    string       `json:"token"`
	ShareURL string       `json:"shareUrl,omitempty"`
}

// Service owns the admin edit sessions and is the only writer of the durable record.
type Service struct {
	store    Store
	notifier Notifier
	replica  Replica
	opts     Options
	logger   *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewService creates a new edit service. notifier may be nil.
func NewService(store Store, notifier Notifier, rep Replica, opts Options) *Service {
	if opts.Policy == "" {
		opts.Policy = PolicyClamp
	}
	if opts.PublishedAck <= 0 {
		opts.PublishedAck = DefaultPublishedAck
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		store:    store,
		notifier: notifier,
		replica:  rep,
		opts:     opts,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// Policy returns the configured total policy.
func (s *Service) Policy() TotalPolicy { return s.opts.Policy }

// Open starts a session with a draft of the current published record.
func (s *Service) Open() View {
	current := s.replica.Current()
	sess := newSession(uuid.NewString(), current)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
	s.logger.Debug("edit session opened", "session_id", sess.ID)
	return sess.view(s.opts.Clock(), s.opts.PublishedAck, current)
}

// Get returns the session view.
func (s *Service) Get(id string) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return View{}, ErrSessionNotFound
	}
	return sess.view(s.opts.Clock(), s.opts.PublishedAck, s.replica.Current()), nil
}

// SetField updates one field of the session's draft.
func (s *Service) SetField(id, fieldName string, raw any) (View, error) {
	field, ok := stats.ParseField(fieldName)
	if !ok {
		return View{}, fmt.Errorf("%w: %q", ErrUnknownField, fieldName)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return View{}, ErrSessionNotFound
	}
	sess.SetField(field, raw, s.opts.Policy)
	return sess.view(s.opts.Clock(), s.opts.PublishedAck, s.replica.Current()), nil
}

// Reset reloads the session's draft from the published record.
func (s *Service) Reset(id string) (View, error) {
	current := s.replica.Current()

	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return View{}, ErrSessionNotFound
	}
	sess.Reset(current)
	return sess.view(s.opts.Clock(), s.opts.PublishedAck, current), nil
}

// Close discards the session.
func (s *Service) Close(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, id)
	return nil
}

// Publish validates the draft, stamps it, persists it and announces it. A rejected
// draft is left untouched so the admin can correct it.
func (s *Service) Publish(ctx context.Context, id string) (*PublishResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}

	draft := sess.draft
	if err := stats.Validate(draft); err != nil {
		s.opts.Metrics.PublishFailed()
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	sess.state = StatePublishing
	draft.LastUpdated = s.stamp()

	if err := s.store.Save(ctx, draft); err != nil {
		sess.state = StateEditing
		s.opts.Metrics.PublishFailed()
		return nil, fmt.Errorf("saving stats: %w", err)
	}

	if s.notifier != nil {
		if err := s.notifier.Publish(ctx, draft); err != nil {
			s.logger.Warn("broadcast failed, other contexts will catch up from storage", "error", err)
		}
	}

	s.replica.Offer(replica.TriggerPublish, draft)

	sess.draft = draft
	sess.state = StatePublished
	sess.publishedAt = s.opts.Clock()
	s.opts.Metrics.Published()

	token, err := snapshot.Encode(draft)
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}
	result := &PublishResult{Record: draft, Token: token}
	if s.opts.BaseURL != "" {
		shareURL, err := snapshot.ShareURL(s.opts.BaseURL, token)
		if err != nil {
			s.logger.Warn("building share url", "error", err)
		} else {
			result.ShareURL = shareURL
		}
	}

	s.logger.Info("stats published",
		"session_id", id,
		"total", draft.Total,
		"boys", draft.Boys,
		"girls", draft.Girls)
	return result, nil
}

// stamp returns the publish time, kept strictly after the record it supersedes.
func (s *Service) stamp() time.Time {
	now := s.opts.Clock().UTC()
	if last := s.replica.Current().LastUpdated; !now.After(last) {
		now = last.Add(time.Millisecond)
	}
	return now
}
