// Package insight produces a short narrative summary of the published counts.
// Failures never reach users; they yield no insight.
package insight

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/rpggio/rollcall/internal/domain/stats"
	"github.com/rpggio/rollcall/internal/metrics"
)

// ErrInsightService indicates the insight backend failed or is not configured.
var ErrInsightService = errors.New("insight service unavailable")

// DefaultTimeout bounds one generation request.
const DefaultTimeout = 15 * time.Second

// Insight is a summary with one recommendation.
type Insight struct {
	Summary        string `json:"summary"`
	Recommendation string `json:"recommendation"`
}

// Generator produces an insight for a record.
type Generator interface {
	Generate(ctx context.Context, rec stats.Record) (*Insight, error)
}

// Service wraps a Generator, remembering the answer for the latest record.
type Service struct {
	gen     Generator
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu     sync.Mutex
	key    stats.Record
	cached *Insight
}

// NewService creates a service. A nil generator disables insights.
func NewService(gen Generator, timeout time.Duration, logger *slog.Logger, m *metrics.Metrics) *Service {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{gen: gen, timeout: timeout, logger: logger, metrics: m}
}

// Enabled reports whether a generator is configured.
func (s *Service) Enabled() bool {
	return s != nil && s.gen != nil
}

// Insights returns the insight for rec, or nil when none is available.
func (s *Service) Insights(ctx context.Context, rec stats.Record) *Insight {
	if !s.Enabled() {
		return nil
	}

	s.mu.Lock()
	if s.cached != nil && s.key.Equal(rec) {
		out := *s.cached
		s.mu.Unlock()
		return &out
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	got, err := s.gen.Generate(ctx, rec)
	if err != nil || got == nil {
		s.metrics.InsightFailed()
		s.logger.Warn("insight unavailable", "error", err)
		return nil
	}

	s.mu.Lock()
	s.key = rec
	s.cached = got
	s.mu.Unlock()

	out := *got
	return &out
}
