package edit

import (
	"time"

	"github.com/rpggio/rollcall/internal/domain/stats"
)

// DefaultPublishedAck is how long a session reports StatePublished after a publish.
const DefaultPublishedAck = 2500 * time.Millisecond

// State is the publish lifecycle of a session.
type State string

const (
	StateEditing    State = "editing"
	StatePublishing State = "publishing"
	StatePublished  State = "published"
)

// Session is one admin's draft. Sessions are not safe for concurrent use on their
// own; Service serializes access.
type Session struct {
	ID          string
	draft       stats.Record
	state       State
	publishedAt time.Time
}

// View is a point-in-time copy of a session.
type View struct {
	ID    string       `json:"id"`
	Draft stats.Record `json:"draft"`
	State State        `json:"state"`
	// Dirty reports whether the draft differs from the published record.
	Dirty bool `json:"dirty"`
}

func newSession(id string, current stats.Record) *Session {
	return &Session{ID: id, draft: current, state: StateEditing}
}

// Draft returns the working copy.
func (s *Session) Draft() stats.Record { return s.draft }

// SetField coerces raw and applies it to the draft.
func (s *Session) SetField(field stats.Field, raw any, policy TotalPolicy) {
	s.draft = Apply(s.draft, field, stats.Coerce(raw), policy)
	s.state = StateEditing
}

// Reset discards the draft in favour of the published record.
func (s *Session) Reset(current stats.Record) {
	s.draft = current
	s.state = StateEditing
}

// State reports the lifecycle state at now. The published acknowledgement expires
// after ack.
func (s *Session) State(now time.Time, ack time.Duration) State {
	if s.state == StatePublished && now.Sub(s.publishedAt) >= ack {
		return StateEditing
	}
	return s.state
}

func (s *Session) view(now time.Time, ack time.Duration, current stats.Record) View {
	d := s.draft
	return View{
		ID:    s.ID,
		Draft: d,
		State: s.State(now, ack),
		Dirty: d.Total != current.Total || d.Boys != current.Boys || d.Girls != current.Girls,
	}
}
