package participant

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/streakhub/streak-hub/internal/domain/shared"
)

// Kind represents the type of domain event.
type Kind string

const (
	KindParticipantJoined  Kind = "participant_joined"
	KindParticipantUpdated Kind = "participant_updated"
	KindParticipantLeft    Kind = "participant_left"
	KindStatsUpdated       Kind = "stats_updated"
)

// IsValid checks if the kind is one of the known event kinds.
func (k Kind) IsValid() bool {
	switch k {
	case KindParticipantJoined, KindParticipantUpdated, KindParticipantLeft, KindStatsUpdated:
		return true
	default:
		return false
	}
}

// Event is an immutable record of a state change. The concrete types below
// are the only implementations; switch on them to reach the typed payload.
type Event interface {
	// Kind returns the type of the event.
	Kind() Kind

	// OccurredAt returns when the event was created.
	OccurredAt() time.Time

	// AggregateID returns the participant ID, or "" for aggregate events.
	AggregateID() string

	isEvent()
}

// baseEvent provides common event functionality.
type baseEvent struct {
	kind        Kind
	timestamp   time.Time
	aggregateID string
}

func (e baseEvent) Kind() Kind            { return e.kind }
func (e baseEvent) OccurredAt() time.Time { return e.timestamp }
func (e baseEvent) AggregateID() string   { return e.aggregateID }
func (baseEvent) isEvent()                {}

// ParticipantJoined is emitted when a participant is added.
type ParticipantJoined struct {
	baseEvent
	Participant Participant
}

// ParticipantUpdated is emitted after an increment or a reset.
type ParticipantUpdated struct {
	baseEvent
	Participant Participant
}

// ParticipantLeft is emitted when a participant is removed. Participant holds
// the last known state, marked offline.
type ParticipantLeft struct {
	baseEvent
	Participant Participant
}

// StatsUpdated is emitted by the presence sweep when online status changed.
type StatsUpdated struct {
	baseEvent
	Stats Stats
}

// NewParticipantJoined creates a ParticipantJoined event.
func NewParticipantJoined(p Participant, at time.Time) ParticipantJoined {
	return ParticipantJoined{baseEvent{KindParticipantJoined, at, p.ID}, p}
}

// NewParticipantUpdated creates a ParticipantUpdated event.
func NewParticipantUpdated(p Participant, at time.Time) ParticipantUpdated {
	return ParticipantUpdated{baseEvent{KindParticipantUpdated, at, p.ID}, p}
}

// NewParticipantLeft creates a ParticipantLeft event.
func NewParticipantLeft(p Participant, at time.Time) ParticipantLeft {
	return ParticipantLeft{baseEvent{KindParticipantLeft, at, p.ID}, p}
}

// NewStatsUpdated creates a StatsUpdated event.
func NewStatsUpdated(s Stats, at time.Time) StatsUpdated {
	return StatsUpdated{baseEvent{KindStatsUpdated, at, ""}, s}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Envelope (for storage)
// ═══════════════════════════════════════════════════════════════════════════

// Envelope is the stored form of an event: {"type", "data", "timestamp"}.
type Envelope struct {
	Type      Kind            `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// Encode converts an event into its stored envelope.
func Encode(e Event) (Envelope, error) {
	var payload any
	switch ev := e.(type) {
	case ParticipantJoined:
		payload = ev.Participant
	case ParticipantUpdated:
		payload = ev.Participant
	case ParticipantLeft:
		payload = ev.Participant
	case StatsUpdated:
		payload = ev.Stats
	default:
		return Envelope{}, fmt.Errorf("encode event: unsupported type %T", e)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", e.Kind(), err)
	}

	return Envelope{Type: e.Kind(), Data: data, Timestamp: e.OccurredAt()}, nil
}

// Decode rebuilds a typed event from its envelope.
func Decode(env Envelope) (Event, error) {
	if env.Type == KindStatsUpdated {
		var s Stats
		if err := json.Unmarshal(env.Data, &s); err != nil {
			return nil, shared.WrapError("event", "Decode", shared.ErrCorruptRecord, "bad stats payload", err)
		}
		return NewStatsUpdated(s, env.Timestamp), nil
	}

	if !env.Type.IsValid() {
		return nil, shared.NewDomainError("event", "Decode", shared.ErrCorruptRecord, fmt.Sprintf("unknown event type %q", env.Type))
	}

	var p Participant
	if err := json.Unmarshal(env.Data, &p); err != nil {
		return nil, shared.WrapError("event", "Decode", shared.ErrCorruptRecord, "bad participant payload", err)
	}
	if p.Achievements == nil {
		p.Achievements = []Level{}
	}

	switch env.Type {
	case KindParticipantJoined:
		return NewParticipantJoined(p, env.Timestamp), nil
	case KindParticipantUpdated:
		return NewParticipantUpdated(p, env.Timestamp), nil
	default:
		return NewParticipantLeft(p, env.Timestamp), nil
	}
}
