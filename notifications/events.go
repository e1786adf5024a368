package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventBracketGenerated     EventType = "bracket.generated"
	EventMatchReady           EventType = "match.ready"
	EventResultSubmitted      EventType = "match.result_submitted"
	EventVerificationRequired EventType = "match.pending_verification"
	EventMatchCompleted       EventType = "match.completed"
	EventMatchCancelled       EventType = "match.cancelled"
	EventDisputeReported      EventType = "match.dispute_reported"
	EventDisputeResolved      EventType = "match.dispute_resolved"
	EventTournamentCompleted  EventType = "tournament.completed"
)

// Event is a "notify these users that X happened" record. Recipients are user ids.
type Event struct {
	ID           uuid.UUID         `json:"id"`
	Type         EventType         `json:"type"`
	TournamentID uuid.UUID         `json:"tournament_id"`
	MatchID      *uuid.UUID        `json:"match_id,omitempty"`
	Recipients   []uuid.UUID       `json:"recipients"`
	OccurredAt   time.Time         `json:"occurred_at"`
	Data         map[string]string `json:"data,omitempty"`
}

func NewEvent(eventType EventType, tournamentID uuid.UUID, recipients ...uuid.UUID) Event {
	if recipients == nil {
		recipients = []uuid.UUID{}
	}
	return Event{
		ID:           uuid.New(),
		Type:         eventType,
		TournamentID: tournamentID,
		Recipients:   recipients,
		OccurredAt:   time.Now().UTC(),
	}
}

func (e Event) ForMatch(matchID uuid.UUID) Event {
	e.MatchID = &matchID
	return e
}

func (e Event) With(key, value string) Event {
	data := make(map[string]string, len(e.Data)+1)
	for k, v := range e.Data {
		data[k] = v
	}
	data[key] = value
	e.Data = data
	return e
}

// Gateway accepts fire-and-forget notifications. Enqueue must not block on delivery.
type Gateway interface {
	Enqueue(ctx context.Context, event Event) error
}
