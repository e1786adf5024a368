package models

import (
	"time"

	"github.com/google/uuid"
)

// TournamentStatus представляет статусы турнира.
type TournamentStatus string

const (
	StatusUpcoming           TournamentStatus = "upcoming"
	StatusRegistrationOpen   TournamentStatus = "registration_open"
	StatusRegistrationClosed TournamentStatus = "registration_closed"
	StatusInProgress         TournamentStatus = "in_progress"
	StatusCompleted          TournamentStatus = "completed"
	StatusCancelled          TournamentStatus = "cancelled"
)

// Tournament is owned by the registration side of the platform. The bracket engine only flips
// Status, attaches Bracket and records the overall winner.
type Tournament struct {
	ID        uuid.UUID        `json:"id"`
	Name      string           `json:"name"`
	Status    TournamentStatus `json:"status"`
	StartDate time.Time        `json:"start_date"`
	Bracket   *BracketNode     `json:"bracket,omitempty"`
	WinnerID  *uuid.UUID       `json:"winner_id,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

func (t *Tournament) HasBracket() bool {
	return t.Bracket != nil
}

// BracketNode is the display shape of a bracket. Children are the two earlier-round matches
// feeding this one; round-1 nodes have none.
type BracketNode struct {
	Round     int            `json:"round"`
	RoundName string         `json:"round_name"`
	MatchID   uuid.UUID      `json:"match_id"`
	Children  []*BracketNode `json:"children,omitempty"`
}

// Walk visits the node and all of its descendants depth-first.
func (n *BracketNode) Walk(fn func(*BracketNode)) {
	if n == nil {
		return
	}
	fn(n)
	for _, child := range n.Children {
		child.Walk(fn)
	}
}
