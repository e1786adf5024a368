package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type MatchStatus string

const (
	// MatchPending is a future-round match still waiting for at least one feeder.
	MatchPending             MatchStatus = "pending"
	MatchScheduled           MatchStatus = "scheduled"
	MatchInProgress          MatchStatus = "in_progress"
	MatchPendingVerification MatchStatus = "pending_verification"
	MatchCompleted           MatchStatus = "completed"
	MatchDisputed            MatchStatus = "disputed"
	MatchCancelled           MatchStatus = "cancelled"
)

func (s MatchStatus) IsTerminal() bool {
	return s == MatchCompleted || s == MatchCancelled
}

// PlayerSlot is one side of a match: either unresolved (waiting for the winner of a feeder
// match) or assigned to a user.
type PlayerSlot struct {
	userID   uuid.UUID
	assigned bool
}

func UnresolvedSlot() PlayerSlot {
	return PlayerSlot{}
}

func AssignedSlot(userID uuid.UUID) PlayerSlot {
	return PlayerSlot{userID: userID, assigned: true}
}

func (s PlayerSlot) IsAssigned() bool {
	return s.assigned
}

func (s PlayerSlot) UserID() (uuid.UUID, bool) {
	return s.userID, s.assigned
}

func (s PlayerSlot) Holds(userID uuid.UUID) bool {
	return s.assigned && s.userID == userID
}

func (s PlayerSlot) NullUUID() uuid.NullUUID {
	return uuid.NullUUID{UUID: s.userID, Valid: s.assigned}
}

func SlotFromNullUUID(n uuid.NullUUID) PlayerSlot {
	if !n.Valid {
		return UnresolvedSlot()
	}
	return AssignedSlot(n.UUID)
}

func (s PlayerSlot) MarshalJSON() ([]byte, error) {
	if !s.assigned {
		return []byte("null"), nil
	}
	return json.Marshal(s.userID)
}

func (s *PlayerSlot) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = UnresolvedSlot()
		return nil
	}
	var id uuid.UUID
	if err := json.Unmarshal(data, &id); err != nil {
		return err
	}
	*s = AssignedSlot(id)
	return nil
}

type MatchResult struct {
	PlayerID      uuid.UUID `json:"player_id" db:"player_id"`
	Score         int       `json:"score" db:"score"`
	ScreenshotURL *string   `json:"screenshot_url,omitempty" db:"screenshot_url"`
	SubmittedAt   time.Time `json:"submitted_at" db:"submitted_at"`
}

type DisputeStatus string

const (
	DisputeOpen     DisputeStatus = "open"
	DisputeResolved DisputeStatus = "resolved"
)

type Dispute struct {
	ReportedBy uuid.UUID     `json:"reported_by"`
	Reason     string        `json:"reason"`
	Evidence   []string      `json:"evidence"`
	Status     DisputeStatus `json:"status"`
	Resolution *string       `json:"resolution,omitempty"`
	ResolvedBy *uuid.UUID    `json:"resolved_by,omitempty"`
	ResolvedAt *time.Time    `json:"resolved_at,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}

// Match is one node of a single-elimination bracket. Index is the 0-based position within
// the round; the parent of (Round, Index) is (Round+1, Index/2).
type Match struct {
	ID           uuid.UUID                 `json:"id"`
	TournamentID uuid.UUID                 `json:"tournament_id"`
	Round        int                       `json:"round"`
	RoundName    string                    `json:"round_name"`
	Index        int                       `json:"index"`
	Player1      PlayerSlot                `json:"player1"`
	Player2      PlayerSlot                `json:"player2"`
	WinnerID     *uuid.UUID                `json:"winner_id,omitempty"`
	Status       MatchStatus               `json:"status"`
	IsBye        bool                      `json:"is_bye"`
	Results      map[uuid.UUID]MatchResult `json:"results"`
	Dispute      *Dispute                  `json:"dispute,omitempty"`
	Version      int                       `json:"-"`
	CreatedAt    time.Time                 `json:"created_at"`
	UpdatedAt    time.Time                 `json:"updated_at"`
}

func (m *Match) HasPlayer(userID uuid.UUID) bool {
	return m.Player1.Holds(userID) || m.Player2.Holds(userID)
}

func (m *Match) BothAssigned() bool {
	return m.Player1.IsAssigned() && m.Player2.IsAssigned()
}

// Players returns the assigned user ids in slot order.
func (m *Match) Players() []uuid.UUID {
	players := make([]uuid.UUID, 0, 2)
	if id, ok := m.Player1.UserID(); ok {
		players = append(players, id)
	}
	if id, ok := m.Player2.UserID(); ok {
		players = append(players, id)
	}
	return players
}

// Opponent returns the other assigned player, if any.
func (m *Match) Opponent(userID uuid.UUID) (uuid.UUID, bool) {
	switch {
	case m.Player1.Holds(userID):
		return m.Player2.UserID()
	case m.Player2.Holds(userID):
		return m.Player1.UserID()
	}
	return uuid.Nil, false
}

// SetSlot assigns slot 0 (player1) or 1 (player2).
func (m *Match) SetSlot(slot int, userID uuid.UUID) {
	if slot == 0 {
		m.Player1 = AssignedSlot(userID)
		return
	}
	m.Player2 = AssignedSlot(userID)
}

func (m *Match) ParentPosition() (round, index, slot int) {
	return m.Round + 1, m.Index / 2, m.Index % 2
}
