package brackets

import (
	"context"
	"errors"

	"github.com/Dosada05/bracket-engine/models"
)

var (
	ErrNotEnoughParticipants = errors.New("not enough participants to generate a bracket (minimum 2)")
	ErrDuplicateParticipant  = errors.New("participant appears more than once")
	ErrIncompleteBracket     = errors.New("matches do not form a complete bracket")
)

type GenerateBracketParams struct {
	Tournament   *models.Tournament
	Participants []*models.Participant
}

// Bracket is the output of a generator: the flat match records plus the display tree.
type Bracket struct {
	Root        *models.BracketNode
	Matches     []*models.Match
	Size        int
	TotalRounds int
}

type BracketGenerator interface {
	GenerateBracket(ctx context.Context, params GenerateBracketParams) (*Bracket, error)

	GetName() string
}
