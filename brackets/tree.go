package brackets

import (
	"fmt"

	"github.com/Dosada05/bracket-engine/models"
)

// ProjectTree rebuilds the display tree from flat match records using round and index.
func ProjectTree(matches []*models.Match) (*models.BracketNode, error) {
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: no matches", ErrIncompleteBracket)
	}

	byPosition := make(map[position]*models.Match, len(matches))
	totalRounds := 0
	for _, m := range matches {
		byPosition[position{round: m.Round, index: m.Index}] = m
		if m.Round > totalRounds {
			totalRounds = m.Round
		}
	}
	if want := 1<<totalRounds - 1; len(matches) != want {
		return nil, fmt.Errorf("%w: %d matches for %d rounds, want %d", ErrIncompleteBracket, len(matches), totalRounds, want)
	}

	var project func(round, index int) (*models.BracketNode, error)
	project = func(round, index int) (*models.BracketNode, error) {
		m, ok := byPosition[position{round: round, index: index}]
		if !ok {
			return nil, fmt.Errorf("%w: missing match at round %d index %d", ErrIncompleteBracket, round, index)
		}
		node := &models.BracketNode{Round: m.Round, RoundName: m.RoundName, MatchID: m.ID}
		if round == 1 {
			return node, nil
		}
		left, err := project(round-1, 2*index)
		if err != nil {
			return nil, err
		}
		right, err := project(round-1, 2*index+1)
		if err != nil {
			return nil, err
		}
		node.Children = []*models.BracketNode{left, right}
		return node, nil
	}

	return project(totalRounds, 0)
}
