package brackets

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/Dosada05/bracket-engine/models"
	"github.com/google/uuid"
)

type seed struct {
	userID uuid.UUID
	bye    bool
}

type position struct {
	round int
	index int
}

type SingleEliminationGenerator struct {
	shuffle func([]uuid.UUID)
	newID   func() uuid.UUID
	now     func() time.Time
}

type Option func(*SingleEliminationGenerator)

// WithShuffle replaces the seeding shuffle. Tests pass an identity function to get a fixed order.
func WithShuffle(shuffle func([]uuid.UUID)) Option {
	return func(g *SingleEliminationGenerator) {
		g.shuffle = shuffle
	}
}

func WithClock(now func() time.Time) Option {
	return func(g *SingleEliminationGenerator) {
		g.now = now
	}
}

func NewSingleEliminationGenerator(opts ...Option) *SingleEliminationGenerator {
	g := &SingleEliminationGenerator{
		shuffle: fairShuffle,
		newID:   uuid.New,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *SingleEliminationGenerator) GetName() string {
	return "SingleElimination"
}

// fairShuffle is a Fisher-Yates permutation.
func fairShuffle(ids []uuid.UUID) {
	rand.Shuffle(len(ids), func(i, j int) {
		ids[i], ids[j] = ids[j], ids[i]
	})
}

// BracketSize returns the padded bracket size (the next power of two) and the number of rounds.
func BracketSize(participants int) (size, totalRounds int) {
	size = 1
	for size < participants {
		size <<= 1
		totalRounds++
	}
	return size, totalRounds
}

// RoundName names a round relative to the final.
func RoundName(round, totalRounds int) string {
	switch totalRounds - round {
	case 0:
		return "Finals"
	case 1:
		return "Semi-Finals"
	case 2:
		return "Quarter-Finals"
	default:
		return fmt.Sprintf("Round %d", round)
	}
}

func (g *SingleEliminationGenerator) GenerateBracket(ctx context.Context, params GenerateBracketParams) (*Bracket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if params.Tournament == nil {
		return nil, fmt.Errorf("tournament is required")
	}

	n := len(params.Participants)
	if n < 2 {
		return nil, fmt.Errorf("%w: found %d", ErrNotEnoughParticipants, n)
	}

	entrants := make([]uuid.UUID, 0, n)
	seen := make(map[uuid.UUID]struct{}, n)
	for _, p := range params.Participants {
		if _, dup := seen[p.UserID]; dup {
			return nil, fmt.Errorf("%w: user %s", ErrDuplicateParticipant, p.UserID)
		}
		seen[p.UserID] = struct{}{}
		entrants = append(entrants, p.UserID)
	}
	g.shuffle(entrants)

	size, totalRounds := BracketSize(n)
	b := &builder{
		gen:          g,
		tournamentID: params.Tournament.ID,
		totalRounds:  totalRounds,
		seeds:        padWithByes(entrants, size),
		createdAt:    g.now(),
		byPosition:   make(map[position]*models.Match, size-1),
	}

	root := b.build(totalRounds, 0, size)
	b.seatByeWinners()

	sort.Slice(b.matches, func(i, j int) bool {
		if b.matches[i].Round != b.matches[j].Round {
			return b.matches[i].Round < b.matches[j].Round
		}
		return b.matches[i].Index < b.matches[j].Index
	})

	return &Bracket{
		Root:        root,
		Matches:     b.matches,
		Size:        size,
		TotalRounds: totalRounds,
	}, nil
}

// padWithByes lays entrants out over size slots. Byes go into the second slot of the last
// size-n pairs, so no round-1 pair is ever two byes.
func padWithByes(entrants []uuid.UUID, size int) []seed {
	pairs := size / 2
	byes := size - len(entrants)
	seeds := make([]seed, 0, size)
	next := 0
	for i := 0; i < pairs; i++ {
		seeds = append(seeds, seed{userID: entrants[next]})
		next++
		if i >= pairs-byes {
			seeds = append(seeds, seed{bye: true})
			continue
		}
		seeds = append(seeds, seed{userID: entrants[next]})
		next++
	}
	return seeds
}

type builder struct {
	gen          *SingleEliminationGenerator
	tournamentID uuid.UUID
	totalRounds  int
	seeds        []seed
	createdAt    time.Time
	matches      []*models.Match
	byPosition   map[position]*models.Match
}

// build creates the match for the node covering seeds[start:end] at the given round and
// returns its display node.
func (b *builder) build(round, start, end int) *models.BracketNode {
	m := &models.Match{
		ID:           b.gen.newID(),
		TournamentID: b.tournamentID,
		Round:        round,
		RoundName:    RoundName(round, b.totalRounds),
		Index:        start / (end - start),
		Player1:      models.UnresolvedSlot(),
		Player2:      models.UnresolvedSlot(),
		Results:      make(map[uuid.UUID]models.MatchResult),
		CreatedAt:    b.createdAt,
		UpdatedAt:    b.createdAt,
	}
	node := &models.BracketNode{Round: round, RoundName: m.RoundName, MatchID: m.ID}

	if round == 1 {
		b.fillFirstRound(m, b.seeds[start], b.seeds[start+1])
		b.add(m)
		return node
	}

	mid := start + (end-start)/2
	left := b.build(round-1, start, mid)
	right := b.build(round-1, mid, end)
	m.Status = models.MatchPending
	b.add(m)

	node.Children = []*models.BracketNode{left, right}
	return node
}

func (b *builder) fillFirstRound(m *models.Match, first, second seed) {
	switch {
	case first.bye && second.bye:
		// padWithByes never produces this pair.
		m.Status = models.MatchCancelled
	case second.bye:
		b.markBye(m, first.userID)
	case first.bye:
		b.markBye(m, second.userID)
	default:
		m.Player1 = models.AssignedSlot(first.userID)
		m.Player2 = models.AssignedSlot(second.userID)
		m.Status = models.MatchScheduled
	}
}

func (b *builder) markBye(m *models.Match, userID uuid.UUID) {
	winner := userID
	m.Player1 = models.AssignedSlot(userID)
	m.WinnerID = &winner
	m.Status = models.MatchCompleted
	m.IsBye = true
}

func (b *builder) add(m *models.Match) {
	b.matches = append(b.matches, m)
	b.byPosition[position{round: m.Round, index: m.Index}] = m
}

// seatByeWinners runs the usual advancement for every bye, so a round-2 match can leave
// generation with one slot seated (pending) or both (scheduled) instead of fully unresolved.
func (b *builder) seatByeWinners() {
	for _, m := range b.matches {
		if m.Round != 1 || !m.IsBye {
			continue
		}
		round, index, _ := m.ParentPosition()
		parent, ok := b.byPosition[position{round: round, index: index}]
		if !ok {
			continue
		}
		sibling := b.byPosition[position{round: m.Round, index: m.Index ^ 1}]
		Advance(parent, m, sibling)
	}
}
