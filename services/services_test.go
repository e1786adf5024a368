package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/Dosada05/bracket-engine/brackets"
	"github.com/Dosada05/bracket-engine/db/dbtest"
	"github.com/Dosada05/bracket-engine/models"
	"github.com/Dosada05/bracket-engine/notifications"
	"github.com/Dosada05/bracket-engine/repositories"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeGateway struct {
	mu     sync.Mutex
	events []notifications.Event
	err    error
}

func (g *fakeGateway) Enqueue(_ context.Context, event notifications.Event) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return g.err
	}
	g.events = append(g.events, event)
	return nil
}

func (g *fakeGateway) ofType(eventType notifications.EventType) []notifications.Event {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []notifications.Event
	for _, e := range g.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// flakyMatchRepo loses the version check a fixed number of times before delegating.
type flakyMatchRepo struct {
	repositories.MatchRepository
	mu        sync.Mutex
	conflicts int
}

func (r *flakyMatchRepo) UpdateState(ctx context.Context, exec repositories.SQLExecutor, m *models.Match) error {
	r.mu.Lock()
	if r.conflicts > 0 {
		r.conflicts--
		r.mu.Unlock()
		return repositories.ErrMatchVersionConflict
	}
	r.mu.Unlock()
	return r.MatchRepository.UpdateState(ctx, exec, m)
}

type testEnv struct {
	db           *sqlx.DB
	tournaments  repositories.TournamentRepository
	participants repositories.ParticipantRepository
	matchRepo    repositories.MatchRepository
	gateway      *fakeGateway

	brackets BracketService
	matches  MatchService
	disputes DisputeService
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithRepo(t, nil)
}

// newTestEnvWithRepo builds services over a fresh database; wrap may decorate the match repository.
func newTestEnvWithRepo(t *testing.T, wrap func(repositories.MatchRepository) repositories.MatchRepository) *testEnv {
	t.Helper()
	db := dbtest.New(t)
	env := &testEnv{
		db:           db,
		tournaments:  repositories.NewPostgresTournamentRepository(db),
		participants: repositories.NewPostgresParticipantRepository(db),
		matchRepo:    repositories.NewPostgresMatchRepository(db),
		gateway:      &fakeGateway{},
	}
	matchRepo := env.matchRepo
	if wrap != nil {
		matchRepo = wrap(matchRepo)
	}

	generator := brackets.NewSingleEliminationGenerator(brackets.WithShuffle(func([]uuid.UUID) {}))
	env.brackets = NewBracketService(db, env.tournaments, env.participants, matchRepo, generator, env.gateway, discardLogger, nil)
	env.matches = NewMatchService(db, matchRepo, env.tournaments, env.gateway, discardLogger, nil)
	env.disputes = NewDisputeService(db, matchRepo, env.tournaments, env.gateway, discardLogger, nil)
	return env
}

var admin = models.AuthContext{UserID: uuid.New(), Role: models.RoleAdmin}

func player(id uuid.UUID) models.AuthContext {
	return models.AuthContext{UserID: id, Role: models.RolePlayer}
}

// seedTournament registers paid and unpaid participants and returns the tournament and the paid user ids.
func (e *testEnv) seedTournament(t *testing.T, paid, unpaid int) (*models.Tournament, []uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	tournament := &models.Tournament{
		Name:      "Autumn Open",
		Status:    models.StatusRegistrationClosed,
		StartDate: time.Now().UTC().Add(time.Hour),
	}
	require.NoError(t, e.tournaments.Create(ctx, nil, tournament))

	users := make([]uuid.UUID, 0, paid)
	for i := 0; i < paid+unpaid; i++ {
		p := &models.Participant{TournamentID: tournament.ID, UserID: uuid.New(), PaymentStatus: models.PaymentPaid}
		if i >= paid {
			p.PaymentStatus = models.PaymentPending
		} else {
			users = append(users, p.UserID)
		}
		require.NoError(t, e.participants.Create(ctx, nil, p))
	}
	return tournament, users
}

func (e *testEnv) generate(t *testing.T, tournamentID uuid.UUID) *BracketView {
	t.Helper()
	view, err := e.brackets.GenerateBracket(context.Background(), admin, tournamentID)
	require.NoError(t, err)
	return view
}

func (e *testEnv) match(t *testing.T, id uuid.UUID) *models.Match {
	t.Helper()
	m, err := e.matches.GetMatch(context.Background(), id)
	require.NoError(t, err)
	return m
}

func (e *testEnv) matchAt(t *testing.T, tournamentID uuid.UUID, round, index int) *models.Match {
	t.Helper()
	m, err := e.matchRepo.GetByPosition(context.Background(), nil, tournamentID, round, index)
	require.NoError(t, err)
	return m
}

// finishMatch has both players report (player1 wins 3:1) and verifies the result.
func (e *testEnv) finishMatch(t *testing.T, m *models.Match) *models.Match {
	t.Helper()
	ctx := context.Background()
	p1, ok := m.Player1.UserID()
	require.True(t, ok)
	p2, ok := m.Player2.UserID()
	require.True(t, ok)

	_, err := e.matches.SubmitResult(ctx, player(p1), m.ID, SubmitResultInput{Score: 3})
	require.NoError(t, err)
	_, err = e.matches.SubmitResult(ctx, player(p2), m.ID, SubmitResultInput{Score: 1})
	require.NoError(t, err)
	verified, err := e.matches.VerifyResult(ctx, admin, m.ID, nil)
	require.NoError(t, err)
	return verified
}
