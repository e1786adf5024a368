package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/Dosada05/bracket-engine/db/dbtest"
	"github.com/Dosada05/bracket-engine/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTournament(t *testing.T, db *sqlx.DB) *models.Tournament {
	t.Helper()
	tournament := &models.Tournament{
		Name:      "Spring Cup",
		Status:    models.StatusRegistrationClosed,
		StartDate: time.Now().UTC().Add(24 * time.Hour),
	}
	require.NoError(t, NewPostgresTournamentRepository(db).Create(context.Background(), nil, tournament))
	return tournament
}

func twoMatchBracket(tournamentID uuid.UUID) []*models.Match {
	now := time.Now().UTC()
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	return []*models.Match{
		{
			ID: uuid.New(), TournamentID: tournamentID, Round: 1, RoundName: "Semi-Finals", Index: 0,
			Player1: models.AssignedSlot(a), Player2: models.AssignedSlot(b),
			Status: models.MatchScheduled, CreatedAt: now, UpdatedAt: now,
		},
		{
			ID: uuid.New(), TournamentID: tournamentID, Round: 1, RoundName: "Semi-Finals", Index: 1,
			Player1: models.AssignedSlot(c), Player2: models.UnresolvedSlot(),
			WinnerID: &c, Status: models.MatchCompleted, IsBye: true, CreatedAt: now, UpdatedAt: now,
		},
		{
			ID: uuid.New(), TournamentID: tournamentID, Round: 2, RoundName: "Finals", Index: 0,
			Player1: models.UnresolvedSlot(), Player2: models.AssignedSlot(c),
			Status: models.MatchPending, CreatedAt: now, UpdatedAt: now,
		},
	}
}

func TestTournamentAttachBracketOnce(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()
	repo := NewPostgresTournamentRepository(db)
	tournament := createTournament(t, db)

	root := &models.BracketNode{Round: 1, RoundName: "Finals", MatchID: uuid.New()}
	require.NoError(t, repo.AttachBracket(ctx, nil, tournament.ID, root, models.StatusInProgress))

	err := repo.AttachBracket(ctx, nil, tournament.ID, &models.BracketNode{MatchID: uuid.New()}, models.StatusInProgress)
	assert.ErrorIs(t, err, ErrBracketAlreadyAttached)

	stored, err := repo.GetByID(ctx, nil, tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, stored.Status)
	require.NotNil(t, stored.Bracket)
	assert.Equal(t, root.MatchID, stored.Bracket.MatchID)
}

func TestTournamentNotFound(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()
	repo := NewPostgresTournamentRepository(db)

	_, err := repo.GetByID(ctx, nil, uuid.New())
	assert.ErrorIs(t, err, ErrTournamentNotFound)

	err = repo.AttachBracket(ctx, nil, uuid.New(), &models.BracketNode{}, models.StatusInProgress)
	assert.ErrorIs(t, err, ErrTournamentNotFound)

	assert.ErrorIs(t, repo.Complete(ctx, nil, uuid.New(), nil), ErrTournamentNotFound)
}

func TestTournamentComplete(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()
	repo := NewPostgresTournamentRepository(db)
	tournament := createTournament(t, db)

	winner := uuid.New()
	require.NoError(t, repo.Complete(ctx, nil, tournament.ID, &winner))

	stored, err := repo.GetByID(ctx, nil, tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, stored.Status)
	require.NotNil(t, stored.WinnerID)
	assert.Equal(t, winner, *stored.WinnerID)
}

func TestParticipantsListPaidOnly(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()
	repo := NewPostgresParticipantRepository(db)
	tournament := createTournament(t, db)

	paid := &models.Participant{TournamentID: tournament.ID, UserID: uuid.New(), Email: "a@example.com", PaymentStatus: models.PaymentPaid}
	unpaid := &models.Participant{TournamentID: tournament.ID, UserID: uuid.New()}
	require.NoError(t, repo.Create(ctx, nil, paid))
	require.NoError(t, repo.Create(ctx, nil, unpaid))

	list, err := repo.ListPaidByTournament(ctx, nil, tournament.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, paid.UserID, list[0].UserID)

	found, err := repo.FindByUserAndTournament(ctx, nil, paid.UserID, tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", found.Email)

	_, err = repo.FindByUserAndTournament(ctx, nil, uuid.New(), tournament.ID)
	assert.ErrorIs(t, err, ErrParticipantNotFound)
}

func TestMatchCreateBatchAndList(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()
	repo := NewPostgresMatchRepository(db)
	tournament := createTournament(t, db)

	matches := twoMatchBracket(tournament.ID)
	tx, err := db.BeginTxx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, repo.CreateBatch(ctx, tx, matches))
	require.NoError(t, tx.Commit())

	stored, err := repo.ListByTournament(ctx, nil, tournament.ID)
	require.NoError(t, err)
	require.Len(t, stored, 3)

	bye := stored[1]
	assert.True(t, bye.IsBye)
	assert.Equal(t, models.MatchCompleted, bye.Status)
	assert.False(t, bye.Player2.IsAssigned())
	require.NotNil(t, bye.WinnerID)
	assert.Equal(t, 1, bye.Version)

	final, err := repo.GetByPosition(ctx, nil, tournament.ID, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, matches[2].ID, final.ID)
	assert.False(t, final.Player1.IsAssigned())
	assert.True(t, final.Player2.Holds(*bye.WinnerID))

	_, err = repo.GetByPosition(ctx, nil, tournament.ID, 3, 0)
	assert.ErrorIs(t, err, ErrMatchNotFound)
}

func TestMatchCreateBatchRollsBack(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()
	repo := NewPostgresMatchRepository(db)
	tournament := createTournament(t, db)

	matches := twoMatchBracket(tournament.ID)
	matches[2].Index = 0
	matches[2].Round = 1 // collides with the first match's position

	tx, err := db.BeginTxx(ctx, nil)
	require.NoError(t, err)
	assert.Error(t, repo.CreateBatch(ctx, tx, matches))
	require.NoError(t, tx.Rollback())

	stored, err := repo.ListByTournament(ctx, nil, tournament.ID)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestMatchUpdateStateVersionCheck(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()
	repo := NewPostgresMatchRepository(db)
	tournament := createTournament(t, db)
	matches := twoMatchBracket(tournament.ID)
	require.NoError(t, repo.CreateBatch(ctx, nil, matches))

	first, err := repo.GetByID(ctx, nil, matches[0].ID)
	require.NoError(t, err)
	stale, err := repo.GetByID(ctx, nil, matches[0].ID)
	require.NoError(t, err)

	first.Status = models.MatchInProgress
	require.NoError(t, repo.UpdateState(ctx, nil, first))
	assert.Equal(t, 2, first.Version)

	stale.Status = models.MatchDisputed
	assert.ErrorIs(t, repo.UpdateState(ctx, nil, stale), ErrMatchVersionConflict)

	stored, err := repo.GetByID(ctx, nil, matches[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.MatchInProgress, stored.Status)
}

func TestMatchUpsertResultReplaces(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()
	repo := NewPostgresMatchRepository(db)
	tournament := createTournament(t, db)
	matches := twoMatchBracket(tournament.ID)
	require.NoError(t, repo.CreateBatch(ctx, nil, matches))

	player, _ := matches[0].Player1.UserID()
	require.NoError(t, repo.UpsertResult(ctx, nil, matches[0].ID, models.MatchResult{PlayerID: player, Score: 10, SubmittedAt: time.Now().UTC()}))
	require.NoError(t, repo.UpsertResult(ctx, nil, matches[0].ID, models.MatchResult{PlayerID: player, Score: 15, SubmittedAt: time.Now().UTC()}))

	count, err := repo.CountSubmitters(ctx, nil, matches[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	stored, err := repo.GetByID(ctx, nil, matches[0].ID)
	require.NoError(t, err)
	require.Len(t, stored.Results, 1)
	assert.Equal(t, 15, stored.Results[player].Score)
}

func TestMatchUpsertDispute(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()
	repo := NewPostgresMatchRepository(db)
	tournament := createTournament(t, db)
	matches := twoMatchBracket(tournament.ID)
	require.NoError(t, repo.CreateBatch(ctx, nil, matches))

	reporter, _ := matches[0].Player1.UserID()
	dispute := &models.Dispute{
		ReportedBy: reporter,
		Reason:     "opponent left early",
		Evidence:   []string{"https://cdn.example.com/a.png"},
		Status:     models.DisputeOpen,
	}
	require.NoError(t, repo.UpsertDispute(ctx, nil, matches[0].ID, dispute))

	resolution := "replay ordered"
	resolvedAt := time.Now().UTC()
	admin := uuid.New()
	dispute.Status = models.DisputeResolved
	dispute.Resolution = &resolution
	dispute.ResolvedBy = &admin
	dispute.ResolvedAt = &resolvedAt
	require.NoError(t, repo.UpsertDispute(ctx, nil, matches[0].ID, dispute))

	stored, err := repo.GetByID(ctx, nil, matches[0].ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Dispute)
	assert.Equal(t, models.DisputeResolved, stored.Dispute.Status)
	assert.Equal(t, []string{"https://cdn.example.com/a.png"}, stored.Dispute.Evidence)
	require.NotNil(t, stored.Dispute.ResolvedBy)
	assert.Equal(t, admin, *stored.Dispute.ResolvedBy)
	require.NotNil(t, stored.Dispute.Resolution)
	assert.Equal(t, resolution, *stored.Dispute.Resolution)
}
