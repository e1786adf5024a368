package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Dosada05/bracket-engine/brackets"
	"github.com/Dosada05/bracket-engine/metrics"
	"github.com/Dosada05/bracket-engine/models"
	"github.com/Dosada05/bracket-engine/notifications"
	"github.com/Dosada05/bracket-engine/repositories"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"
)

// BracketView is the public bracket of a tournament: the display tree plus the flat matches it
// points at.
type BracketView struct {
	TournamentID uuid.UUID               `json:"tournament_id"`
	Status       models.TournamentStatus `json:"status"`
	WinnerID     *uuid.UUID              `json:"winner_id,omitempty"`
	TotalRounds  int                     `json:"total_rounds"`
	Root         *models.BracketNode     `json:"root"`
	Matches      []*models.Match         `json:"matches"`
}

type BracketService interface {
	GenerateBracket(ctx context.Context, auth models.AuthContext, tournamentID uuid.UUID) (*BracketView, error)
	GetBracket(ctx context.Context, tournamentID uuid.UUID) (*BracketView, error)
}

type bracketService struct {
	db              *sqlx.DB
	tournamentRepo  repositories.TournamentRepository
	participantRepo repositories.ParticipantRepository
	matchRepo       repositories.MatchRepository
	generator       brackets.BracketGenerator
	notifier        notifier
	logger          *slog.Logger
	metrics         *metrics.Metrics
}

func NewBracketService(
	db *sqlx.DB,
	tournamentRepo repositories.TournamentRepository,
	participantRepo repositories.ParticipantRepository,
	matchRepo repositories.MatchRepository,
	generator brackets.BracketGenerator,
	gateway notifications.Gateway,
	logger *slog.Logger,
	m *metrics.Metrics,
) BracketService {
	return &bracketService{
		db:              db,
		tournamentRepo:  tournamentRepo,
		participantRepo: participantRepo,
		matchRepo:       matchRepo,
		generator:       generator,
		notifier:        notifier{gateway: gateway, logger: logger, metrics: m},
		logger:          logger,
		metrics:         m,
	}
}

func (s *bracketService) GenerateBracket(ctx context.Context, auth models.AuthContext, tournamentID uuid.UUID) (*BracketView, error) {
	if err := requireManager(auth); err != nil {
		return nil, err
	}

	view, participants, err := s.generate(ctx, tournamentID)
	if err != nil {
		s.metrics.BracketGenerated(generationOutcome(err))
		return nil, err
	}
	s.metrics.BracketGenerated("ok")

	s.logger.InfoContext(ctx, "bracket generated",
		slog.String("tournament_id", tournamentID.String()),
		slog.String("generator", s.generator.GetName()),
		slog.Int("participants", len(participants)),
		slog.Int("matches", len(view.Matches)),
		slog.Int("rounds", view.TotalRounds),
	)

	recipients := make([]uuid.UUID, 0, len(participants))
	for _, p := range participants {
		recipients = append(recipients, p.UserID)
	}
	event := notifications.NewEvent(notifications.EventBracketGenerated, tournamentID, recipients...).
		With("rounds", fmt.Sprint(view.TotalRounds))
	s.notifier.publish(ctx, []notifications.Event{event})

	return view, nil
}

func (s *bracketService) generate(ctx context.Context, tournamentID uuid.UUID) (*BracketView, []*models.Participant, error) {
	tournament, err := s.tournamentRepo.GetByID(ctx, nil, tournamentID)
	if err != nil {
		return nil, nil, mapMatchRepoError(err)
	}
	if tournament.HasBracket() {
		return nil, nil, ErrAlreadyGenerated
	}
	if tournament.Status == models.StatusCancelled || tournament.Status == models.StatusCompleted {
		return nil, nil, fmt.Errorf("%w: tournament is %s", ErrValidationFailed, tournament.Status)
	}

	participants, err := s.participantRepo.ListPaidByTournament(ctx, nil, tournamentID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list paid participants for tournament %s: %w", tournamentID, err)
	}
	if len(participants) < 2 {
		return nil, nil, fmt.Errorf("%w: found %d", ErrInsufficientParticipants, len(participants))
	}

	bracket, err := s.generator.GenerateBracket(ctx, brackets.GenerateBracketParams{
		Tournament:   tournament,
		Participants: participants,
	})
	if err != nil {
		switch {
		case errors.Is(err, brackets.ErrNotEnoughParticipants):
			return nil, nil, fmt.Errorf("%w: %v", ErrInsufficientParticipants, err)
		case errors.Is(err, brackets.ErrDuplicateParticipant):
			return nil, nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
		}
		return nil, nil, fmt.Errorf("failed to generate bracket for tournament %s: %w", tournamentID, err)
	}

	err = runInTx(ctx, s.db, s.logger, func(tx *sqlx.Tx) error {
		// the conditional attach serializes concurrent generations before any match is written
		if err := s.tournamentRepo.AttachBracket(ctx, tx, tournamentID, bracket.Root, models.StatusInProgress); err != nil {
			if errors.Is(err, repositories.ErrBracketAlreadyAttached) {
				return ErrAlreadyGenerated
			}
			return mapMatchRepoError(err)
		}
		return s.matchRepo.CreateBatch(ctx, tx, bracket.Matches)
	})
	if err != nil {
		return nil, nil, err
	}

	return &BracketView{
		TournamentID: tournamentID,
		Status:       models.StatusInProgress,
		TotalRounds:  bracket.TotalRounds,
		Root:         bracket.Root,
		Matches:      bracket.Matches,
	}, participants, nil
}

func generationOutcome(err error) string {
	switch {
	case errors.Is(err, ErrAlreadyGenerated):
		return "already_generated"
	case errors.Is(err, ErrInsufficientParticipants):
		return "insufficient_participants"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	}
	return "error"
}

func (s *bracketService) GetBracket(ctx context.Context, tournamentID uuid.UUID) (*BracketView, error) {
	var (
		tournament *models.Tournament
		matches    []*models.Match
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t, err := s.tournamentRepo.GetByID(gCtx, nil, tournamentID)
		if err != nil {
			return mapMatchRepoError(err)
		}
		tournament = t
		return nil
	})
	g.Go(func() error {
		list, err := s.matchRepo.ListByTournament(gCtx, nil, tournamentID)
		if err != nil {
			return fmt.Errorf("failed to list matches for tournament %s: %w", tournamentID, err)
		}
		matches = list
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(matches) == 0 {
		return nil, ErrBracketNotGenerated
	}

	root := tournament.Bracket
	if root == nil {
		projected, err := brackets.ProjectTree(matches)
		if err != nil {
			return nil, fmt.Errorf("failed to rebuild bracket of tournament %s: %w", tournamentID, err)
		}
		root = projected
	}

	totalRounds := 0
	for _, m := range matches {
		totalRounds = max(totalRounds, m.Round)
	}

	return &BracketView{
		TournamentID: tournamentID,
		Status:       tournament.Status,
		WinnerID:     tournament.WinnerID,
		TotalRounds:  totalRounds,
		Root:         root,
		Matches:      matches,
	}, nil
}
