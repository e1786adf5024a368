package services

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/Dosada05/bracket-engine/metrics"
	"github.com/Dosada05/bracket-engine/models"
	"github.com/Dosada05/bracket-engine/notifications"
	"github.com/Dosada05/bracket-engine/repositories"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type SubmitResultInput struct {
	Score         int     `json:"score"`
	ScreenshotURL *string `json:"screenshot_url,omitempty"`
}

func (in SubmitResultInput) validate() error {
	if in.Score < 0 {
		return fmt.Errorf("%w: score must not be negative", ErrValidationFailed)
	}
	if in.ScreenshotURL != nil && strings.TrimSpace(*in.ScreenshotURL) == "" {
		return fmt.Errorf("%w: screenshot_url must not be empty when provided", ErrValidationFailed)
	}
	return nil
}

type MatchService interface {
	GetMatch(ctx context.Context, matchID uuid.UUID) (*models.Match, error)
	ListMatches(ctx context.Context, tournamentID uuid.UUID) ([]*models.Match, error)
	SubmitResult(ctx context.Context, auth models.AuthContext, matchID uuid.UUID, input SubmitResultInput) (*models.Match, error)
	// VerifyResult confirms the winner of a match awaiting verification. Without an explicit
	// winner the higher reported score wins.
	VerifyResult(ctx context.Context, auth models.AuthContext, matchID uuid.UUID, winnerID *uuid.UUID) (*models.Match, error)
}

type matchService struct {
	db          *sqlx.DB
	matchRepo   repositories.MatchRepository
	progression progression
	notifier    notifier
	logger      *slog.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

func NewMatchService(
	db *sqlx.DB,
	matchRepo repositories.MatchRepository,
	tournamentRepo repositories.TournamentRepository,
	gateway notifications.Gateway,
	logger *slog.Logger,
	m *metrics.Metrics,
) MatchService {
	return &matchService{
		db:          db,
		matchRepo:   matchRepo,
		progression: progression{matchRepo: matchRepo, tournamentRepo: tournamentRepo},
		notifier:    notifier{gateway: gateway, logger: logger, metrics: m},
		logger:      logger,
		metrics:     m,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *matchService) GetMatch(ctx context.Context, matchID uuid.UUID) (*models.Match, error) {
	match, err := s.matchRepo.GetByID(ctx, nil, matchID)
	if err != nil {
		return nil, mapMatchRepoError(err)
	}
	return match, nil
}

func (s *matchService) ListMatches(ctx context.Context, tournamentID uuid.UUID) ([]*models.Match, error) {
	matches, err := s.matchRepo.ListByTournament(ctx, nil, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches for tournament %s: %w", tournamentID, err)
	}
	return matches, nil
}

func (s *matchService) SubmitResult(ctx context.Context, auth models.AuthContext, matchID uuid.UUID, input SubmitResultInput) (*models.Match, error) {
	if auth.IsAnonymous() {
		return nil, ErrNotAParticipant
	}
	if err := input.validate(); err != nil {
		return nil, err
	}

	var (
		updated *models.Match
		before  models.MatchStatus
		events  []notifications.Event
	)
	err := retryOnConflict(ctx, s.metrics, func() error {
		events = events[:0]
		return runInTx(ctx, s.db, s.logger, func(tx *sqlx.Tx) error {
			match, err := s.matchRepo.GetByID(ctx, tx, matchID)
			if err != nil {
				return mapMatchRepoError(err)
			}
			if !match.HasPlayer(auth.UserID) {
				return ErrNotAParticipant
			}
			if match.Status != models.MatchScheduled && match.Status != models.MatchInProgress {
				return fmt.Errorf("%w: cannot submit a result to a %s match", ErrInvalidTransition, match.Status)
			}

			result := models.MatchResult{
				PlayerID:      auth.UserID,
				Score:         input.Score,
				ScreenshotURL: input.ScreenshotURL,
				SubmittedAt:   s.now(),
			}
			if err := s.matchRepo.UpsertResult(ctx, tx, match.ID, result); err != nil {
				return mapMatchRepoError(err)
			}
			submitters, err := s.matchRepo.CountSubmitters(ctx, tx, match.ID)
			if err != nil {
				return err
			}

			before = match.Status
			next := models.MatchInProgress
			if match.BothAssigned() && submitters >= 2 {
				next = models.MatchPendingVerification
			}
			if err := transition(match, next); err != nil {
				return err
			}
			// the version check fails if another submission committed since the read above
			if err := s.matchRepo.UpdateState(ctx, tx, match); err != nil {
				return mapMatchRepoError(err)
			}
			match.Results[auth.UserID] = result

			if opponent, ok := match.Opponent(auth.UserID); ok {
				events = append(events, notifications.NewEvent(notifications.EventResultSubmitted, match.TournamentID, opponent).
					ForMatch(match.ID).
					With("score", strconv.Itoa(input.Score)))
			}
			if event, ok := statusEvent(match, before); ok {
				events = append(events, event)
			}
			updated = match
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.MatchTransition(string(before), string(updated.Status))
	s.logger.InfoContext(ctx, "match result submitted",
		slog.String("match_id", matchID.String()),
		slog.String("player_id", auth.UserID.String()),
		slog.String("status", string(updated.Status)),
	)
	s.notifier.publish(ctx, events)
	return updated, nil
}

func (s *matchService) VerifyResult(ctx context.Context, auth models.AuthContext, matchID uuid.UUID, winnerID *uuid.UUID) (*models.Match, error) {
	if err := requireManager(auth); err != nil {
		return nil, err
	}

	var (
		updated *models.Match
		events  []notifications.Event
	)
	err := retryOnConflict(ctx, s.metrics, func() error {
		events = events[:0]
		return runInTx(ctx, s.db, s.logger, func(tx *sqlx.Tx) error {
			match, err := s.matchRepo.GetByID(ctx, tx, matchID)
			if err != nil {
				return mapMatchRepoError(err)
			}
			if match.Status != models.MatchPendingVerification {
				return fmt.Errorf("%w: cannot verify a %s match", ErrInvalidTransition, match.Status)
			}

			winner, err := pickWinner(match, winnerID)
			if err != nil {
				return err
			}

			before := match.Status
			if err := transition(match, models.MatchCompleted); err != nil {
				return err
			}
			match.WinnerID = &winner
			if err := s.matchRepo.UpdateState(ctx, tx, match); err != nil {
				return mapMatchRepoError(err)
			}
			if event, ok := statusEvent(match, before); ok {
				events = append(events, event)
			}
			if err := s.progression.advance(ctx, tx, match, &events); err != nil {
				return err
			}
			updated = match
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.MatchTransition(string(models.MatchPendingVerification), string(models.MatchCompleted))
	s.logger.InfoContext(ctx, "match result verified",
		slog.String("match_id", matchID.String()),
		slog.String("winner_id", updated.WinnerID.String()),
		slog.String("verified_by", auth.UserID.String()),
	)
	s.notifier.publish(ctx, events)
	return updated, nil
}

// pickWinner returns the explicit winner if it plays in the match, else the player with the
// strictly higher reported score.
func pickWinner(match *models.Match, explicit *uuid.UUID) (uuid.UUID, error) {
	if explicit != nil {
		if !match.HasPlayer(*explicit) {
			return uuid.Nil, ErrWinnerNotInMatch
		}
		return *explicit, nil
	}

	players := match.Players()
	if len(players) != 2 {
		return uuid.Nil, fmt.Errorf("%w: match has %d players", ErrInvalidTransition, len(players))
	}
	first, okFirst := match.Results[players[0]]
	second, okSecond := match.Results[players[1]]
	if !okFirst || !okSecond {
		return uuid.Nil, fmt.Errorf("%w: both players must submit a result", ErrInvalidTransition)
	}
	switch {
	case first.Score > second.Score:
		return players[0], nil
	case second.Score > first.Score:
		return players[1], nil
	}
	return uuid.Nil, ErrResultTie
}
