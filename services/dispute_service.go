package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Dosada05/bracket-engine/metrics"
	"github.com/Dosada05/bracket-engine/models"
	"github.com/Dosada05/bracket-engine/notifications"
	"github.com/Dosada05/bracket-engine/repositories"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const maxEvidenceItems = 20

type ReportDisputeInput struct {
	Reason   string   `json:"reason"`
	Evidence []string `json:"evidence,omitempty"`
}

func (in ReportDisputeInput) validate() error {
	if strings.TrimSpace(in.Reason) == "" {
		return fmt.Errorf("%w: reason is required", ErrValidationFailed)
	}
	if len(in.Evidence) > maxEvidenceItems {
		return fmt.Errorf("%w: at most %d evidence items", ErrValidationFailed, maxEvidenceItems)
	}
	for _, item := range in.Evidence {
		if strings.TrimSpace(item) == "" {
			return fmt.Errorf("%w: evidence items must not be empty", ErrValidationFailed)
		}
	}
	return nil
}

type ResolveDisputeInput struct {
	Resolution string `json:"resolution"`
	// WinnerID completes the match; nil voids it.
	WinnerID *uuid.UUID `json:"winner_id,omitempty"`
}

type DisputeService interface {
	ReportDispute(ctx context.Context, auth models.AuthContext, matchID uuid.UUID, input ReportDisputeInput) (*models.Match, error)
	ResolveDispute(ctx context.Context, auth models.AuthContext, matchID uuid.UUID, input ResolveDisputeInput) (*models.Match, error)
}

type disputeService struct {
	db          *sqlx.DB
	matchRepo   repositories.MatchRepository
	progression progression
	notifier    notifier
	logger      *slog.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

func NewDisputeService(
	db *sqlx.DB,
	matchRepo repositories.MatchRepository,
	tournamentRepo repositories.TournamentRepository,
	gateway notifications.Gateway,
	logger *slog.Logger,
	m *metrics.Metrics,
) DisputeService {
	return &disputeService{
		db:          db,
		matchRepo:   matchRepo,
		progression: progression{matchRepo: matchRepo, tournamentRepo: tournamentRepo},
		notifier:    notifier{gateway: gateway, logger: logger, metrics: m},
		logger:      logger,
		metrics:     m,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func canReport(status models.MatchStatus) bool {
	switch status {
	case models.MatchScheduled, models.MatchInProgress, models.MatchPendingVerification, models.MatchDisputed:
		return true
	}
	return false
}

// ReportDispute opens a dispute, or refreshes the open one when the match is already disputed.
func (s *disputeService) ReportDispute(ctx context.Context, auth models.AuthContext, matchID uuid.UUID, input ReportDisputeInput) (*models.Match, error) {
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
			if !canReport(match.Status) {
				return fmt.Errorf("%w: cannot dispute a %s match", ErrInvalidTransition, match.Status)
			}

			dispute := match.Dispute
			if match.Status == models.MatchDisputed && dispute != nil && dispute.Status == models.DisputeOpen {
				dispute.Reason = input.Reason
				dispute.Evidence = append(dispute.Evidence, input.Evidence...)
			} else {
				dispute = &models.Dispute{
					ReportedBy: auth.UserID,
					Reason:     input.Reason,
					Evidence:   append([]string{}, input.Evidence...),
					Status:     models.DisputeOpen,
					CreatedAt:  s.now(),
				}
			}
			if err := s.matchRepo.UpsertDispute(ctx, tx, match.ID, dispute); err != nil {
				return mapMatchRepoError(err)
			}

			before = match.Status
			if err := transition(match, models.MatchDisputed); err != nil {
				return err
			}
			if err := s.matchRepo.UpdateState(ctx, tx, match); err != nil {
				return mapMatchRepoError(err)
			}
			match.Dispute = dispute

			recipients := []uuid.UUID{}
			if opponent, ok := match.Opponent(auth.UserID); ok {
				recipients = append(recipients, opponent)
			}
			events = append(events, notifications.NewEvent(notifications.EventDisputeReported, match.TournamentID, recipients...).
				ForMatch(match.ID).
				With("reason", input.Reason).
				With("reported_by", auth.UserID.String()))
			updated = match
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.MatchTransition(string(before), string(models.MatchDisputed))
	s.logger.InfoContext(ctx, "match dispute reported",
		slog.String("match_id", matchID.String()),
		slog.String("reported_by", auth.UserID.String()),
		slog.String("previous_status", string(before)),
	)
	s.notifier.publish(ctx, events)
	return updated, nil
}

func (s *disputeService) ResolveDispute(ctx context.Context, auth models.AuthContext, matchID uuid.UUID, input ResolveDisputeInput) (*models.Match, error) {
	if err := requireManager(auth); err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.Resolution) == "" {
		return nil, fmt.Errorf("%w: resolution is required", ErrValidationFailed)
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
			if match.Status != models.MatchDisputed || match.Dispute == nil {
				return fmt.Errorf("%w (status %s)", ErrNotDisputed, match.Status)
			}
			if input.WinnerID != nil && !match.HasPlayer(*input.WinnerID) {
				return ErrWinnerNotInMatch
			}

			now := s.now()
			resolution := input.Resolution
			resolvedBy := auth.UserID
			dispute := match.Dispute
			dispute.Status = models.DisputeResolved
			dispute.Resolution = &resolution
			dispute.ResolvedBy = &resolvedBy
			dispute.ResolvedAt = &now
			if err := s.matchRepo.UpsertDispute(ctx, tx, match.ID, dispute); err != nil {
				return mapMatchRepoError(err)
			}

			before := match.Status
			next := models.MatchCancelled
			if input.WinnerID != nil {
				next = models.MatchCompleted
			}
			if err := transition(match, next); err != nil {
				return err
			}
			match.WinnerID = input.WinnerID
			if err := s.matchRepo.UpdateState(ctx, tx, match); err != nil {
				return mapMatchRepoError(err)
			}

			events = append(events, notifications.NewEvent(notifications.EventDisputeResolved, match.TournamentID, match.Players()...).
				ForMatch(match.ID).
				With("resolution", resolution).
				With("status", string(match.Status)))
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

	s.metrics.MatchTransition(string(models.MatchDisputed), string(updated.Status))
	s.logger.InfoContext(ctx, "match dispute resolved",
		slog.String("match_id", matchID.String()),
		slog.String("resolved_by", auth.UserID.String()),
		slog.String("status", string(updated.Status)),
	)
	s.notifier.publish(ctx, events)
	return updated, nil
}
