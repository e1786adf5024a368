package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Dosada05/bracket-engine/metrics"
	"github.com/Dosada05/bracket-engine/models"
	"github.com/Dosada05/bracket-engine/notifications"
	"github.com/Dosada05/bracket-engine/repositories"
	"github.com/jmoiron/sqlx"
)

// maxConflictRetries bounds how often a state change is replayed after losing a version check.
const maxConflictRetries = 3

func isValidMatchTransition(current, next models.MatchStatus) bool {
	allowedTransitions := map[models.MatchStatus][]models.MatchStatus{
		models.MatchPending:             {models.MatchScheduled, models.MatchCompleted, models.MatchCancelled},
		models.MatchScheduled:           {models.MatchInProgress, models.MatchDisputed},
		models.MatchInProgress:          {models.MatchInProgress, models.MatchPendingVerification, models.MatchDisputed},
		models.MatchPendingVerification: {models.MatchCompleted, models.MatchDisputed},
		models.MatchDisputed:            {models.MatchDisputed, models.MatchCompleted, models.MatchCancelled},
		models.MatchCompleted:           {},
		models.MatchCancelled:           {},
	}
	for _, allowedNext := range allowedTransitions[current] {
		if next == allowedNext {
			return true
		}
	}
	return false
}

// transition moves m to next if the match state machine allows it.
func transition(m *models.Match, next models.MatchStatus) error {
	if !isValidMatchTransition(m.Status, next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.Status, next)
	}
	m.Status = next
	return nil
}

// runInTx executes fn in a transaction, committing on success and rolling back on error or panic.
func runInTx(ctx context.Context, db *sqlx.DB, logger *slog.Logger, fn func(tx *sqlx.Tx) error) (txErr error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		} else if txErr != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				logger.ErrorContext(ctx, "rollback failed", slog.Any("error", rbErr), slog.Any("cause", txErr))
				txErr = fmt.Errorf("transaction processing error: %w (rollback also failed: %v)", txErr, rbErr)
			}
		} else if cErr := tx.Commit(); cErr != nil {
			txErr = fmt.Errorf("failed to commit transaction: %w", cErr)
		}
	}()
	return fn(tx)
}

// retryOnConflict replays attempt while it keeps losing the match version check. Every attempt
// must re-read the state it modifies.
func retryOnConflict(ctx context.Context, m *metrics.Metrics, attempt func() error) error {
	var err error
	for i := 0; i < maxConflictRetries; i++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = attempt()
		if !errors.Is(err, repositories.ErrMatchVersionConflict) {
			return err
		}
		m.ConflictRetried()
	}
	return fmt.Errorf("%w: %v", ErrConflict, err)
}

func mapMatchRepoError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repositories.ErrMatchNotFound):
		return ErrMatchNotFound
	case errors.Is(err, repositories.ErrTournamentNotFound):
		return ErrTournamentNotFound
	}
	return err
}

// notifier enqueues events after the state change they describe has been committed. Gateway
// failures never reach the caller.
type notifier struct {
	gateway notifications.Gateway
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func (n notifier) publish(ctx context.Context, events []notifications.Event) {
	if n.gateway == nil {
		return
	}
	// the request may already be finishing; delivery must not depend on it
	ctx = context.WithoutCancel(ctx)
	for _, event := range events {
		if err := n.gateway.Enqueue(ctx, event); err != nil {
			err = fmt.Errorf("%w: %w", ErrExternalService, err)
			n.logger.WarnContext(ctx, "failed to enqueue notification",
				slog.String("event_type", string(event.Type)),
				slog.String("tournament_id", event.TournamentID.String()),
				slog.Any("error", err),
			)
			n.metrics.NotificationFailed("enqueue", string(event.Type))
		}
	}
}

func requireManager(auth models.AuthContext) error {
	if auth.IsAnonymous() || !auth.CanManage() {
		return ErrForbiddenOperation
	}
	return nil
}
