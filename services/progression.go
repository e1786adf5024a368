package services

import (
	"context"
	"errors"

	"github.com/Dosada05/bracket-engine/brackets"
	"github.com/Dosada05/bracket-engine/models"
	"github.com/Dosada05/bracket-engine/notifications"
	"github.com/Dosada05/bracket-engine/repositories"
)

type progression struct {
	matchRepo      repositories.MatchRepository
	tournamentRepo repositories.TournamentRepository
}

// advance pushes a finished match's outcome into its parent and keeps climbing while parents
// settle as walkovers or cancellations. Finishing the final completes the tournament.
func (p progression) advance(ctx context.Context, exec repositories.SQLExecutor, finished *models.Match, events *[]notifications.Event) error {
	current := finished
	for current.Status.IsTerminal() {
		round, index, _ := current.ParentPosition()
		parent, err := p.matchRepo.GetByPosition(ctx, exec, current.TournamentID, round, index)
		if errors.Is(err, repositories.ErrMatchNotFound) {
			return p.completeTournament(ctx, exec, current, events)
		}
		if err != nil {
			return err
		}

		sibling, err := p.matchRepo.GetByPosition(ctx, exec, current.TournamentID, current.Round, current.Index^1)
		if err != nil && !errors.Is(err, repositories.ErrMatchNotFound) {
			return err
		}

		before := parent.Status
		if !brackets.Advance(parent, current, sibling) {
			return nil
		}
		if err := p.matchRepo.UpdateState(ctx, exec, parent); err != nil {
			return err
		}
		if event, ok := statusEvent(parent, before); ok {
			*events = append(*events, event)
		}
		current = parent
	}
	return nil
}

func (p progression) completeTournament(ctx context.Context, exec repositories.SQLExecutor, final *models.Match, events *[]notifications.Event) error {
	if err := p.tournamentRepo.Complete(ctx, exec, final.TournamentID, final.WinnerID); err != nil {
		return mapMatchRepoError(err)
	}
	event := notifications.NewEvent(notifications.EventTournamentCompleted, final.TournamentID, final.Players()...).ForMatch(final.ID)
	if final.WinnerID != nil {
		event = event.With("winner_id", final.WinnerID.String())
	}
	*events = append(*events, event)
	return nil
}

// statusEvent describes a status change of m for its players, if the change is worth telling.
func statusEvent(m *models.Match, before models.MatchStatus) (notifications.Event, bool) {
	if m.Status == before {
		return notifications.Event{}, false
	}
	var eventType notifications.EventType
	switch m.Status {
	case models.MatchScheduled:
		eventType = notifications.EventMatchReady
	case models.MatchPendingVerification:
		eventType = notifications.EventVerificationRequired
	case models.MatchCompleted:
		eventType = notifications.EventMatchCompleted
	case models.MatchCancelled:
		eventType = notifications.EventMatchCancelled
	default:
		return notifications.Event{}, false
	}
	event := notifications.NewEvent(eventType, m.TournamentID, m.Players()...).
		ForMatch(m.ID).
		With("round_name", m.RoundName).
		With("status", string(m.Status))
	if m.WinnerID != nil {
		event = event.With("winner_id", m.WinnerID.String())
	}
	return event, true
}
