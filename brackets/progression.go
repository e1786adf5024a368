package brackets

import "github.com/Dosada05/bracket-engine/models"

// Advance seats the winners of finished feeders into their parent slots. Once both feeders are
// finished a pending parent is settled: two players schedule it, a single player wins it as a
// walkover, no players cancel it. It reports whether the parent changed.
func Advance(parent, feeder, sibling *models.Match) bool {
	changed := seatWinner(parent, feeder)
	if sibling != nil {
		changed = seatWinner(parent, sibling) || changed
	}

	if parent.Status != models.MatchPending {
		return changed
	}
	if !feeder.Status.IsTerminal() || sibling == nil || !sibling.Status.IsTerminal() {
		return changed
	}

	switch players := parent.Players(); len(players) {
	case 2:
		parent.Status = models.MatchScheduled
	case 1:
		winner := players[0]
		parent.WinnerID = &winner
		parent.Status = models.MatchCompleted
		parent.IsBye = true
	default:
		parent.Status = models.MatchCancelled
	}
	return true
}

func seatWinner(parent, feeder *models.Match) bool {
	if feeder.Status != models.MatchCompleted || feeder.WinnerID == nil {
		return false
	}
	_, _, slot := feeder.ParentPosition()
	current := parent.Player1
	if slot == 1 {
		current = parent.Player2
	}
	if current.Holds(*feeder.WinnerID) {
		return false
	}
	parent.SetSlot(slot, *feeder.WinnerID)
	return true
}
