package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Dosada05/bracket-engine/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var (
	ErrParticipantNotFound          = errors.New("participant not found")
	ErrParticipantConflict          = errors.New("participant conflict: user already registered for this tournament")
	ErrParticipantTournamentInvalid = errors.New("participant tournament conflict or invalid")
)

type ParticipantRepository interface {
	Create(ctx context.Context, exec SQLExecutor, p *models.Participant) error
	ListPaidByTournament(ctx context.Context, exec SQLExecutor, tournamentID uuid.UUID) ([]*models.Participant, error)
	FindByUserAndTournament(ctx context.Context, exec SQLExecutor, userID, tournamentID uuid.UUID) (*models.Participant, error)
}

type postgresParticipantRepository struct {
	db *sqlx.DB
}

func NewPostgresParticipantRepository(db *sqlx.DB) ParticipantRepository {
	return &postgresParticipantRepository{db: db}
}

func (r *postgresParticipantRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresParticipantRepository) Create(ctx context.Context, exec SQLExecutor, p *models.Participant) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.PaymentStatus == "" {
		p.PaymentStatus = models.PaymentPending
	}
	p.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO participants (id, tournament_id, user_id, email, payment_status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.getExecutor(exec).ExecContext(ctx, query, p.ID, p.TournamentID, p.UserID, p.Email, p.PaymentStatus, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create participant: %w", mapConstraintError(err, ErrParticipantConflict, ErrParticipantTournamentInvalid))
	}
	return nil
}

// ListPaidByTournament returns only entrants whose payment is confirmed, in registration order.
func (r *postgresParticipantRepository) ListPaidByTournament(ctx context.Context, exec SQLExecutor, tournamentID uuid.UUID) ([]*models.Participant, error) {
	query := `
		SELECT id, tournament_id, user_id, email, payment_status, created_at
		FROM participants
		WHERE tournament_id = $1 AND payment_status = $2
		ORDER BY created_at, id`

	participants := make([]*models.Participant, 0)
	if err := sqlx.SelectContext(ctx, r.getExecutor(exec), &participants, query, tournamentID, models.PaymentPaid); err != nil {
		return nil, fmt.Errorf("failed to list paid participants: %w", err)
	}
	return participants, nil
}

func (r *postgresParticipantRepository) FindByUserAndTournament(ctx context.Context, exec SQLExecutor, userID, tournamentID uuid.UUID) (*models.Participant, error) {
	query := `
		SELECT id, tournament_id, user_id, email, payment_status, created_at
		FROM participants
		WHERE user_id = $1 AND tournament_id = $2`

	p := &models.Participant{}
	if err := sqlx.GetContext(ctx, r.getExecutor(exec), p, query, userID, tournamentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrParticipantNotFound
		}
		return nil, fmt.Errorf("failed to find participant: %w", err)
	}
	return p, nil
}
