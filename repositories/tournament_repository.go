package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Dosada05/bracket-engine/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var (
	ErrTournamentNotFound     = errors.New("tournament not found")
	ErrTournamentConflict     = errors.New("tournament already exists")
	ErrBracketAlreadyAttached = errors.New("tournament already has a bracket")
)

type TournamentRepository interface {
	Create(ctx context.Context, exec SQLExecutor, tournament *models.Tournament) error
	GetByID(ctx context.Context, exec SQLExecutor, id uuid.UUID) (*models.Tournament, error)
	AttachBracket(ctx context.Context, exec SQLExecutor, id uuid.UUID, root *models.BracketNode, status models.TournamentStatus) error
	Complete(ctx context.Context, exec SQLExecutor, id uuid.UUID, winnerID *uuid.UUID) error
}

type tournamentRow struct {
	ID        uuid.UUID      `db:"id"`
	Name      string         `db:"name"`
	Status    string         `db:"status"`
	StartDate time.Time      `db:"start_date"`
	Bracket   sql.NullString `db:"bracket"`
	WinnerID  uuid.NullUUID  `db:"winner_id"`
	CreatedAt time.Time      `db:"created_at"`
	UpdatedAt time.Time      `db:"updated_at"`
}

func (row tournamentRow) toModel() (*models.Tournament, error) {
	t := &models.Tournament{
		ID:        row.ID,
		Name:      row.Name,
		Status:    models.TournamentStatus(row.Status),
		StartDate: row.StartDate,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
	if row.WinnerID.Valid {
		winner := row.WinnerID.UUID
		t.WinnerID = &winner
	}
	if row.Bracket.Valid && row.Bracket.String != "" {
		var root models.BracketNode
		if err := json.Unmarshal([]byte(row.Bracket.String), &root); err != nil {
			return nil, fmt.Errorf("failed to decode bracket of tournament %s: %w", row.ID, err)
		}
		t.Bracket = &root
	}
	return t, nil
}

type postgresTournamentRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewPostgresTournamentRepository(db *sqlx.DB) TournamentRepository {
	return &postgresTournamentRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (r *postgresTournamentRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresTournamentRepository) Create(ctx context.Context, exec SQLExecutor, t *models.Tournament) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	now := r.now()
	t.CreatedAt, t.UpdatedAt = now, now

	query := `
		INSERT INTO tournaments (id, name, status, start_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.getExecutor(exec).ExecContext(ctx, query, t.ID, t.Name, t.Status, t.StartDate.UTC(), t.CreatedAt, t.UpdatedAt)
	return mapConstraintError(err, ErrTournamentConflict, nil)
}

func (r *postgresTournamentRepository) GetByID(ctx context.Context, exec SQLExecutor, id uuid.UUID) (*models.Tournament, error) {
	query := `
		SELECT id, name, status, start_date, bracket, winner_id, created_at, updated_at
		FROM tournaments
		WHERE id = $1`

	var row tournamentRow
	if err := sqlx.GetContext(ctx, r.getExecutor(exec), &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTournamentNotFound
		}
		return nil, err
	}
	return row.toModel()
}

// AttachBracket stores the bracket tree only if the tournament has none yet. The check and the
// write are a single statement, so of two concurrent callers exactly one succeeds.
func (r *postgresTournamentRepository) AttachBracket(ctx context.Context, exec SQLExecutor, id uuid.UUID, root *models.BracketNode, status models.TournamentStatus) error {
	encoded, err := json.Marshal(root)
	if err != nil {
		return fmt.Errorf("failed to encode bracket: %w", err)
	}

	executor := r.getExecutor(exec)
	query := `
		UPDATE tournaments
		SET bracket = $1, status = $2, updated_at = $3
		WHERE id = $4 AND bracket IS NULL`

	result, err := executor.ExecContext(ctx, query, string(encoded), status, r.now(), id)
	if err != nil {
		return err
	}
	if err := checkAffectedRows(result, ErrBracketAlreadyAttached); err != nil {
		if errors.Is(err, ErrBracketAlreadyAttached) {
			if _, getErr := r.GetByID(ctx, executor, id); getErr != nil {
				return getErr
			}
		}
		return err
	}
	return nil
}

func (r *postgresTournamentRepository) Complete(ctx context.Context, exec SQLExecutor, id uuid.UUID, winnerID *uuid.UUID) error {
	winner := uuid.NullUUID{}
	if winnerID != nil {
		winner = uuid.NullUUID{UUID: *winnerID, Valid: true}
	}
	query := `UPDATE tournaments SET status = $1, winner_id = $2, updated_at = $3 WHERE id = $4`
	result, err := r.getExecutor(exec).ExecContext(ctx, query, models.StatusCompleted, winner, r.now(), id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}
