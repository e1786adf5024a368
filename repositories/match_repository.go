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
	ErrMatchNotFound          = errors.New("match not found")
	ErrMatchVersionConflict   = errors.New("match was modified by another request")
	ErrMatchPositionConflict  = errors.New("a match already occupies this bracket position")
	ErrMatchTournamentInvalid = errors.New("match tournament conflict or invalid")
)

// insertBatchSize keeps a single INSERT well under the bind-parameter limits of both drivers.
const insertBatchSize = 500

type MatchRepository interface {
	CreateBatch(ctx context.Context, exec SQLExecutor, matches []*models.Match) error
	GetByID(ctx context.Context, exec SQLExecutor, id uuid.UUID) (*models.Match, error)
	GetByPosition(ctx context.Context, exec SQLExecutor, tournamentID uuid.UUID, round, index int) (*models.Match, error)
	ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID uuid.UUID) ([]*models.Match, error)
	UpdateState(ctx context.Context, exec SQLExecutor, match *models.Match) error
	UpsertResult(ctx context.Context, exec SQLExecutor, matchID uuid.UUID, result models.MatchResult) error
	CountSubmitters(ctx context.Context, exec SQLExecutor, matchID uuid.UUID) (int, error)
	UpsertDispute(ctx context.Context, exec SQLExecutor, matchID uuid.UUID, dispute *models.Dispute) error
}

type matchRow struct {
	ID           uuid.UUID     `db:"id"`
	TournamentID uuid.UUID     `db:"tournament_id"`
	Round        int           `db:"round"`
	RoundName    string        `db:"round_name"`
	Index        int           `db:"match_index"`
	Player1ID    uuid.NullUUID `db:"player1_id"`
	Player2ID    uuid.NullUUID `db:"player2_id"`
	WinnerID     uuid.NullUUID `db:"winner_id"`
	Status       string        `db:"status"`
	IsBye        bool          `db:"is_bye"`
	Version      int           `db:"version"`
	CreatedAt    time.Time     `db:"created_at"`
	UpdatedAt    time.Time     `db:"updated_at"`
}

func newMatchRow(m *models.Match) matchRow {
	row := matchRow{
		ID:           m.ID,
		TournamentID: m.TournamentID,
		Round:        m.Round,
		RoundName:    m.RoundName,
		Index:        m.Index,
		Player1ID:    m.Player1.NullUUID(),
		Player2ID:    m.Player2.NullUUID(),
		Status:       string(m.Status),
		IsBye:        m.IsBye,
		Version:      m.Version,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
	if m.WinnerID != nil {
		row.WinnerID = uuid.NullUUID{UUID: *m.WinnerID, Valid: true}
	}
	return row
}

func (row matchRow) toModel() *models.Match {
	m := &models.Match{
		ID:           row.ID,
		TournamentID: row.TournamentID,
		Round:        row.Round,
		RoundName:    row.RoundName,
		Index:        row.Index,
		Player1:      models.SlotFromNullUUID(row.Player1ID),
		Player2:      models.SlotFromNullUUID(row.Player2ID),
		Status:       models.MatchStatus(row.Status),
		IsBye:        row.IsBye,
		Results:      make(map[uuid.UUID]models.MatchResult),
		Version:      row.Version,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
	if row.WinnerID.Valid {
		winner := row.WinnerID.UUID
		m.WinnerID = &winner
	}
	return m
}

type resultRow struct {
	MatchID uuid.UUID `db:"match_id"`
	models.MatchResult
}

type disputeRow struct {
	MatchID    uuid.UUID      `db:"match_id"`
	ReportedBy uuid.UUID      `db:"reported_by"`
	Reason     string         `db:"reason"`
	Evidence   string         `db:"evidence"`
	Status     string         `db:"status"`
	Resolution sql.NullString `db:"resolution"`
	ResolvedBy uuid.NullUUID  `db:"resolved_by"`
	ResolvedAt sql.NullTime   `db:"resolved_at"`
	CreatedAt  time.Time      `db:"created_at"`
}

func (row disputeRow) toModel() (*models.Dispute, error) {
	d := &models.Dispute{
		ReportedBy: row.ReportedBy,
		Reason:     row.Reason,
		Evidence:   []string{},
		Status:     models.DisputeStatus(row.Status),
		CreatedAt:  row.CreatedAt,
	}
	if row.Evidence != "" {
		if err := json.Unmarshal([]byte(row.Evidence), &d.Evidence); err != nil {
			return nil, fmt.Errorf("failed to decode dispute evidence for match %s: %w", row.MatchID, err)
		}
	}
	if row.Resolution.Valid {
		resolution := row.Resolution.String
		d.Resolution = &resolution
	}
	if row.ResolvedBy.Valid {
		resolvedBy := row.ResolvedBy.UUID
		d.ResolvedBy = &resolvedBy
	}
	if row.ResolvedAt.Valid {
		resolvedAt := row.ResolvedAt.Time
		d.ResolvedAt = &resolvedAt
	}
	return d, nil
}

type postgresMatchRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewPostgresMatchRepository(db *sqlx.DB) MatchRepository {
	return &postgresMatchRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (r *postgresMatchRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const selectMatchColumns = `
	SELECT id, tournament_id, round, round_name, match_index, player1_id, player2_id, winner_id,
	       status, is_bye, version, created_at, updated_at
	FROM matches`

// CreateBatch inserts all matches with multi-row INSERTs. Callers pass a transaction to make
// the whole batch all-or-nothing.
func (r *postgresMatchRepository) CreateBatch(ctx context.Context, exec SQLExecutor, matches []*models.Match) error {
	if len(matches) == 0 {
		return nil
	}
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO matches (
			id, tournament_id, round, round_name, match_index, player1_id, player2_id, winner_id,
			status, is_bye, version, created_at, updated_at
		) VALUES (
			:id, :tournament_id, :round, :round_name, :match_index, :player1_id, :player2_id, :winner_id,
			:status, :is_bye, :version, :created_at, :updated_at
		)`

	rows := make([]matchRow, 0, len(matches))
	for _, m := range matches {
		if m.Version == 0 {
			m.Version = 1
		}
		rows = append(rows, newMatchRow(m))
	}

	for start := 0; start < len(rows); start += insertBatchSize {
		end := min(start+insertBatchSize, len(rows))
		if _, err := sqlx.NamedExecContext(ctx, executor, query, rows[start:end]); err != nil {
			return fmt.Errorf("failed to insert matches: %w", mapConstraintError(err, ErrMatchPositionConflict, ErrMatchTournamentInvalid))
		}
	}
	return nil
}

func (r *postgresMatchRepository) GetByID(ctx context.Context, exec SQLExecutor, id uuid.UUID) (*models.Match, error) {
	return r.getOne(ctx, r.getExecutor(exec), selectMatchColumns+` WHERE id = $1`, id)
}

func (r *postgresMatchRepository) GetByPosition(ctx context.Context, exec SQLExecutor, tournamentID uuid.UUID, round, index int) (*models.Match, error) {
	query := selectMatchColumns + ` WHERE tournament_id = $1 AND round = $2 AND match_index = $3`
	return r.getOne(ctx, r.getExecutor(exec), query, tournamentID, round, index)
}

func (r *postgresMatchRepository) getOne(ctx context.Context, executor SQLExecutor, query string, args ...interface{}) (*models.Match, error) {
	var row matchRow
	if err := sqlx.GetContext(ctx, executor, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, err
	}

	m := row.toModel()
	if err := r.loadDetails(ctx, executor, []*models.Match{m}, `match_id = $1`, m.ID); err != nil {
		return nil, err
	}
	return m, nil
}

func (r *postgresMatchRepository) ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID uuid.UUID) ([]*models.Match, error) {
	executor := r.getExecutor(exec)
	query := selectMatchColumns + ` WHERE tournament_id = $1 ORDER BY round, match_index`

	var rows []matchRow
	if err := sqlx.SelectContext(ctx, executor, &rows, query, tournamentID); err != nil {
		return nil, fmt.Errorf("failed to list matches: %w", err)
	}

	matches := make([]*models.Match, 0, len(rows))
	for _, row := range rows {
		matches = append(matches, row.toModel())
	}
	if len(matches) == 0 {
		return matches, nil
	}

	filter := `match_id IN (SELECT id FROM matches WHERE tournament_id = $1)`
	if err := r.loadDetails(ctx, executor, matches, filter, tournamentID); err != nil {
		return nil, err
	}
	return matches, nil
}

// loadDetails attaches results and disputes selected by filter to the given matches.
func (r *postgresMatchRepository) loadDetails(ctx context.Context, executor SQLExecutor, matches []*models.Match, filter string, arg interface{}) error {
	byID := make(map[uuid.UUID]*models.Match, len(matches))
	for _, m := range matches {
		byID[m.ID] = m
	}

	var results []resultRow
	resultQuery := `SELECT match_id, player_id, score, screenshot_url, submitted_at FROM match_results WHERE ` + filter
	if err := sqlx.SelectContext(ctx, executor, &results, resultQuery, arg); err != nil {
		return fmt.Errorf("failed to load match results: %w", err)
	}
	for _, res := range results {
		if m, ok := byID[res.MatchID]; ok {
			m.Results[res.PlayerID] = res.MatchResult
		}
	}

	var disputes []disputeRow
	disputeQuery := `
		SELECT match_id, reported_by, reason, evidence, status, resolution, resolved_by, resolved_at, created_at
		FROM match_disputes WHERE ` + filter
	if err := sqlx.SelectContext(ctx, executor, &disputes, disputeQuery, arg); err != nil {
		return fmt.Errorf("failed to load match disputes: %w", err)
	}
	for _, row := range disputes {
		m, ok := byID[row.MatchID]
		if !ok {
			continue
		}
		d, err := row.toModel()
		if err != nil {
			return err
		}
		m.Dispute = d
	}
	return nil
}

// UpdateState writes slots, winner and status if the stored version still equals match.Version.
// On success match.Version is advanced; otherwise ErrMatchVersionConflict is returned and
// nothing is written.
func (r *postgresMatchRepository) UpdateState(ctx context.Context, exec SQLExecutor, m *models.Match) error {
	row := newMatchRow(m)
	now := r.now()
	query := `
		UPDATE matches
		SET player1_id = $1, player2_id = $2, winner_id = $3, status = $4, is_bye = $5,
		    version = version + 1, updated_at = $6
		WHERE id = $7 AND version = $8`

	result, err := r.getExecutor(exec).ExecContext(ctx, query,
		row.Player1ID, row.Player2ID, row.WinnerID, row.Status, row.IsBye,
		now, row.ID, row.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update match %s: %w", m.ID, err)
	}
	if err := checkAffectedRows(result, ErrMatchVersionConflict); err != nil {
		return err
	}
	m.Version++
	m.UpdatedAt = now
	return nil
}

// UpsertResult keeps at most one result per player: a resubmission replaces the earlier entry.
func (r *postgresMatchRepository) UpsertResult(ctx context.Context, exec SQLExecutor, matchID uuid.UUID, res models.MatchResult) error {
	query := `
		INSERT INTO match_results (match_id, player_id, score, screenshot_url, submitted_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (match_id, player_id) DO UPDATE
		SET score = excluded.score, screenshot_url = excluded.screenshot_url, submitted_at = excluded.submitted_at`

	_, err := r.getExecutor(exec).ExecContext(ctx, query, matchID, res.PlayerID, res.Score, res.ScreenshotURL, res.SubmittedAt)
	if err != nil {
		return fmt.Errorf("failed to save result for match %s: %w", matchID, mapConstraintError(err, nil, ErrMatchNotFound))
	}
	return nil
}

func (r *postgresMatchRepository) CountSubmitters(ctx context.Context, exec SQLExecutor, matchID uuid.UUID) (int, error) {
	var count int
	query := `SELECT COUNT(DISTINCT player_id) FROM match_results WHERE match_id = $1`
	if err := sqlx.GetContext(ctx, r.getExecutor(exec), &count, query, matchID); err != nil {
		return 0, fmt.Errorf("failed to count submitters for match %s: %w", matchID, err)
	}
	return count, nil
}

// UpsertDispute creates the dispute record or overwrites the existing one; created_at is kept.
func (r *postgresMatchRepository) UpsertDispute(ctx context.Context, exec SQLExecutor, matchID uuid.UUID, d *models.Dispute) error {
	evidence := d.Evidence
	if evidence == nil {
		evidence = []string{}
	}
	encoded, err := json.Marshal(evidence)
	if err != nil {
		return fmt.Errorf("failed to encode dispute evidence: %w", err)
	}

	var resolution sql.NullString
	if d.Resolution != nil {
		resolution = sql.NullString{String: *d.Resolution, Valid: true}
	}
	var resolvedBy uuid.NullUUID
	if d.ResolvedBy != nil {
		resolvedBy = uuid.NullUUID{UUID: *d.ResolvedBy, Valid: true}
	}
	var resolvedAt sql.NullTime
	if d.ResolvedAt != nil {
		resolvedAt = sql.NullTime{Time: d.ResolvedAt.UTC(), Valid: true}
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = r.now()
	}

	query := `
		INSERT INTO match_disputes (match_id, reported_by, reason, evidence, status, resolution, resolved_by, resolved_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (match_id) DO UPDATE
		SET reported_by = excluded.reported_by, reason = excluded.reason, evidence = excluded.evidence,
		    status = excluded.status, resolution = excluded.resolution, resolved_by = excluded.resolved_by,
		    resolved_at = excluded.resolved_at`

	_, err = r.getExecutor(exec).ExecContext(ctx, query,
		matchID, d.ReportedBy, d.Reason, string(encoded), d.Status, resolution, resolvedBy, resolvedAt, d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save dispute for match %s: %w", matchID, mapConstraintError(err, nil, ErrMatchNotFound))
	}
	return nil
}
