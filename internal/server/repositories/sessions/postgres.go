package sessions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/ballotkeeper/internal/common"
	"github.com/dmitrijs2005/ballotkeeper/internal/dbx"
	"github.com/dmitrijs2005/ballotkeeper/internal/server/models"
	"github.com/google/uuid"
)

const ledgerIDConstraint = "voting_sessions_ledger_session_id_key"

const sessionColumns = `id, ledger_session_id, title, description, candidates, end_time,
		created_by, creation_tx, status, archived, started, created_at, updated_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// validID reports whether id can name a row; session ids are UUIDs, and
// anything else could only make Postgres reject the query.
func validID(id string) bool {
	return uuid.Validate(id) == nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner, extra ...any) (*models.VotingSession, error) {
	s := &models.VotingSession{}
	var candidates []byte
	dest := append([]any{
		&s.ID, &s.LedgerSessionID, &s.Title, &s.Description, &candidates, &s.EndTime,
		&s.CreatedBy, &s.CreationTx, &s.Status, &s.Archived, &s.Started, &s.CreatedAt, &s.UpdatedAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(candidates, &s.Candidates); err != nil {
		return nil, fmt.Errorf("decode candidates: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) Create(ctx context.Context, s *models.VotingSession) (*models.VotingSession, error) {
	candidates, err := json.Marshal(s.Candidates)
	if err != nil {
		return nil, fmt.Errorf("encode candidates: %w", err)
	}

	query :=
		`INSERT INTO voting_sessions (id, ledger_session_id, title, description, candidates, end_time,
		     created_by, creation_tx, status, archived, started)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING created_at, updated_at`

	err = r.db.QueryRowContext(ctx, query,
		s.ID, s.LedgerSessionID, s.Title, s.Description, candidates, s.EndTime,
		s.CreatedBy, s.CreationTx, s.Status, s.Archived, s.Started).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err, ledgerIDConstraint) {
			return nil, common.ErrAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return s, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.VotingSession, error) {
	if !validID(id) {
		return nil, common.ErrNotFound
	}
	query := `SELECT ` + sessionColumns + ` FROM voting_sessions WHERE id = $1`

	s, err := scanSession(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]models.SessionSummary, error) {
	query :=
		`SELECT s.id, s.ledger_session_id, s.title, s.description, s.candidates, s.end_time,
		     s.created_by, s.creation_tx, s.status, s.archived, s.started, s.created_at, s.updated_at,
		     COUNT(t.id)
		 FROM voting_sessions s
		 LEFT JOIN tickets t ON t.session_id = s.id
		 GROUP BY s.id
		 ORDER BY s.created_at DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []models.SessionSummary
	for rows.Next() {
		var count int
		s, err := scanSession(rows, &count)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, models.SessionSummary{VotingSession: *s, TicketCount: count})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) ListActive(ctx context.Context) ([]models.VotingSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM voting_sessions WHERE NOT archived ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []models.VotingSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) UpdateDetails(ctx context.Context, id, title, description string) (*models.VotingSession, error) {
	if !validID(id) {
		return nil, common.ErrNotFound
	}
	query :=
		`UPDATE voting_sessions SET title = $2, description = $3, updated_at = now()
		 WHERE id = $1
		 RETURNING ` + sessionColumns

	s, err := scanSession(r.db.QueryRowContext(ctx, query, id, title, description))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, id string, from, to models.SessionStatus) error {
	if !validID(id) {
		return common.ErrNotFound
	}
	query :=
		`UPDATE voting_sessions
		 SET status = $3, started = started OR $3 = 'started', archived = archived OR $3 = 'archived', updated_at = now()
		 WHERE id = $1 AND status = $2`

	res, err := r.db.ExecContext(ctx, query, id, from, to)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: session %s is no longer %s", common.ErrConflict, id, from)
	}
	return nil
}

func (r *PostgresRepository) SetStarted(ctx context.Context, id string, started bool) error {
	if !validID(id) {
		return common.ErrNotFound
	}
	query := `UPDATE voting_sessions SET started = $2, updated_at = now() WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id, started)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return requireOne(res)
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return common.ErrNotFound
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM voting_sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return requireOne(res)
}

func (r *PostgresRepository) DeleteAll(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM voting_sessions`)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func requireOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}
