package tickets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/ballotkeeper/internal/common"
	"github.com/dmitrijs2005/ballotkeeper/internal/dbx"
	"github.com/dmitrijs2005/ballotkeeper/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Insert relies on the (session_id, user_id) constraint: a concurrent
// registration that got there first makes this a no-op.
func (r *PostgresRepository) Insert(ctx context.Context, t *models.Ticket) (*models.Ticket, error) {
	query :=
		`INSERT INTO tickets (id, session_id, user_id, status, token_fingerprint, notification_status)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (session_id, user_id) DO NOTHING
		 RETURNING created_at`

	err := r.db.QueryRowContext(ctx, query,
		t.ID, t.SessionID, t.UserID, t.Status, t.TokenFingerprint, t.NotificationStatus).Scan(&t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return t, nil
}

func (r *PostgresRepository) ListUserIDs(ctx context.Context, sessionID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT user_id FROM tickets WHERE session_id = $1`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return ids, nil
}

func (r *PostgresRepository) Count(ctx context.Context, sessionID string) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM tickets WHERE session_id = $1`, sessionID)
}

func (r *PostgresRepository) CountPendingNotifications(ctx context.Context, sessionID string) (int, error) {
	return r.count(ctx,
		`SELECT COUNT(*) FROM tickets WHERE session_id = $1 AND notification_status <> 'sent'`, sessionID)
}

func (r *PostgresRepository) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) UpdateNotification(ctx context.Context, id string, status models.NotificationStatus, errText string) error {
	query := `UPDATE tickets SET notification_status = $2, notification_error = $3 WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id, status, errText)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) DeleteAll(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tickets`)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
