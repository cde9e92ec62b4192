package reconciliation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/ballotkeeper/internal/dbx"
	"github.com/dmitrijs2005/ballotkeeper/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Record(ctx context.Context, item *models.ReconciliationItem) (bool, error) {
	// Conditions match any open item of the same kind; events also need the
	// same detail.
	query :=
		`INSERT INTO reconciliation_items (id, kind, session_id, ledger_session_id, detail)
		 SELECT $1::uuid, $2::text, $3::text, $4::text, $5::text
		 WHERE NOT EXISTS (
		     SELECT 1 FROM reconciliation_items
		     WHERE kind = $2 AND session_id = $3 AND ledger_session_id = $4
		       AND ($6::boolean OR detail = $5) AND resolved_at IS NULL
		 )
		 RETURNING created_at`

	err := r.db.QueryRowContext(ctx, query,
		item.ID, item.Kind, item.SessionID, item.LedgerSessionID, item.Detail, item.Kind.Condition()).Scan(&item.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("db error: %w", err)
	}
	return true, nil
}

func (r *PostgresRepository) ListOpen(ctx context.Context) ([]models.ReconciliationItem, error) {
	query :=
		`SELECT id, kind, session_id, ledger_session_id, detail, created_at
		 FROM reconciliation_items
		 WHERE resolved_at IS NULL
		 ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []models.ReconciliationItem
	for rows.Next() {
		var it models.ReconciliationItem
		if err := rows.Scan(&it.ID, &it.Kind, &it.SessionID, &it.LedgerSessionID, &it.Detail, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}
