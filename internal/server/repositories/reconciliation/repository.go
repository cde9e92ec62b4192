package reconciliation

import (
	"context"

	"github.com/dmitrijs2005/ballotkeeper/internal/server/models"
)

type Repository interface {
	// Record stores an item unless an identical open one exists. The result
	// reports whether a row was written.
	Record(ctx context.Context, item *models.ReconciliationItem) (bool, error)
	ListOpen(ctx context.Context) ([]models.ReconciliationItem, error)
}
