package services

import (
	"context"

	"github.com/dmitrijs2005/ballotkeeper/internal/logging"
	"github.com/dmitrijs2005/ballotkeeper/internal/server/models"
	"github.com/dmitrijs2005/ballotkeeper/internal/server/repositories/reconciliation"
	"github.com/google/uuid"
)

// recordItem stores a reconciliation item for an operator. Failing to record
// is logged and otherwise ignored: the caller's outcome does not change.
func recordItem(ctx context.Context, repo reconciliation.Repository, logger logging.Logger, item *models.ReconciliationItem) bool {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	created, err := repo.Record(ctx, item)
	if err != nil {
		logger.Error(ctx, "record reconciliation item", "kind", item.Kind, "error", err)
		return false
	}
	return created
}
