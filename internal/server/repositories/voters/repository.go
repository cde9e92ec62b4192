// Package voters reads users and group memberships. Both are owned by an
// external directory; this package never writes them.
package voters

import (
	"context"

	"github.com/dmitrijs2005/ballotkeeper/internal/server/models"
)

type Repository interface {
	// ListByGroup returns the members of a group. It fails with
	// common.ErrNotFound when the group does not exist.
	ListByGroup(ctx context.Context, groupID string) ([]models.Voter, error)
	// FindByEmail matches case-insensitively.
	FindByEmail(ctx context.Context, email string) (*models.Voter, error)
}
