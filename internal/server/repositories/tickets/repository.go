package tickets

import (
	"context"

	"github.com/dmitrijs2005/ballotkeeper/internal/server/models"
)

type Repository interface {
	// Insert stores a ticket. It returns common.ErrAlreadyExists when the
	// voter already holds a ticket for the session.
	Insert(ctx context.Context, t *models.Ticket) (*models.Ticket, error)
	ListUserIDs(ctx context.Context, sessionID string) ([]string, error)
	Count(ctx context.Context, sessionID string) (int, error)
	CountPendingNotifications(ctx context.Context, sessionID string) (int, error)
	UpdateNotification(ctx context.Context, id string, status models.NotificationStatus, errText string) error
	DeleteAll(ctx context.Context) (int64, error)
}
