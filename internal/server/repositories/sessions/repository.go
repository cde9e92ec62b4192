package sessions

import (
	"context"

	"github.com/dmitrijs2005/ballotkeeper/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, s *models.VotingSession) (*models.VotingSession, error)
	Get(ctx context.Context, id string) (*models.VotingSession, error)
	// List returns every session with its local ticket count.
	List(ctx context.Context) ([]models.SessionSummary, error)
	// ListActive returns sessions that are not archived.
	ListActive(ctx context.Context) ([]models.VotingSession, error)
	UpdateDetails(ctx context.Context, id, title, description string) (*models.VotingSession, error)
	// UpdateStatus moves a session from one status to another. It fails with
	// common.ErrConflict when the session is no longer in from.
	UpdateStatus(ctx context.Context, id string, from, to models.SessionStatus) error
	SetStarted(ctx context.Context, id string, started bool) error
	Delete(ctx context.Context, id string) error
	DeleteAll(ctx context.Context) (int64, error)
}
