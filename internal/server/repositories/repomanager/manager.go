package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/ballotkeeper/internal/dbx"
	"github.com/dmitrijs2005/ballotkeeper/internal/server/repositories/reconciliation"
	"github.com/dmitrijs2005/ballotkeeper/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/ballotkeeper/internal/server/repositories/tickets"
	"github.com/dmitrijs2005/ballotkeeper/internal/server/repositories/voters"
)

// RepositoryManager vends repositories bound to a DBTX, so the same code runs
// against the pool or inside a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Sessions(db dbx.DBTX) sessions.Repository
	Tickets(db dbx.DBTX) tickets.Repository
	Voters(db dbx.DBTX) voters.Repository
	Reconciliation(db dbx.DBTX) reconciliation.Repository
}
