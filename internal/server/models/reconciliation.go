package models

import "time"

type ReconciliationKind string

const (
	KindOrphanedLedgerSession ReconciliationKind = "orphaned_ledger_session"
	KindOrphanedLedgerToken   ReconciliationKind = "orphaned_ledger_token"
	KindOrphanedLedgerTokens  ReconciliationKind = "orphaned_ledger_tokens"
	KindOrphanedTickets       ReconciliationKind = "orphaned_tickets"
	KindStartedFlagLag        ReconciliationKind = "started_flag_lag"
	KindMissingLedgerSession  ReconciliationKind = "missing_ledger_session"
)

// Condition reports whether the kind is a standing state of a session found
// by the sweep, as opposed to a one-off event. A session has at most one open
// item per condition kind, whatever its detail says.
func (k ReconciliationKind) Condition() bool {
	switch k {
	case KindOrphanedLedgerTokens, KindOrphanedTickets, KindStartedFlagLag, KindMissingLedgerSession:
		return true
	}
	return false
}

// ReconciliationItem is recorded drift between the local store and the
// ledger, kept for an operator. Nothing resolves it automatically.
type ReconciliationItem struct {
	ID              string
	Kind            ReconciliationKind
	SessionID       string
	LedgerSessionID string
	Detail          string
	CreatedAt       time.Time
	ResolvedAt      *time.Time
}
