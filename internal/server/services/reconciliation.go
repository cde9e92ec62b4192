package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/ballotkeeper/internal/ledger"
	"github.com/dmitrijs2005/ballotkeeper/internal/logging"
	"github.com/dmitrijs2005/ballotkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/ballotkeeper/internal/server/models"
	"github.com/dmitrijs2005/ballotkeeper/internal/server/repositories/repomanager"
)

// Drift is one disagreement between local records and the ledger.
type Drift struct {
	Kind   models.ReconciliationKind `json:"kind"`
	Detail string                    `json:"detail"`
}

// MergedView joins a local session with the ledger's record of it. Ledger
// figures are read fresh on every call.
type MergedView struct {
	Session              *models.VotingSession
	Ledger               *ledger.SessionView
	Tally                map[string]uint64
	LocalTickets         int
	PendingNotifications int
	Drift                []Drift
}

// ReconciliationReader is read-only towards the ledger and towards local
// sessions; it only writes reconciliation items.
type ReconciliationReader struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	ledger      ledger.Gateway
	logger      logging.Logger
	metrics     *metrics.Metrics
}

func NewReconciliationReader(db *sql.DB, m repomanager.RepositoryManager, gw ledger.Gateway,
	logger logging.Logger, mx *metrics.Metrics) *ReconciliationReader {
	return &ReconciliationReader{
		db:          db,
		repomanager: m,
		ledger:      gw,
		logger:      logger.With("module", "reconciliation"),
		metrics:     mx,
	}
}

// View returns the merged view of one session. The tally is only read once
// the session has started on the ledger.
func (r *ReconciliationReader) View(ctx context.Context, id string) (*MergedView, error) {
	session, err := r.repomanager.Sessions(r.db).Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.view(ctx, session, true)
}

func (r *ReconciliationReader) view(ctx context.Context, session *models.VotingSession, withTally bool) (*MergedView, error) {
	tickets := r.repomanager.Tickets(r.db)
	count, err := tickets.Count(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	pending, err := tickets.CountPendingNotifications(ctx, session.ID)
	if err != nil {
		return nil, err
	}

	lv, err := r.ledger.SessionView(ctx, session.LedgerSessionID)
	if err != nil {
		return nil, err
	}

	mv := &MergedView{
		Session:              session,
		Ledger:               lv,
		LocalTickets:         count,
		PendingNotifications: pending,
		Drift:                detectDrift(session, lv, count),
	}

	if withTally && lv.Exists && lv.Started {
		mv.Tally = make(map[string]uint64, len(session.Candidates))
		for _, c := range session.Candidates {
			n, err := r.ledger.Tally(ctx, session.LedgerSessionID, c)
			if err != nil {
				return nil, err
			}
			mv.Tally[c] = n
		}
	}
	return mv, nil
}

func detectDrift(session *models.VotingSession, lv *ledger.SessionView, tickets int) []Drift {
	if !lv.Exists {
		return []Drift{{
			Kind:   models.KindMissingLedgerSession,
			Detail: fmt.Sprintf("ledger has no session %s", session.LedgerSessionID),
		}}
	}
	var out []Drift
	local := uint64(tickets)
	switch {
	case lv.VotersTotal > local:
		out = append(out, Drift{
			Kind:   models.KindOrphanedLedgerTokens,
			Detail: fmt.Sprintf("ledger holds %d tokens, %d tickets recorded", lv.VotersTotal, local),
		})
	case lv.VotersTotal < local:
		out = append(out, Drift{
			Kind:   models.KindOrphanedTickets,
			Detail: fmt.Sprintf("%d tickets recorded, ledger holds %d tokens", local, lv.VotersTotal),
		})
	}
	if lv.Started && !session.Started {
		out = append(out, Drift{
			Kind:   models.KindStartedFlagLag,
			Detail: "ledger session started, local flag not set",
		})
	}
	return out
}

// Sweep checks every active session against the ledger and records new drift
// items. It returns how many items were recorded. A session the ledger cannot
// be asked about is skipped.
func (r *ReconciliationReader) Sweep(ctx context.Context) (int, error) {
	active, err := r.repomanager.Sessions(r.db).ListActive(ctx)
	if err != nil {
		return 0, err
	}
	items := r.repomanager.Reconciliation(r.db)
	recorded := 0
	for i := range active {
		session := &active[i]
		mv, err := r.view(ctx, session, false)
		if err != nil {
			r.logger.Warn(ctx, "reconcile session", "session_id", session.ID, "error", err)
			if ctx.Err() != nil {
				return recorded, ctx.Err()
			}
			continue
		}
		for _, d := range mv.Drift {
			r.metrics.Drift(string(d.Kind))
			r.logger.Warn(ctx, "ledger drift", "kind", d.Kind, "session_id", session.ID, "detail", d.Detail)
			if recordItem(ctx, items, r.logger, &models.ReconciliationItem{
				Kind:            d.Kind,
				SessionID:       session.ID,
				LedgerSessionID: session.LedgerSessionID,
				Detail:          d.Detail,
			}) {
				recorded++
			}
		}
	}
	return recorded, nil
}

func (r *ReconciliationReader) ListOpen(ctx context.Context) ([]models.ReconciliationItem, error) {
	return r.repomanager.Reconciliation(r.db).ListOpen(ctx)
}
