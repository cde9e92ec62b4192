package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/ballotkeeper/internal/common"
	"github.com/dmitrijs2005/ballotkeeper/internal/ledger"
	"github.com/dmitrijs2005/ballotkeeper/internal/logging"
	"github.com/dmitrijs2005/ballotkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/ballotkeeper/internal/server/models"
	"github.com/dmitrijs2005/ballotkeeper/internal/server/notify"
	"github.com/dmitrijs2005/ballotkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/ballotkeeper/internal/server/roster"
	"github.com/google/uuid"
)

// Per-voter outcomes of a registration.
const (
	OutcomeTicketed        = "ticketed"
	OutcomeNotifyFailed    = "notify_failed"
	OutcomeAlreadyTicketed = "already_ticketed"
	OutcomeTicketFailed    = "ticket_failed"
)

type VoterResult struct {
	UserID  string
	Email   string
	Outcome string
	Error   string
}

// RegistrationReport lists one result per distinct requested voter, in
// request order.
type RegistrationReport struct {
	SessionID       string
	Requested       int
	AlreadyTicketed int
	TokensIssued    int
	Results         []VoterResult
}

// TokenIssuer registers voters: it mints ledger tokens for voters without a
// ticket, binds each token to one voter and mails it out. Plaintext tokens
// live only for the duration of one RegisterVoters call.
type TokenIssuer struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	ledger      ledger.Gateway
	dispatcher  notify.Dispatcher
	logger      logging.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

func NewTokenIssuer(db *sql.DB, m repomanager.RepositoryManager, gw ledger.Gateway,
	d notify.Dispatcher, logger logging.Logger, mx *metrics.Metrics) *TokenIssuer {
	return &TokenIssuer{
		db:          db,
		repomanager: m,
		ledger:      gw,
		dispatcher:  d,
		logger:      logger.With("module", "issuer"),
		metrics:     mx,
		now:         time.Now,
	}
}

// RegisterVoters issues exactly one token per voter that has no ticket for
// the session yet. Voters that already hold one are reported and skipped.
// When nobody is left to register it returns common.ErrNoNewVoters without
// touching the ledger.
func (t *TokenIssuer) RegisterVoters(ctx context.Context, sessionID, adminSecret string, voters []models.Voter) (*RegistrationReport, error) {
	if adminSecret == "" {
		return nil, fmt.Errorf("%w: admin secret is required", common.ErrValidation)
	}

	sessions := t.repomanager.Sessions(t.db)
	session, err := sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := rejectArchived(session); err != nil {
		return nil, err
	}

	view, err := t.ledger.SessionView(ctx, session.LedgerSessionID)
	if err != nil {
		return nil, err
	}
	if !view.Exists {
		return nil, fmt.Errorf("register voters: %w", ledger.ErrSessionNotFound)
	}
	if view.Started {
		if !session.Started {
			if err := sessions.SetStarted(ctx, session.ID, true); err != nil {
				t.logger.Warn(ctx, "local started flag lags the ledger", "session_id", session.ID, "error", err)
			}
		}
		return nil, fmt.Errorf("%w: %w", common.ErrConflict, ledger.ErrSessionAlreadyStarted)
	}
	if view.Expired(t.now()) {
		return nil, fmt.Errorf("%w: %w", common.ErrConflict, ledger.ErrSessionExpired)
	}

	voters = roster.Dedupe(voters)
	report := &RegistrationReport{SessionID: session.ID, Requested: len(voters)}

	ticketed, err := t.repomanager.Tickets(t.db).ListUserIDs(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	has := make(map[string]bool, len(ticketed))
	for _, id := range ticketed {
		has[id] = true
	}

	results := make(map[string]*VoterResult, len(voters))
	var fresh []models.Voter
	for _, v := range voters {
		r := &VoterResult{UserID: v.UserID, Email: v.Email}
		results[v.UserID] = r
		if has[v.UserID] {
			r.Outcome = OutcomeAlreadyTicketed
			report.AlreadyTicketed++
			continue
		}
		fresh = append(fresh, v)
	}
	if len(fresh) == 0 {
		return nil, common.ErrNoNewVoters
	}

	tokens, err := t.ledger.IssueTokens(ctx, session.LedgerSessionID, adminSecret, len(fresh))
	if err != nil {
		return nil, err
	}
	report.TokensIssued = len(tokens)
	t.metrics.TokensIssued(len(tokens))

	bound := len(fresh)
	if len(tokens) < bound {
		bound = len(tokens)
	}
	if len(tokens) != len(fresh) {
		t.logger.Warn(ctx, "ledger returned an unexpected token count",
			"session_id", session.ID, "requested", len(fresh), "received", len(tokens))
	}

	wasted := len(tokens) - bound
	var msgs []notify.Message
	byTicket := make(map[string]*VoterResult, bound)
	for i := 0; i < bound; i++ {
		v := fresh[i]
		r := results[v.UserID]
		fp, err := ledger.Fingerprint(tokens[i])
		if err != nil {
			r.Outcome, r.Error = OutcomeTicketFailed, err.Error()
			wasted++
			continue
		}
		ticket, err := t.repomanager.Tickets(t.db).Insert(ctx, &models.Ticket{
			ID:                 uuid.NewString(),
			SessionID:          session.ID,
			UserID:             v.UserID,
			Status:             models.TicketIssued,
			TokenFingerprint:   fp,
			NotificationStatus: models.NotificationPending,
		})
		switch {
		case errors.Is(err, common.ErrAlreadyExists):
			r.Outcome = OutcomeAlreadyTicketed
			report.AlreadyTicketed++
			wasted++
		case err != nil:
			r.Outcome, r.Error = OutcomeTicketFailed, err.Error()
			wasted++
		default:
			byTicket[ticket.ID] = r
			msgs = append(msgs, notify.Message{
				TicketID:  ticket.ID,
				Email:     v.Email,
				SessionID: session.ID,
				Token:     tokens[i],
			})
		}
	}
	for i := bound; i < len(fresh); i++ {
		r := results[fresh[i].UserID]
		r.Outcome, r.Error = OutcomeTicketFailed, "no token issued"
	}

	if wasted > 0 {
		t.metrics.TokensWasted(wasted)
		t.metrics.Drift(string(models.KindOrphanedLedgerToken))
		t.logger.Warn(ctx, "ledger tokens issued without a ticket",
			"kind", models.KindOrphanedLedgerToken, "session_id", session.ID, "count", wasted)
		recordItem(ctx, t.repomanager.Reconciliation(t.db), t.logger, &models.ReconciliationItem{
			Kind:            models.KindOrphanedLedgerToken,
			SessionID:       session.ID,
			LedgerSessionID: session.LedgerSessionID,
			Detail:          fmt.Sprintf("%d token(s) issued without a ticket", wasted),
		})
	}

	for _, res := range notify.DispatchBatch(ctx, t.dispatcher, msgs) {
		t.metrics.Notification(res.Err)
		r := byTicket[res.TicketID]
		status, errText := models.NotificationSent, ""
		if res.Err != nil {
			status, errText = models.NotificationRetryable, res.Err.Error()
			r.Outcome, r.Error = OutcomeNotifyFailed, errText
		} else {
			r.Outcome = OutcomeTicketed
		}
		// The send outcome is stored even when the request was cancelled.
		if err := t.repomanager.Tickets(t.db).UpdateNotification(context.WithoutCancel(ctx), res.TicketID, status, errText); err != nil {
			t.logger.Error(ctx, "store notification status", "ticket_id", res.TicketID, "error", err)
		}
	}
	for i := range msgs {
		msgs[i].Token = ""
	}

	if session.Status == models.StatusCreated {
		err := sessions.UpdateStatus(ctx, session.ID, models.StatusCreated, models.StatusVotersRegistered)
		if err != nil && !errors.Is(err, common.ErrConflict) {
			t.logger.Warn(ctx, "update session status", "session_id", session.ID, "error", err)
		}
	}

	report.Results = make([]VoterResult, 0, len(voters))
	for _, v := range voters {
		r := results[v.UserID]
		t.metrics.RegistrationOutcome(r.Outcome)
		report.Results = append(report.Results, *r)
	}

	t.logger.Info(ctx, "voters registered",
		"session_id", session.ID,
		"requested", report.Requested,
		"tokens", report.TokensIssued,
		"already_ticketed", report.AlreadyTicketed)
	return report, nil
}
