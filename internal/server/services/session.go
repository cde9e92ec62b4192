// Package services holds the coordinator's business logic: the session
// lifecycle, voter registration, the merged ledger view and results export.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/ballotkeeper/internal/common"
	"github.com/dmitrijs2005/ballotkeeper/internal/dbx"
	"github.com/dmitrijs2005/ballotkeeper/internal/ledger"
	"github.com/dmitrijs2005/ballotkeeper/internal/logging"
	"github.com/dmitrijs2005/ballotkeeper/internal/server/models"
	"github.com/dmitrijs2005/ballotkeeper/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

type CreateSessionInput struct {
	Title       string
	Description string
	Candidates  []string
	EndTime     time.Time
	CreatedBy   string
}

// CreateSessionResult carries the one-time admin secret. It is never stored
// and cannot be recovered.
type CreateSessionResult struct {
	Session     *models.VotingSession
	AdminSecret string
}

type ResetReport struct {
	Sessions int64
	Tickets  int64
}

// SessionService owns the session lifecycle. The ledger decides whether a
// session has started; the local started flag only caches it.
type SessionService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	ledger      ledger.Gateway
	logger      logging.Logger
	now         func() time.Time
}

func NewSessionService(db *sql.DB, m repomanager.RepositoryManager, gw ledger.Gateway, logger logging.Logger) *SessionService {
	return &SessionService{
		db:          db,
		repomanager: m,
		ledger:      gw,
		logger:      logger.With("module", "sessions"),
		now:         time.Now,
	}
}

// Create validates the input, creates the session on the ledger and then
// persists it. A persist failure after a successful ledger call leaves an
// orphaned ledger session: it is recorded for an operator and reported as
// ErrOrphanedLedgerSession, never retried.
func (s *SessionService) Create(ctx context.Context, in CreateSessionInput) (*CreateSessionResult, error) {
	if err := s.validateCreate(in); err != nil {
		return nil, err
	}

	res, err := s.ledger.CreateSession(ctx, in.Candidates, in.EndTime)
	if err != nil {
		return nil, err
	}

	session := &models.VotingSession{
		ID:              uuid.NewString(),
		LedgerSessionID: res.SessionID,
		Title:           strings.TrimSpace(in.Title),
		Description:     in.Description,
		Candidates:      append([]string(nil), in.Candidates...),
		EndTime:         in.EndTime,
		CreatedBy:       in.CreatedBy,
		CreationTx:      res.TxRef,
		Status:          models.StatusCreated,
	}

	created, err := s.repomanager.Sessions(s.db).Create(ctx, session)
	if err != nil {
		s.logger.Warn(ctx, "orphaned ledger session",
			"kind", models.KindOrphanedLedgerSession,
			"ledger_session_id", res.SessionID,
			"tx", res.TxRef,
			"error", err)
		recordItem(ctx, s.repomanager.Reconciliation(s.db), s.logger, &models.ReconciliationItem{
			Kind:            models.KindOrphanedLedgerSession,
			LedgerSessionID: res.SessionID,
			Detail:          fmt.Sprintf("created in tx %s, local persist failed: %v", res.TxRef, err),
		})
		return nil, fmt.Errorf("%w: ledger session %s: %v", common.ErrOrphanedLedgerSession, res.SessionID, err)
	}

	s.logger.Info(ctx, "session created", "session_id", created.ID, "ledger_session_id", created.LedgerSessionID)
	return &CreateSessionResult{Session: created, AdminSecret: res.AdminSecret}, nil
}

func (s *SessionService) validateCreate(in CreateSessionInput) error {
	if strings.TrimSpace(in.Title) == "" {
		return fmt.Errorf("%w: title is required", common.ErrValidation)
	}
	if strings.TrimSpace(in.CreatedBy) == "" {
		return fmt.Errorf("%w: creator is required", common.ErrValidation)
	}
	if err := ledger.ValidateCandidates(in.Candidates); err != nil {
		return err
	}
	if !in.EndTime.After(s.now()) {
		return fmt.Errorf("%w: end time must be in the future", common.ErrValidation)
	}
	return nil
}

func (s *SessionService) Get(ctx context.Context, id string) (*models.VotingSession, error) {
	return s.repomanager.Sessions(s.db).Get(ctx, id)
}

func (s *SessionService) List(ctx context.Context) ([]models.SessionSummary, error) {
	return s.repomanager.Sessions(s.db).List(ctx)
}

// UpdateDetails changes the title and description; nothing else about a
// session is mutable.
func (s *SessionService) UpdateDetails(ctx context.Context, id, title, description string) (*models.VotingSession, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", common.ErrValidation)
	}
	repo := s.repomanager.Sessions(s.db)
	session, err := repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := rejectArchived(session); err != nil {
		return nil, err
	}
	return repo.UpdateDetails(ctx, id, title, description)
}

// Start starts the session on the ledger. When the ledger says it already
// started, the local cache is refreshed and ErrSessionAlreadyStarted is still
// returned, so repeating Start is safe.
func (s *SessionService) Start(ctx context.Context, id, adminSecret string) (*models.VotingSession, error) {
	if adminSecret == "" {
		return nil, fmt.Errorf("%w: admin secret is required", common.ErrValidation)
	}
	session, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := rejectArchived(session); err != nil {
		return nil, err
	}
	if session.Status == models.StatusClosed {
		return nil, fmt.Errorf("%w: session is closed", common.ErrConflict)
	}

	err = s.ledger.StartSession(ctx, session.LedgerSessionID, adminSecret)
	if errors.Is(err, ledger.ErrSessionAlreadyStarted) {
		s.markStarted(ctx, session)
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	s.markStarted(ctx, session)
	s.logger.Info(ctx, "session started", "session_id", session.ID)
	return s.Get(ctx, id)
}

// markStarted brings the local cache in line with a started ledger session.
// Failures are logged only: the ledger already holds the truth.
func (s *SessionService) markStarted(ctx context.Context, session *models.VotingSession) {
	repo := s.repomanager.Sessions(s.db)
	var err error
	if session.Status.CanMoveTo(models.StatusStarted) {
		err = repo.UpdateStatus(ctx, session.ID, session.Status, models.StatusStarted)
		if errors.Is(err, common.ErrConflict) {
			err = repo.SetStarted(ctx, session.ID, true)
		}
	} else if !session.Started {
		err = repo.SetStarted(ctx, session.ID, true)
	}
	if err != nil {
		s.logger.Warn(ctx, "local started flag lags the ledger",
			"kind", models.KindStartedFlagLag,
			"session_id", session.ID,
			"ledger_session_id", session.LedgerSessionID,
			"error", err)
	}
}

// Close moves a started session to Closed once the ledger's end time has
// passed.
func (s *SessionService) Close(ctx context.Context, id string) (*models.VotingSession, error) {
	session, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := rejectArchived(session); err != nil {
		return nil, err
	}
	if session.Status == models.StatusClosed {
		return session, nil
	}

	view, err := s.ledger.SessionView(ctx, session.LedgerSessionID)
	if err != nil {
		return nil, err
	}
	if !view.Exists {
		return nil, fmt.Errorf("close %s: %w", id, ledger.ErrSessionNotFound)
	}
	if !view.Started {
		return nil, fmt.Errorf("%w: session was never started", common.ErrConflict)
	}
	if !view.Expired(s.now()) {
		return nil, fmt.Errorf("%w: voting is open until %s", common.ErrConflict, view.EndTime.UTC().Format(time.RFC3339))
	}

	if session.Status != models.StatusStarted {
		s.markStarted(ctx, session)
	}
	if err := s.repomanager.Sessions(s.db).UpdateStatus(ctx, id, models.StatusStarted, models.StatusClosed); err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "session closed", "session_id", id)
	return s.Get(ctx, id)
}

// CloseExpired closes every started session whose end time has passed and
// returns how many were closed.
func (s *SessionService) CloseExpired(ctx context.Context) (int, error) {
	active, err := s.repomanager.Sessions(s.db).ListActive(ctx)
	if err != nil {
		return 0, err
	}
	closed := 0
	now := s.now()
	for _, session := range active {
		if session.Status == models.StatusClosed || now.Before(session.EndTime) {
			continue
		}
		if !session.Started && session.Status != models.StatusStarted {
			continue
		}
		if _, err := s.Close(ctx, session.ID); err != nil {
			s.logger.Warn(ctx, "close expired session", "session_id", session.ID, "error", err)
			continue
		}
		closed++
	}
	return closed, nil
}

// Archive is a local, terminal status flip. Archiving twice is a no-op.
func (s *SessionService) Archive(ctx context.Context, id string) (*models.VotingSession, error) {
	repo := s.repomanager.Sessions(s.db)
	for attempt := 0; attempt < 2; attempt++ {
		session, err := repo.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if session.Status == models.StatusArchived {
			return session, nil
		}
		err = repo.UpdateStatus(ctx, id, session.Status, models.StatusArchived)
		if errors.Is(err, common.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}
		s.logger.Info(ctx, "session archived", "session_id", id)
		return repo.Get(ctx, id)
	}
	return nil, fmt.Errorf("%w: session %s changed concurrently", common.ErrConflict, id)
}

// Delete removes one session and, by cascade, its tickets. The ledger is not
// touched.
func (s *SessionService) Delete(ctx context.Context, id string) error {
	if err := s.repomanager.Sessions(s.db).Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info(ctx, "session deleted", "session_id", id)
	return nil
}

// Reset wipes all local sessions and tickets in one transaction. Ledger state
// cannot be wiped and is left as is.
func (s *SessionService) Reset(ctx context.Context) (*ResetReport, error) {
	report := &ResetReport{}
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		if report.Tickets, err = s.repomanager.Tickets(tx).DeleteAll(ctx); err != nil {
			return err
		}
		report.Sessions, err = s.repomanager.Sessions(tx).DeleteAll(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Warn(ctx, "local voting state reset; ledger sessions remain",
		"sessions", report.Sessions, "tickets", report.Tickets)
	return report, nil
}

// CastVote forwards a vote to the ledger, which alone serialises token
// consumption.
func (s *SessionService) CastVote(ctx context.Context, id, candidate, token string) (*ledger.Receipt, error) {
	if candidate == "" || token == "" {
		return nil, fmt.Errorf("%w: candidate and token are required", common.ErrValidation)
	}
	session, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := rejectArchived(session); err != nil {
		return nil, err
	}
	if !s.now().Before(session.EndTime) {
		return nil, ledger.NewError(ledger.CodeSessionExpired,
			"voting ended at "+session.EndTime.UTC().Format(time.RFC3339))
	}
	return s.ledger.CastVote(ctx, session.LedgerSessionID, candidate, token)
}

func (s *SessionService) VerifyAdminSecret(ctx context.Context, id, adminSecret string) (bool, error) {
	session, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return s.ledger.ValidAdminSecret(ctx, session.LedgerSessionID, adminSecret)
}

func rejectArchived(session *models.VotingSession) error {
	if session.Archived || session.Status == models.StatusArchived {
		return fmt.Errorf("%w: session %s is archived", common.ErrConflict, session.ID)
	}
	return nil
}
