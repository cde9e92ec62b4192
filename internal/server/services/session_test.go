package services

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/ballotkeeper/internal/common"
	"github.com/dmitrijs2005/ballotkeeper/internal/ledger"
	"github.com/dmitrijs2005/ballotkeeper/internal/logging"
	"github.com/dmitrijs2005/ballotkeeper/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreate_ValidationNeverReachesLedger(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	end := e.clock.Now().Add(time.Hour)

	cases := []struct {
		name string
		in   CreateSessionInput
	}{
		{"no title", CreateSessionInput{Candidates: []string{"A", "B"}, EndTime: end, CreatedBy: "u"}},
		{"one candidate", CreateSessionInput{Title: "t", Candidates: []string{"A"}, EndTime: end, CreatedBy: "u"}},
		{"duplicate candidate", CreateSessionInput{Title: "t", Candidates: []string{"A", "A"}, EndTime: end, CreatedBy: "u"}},
		{"too long candidate", CreateSessionInput{Title: "t", Candidates: []string{"A", "0123456789012345678901234567890123"}, EndTime: end, CreatedBy: "u"}},
		{"past end time", CreateSessionInput{Title: "t", Candidates: []string{"A", "B"}, EndTime: e.clock.Now(), CreatedBy: "u"}},
		{"no creator", CreateSessionInput{Title: "t", Candidates: []string{"A", "B"}, EndTime: end}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.sessions.Create(ctx, tc.in)
			require.ErrorIs(t, err, common.ErrValidation)
		})
	}
	assert.Zero(t, e.gw.creates.Load())
}

func TestCreate_PersistsSessionAndReturnsSecretOnce(t *testing.T) {
	e := newEnv(t)
	res := e.create(t)

	assert.NotEmpty(t, res.AdminSecret)
	assert.Equal(t, models.StatusCreated, res.Session.Status)
	assert.NotEmpty(t, res.Session.LedgerSessionID)
	assert.NotEmpty(t, res.Session.CreationTx)

	ok, err := e.sessions.VerifyAdminSecret(context.Background(), res.Session.ID, res.AdminSecret)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCreate_OrphanedLedgerSession(t *testing.T) {
	e := newEnv(t)
	e.store.createErr = errors.New("db error: connection reset")

	_, err := e.sessions.Create(context.Background(), CreateSessionInput{
		Title: "t", Candidates: []string{"A", "B"}, EndTime: e.clock.Now().Add(time.Hour), CreatedBy: "u",
	})
	require.ErrorIs(t, err, common.ErrOrphanedLedgerSession)
	assert.EqualValues(t, 1, e.gw.creates.Load())

	items, err := e.reader.ListOpen(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, models.KindOrphanedLedgerSession, items[0].Kind)
	assert.NotEmpty(t, items[0].LedgerSessionID)
}

func TestCreate_LedgerErrorIsReturnedVerbatim(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.sessions.Create(ctx, CreateSessionInput{
		Title: "t", Candidates: []string{"A", "B"}, EndTime: e.clock.Now().Add(time.Hour), CreatedBy: "u",
	})
	require.ErrorIs(t, err, ledger.ErrLedgerUnavailable)
	assert.Empty(t, e.store.sessions)
}

func TestStart_RepeatIsSafe(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	res := e.create(t)

	s, err := e.sessions.Start(ctx, res.Session.ID, res.AdminSecret)
	require.NoError(t, err)
	assert.Equal(t, models.StatusStarted, s.Status)
	assert.True(t, s.Started)

	_, err = e.sessions.Start(ctx, res.Session.ID, res.AdminSecret)
	require.ErrorIs(t, err, ledger.ErrSessionAlreadyStarted)

	got, err := e.sessions.Get(ctx, res.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusStarted, got.Status)
}

func TestStart_WrongSecretLeavesSessionUntouched(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	res := e.create(t)
	other, err := ledger.NewSecret()
	require.NoError(t, err)

	_, err = e.sessions.Start(ctx, res.Session.ID, other)
	require.ErrorIs(t, err, ledger.ErrInvalidAdminSecret)

	got, err := e.sessions.Get(ctx, res.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCreated, got.Status)
	assert.False(t, got.Started)
}

func TestStart_LocalPersistFailureStillSucceeds(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	res := e.create(t)
	e.store.updateStatusErr = errors.New("db error: timeout")
	e.store.setStartedErr = errors.New("db error: timeout")

	_, err := e.sessions.Start(ctx, res.Session.ID, res.AdminSecret)
	require.NoError(t, err)

	e.store.updateStatusErr, e.store.setStartedErr = nil, nil
	mv, err := e.reader.View(ctx, res.Session.ID)
	require.NoError(t, err)
	assert.True(t, mv.Ledger.Started)
	assert.Contains(t, mv.Drift, Drift{Kind: models.KindStartedFlagLag, Detail: "ledger session started, local flag not set"})
}

func TestClose(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	res := e.create(t)
	id := res.Session.ID

	_, err := e.sessions.Close(ctx, id)
	require.ErrorIs(t, err, common.ErrConflict, "never started")

	_, err = e.sessions.Start(ctx, id, res.AdminSecret)
	require.NoError(t, err)

	_, err = e.sessions.Close(ctx, id)
	require.ErrorIs(t, err, common.ErrConflict, "still open")

	e.clock.Advance(25 * time.Hour)
	s, err := e.sessions.Close(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusClosed, s.Status)

	s, err = e.sessions.Close(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusClosed, s.Status)

	_, err = e.sessions.Start(ctx, id, res.AdminSecret)
	require.ErrorIs(t, err, common.ErrConflict)
}

func TestCloseExpired(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	started := e.create(t)
	idle := e.create(t)
	_, err := e.sessions.Start(ctx, started.Session.ID, started.AdminSecret)
	require.NoError(t, err)

	n, err := e.sessions.CloseExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	e.clock.Advance(48 * time.Hour)
	n, err = e.sessions.CloseExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := e.sessions.Get(ctx, idle.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCreated, got.Status)
}

func TestArchive_IsTerminalAndIdempotent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	res := e.create(t)
	id := res.Session.ID

	s, err := e.sessions.Archive(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusArchived, s.Status)
	assert.True(t, s.Archived)

	s, err = e.sessions.Archive(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusArchived, s.Status)

	_, err = e.sessions.UpdateDetails(ctx, id, "new", "")
	require.ErrorIs(t, err, common.ErrConflict)
	_, err = e.sessions.Start(ctx, id, res.AdminSecret)
	require.ErrorIs(t, err, common.ErrConflict)
	_, err = e.sessions.CastVote(ctx, id, "A", "0x00")
	require.ErrorIs(t, err, common.ErrConflict)
	_, err = e.issuer.RegisterVoters(ctx, id, res.AdminSecret, []models.Voter{voter("u1")})
	require.ErrorIs(t, err, common.ErrConflict)
	assert.Zero(t, e.gw.votes.Load())
}

func TestUpdateDetails(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	res := e.create(t)

	_, err := e.sessions.UpdateDetails(ctx, res.Session.ID, "  ", "d")
	require.ErrorIs(t, err, common.ErrValidation)

	s, err := e.sessions.UpdateDetails(ctx, res.Session.ID, "Renamed", "details")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", s.Title)
	assert.Equal(t, "details", s.Description)
	assert.Equal(t, []string{"A", "B"}, s.Candidates)

	_, err = e.sessions.UpdateDetails(ctx, "missing", "x", "")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestDelete(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	res := e.create(t)
	_, err := e.issuer.RegisterVoters(ctx, res.Session.ID, res.AdminSecret, []models.Voter{voter("u1")})
	require.NoError(t, err)

	require.NoError(t, e.sessions.Delete(ctx, res.Session.ID))
	assert.Empty(t, e.store.ticketsFor(res.Session.ID))
	require.ErrorIs(t, e.sessions.Delete(ctx, res.Session.ID), common.ErrNotFound)
}

func TestReset_RunsInOneTransaction(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	st := newMemStore()
	st.sessions["s1"] = &models.VotingSession{ID: "s1"}
	st.sessions["s2"] = &models.VotingSession{ID: "s2"}
	st.tickets["t1"] = &models.Ticket{ID: "t1", SessionID: "s1"}

	svc := NewSessionService(db, fakeManager{st}, nil, logging.NewNop())

	mock.ExpectBegin()
	mock.ExpectCommit()

	report, err := svc.Reset(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &ResetReport{Sessions: 2, Tickets: 1}, report)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReset_BeginError(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	svc := NewSessionService(db, fakeManager{newMemStore()}, nil, logging.NewNop())
	mock.ExpectBegin().WillReturnError(errors.New("begin failed"))

	_, err = svc.Reset(context.Background())
	require.Error(t, err)
	assert.Regexp(t, regexp.MustCompile("begin failed"), err.Error())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCastVote_Precheck(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	res := e.create(t)

	_, err := e.sessions.CastVote(ctx, res.Session.ID, "", "0x01")
	require.ErrorIs(t, err, common.ErrValidation)
	_, err = e.sessions.CastVote(ctx, "missing", "A", "0x01")
	require.ErrorIs(t, err, common.ErrNotFound)

	e.clock.Advance(25 * time.Hour)
	_, err = e.sessions.CastVote(ctx, res.Session.ID, "A", "0x01")
	require.ErrorIs(t, err, ledger.ErrSessionExpired)
	assert.Zero(t, e.gw.votes.Load())
}
