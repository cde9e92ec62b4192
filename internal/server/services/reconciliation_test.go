package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/ballotkeeper/internal/common"
	"github.com/dmitrijs2005/ballotkeeper/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestView_TallyOnlyAfterStart(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	res := e.create(t)

	mv, err := e.reader.View(ctx, res.Session.ID)
	require.NoError(t, err)
	assert.True(t, mv.Ledger.Exists)
	assert.Nil(t, mv.Tally)
	assert.Empty(t, mv.Drift)

	_, err = e.sessions.Start(ctx, res.Session.ID, res.AdminSecret)
	require.NoError(t, err)
	mv, err = e.reader.View(ctx, res.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]uint64{"A": 0, "B": 0}, mv.Tally)
}

func TestView_MissingLedgerSession(t *testing.T) {
	e := newEnv(t)
	e.store.sessions["local"] = &models.VotingSession{
		ID: "local", LedgerSessionID: "no-such-session", Candidates: []string{"A", "B"},
		Status: models.StatusCreated, EndTime: e.clock.Now().Add(time.Hour),
	}

	mv, err := e.reader.View(context.Background(), "local")
	require.NoError(t, err)
	require.Len(t, mv.Drift, 1)
	assert.Equal(t, models.KindMissingLedgerSession, mv.Drift[0].Kind)
}

func TestView_NotFound(t *testing.T) {
	e := newEnv(t)
	_, err := e.reader.View(context.Background(), "missing")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestSweep_RecordsEachDriftOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	res := e.create(t)
	e.store.insertErr["u2"] = errors.New("db error: disk full")
	_, err := e.issuer.RegisterVoters(ctx, res.Session.ID, res.AdminSecret, []models.Voter{voter("u1"), voter("u2")})
	require.NoError(t, err)

	n, err := e.reader.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = e.reader.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	items, err := e.reader.ListOpen(ctx)
	require.NoError(t, err)
	kinds := map[models.ReconciliationKind]int{}
	for _, it := range items {
		kinds[it.Kind]++
	}
	assert.Equal(t, map[models.ReconciliationKind]int{
		models.KindOrphanedLedgerToken:  1,
		models.KindOrphanedLedgerTokens: 1,
	}, kinds)
}

func TestSweep_ChangedCountsKeepOneItem(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	res := e.create(t)
	e.store.insertErr["u2"] = errors.New("db error: disk full")
	e.store.insertErr["u3"] = errors.New("db error: disk full")

	_, err := e.issuer.RegisterVoters(ctx, res.Session.ID, res.AdminSecret, []models.Voter{voter("u1"), voter("u2")})
	require.NoError(t, err)
	n, err := e.reader.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = e.issuer.RegisterVoters(ctx, res.Session.ID, res.AdminSecret, []models.Voter{voter("u3")})
	require.NoError(t, err)
	mv, err := e.reader.View(ctx, res.Session.ID)
	require.NoError(t, err)
	require.Len(t, mv.Drift, 1)
	assert.Equal(t, "ledger holds 3 tokens, 1 tickets recorded", mv.Drift[0].Detail)

	n, err = e.reader.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	items, err := e.reader.ListOpen(ctx)
	require.NoError(t, err)
	var drift []models.ReconciliationItem
	for _, it := range items {
		if it.Kind == models.KindOrphanedLedgerTokens {
			drift = append(drift, it)
		}
	}
	require.Len(t, drift, 1)
	assert.Equal(t, "ledger holds 2 tokens, 1 tickets recorded", drift[0].Detail)
}

func TestSweep_SkipsArchived(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.store.sessions["gone"] = &models.VotingSession{
		ID: "gone", LedgerSessionID: "no-such-session", Status: models.StatusArchived, Archived: true,
	}

	n, err := e.reader.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestExport(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	res := e.create(t)
	id := res.Session.ID

	_, err := e.exporter.Export(ctx, id)
	require.ErrorIs(t, err, common.ErrConflict)

	_, err = e.sessions.Start(ctx, id, res.AdminSecret)
	require.NoError(t, err)
	e.clock.Advance(25 * time.Hour)
	_, err = e.sessions.Close(ctx, id)
	require.NoError(t, err)

	out, err := e.exporter.Export(ctx, id)
	require.NoError(t, err)
	assert.Regexp(t, `^results/`+id+`/\d{8}T\d{6}Z\.json$`, out.Key)
	assert.Contains(t, out.URL, out.Key)

	doc, ok := e.objects.objects[out.Key].(*ResultsExport)
	require.True(t, ok)
	assert.Equal(t, map[string]uint64{"A": 0, "B": 0}, doc.Tally)
	assert.Equal(t, []string{"A", "B"}, doc.Candidates)
}

func TestExport_StoreError(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	res := e.create(t)
	_, err := e.sessions.Start(ctx, res.Session.ID, res.AdminSecret)
	require.NoError(t, err)
	e.clock.Advance(25 * time.Hour)
	_, err = e.sessions.Close(ctx, res.Session.ID)
	require.NoError(t, err)

	e.objects.putErr = errors.New("bucket gone")
	_, err = e.exporter.Export(ctx, res.Session.ID)
	require.EqualError(t, err, "bucket gone")
}
