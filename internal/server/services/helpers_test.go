package services

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/ballotkeeper/internal/ledger"
	"github.com/dmitrijs2005/ballotkeeper/internal/ledger/devledger"
	"github.com/dmitrijs2005/ballotkeeper/internal/logging"
	"github.com/dmitrijs2005/ballotkeeper/internal/server/models"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// spyGateway counts the calls that must never be repeated.
type spyGateway struct {
	ledger.Gateway
	creates atomic.Int32
	issues  atomic.Int32
	votes   atomic.Int32
}

func (g *spyGateway) CreateSession(ctx context.Context, candidates []string, end time.Time) (*ledger.CreateResult, error) {
	g.creates.Add(1)
	return g.Gateway.CreateSession(ctx, candidates, end)
}

func (g *spyGateway) IssueTokens(ctx context.Context, id, secret string, count int) ([]string, error) {
	g.issues.Add(1)
	return g.Gateway.IssueTokens(ctx, id, secret, count)
}

func (g *spyGateway) CastVote(ctx context.Context, id, candidate, token string) (*ledger.Receipt, error) {
	g.votes.Add(1)
	return g.Gateway.CastVote(ctx, id, candidate, token)
}

type env struct {
	clock    *clock
	store    *memStore
	gw       *spyGateway
	mail     *recordingDispatcher
	sessions *SessionService
	issuer   *TokenIssuer
	reader   *ReconciliationReader
	objects  *memObjectStore
	exporter *ResultsExporter
}

func newEnv(t *testing.T) *env {
	t.Helper()
	c := &clock{now: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)}
	dl, err := devledger.Open(context.Background(), ":memory:", devledger.WithClock(c.Now))
	require.NoError(t, err)
	t.Cleanup(func() { _ = dl.Close() })

	e := &env{
		clock:   c,
		store:   newMemStore(),
		gw:      &spyGateway{Gateway: dl},
		mail:    newRecordingDispatcher(),
		objects: &memObjectStore{},
	}
	rm := fakeManager{e.store}
	logger := logging.NewNop()

	e.sessions = NewSessionService(nil, rm, e.gw, logger)
	e.sessions.now = c.Now
	e.issuer = NewTokenIssuer(nil, rm, e.gw, e.mail, logger, nil)
	e.issuer.now = c.Now
	e.reader = NewReconciliationReader(nil, rm, e.gw, logger, nil)
	e.exporter = NewResultsExporter(e.reader, e.objects, logger)
	e.exporter.now = c.Now
	return e
}

func (e *env) create(t *testing.T, candidates ...string) *CreateSessionResult {
	t.Helper()
	if len(candidates) == 0 {
		candidates = []string{"A", "B"}
	}
	res, err := e.sessions.Create(context.Background(), CreateSessionInput{
		Title:      "Board election",
		Candidates: candidates,
		EndTime:    e.clock.Now().Add(24 * time.Hour),
		CreatedBy:  "admin-1",
	})
	require.NoError(t, err)
	return res
}

func voter(id string) models.Voter {
	return models.Voter{UserID: id, Name: "User " + id, Email: id + "@example.com"}
}
