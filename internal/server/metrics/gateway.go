package metrics

import (
	"context"
	"time"

	"github.com/dmitrijs2005/ballotkeeper/internal/ledger"
)

// InstrumentedGateway counts and times every call to the wrapped gateway.
type InstrumentedGateway struct {
	next ledger.Gateway
	m    *Metrics
}

var _ ledger.Gateway = (*InstrumentedGateway)(nil)

func InstrumentGateway(next ledger.Gateway, m *Metrics) *InstrumentedGateway {
	return &InstrumentedGateway{next: next, m: m}
}

func (g *InstrumentedGateway) observe(method string, start time.Time, err error) {
	g.m.LedgerCall(method, err, time.Since(start))
}

func (g *InstrumentedGateway) CreateSession(ctx context.Context, candidates []string, endTime time.Time) (_ *ledger.CreateResult, err error) {
	defer func(start time.Time) { g.observe("create_session", start, err) }(time.Now())
	return g.next.CreateSession(ctx, candidates, endTime)
}

func (g *InstrumentedGateway) IssueTokens(ctx context.Context, sessionID, adminSecret string, count int) (_ []string, err error) {
	defer func(start time.Time) { g.observe("issue_tokens", start, err) }(time.Now())
	return g.next.IssueTokens(ctx, sessionID, adminSecret, count)
}

func (g *InstrumentedGateway) StartSession(ctx context.Context, sessionID, adminSecret string) (err error) {
	defer func(start time.Time) { g.observe("start_session", start, err) }(time.Now())
	return g.next.StartSession(ctx, sessionID, adminSecret)
}

func (g *InstrumentedGateway) CastVote(ctx context.Context, sessionID, candidate, token string) (_ *ledger.Receipt, err error) {
	defer func(start time.Time) { g.observe("cast_vote", start, err) }(time.Now())
	return g.next.CastVote(ctx, sessionID, candidate, token)
}

func (g *InstrumentedGateway) SessionView(ctx context.Context, sessionID string) (_ *ledger.SessionView, err error) {
	defer func(start time.Time) { g.observe("session_view", start, err) }(time.Now())
	return g.next.SessionView(ctx, sessionID)
}

func (g *InstrumentedGateway) Tally(ctx context.Context, sessionID, candidate string) (_ uint64, err error) {
	defer func(start time.Time) { g.observe("tally", start, err) }(time.Now())
	return g.next.Tally(ctx, sessionID, candidate)
}

func (g *InstrumentedGateway) ValidAdminSecret(ctx context.Context, sessionID, adminSecret string) (_ bool, err error) {
	defer func(start time.Time) { g.observe("valid_admin_secret", start, err) }(time.Now())
	return g.next.ValidAdminSecret(ctx, sessionID, adminSecret)
}

func (g *InstrumentedGateway) Ping(ctx context.Context) (err error) {
	defer func(start time.Time) { g.observe("ping", start, err) }(time.Now())
	return g.next.Ping(ctx)
}

func (g *InstrumentedGateway) Close() error {
	return g.next.Close()
}
