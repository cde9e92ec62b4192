// Package ledger describes the coordinator's view of the external ballot
// ledger: the append-only system of record for voter tokens, votes and
// tallies. Adapters live in subpackages; this package holds the contract,
// the typed ledger errors and the hashing shared by every adapter.
package ledger

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/dmitrijs2005/ballotkeeper/internal/common"
)

const (
	// MinCandidates is the smallest ballot the ledger accepts.
	MinCandidates = 2
	// MaxCandidateLen is the byte length of a candidate slot on the ledger.
	MaxCandidateLen = 32
)

// Gateway is a typed client for the ledger. It carries no business logic.
//
// Every call is a remote call made at most once. StartSession, SessionView,
// Tally, ValidAdminSecret and Ping are naturally idempotent; the others are
// not and must never be retried blindly. A cancelled or timed out call
// returns ErrLedgerUnavailable and never counts as success.
type Gateway interface {
	CreateSession(ctx context.Context, candidates []string, endTime time.Time) (*CreateResult, error)
	IssueTokens(ctx context.Context, sessionID, adminSecret string, count int) ([]string, error)
	StartSession(ctx context.Context, sessionID, adminSecret string) error
	CastVote(ctx context.Context, sessionID, candidate, token string) (*Receipt, error)
	SessionView(ctx context.Context, sessionID string) (*SessionView, error)
	Tally(ctx context.Context, sessionID, candidate string) (uint64, error)
	ValidAdminSecret(ctx context.Context, sessionID, adminSecret string) (bool, error)
	Ping(ctx context.Context) error
	Close() error
}

// CreateResult is returned by CreateSession. AdminSecret is handed to the
// caller exactly once; only AdminSecretHash reaches the ledger.
type CreateResult struct {
	SessionID       string
	AdminSecret     string
	AdminSecretHash string
	TxRef           string
}

// Receipt identifies the ledger transaction that recorded a vote.
type Receipt struct {
	TxRef string
}

// SessionView is the ledger's own record of a session. It is authoritative
// for everything vote-related and is never persisted locally.
type SessionView struct {
	Exists      bool
	VotersTotal uint64
	VotesCast   uint64
	Started     bool
	EndTime     time.Time
}

// Expired reports whether the ledger no longer accepts votes at now.
func (v *SessionView) Expired(now time.Time) bool {
	return !v.EndTime.IsZero() && !now.Before(v.EndTime)
}

// ValidateCandidates checks a ballot against the ledger's limits: at least
// two entries, each non-empty, unique and at most MaxCandidateLen bytes.
func ValidateCandidates(candidates []string) error {
	if len(candidates) < MinCandidates {
		return fmt.Errorf("%w: at least %d candidates are required", common.ErrValidation, MinCandidates)
	}
	seen := make(map[string]struct{}, len(candidates))
	for i, c := range candidates {
		if c == "" {
			return fmt.Errorf("%w: candidate #%d is empty", common.ErrValidation, i+1)
		}
		if !utf8.ValidString(c) {
			return fmt.Errorf("%w: candidate #%d is not valid UTF-8", common.ErrValidation, i+1)
		}
		if len(c) > MaxCandidateLen {
			return fmt.Errorf("%w: candidate %q exceeds %d bytes", common.ErrValidation, c, MaxCandidateLen)
		}
		if _, dup := seen[c]; dup {
			return fmt.Errorf("%w: duplicate candidate %q", common.ErrValidation, c)
		}
		seen[c] = struct{}{}
	}
	return nil
}
