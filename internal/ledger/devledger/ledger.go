// Package devledger is a self-contained ledger.Gateway backed by SQLite. It
// enforces the same rules as the on-chain contract (admin secret hashes,
// single-use token hashes, start and end time) and is meant for local runs
// and end-to-end tests.
package devledger

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/dmitrijs2005/ballotkeeper/internal/dbx"
	"github.com/dmitrijs2005/ballotkeeper/internal/ledger"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed schema/*.sql
var schema embed.FS

// Reason texts mirror the contract's revert messages.
const (
	reasonNoSession     = "Voting does not exist"
	reasonBadAdmin      = "Invalid admin token"
	reasonStarted       = "Voting has already started"
	reasonNotStarted    = "Voting has not started yet"
	reasonExpired       = "Voting is over"
	reasonBadCandidate  = "Invalid candidate"
	reasonBadToken      = "Invalid token"
	reasonReusedToken   = "This token was used previously"
	reasonPastEndTime   = "End time must be in the future"
	reasonNoTokensAsked = "Token count must be positive"
)

type Option func(*Ledger)

// WithClock replaces time.Now, which decides whether a session has expired.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// Ledger implements ledger.Gateway on a single SQLite connection, so every
// write is serialised.
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

var _ ledger.Gateway = (*Ledger)(nil)

// Open opens (and migrates) the SQLite database at dsn. Use ":memory:" for a
// throwaway ledger.
func Open(ctx context.Context, dsn string, opts ...Option) (*Ledger, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open dev ledger: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	l := &Ledger{db: db, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	fsys, err := fs.Sub(schema, "schema")
	if err != nil {
		return err
	}
	p, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return fmt.Errorf("dev ledger migrations: %w", err)
	}
	if _, err := p.Up(ctx); err != nil {
		return fmt.Errorf("dev ledger migrations: %w", err)
	}
	return nil
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

func (l *Ledger) Ping(ctx context.Context) error {
	if err := l.db.PingContext(ctx); err != nil {
		return ledger.Classify(err)
	}
	return nil
}

func (l *Ledger) CreateSession(ctx context.Context, candidates []string, endTime time.Time) (*ledger.CreateResult, error) {
	if err := ledger.ValidateCandidates(candidates); err != nil {
		return nil, ledger.NewError(ledger.CodeRejected, err.Error())
	}
	if !endTime.After(l.now()) {
		return nil, ledger.NewError(ledger.CodeRejected, reasonPastEndTime)
	}

	id, err := ledger.NewSecret()
	if err != nil {
		return nil, err
	}
	secret, err := ledger.NewSecret()
	if err != nil {
		return nil, err
	}
	secretHash, err := ledger.Fingerprint(secret)
	if err != nil {
		return nil, err
	}
	txRef, err := ledger.NewSecret()
	if err != nil {
		return nil, err
	}

	err = dbx.WithTx(ctx, l.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO sessions (id, admin_hash, end_time, tx_ref) VALUES (?, ?, ?, ?)`,
			id, secretHash, endTime.UnixMilli(), txRef); err != nil {
			return err
		}
		for i, c := range candidates {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO candidates (session_id, position, name) VALUES (?, ?, ?)`,
				id, i, c); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, ledger.Classify(err)
	}

	return &ledger.CreateResult{
		SessionID:       id,
		AdminSecret:     secret,
		AdminSecretHash: secretHash,
		TxRef:           txRef,
	}, nil
}

func (l *Ledger) IssueTokens(ctx context.Context, sessionID, adminSecret string, count int) ([]string, error) {
	if count <= 0 {
		return nil, ledger.NewError(ledger.CodeRejected, reasonNoTokensAsked)
	}

	tokens, err := ledger.NewSecrets(count)
	if err != nil {
		return nil, err
	}

	err = dbx.WithTx(ctx, l.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		s, err := loadSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if err := s.authorize(adminSecret); err != nil {
			return err
		}
		if s.started {
			return ledger.NewError(ledger.CodeSessionAlreadyStarted, reasonStarted)
		}
		for _, tok := range tokens {
			hash, err := ledger.Fingerprint(tok)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO tokens (session_id, hash) VALUES (?, ?)`, sessionID, hash); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, ledger.Classify(err)
	}
	return tokens, nil
}

func (l *Ledger) StartSession(ctx context.Context, sessionID, adminSecret string) error {
	err := dbx.WithTx(ctx, l.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		s, err := loadSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if err := s.authorize(adminSecret); err != nil {
			return err
		}
		if s.started {
			return ledger.NewError(ledger.CodeSessionAlreadyStarted, reasonStarted)
		}
		_, err = tx.ExecContext(ctx, `UPDATE sessions SET started = 1 WHERE id = ?`, sessionID)
		return err
	})
	return ledger.Classify(err)
}

func (l *Ledger) CastVote(ctx context.Context, sessionID, candidate, token string) (*ledger.Receipt, error) {
	hash, err := ledger.Fingerprint(token)
	if err != nil {
		return nil, ledger.NewError(ledger.CodeTokenInvalid, reasonBadToken)
	}
	txRef, err := ledger.NewSecret()
	if err != nil {
		return nil, err
	}

	err = dbx.WithTx(ctx, l.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		s, err := loadSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if !l.now().Before(s.endTime) {
			return ledger.NewError(ledger.CodeSessionExpired, reasonExpired)
		}
		if !s.started {
			return ledger.NewError(ledger.CodeSessionNotStarted, reasonNotStarted)
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE candidates SET votes = votes + 1 WHERE session_id = ? AND name = ?`,
			sessionID, candidate)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return ledger.NewError(ledger.CodeInvalidCandidate, reasonBadCandidate)
		}

		// Conditional consume: exactly one caller can flip used from 0 to 1.
		res, err = tx.ExecContext(ctx,
			`UPDATE tokens SET used = 1 WHERE session_id = ? AND hash = ? AND used = 0`,
			sessionID, hash)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 1 {
			return nil
		}

		var exists int
		err = tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM tokens WHERE session_id = ? AND hash = ?`, sessionID, hash).Scan(&exists)
		if err != nil {
			return err
		}
		if exists == 0 {
			return ledger.NewError(ledger.CodeTokenInvalid, reasonBadToken)
		}
		return ledger.NewError(ledger.CodeTokenReused, reasonReusedToken)
	})
	if err != nil {
		return nil, ledger.Classify(err)
	}
	return &ledger.Receipt{TxRef: txRef}, nil
}

func (l *Ledger) SessionView(ctx context.Context, sessionID string) (*ledger.SessionView, error) {
	s, err := loadSession(ctx, l.db, sessionID)
	if errors.Is(err, ledger.ErrSessionNotFound) {
		return &ledger.SessionView{}, nil
	}
	if err != nil {
		return nil, ledger.Classify(err)
	}

	v := &ledger.SessionView{Exists: true, Started: s.started, EndTime: s.endTime}
	err = l.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(used), 0) FROM tokens WHERE session_id = ?`, sessionID).
		Scan(&v.VotersTotal, &v.VotesCast)
	if err != nil {
		return nil, ledger.Classify(err)
	}
	return v, nil
}

func (l *Ledger) Tally(ctx context.Context, sessionID, candidate string) (uint64, error) {
	if _, err := loadSession(ctx, l.db, sessionID); err != nil {
		return 0, ledger.Classify(err)
	}
	var votes uint64
	err := l.db.QueryRowContext(ctx,
		`SELECT votes FROM candidates WHERE session_id = ? AND name = ?`, sessionID, candidate).Scan(&votes)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ledger.NewError(ledger.CodeInvalidCandidate, reasonBadCandidate)
	}
	if err != nil {
		return 0, ledger.Classify(err)
	}
	return votes, nil
}

func (l *Ledger) ValidAdminSecret(ctx context.Context, sessionID, adminSecret string) (bool, error) {
	s, err := loadSession(ctx, l.db, sessionID)
	if err != nil {
		return false, ledger.Classify(err)
	}
	return s.authorize(adminSecret) == nil, nil
}

// Candidates returns the ballot of a session in creation order.
func (l *Ledger) Candidates(ctx context.Context, sessionID string) ([]string, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT name FROM candidates WHERE session_id = ? ORDER BY position`, sessionID)
	if err != nil {
		return nil, ledger.Classify(err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, ledger.Classify(err)
		}
		out = append(out, name)
	}
	return out, ledger.Classify(rows.Err())
}

type session struct {
	adminHash string
	endTime   time.Time
	started   bool
}

func loadSession(ctx context.Context, db dbx.DBTX, id string) (*session, error) {
	var (
		s       session
		endMs   int64
		started int
	)
	err := db.QueryRowContext(ctx,
		`SELECT admin_hash, end_time, started FROM sessions WHERE id = ?`, id).
		Scan(&s.adminHash, &endMs, &started)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.NewError(ledger.CodeSessionNotFound, reasonNoSession)
	}
	if err != nil {
		return nil, err
	}
	s.endTime = time.UnixMilli(endMs)
	s.started = started != 0
	return &s, nil
}

func (s *session) authorize(adminSecret string) error {
	hash, err := ledger.Fingerprint(adminSecret)
	if err != nil || !strings.EqualFold(hash, s.adminHash) {
		return ledger.NewError(ledger.CodeInvalidAdminSecret, reasonBadAdmin)
	}
	return nil
}
