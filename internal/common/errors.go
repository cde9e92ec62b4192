// Package common defines shared constants and sentinel errors used across
// the coordinator, its repositories and its API surfaces. Callers should use
// errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	// Service-level error categories.
	ErrValidation   = errors.New("validation error")
	ErrConflict     = errors.New("conflict")
	ErrInternal     = errors.New("internal error")
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNoNewVoters is returned when every requested voter already holds a
	// ticket for the session. Callers expect progress, so this is an error.
	ErrNoNewVoters = errors.New("no new voters to register")

	// ErrReconciliation marks non-fatal drift between the local store and
	// the ledger.
	ErrReconciliation = errors.New("reconciliation warning")

	// ErrOrphanedLedgerSession is returned when a session was created on the
	// ledger but could not be persisted locally. It must not be retried as a
	// new session creation.
	ErrOrphanedLedgerSession = errors.New("ledger session created but not persisted")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)
