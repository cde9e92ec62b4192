package ledger

import (
	"context"
	"errors"
	"fmt"
)

// Code classifies a ledger failure.
type Code string

const (
	CodeUnavailable           Code = "unavailable"
	CodeInvalidAdminSecret    Code = "invalid_admin_secret"
	CodeSessionAlreadyStarted Code = "session_already_started"
	CodeSessionNotStarted     Code = "session_not_started"
	CodeSessionExpired        Code = "session_expired"
	CodeSessionNotFound       Code = "session_not_found"
	CodeTokenInvalid          Code = "token_invalid"
	CodeTokenReused           Code = "token_reused"
	CodeInvalidCandidate      Code = "invalid_candidate"
	// CodeRejected covers ledger refusals that match no other code.
	CodeRejected Code = "rejected"
)

// Error is a failure reported by the ledger or by the transport to it.
// Reason holds the ledger's own text, verbatim.
type Error struct {
	Code   Code
	Reason string
	Err    error
}

func (e *Error) Error() string {
	msg := "ledger: " + string(e.Code)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by code. A target without a code (ErrLedger)
// matches every ledger error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

var (
	// ErrLedger matches any ledger error.
	ErrLedger = &Error{}

	ErrLedgerUnavailable     = &Error{Code: CodeUnavailable}
	ErrInvalidAdminSecret    = &Error{Code: CodeInvalidAdminSecret}
	ErrSessionAlreadyStarted = &Error{Code: CodeSessionAlreadyStarted}
	ErrSessionNotStarted     = &Error{Code: CodeSessionNotStarted}
	ErrSessionExpired        = &Error{Code: CodeSessionExpired}
	ErrSessionNotFound       = &Error{Code: CodeSessionNotFound}
	ErrTokenInvalid          = &Error{Code: CodeTokenInvalid}
	ErrTokenReused           = &Error{Code: CodeTokenReused}
	ErrInvalidCandidate      = &Error{Code: CodeInvalidCandidate}
)

// NewError builds a ledger error carrying the ledger's reason text.
func NewError(code Code, reason string) *Error {
	return &Error{Code: code, Reason: reason}
}

// Unavailable wraps a transport failure. Cancellation and deadline errors
// end up here too.
func Unavailable(err error) *Error {
	return &Error{Code: CodeUnavailable, Err: err}
}

// FromContext returns ErrLedgerUnavailable wrapping ctx.Err() when ctx is
// done, or nil.
func FromContext(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return Unavailable(err)
	}
	return nil
}

// Classify makes sure err is a ledger error: ledger errors pass through,
// context errors and anything else become ErrLedgerUnavailable.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var le *Error
	if errors.As(err, &le) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Unavailable(err)
	}
	return Unavailable(fmt.Errorf("transport: %w", err))
}
