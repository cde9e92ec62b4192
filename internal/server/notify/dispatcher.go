// Package notify delivers voter tokens out of band.
package notify

import (
	"context"
	"errors"
)

// ErrDisabled is returned by a dispatcher with no mail server configured.
var ErrDisabled = errors.New("notifications disabled")

// Dispatcher sends one voter its token. A failure only affects that voter.
type Dispatcher interface {
	SendVotingToken(ctx context.Context, email, sessionID, token string) error
}

// Message is one notification in a batch. Token is plaintext and must not
// outlive the batch.
type Message struct {
	TicketID  string
	Email     string
	SessionID string
	Token     string
}

// Result is the outcome for the Message at the same index.
type Result struct {
	TicketID string
	Email    string
	Err      error
}

// DispatchBatch sends msgs in order and reports every outcome. It never
// stops early on a failed send; once ctx is done the remaining messages fail
// with the context error.
func DispatchBatch(ctx context.Context, d Dispatcher, msgs []Message) []Result {
	results := make([]Result, len(msgs))
	for i, m := range msgs {
		results[i] = Result{TicketID: m.TicketID, Email: m.Email}
		if err := ctx.Err(); err != nil {
			results[i].Err = err
			continue
		}
		results[i].Err = d.SendVotingToken(ctx, m.Email, m.SessionID, m.Token)
	}
	return results
}

// Failed counts results with an error.
func Failed(results []Result) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}
