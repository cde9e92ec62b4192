// Package client talks to the coordinator's JSON API on behalf of ballotctl.
//
// # Overview
//
// HTTPClient wraps net/http with the operator bearer token, encodes requests
// from the api/v1 types and unwraps the {status, message, data} envelope of
// every reply.
//
// # Error Handling
//
// Error replies become *APIError. It matches the common sentinels by HTTP
// status and code, and ledger errors by their ledger code, so callers can
// write errors.Is(err, ledger.ErrTokenReused) or errors.Is(err,
// common.ErrNoNewVoters) on the client side too. Transport failures are
// wrapped in ErrUnavailable.
package client
