// Package v1 holds the request and reply types of the coordinator's HTTP
// API. Both the server and the CLI client use them.
package v1

import "time"

const (
	APIRoute = "/api/v1"

	RouteHealth  = "/health"
	RouteMetrics = "/metrics"

	RouteVotings        = "/votings"
	RouteVoting         = "/votings/{id}"
	RouteStart          = "/votings/{id}/start"
	RouteClose          = "/votings/{id}/close"
	RouteArchive        = "/votings/{id}/archive"
	RouteGroupVoters    = "/votings/{id}/group/{group}"
	RouteUploadVoters   = "/votings/{id}/voters"
	RouteVerifySecret   = "/votings/{id}/admin-secret/verify"
	RouteExport         = "/votings/{id}/export"
	RouteReconciliation = "/reconciliation"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Error codes carried in the code field of an error reply.
const (
	CodeValidation   = "validation"
	CodeUnauthorized = "unauthorized"
	CodeNotFound     = "not_found"
	CodeNoNewVoters  = "no_new_voters"
	CodeConflict     = "conflict"
	CodeOrphaned     = "orphaned_ledger_session"
	CodeInternal     = "internal"
)

// Response is the envelope of every reply. Ledger errors carry the ledger's
// own code, such as token_reused.
type Response struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type Session struct {
	ID              string    `json:"id"`
	LedgerSessionID string    `json:"ledger_session_id"`
	Title           string    `json:"title"`
	Description     string    `json:"description,omitempty"`
	Candidates      []string  `json:"candidates"`
	EndTime         time.Time `json:"end_time"`
	CreatedBy       string    `json:"created_by"`
	CreationTx      string    `json:"creation_tx"`
	Status          string    `json:"status"`
	Archived        bool      `json:"archived"`
	Started         bool      `json:"started"`
	TicketCount     *int      `json:"ticket_count,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type CreateSession struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Candidates  []string  `json:"candidates"`
	EndTime     time.Time `json:"end_time"`
}

// CreateSessionReply carries the admin secret. The server keeps no copy.
type CreateSessionReply struct {
	Session     Session `json:"session"`
	AdminSecret string  `json:"admin_secret"`
}

type UpdateSession struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type AdminSecret struct {
	AdminSecret string `json:"admin_secret"`
}

type VerifySecretReply struct {
	Valid bool `json:"valid"`
}

type Vote struct {
	Candidate string `json:"candidate"`
	Token     string `json:"token"`
}

type VoteReply struct {
	TxRef string `json:"tx_ref"`
}

type VoterRow struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type UploadVoters struct {
	AdminSecret string     `json:"admin_secret"`
	Rows        []VoterRow `json:"rows"`
}

type VoterResult struct {
	UserID  string `json:"user_id"`
	Email   string `json:"email"`
	Outcome string `json:"outcome"`
	Error   string `json:"error,omitempty"`
}

type SkippedRow struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	Reason string `json:"reason"`
}

type RegisterReply struct {
	SessionID       string        `json:"session_id"`
	Requested       int           `json:"requested"`
	AlreadyTicketed int           `json:"already_ticketed"`
	TokensIssued    int           `json:"tokens_issued"`
	Results         []VoterResult `json:"results"`
	Skipped         []SkippedRow  `json:"skipped,omitempty"`
}

type LedgerView struct {
	Exists      bool      `json:"exists"`
	VotersTotal uint64    `json:"voters_total"`
	VotesCast   uint64    `json:"votes_cast"`
	Started     bool      `json:"started"`
	EndTime     time.Time `json:"end_time"`
}

type Drift struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

type SessionView struct {
	Session              Session           `json:"session"`
	Ledger               LedgerView        `json:"ledger"`
	Tally                map[string]uint64 `json:"tally,omitempty"`
	LocalTickets         int               `json:"local_tickets"`
	PendingNotifications int               `json:"pending_notifications"`
	Drift                []Drift           `json:"drift,omitempty"`
}

type ResetReply struct {
	Sessions int64 `json:"sessions"`
	Tickets  int64 `json:"tickets"`
}

type ExportReply struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

type ReconciliationItem struct {
	ID              string    `json:"id"`
	Kind            string    `json:"kind"`
	SessionID       string    `json:"session_id,omitempty"`
	LedgerSessionID string    `json:"ledger_session_id,omitempty"`
	Detail          string    `json:"detail"`
	CreatedAt       time.Time `json:"created_at"`
}

type Health struct {
	Ledger string `json:"ledger"`
}
