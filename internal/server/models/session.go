package models

import "time"

// SessionStatus is the persisted lifecycle state of a voting session. Draft
// exists only before the ledger call and is never stored.
type SessionStatus string

const (
	StatusCreated          SessionStatus = "created"
	StatusVotersRegistered SessionStatus = "voters_registered"
	StatusStarted          SessionStatus = "started"
	StatusClosed           SessionStatus = "closed"
	StatusArchived         SessionStatus = "archived"
)

var statusRank = map[SessionStatus]int{
	StatusCreated:          1,
	StatusVotersRegistered: 2,
	StatusStarted:          3,
	StatusClosed:           4,
	StatusArchived:         5,
}

func (s SessionStatus) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// CanMoveTo reports whether next is a legal transition from s. Status only
// moves forward one step, except that anything may be archived.
func (s SessionStatus) CanMoveTo(next SessionStatus) bool {
	if s == StatusArchived {
		return false
	}
	switch next {
	case StatusArchived:
		return true
	case StatusVotersRegistered:
		return s == StatusCreated
	case StatusStarted:
		return s == StatusCreated || s == StatusVotersRegistered
	case StatusClosed:
		return s == StatusStarted
	}
	return false
}

// AtLeast reports whether s is at or past other in the lifecycle.
func (s SessionStatus) AtLeast(other SessionStatus) bool {
	return statusRank[s] >= statusRank[other]
}

type VotingSession struct {
	ID              string
	LedgerSessionID string
	Title           string
	Description     string
	Candidates      []string
	EndTime         time.Time
	CreatedBy       string
	CreationTx      string
	Status          SessionStatus
	Archived        bool
	// Started caches the ledger's started flag; the ledger is authoritative.
	Started   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SessionSummary is a session with its local ticket count, as listed.
type SessionSummary struct {
	VotingSession
	TicketCount int
}
