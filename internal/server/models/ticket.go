package models

import "time"

type TicketStatus string

const (
	TicketPending TicketStatus = "pending"
	TicketIssued  TicketStatus = "issued"
	TicketFailed  TicketStatus = "failed"
)

type NotificationStatus string

const (
	NotificationPending   NotificationStatus = "pending"
	NotificationSent      NotificationStatus = "sent"
	NotificationRetryable NotificationStatus = "retryable"
)

// Ticket binds one voter to one session. Only the token fingerprint is kept.
type Ticket struct {
	ID                 string
	SessionID          string
	UserID             string
	Status             TicketStatus
	TokenFingerprint   string
	NotificationStatus NotificationStatus
	NotificationError  string
	CreatedAt          time.Time
}

// Voter is a resolved user eligible for a ticket.
type Voter struct {
	UserID string
	Name   string
	Email  string
}

// VoterRow is one parsed "name;email" upload row.
type VoterRow struct {
	Name  string
	Email string
}
