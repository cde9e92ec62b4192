package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionStatus_CanMoveTo(t *testing.T) {
	all := []SessionStatus{StatusCreated, StatusVotersRegistered, StatusStarted, StatusClosed, StatusArchived}
	legal := map[[2]SessionStatus]bool{
		{StatusCreated, StatusVotersRegistered}:  true,
		{StatusCreated, StatusStarted}:           true,
		{StatusVotersRegistered, StatusStarted}:  true,
		{StatusStarted, StatusClosed}:            true,
		{StatusCreated, StatusArchived}:          true,
		{StatusVotersRegistered, StatusArchived}: true,
		{StatusStarted, StatusArchived}:          true,
		{StatusClosed, StatusArchived}:           true,
	}
	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, legal[[2]SessionStatus{from, to}], from.CanMoveTo(to), "%s -> %s", from, to)
		}
	}
}

func TestSessionStatus_AtLeast(t *testing.T) {
	assert.True(t, StatusStarted.AtLeast(StatusCreated))
	assert.True(t, StatusStarted.AtLeast(StatusStarted))
	assert.False(t, StatusVotersRegistered.AtLeast(StatusStarted))
	assert.True(t, StatusArchived.Valid())
	assert.False(t, SessionStatus("draft").Valid())
}

func TestReconciliationKind_Condition(t *testing.T) {
	for _, k := range []ReconciliationKind{KindOrphanedLedgerTokens, KindOrphanedTickets, KindStartedFlagLag, KindMissingLedgerSession} {
		assert.True(t, k.Condition(), k)
	}
	for _, k := range []ReconciliationKind{KindOrphanedLedgerSession, KindOrphanedLedgerToken} {
		assert.False(t, k.Condition(), k)
	}
}
