package client

import (
	"errors"
	"fmt"
	"net/http"

	v1 "github.com/dmitrijs2005/ballotkeeper/internal/api/v1"
	"github.com/dmitrijs2005/ballotkeeper/internal/common"
	"github.com/dmitrijs2005/ballotkeeper/internal/ledger"
)

var ErrUnavailable = errors.New("server unavailable")

// APIError is an error reply of the coordinator.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%d %s", e.Status, e.Code)
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

// Is maps the reply back onto the sentinels the server classified it from.
func (e *APIError) Is(target error) bool {
	if le, ok := target.(*ledger.Error); ok {
		if le.Code == "" {
			return isLedgerCode(e.Code)
		}
		return le.Code == ledger.Code(e.Code)
	}

	switch target {
	case common.ErrValidation:
		return e.Code == v1.CodeValidation
	case common.ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case common.ErrNoNewVoters:
		return e.Code == v1.CodeNoNewVoters
	case common.ErrNotFound:
		return e.Code == v1.CodeNotFound
	case common.ErrConflict:
		return e.Status == http.StatusConflict
	case common.ErrOrphanedLedgerSession:
		return e.Code == v1.CodeOrphaned
	case common.ErrInternal:
		return e.Code == v1.CodeInternal
	}
	return false
}

func isLedgerCode(code string) bool {
	switch ledger.Code(code) {
	case ledger.CodeUnavailable, ledger.CodeInvalidAdminSecret, ledger.CodeSessionAlreadyStarted,
		ledger.CodeSessionNotStarted, ledger.CodeSessionExpired, ledger.CodeSessionNotFound,
		ledger.CodeTokenInvalid, ledger.CodeTokenReused, ledger.CodeInvalidCandidate, ledger.CodeRejected:
		return true
	}
	return false
}
