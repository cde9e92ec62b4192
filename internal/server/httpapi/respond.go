package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	v1 "github.com/dmitrijs2005/ballotkeeper/internal/api/v1"
	"github.com/dmitrijs2005/ballotkeeper/internal/common"
	"github.com/dmitrijs2005/ballotkeeper/internal/ledger"
)

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, msg string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if status == http.StatusNoContent {
		return
	}
	if err := json.NewEncoder(w).Encode(v1.Response{Status: v1.StatusSuccess, Message: msg, Data: data}); err != nil {
		s.logger.Error(r.Context(), "encode reply", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		if code == v1.CodeInternal {
			msg = "internal error"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v1.Response{Status: v1.StatusError, Message: msg, Code: code})
}

// classify maps an error to an HTTP status and a reply code. Ledger errors
// keep their own code.
func classify(err error) (int, string) {
	var le *ledger.Error
	hasLedger := errors.As(err, &le)

	switch {
	case errors.Is(err, common.ErrValidation):
		return http.StatusBadRequest, v1.CodeValidation
	case errors.Is(err, common.ErrUnauthorized),
		errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrTokenExpired):
		return http.StatusUnauthorized, v1.CodeUnauthorized
	case errors.Is(err, common.ErrNoNewVoters):
		return http.StatusNotFound, v1.CodeNoNewVoters
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound, v1.CodeNotFound
	case errors.Is(err, common.ErrConflict):
		if hasLedger {
			return http.StatusConflict, string(le.Code)
		}
		return http.StatusConflict, v1.CodeConflict
	case errors.Is(err, common.ErrOrphanedLedgerSession):
		return http.StatusInternalServerError, v1.CodeOrphaned
	case errors.Is(err, ledger.ErrLedgerUnavailable):
		return http.StatusServiceUnavailable, string(ledger.CodeUnavailable)
	case hasLedger:
		return http.StatusUnprocessableEntity, string(le.Code)
	default:
		return http.StatusInternalServerError, v1.CodeInternal
	}
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty request body", common.ErrValidation)
		}
		return fmt.Errorf("%w: %v", common.ErrValidation, err)
	}
	return nil
}
