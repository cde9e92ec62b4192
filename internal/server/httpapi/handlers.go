package httpapi

import (
	"context"
	"fmt"
	"net/http"

	v1 "github.com/dmitrijs2005/ballotkeeper/internal/api/v1"
	"github.com/dmitrijs2005/ballotkeeper/internal/common"
	"github.com/dmitrijs2005/ballotkeeper/internal/server/models"
	"github.com/dmitrijs2005/ballotkeeper/internal/server/services"
	"github.com/gorilla/mux"
)

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, r, fmt.Errorf("%w: no route %s %s", common.ErrNotFound, r.Method, r.URL.Path))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Ledger.Ping(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, "ok", v1.Health{Ledger: "connected"})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Sessions.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]v1.Session, 0, len(list))
	for _, sess := range list {
		out = append(out, toSessionSummary(sess))
	}
	s.writeJSON(w, r, http.StatusOK, "", out)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req v1.CreateSession
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.deps.Sessions.Create(r.Context(), services.CreateSessionInput{
		Title:       req.Title,
		Description: req.Description,
		Candidates:  req.Candidates,
		EndTime:     req.EndTime,
		CreatedBy:   operatorFrom(r.Context()),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusCreated, "session created; store the admin secret, it is shown once",
		v1.CreateSessionReply{Session: toSession(res.Session), AdminSecret: res.AdminSecret})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	rep, err := s.deps.Sessions.Reset(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, "local state reset; ledger sessions are unchanged",
		v1.ResetReply{Sessions: rep.Sessions, Tickets: rep.Tickets})
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	mv, err := s.deps.Reader.View(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, "", toView(mv))
}

func (s *Server) handleVote(w http.ResponseWriter, r *http.Request) {
	var req v1.Vote
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	receipt, err := s.deps.Sessions.CastVote(r.Context(), mux.Vars(r)["id"], req.Candidate, req.Token)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, "vote recorded", v1.VoteReply{TxRef: receipt.TxRef})
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req v1.UpdateSession
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	sess, err := s.deps.Sessions.UpdateDetails(r.Context(), mux.Vars(r)["id"], req.Title, req.Description)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, "session updated", toSession(sess))
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Sessions.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusNoContent, "", nil)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req v1.AdminSecret
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	sess, err := s.deps.Sessions.Start(r.Context(), mux.Vars(r)["id"], req.AdminSecret)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, "session started", toSession(sess))
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, "session closed", s.deps.Sessions.Close)
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, "session archived", s.deps.Sessions.Archive)
}

func (s *Server) transition(w http.ResponseWriter, r *http.Request, msg string,
	fn func(ctx context.Context, id string) (*models.VotingSession, error)) {
	sess, err := fn(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, msg, toSession(sess))
}

func (s *Server) handleRegisterGroup(w http.ResponseWriter, r *http.Request) {
	var req v1.AdminSecret
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	vars := mux.Vars(r)
	voters, err := s.deps.Roster.FromGroup(r.Context(), vars["group"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rep, err := s.deps.Issuer.RegisterVoters(r.Context(), vars["id"], req.AdminSecret, voters)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, "group registered", toRegisterReply(rep, nil))
}

func (s *Server) handleRegisterRows(w http.ResponseWriter, r *http.Request) {
	var req v1.UploadVoters
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	rows := make([]models.VoterRow, 0, len(req.Rows))
	for _, row := range req.Rows {
		rows = append(rows, models.VoterRow{Name: row.Name, Email: row.Email})
	}
	voters, skipped, err := s.deps.Roster.FromRows(r.Context(), rows)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rep, err := s.deps.Issuer.RegisterVoters(r.Context(), mux.Vars(r)["id"], req.AdminSecret, voters)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, "voters registered", toRegisterReply(rep, skipped))
}

func (s *Server) handleVerifySecret(w http.ResponseWriter, r *http.Request) {
	var req v1.AdminSecret
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	ok, err := s.deps.Sessions.VerifyAdminSecret(r.Context(), mux.Vars(r)["id"], req.AdminSecret)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, "", v1.VerifySecretReply{Valid: ok})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if s.deps.Exporter == nil {
		s.writeError(w, r, fmt.Errorf("%w: results export is not configured", common.ErrConflict))
		return
	}
	res, err := s.deps.Exporter.Export(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, "results exported", v1.ExportReply{Key: res.Key, URL: res.URL})
}

func (s *Server) handleReconciliation(w http.ResponseWriter, r *http.Request) {
	items, err := s.deps.Reader.ListOpen(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]v1.ReconciliationItem, 0, len(items))
	for _, it := range items {
		out = append(out, toItem(it))
	}
	s.writeJSON(w, r, http.StatusOK, "", out)
}
