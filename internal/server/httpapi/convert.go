package httpapi

import (
	v1 "github.com/dmitrijs2005/ballotkeeper/internal/api/v1"
	"github.com/dmitrijs2005/ballotkeeper/internal/server/models"
	"github.com/dmitrijs2005/ballotkeeper/internal/server/roster"
	"github.com/dmitrijs2005/ballotkeeper/internal/server/services"
)

func toSession(s *models.VotingSession) v1.Session {
	return v1.Session{
		ID:              s.ID,
		LedgerSessionID: s.LedgerSessionID,
		Title:           s.Title,
		Description:     s.Description,
		Candidates:      s.Candidates,
		EndTime:         s.EndTime,
		CreatedBy:       s.CreatedBy,
		CreationTx:      s.CreationTx,
		Status:          string(s.Status),
		Archived:        s.Archived,
		Started:         s.Started,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
}

func toSessionSummary(s models.SessionSummary) v1.Session {
	out := toSession(&s.VotingSession)
	n := s.TicketCount
	out.TicketCount = &n
	return out
}

func toView(mv *services.MergedView) v1.SessionView {
	out := v1.SessionView{
		Session:              toSession(mv.Session),
		Tally:                mv.Tally,
		LocalTickets:         mv.LocalTickets,
		PendingNotifications: mv.PendingNotifications,
	}
	if mv.Ledger != nil {
		out.Ledger = v1.LedgerView{
			Exists:      mv.Ledger.Exists,
			VotersTotal: mv.Ledger.VotersTotal,
			VotesCast:   mv.Ledger.VotesCast,
			Started:     mv.Ledger.Started,
			EndTime:     mv.Ledger.EndTime,
		}
	}
	for _, d := range mv.Drift {
		out.Drift = append(out.Drift, v1.Drift{Kind: string(d.Kind), Detail: d.Detail})
	}
	return out
}

func toRegisterReply(rep *services.RegistrationReport, skipped []roster.SkippedRow) v1.RegisterReply {
	out := v1.RegisterReply{
		SessionID:       rep.SessionID,
		Requested:       rep.Requested,
		AlreadyTicketed: rep.AlreadyTicketed,
		TokensIssued:    rep.TokensIssued,
		Results:         make([]v1.VoterResult, 0, len(rep.Results)),
	}
	for _, r := range rep.Results {
		out.Results = append(out.Results, v1.VoterResult{UserID: r.UserID, Email: r.Email, Outcome: r.Outcome, Error: r.Error})
	}
	out.Skipped = toSkipped(skipped)
	return out
}

func toSkipped(skipped []roster.SkippedRow) []v1.SkippedRow {
	var out []v1.SkippedRow
	for _, s := range skipped {
		out = append(out, v1.SkippedRow{Name: s.Row.Name, Email: s.Row.Email, Reason: s.Reason})
	}
	return out
}

func toItem(it models.ReconciliationItem) v1.ReconciliationItem {
	return v1.ReconciliationItem{
		ID:              it.ID,
		Kind:            string(it.Kind),
		SessionID:       it.SessionID,
		LedgerSessionID: it.LedgerSessionID,
		Detail:          it.Detail,
		CreatedAt:       it.CreatedAt,
	}
}
