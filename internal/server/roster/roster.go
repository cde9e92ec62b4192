// Package roster turns raw voter sources (group membership, uploaded rows)
// into resolved, deduplicated voter lists.
package roster

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/dmitrijs2005/ballotkeeper/internal/common"
	"github.com/dmitrijs2005/ballotkeeper/internal/logging"
	"github.com/dmitrijs2005/ballotkeeper/internal/server/models"
	"github.com/dmitrijs2005/ballotkeeper/internal/server/repositories/voters"
)

// SkippedRow is an upload row that could not be resolved to a user.
type SkippedRow struct {
	Row    models.VoterRow
	Reason string
}

type Roster struct {
	voters voters.Repository
	logger logging.Logger
}

func New(repo voters.Repository, logger logging.Logger) *Roster {
	return &Roster{voters: repo, logger: logger.With("module", "roster")}
}

// FromGroup returns the deduplicated members of a group.
func (r *Roster) FromGroup(ctx context.Context, groupID string) ([]models.Voter, error) {
	if strings.TrimSpace(groupID) == "" {
		return nil, fmt.Errorf("%w: group id is required", common.ErrValidation)
	}
	members, err := r.voters.ListByGroup(ctx, groupID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, fmt.Errorf("group %s: %w", groupID, err)
		}
		return nil, err
	}
	return Dedupe(members), nil
}

// FromRows resolves upload rows to existing users by email. Rows without a
// valid email or a matching user are returned as skipped, not as errors.
func (r *Roster) FromRows(ctx context.Context, rows []models.VoterRow) ([]models.Voter, []SkippedRow, error) {
	var (
		out     []models.Voter
		skipped []SkippedRow
	)
	seen := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		email := normalizeEmail(row.Email)
		if _, err := mail.ParseAddress(email); err != nil {
			skipped = append(skipped, SkippedRow{Row: row, Reason: "invalid email"})
			continue
		}
		if _, dup := seen[email]; dup {
			continue
		}
		seen[email] = struct{}{}

		v, err := r.voters.FindByEmail(ctx, email)
		if errors.Is(err, common.ErrNotFound) {
			skipped = append(skipped, SkippedRow{Row: row, Reason: "no such user"})
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		out = append(out, *v)
	}
	if len(skipped) > 0 {
		r.logger.Info(ctx, "upload rows skipped", "skipped", len(skipped), "resolved", len(out))
	}
	return Dedupe(out), skipped, nil
}

// Dedupe keeps the first occurrence of every user id, preserving order.
func Dedupe(in []models.Voter) []models.Voter {
	seen := make(map[string]struct{}, len(in))
	out := make([]models.Voter, 0, len(in))
	for _, v := range in {
		if _, ok := seen[v.UserID]; ok {
			continue
		}
		seen[v.UserID] = struct{}{}
		out = append(out, v)
	}
	return out
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
