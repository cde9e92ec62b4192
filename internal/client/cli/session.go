package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	v1 "github.com/dmitrijs2005/ballotkeeper/internal/api/v1"
	"github.com/dmitrijs2005/ballotkeeper/internal/common"
	"github.com/spf13/cobra"
)

func sessionCommand(st *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "session",
		Aliases: []string{"sessions", "voting"},
		Short:   "Manage voting sessions",
	}
	cmd.AddCommand(
		sessionCreateCommand(st),
		sessionListCommand(st),
		sessionShowCommand(st),
		sessionUpdateCommand(st),
		sessionStartCommand(st),
		sessionTransitionCommand(st, "close", "Close a session whose voting window is over", st.closeSession),
		sessionTransitionCommand(st, "archive", "Archive a session; it becomes read-only", st.archiveSession),
		sessionDeleteCommand(st),
		sessionResetCommand(st),
		sessionExportCommand(st),
		sessionVerifySecretCommand(st),
	)
	return cmd
}

func sessionCreateCommand(st *state) *cobra.Command {
	var (
		req      v1.CreateSession
		end      string
		duration time.Duration
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a session on the ledger and register it locally",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case end != "" && duration > 0:
				return fmt.Errorf("%w: use either --end or --duration", common.ErrValidation)
			case end != "":
				t, err := time.Parse(time.RFC3339, end)
				if err != nil {
					return fmt.Errorf("%w: --end: %w", common.ErrValidation, err)
				}
				req.EndTime = t
			case duration > 0:
				req.EndTime = timeNow().Add(duration).Truncate(time.Second)
			default:
				return fmt.Errorf("%w: --end or --duration is required", common.ErrValidation)
			}

			out, err := st.client.CreateSession(cmd.Context(), req)
			if err != nil {
				return err
			}
			return st.emit(cmd, out, func(w io.Writer) {
				printSession(w, &out.Session)
				fmt.Fprintf(w, "\nAdmin secret: %s\n", out.AdminSecret)
				fmt.Fprintln(w, "Store it now. The coordinator keeps no copy and cannot show it again.")
			})
		},
	}
	cmd.Flags().StringVar(&req.Title, "title", "", "session title")
	cmd.Flags().StringVar(&req.Description, "description", "", "session description")
	cmd.Flags().StringArrayVar(&req.Candidates, "candidate", nil, "candidate name (repeat for each candidate)")
	cmd.Flags().StringVar(&end, "end", "", "end of voting, RFC 3339")
	cmd.Flags().DurationVar(&duration, "duration", 0, "voting window measured from now, e.g. 48h")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func sessionListCommand(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := st.client.ListSessions(cmd.Context())
			if err != nil {
				return err
			}
			return st.emit(cmd, list, func(w io.Writer) {
				if len(list) == 0 {
					fmt.Fprintln(w, "no sessions")
					return
				}
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tTITLE\tSTATUS\tENDS\tTICKETS")
				for _, s := range list {
					tickets := "-"
					if s.TicketCount != nil {
						tickets = fmt.Sprint(*s.TicketCount)
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
						s.ID, s.Title, statusLabel(&s), s.EndTime.Format(time.RFC3339), tickets)
				}
				_ = tw.Flush()
			})
		},
	}
}

func sessionShowCommand(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "show <session>",
		Short: "Show a session merged with its ledger state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := st.client.ViewSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return st.emit(cmd, view, func(w io.Writer) { printView(w, view) })
		},
	}
}

func sessionUpdateCommand(st *state) *cobra.Command {
	var req v1.UpdateSession
	cmd := &cobra.Command{
		Use:   "update <session>",
		Short: "Change the title or description of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("title") || !cmd.Flags().Changed("description") {
				cur, err := st.client.ViewSession(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !cmd.Flags().Changed("title") {
					req.Title = cur.Session.Title
				}
				if !cmd.Flags().Changed("description") {
					req.Description = cur.Session.Description
				}
			}
			s, err := st.client.UpdateSession(cmd.Context(), args[0], req)
			if err != nil {
				return err
			}
			return st.emit(cmd, s, func(w io.Writer) { printSession(w, s) })
		},
	}
	cmd.Flags().StringVar(&req.Title, "title", "", "new title")
	cmd.Flags().StringVar(&req.Description, "description", "", "new description")
	return cmd
}

func sessionStartCommand(st *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start <session>",
		Short: "Open voting; no voters can be registered afterwards",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := st.adminSecret(cmd)
			if err != nil {
				return err
			}
			s, err := st.client.StartSession(cmd.Context(), args[0], secret)
			if err != nil {
				return err
			}
			return st.emit(cmd, s, func(w io.Writer) {
				fmt.Fprintf(w, "session %s started\n", s.ID)
			})
		},
	}
	addSecretFlag(cmd)
	return cmd
}

func (st *state) closeSession(ctx context.Context, id string) (*v1.Session, error) {
	return st.client.CloseSession(ctx, id)
}

func (st *state) archiveSession(ctx context.Context, id string) (*v1.Session, error) {
	return st.client.ArchiveSession(ctx, id)
}

func sessionTransitionCommand(st *state, name, short string,
	fn func(ctx context.Context, id string) (*v1.Session, error)) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <session>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := fn(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return st.emit(cmd, s, func(w io.Writer) {
				fmt.Fprintf(w, "session %s is %s\n", s.ID, statusLabel(s))
			})
		},
	}
}

func sessionDeleteCommand(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <session>",
		Short: "Delete the local record of a session; the ledger is unchanged",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := st.client.DeleteSession(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "session %s deleted\n", args[0])
			return nil
		},
	}
}

func sessionResetCommand(st *state) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every local session and ticket; the ledger is unchanged",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				answer, err := getSimpleText(bufio.NewReader(cmd.InOrStdin()),
					"This deletes all local sessions and tickets. Type 'reset' to continue", cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				if !strings.EqualFold(answer, "reset") {
					fmt.Fprintln(cmd.ErrOrStderr(), "aborted")
					return nil
				}
			}
			rep, err := st.client.Reset(cmd.Context())
			if err != nil {
				return err
			}
			return st.emit(cmd, rep, func(w io.Writer) {
				fmt.Fprintf(w, "removed %d session(s) and %d ticket(s)\n", rep.Sessions, rep.Tickets)
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func sessionExportCommand(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "export <session>",
		Short: "Export the final tally of a closed session to object storage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rep, err := st.client.Export(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return st.emit(cmd, rep, func(w io.Writer) {
				fmt.Fprintf(w, "stored as %s\n%s\n", rep.Key, rep.URL)
			})
		},
	}
}

func sessionVerifySecretCommand(st *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify-secret <session>",
		Short: "Check an admin secret against the ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := st.adminSecret(cmd)
			if err != nil {
				return err
			}
			ok, err := st.client.VerifySecret(cmd.Context(), args[0], secret)
			if err != nil {
				return err
			}
			return st.emit(cmd, v1.VerifySecretReply{Valid: ok}, func(w io.Writer) {
				if ok {
					fmt.Fprintln(w, "admin secret is valid")
				} else {
					fmt.Fprintln(w, "admin secret is NOT valid")
				}
			})
		},
	}
	addSecretFlag(cmd)
	return cmd
}

func statusLabel(s *v1.Session) string {
	if s.Archived {
		return s.Status + " (archived)"
	}
	return s.Status
}

func printSession(w io.Writer, s *v1.Session) {
	fmt.Fprintf(w, "ID:          %s\n", s.ID)
	fmt.Fprintf(w, "Title:       %s\n", s.Title)
	if s.Description != "" {
		fmt.Fprintf(w, "Description: %s\n", s.Description)
	}
	fmt.Fprintf(w, "Status:      %s\n", statusLabel(s))
	fmt.Fprintf(w, "Candidates:  %s\n", strings.Join(s.Candidates, ", "))
	fmt.Fprintf(w, "Ends:        %s\n", s.EndTime.Format(time.RFC3339))
	fmt.Fprintf(w, "Created by:  %s\n", s.CreatedBy)
	fmt.Fprintf(w, "Ledger ID:   %s\n", s.LedgerSessionID)
}

func printView(w io.Writer, v *v1.SessionView) {
	printSession(w, &v.Session)

	fmt.Fprintln(w)
	if !v.Ledger.Exists {
		fmt.Fprintln(w, "Ledger:      session not found")
	} else {
		fmt.Fprintf(w, "Ledger:      started=%t voters=%d votes=%d\n",
			v.Ledger.Started, v.Ledger.VotersTotal, v.Ledger.VotesCast)
	}
	fmt.Fprintf(w, "Tickets:     %d (%d notification(s) pending)\n", v.LocalTickets, v.PendingNotifications)

	if v.Tally != nil {
		fmt.Fprintln(w, "\nTally:")
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		for _, c := range v.Session.Candidates {
			fmt.Fprintf(tw, "  %s\t%d\n", c, v.Tally[c])
		}
		_ = tw.Flush()
	}

	if len(v.Drift) > 0 {
		fmt.Fprintln(w, "\nDrift:")
		for _, d := range v.Drift {
			fmt.Fprintf(w, "  %s: %s\n", d.Kind, d.Detail)
		}
	}
}
