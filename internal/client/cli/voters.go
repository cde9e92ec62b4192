package cli

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	v1 "github.com/dmitrijs2005/ballotkeeper/internal/api/v1"
	"github.com/dmitrijs2005/ballotkeeper/internal/common"
	"github.com/spf13/cobra"
)

func votersCommand(st *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "voters",
		Short: "Register voters and mail them their voting tokens",
	}
	cmd.AddCommand(votersGroupCommand(st), votersFileCommand(st))
	return cmd
}

func votersGroupCommand(st *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "group <session> <group>",
		Short: "Register every member of a group",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := st.adminSecret(cmd)
			if err != nil {
				return err
			}
			rep, err := st.client.RegisterGroup(cmd.Context(), args[0], args[1], secret)
			if err != nil {
				return err
			}
			return st.emit(cmd, rep, func(w io.Writer) { printRegistration(w, rep) })
		},
	}
	addSecretFlag(cmd)
	return cmd
}

func votersFileCommand(st *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "file <session> <path>",
		Short: `Register the users listed in a "name;email" file`,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[1])
			if err != nil {
				return err
			}
			defer f.Close()

			rows, err := parseVoterFile(f)
			if err != nil {
				return fmt.Errorf("%s: %w", args[1], err)
			}

			secret, err := st.adminSecret(cmd)
			if err != nil {
				return err
			}
			rep, err := st.client.RegisterRows(cmd.Context(), args[0], secret, rows)
			if err != nil {
				return err
			}
			return st.emit(cmd, rep, func(w io.Writer) { printRegistration(w, rep) })
		},
	}
	addSecretFlag(cmd)
	return cmd
}

// parseVoterFile reads "name;email" rows. Blank lines are ignored and a
// leading "name;email" header is skipped. Email validity is left to the
// server, which reports bad rows as skipped.
func parseVoterFile(r io.Reader) ([]v1.VoterRow, error) {
	cr := csv.NewReader(r)
	cr.Comma = ';'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.LazyQuotes = true

	var rows []v1.VoterRow
	for first := true; ; first = false {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", common.ErrValidation, err)
		}
		line, _ := cr.FieldPos(0)
		if len(rec) != 2 {
			return nil, fmt.Errorf("%w: line %d: want name;email, got %d field(s)", common.ErrValidation, line, len(rec))
		}
		name, email := strings.TrimSpace(rec[0]), strings.TrimSpace(rec[1])
		if first && strings.EqualFold(name, "name") && strings.EqualFold(email, "email") {
			continue
		}
		rows = append(rows, v1.VoterRow{Name: name, Email: email})
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no voter rows", common.ErrValidation)
	}
	return rows, nil
}

func printRegistration(w io.Writer, rep *v1.RegisterReply) {
	fmt.Fprintf(w, "requested %d, tokens issued %d, already ticketed %d\n",
		rep.Requested, rep.TokensIssued, rep.AlreadyTicketed)

	if len(rep.Results) > 0 {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "USER\tEMAIL\tOUTCOME\tERROR")
		for _, r := range rep.Results {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.UserID, r.Email, r.Outcome, r.Error)
		}
		_ = tw.Flush()
	}
	if len(rep.Skipped) > 0 {
		fmt.Fprintf(w, "\nskipped %d row(s):\n", len(rep.Skipped))
		for _, s := range rep.Skipped {
			fmt.Fprintf(w, "  %s;%s: %s\n", s.Name, s.Email, s.Reason)
		}
	}
}
