package cli

import (
	"fmt"
	"io"
	"strings"

	v1 "github.com/dmitrijs2005/ballotkeeper/internal/api/v1"
	"github.com/dmitrijs2005/ballotkeeper/internal/common"
	"github.com/spf13/cobra"
)

func voteCommand(st *state) *cobra.Command {
	var req v1.Vote
	cmd := &cobra.Command{
		Use:   "vote <session>",
		Short: "Cast a vote with a voting token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if req.Token == "" {
				b, err := getPassword(cmd.ErrOrStderr(), "Voting token: ")
				if err != nil {
					return err
				}
				req.Token = strings.TrimSpace(string(b))
				common.WipeByteArray(b)
			}
			if req.Token == "" {
				return fmt.Errorf("%w: voting token is required", common.ErrValidation)
			}

			rep, err := st.client.Vote(cmd.Context(), args[0], req)
			if err != nil {
				return err
			}
			return st.emit(cmd, rep, func(w io.Writer) {
				fmt.Fprintf(w, "vote recorded, transaction %s\n", rep.TxRef)
			})
		},
	}
	cmd.Flags().StringVar(&req.Candidate, "candidate", "", "candidate name")
	cmd.Flags().StringVar(&req.Token, "token", "", "voting token (prompted when omitted)")
	_ = cmd.MarkFlagRequired("candidate")
	return cmd
}
