package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/ballotkeeper/internal/buildinfo"
	"github.com/dmitrijs2005/ballotkeeper/internal/common"
	"github.com/dmitrijs2005/ballotkeeper/internal/server/auth"
	"github.com/spf13/cobra"
)

func reconciliationCommand(st *state) *cobra.Command {
	return &cobra.Command{
		Use:     "reconciliation",
		Aliases: []string{"recon"},
		Short:   "List open reconciliation items",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := st.client.Reconciliation(cmd.Context())
			if err != nil {
				return err
			}
			return st.emit(cmd, items, func(w io.Writer) {
				if len(items) == 0 {
					fmt.Fprintln(w, "no open items")
					return
				}
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "CREATED\tKIND\tSESSION\tLEDGER SESSION\tDETAIL")
				for _, it := range items {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", it.CreatedAt.Format(time.RFC3339),
						it.Kind, it.SessionID, it.LedgerSessionID, it.Detail)
				}
				_ = tw.Flush()
			})
		},
	}
}

// tokenCommand mints an operator JWT locally. It needs the server's shared
// secret and never contacts the server.
func tokenCommand(st *state) *cobra.Command {
	var (
		operator string
		name     string
		validity time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an operator access token from the shared secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if st.cfg.SecretKey == "" {
				return fmt.Errorf("%w: secret key is not configured (BALLOTCTL_SECRET_KEY)", common.ErrValidation)
			}
			tok, err := auth.GenerateToken(operator, name, []byte(st.cfg.SecretKey), validity)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&operator, "operator", "", "operator id, stored as the session creator")
	cmd.Flags().StringVar(&name, "name", "", "operator display name")
	cmd.Flags().DurationVar(&validity, "validity", 12*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("operator")
	return cmd
}

func healthCommand(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the coordinator and its ledger are reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := st.client.Health(cmd.Context())
			if err != nil {
				return err
			}
			return st.emit(cmd, h, func(w io.Writer) {
				fmt.Fprintf(w, "coordinator ok, ledger %s\n", h.Ledger)
			})
		},
	}
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		// No config or client needed.
		PersistentPreRun: func(*cobra.Command, []string) {},
		Run: func(cmd *cobra.Command, args []string) {
			buildinfo.PrintBuildData(cmd.OutOrStdout())
		},
	}
}
