package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dmitrijs2005/ballotkeeper/internal/buildinfo"
	"github.com/dmitrijs2005/ballotkeeper/internal/client/client"
	"github.com/dmitrijs2005/ballotkeeper/internal/client/config"
	"github.com/dmitrijs2005/ballotkeeper/internal/common"
	"github.com/dmitrijs2005/ballotkeeper/internal/ledger"
	"github.com/spf13/cobra"
)

const programName = "ballotctl"

var timeNow = time.Now

// ClientFactory builds the API client once the configuration is known.
type ClientFactory func(cfg *config.Config) client.Client

// DefaultClient talks HTTP to cfg.ServerURL.
func DefaultClient(cfg *config.Config) client.Client {
	return client.NewHTTPClient(cfg.ServerURL, cfg.AccessToken, cfg.RequestTimeout)
}

// state is shared by every command of one invocation.
type state struct {
	newClient ClientFactory

	configFile string
	serverURL  string
	token      string
	timeout    time.Duration
	asJSON     bool

	cfg    *config.Config
	client client.Client
}

// NewRootCommand builds the ballotctl command tree.
func NewRootCommand(newClient ClientFactory) *cobra.Command {
	st := &state{newClient: newClient}

	rootCmd := &cobra.Command{
		Use:           programName,
		Short:         "Operate the voting session coordinator",
		Version:       buildinfo.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().
		StringVarP(&st.configFile, "config", "c", "", "path to JSON config file")
	rootCmd.PersistentFlags().
		StringVarP(&st.serverURL, "server", "s", "", "coordinator base URL")
	rootCmd.PersistentFlags().
		StringVarP(&st.token, "access-token", "t", "", "operator access token (JWT)")
	rootCmd.PersistentFlags().
		DurationVar(&st.timeout, "timeout", 0, "request timeout")
	rootCmd.PersistentFlags().
		BoolVar(&st.asJSON, "json", false, "print raw JSON replies")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(st.configFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		// Override config with command line flags
		flags := cmd.Flags()
		if flags.Changed("server") {
			cfg.ServerURL = st.serverURL
		}
		if flags.Changed("access-token") {
			cfg.AccessToken = st.token
		}
		if flags.Changed("timeout") {
			cfg.RequestTimeout = st.timeout
		}

		st.cfg = cfg
		st.client = st.newClient(cfg)
		return nil
	}

	rootCmd.AddCommand(sessionCommand(st))
	rootCmd.AddCommand(votersCommand(st))
	rootCmd.AddCommand(voteCommand(st))
	rootCmd.AddCommand(reconciliationCommand(st))
	rootCmd.AddCommand(tokenCommand(st))
	rootCmd.AddCommand(healthCommand(st))
	rootCmd.AddCommand(versionCommand())

	return rootCmd
}

// Execute runs ballotctl on os.Args and returns the process exit code.
// Errors are printed to stderr once, with a hint where one helps.
func Execute(ctx context.Context, newClient ClientFactory, stderr io.Writer) int {
	root := NewRootCommand(newClient)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "Error:", explain(err))
		return 1
	}
	return 0
}

// emit prints v as indented JSON under --json, otherwise calls text.
func (st *state) emit(cmd *cobra.Command, v any, text func(w io.Writer)) error {
	w := cmd.OutOrStdout()
	if st.asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}

// adminSecret returns --secret or prompts for it.
func (st *state) adminSecret(cmd *cobra.Command) (string, error) {
	if s, _ := cmd.Flags().GetString("secret"); s != "" {
		return s, nil
	}
	b, err := getPassword(cmd.ErrOrStderr(), "Admin secret: ")
	if err != nil {
		return "", err
	}
	defer common.WipeByteArray(b)
	s := strings.TrimSpace(string(b))
	if s == "" {
		return "", fmt.Errorf("%w: admin secret is required", common.ErrValidation)
	}
	return s, nil
}

func addSecretFlag(cmd *cobra.Command) {
	cmd.Flags().String("secret", "", "session admin secret (prompted when omitted)")
}

// explain adds an operator hint to errors that have an obvious next step.
func explain(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, client.ErrUnavailable):
		return fmt.Errorf("%w (is the coordinator running? check --server)", err)
	case errors.Is(err, common.ErrUnauthorized):
		return fmt.Errorf("%w (pass an operator token with --access-token or BALLOTCTL_ACCESS_TOKEN)", err)
	case errors.Is(err, common.ErrNoNewVoters):
		return fmt.Errorf("%w: every listed voter already holds a ticket", err)
	case errors.Is(err, common.ErrOrphanedLedgerSession):
		return fmt.Errorf("%w: do not retry, see `%s reconciliation`", err, programName)
	case errors.Is(err, ledger.ErrInvalidAdminSecret):
		return fmt.Errorf("%w: wrong admin secret for this session", err)
	}
	return err
}
