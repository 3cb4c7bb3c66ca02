package cli

import (
	"context"
	"fmt"
	"time"

	"missioncontrol/internal/account"
	"missioncontrol/internal/common"
	"missioncontrol/internal/errors"

	"github.com/spf13/cobra"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Show the local identity's credits",
	Long: `Show the account local commands act as: auth.devIdentity when set,
otherwise "local". The account is created with mission.startingCredits on
first use.`,
	Args: cobra.NoArgs,
	RunE: runAccount,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past missions with score analytics",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for the local identity",
	Long: `Sign a token with auth.jwtSecret for the local identity. Useful for calling
a server started with the same secret.`,
	Args: cobra.NoArgs,
	RunE: runToken,
}

var (
	accountConfig common.CommandConfig
	historyConfig common.CommandConfig
	historyLimit  int
	tokenTTL      time.Duration
)

func init() {
	addOutputFlags(accountCmd, &accountConfig)
	addOutputFlags(historyCmd, &historyConfig)
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of missions to list")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "Token lifetime")

	accountCmd.AddCommand(historyCmd)
	accountCmd.AddCommand(tokenCmd)
}

func runAccount(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := getConfigFromContext(ctx)
	logger := getLoggerFromContext(ctx)

	accts, err := openAccounts(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer accts.Close()

	return common.RunCommand(ctx, logger, newOutputHandler(logger), accountConfig, "account",
		func(ctx context.Context) (*account.Account, error) {
			return accts.gate.Account(ctx, cliIdentity(cfg))
		},
		func(a *account.Account) any { return *a },
	)
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := getConfigFromContext(ctx)
	logger := getLoggerFromContext(ctx)

	if historyLimit < 1 || historyLimit > 100 {
		return errors.NewValidationError(errors.ErrCodeInvalidRequest, "limit must be between 1 and 100", nil)
	}

	accts, err := openAccounts(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer accts.Close()

	return common.RunCommand(ctx, logger, newOutputHandler(logger), historyConfig, "history",
		func(ctx context.Context) (*account.History, error) {
			return accts.gate.History(ctx, cliIdentity(cfg).ID, historyLimit)
		},
		func(h *account.History) any { return *h },
	)
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg := getConfigFromContext(cmd.Context())
	if cfg.Auth.JWTSecret == "" {
		return errors.NewConfigError(errors.ErrCodeInvalidConfig, "auth.jwtSecret is not set", nil)
	}
	token, err := account.NewVerifier(cfg.Auth).Issue(cliIdentity(cfg), tokenTTL)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
	return err
}
