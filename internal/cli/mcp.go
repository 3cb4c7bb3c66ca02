package cli

import (
	"missioncontrol/internal/tools"

	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve mission tools over MCP (stdio)",
	Long: `Expose the mission operations as MCP tools on stdin/stdout: upload, optimize,
grade, spyglass, chat, courses and health. Optimizations are charged to the
local identity's credits.

Logs go to stderr so they do not mix with the protocol stream.`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := getConfigFromContext(ctx)
	logger := getLoggerFromContext(ctx)

	accts, err := openAccounts(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer accts.Close()

	tb := tools.New(newBackendClient(cfg, logger), accts.gate, cliIdentity(cfg), cfg, logger)
	return tb.Serve(ctx, Version)
}
