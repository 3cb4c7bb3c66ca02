package cli

import (
	"context"

	"missioncontrol/internal/common"
	"missioncontrol/internal/panels"

	"github.com/spf13/cobra"
)

var postCmd = &cobra.Command{
	Use:   "post [resume-id]",
	Short: "Draft a LinkedIn post about the optimized resume",
	Args:  cobra.ExactArgs(1),
	RunE:  runPost,
}

var (
	postConfig common.CommandConfig
	postTone   string
)

func init() {
	addOutputFlags(postCmd, &postConfig)
	postCmd.Flags().StringVar(&postTone, "tone", "", "Post tone (default from config, then "+panels.DefaultTone+")")
}

func runPost(cmd *cobra.Command, args []string) error {
	cfg := getConfigFromContext(cmd.Context())
	logger := getLoggerFromContext(cmd.Context())

	tone := postTone
	if tone == "" {
		tone = cfg.Mission.GhostwriterTone
	}

	client := newBackendClient(cfg, logger)
	return common.RunCommand(cmd.Context(), logger, newOutputHandler(logger), postConfig, "post",
		func(ctx context.Context) (panels.GhostwriterView, error) {
			return panels.Regenerate(ctx, client, args[0], tone)
		},
		nil,
	)
}
