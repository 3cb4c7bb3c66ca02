package cli

import (
	"context"

	"missioncontrol/internal/common"
	"missioncontrol/internal/panels"

	"github.com/spf13/cobra"
)

var coursesCmd = &cobra.Command{
	Use:   "courses [resume-id]",
	Short: "Recommend courses for the resume's skill gaps",
	Args:  cobra.ExactArgs(1),
	RunE:  runCourses,
}

var coursesConfig common.CommandConfig

func init() {
	addOutputFlags(coursesCmd, &coursesConfig)
}

func runCourses(cmd *cobra.Command, args []string) error {
	cfg := getConfigFromContext(cmd.Context())
	logger := getLoggerFromContext(cmd.Context())

	client := newBackendClient(cfg, logger)
	return common.RunCommand(cmd.Context(), logger, newOutputHandler(logger), coursesConfig, "courses",
		func(ctx context.Context) (panels.AffiliateView, error) {
			return panels.RefreshCourses(ctx, client, args[0])
		},
		nil,
	)
}
