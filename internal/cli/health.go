package cli

import (
	"context"

	"missioncontrol/internal/common"
	"missioncontrol/internal/errors"
	"missioncontrol/internal/types"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Probe the agent backend",
	Long: `Probe the agent backend and report ONLINE, DEGRADED or OFFLINE with the
round trip latency. The command fails when the backend is offline.`,
	Args: cobra.NoArgs,
	RunE: runHealth,
}

var healthConfig common.CommandConfig

func init() {
	addOutputFlags(healthCmd, &healthConfig)
}

func runHealth(cmd *cobra.Command, args []string) error {
	cfg := getConfigFromContext(cmd.Context())
	logger := getLoggerFromContext(cmd.Context())

	client := newBackendClient(cfg, logger)
	var probe types.ProbeResult
	err := common.RunCommand(cmd.Context(), logger, newOutputHandler(logger), healthConfig, "health",
		func(ctx context.Context) (types.ProbeResult, error) {
			probe = client.Probe(ctx)
			return probe, nil
		},
		nil,
	)
	if err != nil {
		return err
	}
	if probe.State == types.ProbeOffline {
		return errors.NewNetworkError(errors.ErrCodeBackendUnavailable, "backend is offline", nil).
			WithContext("base_url", client.BaseURL())
	}
	return nil
}
