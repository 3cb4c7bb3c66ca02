package cli

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"missioncontrol/internal/common"
	"missioncontrol/internal/panels"
	"missioncontrol/internal/spyglass"
	"missioncontrol/internal/types"

	"github.com/spf13/cobra"
)

var spyglassCmd = &cobra.Command{
	Use:   "spyglass [resume-id]",
	Short: "Show who viewed a resume",
	Long: `Show the view tracking stats of a resume: recent events, locations and a
daily timeline. Pick the sub-view with --tab.

With --watch the stats are polled every mission.spyglassInterval and printed
whenever they change, until interrupted. When Telegram alerts are configured,
new views are also sent to the chat.`,
	Args: cobra.ExactArgs(1),
	RunE: runSpyglass,
}

var (
	spyglassConfig common.CommandConfig
	spyglassTab    string
	spyglassWatch  bool
)

func init() {
	addOutputFlags(spyglassCmd, &spyglassConfig)
	spyglassCmd.Flags().StringVar(&spyglassTab, "tab", string(panels.TabEvents), "Sub-view: events, geo or timeline")
	spyglassCmd.Flags().BoolVarP(&spyglassWatch, "watch", "w", false, "Keep polling and print every change")
}

func runSpyglass(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := getConfigFromContext(ctx)
	logger := getLoggerFromContext(ctx)

	panel := panels.NewSpyglassPanel()
	if err := panel.SetTab(panels.Tab(strings.ToLower(spyglassTab))); err != nil {
		return err
	}
	client := newBackendClient(cfg, logger)
	output := newOutputHandler(logger)

	if !spyglassWatch {
		return common.RunCommand(ctx, logger, output, spyglassConfig, "spyglass",
			func(ctx context.Context) (*types.SpyglassStats, error) {
				return client.Spyglass(ctx, args[0])
			},
			func(stats *types.SpyglassStats) any { return panel.Render(stats, time.Now()) },
		)
	}

	notifiers := fanout{&printer{panel: panel, output: output, cmdConfig: spyglassConfig}}
	if cfg.Notify.Telegram.Enabled {
		tg, err := spyglass.NewTelegramNotifier(cfg.Notify.Telegram, logger)
		if err != nil {
			return err
		}
		notifiers = append(notifiers, tg)
	}

	refresher := spyglass.NewRefresher(client, logger,
		spyglass.WithInterval(cfg.Mission.SpyglassInterval),
		spyglass.WithNotifier(notifiers),
	)
	refresher.Bind(args[0])
	refresher.Start()
	defer refresher.Stop()

	logger.Info("Watching resume views", "resume_id", args[0], "interval", cfg.Mission.SpyglassInterval)
	if _, err := refresher.Refresh(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

// fanout passes each new snapshot to every notifier
type fanout []spyglass.Notifier

func (f fanout) Notify(ctx context.Context, resumeID string, prev, next *types.SpyglassStats) error {
	var errs []error
	for _, n := range f {
		if err := n.Notify(ctx, resumeID, prev, next); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

// printer writes the panel whenever the view count moves
type printer struct {
	panel     *panels.SpyglassPanel
	output    *common.OutputHandler
	cmdConfig common.CommandConfig
}

func (p *printer) Notify(_ context.Context, _ string, prev, next *types.SpyglassStats) error {
	if prev != nil && prev.TotalViews == next.TotalViews && prev.UniqueViewers == next.UniqueViewers {
		return nil
	}
	return p.output.HandleOutput(p.panel.Render(next, time.Now()), p.cmdConfig)
}
