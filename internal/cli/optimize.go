package cli

import (
	"context"
	"fmt"
	"strings"

	"missioncontrol/internal/backend"
	"missioncontrol/internal/common"
	"missioncontrol/internal/errors"
	"missioncontrol/internal/mission"
	"missioncontrol/internal/panels"
	"missioncontrol/internal/types"

	"github.com/spf13/cobra"
)

var optimizeCmd = &cobra.Command{
	Use:   "optimize [resume-id] [job-description | @file]",
	Short: "Optimize an uploaded resume against a job description",
	Long: `Run the full agent pipeline for an uploaded resume. Costs one credit.

The job description is given inline or, prefixed with @, read from a text file.
Use --panel to choose which agent's results are printed: ats (default),
interview, ghostwriter, affiliate or mission for the mission summary.`,
	Args: cobra.ExactArgs(2),
	RunE: runOptimize,
}

var (
	optimizeConfig common.CommandConfig
	optimizePanel  string
)

var optimizePanels = []string{"ats", "interview", "ghostwriter", "affiliate", "mission"}

func init() {
	addOutputFlags(optimizeCmd, &optimizeConfig)
	optimizeCmd.Flags().StringVar(&optimizePanel, "panel", "ats", "Panel to print: "+strings.Join(optimizePanels, ", "))
	_ = optimizeCmd.RegisterFlagCompletionFunc("panel", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return optimizePanels, cobra.ShellCompDirectiveNoFileComp
	})
}

func runOptimize(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := getConfigFromContext(ctx)
	logger := getLoggerFromContext(ctx)

	render, err := panelRenderer(optimizePanel)
	if err != nil {
		return err
	}
	jobDescription, err := common.NewFileProcessor(logger).ReadJobDescription(args[1])
	if err != nil {
		return err
	}

	accts, err := openAccounts(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer accts.Close()

	session, err := accts.gate.Resolve(ctx, cliIdentity(cfg))
	if err != nil {
		return err
	}

	client := newBackendClient(cfg, logger)
	m := mission.New(client, session, logger)
	defer m.Close()

	if err := m.BindResume(types.ResumeHandle{ResumeID: args[0]}); err != nil {
		return err
	}

	logger.Info("Starting optimization",
		"resume_id", args[0],
		"job_chars", len(jobDescription),
		"credits", session.Balance())

	err = common.RunCommand(ctx, logger, newOutputHandler(logger), optimizeConfig, "optimize",
		func(ctx context.Context) (*types.OptimizationResult, error) {
			return m.StartOptimization(ctx, jobDescription)
		},
		func(result *types.OptimizationResult) any {
			return render(args[0], m, client, result)
		},
	)
	if err != nil {
		return err
	}

	credits, err := session.Reconcile(ctx)
	if err != nil {
		logger.LogError(err, "Failed to reconcile credits", "resume_id", args[0])
		return nil
	}
	logger.Info("Optimization completed successfully", "credits_left", credits)
	return nil
}

type panelRenderFunc func(resumeID string, m *mission.Machine, api backend.API, result *types.OptimizationResult) any

// panelRenderer picks the view printed after an optimization
func panelRenderer(name string) (panelRenderFunc, error) {
	switch strings.ToLower(name) {
	case "", "ats":
		return func(resumeID string, _ *mission.Machine, api backend.API, r *types.OptimizationResult) any {
			return panels.NewATSView(r, resumeID, api)
		}, nil
	case "interview":
		return func(_ string, _ *mission.Machine, api backend.API, r *types.OptimizationResult) any {
			return panels.NewInterviewPanel(r.Interview, api).View()
		}, nil
	case "ghostwriter":
		return func(_ string, _ *mission.Machine, _ backend.API, r *types.OptimizationResult) any {
			return panels.NewGhostwriterView(r.Ghostwriter)
		}, nil
	case "affiliate":
		return func(_ string, _ *mission.Machine, _ backend.API, r *types.OptimizationResult) any {
			return panels.NewAffiliateView(r.Affiliate)
		}, nil
	case "mission":
		return func(_ string, m *mission.Machine, _ backend.API, _ *types.OptimizationResult) any {
			return m.Snapshot()
		}, nil
	default:
		return nil, errors.NewValidationError(errors.ErrCodeInvalidRequest,
			fmt.Sprintf("unknown panel %q, expected one of: %s", name, strings.Join(optimizePanels, ", ")), nil)
	}
}
