package cli

import (
	"context"

	"missioncontrol/internal/common"
	"missioncontrol/internal/types"
	"missioncontrol/internal/utils"

	"github.com/spf13/cobra"
)

var uploadCmd = &cobra.Command{
	Use:   "upload [resume.pdf]",
	Short: "Upload a resume PDF",
	Long: `Upload a resume PDF to the agent backend. The file is checked locally first:
it must exist, end in .pdf, fit the configured size limit and parse as a PDF.

The printed resume id is what optimize, spyglass and courses take.`,
	Args: cobra.ExactArgs(1),
	RunE: runUpload,
}

var (
	uploadConfig common.CommandConfig
	uploadEmail  string
	uploadName   string
)

func init() {
	addOutputFlags(uploadCmd, &uploadConfig)
	uploadCmd.Flags().StringVar(&uploadEmail, "email", "", "Email sent with the upload (default from config)")
	uploadCmd.Flags().StringVar(&uploadName, "name", "", "Name sent with the upload (default from config)")
}

func runUpload(cmd *cobra.Command, args []string) error {
	cfg := getConfigFromContext(cmd.Context())
	logger := getLoggerFromContext(cmd.Context())

	file, err := utils.LoadResume(args[0], cfg.Mission.MaxUploadSize)
	if err != nil {
		return err
	}

	id := cliIdentity(cfg)
	req := types.UploadRequest{Filename: file.Name, UserEmail: id.Email, UserName: id.Name}
	if uploadEmail != "" {
		req.UserEmail = uploadEmail
	}
	if uploadName != "" {
		req.UserName = uploadName
	}

	logger.Info("Uploading resume", "file", file.Name, "bytes", len(file.Data))
	client := newBackendClient(cfg, logger)
	return common.RunCommand(cmd.Context(), logger, newOutputHandler(logger), uploadConfig, "upload",
		func(ctx context.Context) (*types.ResumeHandle, error) {
			return client.Upload(ctx, file, req)
		},
		func(h *types.ResumeHandle) any { return *h },
	)
}
