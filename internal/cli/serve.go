package cli

import (
	"context"
	"fmt"
	"time"

	"missioncontrol/internal/account"
	"missioncontrol/internal/backend"
	"missioncontrol/internal/config"
	"missioncontrol/internal/observability"
	"missioncontrol/internal/server"
	"missioncontrol/internal/spyglass"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the mission control HTTP server",
	Long: `Start the HTTP server the browser client talks to. Each browser tab opens a
workspace holding its own mission, panels, spyglass refresher and chat.

Available endpoints:
- POST /api/workspaces: Open a workspace
- POST /api/workspaces/{ws}/upload: Upload a resume PDF
- POST /api/workspaces/{ws}/optimize: Run the agent pipeline (one credit)
- GET  /api/workspaces/{ws}/panels/{agent}: Render an agent panel
- GET  /ws/workspaces/{ws}: Workspace event stream
- GET  /api/account, /api/missions: Credits and mission history
- GET  /health: Health check endpoint
- GET  /stats: Server statistics and rate limiting info

TLS Configuration:
- Use --tls-mode to set TLS mode: disabled, server, mutual
- Use --cert-file and --key-file for TLS certificates
- Use --ca-file for mutual TLS client certificate verification`,
	RunE: runServe,
}

func init() {
	addServeFlags(serveCmd)
}

func addServeFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("port", "p", "", "Port to listen on (default from config)")
	cmd.Flags().String("host", "", "Host to bind to (default from config)")
	cmd.Flags().String("tls-mode", "", "TLS mode: disabled, server, mutual (overrides config)")
	cmd.Flags().String("cert-file", "", "Server certificate file (PEM, overrides config)")
	cmd.Flags().String("key-file", "", "Server private key file (PEM, overrides config)")
	cmd.Flags().String("ca-file", "", "CA certificate file for client cert verification (PEM, overrides config)")
}

// applyServeFlags copies explicitly set flags over the loaded configuration.
// Config is loaded before flags are parsed, so flags cannot be bound through viper.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	set := func(name string, dst *string) {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	set("port", &cfg.Server.Port)
	set("host", &cfg.Server.Host)
	set("tls-mode", &cfg.Server.TLS.Mode)
	set("cert-file", &cfg.Server.TLS.CertFile)
	set("key-file", &cfg.Server.TLS.KeyFile)
	set("ca-file", &cfg.Server.TLS.CAFile)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := getConfigFromContext(ctx)
	logger := getLoggerFromContext(ctx)

	applyServeFlags(cmd, cfg)

	// Validate TLS configuration after applying overrides
	tempConfig := &config.Config{Server: cfg.Server}
	if err := tempConfig.ValidateTLSConfig(); err != nil {
		return fmt.Errorf("invalid TLS configuration: %w", err)
	}

	om, err := observability.NewObservabilityManager(
		observability.GetObservabilityConfig(cfg, Version), cfg,
		observability.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("failed to initialize observability: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := om.Shutdown(shutdownCtx); err != nil {
			logger.LogError(err, "Failed to shut down observability")
		}
	}()

	accts, err := openAccounts(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open account store: %w", err)
	}
	defer accts.Close()

	deps := server.Dependencies{
		API:           backend.NewClient(cfg, logger, backend.WithRecorder(om)),
		Gate:          accts.gate,
		Verifier:      account.NewVerifier(cfg.Auth),
		Observability: om,
	}
	if cfg.Notify.Telegram.Enabled {
		notifier, err := spyglass.NewTelegramNotifier(cfg.Notify.Telegram, logger)
		if err != nil {
			return err
		}
		deps.Notifier = notifier
		logger.Info("Telegram view alerts enabled", "chat_id", cfg.Notify.Telegram.ChatID)
	}

	return server.NewServer(cfg, server.ConfigFromApp(cfg, Version), deps, logger).Start(ctx)
}
