package server

import (
	"crypto/tls"
	"net/http"

	"missioncontrol/internal/config"
	mcErrors "missioncontrol/internal/errors"
)

// Supported TLS modes
const (
	TLSModeDisabled = "disabled"
	TLSModeServer   = "server"
	TLSModeMutual   = "mutual"
)

// configureTLS loads the key pair, starts reload watchers and sets httpServer.TLSConfig
func (s *Server) configureTLS(httpServer *http.Server, vaultClient VaultClientInterface) error {
	switch s.TLSConfig.Mode {
	case "", TLSModeDisabled:
		return nil
	case TLSModeServer, TLSModeMutual:
	default:
		return mcErrors.NewConfigError(mcErrors.ErrCodeInvalidConfig, "invalid TLS mode (must be 'disabled', 'server', or 'mutual')", nil).
			WithContext("mode", s.TLSConfig.Mode)
	}

	reloader, err := NewCertReloader(s.TLSConfig, s.Observability, s.Logger)
	if err != nil {
		return err
	}

	secretPath := ""
	if s.AppConfig != nil {
		secretPath = s.AppConfig.Vault.Secrets.TLSCerts
	}
	if err := reloader.Start(vaultClient, secretPath); err != nil {
		return err
	}
	s.CertReloader = reloader

	tlsConfig, err := s.buildTLSConfig()
	if err != nil {
		_ = reloader.Stop()
		return err
	}
	httpServer.TLSConfig = tlsConfig
	return nil
}

// initializeVaultClient creates a Vault client when the key pair is kept in Vault and reload is on
func (s *Server) initializeVaultClient() (VaultClientInterface, error) {
	if s.AppConfig == nil || !s.AppConfig.Vault.Enabled || s.AppConfig.Vault.Secrets.TLSCerts == "" || !s.TLSConfig.Reload.Enabled {
		return nil, nil
	}

	vc, err := config.NewVaultClient(s.AppConfig.Vault, s.Logger)
	if err != nil {
		return nil, mcErrors.NewConfigError(mcErrors.ErrCodeInvalidConfig, "failed to initialize Vault client", err)
	}
	return vc, nil
}

// buildTLSConfig creates the TLS configuration around the reloader
func (s *Server) buildTLSConfig() (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion:     s.minTLSVersion(),
		GetCertificate: s.CertReloader.GetCertificate,
		ClientAuth:     tls.NoClientCert,
	}

	if s.TLSConfig.Mode != TLSModeMutual {
		return tlsConfig, nil
	}

	if s.CertReloader.ClientCAs() == nil {
		return nil, mcErrors.NewConfigError(mcErrors.ErrCodeInvalidConfig,
			"CA certificate is required for mutual TLS mode (provide either caFile or caContent)", nil)
	}
	tlsConfig.ClientAuth = s.getClientAuthPolicy()
	tlsConfig.ClientCAs = s.CertReloader.ClientCAs()

	// Each handshake picks up the CA pool current at that moment.
	base := tlsConfig.Clone()
	tlsConfig.GetConfigForClient = func(*tls.ClientHelloInfo) (*tls.Config, error) {
		c := base.Clone()
		c.ClientCAs = s.CertReloader.ClientCAs()
		return c, nil
	}
	return tlsConfig, nil
}

// minTLSVersion maps the configured minimum version
func (s *Server) minTLSVersion() uint16 {
	if s.TLSConfig.MinVersion == "1.3" {
		return tls.VersionTLS13
	}
	return tls.VersionTLS12
}

// getClientAuthPolicy returns the appropriate client authentication policy
func (s *Server) getClientAuthPolicy() tls.ClientAuthType {
	switch s.TLSConfig.ClientAuthPolicy {
	case "request":
		return tls.RequestClientCert
	case "verify":
		return tls.VerifyClientCertIfGiven
	default:
		return tls.RequireAndVerifyClientCert
	}
}
