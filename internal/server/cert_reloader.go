package server

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"sync"
	"time"

	"missioncontrol/internal/config"
	mcErrors "missioncontrol/internal/errors"
	"missioncontrol/internal/observability"
)

// Key pair sources reported in metrics and status
const (
	CertSourceFile  = "file"
	CertSourceVault = "vault"
)

const defaultVaultPollInterval = 5 * time.Minute

// CertReloader serves the current TLS key pair and swaps it when the files or the
// Vault secret change. A failed reload keeps the previous pair.
type CertReloader struct {
	mu sync.RWMutex

	cert     *tls.Certificate
	caPool   *x509.CertPool
	expiry   time.Time
	source   string
	loadedAt time.Time

	reloadCount   int64
	failureCount  int64
	lastReloadErr string

	cfg          config.TLSConfig
	fileWatcher  *CertWatcher
	vaultWatcher *VaultWatcher
	om           *observability.ObservabilityManager
	logger       *mcErrors.Logger
}

// NewCertReloader loads the initial key pair from PEM content when present, otherwise from files
func NewCertReloader(cfg config.TLSConfig, om *observability.ObservabilityManager, logger *mcErrors.Logger) (*CertReloader, error) {
	r := &CertReloader{cfg: cfg, om: om, logger: logger}

	var err error
	if cfg.CertContent != "" && cfg.KeyContent != "" {
		err = r.LoadContent(cfg.CertContent, cfg.KeyContent, cfg.CAContent)
	} else {
		err = r.LoadFiles()
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Start watches the configured files, and the Vault secret when a client is given
func (r *CertReloader) Start(vault VaultClientInterface, secretPath string) error {
	if !r.cfg.Reload.Enabled {
		return nil
	}

	if r.cfg.CertFile != "" && r.cfg.CertContent == "" {
		watcher, err := NewCertWatcher(r.cfg.CertFile, r.cfg.KeyFile, r.cfg.CAFile, r.cfg.Reload.DebounceDelay, r.reloadFiles, r.logger)
		if err != nil {
			return err
		}
		if err := watcher.Start(); err != nil {
			return err
		}
		r.fileWatcher = watcher
	}

	if vault != nil && secretPath != "" {
		interval := r.cfg.Reload.VaultPollInterval
		if interval <= 0 {
			interval = defaultVaultPollInterval
		}
		watcher := NewVaultWatcher(vault, secretPath, interval, r.applyVaultData, r.logger)
		if err := watcher.Start(); err != nil {
			return err
		}
		r.vaultWatcher = watcher
	}
	return nil
}

// Stop ends all watchers
func (r *CertReloader) Stop() error {
	var firstErr error
	if r.fileWatcher != nil {
		firstErr = r.fileWatcher.Stop()
	}
	if r.vaultWatcher != nil {
		if err := r.vaultWatcher.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *CertReloader) reloadFiles() {
	if err := r.LoadFiles(); err != nil {
		r.logger.LogError(err, "Failed to reload TLS key pair from files")
		return
	}
	r.logger.Info("TLS key pair reloaded", "source", CertSourceFile)
}

func (r *CertReloader) applyVaultData(data *CertificateData, err error) {
	if err == nil {
		err = r.LoadContent(data.CertContent, data.KeyContent, data.CAContent)
	} else {
		r.recordFailure(CertSourceVault, err)
	}
	if err != nil {
		r.logger.LogError(err, "Failed to reload TLS key pair from vault")
		return
	}
	r.logger.Info("TLS key pair reloaded", "source", CertSourceVault)
}

// LoadFiles reads the key pair, and the CA when configured, from disk
func (r *CertReloader) LoadFiles() error {
	if r.cfg.CertFile == "" || r.cfg.KeyFile == "" {
		return mcErrors.NewConfigError(mcErrors.ErrCodeInvalidConfig, "TLS certificate and key are required (provide either files or content)", nil)
	}
	cert, err := tls.LoadX509KeyPair(r.cfg.CertFile, r.cfg.KeyFile)
	if err != nil {
		err = mcErrors.NewIOError(mcErrors.ErrCodeFileNotReadable, "failed to load server cert/key from files", err)
		r.recordFailure(CertSourceFile, err)
		return err
	}

	var caPEM []byte
	if r.cfg.CAFile != "" {
		caPEM, err = os.ReadFile(r.cfg.CAFile)
		if err != nil {
			err = mcErrors.NewIOError(mcErrors.ErrCodeFileNotReadable, "failed to read CA file", err)
			r.recordFailure(CertSourceFile, err)
			return err
		}
	}
	return r.swap(&cert, caPEM, CertSourceFile)
}

// LoadContent parses a PEM key pair and optional CA bundle
func (r *CertReloader) LoadContent(certPEM, keyPEM, caPEM string) error {
	cert, err := tls.X509KeyPair([]byte(certPEM), []byte(keyPEM))
	if err != nil {
		err = mcErrors.NewMalformedError(mcErrors.ErrCodeInvalidConfig, "failed to load server cert/key from content", err)
		r.recordFailure(CertSourceVault, err)
		return err
	}
	var ca []byte
	if caPEM != "" {
		ca = []byte(caPEM)
	}
	return r.swap(&cert, ca, CertSourceVault)
}

func (r *CertReloader) swap(cert *tls.Certificate, caPEM []byte, source string) error {
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		err = mcErrors.NewMalformedError(mcErrors.ErrCodeInvalidConfig, "failed to parse server certificate", err)
		r.recordFailure(source, err)
		return err
	}
	cert.Leaf = leaf

	var pool *x509.CertPool
	if len(caPEM) > 0 {
		pool = x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			err := mcErrors.NewMalformedError(mcErrors.ErrCodeInvalidConfig, "failed to append CA cert", nil)
			r.recordFailure(source, err)
			return err
		}
	}

	r.mu.Lock()
	r.cert = cert
	if pool != nil {
		r.caPool = pool
	}
	r.expiry = leaf.NotAfter
	r.source = source
	r.loadedAt = time.Now()
	r.reloadCount++
	r.lastReloadErr = ""
	r.mu.Unlock()

	r.om.RecordCertReload(context.Background(), source, leaf.NotAfter, nil)
	return nil
}

func (r *CertReloader) recordFailure(source string, err error) {
	r.mu.Lock()
	r.failureCount++
	r.lastReloadErr = err.Error()
	r.mu.Unlock()
	r.om.RecordCertReload(context.Background(), source, time.Time{}, err)
}

// GetCertificate is used as tls.Config.GetCertificate
func (r *CertReloader) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.cert == nil {
		return nil, fmt.Errorf("no TLS certificate loaded")
	}
	return r.cert, nil
}

// ClientCAs returns the pool used to verify client certificates, or nil
func (r *CertReloader) ClientCAs() *x509.CertPool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.caPool
}

// CheckExpiry returns the time left before the served certificate expires
func (r *CertReloader) CheckExpiry() (time.Duration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.cert == nil {
		return 0, fmt.Errorf("no TLS certificate loaded")
	}
	return time.Until(r.expiry), nil
}

// Status reports reload state for the health endpoint
func (r *CertReloader) Status() map[string]any {
	r.mu.RLock()
	status := map[string]any{
		"enabled":        r.cfg.Reload.Enabled,
		"source":         r.source,
		"loaded_at":      r.loadedAt,
		"not_after":      r.expiry,
		"reload_count":   r.reloadCount,
		"failure_count":  r.failureCount,
		"last_error":     r.lastReloadErr,
		"watching_files": r.fileWatcher != nil,
	}
	r.mu.RUnlock()

	if r.fileWatcher != nil {
		status["file_watcher_running"] = r.fileWatcher.IsRunning()
		status["watched_files"] = r.fileWatcher.GetWatchedFiles()
	}
	if r.vaultWatcher != nil {
		status["vault_watcher"] = r.vaultWatcher.Status()
	}
	return status
}
