package server

import (
	"fmt"
	"sync"
	"time"

	"missioncontrol/internal/config"
	mcErrors "missioncontrol/internal/errors"
)

// VaultClientInterface is the slice of the Vault client the watcher reads with
type VaultClientInterface interface {
	GetSecretV2(path string) (*config.VaultSecret, error)
}

// CertificateData holds a PEM key pair fetched from Vault
type CertificateData struct {
	CertContent string
	KeyContent  string
	CAContent   string
}

// VaultReloadCallback receives new key pair data, or the error that prevented reading it
type VaultReloadCallback func(data *CertificateData, err error)

// VaultWatcher polls a KVv2 secret and hands over its key pair whenever the version moves forward
type VaultWatcher struct {
	mu sync.RWMutex

	client         VaultClientInterface
	secretPath     string
	pollInterval   time.Duration
	reloadCallback VaultReloadCallback
	logger         *mcErrors.Logger

	stopChan    chan struct{}
	running     bool
	lastVersion int64
	lastPoll    time.Time
	lastErr     string
}

// NewVaultWatcher creates a new VaultWatcher
func NewVaultWatcher(client VaultClientInterface, secretPath string, pollInterval time.Duration, reloadCallback VaultReloadCallback, logger *mcErrors.Logger) *VaultWatcher {
	return &VaultWatcher{
		client:         client,
		secretPath:     secretPath,
		pollInterval:   pollInterval,
		reloadCallback: reloadCallback,
		logger:         logger,
		stopChan:       make(chan struct{}),
	}
}

// Start records the current version and begins polling. The pair already being
// served is assumed to match that version.
func (vw *VaultWatcher) Start() error {
	vw.mu.Lock()
	defer vw.mu.Unlock()
	if vw.running {
		return fmt.Errorf("vault watcher is already running")
	}
	if secret, err := vw.client.GetSecretV2(vw.secretPath); err == nil && secret != nil {
		vw.lastVersion = secret.Version
	}
	vw.running = true
	go vw.pollLoop()
	vw.logger.Info("Vault watcher started",
		"secret_path", vw.secretPath,
		"poll_interval", vw.pollInterval,
		"version", vw.lastVersion)
	return nil
}

// Stop stops the Vault watcher
func (vw *VaultWatcher) Stop() error {
	vw.mu.Lock()
	defer vw.mu.Unlock()
	if !vw.running {
		return nil
	}
	close(vw.stopChan)
	vw.running = false
	vw.logger.Info("Vault watcher stopped")
	return nil
}

func (vw *VaultWatcher) pollLoop() {
	ticker := time.NewTicker(vw.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			vw.poll()
		case <-vw.stopChan:
			return
		}
	}
}

// poll reads the secret once and calls back when its version is newer than the last seen
func (vw *VaultWatcher) poll() {
	data, changed, err := vw.checkForUpdates()
	if err != nil {
		vw.logger.LogError(err, "Failed to check Vault for updates", "secret_path", vw.secretPath)
		vw.reloadCallback(nil, err)
		return
	}
	if changed {
		vw.logger.Info("Vault secret changed, triggering reload", "secret_path", vw.secretPath)
		vw.reloadCallback(data, nil)
	}
}

// checkForUpdates returns the key pair when the secret version has moved forward
func (vw *VaultWatcher) checkForUpdates() (*CertificateData, bool, error) {
	secret, err := vw.client.GetSecretV2(vw.secretPath)

	vw.mu.Lock()
	defer vw.mu.Unlock()
	vw.lastPoll = time.Now()
	if err == nil && secret == nil {
		err = fmt.Errorf("secret not found at path: %s", vw.secretPath)
	}
	if err != nil {
		vw.lastErr = err.Error()
		return nil, false, mcErrors.NewNetworkError(mcErrors.ErrCodeBackendUnavailable, "failed to read TLS secret from vault", err)
	}
	vw.lastErr = ""
	if secret.Version <= vw.lastVersion {
		return nil, false, nil
	}
	vw.lastVersion = secret.Version
	return certificateData(secret), true, nil
}

func certificateData(secret *config.VaultSecret) *CertificateData {
	data := &CertificateData{}
	if v, ok := secret.Data["cert"].(string); ok {
		data.CertContent = v
	}
	if v, ok := secret.Data["key"].(string); ok {
		data.KeyContent = v
	}
	if v, ok := secret.Data["ca"].(string); ok {
		data.CAContent = v
	}
	return data
}

// Status returns the current status of the VaultWatcher for health reporting
func (vw *VaultWatcher) Status() map[string]any {
	vw.mu.RLock()
	defer vw.mu.RUnlock()
	return map[string]any{
		"running":       vw.running,
		"poll_interval": vw.pollInterval.String(),
		"secret_path":   vw.secretPath,
		"last_version":  vw.lastVersion,
		"last_poll":     vw.lastPoll,
		"last_error":    vw.lastErr,
	}
}
