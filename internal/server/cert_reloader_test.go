package server

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"missioncontrol/internal/config"
	"missioncontrol/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// selfSigned returns a PEM key pair for localhost valid for ttl
func selfSigned(t *testing.T, cn string, ttl time.Duration) (certPEM, keyPEM []byte) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		Subject:               pkix.Name{CommonName: cn},
		DNSNames:              []string{"localhost"},
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(ttl),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IsCA:                  true,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	return certPEM, keyPEM
}

func writeKeyPair(t *testing.T, dir string, certPEM, keyPEM []byte) (string, string) {
	t.Helper()
	certFile := filepath.Join(dir, "server.crt")
	keyFile := filepath.Join(dir, "server.key")
	require.NoError(t, os.WriteFile(certFile, certPEM, 0o600))
	require.NoError(t, os.WriteFile(keyFile, keyPEM, 0o600))
	return certFile, keyFile
}

func servedCN(t *testing.T, r *CertReloader) string {
	t.Helper()
	cert, err := r.GetCertificate(&tls.ClientHelloInfo{})
	require.NoError(t, err)
	return cert.Leaf.Subject.CommonName
}

func TestCertReloaderLoadsFiles(t *testing.T) {
	certPEM, keyPEM := selfSigned(t, "first", 48*time.Hour)
	certFile, keyFile := writeKeyPair(t, t.TempDir(), certPEM, keyPEM)

	r, err := NewCertReloader(config.TLSConfig{Mode: TLSModeServer, CertFile: certFile, KeyFile: keyFile, CAFile: certFile}, nil, errors.Nop())
	require.NoError(t, err)

	assert.Equal(t, "first", servedCN(t, r))
	assert.NotNil(t, r.ClientCAs())

	left, err := r.CheckExpiry()
	require.NoError(t, err)
	assert.InDelta(t, (48 * time.Hour).Seconds(), left.Seconds(), 120)

	status := r.Status()
	assert.Equal(t, CertSourceFile, status["source"])
	assert.EqualValues(t, 1, status["reload_count"])
}

func TestCertReloaderKeepsPairOnBadContent(t *testing.T) {
	certPEM, keyPEM := selfSigned(t, "vault-v1", time.Hour)
	r, err := NewCertReloader(config.TLSConfig{CertContent: string(certPEM), KeyContent: string(keyPEM)}, nil, errors.Nop())
	require.NoError(t, err)
	assert.Equal(t, "vault-v1", servedCN(t, r))

	err = r.LoadContent("not a cert", "not a key", "")
	require.Error(t, err)
	assert.Equal(t, "vault-v1", servedCN(t, r))

	status := r.Status()
	assert.EqualValues(t, 1, status["failure_count"])
	assert.NotEmpty(t, status["last_error"])

	next, nextKey := selfSigned(t, "vault-v2", time.Hour)
	require.NoError(t, r.LoadContent(string(next), string(nextKey), ""))
	assert.Equal(t, "vault-v2", servedCN(t, r))
	assert.Equal(t, "", r.Status()["last_error"])
}

func TestCertReloaderRequiresKeyPair(t *testing.T) {
	_, err := NewCertReloader(config.TLSConfig{Mode: TLSModeServer}, nil, errors.Nop())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestCertReloaderWatchesFiles(t *testing.T) {
	dir := t.TempDir()
	certPEM, keyPEM := selfSigned(t, "before", time.Hour)
	certFile, keyFile := writeKeyPair(t, dir, certPEM, keyPEM)

	r, err := NewCertReloader(config.TLSConfig{
		Mode:     TLSModeServer,
		CertFile: certFile,
		KeyFile:  keyFile,
		Reload:   config.ReloadConfig{Enabled: true, DebounceDelay: 20 * time.Millisecond},
	}, nil, errors.Nop())
	require.NoError(t, err)
	require.NoError(t, r.Start(nil, ""))
	defer func() { _ = r.Stop() }()

	after, afterKey := selfSigned(t, "after", time.Hour)
	writeKeyPair(t, dir, after, afterKey)

	assert.Eventually(t, func() bool {
		cert, err := r.GetCertificate(&tls.ClientHelloInfo{})
		return err == nil && cert.Leaf.Subject.CommonName == "after"
	}, 3*time.Second, 20*time.Millisecond)
}

func TestCertificateHealthThresholds(t *testing.T) {
	certPEM, keyPEM := selfSigned(t, "short", 12*time.Hour)
	r, err := NewCertReloader(config.TLSConfig{CertContent: string(certPEM), KeyContent: string(keyPEM)}, nil, errors.Nop())
	require.NoError(t, err)

	ts := newTestServer(t)
	ts.CertReloader = r

	health := ts.checkCertificateHealth()
	require.NotNil(t, health)
	assert.Equal(t, false, health["healthy"])
}
