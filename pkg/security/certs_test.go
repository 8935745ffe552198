package security

import (
	"crypto/x509"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoadCertToFile(t *testing.T) {
	ca := newTestCA(t)
	certDir := t.TempDir()

	cert, err := ca.IssueEndpointCertificate("endpoint-a", []string{}, []net.IP{})
	require.NoError(t, err)

	require.NoError(t, SaveCertToFile(cert, certDir))
	assert.FileExists(t, filepath.Join(certDir, "endpoint.crt"))
	assert.FileExists(t, filepath.Join(certDir, "endpoint.key"))

	loaded, err := LoadCertFromFile(certDir)
	require.NoError(t, err)
	assert.Equal(t, cert.Leaf.Subject.CommonName, loaded.Leaf.Subject.CommonName)
}

func TestSaveLoadCACertToFile(t *testing.T) {
	ca := newTestCA(t)
	certDir := t.TempDir()

	caCertDER := ca.GetRootCACert()
	require.NoError(t, SaveCACertToFile(caCertDER, certDir))
	assert.FileExists(t, filepath.Join(certDir, "ca.crt"))

	loaded, err := LoadCACertFromFile(certDir)
	require.NoError(t, err)
	assert.True(t, loaded.Equal(ca.rootCert))
}

func TestCertExists(t *testing.T) {
	tmpDir := t.TempDir()
	assert.False(t, CertExists(tmpDir))

	_ = os.WriteFile(filepath.Join(tmpDir, "endpoint.crt"), []byte("cert"), 0600)
	_ = os.WriteFile(filepath.Join(tmpDir, "endpoint.key"), []byte("key"), 0600)
	_ = os.WriteFile(filepath.Join(tmpDir, "ca.crt"), []byte("ca"), 0600)
	assert.True(t, CertExists(tmpDir))

	require.NoError(t, os.Remove(filepath.Join(tmpDir, "endpoint.key")))
	assert.False(t, CertExists(tmpDir))
}

func TestCertNeedsRotation(t *testing.T) {
	tests := []struct {
		name     string
		notAfter time.Time
		needsRot bool
	}{
		{"expiring in 1 day", time.Now().Add(24 * time.Hour), true},
		{"expiring in 29 days", time.Now().Add(29 * 24 * time.Hour), true},
		{"expiring in 31 days", time.Now().Add(31 * 24 * time.Hour), false},
		{"expiring in 60 days", time.Now().Add(60 * 24 * time.Hour), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cert := &x509.Certificate{NotAfter: tt.notAfter}
			assert.Equal(t, tt.needsRot, CertNeedsRotation(cert))
		})
	}

	assert.True(t, CertNeedsRotation(nil))
}

func TestGetCertExpiry(t *testing.T) {
	expected := time.Now().Add(90 * 24 * time.Hour)
	cert := &x509.Certificate{NotAfter: expected}

	assert.True(t, GetCertExpiry(cert).Equal(expected))
	assert.True(t, GetCertExpiry(nil).IsZero())
}

func TestGetCertTimeRemaining(t *testing.T) {
	expectedRemaining := 45 * 24 * time.Hour
	cert := &x509.Certificate{NotAfter: time.Now().Add(expectedRemaining)}

	remaining := GetCertTimeRemaining(cert)
	assert.InDelta(t, expectedRemaining, remaining, float64(time.Second))
	assert.Zero(t, GetCertTimeRemaining(nil))
}

func TestValidateCertChain(t *testing.T) {
	ca := newTestCA(t)
	cert, err := ca.IssueEndpointCertificate("endpoint-b", []string{}, []net.IP{})
	require.NoError(t, err)

	assert.NoError(t, ValidateCertChain(cert.Leaf, ca.rootCert))
	assert.Error(t, ValidateCertChain(nil, ca.rootCert))
	assert.Error(t, ValidateCertChain(cert.Leaf, nil))
}

func TestGetCertInfo(t *testing.T) {
	ca := newTestCA(t)
	cert, err := ca.IssueEndpointCertificate("endpoint-c", []string{}, []net.IP{})
	require.NoError(t, err)

	info := GetCertInfo(cert.Leaf)
	assert.Equal(t, "endpoint-c", info.Subject)
	assert.Equal(t, "sentryd Root CA", info.Issuer)
	assert.False(t, info.IsCA)
	assert.Contains(t, info.ExtKeyUsage, "ClientAuth")
	assert.Contains(t, info.ExtKeyUsage, "ServerAuth")

	assert.Equal(t, CertInfo{}, GetCertInfo(nil))
}

func TestGetCertDir(t *testing.T) {
	certDir := GetCertDir("/var/lib/sentryd", "endpoint-a")
	assert.Equal(t, "endpoint-a", filepath.Base(certDir))
	assert.Equal(t, "/var/lib/sentryd/cluster/certs/endpoint-a", certDir)
}

func TestRemoveCerts(t *testing.T) {
	tmpDir := t.TempDir()
	_ = os.WriteFile(filepath.Join(tmpDir, "endpoint.crt"), []byte("cert"), 0600)
	_ = os.WriteFile(filepath.Join(tmpDir, "endpoint.key"), []byte("key"), 0600)

	require.NoError(t, RemoveCerts(tmpDir))
	_, err := os.Stat(tmpDir)
	assert.True(t, os.IsNotExist(err))
}
