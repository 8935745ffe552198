package security

import (
	"crypto/x509"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCA(t *testing.T) *CertAuthority {
	t.Helper()
	require.NoError(t, SetClusterEncryptionKey(DeriveKeyFromClusterID("test-cluster")))
	caPath := filepath.Join(t.TempDir(), "ca.json")
	ca := NewCertAuthority(caPath)
	require.NoError(t, ca.Initialize())
	return ca
}

func TestInitializeCA(t *testing.T) {
	ca := newTestCA(t)

	assert.True(t, ca.IsInitialized())
	require.NotNil(t, ca.rootCert)
	require.NotNil(t, ca.rootKey)
	assert.True(t, ca.rootCert.IsCA)
	assert.WithinDuration(t, time.Now().Add(rootCAValidity), ca.rootCert.NotAfter, time.Hour)
}

func TestSaveLoadCA(t *testing.T) {
	ca1 := newTestCA(t)
	require.NoError(t, ca1.Save())

	ca2 := NewCertAuthority(ca1.caPath)
	require.NoError(t, ca2.Load())

	assert.True(t, ca2.IsInitialized())
	assert.True(t, ca1.rootCert.Equal(ca2.rootCert))
	assert.Equal(t, 0, ca1.rootKey.N.Cmp(ca2.rootKey.N))
}

func TestIssueEndpointCertificate(t *testing.T) {
	ca := newTestCA(t)

	cert, err := ca.IssueEndpointCertificate("endpoint-a", []string{}, []net.IP{})
	require.NoError(t, err)
	require.NotNil(t, cert.Leaf)

	assert.Equal(t, "endpoint-a", cert.Leaf.Subject.CommonName)
	assert.WithinDuration(t, time.Now().Add(endpointCertValidity), cert.Leaf.NotAfter, time.Hour)
	assert.NotZero(t, cert.Leaf.KeyUsage&x509.KeyUsageDigitalSignature)

	var hasClientAuth, hasServerAuth bool
	for _, usage := range cert.Leaf.ExtKeyUsage {
		hasClientAuth = hasClientAuth || usage == x509.ExtKeyUsageClientAuth
		hasServerAuth = hasServerAuth || usage == x509.ExtKeyUsageServerAuth
	}
	assert.True(t, hasClientAuth)
	assert.True(t, hasServerAuth)
}

func TestVerifyCertificate(t *testing.T) {
	ca := newTestCA(t)

	cert, err := ca.IssueEndpointCertificate("endpoint-b", []string{}, []net.IP{})
	require.NoError(t, err)

	assert.NoError(t, ca.VerifyCertificate(cert.Leaf))
}

func TestGetRootCACert(t *testing.T) {
	ca := newTestCA(t)

	rootCertDER := ca.GetRootCACert()
	require.NotNil(t, rootCertDER)

	parsedCert, err := x509.ParseCertificate(rootCertDER)
	require.NoError(t, err)
	assert.True(t, parsedCert.Equal(ca.rootCert))
}

func TestCertCache(t *testing.T) {
	ca := newTestCA(t)

	_, err := ca.IssueEndpointCertificate("endpoint-c", []string{}, []net.IP{})
	require.NoError(t, err)

	cached, exists := ca.GetCachedCert("endpoint-c")
	require.True(t, exists)
	require.NotNil(t, cached)
	assert.Equal(t, "endpoint-c", cached.Cert.Subject.CommonName)
}
