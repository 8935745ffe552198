package security

import (
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	certRotationThreshold = 30 * 24 * time.Hour
	defaultCertDir        = "cluster/certs"
)

// GetCertDir returns the certificate directory for endpointName, rooted
// at stateDir.
func GetCertDir(stateDir, endpointName string) string {
	return filepath.Join(stateDir, defaultCertDir, endpointName)
}

// CertExists reports whether certDir holds a complete endpoint
// cert/key/CA triple.
func CertExists(certDir string) bool {
	for _, name := range []string{"endpoint.crt", "endpoint.key", "ca.crt"} {
		if _, err := os.Stat(filepath.Join(certDir, name)); err != nil {
			return false
		}
	}
	return true
}

// RemoveCerts deletes certDir and everything under it, used before
// reissuing a certificate that CertNeedsRotation has flagged.
func RemoveCerts(certDir string) error {
	return os.RemoveAll(certDir)
}

// SaveCertToFile PEM-encodes cert and its RSA private key to
// certDir/endpoint.{crt,key}, creating certDir if needed.
func SaveCertToFile(cert *tls.Certificate, certDir string) error {
	if err := os.MkdirAll(certDir, 0700); err != nil {
		return fmt.Errorf("failed to create cert directory: %w", err)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Certificate[0]})
	if err := os.WriteFile(filepath.Join(certDir, "endpoint.crt"), certPEM, 0600); err != nil {
		return fmt.Errorf("failed to write certificate: %w", err)
	}

	privateKey, ok := cert.PrivateKey.(*rsa.PrivateKey)
	if !ok {
		return fmt.Errorf("private key is not RSA")
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(privateKey)})
	if err := os.WriteFile(filepath.Join(certDir, "endpoint.key"), keyPEM, 0600); err != nil {
		return fmt.Errorf("failed to write private key: %w", err)
	}

	return nil
}

// LoadCertFromFile loads the endpoint certificate and key from certDir,
// populating Leaf so callers can inspect it without re-parsing.
func LoadCertFromFile(certDir string) (*tls.Certificate, error) {
	cert, err := tls.LoadX509KeyPair(filepath.Join(certDir, "endpoint.crt"), filepath.Join(certDir, "endpoint.key"))
	if err != nil {
		return nil, fmt.Errorf("failed to load certificate: %w", err)
	}

	if cert.Leaf == nil {
		x509Cert, err := x509.ParseCertificate(cert.Certificate[0])
		if err != nil {
			return nil, fmt.Errorf("failed to parse certificate: %w", err)
		}
		cert.Leaf = x509Cert
	}

	return &cert, nil
}

// SaveCACertToFile writes the cluster CA's DER-encoded certificate to
// certDir/ca.crt.
func SaveCACertToFile(caCert []byte, certDir string) error {
	if err := os.MkdirAll(certDir, 0700); err != nil {
		return fmt.Errorf("failed to create cert directory: %w", err)
	}

	caPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: caCert})
	if err := os.WriteFile(filepath.Join(certDir, "ca.crt"), caPEM, 0644); err != nil {
		return fmt.Errorf("failed to write CA certificate: %w", err)
	}

	return nil
}

// LoadCACertFromFile reads and parses the cluster CA certificate from
// certDir/ca.crt.
func LoadCACertFromFile(certDir string) (*x509.Certificate, error) {
	caPEM, err := os.ReadFile(filepath.Join(certDir, "ca.crt"))
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate: %w", err)
	}

	block, _ := pem.Decode(caPEM)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("failed to decode CA certificate PEM")
	}

	caCert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse CA certificate: %w", err)
	}

	return caCert, nil
}

// CertNeedsRotation reports whether cert expires within
// certRotationThreshold, or is nil.
func CertNeedsRotation(cert *x509.Certificate) bool {
	if cert == nil {
		return true
	}
	return time.Until(cert.NotAfter) < certRotationThreshold
}

// GetCertExpiry returns cert's NotAfter, or the zero time for a nil cert.
func GetCertExpiry(cert *x509.Certificate) time.Time {
	if cert == nil {
		return time.Time{}
	}
	return cert.NotAfter
}

// GetCertTimeRemaining returns the duration until cert expires.
func GetCertTimeRemaining(cert *x509.Certificate) time.Duration {
	if cert == nil {
		return 0
	}
	return time.Until(cert.NotAfter)
}

// ValidateCertChain verifies that cert chains to ca for either TLS role.
func ValidateCertChain(cert, ca *x509.Certificate) error {
	if cert == nil {
		return fmt.Errorf("certificate is nil")
	}
	if ca == nil {
		return fmt.Errorf("CA certificate is nil")
	}

	roots := x509.NewCertPool()
	roots.AddCert(ca)

	opts := x509.VerifyOptions{
		Roots:     roots,
		KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
	}
	if _, err := cert.Verify(opts); err != nil {
		return fmt.Errorf("certificate verification failed: %w", err)
	}
	return nil
}

// CertInfo is a typed summary of a certificate, suitable for a startup
// log line or a future `sentryd certs status` command.
type CertInfo struct {
	Subject      string
	Issuer       string
	SerialNumber string
	NotBefore    time.Time
	NotAfter     time.Time
	IsCA         bool
	KeyUsage     []string
	ExtKeyUsage  []string
}

// GetCertInfo summarizes cert. A nil cert returns the zero CertInfo.
func GetCertInfo(cert *x509.Certificate) CertInfo {
	if cert == nil {
		return CertInfo{}
	}

	return CertInfo{
		Subject:      cert.Subject.CommonName,
		Issuer:       cert.Issuer.CommonName,
		SerialNumber: cert.SerialNumber.String(),
		NotBefore:    cert.NotBefore,
		NotAfter:     cert.NotAfter,
		IsCA:         cert.IsCA,
		KeyUsage:     keyUsageNames(cert.KeyUsage),
		ExtKeyUsage:  extKeyUsageNames(cert.ExtKeyUsage),
	}
}

func keyUsageNames(usage x509.KeyUsage) []string {
	var names []string
	if usage&x509.KeyUsageDigitalSignature != 0 {
		names = append(names, "DigitalSignature")
	}
	if usage&x509.KeyUsageKeyEncipherment != 0 {
		names = append(names, "KeyEncipherment")
	}
	if usage&x509.KeyUsageCertSign != 0 {
		names = append(names, "CertSign")
	}
	if usage&x509.KeyUsageCRLSign != 0 {
		names = append(names, "CRLSign")
	}
	return names
}

func extKeyUsageNames(usages []x509.ExtKeyUsage) []string {
	var names []string
	for _, usage := range usages {
		switch usage {
		case x509.ExtKeyUsageClientAuth:
			names = append(names, "ClientAuth")
		case x509.ExtKeyUsageServerAuth:
			names = append(names, "ServerAuth")
		}
	}
	return names
}
