/*
Package security implements the cluster's certificate authority and the
on-disk cert/key material each endpoint uses for mutual TLS.

# Cluster Encryption Key

The CA's root private key is encrypted at rest with a 32-byte key derived
from an operator-supplied cluster ID:

	clusterKey = SHA-256(clusterID)

Call SetClusterEncryptionKey(DeriveKeyFromClusterID(id)) once at startup,
before CertAuthority.Load or Save.

# Usage

Bootstrapping a new cluster's CA:

	ca := security.NewCertAuthority(filepath.Join(stateDir, "cluster/ca.json"))
	if err := ca.Initialize(); err != nil { ... }
	if err := ca.Save(); err != nil { ... }

Issuing and persisting one endpoint's certificate:

	cert, err := ca.IssueEndpointCertificate("endpoint-a", dnsNames, ips)
	certDir := security.GetCertDir(stateDir, "endpoint-a")
	if err := security.SaveCertToFile(cert, certDir); err != nil { ... }
	if err := security.SaveCACertToFile(ca.GetRootCACert(), certDir); err != nil { ... }

pkg/cluster/endpoint loads these files back with LoadCertFromFile and
LoadCACertFromFile to build the tls.Config each connection uses; the peer's
CN (verified against the loaded CA) is its registry key.
*/
package security
