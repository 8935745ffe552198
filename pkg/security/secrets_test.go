package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	require.NoError(t, SetClusterEncryptionKey(DeriveKeyFromClusterID("test-cluster")))

	plaintext := []byte("root CA private key material")
	ciphertext, err := Encrypt(plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, ciphertext)

	decrypted, err := Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestDecryptWithoutKeyFails(t *testing.T) {
	clusterEncryptionKey = nil
	_, err := Decrypt([]byte("anything"))
	assert.Error(t, err)
}

func TestSetClusterEncryptionKeyRejectsWrongSize(t *testing.T) {
	err := SetClusterEncryptionKey([]byte("too-short"))
	assert.Error(t, err)
}

func TestDeriveKeyFromClusterIDIsDeterministic(t *testing.T) {
	a := DeriveKeyFromClusterID("cluster-a")
	b := DeriveKeyFromClusterID("cluster-a")
	c := DeriveKeyFromClusterID("cluster-b")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 32)
}
