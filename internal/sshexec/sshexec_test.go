package sshexec

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// generateTestKey builds a throwaway RSA key as PKCS#1 PEM, so
// ssh.ParsePrivateKey accepts it without reaching a real host.
func generateTestKey(t *testing.T) string {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}
	return string(pem.EncodeToMemory(block))
}

func TestNewSSHExecutorRejectsInvalidKey(t *testing.T) {
	_, err := NewSSHExecutor("root", "not a key")
	require.Error(t, err)
}

func TestNewSSHExecutorAcceptsValidKey(t *testing.T) {
	key := generateTestKey(t)
	executor, err := NewSSHExecutor("root", key)
	require.NoError(t, err)
	assert.Equal(t, "root", executor.User)
}

func TestWriteEphemeralKeyPermissionsAndCleanup(t *testing.T) {
	key := generateTestKey(t)
	path, cleanup, err := writeEphemeralKey(key)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	cleanup()
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
