package util

import (
	"crypto/tls"
	"crypto/x509"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSelfSignedCert(t *testing.T) {
	dir := t.TempDir()
	certFile := filepath.Join(dir, "tls", "cert.pem")
	keyFile := filepath.Join(dir, "tls", "key.pem")

	require.NoError(t, EnsureCert(certFile, keyFile, "localhost", "127.0.0.1"))

	pair, err := tls.LoadX509KeyPair(certFile, keyFile)
	require.NoError(t, err)
	leaf, err := x509.ParseCertificate(pair.Certificate[0])
	require.NoError(t, err)
	assert.Equal(t, []string{"localhost"}, leaf.DNSNames)
	require.Len(t, leaf.IPAddresses, 1)
	assert.Equal(t, "127.0.0.1", leaf.IPAddresses[0].String())

	info, err := os.Stat(keyFile)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	// existing pair is kept
	before, err := os.ReadFile(certFile)
	require.NoError(t, err)
	require.NoError(t, EnsureCert(certFile, keyFile))
	after, err := os.ReadFile(certFile)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestCleanOldLogs(t *testing.T) {
	dir := t.TempDir()
	names := []string{
		"tilehook_2026-01-01.log",
		"tilehook_2026-01-02.log",
		"tilehook_2026-01-03.log",
		"other.log",
	}
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("{}"), 0644))
	}

	cleanOldLogs(dir, 2)

	assert.NoFileExists(t, filepath.Join(dir, "tilehook_2026-01-01.log"))
	assert.FileExists(t, filepath.Join(dir, "tilehook_2026-01-02.log"))
	assert.FileExists(t, filepath.Join(dir, "tilehook_2026-01-03.log"))
	assert.FileExists(t, filepath.Join(dir, "other.log"))
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.5 KB", FormatBytes(1536))
	assert.Equal(t, "2.0 MB", FormatBytes(2*1024*1024))
}

func TestGetSystemInfo(t *testing.T) {
	info := GetSystemInfo()
	assert.NotEmpty(t, info.Architecture)
	assert.Positive(t, info.CPUCores)
	assert.True(t, FileExists(t.TempDir()))
}
