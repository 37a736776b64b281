package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
environment: production
cuit: "20123456789"
credentials:
  certFile: /etc/afip/cert.pem
  keyFile: /etc/afip/key.pem
transport:
  timeout: 10s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Environment)
	assert.False(t, cfg.Testing())
	assert.Equal(t, "20123456789", cfg.Cuit)
	assert.Equal(t, "wsfe", cfg.Service) // default
	assert.Equal(t, "/etc/afip/cert.pem", cfg.Credentials.CertFile)
	assert.Equal(t, 10*time.Second, cfg.Transport.Timeout)
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
cuit: "20123456789"
credentials:
  certFile: cert.pem
  keyFile: key.pem
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "testing", cfg.Environment)
	assert.True(t, cfg.Testing())
	assert.Equal(t, 30*time.Second, cfg.Transport.Timeout)
}

func TestLoad_ExpandsEnvironmentVariables(t *testing.T) {
	t.Setenv("AFIP_CUIT", "20999999991")
	path := writeConfig(t, `
cuit: "${AFIP_CUIT}"
credentials:
  certFile: cert.pem
  keyFile: key.pem
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "20999999991", cfg.Cuit)
}

func TestLoad_Validation(t *testing.T) {
	_, err := Load(writeConfig(t, `
environment: staging
cuit: "20123456789"
credentials:
  certFile: cert.pem
  keyFile: key.pem
`))
	assert.ErrorContains(t, err, "environment")

	_, err = Load(writeConfig(t, `
credentials:
  certFile: cert.pem
  keyFile: key.pem
`))
	assert.ErrorContains(t, err, "cuit")

	_, err = Load(writeConfig(t, `
cuit: "20123456789"
`))
	assert.ErrorContains(t, err, "certFile")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
