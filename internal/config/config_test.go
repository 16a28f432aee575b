package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsWithFile(t *testing.T) {
	path := writeConfig(t, `
server:
  mode: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Server.Mode)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "qr-images", cfg.Images.Namespace)
	assert.Equal(t, 256, cfg.Images.Size)
	assert.Equal(t, 5*time.Minute, cfg.Redis.FreshTTL)
	assert.Equal(t, 5, cfg.Flow.Countdown)
	assert.Equal(t, "120-M", cfg.RateLimit.Rate)
	assert.Zero(t, cfg.Reconcile.Interval)
	assert.Equal(t, time.Minute, cfg.Reconcile.SettleWindow)
}

func TestLoad_FileOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  mode: release
  public_base_url: https://qr.example.com
database:
  driver: memory
auth:
  jwt_secret: s3cret
reconcile:
  interval: 1h
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "https://qr.example.com", cfg.Server.PublicBaseURL)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, time.Hour, cfg.Reconcile.Interval)
	assert.Equal(t, "0.0.0.0:9090", cfg.Server.Addr())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
server:
  mode: debug
database:
  host: file-host
`)
	t.Setenv("QRTRACK_DATABASE__HOST", "env-host")
	t.Setenv("QRTRACK_RATE_LIMIT__RATE", "10-S")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env-host", cfg.Database.Host)
	assert.Equal(t, "10-S", cfg.RateLimit.Rate)
}

func TestLoad_ReleaseRequiresSecret(t *testing.T) {
	path := writeConfig(t, `
server:
  mode: release
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt_secret")
}

func TestLoad_InvalidDriver(t *testing.T) {
	path := writeConfig(t, `
server:
  mode: debug
database:
  driver: mongo
`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Name: "n", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=n sslmode=disable", d.DSN())
}

func TestLoad_ImageNamespaceMustNotShadowRoutes(t *testing.T) {
	for _, ns := range append([]string{":codeId", "*all"}, ReservedNamespaces...) {
		path := writeConfig(t, `
server:
  mode: debug
images:
  namespace: "`+ns+`"
`)
		_, err := Load(path)
		assert.Error(t, err, ns)
	}

	path := writeConfig(t, `
server:
  mode: debug
images:
  namespace: codes
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "codes", cfg.Images.Namespace)
}
