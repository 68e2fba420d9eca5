package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/crate-ledger/config"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{config.EnvPort, config.EnvDBPath, config.EnvCORSOrigins, config.EnvMetrics} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := config.Load("", "")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "crates.db", cfg.Database.Path)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.NoError(t, cfg.Validate())
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	// GIVEN: A YAML file setting port, db path and timeouts
	// WHEN: CRATES_PORT is also set
	// THEN: The environment wins for port, YAML for everything else

	clearEnv(t)
	path := writeFile(t, "crates.yaml", `
server:
  port: 9000
  read_timeout: 5s
database:
  path: /var/lib/crates/ledger.db
cors:
  allowed_origins: ["https://ops.example.com"]
metrics:
  enabled: false
`)
	t.Setenv(config.EnvPort, "9100")

	cfg, err := config.Load(path, "")
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 15*time.Second, cfg.Server.WriteTimeout, "unset keys keep defaults")
	assert.Equal(t, "/var/lib/crates/ledger.db", cfg.Database.Path)
	assert.Equal(t, []string{"https://ops.example.com"}, cfg.CORS.AllowedOrigins)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv(config.EnvDBPath, ":memory:")
	t.Setenv(config.EnvCORSOrigins, "https://a.example.com, ,https://b.example.com")
	t.Setenv(config.EnvMetrics, "false")

	cfg, err := config.Load("", "")
	require.NoError(t, err)
	assert.Equal(t, ":memory:", cfg.Database.Path)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORS.AllowedOrigins)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoad_DotEnvFile(t *testing.T) {
	clearEnv(t)
	os.Unsetenv(config.EnvDBPath)
	envFile := writeFile(t, ".env", "CRATES_DB_PATH=from-dotenv.db\n")
	t.Cleanup(func() { os.Unsetenv(config.EnvDBPath) })

	cfg, err := config.Load("", envFile)
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv.db", cfg.Database.Path)

	// A missing .env is fine
	_, err = config.Load("", filepath.Join(t.TempDir(), "missing.env"))
	assert.NoError(t, err)
}

func TestLoad_Errors(t *testing.T) {
	clearEnv(t)

	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"), "")
	assert.ErrorContains(t, err, "failed to read config file")

	_, err = config.Load(writeFile(t, "bad.yaml", "server: [oops"), "")
	assert.ErrorContains(t, err, "failed to parse config file")

	t.Setenv(config.EnvPort, "eighty")
	_, err = config.Load("", "")
	assert.ErrorContains(t, err, config.EnvPort)
}

func TestValidate(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Port = 0
	assert.Error(t, cfg.Validate())

	cfg = config.Default()
	cfg.Database.Path = "  "
	assert.Error(t, cfg.Validate())

	cfg = config.Default()
	cfg.Server.WriteTimeout = 0
	assert.Error(t, cfg.Validate())
}
