package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillcms/quill/pkg/observability"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("QUILL_POSTGRES_URL", "postgres://localhost/quill_test?sslmode=disable")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "5000", cfg.Server.Port)
	assert.Equal(t, "9090", cfg.Server.HealthPort)
	assert.Equal(t, time.Hour, cfg.Auth.AccessTokenTTL)
	assert.Equal(t, 1024, cfg.Auth.TokenCacheSize)
	assert.Equal(t, 90, cfg.Logs.RetentionDays)
	assert.Equal(t, observability.InfoLevel, cfg.Observability.LogLevel)
	assert.True(t, cfg.Observability.MetricsEnabled)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("QUILL_POSTGRES_URL", "postgres://localhost/quill_test?sslmode=disable")
	t.Setenv("QUILL_PORT", "8080")
	t.Setenv("QUILL_ACCESS_TOKEN_TTL", "15m")
	t.Setenv("QUILL_LOG_RETENTION_DAYS", "7")
	t.Setenv("QUILL_LOG_LEVEL", "debug")
	t.Setenv("QUILL_METRICS_ENABLED", "false")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 15*time.Minute, cfg.Auth.AccessTokenTTL)
	assert.Equal(t, 7, cfg.Logs.RetentionDays)
	assert.Equal(t, observability.DebugLevel, cfg.Observability.LogLevel)
	assert.False(t, cfg.Observability.MetricsEnabled)
}

func TestLoadConfig_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quill.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "7000"
database:
  url: postgres://localhost/quill_file?sslmode=disable
logs:
  retention_days: 30
`), 0o644))

	t.Setenv("QUILL_CONFIG", path)
	// Environment still wins over the file.
	t.Setenv("QUILL_PORT", "7100")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "7100", cfg.Server.Port)
	assert.Equal(t, "postgres://localhost/quill_file?sslmode=disable", cfg.Database.URL)
	assert.Equal(t, 30, cfg.Logs.RetentionDays)
}

func TestLoadConfig_MissingFileFails(t *testing.T) {
	t.Setenv("QUILL_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))
	_, err := LoadConfig()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := defaultConfig()
		cfg.Database.URL = "postgres://localhost/quill?sslmode=disable"
		return cfg
	}

	require.NoError(t, valid().Validate())

	cfg := valid()
	cfg.Database.URL = ""
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Server.HealthPort = cfg.Server.Port
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Auth.AccessTokenTTL = 0
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Upload.Include = []string{".png"}
	cfg.Upload.Exclude = []string{".exe"}
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Logs.RetentionDays = 0
	assert.Error(t, cfg.Validate())
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, observability.DebugLevel, parseLogLevel("debug"))
	assert.Equal(t, observability.WarnLevel, parseLogLevel("WARNING"))
	assert.Equal(t, observability.ErrorLevel, parseLogLevel("error"))
	assert.Equal(t, observability.InfoLevel, parseLogLevel("bogus"))
}
