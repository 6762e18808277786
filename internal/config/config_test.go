package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnvDefaults(t *testing.T) {
	cfg := LoadFromEnv()

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 50.0, cfg.Matching.AmountTolerance)
	assert.Equal(t, 3, cfg.Matching.WindowSlackDays)
	assert.Equal(t, 0.55, cfg.Matching.MatchSimilarity)
	assert.Equal(t, 0.35, cfg.Matching.UncertainSimilarity)
	assert.False(t, cfg.Advisory.Enabled)
	assert.Equal(t, 15, cfg.Advisory.TimeoutSeconds)
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("DB_NAME", "recon_test")
	t.Setenv("MATCH_AMOUNT_TOLERANCE", "25.5")
	t.Setenv("MATCH_WINDOW_SLACK_DAYS", "5")
	t.Setenv("ADVISORY_ENABLED", "true")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg := LoadFromEnv()

	assert.Equal(t, "recon_test", cfg.Database.Name)
	assert.Equal(t, 25.5, cfg.Matching.AmountTolerance)
	assert.Equal(t, 5, cfg.Matching.WindowSlackDays)
	assert.True(t, cfg.Advisory.Enabled)
	assert.Equal(t, "sk-test", cfg.Advisory.APIKey)
}

func TestLoadFromYAML(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-from-env")

	yaml := `
server:
  addr: ":9090"
database:
  host: db.internal
  name: recon
matching:
  amount_tolerance: 30
advisory:
  enabled: true
  api_key: ${OPENAI_API_KEY}
logging:
  level: debug
  format: json
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 30.0, cfg.Matching.AmountTolerance)
	// Unset values fall back to defaults.
	assert.Equal(t, 3, cfg.Matching.WindowSlackDays)
	assert.Equal(t, 5432, cfg.Database.Port)
	// Environment expansion inside the file.
	assert.Equal(t, "sk-from-env", cfg.Advisory.APIKey)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{Host: "h", Port: 5433, User: "u", Password: "p", Name: "n", SSLMode: "disable"}
	assert.Equal(t, "host=h port=5433 user=u password=p dbname=n sslmode=disable", d.DSN())
}
