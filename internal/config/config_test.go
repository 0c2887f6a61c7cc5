package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_Environment(t *testing.T) {
	cfg := validConfig(t)
	require.NoError(t, cfg.Validate())

	cfg.App.Environment = "sandbox"
	assert.Error(t, cfg.Validate())

	cfg.App.Environment = ""
	assert.Error(t, cfg.Validate())
}

func TestValidate_LogLevel(t *testing.T) {
	cfg := validConfig(t)
	cfg.Logger.Level = "verbose"
	assert.Error(t, cfg.Validate())
}

func TestValidate_Thresholds(t *testing.T) {
	cfg := validConfig(t)
	cfg.Matcher.High = 1.5
	assert.Error(t, cfg.Validate())

	cfg = validConfig(t)
	cfg.Matcher.LLMFloor = 0.9 // above Medium
	assert.Error(t, cfg.Validate())
}

func TestValidate_LLMRequiresEndpoint(t *testing.T) {
	cfg := validConfig(t)
	cfg.LLM.Enabled = true
	cfg.LLM.Endpoint = ""
	assert.Error(t, cfg.Validate())

	cfg.LLM.Endpoint = "http://localhost:11434"
	assert.NoError(t, cfg.Validate())
}

func TestGetConfigValue_Precedence(t *testing.T) {
	t.Setenv("FIELDMAP_TEST_KEY", "from-env")

	assert.Equal(t, "from-flag", getConfigValue("from-flag", "FIELDMAP_TEST_KEY", "default"))
	assert.Equal(t, "from-env", getConfigValue("", "FIELDMAP_TEST_KEY", "default"))
	assert.Equal(t, "default", getConfigValue("", "FIELDMAP_TEST_MISSING", "default"))
}

func TestGetBoolConfigValue(t *testing.T) {
	t.Setenv("FIELDMAP_TEST_BOOL", "yes")
	assert.True(t, getBoolConfigValue("", "FIELDMAP_TEST_BOOL", false))

	t.Setenv("FIELDMAP_TEST_BOOL", "nope")
	assert.False(t, getBoolConfigValue("", "FIELDMAP_TEST_BOOL", true))

	assert.True(t, getBoolConfigValue("", "FIELDMAP_TEST_BOOL_MISSING", true))
}

func TestGetFloatConfigValue(t *testing.T) {
	t.Setenv("FIELDMAP_TEST_FLOAT", "0.75")
	assert.InDelta(t, 0.75, getFloatConfigValue("", "FIELDMAP_TEST_FLOAT", 0.5), 1e-9)

	t.Setenv("FIELDMAP_TEST_FLOAT", "not-a-number")
	assert.InDelta(t, 0.5, getFloatConfigValue("", "FIELDMAP_TEST_FLOAT", 0.5), 1e-9)
}

func TestParseDurationValue(t *testing.T) {
	d, err := parseDurationValue("", "FIELDMAP_TEST_DUR_MISSING", "2s")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, d)

	t.Setenv("FIELDMAP_TEST_DUR", "banana")
	_, err = parseDurationValue("", "FIELDMAP_TEST_DUR", "2s")
	assert.Error(t, err)
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	content := "# comment\nFIELDMAP_ENVFILE_KEY=hello\nFIELDMAP_ENVFILE_QUOTED=\"world\"\n"
	require.NoError(t, os.WriteFile(envPath, []byte(content), 0o600))

	t.Setenv("FIELDMAP_ENVFILE_KEY", "")
	t.Setenv("FIELDMAP_ENVFILE_QUOTED", "")
	require.NoError(t, loadEnvFile(envPath))

	assert.Equal(t, "hello", os.Getenv("FIELDMAP_ENVFILE_KEY"))
	assert.Equal(t, "world", os.Getenv("FIELDMAP_ENVFILE_QUOTED"))
}

func TestExpandPath(t *testing.T) {
	got, err := expandPath("", "/fallback")
	require.NoError(t, err)
	assert.Equal(t, "/fallback", got)

	got, err = expandPath("/already/abs", "")
	require.NoError(t, err)
	assert.Equal(t, "/already/abs", got)
}

// validConfig returns a config that passes Validate.
func validConfig(t *testing.T) *Config {
	t.Helper()
	return &Config{
		App:    AppConfig{Environment: "development"},
		Logger: LoggerConfig{Level: "info"},
		Server: ServerConfig{Port: "8080"},
		Store:  StoreConfig{DataPath: t.TempDir()},
		Matcher: MatcherConfig{
			High:             0.85,
			Medium:           0.70,
			LLMFloor:         0.40,
			Min:              0.70,
			LLMAccept:        0.60,
			AlternativeCount: 3,
			Workers:          4,
		},
	}
}
