package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func TestLoadConfigDefaults(t *testing.T) {
	resetViper(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Engine.Workers)
	assert.Equal(t, 25, cfg.Engine.BatchLimit)
	assert.True(t, cfg.Engine.TrustStructured)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, 8080, cfg.API.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Empty(t, cfg.Providers.VirusTotal.APIKey)
}

func TestLoadConfigFromEnv(t *testing.T) {
	resetViper(t)
	t.Setenv("ARGUS_VIRUSTOTAL_API_KEY", "vt-key")
	t.Setenv("ARGUS_WAZUH_PASSWORD", "s3cret")
	t.Setenv("ARGUS_WAZUH_URL", "https://manager:55000")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "vt-key", cfg.Providers.VirusTotal.APIKey)
	assert.Equal(t, "s3cret", cfg.Wazuh.Password)
	assert.Equal(t, "https://manager:55000", cfg.Wazuh.URL)
}

func TestLoadConfigRejectsUnknownBackends(t *testing.T) {
	resetViper(t)
	setDefaults()
	viper.Set("cache.backend", "memcached")

	var cfg Config
	require.NoError(t, viper.Unmarshal(&cfg))
	assert.Error(t, validateConfig(&cfg))
}

func TestValidateConfigPortBounds(t *testing.T) {
	resetViper(t)
	setDefaults()
	viper.Set("api.port", 0)

	var cfg Config
	require.NoError(t, viper.Unmarshal(&cfg))
	assert.Error(t, validateConfig(&cfg))
}
