// Package config loads service configuration from file and environment.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the Argus service
type Config struct {
	Wazuh struct {
		URL                string `mapstructure:"url"`
		Username           string `mapstructure:"username"`
		Password           string `mapstructure:"password"`
		InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`
		TimeoutSeconds     int    `mapstructure:"timeout_seconds"`
	} `mapstructure:"wazuh"`

	Providers struct {
		VirusTotal struct {
			APIKey  string `mapstructure:"api_key"`
			BaseURL string `mapstructure:"base_url"`
		} `mapstructure:"virustotal"`
		AbuseIPDB struct {
			APIKey  string `mapstructure:"api_key"`
			BaseURL string `mapstructure:"base_url"`
		} `mapstructure:"abuseipdb"`
		OTX struct {
			APIKey  string `mapstructure:"api_key"`
			BaseURL string `mapstructure:"base_url"`
		} `mapstructure:"otx"`
		TimeoutSeconds int     `mapstructure:"timeout_seconds"`
		RatePerSecond  float64 `mapstructure:"rate_per_second"`
		Burst          int     `mapstructure:"burst"`
	} `mapstructure:"providers"`

	Engine struct {
		Workers         int  `mapstructure:"workers"`
		QueueSize       int  `mapstructure:"queue_size"`
		TrustStructured bool `mapstructure:"trust_structured_fields"`
		BatchLimit      int  `mapstructure:"batch_limit"`
		// PollInterval enables periodic batch enrichment in serve mode.
		// Zero disables polling; batches then run only via the API or CLI.
		PollInterval time.Duration `mapstructure:"poll_interval"`
		PollSeverity string        `mapstructure:"poll_severity"`
	} `mapstructure:"engine"`

	Cache struct {
		// Backend is "memory", "redis" or "none".
		Backend    string        `mapstructure:"backend"`
		TTL        time.Duration `mapstructure:"ttl"`
		MemorySize int           `mapstructure:"memory_size"`
		Redis      struct {
			Addr     string `mapstructure:"addr"`
			Password string `mapstructure:"password"`
			DB       int    `mapstructure:"db"`
		} `mapstructure:"redis"`
	} `mapstructure:"cache"`

	Storage struct {
		// Backend is "mongodb", "sqlite" or "memory".
		Backend string `mapstructure:"backend"`
		MongoDB struct {
			URI      string `mapstructure:"uri"`
			Database string `mapstructure:"database"`
		} `mapstructure:"mongodb"`
		SQLitePath string `mapstructure:"sqlite_path"`
	} `mapstructure:"storage"`

	API struct {
		Host string `mapstructure:"host"`
		Port int    `mapstructure:"port"`
	} `mapstructure:"api"`

	Logging struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"logging"`
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("wazuh.timeout_seconds", 10)
	viper.SetDefault("wazuh.insecure_skip_verify", false)

	viper.SetDefault("providers.timeout_seconds", 10)
	viper.SetDefault("providers.rate_per_second", 4)
	viper.SetDefault("providers.burst", 4)

	viper.SetDefault("engine.workers", 8)
	viper.SetDefault("engine.queue_size", 256)
	viper.SetDefault("engine.trust_structured_fields", true)
	viper.SetDefault("engine.batch_limit", 25)
	viper.SetDefault("engine.poll_interval", "0s")
	viper.SetDefault("engine.poll_severity", "")

	viper.SetDefault("cache.backend", "memory")
	viper.SetDefault("cache.ttl", "1h")
	viper.SetDefault("cache.memory_size", 4096)
	viper.SetDefault("cache.redis.addr", "localhost:6379")
	viper.SetDefault("cache.redis.db", 0)

	viper.SetDefault("storage.backend", "memory")
	viper.SetDefault("storage.mongodb.uri", "mongodb://localhost:27017")
	viper.SetDefault("storage.mongodb.database", "argus")
	viper.SetDefault("storage.sqlite_path", "./data/argus.db")

	viper.SetDefault("api.host", "0.0.0.0")
	viper.SetDefault("api.port", 8080)

	viper.SetDefault("logging.level", "info")
}

// loadFromEnv sets up environment variable loading
func loadFromEnv() {
	viper.SetEnvPrefix("ARGUS")
	viper.AutomaticEnv()

	// Explicit bindings so secrets can use short, conventional names
	_ = viper.BindEnv("wazuh.url", "ARGUS_WAZUH_URL")
	_ = viper.BindEnv("wazuh.username", "ARGUS_WAZUH_USERNAME")
	_ = viper.BindEnv("wazuh.password", "ARGUS_WAZUH_PASSWORD")
	_ = viper.BindEnv("providers.virustotal.api_key", "ARGUS_VIRUSTOTAL_API_KEY")
	_ = viper.BindEnv("providers.abuseipdb.api_key", "ARGUS_ABUSEIPDB_API_KEY")
	_ = viper.BindEnv("providers.otx.api_key", "ARGUS_OTX_API_KEY")
	_ = viper.BindEnv("cache.redis.password", "ARGUS_REDIS_PASSWORD")
	_ = viper.BindEnv("storage.mongodb.uri", "ARGUS_MONGODB_URI")
}

// validateConfig validates the configuration for correctness
func validateConfig(config *Config) error {
	switch config.Cache.Backend {
	case "memory", "redis", "none":
	default:
		return fmt.Errorf("invalid cache backend %q (want memory, redis or none)", config.Cache.Backend)
	}
	switch config.Storage.Backend {
	case "mongodb", "sqlite", "memory":
	default:
		return fmt.Errorf("invalid storage backend %q (want mongodb, sqlite or memory)", config.Storage.Backend)
	}
	if config.API.Port < 1 || config.API.Port > 65535 {
		return fmt.Errorf("invalid API port %d", config.API.Port)
	}
	if config.Engine.Workers < 1 {
		return fmt.Errorf("engine workers must be at least 1, got %d", config.Engine.Workers)
	}
	if config.Engine.BatchLimit < 1 {
		return fmt.Errorf("engine batch limit must be at least 1, got %d", config.Engine.BatchLimit)
	}
	if config.Engine.PollInterval < 0 {
		return fmt.Errorf("engine poll interval must not be negative, got %s", config.Engine.PollInterval)
	}
	if config.Cache.TTL <= 0 {
		return fmt.Errorf("cache TTL must be positive, got %s", config.Cache.TTL)
	}
	return nil
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	setDefaults()
	loadFromEnv()

	if err := viper.ReadInConfig(); err != nil {
		// Config file not found, will use defaults and env vars
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &config, nil
}
