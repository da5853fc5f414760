package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config represents the complete application configuration
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	LLM            LLMConfig            `yaml:"llm"`
	Database       DatabaseConfig       `yaml:"database"`
	Logging        LoggingConfig        `yaml:"logging"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	CorsOrigins     []string      `yaml:"cors_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LLMConfig locates the model catalog and tunes the adapters built from it
type LLMConfig struct {
	CatalogPath      string        `yaml:"catalog_path"`
	OllamaBaseURL    string        `yaml:"ollama_base_url"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	AdapterCacheSize int           `yaml:"adapter_cache_size"`
}

type DatabaseConfig struct {
	URL        string `yaml:"url"`
	Workers    int    `yaml:"workers"`
	BufferSize int    `yaml:"buffer_size"`
	// ResetModelConfig rewrites app_config from the catalog on every start
	ResetModelConfig bool `yaml:"reset_model_config"`
}

type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	ReportCaller bool   `yaml:"report_caller"`
}

type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	FailureThreshold uint32        `yaml:"failure_threshold"`
	Timeout          time.Duration `yaml:"timeout"`
	MaxRequests      uint32        `yaml:"max_requests"`
}

// LoadYAML loads configuration from YAML file with environment variable overrides.
// An empty path falls back to LOCKNO_APP_CONFIG, then config.yaml.
func LoadYAML(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = os.Getenv("LOCKNO_APP_CONFIG")
	}
	if configPath == "" {
		configPath = "config.yaml"
	}

	config := getDefaultConfig()

	if _, err := os.Stat(configPath); err == nil {
		yamlFile, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		// Expand environment variables in YAML content
		expandedYAML := os.ExpandEnv(string(yamlFile))

		if err := yaml.Unmarshal([]byte(expandedYAML), config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}

		logrus.WithField("config_file", configPath).Info("Loaded configuration from YAML file")
	} else {
		logrus.WithField("config_file", configPath).Warn("Config file not found, using defaults and environment variables")
	}

	config = applyEnvironmentOverrides(config)

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// getDefaultConfig returns a configuration with sensible defaults
func getDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "5000",
			CorsOrigins:     []string{"*"},
			ShutdownTimeout: 30 * time.Second,
		},
		LLM: LLMConfig{
			CatalogPath:      "config.json",
			OllamaBaseURL:    "http://localhost:11434",
			RequestTimeout:   120 * time.Second,
			AdapterCacheSize: 16,
		},
		Database: DatabaseConfig{
			URL:        "sqlite:lockno.db",
			Workers:    2,
			BufferSize: 1000,
		},
		Logging: LoggingConfig{
			Level:        "info",
			Format:       "auto",
			ReportCaller: false,
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:          true,
			FailureThreshold: 5,
			Timeout:          60 * time.Second,
			MaxRequests:      1,
		},
	}
}

// applyEnvironmentOverrides applies environment variable overrides to config
func applyEnvironmentOverrides(config *Config) *Config {
	// Server overrides
	if val := os.Getenv("HOST"); val != "" {
		config.Server.Host = val
	}
	if val := os.Getenv("PORT"); val != "" {
		config.Server.Port = val
	}
	if val := os.Getenv("CORS_ORIGINS"); val != "" {
		config.Server.CorsOrigins = strings.Split(val, ",")
		for i := range config.Server.CorsOrigins {
			config.Server.CorsOrigins[i] = strings.TrimSpace(config.Server.CorsOrigins[i])
		}
	}

	// LLM overrides
	if val := os.Getenv("LOCKNO_CONFIG"); val != "" {
		config.LLM.CatalogPath = val
	}
	if val := os.Getenv("OLLAMA_BASE_URL"); val != "" {
		config.LLM.OllamaBaseURL = val
	}
	if val := os.Getenv("LLM_REQUEST_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			config.LLM.RequestTimeout = d
		}
	}
	if val := os.Getenv("LLM_ADAPTER_CACHE_SIZE"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			config.LLM.AdapterCacheSize = i
		}
	}

	// Database overrides
	if val := os.Getenv("DATABASE_URL"); val != "" {
		config.Database.URL = val
	}
	if val := os.Getenv("DATABASE_WORKERS"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			config.Database.Workers = i
		}
	}
	if val := os.Getenv("DATABASE_BUFFER_SIZE"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			config.Database.BufferSize = i
		}
	}
	if val := os.Getenv("RESET_MODEL_CONFIG"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			config.Database.ResetModelConfig = b
		}
	}

	// Logging overrides
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		config.Logging.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		config.Logging.Format = val
	}
	if val := os.Getenv("LOG_REPORT_CALLER"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			config.Logging.ReportCaller = b
		}
	}

	// Circuit breaker overrides
	if val := os.Getenv("CIRCUIT_BREAKER_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			config.CircuitBreaker.Enabled = b
		}
	}
	if val := os.Getenv("CIRCUIT_BREAKER_FAILURE_THRESHOLD"); val != "" {
		if i, err := strconv.ParseUint(val, 10, 32); err == nil {
			config.CircuitBreaker.FailureThreshold = uint32(i)
		}
	}
	if val := os.Getenv("CIRCUIT_BREAKER_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			config.CircuitBreaker.Timeout = d
		}
	}
	if val := os.Getenv("CIRCUIT_BREAKER_MAX_REQUESTS"); val != "" {
		if i, err := strconv.ParseUint(val, 10, 32); err == nil {
			config.CircuitBreaker.MaxRequests = uint32(i)
		}
	}

	return config
}

// validateConfig validates the configuration and returns errors for invalid values
func validateConfig(config *Config) error {
	var errors []string

	if strings.TrimSpace(config.LLM.CatalogPath) == "" {
		errors = append(errors, "LOCKNO_CONFIG or llm.catalog_path must name the model catalog file")
	}

	if config.Database.URL == "" {
		errors = append(errors, "DATABASE_URL or database.url is required")
	}

	if config.Server.Port != "" {
		if port, err := strconv.Atoi(config.Server.Port); err != nil || port <= 0 || port > 65535 {
			errors = append(errors, fmt.Sprintf("PORT must be a valid TCP port (current: %q)", config.Server.Port))
		}
	}

	if config.LLM.RequestTimeout < 0 {
		errors = append(errors, fmt.Sprintf("LLM_REQUEST_TIMEOUT must not be negative (current: %s)", config.LLM.RequestTimeout))
	}

	if config.LLM.AdapterCacheSize < 0 {
		errors = append(errors, fmt.Sprintf("LLM_ADAPTER_CACHE_SIZE must not be negative (current: %d)", config.LLM.AdapterCacheSize))
	}

	if config.CircuitBreaker.Enabled && config.CircuitBreaker.FailureThreshold == 0 {
		errors = append(errors, "CIRCUIT_BREAKER_FAILURE_THRESHOLD must be at least 1 when the circuit breaker is enabled")
	}

	if _, err := logrus.ParseLevel(config.Logging.Level); err != nil {
		logrus.WithField("level", config.Logging.Level).Warn("Unknown log level, falling back to info")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

// Address returns the host:port the HTTP server listens on
func (c *Config) Address() string {
	return c.Server.Host + ":" + c.Server.Port
}

// Load reads the configuration from the default location
func Load() (*Config, error) {
	return LoadYAML("")
}
