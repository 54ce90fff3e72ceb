package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the queryline API configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Model     ModelConfig     `yaml:"model"`
	Translate TranslateConfig `yaml:"translate"`
	Policy    PolicyConfig    `yaml:"policy"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds MongoDB connection settings.
type DatabaseConfig struct {
	URI              string `yaml:"uri"`
	Name             string `yaml:"name"`
	ReadinessTimeout int    `yaml:"readiness_timeout_sec"`
}

// ModelConfig holds completion service settings.
type ModelConfig struct {
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key"`
	Name        string  `yaml:"name"`
	Temperature float32 `yaml:"temperature"`
	TimeoutSec  int     `yaml:"timeout_sec"`
}

// TranslateConfig holds pipeline settings.
type TranslateConfig struct {
	DeadlineSec       int    `yaml:"deadline_sec"`
	ExecTimeoutSec    int    `yaml:"exec_timeout_sec"`
	MaxResults        int    `yaml:"max_results"`
	MaxResultBytes    int    `yaml:"max_result_bytes"`
	DefaultCollection string `yaml:"default_collection"`
	SchemaHints       string `yaml:"schema_hints"`
}

// PolicyConfig holds the query allow-list settings. Loaded once at startup
// and turned into an immutable policy.Policy.
type PolicyConfig struct {
	AllowedCollections []string `yaml:"allowed_collections"`
	AllowedOperations  []string `yaml:"allowed_operations"`
	ForbiddenOperators []string `yaml:"forbidden_operators"`
	MaxPayloadDepth    int      `yaml:"max_payload_depth"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 60
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.URI == "" {
		c.Database.URI = "mongodb://localhost:27017"
	}
	if c.Database.Name == "" {
		c.Database.Name = "louperdb"
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Model.Name == "" {
		c.Model.Name = "llama3.2"
	}
	if c.Model.TimeoutSec <= 0 {
		c.Model.TimeoutSec = 30
	}
	if c.Translate.DeadlineSec <= 0 {
		c.Translate.DeadlineSec = 45
	}
	if c.Translate.ExecTimeoutSec <= 0 {
		c.Translate.ExecTimeoutSec = 10
	}
	if c.Translate.MaxResults <= 0 {
		c.Translate.MaxResults = 100
	}
	if c.Translate.MaxResultBytes <= 0 {
		c.Translate.MaxResultBytes = 1 << 20
	}
	if c.Translate.DefaultCollection == "" {
		c.Translate.DefaultCollection = "users"
	}
	if len(c.Policy.AllowedOperations) == 0 {
		// Destructive operations are opt-in only.
		c.Policy.AllowedOperations = []string{"find", "count", "aggregate"}
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Policy.AllowedCollections) == 0 {
		return fmt.Errorf("policy.allowed_collections is required")
	}
	if c.Translate.DeadlineSec < c.Model.TimeoutSec {
		return fmt.Errorf(
			"translate.deadline_sec (%d) must not be shorter than model.timeout_sec (%d)",
			c.Translate.DeadlineSec, c.Model.TimeoutSec,
		)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
