// Package config loads ARIA's process configuration from the environment,
// per spec §6: every setting is an env var, with an optional .env file
// loaded first for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Provider names ARIA_PRIMARY_PROVIDER may select.
const (
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
	ProviderGoogle    = "google"
	ProviderBedrock   = "bedrock"
)

// Config is the fully resolved process configuration.
type Config struct {
	AnthropicAPIKey string
	GoogleAPIKey    string
	BedrockRegion   string

	PrimaryProvider string
	PrimaryModel    string

	MaxSteps  int
	MaxCostUSD float64

	DBPath  string
	LogPath string

	LogLevel string
}

// LogLevels are the values ARIA_LOG_LEVEL accepts.
var LogLevels = []string{"DEBUG", "INFO", "WARN", "ERROR"}

const (
	defaultMaxSteps   = 20
	defaultMaxCostUSD = 1.0
	defaultLogLevel   = "INFO"
)

// LoadEnvFile loads a .env file from path if present. A missing file is not
// an error; a malformed one is.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Load reads and validates the process configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		GoogleAPIKey:    os.Getenv("GOOGLE_API_KEY"),
		BedrockRegion:   os.Getenv("AWS_REGION"),
		PrimaryProvider: getOrDefault("ARIA_PRIMARY_PROVIDER", ProviderAnthropic),
		PrimaryModel:    os.Getenv("ARIA_PRIMARY_MODEL"),
		DBPath:          getOrDefault("ARIA_DB_PATH", "aria.db"),
		LogPath:         getOrDefault("ARIA_LOG_PATH", "aria.log"),
		LogLevel:        strings.ToUpper(getOrDefault("ARIA_LOG_LEVEL", defaultLogLevel)),
	}

	maxSteps, err := getPositiveInt("ARIA_MAX_STEPS", defaultMaxSteps)
	if err != nil {
		return nil, err
	}
	cfg.MaxSteps = maxSteps

	maxCost, err := getNonNegativeFloat("ARIA_MAX_COST_USD", defaultMaxCostUSD)
	if err != nil {
		return nil, err
	}
	cfg.MaxCostUSD = maxCost

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate enforces spec §6's constraints on an already-populated Config.
func (c *Config) Validate() error {
	if c.PrimaryModel == "" {
		return fmt.Errorf("ARIA_PRIMARY_MODEL is required")
	}
	if c.PrimaryProvider == ProviderAnthropic && c.AnthropicAPIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required when ARIA_PRIMARY_PROVIDER=anthropic")
	}
	if c.PrimaryProvider == ProviderGoogle && c.GoogleAPIKey == "" {
		return fmt.Errorf("GOOGLE_API_KEY is required when ARIA_PRIMARY_PROVIDER=google")
	}
	if !validLogLevel(c.LogLevel) {
		return fmt.Errorf("ARIA_LOG_LEVEL must be one of %s, got %q", strings.Join(LogLevels, ", "), c.LogLevel)
	}
	return nil
}

func validLogLevel(level string) bool {
	for _, l := range LogLevels {
		if l == level {
			return true
		}
	}
	return false
}

func getOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getPositiveInt(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, raw)
	}
	return n, nil
}

func getNonNegativeFloat(key string, def float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f < 0 {
		return 0, fmt.Errorf("%s must be a non-negative number, got %q", key, raw)
	}
	return f, nil
}
