// Package config provides centralized configuration management.
//
// Configuration can be loaded from:
//  1. YAML file (config.yaml)
//  2. Environment variables (fallback)
//
// A .env file, when present, is loaded into the environment by the server
// entry point before this package reads anything.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config represents the entire application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Matching MatchingConfig `yaml:"matching"`
	Advisory AdvisoryConfig `yaml:"advisory"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

// DSN renders the Postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// MatchingConfig holds the engine tunables. Thresholds not listed here keep
// the engine defaults.
type MatchingConfig struct {
	AmountTolerance     float64 `yaml:"amount_tolerance"`
	WindowSlackDays     int     `yaml:"window_slack_days"`
	MatchSimilarity     float64 `yaml:"match_similarity"`
	UncertainSimilarity float64 `yaml:"uncertain_similarity"`
}

// AdvisoryConfig holds the optional reasoning-service settings.
type AdvisoryConfig struct {
	Enabled        bool   `yaml:"enabled"`
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads and parses the config file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g., ${OPENAI_API_KEY})
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// LoadFromEnv loads configuration from environment variables only
func LoadFromEnv() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Addr: getEnv("SERVER_ADDR", ":8080"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			Name:     getEnv("DB_NAME", "reconciliation"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Matching: MatchingConfig{
			AmountTolerance:     getEnvFloat("MATCH_AMOUNT_TOLERANCE", 50),
			WindowSlackDays:     getEnvInt("MATCH_WINDOW_SLACK_DAYS", 3),
			MatchSimilarity:     getEnvFloat("MATCH_SIMILARITY_THRESHOLD", 0.55),
			UncertainSimilarity: getEnvFloat("MATCH_UNCERTAIN_THRESHOLD", 0.35),
		},
		Advisory: AdvisoryConfig{
			Enabled:        getEnvBool("ADVISORY_ENABLED", false),
			APIKey:         os.Getenv("OPENAI_API_KEY"),
			Model:          getEnv("ADVISORY_MODEL", "gpt-4o-mini"),
			TimeoutSeconds: getEnvInt("ADVISORY_TIMEOUT_SECONDS", 15),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}
	cfg.applyDefaults()
	return cfg
}

// LoadOrEnv prefers config.yaml and falls back to the environment.
func LoadOrEnv() *Config {
	if cfg, err := Load("config.yaml"); err == nil {
		return cfg
	}
	return LoadFromEnv()
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Matching.AmountTolerance == 0 {
		c.Matching.AmountTolerance = 50
	}
	if c.Matching.WindowSlackDays == 0 {
		c.Matching.WindowSlackDays = 3
	}
	if c.Matching.MatchSimilarity == 0 {
		c.Matching.MatchSimilarity = 0.55
	}
	if c.Matching.UncertainSimilarity == 0 {
		c.Matching.UncertainSimilarity = 0.35
	}
	if c.Advisory.Model == "" {
		c.Advisory.Model = "gpt-4o-mini"
	}
	if c.Advisory.TimeoutSeconds == 0 {
		c.Advisory.TimeoutSeconds = 15
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
