package config

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds server configuration
type Config struct {
	Port        int
	AgentPort   int
	Database    DatabaseConfig
	Redis       RedisConfig
	JWTSecret   string
	Environment string
	LogLevel    string
	CORSOrigins []string

	// Scheduler and executor
	TickInterval        time.Duration
	MaxConcurrentChecks int
	CheckTimeout        time.Duration
	ResultRetentionDays int
	AlertRetentionDays  int
	SettingsCacheTTL    time.Duration

	// BlockPrivateTargets refuses probes of loopback, private and link-local addresses
	BlockPrivateTargets bool

	// Bootstrap values for the runtime settings store
	SharedSecret  string
	AllowedAgents []string

	// Generated is set when JWTSecret was generated because none was configured
	Generated bool
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Type         string // postgres
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
}

// RedisConfig configures the optional alert fan-out publisher
type RedisConfig struct {
	URL          string
	AlertChannel string
}

// Load loads configuration from environment variables and an optional CONFIG_FILE
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	if file := v.GetString("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
	}

	env := v.GetString("ENVIRONMENT")
	cfg := &Config{
		Port:      v.GetInt("PORT"),
		AgentPort: v.GetInt("AGENT_PORT"),
		Database: DatabaseConfig{
			Type:         v.GetString("DATABASE_TYPE"),
			DSN:          v.GetString("DATABASE_DSN"),
			MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		},
		Redis: RedisConfig{
			URL:          v.GetString("REDIS_URL"),
			AlertChannel: v.GetString("REDIS_ALERT_CHANNEL"),
		},
		JWTSecret:           v.GetString("JWT_SECRET"),
		Environment:         env,
		LogLevel:            v.GetString("LOG_LEVEL"),
		CORSOrigins:         loadCORSOrigins(v.GetString("APP_URL")),
		TickInterval:        time.Duration(v.GetInt("SCHEDULER_TICK_SECONDS")) * time.Second,
		MaxConcurrentChecks: v.GetInt("MAX_CONCURRENT_CHECKS"),
		CheckTimeout:        time.Duration(v.GetInt("CHECK_TIMEOUT_SECONDS")) * time.Second,
		ResultRetentionDays: v.GetInt("RESULT_RETENTION_DAYS"),
		AlertRetentionDays:  v.GetInt("ALERT_RETENTION_DAYS"),
		SettingsCacheTTL:    time.Duration(v.GetInt("SETTINGS_CACHE_SECONDS")) * time.Second,
		BlockPrivateTargets: v.GetBool("BLOCK_PRIVATE_TARGETS"),
		SharedSecret:        v.GetString("SHARED_SECRET"),
		AllowedAgents:       splitAndTrim(v.GetString("ALLOWED_AGENT_UUIDS"), ","),
	}

	if cfg.Database.DSN == "" {
		cfg.Database.DSN = buildPostgresDSN(v)
	}

	// Generate a throwaway secret outside production
	if cfg.JWTSecret == "" && env != "production" {
		cfg.JWTSecret = generateRandomSecret()
		cfg.Generated = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENVIRONMENT", "production")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("PORT", 8080)
	v.SetDefault("AGENT_PORT", 19443)
	v.SetDefault("DATABASE_TYPE", "postgres")
	v.SetDefault("DB_MAX_OPEN_CONNS", 25)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("POSTGRES_HOST", "localhost")
	v.SetDefault("POSTGRES_PORT", "5432")
	v.SetDefault("POSTGRES_USER", "onlinetracker")
	v.SetDefault("POSTGRES_PASSWORD", "secret")
	v.SetDefault("POSTGRES_DB", "onlinetracker")
	v.SetDefault("POSTGRES_SSLMODE", "disable")
	v.SetDefault("REDIS_ALERT_CHANNEL", "onlinetracker:alerts")
	v.SetDefault("SCHEDULER_TICK_SECONDS", 5)
	v.SetDefault("MAX_CONCURRENT_CHECKS", 10)
	v.SetDefault("CHECK_TIMEOUT_SECONDS", 10)
	v.SetDefault("RESULT_RETENTION_DAYS", 365)
	v.SetDefault("ALERT_RETENTION_DAYS", 90)
	v.SetDefault("SETTINGS_CACHE_SECONDS", 5)
	v.SetDefault("BLOCK_PRIVATE_TARGETS", false)
}

func buildPostgresDSN(v *viper.Viper) string {
	u := url.URL{
		Scheme: "postgresql",
		User:   url.UserPassword(v.GetString("POSTGRES_USER"), v.GetString("POSTGRES_PASSWORD")),
		Host:   fmt.Sprintf("%s:%s", v.GetString("POSTGRES_HOST"), v.GetString("POSTGRES_PORT")),
		Path:   v.GetString("POSTGRES_DB"),
	}

	query := u.Query()
	query.Set("sslmode", v.GetString("POSTGRES_SSLMODE"))
	u.RawQuery = query.Encode()

	return u.String()
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Environment == "production" {
		if len(c.JWTSecret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 characters in production")
		}
		insecureSecrets := []string{"change-me-in-production", "secret", "password", "changeme"}
		for _, insecure := range insecureSecrets {
			if c.JWTSecret == insecure || c.SharedSecret == insecure {
				return fmt.Errorf("JWT_SECRET or SHARED_SECRET is set to an insecure default value")
			}
		}
	}

	if c.Database.Type != "postgres" {
		return fmt.Errorf("unsupported database type: %s", c.Database.Type)
	}

	if c.Port == c.AgentPort {
		return fmt.Errorf("PORT and AGENT_PORT must differ")
	}

	if c.TickInterval <= 0 {
		return fmt.Errorf("SCHEDULER_TICK_SECONDS must be positive")
	}

	if c.MaxConcurrentChecks < 1 {
		return fmt.Errorf("MAX_CONCURRENT_CHECKS must be at least 1")
	}

	if c.CheckTimeout <= 0 {
		return fmt.Errorf("CHECK_TIMEOUT_SECONDS must be positive")
	}

	if c.ResultRetentionDays < 1 {
		return fmt.Errorf("RESULT_RETENTION_DAYS must be at least 1")
	}

	if c.AlertRetentionDays < 1 {
		return fmt.Errorf("ALERT_RETENTION_DAYS must be at least 1")
	}

	return nil
}

func loadCORSOrigins(appURL string) []string {
	if appURL = strings.TrimRight(appURL, "/"); appURL != "" {
		return []string{appURL}
	}
	return []string{"http://localhost:3000", "http://localhost:8080"}
}

func splitAndTrim(s, sep string) []string {
	parts := []string{}
	for _, part := range strings.Split(s, sep) {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}

func generateRandomSecret() string {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		panic(fmt.Sprintf("failed to generate random secret: %v", err))
	}
	return base64.URLEncoding.EncodeToString(bytes)
}
