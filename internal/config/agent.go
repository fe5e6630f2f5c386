package config

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// AgentConfig holds remote agent configuration
type AgentConfig struct {
	ServerHost   string
	ComsPort     int
	SharedSecret string
	Name         string
	DataPath     string
	Environment  string
	LogLevel     string

	RegisterRetry     time.Duration
	SyncInterval      time.Duration
	FlushInterval     time.Duration
	HeartbeatEvery    time.Duration
	MaxConcurrent     int
	CheckTimeout      time.Duration
	TickInterval      time.Duration
	QueueCapacity     int
	RequestTimeout    time.Duration
	InsecureTransport bool
}

// LoadAgent loads agent configuration from an optional YAML file at path and the environment.
// Environment variables win over file values.
func LoadAgent(path string) (*AgentConfig, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	v.SetDefault("SERVER_HOST", "")
	v.SetDefault("COMS_PORT", 19443)
	v.SetDefault("AGENT_NAME", "")
	v.SetDefault("DATA_PATH", "./data")
	v.SetDefault("ENVIRONMENT", "production")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("REGISTER_RETRY_SECONDS", 30)
	v.SetDefault("SYNC_INTERVAL_SECONDS", 30)
	v.SetDefault("FLUSH_INTERVAL_SECONDS", 10)
	v.SetDefault("HEARTBEAT_SECONDS", 30)
	v.SetDefault("MAX_CONCURRENT_CHECKS", 10)
	v.SetDefault("CHECK_TIMEOUT_SECONDS", 10)
	v.SetDefault("SCHEDULER_TICK_SECONDS", 5)
	v.SetDefault("QUEUE_CAPACITY", 1000)
	v.SetDefault("REQUEST_TIMEOUT_SECONDS", 15)
	v.SetDefault("INSECURE_TRANSPORT", true)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read agent config %s: %w", path, err)
		}
	}

	cfg := &AgentConfig{
		ServerHost:        v.GetString("SERVER_HOST"),
		ComsPort:          v.GetInt("COMS_PORT"),
		SharedSecret:      v.GetString("SHARED_SECRET"),
		Name:              v.GetString("AGENT_NAME"),
		DataPath:          v.GetString("DATA_PATH"),
		Environment:       v.GetString("ENVIRONMENT"),
		LogLevel:          v.GetString("LOG_LEVEL"),
		RegisterRetry:     seconds(v, "REGISTER_RETRY_SECONDS"),
		SyncInterval:      seconds(v, "SYNC_INTERVAL_SECONDS"),
		FlushInterval:     seconds(v, "FLUSH_INTERVAL_SECONDS"),
		HeartbeatEvery:    seconds(v, "HEARTBEAT_SECONDS"),
		MaxConcurrent:     v.GetInt("MAX_CONCURRENT_CHECKS"),
		CheckTimeout:      seconds(v, "CHECK_TIMEOUT_SECONDS"),
		TickInterval:      seconds(v, "SCHEDULER_TICK_SECONDS"),
		QueueCapacity:     v.GetInt("QUEUE_CAPACITY"),
		RequestTimeout:    seconds(v, "REQUEST_TIMEOUT_SECONDS"),
		InsecureTransport: v.GetBool("INSECURE_TRANSPORT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("agent configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate validates the agent configuration
func (c *AgentConfig) Validate() error {
	if c.ServerHost == "" {
		return fmt.Errorf("SERVER_HOST is required")
	}
	if c.SharedSecret == "" {
		return fmt.Errorf("SHARED_SECRET is required")
	}
	if c.ComsPort < 1 || c.ComsPort > 65535 {
		return fmt.Errorf("COMS_PORT must be between 1 and 65535")
	}
	if c.MaxConcurrent < 1 {
		return fmt.Errorf("MAX_CONCURRENT_CHECKS must be at least 1")
	}
	if c.QueueCapacity < 1 {
		return fmt.Errorf("QUEUE_CAPACITY must be at least 1")
	}
	for name, d := range map[string]time.Duration{
		"REGISTER_RETRY_SECONDS":  c.RegisterRetry,
		"SYNC_INTERVAL_SECONDS":   c.SyncInterval,
		"FLUSH_INTERVAL_SECONDS":  c.FlushInterval,
		"HEARTBEAT_SECONDS":       c.HeartbeatEvery,
		"CHECK_TIMEOUT_SECONDS":   c.CheckTimeout,
		"SCHEDULER_TICK_SECONDS":  c.TickInterval,
		"REQUEST_TIMEOUT_SECONDS": c.RequestTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	return nil
}

// ServerURL returns the base URL of the server's agent channel
func (c *AgentConfig) ServerURL() string {
	scheme := "https"
	if c.InsecureTransport {
		scheme = "http"
	}
	return fmt.Sprintf("%s://%s", scheme, net.JoinHostPort(c.ServerHost, strconv.Itoa(c.ComsPort)))
}

func seconds(v *viper.Viper, key string) time.Duration {
	return time.Duration(v.GetInt(key)) * time.Second
}
