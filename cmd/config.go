package cmd

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"daq-trigger/internal/timing"
	"daq-trigger/internal/trigger/application"
	"daq-trigger/internal/trigger/infrastructure/kafkaio"
)

// Config is the service configuration. Values come from env with an optional
// YAML file layered on top.
type Config struct {
	HTTP     HTTPConfig             `yaml:"http"`
	Database DatabaseConfig         `yaml:"database"`
	Kafka    kafkaio.Config         `yaml:"kafka"`
	Memory   MemoryConfig           `yaml:"memory"`
	Trigger  application.ConfParams `yaml:"trigger"`
	Timing   TimingConfig           `yaml:"timing"`
	Buffer   BufferConfig           `yaml:"buffer"`
	Notify   NotifyConfig           `yaml:"notify"`
	Auth     AuthConfig             `yaml:"auth"`
}

// HTTPConfig configures the control API listener.
type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig selects the run history store. Empty URL keeps history in memory.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// MemoryConfig sizes the in-process transport used when no brokers are set.
type MemoryConfig struct {
	QueueCapacity int `yaml:"queue_capacity"`
}

// TimingConfig enables the timing candidate maker.
type TimingConfig struct {
	Enabled             bool                `yaml:"enabled"`
	SignalConnection    string              `yaml:"signal_connection"`
	CandidateConnection string              `yaml:"candidate_connection"`
	QueueTimeout        time.Duration       `yaml:"queue_timeout"`
	Signals             []timing.SignalConf `yaml:"signals"`
}

// BufferConfig sizes the candidate history.
type BufferConfig struct {
	Capacity int `yaml:"capacity"`
}

// NotifyConfig configures end-of-run notifications.
type NotifyConfig struct {
	WebhookURL    string        `yaml:"webhook_url"`
	Template      string        `yaml:"template"`
	DedupeWindow  time.Duration `yaml:"dedupe_window"`
	Timeout       time.Duration `yaml:"timeout"`
	InhibitAlerts bool          `yaml:"inhibit_alerts"`
	PublicBaseURL string        `yaml:"public_base_url"`
}

// AuthConfig configures the control API authentication.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Disabled  bool   `yaml:"disabled"`
}

// UseKafka reports whether the Kafka transport is configured.
func (c Config) UseKafka() bool {
	return len(c.Kafka.Brokers) > 0
}

// LoadConfig loads config from env, then from the YAML file at path
// (or TRIGGER_CONFIG when path is empty).
func LoadConfig(path string) (Config, error) {
	cfg := Config{
		HTTP: HTTPConfig{
			Addr:            getenvDefault("HTTP_ADDR", ":8080"),
			ShutdownTimeout: getenvDuration("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			URL: getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		},
		Kafka: kafkaio.Config{
			Brokers:      splitCSV(os.Getenv("KAFKA_BROKERS")),
			TopicPrefix:  getenvDefault("KAFKA_TOPIC_PREFIX", "daq."),
			GroupID:      getenvDefault("KAFKA_GROUP_ID", "daq-trigger"),
			WriteTimeout: getenvDuration("KAFKA_WRITE_TIMEOUT", kafkaio.DefaultWriteTimeout),
		},
		Memory: MemoryConfig{QueueCapacity: getenvIntDefault("MEMORY_QUEUE_CAPACITY", 1024)},
		Timing: TimingConfig{
			SignalConnection:    "hsievents",
			CandidateConnection: "candidates",
			QueueTimeout:        100 * time.Millisecond,
		},
		Buffer: BufferConfig{Capacity: getenvIntDefault("CANDIDATE_HISTORY_CAPACITY", 4096)},
		Notify: NotifyConfig{
			WebhookURL:    os.Getenv("TRIGGER_WEBHOOK_URL"),
			DedupeWindow:  getenvDuration("TRIGGER_NOTIFY_DEDUP_WINDOW", 0),
			Timeout:       getenvDuration("TRIGGER_NOTIFY_TIMEOUT", 5*time.Second),
			PublicBaseURL: getenvDefault("TRIGGER_PUBLIC_BASE_URL", ""),
		},
		Auth: AuthConfig{
			JWTSecret: getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
			Disabled:  getenvBool("AUTH_DISABLED", false),
		},
	}

	if path == "" {
		path = os.Getenv("TRIGGER_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	if cfg.Buffer.Capacity <= 0 {
		return cfg, errors.New("config: buffer capacity must be positive")
	}
	if cfg.Memory.QueueCapacity <= 0 {
		return cfg, errors.New("config: memory queue capacity must be positive")
	}
	if !cfg.Auth.Disabled && cfg.Auth.JWTSecret == "" {
		return cfg, errors.New("config: AUTH_JWT_SECRET is required unless auth is disabled")
	}
	if cfg.Timing.Enabled && len(cfg.Timing.Signals) == 0 {
		return cfg, errors.New("config: timing enabled without signals")
	}
	return cfg, nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	var result []string
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}
