package config

import (
	"time"
)

type AppConfig struct {
	Env        string `mapstructure:"env"`
	ListenAddr string `mapstructure:"listen_addr"`
	LogLevel   string `mapstructure:"log_level"`
}

type APIConfig struct {
	BaseURL                string `mapstructure:"base_url"`
	TimeoutSeconds         int    `mapstructure:"timeout_seconds"`
	RetryMaxElapsedSeconds int    `mapstructure:"retry_max_elapsed_seconds"`
	MaxIdleConns           int    `mapstructure:"max_idle_conns"`
}

type WSConfig struct {
	URL                  string  `mapstructure:"url"`
	PingIntervalSeconds  int     `mapstructure:"ping_interval_seconds"`
	WriteDeadlineSeconds int     `mapstructure:"write_deadline_seconds"`
	MaxMessageSizeBytes  int64   `mapstructure:"max_message_size_bytes"`
	TypingRPS            float64 `mapstructure:"typing_rps"`
}

type BreakerConfig struct {
	MaxFailures     uint32 `mapstructure:"max_failures"`
	IntervalSeconds int    `mapstructure:"interval_seconds"`
	TimeoutSeconds  int    `mapstructure:"timeout_seconds"`
}

type SessionConfig struct {
	Backend   string `mapstructure:"backend"` // "file" or "redis"
	Path      string `mapstructure:"path"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers            []string `mapstructure:"brokers"`
	TopicNotifications string   `mapstructure:"topic_notifications"`
}

type DiscoveryConfig struct {
	ConsulAddr string `mapstructure:"consul_addr"`
	APIService string `mapstructure:"api_service"`
	WSService  string `mapstructure:"ws_service"`
}

type UIConfig struct {
	TypingIdleMs           int `mapstructure:"typing_idle_ms"`
	NotificationTTLSeconds int `mapstructure:"notification_ttl_seconds"`
}

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	API       APIConfig       `mapstructure:"api"`
	WS        WSConfig        `mapstructure:"ws"`
	Breaker   BreakerConfig   `mapstructure:"breaker"`
	Session   SessionConfig   `mapstructure:"session"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	UI        UIConfig        `mapstructure:"ui"`

	// derived
	APITimeout      time.Duration
	RetryMaxElapsed time.Duration
	PingInterval    time.Duration
	WriteDeadline   time.Duration
	BreakerInterval time.Duration
	BreakerTimeout  time.Duration
	TypingIdle      time.Duration
	NotificationTTL time.Duration
}

// Development reports whether the agent runs with development logging.
func (c *Config) Development() bool {
	return c.App.Env == "development" || c.App.Env == "dev"
}
