package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads the yaml file at path, overlaid by environment variables
// (API_BASE_URL overrides api.base_url and so on). A missing file is not an
// error as long as the required keys come from the environment.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	applyDefaults(&c)
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// AutomaticEnv only resolves keys viper already knows about, so every leaf
// is bound explicitly.
func bindEnv(v *viper.Viper) {
	for _, k := range []string{
		"app.env", "app.listen_addr", "app.log_level",
		"api.base_url", "api.timeout_seconds", "api.retry_max_elapsed_seconds", "api.max_idle_conns",
		"ws.url", "ws.ping_interval_seconds", "ws.write_deadline_seconds", "ws.max_message_size_bytes", "ws.typing_rps",
		"breaker.max_failures", "breaker.interval_seconds", "breaker.timeout_seconds",
		"session.backend", "session.path", "session.key_prefix",
		"redis.addr", "redis.password", "redis.db",
		"kafka.brokers", "kafka.topic_notifications",
		"discovery.consul_addr", "discovery.api_service", "discovery.ws_service",
		"ui.typing_idle_ms", "ui.notification_ttl_seconds",
	} {
		_ = v.BindEnv(k)
	}
}

func applyDefaults(c *Config) {
	if c.App.Env == "" {
		c.App.Env = "production"
	}
	if c.App.ListenAddr == "" {
		c.App.ListenAddr = "127.0.0.1:8790"
	}
	if c.API.TimeoutSeconds == 0 {
		c.API.TimeoutSeconds = 15
	}
	if c.API.RetryMaxElapsedSeconds == 0 {
		c.API.RetryMaxElapsedSeconds = 5
	}
	if c.API.MaxIdleConns == 0 {
		c.API.MaxIdleConns = 16
	}
	if c.WS.PingIntervalSeconds == 0 {
		c.WS.PingIntervalSeconds = 25
	}
	if c.WS.WriteDeadlineSeconds == 0 {
		c.WS.WriteDeadlineSeconds = 10
	}
	if c.WS.MaxMessageSizeBytes == 0 {
		c.WS.MaxMessageSizeBytes = 65536
	}
	if c.WS.TypingRPS == 0 {
		c.WS.TypingRPS = 2
	}
	if c.Breaker.MaxFailures == 0 {
		c.Breaker.MaxFailures = 5
	}
	if c.Breaker.IntervalSeconds == 0 {
		c.Breaker.IntervalSeconds = 60
	}
	if c.Breaker.TimeoutSeconds == 0 {
		c.Breaker.TimeoutSeconds = 30
	}
	if c.Session.Backend == "" {
		c.Session.Backend = "file"
	}
	if c.Session.Path == "" {
		c.Session.Path = "session.yaml"
	}
	if c.Session.KeyPrefix == "" {
		c.Session.KeyPrefix = "realtime-client"
	}
	if c.Kafka.TopicNotifications == "" {
		c.Kafka.TopicNotifications = "client.notifications"
	}
	if c.Discovery.APIService == "" {
		c.Discovery.APIService = "api-gateway"
	}
	if c.Discovery.WSService == "" {
		c.Discovery.WSService = "websocket-service"
	}
	if c.UI.TypingIdleMs == 0 {
		c.UI.TypingIdleMs = 2000
	}
	if c.UI.NotificationTTLSeconds == 0 {
		c.UI.NotificationTTLSeconds = 10
	}

	c.APITimeout = time.Duration(c.API.TimeoutSeconds) * time.Second
	c.RetryMaxElapsed = time.Duration(c.API.RetryMaxElapsedSeconds) * time.Second
	c.PingInterval = time.Duration(c.WS.PingIntervalSeconds) * time.Second
	c.WriteDeadline = time.Duration(c.WS.WriteDeadlineSeconds) * time.Second
	c.BreakerInterval = time.Duration(c.Breaker.IntervalSeconds) * time.Second
	c.BreakerTimeout = time.Duration(c.Breaker.TimeoutSeconds) * time.Second
	c.TypingIdle = time.Duration(c.UI.TypingIdleMs) * time.Millisecond
	c.NotificationTTL = time.Duration(c.UI.NotificationTTLSeconds) * time.Second
}

func (c *Config) validate() error {
	if c.Discovery.ConsulAddr == "" {
		if c.API.BaseURL == "" {
			return errors.New("api.base_url (API_BASE_URL) or discovery.consul_addr is required")
		}
		if c.WS.URL == "" {
			return errors.New("ws.url (WS_URL) or discovery.consul_addr is required")
		}
	}
	switch c.Session.Backend {
	case "file":
	case "redis":
		if c.Redis.Addr == "" {
			return errors.New("redis.addr is required for the redis session backend")
		}
		if !strings.Contains(c.Redis.Addr, ":") {
			return fmt.Errorf("invalid redis.addr %q (must be host:port)", c.Redis.Addr)
		}
	default:
		return fmt.Errorf("unknown session.backend %q", c.Session.Backend)
	}
	return nil
}
