// Package config loads the bridge configuration from a YAML file and XJ1_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

const (
	EnvPrefix  = "XJ1"
	masked     = "***"
	configName = "config"
)

type Config struct {
	MQTT     MQTTConfig     `mapstructure:"mqtt" json:"mqtt"`
	Web      WebConfig      `mapstructure:"web" json:"web"`
	History  HistoryConfig  `mapstructure:"history" json:"history"`
	Realtime RealtimeConfig `mapstructure:"realtime" json:"realtime"`
	Message  MessageConfig  `mapstructure:"message" json:"message"`
	Log      LogConfig      `mapstructure:"log" json:"log"`

	v *viper.Viper
}

type MQTTConfig struct {
	BrokerHost        string        `mapstructure:"broker_host" json:"broker_host"`
	BrokerPort        int           `mapstructure:"broker_port" json:"broker_port"`
	Keepalive         int           `mapstructure:"keepalive" json:"keepalive"`
	ClientID          string        `mapstructure:"client_id" json:"client_id"`
	Username          string        `mapstructure:"username" json:"username"`
	Password          string        `mapstructure:"password" json:"password"`
	QoS               int           `mapstructure:"qos" json:"qos"`
	PublishTopic      string        `mapstructure:"publish_topic" json:"publish_topic"`
	SubscribeTopic    string        `mapstructure:"subscribe_topic" json:"subscribe_topic"`
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout" json:"connect_timeout"`
	PublishTimeout    time.Duration `mapstructure:"publish_timeout" json:"publish_timeout"`
	RequireConnection bool          `mapstructure:"require_connection" json:"require_connection"`
	ReconnectInterval time.Duration `mapstructure:"reconnect_interval" json:"reconnect_interval"`
	MailboxSize       int           `mapstructure:"mailbox_size" json:"mailbox_size"`
	BreakerTrips      int           `mapstructure:"breaker_trips" json:"breaker_trips"`
	BreakerCooloff    time.Duration `mapstructure:"breaker_cooloff" json:"breaker_cooloff"`
}

type WebConfig struct {
	Host      string `mapstructure:"host" json:"host"`
	Port      int    `mapstructure:"port" json:"port"`
	SecretKey string `mapstructure:"secret_key" json:"secret_key"`
}

type HistoryConfig struct {
	Capacity int `mapstructure:"capacity" json:"capacity"`
}

type RealtimeConfig struct {
	HistoryReplay int `mapstructure:"history_replay" json:"history_replay"`
	SendBuffer    int `mapstructure:"send_buffer" json:"send_buffer"`
}

type MessageConfig struct {
	DefaultMessage  string `mapstructure:"default_message" json:"default_message"`
	SendInterval    int    `mapstructure:"send_interval" json:"send_interval"`
	PeriodicEnabled bool   `mapstructure:"periodic_enabled" json:"periodic_enabled"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" json:"level"`
	Format string `mapstructure:"format" json:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mqtt.broker_host", "localhost")
	v.SetDefault("mqtt.broker_port", 1883)
	v.SetDefault("mqtt.keepalive", 60)
	v.SetDefault("mqtt.client_id", "xj1cloud-bridge")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.qos", 0)
	v.SetDefault("mqtt.publish_topic", "xj1core/data/send")
	v.SetDefault("mqtt.subscribe_topic", "xj1core/data/receive")
	v.SetDefault("mqtt.connect_timeout", "10s")
	v.SetDefault("mqtt.publish_timeout", "5s")
	v.SetDefault("mqtt.require_connection", true)
	v.SetDefault("mqtt.reconnect_interval", "0s")
	v.SetDefault("mqtt.mailbox_size", 1024)
	v.SetDefault("mqtt.breaker_trips", 5)
	v.SetDefault("mqtt.breaker_cooloff", "10s")

	v.SetDefault("web.host", "0.0.0.0")
	v.SetDefault("web.port", 5000)
	v.SetDefault("web.secret_key", "xj1core_web_secret_key_2025")

	v.SetDefault("history.capacity", 100)

	v.SetDefault("realtime.history_replay", 20)
	v.SetDefault("realtime.send_buffer", 64)

	v.SetDefault("message.default_message", "唐老师：您好吗？")
	v.SetDefault("message.send_interval", 5)
	v.SetDefault("message.periodic_enabled", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// LoadConfig reads path (or ./config.yaml when path is empty) and applies environment overrides.
// A missing default file is not an error; a missing explicit file is.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	cfg := &Config{v: v}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the bridge cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.MQTT.BrokerHost == "" {
		errs = append(errs, errors.New("mqtt.broker_host is required"))
	}
	if c.MQTT.BrokerPort <= 0 || c.MQTT.BrokerPort > 65535 {
		errs = append(errs, fmt.Errorf("mqtt.broker_port %d out of range", c.MQTT.BrokerPort))
	}
	if strings.TrimSpace(c.MQTT.PublishTopic) == "" {
		errs = append(errs, errors.New("mqtt.publish_topic is required"))
	}
	if strings.TrimSpace(c.MQTT.SubscribeTopic) == "" {
		errs = append(errs, errors.New("mqtt.subscribe_topic is required"))
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, fmt.Errorf("mqtt.qos %d must be 0, 1 or 2", c.MQTT.QoS))
	}
	if c.MQTT.ConnectTimeout <= 0 {
		errs = append(errs, errors.New("mqtt.connect_timeout must be positive"))
	}
	if c.MQTT.MailboxSize <= 0 {
		errs = append(errs, fmt.Errorf("mqtt.mailbox_size %d must be positive", c.MQTT.MailboxSize))
	}
	if c.MQTT.BreakerTrips < 0 {
		errs = append(errs, errors.New("mqtt.breaker_trips must not be negative"))
	}
	if c.MQTT.BreakerTrips > 0 && c.MQTT.BreakerCooloff <= 0 {
		errs = append(errs, errors.New("mqtt.breaker_cooloff must be positive when the breaker is enabled"))
	}
	if c.Web.Port <= 0 || c.Web.Port > 65535 {
		errs = append(errs, fmt.Errorf("web.port %d out of range", c.Web.Port))
	}
	if c.History.Capacity <= 0 {
		errs = append(errs, fmt.Errorf("history.capacity %d must be positive", c.History.Capacity))
	}
	if c.Realtime.HistoryReplay < 0 {
		errs = append(errs, errors.New("realtime.history_replay must not be negative"))
	}
	if c.Message.PeriodicEnabled && c.Message.SendInterval <= 0 {
		errs = append(errs, errors.New("message.send_interval must be positive when periodic sending is enabled"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: invalid: %w", errors.Join(errs...))
	}
	return nil
}

// Redacted returns a copy safe to expose over HTTP.
func (c *Config) Redacted() Config {
	out := *c
	out.v = nil
	if out.Web.SecretKey != "" {
		out.Web.SecretKey = masked
	}
	if out.MQTT.Password != "" {
		out.MQTT.Password = masked
	}
	return out
}

// ParseLevel maps a config level name onto slog; unknown names fall back to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WatchLogLevel re-applies log.level whenever the config file changes on disk.
// Nothing happens when no config file was loaded.
func (c *Config) WatchLogLevel(level *slog.LevelVar, logger *slog.Logger) {
	if c.v == nil || c.v.ConfigFileUsed() == "" {
		return
	}

	c.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		next := ParseLevel(c.v.GetString("log.level"))
		if next != level.Level() {
			level.Set(next)
			logger.Info("LOG_LEVEL_RELOADED", "level", next.String(), "file", e.Name)
		}
	})
	c.v.WatchConfig()
}
