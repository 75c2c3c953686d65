package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration (file + env overrides)
type Config struct {
	Server struct {
		Addr     string `mapstructure:"addr"`
		LogLevel string `mapstructure:"log_level"`
	} `mapstructure:"server"`

	Postgres struct {
		Host         string `mapstructure:"host"`
		Port         int    `mapstructure:"port"`
		User         string `mapstructure:"user"`
		Password     string `mapstructure:"password"`
		DBName       string `mapstructure:"db_name"`
		SSLMode      string `mapstructure:"ssl_mode"`
		MaxOpenConns int    `mapstructure:"max_open_conns"`
		MaxIdleConns int    `mapstructure:"max_idle_conns"`
	} `mapstructure:"postgres"`

	Redis struct {
		Addr      string `mapstructure:"addr"`
		Password  string `mapstructure:"password"`
		DB        int    `mapstructure:"db"`
		TagPrefix string `mapstructure:"tag_set_prefix"`
		FetchKey  string `mapstructure:"fetch_queue_key"`
	} `mapstructure:"redis"`

	Engine struct {
		Shards             int `mapstructure:"shards"`
		TriggerQueueSize   int `mapstructure:"trigger_queue_size"`
		LookupWorkers      int `mapstructure:"lookup_workers"`
		DispatchWorkers    int `mapstructure:"dispatch_workers"`
		ReaperIntervalMS   int `mapstructure:"reaper_interval_ms"`
		LookupAttempts     int `mapstructure:"lookup_attempts"`
		DispatchAttempts   int `mapstructure:"dispatch_attempts"`
		BackoffBaseMS      int `mapstructure:"backoff_base_ms"`
		WebhookTimeoutSecs int `mapstructure:"webhook_timeout_seconds"`
	} `mapstructure:"engine"`

	Accounts struct {
		BaseURL     string `mapstructure:"base_url"`
		TimeoutSecs int    `mapstructure:"timeout_seconds"`
	} `mapstructure:"accounts"`

	Listener struct {
		Channel          string `mapstructure:"channel"`
		ReconnectSeconds int    `mapstructure:"reconnect_seconds"`
	} `mapstructure:"listener"`
}

func Load() Config {
	v := viper.New()
	v.SetConfigName("application")
	v.SetConfigType("yaml")
	v.AddConfigPath("configs")
	_ = v.ReadInConfig() // optional; env can fully configure

	v.SetEnvPrefix("APP")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Errorf("unable to decode config: %w", err))
	}
	validate(&cfg)
	return cfg
}

func validate(c *Config) {
	if c.Server.Addr == "" { c.Server.Addr = ":8080" }
	if c.Postgres.Port == 0 { c.Postgres.Port = 5432 }
	if c.Postgres.SSLMode == "" { c.Postgres.SSLMode = "disable" }
	if c.Postgres.MaxOpenConns == 0 { c.Postgres.MaxOpenConns = 10 }
	if c.Postgres.MaxIdleConns == 0 { c.Postgres.MaxIdleConns = 10 }
	if c.Redis.Addr == "" { c.Redis.Addr = "localhost:6379" }
	if c.Redis.TagPrefix == "" { c.Redis.TagPrefix = "wallet_tags" }
	if c.Redis.FetchKey == "" { c.Redis.FetchKey = "fetch_queue" }
	if c.Engine.Shards <= 0 { c.Engine.Shards = 16 }
	if c.Engine.TriggerQueueSize <= 0 { c.Engine.TriggerQueueSize = 256 }
	if c.Engine.LookupWorkers <= 0 { c.Engine.LookupWorkers = 8 }
	if c.Engine.DispatchWorkers <= 0 { c.Engine.DispatchWorkers = 8 }
	if c.Engine.ReaperIntervalMS <= 0 { c.Engine.ReaperIntervalMS = 500 }
	if c.Engine.LookupAttempts <= 0 { c.Engine.LookupAttempts = 3 }
	if c.Engine.DispatchAttempts <= 0 { c.Engine.DispatchAttempts = 3 }
	if c.Engine.BackoffBaseMS <= 0 { c.Engine.BackoffBaseMS = 100 }
	if c.Engine.WebhookTimeoutSecs <= 0 { c.Engine.WebhookTimeoutSecs = 5 }
	if c.Accounts.BaseURL == "" { c.Accounts.BaseURL = "http://localhost:8090" }
	if c.Accounts.TimeoutSecs <= 0 { c.Accounts.TimeoutSecs = 3 }
	if c.Listener.Channel == "" { c.Listener.Channel = "campaign_change" }
	if c.Listener.ReconnectSeconds <= 0 { c.Listener.ReconnectSeconds = 5 }
}

func (c Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Postgres.User,
		c.Postgres.Password,
		c.Postgres.Host,
		c.Postgres.Port,
		c.Postgres.DBName,
		c.Postgres.SSLMode,
	)
}

func (c Config) Backoff() time.Duration { return time.Duration(c.Listener.ReconnectSeconds) * time.Second }

func (c Config) ReaperInterval() time.Duration {
	return time.Duration(c.Engine.ReaperIntervalMS) * time.Millisecond
}

func (c Config) BackoffBase() time.Duration { return time.Duration(c.Engine.BackoffBaseMS) * time.Millisecond }

func (c Config) WebhookTimeout() time.Duration {
	return time.Duration(c.Engine.WebhookTimeoutSecs) * time.Second
}

func (c Config) AccountsTimeout() time.Duration {
	return time.Duration(c.Accounts.TimeoutSecs) * time.Second
}
