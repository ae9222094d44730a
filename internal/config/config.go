package config

import (
    "time"

    "github.com/spf13/viper"
)

// Config holds all configuration for the CTI server
type Config struct {
    Orange     OrangeConfig
    Asterisk   AsteriskConfig
    Database   DatabaseConfig
    Redis      RedisConfig
    Monitoring MonitoringConfig
}

// OrangeConfig covers the client-facing listener and wire options
type OrangeConfig struct {
    Port                 int
    SingleQuoteHandshake bool
    HeartbeatTimeout     time.Duration
    WorkerCount          int
}

type AsteriskConfig struct {
    Host              string
    Port              int
    Username          string
    Secret            string
    ReconnectInterval time.Duration
    ActionTimeout     time.Duration
}

type DatabaseConfig struct {
    Host            string
    Port            int
    Name            string
    Username        string
    Password        string
    MaxOpenConns    int
    MaxIdleConns    int
    ConnMaxLifetime time.Duration
    RetryAttempts   int
    RetryDelay      time.Duration
}

type RedisConfig struct {
    Host         string
    Port         int
    Password     string
    DB           int
    PoolSize     int
    MinIdleConns int
    MaxRetries   int
}

type MonitoringConfig struct {
    MetricsEnabled bool
    MetricsPort    int
    HealthEnabled  bool
    HealthPort     int
    Logging        LoggingConfig
}

type LoggingConfig struct {
    Level  string
    Format string
    File   struct {
        Enabled    bool
        Path       string
        MaxSize    int
        MaxBackups int
        MaxAge     int
        Compress   bool
    }
}

// SetDefaults registers every recognized key with its default value.
// Keys follow the section/key layout of the legacy orange.ini file.
func SetDefaults(v *viper.Viper) {
    v.SetDefault("orange.port", 18279)
    v.SetDefault("orange.single_quote_handshake", false)
    v.SetDefault("orange.heartbeat_timeout", "20s")
    v.SetDefault("orange.worker_count", 0)

    v.SetDefault("asterisk.host", "localhost")
    v.SetDefault("asterisk.port", 5038)
    v.SetDefault("asterisk.username", "")
    v.SetDefault("asterisk.secret", "")
    v.SetDefault("asterisk.reconnect_interval", "15s")
    v.SetDefault("asterisk.action_timeout", "10s")

    v.SetDefault("database.host", "localhost")
    v.SetDefault("database.port", 5432)
    v.SetDefault("database.name", "orange")
    v.SetDefault("database.username", "orange")
    v.SetDefault("database.password", "")
    v.SetDefault("database.max_open_conns", 25)
    v.SetDefault("database.max_idle_conns", 5)
    v.SetDefault("database.conn_max_lifetime", "5m")

    v.SetDefault("redis.host", "")
    v.SetDefault("redis.port", 6379)
    v.SetDefault("redis.db", 0)
    v.SetDefault("redis.pool_size", 10)

    v.SetDefault("monitoring.metrics.enabled", true)
    v.SetDefault("monitoring.metrics.port", 9090)
    v.SetDefault("monitoring.health.enabled", true)
    v.SetDefault("monitoring.health.port", 8080)
    v.SetDefault("monitoring.logging.level", "info")
    v.SetDefault("monitoring.logging.format", "text")
}

// FromViper materializes the config structs the core components consume
func FromViper(v *viper.Viper) *Config {
    cfg := &Config{
        Orange: OrangeConfig{
            Port:                 v.GetInt("orange.port"),
            SingleQuoteHandshake: v.GetBool("orange.single_quote_handshake"),
            HeartbeatTimeout:     v.GetDuration("orange.heartbeat_timeout"),
            WorkerCount:          v.GetInt("orange.worker_count"),
        },
        Asterisk: AsteriskConfig{
            Host:              v.GetString("asterisk.host"),
            Port:              v.GetInt("asterisk.port"),
            Username:          v.GetString("asterisk.username"),
            Secret:            v.GetString("asterisk.secret"),
            ReconnectInterval: v.GetDuration("asterisk.reconnect_interval"),
            ActionTimeout:     v.GetDuration("asterisk.action_timeout"),
        },
        Database: DatabaseConfig{
            Host:            v.GetString("database.host"),
            Port:            v.GetInt("database.port"),
            Name:            v.GetString("database.name"),
            Username:        v.GetString("database.username"),
            Password:        v.GetString("database.password"),
            MaxOpenConns:    v.GetInt("database.max_open_conns"),
            MaxIdleConns:    v.GetInt("database.max_idle_conns"),
            ConnMaxLifetime: v.GetDuration("database.conn_max_lifetime"),
            RetryAttempts:   3,
            RetryDelay:      time.Second,
        },
        Redis: RedisConfig{
            Host:         v.GetString("redis.host"),
            Port:         v.GetInt("redis.port"),
            Password:     v.GetString("redis.password"),
            DB:           v.GetInt("redis.db"),
            PoolSize:     v.GetInt("redis.pool_size"),
            MinIdleConns: v.GetInt("redis.min_idle_conns"),
            MaxRetries:   v.GetInt("redis.max_retries"),
        },
        Monitoring: MonitoringConfig{
            MetricsEnabled: v.GetBool("monitoring.metrics.enabled"),
            MetricsPort:    v.GetInt("monitoring.metrics.port"),
            HealthEnabled:  v.GetBool("monitoring.health.enabled"),
            HealthPort:     v.GetInt("monitoring.health.port"),
        },
    }

    cfg.Monitoring.Logging.Level = v.GetString("monitoring.logging.level")
    cfg.Monitoring.Logging.Format = v.GetString("monitoring.logging.format")
    cfg.Monitoring.Logging.File.Enabled = v.GetBool("monitoring.logging.file.enabled")
    cfg.Monitoring.Logging.File.Path = v.GetString("monitoring.logging.file.path")
    cfg.Monitoring.Logging.File.MaxSize = v.GetInt("monitoring.logging.file.max_size")
    cfg.Monitoring.Logging.File.MaxBackups = v.GetInt("monitoring.logging.file.max_backups")
    cfg.Monitoring.Logging.File.MaxAge = v.GetInt("monitoring.logging.file.max_age")
    cfg.Monitoring.Logging.File.Compress = v.GetBool("monitoring.logging.file.compress")

    return cfg
}
