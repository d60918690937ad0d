// Package config loads wakeguardd configuration with precedence
// ENV > file > defaults.
package config

import "time"

// Config is the root configuration for wakeguardd.
type Config struct {
	Service         ServiceConfig         `mapstructure:"service"`
	Log             LogConfig             `mapstructure:"log"`
	Lock            LockConfig            `mapstructure:"lock"`
	Monitor         MonitorConfig         `mapstructure:"monitor"`
	PermissionCache PermissionCacheConfig `mapstructure:"permission_cache"`
	HTTP            HTTPConfig            `mapstructure:"http"`
}

// ServiceConfig identifies the running instance.
type ServiceConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LockConfig controls the orchestrator.
type LockConfig struct {
	DefaultKind           string        `mapstructure:"default_kind"`
	Passive               bool          `mapstructure:"passive"`
	RequestTimeout        time.Duration `mapstructure:"request_timeout"`
	RetryAttempts         int           `mapstructure:"retry_attempts"`
	BatteryOptimization   bool          `mapstructure:"battery_optimization"`
	PerformanceMonitoring bool          `mapstructure:"performance_monitoring"`
	Debug                 bool          `mapstructure:"debug"`
}

// MonitorConfig controls the performance monitor.
type MonitorConfig struct {
	SampleInterval   time.Duration `mapstructure:"sample_interval"`
	BatteryThreshold float64       `mapstructure:"battery_threshold"`
	CPUThreshold     float64       `mapstructure:"cpu_threshold"`
}

// PermissionCacheConfig selects and tunes the permission cache store.
type PermissionCacheConfig struct {
	Store string        `mapstructure:"store"`
	TTL   time.Duration `mapstructure:"ttl"`
	Redis RedisConfig   `mapstructure:"redis"`
}

// RedisConfig connects the Redis-backed permission cache.
type RedisConfig struct {
	URL              string        `mapstructure:"url"`
	Prefix           string        `mapstructure:"prefix"`
	MaxConns         int           `mapstructure:"max_conns"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
}

// HTTPConfig controls the control-plane HTTP server.
type HTTPConfig struct {
	Port              int           `mapstructure:"port"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:        "wakeguardd",
			Environment: "development",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Lock: LockConfig{
			DefaultKind:           "screen",
			RequestTimeout:        30 * time.Second,
			RetryAttempts:         3,
			BatteryOptimization:   true,
			PerformanceMonitoring: true,
		},
		Monitor: MonitorConfig{
			SampleInterval:   5 * time.Second,
			BatteryThreshold: 0.20,
			CPUThreshold:     80,
		},
		PermissionCache: PermissionCacheConfig{
			Store: "memory",
			TTL:   5 * time.Minute,
			Redis: RedisConfig{
				Prefix:           "wakeguard:permission",
				MaxConns:         10,
				OperationTimeout: 2 * time.Second,
			},
		},
		HTTP: HTTPConfig{
			Port:              8080,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
			HeartbeatInterval: 15 * time.Second,
		},
	}
}
