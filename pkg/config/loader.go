package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/wakeguard/wakeguard/pkg/strategy"
)

// Loader defines the interface for loading configuration
type Loader interface {
	Load() (*Config, error)
	Validate(*Config) error
}

// ViperLoader implements Loader using Viper for configuration management
type ViperLoader struct {
	configFile string
	envPrefix  string
	flags      *pflag.FlagSet
}

// flagBindings maps command-line flag names to config keys.
var flagBindings = map[string]string{
	"port":       "http.port",
	"log-level":  "log.level",
	"log-format": "log.format",
}

// NewViperLoader creates a new ViperLoader
// configFile: path to configuration file (optional, can be empty)
// envPrefix: prefix for environment variables (e.g., "WAKEGUARD")
func NewViperLoader(configFile, envPrefix string) *ViperLoader {
	return &ViperLoader{
		configFile: configFile,
		envPrefix:  envPrefix,
	}
}

// WithFlags binds recognized command-line flags as the highest-precedence
// source. Only flags the user actually set take effect.
func (l *ViperLoader) WithFlags(flags *pflag.FlagSet) *ViperLoader {
	l.flags = flags
	return l
}

// Load loads configuration with precedence: flags > ENV > file > defaults
func (l *ViperLoader) Load() (*Config, error) {
	v := viper.New()

	// Start with defaults
	defaults := DefaultConfig()
	l.setDefaults(v, defaults)

	// Read config file if provided
	if l.configFile != "" {
		v.SetConfigFile(l.configFile)
		if err := v.ReadInConfig(); err != nil {
			// Only return error if file was explicitly specified but couldn't be read
			return nil, fmt.Errorf("failed to read config file %s: %w", l.configFile, err)
		}
	}

	// Environment variables override file config through explicit bindings.
	v.SetEnvPrefix(l.envPrefix)
	l.bindEnvVars(v)

	if l.flags != nil {
		for name, key := range flagBindings {
			if flag := l.flags.Lookup(name); flag != nil && flag.Changed {
				if err := v.BindPFlag(key, flag); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := l.Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// bindEnvVars explicitly binds environment variables for nested structs
func (l *ViperLoader) bindEnvVars(v *viper.Viper) {
	// Service
	v.BindEnv("service.name", l.prefixedEnv("SERVICE_NAME"))
	v.BindEnv("service.environment", l.prefixedEnv("SERVICE_ENVIRONMENT"), l.prefixedEnv("ENVIRONMENT"))

	// Log
	v.BindEnv("log.level", l.prefixedEnv("LOG_LEVEL"))
	v.BindEnv("log.format", l.prefixedEnv("LOG_FORMAT"))

	// Lock
	v.BindEnv("lock.default_kind", l.prefixedEnv("LOCK_DEFAULT_KIND"))
	v.BindEnv("lock.passive", l.prefixedEnv("LOCK_PASSIVE"))
	v.BindEnv("lock.request_timeout", l.prefixedEnv("LOCK_REQUEST_TIMEOUT"))
	v.BindEnv("lock.retry_attempts", l.prefixedEnv("LOCK_RETRY_ATTEMPTS"))
	v.BindEnv("lock.battery_optimization", l.prefixedEnv("LOCK_BATTERY_OPTIMIZATION"))
	v.BindEnv("lock.performance_monitoring", l.prefixedEnv("LOCK_PERFORMANCE_MONITORING"))
	v.BindEnv("lock.debug", l.prefixedEnv("LOCK_DEBUG"))

	// Monitor
	v.BindEnv("monitor.sample_interval", l.prefixedEnv("MONITOR_SAMPLE_INTERVAL"))
	v.BindEnv("monitor.battery_threshold", l.prefixedEnv("MONITOR_BATTERY_THRESHOLD"))
	v.BindEnv("monitor.cpu_threshold", l.prefixedEnv("MONITOR_CPU_THRESHOLD"))

	// Permission cache
	v.BindEnv("permission_cache.store", l.prefixedEnv("PERMISSION_CACHE_STORE"))
	v.BindEnv("permission_cache.ttl", l.prefixedEnv("PERMISSION_CACHE_TTL"))
	v.BindEnv("permission_cache.redis.url", l.prefixedEnv("PERMISSION_CACHE_REDIS_URL"))
	v.BindEnv("permission_cache.redis.prefix", l.prefixedEnv("PERMISSION_CACHE_REDIS_PREFIX"))
	v.BindEnv("permission_cache.redis.max_conns", l.prefixedEnv("PERMISSION_CACHE_REDIS_MAX_CONNS"))
	v.BindEnv("permission_cache.redis.operation_timeout", l.prefixedEnv("PERMISSION_CACHE_REDIS_OPERATION_TIMEOUT"))

	// HTTP
	v.BindEnv("http.port", l.prefixedEnv("HTTP_PORT"))
	v.BindEnv("http.read_timeout", l.prefixedEnv("HTTP_READ_TIMEOUT"))
	v.BindEnv("http.write_timeout", l.prefixedEnv("HTTP_WRITE_TIMEOUT"))
	v.BindEnv("http.idle_timeout", l.prefixedEnv("HTTP_IDLE_TIMEOUT"))
	v.BindEnv("http.heartbeat_interval", l.prefixedEnv("HTTP_HEARTBEAT_INTERVAL"))
}

func (l *ViperLoader) prefixedEnv(suffix string) string {
	prefix := strings.TrimSpace(l.envPrefix)
	if prefix == "" {
		prefix = "WAKEGUARD"
	}
	return fmt.Sprintf("%s_%s", strings.ToUpper(prefix), suffix)
}

// setDefaults sets default values in Viper from the default config
func (l *ViperLoader) setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("service.name", cfg.Service.Name)
	v.SetDefault("service.environment", cfg.Service.Environment)

	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)

	v.SetDefault("lock.default_kind", cfg.Lock.DefaultKind)
	v.SetDefault("lock.passive", cfg.Lock.Passive)
	v.SetDefault("lock.request_timeout", cfg.Lock.RequestTimeout)
	v.SetDefault("lock.retry_attempts", cfg.Lock.RetryAttempts)
	v.SetDefault("lock.battery_optimization", cfg.Lock.BatteryOptimization)
	v.SetDefault("lock.performance_monitoring", cfg.Lock.PerformanceMonitoring)
	v.SetDefault("lock.debug", cfg.Lock.Debug)

	v.SetDefault("monitor.sample_interval", cfg.Monitor.SampleInterval)
	v.SetDefault("monitor.battery_threshold", cfg.Monitor.BatteryThreshold)
	v.SetDefault("monitor.cpu_threshold", cfg.Monitor.CPUThreshold)

	v.SetDefault("permission_cache.store", cfg.PermissionCache.Store)
	v.SetDefault("permission_cache.ttl", cfg.PermissionCache.TTL)
	v.SetDefault("permission_cache.redis.prefix", cfg.PermissionCache.Redis.Prefix)
	v.SetDefault("permission_cache.redis.max_conns", cfg.PermissionCache.Redis.MaxConns)
	v.SetDefault("permission_cache.redis.operation_timeout", cfg.PermissionCache.Redis.OperationTimeout)

	v.SetDefault("http.port", cfg.HTTP.Port)
	v.SetDefault("http.read_timeout", cfg.HTTP.ReadTimeout)
	v.SetDefault("http.write_timeout", cfg.HTTP.WriteTimeout)
	v.SetDefault("http.idle_timeout", cfg.HTTP.IdleTimeout)
	v.SetDefault("http.heartbeat_interval", cfg.HTTP.HeartbeatInterval)
}

// Validate validates the configuration and returns detailed errors
func (l *ViperLoader) Validate(cfg *Config) error {
	var errs []error

	if !strategy.Kind(cfg.Lock.DefaultKind).Valid() {
		errs = append(errs, fmt.Errorf("invalid lock.default_kind: %s (must be screen or system)", cfg.Lock.DefaultKind))
	}
	if cfg.Lock.RequestTimeout < 0 {
		errs = append(errs, errors.New("lock.request_timeout must not be negative"))
	}
	if cfg.Lock.RetryAttempts < 0 {
		errs = append(errs, errors.New("lock.retry_attempts must not be negative"))
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLevels, strings.ToLower(cfg.Log.Level)) {
		errs = append(errs, fmt.Errorf("invalid log.level: %s (must be one of: %v)", cfg.Log.Level, validLevels))
	}
	validFormats := []string{"json", "text", "console"}
	if !contains(validFormats, strings.ToLower(cfg.Log.Format)) {
		errs = append(errs, fmt.Errorf("invalid log.format: %s (must be one of: %v)", cfg.Log.Format, validFormats))
	}

	if cfg.Monitor.BatteryThreshold < 0 || cfg.Monitor.BatteryThreshold > 1 {
		errs = append(errs, fmt.Errorf("monitor.battery_threshold must be within [0, 1], got %v", cfg.Monitor.BatteryThreshold))
	}
	if cfg.Monitor.CPUThreshold < 0 || cfg.Monitor.CPUThreshold > 100 {
		errs = append(errs, fmt.Errorf("monitor.cpu_threshold must be within [0, 100], got %v", cfg.Monitor.CPUThreshold))
	}

	switch strings.ToLower(cfg.PermissionCache.Store) {
	case "memory":
	case "redis":
		if cfg.PermissionCache.Redis.URL == "" {
			errs = append(errs, errors.New("permission_cache.redis.url is required for the redis store"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid permission_cache.store: %s (must be memory or redis)", cfg.PermissionCache.Store))
	}

	if cfg.HTTP.Port < 0 || cfg.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid http.port: %d", cfg.HTTP.Port))
	}

	return errors.Join(errs...)
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
