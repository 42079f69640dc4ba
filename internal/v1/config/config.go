package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds validated environment configuration
type Config struct {
	// Listen port, decimal string. Defaults to "8080".
	Port string

	// Optional variables with defaults
	GoEnv           string
	LogLevel        string
	DevelopmentMode bool
	AllowedOrigins  string

	// Redis event firehose (optional)
	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string

	// Tracing (optional)
	OtelEnabled       bool
	OtelCollectorAddr string

	// Rate limits (ulule/limiter formatted, e.g. "100-M")
	RateLimitAPIGlobal string
	RateLimitWsIP      string

	// Signaling timing. Overridable for tests; the defaults bound the
	// unacknowledged RINGING window to roughly five seconds.
	HeartbeatInterval time.Duration
	RingInterval      time.Duration
	RingMaxResends    int
}

// ValidateEnv validates all environment variables and returns a Config object.
// Returns an error aggregating every invalid variable.
func ValidateEnv() (*Config, error) {
	cfg := &Config{}
	var errors []string

	// PORT defaults to 8080 when unset
	cfg.Port = os.Getenv("PORT")
	if cfg.Port == "" {
		cfg.Port = "8080"
	} else {
		port, err := strconv.Atoi(cfg.Port)
		if err != nil || port < 1 || port > 65535 {
			errors = append(errors, fmt.Sprintf("PORT must be a valid port number between 1 and 65535 (got '%s')", cfg.Port))
		}
	}

	// Conditional: REDIS_ADDR (required if REDIS_ENABLED=true)
	cfg.RedisEnabled = os.Getenv("REDIS_ENABLED") == "true"
	if cfg.RedisEnabled {
		cfg.RedisAddr = os.Getenv("REDIS_ADDR")
		if cfg.RedisAddr == "" {
			cfg.RedisAddr = "localhost:6379"
			slog.Warn("REDIS_ADDR not set, using default", "addr", cfg.RedisAddr)
		} else if !isValidHostPort(cfg.RedisAddr) {
			errors = append(errors, fmt.Sprintf("REDIS_ADDR must be in format 'host:port' (got '%s')", cfg.RedisAddr))
		}
		cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	}

	// Conditional: OTEL_COLLECTOR_ADDR (required if OTEL_ENABLED=true)
	cfg.OtelEnabled = os.Getenv("OTEL_ENABLED") == "true"
	if cfg.OtelEnabled {
		cfg.OtelCollectorAddr = os.Getenv("OTEL_COLLECTOR_ADDR")
		if cfg.OtelCollectorAddr == "" {
			cfg.OtelCollectorAddr = "localhost:4317"
			slog.Warn("OTEL_COLLECTOR_ADDR not set, using default", "addr", cfg.OtelCollectorAddr)
		} else if !isValidHostPort(cfg.OtelCollectorAddr) {
			errors = append(errors, fmt.Sprintf("OTEL_COLLECTOR_ADDR must be in format 'host:port' (got '%s')", cfg.OtelCollectorAddr))
		}
	}

	// Optional: GO_ENV (defaults to "production")
	cfg.GoEnv = os.Getenv("GO_ENV")
	if cfg.GoEnv == "" {
		cfg.GoEnv = "production"
	}

	// Optional: LOG_LEVEL (defaults to "info")
	cfg.LogLevel = os.Getenv("LOG_LEVEL")
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	cfg.DevelopmentMode = os.Getenv("DEVELOPMENT_MODE") == "true"
	cfg.AllowedOrigins = os.Getenv("ALLOWED_ORIGINS")

	// Rate limits (M = Minute, H = Hour)
	cfg.RateLimitAPIGlobal = getEnvOrDefault("RATE_LIMIT_API_GLOBAL", "1000-M")
	cfg.RateLimitWsIP = getEnvOrDefault("RATE_LIMIT_WS_IP", "100-M")

	// Timing
	var err error
	cfg.HeartbeatInterval, err = parseDurationEnv("HEARTBEAT_INTERVAL", 30*time.Second)
	if err != nil {
		errors = append(errors, err.Error())
	}
	cfg.RingInterval, err = parseDurationEnv("RING_RESEND_INTERVAL", 800*time.Millisecond)
	if err != nil {
		errors = append(errors, err.Error())
	}
	cfg.RingMaxResends = 6
	if v := os.Getenv("RING_MAX_RESENDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			errors = append(errors, fmt.Sprintf("RING_MAX_RESENDS must be a positive integer (got '%s')", v))
		} else {
			cfg.RingMaxResends = n
		}
	}

	if len(errors) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	logValidatedConfig(cfg)

	return cfg, nil
}

// parseDurationEnv reads a duration env var, falling back to a default when unset.
func parseDurationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration (got '%s')", key, v)
	}
	return d, nil
}

// isValidHostPort checks if a string is in the format "host:port"
func isValidHostPort(addr string) bool {
	parts := strings.Split(addr, ":")
	if len(parts) != 2 {
		return false
	}

	port, err := strconv.Atoi(parts[1])
	if err != nil || port < 1 || port > 65535 {
		return false
	}

	return parts[0] != ""
}

// logValidatedConfig logs the validated configuration with secrets redacted
func logValidatedConfig(cfg *Config) {
	slog.Info("✅ Environment configuration validated successfully")
	slog.Info("Configuration",
		"port", cfg.Port,
		"redis_enabled", cfg.RedisEnabled,
		"redis_addr", cfg.RedisAddr,
		"otel_enabled", cfg.OtelEnabled,
		"go_env", cfg.GoEnv,
		"log_level", cfg.LogLevel,
		"development_mode", cfg.DevelopmentMode,
		"heartbeat_interval", cfg.HeartbeatInterval,
		"ring_resend_interval", cfg.RingInterval,
		"ring_max_resends", cfg.RingMaxResends,
	)
}

// getEnvOrDefault returns the value of the environment variable or a default value if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
