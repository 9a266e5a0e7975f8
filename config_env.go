package authcore

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// LoadConfigFromEnv overlays environment variables on [DefaultConfig].
//
// Durations given as bare integers are seconds (SESSION_TIMEOUT=3600); Go
// duration strings (SESSION_TIMEOUT=1h) are accepted too. Unparseable values
// keep the default. The result is not validated.
func LoadConfigFromEnv() Config {
	cfg := DefaultConfig()

	cfg.Token.SigningMethod = getEnv("APP_ENCODING_ALG", cfg.Token.SigningMethod)
	cfg.Token.Issuer = getEnv("APP_ISSUER", cfg.Token.Issuer)

	cfg.Session.Timeout = getEnvSeconds("SESSION_TIMEOUT", cfg.Session.Timeout)
	cfg.Session.StoreTimeout = getEnvSeconds("REDIS_TIMEOUT", cfg.Session.StoreTimeout)
	cfg.Session.KeyPrefix = getEnv("SESSION_KEY_PREFIX", cfg.Session.KeyPrefix)

	cfg.Lockout.MaxRetries = getEnvInt("LOGIN_ERROR_MAX_RETRY", cfg.Lockout.MaxRetries)
	cfg.Lockout.Window = getEnvSeconds("LOGIN_ERROR_TIMEOUT", cfg.Lockout.Window)
	cfg.Lockout.ResetOnSuccess = getEnvBool("LOGIN_RESET_ON_SUCCESS", cfg.Lockout.ResetOnSuccess)
	cfg.Login.RequireConfirmed = getEnvBool("LOGIN_REQUIRE_CONFIRMED", cfg.Login.RequireConfirmed)
	cfg.Login.IssueRefreshOnLogin = getEnvBool("LOGIN_ISSUE_REFRESH", cfg.Login.IssueRefreshOnLogin)

	cfg.Reset.PasswordTTL = getEnvSeconds("RESET_TOKEN_TTL", cfg.Reset.PasswordTTL)
	cfg.Reset.EmailChangeTTL = getEnvSeconds("EMAIL_CHANGE_TOKEN_TTL", cfg.Reset.EmailChangeTTL)

	cfg.Secret.Name = getEnv("JWT_SECRET_NAME", cfg.Secret.Name)
	cfg.Secret.Fallback = getEnv("SECRET_KEY", cfg.Secret.Fallback)
	cfg.Secret.AWS.Region = getEnv("AWS_REGION_NAME", cfg.Secret.AWS.Region)
	cfg.Secret.AWS.AccessKeyID = getEnv("AWS_ACCESS_KEY_ID", cfg.Secret.AWS.AccessKeyID)
	cfg.Secret.AWS.SecretAccessKey = getEnv("AWS_SECRET_ACCESS_KEY", cfg.Secret.AWS.SecretAccessKey)
	cfg.Secret.AWS.Endpoint = getEnv("AWS_ENDPOINT_URL", cfg.Secret.AWS.Endpoint)

	cfg.Audit.Enabled = getEnvBool("AUDIT_ENABLED", cfg.Audit.Enabled)
	cfg.Metrics.Enabled = getEnvBool("METRICS_ENABLED", cfg.Metrics.Enabled)
	cfg.Metrics.EnableLatencyHistograms = cfg.Metrics.Enabled && getEnvBool("METRICS_LATENCY", cfg.Metrics.EnableLatencyHistograms)

	cfg.Redis.Host = getEnv("REDIS_HOST", cfg.Redis.Host)
	cfg.Redis.Port = getEnvInt("REDIS_PORT", cfg.Redis.Port)
	cfg.Redis.DB = getEnvInt("REDIS_DB", cfg.Redis.DB)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.Timeout = getEnvSeconds("REDIS_TIMEOUT", cfg.Redis.Timeout)

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("LOG_FORMAT", cfg.Log.Format)
	cfg.Log.File = getEnv("LOG_FILE", cfg.Log.File)

	return cfg
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(strings.ToLower(value))
		if err != nil {
			return defaultValue
		}
		return b
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvSeconds reads integer seconds or a Go duration string
func getEnvSeconds(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if secs, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Duration(secs) * time.Second
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	return defaultValue
}
