// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the REST API listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCHealthAddr is the address of the gRPC health endpoint; empty disables it.
	GRPCHealthAddr string `mapstructure:"GRPC_HEALTH_ADDR"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// RedisURL is the Redis URL used for verification codes, OAuth state and throttling.
	RedisURL string `mapstructure:"REDIS_URL"`

	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file; used with JWT_PUBLIC_KEY for RS256/ES256.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file; used with JWT_PRIVATE_KEY.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTSecret is the HS256 shared secret, used only when no key pair is configured.
	JWTSecret string `mapstructure:"JWT_SECRET"`
	// JWTIssuer is the iss claim set on issue and checked on verify.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim set on issue and checked on verify.
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// JWTRefreshTTL is the refresh token lifetime without remember-me (e.g. "168h").
	JWTRefreshTTL string `mapstructure:"JWT_REFRESH_TTL"`
	// JWTRememberMeTTL is the refresh token lifetime with remember-me (e.g. "720h").
	JWTRememberMeTTL string `mapstructure:"JWT_REMEMBER_ME_TTL"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// LockoutThreshold is the number of consecutive failures that locks an account.
	LockoutThreshold int `mapstructure:"LOCKOUT_THRESHOLD"`
	// LockoutDuration is how long a lock lasts (e.g. "2h").
	LockoutDuration string `mapstructure:"LOCKOUT_DURATION"`
	// EmailVerificationTTL is the lifetime of an email verification link token.
	EmailVerificationTTL string `mapstructure:"EMAIL_VERIFICATION_TTL"`
	// PasswordResetTTL is the lifetime of a password reset token.
	PasswordResetTTL string `mapstructure:"PASSWORD_RESET_TTL"`
	// VerificationCodeTTL is the lifetime of a 6-digit verification code.
	VerificationCodeTTL string `mapstructure:"VERIFICATION_CODE_TTL"`
	// MailRateLimit is how many mail-sending requests one key may make per MailRateWindow.
	MailRateLimit int `mapstructure:"MAIL_RATE_LIMIT"`
	// MailRateWindow is the throttle window (e.g. "15m").
	MailRateWindow string `mapstructure:"MAIL_RATE_WINDOW"`

	// SMTP settings. When SMTPHost is empty, mail is logged instead of sent.
	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     int    `mapstructure:"SMTP_PORT"`
	SMTPUsername string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`
	SMTPFrom     string `mapstructure:"SMTP_FROM"`

	// KafkaBrokers is a comma-separated list of Kafka broker addresses. When set, the server
	// queues mail jobs on MailKafkaTopic and cmd/worker delivers them.
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// MailKafkaTopic is the Kafka topic for mail jobs.
	MailKafkaTopic string `mapstructure:"MAIL_KAFKA_TOPIC"`
	// KafkaGroupID is the consumer group ID for the mail worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`

	// AMQPURL is the RabbitMQ URL for account events; empty logs events instead.
	AMQPURL string `mapstructure:"AMQP_URL"`
	// AMQPExchange is the topic exchange account events are published to.
	AMQPExchange string `mapstructure:"AMQP_EXCHANGE"`

	// OTLPEndpoint is the OTLP gRPC collector endpoint; empty disables telemetry export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure disables TLS to the collector.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	// ServiceName is the otel service.name resource attribute.
	ServiceName string `mapstructure:"OTEL_SERVICE_NAME"`

	GoogleClientID       string `mapstructure:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret   string `mapstructure:"GOOGLE_CLIENT_SECRET"`
	FacebookClientID     string `mapstructure:"FACEBOOK_CLIENT_ID"`
	FacebookClientSecret string `mapstructure:"FACEBOOK_CLIENT_SECRET"`
	// OAuthRedirectBaseURL is the public base URL of this API; callbacks are {base}/api/v1/auth/oauth/{provider}/callback.
	OAuthRedirectBaseURL string `mapstructure:"OAUTH_REDIRECT_BASE_URL"`

	// FrontendURL is the storefront web app; used in email links and OAuth redirects.
	FrontendURL string `mapstructure:"FRONTEND_URL"`
	// CORSAllowedOrigins is a comma-separated list of allowed origins.
	CORSAllowedOrigins string `mapstructure:"CORS_ALLOWED_ORIGINS"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("GRPC_HEALTH_ADDR", ":9090")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_URL", "redis://localhost:6379/0")
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_ISSUER", "storefront-auth")
	v.SetDefault("JWT_AUDIENCE", "storefront-api")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("JWT_REFRESH_TTL", "168h")     // 7d
	v.SetDefault("JWT_REMEMBER_ME_TTL", "720h") // 30d
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("LOCKOUT_THRESHOLD", 5)
	v.SetDefault("LOCKOUT_DURATION", "2h")
	v.SetDefault("EMAIL_VERIFICATION_TTL", "24h")
	v.SetDefault("PASSWORD_RESET_TTL", "10m")
	v.SetDefault("VERIFICATION_CODE_TTL", "10m")
	v.SetDefault("MAIL_RATE_LIMIT", 3)
	v.SetDefault("MAIL_RATE_WINDOW", "15m")
	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USERNAME", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("SMTP_FROM", "no-reply@storefront.local")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("MAIL_KAFKA_TOPIC", "storefront-mail")
	v.SetDefault("KAFKA_GROUP_ID", "storefront-mail-worker")
	v.SetDefault("AMQP_URL", "")
	v.SetDefault("AMQP_EXCHANGE", "storefront.accounts")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", true)
	v.SetDefault("OTEL_SERVICE_NAME", "storefront-auth")
	v.SetDefault("GOOGLE_CLIENT_ID", "")
	v.SetDefault("GOOGLE_CLIENT_SECRET", "")
	v.SetDefault("FACEBOOK_CLIENT_ID", "")
	v.SetDefault("FACEBOOK_CLIENT_SECRET", "")
	v.SetDefault("OAUTH_REDIRECT_BASE_URL", "http://localhost:8080")
	v.SetDefault("FRONTEND_URL", "http://localhost:3000")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:3000")
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}

	if (cfg.JWTPrivateKey == "") != (cfg.JWTPublicKey == "") {
		return nil, errors.New("config: JWT_PRIVATE_KEY and JWT_PUBLIC_KEY must be set together")
	}
	if cfg.Env == "production" && cfg.JWTPrivateKey == "" && len(cfg.JWTSecret) < 32 {
		return nil, errors.New("config: JWT_SECRET must be at least 32 bytes when APP_ENV=production")
	}

	if cfg.LockoutThreshold <= 0 {
		return nil, errors.New("config: LOCKOUT_THRESHOLD must be positive")
	}

	return &cfg, nil
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	return parseDuration(c.JWTAccessTTL, 15*time.Minute)
}

// RefreshTTL parses JWTRefreshTTL as a time.Duration. Returns 168h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	return parseDuration(c.JWTRefreshTTL, 168*time.Hour)
}

// RememberMeTTL parses JWTRememberMeTTL as a time.Duration. Returns 720h if unset or invalid.
func (c *Config) RememberMeTTL() time.Duration {
	return parseDuration(c.JWTRememberMeTTL, 720*time.Hour)
}

// LockDuration returns the lockout duration. Returns 2h if unset or invalid.
func (c *Config) LockDuration() time.Duration {
	return parseDuration(c.LockoutDuration, 2*time.Hour)
}

// VerificationTTL returns the email verification token lifetime. Returns 24h if unset or invalid.
func (c *Config) VerificationTTL() time.Duration {
	return parseDuration(c.EmailVerificationTTL, 24*time.Hour)
}

// ResetTTL returns the password reset token lifetime. Returns 10m if unset or invalid.
func (c *Config) ResetTTL() time.Duration {
	return parseDuration(c.PasswordResetTTL, 10*time.Minute)
}

// CodeTTL returns the verification code lifetime. Returns 10m if unset or invalid.
func (c *Config) CodeTTL() time.Duration {
	return parseDuration(c.VerificationCodeTTL, 10*time.Minute)
}

// MailWindow returns the mail throttle window. Returns 15m if unset or invalid.
func (c *Config) MailWindow() time.Duration {
	return parseDuration(c.MailRateWindow, 15*time.Minute)
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// An empty list means mail is sent in-process rather than queued.
func (c *Config) KafkaBrokersList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.KafkaBrokers)
}

// CORSOrigins returns the allowed CORS origins.
func (c *Config) CORSOrigins() []string {
	if c == nil {
		return nil
	}
	return splitList(c.CORSAllowedOrigins)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
