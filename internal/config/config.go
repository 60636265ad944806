// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"commerce-auth/backend/internal/principal/domain"
	"commerce-auth/backend/internal/security"
)

// EnvDevelopment is the APP_ENV value that relaxes key requirements.
const EnvDevelopment = "development"

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP API listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCAddr is the address the gRPC health server listens on.
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// Env is the application environment ("development", "production", ...).
	Env string `mapstructure:"APP_ENV"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`

	// DatabaseDriver selects the principal and session store: postgres, mysql or sqlite.
	DatabaseDriver string `mapstructure:"DATABASE_DRIVER"`
	// DatabaseURL is the DSN for DatabaseDriver. Empty selects the in-memory store in development.
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	// JWTIssuer is the iss claim shared by both principal types.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// UserJWTSecret is the HS256 secret for user tokens; ignored when a user key pair is set.
	UserJWTSecret string `mapstructure:"USER_JWT_SECRET"`
	// CustomerJWTSecret is the HS256 secret for customer tokens; must differ from UserJWTSecret.
	CustomerJWTSecret string `mapstructure:"CUSTOMER_JWT_SECRET"`
	// UserJWTPrivateKey is a PEM private key (RSA or ECDSA) or a path to one.
	UserJWTPrivateKey string `mapstructure:"USER_JWT_PRIVATE_KEY"`
	UserJWTPublicKey  string `mapstructure:"USER_JWT_PUBLIC_KEY"`
	// CustomerJWTPrivateKey is a PEM private key (RSA or ECDSA) or a path to one.
	CustomerJWTPrivateKey string `mapstructure:"CUSTOMER_JWT_PRIVATE_KEY"`
	CustomerJWTPublicKey  string `mapstructure:"CUSTOMER_JWT_PUBLIC_KEY"`

	UserAccessTTL      time.Duration `mapstructure:"USER_ACCESS_TTL"`
	CustomerAccessTTL  time.Duration `mapstructure:"CUSTOMER_ACCESS_TTL"`
	CustomerRefreshTTL time.Duration `mapstructure:"CUSTOMER_REFRESH_TTL"`

	Argon2MemoryKiB   uint32 `mapstructure:"ARGON2_MEMORY_KIB"`
	Argon2Iterations  uint32 `mapstructure:"ARGON2_ITERATIONS"`
	Argon2Parallelism uint8  `mapstructure:"ARGON2_PARALLELISM"`

	// GeoIPDBPath is a MaxMind City database. Empty disables geolocation.
	GeoIPDBPath string `mapstructure:"GEOIP_DB_PATH"`
	// RedisURL enables the shared geolocation cache (redis://host:6379/0).
	RedisURL    string        `mapstructure:"REDIS_URL"`
	GeoCacheTTL time.Duration `mapstructure:"GEO_CACHE_TTL"`

	// OTLPEndpoint is the OTLP gRPC collector address. Empty disables export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`

	// KafkaBrokers is a comma-separated broker list. Empty disables the security event producer.
	KafkaBrokers        string `mapstructure:"KAFKA_BROKERS"`
	SecurityEventsTopic string `mapstructure:"SECURITY_EVENTS_TOPIC"`

	// CORSAllowedOrigins is a comma-separated origin list. Empty allows any origin without credentials.
	CORSAllowedOrigins string `mapstructure:"CORS_ALLOWED_ORIGINS"`
	// TrustedProxies is a comma-separated list of proxy CIDRs whose X-Forwarded-For is honoured.
	TrustedProxies string `mapstructure:"TRUSTED_PROXIES"`

	// SessionRetention is how long revoked or expired sessions are kept before the janitor purges them.
	SessionRetention time.Duration `mapstructure:"SESSION_RETENTION"`
	// JanitorSchedule is a cron spec (robfig/cron) for the purge job.
	JanitorSchedule string `mapstructure:"JANITOR_SCHEDULE"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("GRPC_ADDR", ":9090")
	v.SetDefault("APP_ENV", "production")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("DATABASE_DRIVER", "postgres")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("JWT_ISSUER", "commerce-auth")
	v.SetDefault("USER_JWT_SECRET", "")
	v.SetDefault("CUSTOMER_JWT_SECRET", "")
	v.SetDefault("USER_JWT_PRIVATE_KEY", "")
	v.SetDefault("USER_JWT_PUBLIC_KEY", "")
	v.SetDefault("CUSTOMER_JWT_PRIVATE_KEY", "")
	v.SetDefault("CUSTOMER_JWT_PUBLIC_KEY", "")
	v.SetDefault("USER_ACCESS_TTL", "8h")
	v.SetDefault("CUSTOMER_ACCESS_TTL", "15m")
	v.SetDefault("CUSTOMER_REFRESH_TTL", "720h")
	v.SetDefault("ARGON2_MEMORY_KIB", 64*1024)
	v.SetDefault("ARGON2_ITERATIONS", 3)
	v.SetDefault("ARGON2_PARALLELISM", 2)
	v.SetDefault("GEOIP_DB_PATH", "")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("GEO_CACHE_TTL", "24h")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("SECURITY_EVENTS_TOPIC", "commerce-auth.security-events")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "")
	v.SetDefault("TRUSTED_PROXIES", "")
	v.SetDefault("SESSION_RETENTION", "720h")
	v.SetDefault("JANITOR_SCHEDULE", "@hourly")
}

// Validate checks addresses, durations and key material.
func (c *Config) Validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: HTTP_ADDR must be set")
	}
	switch c.DatabaseDriver {
	case "postgres", "mysql", "sqlite":
	default:
		return fmt.Errorf("config: DATABASE_DRIVER %q must be postgres, mysql or sqlite", c.DatabaseDriver)
	}
	if c.DatabaseURL == "" && !c.Development() {
		return errors.New("config: DATABASE_URL must be set outside development")
	}
	if c.JWTIssuer == "" {
		return errors.New("config: JWT_ISSUER must be set")
	}
	for name, d := range map[string]time.Duration{
		"USER_ACCESS_TTL":      c.UserAccessTTL,
		"CUSTOMER_ACCESS_TTL":  c.CustomerAccessTTL,
		"CUSTOMER_REFRESH_TTL": c.CustomerRefreshTTL,
		"SESSION_RETENTION":    c.SessionRetention,
	} {
		if d <= 0 {
			return fmt.Errorf("config: %s must be positive", name)
		}
	}
	if c.Argon2MemoryKiB < 8*uint32(max(c.Argon2Parallelism, 1)) {
		return errors.New("config: ARGON2_MEMORY_KIB must be at least 8 KiB per lane")
	}
	if c.Argon2Iterations == 0 || c.Argon2Parallelism == 0 {
		return errors.New("config: ARGON2_ITERATIONS and ARGON2_PARALLELISM must be positive")
	}
	if !c.Development() {
		if !c.hasUserKey() {
			return errors.New("config: USER_JWT_SECRET or USER_JWT_PRIVATE_KEY/USER_JWT_PUBLIC_KEY must be set")
		}
		if !c.hasCustomerKey() {
			return errors.New("config: CUSTOMER_JWT_SECRET or CUSTOMER_JWT_PRIVATE_KEY/CUSTOMER_JWT_PUBLIC_KEY must be set")
		}
	}
	if c.UserJWTSecret != "" && c.UserJWTSecret == c.CustomerJWTSecret {
		return errors.New("config: USER_JWT_SECRET and CUSTOMER_JWT_SECRET must differ")
	}
	return nil
}

// Development reports whether APP_ENV is development.
func (c *Config) Development() bool {
	return c.Env == EnvDevelopment
}

func (c *Config) hasUserKey() bool {
	return c.UserJWTSecret != "" || (c.UserJWTPrivateKey != "" && c.UserJWTPublicKey != "")
}

func (c *Config) hasCustomerKey() bool {
	return c.CustomerJWTSecret != "" || (c.CustomerJWTPrivateKey != "" && c.CustomerJWTPublicKey != "")
}

// IssuerConfig builds the token provider config. A key pair wins over a secret. In development a
// type with neither gets a random per-process secret, so its tokens die with the process.
func (c *Config) IssuerConfig() (security.IssuerConfig, error) {
	userKey, err := signingKey(c.UserJWTPrivateKey, c.UserJWTPublicKey, c.UserJWTSecret, c.Development())
	if err != nil {
		return security.IssuerConfig{}, fmt.Errorf("config: user signing key: %w", err)
	}
	customerKey, err := signingKey(c.CustomerJWTPrivateKey, c.CustomerJWTPublicKey, c.CustomerJWTSecret, c.Development())
	if err != nil {
		return security.IssuerConfig{}, fmt.Errorf("config: customer signing key: %w", err)
	}
	return security.IssuerConfig{
		Issuer: c.JWTIssuer,
		Keys: map[domain.Type]security.SigningKey{
			domain.TypeUser:     userKey,
			domain.TypeCustomer: customerKey,
		},
		TTLs: map[domain.Type]time.Duration{
			domain.TypeUser:     c.UserAccessTTL,
			domain.TypeCustomer: c.CustomerAccessTTL,
		},
	}, nil
}

func signingKey(privateKey, publicKey, secret string, dev bool) (security.SigningKey, error) {
	if privateKey != "" || publicKey != "" {
		return security.LoadPEMKey(privateKey, publicKey)
	}
	if secret != "" {
		return security.HMACKey([]byte(secret))
	}
	if !dev {
		return security.SigningKey{}, errors.New("no key configured")
	}
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return security.SigningKey{}, err
	}
	return security.HMACKey(b)
}

// HashConfig returns the Argon2id parameters for new password hashes.
func (c *Config) HashConfig() security.HashConfig {
	cfg := security.DefaultHashConfig()
	cfg.MemoryKiB = c.Argon2MemoryKiB
	cfg.Iterations = c.Argon2Iterations
	cfg.Parallelism = c.Argon2Parallelism
	return cfg
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
func (c *Config) KafkaBrokersList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.KafkaBrokers)
}

// AllowedOrigins returns the CORS origin list.
func (c *Config) AllowedOrigins() []string {
	return splitList(c.CORSAllowedOrigins)
}

// TrustedProxyList returns the trusted proxy list. Nil trusts no proxy.
func (c *Config) TrustedProxyList() []string {
	return splitList(c.TrustedProxies)
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
