// Package appconfig loads process configuration from the environment and an
// optional .env file using Viper.
package appconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/viper"

	taskmanager "github.com/lewadaa/task-manager"
	"github.com/lewadaa/task-manager/handler"
	"github.com/lewadaa/task-manager/password"
)

// DefaultEnvFile is read when Load is given an empty path.
const DefaultEnvFile = ".env"

// Config holds server configuration.
type Config struct {
	// HTTPAddr is the listen address (e.g. :3000).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// Env is the application environment; "production" forces secure cookies.
	Env string `mapstructure:"APP_ENV"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"LOG_LEVEL"`
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	// DatabaseURL is the Postgres DSN for the user directory. Empty uses an
	// in-memory directory seeded from SEED_USERS.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// SeedUsers is a comma-separated list of username:role:password entries.
	SeedUsers string `mapstructure:"SEED_USERS"`

	// JWTSecret is base64 and must decode to at least 32 bytes.
	JWTSecret     string        `mapstructure:"JWT_SECRET"`
	JWTIssuer     string        `mapstructure:"JWT_ISSUER"`
	JWTAccessTTL  time.Duration `mapstructure:"JWT_ACCESS_TTL"`
	JWTRefreshTTL time.Duration `mapstructure:"JWT_REFRESH_TTL"`
	// RevocationTTL pins revocation entries to a fixed window; zero derives it
	// from the revoked credential.
	RevocationTTL time.Duration `mapstructure:"REVOCATION_TTL"`

	CookieSecure   bool   `mapstructure:"COOKIE_SECURE"`
	CookieSameSite string `mapstructure:"COOKIE_SAME_SITE"`
	CookieDomain   string `mapstructure:"COOKIE_DOMAIN"`
	// CookieMaxAge is the refresh cookie lifetime. It is independent of
	// JWT_REFRESH_TTL.
	CookieMaxAge time.Duration `mapstructure:"COOKIE_MAX_AGE"`

	PasswordScheme    string        `mapstructure:"PASSWORD_SCHEME"`
	LoginMaxAttempts  int           `mapstructure:"LOGIN_MAX_ATTEMPTS"`
	LoginCooldown     time.Duration `mapstructure:"LOGIN_COOLDOWN"`
	PermissiveRenewal bool          `mapstructure:"PERMISSIVE_RENEWAL"`

	AuthRatePerSecond float64 `mapstructure:"AUTH_RATE_PER_SECOND"`
	AuthRateBurst     int     `mapstructure:"AUTH_RATE_BURST"`
	TrustForwarded    bool    `mapstructure:"TRUST_FORWARDED"`

	AuditEnabled bool `mapstructure:"AUDIT_ENABLED"`
}

// Load reads envFile (DefaultEnvFile when empty) if it exists, then overlays
// the environment. Env vars win over the file.
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		envFile = DefaultEnvFile
	}

	v := viper.New()
	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil && !missing(err) {
		return nil, fmt.Errorf("config: read %s: %w", envFile, err)
	}

	v.AutomaticEnv()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if strings.EqualFold(cfg.Env, "production") {
		cfg.CookieSecure = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func missing(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HTTP_ADDR", ":3000")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("SHUTDOWN_TIMEOUT", "10s")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("SEED_USERS", "")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_ISSUER", "task-manager")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("JWT_REFRESH_TTL", "168h")
	v.SetDefault("REVOCATION_TTL", "0s")
	v.SetDefault("COOKIE_SECURE", true)
	v.SetDefault("COOKIE_SAME_SITE", "default")
	v.SetDefault("COOKIE_DOMAIN", "")
	v.SetDefault("COOKIE_MAX_AGE", "168h")
	v.SetDefault("PASSWORD_SCHEME", string(taskmanager.DefaultConfig().Password.Scheme))
	v.SetDefault("LOGIN_MAX_ATTEMPTS", 5)
	v.SetDefault("LOGIN_COOLDOWN", "15m")
	v.SetDefault("PERMISSIVE_RENEWAL", false)
	v.SetDefault("AUTH_RATE_PER_SECOND", 5.0)
	v.SetDefault("AUTH_RATE_BURST", 10)
	v.SetDefault("TRUST_FORWARDED", false)
	v.SetDefault("AUDIT_ENABLED", true)
}

// Validate checks process-level settings. Engine settings are validated
// again by the Builder.
func (c *Config) Validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: HTTP_ADDR must be set")
	}
	if c.RedisAddr == "" {
		return errors.New("config: REDIS_ADDR must be set")
	}
	if strings.TrimSpace(c.JWTSecret) == "" {
		return errors.New("config: JWT_SECRET must be set")
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	if _, err := parseSameSite(c.CookieSameSite); err != nil {
		return err
	}
	if c.AuthRatePerSecond < 0 || c.AuthRateBurst < 0 {
		return errors.New("config: AUTH_RATE_PER_SECOND and AUTH_RATE_BURST must be >= 0")
	}
	if c.AuthRatePerSecond > 0 && c.AuthRateBurst == 0 {
		return errors.New("config: AUTH_RATE_BURST must be > 0 when AUTH_RATE_PER_SECOND is set")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("config: SHUTDOWN_TIMEOUT must be > 0")
	}
	cfg := c.EngineConfig()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// EngineConfig converts c into an engine configuration on top of
// taskmanager.DefaultConfig.
func (c *Config) EngineConfig() taskmanager.Config {
	cfg := taskmanager.DefaultConfig()

	cfg.JWT.Secret = c.JWTSecret
	cfg.JWT.Issuer = c.JWTIssuer
	cfg.JWT.AccessTTL = c.JWTAccessTTL
	cfg.JWT.RefreshTTL = c.JWTRefreshTTL

	cfg.Session.RevocationTTL = c.RevocationTTL

	cfg.Cookie.Secure = c.CookieSecure
	cfg.Cookie.Domain = c.CookieDomain
	if c.CookieMaxAge > 0 {
		cfg.Cookie.MaxAge = c.CookieMaxAge
	}
	if mode, err := parseSameSite(c.CookieSameSite); err == nil {
		cfg.Cookie.SameSite = mode
	}

	if c.PasswordScheme != "" {
		cfg.Password.Scheme = password.Scheme(strings.ToLower(c.PasswordScheme))
	}

	cfg.Security.PermissiveRenewalFallthrough = c.PermissiveRenewal
	cfg.Security.MaxLoginAttempts = c.LoginMaxAttempts
	cfg.Security.LoginCooldown = c.LoginCooldown
	cfg.Security.EnableLoginThrottle = c.LoginMaxAttempts > 0

	cfg.Audit.Enabled = c.AuditEnabled
	return cfg
}

// HandlerConfig returns the HTTP handler settings.
func (c *Config) HandlerConfig() handler.Config {
	return handler.Config{
		RatePerSecond:  c.AuthRatePerSecond,
		Burst:          c.AuthRateBurst,
		TrustForwarded: c.TrustForwarded,
	}
}

// SlogLevel returns the configured log level.
func (c *Config) SlogLevel() slog.Level {
	level, _ := parseLevel(c.LogLevel)
	return level
}

// SeedRecords parses SeedUsers. Malformed entries are reported, not skipped.
func (c *Config) SeedRecords() ([]Seed, error) {
	if strings.TrimSpace(c.SeedUsers) == "" {
		return nil, nil
	}
	var out []Seed
	for _, entry := range strings.Split(c.SeedUsers, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) != 3 || parts[0] == "" || parts[2] == "" {
			return nil, fmt.Errorf("config: SEED_USERS entry %q must be username:role:password", entry)
		}
		out = append(out, Seed{Username: parts[0], Role: strings.ToUpper(parts[1]), Password: parts[2]})
	}
	return out, nil
}

// Seed is one user created at startup in the in-memory directory.
type Seed struct {
	Username string
	Role     string
	Password string
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("config: LOG_LEVEL %q: %w", s, err)
	}
	return level, nil
}

func parseSameSite(s string) (http.SameSite, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default":
		return http.SameSiteDefaultMode, nil
	case "lax":
		return http.SameSiteLaxMode, nil
	case "strict":
		return http.SameSiteStrictMode, nil
	case "none":
		return http.SameSiteNoneMode, nil
	default:
		return 0, fmt.Errorf("config: COOKIE_SAME_SITE %q must be default, lax, strict or none", s)
	}
}
