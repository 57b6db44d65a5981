package taskmanager

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lewadaa/task-manager/password"
)

// Config is the full engine configuration. Start from [DefaultConfig] and
// override fields; [Builder.Build] validates it.
type Config struct {
	JWT      JWTConfig
	Session  SessionConfig
	Cookie   CookieConfig
	Password PasswordConfig
	Security SecurityConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig controls credential signing. Secret is base64 and must decode to
// at least 32 bytes; the HMAC variant follows its length.
type JWTConfig struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Issuer     string
	Leeway     time.Duration
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls the session and revocation stores.
type SessionConfig struct {
	SessionPrefix    string
	RevocationPrefix string
	// RevocationTTL pins every revocation entry to a fixed window. Zero keeps an
	// entry for the revoked credential's remaining lifetime plus leeway.
	RevocationTTL time.Duration
}

/*
====================================
COOKIE CONFIG
====================================
*/

// CookieConfig controls the refresh cookie.
type CookieConfig struct {
	Name     string
	Path     string
	Domain   string
	MaxAge   time.Duration
	Secure   bool
	HttpOnly bool
	SameSite http.SameSite
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig controls the default password verifier built when none is
// supplied to the Builder.
type PasswordConfig struct {
	Scheme      password.Scheme
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	BcryptCost  int
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig groups request-authentication policy and login throttling.
type SecurityConfig struct {
	// PermissiveRenewalFallthrough lets a request whose access credential expired
	// and could not be renewed continue without identity instead of failing 401.
	PermissiveRenewalFallthrough bool

	EnableLoginThrottle bool
	EnableIPThrottle    bool
	MaxLoginAttempts    int
	LoginCooldown       time.Duration
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig controls in-process counters and the latency histogram.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns production defaults. JWT.Secret must still be set.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
		},
		Session: SessionConfig{
			SessionPrefix:    "refresh:",
			RevocationPrefix: "blacklist:",
		},
		Cookie: CookieConfig{
			Name:     "refreshToken",
			Path:     "/auth/refresh",
			MaxAge:   7 * 24 * time.Hour,
			Secure:   true,
			HttpOnly: true,
			SameSite: http.SameSiteDefaultMode,
		},
		Password: PasswordConfig{
			Scheme:      password.SchemeArgon2id,
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
			BcryptCost:  10,
		},
		Security: SecurityConfig{
			EnableLoginThrottle: true,
			EnableIPThrottle:    false,
			MaxLoginAttempts:    5,
			LoginCooldown:       15 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
	}
}

// Validate reports the first configuration error found.
func (c *Config) Validate() error {
	// JWT
	if strings.TrimSpace(c.JWT.Secret) == "" {
		return errors.New("JWT Secret must be set")
	}
	if err := validateSecret(c.JWT.Secret); err != nil {
		return err
	}
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must be longer than AccessTTL")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be within [0, 2m]")
	}

	// Session
	if c.Session.SessionPrefix == "" || c.Session.RevocationPrefix == "" {
		return errors.New("Session prefixes must be non-empty")
	}
	if c.Session.SessionPrefix == c.Session.RevocationPrefix {
		return errors.New("Session and revocation prefixes must differ")
	}
	if c.Session.RevocationTTL < 0 {
		return errors.New("Session RevocationTTL must be >= 0")
	}

	// Cookie
	if c.Cookie.Name == "" {
		return errors.New("Cookie Name must be set")
	}
	if c.Cookie.MaxAge < time.Second {
		return errors.New("Cookie MaxAge must be >= 1s")
	}
	if c.Cookie.SameSite == http.SameSiteNoneMode && !c.Cookie.Secure {
		return errors.New("Cookie SameSite=None requires Secure")
	}

	// Password
	switch c.Password.Scheme {
	case password.SchemeArgon2id, password.SchemeBcrypt:
	default:
		return fmt.Errorf("unsupported password scheme %q", c.Password.Scheme)
	}

	// Security
	if c.Security.EnableLoginThrottle {
		if c.Security.MaxLoginAttempts <= 0 {
			return errors.New("Security MaxLoginAttempts must be > 0 when login throttle is enabled")
		}
		if c.Security.LoginCooldown <= 0 {
			return errors.New("Security LoginCooldown must be > 0 when login throttle is enabled")
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}

	return nil
}

func validateSecret(secret string) error {
	secret = strings.TrimSpace(secret)
	raw, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		raw, err = base64.RawStdEncoding.DecodeString(secret)
		if err != nil {
			return errors.New("JWT Secret must be base64")
		}
	}
	if len(raw) < 32 {
		return fmt.Errorf("JWT Secret must decode to at least 32 bytes, got %d", len(raw))
	}
	return nil
}
