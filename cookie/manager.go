package cookie

import (
	"errors"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultName   = "refreshToken"
	DefaultPath   = "/auth/refresh"
	DefaultMaxAge = 7 * 24 * time.Hour
)

// Config controls the refresh cookie attributes. Zero values fall back to the
// defaults above; Secure and HttpOnly are explicit.
type Config struct {
	Name     string
	Path     string
	Domain   string
	MaxAge   time.Duration
	Secure   bool
	HttpOnly bool
	SameSite http.SameSite
}

// DefaultConfig returns the production cookie settings.
func DefaultConfig() Config {
	return Config{
		Name:     DefaultName,
		Path:     DefaultPath,
		MaxAge:   DefaultMaxAge,
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteDefaultMode,
	}
}

// Manager writes and reads the refresh cookie.
type Manager struct {
	cfg Config
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}
	if cfg.MaxAge == 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	if cfg.MaxAge < time.Second {
		return nil, errors.New("cookie max age must be at least one second")
	}
	if strings.ContainsAny(cfg.Name, " \t\r\n;,=") {
		return nil, errors.New("cookie name contains invalid characters")
	}
	if cfg.SameSite == http.SameSiteNoneMode && !cfg.Secure {
		return nil, errors.New("SameSite=None requires Secure cookies")
	}
	return &Manager{cfg: cfg}, nil
}

// Name returns the cookie name.
func (m *Manager) Name() string { return m.cfg.Name }

// Attach sets the refresh cookie on w.
func (m *Manager) Attach(w http.ResponseWriter, refreshToken string) {
	http.SetCookie(w, m.cookie(refreshToken, int(m.cfg.MaxAge/time.Second)))
}

// Clear instructs the client to discard the refresh cookie (Max-Age=0).
func (m *Manager) Clear(w http.ResponseWriter) {
	http.SetCookie(w, m.cookie("", -1))
}

// Read returns the refresh cookie value, if present and non-empty.
func (m *Manager) Read(r *http.Request) (string, bool) {
	c, err := r.Cookie(m.cfg.Name)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

func (m *Manager) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     m.cfg.Name,
		Value:    value,
		Path:     m.cfg.Path,
		Domain:   m.cfg.Domain,
		MaxAge:   maxAge,
		Secure:   m.cfg.Secure,
		HttpOnly: m.cfg.HttpOnly,
		SameSite: m.cfg.SameSite,
	}
}
