package jwt

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenType is the value of the typ claim.
type TokenType string

const (
	TypeAccess  TokenType = "access"
	TypeRefresh TokenType = "refresh"
)

var (
	// ErrMalformed is returned when a credential fails signature, algorithm or
	// structural checks.
	ErrMalformed = errors.New("malformed credential")
	// ErrExpired is returned by Verify for a well-formed credential past its exp.
	ErrExpired = errors.New("credential expired")
	// ErrWrongType is returned by Verify when the typ claim does not match.
	ErrWrongType = errors.New("unexpected credential type")
	// ErrInvalidSecret is returned when the configured secret cannot produce an HMAC key.
	ErrInvalidSecret = errors.New("invalid signing secret")
)

const (
	minSecretBytes      = 32
	defaultMaxFutureIAT = 10 * time.Minute
)

// Config holds codec settings. Secret is the base64-encoded HMAC secret; the
// decoded secret must be at least 32 bytes.
type Config struct {
	Secret       string
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
	Issuer       string
	Leeway       time.Duration
	MaxFutureIAT time.Duration
	Now          func() time.Time
}

// Claims is the claim set shared by both credential types.
type Claims struct {
	Type  TokenType `json:"typ"`
	Roles []string  `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// Role returns the first role claim, or "" for refresh credentials.
func (c *Claims) Role() string {
	if c == nil || len(c.Roles) == 0 {
		return ""
	}
	return c.Roles[0]
}

type signingKey struct {
	secret []byte
	method jwt.SigningMethod
}

// Codec signs and verifies credentials. It is safe for concurrent use; the
// signing key is derived on first use and reused afterwards.
type Codec struct {
	config Config
	key    func() (signingKey, error)
}

// NewCodec validates cfg and returns a codec. Key derivation is deferred to the
// first sign/verify call (or [Codec.Warm]).
func NewCodec(cfg Config) (*Codec, error) {
	return newCodec(cfg, deriveKey)
}

func newCodec(cfg Config, derive func(string) (signingKey, error)) (*Codec, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.RefreshTTL <= cfg.AccessTTL {
		return nil, errors.New("refresh TTL must be longer than access TTL")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = defaultMaxFutureIAT
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, fmt.Errorf("%w: empty secret", ErrInvalidSecret)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	secret := cfg.Secret
	return &Codec{
		config: cfg,
		key: sync.OnceValues(func() (signingKey, error) {
			return derive(secret)
		}),
	}, nil
}

// Warm forces key derivation so configuration errors surface at startup.
func (c *Codec) Warm() error {
	_, err := c.key()
	return err
}

// Algorithm returns the JWS algorithm selected for the configured secret.
func (c *Codec) Algorithm() (string, error) {
	key, err := c.key()
	if err != nil {
		return "", err
	}
	return key.method.Alg(), nil
}

// AccessTTL returns the configured access credential lifetime.
func (c *Codec) AccessTTL() time.Duration { return c.config.AccessTTL }

// RefreshTTL returns the configured refresh credential lifetime.
func (c *Codec) RefreshTTL() time.Duration { return c.config.RefreshTTL }

// IssueAccess mints an access credential for subject carrying role.
func (c *Codec) IssueAccess(subject, role string) (string, error) {
	if subject == "" {
		return "", errors.New("access credential requires a subject")
	}
	claims := c.newClaims(subject, TypeAccess, c.config.AccessTTL)
	claims.Roles = []string{role}
	return c.sign(claims)
}

// IssueRefresh mints a refresh credential for subject. Refresh credentials
// never carry roles.
func (c *Codec) IssueRefresh(subject string) (string, error) {
	if subject == "" {
		return "", errors.New("refresh credential requires a subject")
	}
	return c.sign(c.newClaims(subject, TypeRefresh, c.config.RefreshTTL))
}

// Inspect verifies signature, algorithm and structure and returns the claims.
// Time-based claims are not enforced here.
func (c *Codec) Inspect(token string) (*Claims, error) {
	key, err := c.key()
	if err != nil {
		return nil, err
	}

	// Strict decoding rejects segments whose unused trailing bits are set,
	// so each signature has exactly one accepted encoding.
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{key.method.Alg()}),
		jwt.WithoutClaimsValidation(),
		jwt.WithStrictDecoding(),
	)
	claims := &Claims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != key.method.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return key.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !parsed.Valid {
		return nil, ErrMalformed
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrMalformed)
	}
	if claims.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: missing exp", ErrMalformed)
	}
	switch claims.Type {
	case TypeAccess:
		if len(claims.Roles) == 0 {
			return nil, fmt.Errorf("%w: access credential without role", ErrMalformed)
		}
	case TypeRefresh:
		if len(claims.Roles) != 0 {
			return nil, fmt.Errorf("%w: refresh credential carries roles", ErrMalformed)
		}
	default:
		return nil, fmt.Errorf("%w: unknown credential type", ErrMalformed)
	}
	if c.config.Issuer != "" && claims.Issuer != c.config.Issuer {
		return nil, fmt.Errorf("%w: unexpected issuer", ErrMalformed)
	}
	if claims.IssuedAt != nil && claims.IssuedAt.Time.After(c.config.Now().Add(c.config.MaxFutureIAT)) {
		return nil, fmt.Errorf("%w: iat too far in the future", ErrMalformed)
	}

	return claims, nil
}

// SubjectOf returns the sub claim of a signature-valid credential. Expired
// credentials still resolve.
func (c *Codec) SubjectOf(token string) (string, error) {
	claims, err := c.Inspect(token)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// IsExpired reports whether a well-formed credential is past its exp. Only
// malformed credentials produce an error.
func (c *Codec) IsExpired(token string) (bool, error) {
	claims, err := c.Inspect(token)
	if err != nil {
		return false, err
	}
	return c.Expired(claims), nil
}

// IsValid reports whether token is well formed, belongs to expectedSubject and
// is not expired.
func (c *Codec) IsValid(token, expectedSubject string) bool {
	claims, err := c.Inspect(token)
	if err != nil {
		return false
	}
	return claims.Subject == expectedSubject && !c.Expired(claims)
}

// Verify is Inspect plus a type check and expiry enforcement.
func (c *Codec) Verify(token string, want TokenType) (*Claims, error) {
	claims, err := c.Inspect(token)
	if err != nil {
		return nil, err
	}
	if claims.Type != want {
		return nil, ErrWrongType
	}
	if c.Expired(claims) {
		return nil, ErrExpired
	}
	return claims, nil
}

// Expired applies the configured clock and leeway to claims.
func (c *Codec) Expired(claims *Claims) bool {
	if claims == nil || claims.ExpiresAt == nil {
		return true
	}
	return !c.config.Now().Before(claims.ExpiresAt.Time.Add(c.config.Leeway))
}

// Remaining returns how long claims stay valid, including leeway. It is zero
// or negative for expired credentials.
func (c *Codec) Remaining(claims *Claims) time.Duration {
	if claims == nil || claims.ExpiresAt == nil {
		return 0
	}
	return claims.ExpiresAt.Time.Add(c.config.Leeway).Sub(c.config.Now())
}

func (c *Codec) newClaims(subject string, typ TokenType, ttl time.Duration) *Claims {
	now := c.config.Now()
	return &Claims{
		Type: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    c.config.Issuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
}

func (c *Codec) sign(claims *Claims) (string, error) {
	key, err := c.key()
	if err != nil {
		return "", err
	}
	return jwt.NewWithClaims(key.method, claims).SignedString(key.secret)
}

// deriveKey decodes the base64 secret and picks the strongest HMAC variant the
// key length supports.
func deriveKey(encoded string) (signingKey, error) {
	encoded = strings.TrimSpace(encoded)
	secret, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		secret, err = base64.RawStdEncoding.DecodeString(encoded)
		if err != nil {
			return signingKey{}, fmt.Errorf("%w: secret is not base64", ErrInvalidSecret)
		}
	}

	switch n := len(secret); {
	case n >= 64:
		return signingKey{secret: secret, method: jwt.SigningMethodHS512}, nil
	case n >= 48:
		return signingKey{secret: secret, method: jwt.SigningMethodHS384}, nil
	case n >= minSecretBytes:
		return signingKey{secret: secret, method: jwt.SigningMethodHS256}, nil
	default:
		return signingKey{}, fmt.Errorf("%w: decoded secret is %d bytes, need at least %d", ErrInvalidSecret, n, minSecretBytes)
	}
}
