package password

import (
	"fmt"
	"strings"
)

// Hasher is one encoding scheme.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) (bool, error)
	NeedsUpgrade(encoded string) (bool, error)
}

// Scheme names the preferred encoding for new hashes.
type Scheme string

const (
	SchemeArgon2id Scheme = "argon2id"
	SchemeBcrypt   Scheme = "bcrypt"
)

// Verifier hashes with the preferred scheme and verifies any supported one.
type Verifier struct {
	preferred Scheme
	argon2    *Argon2
	bcrypt    *Bcrypt
}

// NewVerifier builds a Verifier. Either hasher may be nil as long as the
// preferred one is present; a nil hasher makes its encoding unverifiable.
func NewVerifier(preferred Scheme, a *Argon2, b *Bcrypt) (*Verifier, error) {
	switch preferred {
	case SchemeArgon2id:
		if a == nil {
			return nil, fmt.Errorf("preferred scheme %s has no hasher", preferred)
		}
	case SchemeBcrypt:
		if b == nil {
			return nil, fmt.Errorf("preferred scheme %s has no hasher", preferred)
		}
	default:
		return nil, fmt.Errorf("unknown password scheme %q", preferred)
	}
	return &Verifier{preferred: preferred, argon2: a, bcrypt: b}, nil
}

// NewDefaultVerifier prefers argon2id with default costs and still accepts
// bcrypt hashes.
func NewDefaultVerifier() *Verifier {
	a, _ := NewArgon2(DefaultArgon2Config())
	b, _ := NewBcrypt(0)
	return &Verifier{preferred: SchemeArgon2id, argon2: a, bcrypt: b}
}

// Hash encodes password with the preferred scheme.
func (v *Verifier) Hash(password string) (string, error) {
	return v.hasherFor(string(v.preferred)).Hash(password)
}

// Verify checks password against encoded using the scheme encoded names.
func (v *Verifier) Verify(password, encoded string) (bool, error) {
	h, err := v.detect(encoded)
	if err != nil {
		return false, err
	}
	return h.Verify(password, encoded)
}

// NeedsUpgrade reports whether encoded uses a non-preferred scheme or weaker
// parameters.
func (v *Verifier) NeedsUpgrade(encoded string) (bool, error) {
	h, err := v.detect(encoded)
	if err != nil {
		return false, err
	}
	if h != v.hasherFor(string(v.preferred)) {
		return true, nil
	}
	return h.NeedsUpgrade(encoded)
}

func (v *Verifier) detect(encoded string) (Hasher, error) {
	switch {
	case strings.HasPrefix(encoded, argon2Prefix) && v.argon2 != nil:
		return v.argon2, nil
	case isBcrypt(encoded) && v.bcrypt != nil:
		return v.bcrypt, nil
	default:
		return nil, fmt.Errorf("%w: unsupported scheme", ErrMalformedHash)
	}
}

func (v *Verifier) hasherFor(scheme string) Hasher {
	if Scheme(scheme) == SchemeBcrypt {
		return v.bcrypt
	}
	return v.argon2
}
