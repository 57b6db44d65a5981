package taskmanager

import "context"

// Role names used by the bundled routes.
const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// Principal is an authenticatable user: a unique username and exactly one role.
type Principal struct {
	Username string
	Role     string
}

// PrincipalRecord is what a directory returns for a username.
type PrincipalRecord struct {
	Username     string
	Role         string
	PasswordHash string
}

// Principal drops the password hash.
func (r PrincipalRecord) Principal() Principal {
	return Principal{Username: r.Username, Role: r.Role}
}

// PrincipalDirectory resolves usernames. Implementations return an error
// wrapping [ErrUnknownPrincipal] when the username does not exist.
type PrincipalDirectory interface {
	LookupPrincipal(ctx context.Context, username string) (PrincipalRecord, error)
}

// PasswordVerifier checks a plaintext password against a stored hash.
type PasswordVerifier interface {
	Verify(password, encodedHash string) (bool, error)
}

// TokenPair is the credential pair returned by Login and Refresh.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// AuthResult is the outcome of authenticating one request.
//
// Anonymous is set only when silent renewal failed and
// SecurityConfig.PermissiveRenewalFallthrough is enabled: the request proceeds
// with no identity.
type AuthResult struct {
	Subject        string
	Role           string
	Renewed        bool
	NewAccessToken string
	Anonymous      bool
}

// Identity returns the request identity carried by r.
func (r *AuthResult) Identity() Identity {
	if r == nil {
		return Identity{}
	}
	return Identity{Subject: r.Subject, Role: r.Role, Renewed: r.Renewed}
}
