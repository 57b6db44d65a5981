package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	taskmanager "github.com/lewadaa/task-manager"
	"github.com/lewadaa/task-manager/cookie"
)

// NewAccessTokenHeader carries a silently renewed access credential.
const NewAccessTokenHeader = "X-New-Access-Token"

// DefaultSkipPrefix is the route prefix of the session-management endpoints.
const DefaultSkipPrefix = "/auth/"

// Authenticator is the engine surface the middleware needs.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken, refreshCookie string) (*taskmanager.AuthResult, error)
}

// SkipPaths bypasses authentication for requests under any of prefixes. With
// no prefixes it uses [DefaultSkipPrefix].
func SkipPaths(prefixes ...string) Interceptor {
	if len(prefixes) == 0 {
		prefixes = []string{DefaultSkipPrefix}
	}
	return func(_ http.ResponseWriter, r *http.Request) Outcome {
		for _, p := range prefixes {
			if strings.HasPrefix(r.URL.Path, p) {
				return Skip(nil)
			}
		}
		return Continue(nil)
	}
}

// Authenticate validates the request's bearer credential. When the credential
// has expired the refresh cookie read through cookies is used for silent
// renewal. cookies may be nil to disable renewal.
func Authenticate(auth Authenticator, cookies *cookie.Manager) Interceptor {
	return func(w http.ResponseWriter, r *http.Request) Outcome {
		if auth == nil {
			return Deny(http.StatusUnauthorized, taskmanager.ErrEngineNotReady)
		}

		token, _ := bearerToken(r.Header.Get("Authorization"))
		var refresh string
		if cookies != nil {
			refresh, _ = cookies.Read(r)
		}

		res, err := auth.Authenticate(r.Context(), token, refresh)
		if err != nil {
			return Deny(taskmanager.HTTPStatus(err), err)
		}
		if res.Anonymous {
			return Continue(nil)
		}
		if res.Renewed && res.NewAccessToken != "" {
			w.Header().Set(NewAccessTokenHeader, res.NewAccessToken)
		}

		ctx := taskmanager.WithIdentity(r.Context(), res.Identity())
		return Continue(r.WithContext(ctx))
	}
}

// RequireRole admits identities holding one of roles. No identity is 401; a
// different role is 403.
func RequireRole(roles ...string) Interceptor {
	return func(_ http.ResponseWriter, r *http.Request) Outcome {
		id, ok := taskmanager.IdentityFromContext(r.Context())
		if !ok {
			return Deny(http.StatusUnauthorized, taskmanager.ErrUnauthorized)
		}
		if !id.HasRole(roles...) {
			return Deny(http.StatusForbidden, taskmanager.ErrForbidden)
		}
		return Continue(nil)
	}
}

// ClientIP stores the caller address in the request context. The first
// X-Forwarded-For entry wins over RemoteAddr when trustForwarded is set.
func ClientIP(trustForwarded bool) Interceptor {
	return func(_ http.ResponseWriter, r *http.Request) Outcome {
		ip := RemoteIP(r, trustForwarded)
		if ip == "" {
			return Continue(nil)
		}
		return Continue(r.WithContext(taskmanager.WithClientIP(r.Context(), ip)))
	}
}

// RemoteIP returns the caller address of r.
func RemoteIP(r *http.Request, trustForwarded bool) string {
	if trustForwarded {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			return strings.TrimSpace(first)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// BearerToken extracts the credential from an Authorization header value.
func BearerToken(value string) (string, bool) {
	return bearerToken(value)
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
