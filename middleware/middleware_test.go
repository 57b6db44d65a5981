package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	taskmanager "github.com/lewadaa/task-manager"
	"github.com/lewadaa/task-manager/cookie"
)

type fakeAuthenticator struct {
	res        *taskmanager.AuthResult
	err        error
	gotAccess  string
	gotRefresh string
	calls      int
}

func (f *fakeAuthenticator) Authenticate(_ context.Context, access, refresh string) (*taskmanager.AuthResult, error) {
	f.calls++
	f.gotAccess = access
	f.gotRefresh = refresh
	return f.res, f.err
}

func identityHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := taskmanager.IdentityFromContext(r.Context())
		if !ok {
			_, _ = fmt.Fprint(w, "anonymous")
			return
		}
		_, _ = fmt.Fprintf(w, "%s:%s", id.Subject, id.Role)
	})
}

func newCookies(t *testing.T) *cookie.Manager {
	t.Helper()
	m, err := cookie.NewManager(cookie.DefaultConfig())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func TestPipelineStopsAtFirstRejection(t *testing.T) {
	var order []string
	step := func(name string, out Outcome) Interceptor {
		return func(http.ResponseWriter, *http.Request) Outcome {
			order = append(order, name)
			return out
		}
	}

	h := Pipeline(
		step("a", Continue(nil)),
		step("b", Deny(http.StatusForbidden, taskmanager.ErrForbidden)),
		step("c", Continue(nil)),
	)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tasks", nil))

	if got := strings.Join(order, ","); got != "a,b" {
		t.Fatalf("unexpected order %q", got)
	}
	if rec.Code != http.StatusForbidden || strings.TrimSpace(rec.Body.String()) != "forbidden" {
		t.Fatalf("unexpected response %d %q", rec.Code, rec.Body.String())
	}
}

func TestPipelinePassesDerivedRequest(t *testing.T) {
	type key struct{}
	h := Pipeline(
		func(_ http.ResponseWriter, r *http.Request) Outcome {
			return Continue(r.WithContext(context.WithValue(r.Context(), key{}, "v")))
		},
		func(_ http.ResponseWriter, r *http.Request) Outcome {
			if r.Context().Value(key{}) != "v" {
				return Deny(http.StatusTeapot, nil)
			}
			return Continue(nil)
		},
	)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, r.Context().Value(key{}))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "v" {
		t.Fatalf("derived request lost: %d %q", rec.Code, rec.Body.String())
	}
}

func TestSkipPathsBypassesAuthentication(t *testing.T) {
	auth := &fakeAuthenticator{err: taskmanager.ErrMissingCredential}
	h := Pipeline(SkipPaths(), Authenticate(auth, nil))(identityHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/login", nil))
	if rec.Code != http.StatusOK || auth.calls != 0 {
		t.Fatalf("auth path should bypass: code=%d calls=%d", rec.Code, auth.calls)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tasks", nil))
	if rec.Code != http.StatusUnauthorized || auth.calls != 1 {
		t.Fatalf("api path should authenticate: code=%d calls=%d", rec.Code, auth.calls)
	}
	if strings.TrimSpace(rec.Body.String()) != "unauthorized" {
		t.Fatalf("expected opaque body, got %q", rec.Body.String())
	}
}

func TestAuthenticateEstablishesIdentity(t *testing.T) {
	auth := &fakeAuthenticator{res: &taskmanager.AuthResult{Subject: "alice", Role: taskmanager.RoleUser}}
	cookies := newCookies(t)
	h := Pipeline(Authenticate(auth, cookies))(identityHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	req.Header.Set("Authorization", "Bearer access-token")
	req.AddCookie(&http.Cookie{Name: cookie.DefaultName, Value: "refresh-token"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Body.String() != "alice:USER" {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
	if auth.gotAccess != "access-token" || auth.gotRefresh != "refresh-token" {
		t.Fatalf("credentials not forwarded: %q %q", auth.gotAccess, auth.gotRefresh)
	}
	if rec.Header().Get(NewAccessTokenHeader) != "" {
		t.Fatal("no renewal header expected")
	}
}

func TestAuthenticateRenewalHeader(t *testing.T) {
	auth := &fakeAuthenticator{res: &taskmanager.AuthResult{
		Subject:        "alice",
		Role:           taskmanager.RoleUser,
		Renewed:        true,
		NewAccessToken: "fresh",
	}}
	h := Pipeline(Authenticate(auth, nil))(identityHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	req.Header.Set("Authorization", "Bearer stale")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Header().Get(NewAccessTokenHeader) != "fresh" {
		t.Fatalf("expected renewal header, got %q", rec.Header().Get(NewAccessTokenHeader))
	}
}

func TestAuthenticateAnonymousFallthrough(t *testing.T) {
	auth := &fakeAuthenticator{res: &taskmanager.AuthResult{Anonymous: true}}
	h := Pipeline(Authenticate(auth, nil))(identityHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tasks", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "anonymous" {
		t.Fatalf("unexpected response %d %q", rec.Code, rec.Body.String())
	}

	gated := Pipeline(Authenticate(auth, nil), RequireRole(taskmanager.RoleUser))(identityHandler())
	rec = httptest.NewRecorder()
	gated.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tasks", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("role gate without identity: expected 401, got %d", rec.Code)
	}
}

func TestAuthenticateErrorStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{err: taskmanager.ErrRevokedCredential, want: http.StatusUnauthorized},
		{err: fmt.Errorf("%w: bad sig", taskmanager.ErrMalformedCredential), want: http.StatusUnauthorized},
		{err: taskmanager.ErrExpiredCredential, want: http.StatusUnauthorized},
		{err: fmt.Errorf("%w: down", taskmanager.ErrStoreUnavailable), want: http.StatusServiceUnavailable},
		{err: errors.New("boom"), want: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		auth := &fakeAuthenticator{err: tc.err}
		h := Pipeline(Authenticate(auth, nil))(identityHandler())
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tasks", nil))
		if rec.Code != tc.want {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.want, rec.Code)
		}
	}
}

func TestRequireRole(t *testing.T) {
	h := Pipeline(RequireRole(taskmanager.RoleAdmin))(identityHandler())

	cases := []struct {
		name string
		id   *taskmanager.Identity
		want int
	}{
		{name: "no identity", want: http.StatusUnauthorized},
		{name: "user", id: &taskmanager.Identity{Subject: "alice", Role: taskmanager.RoleUser}, want: http.StatusForbidden},
		{name: "admin", id: &taskmanager.Identity{Subject: "root", Role: taskmanager.RoleAdmin}, want: http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
			if tc.id != nil {
				req = req.WithContext(taskmanager.WithIdentity(req.Context(), *tc.id))
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rec.Code)
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	cases := map[string]string{
		"Bearer abc":  "abc",
		"Bearer  abc": "abc",
		"bearer abc":  "",
		"Basic abc":   "",
		"Bearer ":     "",
		"":            "",
	}
	for header, want := range cases {
		got, ok := BearerToken(header)
		if got != want || ok != (want != "") {
			t.Fatalf("%q: got %q ok=%v", header, got, ok)
		}
	}
}

func TestRemoteIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.9:4321"
	req.Header.Set("X-Forwarded-For", "198.51.100.1, 10.0.0.1")

	if got := RemoteIP(req, false); got != "203.0.113.9" {
		t.Fatalf("expected RemoteAddr host, got %q", got)
	}
	if got := RemoteIP(req, true); got != "198.51.100.1" {
		t.Fatalf("expected first forwarded address, got %q", got)
	}
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	h := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/users", nil))

	id := rec.Header().Get(RequestIDHeader)
	if len(id) != 26 {
		t.Fatalf("expected a ULID request id, got %q", id)
	}

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v (%s)", err, buf.String())
	}
	if line["request_id"] != id || line["path"] != "/api/users" || line["status"] != float64(http.StatusForbidden) {
		t.Fatalf("unexpected log line %v", line)
	}
	if line["level"] != "WARN" {
		t.Fatalf("expected WARN for 4xx, got %v", line["level"])
	}
}
