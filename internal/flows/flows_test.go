package flows

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lewadaa/task-manager/jwt"
	"github.com/lewadaa/task-manager/kv"
	"github.com/lewadaa/task-manager/revocation"
	"github.com/lewadaa/task-manager/session"
)

var errBackend = errors.New("backend down")

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	clock       *testClock
	codec       *jwt.Codec
	store       *kv.Memory
	sessions    *session.Store
	revocations *revocation.Store
	users       map[string]Principal
	lookupErr   error
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	codec, err := jwt.NewCodec(jwt.Config{
		Secret:     base64.StdEncoding.EncodeToString(bytes.Repeat([]byte("s"), 32)),
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
		Now:        clock.Now,
	})
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	store := kv.NewMemory(clock.Now)
	return &fixture{
		clock:       clock,
		codec:       codec,
		store:       store,
		sessions:    session.NewStore(store, session.DefaultPrefix),
		revocations: revocation.NewStore(store, revocation.DefaultPrefix),
		users: map[string]Principal{
			"alice": {Username: "alice", Role: "USER", PasswordHash: "hash:correct"},
			"root":  {Username: "root", Role: "ADMIN", PasswordHash: "hash:toor"},
		},
	}
}

func (f *fixture) lookup(_ context.Context, username string) (Principal, bool, error) {
	if f.lookupErr != nil {
		return Principal{}, false, f.lookupErr
	}
	p, ok := f.users[username]
	return p, ok, nil
}

type verifyCall struct {
	password string
	hash     string
}

type fakeVerifier struct {
	mu    sync.Mutex
	calls []verifyCall
	err   error
}

func (v *fakeVerifier) Verify(password, hash string) (bool, error) {
	v.mu.Lock()
	v.calls = append(v.calls, verifyCall{password: password, hash: hash})
	v.mu.Unlock()
	if v.err != nil {
		return false, v.err
	}
	return hash == "hash:"+password, nil
}

var errLimited = errors.New("limited")

type fakeLimiter struct {
	checkErr  error
	incErr    error
	failures  int
	resets    int
	lastIP    string
	maxBudget int
}

func (l *fakeLimiter) CheckLogin(_ context.Context, _, ip string) error {
	l.lastIP = ip
	if l.checkErr != nil {
		return l.checkErr
	}
	if l.maxBudget > 0 && l.failures >= l.maxBudget {
		return errLimited
	}
	return nil
}

func (l *fakeLimiter) IncrementLogin(context.Context, string, string) error {
	l.failures++
	if l.incErr != nil {
		return l.incErr
	}
	if l.maxBudget > 0 && l.failures >= l.maxBudget {
		return errLimited
	}
	return nil
}

func (l *fakeLimiter) ResetLogin(context.Context, string) error {
	l.resets++
	l.failures = 0
	return nil
}

type failingSessions struct {
	SessionStore
	getErr    error
	putErr    error
	deleteErr error
}

func (s failingSessions) Get(ctx context.Context, principal string) (string, bool, error) {
	if s.getErr != nil {
		return "", false, s.getErr
	}
	return s.SessionStore.Get(ctx, principal)
}

func (s failingSessions) Put(ctx context.Context, principal, token string, ttl time.Duration) error {
	if s.putErr != nil {
		return s.putErr
	}
	return s.SessionStore.Put(ctx, principal, token, ttl)
}

func (s failingSessions) Delete(ctx context.Context, principal string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	return s.SessionStore.Delete(ctx, principal)
}

type failingRevocations struct {
	err error
}

func (r failingRevocations) Revoke(context.Context, string, time.Duration) error { return r.err }
func (r failingRevocations) IsRevoked(context.Context, string) (bool, error)     { return false, r.err }

func (f *fixture) loginDeps(v *fakeVerifier, l *fakeLimiter) LoginDeps {
	deps := LoginDeps{
		Codec:       f.codec,
		Sessions:    f.sessions,
		Lookup:      f.lookup,
		Verify:      v.Verify,
		DummyHash:   "hash:dummy",
		RateLimited: errLimited,
	}
	if l != nil {
		deps.Limiter = l
	}
	return deps
}

func (f *fixture) login(t *testing.T, username, password string) LoginResult {
	t.Helper()
	res := RunLogin(context.Background(), username, password, "", f.loginDeps(&fakeVerifier{}, nil))
	if res.Failure != LoginFailureNone {
		t.Fatalf("login %s: failure=%v err=%v", username, res.Failure, res.Err)
	}
	return res
}

func (f *fixture) authDeps() AuthenticateDeps {
	return AuthenticateDeps{
		Codec:       f.codec,
		Sessions:    f.sessions,
		Revocations: f.revocations,
		Lookup:      f.lookup,
	}
}

func (f *fixture) logoutDeps() LogoutDeps {
	return LogoutDeps{
		Codec:       f.codec,
		Sessions:    f.sessions,
		Revocations: f.revocations,
	}
}

func (f *fixture) refreshDeps() RefreshDeps {
	return RefreshDeps{
		Codec:    f.codec,
		Sessions: f.sessions,
		Lookup:   f.lookup,
	}
}

func TestLoginIssuesPairAndStoresSession(t *testing.T) {
	f := newFixture(t)
	res := f.login(t, "alice", "correct")

	if res.Subject != "alice" || res.Role != "USER" {
		t.Fatalf("unexpected identity %q/%q", res.Subject, res.Role)
	}
	access, err := f.codec.Verify(res.AccessToken, jwt.TypeAccess)
	if err != nil {
		t.Fatalf("access token: %v", err)
	}
	if access.Role() != "USER" {
		t.Fatalf("expected USER role claim, got %q", access.Role())
	}

	stored, ok, err := f.sessions.Get(context.Background(), "alice")
	if err != nil || !ok {
		t.Fatalf("session missing: ok=%v err=%v", ok, err)
	}
	if stored != res.RefreshToken {
		t.Fatal("stored session does not match issued refresh credential")
	}
	if ttl, ok := f.store.TTL(session.DefaultPrefix + "alice"); !ok || ttl != 7*24*time.Hour {
		t.Fatalf("expected session ttl of 7d, got %v ok=%v", ttl, ok)
	}
}

func TestLoginReplacesPreviousSession(t *testing.T) {
	f := newFixture(t)
	first := f.login(t, "alice", "correct")
	second := f.login(t, "alice", "correct")

	stored, _, _ := f.sessions.Get(context.Background(), "alice")
	if stored != second.RefreshToken || stored == first.RefreshToken {
		t.Fatal("expected the second login to replace the first session")
	}
}

func TestLoginUnknownPrincipalVerifiesDummyHash(t *testing.T) {
	f := newFixture(t)
	v := &fakeVerifier{}
	res := RunLogin(context.Background(), "mallory", "guess", "", f.loginDeps(v, nil))

	if res.Failure != LoginFailureUnknownPrincipal {
		t.Fatalf("expected unknown principal, got %v", res.Failure)
	}
	if len(v.calls) != 1 || v.calls[0].hash != "hash:dummy" {
		t.Fatalf("expected one dummy verification, got %+v", v.calls)
	}
	if _, ok, _ := f.sessions.Get(context.Background(), "mallory"); ok {
		t.Fatal("no session may be created for an unknown principal")
	}
}

func TestLoginBadPassword(t *testing.T) {
	f := newFixture(t)
	res := RunLogin(context.Background(), "alice", "wrong", "", f.loginDeps(&fakeVerifier{}, nil))
	if res.Failure != LoginFailureBadPassword {
		t.Fatalf("expected bad password, got %v", res.Failure)
	}
	if res.AccessToken != "" || res.RefreshToken != "" {
		t.Fatal("no credentials may be issued on failure")
	}
}

func TestLoginVerifierError(t *testing.T) {
	f := newFixture(t)
	v := &fakeVerifier{err: errors.New("corrupt hash")}
	res := RunLogin(context.Background(), "alice", "correct", "", f.loginDeps(v, nil))
	if res.Failure != LoginFailureVerify || res.Err == nil {
		t.Fatalf("expected verify failure, got %v err=%v", res.Failure, res.Err)
	}
}

func TestLoginDirectoryError(t *testing.T) {
	f := newFixture(t)
	f.lookupErr = errBackend
	res := RunLogin(context.Background(), "alice", "correct", "", f.loginDeps(&fakeVerifier{}, nil))
	if res.Failure != LoginFailureDirectory || !errors.Is(res.Err, errBackend) {
		t.Fatalf("expected directory failure, got %v err=%v", res.Failure, res.Err)
	}
}

func TestLoginSessionCreateFailure(t *testing.T) {
	f := newFixture(t)
	deps := f.loginDeps(&fakeVerifier{}, nil)
	deps.Sessions = failingSessions{SessionStore: f.sessions, putErr: errBackend}

	res := RunLogin(context.Background(), "alice", "correct", "", deps)
	if res.Failure != LoginFailureSessionCreate || !errors.Is(res.Err, errBackend) {
		t.Fatalf("expected session create failure, got %v err=%v", res.Failure, res.Err)
	}
}

func TestLoginThrottle(t *testing.T) {
	f := newFixture(t)
	l := &fakeLimiter{maxBudget: 2}
	deps := f.loginDeps(&fakeVerifier{}, l)

	first := RunLogin(context.Background(), "alice", "wrong", "10.0.0.1", deps)
	if first.Failure != LoginFailureBadPassword || first.Limited {
		t.Fatalf("first failure: %v limited=%v", first.Failure, first.Limited)
	}
	second := RunLogin(context.Background(), "alice", "wrong", "10.0.0.1", deps)
	if second.Failure != LoginFailureBadPassword || !second.Limited {
		t.Fatalf("second failure should exhaust the budget: %v limited=%v", second.Failure, second.Limited)
	}
	third := RunLogin(context.Background(), "alice", "correct", "10.0.0.1", deps)
	if third.Failure != LoginFailureRateLimited {
		t.Fatalf("expected rate limited, got %v", third.Failure)
	}
	if l.lastIP != "10.0.0.1" {
		t.Fatalf("expected client ip to reach the limiter, got %q", l.lastIP)
	}
}

func TestLoginSuccessResetsThrottle(t *testing.T) {
	f := newFixture(t)
	l := &fakeLimiter{maxBudget: 5}
	deps := f.loginDeps(&fakeVerifier{}, l)

	RunLogin(context.Background(), "alice", "wrong", "", deps)
	res := RunLogin(context.Background(), "alice", "correct", "", deps)
	if res.Failure != LoginFailureNone {
		t.Fatalf("login failed: %v", res.Failure)
	}
	if l.resets != 1 || l.failures != 0 {
		t.Fatalf("expected counters reset, resets=%d failures=%d", l.resets, l.failures)
	}
}

func TestLoginThrottleUnavailable(t *testing.T) {
	f := newFixture(t)
	l := &fakeLimiter{checkErr: errBackend}
	res := RunLogin(context.Background(), "alice", "correct", "", f.loginDeps(&fakeVerifier{}, l))
	if res.Failure != LoginFailureThrottleUnavailable {
		t.Fatalf("expected throttle unavailable, got %v", res.Failure)
	}
}

func TestLoginIncrementFailureWarnsOnly(t *testing.T) {
	f := newFixture(t)
	l := &fakeLimiter{incErr: errBackend}
	deps := f.loginDeps(&fakeVerifier{}, l)
	var warned []string
	deps.Warn = func(msg string, _ ...any) { warned = append(warned, msg) }

	res := RunLogin(context.Background(), "alice", "wrong", "", deps)
	if res.Failure != LoginFailureBadPassword || res.Limited {
		t.Fatalf("unexpected result %v limited=%v", res.Failure, res.Limited)
	}
	if len(warned) != 1 {
		t.Fatalf("expected one warning, got %v", warned)
	}
}

func TestAuthenticateValidAccess(t *testing.T) {
	f := newFixture(t)
	login := f.login(t, "root", "toor")

	res := RunAuthenticate(context.Background(), login.AccessToken, "", f.authDeps())
	if res.Failure != AuthenticateFailureNone {
		t.Fatalf("authenticate: %v err=%v", res.Failure, res.Err)
	}
	if res.Subject != "root" || res.Role != "ADMIN" || res.Renewed {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestAuthenticateUsesDirectoryRole(t *testing.T) {
	f := newFixture(t)
	login := f.login(t, "alice", "correct")
	f.users["alice"] = Principal{Username: "alice", Role: "ADMIN", PasswordHash: "hash:correct"}

	res := RunAuthenticate(context.Background(), login.AccessToken, "", f.authDeps())
	if res.Role != "ADMIN" {
		t.Fatalf("expected directory role ADMIN, got %q", res.Role)
	}
}

func TestAuthenticateMissing(t *testing.T) {
	f := newFixture(t)
	res := RunAuthenticate(context.Background(), "", "", f.authDeps())
	if res.Failure != AuthenticateFailureMissing {
		t.Fatalf("expected missing, got %v", res.Failure)
	}
}

func TestAuthenticateRevokedBeforeVerify(t *testing.T) {
	f := newFixture(t)
	if err := f.revocations.Revoke(context.Background(), "not-even-a-jwt", time.Minute); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	res := RunAuthenticate(context.Background(), "not-even-a-jwt", "", f.authDeps())
	if res.Failure != AuthenticateFailureRevoked {
		t.Fatalf("expected revoked, got %v", res.Failure)
	}
}

func TestAuthenticateRejectsRefreshAsAccess(t *testing.T) {
	f := newFixture(t)
	login := f.login(t, "alice", "correct")
	res := RunAuthenticate(context.Background(), login.RefreshToken, "", f.authDeps())
	if res.Failure != AuthenticateFailureMalformed || !errors.Is(res.Err, jwt.ErrWrongType) {
		t.Fatalf("expected wrong type, got %v err=%v", res.Failure, res.Err)
	}
}

func TestAuthenticateGarbage(t *testing.T) {
	f := newFixture(t)
	res := RunAuthenticate(context.Background(), "a.b.c", "", f.authDeps())
	if res.Failure != AuthenticateFailureMalformed {
		t.Fatalf("expected malformed, got %v", res.Failure)
	}
}

func TestAuthenticateUnknownPrincipal(t *testing.T) {
	f := newFixture(t)
	login := f.login(t, "alice", "correct")
	delete(f.users, "alice")

	res := RunAuthenticate(context.Background(), login.AccessToken, "", f.authDeps())
	if res.Failure != AuthenticateFailureUnknownPrincipal {
		t.Fatalf("expected unknown principal, got %v", res.Failure)
	}
}

func TestAuthenticateStoreUnavailable(t *testing.T) {
	f := newFixture(t)
	login := f.login(t, "alice", "correct")
	deps := f.authDeps()
	deps.Revocations = failingRevocations{err: errBackend}

	res := RunAuthenticate(context.Background(), login.AccessToken, "", deps)
	if res.Failure != AuthenticateFailureStore || !errors.Is(res.Err, errBackend) {
		t.Fatalf("expected store failure, got %v err=%v", res.Failure, res.Err)
	}
}

func TestSilentRenewal(t *testing.T) {
	f := newFixture(t)
	login := f.login(t, "alice", "correct")
	f.clock.Advance(16 * time.Minute)

	res := RunAuthenticate(context.Background(), login.AccessToken, login.RefreshToken, f.authDeps())
	if res.Failure != AuthenticateFailureNone || !res.Renewed {
		t.Fatalf("expected renewal, got %v renewal=%v err=%v", res.Failure, res.Renewal, res.Err)
	}
	claims, err := f.codec.Verify(res.NewAccessToken, jwt.TypeAccess)
	if err != nil {
		t.Fatalf("renewed access token: %v", err)
	}
	if claims.Subject != "alice" || claims.Role() != "USER" {
		t.Fatalf("unexpected renewed claims %+v", claims)
	}

	stored, _, _ := f.sessions.Get(context.Background(), "alice")
	if stored != login.RefreshToken {
		t.Fatal("silent renewal must not rotate the refresh credential")
	}
}

func TestSilentRenewalFailures(t *testing.T) {
	f := newFixture(t)
	alice := f.login(t, "alice", "correct")
	root := f.login(t, "root", "toor")
	f.clock.Advance(16 * time.Minute)

	cases := []struct {
		name   string
		cookie string
		setup  func()
		want   RenewalFailureKind
	}{
		{name: "no cookie", cookie: "", want: RenewalFailureNoCookie},
		{name: "garbage cookie", cookie: "garbage", want: RenewalFailureInvalidCookie},
		{name: "access as cookie", cookie: alice.AccessToken, want: RenewalFailureInvalidCookie},
		{name: "other principal", cookie: root.RefreshToken, want: RenewalFailureSubjectMismatch},
		{
			name:   "session replaced",
			cookie: alice.RefreshToken,
			setup: func() {
				_ = f.sessions.Put(context.Background(), "alice", "other", time.Hour)
			},
			want: RenewalFailureSessionMismatch,
		},
		{
			name:   "principal deleted",
			cookie: alice.RefreshToken,
			setup: func() {
				_ = f.sessions.Put(context.Background(), "alice", alice.RefreshToken, time.Hour)
				delete(f.users, "alice")
			},
			want: RenewalFailureUnknownPrincipal,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.setup != nil {
				tc.setup()
			}
			res := RunAuthenticate(context.Background(), alice.AccessToken, tc.cookie, f.authDeps())
			if res.Failure != AuthenticateFailureRenewal || res.Renewal != tc.want {
				t.Fatalf("expected renewal failure %v, got %v/%v", tc.want, res.Failure, res.Renewal)
			}
			if res.NewAccessToken != "" {
				t.Fatal("no credential may be issued on renewal failure")
			}
		})
	}
}

func TestSilentRenewalExpiredCookie(t *testing.T) {
	f := newFixture(t)
	login := f.login(t, "alice", "correct")
	f.clock.Advance(8 * 24 * time.Hour)

	res := RunAuthenticate(context.Background(), login.AccessToken, login.RefreshToken, f.authDeps())
	if res.Renewal != RenewalFailureInvalidCookie || !errors.Is(res.Err, jwt.ErrExpired) {
		t.Fatalf("expected expired cookie, got %v err=%v", res.Renewal, res.Err)
	}
}

func TestLogoutRevokesAndDeletesSession(t *testing.T) {
	f := newFixture(t)
	login := f.login(t, "alice", "correct")
	f.clock.Advance(5 * time.Minute)

	res := RunLogout(context.Background(), login.AccessToken, f.logoutDeps())
	if res.Failure != LogoutFailureNone || res.Skipped {
		t.Fatalf("logout: %v skipped=%v err=%v", res.Failure, res.Skipped, res.Err)
	}
	if res.RevocationTTL != 10*time.Minute {
		t.Fatalf("expected revocation ttl 10m, got %v", res.RevocationTTL)
	}
	if revoked, _ := f.revocations.IsRevoked(context.Background(), login.AccessToken); !revoked {
		t.Fatal("access credential should be revoked")
	}
	if _, ok, _ := f.sessions.Get(context.Background(), "alice"); ok {
		t.Fatal("session should be deleted")
	}

	auth := RunAuthenticate(context.Background(), login.AccessToken, login.RefreshToken, f.authDeps())
	if auth.Failure != AuthenticateFailureRevoked {
		t.Fatalf("expected revoked after logout, got %v", auth.Failure)
	}
	ref := RunRefresh(context.Background(), login.RefreshToken, f.refreshDeps())
	if ref.Failure != RefreshFailureMismatch {
		t.Fatalf("expected refresh mismatch after logout, got %v", ref.Failure)
	}
}

func TestLogoutSkipsUnusableCredentials(t *testing.T) {
	f := newFixture(t)
	login := f.login(t, "alice", "correct")

	for _, token := range []string{"", "garbage", login.RefreshToken} {
		res := RunLogout(context.Background(), token, f.logoutDeps())
		if !res.Skipped {
			t.Fatalf("expected skip for %q", token)
		}
	}
	if _, ok, _ := f.sessions.Get(context.Background(), "alice"); !ok {
		t.Fatal("skipped logout must not delete the session")
	}
}

func TestLogoutExpiredAccessStillDeletesSession(t *testing.T) {
	f := newFixture(t)
	login := f.login(t, "alice", "correct")
	f.clock.Advance(time.Hour)

	res := RunLogout(context.Background(), login.AccessToken, f.logoutDeps())
	if res.Failure != LogoutFailureNone {
		t.Fatalf("logout: %v", res.Failure)
	}
	if res.RevocationTTL != time.Second {
		t.Fatalf("expected floor ttl of 1s, got %v", res.RevocationTTL)
	}
	if _, ok, _ := f.sessions.Get(context.Background(), "alice"); ok {
		t.Fatal("session should be deleted")
	}
}

func TestRevocationTTLFixed(t *testing.T) {
	f := newFixture(t)
	login := f.login(t, "alice", "correct")
	claims, err := f.codec.Inspect(login.AccessToken)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	deps := f.logoutDeps()
	deps.FixedRevocationTTL = time.Hour
	if got := RevocationTTL(claims, deps); got != time.Hour {
		t.Fatalf("expected fixed ttl, got %v", got)
	}
}

func TestLogoutStoreFailures(t *testing.T) {
	f := newFixture(t)
	login := f.login(t, "alice", "correct")

	deps := f.logoutDeps()
	deps.Revocations = failingRevocations{err: errBackend}
	if res := RunLogout(context.Background(), login.AccessToken, deps); res.Failure != LogoutFailureRevoke {
		t.Fatalf("expected revoke failure, got %v", res.Failure)
	}

	deps = f.logoutDeps()
	deps.Sessions = failingSessions{SessionStore: f.sessions, deleteErr: errBackend}
	if res := RunLogout(context.Background(), login.AccessToken, deps); res.Failure != LogoutFailureSessionDelete {
		t.Fatalf("expected session delete failure, got %v", res.Failure)
	}
}

func TestRefreshRotates(t *testing.T) {
	f := newFixture(t)
	login := f.login(t, "alice", "correct")

	res := RunRefresh(context.Background(), login.RefreshToken, f.refreshDeps())
	if res.Failure != RefreshFailureNone {
		t.Fatalf("refresh: %v err=%v", res.Failure, res.Err)
	}
	if res.RefreshToken == login.RefreshToken {
		t.Fatal("refresh must rotate the refresh credential")
	}
	stored, _, _ := f.sessions.Get(context.Background(), "alice")
	if stored != res.RefreshToken {
		t.Fatal("session should hold the rotated credential")
	}

	replay := RunRefresh(context.Background(), login.RefreshToken, f.refreshDeps())
	if replay.Failure != RefreshFailureMismatch {
		t.Fatalf("expected replay to mismatch, got %v", replay.Failure)
	}
}

func TestRefreshFailures(t *testing.T) {
	f := newFixture(t)
	login := f.login(t, "alice", "correct")

	if res := RunRefresh(context.Background(), "", f.refreshDeps()); res.Failure != RefreshFailureMissing {
		t.Fatalf("expected missing, got %v", res.Failure)
	}
	if res := RunRefresh(context.Background(), "garbage", f.refreshDeps()); res.Failure != RefreshFailureMalformed {
		t.Fatalf("expected malformed, got %v", res.Failure)
	}
	if res := RunRefresh(context.Background(), login.AccessToken, f.refreshDeps()); res.Failure != RefreshFailureMismatch {
		t.Fatalf("access credential never equals the stored session, got %v", res.Failure)
	}

	deps := f.refreshDeps()
	deps.Sessions = failingSessions{SessionStore: f.sessions, getErr: errBackend}
	if res := RunRefresh(context.Background(), login.RefreshToken, deps); res.Failure != RefreshFailureStore {
		t.Fatalf("expected store failure, got %v", res.Failure)
	}

	deps = f.refreshDeps()
	deps.Sessions = failingSessions{SessionStore: f.sessions, putErr: errBackend}
	if res := RunRefresh(context.Background(), login.RefreshToken, deps); res.Failure != RefreshFailureSessionWrite {
		t.Fatalf("expected session write failure, got %v", res.Failure)
	}
}

func TestRefreshUnknownPrincipalDropsSession(t *testing.T) {
	f := newFixture(t)
	login := f.login(t, "alice", "correct")
	delete(f.users, "alice")

	res := RunRefresh(context.Background(), login.RefreshToken, f.refreshDeps())
	if res.Failure != RefreshFailureUnknownPrincipal {
		t.Fatalf("expected unknown principal, got %v", res.Failure)
	}
	if _, ok, _ := f.sessions.Get(context.Background(), "alice"); ok {
		t.Fatal("session of a deleted principal should be removed")
	}
}

func TestRefreshUnknownPrincipalWarnsOnDeleteFailure(t *testing.T) {
	f := newFixture(t)
	login := f.login(t, "alice", "correct")
	delete(f.users, "alice")

	deps := f.refreshDeps()
	deps.Sessions = failingSessions{SessionStore: f.sessions, deleteErr: errBackend}
	type warning struct {
		msg  string
		args []any
	}
	var warned []warning
	deps.Warn = func(msg string, args ...any) { warned = append(warned, warning{msg, args}) }

	res := RunRefresh(context.Background(), login.RefreshToken, deps)
	if res.Failure != RefreshFailureUnknownPrincipal {
		t.Fatalf("expected unknown principal, got %v", res.Failure)
	}
	if len(warned) != 1 {
		t.Fatalf("expected one warning, got %v", warned)
	}
	var sawErr bool
	for _, a := range warned[0].args {
		if err, ok := a.(error); ok && errors.Is(err, errBackend) {
			sawErr = true
		}
	}
	if !sawErr {
		t.Fatalf("warning should carry the delete error, got %v", warned[0].args)
	}
}

func TestRefreshExpiredCredential(t *testing.T) {
	f := newFixture(t)
	login := f.login(t, "alice", "correct")
	// Keep the session alive past the credential's exp.
	if err := f.sessions.Put(context.Background(), "alice", login.RefreshToken, 30*24*time.Hour); err != nil {
		t.Fatalf("Put: %v", err)
	}
	f.clock.Advance(8 * 24 * time.Hour)

	res := RunRefresh(context.Background(), login.RefreshToken, f.refreshDeps())
	if res.Failure != RefreshFailureExpired {
		t.Fatalf("expected expired, got %v", res.Failure)
	}
}
