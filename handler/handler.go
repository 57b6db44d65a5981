package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	taskmanager "github.com/lewadaa/task-manager"
	"github.com/lewadaa/task-manager/cookie"
	"github.com/lewadaa/task-manager/middleware"
)

const defaultMaxBodyBytes = 1 << 20

// Sessions is the engine surface behind the endpoints.
type Sessions interface {
	Login(ctx context.Context, username, password string) (taskmanager.TokenPair, error)
	Logout(ctx context.Context, accessToken string) error
	Refresh(ctx context.Context, refreshToken string) (taskmanager.TokenPair, error)
}

// Config tunes the HTTP surface.
type Config struct {
	// RatePerSecond and Burst size the per-IP token bucket. Zero disables it.
	RatePerSecond float64
	Burst         int
	// TrustForwarded takes the client IP from X-Forwarded-For.
	TrustForwarded bool
	MaxBodyBytes   int64
}

// Handler serves /auth/login, /auth/logout and /auth/refresh.
type Handler struct {
	sessions Sessions
	cookies  *cookie.Manager
	limiter  *ipLimiter
	log      *slog.Logger
	cfg      Config
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"accessToken"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// New builds a Handler. log may be nil.
func New(sessions Sessions, cookies *cookie.Manager, cfg Config, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	return &Handler{
		sessions: sessions,
		cookies:  cookies,
		limiter:  newIPLimiter(cfg.RatePerSecond, cfg.Burst),
		log:      log,
		cfg:      cfg,
	}
}

// Register mounts the endpoints on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle("POST /auth/login", h.guard(h.login))
	mux.Handle("POST /auth/logout", h.guard(h.logout))
	mux.Handle("POST /auth/refresh", h.guard(h.refresh))
}

// guard applies the per-IP bucket and records the client IP on the context.
func (h *Handler) guard(fn http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := middleware.RemoteIP(r, h.cfg.TrustForwarded)
		if !h.limiter.Allow(ip) {
			middleware.WriteStatus(w, http.StatusTooManyRequests)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes)
		fn(w, r.WithContext(taskmanager.WithClientIP(r.Context(), ip)))
	})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		middleware.WriteStatus(w, http.StatusBadRequest)
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		middleware.WriteStatus(w, http.StatusUnauthorized)
		return
	}

	pair, err := h.sessions.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.fail(w, r, "login", err)
		return
	}

	h.cookies.Attach(w, pair.RefreshToken)
	writeJSON(w, http.StatusOK, loginResponse{AccessToken: pair.AccessToken})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.BearerToken(r.Header.Get("Authorization"))
	if ok {
		if err := h.sessions.Logout(r.Context(), token); err != nil {
			h.fail(w, r, "logout", err)
			return
		}
		h.cookies.Clear(w)
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "Logout successful")
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r.Body, &req); err != nil && !errors.Is(err, io.EOF) {
		middleware.WriteStatus(w, http.StatusBadRequest)
		return
	}
	token := strings.TrimSpace(req.RefreshToken)
	if token == "" {
		token, _ = h.cookies.Read(r)
	}

	pair, err := h.sessions.Refresh(r.Context(), token)
	if err != nil {
		h.fail(w, r, "refresh", err)
		return
	}

	h.cookies.Attach(w, pair.RefreshToken)
	writeJSON(w, http.StatusOK, pair)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := taskmanager.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.ErrorContext(r.Context(), "auth endpoint failed", "op", op, "status", status, "error", err)
	}
	middleware.WriteStatus(w, status)
}

func decodeJSON(body io.Reader, dst any) error {
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
