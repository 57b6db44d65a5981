// Package server wires the engine, HTTP handlers, middleware and metrics into
// a runnable process.
package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	taskmanager "github.com/lewadaa/task-manager"
	"github.com/lewadaa/task-manager/directory"
	"github.com/lewadaa/task-manager/handler"
	"github.com/lewadaa/task-manager/internal/appconfig"
	promexport "github.com/lewadaa/task-manager/metrics/export/prometheus"
	"github.com/lewadaa/task-manager/middleware"
	"github.com/lewadaa/task-manager/password"
)

// Run serves until ctx is cancelled, then shuts down within
// cfg.ShutdownTimeout.
func Run(ctx context.Context, cfg *appconfig.Config, log *slog.Logger) error {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()

	dir, closeDir, err := openDirectory(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeDir()

	engine, err := taskmanager.New().
		WithConfig(cfg.EngineConfig()).
		WithRedis(rdb).
		WithDirectory(dir).
		WithAuditSink(taskmanager.NewSlogSink(log.With("component", "audit"))).
		WithLogger(log).
		Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	reg := prometheus.NewRegistry()
	routes, err := Routes(engine, cfg.HandlerConfig(), log, reg)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           routes,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("listen: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("server stopped")
	return nil
}

// Routes builds the full HTTP surface: /auth/*, the role-gated /api routes,
// /healthz and /metrics. Engine and HTTP metrics are registered on reg.
func Routes(engine *taskmanager.Engine, hcfg handler.Config, log *slog.Logger, reg *prometheus.Registry) (http.Handler, error) {
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("register go collector: %w", err)
	}
	if _, err := promexport.Register(reg, engine); err != nil {
		return nil, fmt.Errorf("register engine collector: %w", err)
	}
	httpMetrics, err := promexport.NewHTTPMetrics(reg)
	if err != nil {
		return nil, fmt.Errorf("register http metrics: %w", err)
	}

	mux := http.NewServeMux()
	handler.New(engine, engine.Cookies(), hcfg, log).Register(mux)

	authn := middleware.Authenticate(engine, engine.Cookies())
	clientIP := middleware.ClientIP(hcfg.TrustForwarded)
	mux.Handle("GET /api/tasks", middleware.Pipeline(
		clientIP,
		authn,
		middleware.RequireRole(taskmanager.RoleUser, taskmanager.RoleAdmin),
	)(http.HandlerFunc(whoami)))
	mux.Handle("GET /api/users", middleware.Pipeline(
		clientIP,
		authn,
		middleware.RequireRole(taskmanager.RoleAdmin),
	)(http.HandlerFunc(whoami)))

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := engine.Ping(ctx); err != nil {
			log.Warn("health check failed", "error", err)
			middleware.WriteStatus(w, http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	instrumented := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, pattern := mux.Handler(r)
		if pattern == "" {
			pattern = "unmatched"
		}
		httpMetrics.Instrument(pattern, mux).ServeHTTP(w, r)
	})
	return middleware.RequestLogger(log)(instrumented), nil
}

func whoami(w http.ResponseWriter, r *http.Request) {
	id, _ := taskmanager.IdentityFromContext(r.Context())
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"username": id.Subject, "role": id.Role})
}

func openDirectory(ctx context.Context, cfg *appconfig.Config) (taskmanager.PrincipalDirectory, func(), error) {
	if cfg.DatabaseURL != "" {
		db, err := directory.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("open directory: %w", err)
		}
		return directory.NewPostgres(db), func() { closeDB(db) }, nil
	}

	seeds, err := cfg.SeedRecords()
	if err != nil {
		return nil, nil, err
	}
	mem := directory.NewMemory()
	hasher := password.NewDefaultVerifier()
	for _, s := range seeds {
		if err := mem.Register(hasher, s.Username, s.Role, s.Password); err != nil {
			return nil, nil, fmt.Errorf("seed %s: %w", s.Username, err)
		}
	}
	return mem, func() {}, nil
}

func closeDB(db *sql.DB) { _ = db.Close() }
