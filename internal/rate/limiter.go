package rate

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/lewadaa/task-manager/kv"
)

// Backend is the storage the limiter needs: reads, deletes and counters.
type Backend interface {
	kv.Store
	kv.Counter
}

// Config holds limiter tuning parameters.
type Config struct {
	EnableIPThrottle bool
	MaxLoginAttempts int
	LoginCooldown    time.Duration
}

// Limiter enforces per-username and per-IP login failure budgets.
type Limiter struct {
	backend Backend
	config  Config
}

// New creates a [Limiter] over backend.
func New(backend Backend, cfg Config) *Limiter {
	return &Limiter{
		backend: backend,
		config:  cfg,
	}
}

// CheckLogin returns ErrRateLimited when username or ip has exhausted its
// budget for the current window.
func (l *Limiter) CheckLogin(ctx context.Context, username, ip string) error {
	if err := l.checkCounter(ctx, loginUserKey(username)); err != nil {
		return err
	}
	if l.config.EnableIPThrottle && ip != "" {
		if err := l.checkCounter(ctx, loginIPKey(ip)); err != nil {
			return err
		}
	}
	return nil
}

// IncrementLogin records a failed attempt. It returns ErrRateLimited when this
// failure exhausted the budget.
func (l *Limiter) IncrementLogin(ctx context.Context, username, ip string) error {
	count, err := l.increment(ctx, loginUserKey(username))
	if err != nil {
		return err
	}
	limited := count >= int64(l.config.MaxLoginAttempts)

	if l.config.EnableIPThrottle && ip != "" {
		count, err = l.increment(ctx, loginIPKey(ip))
		if err != nil {
			return err
		}
		if count >= int64(l.config.MaxLoginAttempts) {
			limited = true
		}
	}

	if limited {
		return ErrRateLimited
	}
	return nil
}

// ResetLogin clears the username counter after a successful login. The IP
// counter is left alone so one valid account cannot launder failures for others.
func (l *Limiter) ResetLogin(ctx context.Context, username string) error {
	if err := l.backend.Delete(ctx, loginUserKey(username)); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// LoginAttempts returns the failure count for username in the current window.
func (l *Limiter) LoginAttempts(ctx context.Context, username string) (int, error) {
	raw, ok, err := l.backend.Get(ctx, loginUserKey(username))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !ok {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, nil
	}
	return n, nil
}

func (l *Limiter) checkCounter(ctx context.Context, key string) error {
	if l.config.MaxLoginAttempts <= 0 {
		return nil
	}
	raw, ok, err := l.backend.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !ok {
		return nil
	}
	count, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil
	}
	if count >= int64(l.config.MaxLoginAttempts) {
		return ErrRateLimited
	}
	return nil
}

func (l *Limiter) increment(ctx context.Context, key string) (int64, error) {
	if l.config.MaxLoginAttempts <= 0 {
		return 0, nil
	}
	count, err := l.backend.Incr(ctx, key, l.config.LoginCooldown)
	if err != nil {
		if errors.Is(err, kv.ErrUnavailable) {
			return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return 0, err
	}
	return count, nil
}

func loginUserKey(username string) string {
	return "rl:u:" + username
}

func loginIPKey(ip string) string {
	return "rl:ip:" + ip
}
