package rate

import "errors"

var (
	// ErrRateLimited is returned once the attempt budget for a window is spent.
	ErrRateLimited = errors.New("rate limited")
	// ErrUnavailable is returned when the counter backend fails.
	ErrUnavailable = errors.New("rate limiter backend unavailable")
)
