package authcore

import (
	"context"
	"time"

	"github.com/MrEthical07/authcore/internal/flows"
)

// HealthStatus reports the reachability of the shared store.
type HealthStatus struct {
	RedisConfigured bool          `json:"redis_configured"`
	RedisAvailable  bool          `json:"redis_available"`
	RedisLatency    time.Duration `json:"redis_latency_ns"`
}

// Healthy is true when no configured backend is unreachable.
func (h HealthStatus) Healthy() bool {
	return !h.RedisConfigured || h.RedisAvailable
}

// Health pings Redis when the engine was built with a client.
func (e *Engine) Health(ctx context.Context) HealthStatus {
	if e == nil || e.redis == nil {
		return HealthStatus{}
	}

	ctx, cancel := context.WithTimeout(ctx, e.config.Security.RepositoryTimeout)
	defer cancel()

	start := time.Now()
	err := e.redis.Ping(ctx).Err()
	return HealthStatus{
		RedisConfigured: true,
		RedisAvailable:  err == nil,
		RedisLatency:    time.Since(start),
	}
}

// GetLoginAttempts returns the failures counted against username in the
// current lockout window. It does not count an attempt.
func (e *Engine) GetLoginAttempts(ctx context.Context, username string) (int, error) {
	if e == nil || e.loginGuard == nil {
		return 0, ErrEngineNotReady
	}
	key := flows.NormalizeUsername(username)
	if key == "" {
		return 0, nil
	}

	st, err := e.loginGuard.Peek(ctx, key)
	if err != nil {
		return 0, wrapBackend(err)
	}
	return st.Failures, nil
}
