package limiters

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Attempt records are hashes with fields f (failures) and u (locked-until,
// unix milliseconds, 0 when unlocked).
const hitScript = `
local now = tonumber(ARGV[1])
local threshold = tonumber(ARGV[2])
local window = tonumber(ARGV[3])
local failures = tonumber(redis.call("HGET", KEYS[1], "f") or "0")
local locked_until = tonumber(redis.call("HGET", KEYS[1], "u") or "0")
if locked_until > 0 then
  if now < locked_until then
    return {0, failures, locked_until}
  end
  failures = 0
  locked_until = 0
end
failures = failures + 1
if failures >= threshold then
  locked_until = now + window
end
redis.call("HSET", KEYS[1], "f", failures, "u", locked_until)
redis.call("PEXPIRE", KEYS[1], window)
return {1, failures, locked_until}
`

const peekScript = `
local now = tonumber(ARGV[1])
local failures = tonumber(redis.call("HGET", KEYS[1], "f") or "0")
local locked_until = tonumber(redis.call("HGET", KEYS[1], "u") or "0")
if locked_until > 0 and now >= locked_until then
  redis.call("DEL", KEYS[1])
  return {0, 0}
end
return {failures, locked_until}
`

var (
	hitLua  = redis.NewScript(hitScript)
	peekLua = redis.NewScript(peekScript)
)

// RedisStore is a Store shared by every instance connected to the same
// Redis. Each operation runs as one Lua script, so check-and-increment is
// atomic across instances.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisStore returns a RedisStore. An empty prefix selects "alo".
func NewRedisStore(redisClient redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "alo"
	}
	return &RedisStore{redis: redisClient, prefix: prefix}
}

func (s *RedisStore) key(k string) string {
	return s.prefix + ":" + k
}

// Hit implements Store.
func (s *RedisStore) Hit(ctx context.Context, key string, now time.Time, p Policy) (HitResult, error) {
	window := p.Duration.Milliseconds()
	if window < 1 {
		window = 1
	}

	vals, err := hitLua.Run(ctx, s.redis, []string{s.key(key)}, now.UnixMilli(), p.Threshold, window).Int64Slice()
	if err != nil {
		return HitResult{}, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	if len(vals) != 3 {
		return HitResult{}, fmt.Errorf("%w: unexpected script reply", ErrLockoutUnavailable)
	}

	return HitResult{
		State:    toState(vals[1], vals[2]),
		Admitted: vals[0] == 1,
	}, nil
}

// Peek implements Store.
func (s *RedisStore) Peek(ctx context.Context, key string, now time.Time) (State, error) {
	vals, err := peekLua.Run(ctx, s.redis, []string{s.key(key)}, now.UnixMilli()).Int64Slice()
	if err != nil {
		return State{}, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	if len(vals) != 2 {
		return State{}, fmt.Errorf("%w: unexpected script reply", ErrLockoutUnavailable)
	}
	return toState(vals[0], vals[1]), nil
}

// Reset implements Store.
func (s *RedisStore) Reset(ctx context.Context, key string) error {
	if err := s.redis.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return nil
}

func toState(failures, lockedUntilMs int64) State {
	st := State{Failures: int(failures)}
	if lockedUntilMs > 0 {
		st.LockedUntil = time.UnixMilli(lockedUntilMs)
	}
	return st
}
