package authcore

import (
	"github.com/MrEthical07/authcore/internal/limiters"
	"github.com/MrEthical07/authcore/internal/stores"
	"github.com/redis/go-redis/v9"
)

// AttemptStore holds failed-attempt counters for login and code lockout.
// Hit must be one indivisible check-and-increment per key.
type AttemptStore = limiters.Store

type (
	AttemptPolicy = limiters.Policy
	AttemptState  = limiters.State
	AttemptHit    = limiters.HitResult
)

// CodeStore holds one-time code records, at most one per identity and
// purpose. Consume must test and mark a record consumed in one step.
type CodeStore = stores.CodeStore

type CodeRecord = stores.CodeRecord

// NewMemoryAttemptStore returns a process-local AttemptStore. Lockout is
// per instance when it is used behind more than one process.
func NewMemoryAttemptStore() AttemptStore {
	return limiters.NewMemoryStore()
}

// NewRedisAttemptStore returns an AttemptStore shared through Redis.
func NewRedisAttemptStore(client redis.UniversalClient, prefix string) AttemptStore {
	return limiters.NewRedisStore(client, prefix)
}

// NewMemoryCodeStore returns a process-local CodeStore.
func NewMemoryCodeStore() CodeStore {
	return stores.NewMemoryCodeStore()
}

// NewRedisCodeStore returns a CodeStore shared through Redis.
func NewRedisCodeStore(client redis.UniversalClient, prefix string) CodeStore {
	return stores.NewRedisCodeStore(client, prefix)
}

func isSharedAttemptStore(s AttemptStore) bool {
	_, ok := s.(*limiters.RedisStore)
	return ok
}

func isSharedCodeStore(s CodeStore) bool {
	_, ok := s.(*stores.RedisCodeStore)
	return ok
}
