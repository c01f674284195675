package stores

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCodeStore persists code records in Redis. Consume runs under
// WATCH/MULTI and retries on contention, so two concurrent callers holding
// the right code cannot both succeed.
type RedisCodeStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisCodeStore returns a RedisCodeStore. An empty prefix selects "otc".
func NewRedisCodeStore(redisClient redis.UniversalClient, prefix string) *RedisCodeStore {
	if prefix == "" {
		prefix = "otc"
	}
	return &RedisCodeStore{redis: redisClient, prefix: prefix}
}

func (s *RedisCodeStore) key(identityID, purpose string) string {
	return s.prefix + ":" + purpose + ":" + identityID
}

// Put implements CodeStore. The key expires with the record.
func (s *RedisCodeStore) Put(ctx context.Context, record *CodeRecord, now time.Time) error {
	ttl := record.ExpiresAt.Sub(now)
	if ttl <= 0 {
		return errors.New("code record already expired")
	}

	encoded, err := encodeCodeRecord(record)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key(record.IdentityID, record.Purpose), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCodeStoreUnavailable, err)
	}
	return nil
}

// Consume implements CodeStore.
func (s *RedisCodeStore) Consume(ctx context.Context, identityID, purpose string, hash [32]byte, now time.Time) (*CodeRecord, error) {
	const maxRetries = 4
	key := s.key(identityID, purpose)

	for i := 0; i < maxRetries; i++ {
		var matched *CodeRecord

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					return ErrCodeNotFound
				}
				return err
			}

			record, err := decodeCodeRecord(data)
			if err != nil {
				// Unreadable records can never validate; drop them.
				_, _ = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				return ErrCodeNotFound
			}

			if !now.Before(record.ExpiresAt) {
				if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				}); err != nil {
					return err
				}
				if record.Consumed {
					return ErrCodeNotFound
				}
				return ErrCodeExpired
			}

			if record.Consumed {
				return ErrCodeConsumed
			}

			if subtle.ConstantTimeCompare(record.CodeHash[:], hash[:]) != 1 {
				return ErrCodeMismatch
			}

			record.Consumed = true
			updated, err := encodeCodeRecord(record)
			if err != nil {
				return err
			}
			if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, redis.KeepTTL)
				return nil
			}); err != nil {
				return err
			}

			matched = record
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, ErrCodeNotFound), errors.Is(err, ErrCodeConsumed),
				errors.Is(err, ErrCodeExpired), errors.Is(err, ErrCodeMismatch):
				return nil, err
			default:
				return nil, fmt.Errorf("%w: %v", ErrCodeStoreUnavailable, err)
			}
		}
		return matched, nil
	}

	// Every retry lost a race; another caller changed the record first.
	return nil, ErrCodeConsumed
}

// Delete implements CodeStore.
func (s *RedisCodeStore) Delete(ctx context.Context, identityID, purpose string) error {
	if err := s.redis.Del(ctx, s.key(identityID, purpose)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCodeStoreUnavailable, err)
	}
	return nil
}
