package stores

import (
	"context"
	"crypto/sha256"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

func forEachCodeStore(t *testing.T, fn func(t *testing.T, store CodeStore)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryCodeStore())
	})
	t.Run("redis", func(t *testing.T) {
		mr, rdb := newTestRedis(t)
		defer mr.Close()
		defer rdb.Close()
		fn(t, NewRedisCodeStore(rdb, "test-otc"))
	})
}

func testRecord(code string, now time.Time) *CodeRecord {
	return &CodeRecord{
		IdentityID: "user-1",
		Purpose:    "password_reset",
		CodeHash:   sha256.Sum256([]byte(code)),
		IssuedAt:   now,
		ExpiresAt:  now.Add(10 * time.Minute),
	}
}

func TestCodeStoreConsumeOnce(t *testing.T) {
	forEachCodeStore(t, func(t *testing.T, store CodeStore) {
		ctx := context.Background()
		now := time.Unix(1_700_000_000, 0)

		if err := store.Put(ctx, testRecord("ABCD1234", now), now); err != nil {
			t.Fatalf("Put: %v", err)
		}

		rec, err := store.Consume(ctx, "user-1", "password_reset", sha256.Sum256([]byte("ABCD1234")), now.Add(time.Minute))
		if err != nil {
			t.Fatalf("Consume: %v", err)
		}
		if rec.IdentityID != "user-1" || !rec.Consumed {
			t.Fatalf("unexpected record %+v", rec)
		}

		_, err = store.Consume(ctx, "user-1", "password_reset", sha256.Sum256([]byte("ABCD1234")), now.Add(2*time.Minute))
		if !errors.Is(err, ErrCodeConsumed) {
			t.Fatalf("expected ErrCodeConsumed on replay, got %v", err)
		}
	})
}

func TestCodeStoreMismatchKeepsRecord(t *testing.T) {
	forEachCodeStore(t, func(t *testing.T, store CodeStore) {
		ctx := context.Background()
		now := time.Unix(1_700_000_000, 0)

		if err := store.Put(ctx, testRecord("ABCD1234", now), now); err != nil {
			t.Fatalf("Put: %v", err)
		}

		_, err := store.Consume(ctx, "user-1", "password_reset", sha256.Sum256([]byte("WRONG000")), now)
		if !errors.Is(err, ErrCodeMismatch) {
			t.Fatalf("expected ErrCodeMismatch, got %v", err)
		}
		if _, err := store.Consume(ctx, "user-1", "password_reset", sha256.Sum256([]byte("ABCD1234")), now); err != nil {
			t.Fatalf("correct code should still validate after a mismatch, got %v", err)
		}
	})
}

func TestCodeStorePutSupersedes(t *testing.T) {
	forEachCodeStore(t, func(t *testing.T, store CodeStore) {
		ctx := context.Background()
		now := time.Unix(1_700_000_000, 0)

		if err := store.Put(ctx, testRecord("OLDCODE1", now), now); err != nil {
			t.Fatalf("Put: %v", err)
		}
		if err := store.Put(ctx, testRecord("NEWCODE2", now), now); err != nil {
			t.Fatalf("Put: %v", err)
		}

		_, err := store.Consume(ctx, "user-1", "password_reset", sha256.Sum256([]byte("OLDCODE1")), now)
		if !errors.Is(err, ErrCodeMismatch) {
			t.Fatalf("expected superseded code to mismatch, got %v", err)
		}
		if _, err := store.Consume(ctx, "user-1", "password_reset", sha256.Sum256([]byte("NEWCODE2")), now); err != nil {
			t.Fatalf("new code should validate, got %v", err)
		}
	})
}

func TestCodeStoreExpiredIsCleared(t *testing.T) {
	forEachCodeStore(t, func(t *testing.T, store CodeStore) {
		ctx := context.Background()
		now := time.Unix(1_700_000_000, 0)

		if err := store.Put(ctx, testRecord("ABCD1234", now), now); err != nil {
			t.Fatalf("Put: %v", err)
		}

		later := now.Add(10 * time.Minute)
		_, err := store.Consume(ctx, "user-1", "password_reset", sha256.Sum256([]byte("ABCD1234")), later)
		if !errors.Is(err, ErrCodeExpired) {
			t.Fatalf("expected ErrCodeExpired, got %v", err)
		}
		_, err = store.Consume(ctx, "user-1", "password_reset", sha256.Sum256([]byte("ABCD1234")), later)
		if !errors.Is(err, ErrCodeNotFound) {
			t.Fatalf("expired record should be gone, got %v", err)
		}
	})
}

func TestCodeStorePurposesAreSeparate(t *testing.T) {
	forEachCodeStore(t, func(t *testing.T, store CodeStore) {
		ctx := context.Background()
		now := time.Unix(1_700_000_000, 0)

		if err := store.Put(ctx, testRecord("ABCD1234", now), now); err != nil {
			t.Fatalf("Put: %v", err)
		}
		_, err := store.Consume(ctx, "user-1", "phone_verification", sha256.Sum256([]byte("ABCD1234")), now)
		if !errors.Is(err, ErrCodeNotFound) {
			t.Fatalf("expected ErrCodeNotFound for other purpose, got %v", err)
		}
	})
}

func TestCodeStoreConcurrentConsumeSingleWinner(t *testing.T) {
	forEachCodeStore(t, func(t *testing.T, store CodeStore) {
		ctx := context.Background()
		now := time.Unix(1_700_000_000, 0)

		if err := store.Put(ctx, testRecord("ABCD1234", now), now); err != nil {
			t.Fatalf("Put: %v", err)
		}

		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := store.Consume(ctx, "user-1", "password_reset", sha256.Sum256([]byte("ABCD1234")), now); err == nil {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()

		if got := wins.Load(); got != 1 {
			t.Fatalf("expected exactly one successful consume, got %d", got)
		}
	})
}

func TestCodeStoreDelete(t *testing.T) {
	forEachCodeStore(t, func(t *testing.T, store CodeStore) {
		ctx := context.Background()
		now := time.Unix(1_700_000_000, 0)

		if err := store.Put(ctx, testRecord("ABCD1234", now), now); err != nil {
			t.Fatalf("Put: %v", err)
		}
		if err := store.Delete(ctx, "user-1", "password_reset"); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		_, err := store.Consume(ctx, "user-1", "password_reset", sha256.Sum256([]byte("ABCD1234")), now)
		if !errors.Is(err, ErrCodeNotFound) {
			t.Fatalf("expected ErrCodeNotFound after delete, got %v", err)
		}
	})
}

func TestCodeRecordCodec(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_123)
	in := testRecord("ABCD1234", now)
	in.Consumed = true

	data, err := encodeCodeRecord(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := decodeCodeRecord(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.IdentityID != in.IdentityID || out.Purpose != in.Purpose || out.CodeHash != in.CodeHash ||
		!out.IssuedAt.Equal(in.IssuedAt) || !out.ExpiresAt.Equal(in.ExpiresAt) || !out.Consumed {
		t.Fatalf("decoded %+v, want %+v", out, in)
	}

	if _, err := decodeCodeRecord(data[:len(data)-1]); err == nil {
		t.Fatal("expected truncated record to fail")
	}
	bad := append([]byte{9}, data[1:]...)
	if _, err := decodeCodeRecord(bad); err == nil {
		t.Fatal("expected unknown version to fail")
	}
}
