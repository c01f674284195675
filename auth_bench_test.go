package authcore_test

import (
	"context"
	"testing"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/notify"
	"github.com/MrEthical07/authcore/repository/memory"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newBenchmarkEngine(b *testing.B, withRedis bool) *authcore.Engine {
	b.Helper()

	cfg := testConfig()
	cfg.Audit.Enabled = false

	builder := authcore.New().
		WithConfig(cfg).
		WithRepository(memory.New()).
		WithDispatcher(notify.Func(func(context.Context, notify.Message) error { return nil }))

	if withRedis {
		mr, err := miniredis.Run()
		if err != nil {
			b.Fatalf("miniredis.Run failed: %v", err)
		}
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		b.Cleanup(func() {
			_ = rdb.Close()
			mr.Close()
		})
		builder = builder.WithRedis(rdb)
	}

	engine, err := builder.Build()
	if err != nil {
		b.Fatalf("Build failed: %v", err)
	}
	b.Cleanup(engine.Close)

	if _, err := engine.Register(context.Background(), authcore.RegisterInput{
		Username:    "alice",
		Password:    testPassword,
		FirstName:   "Alice",
		LastName:    "Bench",
		PhoneNumber: "+15550100",
	}); err != nil {
		b.Fatalf("Register failed: %v", err)
	}
	return engine
}

func BenchmarkValidateToken(b *testing.B) {
	engine := newBenchmarkEngine(b, false)

	res, err := engine.Authenticate(context.Background(), "alice", testPassword)
	if err != nil {
		b.Fatalf("authenticate failed: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.ValidateToken(context.Background(), res.AccessToken); err != nil {
			b.Fatalf("validate failed: %v", err)
		}
	}
}

func BenchmarkAuthenticateMemory(b *testing.B) {
	engine := newBenchmarkEngine(b, false)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Authenticate(context.Background(), "alice", testPassword); err != nil {
			b.Fatalf("authenticate failed: %v", err)
		}
	}
}

func BenchmarkAuthenticateRedis(b *testing.B) {
	engine := newBenchmarkEngine(b, true)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Authenticate(context.Background(), "alice", testPassword); err != nil {
			b.Fatalf("authenticate failed: %v", err)
		}
	}
}

func BenchmarkAuthorize(b *testing.B) {
	engine := newBenchmarkEngine(b, false)

	res, err := engine.Authenticate(context.Background(), "alice", testPassword)
	if err != nil {
		b.Fatalf("authenticate failed: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Authorize(context.Background(), res.AccessToken, authcore.RoleCustomer); err != nil {
			b.Fatalf("authorize failed: %v", err)
		}
	}
}
