package authcore_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/notify"
	"github.com/MrEthical07/authcore/repository/memory"
)

const testPassword = "Sturdy-Kettle-93!"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// outbox records dispatched codes and can be switched to fail.
type outbox struct {
	mu   sync.Mutex
	msgs []notify.Message
	fail bool
}

func (o *outbox) Send(_ context.Context, msg notify.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fail {
		return errors.New("gateway down")
	}
	o.msgs = append(o.msgs, msg)
	return nil
}

func (o *outbox) setFail(fail bool) {
	o.mu.Lock()
	o.fail = fail
	o.mu.Unlock()
}

func (o *outbox) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.msgs)
}

func (o *outbox) last(t *testing.T) notify.Message {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.msgs) == 0 {
		t.Fatal("no message dispatched")
	}
	return o.msgs[len(o.msgs)-1]
}

type testEnv struct {
	engine *authcore.Engine
	repo   *memory.Repository
	clock  *fakeClock
	out    *outbox
	sink   *authcore.ChannelSink
}

func testConfig() authcore.Config {
	cfg := authcore.DefaultConfig()
	cfg.Environment = authcore.EnvTesting
	cfg.JWT.Secret = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Security.EnumerationDelayMin = 0
	cfg.Security.EnumerationDelayMax = 0
	cfg.Audit.Enabled = true
	cfg.Audit.DropIfFull = false
	return cfg
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithConfig(t, testConfig(), nil)
}

func newTestEnvWithConfig(t *testing.T, cfg authcore.Config, configure func(*authcore.Builder)) *testEnv {
	t.Helper()

	env := &testEnv{
		repo:  memory.New(),
		clock: newFakeClock(),
		out:   &outbox{},
		sink:  authcore.NewChannelSink(1024),
	}

	b := authcore.New().
		WithConfig(cfg).
		WithRepository(env.repo).
		WithDispatcher(env.out).
		WithAuditSink(env.sink).
		WithClock(env.clock.Now).
		WithMetricsEnabled(true)
	if configure != nil {
		configure(b)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)
	env.engine = engine
	return env
}

// register creates username with role and returns its identity.
func (env *testEnv) register(t *testing.T, username, phone string, role authcore.Role) authcore.Identity {
	t.Helper()

	id, err := env.engine.Register(context.Background(), authcore.RegisterInput{
		Username:    username,
		Password:    testPassword,
		FirstName:   "Test",
		LastName:    "User",
		PhoneNumber: phone,
	})
	if err != nil {
		t.Fatalf("Register(%s): %v", username, err)
	}
	if role != authcore.RoleCustomer {
		if err := env.repo.UpdateRole(context.Background(), id.ID, id.Role, role, env.clock.Now()); err != nil {
			t.Fatalf("UpdateRole: %v", err)
		}
		id.Role = role
	}
	return id
}

func (env *testEnv) login(t *testing.T, username string) string {
	t.Helper()

	res, err := env.engine.Authenticate(context.Background(), username, testPassword)
	if err != nil {
		t.Fatalf("Authenticate(%s): %v", username, err)
	}
	return res.AccessToken
}

// drainAudit closes the engine and returns every delivered audit event.
func (env *testEnv) drainAudit() []authcore.AuditEvent {
	env.engine.Close()

	var events []authcore.AuditEvent
	for {
		select {
		case ev := <-env.sink.Events():
			events = append(events, ev)
		default:
			return events
		}
	}
}
