package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrLockoutUnavailable indicates the lockout backend is unreachable.
	ErrLockoutUnavailable = errors.New("lockout backend unavailable")
	// ErrLocked is matched by every *LockedError.
	ErrLocked = errors.New("locked")
)

// Policy is the lockout threshold and duration applied to one key namespace.
type Policy struct {
	Threshold int
	Duration  time.Duration
}

// State is a snapshot of one attempt record.
type State struct {
	Failures    int
	LockedUntil time.Time
}

// Locked reports whether the record rejects attempts at now.
func (s State) Locked(now time.Time) bool {
	return !s.LockedUntil.IsZero() && now.Before(s.LockedUntil)
}

// Remaining returns the lockout time left at now, rounded up to whole
// seconds and never below one second while locked.
func (s State) Remaining(now time.Time) time.Duration {
	if !s.Locked(now) {
		return 0
	}
	d := s.LockedUntil.Sub(now)
	if r := d % time.Second; r != 0 {
		d += time.Second - r
	}
	if d < time.Second {
		d = time.Second
	}
	return d
}

// HitResult is returned by Store.Hit. Admitted is false when the record was
// already locked and nothing was counted.
type HitResult struct {
	State    State
	Admitted bool
}

// Store holds attempt records. Implementations must make Hit a single
// indivisible check-and-increment per key.
type Store interface {
	// Hit rejects without counting while the record is locked. Otherwise it
	// clears an expired lock, counts one attempt, and locks the record for
	// p.Duration once p.Threshold is reached.
	Hit(ctx context.Context, key string, now time.Time, p Policy) (HitResult, error)
	// Peek returns the record, deleting it first when its lock has expired.
	Peek(ctx context.Context, key string, now time.Time) (State, error)
	// Reset deletes the record.
	Reset(ctx context.Context, key string) error
}

// LockedError reports a rejected attempt and how long the caller must wait.
type LockedError struct {
	RetryAfter time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("locked: retry after %s", e.RetryAfter)
}

func (e *LockedError) Is(target error) bool { return target == ErrLocked }

// Guard applies one Policy to a namespace of keys in a Store.
type Guard struct {
	store     Store
	policy    Policy
	namespace string
	now       func() time.Time
}

// NewGuard returns a Guard. A nil now uses time.Now.
func NewGuard(store Store, policy Policy, namespace string, now func() time.Time) *Guard {
	if now == nil {
		now = time.Now
	}
	return &Guard{store: store, policy: policy, namespace: namespace, now: now}
}

// Policy returns the guard's policy.
func (g *Guard) Policy() Policy {
	return g.policy
}

func (g *Guard) key(k string) string {
	return g.namespace + ":" + k
}

// CheckAllowed returns a *LockedError while key is locked. An expired lock
// is cleared as a side effect.
func (g *Guard) CheckAllowed(ctx context.Context, key string) error {
	now := g.now()
	st, err := g.store.Peek(ctx, g.key(key), now)
	if err != nil {
		return err
	}
	if st.Locked(now) {
		return &LockedError{RetryAfter: st.Remaining(now)}
	}
	return nil
}

// Peek returns the state of key without counting an attempt.
func (g *Guard) Peek(ctx context.Context, key string) (State, error) {
	return g.store.Peek(ctx, g.key(key), g.now())
}

// RecordFailure counts one failure for key and returns the resulting state.
func (g *Guard) RecordFailure(ctx context.Context, key string) (State, error) {
	res, err := g.store.Hit(ctx, g.key(key), g.now(), g.policy)
	if err != nil {
		return State{}, err
	}
	return res.State, nil
}

// RecordSuccess clears key unconditionally.
func (g *Guard) RecordSuccess(ctx context.Context, key string) error {
	return g.store.Reset(ctx, g.key(key))
}

// Reserve counts an attempt before it is evaluated, so concurrent callers
// can never get more than Threshold attempts through between locks. A
// successful attempt must be followed by RecordSuccess. The returned state
// is Locked when this attempt was the last one admitted.
func (g *Guard) Reserve(ctx context.Context, key string) (State, error) {
	now := g.now()
	res, err := g.store.Hit(ctx, g.key(key), now, g.policy)
	if err != nil {
		return State{}, err
	}
	if !res.Admitted {
		return res.State, &LockedError{RetryAfter: res.State.Remaining(now)}
	}
	return res.State, nil
}

// Remaining returns the lockout time left on a state at the guard's now.
func (g *Guard) Remaining(st State) time.Duration {
	return st.Remaining(g.now())
}
