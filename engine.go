package authcore

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	internalaudit "github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/internal/limiters"
	"github.com/MrEthical07/authcore/internal/logging"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/notify"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/permission"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Engine is the authentication facade. It is safe for concurrent use once
// built and holds no per-request state.
type Engine struct {
	config     Config
	repo       IdentityRepository
	dispatcher notify.Dispatcher
	passwords  *password.Argon2
	dummyHash  string
	tokens     *jwt.Manager
	roles      *permission.Guard
	loginGuard *limiters.Guard
	codes      *codeManager
	redis      redis.UniversalClient
	audit      *internalaudit.Dispatcher
	metrics    *Metrics
	logger     *zap.Logger
	clock      func() time.Time
}

// Close flushes pending audit events and stops the audit worker.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns the number of audit events dropped on a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Environment returns the mode the engine was built for.
func (e *Engine) Environment() Environment {
	if e == nil {
		return EnvProduction
	}
	return e.config.Environment
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) now() time.Time {
	if e == nil || e.clock == nil {
		return time.Now()
	}
	return e.clock()
}

/*
====================================
TOKENS
====================================
*/

// ValidateToken verifies signature, algorithm, issuer and expiry. It does
// not consult the repository.
func (e *Engine) ValidateToken(ctx context.Context, token string) (*Claims, error) {
	if e == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() {
		if e.metrics.LatencyEnabled() {
			e.metrics.Observe(MetricValidateLatency, time.Since(start))
		}
	}()

	parsed, err := e.tokens.Parse(token)
	if err != nil {
		if errors.Is(err, jwt.ErrExpired) {
			e.metricInc(MetricTokenExpired)
			return nil, ErrTokenExpired
		}
		e.metricInc(MetricTokenInvalid)
		return nil, ErrTokenInvalid
	}

	claims := &Claims{
		Subject: parsed.Subject,
		TokenID: parsed.ID,
	}
	if parsed.IssuedAt != nil {
		claims.IssuedAt = parsed.IssuedAt.Time
	}
	if parsed.ExpiresAt != nil {
		claims.ExpiresAt = parsed.ExpiresAt.Time
	}
	if claims.Subject == "" {
		e.metricInc(MetricTokenInvalid)
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// Authorize resolves the token's identity and requires it to hold one of
// roles. With no roles any authenticated identity is admitted.
func (e *Engine) Authorize(ctx context.Context, token string, roles ...Role) (Identity, error) {
	id, err := e.identityFromToken(ctx, token)
	if err != nil {
		return Identity{}, err
	}
	if err := e.roles.Authorize(id.Role, roles...); err != nil {
		return Identity{}, err
	}
	return id, nil
}

// Me returns the identity a token belongs to.
func (e *Engine) Me(ctx context.Context, token string) (Identity, error) {
	return e.Authorize(ctx, token)
}

func (e *Engine) identityFromToken(ctx context.Context, token string) (Identity, error) {
	claims, err := e.ValidateToken(ctx, token)
	if err != nil {
		return Identity{}, err
	}
	acct, err := e.findByID(ctx, claims.Subject)
	if err != nil {
		if isNotFound(err) {
			e.metricInc(MetricTokenInvalid)
			return Identity{}, ErrTokenInvalid
		}
		return Identity{}, wrapBackend(err)
	}
	return toIdentity(acct), nil
}

func (e *Engine) issueToken(subject string) (string, time.Time, error) {
	return e.tokens.Issue(subject)
}

/*
====================================
COLLABORATORS
====================================
*/

func (e *Engine) repoContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.config.Security.RepositoryTimeout)
}

func (e *Engine) findByIdentifier(ctx context.Context, username string) (flows.Account, error) {
	ctx, cancel := e.repoContext(ctx)
	defer cancel()
	id, err := e.repo.FindByIdentifier(ctx, username)
	if err != nil {
		return flows.Account{}, err
	}
	return toAccount(id), nil
}

func (e *Engine) findByID(ctx context.Context, identityID string) (flows.Account, error) {
	ctx, cancel := e.repoContext(ctx)
	defer cancel()
	id, err := e.repo.FindByID(ctx, identityID)
	if err != nil {
		return flows.Account{}, err
	}
	return toAccount(id), nil
}

func (e *Engine) findByContact(ctx context.Context, phone string) (flows.Account, error) {
	ctx, cancel := e.repoContext(ctx)
	defer cancel()
	id, err := e.repo.FindByContact(ctx, phone)
	if err != nil {
		return flows.Account{}, err
	}
	return toAccount(id), nil
}

func (e *Engine) create(ctx context.Context, acct flows.Account) error {
	ctx, cancel := e.repoContext(ctx)
	defer cancel()
	return e.repo.Create(ctx, toIdentityWithHash(acct))
}

func (e *Engine) updatePassword(ctx context.Context, identityID, expectedHash, hash string) error {
	ctx, cancel := e.repoContext(ctx)
	defer cancel()
	return e.repo.UpdatePassword(ctx, identityID, expectedHash, hash, e.now())
}

func (e *Engine) setPassword(ctx context.Context, identityID, hash string) error {
	return e.updatePassword(ctx, identityID, "", hash)
}

func (e *Engine) updateRole(ctx context.Context, identityID string, from, to Role) error {
	ctx, cancel := e.repoContext(ctx)
	defer cancel()
	return e.repo.UpdateRole(ctx, identityID, from, to, e.now())
}

func (e *Engine) updateProfile(ctx context.Context, identityID string, changes flows.ProfileChanges) (flows.Account, error) {
	ctx, cancel := e.repoContext(ctx)
	defer cancel()
	id, err := e.repo.UpdateProfile(ctx, identityID, ProfileChanges(changes), e.now())
	if err != nil {
		return flows.Account{}, err
	}
	return toAccount(id), nil
}

func (e *Engine) markPhoneVerified(ctx context.Context, identityID, phone string) error {
	ctx, cancel := e.repoContext(ctx)
	defer cancel()
	return e.repo.MarkPhoneVerified(ctx, identityID, phone, e.now())
}

// dispatcherFor binds a purpose to the notification dispatcher. The call
// is bounded by OneTimeCode.DispatchTimeout and no lock is held across it.
func (e *Engine) dispatcherFor(purpose Purpose) func(ctx context.Context, destination, code string) error {
	return func(ctx context.Context, destination, code string) error {
		ctx, cancel := context.WithTimeout(ctx, e.config.OneTimeCode.DispatchTimeout)
		defer cancel()

		err := e.dispatcher.Send(ctx, notify.Message{
			Destination: destination,
			Code:        code,
			Purpose:     string(purpose),
		})
		if err != nil {
			e.metricInc(MetricCodeDispatchFailure)
			if !errors.Is(err, notify.ErrDeliveryFailed) {
				err = fmt.Errorf("%w: %v", notify.ErrDeliveryFailed, err)
			}
			return err
		}
		return nil
	}
}

func (e *Engine) sleepEnumerationDelay(ctx context.Context) error {
	minDelay := e.config.Security.EnumerationDelayMin
	span := int64(e.config.Security.EnumerationDelayMax-minDelay) + 1

	delay := minDelay
	if span > 1 {
		n, err := rand.Int(rand.Reader, big.NewInt(span))
		if err != nil {
			return err
		}
		delay += time.Duration(n.Int64())
	}
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// commonFlowDeps returns the helpers shared by every flow.
func (e *Engine) commonFlowDeps() flows.Common {
	return flows.Common{
		Now: e.now,
		MetricInc: func(id int) {
			e.metricInc(MetricID(id))
		},
		EmitAudit:   e.emitAudit,
		ClientIP:    clientIPFromContext,
		IsNotFound:  isNotFound,
		IsConflict:  isConflict,
		WrapBackend: wrapBackend,
		Warn:        e.warn,
	}
}

func (e *Engine) warn(ctx context.Context, msg string, err error) {
	e.logger.Warn(msg,
		zap.String("tenant_id", tenantIDFromContext(ctx)),
		zap.String("ip", logging.Sanitize(clientIPFromContext(ctx))),
		zap.Error(err),
	)
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrIdentityNotFound)
}

func isConflict(err error) bool {
	return errors.Is(err, ErrIdentityChanged)
}

func isDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicateIdentity)
}

// wrapBackend passes through errors the caller can already act on and
// folds everything else into ErrServiceUnavailable.
func wrapBackend(err error) error {
	var locked *LockedError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &locked),
		errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
}

/*
====================================
CONVERSIONS
====================================
*/

func toAccount(id Identity) flows.Account {
	return flows.Account{
		ID:            id.ID,
		Username:      id.Username,
		PasswordHash:  id.PasswordHash,
		Role:          id.Role,
		FirstName:     id.FirstName,
		LastName:      id.LastName,
		PhoneNumber:   id.PhoneNumber,
		PhoneVerified: id.PhoneVerified,
		CreatedAt:     id.CreatedAt,
		UpdatedAt:     id.UpdatedAt,
	}
}

// toIdentity drops the password hash. Identities leaving the engine never
// carry it.
func toIdentity(acct flows.Account) Identity {
	id := toIdentityWithHash(acct)
	id.PasswordHash = ""
	return id
}

func toIdentityWithHash(acct flows.Account) Identity {
	return Identity{
		ID:            acct.ID,
		Username:      acct.Username,
		PasswordHash:  acct.PasswordHash,
		Role:          acct.Role,
		FirstName:     acct.FirstName,
		LastName:      acct.LastName,
		PhoneNumber:   acct.PhoneNumber,
		PhoneVerified: acct.PhoneVerified,
		CreatedAt:     acct.CreatedAt,
		UpdatedAt:     acct.UpdatedAt,
	}
}
