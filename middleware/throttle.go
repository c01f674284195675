package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"
)

// Policy is the request budget of one route: at most Limit requests per
// Window for each key.
type Policy struct {
	Name   string
	Limit  int64
	Window time.Duration
}

// Route policies for the authentication endpoints, keyed by client IP.
var (
	PolicyToken              = Policy{Name: "token", Limit: 10, Window: time.Minute}
	PolicyRegister           = Policy{Name: "register", Limit: 5, Window: time.Hour}
	PolicyVerificationSend   = Policy{Name: "verification_request", Limit: 3, Window: time.Hour}
	PolicyVerificationVerify = Policy{Name: "verification_confirm", Limit: 10, Window: time.Hour}
	PolicyResetRequest       = Policy{Name: "reset_request", Limit: 3, Window: time.Hour}
	PolicyResetConfirm       = Policy{Name: "reset_confirm", Limit: 5, Window: time.Minute}
)

// ParsePolicy reads the limiter format "<limit>-<S|M|H|D>", e.g. "10-M".
func ParsePolicy(name, formatted string) (Policy, error) {
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		return Policy{}, err
	}
	return Policy{Name: name, Limit: rate.Limit, Window: rate.Period}, nil
}

func (p Policy) validate() error {
	if p.Name == "" {
		return errors.New("throttle policy name is required")
	}
	if p.Limit <= 0 || p.Window <= 0 {
		return errors.New("throttle policy limit and window must be > 0")
	}
	return nil
}

// ThrottleStore holds throttle counters.
type ThrottleStore = limiter.Store

// NewMemoryThrottleStore returns a process-local store.
func NewMemoryThrottleStore() ThrottleStore {
	return memory.NewStoreWithOptions(limiter.StoreOptions{
		Prefix:          "throttle",
		CleanUpInterval: limiter.DefaultCleanUpInterval,
	})
}

// NewRedisThrottleStore returns a store shared through Redis.
func NewRedisThrottleStore(client redis.UniversalClient, prefix string) (ThrottleStore, error) {
	if prefix == "" {
		prefix = "throttle"
	}
	return sredis.NewStoreWithOptions(client, limiter.StoreOptions{
		Prefix: prefix,
	})
}

// KeyFunc derives the throttle key of a request.
type KeyFunc func(r *http.Request) string

// ByClientIP keys requests by the address ClientIP stored, falling back to
// the connection's remote address.
func ByClientIP(r *http.Request) string {
	if ip, ok := ClientIPFromContext(r.Context()); ok && ip != "" {
		return ip
	}
	return remoteIP(r)
}

// Throttle rejects requests over p with 429 and a Retry-After header. A
// failing store lets requests through and logs the failure; lockout in
// the engine still applies.
func Throttle(store ThrottleStore, p Policy, key KeyFunc, logger *zap.Logger) (func(http.Handler) http.Handler, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, errors.New("throttle store is required")
	}
	if key == nil {
		key = ByClientIP
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	instance := limiter.New(store, limiter.Rate{Period: p.Window, Limit: p.Limit})

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, err := instance.Get(r.Context(), p.Name+":"+key(r))
			if err != nil {
				logger.Warn("throttle store unavailable", zap.String("policy", p.Name), zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(res.Limit, 10))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.Reset, 10))

			if res.Reached {
				retry := time.Until(time.Unix(res.Reset, 0))
				secs := int64(retry.Seconds())
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(errorBody{Detail: authcore.MsgTooManyAttempts, RetryAfter: secs})
				return
			}

			next.ServeHTTP(w, r)
		})
	}, nil
}

type clientIPContextKey struct{}

// ClientIPFromContext returns the address stored by ClientIP.
func ClientIPFromContext(ctx context.Context) (string, bool) {
	ip, ok := ctx.Value(clientIPContextKey{}).(string)
	return ip, ok
}

// ClientIP resolves the caller's address and attaches it to the request
// context for throttling and for engine audit events. X-Forwarded-For is
// honoured only when trustProxy is set.
func ClientIP(trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := remoteIP(r)
			if trustProxy {
				if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
					first, _, _ := strings.Cut(fwd, ",")
					if parsed := net.ParseIP(strings.TrimSpace(first)); parsed != nil {
						ip = parsed.String()
					}
				}
			}
			ctx := authcore.WithClientIP(r.Context(), ip)
			ctx = context.WithValue(ctx, clientIPContextKey{}, ip)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
