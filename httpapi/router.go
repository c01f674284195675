package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/middleware"
	"github.com/go-chi/chi/v5"
	chimid "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Policies holds the throttle policy of every throttled route.
type Policies struct {
	Token              middleware.Policy
	Register           middleware.Policy
	VerificationSend   middleware.Policy
	VerificationVerify middleware.Policy
	ResetRequest       middleware.Policy
	ResetConfirm       middleware.Policy
}

// DefaultPolicies returns the stock per-route budgets.
func DefaultPolicies() Policies {
	return Policies{
		Token:              middleware.PolicyToken,
		Register:           middleware.PolicyRegister,
		VerificationSend:   middleware.PolicyVerificationSend,
		VerificationVerify: middleware.PolicyVerificationVerify,
		ResetRequest:       middleware.PolicyResetRequest,
		ResetConfirm:       middleware.PolicyResetConfirm,
	}
}

// Config wires the router.
type Config struct {
	Engine *authcore.Engine
	Logger *zap.Logger
	// ThrottleStore defaults to a process-local store.
	ThrottleStore middleware.ThrottleStore
	// Policies defaults to DefaultPolicies when zero.
	Policies   Policies
	TrustProxy bool
	// Metrics, when set, is mounted at /metrics.
	Metrics http.Handler
}

// NewRouter returns the HTTP handler for the engine's operations.
func NewRouter(cfg Config) (http.Handler, error) {
	if cfg.Engine == nil {
		return nil, errors.New("httpapi: engine is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	store := cfg.ThrottleStore
	if store == nil {
		store = middleware.NewMemoryThrottleStore()
	}
	policies := cfg.Policies
	if policies == (Policies{}) {
		policies = DefaultPolicies()
	}

	var throttleErr error
	throttle := func(p middleware.Policy) func(http.Handler) http.Handler {
		mw, err := middleware.Throttle(store, p, middleware.ByClientIP, logger)
		if err != nil && throttleErr == nil {
			throttleErr = fmt.Errorf("httpapi: %s: %w", p.Name, err)
		}
		return mw
	}
	var (
		tokenLimit         = throttle(policies.Token)
		registerLimit      = throttle(policies.Register)
		verifySendLimit    = throttle(policies.VerificationSend)
		verifyConfirmLimit = throttle(policies.VerificationVerify)
		resetRequestLimit  = throttle(policies.ResetRequest)
		resetConfirmLimit  = throttle(policies.ResetConfirm)
	)
	if throttleErr != nil {
		return nil, throttleErr
	}

	h := &handlers{engine: cfg.Engine, logger: logger.Named("http")}
	dev := cfg.Engine.Environment().IsDevelopment()

	r := chi.NewRouter()
	r.Use(chimid.RequestID)
	r.Use(propagateRequestID)
	r.Use(middleware.ClientIP(cfg.TrustProxy))
	r.Use(requestLogger(h.logger))
	r.Use(chimid.Recoverer)
	r.Use(middleware.SecureHeaders(dev))

	r.Get("/healthcheck", h.healthcheck)
	r.Get("/healthz", h.healthz)
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}

	r.With(tokenLimit).Post("/token", h.token)
	r.With(registerLimit).Post("/register", h.register)
	r.With(verifySendLimit).Post("/verify-phone/request", h.requestVerification)
	r.With(verifyConfirmLimit).Post("/verify-phone/confirm", h.confirmVerification)
	r.With(resetRequestLimit).Post("/reset-password", h.requestReset)
	r.With(resetConfirmLimit).Post("/reset-password/new-password", h.confirmReset)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Guard(cfg.Engine))
		r.Get("/me", h.me)
		r.Put("/profile", h.updateProfile)
		r.Patch("/profile", h.updateProfile)
		r.Put("/users/update_role", h.changeRole)
	})

	if dev {
		r.With(middleware.RequireRoles(cfg.Engine, authcore.RoleChef)).Get("/debug", h.debug)
	}

	return r, nil
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimid.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info("request",
				zap.String("request_id", chimid.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

func propagateRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := chimid.GetReqID(r.Context()); id != "" {
			r = r.WithContext(authcore.WithRequestID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}
