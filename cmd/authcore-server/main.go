// authcore-server serves the authcore HTTP API.
//
// Configuration comes from AUTHCORE_* environment variables, an optional
// .env file, or the file named by -config. See package config.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/config"
	"github.com/MrEthical07/authcore/httpapi"
	"github.com/MrEthical07/authcore/internal/logging"
	promexport "github.com/MrEthical07/authcore/metrics/export/prometheus"
	"github.com/MrEthical07/authcore/middleware"
	"github.com/MrEthical07/authcore/notify"
	"github.com/MrEthical07/authcore/repository/memory"
	"github.com/MrEthical07/authcore/repository/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	configFile := flag.String("config", "", "optional config file (env, yaml, json or toml)")
	migrate := flag.Bool("migrate", true, "apply database migrations at startup")
	flag.Parse()

	settings, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := logging.New(logging.Config{
		Level:       settings.LogLevel,
		Development: settings.Environment().IsDevelopment(),
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(settings, *migrate, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(settings *config.Settings, runMigrations bool, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// -------- identity repository --------
	var repo authcore.IdentityRepository
	if settings.DatabaseURL != "" {
		if runMigrations {
			if err := postgres.Migrate(settings.DatabaseURL, postgres.Up); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
		}
		pool, err := pgxpool.New(ctx, settings.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			return fmt.Errorf("ping database: %w", err)
		}
		repo = postgres.New(pool)
	} else {
		logger.Warn("no database configured, identities are kept in memory")
		repo = memory.New()
	}

	// -------- shared stores --------
	var rdb redis.UniversalClient
	throttleStore := middleware.NewMemoryThrottleStore()
	if settings.RedisURL != "" {
		opts, err := redis.ParseURL(settings.RedisURL)
		if err != nil {
			return fmt.Errorf("redis url: %w", err)
		}
		client := redis.NewClient(opts)
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		rdb = client

		throttleStore, err = middleware.NewRedisThrottleStore(client, "throttle")
		if err != nil {
			return fmt.Errorf("throttle store: %w", err)
		}
	}

	// -------- code delivery --------
	var dispatcher notify.Dispatcher
	switch {
	case settings.SMSAPIKey != "":
		dispatcher = notify.NewHTTPDispatcher(settings.SMSAPIKey, settings.SMSBaseURL, settings.SMSSender, logger)
	case settings.Environment() == authcore.EnvProduction:
		return errors.New("SMS_API_KEY is required in production")
	default:
		dispatcher = notify.NewLogDispatcher(logger)
	}

	// -------- engine --------
	builder := authcore.New().
		WithConfig(settings.ToAuthConfig()).
		WithRepository(repo).
		WithDispatcher(dispatcher).
		WithAuditSink(authcore.NewZapSink(logger)).
		WithLogger(logger)
	if rdb != nil {
		builder = builder.WithRedis(rdb)
	}
	engine, err := builder.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	// -------- http --------
	policies, err := policiesFrom(settings)
	if err != nil {
		return err
	}
	var metricsHandler http.Handler
	if settings.MetricsEnabled {
		metricsHandler, err = promexport.Handler(promexport.NewCollector(engine))
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
	}
	router, err := httpapi.NewRouter(httpapi.Config{
		Engine:        engine,
		Logger:        logger,
		ThrottleStore: throttleStore,
		Policies:      policies,
		TrustProxy:    settings.TrustProxy,
		Metrics:       metricsHandler,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              settings.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening",
			zap.String("addr", settings.HTTPAddr),
			zap.String("environment", string(engine.Environment())),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), settings.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func policiesFrom(s *config.Settings) (httpapi.Policies, error) {
	var (
		p   httpapi.Policies
		err error
	)
	parse := func(dst *middleware.Policy, name, formatted string) {
		if err != nil {
			return
		}
		*dst, err = middleware.ParsePolicy(name, formatted)
		if err != nil {
			err = fmt.Errorf("throttle %s: %w", name, err)
		}
	}
	parse(&p.Token, "token", s.ThrottleToken)
	parse(&p.Register, "register", s.ThrottleRegister)
	parse(&p.VerificationSend, "verification_request", s.ThrottleVerificationSend)
	parse(&p.VerificationVerify, "verification_confirm", s.ThrottleVerificationVerify)
	parse(&p.ResetRequest, "reset_request", s.ThrottleResetRequest)
	parse(&p.ResetConfirm, "reset_confirm", s.ThrottleResetConfirm)
	return p, err
}
