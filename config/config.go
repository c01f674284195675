// Package config loads process settings for the authcore server from the
// environment and an optional config file using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. AUTHCORE_HTTP_ADDR.
const EnvPrefix = "AUTHCORE"

// Settings holds everything the server binary needs. Engine settings are
// turned into an authcore.Config with ToAuthConfig.
type Settings struct {
	// Env is development, testing or production.
	Env        string `mapstructure:"ENV"`
	HTTPAddr   string `mapstructure:"HTTP_ADDR"`
	TrustProxy bool   `mapstructure:"TRUST_PROXY"`
	// DatabaseURL is the Postgres DSN. Empty selects the in-memory repository,
	// which production refuses.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// RedisURL is a redis:// URL. Empty selects process-local stores, which
	// production refuses.
	RedisURL        string        `mapstructure:"REDIS_URL"`
	LogLevel        string        `mapstructure:"LOG_LEVEL"`
	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`

	JWTSecret      string        `mapstructure:"JWT_SECRET"`
	JWTIssuer      string        `mapstructure:"JWT_ISSUER"`
	AccessTokenTTL time.Duration `mapstructure:"ACCESS_TOKEN_TTL"`

	Argon2Memory      uint32 `mapstructure:"ARGON2_MEMORY"`
	Argon2Time        uint32 `mapstructure:"ARGON2_TIME"`
	Argon2Parallelism uint8  `mapstructure:"ARGON2_PARALLELISM"`

	LoginLockoutThreshold int           `mapstructure:"LOGIN_LOCKOUT_THRESHOLD"`
	LoginLockoutDuration  time.Duration `mapstructure:"LOGIN_LOCKOUT_DURATION"`
	CodeLockoutThreshold  int           `mapstructure:"CODE_LOCKOUT_THRESHOLD"`
	CodeLockoutDuration   time.Duration `mapstructure:"CODE_LOCKOUT_DURATION"`
	CodeTTL               time.Duration `mapstructure:"CODE_TTL"`

	SMSAPIKey  string `mapstructure:"SMS_API_KEY"`
	SMSBaseURL string `mapstructure:"SMS_BASE_URL"`
	SMSSender  string `mapstructure:"SMS_SENDER"`

	AuditEnabled   bool `mapstructure:"AUDIT_ENABLED"`
	MetricsEnabled bool `mapstructure:"METRICS_ENABLED"`

	// Throttle policies in the "<limit>-<S|M|H|D>" format.
	ThrottleToken              string `mapstructure:"THROTTLE_TOKEN"`
	ThrottleRegister           string `mapstructure:"THROTTLE_REGISTER"`
	ThrottleVerificationSend   string `mapstructure:"THROTTLE_VERIFICATION_SEND"`
	ThrottleVerificationVerify string `mapstructure:"THROTTLE_VERIFICATION_VERIFY"`
	ThrottleResetRequest       string `mapstructure:"THROTTLE_RESET_REQUEST"`
	ThrottleResetConfirm       string `mapstructure:"THROTTLE_RESET_CONFIRM"`
}

func setDefaults(v *viper.Viper) {
	def := authcore.DefaultConfig()

	v.SetDefault("ENV", string(authcore.EnvProduction))
	v.SetDefault("HTTP_ADDR", ":8000")
	v.SetDefault("TRUST_PROXY", false)
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("SHUTDOWN_TIMEOUT", 15*time.Second)

	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_ISSUER", def.JWT.Issuer)
	v.SetDefault("ACCESS_TOKEN_TTL", def.JWT.AccessTTL)

	v.SetDefault("ARGON2_MEMORY", def.Password.Memory)
	v.SetDefault("ARGON2_TIME", def.Password.Time)
	v.SetDefault("ARGON2_PARALLELISM", def.Password.Parallelism)

	v.SetDefault("LOGIN_LOCKOUT_THRESHOLD", def.Lockout.LoginThreshold)
	v.SetDefault("LOGIN_LOCKOUT_DURATION", def.Lockout.LoginDuration)
	v.SetDefault("CODE_LOCKOUT_THRESHOLD", def.Lockout.CodeThreshold)
	v.SetDefault("CODE_LOCKOUT_DURATION", def.Lockout.CodeDuration)
	v.SetDefault("CODE_TTL", def.OneTimeCode.TTL)

	v.SetDefault("SMS_API_KEY", "")
	v.SetDefault("SMS_BASE_URL", "")
	v.SetDefault("SMS_SENDER", "")

	v.SetDefault("AUDIT_ENABLED", true)
	v.SetDefault("METRICS_ENABLED", true)

	v.SetDefault("THROTTLE_TOKEN", "10-M")
	v.SetDefault("THROTTLE_REGISTER", "5-H")
	v.SetDefault("THROTTLE_VERIFICATION_SEND", "3-H")
	v.SetDefault("THROTTLE_VERIFICATION_VERIFY", "10-H")
	v.SetDefault("THROTTLE_RESET_REQUEST", "3-H")
	v.SetDefault("THROTTLE_RESET_CONFIRM", "5-M")
}

// Load reads configFile when given, otherwise an optional .env in the
// working directory, then applies AUTHCORE_* environment variables on top.
// A missing .env is ignored; a missing explicit file is an error.
func Load(configFile string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", configFile, err)
		}
	} else {
		v.SetConfigFile(".env")
		v.SetConfigType("env")
		_ = v.ReadInConfig()
	}

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Settings) validate() error {
	env, err := authcore.ParseEnvironment(s.Env)
	if err != nil {
		return fmt.Errorf("config: ENV: %w", err)
	}
	if strings.TrimSpace(s.HTTPAddr) == "" {
		return errors.New("config: HTTP_ADDR must be set")
	}
	if env == authcore.EnvProduction {
		if s.DatabaseURL == "" {
			return errors.New("config: DATABASE_URL is required in production")
		}
		if s.RedisURL == "" {
			return errors.New("config: REDIS_URL is required in production")
		}
	}
	return nil
}

// Environment returns the parsed ENV value.
func (s *Settings) Environment() authcore.Environment {
	env, err := authcore.ParseEnvironment(s.Env)
	if err != nil {
		return authcore.EnvProduction
	}
	return env
}

// ToAuthConfig builds the engine configuration. Values not exposed as
// settings keep their authcore defaults.
func (s *Settings) ToAuthConfig() authcore.Config {
	cfg := authcore.DefaultConfig()

	cfg.Environment = s.Environment()
	if s.JWTSecret != "" {
		cfg.JWT.Secret = []byte(s.JWTSecret)
	}
	cfg.JWT.Issuer = s.JWTIssuer
	cfg.JWT.AccessTTL = s.AccessTokenTTL

	cfg.Password.Memory = s.Argon2Memory
	cfg.Password.Time = s.Argon2Time
	cfg.Password.Parallelism = s.Argon2Parallelism

	cfg.Lockout.LoginThreshold = s.LoginLockoutThreshold
	cfg.Lockout.LoginDuration = s.LoginLockoutDuration
	cfg.Lockout.CodeThreshold = s.CodeLockoutThreshold
	cfg.Lockout.CodeDuration = s.CodeLockoutDuration
	cfg.OneTimeCode.TTL = s.CodeTTL

	cfg.Audit.Enabled = s.AuditEnabled
	cfg.Metrics.Enabled = s.MetricsEnabled
	cfg.Metrics.EnableLatencyHistograms = s.MetricsEnabled

	cfg.Security.RequireSharedStores = cfg.Environment == authcore.EnvProduction
	return cfg
}
