package authcore

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/authcore/password"
)

// Environment selects how strictly the configuration is validated and
// whether development-only surfaces exist at all.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvProduction  Environment = "production"
)

// ParseEnvironment accepts an environment name in any letter case. Empty
// selects production.
func ParseEnvironment(s string) (Environment, error) {
	switch Environment(strings.ToLower(strings.TrimSpace(s))) {
	case "", EnvProduction:
		return EnvProduction, nil
	case EnvDevelopment, "dev":
		return EnvDevelopment, nil
	case EnvTesting, "test":
		return EnvTesting, nil
	}
	return "", fmt.Errorf("unknown environment %q", s)
}

// IsDevelopment reports whether development-only surfaces may be registered.
func (e Environment) IsDevelopment() bool { return e == EnvDevelopment }

// Config is the complete engine configuration. It is copied into the
// Engine at build time and never read again from outside.
type Config struct {
	Environment    Environment
	JWT            JWTConfig
	Password       PasswordConfig
	PasswordPolicy password.Policy
	Lockout        LockoutConfig
	OneTimeCode    OneTimeCodeConfig
	Account        AccountConfig
	Audit          AuditConfig
	Metrics        MetricsConfig
	Security       SecurityConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures HS256 access tokens. An empty Secret makes the
// builder generate a random one for the life of the process.
type JWTConfig struct {
	Secret    []byte
	AccessTTL time.Duration
	Issuer    string
	Leeway    time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds Argon2id cost parameters. Memory is in KiB.
type PasswordConfig struct {
	Memory         uint32
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	UpgradeOnLogin bool
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig sets the failed-attempt thresholds for login and for
// one-time code validation.
type LockoutConfig struct {
	LoginThreshold int
	LoginDuration  time.Duration
	CodeThreshold  int
	CodeDuration   time.Duration
	RedisPrefix    string
}

/*
====================================
ONE-TIME CODE CONFIG
====================================
*/

type OneTimeCodeConfig struct {
	TTL             time.Duration
	ResetCodeLength int
	PhoneCodeDigits int
	DispatchTimeout time.Duration
	RedisPrefix     string
}

/*
====================================
ACCOUNT CONFIG
====================================
*/

type AccountConfig struct {
	DefaultRole Role
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig bounds collaborator calls and sets the random delay added
// to password reset requests.
type SecurityConfig struct {
	RepositoryTimeout   time.Duration
	EnumerationDelayMin time.Duration
	EnumerationDelayMax time.Duration
	RequireSharedStores bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Environment: EnvProduction,
		JWT: JWTConfig{
			AccessTTL: 15 * time.Minute,
			Issuer:    "authcore",
		},
		Password: PasswordConfig{
			Memory:         65536,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			UpgradeOnLogin: true,
		},
		PasswordPolicy: password.DefaultPolicy(),
		Lockout: LockoutConfig{
			LoginThreshold: 5,
			LoginDuration:  15 * time.Minute,
			CodeThreshold:  5,
			CodeDuration:   15 * time.Minute,
			RedisPrefix:    "alo",
		},
		OneTimeCode: OneTimeCodeConfig{
			TTL:             10 * time.Minute,
			ResetCodeLength: 8,
			PhoneCodeDigits: 6,
			DispatchTimeout: 10 * time.Second,
			RedisPrefix:     "otc",
		},
		Account: AccountConfig{
			DefaultRole: RoleCustomer,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		Security: SecurityConfig{
			RepositoryTimeout:   5 * time.Second,
			EnumerationDelayMin: 20 * time.Millisecond,
			EnumerationDelayMax: 40 * time.Millisecond,
			RequireSharedStores: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.Secret = cloneBytes(cfg.JWT.Secret)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks every section. Production mode adds hardening rules on
// top of the structural checks.
func (c *Config) Validate() error {
	switch c.Environment {
	case EnvDevelopment, EnvTesting, EnvProduction:
	default:
		return errors.New("Environment must be development, testing or production")
	}

	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > time.Minute {
		return errors.New("JWT Leeway must be between 0 and 1m")
	}
	if len(c.JWT.Secret) > 0 && len(c.JWT.Secret) < 32 {
		return errors.New("JWT Secret must be at least 32 bytes")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.PasswordPolicy.MinLength < 0 || (c.PasswordPolicy.MaxLength > 0 && c.PasswordPolicy.MaxLength < c.PasswordPolicy.MinLength) {
		return errors.New("PasswordPolicy length bounds are invalid")
	}

	// Lockout
	if c.Lockout.LoginThreshold <= 0 || c.Lockout.CodeThreshold <= 0 {
		return errors.New("Lockout thresholds must be > 0")
	}
	if c.Lockout.LoginDuration <= 0 || c.Lockout.CodeDuration <= 0 {
		return errors.New("Lockout durations must be > 0")
	}

	// One-time codes
	if c.OneTimeCode.TTL <= 0 {
		return errors.New("OneTimeCode TTL must be > 0")
	}
	if c.OneTimeCode.ResetCodeLength < 8 || c.OneTimeCode.ResetCodeLength > 32 {
		return errors.New("OneTimeCode ResetCodeLength must be between 8 and 32")
	}
	if c.OneTimeCode.PhoneCodeDigits < 6 || c.OneTimeCode.PhoneCodeDigits > 10 {
		return errors.New("OneTimeCode PhoneCodeDigits must be between 6 and 10")
	}
	if c.OneTimeCode.DispatchTimeout <= 0 {
		return errors.New("OneTimeCode DispatchTimeout must be > 0")
	}

	// Account
	if !c.Account.DefaultRole.Valid() {
		return errors.New("Account DefaultRole is not a defined role")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	// Security
	if c.Security.RepositoryTimeout <= 0 {
		return errors.New("Security RepositoryTimeout must be > 0")
	}
	if c.Security.EnumerationDelayMin < 0 || c.Security.EnumerationDelayMax < c.Security.EnumerationDelayMin {
		return errors.New("Security enumeration delay bounds are invalid")
	}

	if c.Environment == EnvProduction {
		return c.validateProduction()
	}
	return nil
}

func (c *Config) validateProduction() error {
	if c.JWT.AccessTTL > 15*time.Minute {
		return errors.New("production: JWT AccessTTL must be <= 15m")
	}
	if c.OneTimeCode.TTL > 15*time.Minute {
		return errors.New("production: OneTimeCode TTL must be <= 15m")
	}
	if c.Lockout.LoginThreshold > 10 || c.Lockout.CodeThreshold > 10 {
		return errors.New("production: Lockout thresholds must be <= 10")
	}
	if c.PasswordPolicy.MinLength < 12 {
		return errors.New("production: PasswordPolicy MinLength must be >= 12")
	}
	if c.Account.DefaultRole != RoleCustomer {
		return errors.New("production: Account DefaultRole must be CUSTOMER")
	}
	return nil
}
