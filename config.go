package goRiskAuth

import (
	"errors"
	"strings"
	"time"
)

// Config holds every engine setting. Start from DefaultConfig and override fields.
//
// Config instances are intended to be configured during initialization and then treated as immutable.
type Config struct {
	Lockout  LockoutConfig
	Risk     RiskConfig
	Session  SessionConfig
	JWT      JWTConfig
	TOTP     TOTPConfig
	Password PasswordConfig
	Audit    AuditConfig
	Cache    CacheConfig
	Metrics  MetricsConfig

	// OperationTimeout bounds each public Engine operation when > 0.
	OperationTimeout time.Duration
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig sets how many consecutive failures lock an account and for how long.
type LockoutConfig struct {
	MaxAttempts int
	Duration    time.Duration
}

/*
====================================
RISK CONFIG
====================================
*/

// RiskConfig holds scoring thresholds and history windows.
type RiskConfig struct {
	HighRiskCountries  []string
	BlockThreshold     int
	ChallengeThreshold int

	HistoryWindow    time.Duration // success-login history for countries and hours
	DeviceWindow     time.Duration
	FailureWindow    time.Duration
	FailureThreshold int // exclusive
	UserAgentWindow  time.Duration
	UserAgentHistory int
	HourTolerance    int
	TopHours         int
	HistoryLimit     int

	// LookupTimeout bounds the geolocation call made during a login.
	LookupTimeout time.Duration
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls session lifetime and how often durable last-activity is written.
type SessionConfig struct {
	TTL           time.Duration
	TouchInterval time.Duration
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig selects keys and lifetimes for access and refresh tokens.
type JWTConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "ed25519" (default), "hs256" optional
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
}

/*
====================================
TOTP CONFIG
====================================
*/

// TOTPConfig controls TOTP parameters and backup codes.
type TOTPConfig struct {
	Issuer          string
	Digits          int
	Period          uint
	Skew            uint
	Algorithm       string // SHA1, SHA256 or SHA512
	BackupCodeCount int
	BackupCodeBytes int

	// MaxFailures wrong codes within FailureWindow lock second-factor checks for the user.
	MaxFailures   int
	FailureWindow time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds Argon2id parameters for new hashes and the dummy hash.
type PasswordConfig struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig controls the asynchronous dispatcher in front of the AuditSink.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

/*
====================================
CACHE CONFIG
====================================
*/

// CacheConfig sets the Redis key prefix for session mirrors, refresh markers and
// pending-failure counters.
type CacheConfig struct {
	Prefix string
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig toggles engine counters and latency histograms.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns production defaults. JWT keys are left empty.
func DefaultConfig() Config {
	return Config{
		Lockout: LockoutConfig{
			MaxAttempts: 5,
			Duration:    15 * time.Minute,
		},
		Risk: RiskConfig{
			BlockThreshold:     75,
			ChallengeThreshold: 50,
			HistoryWindow:      30 * 24 * time.Hour,
			DeviceWindow:       90 * 24 * time.Hour,
			FailureWindow:      time.Hour,
			FailureThreshold:   3,
			UserAgentWindow:    7 * 24 * time.Hour,
			UserAgentHistory:   5,
			HourTolerance:      2,
			TopHours:           3,
			HistoryLimit:       500,
			LookupTimeout:      200 * time.Millisecond,
		},
		Session: SessionConfig{
			TTL:           8 * time.Hour,
			TouchInterval: time.Minute,
		},
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: "ed25519",
			Issuer:        "goRiskAuth",
		},
		TOTP: TOTPConfig{
			Issuer:          "goRiskAuth",
			Digits:          6,
			Period:          30,
			Skew:            2,
			Algorithm:       "SHA1",
			BackupCodeCount: 8,
			BackupCodeBytes: 8,
			MaxFailures:     5,
			FailureWindow:   15 * time.Minute,
		},
		Password: PasswordConfig{
			Memory:      65536,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Cache: CacheConfig{
			Prefix: "zs",
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	out.Risk.HighRiskCountries = append([]string(nil), cfg.Risk.HighRiskCountries...)
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

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	// Lockout
	if c.Lockout.MaxAttempts <= 0 {
		return errors.New("Lockout MaxAttempts must be > 0")
	}
	if c.Lockout.Duration <= 0 {
		return errors.New("Lockout Duration must be > 0")
	}

	// Risk
	if c.Risk.ChallengeThreshold <= 0 || c.Risk.ChallengeThreshold > 100 {
		return errors.New("Risk ChallengeThreshold must be in (0,100]")
	}
	if c.Risk.BlockThreshold < c.Risk.ChallengeThreshold || c.Risk.BlockThreshold > 100 {
		return errors.New("Risk BlockThreshold must be in [ChallengeThreshold,100]")
	}
	if c.Risk.HistoryWindow <= 0 || c.Risk.DeviceWindow <= 0 || c.Risk.FailureWindow <= 0 || c.Risk.UserAgentWindow <= 0 {
		return errors.New("Risk windows must be > 0")
	}
	if c.Risk.UserAgentWindow > c.Risk.HistoryWindow {
		return errors.New("Risk UserAgentWindow must not exceed HistoryWindow")
	}
	if c.Risk.FailureThreshold < 0 || c.Risk.HourTolerance < 0 || c.Risk.TopHours < 0 || c.Risk.UserAgentHistory < 0 {
		return errors.New("Risk counts must be >= 0")
	}
	if c.Risk.LookupTimeout < 0 {
		return errors.New("Risk LookupTimeout must be >= 0")
	}
	for _, country := range c.Risk.HighRiskCountries {
		if len(strings.TrimSpace(country)) != 2 {
			return errors.New("Risk HighRiskCountries must be ISO 3166-1 alpha-2 codes")
		}
	}

	// Session
	if c.Session.TTL <= 0 {
		return errors.New("Session TTL must be > 0")
	}
	if c.Session.TouchInterval < 0 {
		return errors.New("Session TouchInterval must be >= 0")
	}

	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.SigningMethod != "ed25519" && c.JWT.SigningMethod != "hs256" {
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.SigningMethod == "ed25519" && len(c.JWT.PrivateKey) == 0 {
		return errors.New("ed25519 requires PrivateKey")
	}
	if c.JWT.SigningMethod == "ed25519" && len(c.JWT.PublicKey) == 0 {
		return errors.New("ed25519 requires PublicKey")
	}
	if c.JWT.SigningMethod == "hs256" && len(c.JWT.PrivateKey) < 32 {
		return errors.New("hs256 requires a PrivateKey of at least 32 bytes")
	}

	// TOTP
	if c.TOTP.Digits != 6 && c.TOTP.Digits != 8 {
		return errors.New("TOTP Digits must be 6 or 8")
	}
	if c.TOTP.Period == 0 {
		return errors.New("TOTP Period must be > 0")
	}
	switch strings.ToUpper(c.TOTP.Algorithm) {
	case "SHA1", "SHA256", "SHA512":
	default:
		return errors.New("TOTP Algorithm must be SHA1, SHA256 or SHA512")
	}
	if c.TOTP.BackupCodeCount <= 0 || c.TOTP.BackupCodeBytes < 4 {
		return errors.New("TOTP backup codes need a count > 0 and at least 4 bytes each")
	}
	if c.TOTP.MaxFailures <= 0 || c.TOTP.FailureWindow <= 0 {
		return errors.New("TOTP MaxFailures and FailureWindow must be > 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}

	// Cache
	if strings.TrimSpace(c.Cache.Prefix) == "" {
		return errors.New("Cache Prefix must not be empty")
	}

	if c.OperationTimeout < 0 {
		return errors.New("OperationTimeout must be >= 0")
	}
	return nil
}
