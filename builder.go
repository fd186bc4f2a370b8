package goRiskAuth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/MrEthical07/goRiskAuth/internal/audit"
	"github.com/MrEthical07/goRiskAuth/internal/limiters"
	"github.com/MrEthical07/goRiskAuth/internal/lockout"
	"github.com/MrEthical07/goRiskAuth/internal/mfa"
	"github.com/MrEthical07/goRiskAuth/internal/risk"
	"github.com/MrEthical07/goRiskAuth/jwt"
	"github.com/MrEthical07/goRiskAuth/password"
	"github.com/MrEthical07/goRiskAuth/session"
	"github.com/pquerna/otp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Builder collects configuration and dependencies for an Engine.
//
// Builder instances are intended to be configured during initialization and used once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	credentials CredentialStore
	sessions    SessionStore
	events      EventStore

	clock     Clock
	random    io.Reader
	geo       GeoLocator
	device    DeviceParser
	auditSink AuditSink
	logger    *zap.Logger

	built bool
}

// New returns a builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the cache client for session mirrors, refresh markers and
// pending-failure counters.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithCredentialStore sets the user and MFA store.
func (b *Builder) WithCredentialStore(store CredentialStore) *Builder {
	b.credentials = store
	return b
}

// WithSessionStore sets the durable session store.
func (b *Builder) WithSessionStore(store SessionStore) *Builder {
	b.sessions = store
	return b
}

// WithEventStore sets the security event log.
func (b *Builder) WithEventStore(store EventStore) *Builder {
	b.events = store
	return b
}

// WithClock overrides the wall clock.
func (b *Builder) WithClock(clock Clock) *Builder {
	b.clock = clock
	return b
}

// WithRandom overrides the entropy source. It must be safe for concurrent use.
func (b *Builder) WithRandom(r io.Reader) *Builder {
	b.random = r
	return b
}

// WithGeoLocator enables country-based risk factors.
func (b *Builder) WithGeoLocator(geo GeoLocator) *Builder {
	b.geo = geo
	return b
}

// WithDeviceParser enables parsed device details on sessions.
func (b *Builder) WithDeviceParser(parser DeviceParser) *Builder {
	b.device = parser
	return b
}

// WithAuditSink sets the external audit destination.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the logger used for best-effort failures.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithMetricsEnabled toggles engine counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles latency histograms.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine. A builder can build once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if err := b.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if b.credentials == nil {
		return nil, errors.New("credential store is required")
	}
	if b.sessions == nil {
		return nil, errors.New("session store is required")
	}
	if b.events == nil {
		return nil, errors.New("event store is required")
	}
	if b.redis == nil {
		return nil, errors.New("redis client is required")
	}

	cfg := b.config
	clock := b.clock
	if clock == nil {
		clock = SystemClock{}
	}
	random := b.random
	if random == nil {
		random = rand.Reader
	}
	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	tokens, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cfg.JWT.PrivateKey,
		PublicKey:     cfg.JWT.PublicKey,
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		KeyID:         cfg.JWT.KeyID,
		Now:           clock.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("jwt: %w", err)
	}

	hasher, err := password.NewHasher(password.Params{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	}, random)
	if err != nil {
		return nil, fmt.Errorf("password: %w", err)
	}

	lockPolicy := lockout.Policy{MaxAttempts: cfg.Lockout.MaxAttempts, Duration: cfg.Lockout.Duration}

	e := &Engine{
		config:      cfg,
		credentials: b.credentials,
		sessions:    b.sessions,
		events:      b.events,
		cache:       session.NewCache(b.redis, cfg.Cache.Prefix),
		pending: limiters.NewPendingFailures(b.redis, limiters.PendingConfig{
			Prefix:    cfg.Cache.Prefix,
			Threshold: cfg.Lockout.MaxAttempts,
			Window:    cfg.Lockout.Duration,
		}),
		mfaAttempts: limiters.NewMFAAttempts(b.redis, limiters.MFAAttemptsConfig{
			Prefix:      cfg.Cache.Prefix,
			MaxAttempts: cfg.TOTP.MaxFailures,
			Cooldown:    cfg.TOTP.FailureWindow,
		}),
		tokens:  tokens,
		hasher:  hasher,
		lockout: lockPolicy,
		risk: risk.Policy{
			HighRiskCountries:  normalizeCountries(cfg.Risk.HighRiskCountries),
			BlockThreshold:     cfg.Risk.BlockThreshold,
			ChallengeThreshold: cfg.Risk.ChallengeThreshold,
			FailureThreshold:   cfg.Risk.FailureThreshold,
			HourTolerance:      cfg.Risk.HourTolerance,
			TopHours:           cfg.Risk.TopHours,
		},
		mfa:     mfaConfig(cfg.TOTP),
		clock:   clock,
		random:  random,
		geo:     b.geo,
		device:  b.device,
		logger:  logger,
		metrics: NewMetrics(cfg.Metrics),
	}

	sink := b.auditSink
	if sink == nil {
		sink = audit.NoOpSink{}
	}
	e.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		OnDrop: func(ev audit.Event) {
			logger.Warn("audit event dropped", zap.String("event_type", ev.Type), zap.String("user_id", ev.UserID))
		},
	}, sink)

	b.built = true
	return e, nil
}

func mfaConfig(c TOTPConfig) mfa.Config {
	out := mfa.Default()
	out.Issuer = c.Issuer
	out.Digits = otp.DigitsSix
	if c.Digits == 8 {
		out.Digits = otp.DigitsEight
	}
	out.Period = c.Period
	out.Skew = c.Skew
	switch strings.ToUpper(c.Algorithm) {
	case "SHA256":
		out.Algorithm = otp.AlgorithmSHA256
	case "SHA512":
		out.Algorithm = otp.AlgorithmSHA512
	default:
		out.Algorithm = otp.AlgorithmSHA1
	}
	out.BackupCodeCount = c.BackupCodeCount
	out.BackupCodeBytes = c.BackupCodeBytes
	return out
}

func normalizeCountries(in []string) []string {
	out := make([]string, 0, len(in))
	for _, c := range in {
		out = append(out, strings.ToUpper(strings.TrimSpace(c)))
	}
	return out
}
