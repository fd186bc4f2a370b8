package bootstrap

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	goRiskAuth "github.com/MrEthical07/goRiskAuth"
	"gopkg.in/yaml.v3"
)

// Config is the resolved server configuration.
type Config struct {
	HTTPAddr    string `yaml:"http_addr"`
	GRPCAddr    string `yaml:"grpc_addr"`
	MetricsPath string `yaml:"metrics_path"`

	Log struct {
		Development bool   `yaml:"development"`
		Level       string `yaml:"level"`
	} `yaml:"log"`

	Database struct {
		Driver   string `yaml:"driver"`
		DSN      string `yaml:"dsn"`
		MaxConns int    `yaml:"max_conns"`
	} `yaml:"database"`

	RedisURL string `yaml:"redis_url"`

	JWT struct {
		SigningMethod      string        `yaml:"signing_method"`
		PrivateKeyFile     string        `yaml:"private_key_file"`
		PublicKeyFile      string        `yaml:"public_key_file"`
		Secret             string        `yaml:"-"`
		AllowEphemeralKeys bool          `yaml:"allow_ephemeral_keys"`
		Issuer             string        `yaml:"issuer"`
		Audience           string        `yaml:"audience"`
		KeyID              string        `yaml:"key_id"`
		AccessTTL          time.Duration `yaml:"access_ttl"`
		RefreshTTL         time.Duration `yaml:"refresh_ttl"`
	} `yaml:"jwt"`

	Lockout struct {
		MaxAttempts int           `yaml:"max_attempts"`
		Duration    time.Duration `yaml:"duration"`
	} `yaml:"lockout"`

	Risk struct {
		HighRiskCountries  []string `yaml:"high_risk_countries"`
		BlockThreshold     int      `yaml:"block_threshold"`
		ChallengeThreshold int      `yaml:"challenge_threshold"`
	} `yaml:"risk"`

	Session struct {
		TTL           time.Duration `yaml:"ttl"`
		TouchInterval time.Duration `yaml:"touch_interval"`
	} `yaml:"session"`

	TOTPIssuer string `yaml:"totp_issuer"`

	Geo struct {
		MaxMindPath string            `yaml:"maxmind_path"`
		Static      map[string]string `yaml:"static"`
	} `yaml:"geo"`

	Audit struct {
		Log          bool          `yaml:"log"`
		KafkaBrokers []string      `yaml:"kafka_brokers"`
		KafkaTopic   string        `yaml:"kafka_topic"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
	} `yaml:"audit"`

	HTTP struct {
		RateLimit  float64 `yaml:"rate_limit"`
		RateBurst  int     `yaml:"rate_burst"`
		TrustProxy bool    `yaml:"trust_proxy"`
		CookieName string  `yaml:"cookie_name"`
	} `yaml:"http"`
}

func defaults() Config {
	lib := goRiskAuth.DefaultConfig()

	var cfg Config
	cfg.HTTPAddr = ":8080"
	cfg.GRPCAddr = ":9090"
	cfg.MetricsPath = "/metrics"
	cfg.Log.Level = "info"
	cfg.Database.Driver = "postgres"
	cfg.Database.MaxConns = 20
	cfg.JWT.SigningMethod = lib.JWT.SigningMethod
	cfg.JWT.Issuer = lib.JWT.Issuer
	cfg.JWT.AccessTTL = lib.JWT.AccessTTL
	cfg.JWT.RefreshTTL = lib.JWT.RefreshTTL
	cfg.Lockout.MaxAttempts = lib.Lockout.MaxAttempts
	cfg.Lockout.Duration = lib.Lockout.Duration
	cfg.Risk.BlockThreshold = lib.Risk.BlockThreshold
	cfg.Risk.ChallengeThreshold = lib.Risk.ChallengeThreshold
	cfg.Session.TTL = lib.Session.TTL
	cfg.Session.TouchInterval = lib.Session.TouchInterval
	cfg.TOTPIssuer = lib.TOTP.Issuer
	cfg.Audit.Log = true
	cfg.Audit.KafkaTopic = "riskauth.security-events"
	cfg.Audit.WriteTimeout = 5 * time.Second
	cfg.HTTP.RateLimit = 5
	cfg.HTTP.RateBurst = 10
	cfg.HTTP.CookieName = "access_token"
	return cfg
}

// Load resolves configuration in priority order: defaults -> file -> env. A missing
// file is not an error; an empty path skips the file.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config file: %w", err)
			}
		case !errors.Is(err, os.ErrNotExist):
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg.HTTPAddr = envOrDefault("RISKAUTH_HTTP_ADDR", cfg.HTTPAddr)
	cfg.GRPCAddr = envOrDefault("RISKAUTH_GRPC_ADDR", cfg.GRPCAddr)
	cfg.Log.Development = envBool("RISKAUTH_LOG_DEVELOPMENT", cfg.Log.Development)
	cfg.Log.Level = envOrDefault("RISKAUTH_LOG_LEVEL", cfg.Log.Level)

	cfg.Database.Driver = strings.ToLower(strings.TrimSpace(envOrDefault("RISKAUTH_DB_DRIVER", cfg.Database.Driver)))
	cfg.Database.DSN = envOrDefault("RISKAUTH_DB_DSN", cfg.Database.DSN)
	cfg.Database.MaxConns = envInt("RISKAUTH_DB_MAX_CONNS", cfg.Database.MaxConns)
	cfg.RedisURL = envOrDefault("RISKAUTH_REDIS_URL", cfg.RedisURL)

	cfg.JWT.SigningMethod = strings.ToLower(envOrDefault("RISKAUTH_JWT_SIGNING_METHOD", cfg.JWT.SigningMethod))
	cfg.JWT.PrivateKeyFile = envOrDefault("RISKAUTH_JWT_PRIVATE_KEY_FILE", cfg.JWT.PrivateKeyFile)
	cfg.JWT.PublicKeyFile = envOrDefault("RISKAUTH_JWT_PUBLIC_KEY_FILE", cfg.JWT.PublicKeyFile)
	cfg.JWT.Secret = envOrDefault("RISKAUTH_JWT_SECRET", cfg.JWT.Secret)
	cfg.JWT.AllowEphemeralKeys = envBool("RISKAUTH_JWT_ALLOW_EPHEMERAL", cfg.JWT.AllowEphemeralKeys)
	cfg.JWT.Issuer = envOrDefault("RISKAUTH_JWT_ISSUER", cfg.JWT.Issuer)
	cfg.JWT.Audience = envOrDefault("RISKAUTH_JWT_AUDIENCE", cfg.JWT.Audience)
	cfg.JWT.AccessTTL = envDuration("RISKAUTH_JWT_ACCESS_TTL", cfg.JWT.AccessTTL)
	cfg.JWT.RefreshTTL = envDuration("RISKAUTH_JWT_REFRESH_TTL", cfg.JWT.RefreshTTL)

	cfg.Lockout.MaxAttempts = envInt("RISKAUTH_LOCKOUT_MAX_ATTEMPTS", cfg.Lockout.MaxAttempts)
	cfg.Lockout.Duration = envDuration("RISKAUTH_LOCKOUT_DURATION", cfg.Lockout.Duration)
	cfg.Risk.HighRiskCountries = envCSV("RISKAUTH_RISK_HIGH_RISK_COUNTRIES", cfg.Risk.HighRiskCountries)
	cfg.Risk.BlockThreshold = envInt("RISKAUTH_RISK_BLOCK_THRESHOLD", cfg.Risk.BlockThreshold)
	cfg.Risk.ChallengeThreshold = envInt("RISKAUTH_RISK_CHALLENGE_THRESHOLD", cfg.Risk.ChallengeThreshold)
	cfg.Session.TTL = envDuration("RISKAUTH_SESSION_TTL", cfg.Session.TTL)
	cfg.Session.TouchInterval = envDuration("RISKAUTH_SESSION_TOUCH_INTERVAL", cfg.Session.TouchInterval)
	cfg.TOTPIssuer = envOrDefault("RISKAUTH_TOTP_ISSUER", cfg.TOTPIssuer)

	cfg.Geo.MaxMindPath = envOrDefault("RISKAUTH_GEOIP_PATH", cfg.Geo.MaxMindPath)
	cfg.Audit.Log = envBool("RISKAUTH_AUDIT_LOG", cfg.Audit.Log)
	cfg.Audit.KafkaBrokers = envCSV("RISKAUTH_KAFKA_BROKERS", cfg.Audit.KafkaBrokers)
	cfg.Audit.KafkaTopic = envOrDefault("RISKAUTH_KAFKA_TOPIC", cfg.Audit.KafkaTopic)

	cfg.HTTP.RateLimit = envFloat("RISKAUTH_HTTP_RATE_LIMIT", cfg.HTTP.RateLimit)
	cfg.HTTP.RateBurst = envInt("RISKAUTH_HTTP_RATE_BURST", cfg.HTTP.RateBurst)
	cfg.HTTP.TrustProxy = envBool("RISKAUTH_HTTP_TRUST_PROXY", cfg.HTTP.TrustProxy)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("missing RISKAUTH_DB_DSN")
	}
	if c.RedisURL == "" {
		return errors.New("missing RISKAUTH_REDIS_URL")
	}
	switch c.JWT.SigningMethod {
	case "ed25519":
		if (c.JWT.PrivateKeyFile == "" || c.JWT.PublicKeyFile == "") && !c.JWT.AllowEphemeralKeys {
			return errors.New("missing RISKAUTH_JWT_PRIVATE_KEY_FILE or RISKAUTH_JWT_PUBLIC_KEY_FILE")
		}
	case "hs256":
		if len(c.JWT.Secret) < 32 {
			return errors.New("RISKAUTH_JWT_SECRET must be at least 32 bytes for hs256")
		}
	default:
		return fmt.Errorf("unsupported jwt signing method %q", c.JWT.SigningMethod)
	}
	if len(c.Audit.KafkaBrokers) > 0 && c.Audit.KafkaTopic == "" {
		return errors.New("kafka brokers configured without a topic")
	}
	return nil
}

// EngineConfig maps the server settings onto the library configuration. Key material
// is filled in by the runtime.
func (c Config) EngineConfig() goRiskAuth.Config {
	out := goRiskAuth.DefaultConfig()
	out.Lockout.MaxAttempts = c.Lockout.MaxAttempts
	out.Lockout.Duration = c.Lockout.Duration
	out.Risk.HighRiskCountries = append([]string(nil), c.Risk.HighRiskCountries...)
	out.Risk.BlockThreshold = c.Risk.BlockThreshold
	out.Risk.ChallengeThreshold = c.Risk.ChallengeThreshold
	out.Session.TTL = c.Session.TTL
	out.Session.TouchInterval = c.Session.TouchInterval
	out.JWT.SigningMethod = c.JWT.SigningMethod
	out.JWT.Issuer = c.JWT.Issuer
	out.JWT.Audience = c.JWT.Audience
	out.JWT.KeyID = c.JWT.KeyID
	out.JWT.AccessTTL = c.JWT.AccessTTL
	out.JWT.RefreshTTL = c.JWT.RefreshTTL
	out.TOTP.Issuer = c.TOTPIssuer
	return out
}

func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func envFloat(name string, fallback float64) float64 {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return v
}

// envDuration accepts Go duration strings ("15m", "8h").
func envDuration(name string, fallback time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return v
}

func envBool(name string, fallback bool) bool {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	switch strings.ToLower(raw) {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	default:
		return fallback
	}
}

// envCSV parses comma-separated values and drops empty segments.
func envCSV(name string, fallback []string) []string {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	parts := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	if len(parts) == 0 {
		return fallback
	}
	return parts
}
