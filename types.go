package goRiskAuth

import (
	"io"
	"time"

	"github.com/MrEthical07/goRiskAuth/internal/audit"
	"go.uber.org/zap"
)

// User is the durable account record.
type User struct {
	ID             string
	Email          string
	PasswordHash   string
	Roles          []string
	Active         bool
	MFAEnabled     bool
	FailedAttempts int
	LockedUntil    *time.Time
	LastLoginAt    *time.Time
	LastLoginIP    string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// MFASecret is a user's TOTP secret. Backup codes live in their own table and are
// reached through CredentialStore.
type MFASecret struct {
	UserID    string
	Secret    string
	Enabled   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Location is a best-effort geolocation of an address.
type Location struct {
	Country string `json:"country,omitempty"`
	Region  string `json:"region,omitempty"`
	City    string `json:"city,omitempty"`
}

// DeviceInfo is a parsed user agent.
type DeviceInfo struct {
	Browser        string `json:"browser,omitempty"`
	BrowserVersion string `json:"browserVersion,omitempty"`
	OS             string `json:"os,omitempty"`
	Platform       string `json:"platform,omitempty"`
	Mobile         bool   `json:"mobile"`
	Bot            bool   `json:"bot"`
}

// Session is one durable login session.
type Session struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`
	// Token is a server-side handle; it is never issued to clients.
	Token             string      `json:"-"`
	IP                string      `json:"ip,omitempty"`
	UserAgent         string      `json:"userAgent,omitempty"`
	DeviceFingerprint string      `json:"deviceFingerprint,omitempty"`
	Device            *DeviceInfo `json:"device,omitempty"`
	Location          *Location   `json:"location,omitempty"`
	Active            bool        `json:"active"`
	LastActivityAt    time.Time   `json:"lastActivityAt"`
	CreatedAt         time.Time   `json:"createdAt"`
	ExpiresAt         time.Time   `json:"expiresAt"`
}

// RiskAction is the outcome of a risk assessment.
type RiskAction string

const (
	RiskAllow     RiskAction = "allow"
	RiskChallenge RiskAction = "challenge"
	RiskBlock     RiskAction = "block"
)

// RiskAssessment is the scored result of one login attempt. It is never persisted
// outside the audit trail and never returned to end users beyond its score.
type RiskAssessment struct {
	Score   int
	Factors []string
	Action  RiskAction
	Reason  string
}

// SecurityEvent is one append-only audit record.
type SecurityEvent = audit.Event

// AuditSink receives security events from the dispatcher goroutine.
type AuditSink = audit.Sink

// Security event types.
const (
	EventLoginSuccess     = "login_success"
	EventLoginFailed      = "login_failed"
	EventLoginBlocked     = "login_blocked"
	EventAccountLocked    = "account_locked"
	EventAccountUnlocked  = "account_unlocked"
	EventMFARequired      = "mfa_required"
	EventMFASetupStarted  = "mfa_setup_started"
	EventMFAEnabled       = "mfa_enabled"
	EventMFAFailed        = "mfa_failed"
	EventMFAVerified      = "mfa_verified"
	EventBackupCodeUsed   = "backup_code_used"
	EventBackupCodesReset = "backup_codes_regenerated"
	EventLogout           = "logout"
	EventLogoutAll        = "logout_all"
	EventTokenRefreshed   = "token_refreshed"
	EventSessionInvalid   = "session_invalid"
	EventInternalError    = "internal_error"
)

// EventQuery filters EventStore reads. Zero fields do not filter; Limit <= 0 means no limit.
type EventQuery struct {
	UserID string
	Types  []string
	Since  time.Time
	Limit  int
}

// LoginRequest is one login attempt.
type LoginRequest struct {
	Email             string
	Password          string
	MFACode           string
	DeviceFingerprint string
}

// LoginResult is returned by Login. Token fields are empty when the login did not
// produce a session.
type LoginResult struct {
	AccessToken           string
	RefreshToken          string
	SessionID             string
	ExpiresAt             time.Time
	RequiresMFA           bool
	MFAEnrollmentRequired bool
	RiskScore             int
	RiskAction            RiskAction
}

// TokenPair is the result of a refresh.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// MFASetup is returned once by SetupMFA. The codes are not retrievable later.
type MFASetup struct {
	Secret      string
	QRCodeURL   string
	BackupCodes []string
}

// Identity is attached to authenticated request contexts.
type Identity struct {
	UserID    string
	Email     string
	Roles     []string
	SessionID string
}

// HasRole reports whether the identity carries role.
func (i *Identity) HasRole(role string) bool {
	if i == nil {
		return false
	}
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// NewChannelSink returns a sink that buffers events in a channel, mostly for tests.
func NewChannelSink(buffer int) *audit.ChannelSink {
	return audit.NewChannelSink(buffer)
}

// NewJSONWriterSink returns a sink writing one JSON object per line to w.
func NewJSONWriterSink(w io.Writer) *audit.JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

// NewLoggerSink returns a sink writing events as structured log entries.
func NewLoggerSink(logger *zap.Logger) *audit.LoggerSink {
	return audit.NewLoggerSink(logger)
}

// NewMultiSink fans events out to every non-nil sink.
func NewMultiSink(sinks ...AuditSink) AuditSink {
	return audit.MultiSink(sinks)
}
