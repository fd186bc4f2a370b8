package goRiskAuth

import (
	"context"
	"time"
)

// LockoutState is the user's counter after a recorded failure.
type LockoutState struct {
	FailedAttempts int
	LockedUntil    *time.Time
}

// CredentialStore reads and writes user records and MFA material.
//
// Lookups return ErrNotFound for missing records. Counter updates must be single
// atomic statements; the engine never reads, modifies and writes them.
type CredentialStore interface {
	UserByEmail(ctx context.Context, email string) (*User, error)
	UserByID(ctx context.Context, userID string) (*User, error)

	// RecordLoginFailure increments the counter and sets locked_until = now+lockFor
	// when the new count reaches threshold.
	RecordLoginFailure(ctx context.Context, userID string, now time.Time, threshold int, lockFor time.Duration) (LockoutState, error)
	// ClearLockout resets the counter and lock. With onlyExpired set it does so only
	// when locked_until <= now.
	ClearLockout(ctx context.Context, userID string, now time.Time, onlyExpired bool) error
	// RecordLoginSuccess resets the counter and lock and records the login.
	RecordLoginSuccess(ctx context.Context, userID string, at time.Time, ip string) error

	MFASecret(ctx context.Context, userID string) (*MFASecret, error)
	// SaveMFAEnrollment stores a disabled secret and replaces the backup codes.
	SaveMFAEnrollment(ctx context.Context, userID, secret string, codeHashes [][32]byte, now time.Time) error
	// EnableMFA flips the secret and the user flag together.
	EnableMFA(ctx context.Context, userID string, now time.Time) error
	BackupCodeHashes(ctx context.Context, userID string) ([][32]byte, error)
	// ConsumeBackupCode deletes one code and reports whether this call removed it.
	ConsumeBackupCode(ctx context.Context, userID string, hash [32]byte) (bool, error)
	ReplaceBackupCodes(ctx context.Context, userID string, codeHashes [][32]byte, now time.Time) error
}

// SessionStore is the durable session table.
type SessionStore interface {
	CreateSession(ctx context.Context, s *Session) error
	Session(ctx context.Context, sessionID string) (*Session, error)
	// TouchSession records activity on an active session. It reports false when the
	// session is missing or no longer active.
	TouchSession(ctx context.Context, sessionID string, at time.Time) (bool, error)
	// DeactivateSession is idempotent and reports whether a row changed.
	DeactivateSession(ctx context.Context, sessionID string) (bool, error)
	DeactivateUserSessions(ctx context.Context, userID string) (int, error)
	ActiveSessions(ctx context.Context, userID string, now time.Time) ([]Session, error)
	// DeviceSeen reports whether any session of the user created since since used fingerprint.
	DeviceSeen(ctx context.Context, userID, fingerprint string, since time.Time) (bool, error)
}

// EventStore is the append-only security event log the risk history is read from.
type EventStore interface {
	AppendEvent(ctx context.Context, event SecurityEvent) error
	// ListEvents returns matches newest first.
	ListEvents(ctx context.Context, q EventQuery) ([]SecurityEvent, error)
	CountEvents(ctx context.Context, q EventQuery) (int, error)
}

// GeoLocator resolves an address to a location.
type GeoLocator interface {
	Locate(ctx context.Context, ip string) (*Location, error)
}

// DeviceParser turns a user agent into device details. It returns nil when nothing
// could be parsed.
type DeviceParser interface {
	Parse(userAgent string) *DeviceInfo
}
