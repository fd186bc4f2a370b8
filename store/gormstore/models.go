package gormstore

import (
	"time"

	goRiskAuth "github.com/MrEthical07/goRiskAuth"
)

type userModel struct {
	ID             string     `gorm:"column:id;type:varchar(64);primaryKey"`
	Email          string     `gorm:"column:email;type:varchar(320);uniqueIndex;not null"`
	PasswordHash   string     `gorm:"column:password_hash;not null"`
	Roles          []string   `gorm:"column:roles;serializer:json"`
	Active         bool       `gorm:"column:active;not null"`
	MFAEnabled     bool       `gorm:"column:mfa_enabled;not null"`
	FailedAttempts int        `gorm:"column:failed_attempts;not null"`
	LockedUntil    *time.Time `gorm:"column:locked_until"`
	LastLoginAt    *time.Time `gorm:"column:last_login_at"`
	LastLoginIP    string     `gorm:"column:last_login_ip"`
	CreatedAt      time.Time  `gorm:"column:created_at"`
	UpdatedAt      time.Time  `gorm:"column:updated_at"`
}

func (userModel) TableName() string { return "users" }

type mfaSecretModel struct {
	UserID    string    `gorm:"column:user_id;type:varchar(64);primaryKey"`
	Secret    string    `gorm:"column:secret;not null"`
	Enabled   bool      `gorm:"column:enabled;not null"`
	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (mfaSecretModel) TableName() string { return "mfa_secrets" }

type backupCodeModel struct {
	UserID    string    `gorm:"column:user_id;type:varchar(64);primaryKey"`
	CodeHash  string    `gorm:"column:code_hash;type:char(64);primaryKey"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (backupCodeModel) TableName() string { return "mfa_backup_codes" }

type sessionModel struct {
	ID                string                 `gorm:"column:id;type:varchar(64);primaryKey"`
	UserID            string                 `gorm:"column:user_id;type:varchar(64);index:idx_sessions_user_active,priority:1;not null"`
	Token             string                 `gorm:"column:token;uniqueIndex;not null"`
	IP                string                 `gorm:"column:ip"`
	UserAgent         string                 `gorm:"column:user_agent"`
	DeviceFingerprint string                 `gorm:"column:device_fingerprint;index"`
	Device            *goRiskAuth.DeviceInfo `gorm:"column:device;serializer:json"`
	Location          *goRiskAuth.Location   `gorm:"column:location;serializer:json"`
	Active            bool                   `gorm:"column:active;index:idx_sessions_user_active,priority:2;not null"`
	LastActivityAt    time.Time              `gorm:"column:last_activity_at"`
	CreatedAt         time.Time              `gorm:"column:created_at"`
	ExpiresAt         time.Time              `gorm:"column:expires_at;index"`
}

func (sessionModel) TableName() string { return "user_sessions" }

type eventModel struct {
	ID        string            `gorm:"column:id;type:varchar(64);primaryKey"`
	UserID    string            `gorm:"column:user_id;type:varchar(64);index:idx_events_user_type_time,priority:1"`
	Type      string            `gorm:"column:event_type;type:varchar(64);index:idx_events_user_type_time,priority:2;not null"`
	SessionID string            `gorm:"column:session_id"`
	IP        string            `gorm:"column:ip"`
	UserAgent string            `gorm:"column:user_agent"`
	Success   bool              `gorm:"column:success;not null"`
	Error     string            `gorm:"column:error_code"`
	Metadata  map[string]string `gorm:"column:metadata;serializer:json"`
	CreatedAt time.Time         `gorm:"column:created_at;index;index:idx_events_user_type_time,priority:3"`
}

func (eventModel) TableName() string { return "security_events" }

func toUser(m userModel) *goRiskAuth.User {
	return &goRiskAuth.User{
		ID:             m.ID,
		Email:          m.Email,
		PasswordHash:   m.PasswordHash,
		Roles:          m.Roles,
		Active:         m.Active,
		MFAEnabled:     m.MFAEnabled,
		FailedAttempts: m.FailedAttempts,
		LockedUntil:    m.LockedUntil,
		LastLoginAt:    m.LastLoginAt,
		LastLoginIP:    m.LastLoginIP,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func toSession(m sessionModel) goRiskAuth.Session {
	return goRiskAuth.Session{
		ID:                m.ID,
		UserID:            m.UserID,
		Token:             m.Token,
		IP:                m.IP,
		UserAgent:         m.UserAgent,
		DeviceFingerprint: m.DeviceFingerprint,
		Device:            m.Device,
		Location:          m.Location,
		Active:            m.Active,
		LastActivityAt:    m.LastActivityAt,
		CreatedAt:         m.CreatedAt,
		ExpiresAt:         m.ExpiresAt,
	}
}

func fromSession(s *goRiskAuth.Session) sessionModel {
	return sessionModel{
		ID:                s.ID,
		UserID:            s.UserID,
		Token:             s.Token,
		IP:                s.IP,
		UserAgent:         s.UserAgent,
		DeviceFingerprint: s.DeviceFingerprint,
		Device:            s.Device,
		Location:          s.Location,
		Active:            s.Active,
		LastActivityAt:    s.LastActivityAt.UTC(),
		CreatedAt:         s.CreatedAt.UTC(),
		ExpiresAt:         s.ExpiresAt.UTC(),
	}
}

func toEvent(m eventModel) goRiskAuth.SecurityEvent {
	return goRiskAuth.SecurityEvent{
		ID:        m.ID,
		Timestamp: m.CreatedAt,
		Type:      m.Type,
		UserID:    m.UserID,
		SessionID: m.SessionID,
		IP:        m.IP,
		UserAgent: m.UserAgent,
		Success:   m.Success,
		Error:     m.Error,
		Metadata:  m.Metadata,
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
