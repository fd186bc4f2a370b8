package session

import (
	"strconv"
	"strings"
	"time"
)

// Record is the compact session mirror kept in the cache.
type Record struct {
	SessionID         string
	UserID            string
	Email             string
	Roles             []string
	Token             string
	IP                string
	UserAgent         string
	DeviceFingerprint string
	CreatedAt         time.Time
	LastActivity      time.Time
	ExpiresAt         time.Time
}

// Expired reports whether the record is past its own expiry at now.
func (r *Record) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

const (
	fieldUserID       = "user_id"
	fieldEmail        = "email"
	fieldRoles        = "roles"
	fieldToken        = "token"
	fieldIP           = "ip"
	fieldUserAgent    = "ua"
	fieldFingerprint  = "fp"
	fieldCreatedAt    = "created_at"
	fieldLastActivity = "last_activity"
	fieldExpiresAt    = "expires_at"
)

func (r *Record) fields() map[string]interface{} {
	return map[string]interface{}{
		fieldUserID:       r.UserID,
		fieldEmail:        r.Email,
		fieldRoles:        strings.Join(r.Roles, ","),
		fieldToken:        r.Token,
		fieldIP:           r.IP,
		fieldUserAgent:    r.UserAgent,
		fieldFingerprint:  r.DeviceFingerprint,
		fieldCreatedAt:    r.CreatedAt.UnixMilli(),
		fieldLastActivity: r.LastActivity.UnixMilli(),
		fieldExpiresAt:    r.ExpiresAt.UnixMilli(),
	}
}

func decodeRecord(sessionID string, m map[string]string) (*Record, error) {
	r := &Record{
		SessionID:         sessionID,
		UserID:            m[fieldUserID],
		Email:             m[fieldEmail],
		Token:             m[fieldToken],
		IP:                m[fieldIP],
		UserAgent:         m[fieldUserAgent],
		DeviceFingerprint: m[fieldFingerprint],
	}
	if roles := m[fieldRoles]; roles != "" {
		r.Roles = strings.Split(roles, ",")
	}
	if r.UserID == "" {
		return nil, ErrCorrupt
	}

	var err error
	if r.CreatedAt, err = millis(m[fieldCreatedAt]); err != nil {
		return nil, ErrCorrupt
	}
	if r.LastActivity, err = millis(m[fieldLastActivity]); err != nil {
		return nil, ErrCorrupt
	}
	if r.ExpiresAt, err = millis(m[fieldExpiresAt]); err != nil {
		return nil, ErrCorrupt
	}
	return r, nil
}

func millis(v string) (time.Time, error) {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(n).UTC(), nil
}
