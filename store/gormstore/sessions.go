package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	goRiskAuth "github.com/MrEthical07/goRiskAuth"
)

func (s *Store) CreateSession(ctx context.Context, sess *goRiskAuth.Session) error {
	if sess == nil || sess.ID == "" {
		return errors.New("gormstore: session id is required")
	}
	m := fromSession(sess)
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *Store) Session(ctx context.Context, sessionID string) (*goRiskAuth.Session, error) {
	var m sessionModel
	if err := s.db.WithContext(ctx).Where("id = ?", sessionID).Take(&m).Error; err != nil {
		return nil, notFound(err)
	}
	out := toSession(m)
	return &out, nil
}

func (s *Store) TouchSession(ctx context.Context, sessionID string, at time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Model(&sessionModel{}).
		Where("id = ? AND active = ?", sessionID, true).
		Update("last_activity_at", at.UTC())
	if res.Error != nil {
		return false, fmt.Errorf("touch session: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) DeactivateSession(ctx context.Context, sessionID string) (bool, error) {
	res := s.db.WithContext(ctx).Model(&sessionModel{}).
		Where("id = ? AND active = ?", sessionID, true).
		Update("active", false)
	if res.Error != nil {
		return false, fmt.Errorf("deactivate session: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) DeactivateUserSessions(ctx context.Context, userID string) (int, error) {
	res := s.db.WithContext(ctx).Model(&sessionModel{}).
		Where("user_id = ? AND active = ?", userID, true).
		Update("active", false)
	if res.Error != nil {
		return 0, fmt.Errorf("deactivate user sessions: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}

func (s *Store) ActiveSessions(ctx context.Context, userID string, now time.Time) ([]goRiskAuth.Session, error) {
	var rows []sessionModel
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND active = ? AND expires_at > ?", userID, true, now.UTC()).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	out := make([]goRiskAuth.Session, 0, len(rows))
	for _, r := range rows {
		out = append(out, toSession(r))
	}
	return out, nil
}

func (s *Store) DeviceSeen(ctx context.Context, userID, fingerprint string, since time.Time) (bool, error) {
	if fingerprint == "" {
		return false, nil
	}
	var n int64
	err := s.db.WithContext(ctx).Model(&sessionModel{}).
		Where("user_id = ? AND device_fingerprint = ? AND created_at >= ?", userID, fingerprint, since.UTC()).
		Limit(1).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("device seen: %w", err)
	}
	return n > 0, nil
}
