package gormstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	goRiskAuth "github.com/MrEthical07/goRiskAuth"
	"gorm.io/gorm"
)

func (s *Store) UserByEmail(ctx context.Context, email string) (*goRiskAuth.User, error) {
	var m userModel
	err := s.db.WithContext(ctx).
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		Take(&m).Error
	if err != nil {
		return nil, notFound(err)
	}
	return toUser(m), nil
}

func (s *Store) UserByID(ctx context.Context, userID string) (*goRiskAuth.User, error) {
	var m userModel
	if err := s.db.WithContext(ctx).Where("id = ?", userID).Take(&m).Error; err != nil {
		return nil, notFound(err)
	}
	return toUser(m), nil
}

// RecordLoginFailure increments the counter in one UPDATE; the lock is set in the
// same statement once the new count reaches threshold.
func (s *Store) RecordLoginFailure(ctx context.Context, userID string, now time.Time, threshold int, lockFor time.Duration) (goRiskAuth.LockoutState, error) {
	var state goRiskAuth.LockoutState
	now = now.UTC()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&userModel{}).
			Where("id = ?", userID).
			Updates(map[string]any{
				"failed_attempts": gorm.Expr("failed_attempts + 1"),
				"locked_until":    gorm.Expr("CASE WHEN failed_attempts + 1 >= ? THEN ? ELSE locked_until END", threshold, now.Add(lockFor)),
				"updated_at":      now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return goRiskAuth.ErrNotFound
		}

		var m userModel
		if err := tx.Select("failed_attempts", "locked_until").Where("id = ?", userID).Take(&m).Error; err != nil {
			return err
		}
		state = goRiskAuth.LockoutState{FailedAttempts: m.FailedAttempts, LockedUntil: m.LockedUntil}
		return nil
	})
	if err != nil {
		return goRiskAuth.LockoutState{}, notFound(err)
	}
	return state, nil
}

func (s *Store) ClearLockout(ctx context.Context, userID string, now time.Time, onlyExpired bool) error {
	q := s.db.WithContext(ctx).Model(&userModel{}).Where("id = ?", userID)
	if onlyExpired {
		q = q.Where("locked_until IS NOT NULL AND locked_until <= ?", now.UTC())
	}
	res := q.Updates(map[string]any{
		"failed_attempts": 0,
		"locked_until":    nil,
		"updated_at":      now.UTC(),
	})
	if res.Error != nil {
		return fmt.Errorf("clear lockout: %w", res.Error)
	}
	return nil
}

func (s *Store) RecordLoginSuccess(ctx context.Context, userID string, at time.Time, ip string) error {
	at = at.UTC()
	res := s.db.WithContext(ctx).Model(&userModel{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"failed_attempts": 0,
			"locked_until":    nil,
			"last_login_at":   at,
			"last_login_ip":   ip,
			"updated_at":      at,
		})
	if res.Error != nil {
		return fmt.Errorf("record login success: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return goRiskAuth.ErrNotFound
	}
	return nil
}
