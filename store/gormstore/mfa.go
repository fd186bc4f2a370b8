package gormstore

import (
	"context"
	"fmt"
	"time"

	goRiskAuth "github.com/MrEthical07/goRiskAuth"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (s *Store) MFASecret(ctx context.Context, userID string) (*goRiskAuth.MFASecret, error) {
	var m mfaSecretModel
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Take(&m).Error; err != nil {
		return nil, notFound(err)
	}
	return &goRiskAuth.MFASecret{
		UserID:    m.UserID,
		Secret:    m.Secret,
		Enabled:   m.Enabled,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}, nil
}

func (s *Store) SaveMFAEnrollment(ctx context.Context, userID, secret string, codeHashes [][32]byte, now time.Time) error {
	now = now.UTC()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m := mfaSecretModel{UserID: userID, Secret: secret, Enabled: false, CreatedAt: now, UpdatedAt: now}
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"secret":     secret,
				"enabled":    false,
				"updated_at": now,
			}),
		}).Create(&m).Error; err != nil {
			return err
		}
		return replaceCodes(tx, userID, codeHashes, now)
	})
	if err != nil {
		return fmt.Errorf("save mfa enrollment: %w", err)
	}
	return nil
}

func (s *Store) EnableMFA(ctx context.Context, userID string, now time.Time) error {
	now = now.UTC()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&mfaSecretModel{}).
			Where("user_id = ?", userID).
			Updates(map[string]any{"enabled": true, "updated_at": now})
		if res.Error != nil {
			return fmt.Errorf("enable mfa secret: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return goRiskAuth.ErrNotFound
		}
		res = tx.Model(&userModel{}).
			Where("id = ?", userID).
			Updates(map[string]any{"mfa_enabled": true, "updated_at": now})
		if res.Error != nil {
			return fmt.Errorf("enable mfa user: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return goRiskAuth.ErrNotFound
		}
		return nil
	})
}

func (s *Store) BackupCodeHashes(ctx context.Context, userID string) ([][32]byte, error) {
	var rows []backupCodeModel
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list backup codes: %w", err)
	}
	out := make([][32]byte, 0, len(rows))
	for _, r := range rows {
		h, err := decodeHash(r.CodeHash)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}

// ConsumeBackupCode deletes the row; only the caller whose DELETE removed it wins.
func (s *Store) ConsumeBackupCode(ctx context.Context, userID string, hash [32]byte) (bool, error) {
	res := s.db.WithContext(ctx).
		Where("user_id = ? AND code_hash = ?", userID, encodeHash(hash)).
		Delete(&backupCodeModel{})
	if res.Error != nil {
		return false, fmt.Errorf("consume backup code: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) ReplaceBackupCodes(ctx context.Context, userID string, codeHashes [][32]byte, now time.Time) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return replaceCodes(tx, userID, codeHashes, now.UTC())
	})
	if err != nil {
		return fmt.Errorf("replace backup codes: %w", err)
	}
	return nil
}

func replaceCodes(tx *gorm.DB, userID string, codeHashes [][32]byte, now time.Time) error {
	if err := tx.Where("user_id = ?", userID).Delete(&backupCodeModel{}).Error; err != nil {
		return err
	}
	if len(codeHashes) == 0 {
		return nil
	}
	rows := make([]backupCodeModel, 0, len(codeHashes))
	for _, h := range codeHashes {
		rows = append(rows, backupCodeModel{UserID: userID, CodeHash: encodeHash(h), CreatedAt: now})
	}
	return tx.Create(&rows).Error
}
