package gormstore

import (
	"context"
	"fmt"
	"time"

	goRiskAuth "github.com/MrEthical07/goRiskAuth"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func (s *Store) AppendEvent(ctx context.Context, ev goRiskAuth.SecurityEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	m := eventModel{
		ID:        ev.ID,
		UserID:    ev.UserID,
		Type:      ev.Type,
		SessionID: ev.SessionID,
		IP:        ev.IP,
		UserAgent: ev.UserAgent,
		Success:   ev.Success,
		Error:     ev.Error,
		Metadata:  ev.Metadata,
		CreatedAt: ev.Timestamp.UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func (s *Store) ListEvents(ctx context.Context, q goRiskAuth.EventQuery) ([]goRiskAuth.SecurityEvent, error) {
	var rows []eventModel
	tx := eventFilter(s.db.WithContext(ctx).Model(&eventModel{}), q).Order("created_at DESC")
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	if err := tx.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	out := make([]goRiskAuth.SecurityEvent, 0, len(rows))
	for _, r := range rows {
		out = append(out, toEvent(r))
	}
	return out, nil
}

func (s *Store) CountEvents(ctx context.Context, q goRiskAuth.EventQuery) (int, error) {
	var n int64
	if err := eventFilter(s.db.WithContext(ctx).Model(&eventModel{}), q).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return int(n), nil
}

func eventFilter(tx *gorm.DB, q goRiskAuth.EventQuery) *gorm.DB {
	if q.UserID != "" {
		tx = tx.Where("user_id = ?", q.UserID)
	}
	if len(q.Types) > 0 {
		tx = tx.Where("event_type IN ?", q.Types)
	}
	if !q.Since.IsZero() {
		tx = tx.Where("created_at >= ?", q.Since.UTC())
	}
	return tx
}
