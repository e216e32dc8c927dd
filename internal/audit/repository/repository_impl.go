package repository

import (
	"context"
	"time"

	"github.com/adsboard/adsboard/internal/audit/domain"
	"gorm.io/gorm"
)

type repo struct{}

func New() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, event *domain.Event) error {
	if event == nil {
		return nil
	}
	return db.WithContext(ctx).Create(event).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, req domain.ListRequest) ([]domain.Event, int64, error) {
	stmt := db.WithContext(ctx).Model(&domain.Event{})

	if req.EventType != "" {
		stmt = stmt.Where("event_type = ?", req.EventType)
	}
	if req.Status != "" {
		stmt = stmt.Where("event_status = ?", req.Status)
	}

	var total int64
	if err := stmt.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var events []domain.Event
	stmt = stmt.Order("created_at desc, id desc")
	if req.Limit > 0 {
		stmt = stmt.Limit(req.Limit)
	}
	if req.Offset > 0 {
		stmt = stmt.Offset(req.Offset)
	}
	if err := stmt.Find(&events).Error; err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

func (r *repo) DeleteOlderThan(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	tx := db.WithContext(ctx).Where("created_at < ?", cutoff.UTC()).Delete(&domain.Event{})
	return tx.RowsAffected, tx.Error
}
