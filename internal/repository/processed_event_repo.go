package repository

import (
	"context"
	"time"

	"eventreg/internal/database"
	"eventreg/internal/domain"

	"gorm.io/gorm"
)

// ProcessedEventRepository stores webhook delivery markers.
type ProcessedEventRepository struct {
	db *gorm.DB
}

func NewProcessedEventRepository(db *gorm.DB) *ProcessedEventRepository {
	return &ProcessedEventRepository{db: db}
}

// Record inserts the marker for a delivery. When the event was seen before
// it returns the stored marker and created=false.
func (r *ProcessedEventRepository) Record(ctx context.Context, ev *domain.ProcessedEvent) (stored *domain.ProcessedEvent, created bool, err error) {
	if err := r.db.WithContext(ctx).Create(ev).Error; err != nil {
		if !database.IsUniqueViolation(err) {
			return nil, false, err
		}
		var existing domain.ProcessedEvent
		if err := r.db.WithContext(ctx).
			Where("provider = ? AND event_id = ?", ev.Provider, ev.EventID).
			First(&existing).Error; err != nil {
			return nil, false, err
		}
		return &existing, false, nil
	}
	return ev, true, nil
}

func (r *ProcessedEventRepository) MarkProcessed(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&domain.ProcessedEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"processed_at":  at,
			"process_error": nil,
		}).Error
}

func (r *ProcessedEventRepository) MarkFailed(ctx context.Context, id string, cause error) error {
	return r.db.WithContext(ctx).Model(&domain.ProcessedEvent{}).
		Where("id = ?", id).
		Update("process_error", cause.Error()).Error
}
