package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/munbon/awd-control/internal/model/entities"
)

// PerformanceStore keeps per-session performance records for the
// analytics/learning layer. Read-mostly: written once per completed
// session, queried by every recommendation.
type PerformanceStore struct {
	db *gorm.DB
}

func NewPerformanceStore(db *gorm.DB) *PerformanceStore { return &PerformanceStore{db: db} }

// Append stores the record derived from a completed session.
func (s *PerformanceStore) Append(ctx context.Context, rec *entities.PerformanceRecord) error {
	return s.db.WithContext(ctx).Create(rec).Error
}

// RecentForField returns up to n records for the field, newest first.
func (s *PerformanceStore) RecentForField(ctx context.Context, fieldID string, n int) ([]entities.PerformanceRecord, error) {
	if n <= 0 {
		n = 10
	}
	var out []entities.PerformanceRecord
	err := s.db.WithContext(ctx).
		Where("field_id = ?", fieldID).
		Order("end_time DESC").
		Limit(n).
		Find(&out).Error
	return out, err
}

// ForFieldSince returns all records for a field ending after the cutoff.
func (s *PerformanceStore) ForFieldSince(ctx context.Context, fieldID string, since time.Time) ([]entities.PerformanceRecord, error) {
	var out []entities.PerformanceRecord
	err := s.db.WithContext(ctx).
		Where("field_id = ? AND end_time >= ?", fieldID, since).
		Order("end_time ASC").
		Find(&out).Error
	return out, err
}

// VolumeSince sums the irrigated volume for a field after the cutoff.
func (s *PerformanceStore) VolumeSince(ctx context.Context, fieldID string, since time.Time) (float64, error) {
	var total float64
	err := s.db.WithContext(ctx).Model(&entities.PerformanceRecord{}).
		Where("field_id = ? AND end_time >= ?", fieldID, since).
		Select("COALESCE(SUM(water_volume_liters), 0)").
		Scan(&total).Error
	return total, err
}
