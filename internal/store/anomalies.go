package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/munbon/awd-control/internal/model/entities"
)

// AnomalyFilter selects anomalies for the paginated operator listing.
// Zero values mean "no constraint".
type AnomalyFilter struct {
	FieldID  string
	Type     entities.AnomalyType
	Severity entities.AnomalySeverity
	Resolved *bool
	Since    time.Time
	Page     int
	PerPage  int
}

// AnomalyStore persists anomaly records. Records are written before any
// notification is published so the system of record never lags what was
// reported.
type AnomalyStore struct {
	db *gorm.DB
}

func NewAnomalyStore(db *gorm.DB) *AnomalyStore { return &AnomalyStore{db: db} }

// Append inserts a new anomaly record.
func (s *AnomalyStore) Append(ctx context.Context, a *entities.Anomaly) error {
	return s.db.WithContext(ctx).Create(a).Error
}

// Resolve closes an anomaly with the action taken.
func (s *AnomalyStore) Resolve(ctx context.Context, id uint, action string) error {
	now := time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&entities.Anomaly{}).
		Where("id = ? AND resolved_at IS NULL", id).
		Updates(map[string]any{"resolution_action": action, "resolved_at": now})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns one page of anomalies matching the filter plus the total
// match count.
func (s *AnomalyStore) List(ctx context.Context, f AnomalyFilter) ([]entities.Anomaly, int64, error) {
	q := s.db.WithContext(ctx).Model(&entities.Anomaly{})
	if f.FieldID != "" {
		q = q.Where("field_id = ?", f.FieldID)
	}
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if f.Severity != "" {
		q = q.Where("severity = ?", f.Severity)
	}
	if f.Resolved != nil {
		if *f.Resolved {
			q = q.Where("resolved_at IS NOT NULL")
		} else {
			q = q.Where("resolved_at IS NULL")
		}
	}
	if !f.Since.IsZero() {
		q = q.Where("detected_at >= ?", f.Since)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page, per := f.Page, f.PerPage
	if page < 1 {
		page = 1
	}
	if per < 1 || per > 200 {
		per = 50
	}

	var out []entities.Anomaly
	err := q.Order("detected_at DESC").
		Offset((page - 1) * per).
		Limit(per).
		Find(&out).Error
	return out, total, err
}

// CountForSession returns how many anomalies a session accumulated.
func (s *AnomalyStore) CountForSession(ctx context.Context, sessionID string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&entities.Anomaly{}).
		Where("session_id = ?", sessionID).Count(&n).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	return n, err
}
