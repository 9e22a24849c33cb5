package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/munbon/awd-control/internal/model/entities"
)

// SessionStore owns the irrigation session lifecycle. The one-active-
// session-per-field invariant is enforced by the check-and-create
// transaction in CreateActive.
type SessionStore struct {
	db *gorm.DB
}

func NewSessionStore(db *gorm.DB) *SessionStore { return &SessionStore{db: db} }

// CreateActive inserts a new active session for the field, failing with
// ErrConflict if one already exists. The check and the insert run in one
// transaction so two concurrent starts cannot both succeed.
func (s *SessionStore) CreateActive(ctx context.Context, sess *entities.IrrigationSession) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&entities.IrrigationSession{}).
			Where("field_id = ? AND status = ?", sess.FieldID, entities.SessionActive).
			Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return ErrConflict
		}
		sess.Status = entities.SessionActive
		return tx.Create(sess).Error
	})
}

// ActiveForField returns the field's active session, or ErrNotFound.
func (s *SessionStore) ActiveForField(ctx context.Context, fieldID string) (*entities.IrrigationSession, error) {
	var sess entities.IrrigationSession
	err := s.db.WithContext(ctx).
		Where("field_id = ? AND status = ?", fieldID, entities.SessionActive).
		First(&sess).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// LatestForField returns the most recent session regardless of status.
func (s *SessionStore) LatestForField(ctx context.Context, fieldID string) (*entities.IrrigationSession, error) {
	var sess entities.IrrigationSession
	err := s.db.WithContext(ctx).
		Where("field_id = ?", fieldID).
		Order("start_time DESC").
		First(&sess).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// Get returns a session by id.
func (s *SessionStore) Get(ctx context.Context, id string) (*entities.IrrigationSession, error) {
	var sess entities.IrrigationSession
	err := s.db.WithContext(ctx).First(&sess, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// Finish transitions an active session to a terminal state. The update is
// conditional on the session still being active, which makes concurrent
// stop paths (manual stop racing a monitor poll) collapse to a single
// transition; the second caller gets ok=false and must not re-emit side
// effects such as gate-close commands.
func (s *SessionStore) Finish(ctx context.Context, id string, status entities.SessionStatus, achievedLevelCm float64, reason string) (bool, error) {
	now := time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&entities.IrrigationSession{}).
		Where("id = ? AND status = ?", id, entities.SessionActive).
		Updates(map[string]any{
			"status":            status,
			"end_time":          now,
			"achieved_level_cm": achievedLevelCm,
			"stop_reason":       reason,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// IsActive reports whether the session is still active; monitor polls use
// this as their cancellation flag.
func (s *SessionStore) IsActive(ctx context.Context, id string) (bool, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return sess.Status == entities.SessionActive, nil
}

// UpdateGateLevel records a gate adjustment made mid-session.
func (s *SessionStore) UpdateGateLevel(ctx context.Context, id string, gateLevel int) error {
	return s.db.WithContext(ctx).Model(&entities.IrrigationSession{}).
		Where("id = ?", id).
		Update("gate_level", gateLevel).Error
}

// IncrementAnomalyCount bumps the session's anomaly counter.
func (s *SessionStore) IncrementAnomalyCount(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Model(&entities.IrrigationSession{}).
		Where("id = ?", id).
		UpdateColumn("anomaly_count", gorm.Expr("anomaly_count + 1")).Error
}

// CountActive returns the number of active sessions across all fields.
func (s *SessionStore) CountActive(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&entities.IrrigationSession{}).
		Where("status = ?", entities.SessionActive).Count(&n).Error
	return n, err
}

// ListActive returns all active sessions, used to resume monitors after a
// restart.
func (s *SessionStore) ListActive(ctx context.Context) ([]entities.IrrigationSession, error) {
	var out []entities.IrrigationSession
	err := s.db.WithContext(ctx).
		Where("status = ?", entities.SessionActive).Find(&out).Error
	return out, err
}
